package database

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/rtd-loader/internal/config"
)

// BuildConnString builds a PostgreSQL connection URL from config. The
// application name shows up in pg_stat_activity so several loaders on one
// database can be told apart.
func BuildConnString(cfg config.DBConfig, application string) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	if application != "" {
		q.Set("application_name", application)
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// redacted returns the connection URL with the password masked, for logs.
func redacted(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil {
		return fmt.Sprintf("<unparseable: %v>", err)
	}
	return u.Redacted()
}
