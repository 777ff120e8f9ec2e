package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // exchange zone must resolve on hosts without zoneinfo
)

// LoaderConfig is the root configuration of an rtdloader instance.
type LoaderConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Log      LogConfig      `yaml:"log"`
	Feed     FeedConfig     `yaml:"feed"`
	Session  SessionConfig  `yaml:"session"`
	Database DatabaseConfig `yaml:"database"`
	Writers  WritersConfig  `yaml:"writers"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this loader.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// FeedConfig holds the RTD terminal connection settings.
type FeedConfig struct {
	Host                 string        `yaml:"host"`
	Port                 int           `yaml:"port"`
	DialTimeout          time.Duration `yaml:"dial_timeout"`
	KeepAlive            time.Duration `yaml:"keep_alive"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	BookLines            int           `yaml:"book_lines"`

	Quotes FamilyConfig `yaml:"quotes"`
	Book   FamilyConfig `yaml:"book"`
	Broker FamilyConfig `yaml:"broker"`
}

// FamilyConfig overrides feed settings for one record family.
type FamilyConfig struct {
	Disabled bool `yaml:"disabled"`
	Port     int  `yaml:"port"` // 0 uses feed.port
}

// Addr returns host:port for a family.
func (f FeedConfig) Addr(fc FamilyConfig) string {
	port := f.Port
	if fc.Port != 0 {
		port = fc.Port
	}
	return net.JoinHostPort(f.Host, strconv.Itoa(port))
}

// SessionConfig describes the trading day being loaded.
type SessionConfig struct {
	ReferenceDate string             `yaml:"reference_date"` // YYYY-MM-DD, empty = today
	Timezone      string             `yaml:"timezone"`       // Exchange time zone
	ShutdownTime  string             `yaml:"shutdown_time"`  // HH:MM:SS exchange time, optional
	StopTimeout   time.Duration      `yaml:"stop_timeout"`
	Instruments   []InstrumentConfig `yaml:"instruments"`
	Brokers       []int              `yaml:"brokers"`
}

// InstrumentConfig is one subscribed instrument.
type InstrumentConfig struct {
	Code       string `yaml:"code"`
	ReplayCode string `yaml:"replay_code"`
}

// Location loads the exchange time zone.
func (s SessionConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// ReferenceDay returns midnight of the reference date in loc. An empty
// reference date selects the day of now in loc.
func (s SessionConfig) ReferenceDay(now time.Time, loc *time.Location) (time.Time, error) {
	if s.ReferenceDate == "" {
		y, m, d := now.In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s.ReferenceDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse reference_date %q: %w", s.ReferenceDate, err)
	}
	return t, nil
}

// Cutoff returns the shutdown time as an offset from midnight. Zero when
// no shutdown time is configured.
func (s SessionConfig) Cutoff() (time.Duration, error) {
	if strings.TrimSpace(s.ShutdownTime) == "" {
		return 0, nil
	}
	t, err := time.Parse(time.TimeOnly, strings.TrimSpace(s.ShutdownTime))
	if err != nil {
		return 0, fmt.Errorf("parse shutdown_time %q: %w", s.ShutdownTime, err)
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

// DatabaseConfig holds the market database connection.
type DatabaseConfig struct {
	Market DBConfig `yaml:"market"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WritersConfig holds change writer settings.
type WritersConfig struct {
	FlushInterval    time.Duration `yaml:"flush_interval"`
	MinFlushInterval time.Duration `yaml:"min_flush_interval"`
}

// MetricsConfig holds Prometheus metrics and health endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
