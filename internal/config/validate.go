package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks that all required fields are set and values are valid.
func (c *LoaderConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if err := c.Feed.validate(); err != nil {
		return err
	}
	if err := c.Session.validate(!c.Feed.Broker.Disabled); err != nil {
		return err
	}

	if err := c.Database.Market.validate("database.market"); err != nil {
		return err
	}

	if c.Writers.MinFlushInterval < time.Second {
		return errors.New("writers.min_flush_interval must be >= 1s")
	}
	if c.Writers.FlushInterval < c.Writers.MinFlushInterval {
		return fmt.Errorf("writers.flush_interval (%s) cannot be below writers.min_flush_interval (%s)",
			c.Writers.FlushInterval, c.Writers.MinFlushInterval)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (f *FeedConfig) validate() error {
	if f.Host == "" {
		return errors.New("feed.host is required")
	}
	if f.Quotes.Disabled && f.Book.Disabled && f.Broker.Disabled {
		return errors.New("feed: at least one of quotes, book, broker must be enabled")
	}

	families := []struct {
		name string
		cfg  FamilyConfig
	}{
		{"quotes", f.Quotes},
		{"book", f.Book},
		{"broker", f.Broker},
	}
	for _, fam := range families {
		if fam.cfg.Disabled {
			continue
		}
		port := f.Port
		if fam.cfg.Port != 0 {
			port = fam.cfg.Port
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("feed.%s: port must be between 1 and 65535, got %d", fam.name, port)
		}
	}

	if f.MaxReconnectAttempts < 0 {
		return errors.New("feed.max_reconnect_attempts must be >= 0")
	}
	if f.BookLines < 1 {
		return errors.New("feed.book_lines must be >= 1")
	}
	return nil
}

func (s *SessionConfig) validate(needBrokers bool) error {
	if len(s.Instruments) == 0 {
		return errors.New("session.instruments must not be empty")
	}
	for i, inst := range s.Instruments {
		if strings.TrimSpace(inst.Code) == "" {
			return fmt.Errorf("session.instruments[%d].code is required", i)
		}
	}
	if needBrokers && len(s.Brokers) == 0 {
		return errors.New("session.brokers must not be empty when the broker family is enabled")
	}

	loc, err := s.Location()
	if err != nil {
		return fmt.Errorf("session.timezone: %w", err)
	}
	if _, err := s.ReferenceDay(time.Now(), loc); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if _, err := s.Cutoff(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
