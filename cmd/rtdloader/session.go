package main

import (
	"time"

	"github.com/rickgao/rtd-loader/internal/config"
	"github.com/rickgao/rtd-loader/internal/connection"
	"github.com/rickgao/rtd-loader/internal/model"
	"github.com/rickgao/rtd-loader/internal/session"
	"github.com/rickgao/rtd-loader/internal/writer"
)

// sessionConfig maps the file config onto a session. now picks the
// reference day when none is configured.
func sessionConfig(cfg *config.LoaderConfig, now time.Time) (session.Config, error) {
	loc, err := cfg.Session.Location()
	if err != nil {
		return session.Config{}, err
	}
	day, err := cfg.Session.ReferenceDay(now, loc)
	if err != nil {
		return session.Config{}, err
	}
	cutoff, err := cfg.Session.Cutoff()
	if err != nil {
		return session.Config{}, err
	}

	instruments := make([]model.Instrument, len(cfg.Session.Instruments))
	for i, inst := range cfg.Session.Instruments {
		instruments[i] = model.Instrument{Code: inst.Code, ReplayCode: inst.ReplayCode}
	}

	return session.Config{
		Instruments:  instruments,
		Brokers:      cfg.Session.Brokers,
		ReferenceDay: day,
		Cutoff:       cutoff,
		Families:     familyConfigs(cfg.Feed),
		BookDepth:    cfg.Feed.BookLines,
		Writer: writer.Config{
			FlushInterval:    cfg.Writers.FlushInterval,
			MinFlushInterval: cfg.Writers.MinFlushInterval,
		},
		StopTimeout: cfg.Session.StopTimeout,
	}, nil
}

// familyConfigs returns the supervisor config of every enabled family.
func familyConfigs(feed config.FeedConfig) map[model.Family]connection.SupervisorConfig {
	families := map[model.Family]config.FamilyConfig{
		model.FamilyQuotes: feed.Quotes,
		model.FamilyBook:   feed.Book,
		model.FamilyBroker: feed.Broker,
	}

	out := make(map[model.Family]connection.SupervisorConfig, len(families))
	for family, fc := range families {
		if fc.Disabled {
			continue
		}
		sup := connection.DefaultSupervisorConfig()
		sup.Name = string(family)
		sup.Client.Addr = feed.Addr(fc)
		sup.Client.DialTimeout = feed.DialTimeout
		sup.Client.KeepAlive = feed.KeepAlive
		sup.Client.WriteTimeout = feed.WriteTimeout
		sup.ReconnectInterval = feed.ReconnectInterval
		sup.MaxReconnectAttempts = feed.MaxReconnectAttempts
		out[family] = sup
	}
	return out
}
