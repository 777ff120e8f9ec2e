// rtdtap connects one record family to the RTD terminal and prints decoded
// batches to the console. Nothing is written to the database.
// Usage: go run ./cmd/rtdtap --config configs/rtdloader.yaml --family quotes
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rickgao/rtd-loader/internal/clock"
	"github.com/rickgao/rtd-loader/internal/config"
	"github.com/rickgao/rtd-loader/internal/connection"
	"github.com/rickgao/rtd-loader/internal/decoder"
	"github.com/rickgao/rtd-loader/internal/frame"
	"github.com/rickgao/rtd-loader/internal/instrument"
	"github.com/rickgao/rtd-loader/internal/model"
)

func main() {
	configPath := flag.String("config", "configs/rtdloader.yaml", "path to config file")
	family := flag.String("family", "quotes", "record family: quotes, book or broker")
	verbose := flag.Bool("verbose", false, "print the decoded state as JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	instruments := make([]model.Instrument, len(cfg.Session.Instruments))
	for i, inst := range cfg.Session.Instruments {
		instruments[i] = model.Instrument{Code: inst.Code, ReplayCode: inst.ReplayCode}
	}
	reg, err := instrument.NewRegistry(instruments, cfg.Session.Brokers)
	if err != nil {
		logger.Error("invalid instrument list", "error", err)
		os.Exit(1)
	}

	loc, err := cfg.Session.Location()
	if err != nil {
		logger.Error("invalid timezone", "error", err)
		os.Exit(1)
	}
	day, err := cfg.Session.ReferenceDay(time.Now(), loc)
	if err != nil {
		logger.Error("invalid reference date", "error", err)
		os.Exit(1)
	}

	t := &tap{skew: clock.NewSkew(), verbose: *verbose, logger: logger}
	var fc config.FamilyConfig
	switch model.Family(*family) {
	case model.FamilyQuotes:
		table := decoder.NewQuoteTable(reg)
		t.dec = decoder.NewQuotes(reg, table, t.skew, day, logger)
		t.dump = func() any { return snapshot(table) }
		fc = cfg.Feed.Quotes
	case model.FamilyBook:
		table := decoder.NewBookTable(reg)
		t.dec = decoder.NewBook(reg, table, cfg.Feed.BookLines, logger)
		t.dump = func() any { return snapshot(table) }
		fc = cfg.Feed.Book
	case model.FamilyBroker:
		table := decoder.NewBrokerTable(reg)
		t.dec = decoder.NewBroker(reg, table, logger)
		t.dump = func() any { return snapshot(table) }
		fc = cfg.Feed.Broker
	default:
		logger.Error("unknown family", "family", *family)
		os.Exit(1)
	}
	t.reassembler = frame.NewReassembler(t.dec.Framing())

	supCfg := connection.DefaultSupervisorConfig()
	supCfg.Name = *family
	supCfg.Client.Addr = cfg.Feed.Addr(fc)
	supCfg.Client.DialTimeout = cfg.Feed.DialTimeout
	supCfg.Client.KeepAlive = cfg.Feed.KeepAlive
	supCfg.ReconnectInterval = cfg.Feed.ReconnectInterval
	supCfg.MaxReconnectAttempts = cfg.Feed.MaxReconnectAttempts

	sup := connection.NewSupervisor(supCfg, t, logger)
	logger.Info("connecting", "family", *family, "addr", supCfg.Client.Addr, "instruments", reg.Len())
	if err := sup.Start(ctx); err != nil {
		logger.Error("failed to start supervisor", "error", err)
		os.Exit(1)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				skew, known := t.skew.Value()
				logger.Info("stats",
					"state", sup.State(),
					"batches", t.batches.Load(),
					"applied", t.applied.Load(),
					"skipped", t.skipped.Load(),
					"errors", t.errors.Load(),
					"skew_known", known,
					"skew", skew,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	select {
	case <-ctx.Done():
	case err := <-sup.Fatal():
		logger.Error("connection failed", "error", err)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	sup.Stop(shutdownCtx)

	logger.Info("shutdown complete")
}

// tap prints what the decoder makes of each batch.
type tap struct {
	dec         decoder.Decoder
	reassembler *frame.Reassembler
	skew        *clock.Skew
	dump        func() any
	verbose     bool
	logger      *slog.Logger

	batches, applied, skipped, errors atomic.Int64
}

func (t *tap) Subscription() []byte { return []byte(t.dec.Subscription()) }

func (t *tap) OnConnected() { t.reassembler.Reset() }

func (t *tap) OnSubscribed() {
	t.logger.Info("subscribed", "family", t.dec.Family())
}

func (t *tap) OnMessage(msg connection.TimestampedMessage) {
	batch, ok := t.reassembler.Push(msg.Data)
	if !ok {
		return
	}
	res := t.dec.Decode(batch, msg.ReceivedAt)

	t.batches.Add(1)
	t.applied.Add(int64(res.Applied))
	t.skipped.Add(int64(res.Skipped))
	t.errors.Add(int64(len(res.Errors)))

	fmt.Printf("[%s] at=%s applied=%d skipped=%d errors=%d\n",
		t.dec.Family(), msg.ReceivedAt.Format(time.TimeOnly), res.Applied, res.Skipped, len(res.Errors))
	for _, err := range res.Errors {
		fmt.Printf("  error: %v\n", err)
	}

	if len(res.Candidates) > 0 && !t.skew.Known() {
		if est, ok := clock.EstimateSkew(msg.ReceivedAt, res.Candidates); ok && t.skew.Set(est.Skew) {
			fmt.Printf("  clock skew %s (inliers=%d outliers=%d)\n", est.Skew, len(est.Inliers), len(est.Outliers))
		}
	}

	if t.verbose {
		data, _ := json.MarshalIndent(t.dump(), "", "  ")
		fmt.Printf("%s\n", data)
	}
}

// snapshot copies a state table into a map for printing.
func snapshot[K comparable, V any](table *decoder.Table[K, V]) map[string]V {
	out := make(map[string]V, table.Len())
	for _, k := range table.Keys() {
		if v, ok := table.Load(k); ok {
			out[fmt.Sprint(k)] = v
		}
	}
	return out
}
