package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/rtd-loader/internal/config"
	"github.com/rickgao/rtd-loader/internal/connection"
	"github.com/rickgao/rtd-loader/internal/metrics"
	"github.com/rickgao/rtd-loader/internal/model"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeSession struct {
	states map[model.Family]connection.State
	skew   time.Duration
	known  bool
}

func (f fakeSession) ID() string                                { return "sess-1" }
func (f fakeSession) States() map[model.Family]connection.State { return f.states }
func (f fakeSession) SkewValue() (time.Duration, bool)          { return f.skew, f.known }

type healthBody struct {
	Status     string         `json:"status"`
	Session    string         `json:"session"`
	Components map[string]any `json:"components"`
}

func getHealth(t *testing.T, h http.Handler) (int, healthBody) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body healthBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	return rec.Code, body
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		db         fakePinger
		sess       fakeSession
		wantCode   int
		wantStatus string
	}{
		{
			name: "all subscribed",
			sess: fakeSession{
				states: map[model.Family]connection.State{
					model.FamilyQuotes: connection.StateSubscribed,
					model.FamilyBook:   connection.StateSubscribed,
				},
				skew:  2 * time.Second,
				known: true,
			},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name: "reconnecting",
			sess: fakeSession{states: map[model.Family]connection.State{
				model.FamilyQuotes: connection.StateReconnecting,
			}},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
		},
		{
			name: "loader failed",
			sess: fakeSession{states: map[model.Family]connection.State{
				model.FamilyQuotes: connection.StateSubscribed,
				model.FamilyBroker: connection.StateFailed,
			}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
		},
		{
			name: "database down",
			db:   fakePinger{err: errors.New("connection refused")},
			sess: fakeSession{states: map[model.Family]connection.State{
				model.FamilyQuotes: connection.StateSubscribed,
			}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := createHealthHandler(tt.db, tt.sess, prometheus.NewRegistry(), "/metrics")
			code, body := getHealth(t, h)
			if code != tt.wantCode {
				t.Errorf("status code = %d, want %d", code, tt.wantCode)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", body.Status, tt.wantStatus)
			}
			if body.Session != "sess-1" {
				t.Errorf("Session = %q, want %q", body.Session, "sess-1")
			}
		})
	}
}

func TestHealthHandler_ReportsSkew(t *testing.T) {
	sess := fakeSession{
		states: map[model.Family]connection.State{model.FamilyQuotes: connection.StateSubscribed},
		skew:   1500 * time.Millisecond,
		known:  true,
	}
	_, body := getHealth(t, createHealthHandler(fakePinger{}, sess, prometheus.NewRegistry(), "/metrics"))

	if got := body.Components["clock_skew"]; got != "1.5s" {
		t.Errorf("clock_skew = %v, want %q", got, "1.5s")
	}
	if got := body.Components["quotes"]; got != "subscribed" {
		t.Errorf("quotes = %v, want %q", got, "subscribed")
	}
}

func TestHealthHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.IncReconnects("quotes")

	h := createHealthHandler(fakePinger{}, fakeSession{}, reg, "/metrics")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `rtdloader_reconnects_total{family="quotes"} 1`) {
		t.Errorf("metrics body missing reconnect counter:\n%s", rec.Body.String())
	}
}

func TestFamilyConfigs(t *testing.T) {
	feed := config.FeedConfig{
		Host:                 "10.0.0.5",
		Port:                 12002,
		DialTimeout:          3 * time.Second,
		ReconnectInterval:    2 * time.Second,
		MaxReconnectAttempts: 4,
		Book:                 config.FamilyConfig{Disabled: true},
		Broker:               config.FamilyConfig{Port: 12003},
	}

	got := familyConfigs(feed)
	if len(got) != 2 {
		t.Fatalf("len(familyConfigs) = %d, want 2", len(got))
	}
	if _, ok := got[model.FamilyBook]; ok {
		t.Error("disabled book family present")
	}
	if addr := got[model.FamilyBroker].Client.Addr; addr != "10.0.0.5:12003" {
		t.Errorf("broker Addr = %q, want %q", addr, "10.0.0.5:12003")
	}
	q := got[model.FamilyQuotes]
	if q.Client.Addr != "10.0.0.5:12002" {
		t.Errorf("quotes Addr = %q, want %q", q.Client.Addr, "10.0.0.5:12002")
	}
	if q.MaxReconnectAttempts != 4 {
		t.Errorf("MaxReconnectAttempts = %d, want 4", q.MaxReconnectAttempts)
	}
	if q.Client.DialTimeout != 3*time.Second {
		t.Errorf("DialTimeout = %v, want %v", q.Client.DialTimeout, 3*time.Second)
	}
}

func TestSessionConfig(t *testing.T) {
	cfg := &config.LoaderConfig{
		Feed: config.FeedConfig{Host: "localhost", Port: 12002, BookLines: 10},
		Session: config.SessionConfig{
			ReferenceDate: "2024-11-08",
			Timezone:      "America/Sao_Paulo",
			ShutdownTime:  "18:00:00",
			Instruments:   []config.InstrumentConfig{{Code: "PETR4", ReplayCode: "PETR4R"}},
			Brokers:       []int{3},
		},
		Writers: config.WritersConfig{FlushInterval: 15 * time.Second},
	}

	got, err := sessionConfig(cfg, time.Now())
	if err != nil {
		t.Fatalf("sessionConfig() error: %v", err)
	}
	if got.ReferenceDay.Format(time.DateOnly) != "2024-11-08" {
		t.Errorf("ReferenceDay = %v, want 2024-11-08", got.ReferenceDay)
	}
	if got.Cutoff != 18*time.Hour {
		t.Errorf("Cutoff = %v, want %v", got.Cutoff, 18*time.Hour)
	}
	if len(got.Instruments) != 1 || got.Instruments[0].FeedCode() != "PETR4R" {
		t.Errorf("Instruments = %+v, want PETR4 replayed as PETR4R", got.Instruments)
	}
	if got.BookDepth != 10 {
		t.Errorf("BookDepth = %d, want 10", got.BookDepth)
	}
	if got.Writer.FlushInterval != 15*time.Second {
		t.Errorf("Writer.FlushInterval = %v, want %v", got.Writer.FlushInterval, 15*time.Second)
	}
	if len(got.Families) != 3 {
		t.Errorf("len(Families) = %d, want 3", len(got.Families))
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("shown", "family", "quotes")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"family":"quotes"`) {
		t.Errorf("unexpected json output: %s", out)
	}

	if got := parseLevel("DEBUG"); got != slog.LevelDebug {
		t.Errorf("parseLevel(DEBUG) = %v, want %v", got, slog.LevelDebug)
	}
}
