package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/rtd-loader/internal/model"
)

// DB is the subset of *pgxpool.Pool used by the store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Table names.
const (
	TableQuotes  = "asset_quotes"
	TableBooks   = "asset_books"
	TableBrokers = "asset_brokers"
)

// TableFor returns the table holding a family's rows.
func TableFor(family model.Family) (string, error) {
	switch family {
	case model.FamilyQuotes:
		return TableQuotes, nil
	case model.FamilyBook:
		return TableBooks, nil
	case model.FamilyBroker:
		return TableBrokers, nil
	default:
		return "", fmt.Errorf("unknown family %q", family)
	}
}

// PG implements the family stores on PostgreSQL.
type PG struct {
	db   DB
	zone string // IANA zone the reference day is evaluated in
}

// NewPG creates a store. zone is the exchange time zone name, e.g.
// "America/Sao_Paulo".
func NewPG(db DB, zone string) *PG {
	if zone == "" {
		zone = "UTC"
	}
	return &PG{db: db, zone: zone}
}

// Finalize shifts every provisional row by -skew and clears its provisional
// flag. Provisional rows carry the uncorrected capture time, which in a
// replay is not the reference day, so they are selected by flag alone.
// Rows already final are untouched.
func (s *PG) Finalize(ctx context.Context, family model.Family, skew time.Duration) (int64, error) {
	table, err := TableFor(family)
	if err != nil {
		return 0, err
	}

	sql := `UPDATE ` + table + `
		SET datetime = datetime - make_interval(secs => $1), auction = FALSE
		WHERE auction = TRUE`

	ct, err := s.db.Exec(ctx, sql, skew.Seconds())
	if err != nil {
		return 0, fmt.Errorf("finalize %s: %w", table, err)
	}
	return ct.RowsAffected(), nil
}

// Purge deletes every provisional row.
func (s *PG) Purge(ctx context.Context, family model.Family) (int64, error) {
	table, err := TableFor(family)
	if err != nil {
		return 0, err
	}

	sql := `DELETE FROM ` + table + `
		WHERE auction = TRUE`

	ct, err := s.db.Exec(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", table, err)
	}
	return ct.RowsAffected(), nil
}

// sendBatch runs a batch of statements in one round trip.
func (s *PG) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return results.Close()
}

// latestFilter selects the rows compare-before-write reads: final rows of
// the reference day plus every provisional row, whose timestamp is not yet
// corrected.
const latestFilter = `auction = TRUE OR (datetime AT TIME ZONE $2)::date = $1::date`

// dayParam formats the reference day as a DATE literal.
func dayParam(day time.Time) string {
	return day.Format(time.DateOnly)
}
