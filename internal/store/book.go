package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/rtd-loader/internal/model"
)

// BookRow is one depth snapshot to insert.
type BookRow struct {
	Code        string
	At          time.Time
	Levels      []model.BookLevel
	Provisional bool
}

const latestBooksSQL = `
	SELECT DISTINCT ON (asset) asset, book
	FROM asset_books
	WHERE ` + latestFilter + `
	ORDER BY asset ASC, datetime DESC`

const insertBookSQL = `
	INSERT INTO asset_books (datetime, asset, book, auction)
	VALUES ($1, $2, $3, $4)`

// LatestBooks returns the most recent persisted levels of each instrument
// on day, counting provisional rows whatever their date.
func (s *PG) LatestBooks(ctx context.Context, day time.Time) (map[string][]model.BookLevel, error) {
	rows, err := s.db.Query(ctx, latestBooksSQL, dayParam(day), s.zone)
	if err != nil {
		return nil, fmt.Errorf("query latest books: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]model.BookLevel)
	for rows.Next() {
		var (
			code string
			raw  []byte
		)
		if err := rows.Scan(&code, &raw); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		levels, err := decodeLevels(raw)
		if err != nil {
			return nil, fmt.Errorf("decode book %s: %w", code, err)
		}
		out[code] = levels
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read latest books: %w", err)
	}
	return out, nil
}

// InsertBooks writes all rows in one batch.
func (s *PG) InsertBooks(ctx context.Context, rows []BookRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		raw, err := encodeLevels(r.Levels)
		if err != nil {
			return fmt.Errorf("encode book %s: %w", r.Code, err)
		}
		batch.Queue(insertBookSQL, r.At, r.Code, raw, r.Provisional)
	}

	if err := s.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("insert books: %w", err)
	}
	return nil
}

// encodeLevels converts levels to JSONB bytes. A nil slice encodes as [].
func encodeLevels(levels []model.BookLevel) ([]byte, error) {
	if levels == nil {
		levels = []model.BookLevel{}
	}
	return json.Marshal(levels)
}

func decodeLevels(raw []byte) ([]model.BookLevel, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var levels []model.BookLevel
	if err := json.Unmarshal(raw, &levels); err != nil {
		return nil, err
	}
	return levels, nil
}
