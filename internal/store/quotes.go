package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/rtd-loader/internal/model"
)

// QuoteRow is one quote change to insert.
type QuoteRow struct {
	Code        string
	At          time.Time
	Quote       model.QuoteState
	Provisional bool
}

const latestQuotesSQL = `
	SELECT DISTINCT ON (asset)
		asset,
		COALESCE(open, 0), COALESCE(high, 0), COALESCE(low, 0), COALESCE(last, 0), COALESCE(vwap, 0),
		COALESCE(trades, 0), COALESCE(volume, 0),
		COALESCE(aggression_quantity_buy, 0), COALESCE(aggression_quantity_sell, 0),
		COALESCE(aggression_volume_buy, 0), COALESCE(aggression_volume_sell, 0),
		COALESCE(theoretical_level, 0), COALESCE(theoretical_volume_buy, 0), COALESCE(theoretical_volume_sell, 0),
		COALESCE(state, '')
	FROM asset_quotes
	WHERE ` + latestFilter + `
	ORDER BY asset ASC, datetime DESC`

const insertQuoteSQL = `
	INSERT INTO asset_quotes (
		datetime, asset, open, high, low, last, vwap, trades, volume,
		aggression_quantity_buy, aggression_quantity_sell,
		aggression_volume_buy, aggression_volume_sell,
		theoretical_level, theoretical_volume_buy, theoretical_volume_sell,
		state, auction
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

// LatestQuotes returns the most recent persisted quote of each instrument
// on day, counting provisional rows whatever their date. NULL columns read
// as zero.
func (s *PG) LatestQuotes(ctx context.Context, day time.Time) (map[string]model.QuoteState, error) {
	rows, err := s.db.Query(ctx, latestQuotesSQL, dayParam(day), s.zone)
	if err != nil {
		return nil, fmt.Errorf("query latest quotes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.QuoteState)
	for rows.Next() {
		var (
			code  string
			q     model.QuoteState
			state string
		)
		if err := rows.Scan(
			&code,
			&q.Open, &q.High, &q.Low, &q.Last, &q.VWAP,
			&q.Trades, &q.Volume,
			&q.AggressionQuantityBuy, &q.AggressionQuantitySell,
			&q.AggressionVolumeBuy, &q.AggressionVolumeSell,
			&q.TheoreticalLevel, &q.TheoreticalVolumeBuy, &q.TheoreticalVolumeSell,
			&state,
		); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		q.State = model.MarketState(state)
		out[code] = q
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read latest quotes: %w", err)
	}
	return out, nil
}

// InsertQuotes writes all rows in one batch.
func (s *PG) InsertQuotes(ctx context.Context, rows []QuoteRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertQuoteSQL, quoteArgs(r)...)
	}

	if err := s.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("insert quotes: %w", err)
	}
	return nil
}

func quoteArgs(r QuoteRow) []any {
	q := r.Quote
	return []any{
		r.At, r.Code,
		q.Open, q.High, q.Low, q.Last, q.VWAP,
		q.Trades, q.Volume,
		q.AggressionQuantityBuy, q.AggressionQuantitySell,
		q.AggressionVolumeBuy, q.AggressionVolumeSell,
		q.TheoreticalLevel, q.TheoreticalVolumeBuy, q.TheoreticalVolumeSell,
		string(q.State), r.Provisional,
	}
}
