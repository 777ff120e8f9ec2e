package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/rtd-loader/internal/model"
)

// BrokerRow is one broker balance change to insert.
type BrokerRow struct {
	Key         model.BrokerKey
	At          time.Time
	Volume      int64
	VWAP        float64
	Provisional bool
}

const latestBrokersSQL = `
	SELECT DISTINCT ON (asset, broker_id) asset, broker_id, COALESCE(volume, 0), COALESCE(vwap, 0)
	FROM asset_brokers
	WHERE ` + latestFilter + `
	ORDER BY asset ASC, broker_id ASC, datetime DESC`

const insertBrokerSQL = `
	INSERT INTO asset_brokers (datetime, asset, broker_id, volume, vwap, auction)
	VALUES ($1, $2, $3, $4, $5, $6)`

// LatestBrokers returns the most recent persisted balance of every
// (instrument, broker) pair on day, counting provisional rows whatever
// their date, in a single query.
func (s *PG) LatestBrokers(ctx context.Context, day time.Time) (map[model.BrokerKey]model.BrokerBalance, error) {
	rows, err := s.db.Query(ctx, latestBrokersSQL, dayParam(day), s.zone)
	if err != nil {
		return nil, fmt.Errorf("query latest brokers: %w", err)
	}
	defer rows.Close()

	out := make(map[model.BrokerKey]model.BrokerBalance)
	for rows.Next() {
		var (
			key model.BrokerKey
			id  int32
			b   model.BrokerBalance
		)
		if err := rows.Scan(&key.Code, &id, &b.Volume, &b.VWAP); err != nil {
			return nil, fmt.Errorf("scan broker: %w", err)
		}
		key.BrokerID = int(id)
		out[key] = b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read latest brokers: %w", err)
	}
	return out, nil
}

// InsertBrokers writes all rows in one batch.
func (s *PG) InsertBrokers(ctx context.Context, rows []BrokerRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertBrokerSQL, r.At, r.Key.Code, r.Key.BrokerID, r.Volume, r.VWAP, r.Provisional)
	}

	if err := s.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("insert brokers: %w", err)
	}
	return nil
}
