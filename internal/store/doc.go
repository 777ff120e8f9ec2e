// Package store persists decoded RTD state to PostgreSQL.
//
// Tables (one row per detected change):
//   - asset_quotes: quote snapshot per instrument
//   - asset_books: depth snapshot per instrument, levels as JSONB
//   - asset_brokers: net balance per (instrument, broker)
//
// Rows written before the clock skew is known carry auction = TRUE and the
// unadjusted local timestamp. Finalize rewrites them once the skew is
// known; Purge drops the ones left behind by an aborted session.
//
// Every query is scoped to one reference day, evaluated in the exchange
// time zone.
package store
