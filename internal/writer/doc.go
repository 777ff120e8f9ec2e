// Package writer implements the change-detecting write-back of decoded
// state.
//
// Every flush interval a Writer asks its family Flusher to compare the
// in-memory state table with the latest persisted row of each key for the
// reference day, and to insert a row only where something changed. Flushes
// are serialized: the timer is re-armed only after a cycle completes.
//
// Writers:
//   - Quotes (asset_quotes), with an optional end-of-session cutoff
//   - Book (asset_books), levels compared one by one
//   - Broker ranking (asset_brokers), one query for every pair
//
// Rows are append-only except for the one-time finalization of provisional
// rows once the clock skew is known.
package writer
