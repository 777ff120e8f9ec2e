// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics (all labeled by record family):
//   - Connection state and reconnects
//   - Decoded, skipped and rejected records
//   - Writer flush latency, rows written and failures
//   - Provisional rows finalized or purged
//   - Current clock skew
//
// A nil *Metrics is valid and records nothing.
package metrics
