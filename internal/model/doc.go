// Package model defines shared data types used across the RTD loader.
//
// Conventions:
//   - Prices and levels: float64 rounded to 3 decimals, as sent by the terminal
//   - Quantities and volumes: int64
//   - Timestamps: time.Time captured locally; skew adjustment happens at write time
//   - Instruments are identified by their persisted code, never by position
package model
