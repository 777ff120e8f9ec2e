// Package database opens the pgx connection pool backing the market store.
package database
