// Package store persists billback state in Postgres through a pgx pool.
// It exposes one type per logical table; services own all business rules,
// the store owns SQL and the conditional writes that guard batch state
// transitions.
package store

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Sentinel errors mapped by the service layer onto the API error taxonomy.
var (
	// ErrNotFound: no row for the given key.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate: insert would overwrite an existing row that must never
	// be re-created (line items).
	ErrDuplicate = errors.New("store: duplicate key")
	// ErrConflict: a conditional write matched zero rows because the row's
	// current state differs from the expected prior state.
	ErrConflict = errors.New("store: state conflict")
)

// scanner is satisfied by pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
