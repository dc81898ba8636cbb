// Package store is the PostgreSQL storage collaborator for the import
// engine. Functions take the engine's DBTX so they run identically
// against a pool or inside a transaction.
package store

import (
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// toPgText converts a string to pgtype.Text.
// Returns invalid (NULL) for empty or whitespace-only input.
func toPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// toPgFloat8 converts a float to pgtype.Float8.
// Zero is stored as NULL: the transformer degrades unparseable money to
// zero, and the ledger's gap-fill treats zero as "no value", so the
// database should too.
func toPgFloat8(f float64) pgtype.Float8 {
	if f == 0 {
		return pgtype.Float8{Valid: false}
	}
	return pgtype.Float8{Float64: f, Valid: true}
}

// toPgInt4 converts an integer-valued float to pgtype.Int4, NULL on zero.
func toPgInt4(f float64) pgtype.Int4 {
	if f == 0 {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Int32: int32(f), Valid: true}
}

func toPgBool(b bool) pgtype.Bool {
	return pgtype.Bool{Bool: b, Valid: true}
}
