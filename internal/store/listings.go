package store

import (
	"context"
	"fmt"

	"github.com/dealpage/importer/internal/engine"
)

const insertListingSQL = `
INSERT INTO listings (
	owner_id, title, price, revenue, cash_flow, industry, location,
	description, reason_for_sale, employees, established, requires_nda,
	highlights, source_row
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

// InsertListing writes one transformed listing record. Matches
// engine.InsertFunc so the listings flow can bind it directly.
func InsertListing(ctx context.Context, db engine.DBTX, ownerID string, rec *engine.Record) error {
	_, err := db.Exec(ctx, insertListingSQL,
		ownerID,
		toPgText(rec.String("title")),
		toPgFloat8(rec.Float("price")),
		toPgFloat8(rec.Float("revenue")),
		toPgFloat8(rec.Float("cash_flow")),
		toPgText(rec.String("industry")),
		toPgText(rec.String("location")),
		toPgText(rec.String("description")),
		toPgText(rec.String("reason_for_sale")),
		toPgInt4(rec.Float("employees")),
		toPgInt4(rec.Float("established")),
		toPgBool(rec.Bool("requires_nda")),
		rec.List("highlights"),
		rec.SourceRow,
	)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}
