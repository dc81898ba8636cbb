package store

import (
	"context"
	"fmt"

	"github.com/dealpage/importer/internal/engine"
)

const insertLedgerRowSQL = `
INSERT INTO pnl_entries (
	owner_id, period_label, period_year, revenue, cogs, gross_profit,
	marketing, payroll, rent, other_expenses, net_profit
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// InsertLedgerRow writes one merged ledger row. Used inside the wholesale
// replace transaction, after DeleteLedger has cleared the owner's rows.
func InsertLedgerRow(ctx context.Context, db engine.DBTX, ownerID string, rec *engine.Record) error {
	period := rec.PeriodOf("period")
	_, err := db.Exec(ctx, insertLedgerRowSQL,
		ownerID,
		period.Label,
		period.Year,
		toPgFloat8(rec.Float("revenue")),
		toPgFloat8(rec.Float("cogs")),
		toPgFloat8(rec.Float("gross_profit")),
		toPgFloat8(rec.Float("marketing")),
		toPgFloat8(rec.Float("payroll")),
		toPgFloat8(rec.Float("rent")),
		toPgFloat8(rec.Float("other_expenses")),
		toPgFloat8(rec.Float("net_profit")),
	)
	if err != nil {
		return fmt.Errorf("insert ledger row %s: %w", period.Key(), err)
	}
	return nil
}

// DeleteLedger removes every ledger row for an owner ahead of a replace.
func DeleteLedger(ctx context.Context, db engine.DBTX, ownerID string) error {
	if _, err := db.Exec(ctx, `DELETE FROM pnl_entries WHERE owner_id = $1`, ownerID); err != nil {
		return fmt.Errorf("delete ledger for %s: %w", ownerID, err)
	}
	return nil
}
