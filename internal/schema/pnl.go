package schema

import (
	"github.com/dealpage/importer/internal/engine"
	"github.com/dealpage/importer/internal/store"
)

func pnlFlow(extraRules []engine.MatchRule) engine.FlowDefinition {
	return engine.FlowDefinition{
		Info: engine.FlowInfo{Key: "pnl", Label: "Financial P&L Import"},
		Fields: []engine.FieldSpec{
			{Key: "period", Label: "Period", Type: engine.FieldPeriod, Required: true},
			{Key: "revenue", Label: "Revenue", Type: engine.FieldMoney},
			{Key: "cogs", Label: "Cost of Goods Sold", Type: engine.FieldMoney},
			{Key: "gross_profit", Label: "Gross Profit", Type: engine.FieldMoney},
			{Key: "marketing", Label: "Marketing", Type: engine.FieldMoney},
			{Key: "payroll", Label: "Payroll", Type: engine.FieldMoney},
			{Key: "rent", Label: "Rent", Type: engine.FieldMoney},
			{Key: "other_expenses", Label: "Other Expenses", Type: engine.FieldMoney},
			{Key: "net_profit", Label: "Net Profit", Type: engine.FieldMoney},
		},
		// Order matters: gross/net rules must fire before the generic
		// revenue rule so "Gross Profit" never lands on revenue.
		Rules: append([]engine.MatchRule{
			{Field: "period", Contains: []string{"date", "month", "period"}},
			{Field: "gross_profit", Contains: []string{"gross"}, Exclude: []string{"revenue", "sales"}},
			{Field: "net_profit", Contains: []string{"net", "bottom line"}},
			{Field: "cogs", Contains: []string{"cogs", "cost of goods", "cost of sales"}},
			{Field: "marketing", Contains: []string{"marketing", "advertis"}},
			{Field: "payroll", Contains: []string{"payroll", "salaries", "wages"}},
			{Field: "rent", Contains: []string{"rent", "lease"}},
			{Field: "other_expenses", Contains: []string{"other", "misc"}},
			{Field: "revenue", Contains: []string{"revenue", "sales", "income"}, Exclude: []string{"profit", "net"}},
		}, extraRules...),
		Primary:     []string{"period"},
		PeriodField: "period",
		Insert:      store.InsertLedgerRow,
		ResetOwner:  store.DeleteLedger,
	}
}
