// Package schema defines the two import flows the marketplace ships:
// bulk listing import and financial P&L import. Field specs and
// auto-mapping heuristics are static configuration; the engine never
// computes them.
package schema

import (
	"github.com/dealpage/importer/internal/engine"
	"github.com/dealpage/importer/internal/store"
)

// Industries is the allowed set for the listing industry field.
// Unrecognized values fall back to "Other".
var Industries = []string{
	"Retail", "Services", "Manufacturing", "Restaurants",
	"E-Commerce", "Construction", "Healthcare", "Technology",
	"Transportation", "Other",
}

func listingsFlow(extraRules []engine.MatchRule) engine.FlowDefinition {
	return engine.FlowDefinition{
		Info: engine.FlowInfo{Key: "listings", Label: "Bulk Listing Import"},
		Fields: []engine.FieldSpec{
			{Key: "title", Label: "Title", Type: engine.FieldText, Required: true},
			{Key: "price", Label: "Asking Price", Type: engine.FieldMoney, Required: true, Round: true},
			{Key: "revenue", Label: "Annual Revenue", Type: engine.FieldMoney, Round: true},
			{Key: "cash_flow", Label: "Cash Flow", Type: engine.FieldMoney, Round: true},
			{Key: "industry", Label: "Industry", Type: engine.FieldEnum, EnumValues: Industries, Default: "Other"},
			{Key: "location", Label: "Location", Type: engine.FieldText},
			{Key: "description", Label: "Description", Type: engine.FieldText},
			{Key: "reason_for_sale", Label: "Reason for Sale", Type: engine.FieldText},
			{Key: "employees", Label: "Employees", Type: engine.FieldNumber},
			{Key: "established", Label: "Year Established", Type: engine.FieldNumber},
			{Key: "requires_nda", Label: "Requires NDA", Type: engine.FieldBool},
			{Key: "highlights", Label: "Highlights", Type: engine.FieldList},
		},
		Rules: append([]engine.MatchRule{
			{Field: "title", Contains: []string{"title", "name"}},
			{Field: "price", Contains: []string{"price", "asking"}},
			{Field: "cash_flow", Contains: []string{"cash", "sde", "profit"}},
			{Field: "revenue", Contains: []string{"revenue", "sales", "gross"}, Exclude: []string{"profit"}},
			{Field: "industry", Contains: []string{"industry", "category", "sector"}},
			{Field: "location", Contains: []string{"location", "city", "state", "region"}},
			{Field: "description", Contains: []string{"description", "summary", "about"}},
			{Field: "reason_for_sale", Contains: []string{"reason"}},
			{Field: "employees", Contains: []string{"employee", "staff", "headcount"}},
			{Field: "established", Contains: []string{"established", "founded"}},
			{Field: "requires_nda", Contains: []string{"nda", "confidential"}},
			{Field: "highlights", Contains: []string{"highlight"}},
		}, extraRules...),
		Primary: []string{"title", "price"},
		Insert:  store.InsertListing,
	}
}
