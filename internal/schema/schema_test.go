package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dealpage/importer/internal/engine"
)

func TestListingsAutoMapRealisticExport(t *testing.T) {
	flow := listingsFlow(nil)

	headers := []string{
		"Business Name", "Asking Price", "Gross Revenue", "Cash Flow (SDE)",
		"Industry", "City / State", "About the Business", "Reason for Selling",
		"Full-Time Employees", "Year Founded", "NDA Required", "Key Highlights",
	}
	m := engine.AutoDetect(headers, flow.Fields, flow.Rules)

	want := map[string]string{
		"title":           "Business Name",
		"price":           "Asking Price",
		"revenue":         "Gross Revenue",
		"cash_flow":       "Cash Flow (SDE)",
		"industry":        "Industry",
		"location":        "City / State",
		"description":     "About the Business",
		"reason_for_sale": "Reason for Selling",
		"employees":       "Full-Time Employees",
		"established":     "Year Founded",
		"requires_nda":    "NDA Required",
		"highlights":      "Key Highlights",
	}
	for field, header := range want {
		if m[field] != header {
			t.Errorf("field %s bound to %q, want %q", field, m[field], header)
		}
	}
	if missing := m.MissingRequired(flow.Fields); len(missing) != 0 {
		t.Errorf("missing required = %v, want none", missing)
	}
}

func TestPnlAutoMapKeepsProfitColumnsApart(t *testing.T) {
	flow := pnlFlow(nil)

	headers := []string{"Month", "Revenue", "COGS", "Gross Profit", "Net Profit", "Marketing Spend"}
	m := engine.AutoDetect(headers, flow.Fields, flow.Rules)

	want := map[string]string{
		"period":       "Month",
		"revenue":      "Revenue",
		"cogs":         "COGS",
		"gross_profit": "Gross Profit",
		"net_profit":   "Net Profit",
		"marketing":    "Marketing Spend",
	}
	for field, header := range want {
		if m[field] != header {
			t.Errorf("field %s bound to %q, want %q", field, m[field], header)
		}
	}
}

func TestLoadRulesExtensionFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `
flows:
  listings:
    rules:
      - field: revenue
        contains: [turnover]
        exclude: [projected]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	extra, err := loadRules(path)
	if err != nil {
		t.Fatal(err)
	}
	rules := extra["listings"]
	if len(rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(rules))
	}

	flow := listingsFlow(rules)
	m := engine.AutoDetect([]string{"Annual Turnover"}, flow.Fields, flow.Rules)
	if m["revenue"] != "Annual Turnover" {
		t.Errorf("extension rule did not bind: %v", m)
	}
	m = engine.AutoDetect([]string{"Projected Turnover"}, flow.Fields, flow.Rules)
	if m["revenue"] != "" {
		t.Errorf("exclusion ignored: %v", m)
	}
}

func TestLoadRulesRejectsMalformedRule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `
flows:
  pnl:
    rules:
      - field: revenue
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadRules(path); err == nil {
		t.Fatal("expected error for rule without contains")
	}
}

func TestLoadRulesMissingPathIsNoop(t *testing.T) {
	extra, err := loadRules("")
	if err != nil || extra != nil {
		t.Fatalf("loadRules(\"\") = %v, %v; want nil, nil", extra, err)
	}
}
