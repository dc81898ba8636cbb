package engine

import (
	"reflect"
	"testing"
)

var mapperFields = []FieldSpec{
	{Key: "title", Label: "Title", Type: FieldText, Required: true},
	{Key: "price", Label: "Asking Price", Type: FieldMoney, Required: true},
	{Key: "revenue", Label: "Annual Revenue", Type: FieldMoney},
	{Key: "profit", Label: "Annual Profit", Type: FieldMoney},
	{Key: "requires_nda", Label: "Requires NDA", Type: FieldBool},
}

var mapperRules = []MatchRule{
	{Field: "title", Contains: []string{"title", "name"}},
	{Field: "price", Contains: []string{"price", "asking"}},
	{Field: "revenue", Contains: []string{"revenue"}, Exclude: []string{"profit"}},
	{Field: "profit", Contains: []string{"profit"}},
	{Field: "requires_nda", Contains: []string{"nda"}},
}

func TestAutoDetect(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		want    Mapping
	}{
		{
			name:    "exact key match binds regardless of heuristics",
			headers: []string{"Price", "revenue"},
			want:    Mapping{"price": "Price", "revenue": "revenue"},
		},
		{
			name:    "exact match trims and ignores case",
			headers: []string{"  TITLE  ", "REQUIRES_NDA"},
			want:    Mapping{"title": "  TITLE  ", "requires_nda": "REQUIRES_NDA"},
		},
		{
			name:    "heuristic substring match",
			headers: []string{"Business Name", "Asking Price ($)"},
			want:    Mapping{"title": "Business Name", "price": "Asking Price ($)"},
		},
		{
			name:    "exclusion keeps revenue and profit apart",
			headers: []string{"Gross Revenue", "Revenue Profit"},
			want:    Mapping{"revenue": "Gross Revenue", "profit": "Revenue Profit"},
		},
		{
			name:    "later matching header overwrites earlier binding",
			headers: []string{"Company Name", "Listing Title"},
			want:    Mapping{"title": "Listing Title"},
		},
		{
			name:    "unmatched headers stay unbound",
			headers: []string{"Internal Ref", "Created By"},
			want:    Mapping{},
		},
		{
			name:    "empty headers are skipped",
			headers: []string{"", "   ", "Price"},
			want:    Mapping{"price": "Price"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AutoDetect(tt.headers, mapperFields, mapperRules)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("AutoDetect(%v) = %v, want %v", tt.headers, got, tt.want)
			}
		})
	}
}

func TestMappingMissingRequired(t *testing.T) {
	m := Mapping{"title": "Business Name"}
	missing := m.MissingRequired(mapperFields)
	if !reflect.DeepEqual(missing, []string{"Asking Price"}) {
		t.Fatalf("MissingRequired = %v, want [Asking Price]", missing)
	}

	// Binding any header to the field unblocks it.
	m.Bind("price", "Some Column")
	if missing := m.MissingRequired(mapperFields); len(missing) != 0 {
		t.Fatalf("MissingRequired after bind = %v, want none", missing)
	}

	// Unmapping re-blocks.
	m.Bind("price", "")
	if missing := m.MissingRequired(mapperFields); len(missing) != 1 {
		t.Fatalf("MissingRequired after unbind = %v, want one entry", missing)
	}
}
