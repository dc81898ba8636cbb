package engine

// transform.go turns raw string rows into typed records using a confirmed
// column mapping.
//
// Cleanup handles the messy reality of user exports: currency symbols and
// thousands separators in money columns, accounting-style parentheses for
// negatives, assorted truthy spellings, pipe-delimited list cells and
// Excel formula prefixes. Monetary junk degrades to zero rather than an
// error; only the schema's primary fields can reject a row.

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ListDelimiter separates items inside a FieldList cell.
const ListDelimiter = "|"

// Transform converts every data row into a Record or a RowError. It never
// aborts early: a rejected row is reported and the remaining rows are
// still processed. fallbackYear fills in the year for period cells that
// carry none; pass 0 for flows without a period field.
func Transform(t RawTable, m Mapping, flow FlowDefinition, fallbackYear int) ([]*Record, []RowError) {
	records := make([]*Record, 0, len(t.Rows))
	var rowErrs []RowError

	for i, row := range t.Rows {
		rec := transformRow(row, t.Headers, m, flow, fallbackYear)
		rec.SourceRow = i + 1

		if reason := primaryGate(rec, flow); reason != "" {
			rowErrs = append(rowErrs, RowError{Row: rec.SourceRow, Reason: reason})
			continue
		}
		records = append(records, rec)
	}

	return records, rowErrs
}

func transformRow(row, headers []string, m Mapping, flow FlowDefinition, fallbackYear int) *Record {
	rec := &Record{Fields: make(map[string]any, len(flow.Fields))}

	for _, spec := range flow.Fields {
		raw := Lookup(row, headers, m, spec.Key)

		switch spec.Type {
		case FieldMoney:
			rec.Fields[spec.Key] = CleanMoney(raw, spec.Round)
		case FieldNumber:
			rec.Fields[spec.Key] = CleanMoney(raw, true)
		case FieldBool:
			rec.Fields[spec.Key] = strings.EqualFold(raw, "true")
		case FieldEnum:
			rec.Fields[spec.Key] = cleanEnum(raw, spec)
		case FieldList:
			rec.Fields[spec.Key] = cleanList(raw)
		case FieldPeriod:
			p := NormalizePeriod(raw)
			if p.Year == 0 && fallbackYear != 0 {
				p.Year = fallbackYear
			}
			rec.Fields[spec.Key] = p
		default:
			rec.Fields[spec.Key] = raw
		}
	}

	return rec
}

// Lookup resolves the cell bound to a field key: the mapped header's
// column position in the source header row, outer quotes stripped and
// trimmed. Returns "" for unmapped fields and short rows.
func Lookup(row, headers []string, m Mapping, fieldKey string) string {
	header, ok := m[fieldKey]
	if !ok || header == "" {
		return ""
	}
	col := headerIndexOf(headers, header)
	if col < 0 || col >= len(row) {
		return ""
	}
	return CleanCell(row[col])
}

// CleanCell removes common export artifacts from a cell value: surrounding
// whitespace, Excel formula prefixes (="value") and outer quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// CleanMoney parses a monetary cell into a float. Currency symbols,
// thousands separators and accounting parentheses are stripped first.
// Non-numeric input yields 0, never an error. round applies the
// whole-units rule used by price-like fields.
func CleanMoney(s string, round bool) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	replacer := strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "")
	s = replacer.Replace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	if negative {
		d = d.Neg()
	}
	if round {
		d = d.Round(0)
	}
	return d.InexactFloat64()
}

// cleanEnum accepts the cell only when it is a member of the allowed set;
// otherwise the schema default applies.
func cleanEnum(s string, spec FieldSpec) string {
	for _, v := range spec.EnumValues {
		if strings.EqualFold(s, v) {
			return v
		}
	}
	return spec.Default
}

// cleanList splits a pipe-delimited cell into trimmed items. An empty cell
// yields an empty list.
func cleanList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, ListDelimiter)
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return items
}

// primaryGate checks the flow's primary fields after cleanup. Returns a
// human-readable rejection reason, or "" when the row is acceptable.
func primaryGate(rec *Record, flow FlowDefinition) string {
	for _, key := range flow.Primary {
		spec, ok := flow.Field(key)
		if !ok {
			continue
		}
		if truthy(rec.Fields[key]) {
			continue
		}
		return fmt.Sprintf("missing required %s", strings.ToLower(spec.Label))
	}
	return ""
}

// truthy is the gap-fill notion of "has a value": non-empty string,
// non-zero number, true, non-empty list, or a period with a label.
func truthy(v any) bool {
	switch x := v.(type) {
	case string:
		return x != ""
	case float64:
		return x != 0
	case bool:
		return x
	case []string:
		return len(x) > 0
	case Period:
		return x.Label != ""
	default:
		return v != nil
	}
}
