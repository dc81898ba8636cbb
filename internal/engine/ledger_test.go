package engine

import "testing"

func pnlRecord(label string, year int, fields map[string]any) *Record {
	f := map[string]any{"period": Period{Label: label, Year: year}}
	for k, v := range fields {
		f[k] = v
	}
	return &Record{Fields: f}
}

func TestLedgerMergeGapFill(t *testing.T) {
	l := NewLedger("period")

	l.Merge([]*Record{
		pnlRecord("January", 2024, map[string]any{"revenue": 1000.0, "marketing": 0.0}),
	})
	l.Merge([]*Record{
		pnlRecord("January", 2024, map[string]any{"revenue": 0.0, "marketing": 200.0}),
	})

	if l.Len() != 1 {
		t.Fatalf("Len = %d, want 1", l.Len())
	}
	rec := l.Sorted()[0]
	if got := rec.Float("revenue"); got != 1000 {
		t.Errorf("revenue = %v, want 1000 (existing value never overwritten)", got)
	}
	if got := rec.Float("marketing"); got != 200 {
		t.Errorf("marketing = %v, want 200 (gap filled from later upload)", got)
	}
}

func TestLedgerMergeDoesNotOverwriteAcrossUploads(t *testing.T) {
	l := NewLedger("period")

	l.Merge([]*Record{
		pnlRecord("March", 2024, map[string]any{"revenue": 5000.0}),
	})
	l.Merge([]*Record{
		pnlRecord("March", 2024, map[string]any{"revenue": 9999.0}),
	})

	if got := l.Sorted()[0].Float("revenue"); got != 5000 {
		t.Errorf("revenue = %v, want first recorded value 5000", got)
	}
}

func TestLedgerChronologicalResort(t *testing.T) {
	l := NewLedger("period")

	// Inserted out of order, across two merges.
	l.Merge([]*Record{
		pnlRecord("March", 2024, nil),
		pnlRecord("January", 2024, nil),
	})
	l.Merge([]*Record{
		pnlRecord("February", 2024, nil),
		pnlRecord("December", 2023, nil),
	})

	var got []string
	for _, rec := range l.Sorted() {
		got = append(got, rec.PeriodOf("period").Key())
	}
	want := []string{"December-2023", "January-2024", "February-2024", "March-2024"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestLedgerUnknownLabelSortsAfterMonths(t *testing.T) {
	l := NewLedger("period")

	l.Merge([]*Record{
		pnlRecord("Q2", 2024, nil),
		pnlRecord("Q1", 2024, nil),
		pnlRecord("June", 2024, nil),
	})

	var got []string
	for _, rec := range l.Sorted() {
		got = append(got, rec.PeriodOf("period").Label)
	}
	// Unknown labels keep arrival order after the known months.
	want := []string{"June", "Q2", "Q1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}
