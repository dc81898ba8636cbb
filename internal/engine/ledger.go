package engine

// ledger.go accumulates financial records across multiple file uploads in
// one editing session, keyed by normalized period.
//
// Merging is gap-fill, never overwrite: the first value ever recorded for
// a period wins per field, later uploads only fill fields that are still
// empty or zero. Sellers routinely upload overlapping exports (a full-year
// dump plus a corrected Q4 file) and expect earlier data to stand.

import "sort"

// Ledger maps period keys to merged records. Chronological order is
// derived, not stored; Sorted recomputes it on demand.
type Ledger struct {
	periodField string
	entries     map[string]*Record
	arrival     map[string]int // insertion ordinal, tiebreak for unknown labels
}

// NewLedger creates an empty ledger keyed on the given period field.
func NewLedger(periodField string) *Ledger {
	return &Ledger{
		periodField: periodField,
		entries:     make(map[string]*Record),
		arrival:     make(map[string]int),
	}
}

// Len returns the number of distinct periods recorded.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Merge folds new records into the ledger. A record for an unseen period
// is inserted directly; an existing period is merged field-by-field with
// gap-fill semantics. Returns how many periods were newly inserted.
func (l *Ledger) Merge(records []*Record) int {
	inserted := 0
	for _, rec := range records {
		key := rec.PeriodOf(l.periodField).Key()
		existing, ok := l.entries[key]
		if !ok {
			l.arrival[key] = len(l.arrival)
			l.entries[key] = rec
			inserted++
			continue
		}
		for field, newVal := range rec.Fields {
			if !truthy(existing.Fields[field]) {
				existing.Fields[field] = newVal
			}
		}
	}
	return inserted
}

// Sorted returns the ledger rows in chronological order: year ascending,
// then the canonical month index of the period label. Labels that are not
// month names ("Q1", free text) keep their arrival order and sort after
// the known months of the same year.
func (l *Ledger) Sorted() []*Record {
	keys := make([]string, 0, len(l.entries))
	for k := range l.entries {
		keys = append(keys, k)
	}

	rank := func(key string) (year, idx int) {
		p := l.entries[key].PeriodOf(l.periodField)
		idx = p.MonthIndex()
		if idx < 0 {
			idx = len(monthNames) + l.arrival[key]
		}
		return p.Year, idx
	}

	sort.Slice(keys, func(i, j int) bool {
		yi, ii := rank(keys[i])
		yj, ij := rank(keys[j])
		if yi != yj {
			return yi < yj
		}
		return ii < ij
	})

	out := make([]*Record, len(keys))
	for i, k := range keys {
		out[i] = l.entries[k]
	}
	return out
}
