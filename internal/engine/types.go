// Package engine provides the tabular import and reconciliation engine.
// This package has no UI dependencies and can be used by any frontend.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// FieldType describes how a cell is cleaned up during transformation.
type FieldType int

const (
	FieldText FieldType = iota
	FieldMoney
	FieldNumber
	FieldBool
	FieldEnum
	FieldList
	FieldPeriod
)

// FieldSpec defines one canonical field of an import flow's schema.
type FieldSpec struct {
	Key      string    // Canonical field key, e.g. "price"
	Label    string    // Display name, e.g. "Asking Price"
	Type     FieldType // Cleanup rule applied at transform time
	Required bool      // Import cannot start while this field is unmapped

	Round      bool     // FieldMoney: round to whole currency units
	EnumValues []string // FieldEnum: allowed values
	Default    string   // FieldEnum: fallback when the cell is not a member
}

// RawTable is the tokenizer's output: a header row plus data rows.
// Produced once per uploaded file and never mutated afterwards.
type RawTable struct {
	Headers []string
	Rows    [][]string
}

// Empty reports whether the table carries no usable data.
func (t RawTable) Empty() bool {
	return len(t.Headers) == 0 || len(t.Rows) == 0
}

// Record is one transformed row, with typed field values keyed by
// FieldSpec.Key. SourceRow is the 1-based data row number used for
// error attribution.
type Record struct {
	Fields    map[string]any
	SourceRow int
}

// String returns the string value of a field, or "" when absent.
func (r *Record) String(key string) string {
	s, _ := r.Fields[key].(string)
	return s
}

// Float returns the numeric value of a field, or 0 when absent.
func (r *Record) Float(key string) float64 {
	f, _ := r.Fields[key].(float64)
	return f
}

// Bool returns the boolean value of a field, or false when absent.
func (r *Record) Bool(key string) bool {
	b, _ := r.Fields[key].(bool)
	return b
}

// List returns the list value of a field, or nil when absent.
func (r *Record) List(key string) []string {
	l, _ := r.Fields[key].([]string)
	return l
}

// PeriodOf returns the period value of a field, or a zero Period.
func (r *Record) PeriodOf(key string) Period {
	p, _ := r.Fields[key].(Period)
	return p
}

// RowError is a row-level validation failure. It never aborts the run;
// the row is skipped and the error surfaces in the final report.
type RowError struct {
	Row    int // 1-based data row number
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// MatchRule is one heuristic for binding a source header to a canonical
// field. A normalized header matches when it contains any of Contains
// and none of Exclude.
type MatchRule struct {
	Field    string
	Contains []string
	Exclude  []string
}

// Matches reports whether the normalized (lowercased, trimmed) header
// satisfies this rule.
func (r MatchRule) Matches(header string) bool {
	hit := false
	for _, c := range r.Contains {
		if strings.Contains(header, c) {
			hit = true
			break
		}
	}
	if !hit {
		return false
	}
	for _, x := range r.Exclude {
		if strings.Contains(header, x) {
			return false
		}
	}
	return true
}

// FlowInfo contains display information about an import flow.
type FlowInfo struct {
	Key   string // Unique identifier: "listings", "pnl"
	Label string // Display name: "Bulk Listing Import"
}

// InsertFunc writes one transformed record for the flow's owner.
type InsertFunc func(ctx context.Context, db DBTX, ownerID string, rec *Record) error

// ResetOwnerFunc deletes all of an owner's rows ahead of a wholesale
// ledger replace. Only set on ledger flows.
type ResetOwnerFunc func(ctx context.Context, db DBTX, ownerID string) error

// FlowDefinition contains everything needed to run one import flow.
type FlowDefinition struct {
	Info   FlowInfo
	Fields []FieldSpec
	Rules  []MatchRule // Ordered auto-mapping heuristics

	// Primary lists the field keys whose emptiness after cleanup rejects
	// the row (e.g. title and price for listings).
	Primary []string

	// PeriodField names the FieldPeriod key for ledger flows; empty for
	// direct-insert flows.
	PeriodField string

	Insert     InsertFunc
	ResetOwner ResetOwnerFunc
}

// Ledger reports whether this flow accumulates rows into a period-keyed
// ledger instead of inserting them directly.
func (f FlowDefinition) Ledger() bool {
	return f.PeriodField != ""
}

// Field returns the spec for a field key.
func (f FlowDefinition) Field(key string) (FieldSpec, bool) {
	for _, spec := range f.Fields {
		if spec.Key == key {
			return spec, true
		}
	}
	return FieldSpec{}, false
}

// ImportPhase indicates the current stage of an import session.
type ImportPhase string

const (
	PhaseStaged    ImportPhase = "staged" // File tokenized, mapping editable
	PhaseRunning   ImportPhase = "running"
	PhaseComplete  ImportPhase = "complete"
	PhaseCancelled ImportPhase = "cancelled"
	PhaseFailed    ImportPhase = "failed"
)

// Progress is a read-only snapshot of a running import, published to
// subscribers after every attempted record.
type Progress struct {
	SessionID  string      `json:"sessionId"`
	FlowKey    string      `json:"flowKey"`
	Phase      ImportPhase `json:"phase"`
	Current    int         `json:"current"`
	Total      int         `json:"total"`
	ErrorCount int         `json:"errorCount"`
	Errors     []string    `json:"errors"`
	Cancelled  bool        `json:"cancelled"`
}

// Percent returns the progress as a percentage (0-100).
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	return (p.Current * 100) / p.Total
}

// Result contains the final outcome of one batch submission.
type Result struct {
	SessionID string      `json:"sessionId"`
	FlowKey   string      `json:"flowKey"`
	Phase     ImportPhase `json:"phase"`
	Total     int         `json:"total"`
	Submitted int         `json:"submitted"` // Records attempted
	Inserted  int         `json:"inserted"`  // Records written successfully
	Errors    []string    `json:"errors"`
}

// ProgressCallback is invoked after every attempted record.
type ProgressCallback func(Progress)
