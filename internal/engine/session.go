package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Session not found, or already cleaned up after retention.
var ErrSessionNotFound = errors.New("import session not found")

// ErrNotCSV rejects uploads by extension. Spreadsheet binaries are out of
// scope; users re-save as CSV instead.
var ErrNotCSV = errors.New("only .csv files are supported; re-export the spreadsheet as CSV and try again")

// ErrMappingIncomplete blocks Start while a required field is unmapped.
var ErrMappingIncomplete = errors.New("required fields are not mapped")

// ErrYearAmbiguous blocks Start on ledger flows when no date cell yields a
// plausible year and no manual fallback year was supplied.
var ErrYearAmbiguous = errors.New("no plausible year found in the date column; set a fallback year")

// ErrImportRunning rejects edits and re-starts while a run is in flight.
var ErrImportRunning = errors.New("import is already running")

// ErrNotStarted is returned by Result before any run has begun.
var ErrNotStarted = errors.New("import has not started")

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	MaxConcurrent int           // Simultaneous running imports
	MaxWait       time.Duration // Wait for a run slot before rejecting
	RunTimeout    time.Duration // Hard ceiling on one batch submission
	Retention     time.Duration // How long finished sessions stay queryable
}

// DefaultRunTimeout is the maximum duration for one batch submission.
const DefaultRunTimeout = 10 * time.Minute

// DefaultRetention is how long a finished session remains queryable.
const DefaultRetention = 5 * time.Minute

// Service owns all import sessions: staging uploads, mapping edits, batch
// submission and progress fan-out.
type Service struct {
	pool       *pgxpool.Pool
	limiter    *ImportLimiter
	runTimeout time.Duration
	retention  time.Duration

	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	ID      string
	Flow    FlowDefinition
	OwnerID string

	mu           sync.Mutex
	fileName     string
	table        RawTable
	mapping      Mapping
	detectedYear int
	fallbackYear int
	rowErrors    []RowError
	ledger       *Ledger

	running   bool
	cancelled atomic.Bool
	inserted  int
	progress  Progress
	result    *Result
	done      chan struct{}

	listenerMu sync.Mutex
	listeners  []chan Progress
}

// NewService creates a Service backed by the given connection pool.
func NewService(pool *pgxpool.Pool, opts Options) *Service {
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = DefaultRunTimeout
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	return &Service{
		pool:       pool,
		limiter:    NewImportLimiter(opts.MaxConcurrent, opts.MaxWait),
		runTimeout: opts.RunTimeout,
		retention:  opts.Retention,
		sessions:   make(map[string]*session),
	}
}

// SessionView is a read-only snapshot of a session for the API layer.
type SessionView struct {
	ID              string      `json:"id"`
	FlowKey         string      `json:"flowKey"`
	FileName        string      `json:"fileName"`
	Headers         []string    `json:"headers"`
	Mapping         Mapping     `json:"mapping"`
	MissingRequired []string    `json:"missingRequired"`
	RowCount        int         `json:"rowCount"`
	Preview         [][]string  `json:"preview"`
	DetectedYear    int         `json:"detectedYear,omitempty"`
	FallbackYear    int         `json:"fallbackYear,omitempty"`
	YearRequired    bool        `json:"yearRequired"`
	LedgerPeriods   int         `json:"ledgerPeriods,omitempty"`
	Phase           ImportPhase `json:"phase"`
}

// PreviewRows is how many leading data rows a session view includes.
const PreviewRows = 5

// CreateSession stages an uploaded file: sanitizes, tokenizes, proposes a
// column mapping, and (for ledger flows) scans the date column for a
// plausible year. The returned view is what the mapping UI edits.
func (s *Service) CreateSession(flowKey, ownerID, fileName string, data []byte) (*SessionView, error) {
	flow, ok := GetFlow(flowKey)
	if !ok {
		return nil, fmt.Errorf("unknown flow: %s", flowKey)
	}
	if !strings.EqualFold(filepath.Ext(fileName), ".csv") {
		return nil, ErrNotCSV
	}

	sess := &session{
		ID:      uuid.New().String(),
		Flow:    flow,
		OwnerID: ownerID,
	}
	if flow.Ledger() {
		sess.ledger = NewLedger(flow.PeriodField)
	}
	sess.stageFile(fileName, data)

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return sess.view(), nil
}

// AttachFile stages another file into an existing session. Ledger flows
// use this to accumulate several exports into one ledger; for direct
// flows it simply replaces the staged file.
func (s *Service) AttachFile(sessionID, fileName string, data []byte) (*SessionView, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(filepath.Ext(fileName), ".csv") {
		return nil, ErrNotCSV
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.running {
		return nil, ErrImportRunning
	}
	sess.stageFileLocked(fileName, data)
	return sess.viewLocked(), nil
}

// View returns a snapshot of the session.
func (s *Service) View(sessionID string) (*SessionView, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.view(), nil
}

// SetMapping rebinds fields to headers. An empty header unmaps the field.
// Headers must exist in the staged file.
func (s *Service) SetMapping(sessionID string, bindings map[string]string) (*SessionView, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.running {
		return nil, ErrImportRunning
	}

	for fieldKey, header := range bindings {
		if _, ok := sess.Flow.Field(fieldKey); !ok {
			return nil, fmt.Errorf("unknown field: %s", fieldKey)
		}
		if header != "" && headerIndexOf(sess.table.Headers, header) < 0 {
			return nil, fmt.Errorf("header %q not present in file", header)
		}
		sess.mapping.Bind(fieldKey, header)
	}

	// Rebinding the date column can change what year is detectable.
	if sess.Flow.Ledger() {
		sess.detectedYear = DetectYear(sess.table, sess.table.Headers, sess.mapping[sess.Flow.PeriodField])
	}
	return sess.viewLocked(), nil
}

// SetFallbackYear supplies the manual year used when the date column
// carries none. Required before Start when detection failed.
func (s *Service) SetFallbackYear(sessionID string, year int) (*SessionView, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	if !PlausibleYear(year) {
		return nil, fmt.Errorf("implausible year: %d", year)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.running {
		return nil, ErrImportRunning
	}
	sess.fallbackYear = year
	return sess.viewLocked(), nil
}

// LedgerRows returns the merged ledger in chronological order.
func (s *Service) LedgerRows(sessionID string) ([]*Record, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.ledger == nil {
		return nil, fmt.Errorf("flow %s has no ledger", sess.Flow.Info.Key)
	}
	return sess.ledger.Sorted(), nil
}

// SubscribeProgress returns a channel receiving progress snapshots.
// The channel is closed when the current run completes.
func (s *Service) SubscribeProgress(sessionID string) (<-chan Progress, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}

	ch := make(chan Progress, 16)

	// A subscriber arriving after the run finished gets the final
	// snapshot and an immediate close instead of a listener that no
	// completion will ever close.
	sess.mu.Lock()
	finished := !sess.running && sess.result != nil
	sess.mu.Unlock()
	if finished {
		ch <- sess.snapshot()
		close(ch)
		return ch, nil
	}

	sess.listenerMu.Lock()
	sess.listeners = append(sess.listeners, ch)
	// Send current progress immediately
	select {
	case ch <- sess.snapshot():
	default:
	}
	sess.listenerMu.Unlock()

	return ch, nil
}

// ActiveImports reports how many imports are currently running.
func (s *Service) ActiveImports() int {
	return s.limiter.Active()
}

// ProgressOf returns the current progress without blocking.
func (s *Service) ProgressOf(sessionID string) (Progress, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return Progress{}, err
	}
	return sess.snapshot(), nil
}

// Cancel requests a cooperative stop. The write in flight is allowed to
// finish; records not yet attempted are never submitted.
func (s *Service) Cancel(sessionID string) error {
	sess, err := s.get(sessionID)
	if err != nil {
		return err
	}
	sess.cancelled.Store(true)
	return nil
}

// Result blocks until the current run completes and returns its outcome.
func (s *Service) Result(sessionID string) (*Result, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	done := sess.done
	res := sess.result
	sess.mu.Unlock()

	if done == nil {
		if res != nil {
			return res, nil
		}
		return nil, ErrNotStarted
	}
	<-done

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.result, nil
}

func (s *Service) get(sessionID string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// cleanup removes a finished session after the retention delay.
func (s *Service) cleanup(sessionID string, after time.Duration) {
	time.AfterFunc(after, func() {
		s.mu.Lock()
		delete(s.sessions, sessionID)
		s.mu.Unlock()
	})
}

// stageFile resets the session around a freshly uploaded file.
func (sess *session) stageFile(fileName string, data []byte) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.stageFileLocked(fileName, data)
}

func (sess *session) stageFileLocked(fileName string, data []byte) {
	sess.fileName = fileName
	sess.table = Tokenize(SanitizeUpload(data))
	sess.mapping = AutoDetect(sess.table.Headers, sess.Flow.Fields, sess.Flow.Rules)
	sess.rowErrors = nil
	sess.result = nil
	sess.done = nil
	sess.cancelled.Store(false)
	sess.progress = Progress{
		SessionID: sess.ID,
		FlowKey:   sess.Flow.Info.Key,
		Phase:     PhaseStaged,
	}
	if sess.Flow.Ledger() {
		sess.detectedYear = DetectYear(sess.table, sess.table.Headers, sess.mapping[sess.Flow.PeriodField])
	}
}

func (sess *session) view() *SessionView {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.viewLocked()
}

func (sess *session) viewLocked() *SessionView {
	preview := sess.table.Rows
	if len(preview) > PreviewRows {
		preview = preview[:PreviewRows]
	}

	v := &SessionView{
		ID:              sess.ID,
		FlowKey:         sess.Flow.Info.Key,
		FileName:        sess.fileName,
		Headers:         sess.table.Headers,
		Mapping:         sess.mapping.Clone(),
		MissingRequired: sess.mapping.MissingRequired(sess.Flow.Fields),
		RowCount:        len(sess.table.Rows),
		Preview:         preview,
		Phase:           sess.progress.Phase,
	}
	if sess.Flow.Ledger() {
		v.DetectedYear = sess.detectedYear
		v.FallbackYear = sess.fallbackYear
		v.YearRequired = sess.detectedYear == 0 && sess.fallbackYear == 0 && len(sess.table.Rows) > 0
		v.LedgerPeriods = sess.ledger.Len()
	}
	return v
}

func (sess *session) snapshot() Progress {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshotLocked()
}

func (sess *session) snapshotLocked() Progress {
	p := sess.progress
	p.Errors = append([]string(nil), sess.progress.Errors...)
	return p
}

// notifyProgress publishes the current snapshot to all listeners without
// blocking; a slow listener just skips intermediate updates.
func (sess *session) notifyProgress() {
	snap := sess.snapshot()
	sess.listenerMu.Lock()
	defer sess.listenerMu.Unlock()
	for _, ch := range sess.listeners {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (sess *session) closeListeners() {
	sess.listenerMu.Lock()
	defer sess.listenerMu.Unlock()
	for _, ch := range sess.listeners {
		close(ch)
	}
	sess.listeners = nil
}
