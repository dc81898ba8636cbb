package engine

// run.go drives batch submission: sequential, cancellable, each record
// attempted exactly once.
//
// Records go to storage strictly one at a time so that Progress.Current
// and the n-th record keep a stable 1:1 correspondence; "row N failed"
// would be meaningless under parallel submission. Cancellation is polled
// before each write, never preemptive, so a write in flight always
// finishes.

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Start validates the session's gates, transforms the staged rows and
// begins batch submission. For ledger flows the transformed records merge
// into the session ledger instead; storage is only touched by SaveLedger.
func (s *Service) Start(ctx context.Context, sessionID string) (*SessionView, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.running {
		sess.mu.Unlock()
		return nil, ErrImportRunning
	}

	// Blocking preconditions, surfaced before any write is attempted.
	if missing := sess.mapping.MissingRequired(sess.Flow.Fields); len(missing) > 0 {
		sess.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrMappingIncomplete, strings.Join(missing, ", "))
	}
	year := 0
	if sess.Flow.Ledger() {
		year = sess.detectedYear
		if year == 0 {
			year = sess.fallbackYear
		}
		if year == 0 && len(sess.table.Rows) > 0 {
			sess.mu.Unlock()
			return nil, ErrYearAmbiguous
		}
	}

	records, rowErrs := Transform(sess.table, sess.mapping, sess.Flow, year)
	sess.rowErrors = rowErrs

	if sess.Flow.Ledger() {
		view := s.mergeLedgerLocked(sess, records, rowErrs)
		sess.mu.Unlock()
		sess.notifyProgress()
		sess.closeListeners()
		return view, nil
	}

	if err := s.beginRunLocked(ctx, sess, records, rowErrs); err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	view := sess.viewLocked()
	sess.mu.Unlock()

	go s.runInsert(sess, records)
	return view, nil
}

// mergeLedgerLocked folds transformed records into the session ledger and
// records a synchronous result. sess.mu must be held.
func (s *Service) mergeLedgerLocked(sess *session, records []*Record, rowErrs []RowError) *SessionView {
	sess.ledger.Merge(records)

	total := len(records) + len(rowErrs)
	sess.progress = Progress{
		SessionID:  sess.ID,
		FlowKey:    sess.Flow.Info.Key,
		Phase:      PhaseComplete,
		Current:    len(records),
		Total:      total,
		ErrorCount: len(rowErrs),
		Errors:     rowErrorStrings(rowErrs),
	}
	sess.result = &Result{
		SessionID: sess.ID,
		FlowKey:   sess.Flow.Info.Key,
		Phase:     PhaseComplete,
		Total:     total,
		Submitted: 0,
		Inserted:  len(records),
		Errors:    rowErrorStrings(rowErrs),
	}
	sess.done = nil
	return sess.viewLocked()
}

// SaveLedger replaces the owner's stored ledger wholesale: delete by
// owner, then reinsert every merged row in chronological order, inside
// one transaction and driven through the same sequential loop so saves
// report progress too. Cancelling rolls back and the previously stored
// ledger stands.
func (s *Service) SaveLedger(ctx context.Context, sessionID string) (*SessionView, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.running {
		sess.mu.Unlock()
		return nil, ErrImportRunning
	}
	if sess.ledger == nil {
		sess.mu.Unlock()
		return nil, fmt.Errorf("flow %s has no ledger", sess.Flow.Info.Key)
	}
	if sess.ledger.Len() == 0 {
		sess.mu.Unlock()
		return nil, fmt.Errorf("ledger is empty; import at least one file first")
	}

	records := sess.ledger.Sorted()
	if err := s.beginRunLocked(ctx, sess, records, nil); err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	view := sess.viewLocked()
	sess.mu.Unlock()

	go s.runReplace(sess, records)
	return view, nil
}

// beginRunLocked acquires a run slot and moves the session into the
// running state. sess.mu must be held.
func (s *Service) beginRunLocked(ctx context.Context, sess *session, records []*Record, rowErrs []RowError) error {
	if err := s.limiter.Acquire(ctx); err != nil {
		return err
	}

	sess.running = true
	sess.cancelled.Store(false)
	sess.inserted = 0
	sess.done = make(chan struct{})
	sess.result = nil
	sess.progress = Progress{
		SessionID:  sess.ID,
		FlowKey:    sess.Flow.Info.Key,
		Phase:      PhaseRunning,
		Total:      len(records),
		ErrorCount: len(rowErrs),
		Errors:     rowErrorStrings(rowErrs),
	}
	return nil
}

// runInsert submits records one at a time against the pool. Failed rows
// do not stop the run and already-written records are never rolled back.
func (s *Service) runInsert(sess *session, records []*Record) {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()
	defer s.finishRun(sess)

	s.submit(ctx, sess, records, func(rec *Record) error {
		return sess.Flow.Insert(ctx, s.pool, sess.OwnerID, rec)
	})
}

// runReplace performs the wholesale ledger replace inside a transaction.
func (s *Service) runReplace(sess *session, records []*Record) {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()
	defer s.finishRun(sess)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		s.failRun(sess, fmt.Errorf("begin transaction: %w", err))
		return
	}
	defer tx.Rollback(ctx)

	if err := sess.Flow.ResetOwner(ctx, tx, sess.OwnerID); err != nil {
		s.failRun(sess, fmt.Errorf("clear existing ledger: %w", err))
		return
	}

	cancelled := s.submit(ctx, sess, records, func(rec *Record) error {
		return sess.Flow.Insert(ctx, tx, sess.OwnerID, rec)
	})
	if cancelled {
		return // rollback keeps the previously stored ledger
	}

	if err := tx.Commit(ctx); err != nil {
		s.failRun(sess, fmt.Errorf("commit: %w", err))
	}
}

// submit is the sequential write loop. Returns true when the run was
// cancelled before every record was attempted.
func (s *Service) submit(ctx context.Context, sess *session, records []*Record, write func(*Record) error) bool {
	for _, rec := range records {
		if sess.cancelled.Load() || ctx.Err() != nil {
			sess.mu.Lock()
			sess.progress.Cancelled = true
			sess.progress.Phase = PhaseCancelled
			sess.progress.Errors = append(sess.progress.Errors,
				fmt.Sprintf("cancelled after %d of %d records", sess.progress.Current, sess.progress.Total))
			sess.mu.Unlock()
			sess.notifyProgress()
			return true
		}

		err := write(rec)

		sess.mu.Lock()
		if err != nil {
			sess.progress.ErrorCount++
			sess.progress.Errors = append(sess.progress.Errors,
				fmt.Sprintf("row %d: %v", rec.SourceRow, err))
		} else {
			sess.inserted++
		}
		sess.progress.Current++
		sess.mu.Unlock()
		sess.notifyProgress()
	}

	sess.mu.Lock()
	if sess.progress.Phase == PhaseRunning {
		sess.progress.Phase = PhaseComplete
	}
	sess.mu.Unlock()
	sess.notifyProgress()
	return false
}

func rowErrorStrings(rowErrs []RowError) []string {
	if len(rowErrs) == 0 {
		return nil
	}
	out := make([]string, len(rowErrs))
	for i, e := range rowErrs {
		out[i] = e.Error()
	}
	return out
}

// failRun records a run-level failure (transaction setup, commit).
func (s *Service) failRun(sess *session, err error) {
	slog.Error("import run failed",
		"session_id", sess.ID,
		"flow", sess.Flow.Info.Key,
		"error", err,
	)
	sess.mu.Lock()
	sess.progress.Phase = PhaseFailed
	sess.progress.ErrorCount++
	sess.progress.Errors = append(sess.progress.Errors, err.Error())
	sess.mu.Unlock()
	sess.notifyProgress()
}

// finishRun seals the run: builds the result, releases the slot, closes
// listeners and schedules cleanup.
func (s *Service) finishRun(sess *session) {
	if r := recover(); r != nil {
		slog.Error("panic in import run",
			"session_id", sess.ID,
			"flow", sess.Flow.Info.Key,
			"panic", r,
		)
		sess.mu.Lock()
		sess.progress.Phase = PhaseFailed
		sess.progress.Errors = append(sess.progress.Errors, fmt.Sprintf("internal error: %v", r))
		sess.mu.Unlock()
	}

	s.limiter.Release()

	sess.mu.Lock()
	sess.result = &Result{
		SessionID: sess.ID,
		FlowKey:   sess.Flow.Info.Key,
		Phase:     sess.progress.Phase,
		Total:     sess.progress.Total,
		Submitted: sess.progress.Current,
		Inserted:  sess.inserted,
		Errors:    append([]string(nil), sess.progress.Errors...),
	}
	sess.running = false
	done := sess.done
	sess.mu.Unlock()

	sess.notifyProgress()
	sess.closeListeners()
	if done != nil {
		close(done)
	}

	// Ledger sessions persist for further uploads and saves; only a
	// finished wholesale save retires them.
	if !sess.Flow.Ledger() || sess.progress.Phase == PhaseComplete {
		s.cleanup(sess.ID, s.retention)
	}
}
