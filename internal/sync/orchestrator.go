// Package sync runs the incremental document pipeline: materialize
// credentials, scrape the portal, diff against the per-user watermark,
// and push each new document through fetch, store, summarize and
// notify. Every run is bracketed by a sync log row so the audit trail
// never loses an invocation.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lexwatch/tribsync/internal/audit"
	"github.com/lexwatch/tribsync/internal/domain"
	"github.com/lexwatch/tribsync/internal/logger"
	"github.com/lexwatch/tribsync/internal/metrics"
	"github.com/lexwatch/tribsync/internal/notifier"
	"github.com/lexwatch/tribsync/internal/pdffetch"
	"github.com/lexwatch/tribsync/internal/portal"
	"github.com/lexwatch/tribsync/internal/summarizer"
	"github.com/lexwatch/tribsync/internal/vault"
)

// Pipeline step labels recorded on failed runs.
const (
	StepSecrets      = "materialize_secrets"
	StepPortal       = "portal_scrape"
	StepDelta        = "compute_delta"
	StepPersistState = "persist_sync_state"
)

const finalizeTimeout = 10 * time.Second

// CredentialStore provides portal credentials and their sync state.
type CredentialStore interface {
	ListActive(ctx context.Context) ([]*domain.Credential, error)
	GetByUserID(ctx context.Context, userID string) (*domain.Credential, error)
	UpdateSyncState(ctx context.Context, userID string, watermark *int64, status string, lastError *string) error
}

// DocumentStore persists processed documents.
type DocumentStore interface {
	Insert(ctx context.Context, doc *domain.PersistedDocument) (bool, error)
	UpdateStages(ctx context.Context, doc *domain.PersistedDocument) error
}

// SyncLogStore persists run audit rows.
type SyncLogStore interface {
	Create(ctx context.Context, log *domain.SyncLog) error
	Finalize(ctx context.Context, log *domain.SyncLog) error
	ReconcileStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SecretSource materializes vault secrets into short-lived local files.
type SecretSource interface {
	Materialize(ctx context.Context, cred *domain.Credential) (*vault.Materialized, error)
}

// PortalSession is an authenticated portal session handed from the
// scrape to the per-document download phase.
type PortalSession interface {
	pdffetch.Session
	Documents() []domain.DocumentRecord
	Close()
}

// PortalDriver logs in and scrapes the documents listing.
type PortalDriver interface {
	Run(ctx context.Context, creds *vault.Materialized) (PortalSession, error)
}

// PDFFetcher retrieves one document's PDF through the portal session.
type PDFFetcher interface {
	Fetch(ctx context.Context, sess pdffetch.Session, doc *domain.DocumentRecord) ([]byte, error)
}

// BlobStore persists PDF payloads and returns the stored path.
type BlobStore interface {
	Save(ctx context.Context, relPath string, data []byte) (string, error)
}

// Summarizer produces a short summary of a PDF.
type Summarizer interface {
	Summarize(ctx context.Context, pdf []byte) (string, error)
}

// Notifier resolves the user's contact profile and delivers an alert.
type Notifier interface {
	Notify(ctx context.Context, userID string, doc *domain.PersistedDocument) notifier.Result
}

// Deps carries the orchestrator's collaborators. Locker is optional;
// everything else is required.
type Deps struct {
	Credentials CredentialStore
	Documents   DocumentStore
	SyncLogs    SyncLogStore
	Secrets     SecretSource
	Portal      PortalDriver
	Fetcher     PDFFetcher
	Blobs       BlobStore
	Summarizer  Summarizer
	Notifier    Notifier
	Audit       *audit.Trail
	Metrics     *metrics.Metrics
	Locker      Locker
	Logger      logger.Interface
}

// Orchestrator drives sync runs.
type Orchestrator struct {
	deps Deps
	log  logger.Interface
}

// New creates an orchestrator.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{deps: deps, log: deps.Logger}
}

// RunAll syncs every active credential with bounded concurrency. A
// failing user does not stop the sweep; the first error is returned
// after every user has been attempted.
func (o *Orchestrator) RunAll(ctx context.Context, concurrency int) error {
	creds, err := o.deps.Credentials.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active credentials: %w", err)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, cred := range creds {
		cred := cred
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if runErr := o.runCredential(ctx, cred); runErr != nil {
				o.log.Error("sync run failed", "user_id", cred.UserID, "error", runErr)
				return runErr
			}
			return nil
		})
	}
	return g.Wait()
}

// RunUser syncs a single user regardless of credential status. Used by
// the CLI --user flag for manual retries after an auth failure.
func (o *Orchestrator) RunUser(ctx context.Context, userID string) error {
	cred, err := o.deps.Credentials.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	return o.runCredential(ctx, cred)
}

// Reconcile marks sync log rows stuck in running longer than olderThan
// as failed. Run at scheduler startup to sweep rows left by crashes.
func (o *Orchestrator) Reconcile(ctx context.Context, olderThan time.Duration) (int64, error) {
	swept, err := o.deps.SyncLogs.ReconcileStale(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		o.log.Warn("reconciled stale sync runs", "count", swept)
		o.deps.Audit.Warn(ctx, "stale sync runs reconciled", map[string]any{"count": swept})
	}
	return swept, nil
}

func (o *Orchestrator) runCredential(ctx context.Context, cred *domain.Credential) error {
	if o.deps.Locker != nil {
		release, err := o.deps.Locker.Acquire(ctx, cred.UserID)
		if errors.Is(err, ErrRunInProgress) {
			// Another instance is already on this user. A skip, not a failure.
			o.log.Info("skipping sync, run already in progress", "user_id", cred.UserID)
			return nil
		}
		if err != nil {
			return err
		}
		defer release()
	}

	run := &domain.SyncLog{
		ID:                uuid.New().String(),
		UserID:            cred.UserID,
		Status:            domain.SyncStatusRunning,
		PreviousWatermark: cred.Watermark,
		StartedAt:         time.Now().UTC(),
	}
	// The running row goes in before any external call so a crash mid-run
	// still leaves a trace for the reconciliation sweep.
	if err := o.deps.SyncLogs.Create(ctx, run); err != nil {
		return fmt.Errorf("failed to open sync log: %w", err)
	}

	o.deps.Metrics.RecordRunStarted()
	defer func() {
		// Finalize first: it settles a still-running status to failed, so
		// the metric label never reads an intermediate state.
		o.finalize(ctx, run)
		o.deps.Metrics.RecordRunFinished()
		o.deps.Metrics.RecordRun(run.Status, time.Since(run.StartedAt).Seconds())
	}()

	err := o.execute(ctx, cred, run)
	if err != nil {
		run.Status = domain.SyncStatusFailed
		msg := err.Error()
		run.ErrorMessage = &msg
		o.deps.Audit.Error(ctx, "sync run failed", map[string]any{
			"user_id": cred.UserID,
			"run_id":  run.ID,
			"step":    derefStep(run.Step),
			"error":   msg,
		})
		return err
	}

	run.Status = domain.SyncStatusCompleted
	o.deps.Audit.Info(ctx, "sync run completed", map[string]any{
		"user_id":             cred.UserID,
		"run_id":              run.ID,
		"documents_found":     run.DocumentsFound,
		"documents_processed": run.DocumentsProcessed,
		"documents_failed":    run.DocumentsFailed,
	})
	return nil
}

// finalize writes the terminal sync log row. It runs even when the run
// context is cancelled, on a detached deadline.
func (o *Orchestrator) finalize(ctx context.Context, run *domain.SyncLog) {
	now := time.Now().UTC()
	run.CompletedAt = &now
	if run.Status == domain.SyncStatusRunning {
		run.Status = domain.SyncStatusFailed
	}

	finCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := o.deps.SyncLogs.Finalize(finCtx, run); err != nil {
		o.log.Error("failed to finalize sync log", "run_id", run.ID, "error", err)
	}
}

func (o *Orchestrator) execute(ctx context.Context, cred *domain.Credential, run *domain.SyncLog) error {
	log := o.log.WithUser(cred.UserID)

	mat, err := o.deps.Secrets.Materialize(ctx, cred)
	if err != nil {
		run.Step = stepPtr(StepSecrets)
		return fmt.Errorf("failed to materialize credentials: %w", err)
	}
	defer mat.Cleanup()

	sess, err := o.deps.Portal.Run(ctx, mat)
	// Secret files serve exactly one login. They are erased the moment
	// the scrape returns, success or not; the deferred Cleanup is the
	// backstop for panics.
	mat.Cleanup()
	if err != nil {
		run.Step = stepPtr(StepPortal)
		if errors.Is(err, portal.ErrAuthRejected) {
			o.flagAuthFailure(ctx, cred, err)
		}
		return fmt.Errorf("portal scrape failed: %w", err)
	}
	defer sess.Close()

	docs := sess.Documents()
	log.Info("portal scrape completed", "documents_listed", len(docs))

	// First sync: record the high-water mark and process nothing, so a
	// fresh credential is not flooded with years of back catalog.
	if cred.Watermark == nil {
		return o.baseline(ctx, cred, run, docs)
	}

	prev := *cred.Watermark
	maxSeen := prev
	var delta []*domain.DocumentRecord
	for i := range docs {
		if docs[i].Numero > maxSeen {
			maxSeen = docs[i].Numero
		}
		if docs[i].Numero > prev {
			delta = append(delta, &docs[i])
		}
	}
	run.DocumentsFound = len(delta)

	// Oldest first, so notifications arrive in publication order.
	for _, rec := range delta {
		if ctx.Err() != nil {
			run.Step = stepPtr(StepDelta)
			return ctx.Err()
		}
		processed, failed := o.processDocument(ctx, cred, sess, rec)
		if processed {
			run.DocumentsProcessed++
		}
		if failed {
			run.DocumentsFailed++
		}
	}

	run.NewWatermark = &maxSeen
	o.deps.Metrics.RecordDocuments(run.DocumentsFound, run.DocumentsProcessed, run.DocumentsFailed)

	// The watermark moves once, after the whole batch, to the highest
	// sequence observed. A partial run repeats documents rather than
	// skipping them; the unique index makes the repeats no-ops.
	if err := o.deps.Credentials.UpdateSyncState(ctx, cred.UserID, run.NewWatermark, domain.CredentialStatusActive, nil); err != nil {
		run.Step = stepPtr(StepPersistState)
		return fmt.Errorf("failed to persist sync state: %w", err)
	}
	return nil
}

// baseline completes a first sync: no documents processed, watermark
// set to the highest sequence currently listed.
func (o *Orchestrator) baseline(ctx context.Context, cred *domain.Credential, run *domain.SyncLog, docs []domain.DocumentRecord) error {
	var wm *int64
	if len(docs) > 0 {
		maxSeen := docs[0].Numero
		for i := range docs {
			if docs[i].Numero > maxSeen {
				maxSeen = docs[i].Numero
			}
		}
		wm = &maxSeen
	}
	run.NewWatermark = wm

	if err := o.deps.Credentials.UpdateSyncState(ctx, cred.UserID, wm, domain.CredentialStatusActive, nil); err != nil {
		run.Step = stepPtr(StepPersistState)
		return fmt.Errorf("failed to persist baseline watermark: %w", err)
	}

	o.deps.Audit.Info(ctx, "baseline sync established", map[string]any{
		"user_id":   cred.UserID,
		"run_id":    run.ID,
		"watermark": derefWatermark(wm),
	})
	return nil
}

// processDocument pushes one document through insert, PDF fetch, blob
// store, summarize, notify and the final stage update. It reports
// whether the document completed the pipeline and whether any stage
// errored; a document can do both when a later stage degrades.
func (o *Orchestrator) processDocument(ctx context.Context, cred *domain.Credential, sess PortalSession, rec *domain.DocumentRecord) (processed, failed bool) {
	log := o.log.WithUser(cred.UserID).With("expediente", rec.Expediente, "numero", rec.Numero)

	doc := domain.NewPersistedDocument(uuid.New().String(), cred.UserID, rec)

	inserted, err := o.deps.Documents.Insert(ctx, doc)
	if err != nil {
		log.Error("failed to insert document", "error", err)
		return false, true
	}
	if !inserted {
		// Already processed by an earlier partial run.
		log.Debug("document already recorded, skipping")
		return false, false
	}

	pdf, err := o.deps.Fetcher.Fetch(ctx, sess, rec)
	switch {
	case errors.Is(err, pdffetch.ErrNotDownloadable):
		log.Info("document has no downloadable file")
	case err != nil:
		log.Error("pdf retrieval failed", "error", err)
		o.deps.Metrics.RecordPDFFetchFailure()
		failed = true
	}

	if pdf != nil {
		relPath := pdffetch.StoragePath(cred.UserID, rec.Expediente, time.Now().UTC())
		stored, saveErr := o.deps.Blobs.Save(ctx, relPath, pdf)
		if saveErr != nil {
			log.Error("failed to store pdf", "error", saveErr)
			failed = true
		} else {
			doc.PDFPath = &stored
		}
	}

	if doc.PDFPath != nil {
		summary, sumErr := o.deps.Summarizer.Summarize(ctx, pdf)
		switch {
		case errors.Is(sumErr, summarizer.ErrNotConfigured):
			log.Debug("summarizer disabled")
		case sumErr != nil:
			log.Warn("summarization failed", "error", sumErr)
			failed = true
		default:
			doc.Summary = &summary
			o.deps.Metrics.RecordSummary()
		}
	}

	// Delivery always runs, summary or not.
	res := o.deps.Notifier.Notify(ctx, cred.UserID, doc)
	doc.DeliveryStatus = res.Status
	if res.Detail != "" {
		doc.DeliveryDetail = &res.Detail
	}
	o.deps.Metrics.RecordNotification(res.Status)
	if res.Status == domain.DeliveryStatusFailed {
		failed = true
	}

	if err := o.deps.Documents.UpdateStages(ctx, doc); err != nil {
		log.Error("failed to record stage results", "error", err)
		return true, true
	}

	return true, failed
}

// flagAuthFailure marks the credential failed so scheduled sweeps stop
// hammering a rejected login. The portal's own rejection text is kept
// for the operator.
func (o *Orchestrator) flagAuthFailure(ctx context.Context, cred *domain.Credential, cause error) {
	msg := cause.Error()
	if err := o.deps.Credentials.UpdateSyncState(ctx, cred.UserID, nil, domain.CredentialStatusFailed, &msg); err != nil {
		o.log.Error("failed to flag credential", "user_id", cred.UserID, "error", err)
	}
	o.deps.Audit.Error(ctx, "portal rejected credentials", map[string]any{
		"user_id": cred.UserID,
		"detail":  msg,
	})
}

func stepPtr(step string) *string { return &step }

func derefStep(step *string) string {
	if step == nil {
		return ""
	}
	return *step
}

func derefWatermark(wm *int64) int64 {
	if wm == nil {
		return 0
	}
	return *wm
}
