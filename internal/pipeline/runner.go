package pipeline

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/salesync/internal/hubspot"
	"example.com/salesync/internal/kajabi"
	"example.com/salesync/internal/ledger"
	"example.com/salesync/internal/runlog"
	"example.com/salesync/internal/sale"
)

// Source produces raw purchase documents from the sales platform.
type Source interface {
	FetchPurchases(ctx context.Context, cutoff time.Time) (kajabi.Document, error)
}

// CRM mirrors one sale into contact and deal records.
type CRM interface {
	UpsertContact(ctx context.Context, customer *sale.Customer) (hubspot.ContactRef, error)
	CreateDeal(ctx context.Context, s sale.Sale, contact hubspot.ContactRef) (hubspot.DealRef, error)
}

// Ledger appends deduplicated rows for processed sales.
type Ledger interface {
	Sync(sales []sale.Sale) (ledger.Report, error)
}

// RunLog persists run history and supplies the default cutoff.
type RunLog interface {
	Record(ctx context.Context, run runlog.Run) error
	LastCompleted(ctx context.Context) (runlog.Run, bool, error)
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Runner executes the fetch -> transform -> CRM sync -> ledger pipeline.
// Everything is sequential: one network call in flight at a time, sales
// processed strictly in fetch order.
type Runner struct {
	source Source
	crm    CRM
	ledger Ledger
	runs   RunLog
	// cutoff, when non-zero, overrides the last-completed-run fallback.
	cutoff time.Time
	logger *slog.Logger
}

// NewRunner wires the pipeline's collaborators together.
func NewRunner(source Source, crm CRM, ledgerStore Ledger, runs RunLog, cutoff time.Time, logger *slog.Logger) *Runner {
	return &Runner{
		source: source,
		crm:    crm,
		ledger: ledgerStore,
		runs:   runs,
		cutoff: cutoff,
		logger: logger.With("component", "pipeline"),
	}
}

// Run executes one full pipeline pass. Per-sale CRM failures are collected
// into the report and never fail the run; auth, fetch, and ledger-write
// failures do.
func (r *Runner) Run(ctx context.Context) (RunReport, error) {
	report := RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	sales, err := r.Fetch(ctx)
	if err != nil {
		r.logger.Error("fetch failed", "run_id", report.RunID, "error", err)
		r.finish(ctx, &report, err)
		return report, err
	}
	report.Fetched = len(sales)
	r.logger.Info("fetched sales", "run_id", report.RunID, "count", len(sales))

	for _, item := range sales {
		result := r.SyncSale(ctx, item)
		report.Results = append(report.Results, result)
	}

	ledgerReport, err := r.WriteLedger(sales)
	if err != nil {
		r.logger.Error("ledger write failed", "run_id", report.RunID, "error", err)
		r.finish(ctx, &report, err)
		return report, err
	}
	report.Ledger = ledgerReport

	r.finish(ctx, &report, nil)
	synced, failed := report.Counts()
	r.logger.Info("run complete", "run_id", report.RunID,
		"fetched", report.Fetched, "synced", synced, "failed", failed,
		"ledger_added", ledgerReport.Added, "ledger_skipped", ledgerReport.Skipped)
	return report, nil
}

// Fetch pulls purchases after the effective cutoff and transforms them into
// flat sales. The configured cutoff wins; otherwise the start time of the
// last completed run is used, and a blank history fetches everything.
func (r *Runner) Fetch(ctx context.Context) ([]sale.Sale, error) {
	cutoff := r.cutoff
	if cutoff.IsZero() {
		last, ok, err := r.runs.LastCompleted(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			cutoff = last.StartedAt
		}
	}
	doc, err := r.source.FetchPurchases(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	return sale.Transform(doc), nil
}

// SyncSale pushes one sale into the CRM: contact upsert, then deal creation.
// Sales without a usable customer are skipped, and any CRM error abandons
// only this sale.
func (r *Runner) SyncSale(ctx context.Context, item sale.Sale) SaleResult {
	result := SaleResult{SaleID: item.ID}

	if item.Customer == nil {
		result.Outcome = OutcomeNoCustomer
		r.logger.Debug("sale has no customer, skipping CRM sync", "sale_id", item.ID)
		return result
	}
	email := strings.TrimSpace(item.Customer.Email)
	if !emailPattern.MatchString(email) {
		result.Outcome = OutcomeInvalidEmail
		r.logger.Warn("invalid customer email, skipping CRM sync", "sale_id", item.ID, "email", email)
		return result
	}

	contact, err := r.crm.UpsertContact(ctx, item.Customer)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err.Error()
		r.logger.Error("contact upsert failed", "sale_id", item.ID, "email", email, "error", err)
		return result
	}
	if _, err := r.crm.CreateDeal(ctx, item, contact); err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err.Error()
		r.logger.Error("deal creation failed", "sale_id", item.ID, "contact_id", contact.ID, "error", err)
		return result
	}

	result.Outcome = OutcomeSynced
	r.logger.Info("sale synced", "sale_id", item.ID, "contact_id", contact.ID, "offer", item.OfferName)
	return result
}

// WriteLedger hands the whole batch, CRM failures included, to the ledger.
func (r *Runner) WriteLedger(sales []sale.Sale) (ledger.Report, error) {
	return r.ledger.Sync(sales)
}

// RecordRun persists a run outcome in the run log. A non-empty runErrMsg
// marks the run as failed, keeping it out of the cutoff fallback.
func (r *Runner) RecordRun(ctx context.Context, report RunReport, runErrMsg string) error {
	synced, failed := report.Counts()
	run := runlog.Run{
		ID:            report.RunID,
		StartedAt:     report.StartedAt,
		Fetched:       report.Fetched,
		Synced:        synced,
		Failed:        failed,
		LedgerAdded:   report.Ledger.Added,
		LedgerSkipped: report.Ledger.Skipped,
		Error:         runErrMsg,
	}
	if runErrMsg == "" {
		completed := report.CompletedAt
		run.CompletedAt = &completed
	}
	return r.runs.Record(ctx, run)
}

// finish stamps the completion time and records the run; a run-log failure is
// logged but never masks the run's own error.
func (r *Runner) finish(ctx context.Context, report *RunReport, runErr error) {
	report.CompletedAt = time.Now().UTC()
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	if err := r.RecordRun(ctx, *report, msg); err != nil {
		r.logger.Error("record run failed", "run_id", report.RunID, "error", err)
	}
}
