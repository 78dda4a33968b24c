package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	temporalworker "go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"example.com/salesync/internal/ledger"
	"example.com/salesync/internal/sale"
)

const (
	syncTaskQueue = "salesync-task-queue"
	// syncWorkflowID is fixed: while one execution is open, starting another
	// with the same ID is rejected, which is the overlap guard protecting the
	// ledger's non-atomic read-modify-write.
	syncWorkflowID = "salesync-run"

	syncWorkflowName        = "salesync.run"
	fetchActivityName       = "salesync.fetch"
	syncSaleActivityName    = "salesync.sync_sale"
	writeLedgerActivityName = "salesync.write_ledger"
	recordRunActivityName   = "salesync.record_run"
)

// SyncActivities hosts the activity implementations that reuse the runner's
// stage logic.
type SyncActivities struct {
	runner *Runner
	logger *slog.Logger
}

// NewSyncActivities binds activities to a runner.
func NewSyncActivities(runner *Runner, logger *slog.Logger) *SyncActivities {
	return &SyncActivities{runner: runner, logger: logger.With("component", "sync.activities")}
}

// FetchSalesActivity pulls and transforms purchases after the cutoff.
func (a *SyncActivities) FetchSalesActivity(ctx context.Context) ([]sale.Sale, error) {
	sales, err := a.runner.Fetch(ctx)
	if err != nil {
		a.logger.Error("activity fetch failed", "error", err)
		return nil, err
	}
	return sales, nil
}

// SyncSaleActivity mirrors one sale into the CRM. A CRM rejection is a
// business outcome, not an activity failure, so the error travels inside the
// result and the workflow keeps going.
func (a *SyncActivities) SyncSaleActivity(ctx context.Context, item sale.Sale) (SaleResult, error) {
	return a.runner.SyncSale(ctx, item), nil
}

// WriteLedgerActivity appends the batch to the ledger.
func (a *SyncActivities) WriteLedgerActivity(_ context.Context, sales []sale.Sale) (ledger.Report, error) {
	return a.runner.WriteLedger(sales)
}

// RecordRunActivity persists the run outcome in the run log.
func (a *SyncActivities) RecordRunActivity(ctx context.Context, report RunReport, runErrMsg string) error {
	return a.runner.RecordRun(ctx, report, runErrMsg)
}

// SalesSyncWorkflow orchestrates one pipeline pass. Activities run with
// retries disabled: the policy for this pipeline is log and continue, never
// replay a partially applied sale.
func SalesSyncWorkflow(ctx workflow.Context) (RunReport, error) {
	options := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, options)
	logger := workflow.GetLogger(ctx)

	report := RunReport{
		RunID:     workflow.GetInfo(ctx).WorkflowExecution.RunID,
		StartedAt: workflow.Now(ctx).UTC(),
	}

	var sales []sale.Sale
	if err := workflow.ExecuteActivity(ctx, fetchActivityName).Get(ctx, &sales); err != nil {
		logger.Error("fetch activity failed", "error", err)
		report.CompletedAt = workflow.Now(ctx).UTC()
		_ = workflow.ExecuteActivity(ctx, recordRunActivityName, report, err.Error()).Get(ctx, nil)
		return report, err
	}
	report.Fetched = len(sales)

	for _, item := range sales {
		var result SaleResult
		if err := workflow.ExecuteActivity(ctx, syncSaleActivityName, item).Get(ctx, &result); err != nil {
			// Infrastructure failure around the activity itself; scoped to
			// this sale like any CRM error.
			result = SaleResult{SaleID: item.ID, Outcome: OutcomeFailed, Err: err.Error()}
		}
		report.Results = append(report.Results, result)
	}

	if err := workflow.ExecuteActivity(ctx, writeLedgerActivityName, sales).Get(ctx, &report.Ledger); err != nil {
		logger.Error("ledger activity failed", "error", err)
		report.CompletedAt = workflow.Now(ctx).UTC()
		_ = workflow.ExecuteActivity(ctx, recordRunActivityName, report, err.Error()).Get(ctx, nil)
		return report, err
	}

	report.CompletedAt = workflow.Now(ctx).UTC()
	if err := workflow.ExecuteActivity(ctx, recordRunActivityName, report, "").Get(ctx, nil); err != nil {
		logger.Error("record run activity failed", "error", err)
	}
	synced, failed := report.Counts()
	logger.Info("sync workflow finished", "run_id", report.RunID, "fetched", report.Fetched, "synced", synced, "failed", failed)
	return report, nil
}

// RegisterSyncWorker wires up the Temporal worker consuming the sync task queue.
func RegisterSyncWorker(c client.Client, runner *Runner, logger *slog.Logger) temporalworker.Worker {
	w := temporalworker.New(c, syncTaskQueue, temporalworker.Options{})
	w.RegisterWorkflowWithOptions(SalesSyncWorkflow, workflow.RegisterOptions{Name: syncWorkflowName})
	activities := NewSyncActivities(runner, logger)
	w.RegisterActivityWithOptions(activities.FetchSalesActivity, activity.RegisterOptions{Name: fetchActivityName})
	w.RegisterActivityWithOptions(activities.SyncSaleActivity, activity.RegisterOptions{Name: syncSaleActivityName})
	w.RegisterActivityWithOptions(activities.WriteLedgerActivity, activity.RegisterOptions{Name: writeLedgerActivityName})
	w.RegisterActivityWithOptions(activities.RecordRunActivity, activity.RegisterOptions{Name: recordRunActivityName})
	return w
}

// TemporalOrchestrator starts sync workflows through the Temporal client.
type TemporalOrchestrator struct {
	client client.Client
	logger *slog.Logger
}

// NewTemporalOrchestrator builds the workflow-backed orchestrator.
func NewTemporalOrchestrator(c client.Client, logger *slog.Logger) *TemporalOrchestrator {
	return &TemporalOrchestrator{client: c, logger: logger.With("component", "sync.temporal")}
}

// RunSync starts a workflow on the fixed ID and waits for its result. A start
// rejected because an execution is already open maps to ErrRunInProgress.
func (o *TemporalOrchestrator) RunSync(ctx context.Context) (RunReport, error) {
	options := client.StartWorkflowOptions{
		ID:                       syncWorkflowID,
		TaskQueue:                syncTaskQueue,
		WorkflowIDReusePolicy:    enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionTimeout: 30 * time.Minute,
	}
	we, err := o.client.ExecuteWorkflow(ctx, options, syncWorkflowName)
	if err != nil {
		var already *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &already) {
			return RunReport{}, ErrRunInProgress
		}
		o.logger.Error("start workflow failed", "error", err)
		return RunReport{}, err
	}
	var report RunReport
	if err := we.Get(ctx, &report); err != nil {
		o.logger.Error("wait workflow failed", "workflow_id", we.GetID(), "run_id", we.GetRunID(), "error", err)
		return report, err
	}
	return report, nil
}

// RunSyncAsync starts the workflow without waiting for its result.
func (o *TemporalOrchestrator) RunSyncAsync(ctx context.Context) error {
	options := client.StartWorkflowOptions{
		ID:                       syncWorkflowID,
		TaskQueue:                syncTaskQueue,
		WorkflowIDReusePolicy:    enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionTimeout: 30 * time.Minute,
	}
	we, err := o.client.ExecuteWorkflow(ctx, options, syncWorkflowName)
	if err != nil {
		var already *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &already) {
			return ErrRunInProgress
		}
		o.logger.Error("start workflow async failed", "error", err)
		return err
	}
	o.logger.Info("workflow dispatched", "workflow_id", we.GetID(), "run_id", we.GetRunID())
	return nil
}
