package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"example.com/salesync/internal/ledger"
)

func newWorkflowEnv(t *testing.T, runner *Runner) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(SalesSyncWorkflow, workflow.RegisterOptions{Name: syncWorkflowName})

	activities := NewSyncActivities(runner, discardLogger())
	env.RegisterActivityWithOptions(activities.FetchSalesActivity, activity.RegisterOptions{Name: fetchActivityName})
	env.RegisterActivityWithOptions(activities.SyncSaleActivity, activity.RegisterOptions{Name: syncSaleActivityName})
	env.RegisterActivityWithOptions(activities.WriteLedgerActivity, activity.RegisterOptions{Name: writeLedgerActivityName})
	env.RegisterActivityWithOptions(activities.RecordRunActivity, activity.RegisterOptions{Name: recordRunActivityName})
	return env
}

func TestSalesSyncWorkflowHappyPath(t *testing.T) {
	source := &fakeSource{doc: testDocument(t)}
	crm := &fakeCRM{}
	runs := &fakeRunLog{}
	runner := NewRunner(source, crm, &fakeLedger{report: ledger.Report{Added: 3}}, runs, time.Time{}, discardLogger())

	env := newWorkflowEnv(t, runner)
	env.ExecuteWorkflow(syncWorkflowName)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var report RunReport
	require.NoError(t, env.GetWorkflowResult(&report))
	assert.Equal(t, 3, report.Fetched)
	synced, failed := report.Counts()
	assert.Equal(t, 2, synced)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 3, report.Ledger.Added)

	require.Len(t, runs.recorded, 1)
	assert.True(t, runs.recorded[0].Succeeded())
}

func TestSalesSyncWorkflowCRMRejectionDoesNotFailWorkflow(t *testing.T) {
	source := &fakeSource{doc: testDocument(t)}
	crm := &fakeCRM{upsertErr: map[string]error{"jane@example.com": errors.New("hubspot: contact: rate limited")}}
	runner := NewRunner(source, crm, &fakeLedger{}, &fakeRunLog{}, time.Time{}, discardLogger())

	env := newWorkflowEnv(t, runner)
	env.ExecuteWorkflow(syncWorkflowName)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var report RunReport
	require.NoError(t, env.GetWorkflowResult(&report))
	assert.Equal(t, OutcomeFailed, report.Results[0].Outcome)
	assert.Equal(t, OutcomeSynced, report.Results[1].Outcome)
}

func TestSalesSyncWorkflowFetchFailureRecordsFailedRun(t *testing.T) {
	source := &fakeSource{err: errors.New("kajabi: fetch purchases: status 500")}
	runs := &fakeRunLog{}
	runner := NewRunner(source, &fakeCRM{}, &fakeLedger{}, runs, time.Time{}, discardLogger())

	env := newWorkflowEnv(t, runner)
	env.ExecuteWorkflow(syncWorkflowName)

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())

	require.Len(t, runs.recorded, 1)
	assert.Contains(t, runs.recorded[0].Error, "status 500")
	assert.False(t, runs.recorded[0].Succeeded())
}
