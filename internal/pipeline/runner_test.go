package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/salesync/internal/hubspot"
	"example.com/salesync/internal/kajabi"
	"example.com/salesync/internal/ledger"
	"example.com/salesync/internal/runlog"
	"example.com/salesync/internal/sale"
)

type fakeSource struct {
	doc     kajabi.Document
	err     error
	cutoffs []time.Time
}

func (f *fakeSource) FetchPurchases(_ context.Context, cutoff time.Time) (kajabi.Document, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	if f.err != nil {
		return kajabi.Document{}, f.err
	}
	return f.doc, nil
}

type fakeCRM struct {
	upserts     []string
	deals       []string
	upsertErr   map[string]error
	dealErr     map[string]error
	nextContact int
}

func (f *fakeCRM) UpsertContact(_ context.Context, customer *sale.Customer) (hubspot.ContactRef, error) {
	f.upserts = append(f.upserts, customer.Email)
	if err := f.upsertErr[customer.Email]; err != nil {
		return hubspot.ContactRef{}, err
	}
	f.nextContact++
	return hubspot.ContactRef{ID: fmt.Sprintf("contact-%d", f.nextContact)}, nil
}

func (f *fakeCRM) CreateDeal(_ context.Context, s sale.Sale, _ hubspot.ContactRef) (hubspot.DealRef, error) {
	if err := f.dealErr[s.ID]; err != nil {
		return hubspot.DealRef{}, err
	}
	f.deals = append(f.deals, s.ID)
	return hubspot.DealRef{ID: "deal-" + s.ID}, nil
}

type fakeLedger struct {
	sales  []sale.Sale
	report ledger.Report
	err    error
}

func (f *fakeLedger) Sync(sales []sale.Sale) (ledger.Report, error) {
	f.sales = sales
	if f.err != nil {
		return ledger.Report{}, f.err
	}
	return f.report, nil
}

type fakeRunLog struct {
	recorded []runlog.Run
	last     *runlog.Run
}

func (f *fakeRunLog) Record(_ context.Context, run runlog.Run) error {
	f.recorded = append(f.recorded, run)
	return nil
}

func (f *fakeRunLog) LastCompleted(context.Context) (runlog.Run, bool, error) {
	if f.last == nil {
		return runlog.Run{}, false, nil
	}
	return *f.last, true, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rawAttrs(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

// testDocument returns three purchases: two with customers, one without.
func testDocument(t *testing.T) kajabi.Document {
	t.Helper()
	purchase := func(id, customerID, offerID string, cents int64) kajabi.Purchase {
		p := kajabi.Purchase{
			ID:   id,
			Type: "purchases",
			Attributes: kajabi.PurchaseAttributes{
				CreatedAt:     "2024-03-15T10:00:00Z",
				AmountInCents: cents,
				Currency:      "USD",
			},
		}
		if customerID != "" {
			p.Relationships.Customer.Data = &kajabi.ResourceID{Type: "customers", ID: customerID}
		}
		if offerID != "" {
			p.Relationships.Offer.Data = &kajabi.ResourceID{Type: "offers", ID: offerID}
		}
		return p
	}
	return kajabi.Document{
		Data: []kajabi.Purchase{
			purchase("p-1", "c-1", "o-1", 19900),
			purchase("p-2", "c-2", "o-1", 4950),
			purchase("p-3", "", "o-1", 1000),
		},
		Included: []kajabi.Resource{
			{Type: "customers", ID: "c-1", Attributes: rawAttrs(t, kajabi.CustomerAttributes{Name: "Jane Public", Email: "jane@example.com"})},
			{Type: "customers", ID: "c-2", Attributes: rawAttrs(t, kajabi.CustomerAttributes{Name: "Sam Rivera", Email: "sam@example.com"})},
			{Type: "offers", ID: "o-1", Attributes: rawAttrs(t, kajabi.OfferAttributes{Title: "Intro to Bookkeeping"})},
		},
	}
}

func TestRunSyncsEverySaleAndRecordsRun(t *testing.T) {
	source := &fakeSource{doc: testDocument(t)}
	crm := &fakeCRM{}
	led := &fakeLedger{report: ledger.Report{Added: 3}}
	runs := &fakeRunLog{}
	runner := NewRunner(source, crm, led, runs, time.Time{}, discardLogger())

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Fetched)
	synced, failed := report.Counts()
	assert.Equal(t, 2, synced)
	assert.Equal(t, 0, failed)
	assert.Equal(t, OutcomeNoCustomer, report.Results[2].Outcome)

	// Every sale reaches the ledger, customer or not.
	assert.Equal(t, []string{"jane@example.com", "sam@example.com"}, crm.upserts)
	assert.Equal(t, []string{"p-1", "p-2"}, crm.deals)
	require.Len(t, led.sales, 3)

	require.Len(t, runs.recorded, 1)
	recorded := runs.recorded[0]
	assert.Equal(t, report.RunID, recorded.ID)
	assert.Equal(t, 2, recorded.Synced)
	assert.Equal(t, 3, recorded.LedgerAdded)
	require.NotNil(t, recorded.CompletedAt)
	assert.Empty(t, recorded.Error)
}

func TestRunContinuesPastPerSaleFailures(t *testing.T) {
	source := &fakeSource{doc: testDocument(t)}
	crm := &fakeCRM{upsertErr: map[string]error{"jane@example.com": errors.New("hubspot: contact: rate limited")}}
	led := &fakeLedger{report: ledger.Report{Added: 3}}
	runs := &fakeRunLog{}
	runner := NewRunner(source, crm, led, runs, time.Time{}, discardLogger())

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, report.Results[0].Outcome)
	assert.Contains(t, report.Results[0].Err, "rate limited")
	assert.Equal(t, OutcomeSynced, report.Results[1].Outcome)
	// Failed sales still land in the ledger batch.
	assert.Len(t, led.sales, 3)
	assert.Equal(t, 1, runs.recorded[0].Failed)
}

func TestRunDealFailureAbandonsOnlyThatSale(t *testing.T) {
	source := &fakeSource{doc: testDocument(t)}
	crm := &fakeCRM{dealErr: map[string]error{"p-1": errors.New("hubspot: deal: bad request")}}
	runner := NewRunner(source, crm, &fakeLedger{}, &fakeRunLog{}, time.Time{}, discardLogger())

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, report.Results[0].Outcome)
	assert.Equal(t, OutcomeSynced, report.Results[1].Outcome)
	assert.Equal(t, []string{"p-2"}, crm.deals)
}

func TestRunFetchFailureRecordsFailedRun(t *testing.T) {
	source := &fakeSource{err: errors.New("kajabi: fetch purchases: status 500")}
	runs := &fakeRunLog{}
	runner := NewRunner(source, &fakeCRM{}, &fakeLedger{}, runs, time.Time{}, discardLogger())

	_, err := runner.Run(context.Background())
	require.Error(t, err)

	require.Len(t, runs.recorded, 1)
	assert.Contains(t, runs.recorded[0].Error, "status 500")
	assert.False(t, runs.recorded[0].Succeeded())
}

func TestRunLedgerFailureFailsRun(t *testing.T) {
	runs := &fakeRunLog{}
	runner := NewRunner(&fakeSource{doc: testDocument(t)}, &fakeCRM{},
		&fakeLedger{err: errors.New("ledger: save: disk full")}, runs, time.Time{}, discardLogger())

	_, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, runs.recorded[0].Error, "disk full")
}

func TestFetchCutoffFallsBackToLastCompletedRun(t *testing.T) {
	started := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{}
	runs := &fakeRunLog{last: &runlog.Run{ID: "prev", StartedAt: started}}
	runner := NewRunner(source, &fakeCRM{}, &fakeLedger{}, runs, time.Time{}, discardLogger())

	_, err := runner.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, source.cutoffs, 1)
	assert.True(t, source.cutoffs[0].Equal(started))
}

func TestFetchConfiguredCutoffWins(t *testing.T) {
	configured := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{}
	runs := &fakeRunLog{last: &runlog.Run{ID: "prev", StartedAt: time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)}}
	runner := NewRunner(source, &fakeCRM{}, &fakeLedger{}, runs, configured, discardLogger())

	_, err := runner.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, source.cutoffs, 1)
	assert.True(t, source.cutoffs[0].Equal(configured))
}

func TestFetchEmptyHistoryFetchesEverything(t *testing.T) {
	source := &fakeSource{}
	runner := NewRunner(source, &fakeCRM{}, &fakeLedger{}, &fakeRunLog{}, time.Time{}, discardLogger())

	_, err := runner.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, source.cutoffs, 1)
	assert.True(t, source.cutoffs[0].IsZero())
}

func TestSyncSaleInvalidEmail(t *testing.T) {
	crm := &fakeCRM{}
	runner := NewRunner(&fakeSource{}, crm, &fakeLedger{}, &fakeRunLog{}, time.Time{}, discardLogger())

	result := runner.SyncSale(context.Background(), sale.Sale{
		ID:       "p-9",
		Customer: &sale.Customer{Email: "not-an-email"},
	})
	assert.Equal(t, OutcomeInvalidEmail, result.Outcome)
	assert.Empty(t, crm.upserts)
}
