package pipeline

import (
	"time"

	"example.com/salesync/internal/ledger"
)

// Outcome labels what happened to one sale during CRM sync. Every sale gets
// exactly one, and every outcome still ends in the ledger.
type Outcome string

const (
	// OutcomeSynced means contact upsert and deal creation both succeeded.
	OutcomeSynced Outcome = "synced"
	// OutcomeNoCustomer means the sale carried no resolvable customer, so CRM
	// sync was skipped.
	OutcomeNoCustomer Outcome = "no_customer"
	// OutcomeInvalidEmail means the customer email failed validation and the
	// sale was kept out of the CRM to avoid poisoning contact records.
	OutcomeInvalidEmail Outcome = "invalid_email"
	// OutcomeFailed means the CRM rejected the contact or deal; the error is
	// logged and the pipeline moves on.
	OutcomeFailed Outcome = "failed"
)

// SaleResult is the per-item record that replaces inline try/catch narration.
type SaleResult struct {
	SaleID  string  `json:"sale_id"`
	Outcome Outcome `json:"outcome"`
	Err     string  `json:"error,omitempty"`
}

// RunReport aggregates one full pipeline pass.
type RunReport struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Fetched     int           `json:"fetched"`
	Results     []SaleResult  `json:"results"`
	Ledger      ledger.Report `json:"ledger"`
}

// Counts tallies fully synced and failed sales; skips (no customer, invalid
// email) are whatever remains.
func (r RunReport) Counts() (synced, failed int) {
	for _, res := range r.Results {
		switch res.Outcome {
		case OutcomeSynced:
			synced++
		case OutcomeFailed:
			failed++
		}
	}
	return synced, failed
}
