package sale

import "time"

// Status reflects whether a purchase is still active or was refunded.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusRefunded  Status = "refunded"
)

// UnknownProduct is the offer name used when the offer relationship cannot be
// resolved from the included resources.
const UnknownProduct = "Unknown Product"

// Sale is the flat, self-contained view of one purchase. Built once by the
// transformer and never mutated afterwards.
type Sale struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Status    Status    `json:"status"`
	// Amount is in major currency units (dollars), converted from cents.
	Amount    float64   `json:"amount"`
	OfferName string    `json:"offer_name"`
	Customer  *Customer `json:"customer,omitempty"`
}

// Customer is the contact half of a sale. Nil on the Sale when the customer
// relationship could not be resolved.
type Customer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// FullName joins first and last name, trimmed for the single-name case.
func (c *Customer) FullName() string {
	if c == nil {
		return ""
	}
	name := c.FirstName
	if c.LastName != "" {
		name += " " + c.LastName
	}
	return name
}
