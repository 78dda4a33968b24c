// Package sandbox hosts an in-memory stand-in for the two external APIs the
// daemon talks to: a Kajabi-shaped sales API and a HubSpot-shaped CRM. It
// exists for local development and end-to-end tests; state lives in memory
// and dies with the process.
package sandbox

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Purchase is one seeded sale on the Kajabi side.
type Purchase struct {
	ID                 string
	CreatedAt          time.Time
	AmountCents        int64
	DeactivationReason string
	CustomerID         string
	OfferID            string
}

// Customer is a seeded Kajabi customer resource.
type Customer struct {
	ID    string
	Name  string
	Email string
}

// Offer is a seeded Kajabi offer resource.
type Offer struct {
	ID    string
	Title string
}

// Contact is a CRM contact record on the HubSpot side.
type Contact struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

// Deal is a CRM deal record.
type Deal struct {
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties"`
	ContactIDs []string       `json:"contact_ids"`
}

// State holds both fake platforms behind one mutex; the handlers are the only
// writers.
type State struct {
	mu sync.Mutex

	clientID     string
	clientSecret string
	tokens       map[string]struct{}

	purchases []Purchase
	customers map[string]Customer
	offers    map[string]Offer

	contacts []*Contact
	deals    []*Deal
}

// NewState creates an empty sandbox accepting the given source credentials.
func NewState(clientID, clientSecret string) *State {
	return &State{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokens:       make(map[string]struct{}),
		customers:    make(map[string]Customer),
		offers:       make(map[string]Offer),
	}
}

// SeedPurchase registers a purchase together with its related resources.
// Customer may be nil to simulate an unresolvable relationship.
func (st *State) SeedPurchase(p Purchase, customer *Customer, offer *Offer) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if customer != nil {
		if customer.ID == "" {
			customer.ID = uuid.NewString()
		}
		p.CustomerID = customer.ID
		st.customers[customer.ID] = *customer
	}
	if offer != nil {
		if offer.ID == "" {
			offer.ID = uuid.NewString()
		}
		p.OfferID = offer.ID
		st.offers[offer.ID] = *offer
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	st.purchases = append(st.purchases, p)
}

// Contacts returns a snapshot of the CRM contacts, for test assertions.
func (st *State) Contacts() []Contact {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]Contact, 0, len(st.contacts))
	for _, c := range st.contacts {
		out = append(out, *c)
	}
	return out
}

// Deals returns a snapshot of the CRM deals, for test assertions.
func (st *State) Deals() []Deal {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]Deal, 0, len(st.deals))
	for _, d := range st.deals {
		out = append(out, *d)
	}
	return out
}

func (st *State) issueToken() string {
	token := uuid.NewString()
	st.tokens[token] = struct{}{}
	return token
}

func (st *State) validToken(token string) bool {
	_, ok := st.tokens[token]
	return ok
}

func (st *State) contactByEmail(email string) *Contact {
	for _, c := range st.contacts {
		if c.Properties["email"] == email {
			return c
		}
	}
	return nil
}

func (st *State) contactByID(id string) *Contact {
	for _, c := range st.contacts {
		if c.ID == id {
			return c
		}
	}
	return nil
}
