package sandbox

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Server serves both fake platforms from one router: Kajabi endpoints under
// /v1, HubSpot endpoints under /crm/v3. The route shapes match what the real
// clients expect, down to the 409 on duplicate contact email.
type Server struct {
	state  *State
	logger *slog.Logger
}

// NewServer builds the sandbox HTTP layer.
func NewServer(state *State, logger *slog.Logger) *Server {
	return &Server{state: state, logger: logger.With("component", "sandbox")}
}

// Router configures all sandbox routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Post("/v1/oauth/token", s.handleToken)
	r.Get("/v1/purchases", s.handleListPurchases)

	r.Route("/crm/v3/objects", func(r chi.Router) {
		r.Post("/contacts", s.handleCreateContact)
		r.Post("/contacts/search", s.handleSearchContacts)
		r.Patch("/contacts/{contactID}", s.handleUpdateContact)
		r.Post("/deals", s.handleCreateDeal)
	})

	return r
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form: %v", err)
		return
	}
	if r.PostFormValue("grant_type") != "client_credentials" {
		writeError(w, http.StatusBadRequest, "unsupported grant_type")
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if r.PostFormValue("client_id") != s.state.clientID ||
		r.PostFormValue("client_secret") != s.state.clientSecret {
		writeError(w, http.StatusUnauthorized, "invalid client credentials")
		return
	}
	token := s.state.issueToken()
	s.logger.Info("token issued")
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
	})
}

// handleListPurchases renders the JSON:API document: purchases in data,
// referenced customers and offers deduplicated into included.
func (s *Server) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	data := make([]map[string]any, 0, len(s.state.purchases))
	includedCustomers := make(map[string]struct{})
	includedOffers := make(map[string]struct{})
	var included []map[string]any

	for _, p := range s.state.purchases {
		relationships := map[string]any{}
		if c, ok := s.state.customers[p.CustomerID]; ok {
			relationships["customer"] = map[string]any{
				"data": map[string]any{"type": "customers", "id": c.ID},
			}
			if _, seen := includedCustomers[c.ID]; !seen {
				includedCustomers[c.ID] = struct{}{}
				included = append(included, map[string]any{
					"type":       "customers",
					"id":         c.ID,
					"attributes": map[string]any{"name": c.Name, "email": c.Email},
				})
			}
		}
		if o, ok := s.state.offers[p.OfferID]; ok {
			relationships["offer"] = map[string]any{
				"data": map[string]any{"type": "offers", "id": o.ID},
			}
			if _, seen := includedOffers[o.ID]; !seen {
				includedOffers[o.ID] = struct{}{}
				included = append(included, map[string]any{
					"type":       "offers",
					"id":         o.ID,
					"attributes": map[string]any{"title": o.Title},
				})
			}
		}
		data = append(data, map[string]any{
			"type": "purchases",
			"id":   p.ID,
			"attributes": map[string]any{
				"created_at":          p.CreatedAt.UTC().Format(time.RFC3339),
				"amount_in_cents":     p.AmountCents,
				"deactivation_reason": p.DeactivationReason,
			},
			"relationships": relationships,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": data, "included": included})
}

func (s *Server) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Properties map[string]string `json:"properties"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}
	email := payload.Properties["email"]
	if email == "" {
		writeError(w, http.StatusBadRequest, "email property is required")
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if s.state.contactByEmail(email) != nil {
		writeError(w, http.StatusConflict, "Contact already exists. Existing ID found for email %s", email)
		return
	}
	contact := &Contact{ID: uuid.NewString(), Properties: payload.Properties}
	s.state.contacts = append(s.state.contacts, contact)
	s.logger.Info("contact created", "email", email, "contact_id", contact.ID)
	writeJSON(w, http.StatusCreated, contact)
}

func (s *Server) handleSearchContacts(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		FilterGroups []struct {
			Filters []struct {
				PropertyName string `json:"propertyName"`
				Operator     string `json:"operator"`
				Value        string `json:"value"`
			} `json:"filters"`
		} `json:"filterGroups"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}

	email := ""
	for _, group := range payload.FilterGroups {
		for _, f := range group.Filters {
			if f.PropertyName == "email" && f.Operator == "EQ" {
				email = f.Value
			}
		}
	}
	if email == "" {
		writeError(w, http.StatusBadRequest, "only email EQ filters are supported")
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	results := []Contact{}
	if c := s.state.contactByEmail(email); c != nil {
		results = append(results, *c)
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": len(results), "results": results})
}

func (s *Server) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "contactID")
	var payload struct {
		Properties map[string]string `json:"properties"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	contact := s.state.contactByID(contactID)
	if contact == nil {
		writeError(w, http.StatusNotFound, "contact %s not found", contactID)
		return
	}
	for k, v := range payload.Properties {
		contact.Properties[k] = v
	}
	s.logger.Info("contact updated", "contact_id", contactID)
	writeJSON(w, http.StatusOK, contact)
}

func (s *Server) handleCreateDeal(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Properties   map[string]any `json:"properties"`
		Associations []struct {
			To struct {
				ID string `json:"id"`
			} `json:"to"`
		} `json:"associations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	deal := &Deal{ID: uuid.NewString(), Properties: payload.Properties}
	for _, assoc := range payload.Associations {
		if assoc.To.ID != "" {
			if s.state.contactByID(assoc.To.ID) == nil {
				writeError(w, http.StatusBadRequest, "association target %s does not exist", assoc.To.ID)
				return
			}
			deal.ContactIDs = append(deal.ContactIDs, assoc.To.ID)
		}
	}
	s.state.deals = append(s.state.deals, deal)
	s.logger.Info("deal created", "deal_id", deal.ID, "name", deal.Properties["dealname"])
	writeJSON(w, http.StatusCreated, deal)
}

func (s *Server) authorized(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	return s.state.validToken(token)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}
