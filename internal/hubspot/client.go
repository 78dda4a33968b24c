package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"example.com/salesync/internal/sale"
)

const (
	dealStage    = "closedwon"
	dealPipeline = "default"
	// contactToDealAssociation is the HUBSPOT_DEFINED association type linking
	// a deal to its contact.
	contactToDealAssociation = 3
)

// ContactRef points at a CRM contact record.
type ContactRef struct {
	ID string `json:"id"`
}

// DealRef points at a CRM deal record.
type DealRef struct {
	ID string `json:"id"`
}

// Client issues the HTTP calls toward the HubSpot CRM API.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// NewClient configures a client with sane defaults.
func NewClient(baseURL, accessToken string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// UpsertContact creates a contact for the customer; when creation reports a
// conflict on the email, it searches for the existing contact and updates its
// properties instead. Any other failure propagates as an *APIError.
func (c *Client) UpsertContact(ctx context.Context, customer *sale.Customer) (ContactRef, error) {
	props := contactProperties(customer)

	ref, err := c.createContact(ctx, props)
	if err == nil {
		return ref, nil
	}
	if !IsConflict(err) {
		return ContactRef{}, err
	}

	existing, err := c.SearchContactByEmail(ctx, customer.Email)
	if err != nil {
		return ContactRef{}, err
	}
	if err := c.updateContact(ctx, existing.ID, props); err != nil {
		return ContactRef{}, err
	}
	return existing, nil
}

func contactProperties(customer *sale.Customer) map[string]string {
	return map[string]string{
		"email":     customer.Email,
		"firstname": customer.FirstName,
		"lastname":  customer.LastName,
		"phone":     customer.Phone,
	}
}

func (c *Client) createContact(ctx context.Context, props map[string]string) (ContactRef, error) {
	var ref ContactRef
	body := map[string]any{"properties": props}
	if err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts", body, &ref, "create contact"); err != nil {
		return ContactRef{}, err
	}
	return ref, nil
}

// SearchContactByEmail finds the contact whose email property matches exactly.
// A miss surfaces as *APIError with KindNotFound.
func (c *Client) SearchContactByEmail(ctx context.Context, email string) (ContactRef, error) {
	body := map[string]any{
		"filterGroups": []map[string]any{{
			"filters": []map[string]any{{
				"propertyName": "email",
				"operator":     "EQ",
				"value":        email,
			}},
		}},
	}
	var result struct {
		Results []ContactRef `json:"results"`
	}
	if err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts/search", body, &result, "search contact"); err != nil {
		return ContactRef{}, err
	}
	if len(result.Results) == 0 {
		return ContactRef{}, &APIError{
			Kind:    KindNotFound,
			Op:      "search contact",
			Message: fmt.Sprintf("no contact with email %s", email),
		}
	}
	return result.Results[0], nil
}

func (c *Client) updateContact(ctx context.Context, contactID string, props map[string]string) error {
	body := map[string]any{"properties": props}
	path := "/crm/v3/objects/contacts/" + contactID
	return c.do(ctx, http.MethodPatch, path, body, nil, "update contact")
}

// CreateDeal records a closed-won deal for the sale, associated to the given
// contact. There is no idempotency key: retrying a sale after a partial
// failure can create a duplicate deal.
func (c *Client) CreateDeal(ctx context.Context, s sale.Sale, contact ContactRef) (DealRef, error) {
	offerName := s.OfferName
	if offerName == "" {
		offerName = "Product"
	}
	body := map[string]any{
		"properties": map[string]any{
			"dealname":  "Kajabi Sale - " + offerName,
			"amount":    fmt.Sprintf("%.2f", s.Amount),
			"dealstage": dealStage,
			"pipeline":  dealPipeline,
			"closedate": s.CreatedAt.UnixMilli(),
		},
		"associations": []map[string]any{{
			"to": map[string]any{"id": contact.ID},
			"types": []map[string]any{{
				"associationCategory": "HUBSPOT_DEFINED",
				"associationTypeId":   contactToDealAssociation,
			}},
		}},
	}
	var ref DealRef
	if err := c.do(ctx, http.MethodPost, "/crm/v3/objects/deals", body, &ref, "create deal"); err != nil {
		return DealRef{}, err
	}
	return ref, nil
}

// do issues one authenticated JSON request and decodes the response into out
// when out is non-nil. Non-2xx responses become *APIError with a kind
// classified from the status code.
func (c *Client) do(ctx context.Context, method, path string, body, out any, op string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &APIError{Kind: KindFatal, Op: op, Message: err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &APIError{Kind: KindFatal, Op: op, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Kind: KindFatal, Op: op, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{
			Kind:       classify(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Op:         op,
			Message:    strings.TrimSpace(string(raw)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Kind: KindFatal, StatusCode: resp.StatusCode, Op: op, Message: "decode response: " + err.Error()}
	}
	return nil
}
