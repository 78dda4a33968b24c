package kajabi

import "encoding/json"

// Document is the JSON:API payload returned by the purchases endpoint:
// purchases in `data`, related customers and offers flattened into `included`
// and linked by type+id.
type Document struct {
	Data     []Purchase `json:"data"`
	Included []Resource `json:"included"`
}

// Purchase is one raw purchase record.
type Purchase struct {
	ID            string             `json:"id"`
	Type          string             `json:"type"`
	Attributes    PurchaseAttributes `json:"attributes"`
	Relationships Relationships      `json:"relationships"`
}

// PurchaseAttributes carries the purchase fields this pipeline consumes.
type PurchaseAttributes struct {
	CreatedAt          string `json:"created_at"`
	AmountInCents      int64  `json:"amount_in_cents"`
	Currency           string `json:"currency"`
	PaymentType        string `json:"payment_type"`
	DeactivationReason string `json:"deactivation_reason"`
	DeactivatedAt      string `json:"deactivated_at"`
}

// Relationships links a purchase to its customer and offer by id.
type Relationships struct {
	Customer RelationshipRef `json:"customer"`
	Offer    RelationshipRef `json:"offer"`
}

// RelationshipRef follows the JSON:API `{"data": {"type": ..., "id": ...}}`
// shape; Data is nil when the relationship is absent.
type RelationshipRef struct {
	Data *ResourceID `json:"data"`
}

// ResourceID identifies a sidecar resource.
type ResourceID struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Resource is one entry of the `included` sidecar list. Attributes stay raw
// until the transformer knows which shape (customer or offer) to decode.
type Resource struct {
	Type       string          `json:"type"`
	ID         string          `json:"id"`
	Attributes json.RawMessage `json:"attributes"`
}

// CustomerAttributes is the attribute shape of `customers` resources.
type CustomerAttributes struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// OfferAttributes is the attribute shape of `offers` resources.
type OfferAttributes struct {
	Title string `json:"title"`
}
