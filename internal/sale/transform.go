package sale

import (
	"encoding/json"
	"strings"
	"time"

	"example.com/salesync/internal/kajabi"
)

// refundedReason is the deactivation_reason value that marks a refund. A bare
// deactivated_at timestamp does not: offers get deactivated for non-refund
// reasons as well.
const refundedReason = "refunded"

// Transform denormalizes a JSON:API purchases document into flat Sale records.
// Pure: no I/O, deterministic, and degrades to defaults on missing fields
// rather than erroring.
func Transform(doc kajabi.Document) []Sale {
	customers := make(map[string]kajabi.CustomerAttributes)
	offers := make(map[string]kajabi.OfferAttributes)
	for _, res := range doc.Included {
		switch res.Type {
		case "customers":
			var attrs kajabi.CustomerAttributes
			if err := json.Unmarshal(res.Attributes, &attrs); err == nil {
				customers[res.ID] = attrs
			}
		case "offers":
			var attrs kajabi.OfferAttributes
			if err := json.Unmarshal(res.Attributes, &attrs); err == nil {
				offers[res.ID] = attrs
			}
		}
	}

	sales := make([]Sale, 0, len(doc.Data))
	for _, purchase := range doc.Data {
		sales = append(sales, transformOne(purchase, customers, offers))
	}
	return sales
}

func transformOne(p kajabi.Purchase, customers map[string]kajabi.CustomerAttributes, offers map[string]kajabi.OfferAttributes) Sale {
	s := Sale{
		ID:        p.ID,
		Status:    StatusCompleted,
		Amount:    float64(p.Attributes.AmountInCents) / 100,
		OfferName: UnknownProduct,
	}
	if p.Attributes.DeactivationReason == refundedReason {
		s.Status = StatusRefunded
	}
	if createdAt, err := time.Parse(time.RFC3339, p.Attributes.CreatedAt); err == nil {
		s.CreatedAt = createdAt
	}

	if ref := p.Relationships.Offer.Data; ref != nil {
		if attrs, ok := offers[ref.ID]; ok && attrs.Title != "" {
			s.OfferName = attrs.Title
		}
	}

	if ref := p.Relationships.Customer.Data; ref != nil {
		if attrs, ok := customers[ref.ID]; ok {
			first, last := SplitName(attrs.Name)
			s.Customer = &Customer{
				Email:     attrs.Email,
				FirstName: first,
				LastName:  last,
			}
		}
	}
	return s
}

// SplitName splits a display name on single spaces: first token becomes the
// first name, the remaining tokens rejoined form the last name.
func SplitName(name string) (first, last string) {
	if name == "" {
		return "", ""
	}
	parts := strings.Split(name, " ")
	first = parts[0]
	last = strings.Join(parts[1:], " ")
	return first, last
}
