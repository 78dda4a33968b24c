package hubspot

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind buckets every CRM failure into one of four shapes so callers never
// have to sniff status codes or response bodies themselves.
type Kind string

const (
	// KindConflict covers duplicate-resource rejections, notably contact
	// creation against an email that already exists.
	KindConflict Kind = "conflict"
	// KindNotFound covers lookups that matched nothing.
	KindNotFound Kind = "not_found"
	// KindTransient covers rate limits and 5xx responses.
	KindTransient Kind = "transient"
	// KindFatal covers everything else: bad requests, auth failures,
	// transport errors.
	KindFatal Kind = "fatal"
)

// APIError is the single normalized error type crossing the CRM adapter
// boundary. The kind is classified once, from the HTTP status.
type APIError struct {
	Kind       Kind
	StatusCode int
	Op         string
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("hubspot %s: %s (%d): %s", e.Op, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("hubspot %s: %s: %s", e.Op, e.Kind, e.Message)
}

// IsConflict reports whether err is a CRM conflict (duplicate resource).
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindConflict
}

func classify(status int) Kind {
	switch {
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests || status >= 500:
		return KindTransient
	default:
		return KindFatal
	}
}
