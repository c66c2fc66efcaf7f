package catalog

import (
	"context"
	"fmt"
	"net/http"
)

// Result is the normalized payload an adapter returns for one action.
type Result struct {
	Status int `json:"status"`
	Data   any `json:"data"`
}

// Adapter is the capability contract every vendor client satisfies: a
// stateless client constructed for one call, exposing a single dispatch
// entry point.
type Adapter interface {
	Name() string
	Execute(ctx context.Context, action string, params map[string]any) (Result, error)
}

// AdapterConfig carries everything a factory needs to bind an adapter to a
// caller's connection: the descriptor, the decrypted credential fields, the
// base URL (stored override already applied) and the shared HTTP client.
type AdapterConfig struct {
	Descriptor  Descriptor
	Credentials map[string]string
	BaseURL     string
	HTTPClient  *http.Client
}

// Factory builds an adapter bound to one credential set.
type Factory func(cfg AdapterConfig) (Adapter, error)

// VendorError is how adapters report a failed downstream call: either a
// non-2xx vendor status (Status > 0, body preserved) or a network-level
// failure (Status == 0, wrapped error). The dispatcher uses the shape to
// decide retryability.
type VendorError struct {
	Integration string
	Action      string
	Status      int
	Body        string
	Err         error
}

func (e *VendorError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("vendor call %s/%s: status %d", e.Integration, e.Action, e.Status)
	}
	return fmt.Sprintf("vendor call %s/%s: %v", e.Integration, e.Action, e.Err)
}

func (e *VendorError) Unwrap() error { return e.Err }

// Transient reports whether a retry could plausibly succeed: network
// failures, 5xx and 429. Client errors (other 4xx) are never retried.
func (e *VendorError) Transient() bool {
	if e.Status == 0 {
		return true
	}
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}
