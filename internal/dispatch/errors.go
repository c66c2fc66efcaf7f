package dispatch

import (
	"errors"
	"fmt"
)

// Sentinel errors for the dispatch pipeline. Handlers map these onto HTTP
// statuses and problem types; none of them is ever retried.
var (
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrEndpointNotFound    = errors.New("endpoint not found")
	ErrNotConnected        = errors.New("integration not connected")
	ErrPolicyDenied        = errors.New("execute denied by policy")
)

// ValidationError reports missing or malformed caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProbeError rejects a connect attempt: the vendor answered with a status
// outside the accepted set. Distinct from the optimistic degraded path,
// which succeeds with a warning.
type ProbeError struct {
	Integration string
	Status      int
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("connection probe for %s rejected with status %d", e.Integration, e.Status)
}
