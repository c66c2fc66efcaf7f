package catalog

import (
	"fmt"
	"strings"
)

// Auth shapes an adapter declares for outbound vendor calls.
const (
	AuthNone   = "none"
	AuthBearer = "bearer"
	AuthBasic  = "basic"
	AuthAPIKey = "api-key"
)

// Endpoint describes one invokable action on an integration.
type Endpoint struct {
	ID      string `json:"id" yaml:"id"`
	Method  string `json:"method" yaml:"method"`
	Path    string `json:"path" yaml:"path"` // template with {param} placeholders
	Summary string `json:"summary,omitempty" yaml:"summary,omitempty"`

	// Idempotent marks the action safe to retry on transient failures.
	// GET/HEAD endpoints are treated as idempotent regardless.
	Idempotent bool `json:"idempotent,omitempty" yaml:"idempotent,omitempty"`

	// ResultPath is an optional JMESPath expression applied to the vendor
	// response body to extract the normalized payload.
	ResultPath string `json:"resultPath,omitempty" yaml:"resultPath,omitempty"`

	Scopes []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

// Authentication declares how a bundle's fields map onto vendor requests.
type Authentication struct {
	Type string `json:"type" yaml:"type"`
	// Header overrides the header name for api-key auth (default X-Api-Key).
	Header string `json:"header,omitempty" yaml:"header,omitempty"`
	// Query routes the api key as a query parameter instead of a header.
	Query  string   `json:"query,omitempty" yaml:"query,omitempty"`
	Scopes []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

// Descriptor is the static metadata for one pluggable vendor. Immutable
// after registration; owned by the Registry.
type Descriptor struct {
	ID             string         `json:"id" yaml:"id"`
	DisplayName    string         `json:"displayName" yaml:"displayName"`
	BaseURL        string         `json:"baseUrl" yaml:"baseUrl"`
	Authentication Authentication `json:"authentication" yaml:"authentication"`
	Endpoints      []Endpoint     `json:"endpoints" yaml:"endpoints"`

	// ProbePath overrides the conventional who-am-i candidates used by the
	// connection probe.
	ProbePath string `json:"probePath,omitempty" yaml:"probePath,omitempty"`
}

// Endpoint resolves an action id against the descriptor.
func (d Descriptor) Endpoint(id string) (Endpoint, bool) {
	for _, e := range d.Endpoints {
		if e.ID == id {
			return e, true
		}
	}
	return Endpoint{}, false
}

// Validate checks the minimum fields a manifest or registration must carry.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("descriptor missing id")
	}
	if strings.TrimSpace(d.DisplayName) == "" {
		return fmt.Errorf("descriptor %s missing displayName", d.ID)
	}
	if strings.TrimSpace(d.BaseURL) == "" {
		return fmt.Errorf("descriptor %s missing baseUrl", d.ID)
	}
	switch d.Authentication.Type {
	case AuthNone, AuthBearer, AuthBasic, AuthAPIKey:
	case "":
		return fmt.Errorf("descriptor %s missing authentication.type", d.ID)
	default:
		return fmt.Errorf("descriptor %s: unknown authentication.type %q", d.ID, d.Authentication.Type)
	}
	seen := map[string]bool{}
	for _, e := range d.Endpoints {
		if strings.TrimSpace(e.ID) == "" {
			return fmt.Errorf("descriptor %s: endpoint missing id", d.ID)
		}
		if seen[e.ID] {
			return fmt.Errorf("descriptor %s: duplicate endpoint %s", d.ID, e.ID)
		}
		seen[e.ID] = true
		switch strings.ToUpper(e.Method) {
		case "GET", "POST", "PUT", "PATCH", "DELETE", "HEAD":
		default:
			return fmt.Errorf("descriptor %s: endpoint %s has invalid method %q", d.ID, e.ID, e.Method)
		}
		if !strings.HasPrefix(e.Path, "/") {
			return fmt.Errorf("descriptor %s: endpoint %s path must start with /", d.ID, e.ID)
		}
	}
	return nil
}

// Retryable reports whether the endpoint may be retried on transient
// vendor failures.
func (e Endpoint) Retryable() bool {
	switch strings.ToUpper(e.Method) {
	case "GET", "HEAD":
		return true
	}
	return e.Idempotent
}
