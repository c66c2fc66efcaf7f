package openapi

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Minimal OpenAPI surface for the catalog's dynamic operations. Descriptors
// are the source of truth; this package only shapes them into a document.

// Operation represents a single HTTP operation to surface in OpenAPI.
type Operation struct {
	Method      string         `json:"method"`
	Path        string         `json:"path"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Scopes      []string       `json:"x-required-scopes,omitempty"`
	Responses   map[string]any `json:"responses"`
}

// Registry holds registered operations across all integrations.
type Registry struct {
	Ops []Operation
}

func NewRegistry() *Registry { return &Registry{Ops: []Operation{}} }

func (r *Registry) Register(op Operation) {
	if op.Method != "" {
		op.Method = strings.ToLower(op.Method)
	}
	r.Ops = append(r.Ops, op)
}

// Build produces a minimal OpenAPI 3.1 document for the registered
// operations.
func (r *Registry) Build(serviceName, version string) map[string]any {
	paths := map[string]any{}
	for _, op := range r.Ops {
		if _, ok := paths[op.Path]; !ok {
			paths[op.Path] = map[string]any{}
		}
		m := map[string]any{
			"summary":     op.Summary,
			"description": op.Description,
			"tags":        op.Tags,
			"responses":   op.Responses,
		}
		if len(op.Scopes) > 0 {
			m["x-required-scopes"] = op.Scopes
		}
		paths[op.Path].(map[string]any)[op.Method] = m
	}
	return map[string]any{
		"openapi": "3.1.0",
		"info":    map[string]any{"title": serviceName, "version": version},
		"paths":   paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"bearer": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
		"security": []map[string]any{{"bearer": []string{}}},
	}
}

// ServeHandler returns an HTTP handler that serves the built OpenAPI JSON.
func (r *Registry) ServeHandler(serviceName, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(r.Build(serviceName, version))
	}
}
