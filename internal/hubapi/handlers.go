package hubapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"hublink/internal/catalog"
	"hublink/internal/dispatch"
	"hublink/internal/vault"
	"hublink/pkg/middleware"
	"hublink/pkg/problems"
)

const maxBodyBytes = 1 << 20

type connectRequest struct {
	Credentials map[string]string `json:"credentials"`
}

type executeRequest struct {
	EndpointID  string            `json:"endpointId"`
	Action      string            `json:"action"`
	Params      map[string]any    `json:"params"`
	Credentials map[string]string `json:"credentials"`
}

func (s *Server) listIntegrations(w http.ResponseWriter, r *http.Request) {
	descs := s.registry.List()
	connected := map[string]bool{}
	if uid := middleware.UserFrom(r.Context()); uid != "" {
		if conns, err := s.store.List(r.Context(), uid); err == nil {
			for _, c := range conns {
				connected[c.IntegrationID] = true
			}
		}
	}
	out := make([]map[string]any, 0, len(descs))
	for _, d := range descs {
		out = append(out, descriptorView(d, connected[d.ID]))
	}
	writeJSON(w, map[string]any{"success": true, "integrations": out}, http.StatusOK)
}

func (s *Server) getIntegration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, desc, ok := s.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, problems.NotFound, "unknown integration "+id)
		return
	}
	writeJSON(w, map[string]any{"success": true, "integration": descriptorView(desc, false)}, http.StatusOK)
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req connectRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, problems.Validation, "invalid JSON body")
		return
	}
	receipt, err := s.dispatcher.Connect(r.Context(), middleware.UserFrom(r.Context()), id, req.Credentials)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	resp := map[string]any{
		"success": true,
		"message": "Connected to " + receipt.DisplayName,
		"integration": map[string]any{
			"id":          receipt.IntegrationID,
			"name":        receipt.DisplayName,
			"connected":   true,
			"connectedAt": receipt.ConnectedAt.Format(time.RFC3339),
		},
	}
	if receipt.Warning != "" {
		resp["warning"] = receipt.Warning
	}
	writeJSON(w, resp, http.StatusOK)
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req executeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, problems.Validation, "invalid JSON body")
		return
	}
	action := req.EndpointID
	if action == "" {
		action = req.Action
	}
	outcome, err := s.dispatcher.Execute(r.Context(), middleware.UserFrom(r.Context()), id, action, req.Params, req.Credentials)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"success":     true,
		"integration": outcome.IntegrationID,
		"endpoint":    outcome.Action,
		"result": map[string]any{
			"status": outcome.Result.Status,
			"data":   outcome.Result.Data,
		},
	}, http.StatusOK)
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.dispatcher.Disconnect(r.Context(), middleware.UserFrom(r.Context()), id); err != nil {
		s.writeDispatchError(w, err)
		return
	}
	writeJSON(w, map[string]any{"success": true, "message": "Disconnected from " + id}, http.StatusOK)
}

func (s *Server) listConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := s.store.List(r.Context(), middleware.UserFrom(r.Context()))
	if err != nil {
		s.log.Errorw("list connections", "err", err)
		writeError(w, http.StatusInternalServerError, problems.Internal, "")
		return
	}
	out := make([]map[string]any, 0, len(conns))
	for _, c := range conns {
		// Encrypted credential material stays server-side.
		out = append(out, map[string]any{
			"integrationId": c.IntegrationID,
			"status":        c.Status,
			"connectedAt":   c.UpdatedAt.Format(time.RFC3339),
			"metadata": map[string]any{
				"workspaceId":  c.Metadata.WorkspaceID,
				"scopes":       c.Metadata.Scopes,
				"probeWarning": c.Metadata.ProbeWarning,
			},
		})
	}
	writeJSON(w, map[string]any{"success": true, "connections": out}, http.StatusOK)
}

// writeDispatchError maps the dispatch taxonomy onto the error envelope.
func (s *Server) writeDispatchError(w http.ResponseWriter, err error) {
	var (
		verr  *dispatch.ValidationError
		perr  *dispatch.ProbeError
		vcerr *catalog.VendorError
	)
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, problems.Validation, verr.Error())
	case errors.Is(err, dispatch.ErrIntegrationNotFound):
		writeError(w, http.StatusNotFound, problems.NotFound, err.Error())
	case errors.Is(err, dispatch.ErrEndpointNotFound):
		writeError(w, http.StatusNotFound, problems.NoEndpoint, err.Error())
	case errors.Is(err, dispatch.ErrNotConnected):
		writeError(w, http.StatusUnauthorized, problems.NotConnected, "connect the integration before executing actions")
	case errors.Is(err, dispatch.ErrPolicyDenied):
		writeError(w, http.StatusForbidden, problems.PolicyDenied, err.Error())
	case errors.As(err, &perr):
		writeError(w, http.StatusBadGateway, problems.ProbeRejected, perr.Error())
	case errors.Is(err, vault.ErrDecryption):
		s.log.Errorw("stored credential undecryptable", "err", err)
		writeError(w, http.StatusInternalServerError, problems.Decryption, "stored credentials could not be decrypted; reconnect the integration")
	case errors.As(err, &vcerr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   problems.Type(problems.VendorCall),
			"message": vcerr.Error(),
			"vendor": map[string]any{
				"status": vcerr.Status,
				"body":   vcerr.Body,
			},
		})
	default:
		s.log.Errorw("dispatch failed", "err", err)
		writeError(w, http.StatusInternalServerError, problems.Internal, "")
	}
}

func descriptorView(d catalog.Descriptor, connected bool) map[string]any {
	eps := make([]map[string]any, 0, len(d.Endpoints))
	for _, e := range d.Endpoints {
		eps = append(eps, map[string]any{
			"id":      e.ID,
			"method":  e.Method,
			"path":    e.Path,
			"summary": e.Summary,
		})
	}
	return map[string]any{
		"id":        d.ID,
		"name":      d.DisplayName,
		"baseUrl":   d.BaseURL,
		"auth":      d.Authentication.Type,
		"connected": connected,
		"endpoints": eps,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, slug, message string) {
	body := map[string]any{"success": false, "error": problems.Type(slug)}
	if message != "" {
		body["message"] = message
	}
	writeJSON(w, body, status)
}
