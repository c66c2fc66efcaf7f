// Package hubapi is the HTTP boundary in front of the dispatch runtime:
// request parsing, response envelopes and error mapping. No business logic
// lives here.
package hubapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"hublink/internal/catalog"
	"hublink/internal/connections"
	"hublink/internal/dispatch"
	"hublink/pkg/config"
	"hublink/pkg/middleware"
	"hublink/pkg/openapi"
)

type Server struct {
	log        *zap.SugaredLogger
	registry   *catalog.Registry
	dispatcher *dispatch.Dispatcher
	store      connections.Store
}

func NewServer(log *zap.SugaredLogger, reg *catalog.Registry, d *dispatch.Dispatcher, store connections.Store) *Server {
	return &Server{log: log, registry: reg, dispatcher: d, store: store}
}

// Handler assembles the router with the full middleware chain.
func (s *Server) Handler(cfg config.Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(s.log))
	r.Use(cors())
	r.Use(middleware.Tracing())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/.well-known/openapi.json", s.serveOpenAPI)

	r.Group(func(pr chi.Router) {
		pr.Use(middleware.WithUser(cfg))
		pr.Route("/v1", func(vr chi.Router) {
			vr.Get("/integrations", s.listIntegrations)
			vr.Get("/integrations/{id}", s.getIntegration)
			vr.Post("/integrations/{id}/connect", s.connect)
			vr.Post("/integrations/{id}/execute", s.execute)
			vr.Delete("/integrations/{id}/connection", s.disconnect)
			vr.Get("/connections", s.listConnections)
		})
	})
	return r
}

func (s *Server) serveOpenAPI(w http.ResponseWriter, _ *http.Request) {
	doc := openapi.NewRegistry()
	for _, desc := range s.registry.List() {
		for _, ep := range desc.Endpoints {
			doc.Register(openapi.Operation{
				Method:  ep.Method,
				Path:    "/v1/integrations/" + desc.ID + "/execute#" + ep.ID,
				Summary: ep.Summary,
				Tags:    []string{desc.ID},
				Scopes:  ep.Scopes,
				Responses: map[string]any{
					"200": map[string]any{"description": "OK"},
				},
			})
		}
	}
	doc.ServeHandler("hublink", "v1")(w, nil)
}

func cors() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-User-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
