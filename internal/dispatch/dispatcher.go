// Package dispatch orchestrates the hub's two entry points: connecting an
// integration (probe, encrypt, persist) and executing an action against a
// connected or inline-credentialed integration.
package dispatch

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"hublink/internal/catalog"
	"hublink/internal/connections"
	"hublink/internal/guard"
	"hublink/internal/metrics"
	"hublink/internal/probe"
	"hublink/internal/vault"
	"hublink/pkg/middleware"
)

// Options bound every outbound call the dispatcher makes.
type Options struct {
	ExecuteTimeout time.Duration
	Retries        int
	RetryDelay     time.Duration
}

func (o Options) withDefaults() Options {
	if o.ExecuteTimeout <= 0 {
		o.ExecuteTimeout = 30 * time.Second
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 250 * time.Millisecond
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	return o
}

// Dispatcher is stateless per call; all state lives in the store. Safe for
// concurrent use.
type Dispatcher struct {
	log      *zap.SugaredLogger
	registry *catalog.Registry
	vault    *vault.Vault
	prober   *probe.Prober
	store    connections.Store
	guard    *guard.Guard
	client   *http.Client
	opts     Options

	// pool is optional; when present, usage events are recorded best-effort.
	pool *pgxpool.Pool
}

func New(log *zap.SugaredLogger, reg *catalog.Registry, v *vault.Vault, p *probe.Prober,
	store connections.Store, g *guard.Guard, client *http.Client, pool *pgxpool.Pool, opts Options) *Dispatcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Dispatcher{
		log:      log,
		registry: reg,
		vault:    v,
		prober:   p,
		store:    store,
		guard:    g,
		client:   client,
		pool:     pool,
		opts:     opts.withDefaults(),
	}
}

// ConnectReceipt is returned to the caller after a successful connect.
type ConnectReceipt struct {
	IntegrationID string
	DisplayName   string
	ConnectedAt   time.Time
	Warning       string
}

// Connect validates, probes, encrypts and persists a credential bundle.
// The plaintext bundle is never stored or logged; a reconnect replaces the
// previous record.
func (d *Dispatcher) Connect(ctx context.Context, userID, integrationID string, bundle map[string]string) (ConnectReceipt, error) {
	if strings.TrimSpace(integrationID) == "" {
		return ConnectReceipt{}, &ValidationError{Field: "integrationId", Reason: "required"}
	}
	if bundle["apiKey"] == "" {
		return ConnectReceipt{}, &ValidationError{Field: "credentials.apiKey", Reason: "required"}
	}
	_, desc, ok := d.registry.Get(integrationID)
	if !ok {
		return ConnectReceipt{}, ErrIntegrationNotFound
	}

	res := d.prober.Probe(ctx, desc, bundle)
	switch {
	case !res.OK:
		metrics.ProbeOutcomes.WithLabelValues(desc.ID, "rejected").Inc()
		metrics.ConnectsTotal.WithLabelValues(desc.ID, "probe_rejected").Inc()
		return ConnectReceipt{}, &ProbeError{Integration: desc.ID, Status: res.Status}
	case res.Warning != "":
		metrics.ProbeOutcomes.WithLabelValues(desc.ID, "ok_degraded").Inc()
		d.log.Warnw("probe degraded, accepting optimistically", "integration", desc.ID, "warning", res.Warning)
	default:
		metrics.ProbeOutcomes.WithLabelValues(desc.ID, "ok").Inc()
	}

	enc, err := d.vault.Encrypt(bundle)
	if err != nil {
		metrics.ConnectsTotal.WithLabelValues(desc.ID, "error").Inc()
		return ConnectReceipt{}, err
	}

	now := time.Now().UTC()
	conn := connections.Connection{
		IntegrationID: desc.ID,
		Credential:    enc,
		Status:        connections.StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
		Metadata: connections.Metadata{
			BaseURL:      resolveBaseURL(desc, bundle),
			WorkspaceID:  bundle["workspaceId"],
			Scopes:       desc.Authentication.Scopes,
			ProbeWarning: res.Warning,
		},
	}
	if prev, err := d.store.Get(ctx, userID, desc.ID); err == nil {
		conn.CreatedAt = prev.CreatedAt
	}
	if err := d.store.Save(ctx, userID, conn); err != nil {
		metrics.ConnectsTotal.WithLabelValues(desc.ID, "error").Inc()
		return ConnectReceipt{}, err
	}
	metrics.ConnectsTotal.WithLabelValues(desc.ID, "success").Inc()
	d.log.Infow("integration connected", "user", userID, "integration", desc.ID, "degraded", res.Warning != "")
	return ConnectReceipt{
		IntegrationID: desc.ID,
		DisplayName:   desc.DisplayName,
		ConnectedAt:   conn.UpdatedAt,
		Warning:       res.Warning,
	}, nil
}

// Disconnect removes the stored connection.
func (d *Dispatcher) Disconnect(ctx context.Context, userID, integrationID string) error {
	if _, _, ok := d.registry.Get(integrationID); !ok {
		return ErrIntegrationNotFound
	}
	err := d.store.Delete(ctx, userID, integrationID)
	if errors.Is(err, connections.ErrNotFound) {
		return ErrNotConnected
	}
	return err
}

// Outcome of an execute call.
type Outcome struct {
	IntegrationID string
	Action        string
	Result        catalog.Result
}

// Execute resolves the adapter and credentials, then invokes the action
// under the configured timeout with bounded retries. Inline credentials win
// over the stored connection, enabling one-shot calls without persistence.
func (d *Dispatcher) Execute(ctx context.Context, userID, integrationID, action string, params map[string]any, inline map[string]string) (Outcome, error) {
	if strings.TrimSpace(integrationID) == "" {
		return Outcome{}, &ValidationError{Field: "integrationId", Reason: "required"}
	}
	if strings.TrimSpace(action) == "" {
		return Outcome{}, &ValidationError{Field: "action", Reason: "required"}
	}
	factory, desc, ok := d.registry.Get(integrationID)
	if !ok {
		return Outcome{}, ErrIntegrationNotFound
	}
	ep, ok := desc.Endpoint(action)
	if !ok {
		return Outcome{}, ErrEndpointNotFound
	}

	creds := inline
	baseURL := desc.BaseURL
	if creds == nil {
		conn, err := d.store.Get(ctx, userID, desc.ID)
		if errors.Is(err, connections.ErrNotFound) {
			return Outcome{}, ErrNotConnected
		}
		if err != nil {
			return Outcome{}, err
		}
		if conn.Status != connections.StatusActive {
			return Outcome{}, ErrNotConnected
		}
		creds, err = d.vault.Decrypt(conn.Credential)
		if err != nil {
			return Outcome{}, err
		}
		if conn.Metadata.BaseURL != "" {
			baseURL = conn.Metadata.BaseURL
		}
	} else if creds["baseUrl"] != "" {
		baseURL = creds["baseUrl"]
	}

	if allowed, err := d.guard.Allow(ctx, guard.Input{
		UserID:      userID,
		Integration: desc.ID,
		Action:      action,
		Params:      params,
	}); err != nil {
		return Outcome{}, err
	} else if !allowed {
		return Outcome{}, ErrPolicyDenied
	}

	adapter, err := factory(catalog.AdapterConfig{
		Descriptor:  desc,
		Credentials: creds,
		BaseURL:     baseURL,
		HTTPClient:  d.client,
	})
	if err != nil {
		return Outcome{}, err
	}

	start := time.Now()
	result, err := d.invoke(ctx, adapter, ep, action, params)
	dur := time.Since(start)
	metrics.VendorCallDuration.WithLabelValues(desc.ID).Observe(dur.Seconds())

	outcome := "success"
	status := 0
	if err != nil {
		outcome = "error"
		var ve *catalog.VendorError
		if errors.As(err, &ve) {
			status = ve.Status
		}
	} else {
		status = result.Status
	}
	metrics.ExecutesTotal.WithLabelValues(desc.ID, action, outcome).Inc()
	d.recordUsage(ctx, userID, desc.ID, action, status, err == nil, start, dur)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{IntegrationID: desc.ID, Action: action, Result: result}, nil
}

// invoke runs the adapter call with the execute timeout and retries
// transient vendor failures. Retries apply only to endpoints marked
// idempotent (or naturally safe methods); everything else gets exactly one
// attempt.
func (d *Dispatcher) invoke(ctx context.Context, adapter catalog.Adapter, ep catalog.Endpoint, action string, params map[string]any) (catalog.Result, error) {
	attempts := 1
	if ep.Retryable() {
		attempts += d.opts.Retries
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return catalog.Result{}, ctx.Err()
			case <-time.After(d.opts.RetryDelay):
			}
			d.log.Debugw("retrying vendor call", "integration", adapter.Name(), "action", action, "attempt", i+1)
		}
		callCtx, cancel := context.WithTimeout(ctx, d.opts.ExecuteTimeout)
		res, err := adapter.Execute(callCtx, action, params)
		cancel()
		if err == nil {
			return res, nil
		}
		lastErr = err
		var ve *catalog.VendorError
		if !errors.As(err, &ve) || !ve.Transient() {
			return catalog.Result{}, err
		}
		if ctx.Err() != nil {
			return catalog.Result{}, ctx.Err()
		}
	}
	return catalog.Result{}, lastErr
}

// recordUsage appends an audit row when postgres is configured. Best effort;
// failures are logged, never surfaced.
func (d *Dispatcher) recordUsage(ctx context.Context, userID, integrationID, action string, status int, ok bool, start time.Time, dur time.Duration) {
	if d.pool == nil {
		return
	}
	reqID := middleware.RequestIDFrom(ctx)
	if _, err := d.pool.Exec(ctx, `
		INSERT INTO usage_events(user_id, integration_id, action_id, status_code, ok, request_id, duration_ms, started_at, finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, userID, integrationID, action, status, ok, reqID, int(dur.Milliseconds()), start.UTC(), time.Now().UTC()); err != nil {
		d.log.Warnw("usage event insert failed", "err", err)
	}
}

func resolveBaseURL(desc catalog.Descriptor, bundle map[string]string) string {
	if v := strings.TrimSpace(bundle["baseUrl"]); v != "" {
		return strings.TrimRight(v, "/")
	}
	return ""
}
