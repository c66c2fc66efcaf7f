// Package probe performs the best-effort reachability/auth check run before
// a credential bundle is persisted.
package probe

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hublink/internal/catalog"
)

// defaultPaths are conventional who-am-i endpoints tried in order when the
// descriptor does not declare its own probe path.
var defaultPaths = []string{"/me", "/user", "/"}

// Result of a probe. OK with a non-empty Warning means the optimistic policy
// applied: the vendor was unreachable, the credentials were accepted anyway,
// and the warning travels with the stored connection metadata.
type Result struct {
	OK      bool
	Status  int
	Warning string
}

type Prober struct {
	client  *http.Client
	timeout time.Duration
}

func New(client *http.Client, timeout time.Duration) *Prober {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Prober{client: client, timeout: timeout}
}

// Probe issues an authenticated GET against the descriptor's probe path or
// the conventional candidates. The heuristic: a 2xx or a 401 proves the host
// is real (401 means the endpoint exists and challenged us), so the bundle
// is accepted; any other HTTP status rejects it. Network-level failures on
// every candidate do not reject: many vendor APIs have no universal health
// endpoint, so unreachability degrades to acceptance with a warning rather
// than blocking a possibly valid credential.
func (p *Prober) Probe(ctx context.Context, desc catalog.Descriptor, bundle map[string]string) Result {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	paths := defaultPaths
	if desc.ProbePath != "" {
		paths = []string{desc.ProbePath}
	}
	base := strings.TrimRight(desc.BaseURL, "/")
	if override := bundle["baseUrl"]; override != "" {
		base = strings.TrimRight(override, "/")
	}

	var lastErr error
	for _, path := range paths {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
		if err != nil {
			lastErr = err
			continue
		}
		authorize(req, bundle)
		resp, err := p.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return Result{OK: true, Status: resp.StatusCode}
		case resp.StatusCode == http.StatusUnauthorized:
			// Endpoint exists and issued an auth challenge: reachable.
			return Result{OK: true, Status: resp.StatusCode}
		default:
			return Result{OK: false, Status: resp.StatusCode}
		}
	}
	return Result{OK: true, Warning: fmt.Sprintf("endpoint unreachable during validation: %v", lastErr)}
}

// authorize picks the auth scheme from the bundle shape: Basic when both
// apiKey and apiSecret are present, Bearer when only apiKey.
func authorize(req *http.Request, bundle map[string]string) {
	key, secret := bundle["apiKey"], bundle["apiSecret"]
	switch {
	case key != "" && secret != "":
		cred := base64.StdEncoding.EncodeToString([]byte(key + ":" + secret))
		req.Header.Set("Authorization", "Basic "+cred)
	case key != "":
		req.Header.Set("Authorization", "Bearer "+key)
	}
}
