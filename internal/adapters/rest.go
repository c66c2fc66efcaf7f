// Package adapters provides the vendor clients behind the capability
// contract. Most vendors are served by the generic descriptor-driven REST
// adapter; vendors with non-standard auth get thin specializations.
package adapters

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	jmes "github.com/jmespath/go-jmespath"

	"hublink/internal/catalog"
)

const maxResponseBytes = 4 << 20

// restAdapter executes descriptor endpoints against the bound base URL.
type restAdapter struct {
	desc   catalog.Descriptor
	creds  map[string]string
	base   string
	client *http.Client
}

// NewREST is the factory wired behind manifest-loaded and most builtin
// descriptors.
func NewREST(cfg catalog.AdapterConfig) (catalog.Adapter, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = strings.TrimRight(cfg.Descriptor.BaseURL, "/")
	}
	if base == "" {
		return nil, fmt.Errorf("adapter %s: no base url", cfg.Descriptor.ID)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &restAdapter{desc: cfg.Descriptor, creds: cfg.Credentials, base: base, client: client}, nil
}

func (a *restAdapter) Name() string { return a.desc.ID }

func (a *restAdapter) Execute(ctx context.Context, action string, params map[string]any) (catalog.Result, error) {
	ep, ok := a.desc.Endpoint(action)
	if !ok {
		return catalog.Result{}, fmt.Errorf("adapter %s: unknown action %q", a.desc.ID, action)
	}

	path, remaining, err := SubstitutePath(ep.Path, params)
	if err != nil {
		return catalog.Result{}, err
	}

	method := strings.ToUpper(ep.Method)
	var body io.Reader
	q := url.Values{}
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete:
		for k, v := range remaining {
			q.Set(k, fmt.Sprintf("%v", v))
		}
	default:
		if len(remaining) > 0 {
			b, err := json.Marshal(remaining)
			if err != nil {
				return catalog.Result{}, err
			}
			body = bytes.NewReader(b)
		}
	}

	full := a.base + path
	req, err := http.NewRequestWithContext(ctx, method, full, body)
	if err != nil {
		return catalog.Result{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	a.authorize(req, q)
	if len(q) > 0 {
		req.URL.RawQuery = q.Encode()
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return catalog.Result{}, &catalog.VendorError{Integration: a.desc.ID, Action: action, Err: err}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return catalog.Result{}, &catalog.VendorError{
			Integration: a.desc.ID,
			Action:      action,
			Status:      resp.StatusCode,
			Body:        string(raw),
		}
	}

	var data any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			data = string(raw)
		}
	}
	if ep.ResultPath != "" && data != nil {
		if extracted, err := jmes.Search(ep.ResultPath, data); err == nil && extracted != nil {
			data = extracted
		}
	}
	return catalog.Result{Status: resp.StatusCode, Data: data}, nil
}

// authorize injects credentials per the descriptor's declared auth shape.
func (a *restAdapter) authorize(req *http.Request, q url.Values) {
	key, secret := a.creds["apiKey"], a.creds["apiSecret"]
	switch a.desc.Authentication.Type {
	case catalog.AuthBearer:
		if key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
	case catalog.AuthBasic:
		if key != "" {
			cred := base64.StdEncoding.EncodeToString([]byte(key + ":" + secret))
			req.Header.Set("Authorization", "Basic "+cred)
		}
	case catalog.AuthAPIKey:
		if key == "" {
			return
		}
		if p := a.desc.Authentication.Query; p != "" {
			q.Set(p, key)
			return
		}
		header := a.desc.Authentication.Header
		if header == "" {
			header = "X-Api-Key"
		}
		req.Header.Set(header, key)
	}
}

// SubstitutePath fills {param} placeholders by exact key match and returns
// the resolved path plus the params that were not consumed by the template.
func SubstitutePath(template string, params map[string]any) (string, map[string]any, error) {
	remaining := make(map[string]any, len(params))
	for k, v := range params {
		remaining[k] = v
	}
	var b strings.Builder
	rest := template
	for {
		i := strings.Index(rest, "{")
		if i < 0 {
			b.WriteString(rest)
			break
		}
		j := strings.Index(rest[i:], "}")
		if j < 0 {
			return "", nil, fmt.Errorf("unterminated placeholder in path %q", template)
		}
		name := rest[i+1 : i+j]
		v, ok := remaining[name]
		if !ok {
			return "", nil, fmt.Errorf("missing path parameter %q", name)
		}
		b.WriteString(rest[:i])
		b.WriteString(url.PathEscape(fmt.Sprintf("%v", v)))
		delete(remaining, name)
		rest = rest[i+j+1:]
	}
	return b.String(), remaining, nil
}
