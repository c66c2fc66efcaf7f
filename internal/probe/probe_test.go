package probe

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hublink/internal/catalog"
)

func descriptorFor(baseURL string) catalog.Descriptor {
	return catalog.Descriptor{
		ID:             "vendor",
		DisplayName:    "Vendor",
		BaseURL:        baseURL,
		Authentication: catalog.Authentication{Type: catalog.AuthBearer},
	}
}

func TestProbeHeuristic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		wantOK      bool
		wantWarning bool
	}{
		{name: "200 accepted", status: http.StatusOK, wantOK: true},
		{name: "204 accepted", status: http.StatusNoContent, wantOK: true},
		{name: "401 reachable auth challenge", status: http.StatusUnauthorized, wantOK: true},
		{name: "403 rejected", status: http.StatusForbidden, wantOK: false},
		{name: "404 rejected", status: http.StatusNotFound, wantOK: false},
		{name: "500 rejected", status: http.StatusInternalServerError, wantOK: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			p := New(srv.Client(), time.Second)
			res := p.Probe(context.Background(), descriptorFor(srv.URL), map[string]string{"apiKey": "k"})
			if res.OK != tt.wantOK {
				t.Errorf("OK = %v, want %v", res.OK, tt.wantOK)
			}
			if (res.Warning != "") != tt.wantWarning {
				t.Errorf("Warning = %q, want present=%v", res.Warning, tt.wantWarning)
			}
			if res.Status != tt.status {
				t.Errorf("Status = %d, want %d", res.Status, tt.status)
			}
		})
	}
}

func TestProbeUnreachableIsOptimistic(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	p := New(&http.Client{}, time.Second)
	res := p.Probe(context.Background(), descriptorFor(srv.URL), map[string]string{"apiKey": "k"})
	if !res.OK {
		t.Error("unreachable vendor must not fail the probe")
	}
	if res.Warning == "" {
		t.Error("degraded acceptance must carry a warning")
	}
}

func TestProbeAuthSelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		bundle map[string]string
		want   string
	}{
		{name: "bearer for apiKey only", bundle: map[string]string{"apiKey": "k1"}, want: "Bearer k1"},
		{
			name:   "basic for key and secret",
			bundle: map[string]string{"apiKey": "k1", "apiSecret": "s1"},
			want:   "Basic " + base64.StdEncoding.EncodeToString([]byte("k1:s1")),
		},
		{name: "no auth without apiKey", bundle: map[string]string{}, want: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get("Authorization")
			}))
			defer srv.Close()

			p := New(srv.Client(), time.Second)
			p.Probe(context.Background(), descriptorFor(srv.URL), tt.bundle)
			if got != tt.want {
				t.Errorf("Authorization = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProbeUsesDescriptorProbePath(t *testing.T) {
	t.Parallel()

	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
	}))
	defer srv.Close()

	desc := descriptorFor(srv.URL)
	desc.ProbePath = "/v2/whoami"
	p := New(srv.Client(), time.Second)
	p.Probe(context.Background(), desc, map[string]string{"apiKey": "k"})
	if path != "/v2/whoami" {
		t.Errorf("probed %q, want /v2/whoami", path)
	}
}

func TestProbeBaseURLOverride(t *testing.T) {
	t.Parallel()

	var hit bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	defer srv.Close()

	desc := descriptorFor("http://vendor.invalid")
	p := New(srv.Client(), time.Second)
	res := p.Probe(context.Background(), desc, map[string]string{"apiKey": "k", "baseUrl": srv.URL})
	if !hit {
		t.Fatal("override base url was not used")
	}
	if !res.OK {
		t.Errorf("probe failed: %+v", res)
	}
}
