package hubapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"hublink/internal/adapters"
	"hublink/internal/catalog"
	"hublink/internal/connections"
	"hublink/internal/dispatch"
	"hublink/internal/probe"
	"hublink/internal/vault"
	"hublink/pkg/config"
	"hublink/pkg/problems"
)

// newTestAPI wires a full hub server against one fake vendor and returns the
// hub's base URL.
func newTestAPI(t *testing.T, vendor http.HandlerFunc) string {
	t.Helper()

	vsrv := httptest.NewServer(vendor)
	t.Cleanup(vsrv.Close)

	log := zap.NewNop().Sugar()
	reg := catalog.NewRegistry(log)
	desc := catalog.Descriptor{
		ID:             "acme",
		DisplayName:    "Acme CRM",
		BaseURL:        vsrv.URL,
		Authentication: catalog.Authentication{Type: catalog.AuthBearer},
		Endpoints: []catalog.Endpoint{
			{ID: "listContacts", Method: "GET", Path: "/contacts", Summary: "List contacts"},
			{ID: "createContact", Method: "POST", Path: "/contacts"},
		},
	}
	if err := reg.Register(desc, adapters.NewREST); err != nil {
		t.Fatal(err)
	}

	v, err := vault.New("api-test-key")
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{}
	store := connections.NewMemory()
	d := dispatch.New(log, reg, v, probe.New(client, time.Second), store, nil, client, nil,
		dispatch.Options{Retries: 0})

	srv := httptest.NewServer(NewServer(log, reg, d, store).Handler(config.Config{}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func doJSON(t *testing.T, method, url, user string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func connectBody(apiKey string) map[string]any {
	return map[string]any{"credentials": map[string]string{"apiKey": apiKey}}
}

func TestConnectEnvelope(t *testing.T) {
	t.Parallel()

	base := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	code, body := doJSON(t, "POST", base+"/v1/integrations/acme/connect", "u1", connectBody("secret"))
	if code != http.StatusOK {
		t.Fatalf("status = %d, body = %v", code, body)
	}
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	if body["message"] != "Connected to Acme CRM" {
		t.Errorf("message = %v", body["message"])
	}
	integ, ok := body["integration"].(map[string]any)
	if !ok {
		t.Fatalf("integration = %#v", body["integration"])
	}
	if integ["id"] != "acme" || integ["name"] != "Acme CRM" || integ["connected"] != true {
		t.Errorf("integration = %#v", integ)
	}
	if _, err := time.Parse(time.RFC3339, integ["connectedAt"].(string)); err != nil {
		t.Errorf("connectedAt: %v", err)
	}
}

func TestConnectUnknownIntegration(t *testing.T) {
	t.Parallel()

	base := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {})
	code, body := doJSON(t, "POST", base+"/v1/integrations/ghost/connect", "u1", connectBody("k"))
	if code != http.StatusNotFound {
		t.Fatalf("status = %d", code)
	}
	if body["success"] != false {
		t.Errorf("success = %v", body["success"])
	}
	if body["error"] != problems.Type(problems.NotFound) {
		t.Errorf("error = %v", body["error"])
	}
}

func TestConnectValidation(t *testing.T) {
	t.Parallel()

	base := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {})
	code, body := doJSON(t, "POST", base+"/v1/integrations/acme/connect", "u1",
		map[string]any{"credentials": map[string]string{}})
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d", code)
	}
	if body["error"] != problems.Type(problems.Validation) {
		t.Errorf("error = %v", body["error"])
	}
}

func TestConnectProbeRejectedEnvelope(t *testing.T) {
	t.Parallel()

	base := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	code, body := doJSON(t, "POST", base+"/v1/integrations/acme/connect", "u1", connectBody("bad"))
	if code != http.StatusBadGateway {
		t.Fatalf("status = %d, body = %v", code, body)
	}
	if body["error"] != problems.Type(problems.ProbeRejected) {
		t.Errorf("error = %v", body["error"])
	}
}

func TestExecuteRequiresConnection(t *testing.T) {
	t.Parallel()

	base := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {})
	code, body := doJSON(t, "POST", base+"/v1/integrations/acme/execute", "u1",
		map[string]any{"endpointId": "listContacts"})
	if code != http.StatusUnauthorized {
		t.Fatalf("status = %d, body = %v", code, body)
	}
	if body["error"] != problems.Type(problems.NotConnected) {
		t.Errorf("error = %v", body["error"])
	}
}

func TestExecuteEnvelope(t *testing.T) {
	t.Parallel()

	base := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/contacts" {
			w.Write([]byte(`{"contacts":[{"name":"Ada"}]}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	if code, body := doJSON(t, "POST", base+"/v1/integrations/acme/connect", "u1", connectBody("k")); code != http.StatusOK {
		t.Fatalf("connect: %d %v", code, body)
	}
	code, body := doJSON(t, "POST", base+"/v1/integrations/acme/execute", "u1",
		map[string]any{"endpointId": "listContacts"})
	if code != http.StatusOK {
		t.Fatalf("status = %d, body = %v", code, body)
	}
	if body["success"] != true || body["integration"] != "acme" || body["endpoint"] != "listContacts" {
		t.Errorf("envelope = %v", body)
	}
	result, ok := body["result"].(map[string]any)
	if !ok {
		t.Fatalf("result = %#v", body["result"])
	}
	if result["status"] != float64(http.StatusOK) {
		t.Errorf("result.status = %v", result["status"])
	}
	data, _ := result["data"].(map[string]any)
	if _, ok := data["contacts"]; !ok {
		t.Errorf("result.data = %#v", result["data"])
	}
}

func TestExecuteUnknownEndpoint(t *testing.T) {
	t.Parallel()

	base := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {})
	code, body := doJSON(t, "POST", base+"/v1/integrations/acme/execute", "u1",
		map[string]any{"endpointId": "nosuch"})
	if code != http.StatusNotFound {
		t.Fatalf("status = %d", code)
	}
	if body["error"] != problems.Type(problems.NoEndpoint) {
		t.Errorf("error = %v", body["error"])
	}
}

func TestExecuteVendorErrorEnvelope(t *testing.T) {
	t.Parallel()

	base := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/contacts" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	if code, body := doJSON(t, "POST", base+"/v1/integrations/acme/connect", "u1", connectBody("k")); code != http.StatusOK {
		t.Fatalf("connect: %d %v", code, body)
	}
	code, body := doJSON(t, "POST", base+"/v1/integrations/acme/execute", "u1",
		map[string]any{"endpointId": "createContact", "params": map[string]any{"name": "Ada"}})
	if code != http.StatusBadGateway {
		t.Fatalf("status = %d, body = %v", code, body)
	}
	if body["error"] != problems.Type(problems.VendorCall) {
		t.Errorf("error = %v", body["error"])
	}
	vendor, ok := body["vendor"].(map[string]any)
	if !ok {
		t.Fatalf("vendor = %#v", body["vendor"])
	}
	if vendor["status"] != float64(http.StatusInternalServerError) {
		t.Errorf("vendor.status = %v", vendor["status"])
	}
}

func TestMissingIdentity(t *testing.T) {
	t.Parallel()

	base := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {})
	code, _ := doJSON(t, "GET", base+"/v1/integrations", "", nil)
	if code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without identity", code)
	}
}

func TestListIntegrationsConnectedFlag(t *testing.T) {
	t.Parallel()

	base := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {})

	list := func(user string) []map[string]any {
		code, body := doJSON(t, "GET", base+"/v1/integrations", user, nil)
		if code != http.StatusOK {
			t.Fatalf("status = %d", code)
		}
		raw, _ := body["integrations"].([]any)
		out := make([]map[string]any, 0, len(raw))
		for _, it := range raw {
			out = append(out, it.(map[string]any))
		}
		return out
	}

	before := list("u1")
	if len(before) != 1 || before[0]["connected"] != false {
		t.Fatalf("before connect: %#v", before)
	}
	if code, body := doJSON(t, "POST", base+"/v1/integrations/acme/connect", "u1", connectBody("k")); code != http.StatusOK {
		t.Fatalf("connect: %d %v", code, body)
	}
	after := list("u1")
	if after[0]["connected"] != true {
		t.Errorf("after connect: %#v", after)
	}
	// The flag is per user.
	other := list("u2")
	if other[0]["connected"] != false {
		t.Errorf("other user sees connection: %#v", other)
	}
}

func TestDisconnectFlow(t *testing.T) {
	t.Parallel()

	base := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {})

	if code, body := doJSON(t, "POST", base+"/v1/integrations/acme/connect", "u1", connectBody("k")); code != http.StatusOK {
		t.Fatalf("connect: %d %v", code, body)
	}
	code, body := doJSON(t, "DELETE", base+"/v1/integrations/acme/connection", "u1", nil)
	if code != http.StatusOK {
		t.Fatalf("disconnect: %d %v", code, body)
	}
	code, body = doJSON(t, "POST", base+"/v1/integrations/acme/execute", "u1",
		map[string]any{"endpointId": "listContacts"})
	if code != http.StatusUnauthorized {
		t.Errorf("execute after disconnect: %d %v", code, body)
	}
}

func TestListConnectionsOmitsCredentials(t *testing.T) {
	t.Parallel()

	base := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {})
	secret := "super-secret-value"
	if code, body := doJSON(t, "POST", base+"/v1/integrations/acme/connect", "u1", connectBody(secret)); code != http.StatusOK {
		t.Fatalf("connect: %d %v", code, body)
	}

	req, _ := http.NewRequest("GET", base+"/v1/connections", nil)
	req.Header.Set("X-User-ID", "u1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if bytes.Contains(buf.Bytes(), []byte(secret)) {
		t.Error("plaintext credential leaked into the connections listing")
	}
	var body map[string]any
	if err := json.Unmarshal(buf.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	conns, _ := body["connections"].([]any)
	if len(conns) != 1 {
		t.Fatalf("connections = %#v", body["connections"])
	}
	c := conns[0].(map[string]any)
	if c["integrationId"] != "acme" || c["status"] != "active" {
		t.Errorf("connection = %#v", c)
	}
}

func TestHealthAndOpenAPIUnauthenticated(t *testing.T) {
	t.Parallel()

	base := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {})
	for _, path := range []string{"/healthz", "/metrics", "/.well-known/openapi.json"} {
		resp, err := http.Get(base + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status = %d", path, resp.StatusCode)
		}
	}
}
