package adapters

import (
	"hublink/internal/catalog"
)

// Builtins returns the integrations compiled into the hub. Manifest
// directories can extend or override these at startup (last registration
// wins in the registry).
func Builtins() []struct {
	Descriptor catalog.Descriptor
	Factory    catalog.Factory
} {
	type b = struct {
		Descriptor catalog.Descriptor
		Factory    catalog.Factory
	}
	return []b{
		{Descriptor: weatherstackDescriptor, Factory: NewWeatherstack},
		{
			Descriptor: catalog.Descriptor{
				ID:          "httpbin",
				DisplayName: "HTTPBin",
				BaseURL:     "https://httpbin.org",
				Authentication: catalog.Authentication{
					Type: catalog.AuthBearer,
				},
				ProbePath: "/bearer",
				Endpoints: []catalog.Endpoint{
					{ID: "get", Method: "GET", Path: "/get", Summary: "Echo query parameters"},
					{ID: "post", Method: "POST", Path: "/post", Summary: "Echo posted payload"},
					{ID: "status", Method: "GET", Path: "/status/{code}", Summary: "Return the given status"},
				},
			},
			Factory: NewREST,
		},
		{
			Descriptor: catalog.Descriptor{
				ID:          "opencage",
				DisplayName: "OpenCage Geocoding",
				BaseURL:     "https://api.opencagedata.com",
				Authentication: catalog.Authentication{
					Type:  catalog.AuthAPIKey,
					Query: "key",
				},
				Endpoints: []catalog.Endpoint{
					{ID: "geocode", Method: "GET", Path: "/geocode/v1/json", Summary: "Forward/reverse geocode", ResultPath: "results"},
				},
			},
			Factory: NewREST,
		},
	}
}

// RegisterBuiltins seeds a registry with the compiled-in catalog.
func RegisterBuiltins(reg *catalog.Registry) error {
	for _, b := range Builtins() {
		if err := reg.Register(b.Descriptor, b.Factory); err != nil {
			return err
		}
	}
	return nil
}
