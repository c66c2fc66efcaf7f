package adapters

import (
	"hublink/internal/catalog"
)

// Weatherstack authenticates with an access_key query parameter on every
// call, which the generic api-key query routing already covers; the vendor
// keeps its own factory so the descriptor and client stay in one place.
var weatherstackDescriptor = catalog.Descriptor{
	ID:          "weatherstack",
	DisplayName: "Weatherstack",
	BaseURL:     "https://api.weatherstack.com",
	Authentication: catalog.Authentication{
		Type:  catalog.AuthAPIKey,
		Query: "access_key",
	},
	// The API has no who-am-i endpoint; current with no query returns a 4xx
	// vendor error body on a reachable host, so the conventional candidates
	// are left in place for the probe.
	Endpoints: []catalog.Endpoint{
		{ID: "getCurrentWeather", Method: "GET", Path: "/current", Summary: "Current weather for a location"},
		{ID: "getHistoricalWeather", Method: "GET", Path: "/historical", Summary: "Historical weather for a date"},
		{ID: "getForecast", Method: "GET", Path: "/forecast", Summary: "Weather forecast"},
	},
}

func NewWeatherstack(cfg catalog.AdapterConfig) (catalog.Adapter, error) {
	if cfg.Descriptor.ID == "" {
		cfg.Descriptor = weatherstackDescriptor
	}
	return NewREST(cfg)
}
