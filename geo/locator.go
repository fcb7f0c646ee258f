package geo

import "context"

// Location is a coarse geolocation result for a client IP.
type Location struct {
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	Region      string `json:"regionName"`
	City        string `json:"city"`
}

// Unknown is the fail-open sentinel returned when a lookup cannot be
// completed.
var Unknown = Location{Country: "Unknown", CountryCode: "??"}

// IsUnknown reports whether l is the fail-open sentinel.
func (l Location) IsUnknown() bool {
	return l.CountryCode == Unknown.CountryCode || l.CountryCode == ""
}

// Locator resolves an IP address to a location. Implementations never
// return an error for lookup failures; they return Unknown.
type Locator interface {
	Lookup(ctx context.Context, ip string) Location
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func(ctx context.Context, ip string) Location

// Lookup calls f.
func (f LocatorFunc) Lookup(ctx context.Context, ip string) Location {
	return f(ctx, ip)
}
