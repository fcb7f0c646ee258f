// Package geo resolves client IP addresses to coarse locations for
// session metadata.
//
// Lookups are advisory: every failure path (timeout, transport error,
// malformed response) yields the Unknown location instead of an error,
// so a slow or broken geolocation dependency can never block or fail
// authentication. The Redis cache decorator keeps successful lookups
// warm and shares them across instances; Unknown results are never
// cached, so a transient outage does not poison the cache.
package geo
