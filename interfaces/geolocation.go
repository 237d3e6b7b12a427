package interfaces

import "context"

// GeoLocator resolves a client IP to coordinates. Lookup is an in-process
// database read, so it takes no context and must be cheap enough to sit on
// the hot ingestion path.
type GeoLocator interface {
	Lookup(ip string) (lat float64, lng float64, err error)
}

// GeoDatabaseRefresher downloads a fresh city database and swaps it into
// the live locator.
type GeoDatabaseRefresher interface {
	Refresh(ctx context.Context) error
}
