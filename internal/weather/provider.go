package weather

import (
	"context"
	"errors"
)

// ErrCityNotFound is returned when the weather service does not know the location
var ErrCityNotFound = errors.New("city not found")

// ContentProvider produces the text body of a notification for a location
type ContentProvider interface {
	// Fetch returns a human-readable weather summary.
	// The result is plain text; callers escape it for their markup.
	Fetch(ctx context.Context, location string) (string, error)
}

// ForecastProvider produces a multi-day outlook for a location
type ForecastProvider interface {
	FetchForecast(ctx context.Context, location string) (string, error)
}
