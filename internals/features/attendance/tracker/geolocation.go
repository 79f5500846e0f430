package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

type GeoErrorCode int

const (
	GeoPermissionDenied    GeoErrorCode = 1
	GeoPositionUnavailable GeoErrorCode = 2
	GeoTimeout             GeoErrorCode = 3
)

type GeoError struct {
	Code    GeoErrorCode
	Message string
}

func (e *GeoError) Error() string {
	return fmt.Sprintf("geolocation error %d: %s", e.Code, e.Message)
}

type Position struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
	Timestamp time.Time
}

func (p Position) Valid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

type PositionOptions struct {
	EnableHighAccuracy bool
	MaximumAge         time.Duration
	Timeout            time.Duration
}

// Geolocator yields the device position or a *GeoError.
type Geolocator interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error)
}

func isPermissionDenied(err error) bool {
	var ge *GeoError
	return errors.As(err, &ge) && ge.Code == GeoPermissionDenied
}
