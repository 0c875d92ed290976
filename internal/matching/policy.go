package matching

import (
	"math"
	"time"

	"github.com/winkmatch/backend/internal/geo"
	"github.com/winkmatch/backend/internal/models"
)

const (
	// DefaultMaxTimeDelta bounds the gap between two effective times.
	DefaultMaxTimeDelta = 10 * time.Minute
	// DefaultDebugRadiusMeters bounds which candidates appear in check diagnostics.
	DefaultDebugRadiusMeters = 2000.0
)

// Policy holds the tunable thresholds of the compatibility predicate.
type Policy struct {
	MaxTimeDelta      time.Duration
	DebugRadiusMeters float64
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MaxTimeDelta:      DefaultMaxTimeDelta,
		DebugRadiusMeters: DefaultDebugRadiusMeters,
	}
}

// Evaluation is the full outcome of comparing two signals.
type Evaluation struct {
	DistanceMeters  float64
	MaxRadiusMeters float64
	TimeDelta       time.Duration
	SpatialPass     bool
	TemporalPass    bool
}

// Compatible reports whether both tests passed.
func (e Evaluation) Compatible() bool {
	return e.SpatialPass && e.TemporalPass
}

// Evaluate runs both tests on a and b without short-circuiting. Owners are not
// compared.
func Evaluate(a, b models.Signal, policy Policy) Evaluation {
	distance := distanceBetween(a, b)
	maxRadius := math.Min(a.RadiusMeters, b.RadiusMeters)
	delta := timeDelta(a, b)

	return Evaluation{
		DistanceMeters:  distance,
		MaxRadiusMeters: maxRadius,
		TimeDelta:       delta,
		SpatialPass:     distance <= maxRadius,
		TemporalPass:    delta <= policy.MaxTimeDelta,
	}
}

// IsCompatible reports whether two signals from different owners describe the
// same encounter: the distance is within the tighter radius and the effective
// times are within policy.MaxTimeDelta. Both bounds are inclusive.
func IsCompatible(a, b models.Signal, policy Policy) bool {
	if a.OwnerUserID == b.OwnerUserID {
		return false
	}
	if distanceBetween(a, b) > math.Min(a.RadiusMeters, b.RadiusMeters) {
		return false
	}
	return timeDelta(a, b) <= policy.MaxTimeDelta
}

func distanceBetween(a, b models.Signal) float64 {
	return geo.DistanceMeters(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

func timeDelta(a, b models.Signal) time.Duration {
	delta := a.EffectiveTime().Sub(b.EffectiveTime())
	if delta < 0 {
		delta = -delta
	}
	return delta
}
