package matching

import (
	"math"
	"testing"
	"time"

	"github.com/winkmatch/backend/internal/geo"
	"github.com/winkmatch/backend/internal/models"
)

func TestIsCompatibleBoundariesAreInclusive(t *testing.T) {
	base := newSignal("a", "u1", londonLat, londonLng, 100, 0, testNow)
	policy := DefaultPolicy()

	t.Run("time delta exactly at the limit", func(t *testing.T) {
		other := newSignal("b", "u2", londonLat, londonLng, 100, -10, testNow)
		if !IsCompatible(base, other, policy) {
			t.Fatal("expected a ten minute delta to pass")
		}
		other.TimeOffsetMinutes = -11
		if IsCompatible(base, other, policy) {
			t.Fatal("expected an eleven minute delta to fail")
		}
	})

	t.Run("distance exactly at the radius", func(t *testing.T) {
		lat := north(250)
		d := geo.DistanceMeters(londonLat, londonLng, lat, londonLng)

		a := newSignal("a", "u1", londonLat, londonLng, d, 0, testNow)
		b := newSignal("b", "u2", lat, londonLng, 1000, 0, testNow)
		if !IsCompatible(a, b, policy) {
			t.Fatalf("expected distance %v to pass with equal radius", d)
		}
		a.RadiusMeters = math.Nextafter(d, 0)
		if IsCompatible(a, b, policy) {
			t.Fatal("expected distance just beyond the radius to fail")
		}
	})
}

func TestEvaluateUsesSmallerRadius(t *testing.T) {
	a := newSignal("a", "u1", londonLat, londonLng, 300, 0, testNow)
	b := newSignal("b", "u2", north(200), londonLng, 150, 0, testNow)

	eval := Evaluate(a, b, DefaultPolicy())
	if eval.MaxRadiusMeters != 150 {
		t.Fatalf("expected governing radius 150, got %v", eval.MaxRadiusMeters)
	}
	if eval.SpatialPass || !eval.TemporalPass || eval.Compatible() {
		t.Fatalf("unexpected evaluation: %+v", eval)
	}
}

func TestIsCompatibleIsSymmetric(t *testing.T) {
	signals := []models.Signal{
		newSignal("a", "u1", londonLat, londonLng, 100, 0, testNow),
		newSignal("b", "u2", 51.5075, -0.1277, 5, -3, testNow.Add(-2*time.Minute)),
		newSignal("c", "u3", north(80), londonLng, 200, -9, testNow),
		newSignal("d", "u4", 48.8566, 2.3522, 5000, 0, testNow),
		newSignal("e", "u1", londonLat, londonLng, 100, -1, testNow),
	}
	policy := DefaultPolicy()

	for _, a := range signals {
		for _, b := range signals {
			if IsCompatible(a, b, policy) != IsCompatible(b, a, policy) {
				t.Fatalf("compatibility of %s and %s is not symmetric", a.ID, b.ID)
			}
			ab, ba := Evaluate(a, b, policy), Evaluate(b, a, policy)
			if ab.TimeDelta != ba.TimeDelta || ab.MaxRadiusMeters != ba.MaxRadiusMeters {
				t.Fatalf("evaluation of %s and %s is not symmetric: %+v vs %+v", a.ID, b.ID, ab, ba)
			}
		}
	}
}

func TestIsCompatibleRejectsSameOwner(t *testing.T) {
	a := newSignal("a", "u1", londonLat, londonLng, 100, 0, testNow)
	b := newSignal("b", "u1", londonLat, londonLng, 100, 0, testNow)
	if IsCompatible(a, b, DefaultPolicy()) {
		t.Fatal("a user can never be compatible with themselves")
	}
}

func TestPolicyOverride(t *testing.T) {
	a := newSignal("a", "u1", londonLat, londonLng, 100, 0, testNow)
	b := newSignal("b", "u2", londonLat, londonLng, 100, -20, testNow)

	wide := DefaultPolicy()
	wide.MaxTimeDelta = 30 * time.Minute
	if !IsCompatible(a, b, wide) {
		t.Fatal("expected a wider window to accept a twenty minute delta")
	}
	if IsCompatible(a, b, DefaultPolicy()) {
		t.Fatal("expected the default window to reject a twenty minute delta")
	}
}
