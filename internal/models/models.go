package models

import "time"

// Signal is a wink: a timestamped, geolocated claim of having noticed someone.
type Signal struct {
	ID                string
	OwnerUserID       string
	Latitude          float64
	Longitude         float64
	RadiusMeters      float64
	CreatedAt         time.Time
	TimeOffsetMinutes int
	ExpiresAt         time.Time
}

// EffectiveTime is the moment the sighting happened: CreatedAt shifted by the
// (non-positive) offset the owner reported.
func (s Signal) EffectiveTime() time.Time {
	return s.CreatedAt.Add(time.Duration(s.TimeOffsetMinutes) * time.Minute)
}

// IsActive reports whether the signal can still take part in a match at now.
func (s Signal) IsActive(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// Match is a confirmed connection between two distinct users. UserA always
// sorts before UserB.
type Match struct {
	ID             string
	UserA          string
	UserB          string
	SourceSignalID string
	CreatedAt      time.Time
}

// OtherUser returns the counterpart of userID in the match.
func (m Match) OtherUser(userID string) (string, bool) {
	switch userID {
	case m.UserA:
		return m.UserB, true
	case m.UserB:
		return m.UserA, true
	}
	return "", false
}

// UserPair is a canonicalized unordered pair of user identifiers.
type UserPair struct {
	UserA string
	UserB string
}

// CanonicalPair orders two user identifiers so the smaller comes first.
func CanonicalPair(u1, u2 string) UserPair {
	if u2 < u1 {
		u1, u2 = u2, u1
	}
	return UserPair{UserA: u1, UserB: u2}
}
