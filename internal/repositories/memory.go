package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/winkmatch/backend/internal/models"
)

// MemoryStore keeps signals and matches in process memory. It enforces the same
// constraints as the SQL schema and is safe for concurrent use. Useful for
// tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	signals map[string]models.Signal
	matches map[models.UserPair]models.Match
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		signals: make(map[string]models.Signal),
		matches: make(map[models.UserPair]models.Match),
	}
}

// Signals returns the signal repository view of the store.
func (s *MemoryStore) Signals() *MemorySignalRepository {
	return &MemorySignalRepository{store: s}
}

// Matches returns the match repository view of the store.
func (s *MemoryStore) Matches() *MemoryMatchRepository {
	return &MemoryMatchRepository{store: s}
}

// MemorySignalRepository implements SignalRepository over a MemoryStore.
type MemorySignalRepository struct {
	store *MemoryStore
}

// Insert stores a new signal.
func (r *MemorySignalRepository) Insert(_ context.Context, signal models.Signal) (models.Signal, error) {
	if signal.RadiusMeters <= 0 || signal.TimeOffsetMinutes > 0 {
		return models.Signal{}, fmt.Errorf("insert signal %s: constraint violated", signal.ID)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.signals[signal.ID]; ok {
		return models.Signal{}, ErrConflict
	}
	r.store.signals[signal.ID] = signal
	return signal, nil
}

// Get returns a signal by id.
func (r *MemorySignalRepository) Get(_ context.Context, id string) (models.Signal, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	signal, ok := r.store.signals[id]
	if !ok {
		return models.Signal{}, ErrNotFound
	}
	return signal, nil
}

// ListActive returns signals expiring after now, oldest first.
func (r *MemorySignalRepository) ListActive(_ context.Context, now time.Time) ([]models.Signal, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []models.Signal
	for _, signal := range r.store.signals {
		if signal.IsActive(now) {
			out = append(out, signal)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ListForUser returns a user's signals, newest first.
func (r *MemorySignalRepository) ListForUser(_ context.Context, userID string) ([]models.Signal, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []models.Signal
	for _, signal := range r.store.signals {
		if signal.OwnerUserID == userID {
			out = append(out, signal)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Expire moves the expiry of the given signals to now. Signals already expired
// at now are left untouched.
func (r *MemorySignalRepository) Expire(_ context.Context, ids []string, now time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, id := range ids {
		signal, ok := r.store.signals[id]
		if !ok || !signal.ExpiresAt.After(now) {
			continue
		}
		signal.ExpiresAt = now
		r.store.signals[id] = signal
	}
	return nil
}

// Delete removes a signal owned by ownerID unless a match references it.
func (r *MemorySignalRepository) Delete(_ context.Context, id, ownerID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	signal, ok := r.store.signals[id]
	if !ok || signal.OwnerUserID != ownerID {
		return ErrNotFound
	}
	for _, match := range r.store.matches {
		if match.SourceSignalID == id {
			return ErrConflict
		}
	}
	delete(r.store.signals, id)
	return nil
}

// MemoryMatchRepository implements MatchRepository over a MemoryStore.
type MemoryMatchRepository struct {
	store *MemoryStore
}

// Insert stores a match unless the pair already has one.
func (r *MemoryMatchRepository) Insert(_ context.Context, match models.Match) (models.Match, error) {
	if match.UserA >= match.UserB {
		return models.Match{}, fmt.Errorf("insert match %s: users must be distinct and ordered", match.ID)
	}
	pair := models.UserPair{UserA: match.UserA, UserB: match.UserB}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.matches[pair]; ok {
		return models.Match{}, ErrConflict
	}
	if match.SourceSignalID != "" {
		if _, ok := r.store.signals[match.SourceSignalID]; !ok {
			return models.Match{}, ErrNotFound
		}
	}
	r.store.matches[pair] = match
	return match, nil
}

// FindByPair returns the match between two users in either order.
func (r *MemoryMatchRepository) FindByPair(_ context.Context, userA, userB string) (models.Match, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	match, ok := r.store.matches[models.CanonicalPair(userA, userB)]
	if !ok {
		return models.Match{}, ErrNotFound
	}
	return match, nil
}

// ListPairs returns every matched pair.
func (r *MemoryMatchRepository) ListPairs(_ context.Context) ([]models.UserPair, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	pairs := make([]models.UserPair, 0, len(r.store.matches))
	for pair := range r.store.matches {
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// ListForUser returns matches involving userID, newest first.
func (r *MemoryMatchRepository) ListForUser(_ context.Context, userID string) ([]models.Match, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []models.Match
	for _, match := range r.store.matches {
		if match.UserA == userID || match.UserB == userID {
			out = append(out, match)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Len returns the number of stored matches.
func (r *MemoryMatchRepository) Len() int {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.matches)
}

var _ SignalRepository = (*MemorySignalRepository)(nil)
var _ MatchRepository = (*MemoryMatchRepository)(nil)
