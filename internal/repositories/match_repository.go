package repositories

import (
	"context"

	"github.com/winkmatch/backend/internal/models"
)

// MatchRepository defines data access for matches. Insert is create-if-absent:
// a second match for the same user pair yields ErrConflict.
type MatchRepository interface {
	Insert(ctx context.Context, match models.Match) (models.Match, error)
	FindByPair(ctx context.Context, userA, userB string) (models.Match, error)
	ListPairs(ctx context.Context) ([]models.UserPair, error)
	ListForUser(ctx context.Context, userID string) ([]models.Match, error)
}
