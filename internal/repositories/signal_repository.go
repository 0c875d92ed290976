package repositories

import (
	"context"
	"time"

	"github.com/winkmatch/backend/internal/models"
)

// SignalRepository defines data access for winks.
type SignalRepository interface {
	Insert(ctx context.Context, signal models.Signal) (models.Signal, error)
	Get(ctx context.Context, id string) (models.Signal, error)
	ListActive(ctx context.Context, now time.Time) ([]models.Signal, error)
	ListForUser(ctx context.Context, userID string) ([]models.Signal, error)
	Expire(ctx context.Context, ids []string, now time.Time) error
	Delete(ctx context.Context, id, ownerID string) error
}
