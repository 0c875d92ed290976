package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/winkmatch/backend/internal/db"
	"github.com/winkmatch/backend/internal/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidTextRepr     = "22P02"
)

// PostgresSignalRepository provides PostgreSQL-backed persistence for winks.
type PostgresSignalRepository struct {
	pool db.Pool
}

// NewPostgresSignalRepository constructs a signal repository backed by PostgreSQL.
func NewPostgresSignalRepository(pool db.Pool) *PostgresSignalRepository {
	return &PostgresSignalRepository{pool: pool}
}

// Insert persists a new wink.
func (r *PostgresSignalRepository) Insert(ctx context.Context, signal models.Signal) (models.Signal, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Signal{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO winks (id, user_id, lat, lng, radius, time_offset, created_at, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, signal.ID, signal.OwnerUserID, signal.Latitude, signal.Longitude, signal.RadiusMeters,
		signal.TimeOffsetMinutes, signal.CreatedAt.UTC(), signal.ExpiresAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return models.Signal{}, ErrConflict
		}
		return models.Signal{}, fmt.Errorf("insert wink: %w", err)
	}

	return signal, nil
}

// Get fetches a wink by id.
func (r *PostgresSignalRepository) Get(ctx context.Context, id string) (models.Signal, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Signal{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, user_id, lat, lng, radius, time_offset, created_at, expires_at
        FROM winks
        WHERE id = $1
    `, id)

	signal, err := scanSignal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return models.Signal{}, ErrNotFound
		}
		return models.Signal{}, fmt.Errorf("select wink: %w", err)
	}

	return signal, nil
}

// ListActive returns winks whose expiry lies after now, oldest first.
func (r *PostgresSignalRepository) ListActive(ctx context.Context, now time.Time) ([]models.Signal, error) {
	return r.list(ctx, "active winks", `
        SELECT id, user_id, lat, lng, radius, time_offset, created_at, expires_at
        FROM winks
        WHERE expires_at > $1
        ORDER BY created_at ASC, id ASC
    `, now.UTC())
}

// ListForUser returns a user's winks, newest first.
func (r *PostgresSignalRepository) ListForUser(ctx context.Context, userID string) ([]models.Signal, error) {
	return r.list(ctx, "user winks", `
        SELECT id, user_id, lat, lng, radius, time_offset, created_at, expires_at
        FROM winks
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT 200
    `, userID)
}

func (r *PostgresSignalRepository) list(ctx context.Context, what, query string, args ...any) ([]models.Signal, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", what, err)
	}
	defer rows.Close()

	var signals []models.Signal
	for rows.Next() {
		signal, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		signals = append(signals, signal)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}

	return signals, nil
}

// Expire moves expires_at of the given winks to now. Rows already expired at
// now keep their earlier expiry so it never moves forward.
func (r *PostgresSignalRepository) Expire(ctx context.Context, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        UPDATE winks
        SET expires_at = $2
        WHERE id = ANY($1::UUID[]) AND expires_at > $2
    `, ids, now.UTC())
	if err != nil {
		return fmt.Errorf("expire winks: %w", err)
	}

	return nil
}

// Delete removes a wink owned by ownerID. Winks referenced by a match are kept.
func (r *PostgresSignalRepository) Delete(ctx context.Context, id, ownerID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM winks
        WHERE id = $1 AND user_id = $2
    `, id, ownerID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgForeignKeyViolation:
				return ErrConflict
			case pgInvalidTextRepr:
				return ErrNotFound
			}
		}
		return fmt.Errorf("delete wink: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// PostgresMatchRepository provides PostgreSQL-backed persistence for matches.
type PostgresMatchRepository struct {
	pool db.Pool
}

// NewPostgresMatchRepository constructs a match repository backed by PostgreSQL.
func NewPostgresMatchRepository(pool db.Pool) *PostgresMatchRepository {
	return &PostgresMatchRepository{pool: pool}
}

// Insert stores a match unless the user pair already has one, in which case it
// returns ErrConflict. The (user_a, user_b) unique constraint is the arbiter
// between concurrent creators.
func (r *PostgresMatchRepository) Insert(ctx context.Context, match models.Match) (models.Match, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Match{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	source := sql.NullString{String: match.SourceSignalID, Valid: match.SourceSignalID != ""}
	row := conn.QueryRow(ctx, `
        INSERT INTO matches (id, user_a, user_b, wink_id, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user_a, user_b) DO NOTHING
        RETURNING id, user_a, user_b, wink_id, created_at
    `, match.ID, match.UserA, match.UserB, source, match.CreatedAt.UTC())

	stored, err := scanMatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Match{}, ErrConflict
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation:
				return models.Match{}, ErrConflict
			case pgForeignKeyViolation:
				return models.Match{}, ErrNotFound
			}
		}
		return models.Match{}, fmt.Errorf("insert match: %w", err)
	}

	return stored, nil
}

// FindByPair fetches the match between two users given in either order.
func (r *PostgresMatchRepository) FindByPair(ctx context.Context, userA, userB string) (models.Match, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Match{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	pair := models.CanonicalPair(userA, userB)
	row := conn.QueryRow(ctx, `
        SELECT id, user_a, user_b, wink_id, created_at
        FROM matches
        WHERE user_a = $1 AND user_b = $2
    `, pair.UserA, pair.UserB)

	match, err := scanMatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Match{}, ErrNotFound
		}
		return models.Match{}, fmt.Errorf("select match by pair: %w", err)
	}

	return match, nil
}

// ListPairs returns every matched user pair.
func (r *PostgresMatchRepository) ListPairs(ctx context.Context) ([]models.UserPair, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT user_a, user_b FROM matches`)
	if err != nil {
		return nil, fmt.Errorf("query matched pairs: %w", err)
	}
	defer rows.Close()

	var pairs []models.UserPair
	for rows.Next() {
		var pair models.UserPair
		if err := rows.Scan(&pair.UserA, &pair.UserB); err != nil {
			return nil, fmt.Errorf("scan matched pair: %w", err)
		}
		pairs = append(pairs, pair)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matched pairs: %w", err)
	}

	return pairs, nil
}

// ListForUser returns matches involving userID, newest first.
func (r *PostgresMatchRepository) ListForUser(ctx context.Context, userID string) ([]models.Match, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, user_a, user_b, wink_id, created_at
        FROM matches
        WHERE user_a = $1 OR user_b = $1
        ORDER BY created_at DESC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query user matches: %w", err)
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user match: %w", err)
		}
		matches = append(matches, match)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user matches: %w", err)
	}

	return matches, nil
}

func scanSignal(row pgx.Row) (models.Signal, error) {
	var signal models.Signal
	if err := row.Scan(&signal.ID, &signal.OwnerUserID, &signal.Latitude, &signal.Longitude, &signal.RadiusMeters,
		&signal.TimeOffsetMinutes, &signal.CreatedAt, &signal.ExpiresAt); err != nil {
		return models.Signal{}, err
	}
	signal.CreatedAt = signal.CreatedAt.UTC()
	signal.ExpiresAt = signal.ExpiresAt.UTC()
	return signal, nil
}

func scanMatch(row pgx.Row) (models.Match, error) {
	var (
		match  models.Match
		source sql.NullString
	)
	if err := row.Scan(&match.ID, &match.UserA, &match.UserB, &source, &match.CreatedAt); err != nil {
		return models.Match{}, err
	}
	if source.Valid {
		match.SourceSignalID = source.String
	}
	match.CreatedAt = match.CreatedAt.UTC()
	return match, nil
}

func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgInvalidTextRepr
}

var _ SignalRepository = (*PostgresSignalRepository)(nil)
var _ MatchRepository = (*PostgresMatchRepository)(nil)
