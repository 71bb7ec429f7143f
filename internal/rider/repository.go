package rider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gofrs/uuid"
)

var (
	ErrNotFound    = errors.New("rider not found")
	ErrPlateExists = errors.New("plate number already registered")
	// ErrReferenced is returned when deletion would orphan orders that still
	// reference the rider.
	ErrReferenced = errors.New("rider is referenced by existing orders")
)

type Repository interface {
	Create(ctx context.Context, r *Rider) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Rider, error)
	ListEligible(ctx context.Context) ([]Rider, error)
	UpdateLocation(ctx context.Context, userID uuid.UUID, lat, lon float64) error
	SetAvailability(ctx context.Context, userID uuid.UUID, available bool) error
	SetVerified(ctx context.Context, userID uuid.UUID, verified bool) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, rd *Rider) error {
	now := time.Now().UTC()
	rd.CreatedAt = now
	rd.UpdatedAt = now

	query := `
		INSERT INTO riders (user_id, plate_number, id_number, verified, is_available, latitude, longitude, rating, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		rd.UserID,
		rd.PlateNumber,
		rd.IDNumber,
		rd.Verified,
		rd.IsAvailable,
		rd.Latitude,
		rd.Longitude,
		rd.Rating,
		rd.CreatedAt,
		rd.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrPlateExists
		}
		return fmt.Errorf("repository: failed to insert rider %s: %w", rd.UserID, err)
	}

	return nil
}

func (r *postgresRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*Rider, error) {
	query := `
		SELECT user_id, plate_number, id_number, verified, is_available, latitude, longitude, rating, created_at, updated_at
		FROM riders
		WHERE user_id = $1
	`

	var rd Rider
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&rd.UserID,
		&rd.PlateNumber,
		&rd.IDNumber,
		&rd.Verified,
		&rd.IsAvailable,
		&rd.Latitude,
		&rd.Longitude,
		&rd.Rating,
		&rd.CreatedAt,
		&rd.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select rider by user id %s: %w", userID, err)
	}

	return &rd, nil
}

func (r *postgresRepository) ListEligible(ctx context.Context) ([]Rider, error) {
	query := `
		SELECT user_id, plate_number, id_number, verified, is_available, latitude, longitude, rating, created_at, updated_at
		FROM riders
		WHERE verified = TRUE AND is_available = TRUE
		ORDER BY created_at
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query eligible riders: %w", err)
	}
	defer rows.Close()

	riders := make([]Rider, 0)
	for rows.Next() {
		var rd Rider
		err := rows.Scan(
			&rd.UserID,
			&rd.PlateNumber,
			&rd.IDNumber,
			&rd.Verified,
			&rd.IsAvailable,
			&rd.Latitude,
			&rd.Longitude,
			&rd.Rating,
			&rd.CreatedAt,
			&rd.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan eligible rider: %w", err)
		}
		riders = append(riders, rd)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating eligible riders: %w", err)
	}

	return riders, nil
}

func (r *postgresRepository) UpdateLocation(ctx context.Context, userID uuid.UUID, lat, lon float64) error {
	query := `
		UPDATE riders
		SET latitude = $1, longitude = $2, updated_at = $3
		WHERE user_id = $4
	`

	cmdTag, err := r.db.Exec(ctx, query, lat, lon, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("repository: failed to update location for rider %s: %w", userID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *postgresRepository) SetAvailability(ctx context.Context, userID uuid.UUID, available bool) error {
	return r.setFlag(ctx, userID, "is_available", available)
}

func (r *postgresRepository) SetVerified(ctx context.Context, userID uuid.UUID, verified bool) error {
	return r.setFlag(ctx, userID, "verified", verified)
}

func (r *postgresRepository) setFlag(ctx context.Context, userID uuid.UUID, column string, value bool) error {
	query := fmt.Sprintf(`UPDATE riders SET %s = $1, updated_at = $2 WHERE user_id = $3`, column)

	cmdTag, err := r.db.Exec(ctx, query, value, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("repository: failed to set %s for rider %s: %w", column, userID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM riders WHERE user_id = $1`, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return ErrReferenced
		}
		return fmt.Errorf("repository: failed to delete rider %s: %w", userID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
