package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Device is a push registration for a rider's phone. At most one row exists
// per token value; re-registering a token moves it to its latest owner.
type Device struct {
	Token     string    `json:"token" db:"token"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type DeviceRepository interface {
	Upsert(ctx context.Context, token string, userID uuid.UUID) error
	// ListActiveVerified returns active tokens whose owners are verified
	// riders.
	ListActiveVerified(ctx context.Context) ([]Device, error)
	Deactivate(ctx context.Context, token string) error
}

type postgresDeviceRepository struct {
	db *pgxpool.Pool
}

func NewDeviceRepository(db *pgxpool.Pool) DeviceRepository {
	return &postgresDeviceRepository{db: db}
}

func (r *postgresDeviceRepository) Upsert(ctx context.Context, token string, userID uuid.UUID) error {
	query := `
		INSERT INTO rider_devices (token, user_id, is_active, updated_at)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id, is_active = TRUE, updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.Exec(ctx, query, token, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("repository: failed to upsert device token: %w", err)
	}
	return nil
}

func (r *postgresDeviceRepository) ListActiveVerified(ctx context.Context) ([]Device, error) {
	query := `
		SELECT d.token, d.user_id, d.is_active, d.updated_at
		FROM rider_devices d
		JOIN riders r ON r.user_id = d.user_id
		WHERE d.is_active = TRUE AND r.verified = TRUE
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query active devices: %w", err)
	}
	defer rows.Close()

	devices := make([]Device, 0)
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.Token, &d.UserID, &d.IsActive, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating devices: %w", err)
	}

	return devices, nil
}

func (r *postgresDeviceRepository) Deactivate(ctx context.Context, token string) error {
	query := `UPDATE rider_devices SET is_active = FALSE, updated_at = $1 WHERE token = $2`
	if _, err := r.db.Exec(ctx, query, time.Now().UTC(), token); err != nil {
		return fmt.Errorf("repository: failed to deactivate device token: %w", err)
	}
	return nil
}
