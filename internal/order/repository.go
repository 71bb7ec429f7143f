package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrAlreadyClaimed is returned when another rider won the claim race.
	ErrAlreadyClaimed = errors.New("order already claimed")
	// ErrInvalidTransition is returned when the order is not in a status the
	// requested transition is allowed from.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrForbidden is returned when the caller is not the rider the order is
	// claimed by (or otherwise lacks ownership of the order).
	ErrForbidden = errors.New("caller is not allowed to act on this order")
)

const orderColumns = `id, customer_id, product_id, quantity, total_price, status, claimed_by, delivery_address, is_delivered, claimed_at, delivered_at, created_at`

// Repository is the durable store boundary for orders. Claim and the
// transition methods are atomic conditional updates: the status check and the
// mutation happen in a single statement (or transaction), never as a separate
// read followed by an unguarded write.
type Repository interface {
	Create(ctx context.Context, o *Order) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListOpen(ctx context.Context) ([]Order, error)
	ListClaimedBy(ctx context.Context, riderID uuid.UUID) ([]Order, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error)
	// CustomerPhone resolves the ordering customer's phone number.
	CustomerPhone(ctx context.Context, orderID uuid.UUID) (string, error)
	Claim(ctx context.Context, orderID, riderID uuid.UUID) error
	MarkPickedUp(ctx context.Context, orderID, riderID uuid.UUID) error
	MarkDelivered(ctx context.Context, orderID, riderID uuid.UUID) error
	Cancel(ctx context.Context, orderID uuid.UUID) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, o *Order) (uuid.UUID, error) {
	if o.ID == uuid.Nil {
		genID, err := uuid.NewV4()
		if err != nil {
			return uuid.Nil, fmt.Errorf("repository: failed to generate order ID: %w", err)
		}
		o.ID = genID
	}
	o.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO orders (id, customer_id, product_id, quantity, total_price, status, delivery_address, is_delivered, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		o.ID,
		o.CustomerID,
		o.ProductID,
		o.Quantity,
		o.TotalPrice,
		string(o.Status),
		o.DeliveryAddress,
		o.IsDelivered,
		o.CreatedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("repository: failed to insert order: %w", err)
	}

	return o.ID, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", id, err)
	}

	return o, nil
}

func (r *postgresRepository) ListOpen(ctx context.Context) ([]Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1 AND claimed_by IS NULL
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, string(StatusPending))
}

func (r *postgresRepository) ListClaimedBy(ctx context.Context, riderID uuid.UUID) ([]Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE claimed_by = $1 AND status <> $2
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, riderID, string(StatusDelivered))
}

func (r *postgresRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, customerID)
}

func (r *postgresRepository) CustomerPhone(ctx context.Context, orderID uuid.UUID) (string, error) {
	query := `
		SELECT u.phone
		FROM orders o
		JOIN users u ON u.id = o.customer_id
		WHERE o.id = $1
	`

	var phone string
	err := r.db.QueryRow(ctx, query, orderID).Scan(&phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrOrderNotFound
		}
		return "", fmt.Errorf("repository: failed to select customer phone for order %s: %w", orderID, err)
	}

	return phone, nil
}

// Claim atomically assigns the order to the rider. The WHERE clause is the
// arbitration unit: of all concurrent attempts on the same pending order,
// exactly one UPDATE matches a row.
func (r *postgresRepository) Claim(ctx context.Context, orderID, riderID uuid.UUID) error {
	query := `
		UPDATE orders
		SET claimed_by = $1, claimed_at = $2, status = $3
		WHERE id = $4 AND status = $5 AND claimed_by IS NULL
	`

	cmdTag, err := r.db.Exec(ctx, query,
		riderID,
		time.Now().UTC(),
		string(StatusAssigned),
		orderID,
		string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("repository: failed to claim order %s: %w", orderID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return r.classifyClaimFailure(ctx, orderID)
	}

	return nil
}

func (r *postgresRepository) classifyClaimFailure(ctx context.Context, orderID uuid.UUID) error {
	o, err := r.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		return err
	}
	if o.ClaimedBy != nil {
		return ErrAlreadyClaimed
	}
	// Exists, unclaimed, but no longer pending (e.g. cancelled): for the
	// caller it is indistinguishable from the order never being open.
	return ErrOrderNotFound
}

func (r *postgresRepository) MarkPickedUp(ctx context.Context, orderID, riderID uuid.UUID) error {
	query := `
		UPDATE orders
		SET status = $1
		WHERE id = $2 AND claimed_by = $3 AND status = $4
	`

	cmdTag, err := r.db.Exec(ctx, query,
		string(StatusPickedUp),
		orderID,
		riderID,
		string(StatusAssigned),
	)
	if err != nil {
		return fmt.Errorf("repository: failed to mark order %s picked up: %w", orderID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return r.classifyTransitionFailure(ctx, orderID, riderID, StatusPickedUp)
	}

	return nil
}

// MarkDelivered completes the delivery: the status transition, delivered
// timestamp, delivered flag, and the rider's rating increment commit
// together or not at all.
func (r *postgresRepository) MarkDelivered(ctx context.Context, orderID, riderID uuid.UUID) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Stringer("order_id", orderID).Msg("repository: failed to rollback delivery transaction")
			}
		}
	}()

	now := time.Now().UTC()

	orderQuery := `
		UPDATE orders
		SET status = $1, is_delivered = TRUE, delivered_at = $2
		WHERE id = $3 AND claimed_by = $4 AND status = ANY($5)
	`
	cmdTag, err := tx.Exec(ctx, orderQuery,
		string(StatusDelivered),
		now,
		orderID,
		riderID,
		[]string{string(StatusAssigned), string(StatusPickedUp)},
	)
	if err != nil {
		return fmt.Errorf("repository: failed to mark order %s delivered: %w", orderID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		// Nothing was mutated; rollback is a no-op.
		return r.classifyTransitionFailure(ctx, orderID, riderID, StatusDelivered)
	}

	ratingQuery := `UPDATE riders SET rating = rating + 1, updated_at = $1 WHERE user_id = $2`
	if _, err = tx.Exec(ctx, ratingQuery, now, riderID); err != nil {
		return fmt.Errorf("repository: failed to increment rating for rider %s: %w", riderID, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit delivery transaction: %w", err)
	}

	return nil
}

// Cancel aborts the order and releases any claim on it, so a cancelled order
// never shows up in a rider's active list and a late claim attempt sees it as
// gone rather than taken.
func (r *postgresRepository) Cancel(ctx context.Context, orderID uuid.UUID) error {
	query := `
		UPDATE orders
		SET status = $1, claimed_by = NULL, claimed_at = NULL
		WHERE id = $2 AND status = ANY($3)
	`

	cmdTag, err := r.db.Exec(ctx, query,
		string(StatusCancelled),
		orderID,
		[]string{string(StatusPending), string(StatusAssigned)},
	)
	if err != nil {
		return fmt.Errorf("repository: failed to cancel order %s: %w", orderID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		o, getErr := r.GetByID(ctx, orderID)
		if getErr != nil {
			return getErr
		}
		log.Warn().Stringer("order_id", orderID).Stringer("status", o.Status).Msg("repository: cancel rejected by current status")
		return ErrInvalidTransition
	}

	return nil
}

// classifyTransitionFailure turns a zero-row conditional update into the
// error the caller should see. The re-read happens after the update already
// failed, so it only explains the refusal; it is not part of the guard.
func (r *postgresRepository) classifyTransitionFailure(ctx context.Context, orderID, riderID uuid.UUID, target OrderStatus) error {
	o, err := r.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if !o.ClaimedByRider(riderID) {
		return ErrForbidden
	}
	log.Warn().
		Stringer("order_id", orderID).
		Stringer("current_status", o.Status).
		Stringer("target_status", target).
		Msg("repository: transition rejected by current status")
	return ErrInvalidTransition
}

func (r *postgresRepository) list(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders: %w", err)
	}

	return orders, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID,
		&o.CustomerID,
		&o.ProductID,
		&o.Quantity,
		&o.TotalPrice,
		&o.Status,
		&o.ClaimedBy,
		&o.DeliveryAddress,
		&o.IsDelivered,
		&o.ClaimedAt,
		&o.DeliveredAt,
		&o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
