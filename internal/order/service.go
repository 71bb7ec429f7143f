package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tuuziane/marketplace/internal/product"
	"github.com/tuuziane/marketplace/internal/rider"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	// ErrRiderNotEligible is returned when the claiming rider is unverified,
	// unavailable, or has no rider profile at all.
	ErrRiderNotEligible = errors.New("rider is not eligible for dispatch")
)

// notifyTimeout bounds the detached notification dispatch; order creation
// itself never waits on it.
const notifyTimeout = 15 * time.Second

// Notifier is the outbound dispatch boundary. Implementations are
// best-effort: a returned error is logged and swallowed, never surfaced to
// the order creator.
type Notifier interface {
	OrderCreated(ctx context.Context, o *Order) error
}

// ProductCatalog supplies unit prices for order totals.
type ProductCatalog interface {
	GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error)
}

// RiderDirectory resolves rider profiles for claim eligibility checks.
type RiderDirectory interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*rider.Rider, error)
}

type CreateInput struct {
	CustomerID      uuid.UUID
	ProductID       uuid.UUID
	Quantity        int
	DeliveryAddress string
}

type Service interface {
	Create(ctx context.Context, input CreateInput) (*Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListOpen(ctx context.Context) ([]Order, error)
	ListClaimedBy(ctx context.Context, riderID uuid.UUID) ([]Order, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error)
	CustomerPhone(ctx context.Context, orderID, riderID uuid.UUID) (string, error)
	Claim(ctx context.Context, orderID, riderID uuid.UUID) error
	Advance(ctx context.Context, orderID, riderID uuid.UUID, target OrderStatus) error
	Cancel(ctx context.Context, orderID, requesterID uuid.UUID, admin bool) error
}

type service struct {
	repo     Repository
	catalog  ProductCatalog
	riders   RiderDirectory
	notifier Notifier
}

func NewService(repo Repository, catalog ProductCatalog, riders RiderDirectory, notifier Notifier) Service {
	return &service{
		repo:     repo,
		catalog:  catalog,
		riders:   riders,
		notifier: notifier,
	}
}

// Create validates the input, computes the immutable total from the catalog
// unit price, and stores the order as pending. Rider notification is
// dispatched on a detached context after the order is durable.
func (s *service) Create(ctx context.Context, input CreateInput) (*Order, error) {
	if input.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if input.DeliveryAddress == "" {
		return nil, errors.New("service: delivery address is required")
	}

	p, err := s.catalog.GetByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		log.Error().Err(err).Stringer("product_id", input.ProductID).Msg("service: failed to fetch product for order")
		return nil, fmt.Errorf("service: failed to fetch product: %w", err)
	}
	if !p.IsAvailable {
		return nil, ErrProductNotFound
	}

	o := &Order{
		CustomerID:      input.CustomerID,
		ProductID:       input.ProductID,
		Quantity:        input.Quantity,
		TotalPrice:      p.Price * float64(input.Quantity),
		Status:          StatusPending,
		DeliveryAddress: input.DeliveryAddress,
	}

	if _, err := s.repo.Create(ctx, o); err != nil {
		log.Error().Err(err).Msg("service: failed to create order in repository")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().Stringer("order_id", o.ID).Stringer("customer_id", o.CustomerID).Float64("total_price", o.TotalPrice).Msg("service: order created")

	s.dispatchNotification(o)

	return o, nil
}

// dispatchNotification is fire-and-forget: it runs on its own context so the
// gateway's latency or failure never reaches the order creator.
func (s *service) dispatchNotification(o *Order) {
	if s.notifier == nil {
		return
	}
	snapshot := *o
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.OrderCreated(ctx, &snapshot); err != nil {
			log.Warn().Err(err).Stringer("order_id", snapshot.ID).Msg("service: rider notification failed")
		}
	}()
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order by id")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}

	return o, nil
}

func (s *service) ListOpen(ctx context.Context) ([]Order, error) {
	orders, err := s.repo.ListOpen(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list open orders")
		return nil, fmt.Errorf("service: failed to list open orders: %w", err)
	}
	return orders, nil
}

func (s *service) ListClaimedBy(ctx context.Context, riderID uuid.UUID) ([]Order, error) {
	orders, err := s.repo.ListClaimedBy(ctx, riderID)
	if err != nil {
		log.Error().Err(err).Stringer("rider_id", riderID).Msg("service: failed to list claimed orders")
		return nil, fmt.Errorf("service: failed to list claimed orders: %w", err)
	}
	return orders, nil
}

func (s *service) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error) {
	orders, err := s.repo.ListByCustomer(ctx, customerID)
	if err != nil {
		log.Error().Err(err).Stringer("customer_id", customerID).Msg("service: failed to list customer orders")
		return nil, fmt.Errorf("service: failed to list customer orders: %w", err)
	}
	return orders, nil
}

// CustomerPhone hands the claiming rider the customer's contact number so
// they can coordinate the drop-off. Only the rider the order is claimed by
// may see it.
func (s *service) CustomerPhone(ctx context.Context, orderID, riderID uuid.UUID) (string, error) {
	o, err := s.GetByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if !o.ClaimedByRider(riderID) {
		return "", ErrForbidden
	}

	phone, err := s.repo.CustomerPhone(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return "", ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to fetch customer phone")
		return "", fmt.Errorf("service: failed to fetch customer phone: %w", err)
	}

	return phone, nil
}

// Claim checks rider eligibility, then delegates arbitration to the
// repository's atomic conditional update. A successful claim does not flip
// the rider's availability: a rider may hold several assigned orders at once
// and toggles availability explicitly.
func (s *service) Claim(ctx context.Context, orderID, riderID uuid.UUID) error {
	rd, err := s.riders.GetByUserID(ctx, riderID)
	if err != nil {
		if errors.Is(err, rider.ErrNotFound) {
			return ErrRiderNotEligible
		}
		log.Error().Err(err).Stringer("rider_id", riderID).Msg("service: failed to fetch rider for claim")
		return fmt.Errorf("service: failed to fetch rider: %w", err)
	}
	if !rd.Eligible() {
		log.Warn().Stringer("rider_id", riderID).Bool("verified", rd.Verified).Bool("available", rd.IsAvailable).Msg("service: ineligible rider attempted claim")
		return ErrRiderNotEligible
	}

	err = s.repo.Claim(ctx, orderID, riderID)
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrAlreadyClaimed):
			return err
		default:
			log.Error().Err(err).Stringer("order_id", orderID).Stringer("rider_id", riderID).Msg("service: claim failed")
			return fmt.Errorf("service: failed to claim order: %w", err)
		}
	}

	log.Info().Stringer("order_id", orderID).Stringer("rider_id", riderID).Msg("service: order claimed")
	return nil
}

// Advance moves a claimed order along the delivery lifecycle on behalf of
// the claiming rider.
func (s *service) Advance(ctx context.Context, orderID, riderID uuid.UUID, target OrderStatus) error {
	if !target.Valid() {
		return ErrInvalidTransition
	}

	var err error
	switch target {
	case StatusPickedUp:
		err = s.repo.MarkPickedUp(ctx, orderID, riderID)
	case StatusDelivered:
		err = s.repo.MarkDelivered(ctx, orderID, riderID)
	default:
		// Riders may not move orders to pending, assigned, or cancelled.
		return ErrInvalidTransition
	}

	if err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrForbidden), errors.Is(err, ErrInvalidTransition):
			return err
		default:
			log.Error().Err(err).Stringer("order_id", orderID).Stringer("target_status", target).Msg("service: advance failed")
			return fmt.Errorf("service: failed to advance order: %w", err)
		}
	}

	log.Info().Stringer("order_id", orderID).Stringer("rider_id", riderID).Stringer("status", target).Msg("service: order advanced")
	return nil
}

// Cancel aborts a pending or assigned order. Customers may cancel their own
// orders; admins may cancel any.
func (s *service) Cancel(ctx context.Context, orderID, requesterID uuid.UUID, admin bool) error {
	o, err := s.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if !admin && o.CustomerID != requesterID {
		return ErrForbidden
	}
	if !CanTransition(o.Status, StatusCancelled) {
		return ErrInvalidTransition
	}

	err = s.repo.Cancel(ctx, orderID)
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrInvalidTransition):
			return err
		default:
			log.Error().Err(err).Stringer("order_id", orderID).Msg("service: cancel failed")
			return fmt.Errorf("service: failed to cancel order: %w", err)
		}
	}

	log.Info().Stringer("order_id", orderID).Msg("service: order cancelled")
	return nil
}
