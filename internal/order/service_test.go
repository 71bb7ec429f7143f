package order_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuuziane/marketplace/internal/order"
	"github.com/tuuziane/marketplace/internal/product"
	"github.com/tuuziane/marketplace/internal/rider"
)

type mockRepository struct {
	createFunc        func(ctx context.Context, o *order.Order) (uuid.UUID, error)
	getByIDFunc       func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	customerPhoneFunc func(ctx context.Context, orderID uuid.UUID) (string, error)
	claimFunc         func(ctx context.Context, orderID, riderID uuid.UUID) error
	markPickedUpFunc  func(ctx context.Context, orderID, riderID uuid.UUID) error
	markDeliveredFunc func(ctx context.Context, orderID, riderID uuid.UUID) error
	cancelFunc        func(ctx context.Context, orderID uuid.UUID) error
}

func (m *mockRepository) Create(ctx context.Context, o *order.Order) (uuid.UUID, error) {
	return m.createFunc(ctx, o)
}

func (m *mockRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockRepository) ListOpen(ctx context.Context) ([]order.Order, error) {
	return []order.Order{}, nil
}

func (m *mockRepository) ListClaimedBy(ctx context.Context, riderID uuid.UUID) ([]order.Order, error) {
	return []order.Order{}, nil
}

func (m *mockRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]order.Order, error) {
	return []order.Order{}, nil
}

func (m *mockRepository) CustomerPhone(ctx context.Context, orderID uuid.UUID) (string, error) {
	return m.customerPhoneFunc(ctx, orderID)
}

func (m *mockRepository) Claim(ctx context.Context, orderID, riderID uuid.UUID) error {
	return m.claimFunc(ctx, orderID, riderID)
}

func (m *mockRepository) MarkPickedUp(ctx context.Context, orderID, riderID uuid.UUID) error {
	return m.markPickedUpFunc(ctx, orderID, riderID)
}

func (m *mockRepository) MarkDelivered(ctx context.Context, orderID, riderID uuid.UUID) error {
	return m.markDeliveredFunc(ctx, orderID, riderID)
}

func (m *mockRepository) Cancel(ctx context.Context, orderID uuid.UUID) error {
	return m.cancelFunc(ctx, orderID)
}

type mockCatalog struct {
	getByIDFunc func(ctx context.Context, id uuid.UUID) (*product.Product, error)
}

func (m *mockCatalog) GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	return m.getByIDFunc(ctx, id)
}

type mockRiderDirectory struct {
	getByUserIDFunc func(ctx context.Context, userID uuid.UUID) (*rider.Rider, error)
}

func (m *mockRiderDirectory) GetByUserID(ctx context.Context, userID uuid.UUID) (*rider.Rider, error) {
	return m.getByUserIDFunc(ctx, userID)
}

type mockNotifier struct {
	calls atomic.Int32
}

func (m *mockNotifier) OrderCreated(ctx context.Context, o *order.Order) error {
	m.calls.Add(1)
	return nil
}

func TestService_Create(t *testing.T) {
	productID := uuid.Must(uuid.NewV4())
	customerID := uuid.Must(uuid.NewV4())

	availableProduct := &product.Product{ID: productID, Price: 1000, IsAvailable: true}

	tests := []struct {
		name        string
		input       order.CreateInput
		getByIDFunc func(ctx context.Context, id uuid.UUID) (*product.Product, error)
		wantErrIs   error
		wantTotal   float64
	}{
		{
			name:  "zero_quantity",
			input: order.CreateInput{CustomerID: customerID, ProductID: productID, Quantity: 0, DeliveryAddress: "Kariakoo"},
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*product.Product, error) {
				return availableProduct, nil
			},
			wantErrIs: order.ErrInvalidQuantity,
		},
		{
			name:  "negative_quantity",
			input: order.CreateInput{CustomerID: customerID, ProductID: productID, Quantity: -3, DeliveryAddress: "Kariakoo"},
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*product.Product, error) {
				return availableProduct, nil
			},
			wantErrIs: order.ErrInvalidQuantity,
		},
		{
			name:  "unknown_product",
			input: order.CreateInput{CustomerID: customerID, ProductID: productID, Quantity: 2, DeliveryAddress: "Kariakoo"},
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*product.Product, error) {
				return nil, product.ErrNotFound
			},
			wantErrIs: order.ErrProductNotFound,
		},
		{
			name:  "unavailable_product",
			input: order.CreateInput{CustomerID: customerID, ProductID: productID, Quantity: 2, DeliveryAddress: "Kariakoo"},
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*product.Product, error) {
				return &product.Product{ID: productID, Price: 1000, IsAvailable: false}, nil
			},
			wantErrIs: order.ErrProductNotFound,
		},
		{
			name:  "success_computes_total",
			input: order.CreateInput{CustomerID: customerID, ProductID: productID, Quantity: 4, DeliveryAddress: "Kariakoo"},
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*product.Product, error) {
				return availableProduct, nil
			},
			wantTotal: 4000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepository{
				createFunc: func(ctx context.Context, o *order.Order) (uuid.UUID, error) {
					o.ID = uuid.Must(uuid.NewV4())
					return o.ID, nil
				},
			}
			notifier := &mockNotifier{}
			svc := order.NewService(repo, &mockCatalog{getByIDFunc: tt.getByIDFunc}, &mockRiderDirectory{}, notifier)

			created, err := svc.Create(context.Background(), tt.input)

			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, created.TotalPrice)
			assert.Equal(t, order.StatusPending, created.Status)
			assert.Nil(t, created.ClaimedBy)
			assert.Eventually(t, func() bool {
				return notifier.calls.Load() == 1
			}, time.Second, 10*time.Millisecond, "notifier should be invoked once")
		})
	}
}

func TestService_Create_NotifierFailureDoesNotSurface(t *testing.T) {
	productID := uuid.Must(uuid.NewV4())

	repo := &mockRepository{
		createFunc: func(ctx context.Context, o *order.Order) (uuid.UUID, error) {
			o.ID = uuid.Must(uuid.NewV4())
			return o.ID, nil
		},
	}
	catalog := &mockCatalog{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*product.Product, error) {
			return &product.Product{ID: productID, Price: 500, IsAvailable: true}, nil
		},
	}

	svc := order.NewService(repo, catalog, &mockRiderDirectory{}, failingNotifier{})

	created, err := svc.Create(context.Background(), order.CreateInput{
		CustomerID:      uuid.Must(uuid.NewV4()),
		ProductID:       productID,
		Quantity:        1,
		DeliveryAddress: "Posta",
	})

	assert.NoError(t, err)
	assert.NotNil(t, created)
}

type failingNotifier struct{}

func (failingNotifier) OrderCreated(ctx context.Context, o *order.Order) error {
	return assert.AnError
}

func TestService_Claim(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())
	riderID := uuid.Must(uuid.NewV4())

	eligibleRider := &rider.Rider{UserID: riderID, Verified: true, IsAvailable: true}

	tests := []struct {
		name            string
		getByUserIDFunc func(ctx context.Context, userID uuid.UUID) (*rider.Rider, error)
		claimFunc       func(ctx context.Context, orderID, riderID uuid.UUID) error
		wantErrIs       error
	}{
		{
			name: "no_rider_profile",
			getByUserIDFunc: func(ctx context.Context, userID uuid.UUID) (*rider.Rider, error) {
				return nil, rider.ErrNotFound
			},
			wantErrIs: order.ErrRiderNotEligible,
		},
		{
			name: "unverified_rider",
			getByUserIDFunc: func(ctx context.Context, userID uuid.UUID) (*rider.Rider, error) {
				return &rider.Rider{UserID: riderID, Verified: false, IsAvailable: true}, nil
			},
			wantErrIs: order.ErrRiderNotEligible,
		},
		{
			name: "unavailable_rider",
			getByUserIDFunc: func(ctx context.Context, userID uuid.UUID) (*rider.Rider, error) {
				return &rider.Rider{UserID: riderID, Verified: true, IsAvailable: false}, nil
			},
			wantErrIs: order.ErrRiderNotEligible,
		},
		{
			name: "order_not_found",
			getByUserIDFunc: func(ctx context.Context, userID uuid.UUID) (*rider.Rider, error) {
				return eligibleRider, nil
			},
			claimFunc: func(ctx context.Context, orderID, riderID uuid.UUID) error {
				return order.ErrOrderNotFound
			},
			wantErrIs: order.ErrOrderNotFound,
		},
		{
			name: "claim_race_lost",
			getByUserIDFunc: func(ctx context.Context, userID uuid.UUID) (*rider.Rider, error) {
				return eligibleRider, nil
			},
			claimFunc: func(ctx context.Context, orderID, riderID uuid.UUID) error {
				return order.ErrAlreadyClaimed
			},
			wantErrIs: order.ErrAlreadyClaimed,
		},
		{
			name: "success",
			getByUserIDFunc: func(ctx context.Context, userID uuid.UUID) (*rider.Rider, error) {
				return eligibleRider, nil
			},
			claimFunc: func(ctx context.Context, orderID, riderID uuid.UUID) error {
				return nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepository{claimFunc: tt.claimFunc}
			svc := order.NewService(repo, &mockCatalog{}, &mockRiderDirectory{getByUserIDFunc: tt.getByUserIDFunc}, nil)

			err := svc.Claim(context.Background(), orderID, riderID)

			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestService_Advance(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())
	riderID := uuid.Must(uuid.NewV4())

	tests := []struct {
		name              string
		target            order.OrderStatus
		markPickedUpFunc  func(ctx context.Context, orderID, riderID uuid.UUID) error
		markDeliveredFunc func(ctx context.Context, orderID, riderID uuid.UUID) error
		wantErrIs         error
	}{
		{
			name:   "picked_up_success",
			target: order.StatusPickedUp,
			markPickedUpFunc: func(ctx context.Context, orderID, riderID uuid.UUID) error {
				return nil
			},
		},
		{
			name:   "delivered_success",
			target: order.StatusDelivered,
			markDeliveredFunc: func(ctx context.Context, orderID, riderID uuid.UUID) error {
				return nil
			},
		},
		{
			name:   "delivered_by_non_claimant",
			target: order.StatusDelivered,
			markDeliveredFunc: func(ctx context.Context, orderID, riderID uuid.UUID) error {
				return order.ErrForbidden
			},
			wantErrIs: order.ErrForbidden,
		},
		{
			name:   "repeat_delivery_is_conflict",
			target: order.StatusDelivered,
			markDeliveredFunc: func(ctx context.Context, orderID, riderID uuid.UUID) error {
				return order.ErrInvalidTransition
			},
			wantErrIs: order.ErrInvalidTransition,
		},
		{
			name:      "rider_cannot_target_cancelled",
			target:    order.StatusCancelled,
			wantErrIs: order.ErrInvalidTransition,
		},
		{
			name:      "rider_cannot_target_pending",
			target:    order.StatusPending,
			wantErrIs: order.ErrInvalidTransition,
		},
		{
			name:      "unknown_status",
			target:    order.OrderStatus("teleported"),
			wantErrIs: order.ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepository{
				markPickedUpFunc:  tt.markPickedUpFunc,
				markDeliveredFunc: tt.markDeliveredFunc,
			}
			svc := order.NewService(repo, &mockCatalog{}, &mockRiderDirectory{}, nil)

			err := svc.Advance(context.Background(), orderID, riderID, tt.target)

			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestService_Cancel(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())
	ownerID := uuid.Must(uuid.NewV4())
	strangerID := uuid.Must(uuid.NewV4())

	pendingOrder := &order.Order{ID: orderID, CustomerID: ownerID, Status: order.StatusPending}
	deliveredOrder := &order.Order{ID: orderID, CustomerID: ownerID, Status: order.StatusDelivered}
	pickedUpOrder := &order.Order{ID: orderID, CustomerID: ownerID, Status: order.StatusPickedUp}

	tests := []struct {
		name        string
		stored      *order.Order
		requesterID uuid.UUID
		admin       bool
		cancelFunc  func(ctx context.Context, orderID uuid.UUID) error
		wantErrIs   error
	}{
		{
			name:        "owner_cancels",
			stored:      pendingOrder,
			requesterID: ownerID,
			cancelFunc:  func(ctx context.Context, orderID uuid.UUID) error { return nil },
		},
		{
			name:        "stranger_forbidden",
			stored:      pendingOrder,
			requesterID: strangerID,
			wantErrIs:   order.ErrForbidden,
		},
		{
			name:        "admin_cancels_any",
			stored:      pendingOrder,
			requesterID: strangerID,
			admin:       true,
			cancelFunc:  func(ctx context.Context, orderID uuid.UUID) error { return nil },
		},
		{
			// nil cancelFunc: a delivered order must be refused before the
			// store is asked to mutate anything.
			name:        "delivered_order_conflict",
			stored:      deliveredOrder,
			requesterID: ownerID,
			wantErrIs:   order.ErrInvalidTransition,
		},
		{
			name:        "picked_up_order_conflict",
			stored:      pickedUpOrder,
			requesterID: ownerID,
			wantErrIs:   order.ErrInvalidTransition,
		},
		{
			name:        "lost_race_with_transition",
			stored:      pendingOrder,
			requesterID: ownerID,
			cancelFunc: func(ctx context.Context, orderID uuid.UUID) error {
				return order.ErrInvalidTransition
			},
			wantErrIs: order.ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepository{
				getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
					return tt.stored, nil
				},
				cancelFunc: tt.cancelFunc,
			}
			svc := order.NewService(repo, &mockCatalog{}, &mockRiderDirectory{}, nil)

			err := svc.Cancel(context.Background(), orderID, tt.requesterID, tt.admin)

			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestService_CustomerPhone(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())
	riderID := uuid.Must(uuid.NewV4())
	otherRider := uuid.Must(uuid.NewV4())

	claimedOrder := &order.Order{ID: orderID, Status: order.StatusAssigned, ClaimedBy: &riderID}

	tests := []struct {
		name        string
		riderID     uuid.UUID
		getByIDFunc func(ctx context.Context, id uuid.UUID) (*order.Order, error)
		wantPhone   string
		wantErrIs   error
	}{
		{
			name:    "claimant_gets_phone",
			riderID: riderID,
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
				return claimedOrder, nil
			},
			wantPhone: "+255700000001",
		},
		{
			name:    "other_rider_forbidden",
			riderID: otherRider,
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
				return claimedOrder, nil
			},
			wantErrIs: order.ErrForbidden,
		},
		{
			name:    "unclaimed_order_forbidden",
			riderID: riderID,
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
				return &order.Order{ID: orderID, Status: order.StatusPending}, nil
			},
			wantErrIs: order.ErrForbidden,
		},
		{
			name:    "unknown_order",
			riderID: riderID,
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
				return nil, order.ErrOrderNotFound
			},
			wantErrIs: order.ErrOrderNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepository{
				getByIDFunc: tt.getByIDFunc,
				customerPhoneFunc: func(ctx context.Context, id uuid.UUID) (string, error) {
					return "+255700000001", nil
				},
			}
			svc := order.NewService(repo, &mockCatalog{}, &mockRiderDirectory{}, nil)

			phone, err := svc.CustomerPhone(context.Background(), orderID, tt.riderID)

			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPhone, phone)
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to order.OrderStatus
		want     bool
	}{
		{order.StatusPending, order.StatusAssigned, true},
		{order.StatusPending, order.StatusCancelled, true},
		{order.StatusAssigned, order.StatusPickedUp, true},
		{order.StatusAssigned, order.StatusDelivered, true},
		{order.StatusAssigned, order.StatusCancelled, true},
		{order.StatusPickedUp, order.StatusDelivered, true},
		{order.StatusPending, order.StatusDelivered, false},
		{order.StatusPickedUp, order.StatusCancelled, false},
		{order.StatusDelivered, order.StatusPending, false},
		{order.StatusDelivered, order.StatusAssigned, false},
		{order.StatusCancelled, order.StatusAssigned, false},
		{order.StatusCancelled, order.StatusDelivered, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, order.CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}
