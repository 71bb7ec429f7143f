package order

import (
	"time"

	"github.com/gofrs/uuid"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusAssigned  OrderStatus = "assigned"
	StatusPickedUp  OrderStatus = "picked_up"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

func (os OrderStatus) String() string {
	return string(os)
}

func (os OrderStatus) Valid() bool {
	switch os {
	case StatusPending, StatusAssigned, StatusPickedUp, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition may leave the status.
func (os OrderStatus) Terminal() bool {
	return os == StatusDelivered || os == StatusCancelled
}

var allowedTransitions = map[OrderStatus]map[OrderStatus]bool{
	StatusPending: {
		StatusAssigned:  true,
		StatusCancelled: true,
	},
	StatusAssigned: {
		StatusPickedUp:  true,
		StatusDelivered: true,
		StatusCancelled: true,
	},
	StatusPickedUp: {
		StatusDelivered: true,
	},
}

// CanTransition reports whether the state machine allows moving from one
// status to another. Terminal statuses allow nothing.
func CanTransition(from, to OrderStatus) bool {
	return !from.Terminal() && allowedTransitions[from][to]
}

type Order struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	CustomerID      uuid.UUID   `json:"customer_id" db:"customer_id"`
	ProductID       uuid.UUID   `json:"product_id" db:"product_id"`
	Quantity        int         `json:"quantity" db:"quantity"`
	TotalPrice      float64     `json:"total_price" db:"total_price"`
	Status          OrderStatus `json:"status" db:"status"`
	ClaimedBy       *uuid.UUID  `json:"claimed_by,omitempty" db:"claimed_by"`
	DeliveryAddress string      `json:"delivery_address" db:"delivery_address"`
	IsDelivered     bool        `json:"is_delivered" db:"is_delivered"`
	ClaimedAt       *time.Time  `json:"claimed_at,omitempty" db:"claimed_at"`
	DeliveredAt     *time.Time  `json:"delivered_at,omitempty" db:"delivered_at"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
}

// ClaimedByRider reports whether the order is claimed by the given rider.
func (o *Order) ClaimedByRider(riderID uuid.UUID) bool {
	return o.ClaimedBy != nil && *o.ClaimedBy == riderID
}
