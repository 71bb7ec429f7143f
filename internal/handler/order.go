package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tuuziane/marketplace/internal/auth"
	"github.com/tuuziane/marketplace/internal/order"
)

type CreateOrderRequest struct {
	ProductID       string `json:"product_id" validate:"required,uuid4"`
	Quantity        int    `json:"quantity" validate:"required,gt=0"`
	DeliveryAddress string `json:"delivery_address" validate:"required"`
}

type AdvanceOrderRequest struct {
	Status string `json:"status" validate:"required"`
}

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	svc      order.Service
	validate *validator.Validate
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc order.Service) *OrderHandler {
	return &OrderHandler{svc: svc, validate: validator.New()}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders", h.CreateOrder)
	router.Get("/orders/my", h.ListMyOrders)
	router.Post("/orders/{id}/cancel", h.CancelOrder)
	router.Get("/bodaboda/orders/open", h.ListOpenOrders)
	router.Get("/bodaboda/orders/claimed", h.ListClaimedOrders)
	router.Get("/bodaboda/orders/{id}", h.GetOrder)
	router.Get("/bodaboda/orders/{id}/customer-phone", h.CustomerPhone)
	router.Post("/bodaboda/orders/{id}/claim", h.ClaimOrder)
	router.Post("/bodaboda/orders/{id}/advance", h.AdvanceOrder)
}

// CreateOrder places a new order for the authenticated customer.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := identityWithRole(w, r, auth.RoleCustomer)
	if !ok {
		return
	}

	var req CreateOrderRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	productID, err := uuid.FromString(req.ProductID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	created, err := h.svc.Create(r.Context(), order.CreateInput{
		CustomerID:      id.UserID,
		ProductID:       productID,
		Quantity:        req.Quantity,
		DeliveryAddress: req.DeliveryAddress,
	})
	if err != nil {
		log.Warn().Err(err).Stringer("customer_id", id.UserID).Msg("Failed to create order")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

// ListMyOrders returns the authenticated customer's own orders.
func (h *OrderHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := identityWithRole(w, r, auth.RoleCustomer)
	if !ok {
		return
	}

	orders, err := h.svc.ListByCustomer(r.Context(), id.UserID)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "failed to list orders")
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

// ListOpenOrders returns pending, unclaimed orders for riders to browse.
func (h *OrderHandler) ListOpenOrders(w http.ResponseWriter, r *http.Request) {
	if _, ok := identityWithRole(w, r, auth.RoleBodaboda); !ok {
		return
	}

	orders, err := h.svc.ListOpen(r.Context())
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "failed to list open orders")
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

// ListClaimedOrders returns the rider's claimed, undelivered orders.
func (h *OrderHandler) ListClaimedOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := identityWithRole(w, r, auth.RoleBodaboda)
	if !ok {
		return
	}

	orders, err := h.svc.ListClaimedBy(r.Context(), id.UserID)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "failed to list claimed orders")
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

// GetOrder returns one order; riders may inspect an order before claiming.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	if _, ok := identityWithRole(w, r, auth.RoleBodaboda); !ok {
		return
	}

	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	o, err := h.svc.GetByID(r.Context(), orderID)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "order not found")
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

// CustomerPhone returns the ordering customer's phone number to the rider
// the order is claimed by.
func (h *OrderHandler) CustomerPhone(w http.ResponseWriter, r *http.Request) {
	id, ok := identityWithRole(w, r, auth.RoleBodaboda)
	if !ok {
		return
	}

	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	phone, err := h.svc.CustomerPhone(r.Context(), orderID, id.UserID)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"phone": phone})
}

// ClaimOrder lets a rider take exclusive responsibility for an order.
func (h *OrderHandler) ClaimOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := identityWithRole(w, r, auth.RoleBodaboda)
	if !ok {
		return
	}

	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	if err := h.svc.Claim(r.Context(), orderID, id.UserID); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "order claimed"})
}

// AdvanceOrder moves a claimed order to picked_up or delivered.
func (h *OrderHandler) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := identityWithRole(w, r, auth.RoleBodaboda)
	if !ok {
		return
	}

	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req AdvanceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	if err := h.svc.Advance(r.Context(), orderID, id.UserID, order.OrderStatus(req.Status)); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

// CancelOrder aborts a pending or assigned order.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := identityWithRole(w, r, auth.RoleCustomer, auth.RoleAdmin)
	if !ok {
		return
	}

	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	if err := h.svc.Cancel(r.Context(), orderID, id.UserID, id.Role == auth.RoleAdmin); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "order cancelled"})
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	if raw == "" {
		respondWithError(w, http.StatusBadRequest, "id is required")
		return uuid.Nil, false
	}
	id, err := uuid.FromString(raw)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid order id")
		return uuid.Nil, false
	}
	return id, true
}
