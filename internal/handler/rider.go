package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tuuziane/marketplace/internal/auth"
	"github.com/tuuziane/marketplace/internal/notify"
	"github.com/tuuziane/marketplace/internal/rider"
)

type RegisterRiderRequest struct {
	PlateNumber string `json:"plate_number" validate:"required"`
	IDNumber    string `json:"id_number" validate:"required"`
}

type SetVerifiedRequest struct {
	Verified *bool `json:"verified" validate:"required"`
}

type UpdateLocationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
}

type SetAvailabilityRequest struct {
	Available *bool `json:"available" validate:"required"`
}

type SaveDeviceTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type RiderHandler struct {
	svc      rider.Service
	devices  notify.DeviceRepository
	validate *validator.Validate
}

func NewRiderHandler(svc rider.Service, devices notify.DeviceRepository) *RiderHandler {
	return &RiderHandler{svc: svc, devices: devices, validate: validator.New()}
}

func (h *RiderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/bodaboda/register", h.Register)
	router.Get("/bodaboda/me", h.GetProfile)
	router.Post("/bodaboda/location", h.UpdateLocation)
	router.Post("/bodaboda/availability", h.SetAvailability)
	router.Post("/bodaboda/device-token", h.SaveDeviceToken)
	router.Get("/riders/nearest", h.NearestRider)
	router.Post("/admin/riders/{id}/verify", h.SetVerified)
	router.Delete("/admin/riders/{id}", h.DeleteRider)
}

// Register creates the caller's rider profile. New profiles start unverified
// and stay off the dispatch pool until an admin verifies them.
func (h *RiderHandler) Register(w http.ResponseWriter, r *http.Request) {
	id, ok := identityWithRole(w, r, auth.RoleBodaboda)
	if !ok {
		return
	}

	var req RegisterRiderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	rd, err := h.svc.Register(r.Context(), id.UserID, req.PlateNumber, req.IDNumber)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, rd)
}

// SetVerified lets an admin flip a rider's verification flag.
func (h *RiderHandler) SetVerified(w http.ResponseWriter, r *http.Request) {
	if _, ok := identityWithRole(w, r, auth.RoleAdmin); !ok {
		return
	}

	riderID, ok := riderIDParam(w, r)
	if !ok {
		return
	}

	var req SetVerifiedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	if err := h.svc.SetVerified(r.Context(), riderID, *req.Verified); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"verified": *req.Verified})
}

// DeleteRider removes a rider profile. Riders still referenced by orders are
// rejected with a conflict.
func (h *RiderHandler) DeleteRider(w http.ResponseWriter, r *http.Request) {
	if _, ok := identityWithRole(w, r, auth.RoleAdmin); !ok {
		return
	}

	riderID, ok := riderIDParam(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), riderID); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "rider deleted"})
}

func (h *RiderHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := identityWithRole(w, r, auth.RoleBodaboda)
	if !ok {
		return
	}

	rd, err := h.svc.GetByUserID(r.Context(), id.UserID)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "rider profile not found")
		return
	}

	respondWithJSON(w, http.StatusOK, rd)
}

// UpdateLocation stores the rider's reported coordinates.
func (h *RiderHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := identityWithRole(w, r, auth.RoleBodaboda)
	if !ok {
		return
	}

	var req UpdateLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	if err := h.svc.UpdateLocation(r.Context(), id.UserID, *req.Latitude, *req.Longitude); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "location updated"})
}

func (h *RiderHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := identityWithRole(w, r, auth.RoleBodaboda)
	if !ok {
		return
	}

	var req SetAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	if err := h.svc.SetAvailability(r.Context(), id.UserID, *req.Available); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"available": *req.Available})
}

// SaveDeviceToken registers a push token for the rider's device.
func (h *RiderHandler) SaveDeviceToken(w http.ResponseWriter, r *http.Request) {
	id, ok := identityWithRole(w, r, auth.RoleBodaboda)
	if !ok {
		return
	}

	var req SaveDeviceTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	if err := h.devices.Upsert(r.Context(), req.Token, id.UserID); err != nil {
		log.Error().Err(err).Stringer("user_id", id.UserID).Msg("Failed to save device token")
		respondWithError(w, http.StatusInternalServerError, "failed to save device token")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "token saved"})
}

// NearestRider returns the closest eligible rider to a point. Used by vendor
// tooling to estimate pickup times.
func (h *RiderHandler) NearestRider(w http.ResponseWriter, r *http.Request) {
	if _, ok := identityWithRole(w, r, auth.RoleVendor, auth.RoleAdmin); !ok {
		return
	}

	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "lat is required")
		return
	}
	lon, err := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "lon is required")
		return
	}

	nearest, err := h.svc.NearestEligible(r.Context(), lat, lon)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "no eligible rider found")
		return
	}

	respondWithJSON(w, http.StatusOK, nearest)
}

func riderIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	if raw == "" {
		respondWithError(w, http.StatusBadRequest, "id is required")
		return uuid.Nil, false
	}
	id, err := uuid.FromString(raw)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid rider id")
		return uuid.Nil, false
	}
	return id, true
}
