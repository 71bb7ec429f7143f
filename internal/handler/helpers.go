package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/tuuziane/marketplace/internal/auth"
	"github.com/tuuziane/marketplace/internal/order"
	"github.com/tuuziane/marketplace/internal/product"
	"github.com/tuuziane/marketplace/internal/rider"
)

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

// respondWithError sends a JSON error payload.
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON sends a JSON response.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondWithValidationErrors(w http.ResponseWriter, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Error:   "Validation failed",
			Details: formatValidationErrors(validationErrors),
		})
		return
	}
	log.Error().Err(err).Msg("Unexpected error type during validation")
	respondWithError(w, http.StatusInternalServerError, "Internal validation error")
}

func formatValidationErrors(validationErrors validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details[fieldErr.Field()] = fmt.Sprintf("failed on the '%s' rule", fieldErr.Tag())
	}
	return details
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, order.ErrProductNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, rider.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrForbidden),
		errors.Is(err, order.ErrRiderNotEligible):
		return http.StatusForbidden
	case errors.Is(err, order.ErrAlreadyClaimed),
		errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, rider.ErrReferenced),
		errors.Is(err, rider.ErrPlateExists):
		return http.StatusConflict
	case errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, rider.ErrInvalidCoordinates):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// identityWithRole pulls the authenticated identity from the request and
// checks it against the allowed roles, writing the failure response itself.
func identityWithRole(w http.ResponseWriter, r *http.Request, roles ...string) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication required")
		return auth.Identity{}, false
	}
	for _, role := range roles {
		if id.Role == role {
			return id, true
		}
	}
	respondWithError(w, http.StatusForbidden, "insufficient role")
	return auth.Identity{}, false
}
