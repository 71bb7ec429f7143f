package rider

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tuuziane/marketplace/internal/geo"
)

var ErrInvalidCoordinates = errors.New("invalid coordinates")

type Service interface {
	// Register creates an unverified rider profile for the user. The profile
	// stays ineligible for dispatch until an admin verifies it.
	Register(ctx context.Context, userID uuid.UUID, plateNumber, idNumber string) (*Rider, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Rider, error)
	UpdateLocation(ctx context.Context, userID uuid.UUID, lat, lon float64) error
	SetAvailability(ctx context.Context, userID uuid.UUID, available bool) error
	SetVerified(ctx context.Context, userID uuid.UUID, verified bool) error
	Delete(ctx context.Context, userID uuid.UUID) error
	NearestEligible(ctx context.Context, lat, lon float64) (*Rider, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Register(ctx context.Context, userID uuid.UUID, plateNumber, idNumber string) (*Rider, error) {
	if plateNumber == "" || idNumber == "" {
		return nil, errors.New("service: plate number and id number are required")
	}

	rd := &Rider{
		UserID:      userID,
		PlateNumber: plateNumber,
		IDNumber:    idNumber,
		IsAvailable: true,
	}

	err := s.repo.Create(ctx, rd)
	if err != nil {
		if errors.Is(err, ErrPlateExists) {
			return nil, ErrPlateExists
		}
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to register rider")
		return nil, fmt.Errorf("service: failed to register rider: %w", err)
	}

	log.Info().Stringer("user_id", userID).Str("plate_number", plateNumber).Msg("service: rider registered")
	return rd, nil
}

func (s *service) GetByUserID(ctx context.Context, userID uuid.UUID) (*Rider, error) {
	rd, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to fetch rider")
		return nil, fmt.Errorf("service: failed to fetch rider: %w", err)
	}

	return rd, nil
}

func (s *service) UpdateLocation(ctx context.Context, userID uuid.UUID, lat, lon float64) error {
	if !validCoordinates(lat, lon) {
		log.Warn().Stringer("user_id", userID).Float64("lat", lat).Float64("lon", lon).Msg("service: rejected location update")
		return ErrInvalidCoordinates
	}

	err := s.repo.UpdateLocation(ctx, userID, lat, lon)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to update rider location")
		return fmt.Errorf("service: failed to update rider location: %w", err)
	}

	return nil
}

func (s *service) SetAvailability(ctx context.Context, userID uuid.UUID, available bool) error {
	err := s.repo.SetAvailability(ctx, userID, available)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to set rider availability")
		return fmt.Errorf("service: failed to set rider availability: %w", err)
	}

	log.Info().Stringer("user_id", userID).Bool("available", available).Msg("service: rider availability changed")
	return nil
}

func (s *service) SetVerified(ctx context.Context, userID uuid.UUID, verified bool) error {
	err := s.repo.SetVerified(ctx, userID, verified)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to set rider verification")
		return fmt.Errorf("service: failed to set rider verification: %w", err)
	}

	log.Info().Stringer("user_id", userID).Bool("verified", verified).Msg("service: rider verification changed")
	return nil
}

// Delete removes the rider profile. Riders referenced by claimed orders are
// protected by the orders foreign key and come back as ErrReferenced.
func (s *service) Delete(ctx context.Context, userID uuid.UUID) error {
	err := s.repo.Delete(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrReferenced) {
			return err
		}
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to delete rider")
		return fmt.Errorf("service: failed to delete rider: %w", err)
	}

	log.Info().Stringer("user_id", userID).Msg("service: rider deleted")
	return nil
}

// NearestEligible returns the verified, available rider closest to the given
// point. Riders without a reported location are never selected. ErrNotFound
// is returned when no rider qualifies.
func (s *service) NearestEligible(ctx context.Context, lat, lon float64) (*Rider, error) {
	if !validCoordinates(lat, lon) {
		return nil, ErrInvalidCoordinates
	}

	riders, err := s.repo.ListEligible(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list eligible riders")
		return nil, fmt.Errorf("service: failed to list eligible riders: %w", err)
	}

	nearest, ok := geo.Nearest(riders, lat, lon)
	if !ok {
		return nil, ErrNotFound
	}

	return &nearest, nil
}

func validCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
