package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/carrierdesk/backend/internal/db"
	"github.com/carrierdesk/backend/internal/models"
	"github.com/carrierdesk/backend/internal/utils"
)

var (
	ErrLoadNotFound      = errors.New("no load found with that ID")
	ErrLoadAlreadyBooked = errors.New("load is already booked")
)

type BookLoadRequest struct {
	LoadID               string  `json:"load_id" validate:"required"`
	MCNumber             string  `json:"mc_number" validate:"required"`
	AgreedRate           float64 `json:"agreed_rate" validate:"required"`
	CarrierName          *string `json:"carrier_name"`
	AgreedPickupDatetime *string `json:"agreed_pickup_datetime"`
	OfferID              *string `json:"offer_id"`
	CallID               *string `json:"call_id"`
}

const (
	defaultBookingsLimit = 20
	maxBookingsLimit     = 100
)

type BookingService struct {
	Store  *db.Store
	Logger zerolog.Logger
}

// BookLoad claims a load for a carrier. The availability check, the
// booked_loads insert, and the status flip run in one transaction under a row
// lock, so concurrent attempts on the same load serialize: the first commits,
// the rest see status=booked and fail with ErrLoadAlreadyBooked.
func (s *BookingService) BookLoad(ctx context.Context, req BookLoadRequest) (models.BookedLoad, error) {
	booking := models.BookedLoad{
		ID:                   utils.NewBookingRef(),
		LoadID:               req.LoadID,
		MCNumber:             req.MCNumber,
		CarrierName:          req.CarrierName,
		AgreedRate:           req.AgreedRate,
		AgreedPickupDatetime: req.AgreedPickupDatetime,
		OfferID:              req.OfferID,
		CallID:               req.CallID,
		CreatedAt:            time.Now().UTC(),
	}

	err := s.Store.WithTx(ctx, func(tx pgx.Tx) error {
		load, err := s.Store.GetLoadForUpdate(ctx, tx, req.LoadID)
		if err != nil {
			return err
		}
		if load == nil {
			return ErrLoadNotFound
		}
		if load.Status != models.LoadAvailable {
			return ErrLoadAlreadyBooked
		}
		if err := s.Store.InsertBookedLoad(ctx, tx, booking); err != nil {
			return err
		}
		return s.Store.MarkLoadBooked(ctx, tx, req.LoadID, booking.CreatedAt)
	})
	if err != nil {
		return models.BookedLoad{}, err
	}

	s.Logger.Info().
		Str("booking_id", booking.ID).
		Str("load_id", booking.LoadID).
		Str("mc_number", booking.MCNumber).
		Float64("agreed_rate", booking.AgreedRate).
		Msg("load booked")
	return booking, nil
}

// GetBooking returns the enriched booking for a load, or nil when none exists.
func (s *BookingService) GetBooking(ctx context.Context, loadID string) (*models.EnrichedBookedLoad, error) {
	return s.Store.GetBookedLoad(ctx, loadID)
}

// ListBookings returns a page of enriched bookings, newest first. Offset is
// floored at zero; limit defaults to 20 and is clamped to 1..100.
func (s *BookingService) ListBookings(ctx context.Context, offset, limit int) ([]models.EnrichedBookedLoad, int, int, error) {
	offset, limit = ClampPage(offset, limit)
	items, err := s.Store.ListBookedLoads(ctx, offset, limit)
	if err != nil {
		return nil, offset, limit, err
	}
	if items == nil {
		items = []models.EnrichedBookedLoad{}
	}
	return items, offset, limit, nil
}

// ClampPage normalizes pagination inputs to safe bounds.
func ClampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultBookingsLimit
	}
	if limit > maxBookingsLimit {
		limit = maxBookingsLimit
	}
	return offset, limit
}
