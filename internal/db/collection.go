package db

import (
	"context"
	"errors"

	"github.com/ukydev/fleet-journey/internal/models"
)

// ErrNotFound is returned when a lookup matches no document.
var ErrNotFound = errors.New("not found")

// JourneyCollection defines the interface for journey history operations.
type JourneyCollection interface {
	InsertJourney(ctx context.Context, journey models.JourneyRecord) error
	FindJourneys(ctx context.Context, filter models.JourneyFilter) ([]models.JourneyRecord, error)
	FindJourneyByID(ctx context.Context, id string) (*models.JourneyRecord, error)
}

// VehicleCollection defines the interface for vehicle data operations.
type VehicleCollection interface {
	InsertVehicle(ctx context.Context, vehicle models.Vehicle) error
	FindVehicleByPlate(ctx context.Context, plate string) (*models.Vehicle, error)
	UpdateOdometer(ctx context.Context, plate string, km int64) error
}
