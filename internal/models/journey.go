package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// JourneyRecord is a finished driver journey as stored in the history collection.
type JourneyRecord struct {
	ID               primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	JourneyID        string             `json:"journey_id" bson:"journey_id"`
	DriverID         string             `json:"driver_id" bson:"driver_id"`
	DriverName       string             `json:"driver_name" bson:"driver_name"`
	Plate            string             `json:"plate" bson:"plate"`
	VehicleModel     string             `json:"vehicle_model" bson:"vehicle_model"`
	StartTime        time.Time          `json:"start_time" bson:"start_time"`
	EndTime          time.Time          `json:"end_time" bson:"end_time"`
	StartKm          int64              `json:"start_km" bson:"start_km"`
	EndKm            int64              `json:"end_km" bson:"end_km"`
	DistanceKm       int64              `json:"distance_km" bson:"distance_km"`
	OdometerRollback bool               `json:"odometer_rollback" bson:"odometer_rollback"`
	HasProblems      bool               `json:"has_problems" bson:"has_problems"`
	Inspection       []InspectionResult `json:"inspection" bson:"inspection"`
	Segments         []SegmentRecord    `json:"segments" bson:"segments"`
	DrivingSeconds   int64              `json:"driving_seconds" bson:"driving_seconds"`
	RestSeconds      int64              `json:"rest_seconds" bson:"rest_seconds"`
	MealSeconds      int64              `json:"meal_seconds" bson:"meal_seconds"`
	TotalSeconds     int64              `json:"total_seconds" bson:"total_seconds"`
	StartLocation    string             `json:"start_location" bson:"start_location"`
	EndLocation      string             `json:"end_location" bson:"end_location"`
	Observations     string             `json:"observations" bson:"observations"`
	Infractions      []Infraction       `json:"infractions,omitempty" bson:"infractions,omitempty"`
	CreatedAt        time.Time          `json:"created_at" bson:"created_at"`
}

// InspectionResult is one checklist line of a stored journey.
type InspectionResult struct {
	ItemID  string `json:"item_id" bson:"item_id"`
	Label   string `json:"label" bson:"label"`
	OK      bool   `json:"ok" bson:"ok"`
	Problem string `json:"problem,omitempty" bson:"problem,omitempty"`
}

// SegmentRecord is a closed driving, resting or meal interval.
type SegmentRecord struct {
	Type  string    `json:"type" bson:"type"` // "driving", "resting", "meal"
	Start time.Time `json:"start" bson:"start"`
	End   time.Time `json:"end" bson:"end"`
}

// Infraction is a driving-time rule breach found on a finished journey.
type Infraction struct {
	Kind          string    `json:"kind" bson:"kind"`
	Severity      string    `json:"severity" bson:"severity"` // "warning", "infraction"
	At            time.Time `json:"at" bson:"at"`
	ExcessSeconds int64     `json:"excess_seconds" bson:"excess_seconds"`
	Message       string    `json:"message" bson:"message"`
}

// JourneyFilter narrows a history query. Zero values match everything.
type JourneyFilter struct {
	DriverID string
	Plate    string
	From     time.Time
	To       time.Time
	Limit    int64
}

// JourneyEvent is published whenever a driver's journey changes state.
type JourneyEvent struct {
	JourneyID string    `json:"journey_id,omitempty"`
	DriverID  string    `json:"driver_id"`
	Action    string    `json:"action"` // e.g. "inspection_started", "paused", "finished", "cancelled"
	Status    string    `json:"status"`
	Plate     string    `json:"plate,omitempty"`
	Location  string    `json:"location,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
