package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-journey/internal/db"
	"github.com/ukydev/fleet-journey/internal/models"
	"go.mongodb.org/mongo-driver/mongo"
)

// VehicleHandler manages the fleet register.
type VehicleHandler struct {
	vehicles db.VehicleCollection
	log      *log.Logger
}

func NewVehicleHandler(vehicles db.VehicleCollection, logger *log.Logger) *VehicleHandler {
	return &VehicleHandler{vehicles: vehicles, log: logger}
}

// Create registers a vehicle.
func (h *VehicleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var v models.Vehicle
	if err := decodeJSON(w, r, &v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	v.Plate = db.NormalizePlate(v.Plate)
	if v.Plate == "" {
		writeError(w, http.StatusUnprocessableEntity, "plate is required")
		return
	}
	if v.OdometerKm < 0 {
		writeError(w, http.StatusUnprocessableEntity, "odometer_km must not be negative")
		return
	}
	v.Model = strings.TrimSpace(v.Model)
	if v.Status == "" {
		v.Status = "active"
	}

	if err := h.vehicles.InsertVehicle(r.Context(), v); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			writeError(w, http.StatusConflict, "Vehicle already exists")
			return
		}
		writeDomainError(w, h.log, err)
		return
	}
	h.log.WithField("plate", v.Plate).Info("vehicle registered")
	writeJSON(w, http.StatusCreated, v)
}

// Get returns a vehicle by plate.
func (h *VehicleHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.vehicles.FindVehicleByPlate(r.Context(), chi.URLParam(r, "plate"))
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
