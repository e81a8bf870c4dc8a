package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-journey/internal/db"
	"github.com/ukydev/fleet-journey/internal/journey"
	"github.com/ukydev/fleet-journey/internal/middleware"
	"github.com/ukydev/fleet-journey/internal/models"
	"github.com/ukydev/fleet-journey/internal/session"
	"github.com/ukydev/fleet-journey/internal/tachograph"
)

// JourneyHandler exposes the calling driver's journey. The driver is always
// taken from the token, never from the request.
type JourneyHandler struct {
	manager  *session.Manager
	vehicles db.VehicleCollection
	log      *log.Logger
	now      func() time.Time
}

// NewJourneyHandler creates a journey handler. vehicles may be nil, in which
// case the vehicle model is taken from the request as is.
func NewJourneyHandler(manager *session.Manager, vehicles db.VehicleCollection, logger *log.Logger) *JourneyHandler {
	return &JourneyHandler{manager: manager, vehicles: vehicles, log: logger, now: time.Now}
}

// Routes registers the journey endpoints on r.
func (h *JourneyHandler) Routes(r chi.Router) {
	r.Get("/", h.Get)
	r.Post("/inspection", h.StartInspection)
	r.Put("/inspection/items/{itemID}", h.UpdateInspectionItem)
	r.Post("/inspection/complete", h.CompleteInspection)
	r.Post("/start", h.Start)
	r.Post("/pause", h.Pause)
	r.Post("/resume", h.Resume)
	r.Post("/checkout", h.StartCheckout)
	r.Put("/checkout", h.ConfirmCheckout)
	r.Post("/end", h.End)
	r.Put("/location", h.UpdateLocation)
	r.Get("/tachograph", h.Tachograph)
}

// odometerInput accepts a reading typed as text or sent as a JSON number.
type odometerInput string

func (o *odometerInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = odometerInput(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*o = ""
		return nil
	}
	*o = odometerInput(data)
	return nil
}

type inspectionItemRequest struct {
	Checked *bool  `json:"checked"`
	Problem string `json:"problem"`
}

type completeInspectionRequest struct {
	HasProblems bool `json:"has_problems"`
}

type startJourneyRequest struct {
	StartKm  odometerInput `json:"start_km"`
	Plate    string        `json:"plate"`
	Model    string        `json:"model"`
	Location string        `json:"location"`
}

type pauseRequest struct {
	Type journey.PauseType `json:"type"`
}

type checkoutRequest struct {
	EndKm        odometerInput `json:"end_km"`
	Observations string        `json:"observations"`
}

type locationRequest struct {
	Location string `json:"location"`
}

type endJourneyResponse struct {
	Outcome string                `json:"outcome"` // finished, cancelled, inactive
	Journey *models.JourneyRecord `json:"journey,omitempty"`
}

func (h *JourneyHandler) session(w http.ResponseWriter, r *http.Request) (*journey.Session, *models.Claims, bool) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "User context not found")
		return nil, nil, false
	}
	return h.manager.Get(claims.UserID, claims.Name), claims, true
}

// respond publishes action and returns the fresh snapshot, or reports err.
func (h *JourneyHandler) respond(w http.ResponseWriter, r *http.Request, s *journey.Session, action string, err error) {
	if err != nil {
		h.log.WithError(err).WithFields(log.Fields{
			"driver_id": s.Driver().ID,
			"status":    s.Status(),
			"action":    action,
		}).Debug("journey operation refused")
		writeDomainError(w, h.log, err)
		return
	}
	h.manager.Publish(r.Context(), s.Driver().ID, action)
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// Get returns the journey snapshot with live elapsed times.
func (h *JourneyHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *JourneyHandler) StartInspection(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, r, s, session.ActionInspectionStarted, s.StartInspection())
}

func (h *JourneyHandler) UpdateInspectionItem(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.session(w, r)
	if !ok {
		return
	}
	var req inspectionItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Checked == nil {
		writeError(w, http.StatusUnprocessableEntity, "checked must be true or false")
		return
	}
	if err := s.UpdateInspectionItem(chi.URLParam(r, "itemID"), *req.Checked, req.Problem); err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *JourneyHandler) CompleteInspection(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.session(w, r)
	if !ok {
		return
	}
	var req completeInspectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	h.respond(w, r, s, session.ActionInspectionCompleted, s.CompleteInspection(req.HasProblems))
}

func (h *JourneyHandler) Start(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.session(w, r)
	if !ok {
		return
	}
	var req startJourneyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	vehicle := journey.Vehicle{Plate: db.NormalizePlate(req.Plate), Model: strings.TrimSpace(req.Model)}
	if vehicle.Model == "" && vehicle.Plate != "" && h.vehicles != nil {
		v, err := h.vehicles.FindVehicleByPlate(r.Context(), vehicle.Plate)
		switch {
		case err == nil:
			vehicle.Model = v.Model
		case !errors.Is(err, db.ErrNotFound):
			h.log.WithError(err).WithField("plate", vehicle.Plate).Warn("vehicle lookup failed")
		}
	}
	h.respond(w, r, s, session.ActionStarted, s.StartJourney(string(req.StartKm), vehicle, strings.TrimSpace(req.Location)))
}

func (h *JourneyHandler) Pause(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.session(w, r)
	if !ok {
		return
	}
	var req pauseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	h.respond(w, r, s, session.ActionPaused, s.PauseJourney(req.Type))
}

func (h *JourneyHandler) Resume(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, r, s, session.ActionResumed, s.ResumeJourney())
}

func (h *JourneyHandler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, r, s, session.ActionCheckoutStarted, s.StartCheckout())
}

func (h *JourneyHandler) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.session(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	h.respond(w, r, s, session.ActionCheckoutConfirmed, s.ConfirmCheckout(string(req.EndKm), strings.TrimSpace(req.Observations)))
}

// End finishes a confirmed journey or cancels any other. It never fails for
// a driver without an active journey.
func (h *JourneyHandler) End(w http.ResponseWriter, r *http.Request) {
	_, claims, ok := h.session(w, r)
	if !ok {
		return
	}
	outcome, doc, err := h.manager.Finish(r.Context(), claims.UserID)
	if err != nil {
		h.log.WithError(err).WithField("driver_id", claims.UserID).Error("journey ended but was not saved")
		writeError(w, http.StatusInternalServerError, "Journey ended but could not be saved")
		return
	}
	writeJSON(w, http.StatusOK, endJourneyResponse{Outcome: string(outcome), Journey: doc})
}

func (h *JourneyHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.session(w, r)
	if !ok {
		return
	}
	var req locationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := s.UpdateLocation(strings.TrimSpace(req.Location)); err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// Tachograph evaluates the driving-time rules over the journey so far.
func (h *JourneyHandler) Tachograph(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tachograph.Evaluate(s.Segments(), h.now()))
}
