package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-journey/internal/db"
	"github.com/ukydev/fleet-journey/internal/middleware"
	"github.com/ukydev/fleet-journey/internal/models"
)

// HistoryHandler serves finished journeys.
type HistoryHandler struct {
	journeys db.JourneyCollection
	log      *log.Logger
}

func NewHistoryHandler(journeys db.JourneyCollection, logger *log.Logger) *HistoryHandler {
	return &HistoryHandler{journeys: journeys, log: logger}
}

// Mine lists the calling driver's journeys.
func (h *HistoryHandler) Mine(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "User context not found")
		return
	}
	filter, err := parseJourneyFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.DriverID = claims.UserID
	h.list(w, r, filter)
}

// List lists journeys of any driver, filtered by the driver_id, plate, from,
// to and limit query parameters.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseJourneyFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.DriverID = r.URL.Query().Get("driver_id")
	h.list(w, r, filter)
}

func (h *HistoryHandler) list(w http.ResponseWriter, r *http.Request, filter models.JourneyFilter) {
	journeys, err := h.journeys.FindJourneys(r.Context(), filter)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, journeys)
}

// Get returns one journey. Drivers may only read their own.
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "User context not found")
		return
	}
	j, err := h.journeys.FindJourneyByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}
	viewer := &models.User{Role: claims.Role}
	if j.DriverID != claims.UserID && !viewer.HasPermission(models.PermViewJourneys) {
		writeError(w, http.StatusNotFound, db.ErrNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, j)
}

type filterError string

func (e filterError) Error() string { return string(e) }

func parseJourneyFilter(r *http.Request) (models.JourneyFilter, error) {
	q := r.URL.Query()
	f := models.JourneyFilter{Plate: q.Get("plate")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			return f, filterError("limit must be a positive integer")
		}
		f.Limit = n
	}
	for name, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, filterError(name + " must be an RFC 3339 timestamp")
		}
		*dst = t
	}
	return f, nil
}
