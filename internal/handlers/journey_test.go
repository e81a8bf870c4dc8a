package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-journey/internal/db"
	"github.com/ukydev/fleet-journey/internal/journey"
	"github.com/ukydev/fleet-journey/internal/models"
	"github.com/ukydev/fleet-journey/internal/session"
	"github.com/ukydev/fleet-journey/internal/tachograph"
)

type journeyFixture struct {
	t        *testing.T
	now      time.Time
	history  *MockJourneyCollection
	vehicles *MockVehicleCollection
	router   chi.Router
	claims   *models.Claims
}

func newJourneyFixture(t *testing.T) *journeyFixture {
	f := &journeyFixture{
		t:        t,
		now:      time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC),
		history:  new(MockJourneyCollection),
		vehicles: new(MockVehicleCollection),
		claims:   driverClaims("d1"),
	}
	clock := func() time.Time { return f.now }
	manager := session.NewManager(
		session.WithClock(clock),
		session.WithLogger(testLogger()),
		session.WithHistory(f.history),
		session.WithOdometer(f.vehicles),
	)
	h := NewJourneyHandler(manager, f.vehicles, testLogger())
	h.now = clock

	f.router = chi.NewRouter()
	f.router.Route("/api/journey", h.Routes)
	f.router.Get("/api/journeys/{id}", NewHistoryHandler(f.history, testLogger()).Get)
	return f
}

func (f *journeyFixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, newRequest(f.t, method, path, body, f.claims))
	return w
}

func (f *journeyFixture) snapshot(w *httptest.ResponseRecorder) journey.Snapshot {
	f.t.Helper()
	require.Equal(f.t, http.StatusOK, w.Code, w.Body.String())
	var snap journey.Snapshot
	decodeBody(f.t, w, &snap)
	return snap
}

func (f *journeyFixture) passInspection() {
	f.t.Helper()
	f.snapshot(f.do(http.MethodPost, "/api/journey/inspection", nil))
	for _, item := range journey.DefaultChecklist {
		f.snapshot(f.do(http.MethodPut, "/api/journey/inspection/items/"+item.ID, map[string]interface{}{"checked": true}))
	}
	f.snapshot(f.do(http.MethodPost, "/api/journey/inspection/complete", nil))
}

func TestJourneyHandler_FullDay(t *testing.T) {
	f := newJourneyFixture(t)

	snap := f.snapshot(f.do(http.MethodGet, "/api/journey/", nil))
	assert.Equal(t, journey.StatusInactive, snap.Status)
	assert.Equal(t, "Driver d1", snap.Driver.Name)

	f.passInspection()

	f.vehicles.On("FindVehicleByPlate", mock.Anything, "ABC1D23").Return(&models.Vehicle{Plate: "ABC1D23", Model: "Actros"}, nil)
	snap = f.snapshot(f.do(http.MethodPost, "/api/journey/start", map[string]interface{}{
		"start_km": 1000, "plate": "abc-1d23", "location": "Depot",
	}))
	assert.Equal(t, journey.StatusOnJourney, snap.Status)
	require.NotNil(t, snap.Vehicle)
	assert.Equal(t, "Actros", snap.Vehicle.Model)

	f.now = f.now.Add(2 * time.Hour)
	snap = f.snapshot(f.do(http.MethodPost, "/api/journey/pause", map[string]string{"type": "meal"}))
	assert.Equal(t, journey.StatusMeal, snap.Status)
	assert.Equal(t, "02:00:00", snap.Elapsed)

	f.now = f.now.Add(45 * time.Minute)
	f.snapshot(f.do(http.MethodPost, "/api/journey/resume", nil))

	f.snapshot(f.do(http.MethodPut, "/api/journey/location", map[string]string{"location": "Customer"}))

	f.now = f.now.Add(time.Hour)
	snap = f.snapshot(f.do(http.MethodPost, "/api/journey/checkout", nil))
	assert.Equal(t, journey.StatusCheckout, snap.Status)

	snap = f.snapshot(f.do(http.MethodPut, "/api/journey/checkout", map[string]string{"end_km": "1180", "observations": "ok"}))
	require.NotNil(t, snap.EndKm)
	assert.Equal(t, int64(1180), *snap.EndKm)

	var stored models.JourneyRecord
	f.history.On("InsertJourney", mock.Anything, mock.MatchedBy(func(j models.JourneyRecord) bool {
		return j.DriverID == "d1" && j.DistanceKm == 180 && j.MealSeconds == 45*60 && j.EndLocation == "Customer"
	})).Run(func(args mock.Arguments) {
		stored = args.Get(1).(models.JourneyRecord)
	}).Return(nil)
	f.vehicles.On("UpdateOdometer", mock.Anything, "ABC1D23", int64(1180)).Return(nil)

	w := f.do(http.MethodPost, "/api/journey/end", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res endJourneyResponse
	decodeBody(t, w, &res)
	assert.Equal(t, "finished", res.Outcome)
	require.NotNil(t, res.Journey)
	assert.Equal(t, int64(3*3600), res.Journey.DrivingSeconds)

	// The id handed back is the one the record was stored under.
	require.False(t, res.Journey.ID.IsZero())
	assert.Equal(t, stored.ID, res.Journey.ID)
	f.history.On("FindJourneyByID", mock.Anything, res.Journey.ID.Hex()).Return(&stored, nil)
	w = f.do(http.MethodGet, "/api/journeys/"+res.Journey.ID.Hex(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var fetched models.JourneyRecord
	decodeBody(t, w, &fetched)
	assert.Equal(t, res.Journey.JourneyID, fetched.JourneyID)

	snap = f.snapshot(f.do(http.MethodGet, "/api/journey/", nil))
	assert.Equal(t, journey.StatusInactive, snap.Status)
	f.history.AssertExpectations(t)
	f.vehicles.AssertExpectations(t)
}

func TestJourneyHandler_Refusals(t *testing.T) {
	f := newJourneyFixture(t)

	w := f.do(http.MethodPost, "/api/journey/pause", map[string]string{"type": "rest"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodPost, "/api/journey/resume", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodPut, "/api/journey/location", map[string]string{"location": "x"})
	assert.Equal(t, http.StatusConflict, w.Code)

	f.snapshot(f.do(http.MethodPost, "/api/journey/inspection", nil))

	w = f.do(http.MethodPut, "/api/journey/inspection/items/wipers", map[string]interface{}{"checked": true})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPut, "/api/journey/inspection/items/tires", map[string]interface{}{"problem": "flat"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "checked is required")

	w = f.do(http.MethodPost, "/api/journey/inspection/complete", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	f.snapshot(f.do(http.MethodPut, "/api/journey/inspection/items/tires", map[string]interface{}{"checked": false}))
	for _, item := range journey.DefaultChecklist[1:] {
		f.snapshot(f.do(http.MethodPut, "/api/journey/inspection/items/"+item.ID, map[string]interface{}{"checked": true}))
	}
	w = f.do(http.MethodPost, "/api/journey/inspection/complete", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "failed item needs a problem")

	w = f.do(http.MethodPost, "/api/journey/start", map[string]string{"start_km": "1000"})
	assert.Equal(t, http.StatusConflict, w.Code)

	f.snapshot(f.do(http.MethodPut, "/api/journey/inspection/items/tires", map[string]interface{}{"checked": false, "problem": "worn tread"}))
	snap := f.snapshot(f.do(http.MethodPost, "/api/journey/inspection/complete", nil))
	assert.Equal(t, journey.StatusReadyToStart, snap.Status)
	assert.True(t, snap.HasProblems)

	w = f.do(http.MethodPost, "/api/journey/inspection", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodPost, "/api/journey/start", "{broken")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJourneyHandler_MalformedOdometer(t *testing.T) {
	f := newJourneyFixture(t)
	f.passInspection()

	for _, km := range []interface{}{"abc", "", "-5", nil} {
		w := f.do(http.MethodPost, "/api/journey/start", map[string]interface{}{"start_km": km, "plate": "ABC1D23", "model": "Actros"})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "start_km %v", km)
	}
	snap := f.snapshot(f.do(http.MethodGet, "/api/journey/", nil))
	assert.Equal(t, journey.StatusReadyToStart, snap.Status)

	w := f.do(http.MethodPost, "/api/journey/pause", map[string]string{"type": "rest"})
	assert.Equal(t, http.StatusConflict, w.Code)

	f.snapshot(f.do(http.MethodPost, "/api/journey/start", map[string]interface{}{"start_km": "1000", "plate": "ABC1D23", "model": "Actros"}))
	w = f.do(http.MethodPost, "/api/journey/pause", map[string]string{"type": "nap"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	f.vehicles.AssertNotCalled(t, "FindVehicleByPlate", mock.Anything, mock.Anything)
}

func TestJourneyHandler_EndCancelsAndIsIdempotent(t *testing.T) {
	f := newJourneyFixture(t)
	f.snapshot(f.do(http.MethodPost, "/api/journey/inspection", nil))

	var res endJourneyResponse
	w := f.do(http.MethodPost, "/api/journey/end", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &res)
	assert.Equal(t, "cancelled", res.Outcome)
	assert.Nil(t, res.Journey)

	w = f.do(http.MethodPost, "/api/journey/end", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &res)
	assert.Equal(t, "inactive", res.Outcome)

	f.history.AssertNotCalled(t, "InsertJourney", mock.Anything, mock.Anything)
}

func TestJourneyHandler_EndPersistenceFailure(t *testing.T) {
	f := newJourneyFixture(t)
	f.passInspection()
	f.snapshot(f.do(http.MethodPost, "/api/journey/start", map[string]interface{}{"start_km": "10", "plate": "ABC1D23", "model": "Actros"}))
	f.now = f.now.Add(time.Hour)
	f.snapshot(f.do(http.MethodPost, "/api/journey/checkout", nil))
	f.snapshot(f.do(http.MethodPut, "/api/journey/checkout", map[string]interface{}{"end_km": 50}))

	f.history.On("InsertJourney", mock.Anything, mock.Anything).Return(assert.AnError)
	f.vehicles.On("UpdateOdometer", mock.Anything, "ABC1D23", int64(50)).Return(db.ErrNotFound)

	w := f.do(http.MethodPost, "/api/journey/end", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	snap := f.snapshot(f.do(http.MethodGet, "/api/journey/", nil))
	assert.Equal(t, journey.StatusInactive, snap.Status)
}

func TestJourneyHandler_Tachograph(t *testing.T) {
	f := newJourneyFixture(t)
	f.passInspection()
	f.snapshot(f.do(http.MethodPost, "/api/journey/start", map[string]interface{}{"start_km": "10", "plate": "ABC1D23", "model": "Actros"}))
	f.now = f.now.Add(5 * time.Hour)

	w := f.do(http.MethodGet, "/api/journey/tachograph", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report tachograph.Report
	decodeBody(t, w, &report)
	assert.Equal(t, 5*time.Hour, report.DrivingTime)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, tachograph.KindContinuousDriving, report.Findings[0].Kind)
	assert.Equal(t, 30*time.Minute, report.Findings[0].Excess)
}

func TestJourneyHandler_DriversAreIsolated(t *testing.T) {
	f := newJourneyFixture(t)
	f.snapshot(f.do(http.MethodPost, "/api/journey/inspection", nil))

	f.claims = driverClaims("d2")
	snap := f.snapshot(f.do(http.MethodGet, "/api/journey/", nil))
	assert.Equal(t, journey.StatusInactive, snap.Status)
	assert.Equal(t, "d2", snap.Driver.ID)
}

func TestJourneyHandler_NoClaims(t *testing.T) {
	f := newJourneyFixture(t)
	f.claims = nil
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/journey/", nil).Code)
}

func TestOdometerInput(t *testing.T) {
	var req startJourneyRequest
	for body, want := range map[string]string{
		`{"start_km":"1 000"}`: "1 000",
		`{"start_km":1250}`:    "1250",
		`{"start_km":12.5}`:    "12.5",
		`{"start_km":null}`:    "",
		`{}`:                   "",
	} {
		req = startJourneyRequest{}
		w := httptest.NewRecorder()
		require.NoError(t, decodeJSON(w, newRequest(t, http.MethodPost, "/", body, nil), &req), body)
		assert.Equal(t, want, string(req.StartKm), body)
	}
}
