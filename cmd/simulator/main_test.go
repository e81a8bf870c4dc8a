package main

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-journey/internal/auth"
	"github.com/ukydev/fleet-journey/internal/db"
	"github.com/ukydev/fleet-journey/internal/handlers"
	"github.com/ukydev/fleet-journey/internal/middleware"
	"github.com/ukydev/fleet-journey/internal/models"
	"github.com/ukydev/fleet-journey/internal/session"
	"github.com/ukydev/fleet-journey/internal/telemetry"
)

// memUsers is a concurrency-safe in-memory user store.
type memUsers struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newMemUsers() *memUsers { return &memUsers{users: map[string]models.User{}} }

func (m *memUsers) InsertUser(_ context.Context, u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.IsActive = true
	m.users[u.ID.Hex()] = u
	return nil
}

func (m *memUsers) find(match func(models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memUsers) FindUserByID(_ context.Context, id string) (*models.User, error) {
	return m.find(func(u models.User) bool { return u.ID.Hex() == id })
}

func (m *memUsers) FindUserByUsername(_ context.Context, username string) (*models.User, error) {
	return m.find(func(u models.User) bool { return u.Username == username })
}

func (m *memUsers) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	return m.find(func(u models.User) bool { return u.Email == email })
}

func (m *memUsers) UpdateUser(_ context.Context, id string, u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return db.ErrNotFound
	}
	m.users[id] = u
	return nil
}

func (m *memUsers) UpdateLastLogin(context.Context, string) error { return nil }

// memHistory records finished journeys.
type memHistory struct {
	mu      sync.Mutex
	records []models.JourneyRecord
}

func (m *memHistory) InsertJourney(_ context.Context, j models.JourneyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, j)
	return nil
}

func (m *memHistory) all() []models.JourneyRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.JourneyRecord(nil), m.records...)
}

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

// newAPI serves the auth and journey routes the simulator uses.
func newAPI(t *testing.T) (*httptest.Server, *memHistory) {
	t.Helper()
	authService, err := auth.NewService("sim-secret", time.Hour)
	require.NoError(t, err)
	logger := quietLogger()
	history := &memHistory{}
	manager := session.NewManager(session.WithLogger(logger), session.WithHistory(history))

	authMW := middleware.NewAuthMiddleware(authService)
	authHandler := handlers.NewAuthHandler(authService, newMemUsers(), logger)
	journeyHandler := handlers.NewJourneyHandler(manager, nil, logger)

	r := chi.NewRouter()
	r.Use(authMW.Authenticate)
	r.Post("/api/auth/login", authHandler.Login)
	r.Post("/api/auth/register", authHandler.Register)
	r.With(authMW.RequirePermission(models.PermDrive)).Route("/api/journey", journeyHandler.Routes)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, history
}

func testConfig(url string) simConfig {
	return simConfig{
		APIURL:     url,
		Password:   "simulated-pass",
		UserPrefix: "sim",
		Drivers:    2,
		TickHours:  0.5,
		DriveTicks: 4,
		PauseTicks: 1,
		SpeedKmh:   60,
		Seed:       7,
	}
}

func TestSimulate_FinishesEveryDriver(t *testing.T) {
	srv, history := newAPI(t)

	err := simulate(context.Background(), testConfig(srv.URL), quietLogger())
	require.NoError(t, err)

	records := history.all()
	require.Len(t, records, 2)
	drivers := map[string]bool{}
	for _, rec := range records {
		drivers[rec.DriverID] = true
		assert.GreaterOrEqual(t, rec.DistanceKm, int64(0))
		assert.False(t, rec.OdometerRollback)
		assert.False(t, rec.HasProblems)
		assert.Contains(t, rec.Observations, "simulated journey to")
		assert.True(t, strings.HasPrefix(rec.Plate, "SIM"), rec.Plate)
	}
	assert.Len(t, drivers, 2)
}

func TestSimulate_SecondRunLogsIn(t *testing.T) {
	srv, history := newAPI(t)
	cfg := testConfig(srv.URL)
	cfg.Drivers = 1

	require.NoError(t, simulate(context.Background(), cfg, quietLogger()))
	require.NoError(t, simulate(context.Background(), cfg, quietLogger()))

	records := history.all()
	require.Len(t, records, 2)
	assert.Equal(t, records[0].DriverID, records[1].DriverID)
}

func TestSimulate_FailedInspection(t *testing.T) {
	srv, history := newAPI(t)
	cfg := testConfig(srv.URL)
	cfg.Drivers = 1
	cfg.FailRate = 1

	require.NoError(t, simulate(context.Background(), cfg, quietLogger()))
	records := history.all()
	require.Len(t, records, 1)
	assert.True(t, records[0].HasProblems)
}

func TestSimulate_Unreachable(t *testing.T) {
	srv, _ := newAPI(t)
	url := srv.URL
	srv.Close()

	cfg := testConfig(url)
	cfg.Drivers = 1
	assert.Error(t, simulate(context.Background(), cfg, quietLogger()))
}

type fixRecorder struct {
	mu    sync.Mutex
	fixes []models.LocationFix
}

func (r *fixRecorder) Report(_ context.Context, fix models.LocationFix) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fixes = append(r.fixes, fix)
	return nil
}

func TestDriverSim_ReportsEveryTick(t *testing.T) {
	srv, _ := newAPI(t)
	cfg := testConfig(srv.URL)
	cfg.SpeedKmh = 1
	cfg.TickHours = 0.01

	rec := &fixRecorder{}
	sim := &driverSim{
		cfg:      cfg,
		username: "ticker",
		client:   newAPIClient(srv.URL),
		reporter: func(*apiClient) locationReporter { return rec },
		rng:      rand.New(rand.NewSource(1)),
		log:      quietLogger().WithField("username", "ticker"),
	}
	res, err := sim.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "finished", res.Outcome)
	require.Len(t, rec.fixes, cfg.DriveTicks)
	for _, fix := range rec.fixes {
		assert.Equal(t, sim.client.userID, fix.DriverID)
	}
}

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type topicRecorder struct{ topics []string }

func (c *topicRecorder) Publish(topic string, _ byte, _ bool, _ interface{}) mqtt.Token {
	c.topics = append(c.topics, topic)
	return doneToken{}
}

func TestMQTTReporter(t *testing.T) {
	client := &topicRecorder{}
	r := mqttReporter{pub: telemetry.NewPublisher(client, "fleet/drivers")}
	err := r.Report(context.Background(), models.LocationFix{DriverID: "d1", Timestamp: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, []string{"fleet/drivers/d1/location"}, client.topics)
}

func TestAPIClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Invalid transition"})
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL + "/")
	_, err := c.journeyCall(context.Background(), http.MethodPost, "/start", nil)
	require.Error(t, err)
	assert.True(t, isStatus(err, http.StatusConflict))
	assert.False(t, isStatus(err, http.StatusNotFound))
	assert.Contains(t, err.Error(), "Invalid transition")
	assert.False(t, isStatus(context.Canceled, http.StatusConflict))
}

func TestAPIClient_Login(t *testing.T) {
	srv, _ := newAPI(t)
	c := newAPIClient(srv.URL)

	err := c.login(context.Background(), "nobody", "simulated-pass")
	assert.True(t, isStatus(err, http.StatusUnauthorized))

	require.NoError(t, c.register(context.Background(), models.RegisterRequest{
		Username: "somebody",
		Email:    "somebody@drivers.example.com",
		Password: "simulated-pass",
	}))
	assert.NotEmpty(t, c.token)
	id := c.userID

	c = newAPIClient(srv.URL)
	require.NoError(t, c.login(context.Background(), "somebody", "simulated-pass"))
	assert.Equal(t, id, c.userID)
}

func TestRoute_Step(t *testing.T) {
	rt := planRoute(rand.New(rand.NewSource(3)), 80)
	require.NotEqual(t, rt.From.Name, rt.To.Name)
	assert.Greater(t, rt.LengthKm, 0.0)

	first := rt.step(0.1)
	assert.NotEqual(t, rt.Start, first)
	assert.InDelta(t, 8, rt.DrivenKm(), 0.6)
	assert.False(t, rt.Done())

	for i := 0; i < 10000 && !rt.Done(); i++ {
		rt.step(1)
	}
	require.True(t, rt.Done())
	assert.Equal(t, rt.End, rt.step(1))
	assert.Equal(t, rt.LengthKm, rt.DrivenKm())
}

func TestJitterLocation(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	base := cities[0].Location
	for i := 0; i < 100; i++ {
		loc := jitterLocation(rng, base, 500)
		assert.Less(t, base.DistanceKm(loc), 0.75)
	}
}

func TestRootCmd_Validation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no drivers", []string{"--drivers", "0"}, "--drivers"},
		{"no driving", []string{"--drive-ticks", "0"}, "--drive-ticks"},
		{"bad log level", []string{"--log-level", "loud"}, "--log-level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetArgs(tt.args)
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
