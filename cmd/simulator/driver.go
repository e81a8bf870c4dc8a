package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-journey/internal/journey"
	"github.com/ukydev/fleet-journey/internal/models"
)

// simConfig holds the simulator flags.
type simConfig struct {
	APIURL      string
	Password    string
	UserPrefix  string
	Drivers     int
	Broker      string
	TopicPrefix string
	Tick        time.Duration
	TickHours   float64
	DriveTicks  int
	PauseTicks  int
	SpeedKmh    float64
	FailRate    float64
	Seed        int64
}

// locationReporter sends a driver's position to the service.
type locationReporter interface {
	Report(ctx context.Context, fix models.LocationFix) error
}

// apiReporter reports positions through the REST endpoint.
type apiReporter struct{ client *apiClient }

func (r apiReporter) Report(ctx context.Context, fix models.LocationFix) error {
	_, err := r.client.journeyCall(ctx, http.MethodPut, "/location", map[string]string{"location": fix.Describe()})
	return err
}

var problems = []string{"low pressure", "leak under the engine", "warning light on", "cracked lens"}

// driverSim runs one driver's day against the API.
type driverSim struct {
	cfg      simConfig
	username string
	client   *apiClient
	reporter func(*apiClient) locationReporter
	rng      *rand.Rand
	log      *log.Entry
}

// result summarises a simulated journey.
type result struct {
	Outcome    string
	DistanceKm int64
	Problems   bool
}

func (d *driverSim) authenticate(ctx context.Context) error {
	err := d.client.login(ctx, d.username, d.cfg.Password)
	if !isStatus(err, http.StatusUnauthorized) {
		return err
	}
	d.log.Info("driver account not found, registering")
	return d.client.register(ctx, models.RegisterRequest{
		Username:  d.username,
		Email:     d.username + "@drivers.example.com",
		Password:  d.cfg.Password,
		FirstName: "Simulated",
		LastName:  d.username,
		Role:      models.RoleDriver,
	})
}

func (d *driverSim) sleep(ctx context.Context) error {
	if d.cfg.Tick <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d.cfg.Tick)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *driverSim) inspect(ctx context.Context) (bool, error) {
	snap, err := d.client.journeyCall(ctx, http.MethodPost, "/inspection", nil)
	if err != nil {
		return false, fmt.Errorf("start inspection: %w", err)
	}
	failed := false
	for _, item := range snap.Inspection {
		body := map[string]interface{}{"checked": true}
		if d.rng.Float64() < d.cfg.FailRate {
			failed = true
			body = map[string]interface{}{"checked": false, "problem": problems[d.rng.Intn(len(problems))]}
		}
		if _, err := d.client.journeyCall(ctx, http.MethodPut, "/inspection/items/"+item.ID, body); err != nil {
			return false, fmt.Errorf("inspect %s: %w", item.ID, err)
		}
	}
	if _, err := d.client.journeyCall(ctx, http.MethodPost, "/inspection/complete", map[string]bool{"has_problems": failed}); err != nil {
		return false, fmt.Errorf("complete inspection: %w", err)
	}
	return failed, nil
}

// run drives one full journey: inspection, driving with a meal break,
// checkout and end.
func (d *driverSim) run(ctx context.Context) (result, error) {
	if err := d.authenticate(ctx); err != nil {
		return result{}, fmt.Errorf("authenticate %s: %w", d.username, err)
	}
	d.log = d.log.WithField("driver_id", d.client.userID)
	reporter := d.reporter(d.client)

	// Leave any journey a previous run left open.
	if err := d.client.do(ctx, http.MethodPost, "/api/journey/end", nil, nil); err != nil {
		return result{}, fmt.Errorf("reset journey: %w", err)
	}

	failed, err := d.inspect(ctx)
	if err != nil {
		return result{}, err
	}

	rt := planRoute(d.rng, d.cfg.SpeedKmh)
	startKm := 10000 + d.rng.Int63n(200000)
	plate := fmt.Sprintf("SIM%04d", d.rng.Intn(10000))
	if _, err := d.client.journeyCall(ctx, http.MethodPost, "/start", map[string]string{
		"start_km": strconv.FormatInt(startKm, 10),
		"plate":    plate,
		"model":    "Simulated truck",
		"location": rt.From.Name,
	}); err != nil {
		return result{}, fmt.Errorf("start journey: %w", err)
	}
	d.log.WithFields(log.Fields{
		"from":     rt.From.Name,
		"to":       rt.To.Name,
		"route_km": int64(rt.LengthKm),
		"plate":    plate,
	}).Info("journey started")

	pauseAt := d.cfg.DriveTicks / 2
	for tick := 0; tick < d.cfg.DriveTicks && !rt.Done(); tick++ {
		if tick == pauseAt && d.cfg.PauseTicks > 0 {
			if err := d.pause(ctx); err != nil {
				return result{}, err
			}
		}
		pos := rt.step(d.cfg.TickHours)
		fix := models.LocationFix{DriverID: d.client.userID, Location: pos, Timestamp: time.Now()}
		if err := reporter.Report(ctx, fix); err != nil {
			d.log.WithError(err).Warn("failed to report location")
		}
		if err := d.sleep(ctx); err != nil {
			return result{}, err
		}
	}

	if _, err := d.client.journeyCall(ctx, http.MethodPost, "/checkout", nil); err != nil {
		return result{}, fmt.Errorf("start checkout: %w", err)
	}
	endKm := startKm + int64(rt.DrivenKm())
	if _, err := d.client.journeyCall(ctx, http.MethodPut, "/checkout", map[string]string{
		"end_km":       strconv.FormatInt(endKm, 10),
		"observations": "simulated journey to " + rt.To.Name,
	}); err != nil {
		return result{}, fmt.Errorf("confirm checkout: %w", err)
	}
	var final endResponse
	if err := d.client.do(ctx, http.MethodPost, "/api/journey/end", nil, &final); err != nil {
		return result{}, fmt.Errorf("end journey: %w", err)
	}

	out := result{Outcome: final.Outcome, Problems: failed}
	if final.Journey != nil {
		out.DistanceKm = final.Journey.DistanceKm
	}
	d.log.WithFields(log.Fields{
		"outcome":     out.Outcome,
		"distance_km": out.DistanceKm,
		"problems":    failed,
	}).Info("journey ended")
	return out, nil
}

func (d *driverSim) pause(ctx context.Context) error {
	if _, err := d.client.journeyCall(ctx, http.MethodPost, "/pause", map[string]journey.PauseType{"type": journey.PauseMeal}); err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	d.log.Info("meal break")
	for i := 0; i < d.cfg.PauseTicks; i++ {
		if err := d.sleep(ctx); err != nil {
			return err
		}
	}
	if _, err := d.client.journeyCall(ctx, http.MethodPost, "/resume", nil); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	return nil
}

type endResponse struct {
	Outcome string                `json:"outcome"`
	Journey *models.JourneyRecord `json:"journey,omitempty"`
}
