// Command simulator drives simulated drivers through a full work day against
// the journey API and streams their positions over MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/ukydev/fleet-journey/internal/models"
	"github.com/ukydev/fleet-journey/internal/telemetry"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func newRootCmd() *cobra.Command {
	cfg := simConfig{}
	var logLevel string

	cmd := &cobra.Command{
		Use:   "simulator",
		Short: "Simulate drivers running journeys against the fleet journey API",
		Long: `simulator logs in one or more drivers (registering them on first use),
runs each through inspection, driving with a meal break, checkout and end,
and reports their positions over MQTT or, without a broker, over HTTP.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level, err := log.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid --log-level: %w", err)
			}
			log.SetLevel(level)
			if cfg.Drivers < 1 {
				return errors.New("--drivers must be at least 1")
			}
			if cfg.DriveTicks < 1 {
				return errors.New("--drive-ticks must be at least 1")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return simulate(ctx, cfg, log.StandardLogger())
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.APIURL, "api-url", envOr("API_BASE_URL", "http://localhost:8080"), "journey API base URL")
	f.StringVar(&cfg.UserPrefix, "user-prefix", envOr("SIM_USER_PREFIX", "simdriver"), "driver usernames are <prefix><n>")
	f.StringVar(&cfg.Password, "password", envOr("SIM_PASSWORD", "simulated-pass"), "password of the simulated drivers")
	f.IntVar(&cfg.Drivers, "drivers", envInt("SIM_DRIVERS", 3), "number of concurrent drivers")
	f.StringVar(&cfg.Broker, "broker", os.Getenv("MQTT_BROKER"), "MQTT broker URL; empty reports locations over HTTP")
	f.StringVar(&cfg.TopicPrefix, "topic-prefix", envOr("MQTT_TOPIC_PREFIX", "fleet/drivers"), "MQTT topic prefix")
	f.DurationVar(&cfg.Tick, "tick", 2*time.Second, "wall-clock time between simulation steps")
	f.Float64Var(&cfg.TickHours, "tick-hours", 0.25, "simulated driving hours per step")
	f.IntVar(&cfg.DriveTicks, "drive-ticks", 20, "maximum driving steps per journey")
	f.IntVar(&cfg.PauseTicks, "pause-ticks", 3, "steps spent on the meal break; 0 skips it")
	f.Float64Var(&cfg.SpeedKmh, "speed", 70, "average speed in km/h")
	f.Float64Var(&cfg.FailRate, "fail-rate", 0.05, "probability that an inspection item fails")
	f.Int64Var(&cfg.Seed, "seed", time.Now().UnixNano(), "random seed")
	f.StringVar(&logLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level")

	return cmd
}

// mqttReporter publishes positions on the driver's location topic.
type mqttReporter struct{ pub *telemetry.Publisher }

func (r mqttReporter) Report(ctx context.Context, fix models.LocationFix) error {
	return r.pub.PublishLocation(ctx, fix)
}

// simulate runs every driver once, concurrently, and returns the first error.
func simulate(ctx context.Context, cfg simConfig, logger *log.Logger) error {
	reporter := func(c *apiClient) locationReporter { return apiReporter{client: c} }
	if cfg.Broker != "" {
		client, err := telemetry.Connect(telemetry.Options{
			Broker:   cfg.Broker,
			ClientID: fmt.Sprintf("fleet-simulator-%d", cfg.Seed),
		}, logger)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		pub := telemetry.NewPublisher(client, cfg.TopicPrefix)
		reporter = func(*apiClient) locationReporter { return mqttReporter{pub: pub} }
	}

	logger.WithFields(log.Fields{
		"drivers": cfg.Drivers,
		"api_url": cfg.APIURL,
		"broker":  cfg.Broker,
		"tick":    cfg.Tick,
	}).Info("Starting driver simulation")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		finished int
	)
	for i := 1; i <= cfg.Drivers; i++ {
		username := fmt.Sprintf("%s%d", cfg.UserPrefix, i)
		sim := &driverSim{
			cfg:      cfg,
			username: username,
			client:   newAPIClient(cfg.APIURL),
			reporter: reporter,
			rng:      rand.New(rand.NewSource(cfg.Seed + int64(i))),
			log:      logger.WithField("username", username),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := sim.run(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				sim.log.WithError(err).Error("simulation failed")
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			if res.Outcome == "finished" {
				finished++
			}
		}()
	}
	wg.Wait()

	logger.WithFields(log.Fields{"finished": finished, "drivers": cfg.Drivers}).Info("Driver simulation completed")
	return firstErr
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
