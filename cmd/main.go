// Command fleet-journey serves the driver journey API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-journey/internal/auth"
	"github.com/ukydev/fleet-journey/internal/config"
	"github.com/ukydev/fleet-journey/internal/db"
	"github.com/ukydev/fleet-journey/internal/session"
	"github.com/ukydev/fleet-journey/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("configuration error")
	}
	logger := cfg.NewLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	client, err := db.ConnectMongo(ctx, cfg.MongoURI)
	cancel()
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to MongoDB")
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.WithError(err).Warn("mongo disconnect")
		}
	}()
	database := client.Database(cfg.MongoDB)
	if err := db.EnsureIndexes(context.Background(), database); err != nil {
		logger.WithError(err).Fatal("failed to create indexes")
	}
	logger.WithField("database", cfg.MongoDB).Info("connected to MongoDB")

	authService, err := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		logger.WithError(err).Fatal("failed to create auth service")
	}

	journeys := &db.MongoJourneyCollection{Collection: database.Collection(db.JourneysCollection)}
	vehicles := &db.MongoVehicleCollection{Collection: database.Collection(db.VehiclesCollection)}
	users := &db.MongoUserCollection{Collection: database.Collection(db.UsersCollection)}

	opts := []session.Option{
		session.WithLogger(logger),
		session.WithHistory(journeys),
		session.WithOdometer(vehicles),
	}

	var broker mqtt.Client
	if cfg.MQTTEnabled() {
		broker, err = telemetry.Connect(telemetry.Options{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		}, logger)
		if err != nil {
			// Journeys keep working without live locations and events.
			logger.WithError(err).Warn("MQTT unavailable, continuing without telemetry")
		} else {
			opts = append(opts, session.WithPublisher(telemetry.NewPublisher(broker, cfg.MQTTTopicPrefix)))
		}
	}
	manager := session.NewManager(opts...)

	if broker != nil {
		sub := telemetry.NewSubscriber(broker, cfg.MQTTTopicPrefix, manager, logger)
		if err := sub.Start(context.Background()); err != nil {
			logger.WithError(err).Warn("failed to subscribe to driver locations")
		}
		defer broker.Disconnect(250)
	}

	srv := &server{
		log:               logger,
		auth:              authService,
		users:             users,
		journeys:          journeys,
		vehicles:          vehicles,
		manager:           manager,
		ping:              func(ctx context.Context) error { return client.Ping(ctx, nil) },
		rateLimitRequests: cfg.RateLimitRequests,
		rateLimitWindow:   cfg.RateLimitWindow,
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.WithFields(log.Fields{"addr": httpServer.Addr, "environment": cfg.Environment}).Info("server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	<-stop
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown error")
	}
	manager.Drain()
	if n := manager.ActiveDrivers(); n > 0 {
		logger.WithField("active_journeys", n).Warn("in-progress journeys are not persisted and will be lost")
	}
	logger.Info("server stopped")
}
