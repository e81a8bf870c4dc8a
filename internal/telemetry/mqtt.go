// Package telemetry connects the journey service to the MQTT broker: driver
// devices publish location fixes and the service publishes journey events.
//
// Topics are laid out per driver under a common prefix:
//
//	<prefix>/<driverID>/location   location fixes (JSON models.LocationFix)
//	<prefix>/<driverID>/journey    journey events (JSON models.JourneyEvent)
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

const (
	locationSuffix = "location"
	journeySuffix  = "journey"

	defaultTimeout = 5 * time.Second
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqtt: timed out waiting for broker")

// Options describes the broker connection.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Timeout  time.Duration
}

// Connect opens a client connection with automatic reconnects.
func Connect(opts Options, logger *log.Logger) (mqtt.Client, error) {
	if opts.Broker == "" {
		return nil, errors.New("mqtt: broker URL is empty")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.WithError(err).Warn("mqtt connection lost")
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			logger.WithField("broker", opts.Broker).Info("mqtt connected")
		})
	if opts.Username != "" {
		co.SetUsername(opts.Username).SetPassword(opts.Password)
	}

	client := mqtt.NewClient(co)
	if err := wait(context.Background(), client.Connect(), timeout); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", opts.Broker, err)
	}
	return client, nil
}

// LocationTopic returns the topic a driver's device publishes fixes on. Use
// "+" as driverID to match every driver.
func LocationTopic(prefix, driverID string) string {
	return prefix + "/" + driverID + "/" + locationSuffix
}

// JourneyTopic returns the topic journey events for a driver are published on.
func JourneyTopic(prefix, driverID string) string {
	return prefix + "/" + driverID + "/" + journeySuffix
}

func wait(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	}
}
