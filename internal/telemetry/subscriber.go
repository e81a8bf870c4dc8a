package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-journey/internal/journey"
	"github.com/ukydev/fleet-journey/internal/models"
)

type subscribeClient interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// LocationSink receives the location label of a driver's active journey.
type LocationSink interface {
	UpdateLocation(driverID, label string) error
}

// Subscriber forwards location fixes from the broker to a LocationSink.
type Subscriber struct {
	client subscribeClient
	prefix string
	sink   LocationSink
	log    *log.Logger
}

func NewSubscriber(client subscribeClient, prefix string, sink LocationSink, logger *log.Logger) *Subscriber {
	return &Subscriber{client: client, prefix: prefix, sink: sink, log: logger}
}

// Start subscribes to the location topic of every driver.
func (s *Subscriber) Start(ctx context.Context) error {
	topic := LocationTopic(s.prefix, "+")
	if err := wait(ctx, s.client.Subscribe(topic, 1, s.handle), defaultTimeout); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	s.log.WithField("topic", topic).Info("subscribed to driver locations")
	return nil
}

// Stop removes the subscription.
func (s *Subscriber) Stop(ctx context.Context) error {
	return wait(ctx, s.client.Unsubscribe(LocationTopic(s.prefix, "+")), defaultTimeout)
}

func (s *Subscriber) handle(_ mqtt.Client, msg mqtt.Message) {
	entry := s.log.WithField("topic", msg.Topic())
	driverID, ok := DriverFromTopic(s.prefix, msg.Topic())
	if !ok {
		entry.Warn("ignoring message on unexpected topic")
		return
	}
	var fix models.LocationFix
	if err := json.Unmarshal(msg.Payload(), &fix); err != nil {
		entry.WithError(err).Warn("ignoring malformed location fix")
		return
	}
	if fix.DriverID != "" && fix.DriverID != driverID {
		entry.WithField("payload_driver_id", fix.DriverID).Warn("location fix driver does not match topic")
		return
	}
	err := s.sink.UpdateLocation(driverID, fix.Describe())
	switch {
	case errors.Is(err, journey.ErrNotActive):
		entry.WithField("driver_id", driverID).Debug("location fix for inactive journey")
	case err != nil:
		entry.WithError(err).Error("failed to update location")
	}
}

// DriverFromTopic extracts the driver id from a location topic.
func DriverFromTopic(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return "", false
	}
	driverID, suffix, ok := strings.Cut(rest, "/")
	if !ok || suffix != locationSuffix || driverID == "" {
		return "", false
	}
	return driverID, true
}
