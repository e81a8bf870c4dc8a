package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ukydev/fleet-journey/internal/models"
)

type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher sends JSON messages to the broker with QoS 1.
type Publisher struct {
	client  publishClient
	prefix  string
	timeout time.Duration
}

func NewPublisher(client publishClient, prefix string) *Publisher {
	return &Publisher{client: client, prefix: prefix, timeout: defaultTimeout}
}

// PublishEvent publishes a journey event on the driver's journey topic.
func (p *Publisher) PublishEvent(ctx context.Context, event models.JourneyEvent) error {
	return p.publish(ctx, JourneyTopic(p.prefix, event.DriverID), event)
}

// PublishLocation publishes a location fix on the driver's location topic.
func (p *Publisher) PublishLocation(ctx context.Context, fix models.LocationFix) error {
	return p.publish(ctx, LocationTopic(p.prefix, fix.DriverID), fix)
}

func (p *Publisher) publish(ctx context.Context, topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := wait(ctx, p.client.Publish(topic, 1, false, payload), p.timeout); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
