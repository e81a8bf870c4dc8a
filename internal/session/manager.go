// Package session keeps one journey state machine per driver and hands
// finished journeys to the history, vehicle and event collaborators.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-journey/internal/journey"
	"github.com/ukydev/fleet-journey/internal/models"
	"github.com/ukydev/fleet-journey/internal/tachograph"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Event actions published after a transition.
const (
	ActionInspectionStarted   = "inspection_started"
	ActionInspectionCompleted = "inspection_completed"
	ActionStarted             = "started"
	ActionPaused              = "paused"
	ActionResumed             = "resumed"
	ActionCheckoutStarted     = "checkout_started"
	ActionCheckoutConfirmed   = "checkout_confirmed"
	ActionFinished            = "finished"
	ActionCancelled           = "cancelled"
)

// Outcome says what Finish did with the driver's journey.
type Outcome string

const (
	OutcomeFinished  Outcome = "finished"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeInactive  Outcome = "inactive"
)

// publishTimeout bounds a single event publish once it is off the request path.
const publishTimeout = 5 * time.Second

// HistoryStore persists finished journeys.
type HistoryStore interface {
	InsertJourney(ctx context.Context, journey models.JourneyRecord) error
}

// OdometerStore records the latest odometer reading of a vehicle.
type OdometerStore interface {
	UpdateOdometer(ctx context.Context, plate string, km int64) error
}

// EventPublisher broadcasts journey events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event models.JourneyEvent) error
}

// Option configures a Manager.
type Option func(*Manager)

func WithHistory(h HistoryStore) Option     { return func(m *Manager) { m.history = h } }
func WithOdometer(o OdometerStore) Option   { return func(m *Manager) { m.odometer = o } }
func WithPublisher(p EventPublisher) Option { return func(m *Manager) { m.events = p } }
func WithLogger(l *logrus.Logger) Option    { return func(m *Manager) { m.log = l } }

// WithClock sets the time source of the manager and of every session it creates.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
		m.sessionOpts = append(m.sessionOpts, journey.WithClock(now))
	}
}

// WithSessionOptions passes extra options to every new session.
func WithSessionOptions(opts ...journey.Option) Option {
	return func(m *Manager) { m.sessionOpts = append(m.sessionOpts, opts...) }
}

// Manager owns the journey sessions of all drivers. Collaborators left unset
// are skipped.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*journey.Session

	history     HistoryStore
	odometer    OdometerStore
	events      EventPublisher
	log         *logrus.Logger
	now         func() time.Time
	sessionOpts []journey.Option

	pending sync.WaitGroup
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*journey.Session),
		log:      logrus.StandardLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the driver's session, creating an inactive one on first use.
func (m *Manager) Get(driverID, name string) *journey.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[driverID]
	if !ok {
		s = journey.NewSession(journey.Driver{ID: driverID, Name: name}, m.sessionOpts...)
		m.sessions[driverID] = s
	}
	return s
}

// Lookup returns the driver's session without creating one.
func (m *Manager) Lookup(driverID string) (*journey.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[driverID]
	return s, ok
}

// ActiveDrivers returns the number of drivers whose journey is not inactive.
func (m *Manager) ActiveDrivers() int {
	m.mu.Lock()
	sessions := make([]*journey.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	n := 0
	for _, s := range sessions {
		if s.Status().Active() {
			n++
		}
	}
	return n
}

// UpdateLocation overwrites the last known location of a driver's active
// journey.
func (m *Manager) UpdateLocation(driverID, label string) error {
	s, ok := m.Lookup(driverID)
	if !ok {
		return journey.ErrNotActive
	}
	return s.UpdateLocation(label)
}

// Publish emits an event describing the driver's current journey. Failures
// are logged and otherwise ignored.
func (m *Manager) Publish(ctx context.Context, driverID, action string) {
	s, ok := m.Lookup(driverID)
	if !ok {
		return
	}
	m.publish(ctx, eventFrom(s.Snapshot(), action, m.now()))
}

// publish hands the event to the publisher in the background so a slow or
// reconnecting broker never holds up the caller.
func (m *Manager) publish(ctx context.Context, event models.JourneyEvent) {
	if m.events == nil {
		return
	}
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := m.events.PublishEvent(pctx, event); err != nil {
			m.log.WithError(err).WithFields(logrus.Fields{
				"driver_id": event.DriverID,
				"action":    event.Action,
			}).Warn("failed to publish journey event")
		}
	}()
}

// Drain waits for in-flight event publishes.
func (m *Manager) Drain() {
	m.pending.Wait()
}

// Finish ends the driver's journey. A journey whose checkout was confirmed is
// persisted and returned; any other active journey is cancelled and nil is
// returned. The session is inactive afterwards even when persistence fails.
func (m *Manager) Finish(ctx context.Context, driverID string) (Outcome, *models.JourneyRecord, error) {
	s, ok := m.Lookup(driverID)
	if !ok {
		return OutcomeInactive, nil, nil
	}
	before, rec := s.Close()
	now := m.now()

	if rec == nil {
		if !before.IsActive {
			return OutcomeInactive, nil, nil
		}
		ev := eventFrom(before, ActionCancelled, now)
		ev.Status = string(journey.StatusInactive)
		m.publish(ctx, ev)
		m.log.WithFields(logrus.Fields{
			"driver_id":  driverID,
			"journey_id": before.JourneyID,
			"status":     before.Status,
		}).Info("journey cancelled")
		return OutcomeCancelled, nil, nil
	}

	doc := ToJourneyRecord(*rec)
	doc.ID = primitive.NewObjectID()
	doc.CreatedAt = now
	entry := m.log.WithFields(logrus.Fields{
		"driver_id":   driverID,
		"journey_id":  doc.JourneyID,
		"plate":       doc.Plate,
		"distance_km": doc.DistanceKm,
	})
	if doc.OdometerRollback {
		entry.WithFields(logrus.Fields{
			"start_km": doc.StartKm,
			"end_km":   doc.EndKm,
		}).Warn("end odometer below start odometer, distance clamped to zero")
	}

	var persistErr error
	if m.history != nil {
		if err := m.history.InsertJourney(ctx, doc); err != nil {
			entry.WithError(err).Error("failed to persist journey")
			persistErr = fmt.Errorf("persisting journey %s: %w", doc.JourneyID, err)
		}
	}
	if m.odometer != nil && doc.Plate != "" {
		if err := m.odometer.UpdateOdometer(ctx, doc.Plate, doc.EndKm); err != nil {
			entry.WithError(err).Warn("failed to update vehicle odometer")
		}
	}

	m.publish(ctx, models.JourneyEvent{
		JourneyID: doc.JourneyID,
		DriverID:  driverID,
		Action:    ActionFinished,
		Status:    string(journey.StatusInactive),
		Plate:     doc.Plate,
		Location:  doc.EndLocation,
		Timestamp: now,
	})
	entry.Info("journey finished")
	return OutcomeFinished, &doc, persistErr
}

func eventFrom(snap journey.Snapshot, action string, at time.Time) models.JourneyEvent {
	ev := models.JourneyEvent{
		JourneyID: snap.JourneyID,
		DriverID:  snap.Driver.ID,
		Action:    action,
		Status:    string(snap.Status),
		Location:  snap.LastLocation,
		Timestamp: at,
	}
	if snap.Vehicle != nil {
		ev.Plate = snap.Vehicle.Plate
	}
	return ev
}

// ToJourneyRecord converts a completed journey into its stored form,
// including the tachograph findings for its segments.
func ToJourneyRecord(rec journey.Record) models.JourneyRecord {
	doc := models.JourneyRecord{
		JourneyID:        rec.JourneyID,
		DriverID:         rec.Driver.ID,
		DriverName:       rec.Driver.Name,
		Plate:            rec.Vehicle.Plate,
		VehicleModel:     rec.Vehicle.Model,
		StartTime:        rec.StartTime,
		EndTime:          rec.EndTime,
		StartKm:          rec.StartKm,
		EndKm:            rec.EndKm,
		DistanceKm:       rec.DistanceKm,
		OdometerRollback: rec.OdometerRollback,
		HasProblems:      rec.HasProblems,
		DrivingSeconds:   rec.DrivingSeconds,
		RestSeconds:      rec.RestSeconds,
		MealSeconds:      rec.MealSeconds,
		TotalSeconds:     rec.TotalSeconds,
		StartLocation:    rec.StartLocation,
		EndLocation:      rec.EndLocation,
		Observations:     rec.Observations,
	}
	for _, item := range rec.Inspection {
		doc.Inspection = append(doc.Inspection, models.InspectionResult{
			ItemID:  item.ID,
			Label:   item.Label,
			OK:      item.Check.OK(),
			Problem: item.Check.Problem(),
		})
	}
	for _, seg := range rec.Segments {
		sr := models.SegmentRecord{Type: string(seg.Type), Start: seg.Start}
		if seg.End != nil {
			sr.End = *seg.End
		} else {
			sr.End = rec.EndTime
		}
		doc.Segments = append(doc.Segments, sr)
	}
	report := tachograph.Evaluate(rec.Segments, rec.EndTime)
	for _, f := range report.Findings {
		doc.Infractions = append(doc.Infractions, models.Infraction{
			Kind:          string(f.Kind),
			Severity:      string(f.Severity),
			At:            f.At,
			ExcessSeconds: int64(f.Excess / time.Second),
			Message:       f.Message,
		})
	}
	return doc
}
