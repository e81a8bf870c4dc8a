// Package journey implements the lifecycle of a driver's work day: vehicle
// inspection, check-in, driving with rest and meal breaks, and checkout,
// together with elapsed-time accounting per segment type.
package journey

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Vehicle identifies the vehicle a journey is driven with.
type Vehicle struct {
	Plate string `json:"plate"`
	Model string `json:"model"`
}

// Driver identifies the owner of a session.
type Driver struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces time.Now as the session's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithChecklist replaces DefaultChecklist.
func WithChecklist(specs []ItemSpec) Option {
	return func(s *Session) { s.checklist = append([]ItemSpec(nil), specs...) }
}

// WithIDGenerator replaces the random journey id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Session) { s.newID = gen }
}

// Session owns the journey of a single driver. All mutation goes through its
// methods; a refused operation returns an error and changes nothing.
// Methods are safe for concurrent use.
type Session struct {
	mu        sync.Mutex
	now       func() time.Time
	newID     func() string
	checklist []ItemSpec
	driver    Driver

	id            string
	status        Status
	startTime     time.Time
	checkoutAt    time.Time
	startKm       int64
	endKm         *int64
	hasProblems   bool
	lastLocation  string
	startLocation string
	vehicle       Vehicle
	observations  string
	items         []InspectionItem
	segments      timeline
}

// NewSession returns an inactive session for driver.
func NewSession(driver Driver, opts ...Option) *Session {
	s := &Session{
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
		checklist: DefaultChecklist,
		driver:    driver,
		status:    StatusInactive,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.items = newChecklist(s.checklist)
	return s
}

// Driver returns the session owner.
func (s *Session) Driver() Driver { return s.driver }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// StartInspection opens a new inspection cycle with every item unanswered.
func (s *Session) StartInspection() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusInactive {
		return fmt.Errorf("start inspection from %s: %w", s.status, ErrInvalidTransition)
	}
	s.id = s.newID()
	s.items = newChecklist(s.checklist)
	s.hasProblems = false
	s.status = StatusInspection
	return nil
}

// UpdateInspectionItem records the outcome of one checklist item. A failed
// item without problem text is stored as failed but blocks CompleteInspection.
func (s *Session) UpdateInspectionItem(id string, ok bool, problem string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusInspection {
		return fmt.Errorf("update inspection item from %s: %w", s.status, ErrInvalidTransition)
	}
	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		if ok {
			s.items[i].Check = Passed()
		} else {
			s.items[i].Check = Failed(problem)
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownItem, id)
}

// CompleteInspection leaves the inspection phase once every item is answered
// and every failed item carries a problem description. The problem flag is
// set when the caller reports problems or any item failed.
func (s *Session) CompleteInspection(hasProblems bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusInspection {
		return fmt.Errorf("complete inspection from %s: %w", s.status, ErrInvalidTransition)
	}
	anyFailed, err := verifyChecklist(s.items)
	if err != nil {
		return err
	}
	s.hasProblems = hasProblems || anyFailed
	s.status = StatusReadyToStart
	return nil
}

// StartJourney checks the driver in: it records the start odometer and time
// and opens the first driving segment.
func (s *Session) StartJourney(startKm string, vehicle Vehicle, location string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusReadyToStart {
		return fmt.Errorf("start journey from %s: %w", s.status, ErrInvalidTransition)
	}
	km, err := ParseOdometer(startKm)
	if err != nil {
		return err
	}
	now := s.now()
	s.startKm = km
	s.startTime = now
	s.vehicle = vehicle
	s.lastLocation = location
	s.startLocation = location
	s.segments = s.segments.switchTo(SegmentDriving, now)
	s.status = StatusOnJourney
	return nil
}

// PauseJourney switches from driving to a rest or meal break. Outside
// on_journey the call is refused and the timeline is left as is.
func (s *Session) PauseJourney(kind PauseType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, seg, ok := kind.status()
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPause, kind)
	}
	if s.status != StatusOnJourney {
		return fmt.Errorf("pause from %s: %w", s.status, ErrInvalidTransition)
	}
	s.segments = s.segments.switchTo(seg, s.now())
	s.status = next
	return nil
}

// ResumeJourney ends the current break and opens a new driving segment.
func (s *Session) ResumeJourney() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.Paused() {
		return fmt.Errorf("resume from %s: %w", s.status, ErrInvalidTransition)
	}
	s.segments = s.segments.switchTo(SegmentDriving, s.now())
	s.status = StatusOnJourney
	return nil
}

// StartCheckout closes whichever segment is open and freezes the clock for
// the checkout form.
func (s *Session) StartCheckout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.Running() {
		return fmt.Errorf("checkout from %s: %w", s.status, ErrInvalidTransition)
	}
	now := s.now()
	s.segments.closeOpen(now)
	s.checkoutAt = now
	if now.Before(s.startTime) {
		s.checkoutAt = s.startTime
	}
	s.status = StatusCheckout
	return nil
}

// ConfirmCheckout records the final odometer reading and observations. It may
// be called again to correct the values before EndJourney.
func (s *Session) ConfirmCheckout(endKm, observations string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusCheckout {
		return fmt.Errorf("confirm checkout from %s: %w", s.status, ErrInvalidTransition)
	}
	km, err := ParseOdometer(endKm)
	if err != nil {
		return err
	}
	s.endKm = &km
	s.observations = strings.TrimSpace(observations)
	return nil
}

// UpdateLocation overwrites the last known location of an active journey.
func (s *Session) UpdateLocation(location string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.Active() {
		return ErrNotActive
	}
	s.lastLocation = location
	return nil
}

// EndJourney returns the session to inactive from any state and clears every
// field. When called after a confirmed checkout it returns the completed
// record for the history collaborator; cancellations return nil.
func (s *Session) EndJourney() *Record {
	_, rec := s.Close()
	return rec
}

// Close is EndJourney that also returns the journey as it stood just before
// it ended, so callers can tell a finish from a cancellation from a no-op.
func (s *Session) Close() (Snapshot, *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.snapshot()
	var rec *Record
	if s.status == StatusCheckout && s.endKm != nil {
		r := s.record()
		rec = &r
	}
	s.reset()
	return before, rec
}

func (s *Session) reset() {
	s.id = ""
	s.status = StatusInactive
	s.startTime = time.Time{}
	s.checkoutAt = time.Time{}
	s.startKm = 0
	s.endKm = nil
	s.hasProblems = false
	s.lastLocation = ""
	s.startLocation = ""
	s.vehicle = Vehicle{}
	s.observations = ""
	s.items = newChecklist(s.checklist)
	s.segments = nil
}

// reference is the instant elapsed time is measured to: now, or the
// checkout instant once the clock is frozen.
func (s *Session) reference() time.Time {
	if s.status == StatusCheckout {
		return s.checkoutAt
	}
	return s.now()
}

func (s *Session) totalElapsed() time.Duration {
	if !s.status.Active() || s.startTime.IsZero() {
		return 0
	}
	d := s.reference().Sub(s.startTime)
	if d < 0 {
		return 0
	}
	return d
}

// TotalElapsedSeconds is the time since check-in while the journey is active.
func (s *Session) TotalElapsedSeconds() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seconds(s.totalElapsed())
}

// DrivingSeconds includes the live duration of an open driving segment.
func (s *Session) DrivingSeconds() int64 {
	return s.segmentSeconds(SegmentDriving)
}

// RestSeconds includes the live duration of an open rest segment.
func (s *Session) RestSeconds() int64 {
	return s.segmentSeconds(SegmentResting)
}

// MealSeconds includes the live duration of an open meal segment.
func (s *Session) MealSeconds() int64 {
	return s.segmentSeconds(SegmentMeal)
}

func (s *Session) segmentSeconds(kind SegmentType) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seconds(s.segments.total(kind, s.reference()))
}

// Segments returns a copy of the journey timeline.
func (s *Session) Segments() []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.segments.clone()
}

// Snapshot is the read model handed to the UI layer.
type Snapshot struct {
	JourneyID           string           `json:"journey_id,omitempty"`
	Driver              Driver           `json:"driver"`
	Status              Status           `json:"status"`
	IsActive            bool             `json:"is_active"`
	StartTime           *time.Time       `json:"start_time,omitempty"`
	CheckoutAt          *time.Time       `json:"checkout_at,omitempty"`
	StartKm             *int64           `json:"start_km,omitempty"`
	EndKm               *int64           `json:"end_km,omitempty"`
	HasProblems         bool             `json:"has_problems"`
	LastLocation        string           `json:"last_location,omitempty"`
	Vehicle             *Vehicle         `json:"vehicle,omitempty"`
	Observations        string           `json:"observations,omitempty"`
	Inspection          []InspectionItem `json:"inspection"`
	Segments            []Segment        `json:"segments"`
	TotalElapsedSeconds int64            `json:"total_elapsed_seconds"`
	DrivingSeconds      int64            `json:"driving_seconds"`
	RestSeconds         int64            `json:"rest_seconds"`
	MealSeconds         int64            `json:"meal_seconds"`
	Elapsed             string           `json:"elapsed"`
}

// Snapshot returns a consistent copy of the journey with live elapsed times.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() Snapshot {
	ref := s.reference()
	total := seconds(s.totalElapsed())
	snap := Snapshot{
		JourneyID:           s.id,
		Driver:              s.driver,
		Status:              s.status,
		IsActive:            s.status.Active(),
		HasProblems:         s.hasProblems,
		LastLocation:        s.lastLocation,
		Observations:        s.observations,
		Inspection:          append([]InspectionItem(nil), s.items...),
		Segments:            s.segments.clone(),
		TotalElapsedSeconds: total,
		DrivingSeconds:      seconds(s.segments.total(SegmentDriving, ref)),
		RestSeconds:         seconds(s.segments.total(SegmentResting, ref)),
		MealSeconds:         seconds(s.segments.total(SegmentMeal, ref)),
		Elapsed:             FormatClock(total),
	}
	if !s.startTime.IsZero() {
		st := s.startTime
		km := s.startKm
		v := s.vehicle
		snap.StartTime = &st
		snap.StartKm = &km
		snap.Vehicle = &v
	}
	if s.status == StatusCheckout {
		co := s.checkoutAt
		snap.CheckoutAt = &co
	}
	if s.endKm != nil {
		km := *s.endKm
		snap.EndKm = &km
	}
	return snap
}

// Record is the completed journey handed to the history collaborator. All of
// its segments are closed.
type Record struct {
	JourneyID        string
	Driver           Driver
	Vehicle          Vehicle
	StartTime        time.Time
	EndTime          time.Time
	StartKm          int64
	EndKm            int64
	DistanceKm       int64
	OdometerRollback bool
	HasProblems      bool
	Inspection       []InspectionItem
	Segments         []Segment
	DrivingSeconds   int64
	RestSeconds      int64
	MealSeconds      int64
	TotalSeconds     int64
	StartLocation    string
	EndLocation      string
	Observations     string
}

func (s *Session) record() Record {
	end := s.checkoutAt
	return Record{
		JourneyID:        s.id,
		Driver:           s.driver,
		Vehicle:          s.vehicle,
		StartTime:        s.startTime,
		EndTime:          end,
		StartKm:          s.startKm,
		EndKm:            *s.endKm,
		DistanceKm:       Distance(s.startKm, *s.endKm),
		OdometerRollback: *s.endKm < s.startKm,
		HasProblems:      s.hasProblems,
		Inspection:       append([]InspectionItem(nil), s.items...),
		Segments:         s.segments.clone(),
		DrivingSeconds:   seconds(s.segments.total(SegmentDriving, end)),
		RestSeconds:      seconds(s.segments.total(SegmentResting, end)),
		MealSeconds:      seconds(s.segments.total(SegmentMeal, end)),
		TotalSeconds:     seconds(s.totalElapsed()),
		StartLocation:    s.startLocation,
		EndLocation:      s.lastLocation,
		Observations:     s.observations,
	}
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
