package journey

// Status is the lifecycle state of a driver's journey.
type Status string

const (
	StatusInactive     Status = "inactive"
	StatusInspection   Status = "inspection"
	StatusReadyToStart Status = "ready_to_start"
	StatusOnJourney    Status = "on_journey"
	StatusResting      Status = "resting"
	StatusMeal         Status = "meal"
	StatusCheckout     Status = "checkout"
)

// Active reports whether the journey has left the inactive state.
func (s Status) Active() bool {
	return s != StatusInactive && s != ""
}

// Paused reports whether the driver is on a rest or meal break.
func (s Status) Paused() bool {
	return s == StatusResting || s == StatusMeal
}

// Running reports whether a time segment is expected to be open.
func (s Status) Running() bool {
	return s == StatusOnJourney || s.Paused()
}

// PauseType selects the kind of break a driver takes.
type PauseType string

const (
	PauseRest PauseType = "rest"
	PauseMeal PauseType = "meal"
)

func (p PauseType) status() (Status, SegmentType, bool) {
	switch p {
	case PauseRest:
		return StatusResting, SegmentResting, true
	case PauseMeal:
		return StatusMeal, SegmentMeal, true
	default:
		return "", "", false
	}
}
