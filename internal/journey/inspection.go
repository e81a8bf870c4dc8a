package journey

import (
	"encoding/json"
	"strings"
)

type checkState int

const (
	checkUnanswered checkState = iota
	checkPassed
	checkFailed
)

// Check is the outcome of one checklist line: unanswered, passed, or failed
// with a problem description.
type Check struct {
	state   checkState
	problem string
}

// Unanswered returns the outcome of an item the driver has not looked at yet.
func Unanswered() Check { return Check{} }

// Passed returns an OK outcome.
func Passed() Check { return Check{state: checkPassed} }

// Failed returns a problem outcome. An empty description is representable so
// the UI can flag the item early, but it blocks CompleteInspection.
func Failed(problem string) Check {
	return Check{state: checkFailed, problem: strings.TrimSpace(problem)}
}

func (c Check) Answered() bool { return c.state != checkUnanswered }
func (c Check) OK() bool       { return c.state == checkPassed }
func (c Check) Failed() bool   { return c.state == checkFailed }

// Problem returns the problem text of a failed check, or "".
func (c Check) Problem() string {
	if c.state != checkFailed {
		return ""
	}
	return c.problem
}

// Checked returns the tri-state form used on the wire: nil, true or false.
func (c Check) Checked() *bool {
	switch c.state {
	case checkPassed:
		v := true
		return &v
	case checkFailed:
		v := false
		return &v
	default:
		return nil
	}
}

// ItemSpec declares one line of the inspection checklist.
type ItemSpec struct {
	ID    string
	Label string
}

// DefaultChecklist is the vehicle inspection run before every journey.
var DefaultChecklist = []ItemSpec{
	{ID: "tires", Label: "Tires and wheels"},
	{ID: "fluids", Label: "Oil, coolant and washer fluid"},
	{ID: "brakes", Label: "Brakes"},
	{ID: "lights", Label: "Lights and signals"},
	{ID: "panel", Label: "Dashboard panel and warning lights"},
}

// InspectionItem is one checklist line and its current outcome.
type InspectionItem struct {
	ID    string
	Label string
	Check Check
}

type inspectionItemJSON struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Checked *bool  `json:"checked"`
	Problem string `json:"problem,omitempty"`
}

// MarshalJSON renders the item with a tri-state "checked" field.
func (i InspectionItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(inspectionItemJSON{
		ID:      i.ID,
		Label:   i.Label,
		Checked: i.Check.Checked(),
		Problem: i.Check.Problem(),
	})
}

// UnmarshalJSON accepts the tri-state form produced by MarshalJSON.
func (i *InspectionItem) UnmarshalJSON(data []byte) error {
	var raw inspectionItemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	i.ID = raw.ID
	i.Label = raw.Label
	switch {
	case raw.Checked == nil:
		i.Check = Unanswered()
	case *raw.Checked:
		i.Check = Passed()
	default:
		i.Check = Failed(raw.Problem)
	}
	return nil
}

func newChecklist(specs []ItemSpec) []InspectionItem {
	items := make([]InspectionItem, len(specs))
	for i, s := range specs {
		items[i] = InspectionItem{ID: s.ID, Label: s.Label, Check: Unanswered()}
	}
	return items
}

// verifyChecklist enforces the gate for leaving the inspection phase.
func verifyChecklist(items []InspectionItem) (anyFailed bool, err error) {
	for _, it := range items {
		if !it.Check.Answered() {
			return false, ErrInspectionIncomplete
		}
		if it.Check.Failed() {
			if it.Check.Problem() == "" {
				return false, ErrMissingProblem
			}
			anyFailed = true
		}
	}
	return anyFailed, nil
}
