// Package tachograph checks a driver's day against driving-time rules in the
// spirit of EU Regulation 561/2006: continuous driving must be interrupted by
// a break, and daily driving time is capped.
package tachograph

import (
	"encoding/json"
	"time"

	"github.com/ukydev/fleet-journey/internal/journey"
)

const (
	MaxContinuousDriving = 4*time.Hour + 30*time.Minute
	RequiredBreak        = 45 * time.Minute
	SplitBreakFirst      = 15 * time.Minute
	SplitBreakSecond     = 30 * time.Minute
	MaxDailyDriving      = 9 * time.Hour
	ExtendedDailyDriving = 10 * time.Hour
)

// Kind names a rule.
type Kind string

const (
	KindContinuousDriving Kind = "continuous_driving"
	KindDailyDriving      Kind = "daily_driving"
)

// Severity grades a finding.
type Severity string

const (
	SeverityWarning    Severity = "warning"
	SeverityInfraction Severity = "infraction"
)

// Finding is one breach of a driving-time rule.
type Finding struct {
	Kind     Kind
	Severity Severity
	At       time.Time
	Excess   time.Duration
	Message  string
}

type findingJSON struct {
	Kind          Kind      `json:"kind"`
	Severity      Severity  `json:"severity"`
	At            time.Time `json:"at"`
	ExcessSeconds int64     `json:"excess_seconds"`
	Message       string    `json:"message"`
}

func (f Finding) MarshalJSON() ([]byte, error) {
	return json.Marshal(findingJSON{
		Kind:          f.Kind,
		Severity:      f.Severity,
		At:            f.At,
		ExcessSeconds: seconds(f.Excess),
		Message:       f.Message,
	})
}

func (f *Finding) UnmarshalJSON(data []byte) error {
	var v findingJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Finding{
		Kind:     v.Kind,
		Severity: v.Severity,
		At:       v.At,
		Excess:   time.Duration(v.ExcessSeconds) * time.Second,
		Message:  v.Message,
	}
	return nil
}

// Report summarises a day's driving and the rules it breaks. Durations are
// rendered in whole seconds, like the rest of the journey API.
type Report struct {
	DrivingTime         time.Duration
	ContinuousDriving   time.Duration
	RemainingContinuous time.Duration
	RemainingDaily      time.Duration
	Findings            []Finding
}

type reportJSON struct {
	DrivingSeconds             int64     `json:"driving_seconds"`
	ContinuousDrivingSeconds   int64     `json:"continuous_driving_seconds"`
	RemainingContinuousSeconds int64     `json:"remaining_continuous_seconds"`
	RemainingDailySeconds      int64     `json:"remaining_daily_seconds"`
	Findings                   []Finding `json:"findings"`
}

func (r Report) MarshalJSON() ([]byte, error) {
	findings := r.Findings
	if findings == nil {
		findings = []Finding{}
	}
	return json.Marshal(reportJSON{
		DrivingSeconds:             seconds(r.DrivingTime),
		ContinuousDrivingSeconds:   seconds(r.ContinuousDriving),
		RemainingContinuousSeconds: seconds(r.RemainingContinuous),
		RemainingDailySeconds:      seconds(r.RemainingDaily),
		Findings:                   findings,
	})
}

func (r *Report) UnmarshalJSON(data []byte) error {
	var v reportJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Report{
		DrivingTime:         time.Duration(v.DrivingSeconds) * time.Second,
		ContinuousDriving:   time.Duration(v.ContinuousDrivingSeconds) * time.Second,
		RemainingContinuous: time.Duration(v.RemainingContinuousSeconds) * time.Second,
		RemainingDaily:      time.Duration(v.RemainingDailySeconds) * time.Second,
		Findings:            v.Findings,
	}
	return nil
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

// Infractions reports whether any finding is more than a warning.
func (r Report) Infractions() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityInfraction {
			return true
		}
	}
	return false
}

// Evaluate checks segments in chronological order. Open segments are
// measured up to now. Rest and meal segments both count as breaks.
func Evaluate(segments []journey.Segment, now time.Time) Report {
	var (
		r          Report
		continuous time.Duration
		firstSplit bool
		flagged    bool
	)
	for _, seg := range segments {
		d := seg.Duration(now)
		if seg.Type != journey.SegmentDriving {
			switch {
			case d >= RequiredBreak, firstSplit && d >= SplitBreakSecond:
				continuous = 0
				firstSplit = false
				flagged = false
			case d >= SplitBreakFirst:
				firstSplit = true
			}
			continue
		}

		before := continuous
		continuous += d
		r.DrivingTime += d
		if !flagged && continuous > MaxContinuousDriving {
			flagged = true
			r.Findings = append(r.Findings, Finding{
				Kind:     KindContinuousDriving,
				Severity: SeverityInfraction,
				At:       seg.Start.Add(MaxContinuousDriving - before),
				Message:  "continuous driving exceeded 4h30 without a 45 minute break",
			})
		}
		if flagged {
			last := &r.Findings[len(r.Findings)-1]
			if last.Kind == KindContinuousDriving {
				last.Excess = continuous - MaxContinuousDriving
			}
		}
	}

	r.ContinuousDriving = continuous
	r.RemainingContinuous = clamp(MaxContinuousDriving - continuous)
	r.RemainingDaily = clamp(MaxDailyDriving - r.DrivingTime)

	if r.DrivingTime > MaxDailyDriving {
		f := Finding{
			Kind:     KindDailyDriving,
			Severity: SeverityWarning,
			At:       now,
			Excess:   r.DrivingTime - MaxDailyDriving,
			Message:  "daily driving exceeded 9h; allowed at most twice a week up to 10h",
		}
		if r.DrivingTime > ExtendedDailyDriving {
			f.Severity = SeverityInfraction
			f.Excess = r.DrivingTime - ExtendedDailyDriving
			f.Message = "daily driving exceeded 10h"
		}
		r.Findings = append(r.Findings, f)
	}
	return r
}

func clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
