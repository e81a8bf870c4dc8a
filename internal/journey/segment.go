package journey

import "time"

// SegmentType classifies a contiguous interval of the work day.
type SegmentType string

const (
	SegmentDriving SegmentType = "driving"
	SegmentResting SegmentType = "resting"
	SegmentMeal    SegmentType = "meal"
)

// Segment is a time interval of one type. End is nil while it is open.
type Segment struct {
	Type  SegmentType `json:"type"`
	Start time.Time   `json:"start"`
	End   *time.Time  `json:"end"`
}

// Open reports whether the segment is still running.
func (s Segment) Open() bool { return s.End == nil }

// Duration returns the length of the segment; open segments are measured up
// to now. A clock that went backwards yields zero, never a negative value.
func (s Segment) Duration(now time.Time) time.Duration {
	end := now
	if s.End != nil {
		end = *s.End
	}
	d := end.Sub(s.Start)
	if d < 0 {
		return 0
	}
	return d
}

// timeline is the ordered, non-overlapping list of segments of one journey.
type timeline []Segment

func (t timeline) openIndex() int {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Open() {
			return i
		}
	}
	return -1
}

// closeOpen ends the open segment at at, if there is one.
func (t timeline) closeOpen(at time.Time) {
	if i := t.openIndex(); i >= 0 {
		end := at
		if end.Before(t[i].Start) {
			end = t[i].Start
		}
		t[i].End = &end
	}
}

// switchTo closes the open segment and opens a new one of kind at the same instant.
func (t timeline) switchTo(kind SegmentType, at time.Time) timeline {
	t.closeOpen(at)
	if n := len(t); n > 0 && t[n-1].End != nil && t[n-1].End.After(at) {
		at = *t[n-1].End
	}
	return append(t, Segment{Type: kind, Start: at})
}

func (t timeline) total(kind SegmentType, now time.Time) time.Duration {
	var sum time.Duration
	for _, s := range t {
		if s.Type == kind {
			sum += s.Duration(now)
		}
	}
	return sum
}

func (t timeline) clone() []Segment {
	out := make([]Segment, len(t))
	for i, s := range t {
		out[i] = s
		if s.End != nil {
			end := *s.End
			out[i].End = &end
		}
	}
	return out
}
