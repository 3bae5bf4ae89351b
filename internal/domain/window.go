package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// TimeOfDay is a wall-clock time expressed as minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" (24h clock).
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, raw)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: hour in %q", ErrInvalidWindow, raw)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: minute in %q", ErrInvalidWindow, raw)
	}
	return TimeOfDay(h*60 + m), nil
}

// MinuteOf returns the minute of day of t in t's location.
func MinuteOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < minutesPerDay
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeOfDay(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Window is a recurring daily time window.
type Window struct {
	Start TimeOfDay `json:"startTime"`
	End   TimeOfDay `json:"endTime"`
}

// NewWindow parses both clock times.
func NewWindow(start, end string) (Window, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return Window{}, err
	}
	return Window{Start: s, End: e}, nil
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// SpansMidnight reports whether the window starts on one day and ends on the next.
func (w Window) SpansMidnight() bool {
	return w.End <= w.Start
}

// Contains reports whether minute falls inside [Start, End).
func (w Window) Contains(minute TimeOfDay) bool {
	if w.SpansMidnight() {
		return minute >= w.Start || minute < w.End
	}
	return minute >= w.Start && minute < w.End
}

// NextStatus applies the exact-match transition policy: a session starts only
// on the minute equal to Start and ends only on the minute equal to End.
// The second return value is false when no transition happens.
func NextStatus(current SessionStatus, w Window, minute TimeOfDay) (SessionStatus, bool) {
	switch current {
	case StatusNotStarted:
		if minute == w.Start {
			return StatusStarted, true
		}
	case StatusStarted:
		if minute == w.End {
			return StatusEnded, true
		}
	}
	return current, false
}
