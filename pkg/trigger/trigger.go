// Package trigger computes fire times for the date, interval, cron and dependency trigger kinds.
package trigger

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dukex/jobflow/pkg/models"
)

var (
	// ErrInvalidTrigger is returned for malformed or unsupported trigger declarations.
	ErrInvalidTrigger = errors.New("invalid trigger")

	// ErrExhausted is returned when a schedule has no fire time left.
	ErrExhausted = errors.New("trigger has no remaining fire times")
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Schedule yields the fire times of one trigger.
type Schedule interface {
	// Next returns the first fire time strictly after the given instant and false once the
	// schedule is exhausted. One-shot schedules always return their single fire time; callers
	// do not advance them.
	Next(after time.Time) (time.Time, bool)
	// Repeating reports whether the schedule stays armed after a fire.
	Repeating() bool
	// Jitter is the upper bound of the random delay added to each fire.
	Jitter() time.Duration
}

// New builds the schedule for spec. now anchors interval triggers without a start date.
func New(spec models.TriggerSpec, now time.Time) (Schedule, error) {
	loc, err := location(spec.Timezone)
	if err != nil {
		return nil, err
	}

	switch spec.Kind {
	case models.TriggerDate:
		return newDateSchedule(spec, loc)
	case models.TriggerInterval:
		return newIntervalSchedule(spec, loc, now)
	case models.TriggerCron:
		return newCronSchedule(spec, loc)
	case models.TriggerDependency:
		return dependencySchedule{}, nil
	case "":
		return nil, fmt.Errorf("%w: trigger kind is required", ErrInvalidTrigger)
	default:
		return nil, fmt.Errorf("%w: unknown trigger kind %q", ErrInvalidTrigger, spec.Kind)
	}
}

// Validate reports whether spec describes a usable trigger.
func Validate(spec models.TriggerSpec) error {
	_, err := New(spec, time.Now())

	return err
}

// WithJitter delays t by a random duration in [0, s.Jitter()], both ends included.
func WithJitter(s Schedule, t time.Time) time.Time {
	j := s.Jitter()
	if j <= 0 {
		return t
	}

	return t.Add(rand.N(j + 1))
}

func location(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q: %v", ErrInvalidTrigger, name, err)
	}

	return loc, nil
}

// parseDate accepts RFC 3339 or a naive local timestamp interpreted in loc.
func parseDate(field, value string, loc *time.Location) (time.Time, error) {
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, value, loc)
		if err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %s %q is not a valid date", ErrInvalidTrigger, field, value)
}

// bounds parses the optional start_date and end_date shared by repeating triggers.
func bounds(spec models.TriggerSpec, loc *time.Location) (start, end time.Time, err error) {
	if spec.StartDate != "" {
		start, err = parseDate("start_date", spec.StartDate, loc)
		if err != nil {
			return start, end, err
		}
	}

	if spec.EndDate != "" {
		end, err = parseDate("end_date", spec.EndDate, loc)
		if err != nil {
			return start, end, err
		}
	}

	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return start, end, fmt.Errorf("%w: end_date precedes start_date", ErrInvalidTrigger)
	}

	return start, end, nil
}

func jitter(spec models.TriggerSpec) time.Duration {
	return time.Duration(spec.Jitter) * time.Second
}

type dateSchedule struct {
	runAt time.Time
}

func newDateSchedule(spec models.TriggerSpec, loc *time.Location) (Schedule, error) {
	if spec.RunDate == "" {
		return nil, fmt.Errorf("%w: date trigger requires run_date", ErrInvalidTrigger)
	}

	runAt, err := parseDate("run_date", spec.RunDate, loc)
	if err != nil {
		return nil, err
	}

	return dateSchedule{runAt: runAt}, nil
}

func (s dateSchedule) Next(time.Time) (time.Time, bool) { return s.runAt, true }
func (dateSchedule) Repeating() bool                    { return false }
func (dateSchedule) Jitter() time.Duration              { return 0 }

type intervalSchedule struct {
	every  time.Duration
	start  time.Time
	end    time.Time
	jitter time.Duration
}

func newIntervalSchedule(spec models.TriggerSpec, loc *time.Location, now time.Time) (Schedule, error) {
	every := time.Duration(spec.Weeks)*7*24*time.Hour +
		time.Duration(spec.Days)*24*time.Hour +
		time.Duration(spec.Hours)*time.Hour +
		time.Duration(spec.Minutes)*time.Minute +
		time.Duration(spec.Seconds)*time.Second

	if every <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrInvalidTrigger)
	}

	start, end, err := bounds(spec, loc)
	if err != nil {
		return nil, err
	}

	if start.IsZero() {
		start = now
	}

	return &intervalSchedule{every: every, start: start, end: end, jitter: jitter(spec)}, nil
}

func (s *intervalSchedule) Next(after time.Time) (time.Time, bool) {
	next := s.start

	if !after.Before(s.start) {
		k := after.Sub(s.start)/s.every + 1
		next = s.start.Add(k * s.every)
	}

	if !s.end.IsZero() && next.After(s.end) {
		return time.Time{}, false
	}

	return next, true
}

func (*intervalSchedule) Repeating() bool         { return true }
func (s *intervalSchedule) Jitter() time.Duration { return s.jitter }

// dependencySchedule fires once, immediately.
type dependencySchedule struct{}

func (dependencySchedule) Next(after time.Time) (time.Time, bool) { return after, true }
func (dependencySchedule) Repeating() bool                        { return false }
func (dependencySchedule) Jitter() time.Duration                  { return 0 }
