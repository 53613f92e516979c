package trigger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukex/jobflow/pkg/models"
)

// maxCronSteps bounds the search when year or week filters reject robfig candidates.
const maxCronSteps = 1000

const (
	minYear = 1970
	maxYear = 9999
)

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// cronField is one calendar field in order from coarsest to finest.
type cronField struct {
	value    string
	fallback string
}

type cronSchedule struct {
	spec   cron.Schedule
	loc    *time.Location
	year   *numberSet
	week   *numberSet
	start  time.Time
	end    time.Time
	jitter time.Duration
}

func newCronSchedule(spec models.TriggerSpec, loc *time.Location) (Schedule, error) {
	fields := expandCronFields(spec)

	year, err := parseNumberSet("year", fields[0], minYear, maxYear)
	if err != nil {
		return nil, err
	}

	week, err := parseNumberSet("week", fields[3], 1, 53)
	if err != nil {
		return nil, err
	}

	// robfig order: second minute hour day-of-month month day-of-week
	expr := fmt.Sprintf("CRON_TZ=%s %s %s %s %s %s %s",
		loc.String(), fields[7], fields[6], fields[5], fields[2], fields[1], fields[4])

	parsed, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
	}

	start, end, err := bounds(spec, loc)
	if err != nil {
		return nil, err
	}

	return &cronSchedule{
		spec:   parsed,
		loc:    loc,
		year:   year,
		week:   week,
		start:  start,
		end:    end,
		jitter: jitter(spec),
	}, nil
}

// expandCronFields fills omitted fields: those coarser than the finest declared field match
// every value, finer ones take their minimum. Order: year, month, day, week, day_of_week,
// hour, minute, second.
func expandCronFields(spec models.TriggerSpec) []string {
	fields := []cronField{
		{spec.Year, "*"},
		{spec.Month, "1"},
		{spec.Day, "1"},
		{spec.Week, "*"},
		{spec.DayOfWeek, "*"},
		{spec.Hour, "0"},
		{spec.Minute, "0"},
		{spec.Second, "0"},
	}

	finest := -1

	for i, f := range fields {
		if strings.TrimSpace(f.value) != "" {
			finest = i
		}
	}

	out := make([]string, len(fields))

	for i, f := range fields {
		switch {
		case strings.TrimSpace(f.value) != "":
			out[i] = strings.TrimSpace(f.value)
		case i < finest:
			out[i] = "*"
		default:
			out[i] = f.fallback
		}
	}

	return out
}

func (s *cronSchedule) Next(after time.Time) (time.Time, bool) {
	t := after
	if !s.start.IsZero() && t.Before(s.start) {
		t = s.start.Add(-time.Second)
	}

	for range maxCronSteps {
		t = s.spec.Next(t)
		if t.IsZero() {
			return time.Time{}, false
		}

		if !s.end.IsZero() && t.After(s.end) {
			return time.Time{}, false
		}

		local := t.In(s.loc)

		if !s.year.contains(local.Year()) {
			next, ok := s.year.next(local.Year())
			if !ok {
				return time.Time{}, false
			}

			t = time.Date(next, time.January, 1, 0, 0, 0, 0, s.loc).Add(-time.Second)

			continue
		}

		if _, isoWeek := local.ISOWeek(); !s.week.contains(isoWeek) {
			daysToMonday := (8 - int(local.Weekday())) % 7
			if daysToMonday == 0 {
				daysToMonday = 7
			}

			monday := time.Date(local.Year(), local.Month(), local.Day()+daysToMonday, 0, 0, 0, 0, s.loc)
			t = monday.Add(-time.Second)

			continue
		}

		return t, true
	}

	return time.Time{}, false
}

func (*cronSchedule) Repeating() bool         { return true }
func (s *cronSchedule) Jitter() time.Duration { return s.jitter }

// numberSet is a parsed comma list of values, ranges and steps (e.g. "2026,2028-2030/2,*/5").
type numberSet struct {
	min, max int
	any      bool
	values   map[int]struct{}
}

func parseNumberSet(field, expr string, lo, hi int) (*numberSet, error) {
	set := &numberSet{min: lo, max: hi, values: map[int]struct{}{}}

	if expr == "*" || expr == "?" {
		set.any = true

		return set, nil
	}

	for _, part := range strings.Split(expr, ",") {
		rangeExpr, stepExpr, hasStep := strings.Cut(strings.TrimSpace(part), "/")

		step := 1

		if hasStep {
			n, err := strconv.Atoi(stepExpr)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("%w: %s step %q", ErrInvalidTrigger, field, stepExpr)
			}

			step = n
		}

		from, to := lo, hi

		if rangeExpr != "*" {
			lowExpr, highExpr, isRange := strings.Cut(rangeExpr, "-")

			low, err := strconv.Atoi(lowExpr)
			if err != nil {
				return nil, fmt.Errorf("%w: %s value %q", ErrInvalidTrigger, field, lowExpr)
			}

			from, to = low, low

			if isRange {
				high, err := strconv.Atoi(highExpr)
				if err != nil {
					return nil, fmt.Errorf("%w: %s value %q", ErrInvalidTrigger, field, highExpr)
				}

				to = high
			} else if hasStep {
				to = hi
			}
		}

		if from < lo || to > hi || from > to {
			return nil, fmt.Errorf("%w: %s %q out of range [%d, %d]", ErrInvalidTrigger, field, part, lo, hi)
		}

		for v := from; v <= to; v += step {
			set.values[v] = struct{}{}
		}
	}

	return set, nil
}

func (s *numberSet) contains(v int) bool {
	if s.any {
		return true
	}

	_, ok := s.values[v]

	return ok
}

// next returns the smallest member greater than v.
func (s *numberSet) next(v int) (int, bool) {
	for candidate := v + 1; candidate <= s.max; candidate++ {
		if s.contains(candidate) {
			return candidate, true
		}
	}

	return 0, false
}
