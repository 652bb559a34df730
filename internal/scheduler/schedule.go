package scheduler

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// ScheduleKind discriminates the schedule variant.
type ScheduleKind string

const (
	// ScheduleAt fires once at a fixed instant.
	ScheduleAt ScheduleKind = "at"
	// ScheduleCron fires on a POSIX five-field cron expression in a timezone.
	ScheduleCron ScheduleKind = "cron"
	// ScheduleEvery fires at a fixed interval from each execution start.
	ScheduleEvery ScheduleKind = "every"
)

// Schedule describes when a job next becomes due. Exactly one variant's
// fields are populated, selected by Kind.
type Schedule struct {
	Kind     ScheduleKind  `json:"kind"`
	At       *time.Time    `json:"at,omitempty"`
	Expr     string        `json:"expr,omitempty"`
	Timezone string        `json:"timezone,omitempty"`
	Every    time.Duration `json:"every,omitempty"`
}

// At returns a one-shot schedule firing at t.
func At(t time.Time) Schedule {
	utc := t.UTC()
	return Schedule{Kind: ScheduleAt, At: &utc}
}

// Cron returns a recurring schedule for a five-field cron expression.
// An empty tz defaults to UTC.
func Cron(expr, tz string) Schedule {
	if tz == "" {
		tz = "UTC"
	}
	return Schedule{Kind: ScheduleCron, Expr: expr, Timezone: tz}
}

// Every returns a recurring schedule firing d after each execution start.
func Every(d time.Duration) Schedule {
	return Schedule{Kind: ScheduleEvery, Every: d}
}

// Recurring reports whether the schedule advances after a successful run.
func (s Schedule) Recurring() bool {
	return s.Kind == ScheduleCron || s.Kind == ScheduleEvery
}

// Validate checks the schedule is well-formed. Called by the Job API before
// anything is written to the store.
func (s Schedule) Validate() error {
	switch s.Kind {
	case ScheduleAt:
		if s.At == nil || s.At.IsZero() {
			return fmt.Errorf("at schedule requires a timestamp")
		}
	case ScheduleCron:
		gron := gronx.New()
		if !gron.IsValid(s.Expr) {
			return fmt.Errorf("invalid cron expression %q", s.Expr)
		}
		tz := s.Timezone
		if tz == "" {
			tz = "UTC"
		}
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("invalid timezone %q", s.Timezone)
		}
	case ScheduleEvery:
		if s.Every <= 0 {
			return fmt.Errorf("every schedule requires a positive interval")
		}
	default:
		return fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
	return nil
}

// FirstRunAt computes the initial next_run_at for a newly created job.
func (s Schedule) FirstRunAt(now time.Time) (time.Time, error) {
	switch s.Kind {
	case ScheduleAt:
		return s.At.UTC(), nil
	case ScheduleCron:
		return CronNextTime(s.Expr, s.Timezone, now)
	case ScheduleEvery:
		return now.Add(s.Every).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unknown schedule kind %q", s.Kind)
}

// Next computes the fire time following an execution that began at start.
// For cron this is the smallest matching instant strictly greater than start;
// for every it is start + interval. One-shot schedules do not advance.
func (s Schedule) Next(start time.Time) (time.Time, error) {
	switch s.Kind {
	case ScheduleCron:
		return CronNextTime(s.Expr, s.Timezone, start)
	case ScheduleEvery:
		return start.Add(s.Every).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("schedule kind %q does not recur", s.Kind)
}

// CronNextTime computes the next fire time for a cron expression strictly
// after refTime, evaluated in the given timezone and returned in UTC.
func CronNextTime(cronExpr, tz string, refTime time.Time) (time.Time, error) {
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	gron := gronx.New()
	if !gron.IsValid(cronExpr) {
		return time.Time{}, fmt.Errorf("invalid cron expression %q", cronExpr)
	}

	// Evaluate in the target timezone; the ref instant itself never matches.
	refInTZ := refTime.In(loc)
	next, err := gronx.NextTickAfter(cronExpr, refInTZ, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to compute next tick for %q: %w", cronExpr, err)
	}

	return next.UTC(), nil
}
