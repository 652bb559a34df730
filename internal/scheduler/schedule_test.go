package scheduler

import (
	"testing"
	"time"

	"github.com/emonklabs/emonk/internal/testutil"
)

func TestAtSchedule(t *testing.T) {
	when := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := At(when)

	testutil.NoError(t, s.Validate())
	testutil.False(t, s.Recurring())

	first, err := s.FirstRunAt(when.Add(-time.Hour))
	testutil.NoError(t, err)
	testutil.True(t, first.Equal(when))
}

func TestAtScheduleNormalizesToUTC(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	testutil.NoError(t, err)

	local := time.Date(2025, 6, 1, 9, 0, 0, 0, loc)
	s := At(local)
	testutil.Equal(t, time.UTC, s.At.Location())
	testutil.True(t, s.At.Equal(local))
}

func TestAtScheduleRequiresTimestamp(t *testing.T) {
	s := Schedule{Kind: ScheduleAt}
	testutil.ErrorContains(t, s.Validate(), "requires a timestamp")
}

func TestEverySchedule(t *testing.T) {
	s := Every(10 * time.Minute)
	testutil.NoError(t, s.Validate())
	testutil.True(t, s.Recurring())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	first, err := s.FirstRunAt(now)
	testutil.NoError(t, err)
	testutil.True(t, first.Equal(now.Add(10*time.Minute)))

	// The interval is anchored at execution start, not completion.
	next, err := s.Next(first)
	testutil.NoError(t, err)
	testutil.True(t, next.Equal(first.Add(10*time.Minute)))
}

func TestEveryScheduleRequiresPositiveInterval(t *testing.T) {
	testutil.ErrorContains(t, Every(0).Validate(), "positive interval")
	testutil.ErrorContains(t, Every(-time.Minute).Validate(), "positive interval")
}

func TestCronScheduleValidation(t *testing.T) {
	testutil.NoError(t, Cron("0 9 * * *", "UTC").Validate())
	testutil.NoError(t, Cron("*/5 * * * *", "").Validate())
	testutil.ErrorContains(t, Cron("not a cron", "UTC").Validate(), "invalid cron expression")
	testutil.ErrorContains(t, Cron("0 9 * * *", "Mars/Olympus").Validate(), "invalid timezone")
}

func TestCronNextTimeStrictlyAfter(t *testing.T) {
	ref := time.Date(2025, 3, 10, 8, 59, 30, 0, time.UTC)
	next, err := CronNextTime("0 9 * * *", "UTC", ref)
	testutil.NoError(t, err)
	testutil.True(t, next.Equal(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)))

	// A ref exactly on a match never fires again at that instant.
	onMatch := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	next, err = CronNextTime("0 9 * * *", "UTC", onMatch)
	testutil.NoError(t, err)
	testutil.True(t, next.Equal(time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)))
}

func TestCronNextTimeHonorsTimezone(t *testing.T) {
	// 9am in New York during EDT is 13:00 UTC.
	ref := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	next, err := CronNextTime("0 9 * * *", "America/New_York", ref)
	testutil.NoError(t, err)
	testutil.True(t, next.Equal(time.Date(2025, 6, 15, 13, 0, 0, 0, time.UTC)),
		"got %v", next)
	testutil.Equal(t, time.UTC, next.Location())
}

func TestCronScheduleNextAdvances(t *testing.T) {
	s := Cron("*/15 * * * *", "UTC")
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	next, err := s.Next(start)
	testutil.NoError(t, err)
	testutil.True(t, next.Equal(start.Add(15*time.Minute)))
}

func TestOneShotScheduleDoesNotRecur(t *testing.T) {
	s := At(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	_, err := s.Next(time.Now())
	testutil.ErrorContains(t, err, "does not recur")
}

func TestUnknownScheduleKind(t *testing.T) {
	s := Schedule{Kind: "hourly"}
	testutil.ErrorContains(t, s.Validate(), "unknown schedule kind")
	_, err := s.FirstRunAt(time.Now())
	testutil.ErrorContains(t, err, "unknown schedule kind")
}
