package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule computes the next run time of a recurring job.
type Schedule interface {
	Next(from time.Time) time.Time
}

// parser accepts standard five-field expressions and descriptors such as
// "@hourly" or "@every 15m".
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Interval runs at a fixed distance from the previous run.
type Interval time.Duration

// Every returns an Interval schedule.
func Every(d time.Duration) Schedule { return Interval(d) }

// Next implements Schedule.
func (i Interval) Next(from time.Time) time.Time { return from.Add(time.Duration(i)) }

// Parse builds a schedule from a cron expression or descriptor. Times are
// evaluated in the location of the time passed to Next, UTC for the
// scheduler.
func Parse(expr string) (Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("schedule: parse %q: %w", expr, err)
	}
	return sched, nil
}
