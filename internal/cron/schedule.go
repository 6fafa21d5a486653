package cron

import (
	"context"
	"time"
)

// MinPeriod is the shortest period a job can be scheduled at.
const MinPeriod = time.Minute

// Job is one unit of periodic maintenance.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type scheduled struct {
	job    Job
	period time.Duration
}

// Schedule lists jobs with their periods, in registration order.
type Schedule struct {
	entries []scheduled
}

func NewSchedule() *Schedule {
	return &Schedule{}
}

// Every registers job to run once per period. Nil jobs are ignored and
// periods under MinPeriod are raised to it.
func (s *Schedule) Every(period time.Duration, job Job) *Schedule {
	if job == nil {
		return s
	}
	if period < MinPeriod {
		period = MinPeriod
	}
	s.entries = append(s.entries, scheduled{job: job, period: period})
	return s
}

// Names returns the registered job names in order.
func (s *Schedule) Names() []string {
	names := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		names = append(names, e.job.Name())
	}
	return names
}
