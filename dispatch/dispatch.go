// Package dispatch runs a batch of independent ensemble-member jobs
// either on a local worker pool or as Kubernetes Jobs on a cluster (spec
// §4.6, generalizing the original's HTCondor submission model to two
// selectable backends).
package dispatch

import (
	"context"
	"time"

	"github.com/GaryBoone/GoStats/stats"
)

// Job is one unit of dispatchable work: a member/segment run identified
// by Name, with an opaque Run callback that performs the work (building
// inflow, invoking the routing kernel, merging output).
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Outcome is one job's terminal result.
type Outcome struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Backend dispatches a batch of jobs and waits for all of them to finish,
// returning one Outcome per job in the same order as jobs. A job's own
// failure is reported in its Outcome, never as Dispatch's returned error;
// Dispatch itself only errors on backend-level failures (e.g. the cluster
// API being unreachable).
type Backend interface {
	Dispatch(ctx context.Context, jobs []Job) ([]Outcome, error)
}

// Stats accumulates per-job duration statistics across one dispatch call,
// for the post-cycle timing summary rapidflow logs. GoStats computes
// running mean/variance (Welford's algorithm) without materializing the
// sample; the max is tracked alongside it since GoStats does not report
// one.
type Stats struct {
	acc *stats.Stats
	max float64
}

// NewStats returns an empty Stats accumulator.
func NewStats() *Stats {
	return &Stats{acc: &stats.Stats{}}
}

// Add records one job's duration.
func (s *Stats) Add(d time.Duration) {
	secs := d.Seconds()
	s.acc.Update(secs)
	if secs > s.max {
		s.max = secs
	}
}

// Summary reports the accumulated mean/stddev/max job duration in seconds.
func (s *Stats) Summary() (mean, stddev, max float64) {
	if s.acc.Count() == 0 {
		return 0, 0, 0
	}
	return s.acc.Mean(), s.acc.SampleStandardDeviation(), s.max
}

// RecordAll feeds every outcome's duration into s, for convenience after a
// Dispatch call.
func (s *Stats) RecordAll(outcomes []Outcome) {
	for _, o := range outcomes {
		s.Add(o.Duration)
	}
}
