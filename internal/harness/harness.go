// Copyright (C) 2025 Zinc Labs Inc.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package harness drives timed benchmark iterations over a set of stages:
// warm-up passes whose samples are discarded, measured passes collected
// into per-stage summaries, and an abort path when failures cross the
// configured threshold.
package harness

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// State is the harness lifecycle phase. Transitions are strictly forward:
// Idle, WarmingUp, Measuring, Aggregating, Done.
type State int

const (
	StateIdle State = iota
	StateWarmingUp
	StateMeasuring
	StateAggregating
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWarmingUp:
		return "warming_up"
	case StateMeasuring:
		return "measuring"
	case StateAggregating:
		return "aggregating"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stage is one timed unit of work. Run must be repeatable: every
// invocation starts from the same prepared inputs and leaves no state
// behind that would change the next invocation.
type Stage struct {
	Name string
	Run  func(ctx context.Context) error
}

// Config controls a harness run.
type Config struct {
	// WarmupIterations are run first and their timings discarded.
	WarmupIterations int

	// MeasureIterations are timed and aggregated.
	MeasureIterations int

	// FailureThreshold is the fraction of measured samples allowed to
	// fail before the run aborts. 0 aborts on the first failure.
	FailureThreshold float64

	// StageTimeout bounds each stage invocation. Zero means no timeout.
	StageTimeout time.Duration
}

// DefaultConfig mirrors the standard benchmark shape.
func DefaultConfig() Config {
	return Config{
		WarmupIterations:  3,
		MeasureIterations: 10,
		FailureThreshold:  0.1,
		StageTimeout:      5 * time.Minute,
	}
}

// Validate rejects configs no run could satisfy.
func (c Config) Validate() error {
	if c.MeasureIterations <= 0 {
		return fmt.Errorf("measure iterations must be positive, got %d", c.MeasureIterations)
	}
	if c.WarmupIterations < 0 {
		return fmt.Errorf("warmup iterations must not be negative, got %d", c.WarmupIterations)
	}
	if c.FailureThreshold < 0 || c.FailureThreshold > 1 {
		return fmt.Errorf("failure threshold must be in [0,1], got %g", c.FailureThreshold)
	}
	return nil
}

// Sample is one measured stage invocation. Failed samples keep their
// duration for the record but are excluded from timing statistics.
type Sample struct {
	Stage     string        `json:"stage"`
	Iteration int           `json:"iteration"`
	Duration  time.Duration `json:"duration_ns"`
	Failed    bool          `json:"failed"`
	Error     string        `json:"error,omitempty"`
}

// Report is the outcome of a completed run.
type Report struct {
	State     State
	Samples   []Sample
	Summaries []Summary
}

// AbortError is returned when measured failures cross the threshold. It
// carries everything collected up to the abort so partial results can
// still be written out.
type AbortError struct {
	Failures  int
	Allowed   int
	Threshold float64
	Samples   []Sample
	Summaries []Summary
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("benchmark aborted: %d failures exceeds allowed %d (threshold %.2f)",
		e.Failures, e.Allowed, e.Threshold)
}

// Harness runs stages through the warm-up and measurement phases.
type Harness struct {
	cfg    Config
	stages []Stage
	ll     *slog.Logger

	state   State
	samples []Sample
}

// New creates a harness over the given stages.
func New(cfg Config, stages []Stage, ll *slog.Logger) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("at least one stage is required")
	}
	if ll == nil {
		ll = slog.Default()
	}
	return &Harness{cfg: cfg, stages: stages, ll: ll, state: StateIdle}, nil
}

// State returns the current lifecycle phase.
func (h *Harness) State() State {
	return h.state
}

// Run executes all warm-up and measured iterations. Cancellation is
// honored between iterations, never inside one; a stage invocation in
// flight finishes (subject to StageTimeout) before the run stops. On
// cancellation the samples collected so far come back with the error.
func (h *Harness) Run(ctx context.Context) (*Report, error) {
	h.state = StateWarmingUp
	h.ll.Info("warm-up starting",
		slog.Int("iterations", h.cfg.WarmupIterations),
		slog.Int("stages", len(h.stages)))

	for i := 0; i < h.cfg.WarmupIterations; i++ {
		if err := ctx.Err(); err != nil {
			return &Report{State: h.state}, err
		}
		for _, st := range h.stages {
			s := h.runStage(ctx, st, i)
			if s.Failed {
				h.ll.Warn("warm-up stage failed",
					slog.String("stage", st.Name),
					slog.Int("iteration", i),
					slog.String("error", s.Error))
			}
		}
	}

	h.state = StateMeasuring
	h.ll.Info("measurement starting", slog.Int("iterations", h.cfg.MeasureIterations))

	allowed := int(h.cfg.FailureThreshold * float64(h.cfg.MeasureIterations*len(h.stages)))
	failures := 0

	for i := 0; i < h.cfg.MeasureIterations; i++ {
		if err := ctx.Err(); err != nil {
			// Summarize what was collected so partial results still
			// reach the results file.
			return &Report{State: h.state, Samples: h.samples, Summaries: Summarize(h.samples)}, err
		}
		for _, st := range h.stages {
			s := h.runStage(ctx, st, i)
			h.samples = append(h.samples, s)
			if !s.Failed {
				continue
			}
			failures++
			h.ll.Warn("measured stage failed",
				slog.String("stage", st.Name),
				slog.Int("iteration", i),
				slog.Int("failures", failures),
				slog.Int("allowed", allowed),
				slog.String("error", s.Error))
			if failures > allowed {
				h.state = StateAggregating
				summaries := Summarize(h.samples)
				h.state = StateDone
				return &Report{State: h.state, Samples: h.samples, Summaries: summaries}, &AbortError{
					Failures:  failures,
					Allowed:   allowed,
					Threshold: h.cfg.FailureThreshold,
					Samples:   h.samples,
					Summaries: summaries,
				}
			}
		}
	}

	h.state = StateAggregating
	summaries := Summarize(h.samples)
	h.state = StateDone

	h.ll.Info("run complete",
		slog.Int("samples", len(h.samples)),
		slog.Int("failures", failures))
	return &Report{State: h.state, Samples: h.samples, Summaries: summaries}, nil
}

// runStage times one stage invocation. The stage gets its own timeout
// context so a hung invocation cannot stall the whole run.
func (h *Harness) runStage(ctx context.Context, st Stage, iteration int) Sample {
	runCtx := ctx
	if h.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, h.cfg.StageTimeout)
		defer cancel()
	}

	start := time.Now()
	err := st.Run(runCtx)
	elapsed := time.Since(start)

	s := Sample{Stage: st.Name, Iteration: iteration, Duration: elapsed}
	if err != nil {
		s.Failed = true
		s.Error = err.Error()
	}
	return s
}
