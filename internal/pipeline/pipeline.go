// Package pipeline sequences the mirror's stages: update, sync, archive,
// summary. Each stage is a Step; required steps abort the run on failure,
// best-effort steps are logged and skipped over.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies how a step finished.
type Outcome int

const (
	// Ok means the step ran and produced its normal result.
	Ok Outcome = iota

	// DefaultApplied means the step ran but substituted a default for a
	// missing input, such as an absent manifest on first run.
	DefaultApplied

	// Failed means the step returned an error.
	Failed
)

// String returns the outcome name for logs.
func (o Outcome) String() string {
	switch o {
	case Ok:
		return "ok"
	case DefaultApplied:
		return "default-applied"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Step is one stage of a run.
type Step struct {
	// Name identifies the step in logs
	Name string

	// BestEffort steps never abort the run; their failures are logged
	BestEffort bool

	// Run executes the step
	Run func(ctx context.Context) (Outcome, error)
}

// StepResult records how one step went.
type StepResult struct {
	Name       string
	Outcome    Outcome
	BestEffort bool
	Duration   time.Duration
	Err        error
}

// RunResult records a whole pipeline run.
type RunResult struct {
	// RunID uniquely identifies the run across logs
	RunID string

	Steps    []StepResult
	Duration time.Duration
}

// Failed reports whether any required step failed. Best-effort steps never
// count against the run.
func (r *RunResult) Failed() bool {
	for _, s := range r.Steps {
		if s.Outcome == Failed && s.Err != nil && !s.BestEffort {
			return true
		}
	}
	return false
}

// Runner executes steps in order.
type Runner struct {
	logger *slog.Logger
	newID  func() string
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// withIDFunc overrides run ID generation in tests.
func withIDFunc(fn func() string) Option {
	return func(r *Runner) {
		r.newID = fn
	}
}

// NewRunner creates a runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		logger: slog.Default(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs the steps in order. A required step's failure stops the run
// and returns the error; best-effort failures are recorded and the run
// continues. The result always covers every step that started.
func (r *Runner) Execute(ctx context.Context, steps []Step) (*RunResult, error) {
	result := &RunResult{RunID: r.newID()}
	logger := r.logger.With("run_id", result.RunID)
	runStart := time.Now()

	logger.Info("pipeline started", "steps", len(steps))

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(runStart)
			return result, fmt.Errorf("pipeline cancelled before %s: %w", step.Name, err)
		}

		stepLogger := logger.With("step", step.Name)
		stepLogger.Info("step started")

		start := time.Now()
		outcome, err := step.Run(ctx)
		sr := StepResult{
			Name:       step.Name,
			Outcome:    outcome,
			BestEffort: step.BestEffort,
			Duration:   time.Since(start),
			Err:        err,
		}
		result.Steps = append(result.Steps, sr)

		switch {
		case err == nil:
			stepLogger.Info("step finished",
				"outcome", outcome.String(), "duration", sr.Duration)
		case step.BestEffort:
			stepLogger.Warn("best-effort step failed, continuing",
				"error", err, "duration", sr.Duration)
		default:
			stepLogger.Error("step failed",
				"error", err, "duration", sr.Duration)
			result.Duration = time.Since(runStart)
			return result, fmt.Errorf("step %s failed: %w", step.Name, err)
		}
	}

	result.Duration = time.Since(runStart)
	logger.Info("pipeline finished", "duration", result.Duration)
	return result, nil
}
