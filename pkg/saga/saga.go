// Package saga runs a short sequence of local steps and compensates the completed
// ones in reverse order when a later step fails. There is no coordinator and no
// persisted saga log: each step must leave enough durable state (idempotency keys,
// retry queues) for its own recovery.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prohmpiriya/event-booking-saga/pkg/logger"
	"go.uber.org/zap"
)

// StepStatus represents the status of a saga step
type StepStatus string

const (
	StepStatusPending     StepStatus = "pending"
	StepStatusCompleted   StepStatus = "completed"
	StepStatusFailed      StepStatus = "failed"
	StepStatusCompensated StepStatus = "compensated"
	// StepStatusCompensationFailed means the undo itself failed and the step's effect is still live
	StepStatusCompensationFailed StepStatus = "compensation_failed"
)

// Step is a single step operating on shared state S
type Step[S any] struct {
	Name       string
	Execute    func(ctx context.Context, state *S) error
	Compensate func(ctx context.Context, state *S, cause error) error
	Timeout    time.Duration
}

// StepResult records what happened to one step
type StepResult struct {
	StepName string
	Status   StepStatus
	Err      error
	Duration time.Duration
}

// Definition is an ordered list of steps
type Definition[S any] struct {
	Name  string
	Steps []*Step[S]
}

// NewDefinition creates a new saga definition
func NewDefinition[S any](name string) *Definition[S] {
	return &Definition[S]{Name: name}
}

// AddStep appends a step. Steps without a timeout get 10s.
func (d *Definition[S]) AddStep(step *Step[S]) *Definition[S] {
	if step.Timeout == 0 {
		step.Timeout = 10 * time.Second
	}
	d.Steps = append(d.Steps, step)
	return d
}

// Result is the outcome of one run
type Result struct {
	Steps []*StepResult
}

// Compensated reports whether every completed step was undone
func (r *Result) Compensated() bool {
	for _, s := range r.Steps {
		if s.Status == StepStatusCompleted || s.Status == StepStatusCompensationFailed {
			return false
		}
	}
	return true
}

// Error is returned by Run when a step fails.
// It unwraps to the step's own error so callers can match domain sentinels.
type Error struct {
	Saga             string
	Step             string
	Err              error
	CompensationErrs []error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("saga %s failed at step %s: %v", e.Saga, e.Step, e.Err)
	if len(e.CompensationErrs) > 0 {
		msg += fmt.Sprintf(" (%d compensation failures)", len(e.CompensationErrs))
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Run executes the steps in order. On the first failure every completed step is
// compensated in reverse order, with a context that survives cancellation of ctx.
func (d *Definition[S]) Run(ctx context.Context, state *S) (*Result, error) {
	log := logger.Get().With(zap.String("saga", d.Name))
	result := &Result{Steps: make([]*StepResult, 0, len(d.Steps))}

	for _, step := range d.Steps {
		sr := &StepResult{StepName: step.Name, Status: StepStatusPending}
		result.Steps = append(result.Steps, sr)

		start := time.Now()
		err := runWithTimeout(ctx, step.Timeout, func(stepCtx context.Context) error {
			return step.Execute(stepCtx, state)
		})
		sr.Duration = time.Since(start)

		if err == nil {
			sr.Status = StepStatusCompleted
			continue
		}

		sr.Status = StepStatusFailed
		sr.Err = err
		log.Warn("Saga step failed", zap.String("step", step.Name), zap.Error(err))

		return result, &Error{
			Saga:             d.Name,
			Step:             step.Name,
			Err:              err,
			CompensationErrs: d.compensate(ctx, state, result, err, log),
		}
	}

	return result, nil
}

func (d *Definition[S]) compensate(ctx context.Context, state *S, result *Result, cause error, log *logger.Logger) []error {
	// The caller may have gone away, the undo must still run
	detached := context.WithoutCancel(ctx)

	var errs []error
	for i := len(result.Steps) - 1; i >= 0; i-- {
		sr := result.Steps[i]
		if sr.Status != StepStatusCompleted {
			continue
		}
		step := d.Steps[i]
		if step.Compensate == nil {
			continue
		}

		err := runWithTimeout(detached, step.Timeout, func(stepCtx context.Context) error {
			return step.Compensate(stepCtx, state, cause)
		})
		if err != nil {
			sr.Status = StepStatusCompensationFailed
			sr.Err = err
			errs = append(errs, fmt.Errorf("compensate %s: %w", step.Name, err))
			log.Error("Saga compensation failed", zap.String("step", step.Name), zap.Error(err))
			continue
		}
		sr.Status = StepStatusCompensated
		log.Info("Saga step compensated", zap.String("step", step.Name))
	}
	return errs
}

func runWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := fn(stepCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("step timed out after %s: %w", timeout, err)
		}
		return err
	}
	return nil
}
