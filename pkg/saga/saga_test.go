package saga

import (
	"context"
	"errors"
	"testing"
	"time"
)

type bookingState struct {
	reserved  bool
	persisted bool
	released  bool
	trail     []string
}

func reservePersist(persistErr, releaseErr error) *Definition[bookingState] {
	return NewDefinition[bookingState]("create_booking").
		AddStep(&Step[bookingState]{
			Name: "reserve",
			Execute: func(ctx context.Context, s *bookingState) error {
				s.reserved = true
				s.trail = append(s.trail, "reserve")
				return nil
			},
			Compensate: func(ctx context.Context, s *bookingState, cause error) error {
				s.trail = append(s.trail, "release")
				if releaseErr != nil {
					return releaseErr
				}
				s.released = true
				return nil
			},
		}).
		AddStep(&Step[bookingState]{
			Name: "persist",
			Execute: func(ctx context.Context, s *bookingState) error {
				s.trail = append(s.trail, "persist")
				if persistErr != nil {
					return persistErr
				}
				s.persisted = true
				return nil
			},
		})
}

func TestRun_Success(t *testing.T) {
	state := &bookingState{}
	result, err := reservePersist(nil, nil).Run(context.Background(), state)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !state.reserved || !state.persisted || state.released {
		t.Errorf("unexpected state: %+v", state)
	}
	for _, s := range result.Steps {
		if s.Status != StepStatusCompleted {
			t.Errorf("step %s status = %s, want completed", s.StepName, s.Status)
		}
	}
}

func TestRun_FailureCompensatesCompletedSteps(t *testing.T) {
	dbErr := errors.New("db down")
	state := &bookingState{}

	result, err := reservePersist(dbErr, nil).Run(context.Background(), state)

	if !errors.Is(err, dbErr) {
		t.Fatalf("err = %v, want to wrap db down", err)
	}
	var sagaErr *Error
	if !errors.As(err, &sagaErr) || sagaErr.Step != "persist" {
		t.Fatalf("expected *Error at step persist, got %v", err)
	}
	if !state.released {
		t.Error("reserve should have been compensated")
	}
	if got := result.Steps[0].Status; got != StepStatusCompensated {
		t.Errorf("reserve status = %s, want compensated", got)
	}
	if got := result.Steps[1].Status; got != StepStatusFailed {
		t.Errorf("persist status = %s, want failed", got)
	}
	if !result.Compensated() {
		t.Error("Compensated() = false, want true")
	}
	want := []string{"reserve", "persist", "release"}
	if len(state.trail) != len(want) {
		t.Fatalf("trail = %v, want %v", state.trail, want)
	}
	for i := range want {
		if state.trail[i] != want[i] {
			t.Errorf("trail[%d] = %s, want %s", i, state.trail[i], want[i])
		}
	}
}

func TestRun_CompensationFailureIsReported(t *testing.T) {
	state := &bookingState{}
	result, err := reservePersist(errors.New("db down"), errors.New("inventory down")).Run(context.Background(), state)

	var sagaErr *Error
	if !errors.As(err, &sagaErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if len(sagaErr.CompensationErrs) != 1 {
		t.Errorf("compensation errors = %d, want 1", len(sagaErr.CompensationErrs))
	}
	if result.Steps[0].Status != StepStatusCompensationFailed {
		t.Errorf("reserve status = %s, want compensation_failed", result.Steps[0].Status)
	}
	if result.Compensated() {
		t.Error("Compensated() = true, want false")
	}
}

func TestRun_FirstStepFailureSkipsCompensation(t *testing.T) {
	reserveErr := errors.New("insufficient tickets")
	var compensated bool
	def := NewDefinition[bookingState]("create_booking").
		AddStep(&Step[bookingState]{
			Name:       "reserve",
			Execute:    func(ctx context.Context, s *bookingState) error { return reserveErr },
			Compensate: func(ctx context.Context, s *bookingState, cause error) error { compensated = true; return nil },
		})

	_, err := def.Run(context.Background(), &bookingState{})

	if !errors.Is(err, reserveErr) {
		t.Fatalf("err = %v, want insufficient tickets", err)
	}
	if compensated {
		t.Error("a failed step must not be compensated")
	}
}

func TestRun_CompensationSurvivesCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var compCtxErr error

	def := NewDefinition[bookingState]("create_booking").
		AddStep(&Step[bookingState]{
			Name:    "reserve",
			Execute: func(ctx context.Context, s *bookingState) error { return nil },
			Compensate: func(ctx context.Context, s *bookingState, cause error) error {
				compCtxErr = ctx.Err()
				return nil
			},
		}).
		AddStep(&Step[bookingState]{
			Name: "persist",
			Execute: func(ctx context.Context, s *bookingState) error {
				cancel()
				return ctx.Err()
			},
		})

	_, err := def.Run(ctx, &bookingState{})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if compCtxErr != nil {
		t.Errorf("compensation ran with a cancelled context: %v", compCtxErr)
	}
}

func TestAddStep_DefaultTimeout(t *testing.T) {
	def := NewDefinition[bookingState]("x").AddStep(&Step[bookingState]{Name: "a"})
	if def.Steps[0].Timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", def.Steps[0].Timeout)
	}
}

func TestRun_StepTimeout(t *testing.T) {
	def := NewDefinition[bookingState]("x").AddStep(&Step[bookingState]{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Execute: func(ctx context.Context, s *bookingState) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	_, err := def.Run(context.Background(), &bookingState{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}
