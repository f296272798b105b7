package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/QKhanh04/innerg-api/internal/logging"
)

// step is one forward action of a saga and the action that undoes it.
// undo may be nil.
type step struct {
	name string
	do   func(ctx context.Context) error
	undo func(ctx context.Context) error
}

// saga runs steps in order. When a step fails, the undo of every completed
// step runs once, newest first. Undo failures are logged and joined to the
// returned error after the original cause.
type saga struct {
	steps  []step
	logger logging.Logger
}

func (s *saga) run(ctx context.Context) error {
	for i, st := range s.steps {
		if err := st.do(ctx); err != nil {
			return s.compensate(ctx, s.steps[:i], err)
		}
	}
	return nil
}

func (s *saga) compensate(ctx context.Context, done []step, cause error) error {
	// compensations must run even when the caller has gone away
	ctx = context.WithoutCancel(ctx)

	errs := []error{cause}
	for i := len(done) - 1; i >= 0; i-- {
		st := done[i]
		if st.undo == nil {
			continue
		}
		if err := st.undo(ctx); err != nil {
			s.logger.Error(ctx, "saga compensation failed", "step", st.name, "cause", cause, "error", err)
			errs = append(errs, fmt.Errorf("undo %s: %w", st.name, err))
		}
	}
	if len(errs) == 1 {
		return cause
	}
	return errors.Join(errs...)
}
