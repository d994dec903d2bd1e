package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// step is one forward action in a provisioning run paired with its inverse.
// A nil compensate means the step leaves nothing behind on its own: either
// it never mutates, or its writes are staged in the run's unit of work and
// disappear when the unit rolls back.
type step struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// execute runs the kind's step list in order. On the first failure it
// unwinds the compensations of every completed step in reverse order and
// maps the outcome onto the error taxonomy.
func (c *Coordinator) execute(ctx context.Context, kind Kind, steps []step) error {
	done := make([]step, 0, len(steps))
	for _, st := range steps {
		if err := st.run(ctx); err != nil {
			return c.unwind(ctx, kind, st.name, err, done)
		}
		done = append(done, st)
	}
	return nil
}

// unwind executes compensations newest-first. Compensation errors never mask
// the triggering error: both travel in the returned CompensationFailure.
// Remaining compensations still run after one fails, so a broken credential
// delete does not strand an open unit of work.
func (c *Coordinator) unwind(ctx context.Context, kind Kind, failed string, cause error, done []step) error {
	mutated := false
	var compErr error
	for i := len(done) - 1; i >= 0; i-- {
		st := done[i]
		if st.compensate == nil {
			continue
		}
		mutated = true
		if err := st.compensate(ctx); err != nil {
			c.logger.ErrorContext(ctx, "compensation failed, residual record needs operator attention",
				slog.String("kind", string(kind)),
				slog.String("failed_step", failed),
				slog.String("compensated_step", st.name),
				slog.String("error", err.Error()),
			)
			compErr = errors.Join(compErr, fmt.Errorf("compensate %s: %w", st.name, err))
			continue
		}
		c.logger.InfoContext(ctx, "compensated step",
			slog.String("kind", string(kind)),
			slog.String("failed_step", failed),
			slog.String("compensated_step", st.name),
		)
	}

	if compErr != nil {
		if c.metrics != nil {
			c.metrics.CompensationFailures.WithLabelValues(string(kind)).Inc()
		}
		return &CompensationFailure{Step: failed, Cause: cause, Err: compErr}
	}

	// Validation/conflict outcomes and failures with nothing to undo pass
	// through unchanged: on clean compensation the caller sees the original
	// triggering error.
	var validation *ValidationError
	var conflict *ConflictError
	if errors.As(cause, &validation) || errors.As(cause, &conflict) || !mutated {
		return cause
	}
	return &ProvisioningFailure{Step: failed, Err: cause}
}
