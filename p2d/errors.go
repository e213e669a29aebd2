package p2d

import (
	"errors"
	"fmt"
)

// Domain errors of the solver core.
var (
	// ErrConvergence indicates the Newton iteration failed to meet
	// tolerance within its iteration budget. Recoverable by step-size
	// reduction up to the retry ceiling.
	ErrConvergence = errors.New("newton iteration failed to converge")

	// ErrNonConservation indicates the internal charge-conservation check
	// failed on a converged state. Always fatal: it means an assembly bug,
	// never a policy decision.
	ErrNonConservation = errors.New("charge conservation violated")

	// ErrKineticsSaturated indicates a converged state produced a reaction
	// current density at the representable-range boundary, which signals
	// overcharge or overdischarge of an active material.
	ErrKineticsSaturated = errors.New("reaction current density saturated at state-of-charge boundary")

	// ErrStepTooSmall indicates the adaptive step fell below the floor
	// while retrying a failed step.
	ErrStepTooSmall = errors.New("time step below minimum while retrying")
)

// StepError wraps a failure with the step context it occurred at. The
// driver surfaces it together with the partial SimulationResult.
type StepError struct {
	Step    int
	Time    float64
	Dt      float64
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (t=%.6g s, dt=%.3g s): %v", e.Step, e.Time, e.Dt, e.Wrapped)
}

func (e *StepError) Unwrap() error { return e.Wrapped }
