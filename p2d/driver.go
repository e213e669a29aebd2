package p2d

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/cellsolve/gop2d/cellparams"
	"github.com/cellsolve/gop2d/mesh"
	"github.com/cellsolve/gop2d/ocp"
)

// RunProtocol is the single top-level entry point of the core: it builds
// the simulator from the validated configuration and mesh, initializes the
// equilibrium state at the configured SOC and drives the protocol to
// completion. The returned SimulationResult holds every accepted step even
// when the run terminates with an error.
func RunProtocol(ctx context.Context, cfg *cellparams.CellConfiguration, m *mesh.Mesh, protocol Protocol, opts Options) (*SimulationResult, error) {
	if err := protocol.Validate(); err != nil {
		return &SimulationResult{}, err
	}
	sim, err := NewSimulator(cfg, m, opts)
	if err != nil {
		return &SimulationResult{}, err
	}
	st, err := sim.InitialState()
	if err != nil {
		return &SimulationResult{}, err
	}
	return sim.Run(ctx, st, protocol)
}

// Run owns the time loop. Each accepted backward-Euler step appends to the
// result and feeds the sink; step-size control shrinks on failed Newton
// solves and grows on easy ones. Cancellation is honored between steps,
// never mid-iteration.
func (sim *Simulator) Run(ctx context.Context, initial *CellState, protocol Protocol) (result *SimulationResult, err error) {
	var (
		opts     = &sim.Opts
		accepted = initial.Copy()
		stepNo   = 0
	)
	result = &SimulationResult{}
	sim.record(result, accepted)

	for si := range protocol.Segments {
		seg := &protocol.Segments[si]
		ctl, err := seg.control()
		if err != nil {
			return result, err
		}
		if opts.Verbose {
			fmt.Printf("segment %d: %s\n", si, seg.String())
		}
		var (
			segStart = accepted.Time
			dt       = opts.DtInitial
		)
	segment:
		for {
			if ctx != nil {
				if cerr := ctx.Err(); cerr != nil {
					return result, fmt.Errorf("run canceled at t=%.6g s: %w", accepted.Time, cerr)
				}
			}
			elapsed := accepted.Time - segStart
			if seg.Duration > 0 {
				remaining := seg.Duration - elapsed
				if remaining <= 1e-12 {
					break segment
				}
				if dt > remaining {
					dt = remaining
				}
			}

			trial, iters, serr := sim.attemptStep(accepted, &dt, ctl)
			if serr != nil {
				return result, &StepError{Step: stepNo + 1, Time: accepted.Time, Dt: dt, Wrapped: serr}
			}
			if cerr := sim.CheckChargeConservation(trial); cerr != nil {
				return result, &StepError{Step: stepNo + 1, Time: trial.Time, Dt: dt, Wrapped: cerr}
			}
			accepted = trial
			stepNo++
			step := sim.record(result, accepted)
			if opts.Sink != nil {
				if serr := opts.Sink.Accept(step); serr != nil {
					return result, fmt.Errorf("results sink rejected step %d: %w", stepNo, serr)
				}
			}
			if opts.Verbose && stepNo%50 == 0 {
				fmt.Printf("t = %10.3f s, dt = %8.3g s, iters = %2d, I = %8.4f A, V = %8.5f V\n",
					accepted.Time, dt, iters, step.Current, step.Voltage)
			}

			if seg.VoltageCutoffLow > 0 && step.Voltage <= seg.VoltageCutoffLow {
				break segment
			}
			if seg.VoltageCutoffHigh > 0 && step.Voltage >= seg.VoltageCutoffHigh {
				break segment
			}
			if ctl.Mode == CV && seg.CurrentCutoff > 0 && math.Abs(step.Current) <= seg.CurrentCutoff {
				break segment
			}

			if iters <= opts.EasyIterations && dt < opts.DtMax {
				dt *= 1.2
				if dt > opts.DtMax {
					dt = opts.DtMax
				}
			}
		}
	}
	return result, nil
}

// attemptStep runs the Newton solve at the current dt, halving on
// recoverable failures until the retry budget or the step floor is hit.
// On success dt holds the size actually used.
func (sim *Simulator) attemptStep(accepted *CellState, dt *float64, ctl Control) (trial *CellState, iters int, err error) {
	var (
		opts = &sim.Opts
	)
	for retry := 0; ; retry++ {
		trial = accepted.Copy()
		trial.Time = accepted.Time + *dt
		if ctl.Mode == CC {
			// Seed the linear closure row so the first iterate already
			// carries the target current.
			trial.U.SetVec(sim.L.II, ctl.Current)
		}
		iters, err = sim.NewtonStep(trial, accepted, *dt, ctl)
		if err == nil {
			return trial, iters, nil
		}
		if !recoverable(err) {
			return nil, iters, err
		}
		if retry >= opts.MaxStepRetries || *dt/2 < opts.DtMin {
			return nil, iters, fmt.Errorf("%w: %w", ErrStepTooSmall, err)
		}
		*dt /= 2
	}
}

// recoverable errors are retried with a smaller step; everything else
// escalates to the driver's caller.
func recoverable(err error) bool {
	return errors.Is(err, ErrConvergence) ||
		errors.Is(err, ErrKineticsSaturated) ||
		errors.Is(err, ocp.ErrStoichiometryOutOfRange)
}

func (sim *Simulator) record(result *SimulationResult, st *CellState) Step {
	step := Step{
		Time:    st.Time,
		Current: st.AppliedCurrent(sim.L),
		Voltage: sim.Voltage(st),
		State:   st,
	}
	result.append(step)
	return step
}
