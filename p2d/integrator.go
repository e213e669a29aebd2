package p2d

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/cellsolve/gop2d/utils"
)

// NewtonStep advances st (an in-place Newton iterate, initialized from the
// previous accepted state) across one implicit backward-Euler step of size
// dt. On success st holds the converged new time level; on failure st is
// garbage and the caller retries from a fresh copy with a smaller dt.
func (sim *Simulator) NewtonStep(st, prev *CellState, dt float64, ctl Control) (iters int, err error) {
	var (
		l         = sim.L
		saturated bool
	)
	for iters = 1; iters <= sim.Opts.MaxNewtonIterations; iters++ {
		R, J, sat, err := sim.Assemble(st, prev, dt, ctl)
		if err != nil {
			return iters, err
		}
		saturated = sat

		var delta mat.VecDense
		rhs := R.Copy().Scale(-1)
		if serr := delta.SolveVec(J.ToDense(), rhs.V); serr != nil {
			// mat.Condition is a warning: the factorization saw a large
			// condition number but still produced a solution. Only an
			// outright singular matrix aborts the iteration.
			var cond mat.Condition
			if !errors.As(serr, &cond) {
				return iters, fmt.Errorf("%w: singular Jacobian: %v", ErrConvergence, serr)
			}
		}

		s := sim.dampingFactor(st, &delta)
		for i := 0; i < l.NTot; i++ {
			st.U.SetVec(i, st.U.AtVec(i)+s*delta.AtVec(i))
		}
		if !st.U.IsFinite() {
			return iters, fmt.Errorf("%w: non-finite iterate", ErrConvergence)
		}
		if s == 1 && sim.converged(st, &delta, R, J) {
			if saturated {
				return iters, ErrKineticsSaturated
			}
			return iters, nil
		}
	}
	return iters - 1, fmt.Errorf("%w: %d iterations exhausted", ErrConvergence, sim.Opts.MaxNewtonIterations)
}

// dampingFactor limits the update so no electrolyte concentration drops
// below a small fraction of its current value in a single Newton move,
// which keeps the logarithmic junction term evaluable.
func (sim *Simulator) dampingFactor(st *CellState, delta *mat.VecDense) float64 {
	var (
		l = sim.L
		s = 1.0
	)
	for j := 0; j < l.Nx; j++ {
		var (
			i  = l.Ce(j)
			ce = st.U.AtVec(i)
			d  = delta.AtVec(i)
		)
		if ce+d < 0.05*ce {
			if sm := 0.95 * ce / -d; sm < s {
				s = sm
			}
		}
	}
	if s < 1e-3 {
		s = 1e-3
	}
	return s
}

// converged applies the per-field weighted update test: concentrations and
// potentials live on scales apart by orders of magnitude, so each carries
// its own absolute floor under a shared relative tolerance. The residual,
// scaled onto the same per-unknown weights through the Jacobian diagonal,
// must pass too, so a stagnated iterate with a small update but an
// unsatisfied equation is never accepted.
func (sim *Simulator) converged(st *CellState, delta *mat.VecDense, R utils.Vector, J utils.DOK) bool {
	var (
		l    = sim.L
		opts = &sim.Opts
	)
	check := func(i1, i2 int, abstol float64) bool {
		for i := i1; i < i2; i++ {
			w := opts.RelTol*math.Abs(st.U.AtVec(i)) + abstol
			if math.Abs(delta.AtVec(i)) > w {
				return false
			}
			if diag := math.Abs(J.At(i, i)); diag > 0 && math.Abs(R.AtVec(i)) > w*diag {
				return false
			}
		}
		return true
	}
	return check(l.CeOff, l.PhieOff, opts.AbsTolC) &&
		check(l.PhieOff, l.CsOff, opts.AbsTolV) &&
		check(l.CsOff, l.II, opts.AbsTolC) &&
		check(l.II, l.NTot, opts.AbsTolV)
}
