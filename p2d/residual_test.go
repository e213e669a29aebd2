package p2d

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEquilibriumResidualVanishes(t *testing.T) {
	sim := testSimulator(DefaultOptions())
	st, err := sim.InitialState()
	require.NoError(t, err)

	R, _, sat, err := sim.Assemble(st, st, 1.0, Control{Mode: CC, Current: 0})
	require.NoError(t, err)
	assert.False(t, sat)
	assert.Less(t, R.MaxAbsRange(0, sim.L.NTot), 1e-9,
		"equilibrium state must be an exact root at zero current")
}

// perturbedState nudges every field off equilibrium so the cross couplings
// of the Jacobian carry nonzero values, while staying well inside the
// saturation guards.
func perturbedState(sim *Simulator) *CellState {
	st, err := sim.InitialState()
	if err != nil {
		panic(err)
	}
	var (
		l = sim.L
		u = st.U
	)
	for j := 0; j < l.Nx; j++ {
		u.SetVec(l.Ce(j), u.AtVec(l.Ce(j))*(1+0.05*math.Sin(float64(j+1))))
		u.SetVec(l.Phie(j), u.AtVec(l.Phie(j))+0.003*math.Cos(float64(j)))
	}
	for e := 0; e < l.NE; e++ {
		u.SetVec(l.Phis(e), u.AtVec(l.Phis(e))+0.002*math.Sin(float64(e)))
		for k := 0; k < l.Nr; k++ {
			i := l.Cs(e, 0, k)
			u.SetVec(i, u.AtVec(i)*(1+0.02*math.Sin(float64(i))))
		}
	}
	u.SetVec(l.II, 0.1)
	return st
}

// TestJacobianMatchesFiniteDifferences validates every Jacobian column
// against central differences of the residual. The test cell uses constant
// transport correlations, under which the assembled Jacobian is exact.
func TestJacobianMatchesFiniteDifferences(t *testing.T) {
	sim := testSimulator(DefaultOptions())
	prev, err := sim.InitialState()
	require.NoError(t, err)
	st := perturbedState(sim)

	var (
		l   = sim.L
		dt  = 2.0
		ctl = Control{Mode: CC, Current: 0.1}
	)
	_, J, _, err := sim.Assemble(st, prev, dt, ctl)
	require.NoError(t, err)
	dense := J.ToDense()

	evalR := func(s *CellState) []float64 {
		R, _, _, err := sim.Assemble(s, prev, dt, ctl)
		require.NoError(t, err)
		out := make([]float64, l.NTot)
		copy(out, R.DataP())
		return out
	}

	for col := 0; col < l.NTot; col++ {
		var (
			u0 = st.U.AtVec(col)
			h  = 1e-7 * (1 + math.Abs(u0))
		)
		st.U.SetVec(col, u0+h)
		rp := evalR(st)
		st.U.SetVec(col, u0-h)
		rm := evalR(st)
		st.U.SetVec(col, u0)

		// Column scale sets the comparison floor; an absent or
		// wrong-signed coupling shows up at full scale.
		colScale := 1e-30
		for row := 0; row < l.NTot; row++ {
			if a := math.Abs(dense.At(row, col)); a > colScale {
				colScale = a
			}
		}
		for row := 0; row < l.NTot; row++ {
			fd := (rp[row] - rm[row]) / (2 * h)
			assert.InDelta(t, dense.At(row, col), fd, 1e-3*colScale,
				"J[%d,%d]", row, col)
		}
	}
}

// The particle shell equations are assembled per unit shell volume, so
// their rows sit on scales commensurate with the electrolyte and charge
// balances instead of carrying the ~1e-18 m^3 absolute shell volumes. A
// spread past this bound pushes the direct solve toward singularity.
func TestJacobianRowScalesCommensurate(t *testing.T) {
	sim := testSimulator(DefaultOptions())
	prev, err := sim.InitialState()
	require.NoError(t, err)
	st := perturbedState(sim)

	_, J, _, err := sim.Assemble(st, prev, 1.0, Control{Mode: CC, Current: 0.1})
	require.NoError(t, err)
	var (
		dense  = J.ToDense()
		n      = sim.L.NTot
		minRow = math.Inf(1)
		maxRow = 0.0
	)
	for i := 0; i < n; i++ {
		norm := 0.0
		for j := 0; j < n; j++ {
			if a := math.Abs(dense.At(i, j)); a > norm {
				norm = a
			}
		}
		require.Greater(t, norm, 0.0, "row %d has no entries", i)
		if norm < minRow {
			minRow = norm
		}
		if norm > maxRow {
			maxRow = norm
		}
	}
	assert.Less(t, maxRow/minRow, 1e14)
}

func TestClosureRows(t *testing.T) {
	sim := testSimulator(DefaultOptions())
	st := perturbedState(sim)
	l := sim.L

	// CC: the closure residual is the current mismatch.
	R, _, _, err := sim.Assemble(st, st, 1.0, Control{Mode: CC, Current: 0.25})
	require.NoError(t, err)
	assert.InDelta(t, st.AppliedCurrent(l)-0.25, R.AtVec(l.II), 1e-12)

	// CV: the closure residual is the voltage mismatch.
	R, _, _, err = sim.Assemble(st, st, 1.0, Control{Mode: CV, Voltage: 3.5})
	require.NoError(t, err)
	assert.InDelta(t, sim.Voltage(st)-3.5, R.AtVec(l.II), 1e-12)
}

func TestChargeConservationOnConvergedStep(t *testing.T) {
	sim := testSimulator(DefaultOptions())
	prev, err := sim.InitialState()
	require.NoError(t, err)

	trial := prev.Copy()
	trial.U.SetVec(sim.L.II, 0.15)
	_, err = sim.NewtonStep(trial, prev, 1.0, Control{Mode: CC, Current: 0.15})
	require.NoError(t, err)
	assert.NoError(t, sim.CheckChargeConservation(trial))
	assert.InDelta(t, 0.15, trial.AppliedCurrent(sim.L), 1e-9)

	// A corrupted state trips the check.
	bad := trial.Copy()
	bad.U.SetVec(sim.L.II, 0.3)
	assert.ErrorIs(t, sim.CheckChargeConservation(bad), ErrNonConservation)
}
