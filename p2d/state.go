package p2d

import (
	"github.com/cellsolve/gop2d/utils"
)

// CellState is one time level of the coupled system, stored flat per the
// Layout. Mutation is confined to the integrator thread on accepted Newton
// steps; assembly workers only read it.
type CellState struct {
	U    utils.Vector
	Time float64
}

func NewCellState(l Layout) *CellState {
	return &CellState{U: utils.NewVector(l.NTot)}
}

func (st *CellState) Copy() *CellState {
	return &CellState{U: st.U.Copy(), Time: st.Time}
}

// AppliedCurrent is the cell current in amperes, discharge positive.
func (st *CellState) AppliedCurrent(l Layout) float64 { return st.U.AtVec(l.II) }

// Step is one accepted time level as handed to the results collaborator.
type Step struct {
	Time    float64
	Current float64 // A, discharge positive
	Voltage float64 // terminal voltage, V
	State   *CellState
}

// Sink receives accepted steps in order. Implementations belong to the
// external results collaborator; the core makes no assumption about the
// persisted format. A nil sink is allowed.
type Sink interface {
	Accept(Step) error
}

// SimulationResult is the append-only record of a run, owned by the
// driver. On a failed run it still holds every step accepted before the
// failure.
type SimulationResult struct {
	Steps []Step
}

func (r *SimulationResult) append(s Step) {
	r.Steps = append(r.Steps, s)
}

// Last returns the most recent accepted step, or a zero Step when no step
// was accepted.
func (r *SimulationResult) Last() Step {
	if len(r.Steps) == 0 {
		return Step{}
	}
	return r.Steps[len(r.Steps)-1]
}
