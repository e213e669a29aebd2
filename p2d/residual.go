package p2d

import (
	"fmt"
	"math"

	"github.com/cellsolve/gop2d/mesh"
	"github.com/cellsolve/gop2d/utils"
)

// SegmentMode selects the macroscopic closure at the current collectors.
type SegmentMode int

const (
	CC SegmentMode = iota // constant current, discharge positive
	CV                    // constant terminal voltage
)

// Control is the closure target the assembler imposes through the trailing
// applied-current unknown: the current itself under CC, the terminal
// voltage under CV.
type Control struct {
	Mode    SegmentMode
	Current float64 // A (CC)
	Voltage float64 // V (CV)
}

// Assemble builds the nonlinear residual and Jacobian of the coupled
// system at the Newton iterate st, backward-Euler in time against the
// previous accepted state. Deterministic given identical inputs. The
// returned saturated flag reports that some material sat at a
// state-of-charge boundary during evaluation; it is only an error on a
// converged state.
func (sim *Simulator) Assemble(st, prev *CellState, dt float64, ctl Control) (R utils.Vector, J utils.DOK, saturated bool, err error) {
	var (
		l = sim.L
	)
	R = utils.NewVector(l.NTot)
	J = utils.NewDOK(l.NTot, l.NTot)

	deff, keff, err := sim.cellTransport(st)
	if err != nil {
		return R, J, false, err
	}
	sim.assembleElectrolyte(st, prev, dt, deff, keff, R, J)
	sim.assembleSolidCharge(st, R, J)
	if saturated, err = sim.assembleReactions(st, prev, dt, R, J); err != nil {
		return R, J, saturated, err
	}
	sim.assembleClosure(st, ctl, R, J)
	return R, J, saturated, nil
}

// cellTransport evaluates the effective electrolyte transport coefficients
// at every cell for the current iterate. Their concentration derivatives
// are deliberately left out of the Jacobian (quasi-Newton); the residual
// itself is exact, so the converged answer is too.
func (sim *Simulator) cellTransport(st *CellState) (deff, keff []float64, err error) {
	var (
		l = sim.L
	)
	deff = make([]float64, l.Nx)
	keff = make([]float64, l.Nx)
	for j := 0; j < l.Nx; j++ {
		ce := st.U.AtVec(l.Ce(j))
		if deff[j], err = sim.DiffE.EvalEffective(ce, sim.porosity[j], sim.bruggeman[j]); err != nil {
			return nil, nil, err
		}
		if keff[j], err = sim.CondE.EvalEffective(ce, sim.porosity[j], sim.bruggeman[j]); err != nil {
			return nil, nil, err
		}
	}
	return deff, keff, nil
}

// assembleElectrolyte adds the electrolyte mass and charge blocks: storage
// plus face fluxes. Reaction sources land in assembleReactions.
func (sim *Simulator) assembleElectrolyte(st, prev *CellState, dt float64, deff, keff []float64, R utils.Vector, J utils.DOK) {
	var (
		l     = sim.L
		m     = sim.Mesh
		A     = m.Area
		cns   = sim.Cfg.Constants
		tplus = sim.Cfg.Electrolyte.TransferenceNumber
		// Diffusional conductivity prefactor, kappa_D = kdFac * kappa
		kdFac = 2 * cns.R * sim.Cfg.Temperature * (1 - tplus) / cns.F
	)
	// Storage terms
	for j := 0; j < l.Nx; j++ {
		var (
			row  = l.Ce(j)
			capC = sim.porosity[j] * A * m.Dx[j] / dt
		)
		R.SetVec(row, R.AtVec(row)+capC*(st.U.AtVec(row)-prev.U.AtVec(row)))
		J.Accumulate(row, row, capC)
	}
	// Interior faces
	for j := 0; j < l.Nx-1; j++ {
		var (
			hL, hR = m.Dx[j], m.Dx[j+1]
			dc     = 0.5 * (hL + hR)
			ceL    = st.U.AtVec(l.Ce(j))
			ceR    = st.U.AtVec(l.Ce(j + 1))
			dface  = mesh.HarmonicFace(hL, hR, deff[j], deff[j+1])
			kface  = mesh.HarmonicFace(hL, hR, keff[j], keff[j+1])
			gD     = A * dface / dc
			gK     = A * kface / dc
			gKD    = A * kdFac * kface / dc
		)
		// Mass flux into cell j from the right: gD*(ceR-ceL)
		flux := gD * (ceR - ceL)
		R.SetVec(l.Ce(j), R.AtVec(l.Ce(j))-flux)
		R.SetVec(l.Ce(j+1), R.AtVec(l.Ce(j+1))+flux)
		J.Accumulate(l.Ce(j), l.Ce(j), gD)
		J.Accumulate(l.Ce(j), l.Ce(j+1), -gD)
		J.Accumulate(l.Ce(j+1), l.Ce(j+1), gD)
		J.Accumulate(l.Ce(j+1), l.Ce(j), -gD)

		// Ionic current through the face, positive toward the cathode:
		// migration plus the concentration-gradient (junction) term.
		var (
			phiL = st.U.AtVec(l.Phie(j))
			phiR = st.U.AtVec(l.Phie(j + 1))
			ie   = -gK*(phiR-phiL) + gKD*(math.Log(ceR)-math.Log(ceL))
		)
		// ie leaves cell j and enters cell j+1.
		R.SetVec(l.Phie(j), R.AtVec(l.Phie(j))+ie)
		R.SetVec(l.Phie(j+1), R.AtVec(l.Phie(j+1))-ie)
		for _, c := range []struct {
			col int
			d   float64
		}{
			{l.Phie(j), gK},
			{l.Phie(j + 1), -gK},
			{l.Ce(j), -gKD / ceL},
			{l.Ce(j + 1), gKD / ceR},
		} {
			J.Accumulate(l.Phie(j), c.col, c.d)
			J.Accumulate(l.Phie(j+1), c.col, -c.d)
		}
	}
	// Collector faces carry no ionic current and no mass flux.
}

// assembleSolidCharge adds the electronic conduction block. The solid
// potential of the first anode cell is pinned to zero, replacing the one
// redundant conservation row of the closed system.
func (sim *Simulator) assembleSolidCharge(st *CellState, R utils.Vector, J utils.DOK) {
	var (
		l = sim.L
		m = sim.Mesh
		A = m.Area
		I = st.AppliedCurrent(l)
	)
	// Pinned reference row.
	R.SetVec(l.Phis(0), st.U.AtVec(l.Phis(0)))
	J.Set(l.Phis(0), l.Phis(0), 1)

	for j := 0; j < l.Nx-1; j++ {
		if m.Reg[j] != m.Reg[j+1] || !m.IsElectrode(j) {
			continue // electrode/separator faces carry no electronic current
		}
		var (
			eL, eR = m.ElectrodeIndex(j), m.ElectrodeIndex(j + 1)
			hL, hR = m.Dx[j], m.Dx[j+1]
			dc     = 0.5 * (hL + hR)
			sf     = mesh.HarmonicFace(hL, hR, sim.sigmaEff[eL], sim.sigmaEff[eR])
			gS     = A * sf / dc
			is     = -gS * (st.U.AtVec(l.Phis(eR)) - st.U.AtVec(l.Phis(eL)))
		)
		if eL != 0 {
			R.SetVec(l.Phis(eL), R.AtVec(l.Phis(eL))+is)
			J.Accumulate(l.Phis(eL), l.Phis(eL), gS)
			J.Accumulate(l.Phis(eL), l.Phis(eR), -gS)
		}
		R.SetVec(l.Phis(eR), R.AtVec(l.Phis(eR))-is)
		J.Accumulate(l.Phis(eR), l.Phis(eR), gS)
		J.Accumulate(l.Phis(eR), l.Phis(eL), -gS)
	}
	// Applied current enters at the negative collector face and leaves at
	// the positive one. The negative-collector row is the pinned one, so
	// only the positive face term appears explicitly.
	ePos := m.ElectrodeIndex(m.N - 1)
	R.SetVec(l.Phis(ePos), R.AtVec(l.Phis(ePos))+I)
	J.Accumulate(l.Phis(ePos), l.II, 1)
}

// assembleClosure imposes the protocol target through the trailing
// applied-current unknown.
func (sim *Simulator) assembleClosure(st *CellState, ctl Control, R utils.Vector, J utils.DOK) {
	var (
		l = sim.L
		m = sim.Mesh
	)
	switch ctl.Mode {
	case CV:
		var (
			last = m.N - 1
			eNeg = m.ElectrodeIndex(0)
			ePos = m.ElectrodeIndex(last)
			A    = m.Area
			dVdI = -m.Dx[last]/(2*A*sim.sigmaEff[ePos]) - m.Dx[0]/(2*A*sim.sigmaEff[eNeg])
		)
		R.SetVec(l.II, sim.Voltage(st)-ctl.Voltage)
		J.Set(l.II, l.Phis(ePos), 1)
		J.Set(l.II, l.Phis(eNeg), -1)
		J.Set(l.II, l.II, dVdI)
	default:
		R.SetVec(l.II, st.AppliedCurrent(l)-ctl.Current)
		J.Set(l.II, l.II, 1)
	}
}

// CheckChargeConservation verifies on a converged state that the total
// interfacial current of each electrode balances the applied current. A
// violation indicates an assembly defect and is always fatal.
func (sim *Simulator) CheckChargeConservation(st *CellState) error {
	var (
		l     = sim.L
		m     = sim.Mesh
		A     = m.Area
		I     = st.AppliedCurrent(l)
		iAn   float64
		iCat  float64
	)
	for j := 0; j < l.Nx; j++ {
		e := m.ElectrodeIndex(j)
		if e < 0 {
			continue
		}
		mats := sim.materialsAt(j)
		for mi := range mats {
			mat := &mats[mi]
			kin, err := sim.reactionCurrentDensity(mat,
				st.U.AtVec(l.Ce(j)),
				st.U.AtVec(l.Cs(e, mi, l.Nr-1)),
				st.U.AtVec(l.Phis(e)),
				st.U.AtVec(l.Phie(j)))
			if err != nil {
				return err
			}
			contrib := mat.SpecificArea * kin.J * A * m.Dx[j]
			if m.Reg[j] == mesh.Anode {
				iAn += contrib
			} else {
				iCat += contrib
			}
		}
	}
	tol := 1e-6 + 1e-5*math.Abs(I)
	if math.Abs(iAn-I) > tol || math.Abs(iCat+I) > tol {
		return fmt.Errorf("%w: anode current %.6g A, cathode %.6g A, applied %.6g A",
			ErrNonConservation, iAn, iCat, I)
	}
	return nil
}
