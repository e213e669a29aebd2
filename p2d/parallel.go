package p2d

import (
	"sync"

	"github.com/cellsolve/gop2d/utils"
)

// assembleReactions adds the interfacial-kinetics couplings and the solid
// diffusion blocks. Electrode cells are independent of each other here, so
// the work is partitioned across goroutines; every worker writes residual
// entries only into rows its bucket owns and buffers Jacobian entries in a
// private triplet list merged single-threaded afterwards.
func (sim *Simulator) assembleReactions(st, prev *CellState, dt float64, R utils.Vector, J utils.DOK) (saturated bool, err error) {
	var (
		np   = sim.Partitions.ParallelDegree
		wg   = sync.WaitGroup{}
		bufs = make([][]utils.Triplet, np)
		errs = make([]error, np)
		sats = make([]bool, np)
	)
	for n := 0; n < np; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			eMin, eMax := sim.Partitions.GetBucketRange(n)
			bufs[n], sats[n], errs[n] = sim.reactionBucket(st, prev, dt, eMin, eMax, R)
		}(n)
	}
	wg.Wait()
	for n := 0; n < np; n++ {
		if errs[n] != nil {
			return false, errs[n]
		}
		if sats[n] {
			saturated = true
		}
		J.MergeTriplets(bufs[n])
	}
	return saturated, nil
}

func (sim *Simulator) reactionBucket(st, prev *CellState, dt float64, eMin, eMax int, R utils.Vector) (buf []utils.Triplet, saturated bool, err error) {
	var (
		l     = sim.L
		m     = sim.Mesh
		A     = m.Area
		cns   = sim.Cfg.Constants
		tplus = sim.Cfg.Electrolyte.TransferenceNumber
		srcC  = (1 - tplus) / cns.F // electrolyte mass source per unit volumetric current
	)
	add := func(i, j int, v float64) { buf = append(buf, utils.Triplet{I: i, J: j, V: v}) }

	for e := eMin; e < eMax; e++ {
		var (
			j    = m.CellOfElectrode(e)
			vol  = A * m.Dx[j]
			ce   = st.U.AtVec(l.Ce(j))
			phie = st.U.AtVec(l.Phie(j))
			phis = st.U.AtVec(l.Phis(e))
			mats = sim.materialsAt(j)
		)
		for mi := range mats {
			var (
				mat   = &mats[mi]
				g     = mat.Grid
				ds    = mat.Spec.Diffusivity
				surfI = l.Cs(e, mi, l.Nr-1)
				csurf = st.U.AtVec(surfI)
			)
			kin, kerr := sim.reactionCurrentDensity(mat, ce, csurf, phis, phie)
			if kerr != nil {
				return buf, saturated, kerr
			}
			if kin.Saturated {
				saturated = true
			}

			// Solid diffusion, written per unit shell volume: each row is a
			// concentration-rate balance, which keeps the particle rows on
			// the same scale as the rest of the system instead of the
			// ~1e-18 m^3 absolute shell volumes. The shared face flux still
			// telescopes exactly once each row is weighted back by its
			// volume, so no lithium is created at an internal face.
			for k := 0; k < l.Nr; k++ {
				row := l.Cs(e, mi, k)
				R.SetVec(row, R.AtVec(row)+(st.U.AtVec(row)-prev.U.AtVec(row))/dt)
				add(row, row, 1/dt)
			}
			for k := 0; k < l.Nr-1; k++ {
				var (
					rowL = l.Cs(e, mi, k)
					rowR = l.Cs(e, mi, k+1)
					gF   = ds * g.Af[k+1] / (g.Rc[k+1] - g.Rc[k])
					flux = gF * (st.U.AtVec(rowR) - st.U.AtVec(rowL))
					wL   = 1 / g.Vol[k]
					wR   = 1 / g.Vol[k+1]
				)
				R.SetVec(rowL, R.AtVec(rowL)-flux*wL)
				R.SetVec(rowR, R.AtVec(rowR)+flux*wR)
				add(rowL, rowL, gF*wL)
				add(rowL, rowR, -gF*wL)
				add(rowR, rowR, gF*wR)
				add(rowR, rowL, -gF*wR)
			}
			// Surface: molar outflow j/F over the particle surface, per
			// unit volume of the outermost shell.
			var (
				wS      = 1 / g.Vol[l.Nr-1]
				outflow = kin.J / cns.F * g.Af[l.Nr] * wS
				dOut    = g.Af[l.Nr] / cns.F * wS
			)
			R.SetVec(surfI, R.AtVec(surfI)+outflow)
			add(surfI, surfI, dOut*kin.DJdCs)
			add(surfI, l.Phis(e), dOut*kin.DJdPhis)
			add(surfI, l.Phie(j), dOut*kin.DJdPhie)
			add(surfI, l.Ce(j), dOut*kin.DJdCe)

			// Volumetric reaction couplings into the macroscopic rows.
			aj := mat.SpecificArea * vol // interfacial area in this cell
			// Electrolyte mass source
			R.SetVec(l.Ce(j), R.AtVec(l.Ce(j))-srcC*aj*kin.J)
			add(l.Ce(j), surfI, -srcC*aj*kin.DJdCs)
			add(l.Ce(j), l.Phis(e), -srcC*aj*kin.DJdPhis)
			add(l.Ce(j), l.Phie(j), -srcC*aj*kin.DJdPhie)
			add(l.Ce(j), l.Ce(j), -srcC*aj*kin.DJdCe)
			// Electrolyte charge source
			R.SetVec(l.Phie(j), R.AtVec(l.Phie(j))-aj*kin.J)
			add(l.Phie(j), surfI, -aj*kin.DJdCs)
			add(l.Phie(j), l.Phis(e), -aj*kin.DJdPhis)
			add(l.Phie(j), l.Phie(j), -aj*kin.DJdPhie)
			add(l.Phie(j), l.Ce(j), -aj*kin.DJdCe)
			// Solid charge sink, except into the pinned reference row.
			if e != 0 {
				R.SetVec(l.Phis(e), R.AtVec(l.Phis(e))+aj*kin.J)
				add(l.Phis(e), surfI, aj*kin.DJdCs)
				add(l.Phis(e), l.Phis(e), aj*kin.DJdPhis)
				add(l.Phis(e), l.Phie(j), aj*kin.DJdPhie)
				add(l.Phis(e), l.Ce(j), aj*kin.DJdCe)
			}
		}
	}
	return buf, saturated, nil
}
