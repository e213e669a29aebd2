package p2d

import (
	"github.com/cellsolve/gop2d/cellparams"
	"github.com/cellsolve/gop2d/mesh"
)

// testCell is a deliberately simple but fully physical cell: linear OCPs
// (which the spline fit reproduces exactly), constant transport
// correlations, and electrodes balanced to the same nominal capacity of
// about 1108 C, so state of charge maps onto both stoichiometry windows
// identically. Open-circuit voltage is V(soc) = 2.952 + 0.838*soc.
func testCell() *cellparams.CellConfiguration {
	cfg := &cellparams.CellConfiguration{Title: "balanced linear cell"}
	cfg.Anode = cellparams.RegionSpec{
		Thickness: 80e-6, Area: 0.01, Porosity: 0.35, Bruggeman: 1.5,
		ElectronicConductivity: 100,
		Materials: []cellparams.ActiveMaterialSpec{{
			Name:                 "graphite",
			VolumeFraction:       0.55,
			ParticleRadius:       5e-6,
			Stoichiometry0:       0.03,
			Stoichiometry1:       0.9,
			KineticConstant:      1e-5,
			MaximumConcentration: 30000,
			Diffusivity:          1e-13,
			OCP: cellparams.OCPSpec{
				Stoichiometry: []float64{0.0, 0.3, 0.6, 1.0},
				Potential:     []float64{0.5, 0.38, 0.26, 0.1}, // 0.5 - 0.4*theta
			},
		}},
	}
	cfg.Separator = cellparams.RegionSpec{
		Thickness: 25e-6, Area: 0.01, Porosity: 0.45, Bruggeman: 1.5,
	}
	cfg.Cathode = cellparams.RegionSpec{
		Thickness: 75e-6, Area: 0.01, Porosity: 0.35, Bruggeman: 1.5,
		ElectronicConductivity: 100,
		Materials: []cellparams.ActiveMaterialSpec{{
			Name:                 "nmc",
			VolumeFraction:       0.5,
			ParticleRadius:       5e-6,
			Stoichiometry0:       0.95,
			Stoichiometry1:       0.3375,
			KineticConstant:      1e-5,
			MaximumConcentration: 50000,
			Diffusivity:          1e-13,
			OCP: cellparams.OCPSpec{
				Stoichiometry: []float64{0.0, 0.3, 0.6, 1.0},
				Potential:     []float64{4.2, 3.96, 3.72, 3.4}, // 4.2 - 0.8*theta
			},
		}},
	}
	cfg.Electrolyte = cellparams.ElectrolyteSpec{
		Diffusivity:          cellparams.CorrelationSpec{Kind: "constant", Value: 3e-10},
		Conductivity:         cellparams.CorrelationSpec{Kind: "constant", Value: 1.0},
		TransferenceNumber:   0.36,
		InitialConcentration: 1000,
	}
	cfg.InitialSOC = 1.0
	cfg.Temperature = 298.15
	cfg.Constants = cellparams.Constants{
		R:     cellparams.GasConstant,
		F:     cellparams.FaradayConstant,
		Alpha: cellparams.DefaultAlpha,
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

func testMesh(cfg *cellparams.CellConfiguration) *mesh.Mesh {
	m, err := mesh.New(cfg, mesh.Resolution{
		NAnode: 4, NSeparator: 2, NCathode: 4, NShells: 5, Grading: 0.85,
	})
	if err != nil {
		panic(err)
	}
	return m
}

func testSimulator(opts Options) *Simulator {
	cfg := testCell()
	sim, err := NewSimulator(cfg, testMesh(cfg), opts)
	if err != nil {
		panic(err)
	}
	return sim
}

// solidMoles sums the lithium inventory of the particles hosted by one
// electrode, scaling each representative particle by the particle count of
// its cell.
func solidMoles(sim *Simulator, st *CellState, reg mesh.Region) (n float64) {
	var (
		l = sim.L
		m = sim.Mesh
	)
	for j := 0; j < m.N; j++ {
		if m.Reg[j] != reg {
			continue
		}
		e := m.ElectrodeIndex(j)
		mats := sim.materialsAt(j)
		for mi := range mats {
			var (
				mat      = &mats[mi]
				nPart    = mat.Spec.VolumeFraction * m.Area * m.Dx[j] / mat.Grid.TotalVolume()
				particle float64
			)
			for k := 0; k < l.Nr; k++ {
				particle += st.U.AtVec(l.Cs(e, mi, k)) * mat.Grid.Vol[k]
			}
			n += particle * nPart
		}
	}
	return
}

// electrolyteMoles sums the lithium inventory of the pore phase.
func electrolyteMoles(sim *Simulator, st *CellState) (n float64) {
	var (
		l = sim.L
		m = sim.Mesh
	)
	for j := 0; j < m.N; j++ {
		n += st.U.AtVec(l.Ce(j)) * sim.porosity[j] * m.Area * m.Dx[j]
	}
	return
}

// dischargedCharge integrates the applied current over the accepted steps,
// backward-Euler style: the current of a step applies over the interval it
// closed.
func dischargedCharge(result *SimulationResult) (q float64) {
	for k := 1; k < len(result.Steps); k++ {
		q += result.Steps[k].Current * (result.Steps[k].Time - result.Steps[k-1].Time)
	}
	return
}
