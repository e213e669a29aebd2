// Package p2d is the simulation core of gop2d: the coupled
// Doyle-Fuller-Newman pseudo-two-dimensional system of electrolyte
// transport, solid diffusion, interfacial kinetics and charge conservation,
// advanced implicitly in time with Newton iteration per step.
package p2d

import (
	"fmt"

	"github.com/cellsolve/gop2d/cellparams"
	"github.com/cellsolve/gop2d/mesh"
	"github.com/cellsolve/gop2d/ocp"
	"github.com/cellsolve/gop2d/props"
	"github.com/cellsolve/gop2d/utils"
)

// Options tune the integrator and the property-range policy.
type Options struct {
	RelTol              float64
	AbsTolC             float64 // concentration fields, mol/m^3
	AbsTolV             float64 // potential fields, V
	MaxNewtonIterations int
	EasyIterations      int // grow dt when Newton needed no more than this
	DtInitial           float64
	DtMin               float64
	DtMax               float64
	MaxStepRetries      int
	RangePolicy         props.RangePolicy
	ProcLimit           int // parallel assembly workers, 0 = NumCPU
	Verbose             bool
	Sink                Sink
}

func DefaultOptions() Options {
	return Options{
		RelTol:              1e-6,
		AbsTolC:             1e-7,
		AbsTolV:             1e-9,
		MaxNewtonIterations: 25,
		EasyIterations:      5,
		DtInitial:           0.1,
		DtMin:               1e-6,
		DtMax:               30,
		MaxStepRetries:      12,
	}
}

// Material is one active material resolved against its electrode region:
// spec fields, fitted OCP spline and radial grid bound once so the hot path
// never touches a string key.
type Material struct {
	Spec         *cellparams.ActiveMaterialSpec
	OCP          *ocp.Spline
	Grid         *mesh.RadialGrid
	SpecificArea float64 // 3 eps_am / R, 1/m
}

// Simulator owns the static, read-only pieces of a run: configuration,
// mesh, resolved materials and correlations, index layout and the
// assembly partition map. Safe to share across workers.
type Simulator struct {
	Cfg  *cellparams.CellConfiguration
	Mesh *mesh.Mesh
	L    Layout
	Opts Options

	DiffE *props.Correlation
	CondE *props.Correlation

	AnodeMats   []Material
	CathodeMats []Material

	Partitions *utils.PartitionMap // over electrode cells

	// Per-cell geometry resolved at construction
	porosity  []float64
	bruggeman []float64
	sigmaEff  []float64 // per electrode cell, effective electronic conductivity
}

func NewSimulator(cfg *cellparams.CellConfiguration, m *mesh.Mesh, opts Options) (sim *Simulator, err error) {
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	nShells := 0
	if len(m.AnodeGrids) > 0 {
		nShells = m.AnodeGrids[0].Nr
	} else if len(m.CathodeGrids) > 0 {
		nShells = m.CathodeGrids[0].Nr
	}
	sim = &Simulator{
		Cfg:  cfg,
		Mesh: m,
		L:    NewLayout(m, nShells),
		Opts: opts,
	}
	if sim.DiffE, err = props.NewCorrelation("electrolyte diffusivity",
		cfg.Electrolyte.Diffusivity, opts.RangePolicy); err != nil {
		return nil, err
	}
	if sim.CondE, err = props.NewCorrelation("electrolyte conductivity",
		cfg.Electrolyte.Conductivity, opts.RangePolicy); err != nil {
		return nil, err
	}
	if sim.AnodeMats, err = resolveMaterials(&cfg.Anode, m.AnodeGrids); err != nil {
		return nil, fmt.Errorf("anode: %w", err)
	}
	if sim.CathodeMats, err = resolveMaterials(&cfg.Cathode, m.CathodeGrids); err != nil {
		return nil, fmt.Errorf("cathode: %w", err)
	}

	sim.porosity = make([]float64, m.N)
	sim.bruggeman = make([]float64, m.N)
	sim.sigmaEff = make([]float64, sim.L.NE)
	for j := 0; j < m.N; j++ {
		r := sim.regionSpec(j)
		sim.porosity[j] = r.Porosity
		sim.bruggeman[j] = r.Bruggeman
		if e := m.ElectrodeIndex(j); e >= 0 {
			var solidFrac float64
			for i := range r.Materials {
				solidFrac += r.Materials[i].VolumeFraction
			}
			sim.sigmaEff[e] = props.EffectiveTransport(solidFrac, r.Bruggeman,
				r.ElectronicConductivity, "bruggeman")
		}
	}
	sim.Partitions = utils.NewPartitionMap(opts.ProcLimit, sim.L.NE)
	return sim, nil
}

func resolveMaterials(r *cellparams.RegionSpec, grids []mesh.RadialGrid) (mats []Material, err error) {
	for i := range r.Materials {
		am := &r.Materials[i]
		if len(am.OCP.Stoichiometry) == 0 {
			return nil, fmt.Errorf("%w: material %d: OCP source %q not resolved to control points",
				cellparams.ErrConfigurationInvalid, i, am.OCP.Source)
		}
		spline, err := ocp.New(am.OCP.Stoichiometry, am.OCP.Potential)
		if err != nil {
			return nil, fmt.Errorf("material %d: %w", i, err)
		}
		lo, hi := am.Stoichiometry0, am.Stoichiometry1
		if lo > hi {
			lo, hi = hi, lo
		}
		if !spline.Covers(lo, hi) {
			flo, fhi := spline.Domain()
			return nil, fmt.Errorf("%w: material %d: OCP fitted over [%g, %g] does not cover the stoichiometry window [%g, %g]",
				cellparams.ErrConfigurationInvalid, i, flo, fhi, lo, hi)
		}
		mats = append(mats, Material{
			Spec:         am,
			OCP:          spline,
			Grid:         &grids[i],
			SpecificArea: am.SpecificArea(),
		})
	}
	return mats, nil
}

func (sim *Simulator) regionSpec(j int) *cellparams.RegionSpec {
	switch sim.Mesh.Reg[j] {
	case mesh.Anode:
		return &sim.Cfg.Anode
	case mesh.Cathode:
		return &sim.Cfg.Cathode
	}
	return &sim.Cfg.Separator
}

// materialsAt returns the resolved materials hosted by macroscopic cell j,
// nil for separator cells.
func (sim *Simulator) materialsAt(j int) []Material {
	switch sim.Mesh.Reg[j] {
	case mesh.Anode:
		return sim.AnodeMats
	case mesh.Cathode:
		return sim.CathodeMats
	}
	return nil
}

// InitialState builds the equilibrium state at the configured SOC: uniform
// electrolyte concentration, uniform particle composition, potentials set
// so that every overpotential vanishes. The solid potential of the first
// anode cell is the reference zero.
func (sim *Simulator) InitialState() (*CellState, error) {
	var (
		l   = sim.L
		st  = NewCellState(l)
		cfg = sim.Cfg
		soc = cfg.InitialSOC
	)
	ua, _, err := sim.AnodeMats[0].OCP.Potential(sim.AnodeMats[0].Spec.InitialStoichiometry(soc))
	if err != nil {
		return nil, err
	}
	uc, _, err := sim.CathodeMats[0].OCP.Potential(sim.CathodeMats[0].Spec.InitialStoichiometry(soc))
	if err != nil {
		return nil, err
	}
	for j := 0; j < l.Nx; j++ {
		st.U.SetVec(l.Ce(j), cfg.Electrolyte.InitialConcentration)
		st.U.SetVec(l.Phie(j), -ua)
	}
	for j := 0; j < l.Nx; j++ {
		e := sim.Mesh.ElectrodeIndex(j)
		if e < 0 {
			continue
		}
		if sim.Mesh.Reg[j] == mesh.Anode {
			st.U.SetVec(l.Phis(e), 0)
		} else {
			st.U.SetVec(l.Phis(e), uc-ua)
		}
		for mi, mat := range sim.materialsAt(j) {
			cs := mat.Spec.InitialStoichiometry(soc) * mat.Spec.MaximumConcentration
			for k := 0; k < l.Nr; k++ {
				st.U.SetVec(l.Cs(e, mi, k), cs)
			}
		}
	}
	st.U.SetVec(l.II, 0)
	return st, nil
}

// Voltage is the terminal voltage of a state: solid potential at the
// positive collector face minus the negative collector face, with the
// half-cell ohmic extrapolation from the adjacent cell centers.
func (sim *Simulator) Voltage(st *CellState) float64 {
	var (
		l    = sim.L
		m    = sim.Mesh
		I    = st.AppliedCurrent(l)
		A    = m.Area
		last = m.N - 1
		eNeg = m.ElectrodeIndex(0)
		ePos = m.ElectrodeIndex(last)
	)
	phiNeg := st.U.AtVec(l.Phis(eNeg)) + I*m.Dx[0]/(2*A*sim.sigmaEff[eNeg])
	phiPos := st.U.AtVec(l.Phis(ePos)) - I*m.Dx[last]/(2*A*sim.sigmaEff[ePos])
	return phiPos - phiNeg
}
