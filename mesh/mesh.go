// Package mesh builds the finite-volume discretization of the cell: a
// contiguous macroscopic grid spanning anode, separator and cathode, plus a
// radial shell grid inside the representative particle of each active
// material. Face geometry is constructed so that interface fluxes telescope
// exactly; no lithium or charge can be created at an internal face.
package mesh

import (
	"fmt"
	"math"

	"github.com/cellsolve/gop2d/cellparams"
)

type Region int

const (
	Anode Region = iota
	Separator
	Cathode
)

func (r Region) String() string {
	switch r {
	case Anode:
		return "anode"
	case Separator:
		return "separator"
	case Cathode:
		return "cathode"
	}
	return "unknown"
}

// Resolution selects the cell counts of the discretization. Grading < 1
// concentrates particle shells toward the surface to resolve the steep
// concentration gradients that appear at high current; 1 (or 0) keeps the
// shells uniform.
type Resolution struct {
	NAnode, NSeparator, NCathode int
	NShells                      int
	Grading                      float64
}

// DefaultResolution is adequate for rates up to about 2C.
var DefaultResolution = Resolution{
	NAnode:     12,
	NSeparator: 6,
	NCathode:   12,
	NShells:    10,
	Grading:    0.85,
}

// RadialGrid is the shell discretization of a representative spherical
// particle, from the center (zero flux) to the surface (reaction flux).
type RadialGrid struct {
	Nr     int
	Rf     []float64 // Nr+1 face radii, Rf[0]=0, Rf[Nr]=particle radius
	Rc     []float64 // Nr shell centers
	Vol    []float64 // shell volumes, 4pi/3 (rf+^3 - rf-^3)
	Af     []float64 // Nr+1 face areas, 4 pi rf^2
	Radius float64
}

// Mesh is the assembled spatial discretization. Immutable after New and
// shared read-only across assembly workers.
type Mesh struct {
	N                            int // total macroscopic cells
	NAnode, NSeparator, NCathode int
	Reg                          []Region  // owning region per cell
	X                            []float64 // cell centers, x=0 at the negative collector
	Dx                           []float64 // cell widths
	Area                         float64

	AnodeGrids   []RadialGrid // one per anode active material
	CathodeGrids []RadialGrid
}

func New(cfg *cellparams.CellConfiguration, res Resolution) (*Mesh, error) {
	if res.NAnode < 2 || res.NSeparator < 1 || res.NCathode < 2 {
		return nil, fmt.Errorf("resolution too coarse: need >=2 cells per electrode and >=1 in the separator")
	}
	if res.NShells < 3 {
		return nil, fmt.Errorf("resolution too coarse: need >=3 particle shells, have %d", res.NShells)
	}
	m := &Mesh{
		NAnode:     res.NAnode,
		NSeparator: res.NSeparator,
		NCathode:   res.NCathode,
		N:          res.NAnode + res.NSeparator + res.NCathode,
		Area:       cfg.Anode.Area,
	}
	m.Reg = make([]Region, m.N)
	m.X = make([]float64, m.N)
	m.Dx = make([]float64, m.N)

	// Structure order is fixed: anode, separator, cathode.
	x := 0.0
	cell := 0
	for _, reg := range []struct {
		r Region
		n int
		L float64
	}{
		{Anode, res.NAnode, cfg.Anode.Thickness},
		{Separator, res.NSeparator, cfg.Separator.Thickness},
		{Cathode, res.NCathode, cfg.Cathode.Thickness},
	} {
		dx := reg.L / float64(reg.n)
		for i := 0; i < reg.n; i++ {
			m.Reg[cell] = reg.r
			m.Dx[cell] = dx
			m.X[cell] = x + dx/2
			x += dx
			cell++
		}
	}

	for i := range cfg.Anode.Materials {
		m.AnodeGrids = append(m.AnodeGrids,
			newRadialGrid(cfg.Anode.Materials[i].ParticleRadius, res.NShells, res.Grading))
	}
	for i := range cfg.Cathode.Materials {
		m.CathodeGrids = append(m.CathodeGrids,
			newRadialGrid(cfg.Cathode.Materials[i].ParticleRadius, res.NShells, res.Grading))
	}
	return m, nil
}

func newRadialGrid(radius float64, nr int, grading float64) (g RadialGrid) {
	g = RadialGrid{
		Nr:     nr,
		Rf:     make([]float64, nr+1),
		Rc:     make([]float64, nr),
		Vol:    make([]float64, nr),
		Af:     make([]float64, nr+1),
		Radius: radius,
	}
	// Shell widths follow a geometric progression shrinking toward the
	// surface when grading < 1.
	q := grading
	if q <= 0 || q > 1 {
		q = 1
	}
	widths := make([]float64, nr)
	if q == 1 {
		for k := range widths {
			widths[k] = radius / float64(nr)
		}
	} else {
		w0 := radius * (1 - q) / (1 - math.Pow(q, float64(nr)))
		for k := range widths {
			widths[k] = w0 * math.Pow(q, float64(k))
		}
	}
	for k := 0; k < nr; k++ {
		g.Rf[k+1] = g.Rf[k] + widths[k]
		g.Rc[k] = 0.5 * (g.Rf[k] + g.Rf[k+1])
	}
	// Snap the outer face onto the particle radius against accumulation
	// error, the telescoping sum requires it exactly.
	g.Rf[nr] = radius
	g.Rc[nr-1] = 0.5 * (g.Rf[nr-1] + g.Rf[nr])
	for k := 0; k <= nr; k++ {
		g.Af[k] = 4 * math.Pi * g.Rf[k] * g.Rf[k]
	}
	for k := 0; k < nr; k++ {
		r0, r1 := g.Rf[k], g.Rf[k+1]
		g.Vol[k] = 4 * math.Pi / 3 * (r1*r1*r1 - r0*r0*r0)
	}
	return
}

// TotalVolume is the particle volume, equal to the telescoped sum of the
// shell volumes.
func (g *RadialGrid) TotalVolume() float64 {
	return 4 * math.Pi / 3 * g.Radius * g.Radius * g.Radius
}

// IsElectrode reports whether cell i hosts active material.
func (m *Mesh) IsElectrode(i int) bool { return m.Reg[i] != Separator }

// ElectrodeIndex maps a macroscopic cell index onto the compact index over
// electrode cells only (anode cells first, then cathode), or -1 for
// separator cells.
func (m *Mesh) ElectrodeIndex(i int) int {
	switch m.Reg[i] {
	case Anode:
		return i
	case Cathode:
		return m.NAnode + (i - m.NAnode - m.NSeparator)
	}
	return -1
}

// NElectrode is the count of electrode cells.
func (m *Mesh) NElectrode() int { return m.NAnode + m.NCathode }

// CellOfElectrode is the inverse of ElectrodeIndex.
func (m *Mesh) CellOfElectrode(e int) int {
	if e < m.NAnode {
		return e
	}
	return m.NSeparator + e
}

// HarmonicFace returns the effective transport coefficient at the face
// between two cells of widths hL, hR carrying cell-centered coefficients
// kL, kR: the half-width-weighted harmonic mean. It reduces to the plain
// coefficient when both sides agree and damps to the smaller side at
// region interfaces, which keeps interface fluxes single-valued.
func HarmonicFace(hL, hR, kL, kR float64) float64 {
	if kL <= 0 || kR <= 0 {
		return 0
	}
	return (hL + hR) / (hL/kL + hR/kR)
}
