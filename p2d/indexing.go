package p2d

import "github.com/cellsolve/gop2d/mesh"

// Layout resolves every unknown of the coupled system to a flat index,
// once, at construction. Ordering: electrolyte concentration per
// macroscopic cell, electrolyte potential per cell, solid potential per
// electrode cell, solid concentration per shell of each material of each
// electrode cell, then the applied-current unknown closing the system.
type Layout struct {
	Nx, NE           int // macroscopic cells, electrode cells
	NAnode, NCathode int // electrode cell counts per electrode
	Nr               int // shells per particle
	NmatA            int // active materials in the anode
	NmatC            int
	CeOff            int
	PhieOff          int
	PhisOff          int
	CsOff            int
	II               int // index of the applied-current unknown
	NTot             int
}

func NewLayout(m *mesh.Mesh, nShells int) (l Layout) {
	l = Layout{
		Nx:       m.N,
		NE:       m.NElectrode(),
		NAnode:   m.NAnode,
		NCathode: m.NCathode,
		Nr:       nShells,
		NmatA:    len(m.AnodeGrids),
		NmatC:    len(m.CathodeGrids),
	}
	l.CeOff = 0
	l.PhieOff = l.Nx
	l.PhisOff = 2 * l.Nx
	l.CsOff = 2*l.Nx + l.NE
	nCs := (l.NAnode*l.NmatA + l.NCathode*l.NmatC) * l.Nr
	l.II = l.CsOff + nCs
	l.NTot = l.II + 1
	return
}

func (l *Layout) Ce(j int) int   { return l.CeOff + j }
func (l *Layout) Phie(j int) int { return l.PhieOff + j }

// Phis takes the compact electrode index (mesh.ElectrodeIndex).
func (l *Layout) Phis(e int) int { return l.PhisOff + e }

// Cs takes the compact electrode index, the material index within its
// electrode, and the shell index (0 = center, Nr-1 = surface).
func (l *Layout) Cs(e, mat, k int) int {
	var base int
	if e < l.NAnode {
		base = e*l.NmatA + mat
	} else {
		base = l.NAnode*l.NmatA + (e-l.NAnode)*l.NmatC + mat
	}
	return l.CsOff + base*l.Nr + k
}
