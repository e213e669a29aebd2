package utils

import (
	"fmt"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// DOK wraps a sparse dictionary-of-keys matrix used to accumulate the
// Jacobian before the linear solve.
type DOK struct {
	M *sparse.DOK
}

func NewDOK(nr, nc int) (R DOK) {
	R = DOK{sparse.NewDOK(nr, nc)}
	return
}

// Dims, At and T minimally satisfy the mat.Matrix interface.
func (m DOK) Dims() (r, c int)    { return m.M.Dims() }
func (m DOK) At(i, j int) float64 { return m.M.At(i, j) }
func (m DOK) T() mat.Matrix      { return m.M.T() }

func (m DOK) Set(i, j int, val float64) { m.M.Set(i, j, val) }

// Accumulate adds val to the (i,j) entry.
func (m DOK) Accumulate(i, j int, val float64) {
	m.M.Set(i, j, m.M.At(i, j)+val)
}

// NNZ returns the count of stored entries.
func (m DOK) NNZ() int { return m.M.NNZ() }

// ToDense converts to a dense matrix for the direct LU solve. The P2D
// Jacobian is small enough (a few hundred to a few thousand unknowns)
// that a dense factorization beats an iterative solve.
func (m DOK) ToDense() (R *mat.Dense) {
	var (
		nr, nc = m.Dims()
	)
	R = mat.NewDense(nr, nc, nil)
	m.M.DoNonZero(func(i, j int, v float64) {
		R.Set(i, j, v)
	})
	return
}

// Triplet is a single (row, col, value) contribution produced by a
// worker-private buffer and merged into the DOK single-threaded.
type Triplet struct {
	I, J int
	V    float64
}

// MergeTriplets folds buffered contributions into the receiver.
func (m DOK) MergeTriplets(buf []Triplet) {
	for _, t := range buf {
		m.Accumulate(t.I, t.J, t.V)
	}
}

func (m DOK) String() string {
	nr, nc := m.Dims()
	return fmt.Sprintf("DOK[%dx%d] nnz=%d", nr, nc, m.NNZ())
}
