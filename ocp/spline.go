// Package ocp fits the open-circuit potential of an active material as a
// not-a-knot cubic spline over (stoichiometry, potential) control points and
// evaluates it together with its exact analytic derivative.
package ocp

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// ErrStoichiometryOutOfRange signals an OCP lookup outside the fitted data
// range. Extrapolating an equilibrium potential implies an unphysical
// surface concentration, so the lookup fails instead.
var ErrStoichiometryOutOfRange = errors.New("stoichiometry outside fitted OCP range")

// Spline is a piecewise cubic with third-derivative continuity enforced
// across the first and last interior knots (the not-a-knot condition), so
// no end-curvature needs to be specified. Immutable once built and safe
// for concurrent use.
type Spline struct {
	x, y []float64
	m    []float64 // second derivatives at the knots
	h    []float64 // knot spacings
}

// New fits the spline. The stoichiometry values must be strictly
// increasing and at least 4 points are required, since not-a-knot
// collapses the two end segments onto their neighbors.
func New(theta, potential []float64) (*Spline, error) {
	n := len(theta)
	if n < 4 {
		return nil, fmt.Errorf("not-a-knot spline needs at least 4 points, have %d", n)
	}
	if len(potential) != n {
		return nil, fmt.Errorf("length mismatch: %d stoichiometries, %d potentials", n, len(potential))
	}
	s := &Spline{
		x: append([]float64(nil), theta...),
		y: append([]float64(nil), potential...),
		h: make([]float64, n-1),
	}
	for i := 0; i < n-1; i++ {
		s.h[i] = s.x[i+1] - s.x[i]
		if s.h[i] <= 0 {
			return nil, fmt.Errorf("stoichiometry values must be strictly increasing at index %d", i+1)
		}
	}

	// Solve for the knot second derivatives M. Rows 1..n-2 are the usual
	// C2 continuity relations; rows 0 and n-1 equate the third
	// derivative across the first and last interior knots.
	A := mat.NewDense(n, n, nil)
	b := mat.NewVecDense(n, nil)
	h := s.h
	for i := 1; i < n-1; i++ {
		A.Set(i, i-1, h[i-1])
		A.Set(i, i, 2*(h[i-1]+h[i]))
		A.Set(i, i+1, h[i])
		b.SetVec(i, 6*((s.y[i+1]-s.y[i])/h[i]-(s.y[i]-s.y[i-1])/h[i-1]))
	}
	// (M1-M0)/h0 = (M2-M1)/h1
	A.Set(0, 0, h[1])
	A.Set(0, 1, -(h[0] + h[1]))
	A.Set(0, 2, h[0])
	// (M_{n-1}-M_{n-2})/h_{n-2} = (M_{n-2}-M_{n-3})/h_{n-3}
	A.Set(n-1, n-3, h[n-2])
	A.Set(n-1, n-2, -(h[n-3] + h[n-2]))
	A.Set(n-1, n-1, h[n-3])

	var msol mat.VecDense
	if err := msol.SolveVec(A, b); err != nil {
		return nil, fmt.Errorf("spline system is singular: %w", err)
	}
	s.m = make([]float64, n)
	for i := 0; i < n; i++ {
		s.m[i] = msol.AtVec(i)
	}
	return s, nil
}

// Domain returns the fitted stoichiometry range.
func (s *Spline) Domain() (lo, hi float64) {
	return s.x[0], s.x[len(s.x)-1]
}

// Covers reports whether the fitted range contains [lo,hi].
func (s *Spline) Covers(lo, hi float64) bool {
	if lo > hi {
		lo, hi = hi, lo
	}
	return s.x[0] <= lo && hi <= s.x[len(s.x)-1]
}

// Potential evaluates the spline and its analytic derivative dU/dθ. The
// derivative is the exact derivative of the fitted piecewise cubic, as
// required for Jacobian assembly.
func (s *Spline) Potential(theta float64) (U, dUdTheta float64, err error) {
	n := len(s.x)
	if theta < s.x[0] || theta > s.x[n-1] {
		return 0, 0, fmt.Errorf("%w: theta=%g, fitted range [%g, %g]",
			ErrStoichiometryOutOfRange, theta, s.x[0], s.x[n-1])
	}
	// Locate the segment: first knot strictly greater than theta, minus 1.
	i := sort.SearchFloat64s(s.x, theta)
	if i > 0 && (i == n || s.x[i] != theta) {
		i--
	}
	if i == n-1 {
		i--
	}
	var (
		h = s.h[i]
		t = theta - s.x[i]
		c = s.m[i] / 2
		d = (s.m[i+1] - s.m[i]) / (6 * h)
		b = (s.y[i+1]-s.y[i])/h - h*(2*s.m[i]+s.m[i+1])/6
	)
	U = s.y[i] + t*(b+t*(c+t*d))
	dUdTheta = b + t*(2*c+3*t*d)
	return U, dUdTheta, nil
}
