// Package props turns the declarative electrolyte/transport entries of a
// cell configuration into resolved, allocation-free evaluators. Correlation
// kinds are fixed closed forms selected by tag with a table-lookup fallback;
// no runtime expression evaluation.
package props

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/cellsolve/gop2d/cellparams"
)

// ErrOutOfRange signals a correlation evaluated outside its valid
// concentration range under the hard-fail policy.
var ErrOutOfRange = errors.New("correlation argument outside valid range")

// RangePolicy selects what happens when a correlation sees a concentration
// outside its valid range.
type RangePolicy int

const (
	// ClampAndWarn clamps the argument to the range boundary and prints a
	// single warning per correlation. This is the default policy.
	ClampAndWarn RangePolicy = iota
	// HardFail returns ErrOutOfRange.
	HardFail
)

// EffectiveTransport converts a bulk transport property to the effective
// porous-medium value. Only the "bruggeman" correction is recognized;
// anything else passes the bulk value through unchanged.
func EffectiveTransport(porosity, bruggeman, bulk float64, correction string) float64 {
	if correction == "bruggeman" {
		return bulk * math.Pow(porosity, bruggeman)
	}
	return bulk
}

// Correlation is a resolved concentration-dependent property. Eval is
// deterministic and allocation-free; it runs every Newton iteration.
type Correlation struct {
	name     string
	eval     func(ce float64) float64
	lo, hi   float64 // valid range; lo==hi means unbounded
	policy   RangePolicy
	warned   uint32
	bulkOnly bool   // stored values are bulk quantities
	correct  string // correction tag to apply for effective values
}

// NewCorrelation resolves a CorrelationSpec once, at construction. Known
// kinds are "constant" and "polynomial"; any other tag falls back to a
// piecewise-linear table lookup when a table is present.
func NewCorrelation(name string, spec cellparams.CorrelationSpec, policy RangePolicy) (*Correlation, error) {
	c := &Correlation{
		name:     name,
		lo:       spec.Range[0],
		hi:       spec.Range[1],
		policy:   policy,
		bulkOnly: !spec.Effective,
		correct:  spec.Correction,
	}
	switch spec.Kind {
	case "constant", "":
		v := spec.Value
		c.eval = func(float64) float64 { return v }
	case "polynomial":
		if len(spec.Coefficients) == 0 {
			return nil, fmt.Errorf("correlation %q: polynomial needs coefficients", name)
		}
		coeff := append([]float64(nil), spec.Coefficients...)
		c.eval = func(ce float64) float64 {
			// Horner, ascending powers stored
			v := 0.0
			for i := len(coeff) - 1; i >= 0; i-- {
				v = v*ce + coeff[i]
			}
			return v
		}
	default:
		// Unrecognized tag: fall back to a table lookup.
		if len(spec.Table) < 2 {
			return nil, fmt.Errorf("correlation %q: unknown kind %q and no usable table", name, spec.Kind)
		}
		xs := make([]float64, len(spec.Table))
		ys := make([]float64, len(spec.Table))
		for i, p := range spec.Table {
			xs[i], ys[i] = p[0], p[1]
		}
		if !sort.Float64sAreSorted(xs) {
			return nil, fmt.Errorf("correlation %q: table concentrations must be increasing", name)
		}
		if c.lo == c.hi {
			c.lo, c.hi = xs[0], xs[len(xs)-1]
		}
		c.eval = func(ce float64) float64 {
			i := sort.SearchFloat64s(xs, ce)
			if i == 0 {
				return ys[0]
			}
			if i == len(xs) {
				return ys[len(ys)-1]
			}
			w := (ce - xs[i-1]) / (xs[i] - xs[i-1])
			return ys[i-1] + w*(ys[i]-ys[i-1])
		}
	}
	return c, nil
}

// Eval returns the bulk property value at the given electrolyte
// concentration, applying the range policy.
func (c *Correlation) Eval(ce float64) (float64, error) {
	if c.lo != c.hi && (ce < c.lo || ce > c.hi) {
		switch c.policy {
		case HardFail:
			return 0, fmt.Errorf("%w: %s at ce=%g, valid [%g, %g]", ErrOutOfRange, c.name, ce, c.lo, c.hi)
		default:
			if atomic.CompareAndSwapUint32(&c.warned, 0, 1) {
				fmt.Printf("warning: %s evaluated at ce=%8.3g outside valid range [%g, %g], clamping\n",
					c.name, ce, c.lo, c.hi)
			}
			ce = math.Min(math.Max(ce, c.lo), c.hi)
		}
	}
	return c.eval(ce), nil
}

// EvalEffective evaluates the bulk correlation and applies the porous-medium
// correction the spec carries, for a region with the given porosity and
// Bruggeman exponent.
func (c *Correlation) EvalEffective(ce, porosity, bruggeman float64) (float64, error) {
	v, err := c.Eval(ce)
	if err != nil {
		return 0, err
	}
	if c.bulkOnly {
		v = EffectiveTransport(porosity, bruggeman, v, c.correct)
	}
	return v, nil
}
