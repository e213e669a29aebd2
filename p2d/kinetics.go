package p2d

import (
	"math"
)

// Kinetics is the Butler-Volmer evaluation at one electrode node for one
// material, with the partial derivatives the Jacobian needs.
type Kinetics struct {
	J       float64 // interfacial current density, A/m^2, anodic positive
	DJdPhis float64
	DJdPhie float64
	DJdCs   float64 // w.r.t. surface solid concentration
	DJdCe   float64 // w.r.t. local electrolyte concentration
	Eta     float64
	U       float64 // open-circuit potential at the surface stoichiometry

	// Saturated is set when either exponential hit its argument cap or
	// the surface concentration had to be held off 0 or c_max: the
	// material is at a physical state-of-charge boundary. The converged
	// state must not carry this flag; the integrator escalates it.
	Saturated bool
}

// expCap bounds the Butler-Volmer exponent arguments. exp(+-expCap) is
// comfortably finite in float64, so the current saturates instead of
// producing Inf or NaN.
const expCap = 350.0

// csGuard keeps the exchange prefactor away from its zeros as a fraction
// of c_max.
const csGuard = 1e-9

// reactionCurrentDensity evaluates j and its partials given the local
// electrolyte concentration, surface solid concentration and both phase
// potentials. The OCP lookup error propagates unchanged so the caller can
// convert a transient Newton excursion into a step-size reduction.
func (sim *Simulator) reactionCurrentDensity(mat *Material, ce, csurf, phis, phie float64) (kin Kinetics, err error) {
	var (
		cns   = sim.Cfg.Constants
		alpha = cns.Alpha
		f     = cns.F / (cns.R * sim.Cfg.Temperature)
		cmax  = mat.Spec.MaximumConcentration
		k0    = mat.Spec.KineticConstant
	)
	theta := csurf / cmax
	U, dUdTheta, err := mat.OCP.Potential(theta)
	if err != nil {
		return Kinetics{}, err
	}
	kin.U = U
	kin.Eta = phis - phie - kin.U

	// Exchange prefactor, guarded against the zeros at cs=0 and cs=cmax
	// so the current saturates smoothly instead of going NaN.
	csEff := csurf
	if lim := csGuard * cmax; csEff < lim {
		csEff = lim
		kin.Saturated = true
	} else if csEff > cmax-lim {
		csEff = cmax - lim
		kin.Saturated = true
	}
	if ce <= 0 {
		ce = math.SmallestNonzeroFloat64
		kin.Saturated = true
	}
	pre := k0 * math.Pow(ce, 1-alpha) * math.Pow(cmax-csEff, 1-alpha) * math.Pow(csEff, alpha)

	a1 := alpha * f * kin.Eta
	a2 := -(1 - alpha) * f * kin.Eta
	if a1 > expCap {
		a1 = expCap
		kin.Saturated = true
	}
	if a2 > expCap {
		a2 = expCap
		kin.Saturated = true
	}
	var (
		e1 = math.Exp(a1)
		e2 = math.Exp(a2)
		bv = e1 - e2
	)
	kin.J = pre * bv

	dBVdEta := alpha*f*e1 + (1-alpha)*f*e2
	kin.DJdPhis = pre * dBVdEta
	kin.DJdPhie = -pre * dBVdEta

	// Surface-concentration dependence: the prefactor directly, and the
	// overpotential through U(theta).
	dPredCs := pre * (alpha/csEff - (1-alpha)/(cmax-csEff))
	kin.DJdCs = dPredCs*bv - kin.DJdPhis*dUdTheta/cmax
	kin.DJdCe = (1 - alpha) * kin.J / ce

	return kin, nil
}
