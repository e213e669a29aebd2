package cellparams

import (
	"errors"
	"fmt"
	"math"

	"github.com/ghodss/yaml"
)

// ErrConfigurationInvalid is returned when a parameter document violates a
// structural invariant. Detected at construction, never mid-run.
var ErrConfigurationInvalid = errors.New("cell configuration invalid")

// Physical constant defaults [SI]
const (
	GasConstant     = 8.314462618  // J/(mol·K)
	FaradayConstant = 96485.33212  // C/mol
	DefaultAlpha    = 0.5
)

// Constants are the physical constants entering the kinetic and transport
// relations. Zero values are replaced with the SI defaults on Parse.
type Constants struct {
	R     float64 `yaml:"R"`
	F     float64 `yaml:"F"`
	Alpha float64 `yaml:"alpha"`
}

// CorrelationSpec describes a concentration-dependent electrolyte property.
// Effective=false together with Correction="bruggeman" instructs the solver
// to apply the porosity^bruggeman correction before use; the stored numbers
// are always bulk quantities.
type CorrelationSpec struct {
	Kind         string       `yaml:"kind"` // constant | polynomial | table | named tag
	Value        float64      `yaml:"value"`
	Coefficients []float64    `yaml:"coefficients"`
	Table        [][2]float64 `yaml:"table"` // (concentration, value) pairs
	Range        [2]float64   `yaml:"range"` // valid concentration range, 0,0 = unbounded
	Effective    bool         `yaml:"effective"`
	Correction   string       `yaml:"correction"`
}

// OCPSpec holds the open-circuit potential source for one active material:
// either inline control points or a reference to a two-column source file
// resolved by the loader before the run starts.
type OCPSpec struct {
	Source        string    `yaml:"source"`
	Stoichiometry []float64 `yaml:"stoichiometry"`
	Potential     []float64 `yaml:"potential"`
	Boundary      string    `yaml:"boundary"` // "not-a-knot" (default)
}

type ActiveMaterialSpec struct {
	Name                 string  `yaml:"name"`
	VolumeFraction       float64 `yaml:"volumeFraction"`
	ParticleRadius       float64 `yaml:"particleRadius"` // m
	Stoichiometry0       float64 `yaml:"stoichiometry0"` // composition at 0% SOC
	Stoichiometry1       float64 `yaml:"stoichiometry1"` // composition at 100% SOC
	KineticConstant      float64 `yaml:"kineticConstant"`
	MaximumConcentration float64 `yaml:"maximumConcentration"` // mol/m^3
	Diffusivity          float64 `yaml:"diffusivity"`          // m^2/s solid phase
	OCP                  OCPSpec `yaml:"OCP"`
}

// SpecificArea is the interfacial area per unit electrode volume for a
// representative spherical particle population, 3*eps_am/R.
func (am *ActiveMaterialSpec) SpecificArea() float64 {
	return 3 * am.VolumeFraction / am.ParticleRadius
}

type RegionSpec struct {
	Thickness              float64              `yaml:"thickness"` // m
	Area                   float64              `yaml:"area"`      // m^2
	Porosity               float64              `yaml:"porosity"`
	Bruggeman              float64              `yaml:"bruggeman"`
	ElectronicConductivity float64              `yaml:"electronicConductivity"` // S/m
	Density                float64              `yaml:"density"`                // kg/m^3
	Materials              []ActiveMaterialSpec `yaml:"materials"`
}

type ElectrolyteSpec struct {
	Diffusivity          CorrelationSpec `yaml:"diffusivity"`
	Conductivity         CorrelationSpec `yaml:"conductivity"`
	TransferenceNumber   float64         `yaml:"transferenceNumber"`
	InitialConcentration float64         `yaml:"initialConcentration"` // mol/m^3
}

// CellConfiguration is the fully typed, immutable input contract of the
// simulation core. All fields are SI; the external ingestion collaborator
// is responsible for unit normalization before this struct is built.
type CellConfiguration struct {
	Title       string          `yaml:"Title"`
	Constants   Constants       `yaml:"constants"`
	Anode       RegionSpec      `yaml:"anode"`
	Separator   RegionSpec      `yaml:"separator"`
	Cathode     RegionSpec      `yaml:"cathode"`
	Electrolyte ElectrolyteSpec `yaml:"electrolyte"`
	Temperature float64         `yaml:"temperature"` // K, isothermal
	InitialSOC  float64         `yaml:"initialSOC"`  // 0..1
}

func (cfg *CellConfiguration) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	cfg.applyDefaults()
	return cfg.Validate()
}

func (cfg *CellConfiguration) applyDefaults() {
	if cfg.Constants.R == 0 {
		cfg.Constants.R = GasConstant
	}
	if cfg.Constants.F == 0 {
		cfg.Constants.F = FaradayConstant
	}
	if cfg.Constants.Alpha == 0 {
		cfg.Constants.Alpha = DefaultAlpha
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 298.15
	}
}

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfigurationInvalid, fmt.Sprintf(format, args...))
}

// Validate enforces the structural invariants of the data model. Any
// violation is fatal; no partial run may start from a bad configuration.
func (cfg *CellConfiguration) Validate() error {
	regions := []struct {
		name      string
		r         *RegionSpec
		electrode bool
	}{
		{"anode", &cfg.Anode, true},
		{"separator", &cfg.Separator, false},
		{"cathode", &cfg.Cathode, true},
	}
	for _, reg := range regions {
		r := reg.r
		if r.Thickness <= 0 {
			return invalidf("%s: thickness must be positive, have %g", reg.name, r.Thickness)
		}
		if r.Area <= 0 {
			return invalidf("%s: area must be positive, have %g", reg.name, r.Area)
		}
		if r.Porosity <= 0 || r.Porosity >= 1 {
			return invalidf("%s: porosity must lie in (0,1), have %g", reg.name, r.Porosity)
		}
		if reg.electrode && len(r.Materials) == 0 {
			return invalidf("%s: electrode must own at least one active material", reg.name)
		}
		if !reg.electrode && len(r.Materials) != 0 {
			return invalidf("%s: separator cannot own active materials", reg.name)
		}
		var volSum float64
		for i := range r.Materials {
			am := &r.Materials[i]
			if am.Stoichiometry0 == am.Stoichiometry1 {
				return invalidf("%s material %d: stoichiometry window is empty (both bounds %g)",
					reg.name, i, am.Stoichiometry0)
			}
			if am.ParticleRadius <= 0 {
				return invalidf("%s material %d: particle radius must be positive", reg.name, i)
			}
			if am.MaximumConcentration <= 0 {
				return invalidf("%s material %d: maximum concentration must be positive", reg.name, i)
			}
			if am.Diffusivity <= 0 {
				return invalidf("%s material %d: solid diffusivity must be positive", reg.name, i)
			}
			if am.KineticConstant <= 0 {
				return invalidf("%s material %d: kinetic constant must be positive", reg.name, i)
			}
			if np := len(am.OCP.Stoichiometry); am.OCP.Source == "" {
				if np < 4 {
					return invalidf("%s material %d: OCP needs at least 4 control points, have %d",
						reg.name, i, np)
				}
				if np != len(am.OCP.Potential) {
					return invalidf("%s material %d: OCP stoichiometry/potential length mismatch",
						reg.name, i)
				}
				for k := 1; k < np; k++ {
					if am.OCP.Stoichiometry[k] <= am.OCP.Stoichiometry[k-1] {
						return invalidf("%s material %d: OCP stoichiometry must be strictly increasing",
							reg.name, i)
					}
				}
			}
			volSum += am.VolumeFraction
		}
		if volSum > 1-r.Porosity+1e-12 {
			return invalidf("%s: active volume fractions sum to %g, exceeding 1-porosity=%g",
				reg.name, volSum, 1-r.Porosity)
		}
	}
	if a, s, c := cfg.Anode.Area, cfg.Separator.Area, cfg.Cathode.Area; math.Abs(a-s) > 1e-9*a || math.Abs(a-c) > 1e-9*a {
		return invalidf("region cross-sectional areas differ (%g, %g, %g); the 1D stack requires a common area", a, s, c)
	}
	if t := cfg.Electrolyte.TransferenceNumber; t <= 0 || t >= 1 {
		return invalidf("electrolyte: transference number must lie in (0,1), have %g", t)
	}
	if cfg.Electrolyte.InitialConcentration <= 0 {
		return invalidf("electrolyte: initial concentration must be positive")
	}
	if cfg.InitialSOC < 0 || cfg.InitialSOC > 1 {
		return invalidf("initialSOC must lie in [0,1], have %g", cfg.InitialSOC)
	}
	if cfg.Temperature <= 0 {
		return invalidf("temperature must be positive")
	}
	return nil
}

// InitialStoichiometry maps the cell SOC onto a material's composition
// window. Stoichiometry0 is the 0%-SOC composition, which for the cathode
// is the higher lithiation.
func (am *ActiveMaterialSpec) InitialStoichiometry(soc float64) float64 {
	return am.Stoichiometry0 + soc*(am.Stoichiometry1-am.Stoichiometry0)
}

// NominalCapacityAh is the charge held between the stoichiometry bounds of
// every material in the named electrode, in ampere-hours.
func (cfg *CellConfiguration) NominalCapacityAh(r *RegionSpec) (cap float64) {
	for i := range r.Materials {
		am := &r.Materials[i]
		dTheta := math.Abs(am.Stoichiometry1 - am.Stoichiometry0)
		cap += cfg.Constants.F * am.MaximumConcentration * dTheta *
			am.VolumeFraction * r.Thickness * r.Area
	}
	cap /= 3600
	return
}

func (cfg *CellConfiguration) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", cfg.Title)
	fmt.Printf("%8.2f K\t\t= Temperature\n", cfg.Temperature)
	fmt.Printf("%8.3f\t\t= Initial SOC\n", cfg.InitialSOC)
	for _, reg := range []struct {
		name string
		r    *RegionSpec
	}{{"anode", &cfg.Anode}, {"separator", &cfg.Separator}, {"cathode", &cfg.Cathode}} {
		fmt.Printf("[%s] L=%8.3g m, eps=%5.3f, brug=%4.2f, %d material(s)\n",
			reg.name, reg.r.Thickness, reg.r.Porosity, reg.r.Bruggeman, len(reg.r.Materials))
	}
	fmt.Printf("%8.1f mol/m3\t= Initial electrolyte concentration\n",
		cfg.Electrolyte.InitialConcentration)
}
