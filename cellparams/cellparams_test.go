package cellparams

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *CellConfiguration {
	cfg := &CellConfiguration{Title: "test cell"}
	cfg.applyDefaults()
	am := ActiveMaterialSpec{
		Name:                 "graphite",
		VolumeFraction:       0.55,
		ParticleRadius:       5e-6,
		Stoichiometry0:       0.03,
		Stoichiometry1:       0.9,
		KineticConstant:      1e-5,
		MaximumConcentration: 30000,
		Diffusivity:          1e-13,
		OCP: OCPSpec{
			Stoichiometry: []float64{0.0, 0.3, 0.6, 1.0},
			Potential:     []float64{0.5, 0.38, 0.26, 0.1},
		},
	}
	cfg.Anode = RegionSpec{
		Thickness: 80e-6, Area: 0.01, Porosity: 0.35, Bruggeman: 1.5,
		ElectronicConductivity: 100,
		Materials:              []ActiveMaterialSpec{am},
	}
	cm := am
	cm.Name = "nmc"
	cm.VolumeFraction = 0.5
	cm.Stoichiometry0 = 0.95
	cm.Stoichiometry1 = 0.3375
	cm.MaximumConcentration = 50000
	cm.OCP = OCPSpec{
		Stoichiometry: []float64{0.0, 0.3, 0.6, 1.0},
		Potential:     []float64{4.2, 3.96, 3.72, 3.4},
	}
	cfg.Cathode = RegionSpec{
		Thickness: 75e-6, Area: 0.01, Porosity: 0.35, Bruggeman: 1.5,
		ElectronicConductivity: 100,
		Materials:              []ActiveMaterialSpec{cm},
	}
	cfg.Separator = RegionSpec{Thickness: 25e-6, Area: 0.01, Porosity: 0.45, Bruggeman: 1.5}
	cfg.Electrolyte = ElectrolyteSpec{
		Diffusivity:          CorrelationSpec{Kind: "constant", Value: 3e-10},
		Conductivity:         CorrelationSpec{Kind: "constant", Value: 1.0},
		TransferenceNumber:   0.36,
		InitialConcentration: 1000,
	}
	cfg.InitialSOC = 1.0
	return cfg
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CellConfiguration)
	}{
		{"zero thickness", func(c *CellConfiguration) { c.Anode.Thickness = 0 }},
		{"porosity one", func(c *CellConfiguration) { c.Separator.Porosity = 1 }},
		{"no materials", func(c *CellConfiguration) { c.Cathode.Materials = nil }},
		{"material in separator", func(c *CellConfiguration) {
			c.Separator.Materials = []ActiveMaterialSpec{c.Anode.Materials[0]}
		}},
		{"empty stoichiometry window", func(c *CellConfiguration) {
			c.Anode.Materials[0].Stoichiometry1 = c.Anode.Materials[0].Stoichiometry0
		}},
		{"volume fraction overflow", func(c *CellConfiguration) {
			c.Anode.Materials[0].VolumeFraction = 0.9
		}},
		{"too few OCP points", func(c *CellConfiguration) {
			c.Anode.Materials[0].OCP.Stoichiometry = []float64{0, 0.5, 1}
			c.Anode.Materials[0].OCP.Potential = []float64{0.5, 0.3, 0.1}
		}},
		{"non-increasing OCP abscissae", func(c *CellConfiguration) {
			c.Anode.Materials[0].OCP.Stoichiometry = []float64{0, 0.6, 0.3, 1}
		}},
		{"mismatched areas", func(c *CellConfiguration) { c.Cathode.Area = 0.02 }},
		{"transference out of range", func(c *CellConfiguration) { c.Electrolyte.TransferenceNumber = 1.2 }},
		{"negative SOC", func(c *CellConfiguration) { c.InitialSOC = -0.1 }},
	}
	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(cfg)
		err := cfg.Validate()
		assert.ErrorIs(t, err, ErrConfigurationInvalid, tc.name)
	}
}

func TestParseYAML(t *testing.T) {
	data := []byte(`
Title: yaml cell
anode:
  thickness: 80.0e-6
  area: 0.01
  porosity: 0.35
  bruggeman: 1.5
  electronicConductivity: 100
  materials:
    - name: graphite
      volumeFraction: 0.55
      particleRadius: 5.0e-6
      stoichiometry0: 0.03
      stoichiometry1: 0.9
      kineticConstant: 1.0e-5
      maximumConcentration: 30000
      diffusivity: 1.0e-13
      OCP:
        stoichiometry: [0.0, 0.3, 0.6, 1.0]
        potential: [0.5, 0.38, 0.26, 0.1]
separator:
  thickness: 25.0e-6
  area: 0.01
  porosity: 0.45
  bruggeman: 1.5
cathode:
  thickness: 75.0e-6
  area: 0.01
  porosity: 0.35
  bruggeman: 1.5
  electronicConductivity: 100
  materials:
    - name: nmc
      volumeFraction: 0.5
      particleRadius: 5.0e-6
      stoichiometry0: 0.95
      stoichiometry1: 0.3375
      kineticConstant: 1.0e-5
      maximumConcentration: 50000
      diffusivity: 1.0e-13
      OCP:
        stoichiometry: [0.0, 0.3, 0.6, 1.0]
        potential: [4.2, 3.96, 3.72, 3.4]
electrolyte:
  diffusivity: {kind: constant, value: 3.0e-10}
  conductivity: {kind: constant, value: 1.0}
  transferenceNumber: 0.36
  initialConcentration: 1000
initialSOC: 1.0
`)
	var cfg CellConfiguration
	require.NoError(t, cfg.Parse(data))
	assert.Equal(t, "yaml cell", cfg.Title)
	// Defaults filled in
	assert.Equal(t, 298.15, cfg.Temperature)
	assert.Equal(t, FaradayConstant, cfg.Constants.F)
	assert.Equal(t, DefaultAlpha, cfg.Constants.Alpha)
	assert.Equal(t, 0.55, cfg.Anode.Materials[0].VolumeFraction)
	assert.Equal(t, 0.36, cfg.Electrolyte.TransferenceNumber)
}

func TestSpecificAreaAndStoichiometry(t *testing.T) {
	am := &ActiveMaterialSpec{VolumeFraction: 0.6, ParticleRadius: 3e-6,
		Stoichiometry0: 0.9, Stoichiometry1: 0.3}
	assert.InDelta(t, 3*0.6/3e-6, am.SpecificArea(), 1e-6)
	assert.InDelta(t, 0.9, am.InitialStoichiometry(0), 1e-14)
	assert.InDelta(t, 0.3, am.InitialStoichiometry(1), 1e-14)
	assert.InDelta(t, 0.6, am.InitialStoichiometry(0.5), 1e-14)
}

func TestNominalCapacityAh(t *testing.T) {
	cfg := validConfig()
	// F * cmax * |dTheta| * vf * L * A / 3600, one material per electrode
	wantA := FaradayConstant * 30000 * 0.87 * 0.55 * 80e-6 * 0.01 / 3600
	wantC := FaradayConstant * 50000 * 0.6125 * 0.5 * 75e-6 * 0.01 / 3600
	assert.InDelta(t, wantA, cfg.NominalCapacityAh(&cfg.Anode), wantA*1e-12)
	assert.InDelta(t, wantC, cfg.NominalCapacityAh(&cfg.Cathode), wantC*1e-12)
}

func TestLoadOCPPoints(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ocp_anode.txt")
	content := "# stoichiometry, potential\n" +
		"0.0, 0.50\n" +
		"0.3  0.38\n" +
		"\n" +
		"0.6\t0.26\n" +
		"1.0, 0.10\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	theta, pot, err := LoadOCPPoints(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.3, 0.6, 1.0}, theta)
	assert.Equal(t, []float64{0.5, 0.38, 0.26, 0.1}, pot)

	bad := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("0.0\n"), 0o644))
	_, _, err = LoadOCPPoints(bad)
	assert.Error(t, err)
}

func TestResolveOCPSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "anode_ocp.txt")
	require.NoError(t, os.WriteFile(path,
		[]byte("0.0 0.50\n0.3 0.38\n0.6 0.26\n1.0 0.10\n"), 0o644))

	cfg := validConfig()
	cfg.Anode.Materials[0].OCP = OCPSpec{Source: "anode_ocp.txt"}
	require.NoError(t, cfg.ResolveOCPSources(dir))
	assert.Equal(t, []float64{0, 0.3, 0.6, 1.0}, cfg.Anode.Materials[0].OCP.Stoichiometry)

	// A missing source is an error
	cfg2 := validConfig()
	cfg2.Cathode.Materials[0].OCP = OCPSpec{Source: "does_not_exist.txt"}
	assert.Error(t, cfg2.ResolveOCPSources(dir))
}
