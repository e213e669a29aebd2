package props

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellsolve/gop2d/cellparams"
)

func TestEffectiveTransport(t *testing.T) {
	// Bruggeman scaling
	assert.InDelta(t, 2.0*math.Pow(0.3, 1.5), EffectiveTransport(0.3, 1.5, 2.0, "bruggeman"), 1e-14)
	// Anything else passes through
	assert.Equal(t, 2.0, EffectiveTransport(0.3, 1.5, 2.0, ""))
	assert.Equal(t, 2.0, EffectiveTransport(0.3, 1.5, 2.0, "none"))
}

func TestCorrelationKinds(t *testing.T) {
	// Constant
	{
		c, err := NewCorrelation("D", cellparams.CorrelationSpec{Kind: "constant", Value: 3e-10}, ClampAndWarn)
		require.NoError(t, err)
		v, err := c.Eval(1200)
		require.NoError(t, err)
		assert.Equal(t, 3e-10, v)
	}
	// Polynomial, ascending powers
	{
		c, err := NewCorrelation("kappa", cellparams.CorrelationSpec{
			Kind:         "polynomial",
			Coefficients: []float64{0.1, 2e-3, -5e-7},
		}, ClampAndWarn)
		require.NoError(t, err)
		v, err := c.Eval(1000)
		require.NoError(t, err)
		assert.InDelta(t, 0.1+2e-3*1000-5e-7*1000*1000, v, 1e-12)
	}
	// Unrecognized tag falls back to the table
	{
		c, err := NewCorrelation("kappa", cellparams.CorrelationSpec{
			Kind:  "landesfeind2019",
			Table: [][2]float64{{0, 0.1}, {1000, 1.0}, {2000, 0.8}},
		}, ClampAndWarn)
		require.NoError(t, err)
		v, err := c.Eval(500)
		require.NoError(t, err)
		assert.InDelta(t, 0.55, v, 1e-12)
		v, err = c.Eval(1500)
		require.NoError(t, err)
		assert.InDelta(t, 0.9, v, 1e-12)
	}
	// Unrecognized tag without a table is a construction error
	{
		_, err := NewCorrelation("kappa", cellparams.CorrelationSpec{Kind: "mystery"}, ClampAndWarn)
		assert.Error(t, err)
	}
}

func TestCorrelationRangePolicy(t *testing.T) {
	spec := cellparams.CorrelationSpec{
		Kind:         "polynomial",
		Coefficients: []float64{0, 1e-3},
		Range:        [2]float64{500, 2000},
	}
	// Default policy clamps to the range boundary
	{
		c, err := NewCorrelation("D", spec, ClampAndWarn)
		require.NoError(t, err)
		v, err := c.Eval(100)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, v, 1e-12)
		v, err = c.Eval(5000)
		require.NoError(t, err)
		assert.InDelta(t, 2.0, v, 1e-12)
	}
	// Hard policy fails
	{
		c, err := NewCorrelation("D", spec, HardFail)
		require.NoError(t, err)
		_, err = c.Eval(100)
		assert.ErrorIs(t, err, ErrOutOfRange)
		_, err = c.Eval(1000)
		assert.NoError(t, err)
	}
}

func TestEvalEffective(t *testing.T) {
	// Bulk correlation with a bruggeman correction tag
	c, err := NewCorrelation("D", cellparams.CorrelationSpec{
		Kind:       "constant",
		Value:      2e-10,
		Effective:  false,
		Correction: "bruggeman",
	}, ClampAndWarn)
	require.NoError(t, err)
	v, err := c.EvalEffective(1000, 0.4, 1.5)
	require.NoError(t, err)
	assert.InDelta(t, 2e-10*math.Pow(0.4, 1.5), v, 1e-24)

	// Already-effective values skip the correction
	c2, err := NewCorrelation("D", cellparams.CorrelationSpec{
		Kind:      "constant",
		Value:     2e-10,
		Effective: true,
	}, ClampAndWarn)
	require.NoError(t, err)
	v, err = c2.EvalEffective(1000, 0.4, 1.5)
	require.NoError(t, err)
	assert.Equal(t, 2e-10, v)
}
