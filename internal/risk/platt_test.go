package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlattScaler_UnfittedIsIdentity(t *testing.T) {
	s := NewPlattScaler()
	assert.False(t, s.IsFitted())
	assert.Equal(t, 0.37, s.Calibrate(0.37))
}

func TestPlattScaler_TooFewSamplesLeavesItUnfitted(t *testing.T) {
	s := NewPlattScaler()
	predicted := make([]float64, 10)
	actual := make([]bool, 10)
	for i := range predicted {
		predicted[i] = 0.9
		actual[i] = i == 0
	}
	s.Fit(predicted, actual)
	assert.False(t, s.IsFitted())
}

func TestPlattScaler_FitsAndPullsOverconfidentPredictionsDown(t *testing.T) {
	// Mirrors S5: the system predicts 0.9 for everything, but only 10% of
	// outcomes actually materialize. A fitted scaler should pull 0.9 down
	// toward the true ~10% rate.
	const n = 40
	predicted := make([]float64, n)
	actual := make([]bool, n)
	for i := range predicted {
		predicted[i] = 0.9
		actual[i] = i%10 == 0
	}

	s := NewPlattScaler()
	s.Fit(predicted, actual)

	require := assert.New(t)
	require.True(s.IsFitted())
	require.Less(s.Calibrate(0.9), 0.9, "an overconfident scaler must be pulled down by the fit")
}
