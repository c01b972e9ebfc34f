package ext

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want Summary
	}{
		{
			name: "single value",
			in:   []float64{5},
			want: Summary{Count: 1, Mean: 5, Median: 5, Min: 5, Max: 5},
		},
		{
			name: "sample",
			in:   []float64{2, 4, 4, 4, 5, 5, 7, 9},
			want: Summary{Count: 8, Mean: 5, Median: 4, Variance: 32.0 / 7, StdDev: math.Sqrt(32.0 / 7), Min: 2, Max: 9},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Summarize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Count, got.Count)
			assert.InDelta(t, tt.want.Mean, got.Mean, 1e-9)
			assert.InDelta(t, tt.want.Median, got.Median, 1e-9)
			assert.InDelta(t, tt.want.Variance, got.Variance, 1e-9)
			assert.InDelta(t, tt.want.StdDev, got.StdDev, 1e-9)
			assert.Equal(t, tt.want.Min, got.Min)
			assert.Equal(t, tt.want.Max, got.Max)
		})
	}

	_, err := Summarize(nil)
	assert.ErrorIs(t, err, errNoSamples)
	_, err = Summarize([]float64{1, math.NaN()})
	assert.Error(t, err)
}

func TestQuantileAndCorrelation(t *testing.T) {
	q, err := Quantile([]float64{4, 1, 3, 2}, 1)
	require.NoError(t, err)
	assert.Equal(t, 4.0, q)

	_, err = Quantile([]float64{1}, 1.5)
	assert.Error(t, err)

	r, err := Correlation([]float64{1, 2, 3}, []float64{2, 4, 6})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r, 1e-9)

	_, err = Correlation([]float64{1, 2}, []float64{1})
	assert.Error(t, err)
}

func TestStatsFromGuest(t *testing.T) {
	rt := newRuntime(t, NewStats())

	mean := eval[float64](t, rt, `host.stats.summary([1, 2, 3, 4]).mean`)
	assert.Equal(t, 2.5, mean)

	assert.Equal(t, "TypeError:", caught(t, rt, `host.stats.summary([])`))
	assert.Equal(t, "TypeError:", caught(t, rt, `host.stats.quantile([1, 2], 2)`))
}
