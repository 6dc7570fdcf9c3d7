package main

import (
	"testing"
	"time"

	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteokit/era5proc/internal/era5"
)

func windDataset(t *testing.T, names ...string) *era5.Dataset {
	t.Helper()
	ds := era5.New(
		[]time.Time{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		[]float64{50}, []float64{10},
	)
	for _, name := range names {
		require.NoError(t, ds.AddVar(name, &era5.Variable{
			Dims: []string{era5.DimTime, era5.DimLat, era5.DimLon},
			Data: sparse.ZerosDense(1, 1, 1),
		}))
	}
	return ds
}

func TestShouldDeriveWindSpeed(t *testing.T) {
	// On by default when both components are present.
	assert.True(t, shouldDeriveWindSpeed(true, windDataset(t, "u10", "v10", "t2m")))

	// Missing components skip the derivation rather than failing the run.
	assert.False(t, shouldDeriveWindSpeed(true, windDataset(t, "u10", "t2m")))
	assert.False(t, shouldDeriveWindSpeed(true, windDataset(t, "v10")))
	assert.False(t, shouldDeriveWindSpeed(true, windDataset(t)))

	// -windSpeed=false is an explicit override.
	assert.False(t, shouldDeriveWindSpeed(false, windDataset(t, "u10", "v10")))
}
