package era5_test

import (
	"math"
	"testing"
	"time"

	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteokit/era5proc/internal/era5"
)

// testDataset builds a 4x4x4 grid with one sample per day of January 1-4 at
// 12:00 UTC, latitude descending, and longitudes on the 0-360 convention.
// Values encode their original indices as 100*t + 10*lat + lon so tests can
// follow data through reordering and cropping.
func testDataset(t *testing.T) *era5.Dataset {
	t.Helper()
	times := make([]time.Time, 4)
	for i := range times {
		times[i] = time.Date(2024, 1, i+1, 12, 0, 0, 0, time.UTC)
	}
	ds := era5.New(times, []float64{60, 50, 40, 30}, []float64{0, 90, 180, 270})

	add3 := func(name string, f func(ti, la, lo int) float64, attrs map[string]string) {
		v := &era5.Variable{
			Dims:  []string{era5.DimTime, era5.DimLat, era5.DimLon},
			Data:  sparse.ZerosDense(4, 4, 4),
			Attrs: attrs,
		}
		for ti := 0; ti < 4; ti++ {
			for la := 0; la < 4; la++ {
				for lo := 0; lo < 4; lo++ {
					v.Data.Set(f(ti, la, lo), ti, la, lo)
				}
			}
		}
		require.NoError(t, ds.AddVar(name, v))
	}
	add3("u10", func(ti, la, lo int) float64 { return float64(100*ti + 10*la + lo) },
		map[string]string{"units": "m s-1", "long_name": "10 metre U wind component"})
	add3("v10", func(ti, la, lo int) float64 { return float64(2*ti + la + 3*lo) },
		map[string]string{"units": "m s-1"})
	add3("t2m", func(ti, la, lo int) float64 { return 250 + float64(ti+la+lo) },
		map[string]string{"units": "K"})

	lsm := &era5.Variable{
		Dims:  []string{era5.DimLat, era5.DimLon},
		Data:  sparse.ZerosDense(4, 4),
		Attrs: map[string]string{"long_name": "Land-sea mask"},
	}
	for la := 0; la < 4; la++ {
		for lo := 0; lo < 4; lo++ {
			lsm.Data.Set(float64(10*la+lo), la, lo)
		}
	}
	require.NoError(t, ds.AddVar("lsm", lsm))
	return ds
}

func wideOptions() era5.Options {
	return era5.Options{
		Variables:        era5.Keep("u10", "v10", "t2m", "lsm"),
		Start:            time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:              time.Date(2024, 1, 4, 23, 59, 59, 0, time.UTC),
		Bounds:           era5.Bounds{LatMin: -90, LatMax: 90, LonMin: -180, LonMax: 180},
		ConvertLongitude: true,
		CopyAttributes:   true,
	}
}

func processed(t *testing.T, opts era5.Options) *era5.Processor {
	t.Helper()
	p := era5.NewProcessor(testDataset(t), opts)
	require.NoError(t, p.ProcessData())
	return p
}

func TestProcessData(t *testing.T) {
	opts := wideOptions()
	opts.Start = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	opts.End = time.Date(2024, 1, 3, 23, 59, 59, 0, time.UTC)
	opts.Bounds = era5.Bounds{LatMin: 35, LatMax: 55, LonMin: -100, LonMax: 0}

	p := processed(t, opts)
	ds, err := p.ProcessedData()
	require.NoError(t, err)

	// Inclusive time window.
	require.Len(t, ds.Times, 2)
	for _, ts := range ds.Times {
		assert.False(t, ts.Before(opts.Start))
		assert.False(t, ts.After(opts.End))
	}

	// Longitude converted, sorted, and cropped; latitude cropped with the
	// descending axis order preserved.
	assert.Equal(t, []float64{-90, 0}, ds.Lon)
	assert.Equal(t, []float64{50, 40}, ds.Lat)
	for i, lo := range ds.Lon {
		assert.GreaterOrEqual(t, lo, -180.0)
		assert.Less(t, lo, 180.0)
		if i > 0 {
			assert.GreaterOrEqual(t, lo, ds.Lon[i-1])
		}
	}

	assert.Equal(t, []string{"u10", "v10", "t2m", "lsm"}, ds.VarNames())

	// Data followed its coordinates: processed (t=0, lat=50, lon=-90) is the
	// original (t=1, la=1, lo=3).
	u, ok := ds.Var("u10")
	require.True(t, ok)
	assert.Equal(t, []int{2, 2, 2}, u.Data.Shape)
	assert.Equal(t, float64(100*1+10*1+3), u.Data.Get(0, 0, 0))
	assert.Equal(t, float64(100*2+10*2+0), u.Data.Get(1, 1, 1))

	// Static fields crop along lat/lon only.
	lsm, ok := ds.Var("lsm")
	require.True(t, ok)
	assert.Equal(t, []int{2, 2}, lsm.Data.Shape)
	assert.Equal(t, float64(10*1+3), lsm.Data.Get(0, 0))
}

func TestProcessDataWithoutLongitudeConversion(t *testing.T) {
	opts := wideOptions()
	opts.ConvertLongitude = false
	opts.Bounds = era5.Bounds{LatMin: -90, LatMax: 90, LonMin: 0, LonMax: 180}

	p := processed(t, opts)
	ds, err := p.ProcessedData()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 90, 180}, ds.Lon)
}

func TestProcessDataErrors(t *testing.T) {
	ds := testDataset(t)

	opts := wideOptions()
	opts.Variables = era5.Keep("u10", "nope")
	err := era5.NewProcessor(ds, opts).ProcessData()
	require.ErrorIs(t, err, era5.ErrVarNotFound)

	opts = wideOptions()
	opts.Variables = era5.Selection{}
	err = era5.NewProcessor(ds, opts).ProcessData()
	require.ErrorIs(t, err, era5.ErrInvalidOptions)

	opts = wideOptions()
	opts.Start, opts.End = opts.End, opts.Start
	err = era5.NewProcessor(ds, opts).ProcessData()
	require.ErrorIs(t, err, era5.ErrInvalidOptions)

	opts = wideOptions()
	opts.Bounds.LatMin, opts.Bounds.LatMax = 55, 35
	err = era5.NewProcessor(ds, opts).ProcessData()
	require.ErrorIs(t, err, era5.ErrInvalidOptions)
}

func TestProcessDataDuplicateOutputNames(t *testing.T) {
	ds := testDataset(t)

	// Two sources renamed onto the same target.
	opts := wideOptions()
	opts.Variables = era5.RenameTo(
		era5.Rename{From: "u10", To: "wind"},
		era5.Rename{From: "v10", To: "wind"},
	)
	err := era5.NewProcessor(ds, opts).ProcessData()
	require.ErrorIs(t, err, era5.ErrInvalidOptions)

	// The same source selected twice.
	opts = wideOptions()
	opts.Variables = era5.Keep("u10", "u10")
	err = era5.NewProcessor(ds, opts).ProcessData()
	require.ErrorIs(t, err, era5.ErrInvalidOptions)

	// A rename target colliding with a kept name.
	opts = wideOptions()
	opts.Variables = era5.RenameTo(
		era5.Rename{From: "u10", To: "v10"},
		era5.Rename{From: "v10", To: "v10"},
	)
	err = era5.NewProcessor(ds, opts).ProcessData()
	require.ErrorIs(t, err, era5.ErrInvalidOptions)
}

func TestProcessDataRename(t *testing.T) {
	opts := wideOptions()
	opts.Variables = era5.RenameTo(
		era5.Rename{From: "u10", To: "u"},
		era5.Rename{From: "v10", To: "v"},
	)

	p := processed(t, opts)
	ds, err := p.ProcessedData()
	require.NoError(t, err)
	assert.Equal(t, []string{"u", "v"}, ds.VarNames())
}

func TestMethodsRequireProcessedState(t *testing.T) {
	p := era5.NewProcessor(testDataset(t), wideOptions())

	_, err := p.ProcessedData()
	require.ErrorIs(t, err, era5.ErrNotProcessed)
	_, err = p.ComponentsAtTimestep(0, era5.Keep("u10"), true)
	require.ErrorIs(t, err, era5.ErrNotProcessed)
	_, err = p.CalculateWindSpeed("u10", "v10", "wind_speed")
	require.ErrorIs(t, err, era5.ErrNotProcessed)
	_, err = p.Subsample(2)
	require.ErrorIs(t, err, era5.ErrNotProcessed)
}

func TestComponentsAtTimestep(t *testing.T) {
	p := processed(t, wideOptions())
	ds, err := p.ProcessedData()
	require.NoError(t, err)

	out, err := p.ComponentsAtTimestep(1, era5.Keep("u10", "lsm"), true)
	require.NoError(t, err)
	require.Len(t, out, 4)

	u := out["u10"]
	require.NotNil(t, u)
	assert.Equal(t, []int{4, 4}, u.Shape)
	// Processed lon order is [-180, -90, 0, 90] = original columns [2 3 0 1].
	assert.Equal(t, float64(100*1+10*0+2), u.Get(0, 0))

	lsm := out["lsm"]
	require.NotNil(t, lsm)
	assert.Equal(t, []int{4, 4}, lsm.Shape)

	assert.Equal(t, ds.Lat, out["lat"].Elements)
	assert.Equal(t, ds.Lon, out["long"].Elements)
}

func TestComponentsAtTimestepWithoutCoords(t *testing.T) {
	p := processed(t, wideOptions())

	out, err := p.ComponentsAtTimestep(0, era5.Keep("t2m"), false)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NotNil(t, out["t2m"])
}

func TestComponentsAtTimestepErrors(t *testing.T) {
	p := processed(t, wideOptions())

	// One past the end and negative indices are both bounds errors.
	_, err := p.ComponentsAtTimestep(4, era5.Keep("u10"), true)
	require.ErrorIs(t, err, era5.ErrTimestepOutOfRange)
	_, err = p.ComponentsAtTimestep(-1, era5.Keep("u10"), true)
	require.ErrorIs(t, err, era5.ErrTimestepOutOfRange)

	out, err := p.ComponentsAtTimestep(0, era5.Keep("u10", "absent"), true)
	require.ErrorIs(t, err, era5.ErrVarNotFound)
	assert.Nil(t, out)

	_, err = p.ComponentsAtTimestep(0, era5.Selection{}, true)
	require.ErrorIs(t, err, era5.ErrInvalidOptions)
}

func TestCalculateWindSpeed(t *testing.T) {
	p := processed(t, wideOptions())
	before, err := p.ProcessedData()
	require.NoError(t, err)

	got, err := p.CalculateWindSpeed("u10", "v10", "wind_speed")
	require.NoError(t, err)

	wind, ok := got.Var("wind_speed")
	require.True(t, ok)
	u, _ := got.Var("u10")
	v, _ := got.Var("v10")
	for i := range wind.Data.Elements {
		want := math.Sqrt(u.Data.Elements[i]*u.Data.Elements[i] + v.Data.Elements[i]*v.Data.Elements[i])
		assert.InDelta(t, want, wind.Data.Elements[i], 1e-12)
	}

	assert.Equal(t, "Wind Speed calculated from u10 and v10", wind.Attrs["long_name"])
	assert.Equal(t, "m s-1", wind.Attrs["units"]) // copied from u10

	// The snapshot handed out earlier is not aliased by the update.
	assert.False(t, before.Has("wind_speed"))
	after, err := p.ProcessedData()
	require.NoError(t, err)
	assert.Same(t, got, after)
}

func TestCalculateWindSpeedDefaultUnits(t *testing.T) {
	// Components without a units attribute fall back to the ERA5 default.
	ds := era5.New(
		[]time.Time{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		[]float64{50}, []float64{10},
	)
	for _, name := range []string{"u100", "v100"} {
		v := &era5.Variable{
			Dims: []string{era5.DimTime, era5.DimLat, era5.DimLon},
			Data: sparse.ZerosDense(1, 1, 1),
		}
		v.Data.Set(3, 0, 0, 0)
		require.NoError(t, ds.AddVar(name, v))
	}

	opts := era5.Options{
		Variables:      era5.Keep("u100", "v100"),
		Start:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:            time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Bounds:         era5.Bounds{LatMin: -90, LatMax: 90, LonMin: -180, LonMax: 180},
		CopyAttributes: true,
	}
	p := era5.NewProcessor(ds, opts)
	require.NoError(t, p.ProcessData())

	got, err := p.CalculateWindSpeed("u100", "v100", "wind_speed")
	require.NoError(t, err)
	wind, _ := got.Var("wind_speed")
	assert.Equal(t, "Wind Speed calculated from u100 and v100", wind.Attrs["long_name"])
	assert.Equal(t, "m s**-1", wind.Attrs["units"])
	assert.InDelta(t, math.Sqrt(18), wind.Data.Get(0, 0, 0), 1e-12)
}

func TestCalculateWindSpeedWithoutAttributes(t *testing.T) {
	opts := wideOptions()
	opts.CopyAttributes = false

	p := processed(t, opts)
	got, err := p.CalculateWindSpeed("u10", "v10", "wind_speed")
	require.NoError(t, err)
	wind, _ := got.Var("wind_speed")
	assert.Empty(t, wind.Attrs)
}

func TestCalculateWindSpeedMissingComponent(t *testing.T) {
	p := processed(t, wideOptions())

	_, err := p.CalculateWindSpeed("u10", "v100", "wind_speed")
	require.ErrorIs(t, err, era5.ErrInvalidOptions)

	// A failed call leaves the processed dataset unchanged.
	ds, err := p.ProcessedData()
	require.NoError(t, err)
	assert.False(t, ds.Has("wind_speed"))
	assert.Equal(t, []string{"u10", "v10", "t2m", "lsm"}, ds.VarNames())
}

func TestCalculateWindSpeedOverwrites(t *testing.T) {
	p := processed(t, wideOptions())

	_, err := p.CalculateWindSpeed("u10", "v10", "wind_speed")
	require.NoError(t, err)
	got, err := p.CalculateWindSpeed("v10", "u10", "wind_speed")
	require.NoError(t, err)

	assert.Equal(t, []string{"u10", "v10", "t2m", "lsm", "wind_speed"}, got.VarNames())
	wind, _ := got.Var("wind_speed")
	assert.Equal(t, "Wind Speed calculated from v10 and u10", wind.Attrs["long_name"])
}

func TestSubsample(t *testing.T) {
	p := processed(t, wideOptions())
	ds, err := p.ProcessedData()
	require.NoError(t, err)
	require.Len(t, ds.Lat, 4)
	require.Len(t, ds.Lon, 4)

	sub, err := p.Subsample(2)
	require.NoError(t, err)

	// ceil(4/2) points per axis, labels matching indices 0, 2, ...
	assert.Equal(t, []float64{ds.Lat[0], ds.Lat[2]}, sub.Lat)
	assert.Equal(t, []float64{ds.Lon[0], ds.Lon[2]}, sub.Lon)

	u, _ := sub.Var("u10")
	full, _ := ds.Var("u10")
	assert.Equal(t, []int{4, 2, 2}, u.Data.Shape)
	assert.Equal(t, full.Data.Get(3, 2, 2), u.Data.Get(3, 1, 1))

	lsm, _ := sub.Var("lsm")
	assert.Equal(t, []int{2, 2}, lsm.Data.Shape)

	// A step that does not divide the axis length still rounds up.
	sub3, err := p.Subsample(3)
	require.NoError(t, err)
	assert.Equal(t, []float64{ds.Lat[0], ds.Lat[3]}, sub3.Lat)

	// The processed dataset is untouched.
	ds, err = p.ProcessedData()
	require.NoError(t, err)
	assert.Len(t, ds.Lat, 4)
	assert.Len(t, ds.Lon, 4)
}

func TestSubsampleBadStep(t *testing.T) {
	p := processed(t, wideOptions())

	_, err := p.Subsample(0)
	require.ErrorIs(t, err, era5.ErrInvalidOptions)
	_, err = p.Subsample(-2)
	require.ErrorIs(t, err, era5.ErrInvalidOptions)
}

func TestProcessDataRecomputesFromSource(t *testing.T) {
	p := processed(t, wideOptions())
	_, err := p.CalculateWindSpeed("u10", "v10", "wind_speed")
	require.NoError(t, err)

	require.NoError(t, p.ProcessData())
	ds, err := p.ProcessedData()
	require.NoError(t, err)
	assert.False(t, ds.Has("wind_speed"))
}

func TestProcessorCopiesItsSource(t *testing.T) {
	src := testDataset(t)
	p := era5.NewProcessor(src, wideOptions())

	// Mutating the caller's dataset after construction has no effect.
	v, _ := src.Var("u10")
	for i := range v.Data.Elements {
		v.Data.Elements[i] = -1
	}
	require.NoError(t, p.ProcessData())
	ds, err := p.ProcessedData()
	require.NoError(t, err)
	u, _ := ds.Var("u10")
	// Converted column 2 is the original column 0, value 100*0+10*0+0.
	assert.Equal(t, 0.0, u.Data.Get(0, 0, 2))
}

func TestSelectionNames(t *testing.T) {
	sel := era5.Keep("a", "b")
	assert.Equal(t, []string{"a", "b"}, sel.Names())

	sel = era5.RenameTo(era5.Rename{From: "x", To: "y"})
	assert.Equal(t, []string{"x"}, sel.Names())
}
