// Package era5 holds an in-memory labeled representation of an ERA5 grid and
// the processor that filters, crops, and derives fields from it.
package era5

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ctessum/sparse"
)

// Dimension names as they appear in ERA5 files.
const (
	DimTime = "valid_time"
	DimLat  = "latitude"
	DimLon  = "longitude"
)

// Variable is one named data field of a dataset. Data is row-major with axes
// ordered as in Dims, which is a subset of {valid_time, latitude, longitude}
// in that order.
type Variable struct {
	Dims  []string
	Data  *sparse.DenseArray
	Attrs map[string]string
}

// Copy returns a deep copy of the variable.
func (v *Variable) Copy() *Variable {
	attrs := make(map[string]string, len(v.Attrs))
	for k, a := range v.Attrs {
		attrs[k] = a
	}
	return &Variable{
		Dims:  append([]string{}, v.Dims...),
		Data:  v.Data.Copy(),
		Attrs: attrs,
	}
}

// Dataset is a collection of named gridded variables sharing latitude,
// longitude, and time coordinate arrays. Latitude is typically stored
// descending (north to south), matching the ERA5 grid ordering.
type Dataset struct {
	Times []time.Time
	Lat   []float64
	Lon   []float64

	names []string
	vars  map[string]*Variable
}

// New creates an empty dataset with the given coordinate arrays.
func New(times []time.Time, lat, lon []float64) *Dataset {
	return &Dataset{
		Times: times,
		Lat:   lat,
		Lon:   lon,
		vars:  map[string]*Variable{},
	}
}

// AddVar adds a variable to the dataset, overwriting any variable already
// stored under the same name. The data shape must match the dataset's
// coordinate lengths for the variable's dimensions.
func (d *Dataset) AddVar(name string, v *Variable) error {
	if len(v.Dims) != len(v.Data.Shape) {
		return fmt.Errorf("variable %q: %d dimensions but rank-%d data", name, len(v.Dims), len(v.Data.Shape))
	}
	for i, dim := range v.Dims {
		want, err := d.dimLen(dim)
		if err != nil {
			return fmt.Errorf("variable %q: %w", name, err)
		}
		if v.Data.Shape[i] != want {
			return fmt.Errorf("variable %q: axis %s has length %d, dataset has %d", name, dim, v.Data.Shape[i], want)
		}
	}
	if _, ok := d.vars[name]; !ok {
		d.names = append(d.names, name)
	}
	d.vars[name] = v
	return nil
}

func (d *Dataset) dimLen(dim string) (int, error) {
	switch dim {
	case DimTime:
		return len(d.Times), nil
	case DimLat:
		return len(d.Lat), nil
	case DimLon:
		return len(d.Lon), nil
	}
	return 0, fmt.Errorf("unknown dimension %q", dim)
}

// Var returns the named variable, if present.
func (d *Dataset) Var(name string) (*Variable, bool) {
	v, ok := d.vars[name]
	return v, ok
}

// Has reports whether the dataset contains the named variable.
func (d *Dataset) Has(name string) bool {
	_, ok := d.vars[name]
	return ok
}

// VarNames returns the variable names in insertion order.
func (d *Dataset) VarNames() []string {
	return append([]string{}, d.names...)
}

// Copy returns a deep copy of the dataset.
func (d *Dataset) Copy() *Dataset {
	out := New(
		append([]time.Time{}, d.Times...),
		append([]float64{}, d.Lat...),
		append([]float64{}, d.Lon...),
	)
	for _, name := range d.names {
		out.names = append(out.names, name)
		out.vars[name] = d.vars[name].Copy()
	}
	return out
}

// Summary returns summary information about the dataset suitable for logging.
func (d *Dataset) Summary() []any {
	return []any{
		"dims", []string{DimTime, DimLat, DimLon},
		"vars", d.VarNames(),
		"tsCnt", len(d.Times),
		"laCnt", len(d.Lat),
		"loCnt", len(d.Lon),
	}
}

// SelTimeRange returns a new dataset restricted to times t with
// start <= t <= end, bounds inclusive.
func (d *Dataset) SelTimeRange(start, end time.Time) *Dataset {
	var idx []int
	for i, t := range d.Times {
		if !t.Before(start) && !t.After(end) {
			idx = append(idx, i)
		}
	}
	return d.takeDim(DimTime, idx)
}

// SelVars returns a new dataset containing only the named variables, in the
// given order. A missing name is reported as ErrVarNotFound.
func (d *Dataset) SelVars(names []string) (*Dataset, error) {
	out := New(
		append([]time.Time{}, d.Times...),
		append([]float64{}, d.Lat...),
		append([]float64{}, d.Lon...),
	)
	for _, name := range names {
		v, ok := d.vars[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrVarNotFound, name)
		}
		out.names = append(out.names, name)
		out.vars[name] = v.Copy()
	}
	return out, nil
}

// Rename returns a new dataset with variables renamed according to mapping.
// Names absent from the mapping are kept as-is.
func (d *Dataset) Rename(mapping map[string]string) *Dataset {
	out := New(
		append([]time.Time{}, d.Times...),
		append([]float64{}, d.Lat...),
		append([]float64{}, d.Lon...),
	)
	for _, name := range d.names {
		newName := name
		if to, ok := mapping[name]; ok && to != "" {
			newName = to
		}
		out.names = append(out.names, newName)
		out.vars[newName] = d.vars[name].Copy()
	}
	return out
}

// NormalizeLongitude returns a new dataset with longitudes remapped from
// [0,360) to [-180,180) and the longitude axis re-sorted ascending.
func (d *Dataset) NormalizeLongitude() *Dataset {
	wrapped := make([]float64, len(d.Lon))
	for i, lon := range d.Lon {
		w := math.Mod(lon+180, 360)
		if w < 0 {
			w += 360
		}
		wrapped[i] = w - 180
	}
	order := make([]int, len(wrapped))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return wrapped[order[a]] < wrapped[order[b]]
	})
	out := d.takeDim(DimLon, order)
	for i, j := range order {
		out.Lon[i] = wrapped[j]
	}
	return out
}

// CropLat returns a new dataset keeping latitudes within [min, max], axis
// order preserved.
func (d *Dataset) CropLat(min, max float64) *Dataset {
	var idx []int
	for i, la := range d.Lat {
		if la >= min && la <= max {
			idx = append(idx, i)
		}
	}
	return d.takeDim(DimLat, idx)
}

// CropLon returns a new dataset keeping longitudes within [min, max], axis
// order preserved.
func (d *Dataset) CropLon(min, max float64) *Dataset {
	var idx []int
	for i, lo := range d.Lon {
		if lo >= min && lo <= max {
			idx = append(idx, i)
		}
	}
	return d.takeDim(DimLon, idx)
}

// Subsample returns a new dataset with every step-th latitude and longitude
// sample, coordinate arrays reassigned to match the sparser grid. The caller
// validates step.
func (d *Dataset) Subsample(step int) *Dataset {
	out := d.takeDim(DimLat, stride(len(d.Lat), step))
	return out.takeDim(DimLon, stride(len(out.Lon), step))
}

func stride(n, step int) []int {
	var idx []int
	for i := 0; i < n; i += step {
		idx = append(idx, i)
	}
	return idx
}

// SliceTime returns the 2-D (latitude x longitude) values of the named
// variable at time index i. A (lat, lon) variable without a time axis is
// returned as-is.
func (d *Dataset) SliceTime(name string, i int) (*sparse.DenseArray, error) {
	v, ok := d.vars[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrVarNotFound, name)
	}
	ax := axisOf(v.Dims, DimTime)
	if ax < 0 {
		return v.Data.Copy(), nil
	}
	if i < 0 || i >= len(d.Times) {
		return nil, fmt.Errorf("%w: %d", ErrTimestepOutOfRange, i)
	}
	plane := take(v.Data, ax, []int{i})
	out := sparse.ZerosDense(len(d.Lat), len(d.Lon))
	copy(out.Elements, plane.Elements)
	return out, nil
}

// LatArray returns the latitude coordinates as a 1-D array.
func (d *Dataset) LatArray() *sparse.DenseArray {
	out := sparse.ZerosDense(len(d.Lat))
	copy(out.Elements, d.Lat)
	return out
}

// LonArray returns the longitude coordinates as a 1-D array.
func (d *Dataset) LonArray() *sparse.DenseArray {
	out := sparse.ZerosDense(len(d.Lon))
	copy(out.Elements, d.Lon)
	return out
}

// takeDim returns a new dataset keeping the given indices, in the given
// order, along one dimension. Variables lacking that dimension are copied
// unchanged.
func (d *Dataset) takeDim(dim string, idx []int) *Dataset {
	out := New(
		append([]time.Time{}, d.Times...),
		append([]float64{}, d.Lat...),
		append([]float64{}, d.Lon...),
	)
	switch dim {
	case DimTime:
		out.Times = pick(d.Times, idx)
	case DimLat:
		out.Lat = pick(d.Lat, idx)
	case DimLon:
		out.Lon = pick(d.Lon, idx)
	}
	for _, name := range d.names {
		v := d.vars[name]
		nv := v.Copy()
		if ax := axisOf(v.Dims, dim); ax >= 0 {
			nv.Data = take(v.Data, ax, idx)
		}
		out.names = append(out.names, name)
		out.vars[name] = nv
	}
	return out
}

func pick[T any](s []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = s[j]
	}
	return out
}

func axisOf(dims []string, dim string) int {
	for i, d := range dims {
		if d == dim {
			return i
		}
	}
	return -1
}

// take copies the given indices along one axis of a row-major array into a
// new array.
func take(a *sparse.DenseArray, axis int, idx []int) *sparse.DenseArray {
	shape := append([]int{}, a.Shape...)
	shape[axis] = len(idx)
	out := sparse.ZerosDense(shape...)

	outer, inner := 1, 1
	for _, n := range a.Shape[:axis] {
		outer *= n
	}
	for _, n := range a.Shape[axis+1:] {
		inner *= n
	}
	srcLen := a.Shape[axis]
	for o := 0; o < outer; o++ {
		for k, j := range idx {
			src := (o*srcLen + j) * inner
			dst := (o*len(idx) + k) * inner
			copy(out.Elements[dst:dst+inner], a.Elements[src:src+inner])
		}
	}
	return out
}
