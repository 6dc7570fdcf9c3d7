// Package ncio reads and writes gridded datasets as NetCDF files. It is the
// edge of the system: the processor itself never touches a file.
package ncio

import (
	"fmt"
	"reflect"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/ctessum/sparse"

	"github.com/meteokit/era5proc/internal/era5"
)

// TZ=UTC date --date="1900-01-01 00:00:00" +%s
const unixSecs1900 = -2208988800

// Read loads an ERA5 NetCDF file into memory. Coordinates may be stored as
// float32 or float64; the time axis is either valid_time (seconds since the
// Unix epoch) or the legacy time axis (hours since 1900). Packed variables
// carrying scale_factor/add_offset are unpacked to float64.
func Read(filePath string) (*era5.Dataset, error) {
	nc, err := netcdf.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer nc.Close()

	lat, err := coordValues(nc, era5.DimLat)
	if err != nil {
		return nil, err
	}
	lon, err := coordValues(nc, era5.DimLon)
	if err != nil {
		return nil, err
	}
	times, err := timeValues(nc)
	if err != nil {
		return nil, err
	}

	ds := era5.New(times, lat, lon)
	for _, name := range nc.ListVariables() {
		if isAxis(name) {
			continue
		}
		v, err := readVar(nc, name, len(times), len(lat), len(lon))
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", name, err)
		}
		if v == nil {
			continue
		}
		if err := ds.AddVar(name, v); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

func isAxis(name string) bool {
	switch name {
	case era5.DimTime, era5.DimLat, era5.DimLon, "time", "number", "expver":
		return true
	}
	return false
}

func coordValues(nc api.Group, dimName string) ([]float64, error) {
	vg, err := nc.GetVarGetter(dimName)
	if err != nil {
		return nil, err
	}
	v, err := vg.Values()
	if err != nil {
		return nil, err
	}
	switch vals := v.(type) {
	case []float64:
		return vals, nil
	case []float32:
		out := make([]float64, len(vals))
		for i, f := range vals {
			out[i] = float64(f)
		}
		return out, nil
	}
	return nil, fmt.Errorf("coordinate %q has unsupported type %T", dimName, v)
}

func timeValues(nc api.Group) ([]time.Time, error) {
	if vg, err := nc.GetVarGetter(era5.DimTime); err == nil {
		v, err := vg.Values()
		if err != nil {
			return nil, err
		}
		secs, err := flatten(reflect.ValueOf(v), nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", era5.DimTime, err)
		}
		out := make([]time.Time, len(secs))
		for i, s := range secs {
			out[i] = time.Unix(int64(s), 0).UTC()
		}
		return out, nil
	}

	// Legacy files index time in hours since 1900.
	vg, err := nc.GetVarGetter("time")
	if err != nil {
		return nil, fmt.Errorf("file has neither %s nor time axis: %w", era5.DimTime, err)
	}
	v, err := vg.Values()
	if err != nil {
		return nil, err
	}
	hours, ok := v.([]int32)
	if !ok {
		return nil, fmt.Errorf("time has unsupported type %T", v)
	}
	out := make([]time.Time, len(hours))
	for i, h := range hours {
		out[i] = time.Unix(int64(h)*3600+unixSecs1900, 0).UTC()
	}
	return out, nil
}

func readVar(nc api.Group, name string, nt, nla, nlo int) (*era5.Variable, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, err
	}

	var dims []string
	for _, d := range vg.Dimensions() {
		switch d {
		case era5.DimTime, "time":
			dims = append(dims, era5.DimTime)
		case era5.DimLat, era5.DimLon:
			dims = append(dims, d)
		default:
			// Not on the lat/lon/time grid (e.g. ensemble axes); skip.
			return nil, nil
		}
	}
	if len(dims) < 2 {
		return nil, nil
	}

	v, err := vg.Values()
	if err != nil {
		return nil, err
	}
	elems := make([]float64, 0, int(vg.Len()))
	elems, err = flatten(reflect.ValueOf(v), elems)
	if err != nil {
		return nil, err
	}

	attrs := stringAttrs(vg.Attributes())
	scale, hasScale := floatAttr(vg.Attributes(), "scale_factor")
	offset, hasOffset := floatAttr(vg.Attributes(), "add_offset")
	if hasScale || hasOffset {
		if !hasScale {
			scale = 1
		}
		for i, e := range elems {
			elems[i] = e*scale + offset
		}
	}

	shape := make([]int, len(dims))
	for i, d := range dims {
		switch d {
		case era5.DimTime:
			shape[i] = nt
		case era5.DimLat:
			shape[i] = nla
		case era5.DimLon:
			shape[i] = nlo
		}
	}
	data := sparseFrom(shape, elems)
	if data == nil {
		return nil, fmt.Errorf("have %d values, want %v", len(elems), shape)
	}
	return &era5.Variable{Dims: dims, Data: data, Attrs: attrs}, nil
}

func sparseFrom(shape []int, elems []float64) *sparse.DenseArray {
	a := sparse.ZerosDense(shape...)
	if len(a.Elements) != len(elems) {
		return nil
	}
	copy(a.Elements, elems)
	return a
}

// flatten appends the numeric leaves of arbitrarily nested slices to out in
// row-major order.
func flatten(v reflect.Value, out []float64) ([]float64, error) {
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			var err error
			out, err = flatten(v.Index(i), out)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	case reflect.Float32, reflect.Float64:
		return append(out, v.Float()), nil
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return append(out, float64(v.Int())), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return append(out, float64(v.Uint())), nil
	}
	return nil, fmt.Errorf("unsupported element type %s", v.Kind())
}

func stringAttrs(am api.AttributeMap) map[string]string {
	attrs := map[string]string{}
	if am == nil {
		return attrs
	}
	for _, k := range am.Keys() {
		if v, has := am.Get(k); has {
			if s, ok := v.(string); ok {
				attrs[k] = s
			}
		}
	}
	return attrs
}

func floatAttr(am api.AttributeMap, key string) (float64, bool) {
	if am == nil {
		return 0, false
	}
	v, has := am.Get(key)
	if !has {
		return 0, false
	}
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	case []float64:
		if len(f) == 1 {
			return f[0], true
		}
	case []float32:
		if len(f) == 1 {
			return float64(f[0]), true
		}
	}
	return 0, false
}
