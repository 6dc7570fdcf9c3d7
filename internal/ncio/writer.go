package ncio

import (
	"fmt"
	"os"

	"github.com/ctessum/cdf"

	"github.com/meteokit/era5proc/internal/era5"
)

// Write stores a dataset as a NetCDF classic file. Data variables are written
// as float32, coordinates as float64, and valid_time as double seconds since
// the Unix epoch. Variable attributes are carried across.
func Write(filePath string, ds *era5.Dataset) error {
	h := cdf.NewHeader(
		[]string{era5.DimTime, era5.DimLat, era5.DimLon},
		[]int{len(ds.Times), len(ds.Lat), len(ds.Lon)})
	h.AddAttribute("", "comment", "Processed ERA5 meteorology subset")

	h.AddVariable(era5.DimTime, []string{era5.DimTime}, []float64{0})
	h.AddAttribute(era5.DimTime, "units", "seconds since 1970-01-01")
	h.AddVariable(era5.DimLat, []string{era5.DimLat}, []float64{0})
	h.AddAttribute(era5.DimLat, "units", "degrees_north")
	h.AddVariable(era5.DimLon, []string{era5.DimLon}, []float64{0})
	h.AddAttribute(era5.DimLon, "units", "degrees_east")

	for _, name := range ds.VarNames() {
		v, _ := ds.Var(name)
		h.AddVariable(name, v.Dims, []float32{0})
		for _, k := range []string{"long_name", "units"} {
			if a := v.Attrs[k]; a != "" {
				h.AddAttribute(name, k, a)
			}
		}
	}

	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("defining netcdf header: %v", err)
	}

	ff, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h) // writes the header to ff
	if err != nil {
		return err
	}

	secs := make([]float64, len(ds.Times))
	for i, t := range ds.Times {
		secs[i] = float64(t.Unix())
	}
	if err := writeCoord(f, era5.DimTime, secs); err != nil {
		return err
	}
	if err := writeCoord(f, era5.DimLat, ds.Lat); err != nil {
		return err
	}
	if err := writeCoord(f, era5.DimLon, ds.Lon); err != nil {
		return err
	}

	for _, name := range ds.VarNames() {
		v, _ := ds.Var(name)
		if err := writeVar(f, name, v.Data.Elements); err != nil {
			return err
		}
	}
	return cdf.UpdateNumRecs(ff)
}

func writeCoord(f *cdf.File, name string, vals []float64) error {
	end := f.Header.Lengths(name)
	w := f.Writer(name, make([]int, len(end)), end)
	if _, err := w.Write(vals); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func writeVar(f *cdf.File, name string, elems []float64) error {
	vals := make([]float32, len(elems))
	for i, e := range elems {
		vals[i] = float32(e)
	}
	end := f.Header.Lengths(name)
	w := f.Writer(name, make([]int, len(end)), end)
	if _, err := w.Write(vals); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}
