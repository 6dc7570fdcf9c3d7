package era5

import (
	"fmt"
	"math"
	"time"

	"github.com/ctessum/sparse"
)

// Rename maps a source variable name to the name it gets in the processed
// dataset.
type Rename struct {
	From, To string
}

// Selection names the variables an operation works on. Build one with Keep or
// RenameTo.
type Selection struct {
	names  []string
	rename map[string]string
}

// Keep selects variables by name, keeping their names unchanged.
func Keep(names ...string) Selection {
	return Selection{names: names}
}

// RenameTo selects variables by source name and renames them in the output.
func RenameTo(pairs ...Rename) Selection {
	sel := Selection{rename: make(map[string]string, len(pairs))}
	for _, p := range pairs {
		sel.names = append(sel.names, p.From)
		sel.rename[p.From] = p.To
	}
	return sel
}

// Names returns the selected source variable names in order.
func (s Selection) Names() []string {
	return append([]string{}, s.names...)
}

func (s Selection) empty() bool { return len(s.names) == 0 }

// Bounds is a rectangular latitude/longitude window used to crop a dataset.
type Bounds struct {
	LatMin, LatMax float64
	LonMin, LonMax float64
}

// Options configures a Processor. The value is copied at construction and
// never changes afterwards.
type Options struct {
	// Variables to keep in the processed dataset, optionally renamed.
	Variables Selection
	// Start and End bound the time window, both inclusive.
	Start, End time.Time
	// Bounds is the spatial crop window.
	Bounds Bounds
	// ConvertLongitude remaps longitudes from [0,360) to [-180,180) and
	// re-sorts the axis ascending before cropping.
	ConvertLongitude bool
	// CopyAttributes controls whether derived variables get descriptive
	// metadata attached.
	CopyAttributes bool
}

func (o Options) validate() error {
	if o.Variables.empty() {
		return fmt.Errorf("%w: no variables selected", ErrInvalidOptions)
	}
	seen := make(map[string]bool, len(o.Variables.names))
	for _, name := range o.Variables.names {
		out := name
		if to, ok := o.Variables.rename[name]; ok && to != "" {
			out = to
		}
		if seen[out] {
			return fmt.Errorf("%w: duplicate output variable %q", ErrInvalidOptions, out)
		}
		seen[out] = true
	}
	if o.End.Before(o.Start) {
		return fmt.Errorf("%w: date range ends (%s) before it starts (%s)",
			ErrInvalidOptions, o.End.Format(time.DateOnly), o.Start.Format(time.DateOnly))
	}
	if o.Bounds.LatMax < o.Bounds.LatMin {
		return fmt.Errorf("%w: latitude range [%g, %g] is reversed", ErrInvalidOptions, o.Bounds.LatMin, o.Bounds.LatMax)
	}
	if o.Bounds.LonMax < o.Bounds.LonMin {
		return fmt.Errorf("%w: longitude range [%g, %g] is reversed", ErrInvalidOptions, o.Bounds.LonMin, o.Bounds.LonMax)
	}
	return nil
}

// Processor filters, crops, and derives fields from a gridded dataset
// according to a fixed set of options. It owns its dataset copies
// exclusively: the source passed to NewProcessor is copied in, and every
// derived dataset handed out is a fresh snapshot.
//
// A processor starts unprocessed. ProcessData produces the processed dataset;
// the other methods require it and fail with ErrNotProcessed before then.
type Processor struct {
	source *Dataset
	opts   Options
	loaded *Dataset
}

// NewProcessor creates a processor over a copy of ds.
func NewProcessor(ds *Dataset, opts Options) *Processor {
	return &Processor{source: ds.Copy(), opts: opts}
}

// ProcessData filters the source dataset by date, reduces it to the selected
// variables, optionally converts and re-sorts longitude, and crops it to the
// spatial window. The fully materialized result becomes the processed
// dataset; calling ProcessData again recomputes it from the pristine source.
func (p *Processor) ProcessData() error {
	if err := p.opts.validate(); err != nil {
		return err
	}

	data := p.source.SelTimeRange(p.opts.Start, p.opts.End)

	data, err := data.SelVars(p.opts.Variables.names)
	if err != nil {
		return err
	}
	if len(p.opts.Variables.rename) > 0 {
		data = data.Rename(p.opts.Variables.rename)
	}

	if p.opts.ConvertLongitude {
		data = data.NormalizeLongitude()
	}

	b := p.opts.Bounds
	data = data.CropLat(b.LatMin, b.LatMax).CropLon(b.LonMin, b.LonMax)

	p.loaded = data
	return nil
}

// ComponentsAtTimestep extracts the 2-D (latitude x longitude) slice of each
// selected variable at the given time index, keyed by variable name. With
// withCoords, the latitude and longitude coordinate arrays are included under
// keys "lat" and "long". A variable absent from the processed dataset aborts
// the call; no partial result is returned.
func (p *Processor) ComponentsAtTimestep(timestep int, sel Selection, withCoords bool) (map[string]*sparse.DenseArray, error) {
	if p.loaded == nil {
		return nil, ErrNotProcessed
	}
	if sel.empty() {
		return nil, fmt.Errorf("%w: no variables selected for extraction", ErrInvalidOptions)
	}
	if timestep < 0 || timestep >= len(p.loaded.Times) {
		return nil, fmt.Errorf("%w: timestep %d, have %d timesteps", ErrTimestepOutOfRange, timestep, len(p.loaded.Times))
	}

	out := make(map[string]*sparse.DenseArray, len(sel.names))
	for _, name := range sel.names {
		plane, err := p.loaded.SliceTime(name, timestep)
		if err != nil {
			return nil, err
		}
		out[name] = plane
	}
	if withCoords {
		out["lat"] = p.loaded.LatArray()
		out["long"] = p.loaded.LonArray()
	}
	return out, nil
}

// CalculateWindSpeed computes sqrt(u^2 + v^2) pointwise from the two named
// wind components and stores it under name, overwriting any prior variable of
// that name. The result is a new snapshot that replaces the processed
// dataset and is returned; on error the processed dataset is left untouched.
func (p *Processor) CalculateWindSpeed(uComponent, vComponent, name string) (*Dataset, error) {
	if p.loaded == nil {
		return nil, ErrNotProcessed
	}
	u, uok := p.loaded.Var(uComponent)
	v, vok := p.loaded.Var(vComponent)
	if !uok || !vok {
		return nil, fmt.Errorf("%w: components %q and/or %q not found in processed dataset",
			ErrInvalidOptions, uComponent, vComponent)
	}
	if len(u.Data.Elements) != len(v.Data.Elements) {
		return nil, fmt.Errorf("%w: components %q and %q have mismatched shapes",
			ErrInvalidOptions, uComponent, vComponent)
	}

	speed := sparse.ZerosDense(u.Data.Shape...)
	for i, uv := range u.Data.Elements {
		vv := v.Data.Elements[i]
		speed.Elements[i] = math.Sqrt(uv*uv + vv*vv)
	}

	wind := &Variable{
		Dims:  append([]string{}, u.Dims...),
		Data:  speed,
		Attrs: map[string]string{},
	}
	if p.opts.CopyAttributes {
		units := u.Attrs["units"]
		if units == "" {
			units = "m s**-1"
		}
		wind.Attrs = map[string]string{
			"long_name": fmt.Sprintf("Wind Speed calculated from %s and %s", uComponent, vComponent),
			"units":     units,
		}
	}

	next := p.loaded.Copy()
	if err := next.AddVar(name, wind); err != nil {
		return nil, err
	}
	p.loaded = next
	return next, nil
}

// Subsample returns a new dataset with every step-th latitude and longitude
// sample for all variables. The processed dataset is not modified.
func (p *Processor) Subsample(step int) (*Dataset, error) {
	if p.loaded == nil {
		return nil, ErrNotProcessed
	}
	if step <= 0 {
		return nil, fmt.Errorf("%w: subsampling step must be positive, got %d", ErrInvalidOptions, step)
	}
	return p.loaded.Subsample(step), nil
}

// ProcessedData returns the processed dataset.
func (p *Processor) ProcessedData() (*Dataset, error) {
	if p.loaded == nil {
		return nil, ErrNotProcessed
	}
	return p.loaded, nil
}
