// Package config loads the CLI configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/meteokit/era5proc/internal/era5"
)

// DateRange bounds the time window as YYYY-MM-DD dates; both ends are
// inclusive, the end of the whole end day.
type DateRange struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// SpatialRange is the crop window, each axis as [min, max] degrees.
type SpatialRange struct {
	Lat [2]float64 `yaml:"lat"`
	Lon [2]float64 `yaml:"lon"`
}

// Config describes one processing run.
type Config struct {
	// Dataset is the path of the ERA5 NetCDF file to process.
	Dataset string `yaml:"dataset" envconfig:"ERA5_DATASET"`
	// Variables are the data variables to keep, in order.
	Variables []string `yaml:"variables"`
	// Rename optionally maps source variable names to output names.
	Rename map[string]string `yaml:"rename"`

	DateRange    DateRange    `yaml:"date_range"`
	SpatialRange SpatialRange `yaml:"spatial_range"`

	ConvertLongitude  bool `yaml:"convert_longitude"`
	IncludeAttributes bool `yaml:"include_attributes"`
}

// KeyFromEnv returns the cacheb access key from the CACHEB_KEY environment
// variable, or "" when unset. The key never comes from the config file.
func KeyFromEnv() string {
	return os.Getenv("CACHEB_KEY")
}

// Load reads the YAML config file and applies environment overrides.
func Load(path string) (*Config, error) {
	cnf := Config{
		ConvertLongitude:  true,
		IncludeAttributes: true,
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, &cnf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := envconfig.Process("", &cnf); err != nil {
		return nil, fmt.Errorf("environment variable parsing: %w", err)
	}

	if err := cnf.validate(); err != nil {
		return nil, err
	}
	return &cnf, nil
}

func (c *Config) validate() error {
	if c.Dataset == "" {
		return fmt.Errorf("dataset is required")
	}
	if len(c.Variables) == 0 {
		return fmt.Errorf("variables is required")
	}
	if _, _, err := c.window(); err != nil {
		return err
	}
	if c.SpatialRange.Lat[0] > c.SpatialRange.Lat[1] {
		return fmt.Errorf("spatial_range.lat must be [min, max]")
	}
	if c.SpatialRange.Lon[0] > c.SpatialRange.Lon[1] {
		return fmt.Errorf("spatial_range.lon must be [min, max]")
	}
	return nil
}

func (c *Config) window() (time.Time, time.Time, error) {
	start, err := time.Parse(time.DateOnly, c.DateRange.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("date_range.start: %w", err)
	}
	end, err := time.Parse(time.DateOnly, c.DateRange.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("date_range.end: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("date_range ends before it starts")
	}
	// The end date is inclusive of the whole day.
	return start, end.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}

// Options converts the configuration into processor options.
func (c *Config) Options() (era5.Options, error) {
	start, end, err := c.window()
	if err != nil {
		return era5.Options{}, err
	}

	sel := era5.Keep(c.Variables...)
	if len(c.Rename) > 0 {
		pairs := make([]era5.Rename, 0, len(c.Variables))
		for _, name := range c.Variables {
			to := c.Rename[name]
			if to == "" {
				to = name
			}
			pairs = append(pairs, era5.Rename{From: name, To: to})
		}
		sel = era5.RenameTo(pairs...)
	}

	return era5.Options{
		Variables: sel,
		Start:     start,
		End:       end,
		Bounds: era5.Bounds{
			LatMin: c.SpatialRange.Lat[0],
			LatMax: c.SpatialRange.Lat[1],
			LonMin: c.SpatialRange.Lon[0],
			LonMax: c.SpatialRange.Lon[1],
		},
		ConvertLongitude: c.ConvertLongitude,
		CopyAttributes:   c.IncludeAttributes,
	}, nil
}
