package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/meteokit/era5proc/internal/cacheb"
	"github.com/meteokit/era5proc/internal/config"
	"github.com/meteokit/era5proc/internal/era5"
	"github.com/meteokit/era5proc/internal/export"
	"github.com/meteokit/era5proc/internal/ncio"
)

var (
	configFile = flag.String("config", "config.yaml", "path to the processing configuration")
	file       = flag.String("file", "", "path to an ERA5 file in NetCDF format (overrides the config)")
	auth       = flag.Bool("auth", false, "prompt for a cacheb key, store it in ~/.netrc, and exit")
	windSpeed  = flag.Bool("windSpeed", true, "derive a wind_speed variable when u10 and v10 are present")
	subsample  = flag.Int("subsample", 0, "keep every Nth latitude/longitude sample in the output")
	outFile    = flag.String("out", "", "path to write the processed dataset in NetCDF format")
	csvFile    = flag.String("csv", "", "path to write the processed dataset as CSV records")
)

func main() {
	flag.Parse()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if *auth {
		authenticate(logger)
		return
	}

	cnf, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Could not load the configuration", "err", err)
		os.Exit(1)
	}
	if *file != "" {
		cnf.Dataset = *file
	}

	ds, err := ncio.Read(cnf.Dataset)
	if err != nil {
		logger.Error("Could not read the ERA5 file", "file", cnf.Dataset, "err", err)
		os.Exit(1)
	}
	logger.Info("ERA5 summary", ds.Summary()...)

	opts, err := cnf.Options()
	if err != nil {
		logger.Error("Bad processing options", "err", err)
		os.Exit(1)
	}
	p := era5.NewProcessor(ds, opts)
	if err := p.ProcessData(); err != nil {
		logger.Error("Could not process the dataset", "err", err)
		os.Exit(1)
	}
	result, err := p.ProcessedData()
	if err != nil {
		logger.Error("Could not get the processed dataset", "err", err)
		os.Exit(1)
	}
	logger.Info("processed", result.Summary()...)

	if shouldDeriveWindSpeed(*windSpeed, result) {
		result, err = p.CalculateWindSpeed("u10", "v10", "wind_speed")
		if err != nil {
			logger.Error("Could not calculate wind speed", "err", err)
			os.Exit(1)
		}
	}

	if *subsample > 0 {
		result, err = p.Subsample(*subsample)
		if err != nil {
			logger.Error("Could not subsample the dataset", "err", err)
			os.Exit(1)
		}
		logger.Info("subsampled", result.Summary()...)
	}

	if *outFile != "" {
		if err := ncio.Write(*outFile, result); err != nil {
			logger.Error("Could not write the NetCDF output", "file", *outFile, "err", err)
			os.Exit(1)
		}
		logger.Info("wrote NetCDF output", "file", *outFile)
	}
	if *csvFile != "" {
		f, err := os.Create(*csvFile)
		if err != nil {
			logger.Error("Could not create the CSV output", "file", *csvFile, "err", err)
			os.Exit(1)
		}
		if err := export.CSV(f, result); err != nil {
			f.Close()
			logger.Error("Could not write the CSV output", "file", *csvFile, "err", err)
			os.Exit(1)
		}
		f.Close()
		logger.Info("wrote CSV output", "file", *csvFile)
	}
}

// shouldDeriveWindSpeed reports whether the wind_speed variable gets derived:
// on by default whenever both wind components are present, off when disabled
// with -windSpeed=false.
func shouldDeriveWindSpeed(enabled bool, ds *era5.Dataset) bool {
	return enabled && ds.Has("u10") && ds.Has("v10")
}

// authenticate persists a cacheb key for later data-service requests, taking
// it from CACHEB_KEY when set and prompting otherwise.
func authenticate(logger *slog.Logger) {
	key := config.KeyFromEnv()
	if key == "" {
		var ok bool
		key, ok = cacheb.KeyFromStdin()
		if !ok {
			os.Exit(1)
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		logger.Error("Could not locate the home directory", "err", err)
		os.Exit(1)
	}
	if err := cacheb.SaveNetrc(home, key); err != nil {
		logger.Error("Could not store the cacheb key", "err", err)
		os.Exit(1)
	}
	logger.Info("cacheb key stored", "machine", cacheb.Machine)
}
