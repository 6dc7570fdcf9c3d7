package era5

import "errors"

// Error kinds returned by the processor. Callers discriminate with errors.Is.
var (
	// ErrNotProcessed is returned by methods that need the processed dataset
	// when ProcessData has not run yet.
	ErrNotProcessed = errors.New("no processed data available: run ProcessData first")

	// ErrTimestepOutOfRange is returned when a time index falls outside
	// [0, number of timesteps).
	ErrTimestepOutOfRange = errors.New("timestep is out of bounds for the selected data")

	// ErrVarNotFound is returned when a requested variable is absent from the
	// dataset.
	ErrVarNotFound = errors.New("variable not found in dataset")

	// ErrInvalidOptions is returned for invalid configuration or arguments:
	// empty variable selections, reversed ranges, missing wind components, or
	// a non-positive subsampling step.
	ErrInvalidOptions = errors.New("invalid options")
)
