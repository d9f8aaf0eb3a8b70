package history

import "errors"

// Domain errors for the history package.
var (
	// ErrDeviceIDRequired is returned when a write or query omits the device ID.
	ErrDeviceIDRequired = errors.New("history: device id is required")

	// ErrInvalidRetention is returned when a prune age is not positive.
	ErrInvalidRetention = errors.New("history: retention must be positive")
)
