package homepilot

import "errors"

// Domain errors for the HomePilot bridge package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAuth is returned when the bridge rejects the configured password.
	// It is never retried automatically; polling stays suspended until the
	// password is replaced.
	ErrAuth = errors.New("homepilot: authentication failed")

	// ErrCannotConnect is returned for transport failures, unexpected HTTP
	// status codes and non-zero bridge error codes.
	ErrCannotConnect = errors.New("homepilot: cannot connect to bridge")

	// ErrInvalidResponse is returned when a response body cannot be decoded.
	ErrInvalidResponse = errors.New("homepilot: invalid response from bridge")

	// ErrDeviceNotFound is returned when a device ID is not in the registry.
	ErrDeviceNotFound = errors.New("homepilot: device not found")

	// ErrSceneNotFound is returned when a scene ID is not known.
	ErrSceneNotFound = errors.New("homepilot: scene not found")

	// ErrUnsupported is returned when a command is sent to a device that
	// lacks the capability for it.
	ErrUnsupported = errors.New("homepilot: command not supported by device")

	// ErrInvalidValue is returned when a command value is out of range.
	ErrInvalidValue = errors.New("homepilot: invalid command value")

	// ErrMissingIdentity is returned when a capability map lacks the
	// device ID or type capability.
	ErrMissingIdentity = errors.New("homepilot: device identity capabilities missing")
)
