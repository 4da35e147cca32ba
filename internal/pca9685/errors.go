package pca9685

import (
	"errors"
	"fmt"
)

// ErrClosed is wrapped by DeviceError when the handle is already closed.
var ErrClosed = errors.New("pca9685: device closed")

// DeviceError reports a failed bus operation: opening, writing to or closing
// the controller.
type DeviceError struct {
	Op      string // "open", "write", "close"
	Channel int    // -1 when the operation is not channel specific
	Err     error
}

func (e *DeviceError) Error() string {
	if e.Channel >= 0 {
		return fmt.Sprintf("pca9685: %s channel %d: %v", e.Op, e.Channel, e.Err)
	}
	return fmt.Sprintf("pca9685: %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// IsDeviceError reports whether err carries a DeviceError.
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}
