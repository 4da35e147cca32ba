// Package gpio drives the PCA9685 output-enable (OE) pin.
//
// OE is active low: Enable pulls the line low so the chip drives its outputs,
// Disable pulls it high so every channel floats.
package gpio

// OutputEnable is the line the PWM controller toggles around a session.
type OutputEnable interface {
	Enable() error
	Disable() error
	Close() error
}

// Config names the line. Chip may be empty to search every gpiochip.
type Config struct {
	Chip string
	Line string
}
