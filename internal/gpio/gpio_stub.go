//go:build !linux

package gpio

import "fmt"

func Open(cfg Config) (OutputEnable, error) {
	return nil, fmt.Errorf("gpio: output-enable unsupported on this platform")
}
