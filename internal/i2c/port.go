package i2c

import (
	"fmt"
	"strconv"
	"strings"
)

// PortPath maps a bus port name onto its Linux character device.
//
// Accepts "I2C1", "i2c-1", "1" and absolute paths ("/dev/i2c-1").
func PortPath(port string) (string, error) {
	p := strings.TrimSpace(port)
	if p == "" {
		return "", fmt.Errorf("i2c: empty port name")
	}
	if strings.HasPrefix(p, "/") {
		return p, nil
	}
	num := p
	lower := strings.ToLower(p)
	switch {
	case strings.HasPrefix(lower, "i2c-"):
		num = p[4:]
	case strings.HasPrefix(lower, "i2c"):
		num = p[3:]
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 {
		return "", fmt.Errorf("i2c: unrecognized port %q", port)
	}
	return fmt.Sprintf("/dev/i2c-%d", n), nil
}

// OpenPort resolves a port name with PortPath and opens it.
func OpenPort(port string) (*Bus, error) {
	path, err := PortPath(port)
	if err != nil {
		return nil, err
	}
	return Open(path)
}
