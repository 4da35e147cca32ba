// Package platform resolves which I2C port the PWM controller hangs off for a
// given board.
package platform

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

var ErrUnknownPlatform = errors.New("platform: unknown platform")

// Board identifiers.
const (
	RPi3       = "rpi3"
	RPi4       = "rpi4"
	RPi5       = "rpi5"
	IMX6ULPico = "imx6ul_pico"
	IMX7DPico  = "imx7d_pico"
)

var ports = map[string]string{
	RPi3:       "I2C1",
	RPi4:       "I2C1",
	RPi5:       "I2C1",
	IMX6ULPico: "I2C2",
	IMX7DPico:  "I2C1",
}

// ResolvePort returns the preferred I2C port name for a board.
func ResolvePort(id string) (string, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	port, ok := ports[id]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownPlatform, id)
	}
	return port, nil
}

// Entry is one row of the port table.
type Entry struct {
	ID   string
	Port string
}

// Table lists known boards sorted by id.
func Table() []Entry {
	out := make([]Entry, 0, len(ports))
	for id, p := range ports {
		out = append(out, Entry{ID: id, Port: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var modelPaths = []string{
	"/sys/firmware/devicetree/base/model",
	"/proc/device-tree/model",
}

var readFile = os.ReadFile

// Detect reads the device-tree model and maps it to a board identifier.
func Detect() (string, error) {
	var lastModel string
	for _, p := range modelPaths {
		b, err := readFile(p)
		if err != nil {
			continue
		}
		model := strings.Trim(strings.TrimSpace(string(b)), "\x00")
		if id := FromModel(model); id != "" {
			return id, nil
		}
		lastModel = model
	}
	if lastModel == "" {
		return "", fmt.Errorf("%w: no device-tree model found", ErrUnknownPlatform)
	}
	return "", fmt.Errorf("%w: model %q", ErrUnknownPlatform, lastModel)
}

// FromModel maps a device-tree model string to a board identifier, or "".
func FromModel(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "raspberry pi 5"):
		return RPi5
	case strings.Contains(m, "raspberry pi 4"):
		return RPi4
	case strings.Contains(m, "raspberry pi 3"):
		return RPi3
	case strings.Contains(m, "imx7d") && strings.Contains(m, "pico"):
		return IMX7DPico
	case strings.Contains(m, "imx6ul") && strings.Contains(m, "pico"):
		return IMX6ULPico
	}
	return ""
}
