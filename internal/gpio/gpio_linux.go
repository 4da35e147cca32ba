//go:build linux

package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "servo-sweep-oe"

// Open requests the OE line as an output, initially high (outputs disabled).
//
// Line is either a line name ("GPIO17") or, with Chip set, a name or offset.
func Open(cfg Config) (OutputEnable, error) {
	name := strings.TrimSpace(cfg.Line)
	if name == "" {
		return nil, fmt.Errorf("gpio: output-enable line is empty")
	}

	var chipCandidates []string
	if cfg.Chip != "" {
		chipCandidates = []string{cfg.Chip}
	} else {
		entries, _ := os.ReadDir("/dev")
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), "gpiochip") {
				chipCandidates = append(chipCandidates, filepath.Join("/dev", e.Name()))
			}
		}
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := lineOffset(chip, name)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(1), gpiocdev.WithConsumer(consumer))
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &cdevLine{chip: chip, line: line}, nil
	}
	return nil, fmt.Errorf("gpio: output-enable line %q not found (or busy)", name)
}

func lineOffset(chip *gpiocdev.Chip, name string) (int, error) {
	var offset int
	if _, err := fmt.Sscanf(name, "%d", &offset); err == nil && fmt.Sprint(offset) == name {
		return offset, nil
	}
	return chip.FindLine(name)
}

type cdevLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *cdevLine) Enable() error {
	if g == nil || g.line == nil {
		return fmt.Errorf("gpio: output-enable line not open")
	}
	return g.line.SetValue(0)
}

func (g *cdevLine) Disable() error {
	if g == nil || g.line == nil {
		return fmt.Errorf("gpio: output-enable line not open")
	}
	return g.line.SetValue(1)
}

// Close leaves the outputs disabled and releases the line.
func (g *cdevLine) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	_ = g.line.SetValue(1)
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
