// Package periphbus opens an I2C peripheral through the periph.io host
// drivers. Port names are periph's registry names ("I2C1", "/dev/i2c-1", "1").
package periphbus

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var (
	initOnce sync.Once
	initErr  error
)

var hostInit = func() error {
	_, err := host.Init()
	return err
}

var openBus = func(port string) (i2c.BusCloser, error) {
	return i2creg.Open(port)
}

// Dev is a register-addressed peripheral on a periph.io bus.
type Dev struct {
	mu   sync.Mutex
	bus  i2c.BusCloser
	dev  *i2c.Dev
	port string
}

func Open(port string, addr uint16) (*Dev, error) {
	initOnce.Do(func() { initErr = hostInit() })
	if initErr != nil {
		return nil, fmt.Errorf("periphbus: host init: %w", initErr)
	}
	if addr == 0 || addr > 0x7F {
		return nil, fmt.Errorf("periphbus: invalid i2c addr 0x%X", addr)
	}
	bus, err := openBus(port)
	if err != nil {
		return nil, fmt.Errorf("periphbus: open %s: %w", port, err)
	}
	return &Dev{bus: bus, dev: &i2c.Dev{Bus: bus, Addr: addr}, port: port}, nil
}

func (d *Dev) tx(w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bus == nil {
		return fmt.Errorf("periphbus: %s closed", d.port)
	}
	if err := d.dev.Tx(w, r); err != nil {
		return fmt.Errorf("periphbus: transfer addr=0x%02X on %s: %w", d.dev.Addr, d.port, err)
	}
	return nil
}

func (d *Dev) ReadRegU8(reg byte) (byte, error) {
	var b [1]byte
	if err := d.tx([]byte{reg}, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Dev) WriteReg(reg, value byte) error {
	return d.tx([]byte{reg, value}, nil)
}

func (d *Dev) WriteRegs(reg byte, values []byte) error {
	buf := make([]byte, 0, 1+len(values))
	buf = append(buf, reg)
	buf = append(buf, values...)
	return d.tx(buf, nil)
}

// Close releases the bus. Closing twice is a no-op.
func (d *Dev) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bus == nil {
		return nil
	}
	err := d.bus.Close()
	d.bus = nil
	return err
}
