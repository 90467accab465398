// Package spiflash drives SPI NOR flash chips of the Winbond W25Q family.
//
// Every destructive command is sent as one unit: the status is checked, the
// write enable latch is set, the command is sent and the status register is
// polled until the device clears BUSY. Address, alignment and page boundary
// checks happen before anything is put on the bus.
//
// A Device is meant for a single owner. Each call holds the device lock for
// its whole duration, including the busy wait.
package spiflash

import (
	"fmt"
	"io"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

type Device struct {
	mu sync.Mutex

	spi Transceiver
	cs  ChipSelect
	cfg Config

	state State

	LogFunc func(format string, params ...any)
}

func (d *Device) log(format string, params ...any) {
	if d.LogFunc != nil {
		d.LogFunc(format, params...)
	}
}

func New(spi Transceiver, cs ChipSelect, opts ...Option) (*Device, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Device{
		spi: spi,
		cs:  cs,
		cfg: cfg,
	}, nil
}

/* tCHSL/tSHSL are a few ns, 10us leaves plenty of margin */
const csSettle = 10 * time.Microsecond

// Init releases chip select and gives the device one high-low-high edge on
// /CS, which some parts need to leave their power up state. No clock is
// generated.
func (d *Device) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, l := range []gpio.Level{csInactive, csActive, csInactive} {
		if err := d.cs.Out(l); err != nil {
			d.cs.Out(csInactive)
			return &BusError{Err: err}
		}
		d.cfg.Clock.Sleep(csSettle)
	}
	return nil
}

// Close releases the transceiver and chip select if they can be closed.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var first error
	for _, m := range []any{d.spi, d.cs} {
		if c, ok := m.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func (d *Device) Geometry() Geometry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.Geometry
}

func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Identify reads the JEDEC ID.
func (d *Device) Identify() (JEDECID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.identify()
}

func (d *Device) identify() (JEDECID, error) {
	var id [3]byte
	if err := d.transfer(encodeIdentify(), id[:]); err != nil {
		return JEDECID{}, err
	}
	return JEDECID{Manufacturer: id[0], MemoryType: id[1], Capacity: id[2]}, nil
}

// Detect reads the JEDEC ID and switches to the matching geometry.
func (d *Device) Detect() (Geometry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, err := d.identify()
	if err != nil {
		/* Some parts need a second attempt after power up */
		if id, err = d.identify(); err != nil {
			return Geometry{}, err
		}
	}

	g, ok := Lookup(id)
	if !ok {
		return Geometry{}, fmt.Errorf("%w: %02x %02x %02x", ErrorUnsupportedDevice, id.Manufacturer, id.MemoryType, id.Capacity)
	}

	cfg := d.cfg
	cfg.Geometry = g
	if err := cfg.validate(); err != nil {
		return Geometry{}, err
	}
	d.cfg = cfg

	d.log("detected %s (%d bytes)", g.Name, g.Capacity)
	return g, nil
}

func (d *Device) ReadStatus() (StatusRegister, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readStatus()
}

func (d *Device) IsBusy() (bool, error) {
	status, err := d.ReadStatus()
	return status.Busy(), err
}

// Resync reads the status register and, if the device is idle, clears a Busy
// state left behind by a timeout. It returns ErrorBusy otherwise.
func (d *Device) Resync() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	status, err := d.readStatus()
	if err != nil {
		return err
	}
	if status.Busy() {
		return fmt.Errorf("%w: status %s", ErrorBusy, status)
	}

	d.setState(StateIdle)
	return nil
}

// Read fills buf starting at address using the standard read command.
func (d *Device) Read(address uint32, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read(OpRead, address, buf)
}

// FastRead is Read with the fast read command and its dummy byte.
func (d *Device) FastRead(address uint32, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read(OpFastRead, address, buf)
}

func (d *Device) read(op Opcode, address uint32, buf []byte) error {
	if err := checkRange(address, len(buf), d.cfg.Geometry); err != nil {
		return err
	}

	_, err := completeIO(address, buf, func(offset uint32, chunk []byte) (int, error) {
		if limit := d.cfg.MaxTransactionSize; limit > 0 {
			hdr := 1 + addressBytes + op.dummyBytes()
			if len(chunk)+hdr > limit {
				chunk = chunk[:limit-hdr]
			}
		}

		f, err := encodeRead(op, offset, len(chunk), d.cfg.Geometry)
		if err != nil {
			return 0, err
		}
		if err := d.transfer(f, chunk); err != nil {
			return 0, err
		}
		return len(chunk), nil
	})
	return err
}

// ProgramPage programs data at address. The data must not cross a page
// boundary. The target must be erased, programming only clears bits.
func (d *Device) ProgramPage(address uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.programPage(address, data)
}

func (d *Device) programPage(address uint32, data []byte) error {
	f, err := encodeProgram(address, data, d.cfg.Geometry)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if limit := d.cfg.MaxTransactionSize; limit > 0 && len(f.tx) > limit {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrorTooLarge, len(f.tx), limit)
	}

	return d.destructive(f, d.cfg.programTimeout())
}

// EraseSector erases the sector starting at address, which must be sector
// aligned. Erased bytes read as 0xFF.
func (d *Device) EraseSector(address uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.eraseSector(address)
}

func (d *Device) eraseSector(address uint32) error {
	f, err := encodeErase(address, d.cfg.Geometry)
	if err != nil {
		return err
	}

	return d.destructive(f, d.cfg.eraseTimeout())
}
