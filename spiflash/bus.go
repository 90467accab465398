package spiflash

import (
	"periph.io/x/conn/v3/gpio"
)

// Transceiver moves bytes over the bus, full duplex. w and r have the same
// length, r may be nil when nothing needs to be received. spi.Conn from
// periph.io satisfies it.
type Transceiver interface {
	Tx(w, r []byte) error
}

// ChipSelect drives the /CS line. gpio.PinOut satisfies it.
type ChipSelect interface {
	Out(l gpio.Level) error
}

const (
	csActive   = gpio.Low
	csInactive = gpio.High
)

// transfer performs exactly one transaction. Chip select is released on every
// exit path, and the inbound window is copied to in.
func (d *Device) transfer(f frame, in []byte) (err error) {
	var rx []byte
	if f.in > 0 {
		rx = make([]byte, len(f.tx))
	}

	if err := d.cs.Out(csActive); err != nil {
		d.cs.Out(csInactive)
		return &BusError{Op: f.op, Err: err}
	}
	defer func() {
		if csErr := d.cs.Out(csInactive); csErr != nil && err == nil {
			err = &BusError{Op: f.op, Err: csErr}
		}
	}()

	if err := d.spi.Tx(f.tx, rx); err != nil {
		return &BusError{Op: f.op, Err: err}
	}

	if rx != nil {
		copy(in, rx[f.hdr:])
	}
	return nil
}
