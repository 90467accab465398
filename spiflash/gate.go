package spiflash

import (
	"fmt"
	"time"
)

// State is what the driver knows about the device write state machine. It
// only tracks what the driver itself caused; the device is assumed Idle after
// power up.
type State int

const (
	StateIdle State = iota
	StateWriteEnabled
	StateBusy
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWriteEnabled:
		return "write-enabled"
	case StateBusy:
		return "busy"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (d *Device) setState(s State) {
	if d.state != s {
		d.log("state %s -> %s", d.state, s)
		d.state = s
	}
}

func (d *Device) readStatus() (StatusRegister, error) {
	var result [1]byte
	err := d.transfer(encodeReadStatus(), result[:])
	return StatusRegister(result[0]), err
}

/* Idle -> WriteEnabled. A failed transfer leaves the state alone, the latch is
 * set again before the next destructive command anyway. */
func (d *Device) writeEnable() error {
	if d.state != StateIdle {
		panic("spiflash: write enable outside of idle state")
	}

	if err := d.transfer(encodeWriteEnable(), nil); err != nil {
		return err
	}

	d.setState(StateWriteEnabled)
	return nil
}

/* WriteEnabled -> Busy. If the transfer fails it is unknown whether the device
 * started a cycle, so the state is Busy either way. */
func (d *Device) issue(f frame) error {
	if d.state != StateWriteEnabled || !f.op.destructive() {
		panic("spiflash: destructive command without write enable")
	}

	err := d.transfer(f, nil)
	d.setState(StateBusy)
	return err
}

// pollIdle reads the status until BUSY clears. The last status read happens
// at the deadline at the latest; on timeout the state is left Busy.
func (d *Device) pollIdle(timeout time.Duration) error {
	deadline := d.cfg.Clock.Now().Add(timeout)

	for {
		status, err := d.readStatus()
		if err != nil {
			return err
		}
		if !status.Busy() {
			d.setState(StateIdle)
			return nil
		}

		now := d.cfg.Clock.Now()
		if !now.Before(deadline) {
			d.setState(StateBusy)
			d.log("device still busy after %v, status %s", timeout, status)
			return fmt.Errorf("%w: still busy after %v", ErrorTimeout, timeout)
		}

		wait := d.cfg.PollInterval
		if remaining := deadline.Sub(now); remaining < wait {
			wait = remaining
		}
		d.cfg.Clock.Sleep(wait)
	}
}

// ensureIdle runs before every write enable. A recorded Busy state (after a
// timeout or a failed destructive transfer) refuses without touching the bus
// until Resync clears it.
func (d *Device) ensureIdle(timeout time.Duration) error {
	if d.state == StateBusy {
		return fmt.Errorf("%w: previous operation did not complete, resync first", ErrorBusy)
	}

	status, err := d.readStatus()
	if err != nil {
		return err
	}
	if !status.Busy() {
		return nil
	}

	if d.cfg.BusyPolicy == BusyPolicyRefuse {
		return fmt.Errorf("%w: status %s", ErrorBusy, status)
	}

	d.log("device busy before write enable, waiting")
	return d.pollIdle(timeout)
}

// destructive is the only path to a program or erase command:
// write enable, command, then poll until idle.
func (d *Device) destructive(f frame, timeout time.Duration) error {
	if err := d.ensureIdle(timeout); err != nil {
		return err
	}

	if err := d.writeEnable(); err != nil {
		return err
	}

	if err := d.issue(f); err != nil {
		return err
	}

	return d.pollIdle(timeout)
}
