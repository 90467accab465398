package spiflash

import (
	"fmt"
	"time"
)

// BusyPolicy decides what a program or erase does when the device reports
// BUSY before the write enable is sent.
type BusyPolicy int

const (
	// BusyPolicyWait polls until the device is idle, bounded by the
	// timeout of the requested operation.
	BusyPolicyWait BusyPolicy = iota

	// BusyPolicyRefuse fails immediately with ErrorBusy.
	BusyPolicyRefuse
)

func (p BusyPolicy) String() string {
	switch p {
	case BusyPolicyWait:
		return "wait"
	case BusyPolicyRefuse:
		return "refuse"
	}
	return fmt.Sprintf("BusyPolicy(%d)", int(p))
}

// Config holds the driver configuration.
type Config struct {
	Geometry Geometry

	// PollInterval is the delay between status reads while BUSY is set.
	PollInterval time.Duration

	// ProgramTimeout and EraseTimeout bound the busy wait. Zero means twice
	// the rated time of the geometry.
	ProgramTimeout time.Duration
	EraseTimeout   time.Duration

	BusyPolicy BusyPolicy

	Clock Clock

	// MaxTransactionSize limits the bytes per transaction, 0 is unlimited.
	// Reads are split, and Write shortens its chunks to fit.
	MaxTransactionSize int
}

const minTransactionSize = 1 + addressBytes + fastReadDummy + 1

func defaultConfig() Config {
	return Config{
		Geometry:     W25Q128JV,
		PollInterval: 100 * time.Microsecond,
		BusyPolicy:   BusyPolicyWait,
		Clock:        systemClock{},
	}
}

func (c *Config) programTimeout() time.Duration {
	if c.ProgramTimeout > 0 {
		return c.ProgramTimeout
	}
	return 2 * c.Geometry.ProgramTime
}

func (c *Config) eraseTimeout() time.Duration {
	if c.EraseTimeout > 0 {
		return c.EraseTimeout
	}
	return 2 * c.Geometry.EraseTime
}

func (c *Config) validate() error {
	g := c.Geometry
	if !g.validate() {
		return fmt.Errorf("%w: geometry %q", ErrorInvalidConfig, g.Name)
	}
	if g.ProgramTime <= 0 || g.EraseTime <= 0 {
		return fmt.Errorf("%w: geometry %q has no rated operation times", ErrorInvalidConfig, g.Name)
	}

	/* A coarse interval would stretch a program well past its rated time */
	shortest := g.ProgramTime
	if g.EraseTime < shortest {
		shortest = g.EraseTime
	}
	if c.PollInterval <= 0 || c.PollInterval > shortest/10 {
		return fmt.Errorf("%w: poll interval %v must be in (0, %v]", ErrorInvalidConfig, c.PollInterval, shortest/10)
	}

	if c.ProgramTimeout < 0 || c.EraseTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrorInvalidConfig)
	}
	if c.BusyPolicy != BusyPolicyWait && c.BusyPolicy != BusyPolicyRefuse {
		return fmt.Errorf("%w: %v", ErrorInvalidConfig, c.BusyPolicy)
	}
	if c.Clock == nil {
		return fmt.Errorf("%w: no clock", ErrorInvalidConfig)
	}
	if c.MaxTransactionSize != 0 && c.MaxTransactionSize < minTransactionSize {
		return fmt.Errorf("%w: transaction size %d below %d", ErrorInvalidConfig, c.MaxTransactionSize, minTransactionSize)
	}
	return nil
}

// Option is a functional option for configuring the Device.
type Option func(*Config)

// WithGeometry selects the flash part. Use Detect to pick it from the JEDEC ID.
func WithGeometry(g Geometry) Option {
	return func(c *Config) {
		c.Geometry = g
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.PollInterval = interval
	}
}

// WithTimeouts overrides the busy wait bound for program and erase.
func WithTimeouts(program, erase time.Duration) Option {
	return func(c *Config) {
		c.ProgramTimeout = program
		c.EraseTimeout = erase
	}
}

func WithBusyPolicy(p BusyPolicy) Option {
	return func(c *Config) {
		c.BusyPolicy = p
	}
}

func WithClock(clock Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

func WithMaxTransactionSize(n int) Option {
	return func(c *Config) {
		c.MaxTransactionSize = n
	}
}
