// Package simflash simulates a Winbond style SPI NOR flash chip behind a
// chip select line. It understands the commands used by spiflash, enforces the
// write enable latch and BUSY rules of a real part and records every
// transaction so tests can check the exact bus traffic.
package simflash

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

var (
	ErrorNotSelected = errors.New("simflash: transfer without chip select")
	ErrorLength      = errors.New("simflash: rx and tx length differ")
)

// Transaction is one chip select period.
type Transaction struct {
	TX []byte
	RX []byte
}

func (t Transaction) Opcode() byte {
	if len(t.TX) == 0 {
		return 0
	}
	return t.TX[0]
}

type Chip struct {
	ID         [3]byte
	Memory     []byte
	PageSize   uint32
	SectorSize uint32

	// BusyPolls is the number of status reads that report BUSY after a
	// program or erase. Negative keeps the chip busy forever.
	BusyPolls int

	// BlockProtect is reported in status bits 2-4.
	BlockProtect uint8

	// FailTx, if set, is called before each transfer and its error returned.
	FailTx func(tx []byte) error

	// FailCS, if set, is called on every chip select change.
	FailCS func(l gpio.Level) error

	Log []Transaction

	// Violations counts commands the chip ignored, e.g. a program without
	// write enable or any command while busy.
	Violations int

	selected bool
	current  *Transaction
	wel      bool
	busyLeft int
	pending  func()
}

func New(id [3]byte, capacity, pageSize, sectorSize uint32) *Chip {
	c := &Chip{
		ID:         id,
		Memory:     make([]byte, capacity),
		PageSize:   pageSize,
		SectorSize: sectorSize,
	}
	for i := range c.Memory {
		c.Memory[i] = 0xFF
	}
	return c
}

// NewW25Q128JV returns a 16MiB chip with 256 byte pages and 64KiB sectors.
func NewW25Q128JV() *Chip {
	return New([3]byte{0xEF, 0x40, 0x18}, 16*1024*1024, 256, 64*1024)
}

func (c *Chip) busy() bool {
	return c.busyLeft != 0
}

func (c *Chip) status() byte {
	var sr byte
	if c.busy() {
		sr |= 1 << 0
	}
	if c.wel {
		sr |= 1 << 1
	}
	sr |= (c.BlockProtect & 0x7) << 2
	return sr
}

// Selected reports whether chip select is currently asserted.
func (c *Chip) Selected() bool {
	return c.selected
}

func (c *Chip) WriteEnabled() bool {
	return c.wel
}

func (c *Chip) Busy() bool {
	return c.busy()
}

// SetBusy forces BUSY for the next n status reads, negative is forever.
func (c *Chip) SetBusy(n int) {
	c.busyLeft = n
}

// Out implements spiflash.ChipSelect. Program and erase are executed when
// chip select is released, like on the real part.
func (c *Chip) Out(l gpio.Level) error {
	if c.FailCS != nil {
		if err := c.FailCS(l); err != nil {
			return err
		}
	}

	if l == gpio.Low {
		if !c.selected {
			c.selected = true
			c.current = nil
		}
		return nil
	}

	if c.selected {
		c.selected = false
		if c.current != nil {
			c.Log = append(c.Log, *c.current)
			c.current = nil
		}
		if c.pending != nil {
			c.pending()
			c.pending = nil
		}
	}
	return nil
}

// Tx implements spiflash.Transceiver.
func (c *Chip) Tx(w, r []byte) error {
	if c.FailTx != nil {
		if err := c.FailTx(w); err != nil {
			return err
		}
	}
	if !c.selected {
		return ErrorNotSelected
	}
	if r != nil && len(r) != len(w) {
		return ErrorLength
	}
	if r == nil {
		r = make([]byte, len(w))
	}
	for i := range r {
		r[i] = 0xFF
	}

	if c.current == nil {
		c.current = &Transaction{}
		c.execute(w, r)
	}
	c.current.TX = append(c.current.TX, w...)
	c.current.RX = append(c.current.RX, r...)
	return nil
}

func (c *Chip) address(w []byte) uint32 {
	if len(w) < 4 {
		return 0
	}
	return (uint32(w[1])<<16 | uint32(w[2])<<8 | uint32(w[3])) % uint32(len(c.Memory))
}

func (c *Chip) readOut(addr uint32, r []byte) {
	for i := range r {
		r[i] = c.Memory[(addr+uint32(i))%uint32(len(c.Memory))]
	}
}

func (c *Chip) execute(w, r []byte) {
	op := w[0]

	if op == 0x05 {
		if len(r) > 1 {
			r[1] = c.status()
		}
		if c.busyLeft > 0 {
			c.busyLeft--
		}
		return
	}

	if c.busy() {
		c.Violations++
		return
	}

	switch op {
	case 0x9F:
		copy(r[1:], c.ID[:])

	case 0x06:
		c.pending = func() { c.wel = true }

	case 0x03:
		if len(w) >= 4 {
			c.readOut(c.address(w), r[4:])
		}

	case 0x0B:
		if len(w) >= 5 {
			c.readOut(c.address(w), r[5:])
		}

	case 0x02:
		if !c.wel || len(w) < 4 {
			c.Violations++
			return
		}
		addr := c.address(w)
		data := append([]byte(nil), w[4:]...)
		c.pending = func() {
			base := addr &^ (c.PageSize - 1)
			offset := addr & (c.PageSize - 1)
			for i, b := range data {
				/* The page address wraps, like the real part */
				c.Memory[base+(offset+uint32(i))%c.PageSize] &= b
			}
			c.wel = false
			c.busyLeft = c.BusyPolls
		}

	case 0xD8:
		if !c.wel || len(w) < 4 {
			c.Violations++
			return
		}
		base := c.address(w) &^ (c.SectorSize - 1)
		c.pending = func() {
			for i := uint32(0); i < c.SectorSize; i++ {
				c.Memory[base+i] = 0xFF
			}
			c.wel = false
			c.busyLeft = c.BusyPolls
		}

	default:
		c.Violations++
	}
}

// Opcodes returns the opcode of every recorded transaction.
func (c *Chip) Opcodes() []byte {
	ops := make([]byte, len(c.Log))
	for i, m := range c.Log {
		ops[i] = m.Opcode()
	}
	return ops
}

func (c *Chip) ResetLog() {
	c.Log = nil
}

func (c *Chip) String() string {
	return fmt.Sprintf("simflash %02x%02x%02x (%d bytes)", c.ID[0], c.ID[1], c.ID[2], len(c.Memory))
}

// Clock is a fake clock that only advances when Sleep is called.
type Clock struct {
	T      time.Time
	Sleeps []time.Duration

	// OnSleep, if set, runs after every sleep.
	OnSleep func(d time.Duration)
}

func NewClock() *Clock {
	return &Clock{T: time.Unix(0, 0)}
}

func (c *Clock) Now() time.Time {
	return c.T
}

func (c *Clock) Sleep(d time.Duration) {
	c.T = c.T.Add(d)
	c.Sleeps = append(c.Sleeps, d)
	if c.OnSleep != nil {
		c.OnSleep(d)
	}
}

func (c *Clock) Slept() time.Duration {
	var total time.Duration
	for _, d := range c.Sleeps {
		total += d
	}
	return total
}
