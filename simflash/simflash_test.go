package simflash

import (
	"errors"
	"testing"

	"periph.io/x/conn/v3/gpio"
)

func tx(t *testing.T, c *Chip, w []byte) []byte {
	t.Helper()

	r := make([]byte, len(w))
	c.Out(gpio.Low)
	if err := c.Tx(w, r); err != nil {
		t.Fatal(err)
	}
	c.Out(gpio.High)
	return r
}

func TestProgramNeedsWriteEnable(t *testing.T) {
	c := New([3]byte{1, 2, 3}, 4096, 256, 1024)

	tx(t, c, []byte{0x02, 0, 0, 0, 0x12})
	if c.Memory[0] != 0xFF || c.Violations != 1 {
		t.Error("program without write enable was executed")
	}

	tx(t, c, []byte{0x06})
	if !c.WriteEnabled() {
		t.Fatal("latch not set")
	}
	tx(t, c, []byte{0x02, 0, 0, 0, 0x12})
	if c.Memory[0] != 0x12 || c.WriteEnabled() {
		t.Error("program not executed or latch not cleared")
	}
}

func TestProgramWrapsPage(t *testing.T) {
	c := New([3]byte{1, 2, 3}, 4096, 256, 1024)

	tx(t, c, []byte{0x06})
	tx(t, c, []byte{0x02, 0, 0, 0xFF, 0xA0, 0xA1})

	if c.Memory[0xFF] != 0xA0 || c.Memory[0x00] != 0xA1 || c.Memory[0x100] != 0xFF {
		t.Error("page address did not wrap")
	}
}

func TestProgramOnlyClearsBits(t *testing.T) {
	c := New([3]byte{1, 2, 3}, 4096, 256, 1024)

	tx(t, c, []byte{0x06})
	tx(t, c, []byte{0x02, 0, 0, 0, 0xF0})
	tx(t, c, []byte{0x06})
	tx(t, c, []byte{0x02, 0, 0, 0, 0x3C})

	if c.Memory[0] != 0x30 {
		t.Errorf("memory = %02x, want 30", c.Memory[0])
	}
}

func TestBusy(t *testing.T) {
	c := New([3]byte{1, 2, 3}, 4096, 256, 1024)
	c.BusyPolls = 1

	tx(t, c, []byte{0x06})
	tx(t, c, []byte{0xD8, 0, 0x04, 0})

	tx(t, c, []byte{0x06})
	if c.Violations != 1 || c.WriteEnabled() {
		t.Error("write enable accepted while busy")
	}

	if r := tx(t, c, []byte{0x05, 0}); r[1]&1 == 0 {
		t.Errorf("status %02x, want busy", r[1])
	}
	if r := tx(t, c, []byte{0x05, 0}); r[1]&1 != 0 {
		t.Errorf("status %02x, want idle", r[1])
	}
}

func TestReadCommands(t *testing.T) {
	c := New([3]byte{0xEF, 0x40, 0x18}, 4096, 256, 1024)
	copy(c.Memory[0x10:], []byte{1, 2, 3})

	if r := tx(t, c, []byte{0x9F, 0, 0, 0}); r[1] != 0xEF || r[2] != 0x40 || r[3] != 0x18 {
		t.Errorf("id % x", r)
	}
	if r := tx(t, c, []byte{0x03, 0, 0, 0x10, 0, 0, 0}); r[4] != 1 || r[6] != 3 {
		t.Errorf("read % x", r)
	}
	if r := tx(t, c, []byte{0x0B, 0, 0, 0x10, 0, 0, 0, 0}); r[5] != 1 || r[7] != 3 {
		t.Errorf("fast read % x", r)
	}
	if len(c.Log) != 3 {
		t.Errorf("%d transactions logged", len(c.Log))
	}
}

func TestNotSelected(t *testing.T) {
	c := NewW25Q128JV()

	if err := c.Tx([]byte{0x05, 0}, nil); !errors.Is(err, ErrorNotSelected) {
		t.Errorf("got %v", err)
	}
}

func TestClock(t *testing.T) {
	c := NewClock()
	start := c.Now()

	c.Sleep(3)
	c.Sleep(4)

	if c.Now().Sub(start) != 7 || c.Slept() != 7 || len(c.Sleeps) != 2 {
		t.Error("clock did not advance")
	}
}
