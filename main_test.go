package main

import (
	"bytes"
	"crypto/rand"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/BertoldVdb/w25flash/dump"
	"github.com/BertoldVdb/w25flash/simflash"
	"github.com/BertoldVdb/w25flash/spiflash"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)

	err := root.Execute()
	return out.String(), err
}

func TestIDSim(t *testing.T) {
	out, err := run(t, "--backend", "sim", "id")
	if err != nil {
		t.Fatal(err)
	}
	if out != "EF 40 18 W25Q128JV\n" {
		t.Errorf("output %q", out)
	}
}

func TestSelftestSim(t *testing.T) {
	if _, err := run(t, "--backend", "sim", "selftest", "--addr", "0x10000"); err != nil {
		t.Fatal(err)
	}
}

func TestReadDumpSim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.dump")

	if _, err := run(t, "--backend", "sim", "read", "--addr", "0x1000", "--len", "256", "--fast", "-o", path); err != nil {
		t.Fatal(err)
	}

	h, payload, err := dump.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if h.ID != [3]byte{0xEF, 0x40, 0x18} || h.Base != 0x1000 || len(payload) != 256 {
		t.Errorf("header %+v, %d bytes", h, len(payload))
	}
	if !equalFF(payload) {
		t.Error("blank chip did not read as 0xFF")
	}
}

func TestWriteVerifySim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.bin")
	data := make([]byte, 700)
	rand.Read(data)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := run(t, "--backend", "sim", "--max-transfer", "64", "write", "--addr", "0x20080", "--erase", "--verify", path); err != nil {
		t.Fatal(err)
	}
}

func TestBadArguments(t *testing.T) {
	tests := [][]string{
		{"--backend", "nope", "id"},
		{"--backend", "sim", "--chip", "AT25SF041", "id"},
		{"--backend", "sim", "--busy-policy", "later", "id"},
		{"--backend", "sim", "--poll", "1s", "id"},
		{"--backend", "sim", "erase", "--addr", "0x100"},
		{"--backend", "periph", "selftest"},
	}

	for _, args := range tests {
		if _, err := run(t, args...); err == nil {
			t.Errorf("%s: accepted", strings.Join(args, " "))
		}
	}
}

func TestLoadInput(t *testing.T) {
	dir := t.TempDir()
	payload := []byte{1, 2, 3, 4}

	dumpPath := filepath.Join(dir, "a.dump")
	if err := dump.WriteFile(dumpPath, [3]byte{0xEF, 0x40, 0x18}, 0x3000, payload); err != nil {
		t.Fatal(err)
	}

	base, data, err := loadInput(dumpPath, 0x10, false)
	if err != nil || base != 0x3000 || !bytes.Equal(data, payload) {
		t.Errorf("dump: 0x%x % x %v", base, data, err)
	}
	if base, _, _ := loadInput(dumpPath, 0x10, true); base != 0x10 {
		t.Errorf("explicit address ignored: 0x%x", base)
	}

	rawPath := filepath.Join(dir, "a.bin")
	if err := os.WriteFile(rawPath, payload, 0644); err != nil {
		t.Fatal(err)
	}
	base, data, err = loadInput(rawPath, 0x20, false)
	if err != nil || base != 0x20 || !bytes.Equal(data, payload) {
		t.Errorf("raw: 0x%x % x %v", base, data, err)
	}

	good, _ := os.ReadFile(dumpPath)

	corrupt := func(name string, buf []byte, want error) {
		if err := os.WriteFile(dumpPath, buf, 0644); err != nil {
			t.Fatal(err)
		}
		_, data, err := loadInput(dumpPath, 0, false)
		if errors.Cause(err) != want {
			t.Errorf("%s: got %v (%d bytes), want %v", name, err, len(data), want)
		}
	}

	buf := append([]byte(nil), good...)
	buf[len(buf)-1]++
	corrupt("payload crc", buf, dump.ErrorInvalidCRC)

	corrupt("truncated", good[:len(good)-2], dump.ErrorInvalidLength)

	buf = append([]byte(nil), good...)
	buf[0x10]++
	corrupt("header crc", buf, dump.ErrorInvalidHeader)

	corrupt("header only", good[:8], dump.ErrorInvalidLength)
}

func TestSectorSpan(t *testing.T) {
	g := spiflash.W25Q128JV

	tests := []struct {
		address     uint32
		length      int
		start, span uint32
	}{
		{0, 1, 0, 0x10000},
		{0x10000, 0x10000, 0x10000, 0x10000},
		{0x1FFFF, 2, 0x10000, 0x20000},
		{g.Capacity - 1, 1, g.Capacity - 0x10000, 0x10000},
	}

	for _, tt := range tests {
		start, span, err := sectorSpan(g, tt.address, tt.length)
		if err != nil {
			t.Errorf("0x%x+%d: %v", tt.address, tt.length, err)
			continue
		}
		if start != tt.start || span != tt.span {
			t.Errorf("0x%x+%d: 0x%x+0x%x, want 0x%x+0x%x", tt.address, tt.length, start, span, tt.start, tt.span)
		}
	}

	if _, _, err := sectorSpan(g, g.Capacity-0x10, 0x20); !errors.Is(err, spiflash.ErrorInvalidAddress) {
		t.Errorf("span past the end: %v", err)
	}
}

func TestProgramDataPastEnd(t *testing.T) {
	chip := simflash.NewW25Q128JV()
	dev, err := spiflash.New(chip, chip, spiflash.WithClock(simflash.NewClock()))
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	capacity := dev.Geometry().Capacity
	chip.Memory[capacity-0x100] = 0x42

	err = programData(logger, dev, capacity-0x10, make([]byte, 0x20), true, false)
	if !errors.Is(err, spiflash.ErrorInvalidAddress) {
		t.Errorf("got %v, want ErrorInvalidAddress", err)
	}
	if chip.Memory[capacity-0x100] != 0x42 {
		t.Error("last sector was erased")
	}
	if len(chip.Log) != 0 {
		t.Errorf("rejected write reached the bus: %x", chip.Opcodes())
	}

	data := []byte{1, 2, 3}
	if err := programData(logger, dev, capacity-0x100, data, true, true); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(chip.Memory[capacity-0x100:capacity-0xFD], data) {
		t.Error("data not programmed")
	}
}

type closeCounter int

func (c *closeCounter) Close() error {
	*c++
	return nil
}

func TestBusClosesPort(t *testing.T) {
	var c closeCounter
	b := &bus{spi: portConn{Closer: &c}, cs: hardwareCS{}}

	b.close()
	if c != 1 {
		t.Errorf("port closed %d times", c)
	}
}

func TestFirstMismatch(t *testing.T) {
	if i := firstMismatch([]byte{1, 2, 3}, []byte{1, 2, 3}); i != -1 {
		t.Error(i)
	}
	if i := firstMismatch([]byte{1, 2, 3}, []byte{1, 5, 3}); i != 1 {
		t.Error(i)
	}
	if i := firstMismatch([]byte{1, 2}, []byte{1, 2, 3}); i != 2 {
		t.Error(i)
	}
}
