package spiflash

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"testing"
)

func getRandomBuf(length int) []byte {
	out := make([]byte, length)
	rand.Read(out)
	return out
}

func TestWriteSplitsPages(t *testing.T) {
	d, chip, _ := newTestDevice(t)

	data := getRandomBuf(600)
	for i := range data {
		/* Keep the ends programmable so nothing gets skipped */
		if data[i] == 0xFF {
			data[i] = 0
		}
	}

	n, err := d.Write(0x000080, data)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(data) {
		t.Errorf("wrote %d bytes, want %d", n, len(data))
	}
	if !bytes.Equal(chip.Memory[0x80:0x80+600], data) {
		t.Error("memory does not match")
	}

	var lengths []int
	for _, m := range chip.Log {
		if m.Opcode() == byte(OpPageProgram) {
			lengths = append(lengths, len(m.TX)-4)
		}
	}
	want := []int{128, 256, 216}
	if len(lengths) != len(want) {
		t.Fatalf("program lengths %v, want %v", lengths, want)
	}
	for i := range want {
		if lengths[i] != want[i] {
			t.Errorf("program lengths %v, want %v", lengths, want)
			break
		}
	}
}

type programCmd struct {
	address uint32
	length  int
}

func TestWriteSkipsErased(t *testing.T) {
	d, chip, _ := newTestDevice(t)

	data := bytes.Repeat([]byte{0xFF}, 512)
	data[300] = 0x42

	n, err := d.Write(0, data)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(data) {
		t.Errorf("wrote %d bytes, want %d", n, len(data))
	}

	var programs []programCmd
	for _, m := range chip.Log {
		if m.Opcode() == byte(OpPageProgram) {
			programs = append(programs, programCmd{address: uint32(m.TX[1])<<16 | uint32(m.TX[2])<<8 | uint32(m.TX[3]), length: len(m.TX) - 4})
		}
	}
	if len(programs) != 1 || programs[0].address != 300 || programs[0].length != 1 {
		t.Errorf("programs %+v, want a single byte at 300", programs)
	}
	if chip.Memory[300] != 0x42 {
		t.Error("byte not programmed")
	}
}

func TestWriteOutOfRange(t *testing.T) {
	d, chip, _ := newTestDevice(t)

	if _, err := d.Write(d.Geometry().Capacity-1, []byte{1, 2}); !errors.Is(err, ErrorInvalidAddress) {
		t.Errorf("got %v, want ErrorInvalidAddress", err)
	}
	if len(chip.Log) != 0 {
		t.Error("rejected write reached the bus")
	}
}

func TestMaxTransactionSize(t *testing.T) {
	d, chip, _ := newTestDevice(t, WithMaxTransactionSize(16))

	data := getRandomBuf(40)
	for i := range data {
		if data[i] == 0xFF {
			data[i] = 0x7F
		}
	}

	if _, err := d.Write(0x10, data); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 40)
	if err := d.FastRead(0x10, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, data) {
		t.Error("read back mismatch")
	}

	for _, m := range chip.Log {
		if len(m.TX) > 16 {
			t.Errorf("transaction of %d bytes for opcode %02x", len(m.TX), m.Opcode())
		}
	}

	if err := d.ProgramPage(0x200, make([]byte, 13)); !errors.Is(err, ErrorTooLarge) {
		t.Errorf("got %v, want ErrorTooLarge", err)
	}
}

func TestReadAt(t *testing.T) {
	d, chip, _ := newTestDevice(t)
	capacity := int64(d.Geometry().Capacity)

	copy(chip.Memory[capacity-4:], []byte{1, 2, 3, 4})

	buf := make([]byte, 8)
	n, err := d.ReadAt(buf, capacity-4)
	if err != io.EOF || n != 4 {
		t.Errorf("ReadAt at end = %d, %v", n, err)
	}
	if !bytes.Equal(buf[:4], []byte{1, 2, 3, 4}) {
		t.Errorf("read % x", buf[:4])
	}

	if n, err := d.ReadAt(buf, capacity); n != 0 || err != io.EOF {
		t.Errorf("ReadAt past end = %d, %v", n, err)
	}
	if _, err := d.ReadAt(buf, -1); !errors.Is(err, ErrorInvalidAddress) {
		t.Errorf("negative offset: %v", err)
	}
}

func TestWriteAt(t *testing.T) {
	d, _, _ := newTestDevice(t)

	var w io.WriterAt = d
	if _, err := w.WriteAt([]byte("hello"), 0x1234); err != nil {
		t.Fatal(err)
	}

	var r io.ReaderAt = d
	buf := make([]byte, 5)
	if _, err := r.ReadAt(buf, 0x1234); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "hello" {
		t.Errorf("read %q", buf)
	}
}

func TestEraseRange(t *testing.T) {
	d, chip, _ := newTestDevice(t)
	sector := d.Geometry().SectorSize

	for i := range chip.Memory[:4*sector] {
		chip.Memory[i] = 0
	}

	if err := d.EraseRange(sector, 2*sector); err != nil {
		t.Fatal(err)
	}

	check := func(from, to uint32, want byte) {
		for i := from; i < to; i++ {
			if chip.Memory[i] != want {
				t.Errorf("memory[0x%06x] = %02x, want %02x", i, chip.Memory[i], want)
				return
			}
		}
	}
	check(0, sector, 0)
	check(sector, 3*sector, 0xFF)
	check(3*sector, 4*sector, 0)

	erases := 0
	for _, op := range chip.Opcodes() {
		if op == byte(OpSectorErase) {
			erases++
		}
	}
	if erases != 2 {
		t.Errorf("%d erases, want 2", erases)
	}

	chip.ResetLog()
	if err := d.EraseRange(0, sector/2); !errors.Is(err, ErrorUnalignedAddress) {
		t.Errorf("got %v, want ErrorUnalignedAddress", err)
	}
	if err := d.EraseRange(d.Geometry().Capacity-sector, 2*sector); !errors.Is(err, ErrorInvalidAddress) {
		t.Errorf("got %v, want ErrorInvalidAddress", err)
	}
	if len(chip.Log) != 0 {
		t.Error("rejected erase reached the bus")
	}
}
