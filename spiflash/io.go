package spiflash

import (
	"fmt"
	"io"
)

func (d *Device) writeChunk(offset uint32, data []byte) (int, error) {
	/* Do not write over page boundary */
	maxLen := pageCrossLength(offset, d.cfg.Geometry.PageSize)
	if len(data) > maxLen {
		data = data[:maxLen]
	}

	/* Erased bytes are already 0xFF, do not waste time programming them */
	skippedFront := 0
	for i, m := range data {
		if m != 0xFF {
			offset += uint32(i)
			skippedFront = i
			data = data[i:]
			break
		}
	}

	skippedEnd := 0
	for len(data) > 0 && data[len(data)-1] == 0xFF {
		data = data[:len(data)-1]
		skippedEnd++
	}
	if len(data) == 0 {
		return skippedFront + skippedEnd, nil
	}

	/* Ensure the transmission is not too long */
	if limit := d.cfg.MaxTransactionSize; limit > 0 && len(data)+1+addressBytes > limit {
		data = data[:limit-1-addressBytes]
		skippedEnd = 0
	}

	if err := d.programPage(offset, data); err != nil {
		return skippedFront, err
	}

	return skippedFront + skippedEnd + len(data), nil
}

// Write programs data starting at address, splitting it at page boundaries.
// The region must have been erased. It returns the number of bytes that are
// known to be written.
func (d *Device) Write(address uint32, data []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(data) == 0 {
		return 0, nil
	}
	if err := checkRange(address, len(data), d.cfg.Geometry); err != nil {
		return 0, err
	}

	return completeIO(address, data, d.writeChunk)
}

// ReadAt implements io.ReaderAt.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	capacity := int64(d.cfg.Geometry.Capacity)
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset", ErrorInvalidAddress)
	}
	if off >= capacity {
		return 0, io.EOF
	}

	var eof error
	if off+int64(len(p)) > capacity {
		p = p[:capacity-off]
		eof = io.EOF
	}

	if err := d.read(OpRead, uint32(off), p); err != nil {
		return 0, err
	}
	return len(p), eof
}

// WriteAt implements io.WriterAt on top of Write.
func (d *Device) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(maxAddressable) {
		return 0, fmt.Errorf("%w: offset %d", ErrorInvalidAddress, off)
	}
	return d.Write(uint32(off), p)
}

// EraseRange erases length bytes starting at address, one sector at a time.
// Both must be sector aligned.
func (d *Device) EraseRange(address uint32, length uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	g := d.cfg.Geometry
	if address%g.SectorSize != 0 || length%g.SectorSize != 0 {
		return fmt.Errorf("%w: 0x%06x+0x%x, sector size %d", ErrorUnalignedAddress, address, length, g.SectorSize)
	}
	if length == 0 {
		return nil
	}
	if err := checkRange(address, int(length), g); err != nil {
		return err
	}

	for offset := address; offset < address+length; offset += g.SectorSize {
		if err := d.eraseSector(offset); err != nil {
			return err
		}
	}
	return nil
}
