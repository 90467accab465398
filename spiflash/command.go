package spiflash

import (
	"encoding/binary"
	"fmt"
)

/* A frame is the complete byte sequence clocked out during one transaction.
 * The bus is full duplex, so inbound bytes are received while the tail of tx
 * (zero filled) is shifted out. */
type frame struct {
	op  Opcode
	tx  []byte
	hdr int // opcode, address and dummy bytes
	in  int // inbound window following the header
}

func encodeOpcode(op Opcode, in int) frame {
	tx := make([]byte, 1+in)
	tx[0] = byte(op)
	return frame{op: op, tx: tx, hdr: 1, in: in}
}

func encodeAddressed(op Opcode, address uint32, extra int) []byte {
	hdr := 1 + addressBytes + op.dummyBytes()
	tx := make([]byte, hdr+extra)

	/* Address is below 2^24, so the top byte is free for the opcode */
	binary.BigEndian.PutUint32(tx, address)
	tx[0] = byte(op)
	return tx
}

func encodeIdentify() frame {
	return encodeOpcode(OpReadJEDECID, 3)
}

func encodeReadStatus() frame {
	return encodeOpcode(OpReadStatus1, 1)
}

func encodeWriteEnable() frame {
	return encodeOpcode(OpWriteEnable, 0)
}

func checkRange(address uint32, length int, g Geometry) error {
	if address >= g.Capacity || uint64(address)+uint64(length) > uint64(g.Capacity) {
		return fmt.Errorf("%w: 0x%06x+%d, capacity 0x%06x", ErrorInvalidAddress, address, length, g.Capacity)
	}
	return nil
}

func encodeRead(op Opcode, address uint32, length int, g Geometry) (frame, error) {
	if op != OpRead && op != OpFastRead {
		panic("spiflash: not a read opcode")
	}
	if err := checkRange(address, length, g); err != nil {
		return frame{}, err
	}

	tx := encodeAddressed(op, address, length)
	return frame{op: op, tx: tx, hdr: len(tx) - length, in: length}, nil
}

func encodeProgram(address uint32, data []byte, g Geometry) (frame, error) {
	offset := address & (g.PageSize - 1)
	if uint64(offset)+uint64(len(data)) > uint64(g.PageSize) {
		return frame{}, fmt.Errorf("%w: 0x%06x+%d, page size %d", ErrorPageBoundary, address, len(data), g.PageSize)
	}
	if err := checkRange(address, len(data), g); err != nil {
		return frame{}, err
	}

	tx := encodeAddressed(OpPageProgram, address, len(data))
	hdr := len(tx) - len(data)
	copy(tx[hdr:], data)
	return frame{op: OpPageProgram, tx: tx, hdr: hdr}, nil
}

func encodeErase(address uint32, g Geometry) (frame, error) {
	if address%g.SectorSize != 0 {
		return frame{}, fmt.Errorf("%w: 0x%06x, sector size %d", ErrorUnalignedAddress, address, g.SectorSize)
	}
	if err := checkRange(address, 0, g); err != nil {
		return frame{}, err
	}

	tx := encodeAddressed(OpSectorErase, address, 0)
	return frame{op: OpSectorErase, tx: tx, hdr: len(tx)}, nil
}
