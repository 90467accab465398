// Package dump stores a region of SPI flash in a file. A dump is a 32 byte
// big endian header followed by the raw payload:
//
//	0x00  magic "SPNR"
//	0x04  format version
//	0x06  JEDEC ID (manufacturer, type, capacity)
//	0x09  reserved, zero
//	0x0C  base address
//	0x10  payload length
//	0x14  payload CRC-32
//	0x18  reserved, zero
//	0x1C  header CRC-32 over 0x00-0x1B
package dump

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
)

const (
	HeaderSize = 0x20
	Version    = 1
)

var magic = []byte("SPNR")

var (
	ErrorInvalidLength = errors.New("dump length not valid")
	ErrorInvalidHeader = errors.New("header is not valid")
	ErrorInvalidCRC    = errors.New("CRC is not valid")
)

type Header struct {
	ID     [3]byte
	Base   uint32
	Length uint32
	CRC    uint32
}

func makeHeader(hdr []byte, h Header) {
	copy(hdr[0:], magic)
	binary.BigEndian.PutUint16(hdr[4:], Version)
	copy(hdr[6:9], h.ID[:])
	binary.BigEndian.PutUint32(hdr[0x0C:], h.Base)
	binary.BigEndian.PutUint32(hdr[0x10:], h.Length)
	binary.BigEndian.PutUint32(hdr[0x14:], h.CRC)
	binary.BigEndian.PutUint32(hdr[0x1C:], Checksum(hdr[:0x1C]))
}

func parseHeader(hdr []byte) Header {
	var h Header
	copy(h.ID[:], hdr[6:9])
	h.Base = binary.BigEndian.Uint32(hdr[0x0C:])
	h.Length = binary.BigEndian.Uint32(hdr[0x10:])
	h.CRC = binary.BigEndian.Uint32(hdr[0x14:])
	return h
}

// IsDump reports whether buf starts like a dump. It does not validate it.
func IsDump(buf []byte) bool {
	return bytes.HasPrefix(buf, magic)
}

// Build wraps payload, read from flash at base, into a dump.
func Build(id [3]byte, base uint32, payload []byte) []byte {
	out := make([]byte, HeaderSize+len(payload))

	makeHeader(out, Header{
		ID:     id,
		Base:   base,
		Length: uint32(len(payload)),
		CRC:    Checksum(payload),
	})
	copy(out[HeaderSize:], payload)

	return out
}

func Validate(dump []byte) error {
	if len(dump) < HeaderSize {
		return ErrorInvalidLength
	}

	if !bytes.Equal(dump[:len(magic)], magic) || binary.BigEndian.Uint16(dump[4:]) != Version {
		return ErrorInvalidHeader
	}
	if binary.BigEndian.Uint32(dump[0x1C:]) != Checksum(dump[:0x1C]) {
		return ErrorInvalidHeader
	}

	h := parseHeader(dump)
	if uint64(len(dump)) != HeaderSize+uint64(h.Length) {
		return ErrorInvalidLength
	}
	if Checksum(dump[HeaderSize:]) != h.CRC {
		return ErrorInvalidCRC
	}

	return nil
}

func Extract(dump []byte) (Header, []byte, error) {
	if err := Validate(dump); err != nil {
		return Header{}, nil, err
	}

	return parseHeader(dump), dump[HeaderSize:], nil
}

func ReadFile(path string) (Header, []byte, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Header{}, nil, errors.Wrap(err, "read dump")
	}

	h, payload, err := Extract(buf)
	if err != nil {
		return Header{}, nil, errors.Wrapf(err, "%s", path)
	}
	return h, payload, nil
}

func WriteFile(path string, id [3]byte, base uint32, payload []byte) error {
	return errors.Wrap(os.WriteFile(path, Build(id, base, payload), 0644), "write dump")
}
