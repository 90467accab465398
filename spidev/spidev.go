// Package spidev talks to a SPI bus through the Linux spidev character
// device. Every Tx is one SPI_IOC_MESSAGE with a single transfer, so the
// kernel keeps its chip select asserted for exactly the length of the call.
package spidev

import (
	"errors"
	"unsafe"
)

var (
	ErrorLength      = errors.New("spidev: rx and tx length differ")
	ErrorTooLong     = errors.New("spidev: transfer larger than the driver buffer")
	ErrorUnsupported = errors.New("spidev: not supported on this platform")
	ErrorClosed      = errors.New("spidev: device is closed")
)

// Mode holds the SPI_MODE_* bits of include/uapi/linux/spi/spi.h.
type Mode uint32

const (
	CPHA Mode = 1 << iota
	CPOL
	CSHigh
	LSBFirst
	ThreeWire
	Loop
	NoCS

	Mode0 Mode = 0
	Mode3 Mode = CPHA | CPOL
)

/* The default value of the spidev bufsiz module parameter */
const DefaultBufSize = 4096

const (
	iocWrMode32      = 0x40046b05
	iocWrBitsPerWord = 0x40016b03
	iocWrMaxSpeedHz  = 0x40046b04
	iocRdMaxSpeedHz  = 0x80046b04
)

/* struct spi_ioc_transfer, 32 bytes on every architecture */
type iocTransfer struct {
	TxBuf          uint64
	RxBuf          uint64
	Length         uint32
	SpeedHz        uint32
	DelayUsecs     uint16
	BitsPerWord    uint8
	CSChange       uint8
	TxNBits        uint8
	RxNBits        uint8
	WordDelayUsecs uint8
	Pad            uint8
}

// iocMessage returns SPI_IOC_MESSAGE(n).
func iocMessage(n int) uintptr {
	size := uint32(n) * uint32(unsafe.Sizeof(iocTransfer{}))
	if size >= 1<<14 {
		size = 0
	}
	return 0x40006b00 | uintptr(size)<<16
}

func checkLengths(w, r []byte, bufSize int) error {
	if r != nil && len(r) != len(w) {
		return ErrorLength
	}
	if bufSize > 0 && len(w) > bufSize {
		return ErrorTooLong
	}
	return nil
}
