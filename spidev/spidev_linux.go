//go:build linux

package spidev

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

type SPI struct {
	path string
	fd   int

	SpeedHz     uint32
	BitsPerWord uint8

	// BufSize is the largest transfer the kernel driver accepts.
	BufSize int
}

// Open opens a spidev node such as /dev/spidev0.0 and configures it.
func Open(path string, mode Mode, hz uint32) (*SPI, error) {
	s := &SPI{
		path:        path,
		fd:          -1,
		BitsPerWord: 8,
		BufSize:     DefaultBufSize,
	}

	var err error
	s.fd, err = unix.Open(path, unix.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}

	if err := s.SetMode(mode); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.ioctl(iocWrBitsPerWord, unsafe.Pointer(&s.BitsPerWord)); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.SetSpeedHz(hz); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func (s *SPI) ioctl(req uintptr, arg unsafe.Pointer) error {
	if s.fd < 0 {
		return ErrorClosed
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(s.fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func (s *SPI) SetMode(m Mode) error {
	return s.ioctl(iocWrMode32, unsafe.Pointer(&m))
}

// SetSpeedHz sets the default clock. The driver may round it down, the
// actual value is read back into SpeedHz.
func (s *SPI) SetSpeedHz(hz uint32) error {
	if err := s.ioctl(iocWrMaxSpeedHz, unsafe.Pointer(&hz)); err != nil {
		return err
	}
	return s.ioctl(iocRdMaxSpeedHz, unsafe.Pointer(&s.SpeedHz))
}

// Tx clocks out w and, if r is not nil, stores the bytes clocked in.
func (s *SPI) Tx(w, r []byte) error {
	if err := checkLengths(w, r, s.BufSize); err != nil {
		return err
	}
	if len(w) == 0 {
		return nil
	}

	xfer := iocTransfer{
		TxBuf:       uint64(uintptr(unsafe.Pointer(&w[0]))),
		Length:      uint32(len(w)),
		SpeedHz:     s.SpeedHz,
		BitsPerWord: s.BitsPerWord,
	}
	if r != nil {
		xfer.RxBuf = uint64(uintptr(unsafe.Pointer(&r[0])))
	}

	err := s.ioctl(iocMessage(1), unsafe.Pointer(&xfer))
	runtime.KeepAlive(w)
	runtime.KeepAlive(r)
	return err
}

func (s *SPI) Close() error {
	if s.fd < 0 {
		return nil
	}

	fd := s.fd
	s.fd = -1

	return unix.Close(fd)
}

func (s *SPI) String() string {
	return fmt.Sprintf("%s@%dHz", s.path, s.SpeedHz)
}
