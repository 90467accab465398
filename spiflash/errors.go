package spiflash

import (
	"errors"
	"fmt"
)

var (
	ErrorInvalidAddress    = errors.New("address range outside of device")
	ErrorUnalignedAddress  = errors.New("address is not sector aligned")
	ErrorPageBoundary      = errors.New("program crosses page boundary")
	ErrorTimeout           = errors.New("timeout waiting for device to become idle")
	ErrorBusy              = errors.New("device is busy")
	ErrorUnsupportedDevice = errors.New("unsupported flash device")
	ErrorInvalidConfig     = errors.New("invalid configuration")
	ErrorTooLarge          = errors.New("transaction exceeds transceiver limit")
)

// BusError is returned when the transceiver or the chip select line fails.
// The underlying error is kept unchanged and can be reached with errors.Is/As.
type BusError struct {
	Op  Opcode
	Err error
}

func (e *BusError) Error() string {
	if e.Op == 0 {
		return fmt.Sprintf("chip select failed: %v", e.Err)
	}
	return fmt.Sprintf("spi transaction %s failed: %v", e.Op, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}

func IsBusError(err error) bool {
	var be *BusError
	return errors.As(err, &be)
}
