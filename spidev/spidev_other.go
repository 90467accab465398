//go:build !linux

package spidev

type SPI struct {
	SpeedHz     uint32
	BitsPerWord uint8
	BufSize     int
}

func Open(path string, mode Mode, hz uint32) (*SPI, error) {
	return nil, ErrorUnsupported
}

func (s *SPI) SetMode(m Mode) error       { return ErrorUnsupported }
func (s *SPI) SetSpeedHz(hz uint32) error { return ErrorUnsupported }
func (s *SPI) Close() error               { return nil }
func (s *SPI) String() string             { return "spidev" }

func (s *SPI) Tx(w, r []byte) error {
	if err := checkLengths(w, r, s.BufSize); err != nil {
		return err
	}
	return ErrorUnsupported
}
