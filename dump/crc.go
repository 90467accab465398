package dump

import (
	"github.com/snksoft/crc"
)

var crcTable *crc.Table

func init() {
	crcTable = crc.NewTable(crc.CRC32)
}

// Checksum returns the CRC-32 (IEEE) of data.
func Checksum(data []byte) uint32 {
	h := crc.NewHashWithTable(crcTable)
	h.Update(data)
	return h.CRC32()
}
