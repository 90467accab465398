package spiflash

import (
	"fmt"
	"strings"
)

// StatusRegister is the value of status register 1.
//
//	Bit | Name
//	----+------------------------------
//	4:2 | BP2-0: Block Protect (read only here)
//	1   | WEL: Write Enable Latch
//	0   | BUSY: Erase/Write in progress
type StatusRegister uint8

const (
	statusBusy = 1 << 0
	statusWEL  = 1 << 1
	statusBP0  = 1 << 2
	statusBP1  = 1 << 3
	statusBP2  = 1 << 4
)

func (sr StatusRegister) Busy() bool             { return sr&statusBusy != 0 }
func (sr StatusRegister) WriteEnableLatch() bool { return sr&statusWEL != 0 }
func (sr StatusRegister) BlockProtect() uint8    { return uint8(sr>>2) & 0x7 }

func (sr StatusRegister) String() string {
	var s []string
	if sr&statusBP2 != 0 {
		s = append(s, "BP2")
	}
	if sr&statusBP1 != 0 {
		s = append(s, "BP1")
	}
	if sr&statusBP0 != 0 {
		s = append(s, "BP0")
	}
	if sr.WriteEnableLatch() {
		s = append(s, "WEL")
	}
	if sr.Busy() {
		s = append(s, "BUSY")
	}

	b := fmt.Sprintf("%08b", uint8(sr))
	if len(s) == 0 {
		return b
	}
	return b + " " + strings.Join(s, ",")
}
