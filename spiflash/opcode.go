package spiflash

import "fmt"

type Opcode uint8

const (
	OpReadJEDECID Opcode = 0x9F
	OpReadStatus1 Opcode = 0x05
	OpWriteEnable Opcode = 0x06
	OpRead        Opcode = 0x03
	OpFastRead    Opcode = 0x0B
	OpPageProgram Opcode = 0x02
	OpSectorErase Opcode = 0xD8
)

const (
	addressBytes  = 3
	fastReadDummy = 1

	maxAddressable uint32 = 1 << (8 * addressBytes)
)

type frameShape int

const (
	shapeOpcode frameShape = iota
	shapeAddress
	shapeAddressPayload
)

func (o Opcode) shape() frameShape {
	switch o {
	case OpRead, OpFastRead, OpSectorErase:
		return shapeAddress
	case OpPageProgram:
		return shapeAddressPayload
	default:
		return shapeOpcode
	}
}

func (o Opcode) dummyBytes() int {
	if o == OpFastRead {
		return fastReadDummy
	}
	return 0
}

/* Program and erase change the array and start an internal cycle */
func (o Opcode) destructive() bool {
	return o == OpPageProgram || o == OpSectorErase
}

func (o Opcode) String() string {
	switch o {
	case OpReadJEDECID:
		return "READ_ID"
	case OpReadStatus1:
		return "READ_SR1"
	case OpWriteEnable:
		return "WREN"
	case OpRead:
		return "READ"
	case OpFastRead:
		return "FAST_READ"
	case OpPageProgram:
		return "PP"
	case OpSectorErase:
		return "SE"
	}
	return fmt.Sprintf("op(0x%02x)", uint8(o))
}
