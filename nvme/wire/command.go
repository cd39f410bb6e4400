package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Command is the 64-byte NVMe submission queue entry, laid out exactly per
// NVMe 1.2.1: DWord 0 (OPC/FUSE/PSDT/CID), NSID, two reserved/command-set
// DWords, a metadata pointer, PRP1/PRP2, and six command-specific DWords.
type Command struct {
	OPC  uint8
	FUSE uint8 // low 2 bits significant
	PSDT uint8 // low 2 bits significant
	CID  uint16

	NSID uint32

	CDW2 uint32
	CDW3 uint32

	MPTR uint64

	PRP1 uint64
	PRP2 uint64

	CDW10 uint32
	CDW11 uint32
	CDW12 uint32
	CDW13 uint32
	CDW14 uint32
	CDW15 uint32
}

// onWireCommand mirrors Command's field order as a fixed-size binary.Read
// target, matching the little-endian wire layout.
type onWireCommand struct {
	DW0   uint32
	NSID  uint32
	CDW2  uint32
	CDW3  uint32
	MPTR  uint64
	PRP1  uint64
	PRP2  uint64
	CDW10 uint32
	CDW11 uint32
	CDW12 uint32
	CDW13 uint32
	CDW14 uint32
	CDW15 uint32
}

// DecodeCommand parses a CommandSize-byte buffer into a Command.
func DecodeCommand(buf []byte) (Command, error) {
	if len(buf) < CommandSize {
		return Command{}, fmt.Errorf("wire: command buffer too short: %d bytes", len(buf))
	}

	var raw onWireCommand
	if err := binary.Read(bytes.NewReader(buf[:CommandSize]), binary.LittleEndian, &raw); err != nil {
		return Command{}, fmt.Errorf("wire: decode command: %w", err)
	}

	return Command{
		OPC:   uint8(raw.DW0),
		FUSE:  uint8(raw.DW0>>8) & 0x3,
		PSDT:  uint8(raw.DW0>>14) & 0x3,
		CID:   uint16(raw.DW0 >> 16),
		NSID:  raw.NSID,
		CDW2:  raw.CDW2,
		CDW3:  raw.CDW3,
		MPTR:  raw.MPTR,
		PRP1:  raw.PRP1,
		PRP2:  raw.PRP2,
		CDW10: raw.CDW10,
		CDW11: raw.CDW11,
		CDW12: raw.CDW12,
		CDW13: raw.CDW13,
		CDW14: raw.CDW14,
		CDW15: raw.CDW15,
	}, nil
}

// Encode writes c into a CommandSize-byte buffer.
func (c Command) Encode() []byte {
	dw0 := uint32(c.OPC) | uint32(c.FUSE&0x3)<<8 | uint32(c.PSDT&0x3)<<14 | uint32(c.CID)<<16

	raw := onWireCommand{
		DW0:   dw0,
		NSID:  c.NSID,
		CDW2:  c.CDW2,
		CDW3:  c.CDW3,
		MPTR:  c.MPTR,
		PRP1:  c.PRP1,
		PRP2:  c.PRP2,
		CDW10: c.CDW10,
		CDW11: c.CDW11,
		CDW12: c.CDW12,
		CDW13: c.CDW13,
		CDW14: c.CDW14,
		CDW15: c.CDW15,
	}

	buf := new(bytes.Buffer)
	buf.Grow(CommandSize)
	_ = binary.Write(buf, binary.LittleEndian, raw)
	return buf.Bytes()
}

// CreateQueueArgs holds the Create I/O (Submission|Completion) Queue
// fields packed into CDW10/CDW11, per NVMe 1.2.1 figures.
type CreateQueueArgs struct {
	QID      uint16
	QSize    uint16 // zero-based
	PC       bool   // physically contiguous
	CQID     uint16 // submission queue only
	IV       uint16 // completion queue only
	IEN      bool   // completion queue only, interrupts enabled
}

// DecodeCreateSubmissionQueueArgs reads QID/QSIZE from CDW10 and CQID/PC
// from CDW11, for a Create I/O Submission Queue command.
func DecodeCreateSubmissionQueueArgs(c Command) CreateQueueArgs {
	return CreateQueueArgs{
		QID:   uint16(c.CDW10),
		QSize: uint16(c.CDW10 >> 16),
		PC:    c.CDW11&0x1 != 0,
		CQID:  uint16(c.CDW11 >> 16),
	}
}

// DecodeCreateCompletionQueueArgs reads QID/QSIZE from CDW10 and PC/IEN/IV
// from CDW11, for a Create I/O Completion Queue command.
func DecodeCreateCompletionQueueArgs(c Command) CreateQueueArgs {
	return CreateQueueArgs{
		QID:   uint16(c.CDW10),
		QSize: uint16(c.CDW10 >> 16),
		PC:    c.CDW11&0x1 != 0,
		IEN:   c.CDW11&0x2 != 0,
		IV:    uint16(c.CDW11 >> 16),
	}
}

// IOArgs decodes the SLBA/NLB fields shared by Read and Write commands.
type IOArgs struct {
	SLBA uint64
	NLB  uint16 // zero-based
}

func DecodeIOArgs(c Command) IOArgs {
	slba := uint64(c.CDW10) | uint64(c.CDW11)<<32
	return IOArgs{SLBA: slba, NLB: uint16(c.CDW12)}
}

// FormatArgs decodes the Format NVM command's CDW10 fields.
type FormatArgs struct {
	LBAF uint8
	MSET uint8
	PI   uint8
	PIL  uint8
	SES  uint8
}

func DecodeFormatArgs(c Command) FormatArgs {
	return FormatArgs{
		LBAF: uint8(c.CDW10) & 0xF,
		MSET: uint8(c.CDW10>>4) & 0x1,
		PI:   uint8(c.CDW10>>5) & 0x7,
		PIL:  uint8(c.CDW10>>8) & 0x1,
		SES:  uint8(c.CDW10>>9) & 0x7,
	}
}

// DecodeIdentifyArgs decodes the Identify command's CNS field from CDW10.
func DecodeIdentifyArgs(c Command) (cns uint8) {
	return uint8(c.CDW10)
}
