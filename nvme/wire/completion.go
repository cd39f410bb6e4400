package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Completion is the 16-byte NVMe completion queue entry, per NVMe 1.2.1:
// a command-specific DWord 0, a reserved DWord 1, SQHD/SQID, CID, and the
// phase/status DWord.
type Completion struct {
	DW0  uint32
	SQHD uint16
	SQID uint16
	CID  uint16

	Phase           bool
	StatusCode      uint8 // SC
	StatusCodeType  uint8 // SCT, 3 bits
	More            bool  // M
	DoNotRetry      bool  // DNR
}

type onWireCompletion struct {
	DW0  uint32
	DW1  uint32
	SQHD uint16
	SQID uint16
	CID  uint16
	StatusWord uint16
}

// DecodeCompletion parses a CompletionSize-byte buffer into a Completion.
func DecodeCompletion(buf []byte) (Completion, error) {
	if len(buf) < CompletionSize {
		return Completion{}, fmt.Errorf("wire: completion buffer too short: %d bytes", len(buf))
	}

	var raw onWireCompletion
	if err := binary.Read(bytes.NewReader(buf[:CompletionSize]), binary.LittleEndian, &raw); err != nil {
		return Completion{}, fmt.Errorf("wire: decode completion: %w", err)
	}

	return Completion{
		DW0:            raw.DW0,
		SQHD:           raw.SQHD,
		SQID:           raw.SQID,
		CID:            raw.CID,
		Phase:          raw.StatusWord&0x1 != 0,
		StatusCode:     uint8(raw.StatusWord >> 1),
		StatusCodeType: uint8(raw.StatusWord>>9) & 0x7,
		More:           raw.StatusWord&0x4000 != 0,
		DoNotRetry:     raw.StatusWord&0x8000 != 0,
	}, nil
}

// Encode writes c into a CompletionSize-byte buffer.
func (c Completion) Encode() []byte {
	var statusWord uint16
	if c.Phase {
		statusWord |= 0x1
	}
	statusWord |= uint16(c.StatusCode) << 1
	statusWord |= uint16(c.StatusCodeType&0x7) << 9
	if c.More {
		statusWord |= 0x4000
	}
	if c.DoNotRetry {
		statusWord |= 0x8000
	}

	raw := onWireCompletion{
		DW0:        c.DW0,
		SQHD:       c.SQHD,
		SQID:       c.SQID,
		CID:        c.CID,
		StatusWord: statusWord,
	}

	buf := new(bytes.Buffer)
	buf.Grow(CompletionSize)
	_ = binary.Write(buf, binary.LittleEndian, raw)
	return buf.Bytes()
}

// Success builds a successful completion shell (DW0=0, SC=0, SCT=Generic)
// with the queue/command fields filled in by the dispatcher.
func Success() Completion {
	return Completion{}
}

// Error builds an error completion with the given status type/code and
// do-not-retry bit set.
func Error(sct, sc uint8) Completion {
	return Completion{StatusCodeType: sct, StatusCode: sc, DoNotRetry: true}
}
