package wire_test

import (
	"testing"

	"example.com/nvmesim/nvme/wire"
)

func TestCommandEncodeDecodeRoundTrip(t *testing.T) {
	c := wire.Command{
		OPC:   wire.OpWrite,
		FUSE:  1,
		PSDT:  0,
		CID:   0x1234,
		NSID:  1,
		MPTR:  0xAABBCCDD,
		PRP1:  0x1000,
		PRP2:  0x2000,
		CDW10: 10,
		CDW11: 11,
		CDW12: 12,
		CDW13: 13,
		CDW14: 14,
		CDW15: 15,
	}

	buf := c.Encode()
	if len(buf) != wire.CommandSize {
		t.Fatalf("Encode() length = %d, want %d", len(buf), wire.CommandSize)
	}

	got, err := wire.DecodeCommand(buf)
	if err != nil {
		t.Fatalf("DecodeCommand: %v", err)
	}
	if got != c {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, c)
	}
}

func TestDecodeCommandTooShort(t *testing.T) {
	if _, err := wire.DecodeCommand(make([]byte, 10)); err == nil {
		t.Error("DecodeCommand of a short buffer did not error")
	}
}

func TestDecodeCreateSubmissionQueueArgs(t *testing.T) {
	c := wire.Command{
		CDW10: uint32(7) | uint32(63)<<16,       // QID=7, QSIZE=63
		CDW11: 0x1 | uint32(2)<<16,              // PC=1, CQID=2
	}
	args := wire.DecodeCreateSubmissionQueueArgs(c)
	if args.QID != 7 || args.QSize != 63 || !args.PC || args.CQID != 2 {
		t.Errorf("DecodeCreateSubmissionQueueArgs = %+v", args)
	}
}

func TestDecodeCreateCompletionQueueArgs(t *testing.T) {
	c := wire.Command{
		CDW10: uint32(3) | uint32(127)<<16, // QID=3, QSIZE=127
		CDW11: 0x1 | 0x2 | uint32(5)<<16,   // PC=1, IEN=1, IV=5
	}
	args := wire.DecodeCreateCompletionQueueArgs(c)
	if args.QID != 3 || args.QSize != 127 || !args.PC || !args.IEN || args.IV != 5 {
		t.Errorf("DecodeCreateCompletionQueueArgs = %+v", args)
	}
}

func TestDecodeIOArgs(t *testing.T) {
	c := wire.Command{CDW10: 0xAABBCCDD, CDW11: 0x11223344, CDW12: 99}
	args := wire.DecodeIOArgs(c)

	wantSLBA := uint64(0xAABBCCDD) | uint64(0x11223344)<<32
	if args.SLBA != wantSLBA {
		t.Errorf("SLBA = 0x%x, want 0x%x", args.SLBA, wantSLBA)
	}
	if args.NLB != 99 {
		t.Errorf("NLB = %d, want 99", args.NLB)
	}
}

func TestDecodeFormatArgs(t *testing.T) {
	cdw10 := uint32(0x3) | uint32(1)<<4 | uint32(2)<<5 | uint32(1)<<8 | uint32(4)<<9
	c := wire.Command{CDW10: cdw10}
	args := wire.DecodeFormatArgs(c)

	if args.LBAF != 3 {
		t.Errorf("LBAF = %d, want 3", args.LBAF)
	}
	if args.MSET != 1 {
		t.Errorf("MSET = %d, want 1", args.MSET)
	}
	if args.PI != 2 {
		t.Errorf("PI = %d, want 2", args.PI)
	}
	if args.PIL != 1 {
		t.Errorf("PIL = %d, want 1", args.PIL)
	}
	if args.SES != 4 {
		t.Errorf("SES = %d, want 4", args.SES)
	}
}

func TestDecodeIdentifyArgs(t *testing.T) {
	c := wire.Command{CDW10: uint32(wire.CNSIdentifyNamespaceList)}
	if cns := wire.DecodeIdentifyArgs(c); cns != wire.CNSIdentifyNamespaceList {
		t.Errorf("DecodeIdentifyArgs = %d, want %d", cns, wire.CNSIdentifyNamespaceList)
	}
}
