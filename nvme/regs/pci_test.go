package regs_test

import (
	"testing"

	"example.com/nvmesim/nvme/regs"
)

func TestPCIIdentifiersAndBAR0RoundTrip(t *testing.T) {
	buf := make([]byte, 0x80)
	r := regs.NewPCIExpressRegisters(buf, 0x40)

	r.SetIdentifiers(0x8086, 0x1234)
	r.SetBAR0(0x7F00000000)

	if got := r.VID(); got != 0x8086 {
		t.Errorf("VID() = 0x%x, want 0x8086", got)
	}
	if got := r.DID(); got != 0x1234 {
		t.Errorf("DID() = 0x%x, want 0x1234", got)
	}
	if got := r.BAR0(); got != 0x7F00000000 {
		t.Errorf("BAR0() = 0x%x, want 0x7F00000000", got)
	}
}

func TestPXDCIFLRRequestAndClear(t *testing.T) {
	buf := make([]byte, 0x80)
	r := regs.NewPCIExpressRegisters(buf, 0x40)

	if r.PXDC_IFLR() {
		t.Fatal("PXDC_IFLR() true before any request")
	}

	r.RequestFunctionLevelReset()
	if !r.PXDC_IFLR() {
		t.Error("PXDC_IFLR() false after RequestFunctionLevelReset")
	}

	r.ClearPXDC_IFLR()
	if r.PXDC_IFLR() {
		t.Error("PXDC_IFLR() true after ClearPXDC_IFLR")
	}
}

func TestRestoreHeaderSnapshotUndoesHeaderWrites(t *testing.T) {
	buf := make([]byte, 0x80)
	// NewPCIExpressRegisters snapshots the header at construction time, so a
	// reset restores whatever was present then, not any later write.
	buf[0], buf[1] = 0x86, 0x80 // VID = 0x8086, little-endian
	r := regs.NewPCIExpressRegisters(buf, 0x40)

	r.SetIdentifiers(0xDEAD, 0xBEEF)
	if got := r.VID(); got != 0xDEAD {
		t.Fatalf("VID() = 0x%x after overwrite, want 0xDEAD", got)
	}

	r.RestoreHeaderSnapshot()

	if got := r.VID(); got != 0x8086 {
		t.Errorf("VID() = 0x%x after restore, want 0x8086 (construction-time snapshot)", got)
	}
	if got := r.DID(); got != 0 {
		t.Errorf("DID() = 0x%x after restore, want 0 (construction-time snapshot)", got)
	}
}
