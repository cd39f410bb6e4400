package regs_test

import (
	"testing"

	"example.com/nvmesim/nvme/regs"
)

func newTestControllerRegisters(maxQueues int) *regs.ControllerRegisters {
	size := regs.ControllerRegisterBlockSize + regs.DoorbellArraySize(maxQueues, 0)
	return regs.NewControllerRegisters(make([]byte, size), maxQueues)
}

// CAP packs nine independent bit-fields into one 8-byte register; a field
// overlap bug usually corrupts more than one field at once, so every field
// except DSTRD (set to 0) is checked rather than stopping at the first
// mismatch.
func TestCAPRoundTrip(t *testing.T) {
	r := newTestControllerRegisters(8)
	r.SetCAP(1024, true, 1, 30, 0, true, 1, 0, 4)

	if got := r.CAP_MQES(); got != 1024 {
		t.Errorf("CAP_MQES() = %d, want 1024", got)
	}
	if !r.CAP_CQR() {
		t.Error("CAP_CQR() = false, want true")
	}
	if got := r.CAP_AMS(); got != 1 {
		t.Errorf("CAP_AMS() = %d, want 1", got)
	}
	if got := r.CAP_TO(); got != 30 {
		t.Errorf("CAP_TO() = %d, want 30", got)
	}
	if !r.CAP_NSSRS() {
		t.Error("CAP_NSSRS() = false, want true")
	}
	if got := r.CAP_CSS(); got != 1 {
		t.Errorf("CAP_CSS() = %d, want 1", got)
	}
	if got := r.CAP_MPSMIN(); got != 0 {
		t.Errorf("CAP_MPSMIN() = %d, want 0", got)
	}
	if got := r.CAP_MPSMAX(); got != 4 {
		t.Errorf("CAP_MPSMAX() = %d, want 4", got)
	}
}

func TestVSRoundTrip(t *testing.T) {
	r := newTestControllerRegisters(8)
	r.SetVS(1, 2, 1)

	major, minor, ter := r.VS()
	if major != 1 {
		t.Errorf("VS major = %d, want 1", major)
	}
	if minor != 2 {
		t.Errorf("VS minor = %d, want 2", minor)
	}
	if ter != 1 {
		t.Errorf("VS tertiary = %d, want 1", ter)
	}
}

func TestCCFieldsDoNotClobberEachOther(t *testing.T) {
	r := newTestControllerRegisters(8)

	r.SetCC_MPS(3)
	r.SetCC_IOSQES(6)
	r.SetCC_IOCQES(4)
	r.SetCC_EN(true)
	r.SetCC_SHN(regs.ShutdownNormal)

	if !r.CC_EN() {
		t.Error("CC_EN() = false, want true")
	}
	if got := r.CC_MPS(); got != 3 {
		t.Errorf("CC_MPS() = %d, want 3", got)
	}
	if got := r.CC_IOSQES(); got != 6 {
		t.Errorf("CC_IOSQES() = %d, want 6", got)
	}
	if got := r.CC_IOCQES(); got != 4 {
		t.Errorf("CC_IOCQES() = %d, want 4", got)
	}
	if got := r.CC_SHN(); got != regs.ShutdownNormal {
		t.Errorf("CC_SHN() = %d, want %d", got, regs.ShutdownNormal)
	}
}

func TestResetCCClearsWholeRegister(t *testing.T) {
	r := newTestControllerRegisters(8)
	r.SetCC_EN(true)
	r.SetCC_MPS(2)

	r.ResetCC()

	if r.CC_EN() {
		t.Error("CC_EN() true after ResetCC")
	}
	if got := r.CC_MPS(); got != 0 {
		t.Errorf("CC_MPS() = %d after ResetCC, want 0", got)
	}
}

func TestAQAASQACQRoundTrip(t *testing.T) {
	r := newTestControllerRegisters(8)
	r.SetAQA_ASQS(63)
	r.SetAQA_ACQS(127)
	r.SetASQ_ASQB(0x1000)
	r.SetACQ_ACQB(0x2000)

	if got := r.AQA_ASQS(); got != 63 {
		t.Errorf("AQA_ASQS() = %d, want 63", got)
	}
	if got := r.AQA_ACQS(); got != 127 {
		t.Errorf("AQA_ACQS() = %d, want 127", got)
	}
	if got := r.ASQ_ASQB(); got != 0x1000 {
		t.Errorf("ASQ_ASQB() = 0x%x, want 0x1000", got)
	}
	if got := r.ACQ_ACQB(); got != 0x2000 {
		t.Errorf("ACQ_ACQB() = 0x%x, want 0x2000", got)
	}
}

func TestResetPreservingAdminQueueConfigKeepsAQAASQACQ(t *testing.T) {
	r := newTestControllerRegisters(8)
	r.SetCAP(1024, true, 0, 30, 0, true, 1, 0, 4)
	r.SetVS(1, 2, 1)
	r.SetAQA_ASQS(63)
	r.SetAQA_ACQS(63)
	r.SetASQ_ASQB(0x4000)
	r.SetACQ_ACQB(0x5000)
	r.SetCC_EN(true)
	r.SetCSTS_RDY(true)
	r.SetNSSR(regs.NSSRMagic)
	r.SetSQTDBL(1, 5)

	r.ResetPreservingAdminQueueConfig()

	if r.CC_EN() {
		t.Error("CC_EN() true after reset")
	}
	if r.CSTS_RDY() {
		t.Error("CSTS_RDY() true after reset")
	}
	if r.NSSR() != 0 {
		t.Errorf("NSSR() = 0x%x after reset, want 0", r.NSSR())
	}
	if r.SQTDBL(1) != 0 {
		t.Errorf("SQTDBL(1) = %d after reset, want 0", r.SQTDBL(1))
	}
	if got := r.AQA_ASQS(); got != 63 {
		t.Errorf("AQA_ASQS() = %d after reset, want 63 (preserved)", got)
	}
	if got := r.ASQ_ASQB(); got != 0x4000 {
		t.Errorf("ASQ_ASQB() = 0x%x after reset, want 0x4000 (preserved)", got)
	}
	if got := r.ACQ_ACQB(); got != 0x5000 {
		t.Errorf("ACQ_ACQB() = 0x%x after reset, want 0x5000 (preserved)", got)
	}
	major, _, _ := r.VS()
	if major != 1 {
		t.Errorf("VS major = %d after reset, want 1 (preserved)", major)
	}
	if got := r.CAP_MQES(); got != 1024 {
		t.Errorf("CAP_MQES() = %d after reset, want 1024 (preserved)", got)
	}
}

func TestDoorbellsAreIndependentPerQueue(t *testing.T) {
	r := newTestControllerRegisters(4)

	r.SetSQTDBL(0, 10)
	r.SetSQTDBL(1, 20)
	r.SetCQHDBL(0, 30)
	r.SetCQHDBL(1, 40)

	if got := r.SQTDBL(0); got != 10 {
		t.Errorf("SQTDBL(0) = %d, want 10", got)
	}
	if got := r.SQTDBL(1); got != 20 {
		t.Errorf("SQTDBL(1) = %d, want 20", got)
	}
	if got := r.CQHDBL(0); got != 30 {
		t.Errorf("CQHDBL(0) = %d, want 30", got)
	}
	if got := r.CQHDBL(1); got != 40 {
		t.Errorf("CQHDBL(1) = %d, want 40", got)
	}
}
