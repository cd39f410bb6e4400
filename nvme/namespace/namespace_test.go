package namespace_test

import (
	"bytes"
	"testing"

	"example.com/nvmesim/nvme/namespace"
	"example.com/nvmesim/nvme/wire"
)

func newTestNamespace(t *testing.T) *namespace.Namespace {
	t.Helper()
	ns, err := namespace.New(1, 64*4096, 1) // 64 sectors of 4096 bytes
	if err != nil {
		t.Fatalf("namespace.New: %v", err)
	}
	t.Cleanup(func() { ns.Close() })
	return ns
}

func TestNewNamespaceIdentifyFields(t *testing.T) {
	ns := newTestNamespace(t)
	if ns.NSID() != 1 {
		t.Errorf("NSID() = %d, want 1", ns.NSID())
	}
	if got := ns.SectorSize(); got != 4096 {
		t.Errorf("SectorSize() = %d, want 4096", got)
	}
	if got := ns.SectorCount(); got != 64 {
		t.Errorf("SectorCount() = %d, want 64", got)
	}
	if ns.Identify().NSZE() != 64 {
		t.Errorf("Identify().NSZE() = %d, want 64", ns.Identify().NSZE())
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	ns := newTestNamespace(t)

	data := bytes.Repeat([]byte{0x5A}, int(ns.SectorSize()))
	if err := ns.Write(0, 0, data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := ns.Read(0, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	defer got.Close()

	if !bytes.Equal(got.Buffer(), data) {
		t.Errorf("Read after Write = %x, want %x", got.Buffer(), data)
	}
}

func TestWriteRejectsWrongLength(t *testing.T) {
	ns := newTestNamespace(t)
	if err := ns.Write(0, 0, make([]byte, 10)); err == nil {
		t.Error("Write with mismatched data length did not error")
	}
}

func TestReadWriteRejectOutOfRangeLBA(t *testing.T) {
	ns := newTestNamespace(t)
	if _, err := ns.Read(64, 0); err == nil {
		t.Error("Read at an out-of-range SLBA did not error")
	}
	if err := ns.Write(60, 10, make([]byte, 11*int(ns.SectorSize()))); err == nil {
		t.Error("Write spanning past capacity did not error")
	}
}

func TestFormatChangesLBAFormatAndZeroesMedia(t *testing.T) {
	ns := newTestNamespace(t)

	data := bytes.Repeat([]byte{0xFF}, int(ns.SectorSize()))
	if err := ns.Write(0, 0, data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := ns.Format(0, wire.SESUserDataErase); err != nil {
		t.Fatalf("Format: %v", err)
	}

	if got := ns.SectorSize(); got != 512 {
		t.Errorf("SectorSize() = %d after Format to index 0, want 512", got)
	}

	got, err := ns.Read(0, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	defer got.Close()
	for i, b := range got.Buffer() {
		if b != 0 {
			t.Fatalf("byte %d = 0x%02x after Format erase, want 0", i, b)
		}
	}
}

func TestNewRejectsMisalignedSize(t *testing.T) {
	ns, err := namespace.New(2, 100, 1)
	if err == nil {
		ns.Close()
		t.Fatal("namespace.New did not reject a size misaligned to its sector size")
	}
}

func TestEUI64IsStableAndEncodesNSID(t *testing.T) {
	ns, err := namespace.New(7, 4096, 1)
	if err != nil {
		t.Fatalf("namespace.New: %v", err)
	}
	defer ns.Close()

	eui64 := ns.EUI64()
	if eui64 != ns.Identify().EUI64() {
		t.Error("Namespace.EUI64() disagrees with its own Identify structure")
	}
	if got := uint32(eui64); got != 7 {
		t.Errorf("low 32 bits of EUI64 = %d, want NSID 7", got)
	}
}
