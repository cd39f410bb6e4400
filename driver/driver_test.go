package driver_test

import (
	"testing"

	"example.com/nvmesim/driver"
	"example.com/nvmesim/internal/config"
	"example.com/nvmesim/internal/memory"
	"example.com/nvmesim/nvme/controller"
	"example.com/nvmesim/nvme/queue"
	"example.com/nvmesim/nvme/wire"
)

func newBoundController(t *testing.T) *controller.Controller {
	t.Helper()

	cfg := &config.ControllerConfig{
		VendorID:       0x8086,
		SubsystemID:    0x8086,
		ModelNumber:    "test controller",
		SerialNumber:   "TEST0000000000000001",
		FirmwareRev:    "1.0",
		MemoryPageSize: 4096,
		MaxQueueDepth:  64,
		MaxIOQueues:    4,
		TimeoutUnits:   4,
		Namespaces: []config.NamespaceConfig{
			{NSID: 1, SizeBytes: 64 * 4096, LBAFormat: 1},
		},
	}

	ctrl, err := controller.NewCooperative(cfg)
	if err != nil {
		t.Fatalf("NewCooperative: %v", err)
	}
	t.Cleanup(func() { ctrl.Close() })

	asq, err := memory.New(4 * wire.CommandSize)
	if err != nil {
		t.Fatalf("allocate ASQ: %v", err)
	}
	t.Cleanup(func() { asq.Close() })
	acq, err := memory.New(4 * wire.CompletionSize)
	if err != nil {
		t.Fatalf("allocate ACQ: %v", err)
	}
	t.Cleanup(func() { acq.Close() })

	regs := ctrl.Registers()
	regs.SetAQA_ASQS(3)
	regs.SetAQA_ACQS(3)
	regs.SetASQ_ASQB(uint64(asq.Address()))
	regs.SetACQ_ACQB(uint64(acq.Address()))
	regs.SetCC_MPS(0)
	regs.SetCC_EN(true)

	if err := ctrl.WaitForReady(true); err != nil {
		t.Fatalf("WaitForReady: %v", err)
	}
	return ctrl
}

func TestSubmitAndWaitAdminRoundTrip(t *testing.T) {
	ctrl := newBoundController(t)
	d := driver.New(ctrl)

	dc := &driver.DriverCommand{
		QueueId:       queue.AdminQueueID,
		Command:       wire.Command{OPC: wire.OpKeepAlive, CID: 99},
		DataDirection: driver.DirectionNone,
		TimeoutMs:     1000,
	}

	if err := d.SubmitAndWait(dc); err != nil {
		t.Fatalf("SubmitAndWait: %v", err)
	}
	if dc.DriverStatus != driver.StatusOK {
		t.Errorf("DriverStatus = %v, want StatusOK", dc.DriverStatus)
	}
	if dc.Completion.CID != 99 {
		t.Errorf("Completion.CID = %d, want 99", dc.Completion.CID)
	}
	if dc.Completion.StatusCode != wire.StatusSuccess {
		t.Errorf("Completion.StatusCode = %d, want 0", dc.Completion.StatusCode)
	}
}

func TestSubmitAndWaitNoMatchingQueue(t *testing.T) {
	ctrl := newBoundController(t)
	d := driver.New(ctrl)

	dc := &driver.DriverCommand{
		QueueId:       7,
		Command:       wire.Command{OPC: wire.OpKeepAlive, CID: 1},
		DataDirection: driver.DirectionNone,
		TimeoutMs:     100,
	}

	if err := d.SubmitAndWait(dc); err == nil {
		t.Fatal("SubmitAndWait did not error for a nonexistent queue")
	}
	if dc.DriverStatus != driver.StatusNoMatchingQueue {
		t.Errorf("DriverStatus = %v, want StatusNoMatchingQueue", dc.DriverStatus)
	}
}

func TestSubmitAndWaitInvalidDirection(t *testing.T) {
	ctrl := newBoundController(t)
	d := driver.New(ctrl)

	dc := &driver.DriverCommand{
		QueueId:       queue.AdminQueueID,
		Command:       wire.Command{OPC: wire.OpKeepAlive, CID: 1},
		DataDirection: driver.DataDirection(99),
		TimeoutMs:     100,
	}

	if err := d.SubmitAndWait(dc); err == nil {
		t.Fatal("SubmitAndWait did not error for an invalid data direction")
	}
	if dc.DriverStatus != driver.StatusInvalidDirection {
		t.Errorf("DriverStatus = %v, want StatusInvalidDirection", dc.DriverStatus)
	}
}

func TestSubmitAndWaitInvalidLength(t *testing.T) {
	ctrl := newBoundController(t)
	d := driver.New(ctrl)

	dc := &driver.DriverCommand{
		QueueId:       queue.AdminQueueID,
		Command:       wire.Command{OPC: wire.OpKeepAlive, CID: 1},
		DataDirection: driver.DirectionRead,
		TransferSize:  100,
		TransferData:  make([]byte, 10), // smaller than TransferSize
		TimeoutMs:     100,
	}

	if err := d.SubmitAndWait(dc); err == nil {
		t.Fatal("SubmitAndWait did not error when TransferSize exceeds the buffer")
	}
	if dc.DriverStatus != driver.StatusInvalidLength {
		t.Errorf("DriverStatus = %v, want StatusInvalidLength", dc.DriverStatus)
	}
}
