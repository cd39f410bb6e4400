// nvmesimctl brings up a simulated NVMe controller, then runs a scripted
// identify / create-I/O-queue / write / read scenario against it through the
// driver façade. It exists to exercise the simulation end to end without a
// real kernel driver or PCIe bus.
package main

import (
	"bytes"
	"flag"
	"os"

	"example.com/nvmesim/driver"
	"example.com/nvmesim/internal/config"
	"example.com/nvmesim/internal/memory"
	"example.com/nvmesim/internal/obslog"
	"example.com/nvmesim/nvme/controller"
	"example.com/nvmesim/nvme/queue"
	"example.com/nvmesim/nvme/wire"
)

const ioQueueID = uint16(1)

func main() {
	configPath := flag.String("config", "", "path to a YAML controller configuration (defaults built in if omitted)")
	flag.Parse()

	log := obslog.Default("nvmesimctl")

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Errorf("%v", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	ctrl, err := controller.New(cfg)
	if err != nil {
		log.Errorf("create controller: %v", err)
		os.Exit(1)
	}
	defer ctrl.Close()

	asqMem, acqMem, ioSQMem, ioCQMem, err := bringUp(ctrl)
	if err != nil {
		log.Errorf("bring-up: %v", err)
		os.Exit(1)
	}
	defer asqMem.Close()
	defer acqMem.Close()
	defer ioSQMem.Close()
	defer ioCQMem.Close()
	log.Infof("controller ready: CSTS.RDY=%v", ctrl.Registers().CSTS_RDY())

	d := driver.New(ctrl)

	identDC := &driver.DriverCommand{
		QueueId:   queue.AdminQueueID,
		Command:   wire.Command{OPC: wire.OpIdentify, CID: 1, CDW10: uint32(wire.CNSIdentifyController)},
		TimeoutMs: 5000,
	}
	if err := d.SubmitAndWait(identDC); err != nil {
		log.Errorf("identify controller: %v", err)
		os.Exit(1)
	}
	log.Infof("identify controller completed: status=%v SC=%d", identDC.DriverStatus, identDC.Completion.StatusCode)

	if err := createIOQueues(d, ioCQMem, ioSQMem); err != nil {
		log.Errorf("create I/O queues: %v", err)
		os.Exit(1)
	}
	log.Infof("I/O queue pair %d ready", ioQueueID)

	nsid := cfg.Namespaces[0].NSID
	sectorSize := uint64(1) << 12 // the default namespace's configured LBA format
	writeBuf := make([]byte, sectorSize)
	for i := range writeBuf {
		writeBuf[i] = byte(i)
	}

	writePayload, err := memory.NewFrom(writeBuf, len(writeBuf))
	if err != nil {
		log.Errorf("allocate write payload: %v", err)
		os.Exit(1)
	}
	defer writePayload.Close()

	writeDC := &driver.DriverCommand{
		QueueId: ioQueueID,
		Command: wire.Command{
			OPC:   wire.OpWrite,
			CID:   2,
			NSID:  nsid,
			PRP1:  uint64(writePayload.Address()),
			CDW10: 0, // SLBA low
			CDW11: 0, // SLBA high
			CDW12: 0, // NLB = 0 (one sector)
		},
		TimeoutMs: 5000,
	}
	if err := d.SubmitAndWait(writeDC); err != nil {
		log.Errorf("write: %v", err)
		os.Exit(1)
	}
	log.Infof("write completed: status=%v SC=%d", writeDC.DriverStatus, writeDC.Completion.StatusCode)

	readPayload, err := memory.New(len(writeBuf))
	if err != nil {
		log.Errorf("allocate read payload: %v", err)
		os.Exit(1)
	}
	defer readPayload.Close()

	readDC := &driver.DriverCommand{
		QueueId: ioQueueID,
		Command: wire.Command{
			OPC:   wire.OpRead,
			CID:   3,
			NSID:  nsid,
			PRP1:  uint64(readPayload.Address()),
			CDW12: 0,
		},
		TimeoutMs: 5000,
	}
	if err := d.SubmitAndWait(readDC); err != nil {
		log.Errorf("read: %v", err)
		os.Exit(1)
	}
	log.Infof("read completed: status=%v SC=%d match=%v", readDC.DriverStatus, readDC.Completion.StatusCode, bytes.Equal(writeBuf, readPayload.Buffer()))
}

// bringUp allocates admin and I/O submission/completion queue memory,
// programs AQA/ASQ/ACQ, and raises CC.EN, waiting for CSTS.RDY. The admin
// and I/O queue memory must outlive the queues: callers must Close() all
// four returned Payloads once done.
func bringUp(ctrl *controller.Controller) (asq, acq, ioSQ, ioCQ *memory.Payload, err error) {
	asq, err = memory.New(64 * 64)
	if err != nil {
		return
	}
	acq, err = memory.New(64 * 16)
	if err != nil {
		return
	}
	ioSQ, err = memory.New(64 * 64)
	if err != nil {
		return
	}
	ioCQ, err = memory.New(64 * 16)
	if err != nil {
		return
	}

	regs := ctrl.Registers()
	regs.SetAQA_ASQS(63)
	regs.SetAQA_ACQS(63)
	regs.SetASQ_ASQB(uint64(asq.Address()))
	regs.SetACQ_ACQB(uint64(acq.Address()))
	regs.SetCC_MPS(0)
	regs.SetCC_IOSQES(6)
	regs.SetCC_IOCQES(4)
	regs.SetCC_EN(true)

	if err = ctrl.WaitForReady(true); err != nil {
		return
	}
	return asq, acq, ioSQ, ioCQ, nil
}

func createIOQueues(d *driver.Driver, ioCQMem, ioSQMem *memory.Payload) error {
	createCQ := &driver.DriverCommand{
		QueueId: queue.AdminQueueID,
		Command: wire.Command{
			OPC:   wire.OpCreateIOCompletionQueue,
			CID:   10,
			PRP1:  uint64(ioCQMem.Address()),
			CDW10: uint32(ioQueueID) | (63 << 16),
			CDW11: 0x1, // PC=1, IEN=0
		},
		TimeoutMs: 5000,
	}
	if err := d.SubmitAndWait(createCQ); err != nil {
		return err
	}

	createSQ := &driver.DriverCommand{
		QueueId: queue.AdminQueueID,
		Command: wire.Command{
			OPC:   wire.OpCreateIOSubmissionQueue,
			CID:   11,
			PRP1:  uint64(ioSQMem.Address()),
			CDW10: uint32(ioQueueID) | (63 << 16),
			CDW11: 0x1 | (uint32(ioQueueID) << 16), // PC=1, CQID=ioQueueID
		},
		TimeoutMs: 5000,
	}
	return d.SubmitAndWait(createSQ)
}
