// Package controller implements the controller runtime: the register
// engine, the command dispatcher, and the reset coordinator, wired together
// over the packed register model, queue pair model, PRP engine, and
// namespace/media layer.
package controller

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"example.com/nvmesim/internal/config"
	"example.com/nvmesim/internal/looper"
	"example.com/nvmesim/internal/memory"
	"example.com/nvmesim/internal/obslog"
	"example.com/nvmesim/nvme/namespace"
	"example.com/nvmesim/nvme/queue"
	"example.com/nvmesim/nvme/regs"
)

// pxcapOffset is where this simulation places the PCIe capability within
// the PCI configuration space; arbitrary but fixed, past the standard
// header and a small PMCAP/MSICAP stand-in.
const pxcapOffset = 0x40

// Controller is a simulated NVMe controller: register state, queue tables,
// namespaces, and the two background watchers that drive it.
type Controller struct {
	cfg *config.ControllerConfig
	log *obslog.Logger

	regMem     *memory.Payload
	registers  *regs.ControllerRegisters
	pciMem     *memory.Payload
	pci        *regs.PCIExpressRegisters

	submissionQueues *queue.Table
	completionQueues *queue.Table

	namespaces map[uint32]*namespace.Namespace
	nsOrder    []uint32

	identifyUUIDHex string

	cidMu   sync.Mutex
	cidSets map[uint16]map[uint16]struct{}

	// cqPending tracks, per completion queue id, the CIDs posted there in
	// FIFO order, each held in cidSets until the host has consumed the
	// corresponding entry (observed as the completion queue's head
	// advancing past it), not merely until the completion is posted.
	cqPending  map[uint16][]cidRelease
	cqHeadSeen map[uint16]uint16

	mu              sync.Mutex
	wasEnabled      bool
	adminQueuesReady bool
	resetInProgress bool
	fatal           bool

	regWatcher *looper.Watcher
	dbWatcher  *looper.Watcher

	regTick *looper.Cooperative
	dbTick  *looper.Cooperative
	cooperative bool
}

// New constructs a concurrent (goroutine-watcher) controller: the mode used
// by the CLI entry point.
func New(cfg *config.ControllerConfig) (*Controller, error) {
	c, err := newController(cfg)
	if err != nil {
		return nil, err
	}
	c.regWatcher = looper.New(c.tickRegisters, cfg.RegisterWatcherInterval)
	c.dbWatcher = looper.New(c.tickDoorbells, cfg.DoorbellWatcherInterval)
	c.regWatcher.Start()
	c.dbWatcher.Start()
	return c, nil
}

// NewCooperative constructs a single-threaded controller: both watchers are
// driven by explicit Tick calls, for deterministic tests.
func NewCooperative(cfg *config.ControllerConfig) (*Controller, error) {
	c, err := newController(cfg)
	if err != nil {
		return nil, err
	}
	c.cooperative = true
	c.regTick = looper.NewCooperative(c.tickRegisters)
	c.dbTick = looper.NewCooperative(c.tickDoorbells)
	return c, nil
}

func newController(cfg *config.ControllerConfig) (*Controller, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	maxQueues := int(cfg.MaxIOQueues)
	dbArraySize := regs.DoorbellArraySize(maxQueues, 0)
	regSize := regs.ControllerRegisterBlockSize + dbArraySize

	regMem, err := memory.New(regSize)
	if err != nil {
		return nil, fmt.Errorf("controller: allocate register block: %w", err)
	}
	registers := regs.NewControllerRegisters(regMem.Buffer(), maxQueues)

	pciMem, err := memory.New(0x1000)
	if err != nil {
		return nil, fmt.Errorf("controller: allocate PCI config space: %w", err)
	}
	pci := regs.NewPCIExpressRegisters(pciMem.Buffer(), pxcapOffset)
	pci.SetIdentifiers(cfg.VendorID, cfg.SubsystemID)
	pci.SetBAR0(uint64(regMem.Address()))

	mpsmin := uint8(0) // 2^(12+0) = 4096
	mpsmax := uint8(4) // 2^(12+4) = 65536
	registers.SetCAP(cfg.MaxQueueDepth, true, 0, cfg.TimeoutUnits, 0, true, 1, mpsmin, mpsmax)
	registers.SetVS(1, 2, 1) // NVMe 1.2.1

	c := &Controller{
		cfg:              cfg,
		log:              obslog.Default("controller"),
		regMem:           regMem,
		registers:        registers,
		pciMem:           pciMem,
		pci:              pci,
		submissionQueues: queue.NewTable(),
		completionQueues: queue.NewTable(),
		namespaces:       make(map[uint32]*namespace.Namespace),
		cidSets:          make(map[uint16]map[uint16]struct{}),
		cqPending:        make(map[uint16][]cidRelease),
		cqHeadSeen:       make(map[uint16]uint16),
		identifyUUIDHex:  randomUUIDHex(),
	}

	for _, nsCfg := range cfg.Namespaces {
		ns, err := namespace.New(nsCfg.NSID, nsCfg.SizeBytes, nsCfg.LBAFormat)
		if err != nil {
			return nil, fmt.Errorf("controller: create namespace %d: %w", nsCfg.NSID, err)
		}
		c.namespaces[nsCfg.NSID] = ns
		c.nsOrder = append(c.nsOrder, nsCfg.NSID)
	}

	return c, nil
}

func randomUUIDHex() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Registers exposes the controller register block for host-side test code.
func (c *Controller) Registers() *regs.ControllerRegisters { return c.registers }

// PCIRegisters exposes the PCI configuration space for host-side test code.
func (c *Controller) PCIRegisters() *regs.PCIExpressRegisters { return c.pci }

// RegisterBlockAddress returns the memory address host code should treat as
// BAR0/1 for this controller.
func (c *Controller) RegisterBlockAddress() uintptr {
	return uintptr(c.regMem.Address())
}

// MemoryPageSize returns the currently configured MPS in bytes (2^(12+CC.MPS)).
func (c *Controller) MemoryPageSize() uint32 {
	return uint32(1) << (12 + c.registers.CC_MPS())
}

// SubmissionQueue returns the submission queue registered under id, for the
// driver façade and tests.
func (c *Controller) SubmissionQueue(id uint16) (*queue.Queue, bool) {
	return c.submissionQueues.Get(id)
}

// CompletionQueue returns the completion queue registered under id, for the
// driver façade and tests.
func (c *Controller) CompletionQueue(id uint16) (*queue.Queue, bool) {
	return c.completionQueues.Get(id)
}

// RingSubmissionDoorbell writes newTail to the SQyTDBL register for
// queueID, the host-side action that makes the dispatcher notice a new
// command on its next tick.
func (c *Controller) RingSubmissionDoorbell(queueID uint16, newTail uint16) {
	c.registers.SetSQTDBL(queueID, newTail)
}

// Tick drives one iteration of both watchers, for cooperative-mode callers.
// It is a no-op (and the concurrent watchers keep running on their own) for
// a controller built with New.
func (c *Controller) Tick() {
	if !c.cooperative {
		return
	}
	c.regTick.Tick()
	c.dbTick.Tick()
}

// WaitForChangeLoop blocks until the register watcher has observed one full
// iteration (concurrent mode) or runs one iteration directly (cooperative
// mode), mirroring the teacher's waitForChangeLoop contract.
func (c *Controller) WaitForChangeLoop() {
	if c.cooperative {
		c.regTick.WaitForFlip()
		return
	}
	c.regWatcher.WaitForFlip()
}

// WaitForReady blocks (polling at a small interval) until CSTS.RDY equals
// want, or returns an error once CAP.TO * 500ms has elapsed.
func (c *Controller) WaitForReady(want bool) error {
	deadline := time.Now().Add(time.Duration(c.registers.CAP_TO()) * 500 * time.Millisecond)
	for {
		if c.registers.CSTS_RDY() == want {
			return nil
		}
		if time.Now().After(deadline) {
			c.registers.SetCSTS_CFS(true)
			return fmt.Errorf("controller: timed out waiting for CSTS.RDY=%v", want)
		}
		if c.cooperative {
			c.Tick()
		} else {
			time.Sleep(time.Millisecond)
		}
	}
}

// Close stops the watchers (if concurrent) and releases controller memory.
func (c *Controller) Close() error {
	if !c.cooperative {
		c.regWatcher.End()
		c.dbWatcher.End()
	}
	for _, ns := range c.namespaces {
		_ = ns.Close()
	}
	if err := c.pciMem.Close(); err != nil {
		return err
	}
	return c.regMem.Close()
}
