package controller

import (
	"example.com/nvmesim/nvme/queue"
	"example.com/nvmesim/nvme/regs"
	"example.com/nvmesim/nvme/wire"
)

// tickRegisters is the register engine's looping action: it watches for
// CC.EN edges, CC.SHN transitions, an NSSR magic-value write, and a PCIe
// function-level reset request, and drives CSTS accordingly. Runs on the
// register watcher's cadence (or once per cooperative Tick).
func (c *Controller) tickRegisters() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fatal {
		return
	}

	if c.registers.NSSR() == regs.NSSRMagic {
		c.performReset(triggerNSSR)
		c.registers.ClearNSSR()
		c.wasEnabled = false // performReset cleared CC.EN
		return
	}

	if c.pci.PXDC_IFLR() {
		c.performReset(triggerFLR)
		c.pci.ClearPXDC_IFLR()
		c.wasEnabled = false // performReset cleared CC.EN
		return
	}

	en := c.registers.CC_EN()
	switch {
	case en && !c.wasEnabled:
		c.handleEnable()
		if !c.registers.CSTS_RDY() {
			// Admin queue registers not programmed yet: stay on the
			// rising edge so handleEnable runs again next tick.
			return
		}
	case !en && c.wasEnabled:
		c.performReset(triggerDisable)
	}
	c.wasEnabled = en

	if en {
		c.handleShutdown()
	}
}

// handleEnable brings the admin queue pair up from AQA/ASQ/ACQ the first
// time all three are non-zero, then raises CSTS.RDY. If the host has set
// CC.EN before finishing programming the admin queue registers, this is a
// no-op and tries again on the next tick.
func (c *Controller) handleEnable() {
	if !c.adminQueuesReady {
		asqs := c.registers.AQA_ASQS()
		acqs := c.registers.AQA_ACQS()
		asqb := c.registers.ASQ_ASQB()
		acqb := c.registers.ACQ_ACQB()
		if asqs == 0 || acqs == 0 || asqb == 0 || acqb == 0 {
			return
		}

		sq := queue.New(queue.Submission, queue.AdminQueueID, asqs+1, wire.CommandSize, asqb)
		cq := queue.New(queue.Completion, queue.AdminQueueID, acqs+1, wire.CompletionSize, acqb)
		sq.SetPeer(queue.AdminQueueID)
		cq.SetPeer(queue.AdminQueueID)
		_ = c.submissionQueues.Add(sq)
		_ = c.completionQueues.Add(cq)
		c.adminQueuesReady = true
		c.log.Infof("admin queue pair created: ASQS=%d ACQS=%d", asqs, acqs)
	}

	c.registers.SetCSTS_RDY(true)
}

// handleShutdown advances CSTS.SHST by one step per tick once CC.SHN names a
// shutdown type, and resets it to None once CC.SHN is cleared.
func (c *Controller) handleShutdown() {
	shn := c.registers.CC_SHN()
	if shn == regs.ShutdownNone {
		if c.registers.CSTS_SHST() != regs.ShutdownStatusNone {
			c.registers.SetCSTS_SHST(regs.ShutdownStatusNone)
		}
		return
	}

	switch c.registers.CSTS_SHST() {
	case regs.ShutdownStatusNone:
		c.registers.SetCSTS_SHST(regs.ShutdownStatusInProgress)
	case regs.ShutdownStatusInProgress:
		c.registers.SetCSTS_SHST(regs.ShutdownStatusComplete)
	}
}
