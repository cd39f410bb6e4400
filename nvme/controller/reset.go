package controller

import "example.com/nvmesim/nvme/queue"

// resetTrigger names what caused the controller to run its uniform reset
// steps: a CC.EN falling edge, an NVM subsystem reset (NSSR magic write), or
// a PCIe function-level reset (PXDC.IFLR).
type resetTrigger int

const (
	triggerDisable resetTrigger = iota
	triggerNSSR
	triggerFLR
)

func (t resetTrigger) String() string {
	switch t {
	case triggerDisable:
		return "CC.EN falling edge"
	case triggerNSSR:
		return "NVM subsystem reset"
	case triggerFLR:
		return "PCIe function level reset"
	default:
		return "unknown"
	}
}

// performReset runs the reset coordinator's uniform steps, called with c.mu
// already held: delete every I/O queue (keep the admin pair), forget their
// in-flight command ids, clear CC/CSTS/NSSR/INTMS/INTMC and the doorbell
// array while preserving CAP/VS/AQA/ASQ/ACQ, and apply whatever is specific
// to the trigger.
func (c *Controller) performReset(trigger resetTrigger) {
	c.log.Infof("reset: %s", trigger)

	c.submissionQueues.RemoveAllExceptAdmin()
	c.completionQueues.RemoveAllExceptAdmin()

	c.cidMu.Lock()
	for id := range c.cidSets {
		if id != queue.AdminQueueID {
			delete(c.cidSets, id)
		}
	}
	for id := range c.cqPending {
		if id != queue.AdminQueueID {
			delete(c.cqPending, id)
		}
	}
	for id := range c.cqHeadSeen {
		if id != queue.AdminQueueID {
			delete(c.cqHeadSeen, id)
		}
	}
	c.cidMu.Unlock()

	c.registers.ResetPreservingAdminQueueConfig()

	switch trigger {
	case triggerNSSR:
		c.registers.SetCSTS_NSSRO(true)
	case triggerFLR:
		c.pci.RestoreHeaderSnapshot()
	}
}
