package controller

import (
	"example.com/nvmesim/internal/memory"
	"example.com/nvmesim/nvme/prp"
	"example.com/nvmesim/nvme/queue"
	"example.com/nvmesim/nvme/wire"
)

// tickDoorbells is the command dispatcher's looping action: for every
// registered submission queue, it samples the tail doorbell and, on any
// advance, fetches and executes every newly submitted command in order. It
// also releases command ids whose completions the host has since consumed.
func (c *Controller) tickDoorbells() {
	c.mu.Lock()
	ready := c.registers.CSTS_RDY() && !c.fatal
	ids := c.submissionQueues.IDs()
	c.mu.Unlock()

	if !ready {
		return
	}

	c.releaseConsumedCIDs()

	for _, id := range ids {
		sq, ok := c.submissionQueues.Get(id)
		if !ok {
			continue
		}

		newTail := c.registers.SQTDBL(id)
		if newTail == sq.Tail() {
			continue
		}
		if err := sq.AdvanceTail(newTail); err != nil {
			c.log.Warnf("%v", err)
			continue
		}

		for !sq.Empty() {
			c.processOneCommand(sq)
		}
	}
}

// processOneCommand fetches the command at sq's head, dispatches it, and
// posts its completion, advancing sq's head exactly once regardless of
// outcome.
func (c *Controller) processOneCommand(sq *queue.Queue) {
	entryBuf := sq.ReadEntryAtHead()
	cmd, err := wire.DecodeCommand(entryBuf)
	if err != nil {
		c.log.Errorf("sq %d: %v", sq.ID(), err)
		sq.AdvanceHead()
		return
	}

	cqID, hasPeer := sq.Peer()
	cq, cqOK := c.completionQueues.Get(cqID)
	if !hasPeer || !cqOK {
		c.log.Errorf("sq %d: no linked completion queue", sq.ID())
		sq.AdvanceHead()
		return
	}

	var comp wire.Completion
	if !c.reserveCID(sq.ID(), cmd.CID) {
		comp = wire.Error(wire.StatusTypeGeneric, wire.StatusCommandIDConflict)
	} else if sq.ID() == queue.AdminQueueID {
		comp = c.dispatchAdmin(cmd)
	} else {
		comp = c.dispatchIO(cmd)
	}

	c.postCompletion(sq, cq, comp, cmd.CID)
}

// postCompletion advances sq's head, fills in the queue/command fields of
// comp, writes it to cq's tail entry, advances cq's own tail, and mirrors
// the new tail position into CQHDBL. The posted command id stays reserved
// until the host consumes this entry (see releaseConsumedCIDs), not the
// moment it is posted.
func (c *Controller) postCompletion(sq, cq *queue.Queue, comp wire.Completion, cid uint16) {
	sq.AdvanceHead()

	comp.SQID = sq.ID()
	comp.CID = cid
	comp.SQHD = sq.Head()
	comp.Phase = cq.Phase()

	cq.WriteEntryAtTail(comp.Encode())
	newTail := cq.AdvanceTailAfterPost()
	c.registers.SetCQHDBL(cq.ID(), newTail)

	c.recordPendingCIDRelease(cq.ID(), sq.ID(), cid)
}

func (c *Controller) reserveCID(sqID, cid uint16) bool {
	c.cidMu.Lock()
	defer c.cidMu.Unlock()

	set, ok := c.cidSets[sqID]
	if !ok {
		set = make(map[uint16]struct{})
		c.cidSets[sqID] = set
	}
	if _, inFlight := set[cid]; inFlight {
		return false
	}
	set[cid] = struct{}{}
	return true
}

// releaseCID frees cid on sqID, making it reservable again. Called only once
// the host has consumed the completion it was posted against (see
// releaseConsumedCIDs), never at post time.
func (c *Controller) releaseCID(sqID, cid uint16) {
	c.cidMu.Lock()
	defer c.cidMu.Unlock()
	if set, ok := c.cidSets[sqID]; ok {
		delete(set, cid)
	}
}

// cidRelease names one posted completion awaiting host consumption before
// its command id can be reused on its submission queue.
type cidRelease struct {
	sqID uint16
	cid  uint16
}

func (c *Controller) recordPendingCIDRelease(cqID, sqID, cid uint16) {
	c.cidMu.Lock()
	defer c.cidMu.Unlock()
	c.cqPending[cqID] = append(c.cqPending[cqID], cidRelease{sqID: sqID, cid: cid})
}

// releaseConsumedCIDs compares each completion queue's current head against
// the head it last observed; for every entry the head has advanced past, it
// releases the command id that entry's completion was posted for. This
// mirrors the host ringing the CQ head doorbell: a command id stays
// in-flight, and rejects a duplicate, for as long as its completion sits
// unconsumed in the completion queue.
func (c *Controller) releaseConsumedCIDs() {
	c.completionQueues.Each(func(cq *queue.Queue) {
		id := cq.ID()
		head := cq.Head()

		c.cidMu.Lock()
		defer c.cidMu.Unlock()

		last, seen := c.cqHeadSeen[id]
		c.cqHeadSeen[id] = head
		if !seen || head == last {
			return
		}

		advanced := int(head) - int(last)
		if advanced < 0 {
			advanced += int(cq.Size())
		}

		pending := c.cqPending[id]
		n := advanced
		if n > len(pending) {
			n = len(pending)
		}
		for _, r := range pending[:n] {
			if set, ok := c.cidSets[r.sqID]; ok {
				delete(set, r.cid)
			}
		}
		c.cqPending[id] = pending[n:]
	})
}

// dispatchAdmin executes an admin-queue command and returns its completion.
func (c *Controller) dispatchAdmin(cmd wire.Command) wire.Completion {
	switch cmd.OPC {
	case wire.OpIdentify:
		return c.handleIdentify(cmd)
	case wire.OpCreateIOSubmissionQueue:
		return c.handleCreateIOSQ(cmd)
	case wire.OpCreateIOCompletionQueue:
		return c.handleCreateIOCQ(cmd)
	case wire.OpDeleteIOSubmissionQueue:
		return c.handleDeleteIOSQ(cmd)
	case wire.OpDeleteIOCompletionQueue:
		return c.handleDeleteIOCQ(cmd)
	case wire.OpFormatNVM:
		return c.handleFormatNVM(cmd)
	case wire.OpKeepAlive:
		return wire.Success()
	default:
		return wire.Error(wire.StatusTypeGeneric, wire.StatusInvalidOpcode)
	}
}

// dispatchIO executes an I/O-queue command against its target namespace and
// returns its completion.
func (c *Controller) dispatchIO(cmd wire.Command) wire.Completion {
	c.mu.Lock()
	ns, ok := c.namespaces[cmd.NSID]
	mps := c.memoryPageSizeLocked()
	c.mu.Unlock()

	if !ok {
		return wire.Error(wire.StatusTypeGeneric, wire.StatusInvalidField)
	}

	switch cmd.OPC {
	case wire.OpRead:
		return c.handleRead(ns, cmd, mps)
	case wire.OpWrite:
		return c.handleWrite(ns, cmd, mps)
	case wire.OpFlush:
		return wire.Success()
	default:
		return wire.Error(wire.StatusTypeGeneric, wire.StatusInvalidOpcode)
	}
}

func (c *Controller) memoryPageSizeLocked() uint32 {
	return uint32(1) << (12 + c.registers.CC_MPS())
}

func (c *Controller) handleIdentify(cmd wire.Command) wire.Completion {
	cns := wire.DecodeIdentifyArgs(cmd)

	c.mu.Lock()
	mps := c.memoryPageSizeLocked()
	var data []byte
	switch cns {
	case wire.CNSIdentifyController:
		ic := wire.NewIdentifyController(c.cfg.VendorID, c.cfg.SubsystemID, c.cfg.SerialNumber, c.cfg.ModelNumber, c.cfg.FirmwareRev, uint32(len(c.nsOrder)), c.identifyUUIDHex)
		data = ic.Bytes()
	case wire.CNSIdentifyNamespace:
		if ns, ok := c.namespaces[cmd.NSID]; ok {
			data = ns.Identify().Bytes()
		}
	case wire.CNSIdentifyNamespaceList:
		data = wire.EncodeNamespaceList(c.nsOrder)
	case wire.CNSIdentifyNamespaceDescriptor:
		if ns, ok := c.namespaces[cmd.NSID]; ok {
			data = wire.EncodeNamespaceDescriptorList(ns.EUI64())
		}
	}
	c.mu.Unlock()

	if data == nil {
		return wire.Error(wire.StatusTypeGeneric, wire.StatusInvalidField)
	}

	payload, err := memory.NewFrom(data, len(data))
	if err != nil {
		return wire.Error(wire.StatusTypeGeneric, wire.StatusInvalidField)
	}
	defer payload.Close()

	p := prp.FromAddresses(cmd.PRP1, cmd.PRP2, uint32(len(data)), mps)
	if ok, err := p.Scatter(payload); err != nil || !ok {
		return wire.Error(wire.StatusTypeGeneric, wire.StatusInvalidField)
	}
	return wire.Success()
}

func (c *Controller) handleCreateIOSQ(cmd wire.Command) wire.Completion {
	args := wire.DecodeCreateSubmissionQueueArgs(cmd)
	if !args.PC {
		return wire.Error(wire.StatusTypeCommandSpecific, wire.StatusInvalidField)
	}
	if args.QID == queue.AdminQueueID {
		return wire.Error(wire.StatusTypeCommandSpecific, wire.StatusInvalidQueueIdentifier)
	}
	if args.QSize == 0 {
		return wire.Error(wire.StatusTypeCommandSpecific, wire.StatusInvalidQueueSize)
	}

	if _, ok := c.completionQueues.Get(args.CQID); !ok {
		return wire.Error(wire.StatusTypeCommandSpecific, wire.StatusInvalidQueueIdentifier)
	}

	sq := queue.New(queue.Submission, args.QID, args.QSize+1, wire.CommandSize, cmd.PRP1)
	sq.SetPeer(args.CQID)
	if err := c.submissionQueues.Add(sq); err != nil {
		return wire.Error(wire.StatusTypeCommandSpecific, wire.StatusInvalidQueueIdentifier)
	}
	return wire.Success()
}

func (c *Controller) handleCreateIOCQ(cmd wire.Command) wire.Completion {
	args := wire.DecodeCreateCompletionQueueArgs(cmd)
	if !args.PC {
		return wire.Error(wire.StatusTypeCommandSpecific, wire.StatusInvalidField)
	}
	if args.QID == queue.AdminQueueID {
		return wire.Error(wire.StatusTypeCommandSpecific, wire.StatusInvalidQueueIdentifier)
	}
	if args.QSize == 0 {
		return wire.Error(wire.StatusTypeCommandSpecific, wire.StatusInvalidQueueSize)
	}

	cq := queue.New(queue.Completion, args.QID, args.QSize+1, wire.CompletionSize, cmd.PRP1)
	if err := c.completionQueues.Add(cq); err != nil {
		return wire.Error(wire.StatusTypeCommandSpecific, wire.StatusInvalidQueueIdentifier)
	}
	return wire.Success()
}

func (c *Controller) handleDeleteIOSQ(cmd wire.Command) wire.Completion {
	qid := uint16(cmd.CDW10)
	if qid == queue.AdminQueueID {
		return wire.Error(wire.StatusTypeCommandSpecific, wire.StatusInvalidQueueDeletion)
	}
	if _, ok := c.submissionQueues.Get(qid); !ok {
		return wire.Error(wire.StatusTypeCommandSpecific, wire.StatusInvalidQueueIdentifier)
	}

	c.submissionQueues.Remove(qid)
	c.cidMu.Lock()
	delete(c.cidSets, qid)
	c.cidMu.Unlock()
	return wire.Success()
}

func (c *Controller) handleDeleteIOCQ(cmd wire.Command) wire.Completion {
	qid := uint16(cmd.CDW10)
	if qid == queue.AdminQueueID {
		return wire.Error(wire.StatusTypeCommandSpecific, wire.StatusInvalidQueueDeletion)
	}
	if _, ok := c.completionQueues.Get(qid); !ok {
		return wire.Error(wire.StatusTypeCommandSpecific, wire.StatusInvalidQueueIdentifier)
	}

	referenced := false
	c.submissionQueues.Each(func(sq *queue.Queue) {
		if peer, ok := sq.Peer(); ok && peer == qid {
			referenced = true
		}
	})
	if referenced {
		return wire.Error(wire.StatusTypeCommandSpecific, wire.StatusInvalidQueueDeletion)
	}

	c.completionQueues.Remove(qid)
	c.cidMu.Lock()
	delete(c.cqPending, qid)
	delete(c.cqHeadSeen, qid)
	c.cidMu.Unlock()
	return wire.Success()
}

func (c *Controller) handleFormatNVM(cmd wire.Command) wire.Completion {
	args := wire.DecodeFormatArgs(cmd)

	c.mu.Lock()
	ns, ok := c.namespaces[cmd.NSID]
	c.mu.Unlock()
	if !ok {
		return wire.Error(wire.StatusTypeGeneric, wire.StatusInvalidField)
	}
	if int(args.LBAF) >= len(wire.StandardLBAFormats) || args.MSET != 0 || args.PI != 0 || args.PIL != 0 {
		return wire.Error(wire.StatusTypeCommandSpecific, wire.StatusInvalidFormat)
	}

	if err := ns.Format(int(args.LBAF), args.SES); err != nil {
		return wire.Error(wire.StatusTypeCommandSpecific, wire.StatusInvalidFormat)
	}
	return wire.Success()
}
