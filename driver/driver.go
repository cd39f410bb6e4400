// Package driver implements the host-side façade for submitting commands to
// a simulated controller and waiting on their completion: the in-process
// equivalent of a real NVMe driver's queue-pair submit/poll path.
package driver

import (
	"fmt"
	"time"

	"example.com/nvmesim/nvme/controller"
	"example.com/nvmesim/nvme/queue"
	"example.com/nvmesim/nvme/wire"
)

// DataDirection describes which way TransferData moves relative to the
// controller.
type DataDirection int

const (
	DirectionNone DataDirection = iota
	DirectionRead
	DirectionWrite
	DirectionBidirectional
)

// Status is the façade's own outcome code, distinct from an NVMe completion
// status: it reports whether the command could even be delivered and
// answered, not what the controller decided about it.
type Status int

const (
	StatusOK Status = iota
	StatusNoMatchingQueue
	StatusNoLinkedCompletionQueue
	StatusTimeout
	StatusBufferTooSmall
	StatusInvalidDirection
	StatusInvalidLength
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoMatchingQueue:
		return "no-matching-queue"
	case StatusNoLinkedCompletionQueue:
		return "no-linked-completion-queue"
	case StatusTimeout:
		return "timeout"
	case StatusBufferTooSmall:
		return "buffer-too-small"
	case StatusInvalidDirection:
		return "invalid-direction"
	case StatusInvalidLength:
		return "invalid-length"
	default:
		return "unknown"
	}
}

// DriverCommand is one host-side request: the raw NVMe command to submit,
// the queue it targets, an optional data buffer, and the slots the façade
// fills in with the outcome.
type DriverCommand struct {
	QueueId uint16
	Command wire.Command

	DataDirection DataDirection
	TransferSize  uint32
	TransferData  []byte

	TimeoutMs int

	DriverStatus Status
	Completion   wire.Completion
}

// Driver submits DriverCommands against a controller's queue pairs. Data
// moves through whatever PRP1/PRP2 addresses the command carries;
// TransferData is only checked against TransferSize and is never copied to
// or from those addresses.
type Driver struct {
	ctrl *controller.Controller
}

// New wraps ctrl for host-side command submission.
func New(ctrl *controller.Controller) *Driver {
	return &Driver{ctrl: ctrl}
}

// SubmitAndWait places dc.Command on the queue named by dc.QueueId, rings
// its doorbell, and polls for the matching completion (by CID) until either
// it is posted or dc.TimeoutMs elapses. It fills in dc.DriverStatus and, on
// success, dc.Completion; dc.TransferData is left unchanged.
func (d *Driver) SubmitAndWait(dc *DriverCommand) error {
	if err := validateDirection(dc.DataDirection); err != nil {
		dc.DriverStatus = StatusInvalidDirection
		return err
	}

	sq, ok := d.ctrl.SubmissionQueue(dc.QueueId)
	if !ok {
		dc.DriverStatus = StatusNoMatchingQueue
		return fmt.Errorf("driver: no submission queue %d", dc.QueueId)
	}
	cqID, hasPeer := sq.Peer()
	if !hasPeer {
		dc.DriverStatus = StatusNoLinkedCompletionQueue
		return fmt.Errorf("driver: submission queue %d has no linked completion queue", dc.QueueId)
	}
	cq, ok := d.ctrl.CompletionQueue(cqID)
	if !ok {
		dc.DriverStatus = StatusNoLinkedCompletionQueue
		return fmt.Errorf("driver: completion queue %d not found", cqID)
	}

	if dc.DataDirection != DirectionNone {
		if dc.TransferSize == 0 || int(dc.TransferSize) > len(dc.TransferData) {
			dc.DriverStatus = StatusInvalidLength
			return fmt.Errorf("driver: transfer size %d exceeds buffer of %d bytes", dc.TransferSize, len(dc.TransferData))
		}
	}

	newTail := sq.WriteEntryAtTail(dc.Command.Encode())
	ringTail := (newTail + 1) % sq.Size()
	d.ctrl.RingSubmissionDoorbell(dc.QueueId, ringTail)

	deadline := time.Now().Add(time.Duration(dc.TimeoutMs) * time.Millisecond)
	for {
		if comp, found := d.pollCompletion(cq, dc.Command.CID); found {
			dc.Completion = comp
			dc.DriverStatus = StatusOK
			return nil
		}
		if dc.TimeoutMs > 0 && time.Now().After(deadline) {
			dc.DriverStatus = StatusTimeout
			return fmt.Errorf("driver: timed out waiting for CID %d on queue %d", dc.Command.CID, dc.QueueId)
		}
		d.ctrl.Tick()
		time.Sleep(time.Millisecond)
	}
}

func validateDirection(dir DataDirection) error {
	switch dir {
	case DirectionNone, DirectionRead, DirectionWrite, DirectionBidirectional:
		return nil
	default:
		return fmt.Errorf("driver: invalid data direction %d", dir)
	}
}

// pollCompletion consumes every completion queue entry currently between
// head and tail, looking for the one matching cid. The controller has
// already stamped each entry's phase bit as it was produced; the driver
// shares the same Queue object as its source of truth for what is new, so
// it only needs to drain head forward to tail, not rediscover novelty from
// the phase bit the way a separate-memory host would.
func (d *Driver) pollCompletion(cq *queue.Queue, cid uint16) (wire.Completion, bool) {
	for !cq.Empty() {
		entry := cq.ReadEntryAtHead()
		comp, err := wire.DecodeCompletion(entry)
		cq.AdvanceHead()
		if err != nil {
			continue
		}
		if comp.CID == cid {
			return comp, true
		}
	}
	return wire.Completion{}, false
}
