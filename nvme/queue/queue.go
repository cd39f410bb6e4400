// Package queue implements the submission/completion queue pair model:
// size, id, head/tail indices, linked host memory, doorbell pointer, and
// mapped-peer link, looked up through a stable-id table rather than direct
// cyclic references.
package queue

import (
	"fmt"
	"sync"

	"example.com/nvmesim/internal/memory"
)

// Direction distinguishes a submission queue from a completion queue.
type Direction int

const (
	Submission Direction = iota
	Completion
)

// AdminQueueID is the well-known id of the admin submission/completion pair.
const AdminQueueID uint16 = 0

// Queue is one submission or completion queue: a circular buffer of
// fixed-size entries in host-owned memory, with a head/tail pair the
// controller and host advance independently.
type Queue struct {
	mu sync.Mutex

	id            uint16
	direction     Direction
	size          uint16 // entry count
	entrySize     int    // bytes per entry: 64 for SQ, 16 for CQ
	baseAddress   uint64
	peerID        uint16
	hasPeer       bool

	head uint16
	tail uint16

	// phase is meaningful only for completion queues.
	phase bool
}

// New creates a queue of the given direction, id, entry count, entry size,
// and base address. Head/tail start at zero; phase starts true for a fresh
// completion queue, per NVMe semantics (the first phase a host expects is 1).
func New(direction Direction, id uint16, size uint16, entrySize int, baseAddress uint64) *Queue {
	return &Queue{
		direction:   direction,
		id:          id,
		size:        size,
		entrySize:   entrySize,
		baseAddress: baseAddress,
		phase:       true,
	}
}

func (q *Queue) ID() uint16          { return q.id }
func (q *Queue) Direction() Direction { return q.direction }
func (q *Queue) Size() uint16        { return q.size }
func (q *Queue) EntrySize() int      { return q.entrySize }
func (q *Queue) BaseAddress() uint64 { return q.baseAddress }

func (q *Queue) Head() uint16 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.head
}

func (q *Queue) Tail() uint16 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tail
}

// Phase returns the completion queue's current phase bit.
func (q *Queue) Phase() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.phase
}

// Empty reports whether head == tail.
func (q *Queue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.head == q.tail
}

// SetPeer links this queue to its opposite-direction mapped peer by id.
func (q *Queue) SetPeer(peerID uint16) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.peerID = peerID
	q.hasPeer = true
}

// Peer returns the mapped peer's id and whether one is set.
func (q *Queue) Peer() (uint16, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.peerID, q.hasPeer
}

// AdvanceTail sets the queue's recorded tail to newTail, as observed from a
// doorbell write. Fails if newTail >= size: the caller must surface this as
// a protocol error / asynchronous event, not silently clamp it.
func (q *Queue) AdvanceTail(newTail uint16) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if newTail >= q.size {
		return fmt.Errorf("queue %d: invalid doorbell tail %d >= size %d", q.id, newTail, q.size)
	}
	q.tail = newTail
	return nil
}

// AdvanceHead increments head modulo size and returns the remaining
// in-flight entry count. Phase toggling belongs to the producer side only
// (AdvanceTailAfterPost for a completion queue): this controller and its
// in-process driver share one Queue as their single source of truth, so the
// consumer does not need to re-derive phase from wrap-around.
func (q *Queue) AdvanceHead() uint16 {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.head++
	if q.head >= q.size {
		q.head = 0
	}

	if q.tail >= q.head {
		return q.tail - q.head
	}
	return q.size - q.head + q.tail
}

// EntryAddress returns the host memory address of the entry at index idx.
func (q *Queue) EntryAddress(idx uint16) uint64 {
	return q.baseAddress + uint64(idx)*uint64(q.entrySize)
}

// ReadEntryAtHead returns a view of the entry currently at head.
func (q *Queue) ReadEntryAtHead() []byte {
	q.mu.Lock()
	idx := q.head
	q.mu.Unlock()
	return memory.ViewAt(uintptr(q.EntryAddress(idx)), q.entrySize)
}

// WriteEntryAtTail writes data (which must be EntrySize() bytes) to the
// entry currently at tail, and returns the tail index written to.
func (q *Queue) WriteEntryAtTail(data []byte) uint16 {
	q.mu.Lock()
	idx := q.tail
	q.mu.Unlock()

	dst := memory.ViewAt(uintptr(q.EntryAddress(idx)), q.entrySize)
	copy(dst, data)
	return idx
}

// AdvanceTailAfterPost advances this completion queue's own tail by one
// (modulo size), toggling phase on wrap, after a completion has been
// written. Distinct from AdvanceTail, which applies a host-supplied
// submission-queue doorbell value.
func (q *Queue) AdvanceTailAfterPost() uint16 {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tail++
	if q.tail >= q.size {
		q.tail = 0
		q.phase = !q.phase
	}
	return q.tail
}

// Table is a stable-id lookup table of queues in one direction, used instead
// of direct cyclic Go pointers between submission and completion queues.
type Table struct {
	mu   sync.RWMutex
	byID map[uint16]*Queue
}

// NewTable creates an empty queue table.
func NewTable() *Table {
	return &Table{byID: make(map[uint16]*Queue)}
}

// Add registers q under its id. Returns an error if the id is already in use.
func (t *Table) Add(q *Queue) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byID[q.id]; exists {
		return fmt.Errorf("queue id %d already in use", q.id)
	}
	t.byID[q.id] = q
	return nil
}

// Get returns the queue with the given id, if any.
func (t *Table) Get(id uint16) (*Queue, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	q, ok := t.byID[id]
	return q, ok
}

// Remove deletes the queue with the given id.
func (t *Table) Remove(id uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, id)
}

// RemoveAllExceptAdmin drops every non-admin queue, used by the reset
// coordinator.
func (t *Table) RemoveAllExceptAdmin() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.byID {
		if id != AdminQueueID {
			delete(t.byID, id)
		}
	}
}

// IDs returns every registered queue id, in no particular order.
func (t *Table) IDs() []uint16 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]uint16, 0, len(t.byID))
	for id := range t.byID {
		ids = append(ids, id)
	}
	return ids
}

// Each calls fn for every queue in the table. fn must not mutate the table.
func (t *Table) Each(fn func(*Queue)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, q := range t.byID {
		fn(q)
	}
}
