// Package memory implements the owned, page-backed byte buffer shared
// between the host and controller sides of the simulation. Unlike a plain
// Go slice, a Payload's backing store is an anonymous mmap region, so its
// Address is a real, stable process address that survives Go's garbage
// collector moving other allocations around it.
package memory

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Payload is a resizable, zero-filled-on-growth byte region with a stable
// base address usable as a "memory pointer" by both host and controller
// code within this process.
type Payload struct {
	buf []byte
}

// New allocates a zero-filled Payload of n bytes. n == 0 yields a valid,
// empty Payload with Address() == 0.
func New(n int) (*Payload, error) {
	p := &Payload{}
	if n == 0 {
		return p, nil
	}
	buf, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("memory: mmap %d bytes: %w", n, err)
	}
	p.buf = buf
	return p, nil
}

// NewFrom allocates a Payload of n bytes and copies n bytes from src into it.
func NewFrom(src []byte, n int) (*Payload, error) {
	p, err := New(n)
	if err != nil {
		return nil, err
	}
	copy(p.buf, src[:n])
	return p, nil
}

// Size returns the current length of the backing buffer.
func (p *Payload) Size() int {
	return len(p.buf)
}

// Buffer returns the live backing slice. Mutating it mutates the Payload.
func (p *Payload) Buffer() []byte {
	return p.buf
}

// Address returns a stable integer address usable as a shared memory
// pointer. Zero means the Payload is empty.
func (p *Payload) Address() uintptr {
	if len(p.buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&p.buf[0]))
}

// ViewAt reconstructs a []byte window of length n over an arbitrary shared
// memory address, the way the controller treats a host-supplied PRP or
// queue base address as a slice of its own process memory.
func ViewAt(addr uintptr, n int) []byte {
	if addr == 0 || n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

// Resize grows or shrinks the Payload, preserving min(old, new) bytes of
// content. A resize to a different size always reallocates, since mmap
// regions cannot be grown in place portably.
func (p *Payload) Resize(n int) error {
	next, err := New(n)
	if err != nil {
		return err
	}
	copy(next.buf, p.buf)
	if err := p.Close(); err != nil {
		return err
	}
	*p = *next
	return nil
}

// Append concatenates other's bytes onto p, reallocating as needed.
func (p *Payload) Append(other *Payload) error {
	oldSize := p.Size()
	if err := p.Resize(oldSize + other.Size()); err != nil {
		return err
	}
	copy(p.buf[oldSize:], other.buf)
	return nil
}

// Equal reports whether p and other have the same size and identical bytes.
func (p *Payload) Equal(other *Payload) bool {
	if other == nil {
		return false
	}
	if p.Size() != other.Size() {
		return false
	}
	for i := range p.buf {
		if p.buf[i] != other.buf[i] {
			return false
		}
	}
	return true
}

// Close releases the backing mmap region. A zero-size Payload is a no-op.
func (p *Payload) Close() error {
	if len(p.buf) == 0 {
		return nil
	}
	err := unix.Munmap(p.buf)
	p.buf = nil
	return err
}
