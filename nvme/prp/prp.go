// Package prp implements the NVMe Physical Region Page gather/scatter
// engine: translating between a logical byte buffer and the PRP1/PRP2
// addressing scheme (single page, two pages, or a chained PRP list).
package prp

import (
	"encoding/binary"
	"fmt"

	"example.com/nvmesim/internal/memory"
)

// PRP describes one command's data transfer in terms of its PRP1/PRP2
// fields. A PRP built with FromAddresses only references memory owned
// elsewhere (Close is a no-op); a PRP built with FromPayload allocates its
// own backing pages and list pages, and Close frees them.
type PRP struct {
	prp1     uint64
	prp2     uint64
	numBytes uint32
	mps      uint32

	ownsMemory bool
	allocated  []*memory.Payload // pages/list pages owned by this PRP, freed on Close
}

// FromAddresses builds a reference-only PRP view over host-owned memory at
// prp1/prp2, describing numBytes of data at memory page size mps.
func FromAddresses(prp1, prp2 uint64, numBytes uint32, mps uint32) *PRP {
	return &PRP{prp1: prp1, prp2: prp2, numBytes: numBytes, mps: mps}
}

// FromPayload allocates controller-owned PRP1/PRP2 (and, if needed, chained
// list) pages sized to hold payload, at memory page size mps.
func FromPayload(payload *memory.Payload, mps uint32) (*PRP, error) {
	p := &PRP{numBytes: uint32(payload.Size()), mps: mps, ownsMemory: true}

	if p.numBytes == 0 {
		return p, nil
	}

	page1, err := p.newPage()
	if err != nil {
		return nil, err
	}
	p.prp1 = uint64(page1.Address())
	copyInto(page1, payload.Buffer(), 0)

	if p.numBytes <= mps {
		return p, nil
	}

	if p.numBytes <= 2*mps {
		page2, err := p.newPage()
		if err != nil {
			return nil, err
		}
		p.prp2 = uint64(page2.Address())
		copyInto(page2, payload.Buffer(), int(mps))
		return p, nil
	}

	// List mode: PRP2 points at a chained list of page pointers.
	remaining := payload.Buffer()[mps:]
	listPage, err := p.buildPRPList(remaining)
	if err != nil {
		return nil, err
	}
	p.prp2 = uint64(listPage)
	return p, nil
}

func (p *PRP) newPage() (*memory.Payload, error) {
	page, err := memory.New(int(p.mps))
	if err != nil {
		return nil, fmt.Errorf("prp: allocate page: %w", err)
	}
	p.allocated = append(p.allocated, page)
	return page, nil
}

func copyInto(page *memory.Payload, src []byte, offset int) {
	n := copy(page.Buffer(), src[offset:])
	_ = n
}

// maxItemsInSinglePRPList returns how many 8-byte entries fit in one list
// page of the current memory page size.
func (p *PRP) maxItemsInSinglePRPList() int {
	return int(p.mps) / 8
}

// buildPRPList allocates one or more chained list pages to describe the
// pages needed to hold remaining, and returns the address of the first list
// page (the value to place in PRP2).
func (p *PRP) buildPRPList(remaining []byte) (uint64, error) {
	listPage, err := p.newPage()
	if err != nil {
		return 0, err
	}
	listAddr := uint64(listPage.Address())

	maxItems := p.maxItemsInSinglePRPList()
	slot := 0
	cur := listPage

	for len(remaining) > 0 {
		// Reserve the last slot of a full list page for the chain
		// pointer to the next list page, unless this is the final
		// page and the data fits exactly.
		pagesLeft := (len(remaining) + int(p.mps) - 1) / int(p.mps)
		needsChain := slot == maxItems-1 && pagesLeft > 1

		if needsChain {
			next, err := p.newPage()
			if err != nil {
				return 0, err
			}
			binary.LittleEndian.PutUint64(cur.Buffer()[slot*8:slot*8+8], uint64(next.Address()))
			cur = next
			slot = 0
			continue
		}

		dataPage, err := p.newPage()
		if err != nil {
			return 0, err
		}
		n := len(remaining)
		if n > int(p.mps) {
			n = int(p.mps)
		}
		copy(dataPage.Buffer(), remaining[:n])
		binary.LittleEndian.PutUint64(cur.Buffer()[slot*8:slot*8+8], uint64(dataPage.Address()))

		remaining = remaining[n:]
		slot++
	}

	return listAddr, nil
}

// NumBytes returns the data length this PRP describes.
func (p *PRP) NumBytes() uint32 { return p.numBytes }

// MemoryPageSize returns the MPS this PRP was built with.
func (p *PRP) MemoryPageSize() uint32 { return p.mps }

// PRP1 / PRP2 return the raw field values.
func (p *PRP) PRP1() uint64 { return p.prp1 }
func (p *PRP) PRP2() uint64 { return p.prp2 }

// WillFreeUponClose reports whether Close releases the backing pages.
func (p *PRP) WillFreeUponClose() bool { return p.ownsMemory }

func (p *PRP) usesPRPList() bool {
	return p.numBytes > 2*p.mps
}

// Gather produces a contiguous copy of the data described by this PRP.
func (p *PRP) Gather() (*memory.Payload, error) {
	out, err := memory.New(int(p.numBytes))
	if err != nil {
		return nil, err
	}
	if p.numBytes == 0 {
		return out, nil
	}

	written := 0
	page1 := memory.ViewAt(p.prp1, int(p.mps))
	n := copy(out.Buffer(), page1)
	written += n

	if uint32(written) >= p.numBytes {
		return out, nil
	}

	if !p.usesPRPList() {
		page2 := memory.ViewAt(p.prp2, int(p.mps))
		copy(out.Buffer()[written:], page2)
		return out, nil
	}

	for _, addr := range p.prpListPointers() {
		if uint32(written) >= p.numBytes {
			break
		}
		page := memory.ViewAt(addr, int(p.mps))
		n := copy(out.Buffer()[written:], page)
		written += n
	}

	return out, nil
}

// Scatter writes up to NumBytes from payload into this PRP's existing
// addresses. Returns false without writing anything if payload is larger
// than the space this PRP describes.
func (p *PRP) Scatter(payload *memory.Payload) (bool, error) {
	if uint32(payload.Size()) > p.numBytes {
		return false, nil
	}
	src := payload.Buffer()

	page1 := memory.ViewAt(p.prp1, int(p.mps))
	n := copy(page1, src)
	src = src[n:]

	if len(src) == 0 {
		return true, nil
	}

	if !p.usesPRPList() {
		page2 := memory.ViewAt(p.prp2, int(p.mps))
		copy(page2, src)
		return true, nil
	}

	for _, addr := range p.prpListPointers() {
		if len(src) == 0 {
			break
		}
		page := memory.ViewAt(addr, int(p.mps))
		n := copy(page, src)
		src = src[n:]
	}

	return true, nil
}

// prpListPointers walks the (possibly chained) PRP list starting at PRP2
// and returns the addresses of every data page it references, in order.
func (p *PRP) prpListPointers() []uint64 {
	var pointers []uint64
	maxItems := p.maxItemsInSinglePRPList()

	remainingBytes := p.numBytes - p.mps // already consumed via PRP1
	listAddr := p.prp2

	for remainingBytes > 0 {
		listPage := memory.ViewAt(listAddr, int(p.mps))
		itemsNeeded := int((remainingBytes + p.mps - 1) / p.mps)

		for slot := 0; slot < maxItems; slot++ {
			entry := binary.LittleEndian.Uint64(listPage[slot*8 : slot*8+8])

			if slot == maxItems-1 && itemsNeeded > maxItems {
				// Chain to next list page; don't count this as a data page.
				listAddr = entry
				break
			}

			pointers = append(pointers, entry)
			if remainingBytes <= p.mps {
				remainingBytes = 0
				break
			}
			remainingBytes -= p.mps
		}
	}

	return pointers
}

// Close releases any pages this PRP allocated. A reference-only PRP built
// with FromAddresses leaves host-owned memory untouched.
func (p *PRP) Close() error {
	if !p.ownsMemory {
		return nil
	}
	for _, page := range p.allocated {
		if err := page.Close(); err != nil {
			return err
		}
	}
	p.allocated = nil
	return nil
}
