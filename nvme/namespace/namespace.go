// Package namespace implements the volatile per-namespace media layer: LBA
// format selection, Format NVM, and sector-addressed read/write.
package namespace

import (
	"crypto/rand"
	"fmt"
	"sync"

	"example.com/nvmesim/internal/memory"
	"example.com/nvmesim/nvme/wire"
)

// Namespace wraps an Identify Namespace data structure and its volatile
// backing media, keyed by namespace id (NSID).
type Namespace struct {
	mu sync.Mutex

	nsid     uint32
	identify *wire.IdentifyNamespace
	media    *memory.Payload

	lbaFormatIndex int
}

// New creates a namespace of sizeBytes, formatted to lbaFormatIndex.
func New(nsid uint32, sizeBytes uint64, lbaFormatIndex int) (*Namespace, error) {
	eui64 := randomEUI64(nsid)

	ident, err := wire.NewIdentifyNamespace(sizeBytes, lbaFormatIndex, eui64)
	if err != nil {
		return nil, err
	}

	media, err := memory.New(int(sizeBytes))
	if err != nil {
		return nil, fmt.Errorf("namespace %d: allocate media: %w", nsid, err)
	}

	return &Namespace{
		nsid:           nsid,
		identify:       ident,
		media:          media,
		lbaFormatIndex: lbaFormatIndex,
	}, nil
}

func randomEUI64(nsid uint32) uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	// Keep the NSID visible in the low bytes so test fixtures are legible.
	b[4], b[5], b[6], b[7] = byte(nsid>>24), byte(nsid>>16), byte(nsid>>8), byte(nsid)
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func (ns *Namespace) NSID() uint32 { return ns.nsid }

// Identify returns the 4096-byte Identify Namespace structure.
func (ns *Namespace) Identify() *wire.IdentifyNamespace {
	return ns.identify
}

func (ns *Namespace) sectorSize() uint64 {
	size, _ := wire.SectorSize(ns.lbaFormatIndex)
	return size
}

// SectorSize returns the namespace's current sector size in bytes.
func (ns *Namespace) SectorSize() uint64 { return ns.sectorSize() }

// EUI64 returns the namespace's globally unique identifier.
func (ns *Namespace) EUI64() uint64 { return ns.identify.EUI64() }

// SectorCount returns the namespace's current capacity in sectors (NSZE).
func (ns *Namespace) SectorCount() uint64 {
	return uint64(ns.media.Size()) / ns.sectorSize()
}

// Format replaces the namespace's LBA format and erases its media according
// to ses (SESNoSecureErase leaves bytes as-is conceptually but this
// simulation always re-initializes; SESUserDataErase/SESCryptographicErase
// both zero-fill, since media is volatile and "cryptographic strength" is
// explicitly out of scope).
func (ns *Namespace) Format(lbaFormatIndex int, ses uint8) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	sizeBytes := uint64(ns.media.Size())
	newSectorSize, err := wire.SectorSize(lbaFormatIndex)
	if err != nil {
		return err
	}
	if sizeBytes%newSectorSize != 0 {
		return fmt.Errorf("namespace %d: media size %d not a multiple of new sector size %d", ns.nsid, sizeBytes, newSectorSize)
	}

	if err := ns.identify.SetLBAFormat(lbaFormatIndex, sizeBytes); err != nil {
		return err
	}
	ns.lbaFormatIndex = lbaFormatIndex

	switch ses {
	case wire.SESNoSecureErase, wire.SESUserDataErase, wire.SESCryptographicErase:
		buf := ns.media.Buffer()
		for i := range buf {
			buf[i] = 0
		}
	}
	return nil
}

// validateRange checks slba/nlb against the namespace's current capacity.
func (ns *Namespace) validateRange(slba uint64, nlb uint16) error {
	if slba+uint64(nlb)+1 > ns.SectorCount() {
		return fmt.Errorf("namespace %d: LBA range %d+%d exceeds capacity %d", ns.nsid, slba, nlb, ns.SectorCount())
	}
	return nil
}

// Read returns a copy of (nlb+1) sectors starting at slba.
func (ns *Namespace) Read(slba uint64, nlb uint16) (*memory.Payload, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if err := ns.validateRange(slba, nlb); err != nil {
		return nil, err
	}

	sectorSize := ns.sectorSize()
	offset := slba * sectorSize
	length := uint64(nlb+1) * sectorSize

	out, err := memory.New(int(length))
	if err != nil {
		return nil, err
	}
	copy(out.Buffer(), ns.media.Buffer()[offset:offset+length])
	return out, nil
}

// Write copies data into (nlb+1) sectors starting at slba. data must be
// exactly (nlb+1)*sectorSize bytes.
func (ns *Namespace) Write(slba uint64, nlb uint16, data []byte) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if err := ns.validateRange(slba, nlb); err != nil {
		return err
	}

	sectorSize := ns.sectorSize()
	offset := slba * sectorSize
	length := uint64(nlb+1) * sectorSize
	if uint64(len(data)) != length {
		return fmt.Errorf("namespace %d: write data length %d does not match expected %d", ns.nsid, len(data), length)
	}

	copy(ns.media.Buffer()[offset:offset+length], data)
	return nil
}

// Close releases the namespace's media.
func (ns *Namespace) Close() error {
	return ns.media.Close()
}
