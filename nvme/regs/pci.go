package regs

// PCI configuration header and capability chain offsets, per the PCIe base
// specification and NVMe 1.2.1's use of it. Only the fields the reset
// coordinator and controller register engine actually consume are modeled.
const (
	offVID         = 0x00 // 2 bytes, vendor id
	offDID         = 0x02 // 2 bytes, device id
	offPCICommand  = 0x04 // 2 bytes
	offPCIStatus   = 0x06 // 2 bytes
	offRevisionID  = 0x08 // 1 byte
	offClassCode   = 0x09 // 3 bytes
	offCacheLine   = 0x0C // 1 byte
	offMasterLat   = 0x0D // 1 byte
	offHeaderType  = 0x0E // 1 byte
	offBIST        = 0x0F // 1 byte
	offMLBAR       = 0x10 // 4 bytes, BAR0
	offMUBAR       = 0x14 // 4 bytes, BAR1

	// PCIHeaderSize is the byte span of fields through BIST that a
	// function-level reset restores from the construction-time snapshot.
	PCIHeaderSize = 0x10
)

// PXDC (PCIe Device Control) bit offsets within the PXCAP capability.
var pxdcIFLR = field{15, 1} // Initiate Function Level Reset

// PCIExpressRegisters is a typed view over the PCI configuration header. The
// capability chain is modeled minimally: only the PCIe capability's device
// control register (for PXDC.IFLR) is addressable, since it is the only
// capability the reset coordinator consumes.
type PCIExpressRegisters struct {
	buf      []byte
	pxcapOff int
	snapshot []byte // header-through-BIST bytes captured at construction
}

// NewPCIExpressRegisters wraps buf (which must hold at least PCIHeaderSize
// bytes plus room for the PXCAP capability at pxcapOffset) and snapshots the
// header for later function-level-reset restoration.
func NewPCIExpressRegisters(buf []byte, pxcapOffset int) *PCIExpressRegisters {
	r := &PCIExpressRegisters{buf: buf, pxcapOff: pxcapOffset}
	r.snapshot = append([]byte(nil), buf[:PCIHeaderSize]...)
	return r
}

func (r *PCIExpressRegisters) SetIdentifiers(vid, did uint16) {
	writeUint(r.buf, offVID, 2, uint64(vid))
	writeUint(r.buf, offDID, 2, uint64(did))
}

func (r *PCIExpressRegisters) VID() uint16 { return uint16(readUint(r.buf, offVID, 2)) }
func (r *PCIExpressRegisters) DID() uint16 { return uint16(readUint(r.buf, offDID, 2)) }

// SetBAR0 programs MLBAR/MUBAR with the 64-bit BAR0/1 memory address the
// controller register block lives at.
func (r *PCIExpressRegisters) SetBAR0(addr uint64) {
	writeUint(r.buf, offMLBAR, 4, uint64(uint32(addr)))
	writeUint(r.buf, offMUBAR, 4, addr>>32)
}

// BAR0 reconstructs the 64-bit address programmed via SetBAR0.
func (r *PCIExpressRegisters) BAR0() uint64 {
	lower := readUint(r.buf, offMLBAR, 4)
	upper := readUint(r.buf, offMUBAR, 4)
	return (upper << 32) | lower
}

// PXDC_IFLR reports whether the host has requested a PCIe function-level
// reset via the PCIe capability's device control register.
func (r *PCIExpressRegisters) PXDC_IFLR() bool {
	return getField(r.buf, r.pxcapOff, 2, pxdcIFLR) != 0
}

// ClearPXDC_IFLR acknowledges the function-level-reset request.
func (r *PCIExpressRegisters) ClearPXDC_IFLR() {
	setField(r.buf, r.pxcapOff, 2, pxdcIFLR, 0)
}

// RequestFunctionLevelReset is the host-side action of setting PXDC.IFLR,
// exposed for tests to simulate a host-initiated FLR.
func (r *PCIExpressRegisters) RequestFunctionLevelReset() {
	setField(r.buf, r.pxcapOff, 2, pxdcIFLR, 1)
}

// RestoreHeaderSnapshot restores VID/DID through BIST from the
// construction-time snapshot, per the reset coordinator's function-level
// reset step.
func (r *PCIExpressRegisters) RestoreHeaderSnapshot() {
	copy(r.buf[:PCIHeaderSize], r.snapshot)
}
