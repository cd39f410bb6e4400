package wire

import (
	"encoding/binary"
	"fmt"
	"slices"
)

// Identify Controller byte offsets, per NVMe 1.2.1 figure "Identify
// Controller Data Structure". Only the fields this simulation populates or
// the dispatcher reads are named; everything else is left zeroed reserved
// space in the 4096-byte buffer.
const (
	offVID     = 0
	offSSID    = 2
	offSN      = 4  // 20 bytes
	offMN      = 24 // 40 bytes
	offFR      = 64 // 8 bytes
	offRAB     = 72
	offIEEECMIC = 73 // IEEE:24 | CMIC:8, 4 bytes total
	offMDTS    = 77
	offCNTLID  = 78
	offVER     = 80
	offOACS    = 256
	offACL     = 258
	offAERL    = 259
	offFRMW    = 260
	offLPA     = 261
	offSQES    = 512
	offCQES    = 513
	offMAXCMD  = 514
	offNN      = 516
	offONCS    = 520
	offFNA     = 525
	offSUBNQN  = 768
	offPSD     = 1024 // 32 entries * 32 bytes = 1024 bytes, through 2047
)

// IdentifyController is a bit-exact reinterpretation of the 4096-byte
// Identify Controller data structure over an owned buffer.
type IdentifyController struct {
	buf [IdentifySize]byte
}

// NewIdentifyController builds a populated Identify Controller with the
// non-zero defaults named in the component design: configured VID/SSID,
// padded serial/model/firmware strings, required SQES/CQES, a namespace
// count, and a generated Subsystem NQN.
func NewIdentifyController(vid, ssid uint16, serial, model, firmware string, namespaceCount uint32, uuidHex string) *IdentifyController {
	ic := &IdentifyController{}
	binary.LittleEndian.PutUint16(ic.buf[offVID:], vid)
	binary.LittleEndian.PutUint16(ic.buf[offSSID:], ssid)
	putPaddedString(ic.buf[offSN:offSN+20], serial, ' ')
	putPaddedString(ic.buf[offMN:offMN+40], model, ' ')
	putPaddedString(ic.buf[offFR:offFR+8], firmware, ' ')
	binary.LittleEndian.PutUint16(ic.buf[offCNTLID:], 0)
	binary.LittleEndian.PutUint32(ic.buf[offVER:], 0x00010201) // NVMe 1.2.1

	// OACS: bit1 Format NVM supported; no other optional admin command bit is set.
	binary.LittleEndian.PutUint16(ic.buf[offOACS:], 0x0002)

	ic.buf[offSQES] = 0x66 // required=min=6 (2^6=64 bytes)
	ic.buf[offCQES] = 0x44 // required=min=4 (2^4=16 bytes)
	binary.LittleEndian.PutUint16(ic.buf[offMAXCMD:], 1024)
	binary.LittleEndian.PutUint32(ic.buf[offNN:], namespaceCount)

	nqn := buildSubsystemNQN(uuidHex)
	putPaddedString(ic.buf[offSUBNQN:offSUBNQN+256], nqn, 0)

	return ic
}

// buildSubsystemNQN fills the UUID positions of the standard template with
// the supplied hex digits (already generated by the caller, since this
// package must not call time/rand directly to stay deterministic for tests).
func buildSubsystemNQN(uuidHex string) string {
	const template = "nqn.2014-08.org.nvmexpress:uuid:00000000-0000-0000-0000-000000000000"
	if len(uuidHex) != 32 {
		return template
	}
	return fmt.Sprintf("nqn.2014-08.org.nvmexpress:uuid:%s-%s-%s-%s-%s",
		uuidHex[0:8], uuidHex[8:12], uuidHex[12:16], uuidHex[16:20], uuidHex[20:32])
}

func putPaddedString(dst []byte, s string, pad byte) {
	for i := range dst {
		dst[i] = pad
	}
	copy(dst, s)
}

// Bytes returns the raw 4096-byte Identify Controller structure.
func (ic *IdentifyController) Bytes() []byte {
	return ic.buf[:]
}

func (ic *IdentifyController) SQES() uint8 { return ic.buf[offSQES] }
func (ic *IdentifyController) CQES() uint8 { return ic.buf[offCQES] }
func (ic *IdentifyController) NN() uint32  { return binary.LittleEndian.Uint32(ic.buf[offNN:]) }

// LBAFormat describes one supported LBA format: metadata size and the
// sector size exponent (sector size = 2^LBADS).
type LBAFormat struct {
	MetadataSize uint16
	LBADS        uint8
	RP           uint8
}

// StandardLBAFormats are the three LBA formats this simulation supports,
// per §4.9: 512, 4096, and 8192-byte sectors.
var StandardLBAFormats = []LBAFormat{
	{LBADS: 9},  // 2^9 = 512
	{LBADS: 12}, // 2^12 = 4096
	{LBADS: 13}, // 2^13 = 8192
}

// SectorSize returns 2^LBADS for format index i, or an error if out of range.
func SectorSize(lbaFormatIndex int) (uint64, error) {
	if lbaFormatIndex < 0 || lbaFormatIndex >= len(StandardLBAFormats) {
		return 0, fmt.Errorf("wire: invalid LBA format index %d", lbaFormatIndex)
	}
	return 1 << StandardLBAFormats[lbaFormatIndex].LBADS, nil
}

// Identify Namespace byte offsets, per NVMe 1.2.1.
const (
	offNSZE  = 0
	offNCAP  = 8
	offNUSE  = 16
	offNSFEAT = 24
	offNLBAF = 25
	offFLBAS = 26
	offNMIC  = 30
	offLBAF  = 128 // 16 entries * 4 bytes = 64 bytes
	offEUI64 = 120
)

// IdentifyNamespace is a bit-exact reinterpretation of the 4096-byte
// Identify Namespace data structure over an owned buffer.
type IdentifyNamespace struct {
	buf [IdentifySize]byte
}

// NewIdentifyNamespace builds a populated Identify Namespace for a namespace
// of the given byte size, formatted to lbaFormatIndex (0-based), with the
// standard three-format LBAF table (§4.9).
func NewIdentifyNamespace(sizeBytes uint64, lbaFormatIndex int, eui64 uint64) (*IdentifyNamespace, error) {
	sectorSize, err := SectorSize(lbaFormatIndex)
	if err != nil {
		return nil, err
	}
	if sizeBytes%sectorSize != 0 {
		return nil, fmt.Errorf("wire: namespace size %d is not a multiple of sector size %d", sizeBytes, sectorSize)
	}

	ns := &IdentifyNamespace{}
	nsze := sizeBytes / sectorSize
	binary.LittleEndian.PutUint64(ns.buf[offNSZE:], nsze)
	binary.LittleEndian.PutUint64(ns.buf[offNCAP:], nsze)
	binary.LittleEndian.PutUint64(ns.buf[offNUSE:], nsze)
	ns.buf[offNLBAF] = uint8(len(StandardLBAFormats) - 1) // 0-based count
	ns.buf[offFLBAS] = uint8(lbaFormatIndex)
	ns.buf[offNMIC] = 0x1 // shared
	binary.LittleEndian.PutUint64(ns.buf[offEUI64:], eui64)

	for i, f := range StandardLBAFormats {
		off := offLBAF + i*4
		binary.LittleEndian.PutUint16(ns.buf[off:], f.MetadataSize)
		ns.buf[off+2] = f.LBADS
		ns.buf[off+3] = f.RP & 0x3
	}

	return ns, nil
}

// SetLBAFormat switches the namespace's current LBA format and updates the
// size-dependent fields for a media of the given byte size, as Format NVM
// requires.
func (ns *IdentifyNamespace) SetLBAFormat(lbaFormatIndex int, sizeBytes uint64) error {
	sectorSize, err := SectorSize(lbaFormatIndex)
	if err != nil {
		return err
	}
	if sizeBytes%sectorSize != 0 {
		return fmt.Errorf("wire: namespace size %d is not a multiple of sector size %d", sizeBytes, sectorSize)
	}
	ns.buf[offFLBAS] = uint8(lbaFormatIndex)
	nsze := sizeBytes / sectorSize
	binary.LittleEndian.PutUint64(ns.buf[offNSZE:], nsze)
	binary.LittleEndian.PutUint64(ns.buf[offNCAP:], nsze)
	binary.LittleEndian.PutUint64(ns.buf[offNUSE:], nsze)
	return nil
}

func (ns *IdentifyNamespace) FLBAS() uint8 { return ns.buf[offFLBAS] }
func (ns *IdentifyNamespace) NLBAF() uint8 { return ns.buf[offNLBAF] }
func (ns *IdentifyNamespace) NSZE() uint64 { return binary.LittleEndian.Uint64(ns.buf[offNSZE:]) }
func (ns *IdentifyNamespace) EUI64() uint64 { return binary.LittleEndian.Uint64(ns.buf[offEUI64:]) }

// Bytes returns the raw 4096-byte Identify Namespace structure.
func (ns *IdentifyNamespace) Bytes() []byte {
	return ns.buf[:]
}

// EncodeNamespaceList builds an Identify Namespace List (CNS=0x02) response:
// an ascending, zero-terminated list of active NSIDs, up to
// MaxNamespaceIDsInList entries, in a 4096-byte buffer.
func EncodeNamespaceList(nsids []uint32) []byte {
	sorted := slices.Clone(nsids)
	slices.Sort(sorted)
	buf := make([]byte, IdentifySize)
	for i, id := range sorted {
		if i >= MaxNamespaceIDsInList {
			break
		}
		binary.LittleEndian.PutUint32(buf[i*4:], id)
	}
	return buf
}

// EncodeNamespaceDescriptorList builds an Identify Namespace Descriptor List
// (CNS=0x03) response containing a single NIDT=EUI64 descriptor.
func EncodeNamespaceDescriptorList(eui64 uint64) []byte {
	const (
		nidtEUI64 = 0x2
		eui64Len  = 8
	)
	buf := make([]byte, IdentifySize)
	buf[0] = nidtEUI64
	buf[1] = eui64Len
	binary.LittleEndian.PutUint64(buf[4:], eui64)
	return buf
}
