package regs

// Byte offsets of the NVMe controller register block, relative to BAR0/1,
// per NVMe 1.2.1.
const (
	offCAP     = 0x00 // 8 bytes
	offVS      = 0x08 // 4 bytes
	offINTMS   = 0x0C // 4 bytes
	offINTMC   = 0x10 // 4 bytes
	offCC      = 0x14 // 4 bytes
	offCSTS    = 0x1C // 4 bytes
	offNSSR    = 0x20 // 4 bytes
	offAQA     = 0x24 // 4 bytes
	offASQ     = 0x28 // 8 bytes
	offACQ     = 0x30 // 8 bytes
	offCMBLOC  = 0x38 // 4 bytes
	offCMBSZ   = 0x3C // 4 bytes
	offDoorbells = 0x1000

	// ControllerRegisterBlockSize is the byte span from CAP up to the start
	// of the doorbell array (SQ0TDBL at 0x1000).
	ControllerRegisterBlockSize = offDoorbells
)

// CAP field layout.
var (
	capMQES   = field{0, 16}
	capCQR    = field{16, 1}
	capAMS    = field{17, 2}
	capTO     = field{24, 8}
	capDSTRD  = field{32, 4}
	capNSSRS  = field{36, 1}
	capCSS    = field{37, 8}
	capMPSMIN = field{48, 4}
	capMPSMAX = field{52, 4}
)

// VS field layout.
var (
	vsTER = field{0, 8}
	vsMNR = field{8, 8}
	vsMJR = field{16, 16}
)

// CC field layout.
var (
	ccEN     = field{0, 1}
	ccCSS    = field{4, 3}
	ccMPS    = field{7, 4}
	ccAMS    = field{11, 3}
	ccSHN    = field{14, 2}
	ccIOSQES = field{16, 4}
	ccIOCQES = field{20, 4}
)

// CSTS field layout.
var (
	cstsRDY   = field{0, 1}
	cstsCFS   = field{1, 1}
	cstsSHST  = field{2, 2}
	cstsNSSRO = field{4, 1}
	cstsPP    = field{5, 1}
)

// AQA field layout.
var (
	aqaASQS = field{0, 12}
	aqaACQS = field{16, 12}
)

// ASQ / ACQ field layout. Addresses are 52 bits starting at bit 12
// (the low 12 bits are reserved, giving 4 KiB alignment).
var (
	asqASQB = field{12, 52}
	acqACQB = field{12, 52}
)

// SQyTDBL / CQyHDBL per-queue doorbell field layout.
var (
	dbSQT = field{0, 16}
	dbCQH = field{0, 16}
)

// ShutdownNotify values for CC.SHN.
const (
	ShutdownNone        = 0b00
	ShutdownNormal      = 0b01
	ShutdownAbrupt      = 0b10
)

// Shutdown status values for CSTS.SHST.
const (
	ShutdownStatusNone       = 0b00
	ShutdownStatusInProgress = 0b01
	ShutdownStatusComplete   = 0b10
)

// NSSRMagic is the value that, when written to NSSR.NSSRC, triggers an NVM
// subsystem reset ("NVMe" in ASCII, per NVMe 1.2.1).
const NSSRMagic = 0x4E564D65

// ControllerRegisters is a typed view over the controller's BAR0/1 register
// block plus its doorbell array. It owns no memory: every accessor is a
// pure reinterpretation of buf.
type ControllerRegisters struct {
	buf       []byte
	maxQueues int // number of non-admin queue id slots the doorbell array covers
}

// NewControllerRegisters wraps buf, which must be at least
// ControllerRegisterBlockSize + doorbell-array bytes long, as computed by
// DoorbellArraySize.
func NewControllerRegisters(buf []byte, maxQueues int) *ControllerRegisters {
	return &ControllerRegisters{buf: buf, maxQueues: maxQueues}
}

// DoorbellArraySize returns the byte size of the doorbell array for
// maxQueues non-admin queue ids plus the admin pair, at doorbell stride
// 4 << dstrd.
func DoorbellArraySize(maxQueues int, dstrd uint8) int {
	return 2 * (maxQueues + 1) * (4 << dstrd)
}

// Buffer returns the raw backing bytes (for snapshot/diff).
func (r *ControllerRegisters) Buffer() []byte {
	return r.buf
}

// --- CAP (read-only from the host side; set once at construction) ---

func (r *ControllerRegisters) CAP_MQES() uint16   { return uint16(getField(r.buf, offCAP, 8, capMQES)) }
func (r *ControllerRegisters) CAP_CQR() bool      { return getField(r.buf, offCAP, 8, capCQR) != 0 }
func (r *ControllerRegisters) CAP_AMS() uint8     { return uint8(getField(r.buf, offCAP, 8, capAMS)) }
func (r *ControllerRegisters) CAP_TO() uint8      { return uint8(getField(r.buf, offCAP, 8, capTO)) }
func (r *ControllerRegisters) CAP_DSTRD() uint8   { return uint8(getField(r.buf, offCAP, 8, capDSTRD)) }
func (r *ControllerRegisters) CAP_NSSRS() bool    { return getField(r.buf, offCAP, 8, capNSSRS) != 0 }
func (r *ControllerRegisters) CAP_CSS() uint8     { return uint8(getField(r.buf, offCAP, 8, capCSS)) }
func (r *ControllerRegisters) CAP_MPSMIN() uint8  { return uint8(getField(r.buf, offCAP, 8, capMPSMIN)) }
func (r *ControllerRegisters) CAP_MPSMAX() uint8  { return uint8(getField(r.buf, offCAP, 8, capMPSMAX)) }

// SetCAP initializes the whole read-only CAP register. Only ever called at
// controller construction.
func (r *ControllerRegisters) SetCAP(mqes uint16, cqr bool, ams uint8, to uint8, dstrd uint8, nssrs bool, css uint8, mpsmin, mpsmax uint8) {
	setField(r.buf, offCAP, 8, capMQES, uint64(mqes))
	setField(r.buf, offCAP, 8, capCQR, boolBit(cqr))
	setField(r.buf, offCAP, 8, capAMS, uint64(ams))
	setField(r.buf, offCAP, 8, capTO, uint64(to))
	setField(r.buf, offCAP, 8, capDSTRD, uint64(dstrd))
	setField(r.buf, offCAP, 8, capNSSRS, boolBit(nssrs))
	setField(r.buf, offCAP, 8, capCSS, uint64(css))
	setField(r.buf, offCAP, 8, capMPSMIN, uint64(mpsmin))
	setField(r.buf, offCAP, 8, capMPSMAX, uint64(mpsmax))
}

// --- VS ---

func (r *ControllerRegisters) SetVS(major, minor, tertiary uint16) {
	setField(r.buf, offVS, 4, vsMJR, uint64(major))
	setField(r.buf, offVS, 4, vsMNR, uint64(minor))
	setField(r.buf, offVS, 4, vsTER, uint64(tertiary))
}

func (r *ControllerRegisters) VS() (major, minor, tertiary uint16) {
	return uint16(getField(r.buf, offVS, 4, vsMJR)), uint16(getField(r.buf, offVS, 4, vsMNR)), uint16(getField(r.buf, offVS, 4, vsTER))
}

// --- INTMS / INTMC (write-only on real hardware; modeled as a pending mask) ---

func (r *ControllerRegisters) INTMS() uint32 { return uint32(readUint(r.buf, offINTMS, 4)) }
func (r *ControllerRegisters) INTMC() uint32 { return uint32(readUint(r.buf, offINTMC, 4)) }
func (r *ControllerRegisters) SetINTMS(v uint32) { writeUint(r.buf, offINTMS, 4, uint64(v)) }
func (r *ControllerRegisters) SetINTMC(v uint32) { writeUint(r.buf, offINTMC, 4, uint64(v)) }

// --- CC (host-writable) ---

func (r *ControllerRegisters) CC_EN() bool      { return getField(r.buf, offCC, 4, ccEN) != 0 }
func (r *ControllerRegisters) CC_CSS() uint8    { return uint8(getField(r.buf, offCC, 4, ccCSS)) }
func (r *ControllerRegisters) CC_MPS() uint8    { return uint8(getField(r.buf, offCC, 4, ccMPS)) }
func (r *ControllerRegisters) CC_AMS() uint8    { return uint8(getField(r.buf, offCC, 4, ccAMS)) }
func (r *ControllerRegisters) CC_SHN() uint8    { return uint8(getField(r.buf, offCC, 4, ccSHN)) }
func (r *ControllerRegisters) CC_IOSQES() uint8 { return uint8(getField(r.buf, offCC, 4, ccIOSQES)) }
func (r *ControllerRegisters) CC_IOCQES() uint8 { return uint8(getField(r.buf, offCC, 4, ccIOCQES)) }

func (r *ControllerRegisters) SetCC_EN(v bool) { setField(r.buf, offCC, 4, ccEN, boolBit(v)) }
func (r *ControllerRegisters) SetCC_SHN(v uint8) { setField(r.buf, offCC, 4, ccSHN, uint64(v)) }
func (r *ControllerRegisters) SetCC_AMS(v uint8) { setField(r.buf, offCC, 4, ccAMS, uint64(v)) }
func (r *ControllerRegisters) SetCC_IOSQES(v uint8) { setField(r.buf, offCC, 4, ccIOSQES, uint64(v)) }
func (r *ControllerRegisters) SetCC_IOCQES(v uint8) { setField(r.buf, offCC, 4, ccIOCQES, uint64(v)) }
func (r *ControllerRegisters) SetCC_MPS(v uint8) { setField(r.buf, offCC, 4, ccMPS, uint64(v)) }
func (r *ControllerRegisters) SetCC_CSS(v uint8) { setField(r.buf, offCC, 4, ccCSS, uint64(v)) }

// ResetCC clears the whole CC register to 0, used by the reset coordinator.
func (r *ControllerRegisters) ResetCC() { writeUint(r.buf, offCC, 4, 0) }

// --- CSTS (controller-writable, host-readable) ---

func (r *ControllerRegisters) CSTS_RDY() bool    { return getField(r.buf, offCSTS, 4, cstsRDY) != 0 }
func (r *ControllerRegisters) CSTS_CFS() bool    { return getField(r.buf, offCSTS, 4, cstsCFS) != 0 }
func (r *ControllerRegisters) CSTS_SHST() uint8  { return uint8(getField(r.buf, offCSTS, 4, cstsSHST)) }
func (r *ControllerRegisters) CSTS_NSSRO() bool  { return getField(r.buf, offCSTS, 4, cstsNSSRO) != 0 }
func (r *ControllerRegisters) CSTS_PP() bool     { return getField(r.buf, offCSTS, 4, cstsPP) != 0 }

func (r *ControllerRegisters) SetCSTS_RDY(v bool)   { setField(r.buf, offCSTS, 4, cstsRDY, boolBit(v)) }
func (r *ControllerRegisters) SetCSTS_CFS(v bool)   { setField(r.buf, offCSTS, 4, cstsCFS, boolBit(v)) }
func (r *ControllerRegisters) SetCSTS_SHST(v uint8) { setField(r.buf, offCSTS, 4, cstsSHST, uint64(v)) }
func (r *ControllerRegisters) SetCSTS_NSSRO(v bool) { setField(r.buf, offCSTS, 4, cstsNSSRO, boolBit(v)) }

// --- NSSR ---

func (r *ControllerRegisters) NSSR() uint32      { return uint32(readUint(r.buf, offNSSR, 4)) }
func (r *ControllerRegisters) ClearNSSR()        { writeUint(r.buf, offNSSR, 4, 0) }
func (r *ControllerRegisters) SetNSSR(v uint32)  { writeUint(r.buf, offNSSR, 4, uint64(v)) }

// --- AQA / ASQ / ACQ ---

func (r *ControllerRegisters) AQA_ASQS() uint16 { return uint16(getField(r.buf, offAQA, 4, aqaASQS)) }
func (r *ControllerRegisters) AQA_ACQS() uint16 { return uint16(getField(r.buf, offAQA, 4, aqaACQS)) }
func (r *ControllerRegisters) SetAQA_ASQS(v uint16) { setField(r.buf, offAQA, 4, aqaASQS, uint64(v)) }
func (r *ControllerRegisters) SetAQA_ACQS(v uint16) { setField(r.buf, offAQA, 4, aqaACQS, uint64(v)) }

func (r *ControllerRegisters) ASQ_ASQB() uint64        { return getField(r.buf, offASQ, 8, asqASQB) << 12 }
func (r *ControllerRegisters) SetASQ_ASQB(addr uint64) { setField(r.buf, offASQ, 8, asqASQB, addr>>12) }

func (r *ControllerRegisters) ACQ_ACQB() uint64        { return getField(r.buf, offACQ, 8, acqACQB) << 12 }
func (r *ControllerRegisters) SetACQ_ACQB(addr uint64) { setField(r.buf, offACQ, 8, acqACQB, addr>>12) }

// ResetPreservingAdminQueueConfig clears CC, CSTS, NSSR, INTMS, INTMC, and the
// doorbell array, but leaves CAP, VS, AQA, ASQ, and ACQ untouched, per the
// reset coordinator's requirement to preserve admin queue configuration
// across CC.EN cycling.
func (r *ControllerRegisters) ResetPreservingAdminQueueConfig() {
	writeUint(r.buf, offCC, 4, 0)
	writeUint(r.buf, offCSTS, 4, 0)
	writeUint(r.buf, offNSSR, 4, 0)
	writeUint(r.buf, offINTMS, 4, 0)
	writeUint(r.buf, offINTMC, 4, 0)
	for i := offDoorbells; i < len(r.buf); i++ {
		r.buf[i] = 0
	}
}

// --- CMBLOC / CMBSZ (modeled as opaque 32-bit registers; no CMB support) ---

func (r *ControllerRegisters) CMBLOC() uint32 { return uint32(readUint(r.buf, offCMBLOC, 4)) }
func (r *ControllerRegisters) CMBSZ() uint32  { return uint32(readUint(r.buf, offCMBSZ, 4)) }

// --- Doorbells ---

// stride is the per-queue doorbell stride in bytes: 4 << CAP.DSTRD.
func (r *ControllerRegisters) stride() int {
	return 4 << r.CAP_DSTRD()
}

func (r *ControllerRegisters) sqtdblOffset(queueID uint16) int {
	return offDoorbells + int(queueID)*2*r.stride()
}

func (r *ControllerRegisters) cqhdblOffset(queueID uint16) int {
	return offDoorbells + int(queueID)*2*r.stride() + r.stride()
}

// SQTDBL returns the submission queue tail doorbell value for queueID.
func (r *ControllerRegisters) SQTDBL(queueID uint16) uint16 {
	return uint16(getField(r.buf, r.sqtdblOffset(queueID), 4, dbSQT))
}

// SetSQTDBL rings the submission queue tail doorbell for queueID (host-side
// write in the model's single shared buffer).
func (r *ControllerRegisters) SetSQTDBL(queueID uint16, v uint16) {
	setField(r.buf, r.sqtdblOffset(queueID), 4, dbSQT, uint64(v))
}

// CQHDBL returns the completion queue head doorbell value for queueID.
func (r *ControllerRegisters) CQHDBL(queueID uint16) uint16 {
	return uint16(getField(r.buf, r.cqhdblOffset(queueID), 4, dbCQH))
}

// SetCQHDBL rings the completion queue head doorbell for queueID (the
// controller's record of what it last posted, per §4.8).
func (r *ControllerRegisters) SetCQHDBL(queueID uint16, v uint16) {
	setField(r.buf, r.cqhdblOffset(queueID), 4, dbCQH, uint64(v))
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
