// Package wire defines the byte-exact NVMe command, completion, and
// Identify structures, plus the opcode/status/CNS constants the dispatcher
// and namespace layer use to interpret them.
package wire

// Admin opcodes (subset implemented by the dispatcher).
const (
	OpDeleteIOSubmissionQueue = 0x00
	OpCreateIOSubmissionQueue = 0x01
	OpDeleteIOCompletionQueue = 0x04
	OpCreateIOCompletionQueue = 0x05
	OpIdentify                = 0x06
	OpKeepAlive               = 0x18
	OpFormatNVM               = 0x80
)

// NVM (I/O) opcodes.
const (
	OpFlush = 0x00
	OpWrite = 0x01
	OpRead  = 0x02
)

// Status code types (SCT).
const (
	StatusTypeGeneric        = 0x0
	StatusTypeCommandSpecific = 0x1
	StatusTypeMediaIntegrity  = 0x2
)

// Generic status codes (SC), under StatusTypeGeneric.
const (
	StatusSuccess             = 0x00
	StatusInvalidOpcode       = 0x01
	StatusInvalidField        = 0x02
	StatusCommandIDConflict   = 0x03
	StatusLBAOutOfRange       = 0x80
	StatusCapacityExceeded    = 0x81
	StatusNamespaceNotReady   = 0x82
)

// Command-specific status codes (SC), under StatusTypeCommandSpecific.
const (
	StatusInvalidQueueIdentifier = 0x01
	StatusInvalidQueueSize       = 0x02
	StatusInvalidInterruptVector = 0x08
	StatusInvalidFormat          = 0x0A
	StatusInvalidQueueDeletion   = 0x0C
)

// Identify CNS (Controller or Namespace Structure) values.
const (
	CNSIdentifyNamespace          = 0x00
	CNSIdentifyController         = 0x01
	CNSIdentifyNamespaceList      = 0x02
	CNSIdentifyNamespaceDescriptor = 0x03
)

// Format NVM SES (Secure Erase Settings) values.
const (
	SESNoSecureErase   = 0
	SESUserDataErase   = 1
	SESCryptographicErase = 2
)

const (
	// IdentifySize is the fixed size, in bytes, of every Identify data
	// structure (Controller, Namespace, or list).
	IdentifySize = 4096

	// CommandSize is the fixed size, in bytes, of one NVMe submission
	// queue entry.
	CommandSize = 64

	// CompletionSize is the fixed size, in bytes, of one NVMe completion
	// queue entry.
	CompletionSize = 16

	// MaxNamespaceIDsInList bounds an Identify Namespace List response.
	MaxNamespaceIDsInList = 1024
)
