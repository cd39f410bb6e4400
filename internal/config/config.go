// Package config loads the YAML-driven controller configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// ControllerConfig describes the shape of a simulated controller: identity
// strings exposed through Identify Controller, the memory page size used by
// the PRP engine, queue depth limits, and watcher cadences.
type ControllerConfig struct {
	VendorID     uint16 `yaml:"vendor_id"`
	SubsystemID  uint16 `yaml:"subsystem_id"`
	ModelNumber  string `yaml:"model_number"`
	SerialNumber string `yaml:"serial_number"`
	FirmwareRev  string `yaml:"firmware_rev"`

	MemoryPageSize uint32 `yaml:"memory_page_size"`
	MaxQueueDepth  uint16 `yaml:"max_queue_depth"`
	MaxIOQueues    uint16 `yaml:"max_io_queues"`
	TimeoutUnits   uint8  `yaml:"timeout_units"` // CAP.TO, 500ms units

	Namespaces []NamespaceConfig `yaml:"namespaces"`

	RegisterWatcherInterval time.Duration `yaml:"register_watcher_interval"`
	DoorbellWatcherInterval time.Duration `yaml:"doorbell_watcher_interval"`
}

// NamespaceConfig describes one namespace to create at controller startup.
type NamespaceConfig struct {
	NSID        uint32 `yaml:"nsid"`
	SizeBytes   uint64 `yaml:"size_bytes"`
	LBAFormat   int    `yaml:"lba_format"` // index into the standard LBAF table
}

// Default returns the configuration used when no file is supplied: one
// 64 MiB namespace formatted to 4096-byte sectors, modest queue depths.
func Default() *ControllerConfig {
	return &ControllerConfig{
		VendorID:       0x8086,
		SubsystemID:    0x8086,
		ModelNumber:    "nvmesim Controller",
		SerialNumber:   "NVMESIM0000000000001",
		FirmwareRev:    "1.0",
		MemoryPageSize: 4096,
		MaxQueueDepth:  1024,
		MaxIOQueues:    8,
		TimeoutUnits:   30, // 15s
		Namespaces: []NamespaceConfig{
			{NSID: 1, SizeBytes: 64 << 20, LBAFormat: 1},
		},
		RegisterWatcherInterval: 10 * time.Millisecond,
		DoorbellWatcherInterval: 10 * time.Millisecond,
	}
}

// Load reads and parses a YAML ControllerConfig from path, filling any
// unset fields from Default.
func Load(path string) (*ControllerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if len(cfg.Namespaces) == 0 {
		cfg.Namespaces = Default().Namespaces
	}
	return cfg, nil
}
