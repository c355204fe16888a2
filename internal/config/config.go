// Package config handles DarkRenderer's static configuration loading using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// GlobalConfig is the top-level JSON configuration document: edge.ip/port,
// cloud.ip/port, networking.compression, networking.recv_buffer_size,
// processing.cpu.{active,use_multicore}, processing.fpga.{active,num_accelerators},
// processing.cloud.{active,mode_streaming,factor,task_chunk_size},
// processing.multiqueue, processing.task_size, processing.task_steal, and log.*.
// The CPU and FPGA sections have no factor key.
type GlobalConfig struct {
	Edge       EndpointConfig   `mapstructure:"edge"`
	Cloud      EndpointConfig   `mapstructure:"cloud"`
	Networking NetworkingConfig `mapstructure:"networking"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Log        LogConfig        `mapstructure:"log"`
}

// EndpointConfig is a bind or dial address for the edge or cloud tier.
type EndpointConfig struct {
	IP   string `mapstructure:"ip"`
	Port int    `mapstructure:"port"`
}

func (e EndpointConfig) Addr() string {
	return fmt.Sprintf("%s:%d", e.IP, e.Port)
}

// NetworkingConfig controls the framed transport (spec.md §4.1).
type NetworkingConfig struct {
	Compression    bool `mapstructure:"compression"`
	RecvBufferSize int  `mapstructure:"recv_buffer_size"`
}

// ProcessingConfig controls task partitioning, the queue fabric, and which tracers
// are active for a session (spec.md §4.2-§4.4).
type ProcessingConfig struct {
	CPU         CPUConfig   `mapstructure:"cpu"`
	FPGA        FPGAConfig  `mapstructure:"fpga"`
	Cloud       CloudConfig `mapstructure:"cloud"`
	Multiqueue  bool        `mapstructure:"multiqueue"`
	TaskSize    int         `mapstructure:"task_size"`
	TaskSteal   bool        `mapstructure:"task_steal"`
}

// CPUConfig configures the CPU tracer (spec.md §4.4.1).
type CPUConfig struct {
	Active      bool `mapstructure:"active"`
	UseMulticore bool `mapstructure:"use_multicore"`
}

// FPGAConfig configures the FPGA tracer (spec.md §4.4.2).
type FPGAConfig struct {
	Active           bool `mapstructure:"active"`
	NumAccelerators  int  `mapstructure:"num_accelerators"`
}

// CloudConfig configures the cloud tracer (spec.md §4.4.3).
type CloudConfig struct {
	Active    bool `mapstructure:"active"`
	Streaming bool `mapstructure:"mode_streaming"`
	// Factor is part of the documented processing.cloud config surface but is not
	// consumed by internal/tracer: batching and streaming window size are both
	// governed by TaskChunkSize.
	Factor        int `mapstructure:"factor"`
	TaskChunkSize int `mapstructure:"task_chunk_size"`
}

// ─── Log ───

// LogConfig contains structured logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Loading ───

// Load reads the JSON configuration named by path, applies defaults, and validates it.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var cfg GlobalConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("edge.ip", "0.0.0.0")
	v.SetDefault("edge.port", 9000)
	v.SetDefault("cloud.ip", "0.0.0.0")
	v.SetDefault("cloud.port", 9100)

	v.SetDefault("networking.compression", true)
	v.SetDefault("networking.recv_buffer_size", 256*1024)

	v.SetDefault("processing.cpu.active", true)
	v.SetDefault("processing.cpu.use_multicore", true)
	v.SetDefault("processing.fpga.active", false)
	v.SetDefault("processing.fpga.num_accelerators", 1)
	v.SetDefault("processing.cloud.active", false)
	v.SetDefault("processing.cloud.mode_streaming", false)
	v.SetDefault("processing.cloud.factor", 1)
	v.SetDefault("processing.cloud.task_chunk_size", 4)
	v.SetDefault("processing.multiqueue", false)
	v.SetDefault("processing.task_size", 64)
	v.SetDefault("processing.task_steal", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.outputs.file.enabled", false)
	v.SetDefault("log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("log.outputs.file.rotation.compress", true)
}

// Validate checks field-level invariants that would otherwise surface as confusing
// runtime failures deep in the dispatcher.
func (cfg *GlobalConfig) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if cfg.Processing.TaskSize <= 0 {
		return fmt.Errorf("processing.task_size must be positive, got %d", cfg.Processing.TaskSize)
	}
	if !cfg.Processing.CPU.Active && !cfg.Processing.FPGA.Active && !cfg.Processing.Cloud.Active {
		return fmt.Errorf("at least one of processing.{cpu,fpga,cloud}.active must be true")
	}
	if cfg.Processing.FPGA.Active && cfg.Processing.FPGA.NumAccelerators <= 0 {
		return fmt.Errorf("processing.fpga.num_accelerators must be positive when fpga is active")
	}
	return nil
}
