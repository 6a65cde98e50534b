package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/session/params endpoint so the same JSON
// can be used for both startup configuration and runtime updates.
type TuningConfig struct {
	// Tracker params
	HitsToConfirm      *int     `json:"hits_to_confirm,omitempty"`
	MaxMisses          *int     `json:"max_misses,omitempty"`
	HistorySize        *int     `json:"history_size,omitempty"`
	LabelWindow        *int     `json:"label_window,omitempty"`
	IoUCostCeiling     *float64 `json:"iou_cost_ceiling,omitempty"`
	CreationConfidence *float64 `json:"creation_confidence,omitempty"`
	MaxTracks          *int     `json:"max_tracks,omitempty"`

	// Session runner params
	QueueCapacity *int    `json:"queue_capacity,omitempty"`
	QueuePolicy   *string `json:"queue_policy,omitempty"`   // "block" or "drop_oldest"
	FlushInterval *string `json:"flush_interval,omitempty"` // duration string like "5s"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.HitsToConfirm != nil && *c.HitsToConfirm < 1 {
		return fmt.Errorf("hits_to_confirm must be at least 1, got %d", *c.HitsToConfirm)
	}
	if c.MaxMisses != nil && *c.MaxMisses < 0 {
		return fmt.Errorf("max_misses must be non-negative, got %d", *c.MaxMisses)
	}
	if c.HistorySize != nil && *c.HistorySize < 2 {
		return fmt.Errorf("history_size must be at least 2, got %d", *c.HistorySize)
	}
	if c.LabelWindow != nil && *c.LabelWindow < 1 {
		return fmt.Errorf("label_window must be at least 1, got %d", *c.LabelWindow)
	}
	if c.IoUCostCeiling != nil {
		if *c.IoUCostCeiling <= 0 || *c.IoUCostCeiling > 1 {
			return fmt.Errorf("iou_cost_ceiling must be in (0, 1], got %f", *c.IoUCostCeiling)
		}
	}
	if c.CreationConfidence != nil {
		if *c.CreationConfidence < 0 || *c.CreationConfidence > 1 {
			return fmt.Errorf("creation_confidence must be between 0 and 1, got %f", *c.CreationConfidence)
		}
	}
	if c.MaxTracks != nil && *c.MaxTracks < 1 {
		return fmt.Errorf("max_tracks must be at least 1, got %d", *c.MaxTracks)
	}
	if c.QueueCapacity != nil && *c.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1, got %d", *c.QueueCapacity)
	}
	if c.QueuePolicy != nil {
		switch *c.QueuePolicy {
		case "", "block", "drop_oldest":
		default:
			return fmt.Errorf("queue_policy must be 'block' or 'drop_oldest', got %q", *c.QueuePolicy)
		}
	}
	if c.FlushInterval != nil && *c.FlushInterval != "" {
		if _, err := time.ParseDuration(*c.FlushInterval); err != nil {
			return fmt.Errorf("invalid flush_interval '%s': %w", *c.FlushInterval, err)
		}
	}
	return nil
}

// GetHitsToConfirm returns the hits_to_confirm value or the default.
func (c *TuningConfig) GetHitsToConfirm() int {
	if c.HitsToConfirm == nil {
		return 3
	}
	return *c.HitsToConfirm
}

// GetMaxMisses returns the max_misses value or the default.
func (c *TuningConfig) GetMaxMisses() int {
	if c.MaxMisses == nil {
		return 10
	}
	return *c.MaxMisses
}

// GetHistorySize returns the history_size value or the default.
func (c *TuningConfig) GetHistorySize() int {
	if c.HistorySize == nil {
		return 16
	}
	return *c.HistorySize
}

// GetLabelWindow returns the label_window value or the default.
func (c *TuningConfig) GetLabelWindow() int {
	if c.LabelWindow == nil {
		return 8
	}
	return *c.LabelWindow
}

// GetIoUCostCeiling returns the iou_cost_ceiling value or the default.
func (c *TuningConfig) GetIoUCostCeiling() float64 {
	if c.IoUCostCeiling == nil {
		return 0.7
	}
	return *c.IoUCostCeiling
}

// GetCreationConfidence returns the creation_confidence value or the default.
func (c *TuningConfig) GetCreationConfidence() float64 {
	if c.CreationConfidence == nil {
		return 0.3
	}
	return *c.CreationConfidence
}

// GetMaxTracks returns the max_tracks value or the default.
func (c *TuningConfig) GetMaxTracks() int {
	if c.MaxTracks == nil {
		return 256
	}
	return *c.MaxTracks
}

// GetQueueCapacity returns the queue_capacity value or the default.
func (c *TuningConfig) GetQueueCapacity() int {
	if c.QueueCapacity == nil {
		return 64
	}
	return *c.QueueCapacity
}

// GetQueuePolicy returns the queue_policy value or the default.
func (c *TuningConfig) GetQueuePolicy() string {
	if c.QueuePolicy == nil || *c.QueuePolicy == "" {
		return "block"
	}
	return *c.QueuePolicy
}

// GetFlushInterval parses and returns the FlushInterval as a time.Duration.
func (c *TuningConfig) GetFlushInterval() time.Duration {
	if c.FlushInterval == nil || *c.FlushInterval == "" {
		return 5 * time.Second // default
	}
	d, err := time.ParseDuration(*c.FlushInterval)
	if err != nil {
		return 5 * time.Second // default on parse error
	}
	return d
}
