package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// TimingConfig tunes the step clock
type TimingConfig struct {
	PollIntervalMs int `json:"pollIntervalMs,omitempty"` // lookahead poll period
	LookaheadMs    int `json:"lookaheadMs,omitempty"`    // how far ahead steps are armed
}

// SyncConfig tunes the player synchronization layer
type SyncConfig struct {
	SettleDelayMs      int `json:"settleDelayMs,omitempty"`      // wait after seek before re-applying play state
	FailureThreshold   int `json:"failureThreshold,omitempty"`   // failures within window that trip degraded mode
	FailureWindowSec   int `json:"failureWindowSec,omitempty"`   // sliding window for the failure counter
	RecoveryIntervalMs int `json:"recoveryIntervalMs,omitempty"` // degraded-mode probe period
}

// PatternConfig tunes the pattern model
type PatternConfig struct {
	MinBPM     float64 `json:"minBpm,omitempty"`
	MaxBPM     float64 `json:"maxBpm,omitempty"`
	DefaultBPM float64 `json:"defaultBpm,omitempty"`
	TotalBanks int     `json:"totalBanks,omitempty"` // 2 or 4
}

// Config is the main configuration structure
type Config struct {
	Timing  TimingConfig  `json:"timing,omitempty"`
	Sync    SyncConfig    `json:"sync,omitempty"`
	Pattern PatternConfig `json:"pattern,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Timing: TimingConfig{
			PollIntervalMs: 25,
			LookaheadMs:    100,
		},
		Sync: SyncConfig{
			SettleDelayMs:      150,
			FailureThreshold:   8,
			FailureWindowSec:   30,
			RecoveryIntervalMs: 5000,
		},
		Pattern: PatternConfig{
			MinBPM:     40,
			MaxBPM:     240,
			DefaultBPM: 120,
			TotalBanks: 2,
		},
	}
}

// PollInterval returns the scheduler poll period as a duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Timing.PollIntervalMs) * time.Millisecond
}

// Lookahead returns the scheduling window as a duration
func (c *Config) Lookahead() time.Duration {
	return time.Duration(c.Timing.LookaheadMs) * time.Millisecond
}

// SettleDelay returns the post-seek settle delay as a duration
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Sync.SettleDelayMs) * time.Millisecond
}

// FailureWindow returns the degradation sliding window as a duration
func (c *Config) FailureWindow() time.Duration {
	return time.Duration(c.Sync.FailureWindowSec) * time.Second
}

// RecoveryInterval returns the degraded-mode probe period as a duration
func (c *Config) RecoveryInterval() time.Duration {
	return time.Duration(c.Sync.RecoveryIntervalMs) * time.Millisecond
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "chopshop"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
