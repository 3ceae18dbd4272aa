// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The bio Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package session records live acquisitions into signal container
// files: a buffered recorder with periodic snapshot flushes, a YAML
// session configuration, a JSONC experiment protocol with a trigger
// schedule, and a CBOR sidecar describing each finished recording.
package session

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pulp-bio/bio"
)

// DefaultFlushInterval is applied when a config does not set one.
const DefaultFlushInterval = 1 * time.Second

// Duration wraps time.Duration for YAML fields written as "1.5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("session: parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// SignalConfig declares one recorded signal.
type SignalConfig struct {
	Name     string  `yaml:"name"`
	Rate     float32 `yaml:"rate"`
	Channels int     `yaml:"channels"`
	Type     string  `yaml:"type"`
}

// SampleType resolves the declared element type name.
func (s SignalConfig) SampleType() (bio.SampleType, error) {
	typ, ok := typeNames[s.Type]
	if !ok {
		return 0, fmt.Errorf("session: signal %q has unknown type %q", s.Name, s.Type)
	}
	return typ, nil
}

var typeNames = map[string]bio.SampleType{
	"bool":    bio.Bool,
	"int8":    bio.Int8,
	"uint8":   bio.Uint8,
	"int16":   bio.Int16,
	"uint16":  bio.Uint16,
	"int32":   bio.Int32,
	"uint32":  bio.Uint32,
	"int64":   bio.Int64,
	"uint64":  bio.Uint64,
	"float32": bio.Float32,
	"float64": bio.Float64,
}

// Config describes one recording session.
type Config struct {
	// Name identifies the session in the sidecar and in logs.
	Name string `yaml:"name"`
	// OutPath is where the container file is written.
	OutPath string `yaml:"out_path"`
	// BaseRate is the sampling rate of the timestamp and trigger
	// columns.
	BaseRate float32 `yaml:"base_rate"`
	// FlushInterval is the period between snapshot flushes.
	FlushInterval Duration `yaml:"flush_interval"`
	// Signals lists the recorded signals in file order.
	Signals []SignalConfig `yaml:"signals"`
	// ProtocolPath optionally names a JSONC experiment protocol file.
	ProtocolPath string `yaml:"protocol,omitempty"`
}

// LoadConfig reads and validates a session config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("session: reading config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig unmarshals a session config and validates it, applying
// the flush interval default.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("session: parsing config: %w", err)
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = Duration(DefaultFlushInterval)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the config for internal consistency.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("session: config has no name")
	}
	if c.OutPath == "" {
		return fmt.Errorf("session: config has no out_path")
	}
	if c.BaseRate <= 0 {
		return fmt.Errorf("session: base_rate %v must be positive", c.BaseRate)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("session: flush_interval %v must be positive", time.Duration(c.FlushInterval))
	}
	if len(c.Signals) == 0 {
		return fmt.Errorf("session: config declares no signals")
	}
	seen := make(map[string]struct{}, len(c.Signals))
	for _, s := range c.Signals {
		if s.Name == "" {
			return fmt.Errorf("session: signal with empty name")
		}
		if s.Name == bio.TimestampName || s.Name == bio.TriggerName {
			return fmt.Errorf("session: signal name %q is reserved", s.Name)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("session: duplicate signal name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
		if s.Rate <= 0 {
			return fmt.Errorf("session: signal %q rate %v must be positive", s.Name, s.Rate)
		}
		if s.Channels < 1 {
			return fmt.Errorf("session: signal %q has %d channels", s.Name, s.Channels)
		}
		if _, err := s.SampleType(); err != nil {
			return err
		}
	}
	return nil
}
