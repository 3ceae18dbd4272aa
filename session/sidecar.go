// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The bio Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package session

import (
	"fmt"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// SidecarExt is appended to a recording path to name its sidecar.
const SidecarExt = ".meta"

// SidecarPath returns the sidecar path for a recording path.
func SidecarPath(outPath string) string {
	return outPath + SidecarExt
}

// SidecarSignal describes one recorded signal.
type SidecarSignal struct {
	Name     string  `cbor:"name"`
	Rate     float32 `cbor:"rate"`
	Channels int     `cbor:"channels"`
	Type     string  `cbor:"type"`
	Rows     int     `cbor:"rows"`
}

// Sidecar is the machine-readable companion of a finished recording:
// what was recorded, when, and what the trigger values mean. It is
// CBOR so downstream tools can read it without the container.
type Sidecar struct {
	Session   string            `cbor:"session"`
	StartTime time.Time         `cbor:"start_time"`
	BaseRate  float32           `cbor:"base_rate"`
	Rows      int               `cbor:"rows"`
	Signals   []SidecarSignal   `cbor:"signals"`
	Triggers  map[uint32]string `cbor:"triggers,omitempty"`
}

// Sidecars are encoded deterministically so identical recordings
// produce identical bytes.
var (
	sidecarEnc cbor.EncMode
	sidecarDec cbor.DecMode
)

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	enc, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	sidecarEnc = enc
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	sidecarDec = dec
}

// WriteSidecar writes the sidecar to the given path.
func WriteSidecar(path string, sc *Sidecar) error {
	data, err := sidecarEnc.Marshal(sc)
	if err != nil {
		return fmt.Errorf("session: encoding sidecar: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return nil
}

// ReadSidecar reads a sidecar written by WriteSidecar.
func ReadSidecar(path string) (*Sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	var sc Sidecar
	if err := sidecarDec.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("session: decoding sidecar %s: %w", path, err)
	}
	return &sc, nil
}
