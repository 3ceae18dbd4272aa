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
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/tidwall/jsonc"
)

// Protocol is a guided-acquisition experiment: after an initial rest
// phase, every gesture is held and released reps times with rest
// phases in between. Rest records trigger value 0; holding a gesture
// records its id. Protocol files are JSON with comments allowed.
type Protocol struct {
	// Gestures maps each gesture label to its nonzero trigger id.
	Gestures map[string]uint32 `json:"gestures"`
	// Reps is how many times each gesture is repeated.
	Reps int `json:"reps"`
	// StartSeconds is the initial rest phase length.
	StartSeconds float64 `json:"start_seconds"`
	// GestureSeconds is the hold length of one repetition.
	GestureSeconds float64 `json:"gesture_seconds"`
	// RestSeconds is the rest length between repetitions.
	RestSeconds float64 `json:"rest_seconds"`
}

// LoadProtocol reads and validates a protocol file.
func LoadProtocol(path string) (*Protocol, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("session: reading protocol: %w", err)
	}
	p, err := ParseProtocol(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParseProtocol unmarshals a protocol, stripping comments first, and
// validates it.
func ParseProtocol(data []byte) (*Protocol, error) {
	var p Protocol
	if err := json.Unmarshal(jsonc.ToJSON(data), &p); err != nil {
		return nil, fmt.Errorf("session: parsing protocol: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the protocol for internal consistency.
func (p *Protocol) Validate() error {
	if len(p.Gestures) == 0 {
		return fmt.Errorf("session: protocol declares no gestures")
	}
	byID := make(map[uint32]string, len(p.Gestures))
	for label, id := range p.Gestures {
		if label == "" {
			return fmt.Errorf("session: protocol has a gesture with an empty label")
		}
		if id == 0 {
			return fmt.Errorf("session: gesture %q uses id 0, which marks rest", label)
		}
		if prev, dup := byID[id]; dup {
			return fmt.Errorf("session: gestures %q and %q share id %d", prev, label, id)
		}
		byID[id] = label
	}
	if p.Reps < 1 {
		return fmt.Errorf("session: protocol reps %d must be at least 1", p.Reps)
	}
	if p.StartSeconds < 0 {
		return fmt.Errorf("session: negative start_seconds %v", p.StartSeconds)
	}
	if p.GestureSeconds <= 0 {
		return fmt.Errorf("session: gesture_seconds %v must be positive", p.GestureSeconds)
	}
	if p.RestSeconds < 0 {
		return fmt.Errorf("session: negative rest_seconds %v", p.RestSeconds)
	}
	return nil
}

// Labels returns the id-to-label mapping, for the sidecar.
func (p *Protocol) Labels() map[uint32]string {
	labels := make(map[uint32]string, len(p.Gestures))
	for label, id := range p.Gestures {
		labels[id] = label
	}
	return labels
}

// ordered returns gesture labels sorted by ascending trigger id, the
// order the schedule walks them in.
func (p *Protocol) ordered() []string {
	labels := make([]string, 0, len(p.Gestures))
	for label := range p.Gestures {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		return p.Gestures[labels[i]] < p.Gestures[labels[j]]
	})
	return labels
}

// Phase is one contiguous stretch of a schedule with a fixed trigger
// value.
type Phase struct {
	// Label is the gesture label, or "rest".
	Label string
	// Value is the trigger value recorded during the phase.
	Value uint32
	// Until is the phase end, as an offset from the session start.
	Until time.Duration
}

// Schedule is the flattened phase sequence of a protocol.
type Schedule struct {
	phases []Phase
	total  time.Duration
}

// RestLabel is the label of rest phases.
const RestLabel = "rest"

// Schedule flattens the protocol into its phase sequence: the initial
// rest, then for each gesture in ascending id order, reps repetitions
// of hold followed by rest.
func (p *Protocol) Schedule() *Schedule {
	var (
		phases []Phase
		at     time.Duration
	)
	push := func(label string, value uint32, seconds float64) {
		if seconds <= 0 {
			return
		}
		at += time.Duration(seconds * float64(time.Second))
		phases = append(phases, Phase{Label: label, Value: value, Until: at})
	}
	push(RestLabel, 0, p.StartSeconds)
	for _, label := range p.ordered() {
		id := p.Gestures[label]
		for rep := 0; rep < p.Reps; rep++ {
			push(label, id, p.GestureSeconds)
			push(RestLabel, 0, p.RestSeconds)
		}
	}
	return &Schedule{phases: phases, total: at}
}

// Total is the full schedule length.
func (s *Schedule) Total() time.Duration {
	return s.total
}

// Phases returns the flattened phase sequence.
func (s *Schedule) Phases() []Phase {
	return s.phases
}

// At reports the phase active after the given elapsed time. Each phase
// covers a half-open interval, so at exactly its end the next phase is
// active. Once the schedule is over, At reports rest and done.
func (s *Schedule) At(elapsed time.Duration) (Phase, bool) {
	for _, ph := range s.phases {
		if elapsed < ph.Until {
			return ph, false
		}
	}
	return Phase{Label: RestLabel, Value: 0, Until: s.total}, true
}
