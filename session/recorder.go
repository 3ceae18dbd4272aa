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
	"io"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/pulp-bio/bio"
)

// Recorder accumulates live signal blocks in memory and periodically
// writes the whole recording to disk as one consistent container file.
// The payload layout stores each signal contiguously, so a file cannot
// be appended to in place; every flush rewrites it atomically through
// a temporary file instead.
//
// Appends, trigger changes, and flushes may happen concurrently.
// Close stops the background flusher, writes the final snapshot and
// the sidecar, and must be called exactly once.
type Recorder struct {
	cfg   Config
	log   *slog.Logger
	specs map[string]SignalConfig
	order []string

	mu      sync.Mutex
	buffers map[string]*bio.Matrix
	ts      []float64
	trig    []uint32
	current uint32
	labels  map[uint32]string
	closed  bool

	start time.Time
	stop  chan struct{}
	wg    sync.WaitGroup
}

// NewRecorder validates the config, allocates the signal buffers, and
// starts the background flush loop.
func NewRecorder(cfg Config, log *slog.Logger) (*Recorder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Recorder{
		cfg:     cfg,
		log:     log.With("session", cfg.Name),
		specs:   make(map[string]SignalConfig, len(cfg.Signals)),
		buffers: make(map[string]*bio.Matrix, len(cfg.Signals)),
		start:   time.Now(),
		stop:    make(chan struct{}),
	}
	for _, s := range cfg.Signals {
		typ, err := s.SampleType()
		if err != nil {
			return nil, err
		}
		buf, err := bio.NewMatrix(typ, 0, s.Channels)
		if err != nil {
			return nil, err
		}
		r.specs[s.Name] = s
		r.buffers[s.Name] = buf
		r.order = append(r.order, s.Name)
	}
	r.wg.Add(1)
	go r.flushLoop()
	return r, nil
}

// Append adds rows to a declared signal. The base clock advances to
// the span every signal has fully covered, and each new base row takes
// the current trigger value.
func (r *Recorder) Append(name string, m *bio.Matrix) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("session: append to closed recorder")
	}
	buf, ok := r.buffers[name]
	if !ok {
		return fmt.Errorf("session: signal %q is not declared", name)
	}
	if err := buf.Append(m); err != nil {
		return fmt.Errorf("session: appending to %q: %w", name, err)
	}
	r.extendBaseLocked()
	return nil
}

// SetTrigger changes the trigger value recorded for base rows covered
// from now on.
func (r *Recorder) SetTrigger(value uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = value
}

// SetTriggerLabels records the id-to-label mapping for the sidecar.
func (r *Recorder) SetTriggerLabels(labels map[uint32]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labels = labels
}

// BaseRows returns how many base clock rows are covered so far.
func (r *Recorder) BaseRows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ts)
}

// extendBaseLocked grows the timestamp and trigger columns up to the
// span covered by all signals. A signal running ahead keeps its rows
// buffered; the base clock follows the slowest one.
func (r *Recorder) extendBaseLocked() {
	covered := math.MaxFloat64
	for name, buf := range r.buffers {
		sec := float64(buf.Rows()) / float64(r.specs[name].Rate)
		if sec < covered {
			covered = sec
		}
	}
	rows := int(covered*float64(r.cfg.BaseRate) + 1e-9)
	for len(r.ts) < rows {
		r.ts = append(r.ts, float64(len(r.ts))/float64(r.cfg.BaseRate))
		r.trig = append(r.trig, r.current)
	}
}

// snapshot builds a container from a deep copy of the buffered state.
func (r *Recorder) snapshot() (*bio.Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := bio.NewContainer(r.cfg.BaseRate, append([]float64(nil), r.ts...))
	if err != nil {
		return nil, err
	}
	for _, name := range r.order {
		if err := c.Add(name, r.specs[name].Rate, r.buffers[name].Clone()); err != nil {
			return nil, err
		}
	}
	if err := c.SetTrigger(append([]uint32(nil), r.trig...)); err != nil {
		return nil, err
	}
	return c, nil
}

// Flush writes the current snapshot to the output path. The file is
// replaced atomically, so readers only ever see complete recordings.
func (r *Recorder) Flush() error {
	c, err := r.snapshot()
	if err != nil {
		return err
	}
	if err := writeAtomic(r.cfg.OutPath, c); err != nil {
		return err
	}
	r.log.Debug("flushed recording",
		"path", r.cfg.OutPath,
		"rows", len(c.Timestamps()),
		"signals", c.Len())
	return nil
}

func (r *Recorder) flushLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(time.Duration(r.cfg.FlushInterval))
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if err := r.Flush(); err != nil {
				// Data stays buffered; the next flush retries.
				r.log.Error("flush failed", "error", err)
			}
		}
	}
}

// Close stops the flush loop, writes the final snapshot and the
// sidecar, and makes further appends fail.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("session: recorder closed twice")
	}
	r.closed = true
	r.mu.Unlock()

	close(r.stop)
	r.wg.Wait()
	if err := r.Flush(); err != nil {
		return err
	}
	if err := WriteSidecar(SidecarPath(r.cfg.OutPath), r.sidecar()); err != nil {
		return err
	}
	r.log.Info("recording finished",
		"path", r.cfg.OutPath,
		"rows", r.BaseRows(),
		"elapsed", time.Since(r.start).Round(time.Millisecond))
	return nil
}

func (r *Recorder) sidecar() *Sidecar {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc := &Sidecar{
		Session:   r.cfg.Name,
		StartTime: r.start.UTC(),
		BaseRate:  r.cfg.BaseRate,
		Rows:      len(r.ts),
		Triggers:  r.labels,
	}
	for _, name := range r.order {
		spec := r.specs[name]
		sc.Signals = append(sc.Signals, SidecarSignal{
			Name:     name,
			Rate:     spec.Rate,
			Channels: spec.Channels,
			Type:     spec.Type,
			Rows:     r.buffers[name].Rows(),
		})
	}
	return sc
}

// writeAtomic encodes the container to path through a same-directory
// temporary file and renames it into place.
func writeAtomic(path string, c *bio.Container) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := bio.Encode(f, c); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("session: syncing %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("session: closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("session: %w", err)
	}
	return nil
}
