// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The bio Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package source

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/pulp-bio/bio"
)

// The synthetic board emits two signal groups per packet: a 5 Hz
// square wave on four channels at 128 Hz and a 10 Hz sine on two
// channels at 51.2 Hz. 10 square samples and 4 sine samples cover the
// same 78.125 ms span, so one packet holds both.
const (
	squareRate     = 128.0
	squareChannels = 4
	squareFreq     = 5.0
	squareAmp      = 50.0
	squareSamples  = 10

	sineRate     = 51.2
	sineChannels = 2
	sineFreq     = 10.0
	sineAmp      = 100.0
	sineSamples  = 4

	packetBytes  = (squareSamples*squareChannels + sineSamples*sineChannels) * 4
	packetPeriod = time.Duration(float64(time.Second) * squareSamples / squareRate)
)

// SyntheticConfig controls the generator.
type SyntheticConfig struct {
	// Seed drives the noise generator; the same seed reproduces the
	// same sample stream.
	Seed int64
	// Noise is the standard deviation of Gaussian noise added to every
	// sample. Zero disables noise.
	Noise float64
	// Realtime paces Read at the nominal packet rate instead of
	// returning immediately.
	Realtime bool
}

// Synthetic generates the two-group test pattern without hardware. It
// is phase-continuous across packets and deterministic under a fixed
// seed, which makes it usable both for end-to-end recordings and in
// tests.
type Synthetic struct {
	mu       sync.Mutex
	noise    float64
	realtime bool
	rng      *rand.Rand
	open     bool
	squareN  int
	sineN    int
	cmds     [][]byte
}

// NewSynthetic builds a generator from cfg.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	return &Synthetic{
		noise:    cfg.Noise,
		realtime: cfg.Realtime,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Interface describes the synthetic board's packet layout: the square
// block followed by the sine block, both row-major float32.
func (s *Synthetic) Interface() Interface {
	return Interface{
		PacketSize: packetBytes,
		StartCmd:   []byte("="),
		StopCmd:    []byte(":"),
		Signals: []SignalSpec{
			{Name: "square", Rate: squareRate, Channels: squareChannels, Type: bio.Float32, SamplesPerPacket: squareSamples},
			{Name: "sine", Rate: sineRate, Channels: sineChannels, Type: bio.Float32, SamplesPerPacket: sineSamples},
		},
		Decode: decodeSyntheticPacket,
	}
}

func decodeSyntheticPacket(p []byte) ([]*bio.Matrix, error) {
	if len(p) != packetBytes {
		return nil, fmt.Errorf("source: packet is %d bytes, want %d", len(p), packetBytes)
	}

	square := make([]float32, squareSamples*squareChannels)
	for i := range square {
		square[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
	}
	sine := make([]float32, sineSamples*sineChannels)
	off := len(square) * 4
	for i := range sine {
		sine[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[off+i*4:]))
	}

	sq, err := bio.MatrixOf(squareChannels, square)
	if err != nil {
		return nil, err
	}
	sn, err := bio.MatrixOf(sineChannels, sine)
	if err != nil {
		return nil, err
	}
	return []*bio.Matrix{sq, sn}, nil
}

func (s *Synthetic) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	s.squareN = 0
	s.sineN = 0
	return nil
}

func (s *Synthetic) Read(ctx context.Context, p []byte) error {
	if s.realtime {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(packetPeriod):
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return errors.New("source: synthetic source is closed")
	}
	if len(p) != packetBytes {
		return fmt.Errorf("source: packet buffer is %d bytes, want %d", len(p), packetBytes)
	}

	off := 0
	for i := 0; i < squareSamples; i++ {
		v := squareAmp
		if math.Sin(2*math.Pi*squareFreq*float64(s.squareN)/squareRate) < 0 {
			v = -squareAmp
		}
		for ch := 0; ch < squareChannels; ch++ {
			binary.LittleEndian.PutUint32(p[off:], math.Float32bits(float32(v+s.noiseSample())))
			off += 4
		}
		s.squareN++
	}
	for i := 0; i < sineSamples; i++ {
		v := sineAmp * math.Sin(2*math.Pi*sineFreq*float64(s.sineN)/sineRate)
		for ch := 0; ch < sineChannels; ch++ {
			binary.LittleEndian.PutUint32(p[off:], math.Float32bits(float32(v+s.noiseSample())))
			off += 4
		}
		s.sineN++
	}
	return nil
}

func (s *Synthetic) noiseSample() float64 {
	if s.noise == 0 {
		return 0
	}
	return s.rng.NormFloat64() * s.noise
}

// SendCmd records the command so tests and callers can inspect the
// start/stop sequence a pump issued.
func (s *Synthetic) SendCmd(cmd []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = append(s.cmds, append([]byte(nil), cmd...))
	return nil
}

// Commands returns the command sequences received so far.
func (s *Synthetic) Commands() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.cmds))
	copy(out, s.cmds)
	return out
}

func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}
