// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The bio Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package source defines the acquisition side of a recording: a device
// that yields fixed-size packets, a board interface description that
// knows how to decode them, and a pump that drives the two until
// cancellation.
//
// Transport-specific sources (serial ports, sockets, BLE) live outside
// this module; anything exposing an io.Reader can be adapted with
// ReaderSource, and Synthetic generates signals without hardware.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pulp-bio/bio"
)

// ErrDecodeMismatch indicates that a decode callback produced blocks
// that do not line up with the declared signals.
var ErrDecodeMismatch = errors.New("source: decoded blocks do not match declared signals")

// SignalSpec declares one signal a board produces.
type SignalSpec struct {
	Name             string
	Rate             float32
	Channels         int
	Type             bio.SampleType
	SamplesPerPacket int
}

// DecodeFunc turns one raw packet into sample blocks, one per declared
// signal, in declaration order.
type DecodeFunc func(packet []byte) ([]*bio.Matrix, error)

// Interface describes a board's wire protocol: how large its packets
// are, which command bytes start and stop streaming, which signals a
// packet carries, and how to decode one.
type Interface struct {
	PacketSize int
	StartCmd   []byte
	StopCmd    []byte
	Signals    []SignalSpec
	Decode     DecodeFunc
}

// Validate checks the interface description for internal consistency.
func (it Interface) Validate() error {
	if it.PacketSize <= 0 {
		return fmt.Errorf("source: packet size %d must be positive", it.PacketSize)
	}
	if it.Decode == nil {
		return errors.New("source: interface has no decode function")
	}
	if len(it.Signals) == 0 {
		return errors.New("source: interface declares no signals")
	}
	seen := make(map[string]struct{}, len(it.Signals))
	for _, s := range it.Signals {
		switch {
		case s.Name == "":
			return errors.New("source: signal with empty name")
		case s.Rate <= 0:
			return fmt.Errorf("source: signal %q has nonpositive rate %v", s.Name, s.Rate)
		case s.Channels < 1:
			return fmt.Errorf("source: signal %q has %d channels", s.Name, s.Channels)
		case s.Type.Size() == 0:
			return fmt.Errorf("source: signal %q has an invalid element type", s.Name)
		case s.SamplesPerPacket < 1:
			return fmt.Errorf("source: signal %q yields %d samples per packet", s.Name, s.SamplesPerPacket)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("source: duplicate signal name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}

// Source is a packet-level acquisition device.
//
// Read fills p with exactly one packet and may block until the device
// produces one; implementations should honor ctx cancellation where
// their transport allows it. SendCmd delivers an opaque command
// sequence to the device.
type Source interface {
	Open(ctx context.Context) error
	Read(ctx context.Context, p []byte) error
	SendCmd(cmd []byte) error
	Close() error
}

// Pump drives an acquisition: it opens src, sends the start command,
// then reads and decodes packets until ctx is cancelled, the stream
// ends cleanly, or an error occurs. fn receives one block set per
// packet. The stop command and Close run on every exit path;
// cancellation and a clean end of stream return nil.
func Pump(ctx context.Context, src Source, it Interface, fn func([]*bio.Matrix) error) (err error) {
	if err := it.Validate(); err != nil {
		return err
	}
	if err := src.Open(ctx); err != nil {
		return fmt.Errorf("source: opening: %w", err)
	}
	defer func() {
		var stopErr error
		if len(it.StopCmd) > 0 {
			stopErr = src.SendCmd(it.StopCmd)
		}
		closeErr := src.Close()
		if err == nil {
			err = stopErr
		}
		if err == nil {
			err = closeErr
		}
	}()

	if len(it.StartCmd) > 0 {
		if err := src.SendCmd(it.StartCmd); err != nil {
			return fmt.Errorf("source: sending start command: %w", err)
		}
	}

	packet := make([]byte, it.PacketSize)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := src.Read(ctx, packet); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("source: reading packet: %w", err)
		}

		blocks, err := it.Decode(packet)
		if err != nil {
			return fmt.Errorf("source: decoding packet: %w", err)
		}
		if err := checkBlocks(it.Signals, blocks); err != nil {
			return err
		}
		if err := fn(blocks); err != nil {
			return err
		}
	}
}

func checkBlocks(specs []SignalSpec, blocks []*bio.Matrix) error {
	if len(blocks) != len(specs) {
		return fmt.Errorf("%w: got %d blocks for %d signals", ErrDecodeMismatch, len(blocks), len(specs))
	}
	for i, blk := range blocks {
		s := specs[i]
		switch {
		case blk == nil:
			return fmt.Errorf("%w: nil block for %q", ErrDecodeMismatch, s.Name)
		case blk.Type() != s.Type:
			return fmt.Errorf("%w: %q block is %s, declared %s", ErrDecodeMismatch, s.Name, blk.Type(), s.Type)
		case blk.Cols() != s.Channels:
			return fmt.Errorf("%w: %q block has %d channels, declared %d", ErrDecodeMismatch, s.Name, blk.Cols(), s.Channels)
		case blk.Rows() != s.SamplesPerPacket:
			return fmt.Errorf("%w: %q block has %d samples, declared %d", ErrDecodeMismatch, s.Name, blk.Rows(), s.SamplesPerPacket)
		}
	}
	return nil
}

// ReaderSource adapts an io.Reader, such as a replay file or a FIFO
// fed by another process, to the Source interface. Commands are
// discarded. A stream ending exactly at a packet boundary surfaces as
// io.EOF, which Pump treats as a clean stop; a partial packet surfaces
// as io.ErrUnexpectedEOF.
type ReaderSource struct {
	r io.Reader
}

// NewReaderSource wraps r. If r is also an io.Closer it is closed by
// Close.
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: r}
}

func (s *ReaderSource) Open(ctx context.Context) error { return ctx.Err() }

func (s *ReaderSource) Read(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := io.ReadFull(s.r, p)
	return err
}

func (s *ReaderSource) SendCmd(cmd []byte) error { return nil }

func (s *ReaderSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
