// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The bio Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package bio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// Encode writes c to w in the container wire format. The container is
// validated in full before the first byte is written, so a failed
// encode never leaves a half-valid prefix on the stream. Decoding the
// produced bytes yields a container equal to c, element bytes included.
func Encode(w io.Writer, c *Container) error {
	if err := validateForEncode(c); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if err := writeHeader(bw, c); err != nil {
		return fmt.Errorf("bio: writing header: %w", err)
	}
	if err := writePayload(bw, c); err != nil {
		return fmt.Errorf("bio: writing payload: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("bio: writing payload: %w", err)
	}
	return nil
}

// WriteFile encodes c to the file at path, replacing any existing file.
// An invalid container is rejected before the file is touched.
func WriteFile(path string, c *Container) error {
	if err := validateForEncode(c); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("bio: %w", err)
	}
	if err := Encode(f, c); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func validateForEncode(c *Container) error {
	if c == nil {
		return fmt.Errorf("%w: nil container", ErrInvalidSignal)
	}
	if !validRate(c.baseRate) {
		return fmt.Errorf("%w: base sampling rate %v is not a positive finite value", ErrInvalidSignal, c.baseRate)
	}
	if uint64(len(c.timestamps))*8 > maxBlockBytes {
		return fmt.Errorf("%w: %d timestamps exceed the block limit", ErrInvalidSignal, len(c.timestamps))
	}
	for _, e := range c.signals {
		switch {
		case e.Name == "":
			return fmt.Errorf("%w: empty name", ErrInvalidSignal)
		case e.Name == TimestampName || e.Name == TriggerName:
			return fmt.Errorf("%w: name %q is reserved", ErrInvalidSignal, e.Name)
		case len(e.Name) > maxNameLen:
			return fmt.Errorf("%w: name of %d bytes exceeds %d", ErrInvalidSignal, len(e.Name), maxNameLen)
		case !validRate(e.Rate):
			return fmt.Errorf("%w: %q sampling rate %v is not a positive finite value", ErrInvalidSignal, e.Name, e.Rate)
		case e.Data == nil:
			return fmt.Errorf("%w: %q has no data", ErrInvalidSignal, e.Name)
		case !e.Data.typ.valid():
			return fmt.Errorf("%w: %q has an invalid element type", ErrInvalidSignal, e.Name)
		case e.Data.cols < 1:
			return fmt.Errorf("%w: %q has zero channels", ErrInvalidSignal, e.Name)
		case uint64(len(e.Data.data)) > maxBlockBytes:
			return fmt.Errorf("%w: data of %q exceeds the block limit", ErrInvalidSignal, e.Name)
		}
	}
	if c.hasTrigger && len(c.trigger) != len(c.timestamps) {
		return fmt.Errorf("%w: trigger length %d does not match %d timestamps", ErrInvalidSignal, len(c.trigger), len(c.timestamps))
	}
	return nil
}

func writeHeader(w *bufio.Writer, c *Container) error {
	if err := writeU32(w, uint32(len(c.signals))); err != nil {
		return err
	}
	if err := writeF32(w, c.baseRate); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(c.timestamps))); err != nil {
		return err
	}

	for _, e := range c.signals {
		if err := writeU32(w, uint32(len(e.Name))); err != nil {
			return err
		}
		if _, err := w.WriteString(e.Name); err != nil {
			return err
		}
		if err := writeF32(w, e.Rate); err != nil {
			return err
		}
		if err := writeU32(w, uint32(e.Data.rows)); err != nil {
			return err
		}
		if err := writeU32(w, uint32(e.Data.cols)); err != nil {
			return err
		}
		if err := w.WriteByte(e.Data.typ.Tag()); err != nil {
			return err
		}
	}

	var flag byte
	if c.hasTrigger {
		flag = 1
	}
	return w.WriteByte(flag)
}

func writePayload(w *bufio.Writer, c *Container) error {
	var b [8]byte
	for _, ts := range c.timestamps {
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(ts))
		if _, err := w.Write(b[:]); err != nil {
			return err
		}
	}

	for _, e := range c.signals {
		if _, err := w.Write(toChannelMajor(e.Data)); err != nil {
			return err
		}
	}

	if c.hasTrigger {
		for _, v := range c.trigger {
			binary.LittleEndian.PutUint32(b[:4], v)
			if _, err := w.Write(b[:4]); err != nil {
				return err
			}
		}
	}
	return nil
}

// toChannelMajor returns the disk-order bytes of m: all samples of
// channel 0, then all samples of channel 1, and so on. The inverse of
// fromChannelMajor.
func toChannelMajor(m *Matrix) []byte {
	if m.cols == 1 {
		return m.data
	}
	out := make([]byte, len(m.data))
	esize := m.typ.Size()
	for col := 0; col < m.cols; col++ {
		for row := 0; row < m.rows; row++ {
			src := (row*m.cols + col) * esize
			dst := (col*m.rows + row) * esize
			copy(out[dst:dst+esize], m.data[src:src+esize])
		}
	}
	return out
}

func writeU32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func writeF32(w io.Writer, v float32) error {
	return binary.Write(w, binary.LittleEndian, v)
}
