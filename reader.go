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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	// maxNameLen bounds a signal name; longer lengths are rejected as
	// malformed before any allocation.
	maxNameLen = 4096

	// maxBlockBytes bounds any single payload block declared by a
	// header.
	maxBlockBytes = 1 << 31

	// maxSignalHint caps the descriptor slots allocated up front from
	// the declared signal count; larger counts grow as descriptors
	// actually arrive.
	maxSignalHint = 1024
)

// descriptor is the header-side description of one signal. It is
// consumed while reading the payload and not retained in the container.
type descriptor struct {
	name string
	rate float32
	rows int
	cols int
	typ  SampleType
}

type header struct {
	baseRate float32
	baseRows int
	signals  []descriptor
	trigger  bool
}

// Decode reads one container from r. The header determines exactly how
// many payload bytes are consumed; trailing bytes are ignored. On any
// error no partial container is returned.
func Decode(r io.Reader) (*Container, error) {
	br := bufio.NewReader(r)

	hdr, err := readHeader(br)
	if err != nil {
		return nil, err
	}
	return readPayload(br, hdr)
}

// ReadFile decodes the container stored at path.
func ReadFile(path string) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bio: %w", err)
	}
	defer f.Close()

	c, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func readHeader(r io.Reader) (*header, error) {
	signalCount, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: signal count: %w", ErrMalformedHeader, err)
	}

	hdr := &header{}
	if hdr.baseRate, err = readF32(r); err != nil {
		return nil, fmt.Errorf("%w: base sampling rate: %w", ErrMalformedHeader, err)
	}
	if !validRate(hdr.baseRate) {
		return nil, fmt.Errorf("%w: base sampling rate %v is not a positive finite value", ErrMalformedHeader, hdr.baseRate)
	}
	baseRows, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: base sample count: %w", ErrMalformedHeader, err)
	}
	if uint64(baseRows)*8 > maxBlockBytes {
		return nil, fmt.Errorf("%w: base sample count %d too large", ErrMalformedHeader, baseRows)
	}
	hdr.baseRows = int(baseRows)

	hint := min(signalCount, maxSignalHint)
	hdr.signals = make([]descriptor, 0, hint)
	seen := make(map[string]struct{}, hint)
	for i := uint32(0); i < signalCount; i++ {
		d, err := readDescriptor(r, i)
		if err != nil {
			return nil, err
		}
		if d.name == TimestampName || d.name == TriggerName {
			return nil, fmt.Errorf("%w: signal %d uses reserved name %q", ErrMalformedHeader, i, d.name)
		}
		if _, dup := seen[d.name]; dup {
			return nil, fmt.Errorf("%w: duplicate signal name %q", ErrMalformedHeader, d.name)
		}
		seen[d.name] = struct{}{}
		hdr.signals = append(hdr.signals, d)
	}

	flag, err := readU8(r)
	if err != nil {
		return nil, fmt.Errorf("%w: trigger flag: %w", ErrMalformedHeader, err)
	}
	hdr.trigger = flag&1 == 1

	return hdr, nil
}

func readDescriptor(r io.Reader, i uint32) (descriptor, error) {
	var d descriptor

	nameLen, err := readU32(r)
	if err != nil {
		return d, fmt.Errorf("%w: name length of signal %d: %w", ErrMalformedHeader, i, err)
	}
	if nameLen == 0 {
		return d, fmt.Errorf("%w: zero-length name for signal %d", ErrMalformedHeader, i)
	}
	if nameLen > maxNameLen {
		return d, fmt.Errorf("%w: name length %d of signal %d exceeds %d", ErrMalformedHeader, nameLen, i, maxNameLen)
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return d, fmt.Errorf("%w: name of signal %d: %w", ErrMalformedHeader, i, err)
	}
	d.name = string(name)

	if d.rate, err = readF32(r); err != nil {
		return d, fmt.Errorf("%w: sampling rate of %q: %w", ErrMalformedHeader, d.name, err)
	}
	if !validRate(d.rate) {
		return d, fmt.Errorf("%w: sampling rate %v of %q is not a positive finite value", ErrMalformedHeader, d.rate, d.name)
	}

	rows, err := readU32(r)
	if err != nil {
		return d, fmt.Errorf("%w: sample count of %q: %w", ErrMalformedHeader, d.name, err)
	}
	d.rows = int(rows)

	cols, err := readU32(r)
	if err != nil {
		return d, fmt.Errorf("%w: channel count of %q: %w", ErrMalformedHeader, d.name, err)
	}
	if cols == 0 {
		return d, fmt.Errorf("%w: zero channel count for %q", ErrMalformedHeader, d.name)
	}
	d.cols = int(cols)

	tag, err := readU8(r)
	if err != nil {
		return d, fmt.Errorf("%w: type tag of %q: %w", ErrMalformedHeader, d.name, err)
	}
	if d.typ, err = ParseSampleType(tag); err != nil {
		return d, fmt.Errorf("signal %q: %w", d.name, err)
	}

	// rows*cols*size can exceed 64 bits, so bound it by division.
	if uint64(rows) > maxBlockBytes/uint64(d.typ.Size())/uint64(cols) {
		return d, fmt.Errorf("%w: data block of %q too large (%dx%d %s)", ErrMalformedHeader, d.name, rows, cols, d.typ)
	}
	return d, nil
}

func readPayload(r io.Reader, hdr *header) (*Container, error) {
	raw, err := readBlock(r, hdr.baseRows*8, "timestamp block")
	if err != nil {
		return nil, err
	}
	timestamps := make([]float64, hdr.baseRows)
	for i := range timestamps {
		timestamps[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}

	c, err := NewContainer(hdr.baseRate, timestamps)
	if err != nil {
		return nil, err
	}

	for _, d := range hdr.signals {
		raw, err := readBlock(r, d.rows*d.cols*d.typ.Size(), fmt.Sprintf("data of signal %q", d.name))
		if err != nil {
			return nil, err
		}
		if err := c.Add(d.name, d.rate, fromChannelMajor(d.typ, d.rows, d.cols, raw)); err != nil {
			return nil, err
		}
	}

	if hdr.trigger {
		raw, err := readBlock(r, hdr.baseRows*4, "trigger block")
		if err != nil {
			return nil, err
		}
		trigger := make([]uint32, hdr.baseRows)
		for i := range trigger {
			trigger[i] = binary.LittleEndian.Uint32(raw[i*4:])
		}
		if err := c.SetTrigger(trigger); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// readBlock reads exactly n bytes. The buffer grows with the bytes that
// actually arrive, so a lying header against a short stream fails
// without a large allocation. A stream that ends early fails with
// ErrTruncatedPayload; other read failures are passed through.
func readBlock(r io.Reader, n int, what string) ([]byte, error) {
	var buf bytes.Buffer
	copied, err := io.CopyN(&buf, r, int64(n))
	if err == io.EOF {
		return nil, fmt.Errorf("%w: %s: %d of %d bytes", ErrTruncatedPayload, what, copied, n)
	}
	if err != nil {
		return nil, fmt.Errorf("bio: reading %s: %w", what, err)
	}
	return buf.Bytes(), nil
}

// fromChannelMajor builds a sample-major matrix from a disk-order block
// in which all samples of channel 0 precede all samples of channel 1,
// and so on.
func fromChannelMajor(typ SampleType, rows, cols int, raw []byte) *Matrix {
	m := &Matrix{typ: typ, rows: rows, cols: cols, data: make([]byte, len(raw))}
	if cols == 1 {
		copy(m.data, raw)
		return m
	}
	esize := typ.Size()
	for col := 0; col < cols; col++ {
		for row := 0; row < rows; row++ {
			src := (col*rows + row) * esize
			dst := (row*cols + col) * esize
			copy(m.data[dst:dst+esize], raw[src:src+esize])
		}
	}
	return m
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readF32(r io.Reader) (float32, error) {
	bits, err := readU32(r)
	return math.Float32frombits(bits), err
}

func readU8(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}
