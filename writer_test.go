// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The bio Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package bio_test

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pulp-bio/bio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTrip encodes c, decodes the result, and requires bitwise
// equality between the two containers.
func roundTrip(t *testing.T, c *bio.Container) *bio.Container {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, bio.Encode(&buf, c))

	out, err := bio.Decode(&buf)
	require.NoError(t, err)
	require.True(t, c.Equal(out))
	return out
}

func oneValueContainer[T bio.Element](t *testing.T, v T) *bio.Container {
	t.Helper()

	c, err := bio.NewContainer(100, []float64{0})
	require.NoError(t, err)
	m, err := bio.MatrixOf(1, []T{v})
	require.NoError(t, err)
	require.NoError(t, c.Add("s", 100, m))
	return c
}

func TestRoundTripThroughFile(t *testing.T) {
	c, err := bio.NewContainer(100, []float64{0, 0.01, 0.02, 0.03})
	require.NoError(t, err)

	emg, err := bio.MatrixOf(2, []float32{1.5, -1.5, 2.25, -2.25, 3, -3, 4.5, -4.5})
	require.NoError(t, err)
	require.NoError(t, c.Add("emg", 512, emg))

	counter, err := bio.MatrixOf(1, []uint16{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, c.Add("counter", 100, counter))

	flags, err := bio.MatrixOf(3, []bool{true, false, true, false, true, false})
	require.NoError(t, err)
	require.NoError(t, c.Add("flags", 10, flags))

	require.NoError(t, c.SetTrigger([]uint32{0, 1, 1, 0}))

	path := filepath.Join(t.TempDir(), "session.bio")
	require.NoError(t, bio.WriteFile(path, c))

	out, err := bio.ReadFile(path)
	require.NoError(t, err)
	require.True(t, c.Equal(out))

	e, ok := out.Get("emg")
	require.True(t, ok)
	values, err := bio.Values[float32](e.Data)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, -1.5, 2.25, -2.25, 3, -3, 4.5, -4.5}, values)

	trigger, ok := out.Trigger()
	require.True(t, ok)
	assert.Equal(t, []uint32{0, 1, 1, 0}, trigger)
}

func TestRoundTripAllElementTypes(t *testing.T) {
	t.Run("bool true", func(t *testing.T) {
		roundTrip(t, oneValueContainer(t, true))
	})
	t.Run("int8 minus one", func(t *testing.T) {
		roundTrip(t, oneValueContainer(t, int8(-1)))
	})
	t.Run("uint8 max", func(t *testing.T) {
		roundTrip(t, oneValueContainer(t, uint8(math.MaxUint8)))
	})
	t.Run("int16 min", func(t *testing.T) {
		roundTrip(t, oneValueContainer(t, int16(math.MinInt16)))
	})
	t.Run("uint16 max", func(t *testing.T) {
		roundTrip(t, oneValueContainer(t, uint16(math.MaxUint16)))
	})
	t.Run("int32 min", func(t *testing.T) {
		roundTrip(t, oneValueContainer(t, int32(math.MinInt32)))
	})
	t.Run("uint32 max", func(t *testing.T) {
		roundTrip(t, oneValueContainer(t, uint32(math.MaxUint32)))
	})
	t.Run("int64 min", func(t *testing.T) {
		roundTrip(t, oneValueContainer(t, int64(math.MinInt64)))
	})
	t.Run("uint64 max", func(t *testing.T) {
		roundTrip(t, oneValueContainer(t, uint64(math.MaxUint64)))
	})
	t.Run("float32 nan payload", func(t *testing.T) {
		const bits = uint32(0x7fc0_0001)
		out := roundTrip(t, oneValueContainer(t, math.Float32frombits(bits)))

		e, ok := out.Get("s")
		require.True(t, ok)
		values, err := bio.Values[float32](e.Data)
		require.NoError(t, err)
		assert.Equal(t, bits, math.Float32bits(values[0]))
	})
	t.Run("float64 nan payload", func(t *testing.T) {
		const bits = uint64(0x7ff8_0000_dead_beef)
		out := roundTrip(t, oneValueContainer(t, math.Float64frombits(bits)))

		e, ok := out.Get("s")
		require.True(t, ok)
		values, err := bio.Values[float64](e.Data)
		require.NoError(t, err)
		assert.Equal(t, bits, math.Float64bits(values[0]))
	})
}

func TestEncodeWritesChannelMajorData(t *testing.T) {
	c, err := bio.NewContainer(100, []float64{0, 0.01})
	require.NoError(t, err)
	// Rows [1,4], [2,5], [3,6]: channel 0 is 1,2,3 and channel 1 is
	// 4,5,6.
	m, err := bio.MatrixOf(2, []float32{1, 4, 2, 5, 3, 6})
	require.NoError(t, err)
	require.NoError(t, c.Add("emg", 512, m))

	var buf bytes.Buffer
	require.NoError(t, bio.Encode(&buf, c))

	// Fixed fields + one descriptor with a 3-byte name, then the two
	// timestamps.
	dataOffset := 4 + 4 + 4 + (4 + 3 + 4 + 4 + 4 + 1) + 1 + 16
	raw := buf.Bytes()[dataOffset : dataOffset+24]

	var got []float32
	for i := 0; i < 6; i++ {
		got = append(got, math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
	}
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, got)
}

type countingWriter struct {
	n int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += len(p)
	return len(p), nil
}

func TestEncodeRejectsReservedNamesBeforeWriting(t *testing.T) {
	for _, name := range []string{"trigger", "timestamp"} {
		c, err := bio.NewContainer(100, []float64{0})
		require.NoError(t, err)
		m, err := bio.MatrixOf(1, []float32{1})
		require.NoError(t, err)
		require.NoError(t, c.Add(name, 100, m))

		w := &countingWriter{}
		err = bio.Encode(w, c)
		require.Error(t, err, name)
		assert.ErrorIs(t, err, bio.ErrInvalidSignal, name)
		assert.Zero(t, w.n, "bytes written for %q", name)
	}
}

func TestEncodeRejectsBrokenContainers(t *testing.T) {
	var zero bio.Container
	w := &countingWriter{}

	err := bio.Encode(w, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, bio.ErrInvalidSignal)

	err = bio.Encode(w, &zero)
	require.Error(t, err)
	assert.ErrorIs(t, err, bio.ErrInvalidSignal)
	assert.Zero(t, w.n)
}

func TestWriteFileLeavesExistingFileOnInvalidContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keep.bio")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	c, err := bio.NewContainer(100, []float64{0})
	require.NoError(t, err)
	m, err := bio.MatrixOf(1, []uint32{1})
	require.NoError(t, err)
	require.NoError(t, c.Add("trigger", 100, m))

	err = bio.WriteFile(path, c)
	require.Error(t, err)
	assert.ErrorIs(t, err, bio.ErrInvalidSignal)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), data)
}

func TestRoundTripEmptyContainer(t *testing.T) {
	c, err := bio.NewContainer(250, nil)
	require.NoError(t, err)
	roundTrip(t, c)

	c, err = bio.NewContainer(250, []float64{})
	require.NoError(t, err)
	require.NoError(t, c.SetTrigger([]uint32{}))
	roundTrip(t, c)
}

func TestRoundTripZeroRowSignal(t *testing.T) {
	c, err := bio.NewContainer(100, []float64{0})
	require.NoError(t, err)
	m, err := bio.NewMatrix(bio.Int16, 0, 4)
	require.NoError(t, err)
	require.NoError(t, c.Add("idle", 100, m))
	roundTrip(t, c)
}
