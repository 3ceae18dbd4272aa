// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The bio Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package session_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulp-bio/bio"
	"github.com/pulp-bio/bio/session"
)

// recorderConfig declares a fast signal at the base rate and a slow
// one at half of it, with rates small enough to count rows by hand.
func recorderConfig(t *testing.T, interval time.Duration) session.Config {
	t.Helper()
	return session.Config{
		Name:          "bench",
		OutPath:       filepath.Join(t.TempDir(), "rec.bio"),
		BaseRate:      4,
		FlushInterval: session.Duration(interval),
		Signals: []session.SignalConfig{
			{Name: "emg", Rate: 4, Channels: 2, Type: "float32"},
			{Name: "aux", Rate: 2, Channels: 1, Type: "uint16"},
		},
	}
}

func emgRows(t *testing.T, n int) *bio.Matrix {
	t.Helper()
	values := make([]float32, 2*n)
	for i := range values {
		values[i] = float32(i)
	}
	m, err := bio.MatrixOf(2, values)
	require.NoError(t, err)
	return m
}

func auxRows(t *testing.T, n int) *bio.Matrix {
	t.Helper()
	values := make([]uint16, n)
	for i := range values {
		values[i] = uint16(i)
	}
	m, err := bio.MatrixOf(1, values)
	require.NoError(t, err)
	return m
}

func TestRecorderBuildsBaseClock(t *testing.T) {
	t.Parallel()

	cfg := recorderConfig(t, time.Hour)
	rec, err := session.NewRecorder(cfg, nil)
	require.NoError(t, err)

	rec.SetTrigger(7)
	require.NoError(t, rec.Append("emg", emgRows(t, 4)))
	require.NoError(t, rec.Append("aux", auxRows(t, 2)))
	assert.Equal(t, 4, rec.BaseRows())

	require.NoError(t, rec.Flush())
	c, err := bio.ReadFile(cfg.OutPath)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75}, c.Timestamps())
	trig, ok := c.Trigger()
	require.True(t, ok)
	assert.Equal(t, []uint32{7, 7, 7, 7}, trig)

	// A second second of data with the trigger released.
	rec.SetTrigger(0)
	require.NoError(t, rec.Append("emg", emgRows(t, 4)))
	require.NoError(t, rec.Append("aux", auxRows(t, 2)))
	require.NoError(t, rec.Close())

	c, err = bio.ReadFile(cfg.OutPath)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1, 1.25, 1.5, 1.75}, c.Timestamps())
	trig, ok = c.Trigger()
	require.True(t, ok)
	assert.Equal(t, []uint32{7, 7, 7, 7, 0, 0, 0, 0}, trig)

	emg, ok := c.Get("emg")
	require.True(t, ok)
	assert.Equal(t, 8, emg.Data.Rows())
	assert.Equal(t, float32(4), emg.Rate)
	aux, ok := c.Get("aux")
	require.True(t, ok)
	assert.Equal(t, 4, aux.Data.Rows())
}

func TestRecorderBaseClockFollowsSlowestSignal(t *testing.T) {
	t.Parallel()

	cfg := recorderConfig(t, time.Hour)
	rec, err := session.NewRecorder(cfg, nil)
	require.NoError(t, err)
	defer rec.Close()

	// Two seconds of the fast signal but only one of the slow one:
	// the base clock stops at the slow signal.
	require.NoError(t, rec.Append("emg", emgRows(t, 8)))
	require.NoError(t, rec.Append("aux", auxRows(t, 2)))
	assert.Equal(t, 4, rec.BaseRows())

	require.NoError(t, rec.Append("aux", auxRows(t, 2)))
	assert.Equal(t, 8, rec.BaseRows())
}

func TestRecorderAppendErrors(t *testing.T) {
	t.Parallel()

	cfg := recorderConfig(t, time.Hour)
	rec, err := session.NewRecorder(cfg, nil)
	require.NoError(t, err)

	err = rec.Append("ecg", emgRows(t, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not declared")

	wrongShape, err := bio.MatrixOf(1, []float32{1})
	require.NoError(t, err)
	err = rec.Append("emg", wrongShape)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "emg")

	err = rec.Append("emg", auxRows(t, 1))
	require.Error(t, err)

	require.NoError(t, rec.Close())
	err = rec.Append("emg", emgRows(t, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestRecorderFlushReplacesFileAtomically(t *testing.T) {
	t.Parallel()

	cfg := recorderConfig(t, time.Hour)
	rec, err := session.NewRecorder(cfg, nil)
	require.NoError(t, err)
	defer rec.Close()

	require.NoError(t, rec.Flush())
	c, err := bio.ReadFile(cfg.OutPath)
	require.NoError(t, err)
	assert.Empty(t, c.Timestamps())
	assert.Equal(t, 2, c.Len())

	require.NoError(t, rec.Append("emg", emgRows(t, 4)))
	require.NoError(t, rec.Append("aux", auxRows(t, 2)))
	require.NoError(t, rec.Flush())

	c, err = bio.ReadFile(cfg.OutPath)
	require.NoError(t, err)
	assert.Len(t, c.Timestamps(), 4)

	_, err = os.Stat(cfg.OutPath + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestRecorderBackgroundFlush(t *testing.T) {
	t.Parallel()

	cfg := recorderConfig(t, 10*time.Millisecond)
	rec, err := session.NewRecorder(cfg, nil)
	require.NoError(t, err)

	require.NoError(t, rec.Append("emg", emgRows(t, 4)))
	require.NoError(t, rec.Append("aux", auxRows(t, 2)))

	require.Eventually(t, func() bool {
		c, err := bio.ReadFile(cfg.OutPath)
		return err == nil && len(c.Timestamps()) == 4
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, rec.Close())
}

func TestRecorderCloseWritesSidecar(t *testing.T) {
	t.Parallel()

	cfg := recorderConfig(t, time.Hour)
	rec, err := session.NewRecorder(cfg, nil)
	require.NoError(t, err)

	rec.SetTriggerLabels(map[uint32]string{1: "fist", 2: "open"})
	require.NoError(t, rec.Append("emg", emgRows(t, 4)))
	require.NoError(t, rec.Append("aux", auxRows(t, 2)))
	require.NoError(t, rec.Close())

	sc, err := session.ReadSidecar(session.SidecarPath(cfg.OutPath))
	require.NoError(t, err)
	assert.Equal(t, "bench", sc.Session)
	assert.Equal(t, float32(4), sc.BaseRate)
	assert.Equal(t, 4, sc.Rows)
	assert.WithinDuration(t, time.Now(), sc.StartTime, time.Minute)
	assert.Equal(t, map[uint32]string{1: "fist", 2: "open"}, sc.Triggers)

	require.Len(t, sc.Signals, 2)
	assert.Equal(t, "emg", sc.Signals[0].Name)
	assert.Equal(t, "float32", sc.Signals[0].Type)
	assert.Equal(t, 4, sc.Signals[0].Rows)
	assert.Equal(t, "aux", sc.Signals[1].Name)
	assert.Equal(t, 2, sc.Signals[1].Rows)
}

func TestRecorderCloseTwice(t *testing.T) {
	t.Parallel()

	rec, err := session.NewRecorder(recorderConfig(t, time.Hour), nil)
	require.NoError(t, err)
	require.NoError(t, rec.Close())
	require.Error(t, rec.Close())
}

func TestNewRecorderRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := recorderConfig(t, time.Hour)
	cfg.Signals[0].Name = "trigger"
	_, err := session.NewRecorder(cfg, nil)
	require.Error(t, err)
}
