// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The bio Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package sigproc_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulp-bio/bio/sigproc"
)

// steadyRMS measures the RMS of the second half of x, past the filter
// transient.
func steadyRMS(x []float64) float64 {
	return sigproc.Describe(x[len(x)/2:]).RMS
}

func constant(n int, v float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = v
	}
	return x
}

func TestLowpassPassesDCAndBlocksHighFrequencies(t *testing.T) {
	t.Parallel()

	lp, err := sigproc.Lowpass(4, 10, 1000)
	require.NoError(t, err)
	assert.Equal(t, 2, lp.Sections())

	y := lp.Filter(constant(2000, 1))
	assert.InDelta(t, 1.0, y[len(y)-1], 1e-3)

	x := sine(2000, 1000, 400, 1)
	y = lp.Filter(x)
	assert.Less(t, steadyRMS(y), 0.01*steadyRMS(x))
}

func TestHighpassBlocksDCAndPassesHighFrequencies(t *testing.T) {
	t.Parallel()

	hp, err := sigproc.Highpass(2, 20, 1000)
	require.NoError(t, err)

	y := hp.Filter(constant(2000, 1))
	assert.InDelta(t, 0.0, y[len(y)-1], 1e-6)

	x := sine(2000, 1000, 200, 1)
	y = hp.Filter(x)
	assert.InDelta(t, 1.0, steadyRMS(y)/steadyRMS(x), 0.05)
}

func TestBandpassSelectsBand(t *testing.T) {
	t.Parallel()

	bp, err := sigproc.Bandpass(2, 20, 60, 1000)
	require.NoError(t, err)
	assert.Equal(t, 2, bp.Sections())

	inBand := sine(4000, 1000, 40, 1)
	below := sine(4000, 1000, 5, 1)
	above := sine(4000, 1000, 300, 1)

	assert.Greater(t, steadyRMS(bp.Filter(inBand))/steadyRMS(inBand), 0.8)
	assert.Less(t, steadyRMS(bp.Filter(below))/steadyRMS(below), 0.15)
	assert.Less(t, steadyRMS(bp.Filter(above))/steadyRMS(above), 0.15)
}

func TestOddOrderDesign(t *testing.T) {
	t.Parallel()

	lp, err := sigproc.Lowpass(5, 30, 1000)
	require.NoError(t, err)
	assert.Equal(t, 3, lp.Sections())

	y := lp.Filter(constant(2000, 1))
	assert.InDelta(t, 1.0, y[len(y)-1], 1e-3)

	hp, err := sigproc.Highpass(3, 30, 1000)
	require.NoError(t, err)
	y = hp.Filter(constant(2000, 1))
	assert.InDelta(t, 0.0, y[len(y)-1], 1e-6)
}

func TestFiltFiltHasZeroPhase(t *testing.T) {
	t.Parallel()

	lp, err := sigproc.Lowpass(2, 50, 1000)
	require.NoError(t, err)

	x := sine(1000, 1000, 10, 1)
	zero := lp.FiltFilt(x)
	causal := lp.Filter(x)
	require.Len(t, zero, len(x))

	// The causal pass delays the tone; the forward-backward pass does
	// not.
	maxZero, maxCausal := 0.0, 0.0
	for i := 100; i < 900; i++ {
		maxZero = math.Max(maxZero, math.Abs(zero[i]-x[i]))
		maxCausal = math.Max(maxCausal, math.Abs(causal[i]-x[i]))
	}
	assert.Less(t, maxZero, 0.02)
	assert.Greater(t, maxCausal, 0.05)
}

func TestFiltFiltShortInputs(t *testing.T) {
	t.Parallel()

	lp, err := sigproc.Lowpass(2, 50, 1000)
	require.NoError(t, err)

	assert.Nil(t, lp.FiltFilt(nil))

	y := lp.FiltFilt([]float64{1, 2, 3})
	assert.Len(t, y, 3)
}

func TestFilterDesignErrors(t *testing.T) {
	t.Parallel()

	_, err := sigproc.Lowpass(0, 10, 100)
	assert.Error(t, err)
	_, err = sigproc.Lowpass(2, 0, 100)
	assert.Error(t, err)
	_, err = sigproc.Lowpass(2, 50, 100)
	assert.Error(t, err)
	_, err = sigproc.Highpass(2, 10, 0)
	assert.Error(t, err)
	_, err = sigproc.Bandpass(2, 60, 20, 1000)
	assert.Error(t, err)
	_, err = sigproc.Bandpass(2, 10, 600, 1000)
	assert.Error(t, err)
}
