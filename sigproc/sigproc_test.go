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

	"github.com/pulp-bio/bio"
	"github.com/pulp-bio/bio/sigproc"
)

func TestColumnFloat64(t *testing.T) {
	t.Parallel()

	m, err := bio.MatrixOf(2, []int16{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	col, err := sigproc.ColumnFloat64(m, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4, 6}, col)

	col, err = sigproc.ColumnFloat64(m, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3, 5}, col)

	_, err = sigproc.ColumnFloat64(m, -1)
	assert.Error(t, err)
	_, err = sigproc.ColumnFloat64(m, 2)
	assert.Error(t, err)
	_, err = sigproc.ColumnFloat64(nil, 0)
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	s := sigproc.Describe([]float64{1, 2, 3, 4})
	assert.Equal(t, 4, s.N)
	assert.InDelta(t, 2.5, s.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(5.0/3.0), s.Std, 1e-12)
	assert.InDelta(t, math.Sqrt(7.5), s.RMS, 1e-12)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
}

func TestDescribeDegenerateInputs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, sigproc.Summary{}, sigproc.Describe(nil))

	s := sigproc.Describe([]float64{5})
	assert.Equal(t, 1, s.N)
	assert.Equal(t, 5.0, s.Mean)
	assert.Equal(t, 0.0, s.Std)
	assert.Equal(t, 5.0, s.RMS)
	assert.Equal(t, 5.0, s.Min)
	assert.Equal(t, 5.0, s.Max)
}
