// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The bio Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package sigproc analyzes recorded signals offline: Welch power
// spectral density estimates, RMS envelopes, Butterworth filtering,
// and descriptive statistics. Functions take float64 slices; use
// ColumnFloat64 to lift one channel out of a container matrix.
package sigproc

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/pulp-bio/bio"
)

// ColumnFloat64 extracts one channel of a matrix as float64 samples.
func ColumnFloat64(m *bio.Matrix, col int) ([]float64, error) {
	if m == nil {
		return nil, errors.New("sigproc: nil matrix")
	}
	if col < 0 || col >= m.Cols() {
		return nil, fmt.Errorf("sigproc: column %d out of range for %d channels", col, m.Cols())
	}
	out := make([]float64, m.Rows())
	for row := range out {
		out[row] = m.Float64At(row, col)
	}
	return out, nil
}

// Summary holds descriptive statistics of one channel.
type Summary struct {
	N    int
	Mean float64
	Std  float64
	RMS  float64
	Min  float64
	Max  float64
}

// Describe computes summary statistics. The standard deviation uses
// the n-1 sample estimator and is zero for fewer than two samples.
func Describe(x []float64) Summary {
	if len(x) == 0 {
		return Summary{}
	}
	s := Summary{
		N:    len(x),
		Mean: stat.Mean(x, nil),
		Min:  floats.Min(x),
		Max:  floats.Max(x),
		RMS:  math.Sqrt(floats.Dot(x, x) / float64(len(x))),
	}
	if len(x) > 1 {
		s.Std = stat.StdDev(x, nil)
	}
	return s
}
