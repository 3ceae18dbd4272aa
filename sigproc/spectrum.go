// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The bio Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package sigproc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Hamming returns a Hamming window of length n.
func Hamming(n int) []float64 {
	if n <= 0 {
		return nil
	}
	win := make([]float64, n)
	if n == 1 {
		win[0] = 1
		return win
	}
	for i := range win {
		win[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return win
}

// PSD is a one-sided power spectral density estimate. Power is in
// signal units squared per hertz, so integrating Power over Freqs
// recovers the signal's total power.
type PSD struct {
	Freqs []float64
	Power []float64
}

// Peak returns the frequency carrying the most power.
func (p *PSD) Peak() (freq, power float64) {
	k := floats.MaxIdx(p.Power)
	return p.Freqs[k], p.Power[k]
}

// Welch estimates the power spectral density by averaging
// periodograms of Hamming-windowed segments. Each segment has its
// mean removed before windowing. The overlap counts samples shared by
// consecutive segments and must be smaller than the window.
func Welch(x []float64, rate float64, window, overlap int) (*PSD, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("sigproc: sampling rate %v must be positive", rate)
	}
	if window < 2 {
		return nil, fmt.Errorf("sigproc: window %d must be at least 2", window)
	}
	if overlap < 0 || overlap >= window {
		return nil, fmt.Errorf("sigproc: overlap %d must lie in [0, %d)", overlap, window)
	}
	if len(x) < window {
		return nil, fmt.Errorf("sigproc: need at least %d samples, have %d", window, len(x))
	}

	win := Hamming(window)
	// Density normalization: the window's power and the sampling rate.
	norm := floats.Dot(win, win) * rate

	nbins := window/2 + 1
	fft := fourier.NewFFT(window)
	power := make([]float64, nbins)
	seg := make([]float64, window)
	coeff := make([]complex128, nbins)

	step := window - overlap
	segments := 0
	for start := 0; start+window <= len(x); start += step {
		copy(seg, x[start:start+window])
		mean := stat.Mean(seg, nil)
		for i := range seg {
			seg[i] = (seg[i] - mean) * win[i]
		}
		coeff = fft.Coefficients(coeff, seg)
		for k, c := range coeff {
			p := (real(c)*real(c) + imag(c)*imag(c)) / norm
			// One-sided spectrum: every bin except DC and, for even
			// windows, Nyquist appears twice in the full spectrum.
			if k != 0 && !(window%2 == 0 && k == nbins-1) {
				p *= 2
			}
			power[k] += p
		}
		segments++
	}
	for k := range power {
		power[k] /= float64(segments)
	}

	freqs := make([]float64, nbins)
	for k := range freqs {
		freqs[k] = float64(k) * rate / float64(window)
	}
	return &PSD{Freqs: freqs, Power: power}, nil
}
