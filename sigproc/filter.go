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
)

// biquad is one second-order filter section in direct form II
// transposed, with the denominator normalized so a0 is 1.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// apply runs the section over x in place from zero initial state.
func (s biquad) apply(x []float64) {
	var z1, z2 float64
	for i, v := range x {
		y := s.b0*v + z1
		z1 = s.b1*v - s.a1*y + z2
		z2 = s.b2*v - s.a2*y
		x[i] = y
	}
}

// IIR is a cascade of second-order sections.
type IIR struct {
	sections []biquad
}

// Sections returns how many second-order sections the cascade has.
func (f *IIR) Sections() int { return len(f.sections) }

// Filter runs the cascade causally over x from zero initial state and
// returns the output as a new slice.
func (f *IIR) Filter(x []float64) []float64 {
	y := append([]float64(nil), x...)
	for _, s := range f.sections {
		s.apply(y)
	}
	return y
}

// FiltFilt runs the cascade forward and then backward, cancelling the
// phase shift. The input is extended at both ends by odd reflection to
// suppress edge transients, so the result has the same length as x.
func (f *IIR) FiltFilt(x []float64) []float64 {
	if len(x) == 0 {
		return nil
	}
	pad := 3 * (2*len(f.sections) + 1)
	if pad > len(x)-1 {
		pad = len(x) - 1
	}
	last := len(x) - 1
	ext := make([]float64, 0, len(x)+2*pad)
	for i := pad; i >= 1; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := 1; i <= pad; i++ {
		ext = append(ext, 2*x[last]-x[last-i])
	}

	y := f.Filter(ext)
	reverse(y)
	y = f.Filter(y)
	reverse(y)
	return y[pad : pad+len(x)]
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}

// Lowpass designs a Butterworth lowpass filter via the bilinear
// transform.
func Lowpass(order int, cutoff, rate float64) (*IIR, error) {
	if err := checkDesign(order, cutoff, rate); err != nil {
		return nil, err
	}
	return &IIR{sections: butterSections(order, cutoff, rate, false)}, nil
}

// Highpass designs a Butterworth highpass filter via the bilinear
// transform.
func Highpass(order int, cutoff, rate float64) (*IIR, error) {
	if err := checkDesign(order, cutoff, rate); err != nil {
		return nil, err
	}
	return &IIR{sections: butterSections(order, cutoff, rate, true)}, nil
}

// Bandpass designs a band filter as a highpass at low cascaded with a
// lowpass at high, each Butterworth of the given order.
func Bandpass(order int, low, high, rate float64) (*IIR, error) {
	if low >= high {
		return nil, fmt.Errorf("sigproc: band edges %v and %v are not ascending", low, high)
	}
	hp, err := Highpass(order, low, rate)
	if err != nil {
		return nil, err
	}
	lp, err := Lowpass(order, high, rate)
	if err != nil {
		return nil, err
	}
	return &IIR{sections: append(hp.sections, lp.sections...)}, nil
}

func checkDesign(order int, cutoff, rate float64) error {
	if order < 1 {
		return fmt.Errorf("sigproc: filter order %d must be at least 1", order)
	}
	if rate <= 0 {
		return fmt.Errorf("sigproc: sampling rate %v must be positive", rate)
	}
	if cutoff <= 0 || cutoff >= rate/2 {
		return fmt.Errorf("sigproc: cutoff %v must lie inside (0, %v)", cutoff, rate/2)
	}
	return nil
}

// butterSections builds the cascade for one corner frequency. Pole
// pairs map to biquads with the classic Butterworth Q values; an odd
// order adds a first-order tail section.
func butterSections(order int, cutoff, rate float64, highpass bool) []biquad {
	w0 := 2 * math.Pi * cutoff / rate
	cosw := math.Cos(w0)
	sinw := math.Sin(w0)

	sections := make([]biquad, 0, (order+1)/2)
	for k := 0; k < order/2; k++ {
		q := 1 / (2 * math.Sin(math.Pi*float64(2*k+1)/float64(2*order)))
		alpha := sinw / (2 * q)
		a0 := 1 + alpha
		var b0, b1 float64
		if highpass {
			b0 = (1 + cosw) / 2
			b1 = -(1 + cosw)
		} else {
			b0 = (1 - cosw) / 2
			b1 = 1 - cosw
		}
		sections = append(sections, biquad{
			b0: b0 / a0,
			b1: b1 / a0,
			b2: b0 / a0,
			a1: -2 * cosw / a0,
			a2: (1 - alpha) / a0,
		})
	}
	if order%2 == 1 {
		t := math.Tan(w0 / 2)
		if highpass {
			sections = append(sections, biquad{
				b0: 1 / (1 + t),
				b1: -1 / (1 + t),
				a1: (t - 1) / (t + 1),
			})
		} else {
			sections = append(sections, biquad{
				b0: t / (1 + t),
				b1: t / (1 + t),
				a1: (t - 1) / (t + 1),
			})
		}
	}
	return sections
}
