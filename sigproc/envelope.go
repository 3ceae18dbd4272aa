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

	"gonum.org/v1/gonum/floats"
)

// RMSEnvelope slides a window over x in hops of step and returns the
// root mean square at each position. This is the usual amplitude
// envelope for muscle activity. Trailing samples that do not fill a
// whole window are dropped.
func RMSEnvelope(x []float64, window, step int) ([]float64, error) {
	if window < 1 {
		return nil, fmt.Errorf("sigproc: window %d must be at least 1", window)
	}
	if step < 1 {
		return nil, fmt.Errorf("sigproc: step %d must be at least 1", step)
	}
	if len(x) < window {
		return nil, fmt.Errorf("sigproc: need at least %d samples, have %d", window, len(x))
	}
	n := (len(x)-window)/step + 1
	out := make([]float64, n)
	for i := range out {
		seg := x[i*step : i*step+window]
		out[i] = math.Sqrt(floats.Dot(seg, seg) / float64(window))
	}
	return out, nil
}
