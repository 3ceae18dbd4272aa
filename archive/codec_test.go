// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The bio Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package archive_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulp-bio/bio/archive"
)

func TestParseCodec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want archive.Codec
	}{
		{"none", archive.None},
		{"lz4", archive.LZ4},
		{"zstd", archive.Zstd},
	}
	for _, tt := range tests {
		codec, err := archive.ParseCodec(tt.name)
		require.NoError(t, err)
		assert.Equal(t, tt.want, codec)
		assert.Equal(t, tt.name, codec.String())
	}

	_, err := archive.ParseCodec("gzip")
	require.ErrorIs(t, err, archive.ErrUnknownCodec)
}

func TestCodecString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unknown(9)", archive.Codec(9).String())
}
