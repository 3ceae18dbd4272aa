// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The bio Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package archive

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies the compression algorithm of an archive. The tag
// values are stored on disk; changing them breaks existing archives.
type Codec uint8

const (
	// None stores the payload uncompressed.
	None Codec = 0
	// LZ4 uses LZ4 block compression. Fast, modest ratios.
	LZ4 Codec = 1
	// Zstd uses zstd at its default level. Better ratios than LZ4 at
	// higher CPU cost.
	Zstd Codec = 2
)

func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCodec parses a codec from its string name.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

func (c Codec) valid() bool { return c <= Zstd }

// The zstd encoder and decoder are created once and reused; both are
// safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("archive: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("archive: zstd decoder initialization failed: " + err.Error())
	}
}

// errIncompressible reports that compression would not shrink the
// payload; the caller stores it uncompressed instead.
var errIncompressible = errors.New("archive: data is incompressible")

// compress returns the stored payload for data under the requested
// codec. When the codec cannot shrink the data the payload is stored
// raw, and the returned codec says so.
func compress(data []byte, codec Codec) ([]byte, Codec, error) {
	switch codec {
	case None:
		return data, None, nil
	case LZ4:
		payload, err := compressLZ4(data)
		if errors.Is(err, errIncompressible) {
			return data, None, nil
		}
		if err != nil {
			return nil, 0, err
		}
		return payload, LZ4, nil
	case Zstd:
		payload := zstdEncoder.EncodeAll(data, nil)
		if len(payload) >= len(data) {
			return data, None, nil
		}
		return payload, Zstd, nil
	default:
		return nil, 0, fmt.Errorf("%w: tag %d", ErrUnknownCodec, uint8(codec))
	}
}

// decompress restores the payload of an archive. The size comes from
// the archive header and must match exactly.
func decompress(payload []byte, codec Codec, size int) ([]byte, error) {
	switch codec {
	case None:
		if len(payload) != size {
			return nil, fmt.Errorf("archive: stored %d bytes but header declares %d", len(payload), size)
		}
		return payload, nil
	case LZ4:
		data := make([]byte, size)
		n, err := lz4.UncompressBlock(payload, data)
		if err != nil {
			return nil, fmt.Errorf("archive: lz4: %w", err)
		}
		if n != size {
			return nil, fmt.Errorf("archive: lz4 produced %d bytes but header declares %d", n, size)
		}
		return data, nil
	case Zstd:
		data, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("archive: zstd: %w", err)
		}
		if len(data) != size {
			return nil, fmt.Errorf("archive: zstd produced %d bytes but header declares %d", len(data), size)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownCodec, uint8(codec))
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	payload := make([]byte, bound)
	n, err := lz4.CompressBlock(data, payload, nil)
	if err != nil {
		return nil, fmt.Errorf("archive: lz4: %w", err)
	}
	// CompressBlock reports incompressible input as zero bytes
	// written.
	if n == 0 || n >= len(data) {
		return nil, errIncompressible
	}
	return payload[:n], nil
}
