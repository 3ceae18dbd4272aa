// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The bio Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package archive wraps recordings in a compressed, integrity-checked
// envelope for storage and transfer.
//
// An archive is a fixed header followed by the payload:
//
//	[4]byte  magic "BIOZ"
//	uint8    format version, currently 1
//	uint8    codec tag
//	uint64   uncompressed payload size, little-endian
//	[32]byte BLAKE3 digest of the uncompressed payload
//	...      payload, compressed per the codec tag
//
// The digest always covers the uncompressed bytes, so integrity does
// not depend on which codec wrote the file.
package archive

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/blake3"

	"github.com/pulp-bio/bio"
)

var magic = [4]byte{'B', 'I', 'O', 'Z'}

const (
	formatVersion = 1
	headerSize    = 4 + 1 + 1 + 8 + 32

	// maxPayloadBytes caps the declared uncompressed size, so a
	// corrupt header cannot demand an absurd allocation.
	maxPayloadBytes uint64 = 1 << 31
)

var (
	// ErrBadMagic means the input does not start with an archive
	// header.
	ErrBadMagic = errors.New("archive: bad magic")
	// ErrUnknownCodec means the codec tag is not recognized.
	ErrUnknownCodec = errors.New("archive: unknown codec")
	// ErrDigestMismatch means the payload does not match the digest
	// stored in the header.
	ErrDigestMismatch = errors.New("archive: digest mismatch")
)

// Header describes a decoded archive.
type Header struct {
	Codec  Codec
	Size   uint64
	Digest [32]byte
}

// DigestHex returns the digest as lowercase hex, the form used in
// logs and tool output.
func (h Header) DigestHex() string {
	return hex.EncodeToString(h.Digest[:])
}

// Write archives data under the requested codec. When compression
// would not shrink the payload it is stored raw; the returned codec is
// the one actually written.
func Write(w io.Writer, data []byte, codec Codec) (Codec, error) {
	if !codec.valid() {
		return 0, fmt.Errorf("%w: tag %d", ErrUnknownCodec, uint8(codec))
	}
	if uint64(len(data)) > maxPayloadBytes {
		return 0, fmt.Errorf("archive: payload of %d bytes exceeds the %d byte limit", len(data), maxPayloadBytes)
	}
	payload, used, err := compress(data, codec)
	if err != nil {
		return 0, err
	}
	digest := blake3.Sum256(data)

	var hdr [headerSize]byte
	copy(hdr[0:4], magic[:])
	hdr[4] = formatVersion
	hdr[5] = byte(used)
	binary.LittleEndian.PutUint64(hdr[6:14], uint64(len(data)))
	copy(hdr[14:headerSize], digest[:])

	if _, err := w.Write(hdr[:]); err != nil {
		return 0, fmt.Errorf("archive: writing header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return 0, fmt.Errorf("archive: writing payload: %w", err)
	}
	return used, nil
}

// Read restores the payload of an archive and verifies its digest.
func Read(r io.Reader) ([]byte, Header, error) {
	var hdr Header
	var raw [headerSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return nil, hdr, fmt.Errorf("archive: reading header: %w", err)
	}
	if !bytes.Equal(raw[0:4], magic[:]) {
		return nil, hdr, fmt.Errorf("%w: got % x", ErrBadMagic, raw[0:4])
	}
	if raw[4] != formatVersion {
		return nil, hdr, fmt.Errorf("archive: unsupported format version %d", raw[4])
	}
	hdr.Codec = Codec(raw[5])
	if !hdr.Codec.valid() {
		return nil, hdr, fmt.Errorf("%w: tag %d", ErrUnknownCodec, raw[5])
	}
	hdr.Size = binary.LittleEndian.Uint64(raw[6:14])
	if hdr.Size > maxPayloadBytes {
		return nil, hdr, fmt.Errorf("archive: declared size %d exceeds the %d byte limit", hdr.Size, maxPayloadBytes)
	}
	copy(hdr.Digest[:], raw[14:headerSize])

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, hdr, fmt.Errorf("archive: reading payload: %w", err)
	}
	data, err := decompress(payload, hdr.Codec, int(hdr.Size))
	if err != nil {
		return nil, hdr, err
	}
	if blake3.Sum256(data) != hdr.Digest {
		return nil, hdr, fmt.Errorf("%w: payload does not match header digest %s", ErrDigestMismatch, hdr.DigestHex())
	}
	return data, hdr, nil
}

// WriteContainer encodes a container and archives it.
func WriteContainer(w io.Writer, c *bio.Container, codec Codec) (Codec, error) {
	var buf bytes.Buffer
	if err := bio.Encode(&buf, c); err != nil {
		return 0, err
	}
	return Write(w, buf.Bytes(), codec)
}

// ReadContainer restores an archived container.
func ReadContainer(r io.Reader) (*bio.Container, error) {
	data, _, err := Read(r)
	if err != nil {
		return nil, err
	}
	return bio.Decode(bytes.NewReader(data))
}

// ReadContainerAuto reads a container that may or may not be
// archived, deciding by the leading magic bytes.
func ReadContainerAuto(r io.Reader) (*bio.Container, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(magic))
	if bytes.Equal(head, magic[:]) {
		return ReadContainer(br)
	}
	return bio.Decode(br)
}
