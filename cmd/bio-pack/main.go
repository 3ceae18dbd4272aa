// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The bio Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Command bio-pack compresses recordings into integrity-checked
// archives and restores them.
//
// Usage:
//
//	bio-pack [--codec zstd|lz4|none] <in.bio> [out.bioz]
//	bio-pack --unpack <in.bioz> [out.bio]
//	bio-pack --verify <file>...
//
// Packing validates that the input is a recording before archiving
// it. Verify accepts plain and packed files alike.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/pulp-bio/bio"
	"github.com/pulp-bio/bio/archive"
)

const archiveExt = ".bioz"

var (
	codecFlag  = pflag.String("codec", "zstd", "compression codec: zstd, lz4, or none")
	unpackFlag = pflag.Bool("unpack", false, "restore a packed recording")
	verifyFlag = pflag.Bool("verify", false, "check files without writing anything")
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: bio-pack [--codec zstd|lz4|none] <in.bio> [out%s]\n", archiveExt)
		fmt.Fprintf(os.Stderr, "       bio-pack --unpack <in%s> [out.bio]\n", archiveExt)
		fmt.Fprintf(os.Stderr, "       bio-pack --verify <file>...\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if err := run(pflag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "bio-pack: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if *verifyFlag {
		if len(args) == 0 {
			return errors.New("nothing to verify")
		}
		for _, path := range args {
			if err := verify(path); err != nil {
				return err
			}
		}
		return nil
	}
	if len(args) < 1 || len(args) > 2 {
		pflag.Usage()
		return errors.New("expected an input file and an optional output file")
	}
	in := args[0]
	if *unpackFlag {
		out := strings.TrimSuffix(in, archiveExt)
		if len(args) == 2 {
			out = args[1]
		} else if out == in {
			return fmt.Errorf("cannot infer an output name from %s, pass one", in)
		}
		return unpack(in, out)
	}
	out := in + archiveExt
	if len(args) == 2 {
		out = args[1]
	}
	return pack(in, out)
}

func pack(in, out string) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	// Refuse to pack something that is not a recording.
	if _, err := bio.Decode(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%s is not a recording: %w", in, err)
	}
	codec, err := archive.ParseCodec(*codecFlag)
	if err != nil {
		return err
	}

	used, err := writeArchive(out, data, codec)
	if err != nil {
		return err
	}

	info, err := os.Stat(out)
	if err != nil {
		return err
	}
	fmt.Printf("%s -> %s (%d -> %d bytes, %s, %.2fx)\n",
		in, out, len(data), info.Size(), used,
		float64(len(data))/float64(info.Size()))
	return nil
}

// writeArchive creates path and archives data into it under codec,
// removing the file again when the write fails part way.
func writeArchive(path string, data []byte, codec archive.Codec) (archive.Codec, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	used, err := archive.Write(f, data, codec)
	if err != nil {
		f.Close()
		os.Remove(path)
		return 0, err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return 0, err
	}
	return used, nil
}

func unpack(in, out string) error {
	f, err := os.Open(in)
	if err != nil {
		return err
	}
	defer f.Close()

	data, hdr, err := archive.Read(f)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("%s -> %s (%d bytes, %s, blake3 %s)\n",
		in, out, len(data), hdr.Codec, hdr.DigestHex()[:12])
	return nil
}

func verify(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	c, err := archive.ReadContainerAuto(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Printf("%s: ok (%d signals, %d rows at %g Hz)\n",
		path, c.Len(), len(c.Timestamps()), c.BaseRate())
	return nil
}
