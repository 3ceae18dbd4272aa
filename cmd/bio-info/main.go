// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The bio Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Command bio-info prints what a recording contains.
//
// Usage:
//
//	bio-info [flags] <file>...
//
// Plain and archived recordings are both accepted. With --stats each
// channel gets summary statistics and its dominant frequency; with
// --meta the recording's sidecar is shown when one exists next to it.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/pulp-bio/bio"
	"github.com/pulp-bio/bio/archive"
	"github.com/pulp-bio/bio/session"
	"github.com/pulp-bio/bio/sigproc"
)

var (
	statsFlag = pflag.Bool("stats", false, "per-channel statistics and dominant frequency")
	metaFlag  = pflag.Bool("meta", false, "show the recording's sidecar if present")
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: bio-info [flags] <file>...\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if pflag.NArg() == 0 {
		pflag.Usage()
		os.Exit(1)
	}
	if err := run(pflag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "bio-info: %v\n", err)
		os.Exit(1)
	}
}

func run(paths []string) error {
	for i, path := range paths {
		if i > 0 {
			fmt.Println()
		}
		if err := inspect(path); err != nil {
			return err
		}
	}
	return nil
}

func inspect(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	c, err := archive.ReadContainerAuto(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	rows := len(c.Timestamps())
	fmt.Printf("%s\n", path)
	fmt.Printf("  base rate: %g Hz\n", c.BaseRate())
	fmt.Printf("  duration:  %.3f s (%d rows)\n", float64(rows)/float64(c.BaseRate()), rows)
	fmt.Printf("  signals:   %d\n", c.Len())

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tRATE\tROWS\tCHANNELS\tTYPE")
	for _, e := range c.Entries() {
		fmt.Fprintf(w, "  %s\t%g\t%d\t%d\t%s\n",
			e.Name, e.Rate, e.Data.Rows(), e.Data.Cols(), e.Data.Type())
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if *statsFlag {
		if err := printStats(c); err != nil {
			return err
		}
	}
	if *metaFlag {
		printSidecar(path)
	}
	return nil
}

func printStats(c *bio.Container) error {
	fmt.Println("  statistics:")
	for _, e := range c.Entries() {
		if e.Name == bio.TimestampName || e.Name == bio.TriggerName {
			continue
		}
		for col := 0; col < e.Data.Cols(); col++ {
			x, err := sigproc.ColumnFloat64(e.Data, col)
			if err != nil {
				return err
			}
			s := sigproc.Describe(x)
			line := fmt.Sprintf("    %s[%d]: mean=%.4g std=%.4g rms=%.4g min=%.4g max=%.4g",
				e.Name, col, s.Mean, s.Std, s.RMS, s.Min, s.Max)
			if freq, ok := dominantFrequency(x, float64(e.Rate)); ok {
				line += fmt.Sprintf(" peak=%.4g Hz", freq)
			}
			fmt.Println(line)
		}
	}
	return nil
}

// dominantFrequency estimates the strongest spectral component, when
// the channel is long enough for a meaningful estimate.
func dominantFrequency(x []float64, rate float64) (float64, bool) {
	window := 256
	if len(x) < window {
		window = 64
	}
	if len(x) < window {
		return 0, false
	}
	psd, err := sigproc.Welch(x, rate, window, window/2)
	if err != nil {
		return 0, false
	}
	freq, _ := psd.Peak()
	return freq, true
}

func printSidecar(path string) {
	sc, err := session.ReadSidecar(session.SidecarPath(path))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			fmt.Printf("  sidecar:   unreadable (%v)\n", err)
		}
		return
	}
	fmt.Println("  sidecar:")
	fmt.Printf("    session: %s\n", sc.Session)
	fmt.Printf("    started: %s\n", sc.StartTime.Format("2006-01-02 15:04:05 MST"))
	if len(sc.Triggers) > 0 {
		ids := make([]uint32, 0, len(sc.Triggers))
		for id := range sc.Triggers {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		fmt.Println("    triggers:")
		for _, id := range ids {
			fmt.Printf("      %d: %s\n", id, sc.Triggers[id])
		}
	}
}
