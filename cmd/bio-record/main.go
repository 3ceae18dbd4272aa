// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2026 The bio Authors.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Command bio-record streams the built-in synthetic source into a
// container file, optionally driving the trigger column from an
// experiment protocol.
//
// Usage:
//
//	bio-record [flags] <output.bio>
//
// Without --config the session is derived from the synthetic source.
// With --protocol the trigger follows the protocol's schedule and the
// recording stops when the schedule is over; otherwise it stops after
// --duration or on interrupt.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/pulp-bio/bio"
	"github.com/pulp-bio/bio/session"
	"github.com/pulp-bio/bio/source"
)

var (
	configFlag   = pflag.String("config", "", "YAML session config")
	protocolFlag = pflag.String("protocol", "", "JSONC experiment protocol")
	durationFlag = pflag.Duration("duration", 10*time.Second, "recording length, 0 to run until interrupted")
	flushFlag    = pflag.Duration("flush", time.Second, "snapshot flush interval (ignored with --config)")
	seedFlag     = pflag.Int64("seed", 1, "synthetic source seed")
	noiseFlag    = pflag.Float64("noise", 0, "synthetic source noise amplitude")
	verboseFlag  = pflag.BoolP("verbose", "v", false, "debug logging")
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: bio-record [flags] <output.bio>\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if pflag.NArg() > 1 {
		pflag.Usage()
		os.Exit(1)
	}
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bio-record: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	level := slog.LevelInfo
	if *verboseFlag {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	src := source.NewSynthetic(source.SyntheticConfig{
		Seed:     *seedFlag,
		Noise:    *noiseFlag,
		Realtime: true,
	})
	it := src.Interface()

	cfg, err := loadConfig(it)
	if err != nil {
		return err
	}
	proto, err := loadProtocol(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if *durationFlag > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, *durationFlag)
		defer stop()
	}

	rec, err := session.NewRecorder(*cfg, logger)
	if err != nil {
		return err
	}

	var sched *session.Schedule
	if proto != nil {
		sched = proto.Schedule()
		rec.SetTriggerLabels(proto.Labels())
		logger.Info("protocol loaded",
			"gestures", len(proto.Gestures),
			"reps", proto.Reps,
			"total", sched.Total())
	}

	start := time.Now()
	lastLabel := ""
	pumpErr := source.Pump(ctx, src, it, func(blocks []*bio.Matrix) error {
		if sched != nil {
			ph, done := sched.At(time.Since(start))
			if done {
				cancel()
				return nil
			}
			rec.SetTrigger(ph.Value)
			if ph.Label != lastLabel {
				logger.Info("phase", "label", ph.Label, "value", ph.Value)
				lastLabel = ph.Label
			}
		}
		for i, block := range blocks {
			if err := rec.Append(it.Signals[i].Name, block); err != nil {
				return err
			}
		}
		return nil
	})
	closeErr := rec.Close()
	if pumpErr != nil {
		return pumpErr
	}
	if closeErr != nil {
		return closeErr
	}
	logger.Info("wrote recording", "path", cfg.OutPath, "rows", rec.BaseRows())
	return nil
}

// loadConfig resolves the session: an explicit YAML config checked
// against the source, or one derived from the source's own signals.
func loadConfig(it source.Interface) (*session.Config, error) {
	out := ""
	if pflag.NArg() == 1 {
		out = pflag.Arg(0)
	}
	if *configFlag != "" {
		cfg, err := session.LoadConfig(*configFlag)
		if err != nil {
			return nil, err
		}
		if out != "" {
			cfg.OutPath = out
		}
		if err := matchesSource(*cfg, it); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if out == "" {
		return nil, errors.New("output path required (or --config with out_path)")
	}
	cfg := session.Config{
		Name:          "bio-record",
		OutPath:       out,
		BaseRate:      it.Signals[0].Rate,
		FlushInterval: session.Duration(*flushFlag),
		ProtocolPath:  *protocolFlag,
	}
	for _, s := range it.Signals {
		cfg.Signals = append(cfg.Signals, session.SignalConfig{
			Name:     s.Name,
			Rate:     s.Rate,
			Channels: s.Channels,
			Type:     s.Type.String(),
		})
	}
	return &cfg, nil
}

func matchesSource(cfg session.Config, it source.Interface) error {
	declared := make(map[string]session.SignalConfig, len(cfg.Signals))
	for _, s := range cfg.Signals {
		declared[s.Name] = s
	}
	for _, s := range it.Signals {
		d, ok := declared[s.Name]
		if !ok {
			return fmt.Errorf("config does not declare source signal %q", s.Name)
		}
		typ, err := d.SampleType()
		if err != nil {
			return err
		}
		if d.Channels != s.Channels || typ != s.Type || d.Rate != s.Rate {
			return fmt.Errorf("config signal %q does not match the source (%d channels of %s at %g Hz)",
				s.Name, s.Channels, s.Type, s.Rate)
		}
	}
	return nil
}

func loadProtocol(cfg *session.Config) (*session.Protocol, error) {
	path := *protocolFlag
	if path == "" {
		path = cfg.ProtocolPath
	}
	if path == "" {
		return nil, nil
	}
	return session.LoadProtocol(path)
}
