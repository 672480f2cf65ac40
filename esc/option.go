// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package esc

import (
	"log"
	"time"
)

type config struct {
	msg     *log.Logger
	verbose bool

	poll struct {
		limit    int           // max number of register reads, 0: no limit
		timeout  time.Duration // wall-clock bound, 0: no bound
		interval time.Duration // pause between reads, 0: spin
	}
}

func newConfig() config {
	var cfg config
	cfg.poll.limit = 100000
	cfg.poll.timeout = 1 * time.Second
	return cfg
}

// Option configures a Device or a polling helper.
type Option func(*config)

// WithLogger sets the logger used for diagnostics.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithVerbose enables tracing of every command and poll.
func WithVerbose(v bool) Option {
	return func(cfg *config) {
		cfg.verbose = v
	}
}

// WithPollLimit bounds the number of status register reads a single wait
// may issue. Zero removes the bound.
func WithPollLimit(n int) Option {
	return func(cfg *config) {
		cfg.poll.limit = n
	}
}

// WithPollTimeout bounds the time a single wait may take.
// Zero removes the bound.
func WithPollTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.poll.timeout = d
	}
}

// WithPollInterval sets the pause between two status register reads.
// A non-zero interval lets other goroutines run while the device is busy.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *config) {
		cfg.poll.interval = d
	}
}
