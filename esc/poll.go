// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package esc

import (
	"fmt"
	"time"

	"github.com/go-lpc/lan9252/esc/internal/regs"
)

// waitFor calls read until done reports true or the poll budget of cfg
// is exhausted. It returns the last value read.
func waitFor(cfg *config, what string, read func() (uint32, error), done func(v uint32) bool) (uint32, error) {
	var (
		beg = time.Now()
		n   = 0
	)
	for {
		v, err := read()
		if err != nil {
			return v, err
		}
		if done(v) {
			return v, nil
		}
		n++

		switch {
		case cfg.poll.limit > 0 && n >= cfg.poll.limit:
			return v, fmt.Errorf(
				"esc: %s still pending after %d polls (last=0x%08x): %w",
				what, n, v, ErrTimeout,
			)
		case cfg.poll.timeout > 0 && time.Since(beg) > cfg.poll.timeout:
			return v, fmt.Errorf(
				"esc: %s still pending after %v (last=0x%08x): %w",
				what, cfg.poll.timeout, v, ErrTimeout,
			)
		}

		if cfg.poll.interval > 0 {
			time.Sleep(cfg.poll.interval)
		}
	}
}

// wait polls the 32-bit register at addr.
func (dev *Device) wait(addr uint16, what string, done func(v uint32) bool) (uint32, error) {
	v, err := waitFor(&dev.cfg, what, func() (uint32, error) {
		return dev.readU32(addr)
	}, done)
	if dev.cfg.verbose {
		dev.msg.Printf("wait %s: reg=0x%03x, val=0x%08x, err=%v", what, addr, v, err)
	}
	return v, err
}

// busyClear reports whether a CSR or PRAM command register is idle.
// Both paths share the same busy bit.
func busyClear(v uint32) bool { return v&regs.CSR_CMD_BUSY == 0 }
