// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/go-lpc/lan9252/esc"
	"github.com/go-lpc/lan9252/esc/escsim"
	"github.com/go-lpc/lan9252/escdb"
)

type fakeRecorder struct {
	snaps []escdb.Snapshot
	err   error
}

func (rec *fakeRecorder) Record(ctx context.Context, snap escdb.Snapshot) error {
	rec.snaps = append(rec.snaps, snap)
	return rec.err
}

func TestProcess(t *testing.T) {
	sim := escsim.New()
	sim.SetALEvent(esc.ALEventSM1)
	copy(sim.Mem[0x1000:], "hello ESC")

	var (
		out = new(strings.Builder)
		drv = esc.New(sim, esc.WithLogger(log.New(io.Discard, "", 0)))
		rec = new(fakeRecorder)
	)

	err := process(out, drv, "sim", 0x1000, 9, rec)
	if err != nil {
		t.Fatalf("could not process ESC: %+v", err)
	}

	for _, want := range []string{
		"device:        sim\n",
		"type:          0xc0\n",
		"AL event:      0x0008\n",
		"memory @0x1000:\n",
		"|hello ESC|",
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in output:\n%s", want, out.String())
		}
	}

	if got, want := len(rec.snaps), 1; got != want {
		t.Fatalf("invalid number of snapshots: got=%d, want=%d", got, want)
	}
	snap := rec.snaps[0]
	if snap.Device != "sim" || snap.Info.FMMUs != 3 || snap.ALEvent != esc.ALEventSM1 {
		t.Fatalf("invalid snapshot: %+v", snap)
	}

	rec.err = errors.New("db down")
	err = process(io.Discard, drv, "sim", 0, 0, rec)
	if !errors.Is(err, rec.err) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, rec.err)
	}

	err = process(io.Discard, drv, "sim", 0xfff0, 0x20, nil)
	if !errors.Is(err, esc.ErrRange) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, esc.ErrRange)
	}
}
