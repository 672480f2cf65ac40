// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package esc

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/go-lpc/lan9252/esc/escsim"
)

func TestReadInfo(t *testing.T) {
	dev, sim := newTestDevice(t)

	info, err := ReadInfo(dev)
	if err != nil {
		t.Fatalf("could not read info: %+v", err)
	}
	checkViolations(t, sim)

	want := Info{
		Type:     0xc0,
		Revision: 0x02,
		Build:    0x0001,
		FMMUs:    3,
		SyncMgrs: 4,
		RAMSize:  4,
		PortDesc: 0x0f,
		Features: 0x01fc,
	}
	if info != want {
		t.Fatalf("invalid info:\ngot= %+v\nwant=%+v", info, want)
	}

	const str = `type:          0xc0
revision:      0x02
build:         0x0001
FMMUs:         3
sync managers: 4
RAM size:      4 KiB
ports:         0x0f
features:      0x01fc
`
	if got, want := info.String(), str; got != want {
		t.Fatalf("invalid info string:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestWaitReady(t *testing.T) {
	dev, sim := newTestDevice(t)

	v, err := WaitReady(dev)
	if err != nil {
		t.Fatalf("could not wait for PDI: %+v", err)
	}
	if v&1 == 0 {
		t.Fatalf("invalid DL status: 0x%04x", v)
	}

	sim.Mem[RegDLStatus] = 0
	n := 0
	sim.OnCommand = func(s *escsim.Sim) {
		n++
		if n == 6 {
			s.Mem[RegDLStatus] = 1
		}
	}
	_, err = WaitReady(dev, WithPollLimit(3))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, ErrTimeout)
	}

	v, err = WaitReady(dev)
	if err != nil {
		t.Fatalf("could not wait for PDI: %+v", err)
	}
	if v != 1 {
		t.Fatalf("invalid DL status: 0x%04x", v)
	}
}

func TestReadRegisters(t *testing.T) {
	dev, sim := newTestDevice(t)
	binary.LittleEndian.PutUint32(sim.Mem[RegLocalTime:], 0xdeadbeef)
	binary.LittleEndian.PutUint16(sim.Mem[RegALStatus:], 0x0008)

	lt, err := ReadLocalTime(dev)
	if err != nil {
		t.Fatalf("could not read local time: %+v", err)
	}
	if got, want := lt, uint32(0xdeadbeef); got != want {
		t.Fatalf("invalid local time: got=0x%08x, want=0x%08x", got, want)
	}

	st, err := ReadALStatus(dev)
	if err != nil {
		t.Fatalf("could not read AL status: %+v", err)
	}
	if got, want := st, uint16(0x0008); got != want {
		t.Fatalf("invalid AL status: got=0x%04x, want=0x%04x", got, want)
	}
	checkViolations(t, sim)
}
