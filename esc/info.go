// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package esc

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Info describes the identity of an ESC.
type Info struct {
	Type     uint8
	Revision uint8
	Build    uint16
	FMMUs    uint8  // number of supported FMMUs
	SyncMgrs uint8  // number of supported sync managers
	RAMSize  uint8  // process data RAM size, in KiB
	PortDesc uint8  // port descriptor
	Features uint16 // ESC features supported
}

// ReadInfo reads the identity registers of the controller behind drv.
func ReadInfo(drv Driver) (Info, error) {
	var (
		info Info
		buf  [10]byte
	)
	err := drv.Read(RegType, buf[:])
	if err != nil {
		return info, fmt.Errorf("esc: could not read ESC information: %w", err)
	}

	info.Type = buf[0]
	info.Revision = buf[1]
	info.Build = binary.LittleEndian.Uint16(buf[2:4])
	info.FMMUs = buf[4]
	info.SyncMgrs = buf[5]
	info.RAMSize = buf[6]
	info.PortDesc = buf[7]
	info.Features = binary.LittleEndian.Uint16(buf[8:10])
	return info, nil
}

func (info Info) String() string {
	o := new(strings.Builder)
	fmt.Fprintf(o, "type:          0x%02x\n", info.Type)
	fmt.Fprintf(o, "revision:      0x%02x\n", info.Revision)
	fmt.Fprintf(o, "build:         0x%04x\n", info.Build)
	fmt.Fprintf(o, "FMMUs:         %d\n", info.FMMUs)
	fmt.Fprintf(o, "sync managers: %d\n", info.SyncMgrs)
	fmt.Fprintf(o, "RAM size:      %d KiB\n", info.RAMSize)
	fmt.Fprintf(o, "ports:         0x%02x\n", info.PortDesc)
	fmt.Fprintf(o, "features:      0x%04x\n", info.Features)
	return o.String()
}

// WaitReady waits until the DL status register of the controller reports
// an operational PDI.
func WaitReady(drv Driver, opts ...Option) (uint16, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	v, err := waitFor(&cfg, "PDI", func() (uint32, error) {
		var buf [2]byte
		err := drv.Read(RegDLStatus, buf[:])
		return uint32(binary.LittleEndian.Uint16(buf[:])), err
	}, func(v uint32) bool {
		return v&0x1 != 0
	})
	if err != nil {
		return uint16(v), fmt.Errorf("esc: could not wait for ESC startup: %w", err)
	}
	return uint16(v), nil
}

// ReadLocalTime reads the 32-bit local time of the controller, in ns.
func ReadLocalTime(drv Driver) (uint32, error) {
	var buf [4]byte
	err := drv.Read(RegLocalTime, buf[:])
	if err != nil {
		return 0, fmt.Errorf("esc: could not read local time: %w", err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// ReadALStatus reads the AL status register.
func ReadALStatus(drv Driver) (uint16, error) {
	var buf [2]byte
	err := drv.Read(RegALStatus, buf[:])
	if err != nil {
		return 0, fmt.Errorf("esc: could not read AL status: %w", err)
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}
