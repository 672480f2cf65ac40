// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package esc

import (
	"encoding/binary"

	"github.com/go-lpc/lan9252/esc/internal/regs"
)

var fill = [4]byte{0xff, 0xff, 0xff, 0xff}

// frame runs f with the chip select asserted.
// The chip select is released whatever f returns.
func (dev *Device) frame(op string, addr uint16, f func() error) error {
	err := dev.port.Select()
	if err != nil {
		return &BusError{Op: op, Addr: addr, Err: err}
	}

	err = f()
	if ecs := dev.port.Deselect(); err == nil {
		err = ecs
	}
	if err != nil {
		return &BusError{Op: op, Addr: addr, Err: err}
	}
	return nil
}

// writeU32 writes a 32-bit register: opcode, big-endian address,
// little-endian value.
func (dev *Device) writeU32(addr uint16, v uint32) error {
	var buf [7]byte
	buf[0] = regs.CMD_SERIAL_WRITE
	binary.BigEndian.PutUint16(buf[1:3], addr)
	binary.LittleEndian.PutUint32(buf[3:], v)

	return dev.frame("write", addr, func() error {
		return dev.port.Write(buf[:])
	})
}

// readU32 reads a 32-bit register with a fast-read instruction.
func (dev *Device) readU32(addr uint16) (uint32, error) {
	var (
		hdr = [4]byte{regs.CMD_FAST_READ, 0, 0, regs.CMD_FAST_READ_DUMMY}
		rx  [4]byte
	)
	binary.BigEndian.PutUint16(hdr[1:3], addr)

	err := dev.frame("read", addr, func() error {
		err := dev.port.Write(hdr[:])
		if err != nil {
			return err
		}
		return dev.port.Transfer(rx[:], fill[:])
	})
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(rx[:]), nil
}
