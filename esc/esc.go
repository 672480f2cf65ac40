// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package esc drives an EtherCAT slave controller (ESC) attached over SPI
// through a LAN9252 host interface.
//
// The controller memory is split in two windows. Addresses below PRAMBase
// are Control/Status Registers, reached one 1-, 2- or 4-byte register at a
// time through the CSR command register. Addresses from PRAMBase up are
// Process RAM, streamed through the PRAM FIFOs.
//
// All accesses are synchronous: a call returns once the controller has
// completed the command or once the poll budget is exhausted.
package esc // import "github.com/go-lpc/lan9252/esc"

import (
	"errors"
	"fmt"
)

// PRAMBase is the first Process RAM address.
const PRAMBase = 0x1000

// ESC registers read by this package.
const (
	RegType       = 0x0000
	RegRevision   = 0x0001
	RegBuild      = 0x0002
	RegFMMUs      = 0x0004
	RegSyncMgrs   = 0x0005
	RegRAMSize    = 0x0006
	RegPortDesc   = 0x0007
	RegFeatures   = 0x0008
	RegDLStatus   = 0x0110
	RegALControl  = 0x0120
	RegALStatus   = 0x0130
	RegALEvent    = 0x0220
	RegLocalTime  = 0x0910
	RegSync0State = 0x098E
)

// AL-event bits.
const (
	ALEventControl  = 1 << 0
	ALEventSMChange = 1 << 1
	ALEventSM0      = 1 << 2
	ALEventSM1      = 1 << 3
	ALEventSM2      = 1 << 4
	ALEventSM3      = 1 << 5

	ALEventMask = ALEventControl | ALEventSMChange | ALEventSM0 | ALEventSM1
)

// Driver is the capability an EtherCAT slave stack needs from its
// controller: bring-up, reset and raw memory access.
type Driver interface {
	Init() error
	Reset() error
	Read(addr uint16, p []byte) error
	Write(addr uint16, p []byte) error
}

// Bus is a full-duplex SPI link.
type Bus interface {
	// Write clocks p out and discards the received bytes.
	Write(p []byte) error

	// Transfer clocks w out and stores the received bytes into r.
	// r and w have the same length.
	// Implementations may defer filling r until the chip select is released.
	Transfer(r, w []byte) error
}

// ChipSelect frames SPI transactions.
type ChipSelect interface {
	Select() error
	Deselect() error
}

// Port is an SPI bus together with the chip select line of the controller.
type Port interface {
	Bus
	ChipSelect
}

var (
	// ErrTimeout is returned when the controller did not complete a command
	// within the poll budget.
	ErrTimeout = errors.New("esc: device unresponsive")

	// ErrSize is returned for CSR accesses that are not 1, 2 or 4 bytes.
	ErrSize = errors.New("esc: invalid CSR access size")

	// ErrRange is returned for accesses past the end of the ESC address space.
	ErrRange = errors.New("esc: access out of range")

	// ErrByteTest is returned by Init when the byte-test register holds
	// an unexpected value.
	ErrByteTest = errors.New("esc: invalid byte-test value")
)

// BusError reports a failure of the underlying SPI port.
type BusError struct {
	Op   string // "write", "read", "burst"
	Addr uint16 // register or FIFO address of the frame
	Err  error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("esc: bus %s at 0x%03x: %v", e.Op, e.Addr, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }
