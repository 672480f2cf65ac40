// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package esc

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"

	"github.com/go-lpc/lan9252/esc/internal/regs"
)

var _ Driver = (*Device)(nil)

// Device is a LAN9252 attached to an SPI port.
//
// A Device owns its port. It must not be used from more than one
// goroutine at a time.
type Device struct {
	port Port
	cfg  config
	msg  *log.Logger

	alEvent uint16 // AL-event register, as of the last access
}

// New returns a Device driving the controller behind port.
func New(port Port, opts ...Option) *Device {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.msg == nil {
		cfg.msg = log.New(os.Stdout, "esc: ", 0)
	}

	return &Device{
		port: port,
		cfg:  cfg,
		msg:  cfg.msg,
	}
}

// Init issues a digital reset of the controller, waits for it to come back
// and checks the byte-test register.
func (dev *Device) Init() error {
	err := dev.writeU32(regs.RESET_CTRL, regs.RESET_CTRL_RST)
	if err != nil {
		return fmt.Errorf("esc: could not reset device: %w", err)
	}

	_, err = dev.wait(regs.RESET_CTRL, "digital reset", func(v uint32) bool {
		return v&regs.RESET_CTRL_RST == 0
	})
	if err != nil {
		return fmt.Errorf("esc: could not reset device: %w", err)
	}

	v, err := dev.readU32(regs.BYTE_TEST)
	if err != nil {
		return fmt.Errorf("esc: could not read byte-test register: %w", err)
	}
	dev.msg.Printf("byte-test: 0x%08x", v)

	if v != regs.BYTE_TEST_VALUE {
		return fmt.Errorf(
			"esc: got=0x%08x, want=0x%08x: %w",
			v, uint32(regs.BYTE_TEST_VALUE), ErrByteTest,
		)
	}
	return nil
}

// Reset is a no-op: the controller needs nothing beyond Init.
func (dev *Device) Reset() error {
	return nil
}

// ALEvent returns the AL-event register as read after the last successful
// Read or Write.
func (dev *Device) ALEvent() uint16 {
	return dev.alEvent
}

// Read fills p with the ESC memory at addr.
func (dev *Device) Read(addr uint16, p []byte) error {
	err := checkRange(addr, len(p))
	if err != nil {
		return fmt.Errorf("esc: could not read 0x%04x (len=%d): %w", addr, len(p), err)
	}

	switch {
	case len(p) == 0:
		// nothing to transfer.
	case addr >= PRAMBase:
		err = dev.readPRAM(addr, p)
	default:
		for len(p) > 0 {
			n := chunk(addr, len(p))
			err = dev.readCSR(addr, p[:n])
			if err != nil {
				break
			}
			p = p[n:]
			addr += uint16(n)
		}
	}
	if err != nil {
		return err
	}

	return dev.updateALEvent()
}

// Write stores p into the ESC memory at addr.
func (dev *Device) Write(addr uint16, p []byte) error {
	err := checkRange(addr, len(p))
	if err != nil {
		return fmt.Errorf("esc: could not write 0x%04x (len=%d): %w", addr, len(p), err)
	}

	switch {
	case len(p) == 0:
		// nothing to transfer.
	case addr >= PRAMBase:
		err = dev.writePRAM(addr, p)
	default:
		for len(p) > 0 {
			n := chunk(addr, len(p))
			err = dev.writeCSR(addr, p[:n])
			if err != nil {
				break
			}
			p = p[n:]
			addr += uint16(n)
		}
	}
	if err != nil {
		return err
	}

	return dev.updateALEvent()
}

// updateALEvent mirrors the AL-event register, the way controllers with
// a native SPI PDI report it on every transaction.
func (dev *Device) updateALEvent() error {
	var buf [2]byte
	err := dev.readCSR(RegALEvent, buf[:])
	if err != nil {
		return fmt.Errorf("esc: could not update AL event: %w", err)
	}
	dev.alEvent = binary.LittleEndian.Uint16(buf[:])
	return nil
}

func checkRange(addr uint16, n int) error {
	switch {
	case int(addr)+n > 0x10000:
		return ErrRange
	case addr >= PRAMBase && n > maxPRAM:
		return ErrRange
	}
	return nil
}

// chunk returns the size of the next CSR access at addr, with rem bytes
// left to transfer. CSR accesses must be naturally aligned.
func chunk(addr uint16, rem int) int {
	n := min(rem, 4)
	switch {
	case addr&1 != 0:
		n = 1
	case addr&2 != 0:
		if n&1 != 0 {
			n = 1
		} else {
			n = 2
		}
	case n == 3:
		n = 1
	}
	return n
}

// Chunks returns the sizes of the CSR accesses used to transfer n bytes
// starting at addr.
func Chunks(addr uint16, n int) []int {
	var sizes []int
	for n > 0 {
		sz := chunk(addr, n)
		sizes = append(sizes, sz)
		addr += uint16(sz)
		n -= sz
	}
	return sizes
}
