// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package esc

import (
	"encoding/binary"
	"fmt"

	"github.com/go-lpc/lan9252/esc/internal/regs"
)

// readCSR reads a 1-, 2- or 4-byte register through the CSR command register.
func (dev *Device) readCSR(addr uint16, p []byte) error {
	size, ok := regs.CSRSize(len(p))
	if !ok {
		return fmt.Errorf("esc: could not read CSR 0x%03x (len=%d): %w", addr, len(p), ErrSize)
	}

	err := dev.writeU32(regs.CSR_CMD, regs.CSR_CMD_READ|size|uint32(addr))
	if err != nil {
		return fmt.Errorf("esc: could not issue CSR read 0x%03x: %w", addr, err)
	}

	_, err = dev.wait(regs.CSR_CMD, "CSR read", busyClear)
	if err != nil {
		return fmt.Errorf("esc: could not complete CSR read 0x%03x: %w", addr, err)
	}

	v, err := dev.readU32(regs.CSR_DATA)
	if err != nil {
		return fmt.Errorf("esc: could not read CSR data for 0x%03x: %w", addr, err)
	}

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	copy(p, buf[:len(p)])
	return nil
}

// writeCSR writes a 1-, 2- or 4-byte register through the CSR command register.
func (dev *Device) writeCSR(addr uint16, p []byte) error {
	size, ok := regs.CSRSize(len(p))
	if !ok {
		return fmt.Errorf("esc: could not write CSR 0x%03x (len=%d): %w", addr, len(p), ErrSize)
	}

	var buf [4]byte
	copy(buf[:], p)
	err := dev.writeU32(regs.CSR_DATA, binary.LittleEndian.Uint32(buf[:]))
	if err != nil {
		return fmt.Errorf("esc: could not write CSR data for 0x%03x: %w", addr, err)
	}

	err = dev.writeU32(regs.CSR_CMD, regs.CSR_CMD_WRITE|size|uint32(addr))
	if err != nil {
		return fmt.Errorf("esc: could not issue CSR write 0x%03x: %w", addr, err)
	}

	_, err = dev.wait(regs.CSR_CMD, "CSR write", busyClear)
	if err != nil {
		return fmt.Errorf("esc: could not complete CSR write 0x%03x: %w", addr, err)
	}
	return nil
}
