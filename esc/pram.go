// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package esc

import (
	"encoding/binary"
	"fmt"

	"github.com/go-lpc/lan9252/esc/internal/regs"
)

// maxPRAM is the largest transfer the PRAM length field can describe.
const maxPRAM = 0xffff

// pramStart aborts any pending transfer on the PRAM path driven by cmd,
// programs the address and length, starts the transfer and waits for the
// FIFO. It returns the FIFO depth count reported by the controller.
func (dev *Device) pramStart(cmd, addrLen, addr uint16, n int) (uint32, error) {
	err := dev.writeU32(cmd, regs.PRAM_CMD_ABORT)
	if err != nil {
		return 0, fmt.Errorf("esc: could not abort PRAM command 0x%03x: %w", cmd, err)
	}

	_, err = dev.wait(cmd, "PRAM abort", busyClear)
	if err != nil {
		return 0, fmt.Errorf("esc: could not abort PRAM command 0x%03x: %w", cmd, err)
	}

	err = dev.writeU32(addrLen, regs.PRAMAddrLen(addr, n))
	if err != nil {
		return 0, fmt.Errorf("esc: could not set PRAM addr/len (addr=0x%04x, len=%d): %w", addr, n, err)
	}

	err = dev.writeU32(cmd, regs.PRAM_CMD_BUSY)
	if err != nil {
		return 0, fmt.Errorf("esc: could not start PRAM command 0x%03x: %w", cmd, err)
	}

	v, err := dev.wait(cmd, "PRAM FIFO", func(v uint32) bool {
		return v&regs.PRAM_CMD_AVAIL != 0
	})
	if err != nil {
		return 0, fmt.Errorf("esc: could not get PRAM FIFO (addr=0x%04x, len=%d): %w", addr, n, err)
	}
	return regs.PRAMCount(v), nil
}

// writePRAM writes p to Process RAM at addr through the write FIFO.
func (dev *Device) writePRAM(addr uint16, p []byte) error {
	cnt, err := dev.pramStart(regs.PRAM_WR_CMD, regs.PRAM_WR_ADDR_LEN, addr, len(p))
	if err != nil {
		return err
	}

	// the first word only carries the bytes from addr up to the next
	// 4-byte boundary, placed in their byte lanes.
	var (
		pos = int(addr & 3)
		n   = min(4-pos, len(p))
		v   uint32
	)
	for i, b := range p[:n] {
		v |= uint32(b) << (8 * (pos + i))
	}
	err = dev.writeU32(regs.PRAM_WR_FIFO, v)
	if err != nil {
		return fmt.Errorf("esc: could not write first PRAM word (addr=0x%04x): %w", addr, err)
	}
	cnt = fifoDec(cnt)
	p = p[n:]
	if len(p) == 0 {
		return nil
	}

	hdr := [3]byte{
		regs.CMD_SERIAL_WRITE,
		byte(regs.PRAM_WR_FIFO >> 8), byte(regs.PRAM_WR_FIFO & 0xff),
	}
	err = dev.frame("burst", regs.PRAM_WR_FIFO, func() error {
		err := dev.port.Write(hdr[:])
		if err != nil {
			return err
		}
		for len(p) > 0 {
			var word [4]byte
			k := copy(word[:], p)
			err = dev.port.Write(word[:])
			if err != nil {
				return err
			}
			p = p[k:]
			cnt = fifoDec(cnt)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("esc: could not stream PRAM data (addr=0x%04x): %w", addr, err)
	}
	if dev.cfg.verbose {
		dev.msg.Printf("PRAM write 0x%04x: fifo-cnt=%d", addr, cnt)
	}
	return nil
}

// readPRAM fills p from Process RAM at addr through the read FIFO.
func (dev *Device) readPRAM(addr uint16, p []byte) error {
	cnt, err := dev.pramStart(regs.PRAM_RD_CMD, regs.PRAM_RD_ADDR_LEN, addr, len(p))
	if err != nil {
		return err
	}

	v, err := dev.readU32(regs.PRAM_RD_FIFO)
	if err != nil {
		return fmt.Errorf("esc: could not read first PRAM word (addr=0x%04x): %w", addr, err)
	}
	cnt = fifoDec(cnt)

	var word [4]byte
	binary.LittleEndian.PutUint32(word[:], v)
	n := copy(p, word[addr&3:])
	p = p[n:]
	if len(p) == 0 {
		return nil
	}

	var (
		hdr = [4]byte{
			regs.CMD_FAST_READ,
			byte(regs.PRAM_RD_FIFO >> 8), byte(regs.PRAM_RD_FIFO & 0xff),
			regs.CMD_FAST_READ_DUMMY,
		}
		nw = (len(p) + 3) / 4
		rx = make([]byte, 4*nw)
	)
	err = dev.frame("burst", regs.PRAM_RD_FIFO, func() error {
		err := dev.port.Write(hdr[:])
		if err != nil {
			return err
		}
		for i := 0; i < nw; i++ {
			err = dev.port.Transfer(rx[4*i:4*i+4], fill[:])
			if err != nil {
				return err
			}
			cnt = fifoDec(cnt)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("esc: could not stream PRAM data (addr=0x%04x): %w", addr, err)
	}
	copy(p, rx)

	if dev.cfg.verbose {
		dev.msg.Printf("PRAM read 0x%04x: fifo-cnt=%d", addr, cnt)
	}
	return nil
}

// fifoDec tracks the FIFO depth count. The count is informational:
// transfers are bound by the requested length.
func fifoDec(cnt uint32) uint32 {
	if cnt == 0 {
		return 0
	}
	return cnt - 1
}
