// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regs holds the SPI opcodes, register offsets and bit layouts
// of the LAN9252 host interface.
package regs // import "github.com/go-lpc/lan9252/esc/internal/regs"

// SPI instructions.
const (
	CMD_SERIAL_WRITE = 0x02
	CMD_SERIAL_READ  = 0x03
	CMD_FAST_READ    = 0x0B
	CMD_RESET_SQI    = 0xFF

	CMD_FAST_READ_DUMMY = 0x01
	CMD_ADDR_INC        = 1 << 6
)

// PRAM FIFO windows and command registers.
const (
	PRAM_RD_FIFO = 0x000
	PRAM_WR_FIFO = 0x020

	PRAM_RD_ADDR_LEN = 0x308
	PRAM_RD_CMD      = 0x30C
	PRAM_WR_ADDR_LEN = 0x310
	PRAM_WR_CMD      = 0x314

	PRAM_FIFO_SPAN = 0x020 // each FIFO is aliased over 8 words
)

// PRAM command register bits.
const (
	PRAM_CMD_BUSY  = 1 << 31
	PRAM_CMD_ABORT = 1 << 30
	PRAM_CMD_AVAIL = 1 << 0

	SHIFT_PRAM_CMD_CNT = 8
	MASK_PRAM_CMD_CNT  = 0x1F

	SHIFT_PRAM_SIZE = 16
)

// CSR indirect access registers.
const (
	CSR_DATA = 0x300
	CSR_CMD  = 0x304

	CSR_CMD_BUSY  = 1 << 31
	CSR_CMD_READ  = 1<<31 | 1<<30
	CSR_CMD_WRITE = 1 << 31

	SHIFT_CSR_CMD_SIZE = 16
	MASK_CSR_CMD_SIZE  = 0x3
	MASK_CSR_CMD_ADDR  = 0xFFFF
)

// Directly addressable system registers.
const (
	IRQ_CFG    = 0x054
	INT_STS    = 0x058
	INT_EN     = 0x05C
	BYTE_TEST  = 0x064
	RESET_CTRL = 0x1F8

	RESET_CTRL_RST = 1 << 6

	BYTE_TEST_VALUE = 0x87654321
)

// PRAMCount extracts the FIFO depth count of a PRAM command register value.
func PRAMCount(v uint32) uint32 {
	return (v >> SHIFT_PRAM_CMD_CNT) & MASK_PRAM_CMD_CNT
}

// PRAMAddrLen packs the PRAM address/length register.
func PRAMAddrLen(addr uint16, n int) uint32 {
	return uint32(n)<<SHIFT_PRAM_SIZE | uint32(addr)
}

// CSRSize returns the CSR command size code of an n-byte access.
func CSRSize(n int) (uint32, bool) {
	switch n {
	case 1:
		return 0 << SHIFT_CSR_CMD_SIZE, true
	case 2:
		return 1 << SHIFT_CSR_CMD_SIZE, true
	case 4:
		return 2 << SHIFT_CSR_CMD_SIZE, true
	}
	return 0, false
}
