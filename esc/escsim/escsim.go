// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package escsim simulates a LAN9252 EtherCAT slave controller at the SPI
// byte level.
//
// A Sim implements esc.Port. It decodes the SPI instructions clocked in
// while the chip select is asserted, runs the CSR and PRAM command engines
// against a 64 KiB ESC memory and records a trace of what it saw.
package escsim // import "github.com/go-lpc/lan9252/esc/escsim"

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/go-lpc/lan9252/esc/internal/regs"
)

var (
	// ErrBus is the error returned by injected bus faults.
	ErrBus = errors.New("escsim: bus fault")
)

const (
	regALEvent  = 0x0220
	regDLStatus = 0x0110

	fifoDepth = 16 // words
)

// Frame is one chip-select frame as seen by the controller.
type Frame struct {
	Op   byte   // SPI instruction
	Addr uint16 // register address
	Data []byte // bytes clocked in after the header
}

// Sim is a simulated LAN9252.
type Sim struct {
	Mem [0x10000]byte // ESC memory

	// BusyPolls is the number of status reads reporting busy after each
	// command, abort or reset.
	BusyPolls int

	// Stuck keeps every busy flag set forever.
	Stuck bool

	// FailAfter makes the n-th bus operation (1-based) fail with ErrBus.
	FailAfter int

	// OnCommand is called on every CSR command, before it executes.
	OnCommand func(s *Sim)

	// Trace enables the recording of Frames.
	Trace bool

	Frames     []Frame  // chip-select frames, when Trace is set
	FIFOWords  []uint32 // words pushed into the PRAM write FIFO
	Violations []string // protocol violations
	Commands   int      // number of CSR commands

	ops int // bus operations, for FailAfter
	sel bool
	cur struct {
		mosi []byte
		hdr  int
		out  [4]byte
	}

	reset int // reads left reporting the reset bit
	csr   struct {
		data uint32
		cmd  uint32
		busy int
	}
	rd pram
	wr pram

	sys map[uint16]uint32 // other system registers
}

type pram struct {
	addrLen uint32
	busy    bool // transfer in flight
	abort   int  // reads left reporting busy after an abort
	wait    int  // reads left before the FIFO is available
	word    int  // address of the next FIFO word
	lo, hi  int  // byte range of the transfer
}

// New returns a simulated controller with a LAN9252 identity and an
// operational PDI.
func New() *Sim {
	s := &Sim{
		sys: make(map[uint16]uint32),
	}
	copy(s.Mem[:10], []byte{
		0xc0,       // type
		0x02,       // revision
		0x01, 0x00, // build
		0x03,       // FMMUs
		0x04,       // sync managers
		0x04,       // RAM size (KiB)
		0x0f,       // port descriptor
		0xfc, 0x01, // features
	})
	s.Mem[regDLStatus] = 0x01
	return s
}

// ALEvent returns the simulated AL-event register.
func (s *Sim) ALEvent() uint16 {
	return binary.LittleEndian.Uint16(s.Mem[regALEvent:])
}

// SetALEvent sets the simulated AL-event register.
func (s *Sim) SetALEvent(v uint16) {
	binary.LittleEndian.PutUint16(s.Mem[regALEvent:], v)
}

// Selected reports whether the chip select is asserted.
func (s *Sim) Selected() bool { return s.sel }

func (s *Sim) violation(format string, args ...interface{}) {
	s.Violations = append(s.Violations, fmt.Sprintf(format, args...))
}

func (s *Sim) fault() error {
	s.ops++
	if s.FailAfter > 0 && s.ops == s.FailAfter {
		return ErrBus
	}
	return nil
}

// Select asserts the chip select.
func (s *Sim) Select() error {
	if err := s.fault(); err != nil {
		return err
	}
	if s.sel {
		s.violation("select while selected")
	}
	s.sel = true
	s.cur.mosi = s.cur.mosi[:0]
	s.cur.hdr = 0
	return nil
}

// Deselect releases the chip select.
func (s *Sim) Deselect() error {
	if !s.sel {
		s.violation("deselect while not selected")
	}
	s.sel = false

	if s.Trace && len(s.cur.mosi) > 0 {
		fr := Frame{Op: s.cur.mosi[0]}
		if len(s.cur.mosi) >= 3 {
			fr.Addr = binary.BigEndian.Uint16(s.cur.mosi[1:3])
		}
		if s.cur.hdr > 0 && len(s.cur.mosi) > s.cur.hdr {
			fr.Data = append([]byte(nil), s.cur.mosi[s.cur.hdr:]...)
		}
		s.Frames = append(s.Frames, fr)
	}

	// a fault on release leaves the line released.
	return s.fault()
}

// Write clocks p in.
func (s *Sim) Write(p []byte) error {
	if err := s.fault(); err != nil {
		return err
	}
	for _, b := range p {
		s.clock(b)
	}
	return nil
}

// Transfer clocks w in and r out.
func (s *Sim) Transfer(r, w []byte) error {
	if err := s.fault(); err != nil {
		return err
	}
	if len(r) != len(w) {
		return fmt.Errorf("escsim: transfer length mismatch (r=%d, w=%d)", len(r), len(w))
	}
	for i, b := range w {
		r[i] = s.clock(b)
	}
	return nil
}

// clock processes one byte on MOSI and returns the byte on MISO.
func (s *Sim) clock(b byte) byte {
	if !s.sel {
		s.violation("byte 0x%02x clocked without chip select", b)
		return 0xff
	}

	cur := &s.cur
	cur.mosi = append(cur.mosi, b)
	i := len(cur.mosi) - 1

	if i == 0 {
		switch b {
		case regs.CMD_SERIAL_WRITE, regs.CMD_SERIAL_READ:
			cur.hdr = 3
		case regs.CMD_FAST_READ:
			cur.hdr = 4
		default:
			s.violation("unknown instruction 0x%02x", b)
		}
		return 0
	}
	if cur.hdr == 0 || i < cur.hdr {
		return 0
	}

	var (
		base = binary.BigEndian.Uint16(cur.mosi[1:3])
		d    = i - cur.hdr
		lane = d % 4
		addr = base
	)
	if !inFIFO(base) {
		addr += uint16(4 * (d / 4))
	}

	switch cur.mosi[0] {
	case regs.CMD_SERIAL_WRITE:
		if lane == 3 {
			v := binary.LittleEndian.Uint32(cur.mosi[i-3 : i+1])
			s.writeReg(addr, v)
		}
		return 0
	default:
		if lane == 0 {
			binary.LittleEndian.PutUint32(cur.out[:], s.readReg(addr))
		}
		return cur.out[lane]
	}
}

func inFIFO(addr uint16) bool {
	return addr < regs.PRAM_WR_FIFO+regs.PRAM_FIFO_SPAN
}

func (s *Sim) readReg(addr uint16) uint32 {
	switch {
	case addr < regs.PRAM_WR_FIFO:
		return s.popFIFO()
	case addr < regs.PRAM_WR_FIFO+regs.PRAM_FIFO_SPAN:
		s.violation("read from write FIFO 0x%03x", addr)
		return 0
	}

	switch addr {
	case regs.BYTE_TEST:
		return regs.BYTE_TEST_VALUE
	case regs.RESET_CTRL:
		if s.Stuck || s.reset > 0 {
			if s.reset > 0 {
				s.reset--
			}
			return regs.RESET_CTRL_RST
		}
		return 0
	case regs.CSR_DATA:
		return s.csr.data
	case regs.CSR_CMD:
		if s.Stuck || s.csr.busy > 0 {
			if s.csr.busy > 0 {
				s.csr.busy--
			}
			return s.csr.cmd | regs.CSR_CMD_BUSY
		}
		return s.csr.cmd &^ regs.CSR_CMD_BUSY
	case regs.PRAM_RD_ADDR_LEN:
		return s.rd.addrLen
	case regs.PRAM_WR_ADDR_LEN:
		return s.wr.addrLen
	case regs.PRAM_RD_CMD:
		return s.status(&s.rd)
	case regs.PRAM_WR_CMD:
		return s.status(&s.wr)
	}
	return s.sys[addr]
}

func (s *Sim) writeReg(addr uint16, v uint32) {
	switch {
	case addr < regs.PRAM_WR_FIFO:
		s.violation("write to read FIFO 0x%03x", addr)
		return
	case addr < regs.PRAM_WR_FIFO+regs.PRAM_FIFO_SPAN:
		s.pushFIFO(v)
		return
	}

	switch addr {
	case regs.BYTE_TEST:
		s.violation("write to read-only byte-test register")
	case regs.RESET_CTRL:
		if v&regs.RESET_CTRL_RST != 0 {
			s.csr.data = 0
			s.csr.cmd = 0
			s.csr.busy = 0
			s.rd = pram{}
			s.wr = pram{}
			s.reset = s.BusyPolls
		}
	case regs.CSR_DATA:
		s.csr.data = v
	case regs.CSR_CMD:
		s.csrCommand(v)
	case regs.PRAM_RD_ADDR_LEN:
		s.rd.addrLen = v
	case regs.PRAM_WR_ADDR_LEN:
		s.wr.addrLen = v
	case regs.PRAM_RD_CMD:
		s.pramCommand("read", &s.rd, v)
	case regs.PRAM_WR_CMD:
		s.pramCommand("write", &s.wr, v)
	default:
		s.sys[addr] = v
	}
}

func (s *Sim) csrCommand(v uint32) {
	s.Commands++
	if v&regs.CSR_CMD_BUSY == 0 {
		s.csr.cmd = v
		return
	}
	if s.csr.busy > 0 {
		s.violation("CSR command 0x%08x issued while busy", v)
	}
	if s.OnCommand != nil {
		s.OnCommand(s)
	}

	var (
		addr = int(v & regs.MASK_CSR_CMD_ADDR)
		code = (v >> regs.SHIFT_CSR_CMD_SIZE) & regs.MASK_CSR_CMD_SIZE
		n    int
	)
	switch code {
	case 0:
		n = 1
	case 1:
		n = 2
	case 2:
		n = 4
	default:
		s.violation("invalid CSR size code %d", code)
		return
	}
	if addr%n != 0 {
		s.violation("unaligned CSR access 0x%04x (len=%d)", addr, n)
	}
	if addr+n > len(s.Mem) {
		s.violation("CSR access 0x%04x (len=%d) out of range", addr, n)
		return
	}

	var buf [4]byte
	if v&regs.CSR_CMD_READ == regs.CSR_CMD_READ {
		copy(buf[:], s.Mem[addr:addr+n])
		s.csr.data = binary.LittleEndian.Uint32(buf[:])
	} else {
		binary.LittleEndian.PutUint32(buf[:], s.csr.data)
		copy(s.Mem[addr:addr+n], buf[:n])
	}
	s.csr.cmd = v
	s.csr.busy = s.BusyPolls
}

func (s *Sim) pramCommand(name string, e *pram, v uint32) {
	switch {
	case v&regs.PRAM_CMD_ABORT != 0:
		*e = pram{addrLen: e.addrLen, abort: s.BusyPolls}
	case v&regs.PRAM_CMD_BUSY != 0:
		if e.busy || e.abort > 0 {
			s.violation("PRAM %s started while busy", name)
		}
		var (
			addr = int(e.addrLen & 0xffff)
			n    = int(e.addrLen >> regs.SHIFT_PRAM_SIZE)
		)
		e.lo = addr
		e.hi = addr + n
		e.word = addr &^ 3
		e.busy = n > 0
		e.wait = s.BusyPolls
		e.abort = 0
	}
}

func (s *Sim) status(e *pram) uint32 {
	switch {
	case s.Stuck:
		return regs.PRAM_CMD_BUSY
	case e.abort > 0:
		e.abort--
		return regs.PRAM_CMD_BUSY
	case !e.busy:
		return 0
	case e.wait > 0:
		e.wait--
		return regs.PRAM_CMD_BUSY
	}
	cnt := min((e.hi-e.word+3)/4, fifoDepth)
	return regs.PRAM_CMD_BUSY | regs.PRAM_CMD_AVAIL | uint32(cnt)<<regs.SHIFT_PRAM_CMD_CNT
}

func (s *Sim) popFIFO() uint32 {
	e := &s.rd
	if !e.busy || e.wait > 0 {
		s.violation("read FIFO popped while empty")
		return 0
	}
	var v uint32
	for lane := 0; lane < 4; lane++ {
		addr := e.word + lane
		if e.lo <= addr && addr < e.hi {
			v |= uint32(s.Mem[addr]) << (8 * lane)
		}
	}
	e.word += 4
	if e.word >= e.hi {
		e.busy = false
	}
	return v
}

func (s *Sim) pushFIFO(v uint32) {
	e := &s.wr
	if !e.busy || e.wait > 0 {
		s.violation("write FIFO pushed while not ready (0x%08x)", v)
		return
	}
	s.FIFOWords = append(s.FIFOWords, v)
	for lane := 0; lane < 4; lane++ {
		addr := e.word + lane
		if e.lo <= addr && addr < e.hi {
			s.Mem[addr] = byte(v >> (8 * lane))
		}
	}
	e.word += 4
	if e.word >= e.hi {
		e.busy = false
	}
}
