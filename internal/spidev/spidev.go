// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package spidev gives access to a Linux SPI device through /dev/spidevB.C.
//
// A Port gathers every byte clocked while its chip select is asserted and
// sends the whole frame on Deselect, so the kernel driver keeps the
// hardware chip select asserted for the entire frame. Received bytes are
// only available after Deselect returns.
package spidev // import "github.com/go-lpc/lan9252/internal/spidev"

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	errClosed     = errors.New("spidev: closed")
	errSelected   = errors.New("spidev: chip already selected")
	errUnselected = errors.New("spidev: chip not selected")
)

const (
	iocWrMode32   = 0x40046b05
	iocWrMaxSpeed = 0x40046b04
	iocMessage    = 0x40006b00

	iocTransferSize = 32

	// default spidev bufsiz module parameter.
	defaultBufSize = 4096
)

// iocTransfer is struct spi_ioc_transfer.
type iocTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	len         uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	wordDelay   uint8
	_           uint8
}

// xfer is one SPI_IOC_MESSAGE with a single transfer.
type xfer struct {
	tx, rx   []byte
	speed    uint32
	csChange bool // keep the chip selected after the transfer
}

var (
	ioctlSetInt = unix.IoctlSetPointerInt
	message     = sendMessage
)

func sendMessage(fd uintptr, x xfer) error {
	msg := iocTransfer{
		len:         uint32(len(x.tx)),
		speedHz:     x.speed,
		bitsPerWord: 8,
	}
	if len(x.tx) > 0 {
		msg.txBuf = uint64(uintptr(unsafe.Pointer(&x.tx[0])))
		msg.rxBuf = uint64(uintptr(unsafe.Pointer(&x.rx[0])))
	}
	if x.csChange {
		msg.csChange = 1
	}

	req := uintptr(iocMessage | iocTransferSize<<16)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(unsafe.Pointer(&msg)))
	runtime.KeepAlive(x.tx)
	runtime.KeepAlive(x.rx)
	if errno != 0 {
		return errno
	}
	return nil
}

// Option configures a Port.
type Option func(p *Port)

// WithMode sets the SPI mode (clock polarity and phase, plus the
// SPI_* flags of linux/spi/spidev.h).
func WithMode(mode uint32) Option {
	return func(p *Port) {
		p.mode = mode
	}
}

// WithSpeed sets the SPI clock frequency, in Hz.
func WithSpeed(hz uint32) Option {
	return func(p *Port) {
		p.speed = hz
	}
}

// WithBufSize sets the largest transfer the kernel accepts in a single
// message, as configured by the spidev bufsiz module parameter.
func WithBufSize(n int) Option {
	return func(p *Port) {
		p.bufsiz = n
	}
}

// Port is an SPI device with its hardware chip select.
type Port struct {
	f      *os.File
	mode   uint32
	speed  uint32
	bufsiz int

	sel  bool
	tx   []byte
	dsts []dst
}

type dst struct {
	off int
	buf []byte
}

// Open opens the named spidev device.
func Open(name string, opts ...Option) (*Port, error) {
	p := &Port{
		speed:  10_000_000,
		bufsiz: defaultBufSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufsiz <= 0 {
		return nil, fmt.Errorf("spidev: invalid buffer size %d", p.bufsiz)
	}

	f, err := os.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("spidev: could not open %q: %w", name, err)
	}

	err = ioctlSetInt(int(f.Fd()), iocWrMode32, int(p.mode))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("spidev: could not set SPI mode 0x%x: %w", p.mode, err)
	}

	err = ioctlSetInt(int(f.Fd()), iocWrMaxSpeed, int(p.speed))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("spidev: could not set SPI speed %d Hz: %w", p.speed, err)
	}

	p.f = f
	runtime.SetFinalizer(p, (*Port).Close)
	return p, nil
}

// Close closes the SPI device.
func (p *Port) Close() error {
	if p == nil {
		return os.ErrInvalid
	}
	if p.f == nil {
		return nil
	}
	f := p.f
	p.f = nil
	runtime.SetFinalizer(p, nil)

	return f.Close()
}

// Select starts a new frame.
func (p *Port) Select() error {
	switch {
	case p.f == nil:
		return errClosed
	case p.sel:
		return errSelected
	}
	p.sel = true
	p.tx = p.tx[:0]
	p.dsts = p.dsts[:0]
	return nil
}

// Write queues b in the current frame.
func (p *Port) Write(b []byte) error {
	switch {
	case p.f == nil:
		return errClosed
	case !p.sel:
		return errUnselected
	}
	p.tx = append(p.tx, b...)
	return nil
}

// Transfer queues w in the current frame. r is filled with the received
// bytes when the frame is sent, on Deselect.
func (p *Port) Transfer(r, w []byte) error {
	switch {
	case p.f == nil:
		return errClosed
	case !p.sel:
		return errUnselected
	case len(r) != len(w):
		return fmt.Errorf("spidev: transfer length mismatch (r=%d, w=%d)", len(r), len(w))
	}
	p.dsts = append(p.dsts, dst{off: len(p.tx), buf: r})
	p.tx = append(p.tx, w...)
	return nil
}

// Deselect sends the current frame and releases the chip select.
// Frames larger than the kernel buffer are split in several messages,
// all but the last one keeping the chip selected.
func (p *Port) Deselect() error {
	switch {
	case p.f == nil:
		return errClosed
	case !p.sel:
		return errUnselected
	}
	p.sel = false
	if len(p.tx) == 0 {
		return nil
	}

	var (
		fd = p.f.Fd()
		rx = make([]byte, len(p.tx))
	)
	for beg := 0; beg < len(p.tx); beg += p.bufsiz {
		end := min(beg+p.bufsiz, len(p.tx))
		err := message(fd, xfer{
			tx:       p.tx[beg:end],
			rx:       rx[beg:end],
			speed:    p.speed,
			csChange: end < len(p.tx),
		})
		if err != nil {
			return fmt.Errorf("spidev: could not send %d bytes: %w", end-beg, err)
		}
	}

	for _, d := range p.dsts {
		copy(d.buf, rx[d.off:])
	}
	return nil
}
