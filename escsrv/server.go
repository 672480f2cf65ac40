// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package escsrv exposes an EtherCAT slave controller as a TDAQ
// run-control process.
package escsrv // import "github.com/go-lpc/lan9252/escsrv"

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/lan9252/esc"
	"github.com/go-lpc/lan9252/esc/escsim"
	"github.com/go-lpc/lan9252/internal/spidev"
)

// SimDevice is the device name selecting a simulated controller.
const SimDevice = "sim"

// Port is an SPI port that can be closed.
type Port interface {
	esc.Port
	io.Closer
}

type simPort struct {
	*escsim.Sim
}

func (simPort) Close() error { return nil }

// OpenPort opens the SPI port named dev, or a simulated controller when
// dev is SimDevice.
func OpenPort(dev string, speed uint32) (Port, error) {
	if dev == SimDevice {
		return simPort{escsim.New()}, nil
	}
	p, err := spidev.Open(dev, spidev.WithSpeed(speed))
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Server drives an ESC for a TDAQ run-control.
type Server struct {
	dev   string
	speed uint32
	freq  time.Duration
	opts  []esc.Option

	open  func(dev string, speed uint32) (Port, error)
	alert func(subject, body string)

	mu    sync.Mutex
	port  Port
	drv   *esc.Device
	info  esc.Info
	run   bool
	seq   uint64
	fired bool // alert sent during the current run

	data chan []byte
}

// New returns a run-control server for the controller behind the SPI
// device dev, polled every freq once a run is started.
func New(dev string, speed uint32, freq time.Duration, opts ...esc.Option) *Server {
	return &Server{
		dev:   dev,
		speed: speed,
		freq:  freq,
		opts:  opts,
		open:  OpenPort,
		alert: alertMail,
		data:  make(chan []byte, 1024),
	}
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.port != nil {
		_ = srv.port.Close()
		srv.port = nil
		srv.drv = nil
	}

	port, err := srv.open(srv.dev, srv.speed)
	if err != nil {
		ctx.Msg.Errorf("could not open SPI device %q: %+v", srv.dev, err)
		return fmt.Errorf("could not open SPI device %q: %w", srv.dev, err)
	}
	srv.port = port
	srv.drv = esc.New(port, srv.opts...)
	ctx.Msg.Infof("opened SPI device %q (speed=%d Hz)", srv.dev, srv.speed)

	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.drv == nil {
		ctx.Msg.Errorf("no ESC configured")
		return fmt.Errorf("no ESC configured")
	}

	err := srv.drv.Init()
	if err != nil {
		ctx.Msg.Errorf("could not initialize ESC: %+v", err)
		return fmt.Errorf("could not initialize ESC: %w", err)
	}

	_, err = esc.WaitReady(srv.drv, srv.opts...)
	if err != nil {
		ctx.Msg.Errorf("could not wait for ESC: %+v", err)
		return fmt.Errorf("could not wait for ESC: %w", err)
	}

	srv.info, err = esc.ReadInfo(srv.drv)
	if err != nil {
		ctx.Msg.Errorf("could not read ESC info: %+v", err)
		return fmt.Errorf("could not read ESC info: %w", err)
	}
	ctx.Msg.Infof(
		"ESC type=0x%02x rev=0x%02x build=0x%04x FMMUs=%d SMs=%d RAM=%dKiB",
		srv.info.Type, srv.info.Revision, srv.info.Build,
		srv.info.FMMUs, srv.info.SyncMgrs, srv.info.RAMSize,
	)

	resp.Body = []byte(srv.info.String())
	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.run = false
	srv.seq = 0
	srv.data = make(chan []byte, 1024)

	if srv.drv == nil {
		return nil
	}
	err := srv.drv.Reset()
	if err != nil {
		ctx.Msg.Errorf("could not reset ESC: %+v", err)
		return fmt.Errorf("could not reset ESC: %w", err)
	}
	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.drv == nil {
		ctx.Msg.Errorf("no ESC configured")
		return fmt.Errorf("no ESC configured")
	}
	srv.run = true
	srv.fired = false
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	ctx.Msg.Debugf("received /stop command... -> n=%d", srv.seq)
	srv.run = false
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.run = false
	srv.drv = nil
	if srv.port == nil {
		return nil
	}
	err := srv.port.Close()
	srv.port = nil
	if err != nil {
		ctx.Msg.Errorf("could not close SPI device %q: %+v", srv.dev, err)
		return fmt.Errorf("could not close SPI device %q: %w", srv.dev, err)
	}
	return nil
}

// Status publishes the ESC status frames polled during a run.
func (srv *Server) Status(ctx tdaq.Context, dst *tdaq.Frame) error {
	srv.mu.Lock()
	data := srv.data
	srv.mu.Unlock()

	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case raw := <-data:
		dst.Body = raw
	}
	return nil
}

// Run polls the ESC while a run is started.
func (srv *Server) Run(ctx tdaq.Context) error {
	tck := time.NewTicker(srv.freq)
	defer tck.Stop()

	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		case <-tck.C:
			err := srv.tick(ctx)
			if err != nil {
				ctx.Msg.Errorf("could not poll ESC: %+v", err)
			}
		}
	}
}

func (srv *Server) tick(ctx tdaq.Context) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if !srv.run || srv.drv == nil {
		return nil
	}

	st, err := srv.poll()
	if err != nil {
		if errors.Is(err, esc.ErrTimeout) && !srv.fired {
			srv.fired = true
			srv.alert(
				fmt.Sprintf("[esc-srv] device %q unresponsive", srv.dev),
				fmt.Sprintf("device: %q\nstatus: #%d\nerror: %+v", srv.dev, srv.seq, err),
			)
		}
		return err
	}

	raw, err := st.MarshalTDAQ()
	if err != nil {
		return fmt.Errorf("could not encode status frame: %w", err)
	}

	select {
	case srv.data <- raw:
	default:
		ctx.Msg.Infof("status frame #%d dropped", st.Seq)
	}
	return nil
}

// poll reads the status registers of the ESC.
func (srv *Server) poll() (Status, error) {
	var (
		st  = Status{Seq: srv.seq}
		buf [2]byte
		err error
	)

	err = srv.drv.Read(esc.RegDLStatus, buf[:])
	if err != nil {
		return st, fmt.Errorf("could not read DL status: %w", err)
	}
	st.DLStatus = uint16(buf[0]) | uint16(buf[1])<<8

	st.ALStatus, err = esc.ReadALStatus(srv.drv)
	if err != nil {
		return st, err
	}

	st.LocalTime, err = esc.ReadLocalTime(srv.drv)
	if err != nil {
		return st, err
	}

	st.ALEvent = srv.drv.ALEvent()
	srv.seq++
	return st, nil
}
