// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command esc-srv starts a TDAQ server driving an EtherCAT slave controller.
//
// Usage: esc-srv [OPTIONS] [SPI-DEVICE]
//
// The SPI device defaults to /dev/spidev0.0. The "sim" device runs against
// a simulated controller.
package main // import "github.com/go-lpc/lan9252/cmd/esc-srv"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/lan9252"
	"github.com/go-lpc/lan9252/esc"
	"github.com/go-lpc/lan9252/escsrv"
	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"
)

var (
	doMon  = flag.Bool("pmon", false, "enable pmon monitoring")
	doFreq = flag.Duration("freq", 1*time.Second, "pmon frequency")
	speed  = flag.Uint("speed", 10_000_000, "SPI clock frequency (Hz)")
	period = flag.Duration("poll", 100*time.Millisecond, "ESC polling period during a run")
	limit  = flag.Int("poll-limit", 100000, "maximum number of busy polls per ESC command")
)

func main() {
	cmd := flags.New()

	log.SetPrefix("esc-srv: ")
	log.SetFlags(0)

	if v, _ := lan9252.Version(); v != "" {
		log.Printf("version: %s", v)
	}

	dev := "/dev/spidev0.0"
	if len(cmd.Args) > 0 {
		dev = cmd.Args[0]
	}

	dir := os.Getenv("ESCLOGDIR")
	if dir == "" {
		dir = os.TempDir()
	}

	esrv := escsrv.New(
		dev, uint32(*speed), *period,
		esc.WithPollLimit(*limit),
	)

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", esrv.OnConfig)
	srv.CmdHandle("/init", esrv.OnInit)
	srv.CmdHandle("/reset", esrv.OnReset)
	srv.CmdHandle("/start", esrv.OnStart)
	srv.CmdHandle("/stop", esrv.OnStop)
	srv.CmdHandle("/quit", esrv.OnQuit)

	srv.OutputHandle("/esc-status", esrv.Status)

	srv.RunHandle(esrv.Run)

	err := run(srv, dir)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(srv *tdaq.Server, dir string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var grp errgroup.Group
	grp.Go(func() error {
		defer cancel()
		err := srv.Run(ctx)
		if err != nil {
			return fmt.Errorf("could not run esc-srv: %w", err)
		}
		return nil
	})

	if *doMon {
		p, err := pmon.Monitor(os.Getpid())
		if err != nil {
			return fmt.Errorf("could not start monitoring esc-srv: %w", err)
		}
		f, err := os.Create(filepath.Join(dir, "esc-srv-pmon.log"))
		if err != nil {
			return fmt.Errorf("could not create pmon log file: %w", err)
		}
		defer f.Close()
		p.W = f
		p.Freq = *doFreq

		grp.Go(func() error {
			go func() {
				<-ctx.Done()
				err := p.Kill()
				if err != nil {
					log.Printf("could not stop monitoring: %+v", err)
				}
			}()

			log.Printf("run pmon...")
			err := p.Run()
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("could not monitor esc-srv: %w", err)
			}
			return nil
		})
	}

	return grp.Wait()
}
