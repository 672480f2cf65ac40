// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command esc-dump prints the identity, the AL registers and a region of
// the memory of an EtherCAT slave controller.
//
// Usage: esc-dump [OPTIONS]
//
// Example:
//
//	$> esc-dump -dev /dev/spidev0.0 -addr 0x1000 -n 128
//	$> esc-dump -sim -db esc
package main // import "github.com/go-lpc/lan9252/cmd/esc-dump"

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-lpc/lan9252/esc"
	"github.com/go-lpc/lan9252/escdb"
	"github.com/go-lpc/lan9252/escsrv"
)

func main() {
	log.SetPrefix("esc-dump: ")
	log.SetFlags(0)

	var (
		dev    = flag.String("dev", "/dev/spidev0.0", "SPI device of the ESC")
		speed  = flag.Uint("speed", 10_000_000, "SPI clock frequency (Hz)")
		sim    = flag.Bool("sim", false, "use a simulated ESC")
		addr   = flag.String("addr", "0x0000", "first address to dump")
		n      = flag.Int("n", 0, "number of bytes to dump")
		db     = flag.String("db", "", "name of the inventory DB to record the snapshot into")
		doInit = flag.Bool("init", true, "reset the controller before dumping")
	)

	flag.Parse()

	if *sim {
		*dev = escsrv.SimDevice
	}

	beg, err := strconv.ParseUint(*addr, 0, 16)
	if err != nil {
		log.Fatalf("could not parse address %q: %+v", *addr, err)
	}

	port, err := escsrv.OpenPort(*dev, uint32(*speed))
	if err != nil {
		log.Fatalf("could not open SPI device %q: %+v", *dev, err)
	}
	defer port.Close()

	drv := esc.New(port)
	if *doInit {
		err = drv.Init()
		if err != nil {
			log.Fatalf("could not initialize ESC: %+v", err)
		}
	}

	var rec recorder
	if *db != "" {
		edb, err := escdb.Open(*db)
		if err != nil {
			log.Fatalf("could not open inventory db: %+v", err)
		}
		defer edb.Close()
		rec = edb
	}

	err = process(os.Stdout, drv, *dev, uint16(beg), *n, rec)
	if err != nil {
		log.Fatalf("could not dump ESC: %+v", err)
	}
}

type recorder interface {
	Record(ctx context.Context, snap escdb.Snapshot) error
}

func process(w io.Writer, drv *esc.Device, dev string, addr uint16, n int, rec recorder) error {
	snap, err := snapshot(drv, dev)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "device:        %s\n", dev)
	fmt.Fprint(w, snap.Info)
	fmt.Fprintf(w, "AL event:      0x%04x\n", snap.ALEvent)
	fmt.Fprintf(w, "AL status:     0x%04x\n", snap.ALStatus)

	if n > 0 {
		buf := make([]byte, n)
		err = drv.Read(addr, buf)
		if err != nil {
			return fmt.Errorf("could not read 0x%04x (len=%d): %w", addr, n, err)
		}
		fmt.Fprintf(w, "memory @0x%04x:\n", addr)
		_, err = io.WriteString(w, hex.Dump(buf))
		if err != nil {
			return fmt.Errorf("could not write hex dump: %w", err)
		}
	}

	if rec == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = rec.Record(ctx, snap)
	if err != nil {
		return fmt.Errorf("could not record snapshot: %w", err)
	}
	return nil
}

func snapshot(drv *esc.Device, dev string) (escdb.Snapshot, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}

	snap := escdb.Snapshot{
		Time:   time.Now().UTC(),
		Host:   host,
		Device: dev,
	}

	snap.Info, err = esc.ReadInfo(drv)
	if err != nil {
		return snap, err
	}

	snap.ALStatus, err = esc.ReadALStatus(drv)
	if err != nil {
		return snap, err
	}
	snap.ALEvent = drv.ALEvent()

	return snap, nil
}
