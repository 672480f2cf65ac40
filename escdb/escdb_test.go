// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package escdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/lan9252/esc"
	"github.com/go-lpc/lan9252/internal/fakedb"
)

func init() {
	drvName = "fakedb"
}

func TestDSN(t *testing.T) {
	got := dsn("esc")
	want := "username:s3cr3t@tcp(localhost:3306)/esc?parseTime=true"
	if got != want {
		t.Fatalf("invalid DSN:\ngot= %q\nwant=%q", got, want)
	}
}

func TestOpen(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open escdb: %+v", err)
	}
	defer db.Close()
}

var info = esc.Info{
	Type:     0xc0,
	Revision: 0x02,
	Build:    0x0001,
	FMMUs:    3,
	SyncMgrs: 4,
	RAMSize:  4,
	PortDesc: 0x0f,
	Features: 0x01fc,
}

func TestRecord(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open escdb: %+v", err)
	}
	defer db.Close()

	now := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	_ = fakedb.Run(context.Background(), fakedb.Rows{}, func(ctx context.Context) error {
		err := db.Record(ctx, Snapshot{
			Time:     now,
			Host:     "rpi-01",
			Device:   "/dev/spidev0.0",
			Info:     info,
			ALEvent:  0x0004,
			ALStatus: 0x0008,
		})
		if err != nil {
			t.Fatalf("could not record snapshot: %+v", err)
		}

		execs := fakedb.Execs()
		if got, want := len(execs), 1; got != want {
			t.Fatalf("invalid number of statements: got=%d, want=%d", got, want)
		}
		if !strings.HasPrefix(execs[0].Query, "INSERT INTO esc_inventory") {
			t.Fatalf("invalid statement: %q", execs[0].Query)
		}
		args := execs[0].Args
		if got, want := len(args), 13; got != want {
			t.Fatalf("invalid number of arguments: got=%d, want=%d", got, want)
		}
		if got, want := args[0], driver.Value(now); got != want {
			t.Fatalf("invalid time: got=%v, want=%v", got, want)
		}
		if got, want := args[2], driver.Value("/dev/spidev0.0"); got != want {
			t.Fatalf("invalid device: got=%v, want=%v", got, want)
		}
		if got, want := args[3], driver.Value(int64(0xc0)); got != want {
			t.Fatalf("invalid type: got=%v, want=%v", got, want)
		}
		if got, want := args[12], driver.Value(int64(0x0008)); got != want {
			t.Fatalf("invalid AL status: got=%v, want=%v", got, want)
		}
		return nil
	})
}

func TestRecordError(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open escdb: %+v", err)
	}
	defer db.Close()

	want := errors.New("db is read-only")
	_ = fakedb.Fail(context.Background(), want, func(ctx context.Context) error {
		err := db.Record(ctx, Snapshot{Host: "rpi-01", Device: "sim"})
		if !errors.Is(err, want) {
			t.Fatalf("invalid error: got=%+v, want=%+v", err, want)
		}
		return nil
	})
}

func TestLast(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open escdb: %+v", err)
	}
	defer db.Close()

	now := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{
			"datetime", "host", "device", "type", "revision", "build",
			"fmmus", "syncmgrs", "ramsize", "portdesc", "features",
			"alevent", "alstatus",
		},
		Values: [][]driver.Value{
			{
				now, "rpi-01", "/dev/spidev0.0", int64(0xc0), int64(0x02), int64(0x0001),
				int64(3), int64(4), int64(4), int64(0x0f), int64(0x01fc),
				int64(0x0004), int64(0x0008),
			},
		},
	}, func(ctx context.Context) error {
		snap, err := db.Last(ctx, "/dev/spidev0.0")
		if err != nil {
			t.Fatalf("could not retrieve last snapshot: %+v", err)
		}

		want := Snapshot{
			Time:     now,
			Host:     "rpi-01",
			Device:   "/dev/spidev0.0",
			Info:     info,
			ALEvent:  0x0004,
			ALStatus: 0x0008,
		}
		if snap != want {
			t.Fatalf("invalid snapshot:\ngot= %+v\nwant=%+v", snap, want)
		}
		return nil
	})

	_ = fakedb.Run(context.Background(), fakedb.Rows{}, func(ctx context.Context) error {
		_, err := db.Last(ctx, "/dev/spidev0.1")
		if !errors.Is(err, sql.ErrNoRows) {
			t.Fatalf("invalid error: got=%+v, want=%+v", err, sql.ErrNoRows)
		}
		return nil
	})
}
