// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package escdb records snapshots of EtherCAT slave controllers into an
// inventory database.
package escdb // import "github.com/go-lpc/lan9252/escdb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-lpc/lan9252/esc"
	"github.com/go-sql-driver/mysql"
)

var (
	host = "localhost:3306"
	usr  = "username"
	pwd  = "s3cr3t"

	drvName = "mysql"
)

// Snapshot is the state of a controller at a given time.
type Snapshot struct {
	Time     time.Time
	Host     string // host the controller is attached to
	Device   string // SPI device of the controller
	Info     esc.Info
	ALEvent  uint16
	ALStatus uint16
}

// DB is a connection to the ESC inventory database.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens a connection to the ESC inventory database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("escdb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(dbname string) string {
	cfg := mysql.NewConfig()
	cfg.User = usr
	cfg.Passwd = pwd
	cfg.Net = "tcp"
	cfg.Addr = host
	cfg.DBName = dbname
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("escdb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Record inserts snap into the inventory.
func (db *DB) Record(ctx context.Context, snap Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if snap.Time.IsZero() {
		snap.Time = time.Now().UTC()
	}

	_, err := db.db.ExecContext(
		ctx,
		`INSERT INTO esc_inventory
		(datetime, host, device, type, revision, build, fmmus, syncmgrs, ramsize, portdesc, features, alevent, alstatus)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Time, snap.Host, snap.Device,
		snap.Info.Type, snap.Info.Revision, snap.Info.Build,
		snap.Info.FMMUs, snap.Info.SyncMgrs, snap.Info.RAMSize,
		snap.Info.PortDesc, snap.Info.Features,
		snap.ALEvent, snap.ALStatus,
	)
	if err != nil {
		return fmt.Errorf("escdb: could not record snapshot of %s:%s: %w", snap.Host, snap.Device, err)
	}
	return nil
}

// Last returns the most recent snapshot recorded for device.
func (db *DB) Last(ctx context.Context, device string) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		snap Snapshot
		n    int
	)
	rows, err := db.db.QueryContext(
		ctx,
		`SELECT datetime, host, device, type, revision, build, fmmus, syncmgrs, ramsize, portdesc, features, alevent, alstatus
		FROM esc_inventory WHERE device=? ORDER BY datetime DESC LIMIT 1`,
		device,
	)
	if err != nil {
		return snap, fmt.Errorf("escdb: could not query snapshot of %q: %w", device, err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(
			&snap.Time, &snap.Host, &snap.Device,
			&snap.Info.Type, &snap.Info.Revision, &snap.Info.Build,
			&snap.Info.FMMUs, &snap.Info.SyncMgrs, &snap.Info.RAMSize,
			&snap.Info.PortDesc, &snap.Info.Features,
			&snap.ALEvent, &snap.ALStatus,
		)
		if err != nil {
			return snap, fmt.Errorf("escdb: could not get snapshot of %q: %w", device, err)
		}
		n++
	}

	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("escdb: could not scan db for snapshot of %q: %w", device, err)
	}

	if err := ctx.Err(); err != nil {
		return snap, fmt.Errorf("escdb: context error while retrieving snapshot of %q: %w", device, err)
	}

	if n == 0 {
		return snap, fmt.Errorf("escdb: no snapshot for %q: %w", device, sql.ErrNoRows)
	}

	return snap, nil
}
