// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package escsrv

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/go-daq/tdaq"
	tlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/lan9252/esc"
	"github.com/go-lpc/lan9252/esc/escsim"
	mail "gopkg.in/gomail.v2"
)

type alert struct {
	subject string
	body    string
}

func newTestServer(t *testing.T) (*Server, *escsim.Sim, *[]alert) {
	t.Helper()

	var (
		sim    = escsim.New()
		alerts []alert
		srv    = New(
			SimDevice, 0, time.Millisecond,
			esc.WithLogger(log.New(io.Discard, "esc: ", 0)),
			esc.WithPollLimit(50),
		)
	)
	srv.open = func(dev string, speed uint32) (Port, error) {
		return simPort{sim}, nil
	}
	srv.alert = func(subject, body string) {
		alerts = append(alerts, alert{subject, body})
	}
	return srv, sim, &alerts
}

func newTestContext(ctx context.Context) tdaq.Context {
	return tdaq.Context{
		Ctx: ctx,
		Msg: tlog.NewMsgStream("esc-srv", tlog.LvlDebug, io.Discard),
	}
}

func TestServer(t *testing.T) {
	srv, sim, alerts := newTestServer(t)
	ctx := newTestContext(context.Background())

	var resp tdaq.Frame
	for _, tc := range []struct {
		name string
		f    func(tdaq.Context, *tdaq.Frame, tdaq.Frame) error
	}{
		{"/config", srv.OnConfig},
		{"/init", srv.OnInit},
		{"/start", srv.OnStart},
	} {
		err := tc.f(ctx, &resp, tdaq.Frame{})
		if err != nil {
			t.Fatalf("could not run %s: %+v", tc.name, err)
		}
	}

	if !strings.Contains(string(resp.Body), "type:          0xc0") {
		t.Fatalf("invalid /init reply:\n%s", resp.Body)
	}

	sim.SetALEvent(esc.ALEventSM2)
	binary.LittleEndian.PutUint16(sim.Mem[esc.RegALStatus:], 0x0002)

	const n = 3
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(sim.Mem[esc.RegLocalTime:], uint32(1000*i))
		err := srv.tick(ctx)
		if err != nil {
			t.Fatalf("could not poll ESC: %+v", err)
		}
	}

	for i := 0; i < n; i++ {
		var dst tdaq.Frame
		err := srv.Status(ctx, &dst)
		if err != nil {
			t.Fatalf("could not get status frame: %+v", err)
		}

		var st Status
		err = st.UnmarshalTDAQ(dst.Body)
		if err != nil {
			t.Fatalf("could not decode status frame: %+v", err)
		}

		want := Status{
			Seq:       uint64(i),
			ALEvent:   esc.ALEventSM2,
			ALStatus:  0x0002,
			DLStatus:  0x0001,
			LocalTime: uint32(1000 * i),
		}
		if st != want {
			t.Fatalf("invalid status:\ngot= %v\nwant=%v", st, want)
		}
	}

	sim.Stuck = true
	for i := 0; i < 2; i++ {
		err := srv.tick(ctx)
		if !errors.Is(err, esc.ErrTimeout) {
			t.Fatalf("invalid poll error: got=%+v, want=%+v", err, esc.ErrTimeout)
		}
	}
	if got, want := len(*alerts), 1; got != want {
		t.Fatalf("invalid number of alerts: got=%d, want=%d", got, want)
	}
	if got, want := (*alerts)[0].subject, `[esc-srv] device "sim" unresponsive`; got != want {
		t.Fatalf("invalid alert subject: got=%q, want=%q", got, want)
	}
	sim.Stuck = false

	for _, tc := range []struct {
		name string
		f    func(tdaq.Context, *tdaq.Frame, tdaq.Frame) error
	}{
		{"/stop", srv.OnStop},
		{"/reset", srv.OnReset},
	} {
		err := tc.f(ctx, &resp, tdaq.Frame{})
		if err != nil {
			t.Fatalf("could not run %s: %+v", tc.name, err)
		}
	}

	err := srv.tick(ctx)
	if err != nil {
		t.Fatalf("could not tick stopped server: %+v", err)
	}
	if got := len(srv.data); got != 0 {
		t.Fatalf("stopped server published %d frames", got)
	}

	err = srv.OnQuit(ctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /quit: %+v", err)
	}
	err = srv.OnQuit(ctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /quit twice: %+v", err)
	}
}

func TestRun(t *testing.T) {
	srv, _, _ := newTestServer(t)
	cctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx := newTestContext(cctx)

	var resp tdaq.Frame
	for _, f := range []func(tdaq.Context, *tdaq.Frame, tdaq.Frame) error{
		srv.OnConfig, srv.OnInit, srv.OnStart,
	} {
		err := f(ctx, &resp, tdaq.Frame{})
		if err != nil {
			t.Fatalf("could not prepare server: %+v", err)
		}
	}

	errc := make(chan error)
	go func() {
		errc <- srv.Run(ctx)
	}()

	var dst tdaq.Frame
	err := srv.Status(ctx, &dst)
	if err != nil {
		t.Fatalf("could not get status frame: %+v", err)
	}
	if len(dst.Body) == 0 {
		t.Fatalf("empty status frame")
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("could not run server: %+v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}

	err = srv.Status(ctx, &dst)
	if err != nil {
		t.Fatalf("could not get status after cancel: %+v", err)
	}
}

func TestServerErrors(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx := newTestContext(context.Background())

	var resp tdaq.Frame
	for _, tc := range []struct {
		name string
		f    func(tdaq.Context, *tdaq.Frame, tdaq.Frame) error
	}{
		{"/init", srv.OnInit},
		{"/start", srv.OnStart},
	} {
		err := tc.f(ctx, &resp, tdaq.Frame{})
		if err == nil {
			t.Fatalf("%s: expected an error", tc.name)
		}
	}

	want := fmt.Errorf("no such device")
	srv.open = func(dev string, speed uint32) (Port, error) {
		return nil, want
	}
	err := srv.OnConfig(ctx, &resp, tdaq.Frame{})
	if !errors.Is(err, want) {
		t.Fatalf("invalid /config error: got=%+v, want=%+v", err, want)
	}
}

func TestOpenPort(t *testing.T) {
	p, err := OpenPort(SimDevice, 0)
	if err != nil {
		t.Fatalf("could not open simulated port: %+v", err)
	}
	defer p.Close()

	dev := esc.New(p, esc.WithLogger(log.New(io.Discard, "", 0)))
	err = dev.Init()
	if err != nil {
		t.Fatalf("could not init simulated ESC: %+v", err)
	}

	_, err = OpenPort("/dev/not-there", 1000)
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestAlertMail(t *testing.T) {
	defer func(usr, pwd, srv string, port int, tgts []string) {
		alertMailUsr = usr
		alertMailPwd = pwd
		alertMailSrv = srv
		alertMailPort = port
		alertMailTgts = tgts
	}(alertMailUsr, alertMailPwd, alertMailSrv, alertMailPort, alertMailTgts)

	var sent []*mail.Message
	defer func(f func(*mail.Dialer, ...*mail.Message) error) {
		dialAndSend = f
	}(dialAndSend)
	dialAndSend = func(d *mail.Dialer, msgs ...*mail.Message) error {
		if d.Host != "smtp.example.org" || d.Port != 587 {
			t.Errorf("invalid dialer: %s:%d", d.Host, d.Port)
		}
		sent = append(sent, msgs...)
		return nil
	}

	alertMailUsr = ""
	alertMail("subject", "body")
	if len(sent) != 0 {
		t.Fatalf("mail sent without credentials")
	}

	alertMailUsr = "esc@example.org"
	alertMailPwd = "s3cr3t"
	alertMailSrv = "smtp.example.org"
	alertMailPort = atoi("587")
	alertMailTgts = targets("ops@example.org, ,daq@example.org")

	alertMail("[esc-srv] alert", "body")
	if got, want := len(sent), 1; got != want {
		t.Fatalf("invalid number of mails: got=%d, want=%d", got, want)
	}
	if got, want := sent[0].GetHeader("Subject"), []string{"[esc-srv] alert"}; !equalStrs(got, want) {
		t.Fatalf("invalid subject: got=%q, want=%q", got, want)
	}
	if got, want := sent[0].GetHeader("Bcc"), []string{"ops@example.org", "daq@example.org"}; !equalStrs(got, want) {
		t.Fatalf("invalid targets: got=%q, want=%q", got, want)
	}
}

func equalStrs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
