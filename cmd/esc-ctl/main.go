// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command esc-ctl is an interactive shell to inspect and modify the memory
// of an EtherCAT slave controller.
//
// Usage: esc-ctl [OPTIONS]
//
// Example:
//
//	$> esc-ctl -dev /dev/spidev0.0 -speed 10000000
//	esc> info
//	esc> read 0x0130 2
//	esc> write 0x1000 0xde 0xad 0xbe 0xef
//	esc> dump 0x1000 64
package main // import "github.com/go-lpc/lan9252/cmd/esc-ctl"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-lpc/lan9252"
	"github.com/go-lpc/lan9252/esc"
	"github.com/go-lpc/lan9252/escsrv"
	"github.com/peterh/liner"
)

func main() {
	log.SetPrefix("esc-ctl: ")
	log.SetFlags(0)

	var (
		dev     = flag.String("dev", "/dev/spidev0.0", "SPI device of the ESC")
		speed   = flag.Uint("speed", 10_000_000, "SPI clock frequency (Hz)")
		sim     = flag.Bool("sim", false, "use a simulated ESC")
		verbose = flag.Bool("v", false, "enable verbose mode")
		limit   = flag.Int("poll-limit", 100000, "maximum number of busy polls per ESC command")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `esc-ctl is an interactive shell for an EtherCAT slave controller.

Usage: esc-ctl [OPTIONS]

Example:

 $> esc-ctl -dev /dev/spidev0.0
 $> esc-ctl -sim

Options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if v, _ := lan9252.Version(); v != "" {
		log.Printf("version: %s", v)
	}

	if *sim {
		*dev = escsrv.SimDevice
	}

	err := run(*dev, uint32(*speed), *verbose, *limit)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(dev string, speed uint32, verbose bool, limit int) error {
	port, err := escsrv.OpenPort(dev, speed)
	if err != nil {
		return fmt.Errorf("could not open SPI device %q: %w", dev, err)
	}
	defer port.Close()

	drv := esc.New(
		port,
		esc.WithVerbose(verbose),
		esc.WithPollLimit(limit),
	)

	sh := newShell(drv, os.Stdout)

	term := liner.NewLiner()
	defer term.Close()
	term.SetCtrlCAborts(true)
	term.SetCompleter(sh.complete)

	hist := history()
	if f, err := os.Open(hist); err == nil {
		_, _ = term.ReadHistory(f)
		f.Close()
	}
	defer func() {
		f, err := os.Create(hist)
		if err != nil {
			log.Printf("could not save history: %+v", err)
			return
		}
		defer f.Close()
		_, _ = term.WriteHistory(f)
	}()

	for {
		line, err := term.Prompt("esc> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(sh.w)
				return nil
			}
			return fmt.Errorf("could not read command: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		err = sh.exec(line)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			log.Printf("%+v", err)
		}
	}
}

func history() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, ".esc-ctl_history")
}

var errQuit = errors.New("quit")

type shell struct {
	drv  *esc.Device
	w    io.Writer
	cmds map[string]command
}

type command struct {
	help string
	run  func(args []string) error
}

func newShell(drv *esc.Device, w io.Writer) *shell {
	sh := &shell{drv: drv, w: w}
	sh.cmds = map[string]command{
		"help":    {"print this help", sh.cmdHelp},
		"quit":    {"exit the shell", func([]string) error { return errQuit }},
		"init":    {"reset the controller and check the byte-test register", sh.cmdInit},
		"info":    {"print the controller identity", sh.cmdInfo},
		"alevent": {"print the AL-event register", sh.cmdALEvent},
		"read":    {"read ADDR [N]: read N bytes (default 1) at ADDR", sh.cmdRead},
		"write":   {"write ADDR BYTE...: write bytes at ADDR", sh.cmdWrite},
		"dump":    {"dump ADDR N: hex dump N bytes at ADDR", sh.cmdDump},
	}
	return sh
}

func (sh *shell) exec(line string) error {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return nil
	}
	cmd, ok := sh.cmds[strings.ToLower(toks[0])]
	if !ok {
		return fmt.Errorf("unknown command %q (try \"help\")", toks[0])
	}
	return cmd.run(toks[1:])
}

func (sh *shell) complete(line string) []string {
	var out []string
	for name := range sh.cmds {
		if strings.HasPrefix(name, strings.ToLower(line)) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (sh *shell) cmdHelp(args []string) error {
	names := make([]string, 0, len(sh.cmds))
	for name := range sh.cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(sh.w, "%-8s %s\n", name, sh.cmds[name].help)
	}
	return nil
}

func (sh *shell) cmdInit(args []string) error {
	err := sh.drv.Init()
	if err != nil {
		return fmt.Errorf("could not initialize ESC: %w", err)
	}
	fmt.Fprintf(sh.w, "ESC initialized\n")
	return nil
}

func (sh *shell) cmdInfo(args []string) error {
	info, err := esc.ReadInfo(sh.drv)
	if err != nil {
		return err
	}
	fmt.Fprint(sh.w, info)
	return nil
}

func (sh *shell) cmdALEvent(args []string) error {
	st, err := esc.ReadALStatus(sh.drv)
	if err != nil {
		return err
	}
	ev := sh.drv.ALEvent()
	fmt.Fprintf(sh.w, "AL event:  0x%04x%s\n", ev, alEventString(ev))
	fmt.Fprintf(sh.w, "AL status: 0x%04x\n", st)
	return nil
}

func (sh *shell) cmdRead(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: read ADDR [N]")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	n := 1
	if len(args) == 2 {
		n, err = parseLen(args[1])
		if err != nil {
			return err
		}
	}

	buf := make([]byte, n)
	err = sh.drv.Read(addr, buf)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.w, "0x%04x: % x\n", addr, buf)
	return nil
}

func (sh *shell) cmdWrite(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: write ADDR BYTE...")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}

	buf := make([]byte, len(args)-1)
	for i, arg := range args[1:] {
		v, err := strconv.ParseUint(arg, 0, 8)
		if err != nil {
			return fmt.Errorf("could not parse byte %q: %w", arg, err)
		}
		buf[i] = byte(v)
	}
	return sh.drv.Write(addr, buf)
}

func (sh *shell) cmdDump(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: dump ADDR N")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	n, err := parseLen(args[1])
	if err != nil {
		return err
	}

	buf := make([]byte, n)
	err = sh.drv.Read(addr, buf)
	if err != nil {
		return err
	}
	hexdump(sh.w, addr, buf)
	return nil
}

func parseAddr(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("could not parse address %q: %w", s, err)
	}
	return uint16(v), nil
}

func parseLen(s string) (int, error) {
	v, err := strconv.ParseUint(s, 0, 17)
	if err != nil {
		return 0, fmt.Errorf("could not parse length %q: %w", s, err)
	}
	return int(v), nil
}

func hexdump(w io.Writer, addr uint16, p []byte) {
	for i := 0; i < len(p); i += 16 {
		row := p[i:min(i+16, len(p))]
		fmt.Fprintf(w, "%04x: % -47x |", int(addr)+i, row)
		for _, b := range row {
			if b < 0x20 || b > 0x7e {
				b = '.'
			}
			fmt.Fprintf(w, "%c", b)
		}
		fmt.Fprintf(w, "|\n")
	}
}

func alEventString(ev uint16) string {
	var names []string
	for _, v := range []struct {
		bit  uint16
		name string
	}{
		{esc.ALEventControl, "al-control"},
		{esc.ALEventSMChange, "sm-change"},
		{esc.ALEventSM0, "sm0"},
		{esc.ALEventSM1, "sm1"},
		{esc.ALEventSM2, "sm2"},
		{esc.ALEventSM3, "sm3"},
	} {
		if ev&v.bit != 0 {
			names = append(names, v.name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	return " [" + strings.Join(names, "|") + "]"
}
