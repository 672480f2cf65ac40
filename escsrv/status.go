// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package escsrv

import (
	"bytes"
	"fmt"

	"github.com/go-daq/tdaq"
)

// Status is the state of an ESC as published on the status output.
type Status struct {
	Seq       uint64 // status frame number within the run
	ALEvent   uint16
	ALStatus  uint16
	DLStatus  uint16
	LocalTime uint32 // ns
}

func (st Status) MarshalTDAQ() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := tdaq.NewEncoder(buf)
	enc.WriteU64(st.Seq)
	enc.WriteU16(st.ALEvent)
	enc.WriteU16(st.ALStatus)
	enc.WriteU16(st.DLStatus)
	enc.WriteU32(st.LocalTime)
	return buf.Bytes(), enc.Err()
}

func (st *Status) UnmarshalTDAQ(p []byte) error {
	dec := tdaq.NewDecoder(bytes.NewReader(p))
	st.Seq = dec.ReadU64()
	st.ALEvent = dec.ReadU16()
	st.ALStatus = dec.ReadU16()
	st.DLStatus = dec.ReadU16()
	st.LocalTime = dec.ReadU32()
	return dec.Err()
}

func (st Status) String() string {
	return fmt.Sprintf(
		"status[%d]: al-event=0x%04x al-status=0x%04x dl-status=0x%04x local-time=%d",
		st.Seq, st.ALEvent, st.ALStatus, st.DLStatus, st.LocalTime,
	)
}
