// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lan9252

import (
	"runtime/debug"
	"testing"
)

func TestVersion(t *testing.T) {
	const root = "github.com/go-lpc/lan9252"

	for _, tc := range []struct {
		name    string
		bi      *debug.BuildInfo
		version string
		sum     string
	}{
		{name: "nil"},
		{
			name: "no-dep",
			bi:   &debug.BuildInfo{},
		},
		{
			name: "dep",
			bi: &debug.BuildInfo{
				Deps: []*debug.Module{
					{Path: "golang.org/x/sys", Version: "v0.7.0"},
					{Path: root, Version: "v0.1.0", Sum: "h1:xxx"},
				},
			},
			version: "v0.1.0",
			sum:     "h1:xxx",
		},
		{
			name: "replace-version",
			bi: &debug.BuildInfo{
				Deps: []*debug.Module{
					{Path: root, Version: "v0.1.0", Replace: &debug.Module{Version: "v0.2.0", Sum: "h1:yyy"}},
				},
			},
			version: "v0.2.0",
			sum:     "h1:yyy",
		},
		{
			name: "replace-path",
			bi: &debug.BuildInfo{
				Deps: []*debug.Module{
					{Path: root, Version: "v0.1.0", Replace: &debug.Module{Path: "../lan9252"}},
				},
			},
			version: "../lan9252",
		},
		{
			name: "replace-path-version",
			bi: &debug.BuildInfo{
				Deps: []*debug.Module{
					{Path: root, Version: "v0.1.0", Replace: &debug.Module{Path: "example.org/fork", Version: "v0.3.0"}},
				},
			},
			version: "example.org/fork v0.3.0",
		},
		{
			name: "replace-empty",
			bi: &debug.BuildInfo{
				Deps: []*debug.Module{
					{Path: root, Version: "v0.1.0", Replace: &debug.Module{}},
				},
			},
			version: "v0.1.0*",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			version, sum := versionOf(tc.bi)
			if version != tc.version || sum != tc.sum {
				t.Fatalf("invalid version: got=(%q, %q), want=(%q, %q)", version, sum, tc.version, tc.sum)
			}
		})
	}

	_, _ = Version()
}
