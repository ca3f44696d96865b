// grealth - Command line client for the Grealth health assistant.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"runtime/debug"

	"github.com/Anthonyvijay10/GrealthAI/internal/cli"
)

// Set at build time:
// go build -ldflags "-X main.version=0.2.0 -X main.commit=abc1234 -X main.date=2025-06-01"
var (
	version = "0.1.0"
	commit  = "none"
	date    = "unknown"
)

func init() {
	if commit == "none" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" && len(s.Value) >= 7 {
					commit = s.Value[:7]
					break
				}
			}
		}
	}
}

func main() {
	cli.Execute(version, commit, date)
}
