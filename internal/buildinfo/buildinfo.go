// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package buildinfo holds the version stamp baked into release binaries.
package buildinfo

import "fmt"

// Release builds set these through -ldflags; a plain `go build` keeps
// the development defaults.
var (
	// Version is a tag or git-describe string.
	Version = "dev"

	// Commit is the short SHA of the build commit.
	Commit = "none"

	// BuildDate is the UTC build timestamp.
	BuildDate = "unknown"
)

// String renders the stamp in the form used by --version and startup logs.
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, Commit, BuildDate)
}
