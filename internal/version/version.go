// SPDX-License-Identifier: Apache-2.0

// Package version holds build metadata, populated via ldflags.
package version

var (
	// Version is the release version of this build.
	Version = "v1.0.0"

	// Commit is the git short hash of the build.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)
