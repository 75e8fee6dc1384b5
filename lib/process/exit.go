// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the shared entrypoint error handler for parley
// binaries.
package process

import (
	"fmt"
	"os"
)

// Fatal writes "error: err" to stderr and exits with code 1. Binaries
// call it from main with the error returned by run, before or after the
// structured logger exists.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
