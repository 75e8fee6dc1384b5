// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the configuration for parley binaries.
//
// Configuration comes from a single file named by the PARLEY_CONFIG
// environment variable or the --config flag. There is no discovery and
// no per-field environment override: the file is the whole truth, with
// two exceptions. ${VAR} and ${VAR:-default} references in the
// signaling URL and ICE credentials are expanded from the process
// environment so TURN secrets need not live in the file, and the file
// may carry development/staging/production sections that override base
// values for the selected environment.
//
// Files ending in .json or .jsonc are read as JSON with comments and
// trailing commas (tidwall/jsonc); anything else is YAML. Both use the
// same schema, since JSON is a subset of YAML.
package config
