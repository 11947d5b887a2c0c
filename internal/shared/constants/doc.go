// Package constants centralizes defaults shared across the CLI and pipeline.
//
// File permissions, body caps and pipeline defaults live here so cmd/ and
// internal/ reference a single value without introducing import cycles.
package constants
