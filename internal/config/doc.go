// Package config loads and validates the YAML configuration file.
//
// The file is validated against an embedded CUE schema before decoding, so
// a typo'd key or a malformed duration fails at startup with a precise
// message instead of surfacing later as a zero value.
package config
