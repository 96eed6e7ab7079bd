package cruncher

import (
	"math"
	"strings"
)

// Size units accepted by Base64Size. Matching is case-insensitive.
const (
	UnitBytes = "bytes"
	UnitKB    = "kb"
	UnitMB    = "mb"
)

// DecodedBytes estimates the decoded size of a base64 payload. A data URI
// header, if any, is ignored. Malformed input gives a best-effort number that
// may be negative.
func DecodedBytes(b64 string) int {
	payload := stripMetadata(b64)

	padding := len(payload) - len(strings.TrimRight(payload, "="))

	return len(payload)*3/4 - padding
}

// Base64Size returns the decoded size of b64 in the given unit. An empty unit
// means kilobytes; unrecognized units are answered in megabytes. Bytes and
// kilobytes are rounded to integers, megabytes to two decimals.
func Base64Size(b64 string, unit string) float64 {
	size := float64(DecodedBytes(b64))

	if unit == "" {
		unit = UnitKB
	}

	switch strings.ToLower(unit) {
	case UnitBytes:
		return math.Round(size)
	case UnitKB:
		return math.Round(size / 1024)
	default:
		return math.Round(size/(1024*1024)*100) / 100
	}
}

// stripMetadata drops everything up to the first comma. Without a comma, or
// with nothing after it, the input is used as is.
func stripMetadata(s string) string {
	_, rest, found := strings.Cut(s, ",")
	if !found {
		return s
	}

	if idx := strings.IndexByte(rest, ','); idx != -1 {
		rest = rest[:idx]
	}
	if rest == "" {
		return s
	}

	return rest
}

// NormalizeUnit returns the unit Base64Size answers in for the given input.
func NormalizeUnit(unit string) string {
	switch u := strings.ToLower(unit); u {
	case "":
		return UnitKB
	case UnitBytes, UnitKB:
		return u
	default:
		return UnitMB
	}
}
