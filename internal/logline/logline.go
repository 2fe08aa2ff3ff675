// Package logline implements the fixed-width line contract of CI job logs:
// every line starts with a 29-character machine prefix whose first 26
// characters are an ISO-8601 instant with microsecond precision.
package logline

import (
	"fmt"
	"strings"
	"time"
)

const (
	// PrefixLen is the width of the machine-generated line prefix
	// (timestamp plus stream-routing characters).
	PrefixLen = 29

	// TimestampLen is the number of leading characters holding the
	// ISO-8601 instant.
	TimestampLen = 26

	timestampLayout = "2006-01-02T15:04:05.999999"
)

// Payload strips the machine prefix and trailing line ending from a raw
// log line. Lines too short to carry a full prefix have no payload.
func Payload(raw string) (string, bool) {
	if len(raw) < PrefixLen {
		return "", false
	}
	return strings.TrimRight(raw[PrefixLen:], "\r\n"), true
}

// Timestamp parses the instant from the leading characters of a raw line.
func Timestamp(raw string) (time.Time, error) {
	if len(raw) < TimestampLen {
		return time.Time{}, fmt.Errorf("line too short for timestamp: %d chars", len(raw))
	}
	ts, err := time.Parse(timestampLayout, raw[:TimestampLen])
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing line timestamp: %w", err)
	}
	return ts, nil
}
