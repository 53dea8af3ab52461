package utils

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateOnly    = "2006-01-02"
	DateTime    = "2006-01-02 15:04"
	DateTimeSec = "2006-01-02 15:04:05"
)

// Dash stands in for absent values.
const Dash = "—"

// TimeOrDash formats a time value using the given layout, or returns "—" if zero.
func TimeOrDash(t time.Time, layout string) string {
	if t.IsZero() {
		return Dash
	}
	return t.Format(layout)
}

// OrDash returns s, or "—" if s is empty.
func OrDash(s string) string {
	if s == "" {
		return Dash
	}
	return s
}

// ListOrDash joins values with ", ", or returns "—" for an empty list.
func ListOrDash(values []string) string {
	if len(values) == 0 {
		return Dash
	}
	return strings.Join(values, ", ")
}

// Endpoint formats a protocol/port pair as "HTTP:80".
func Endpoint(protocol string, port int32) string {
	return fmt.Sprintf("%s:%d", protocol, port)
}
