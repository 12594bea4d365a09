// Package telemetry is the seam to an external error-reporting service.
// The bot only ever hands errors to a Reporter; wiring a real SDK behind
// the interface is a deployment concern.
package telemetry

import (
	. "github.com/vgrebnev/teleassist/internal/logging"
)

// Reporter receives errors that escaped normal handling.
type Reporter interface {
	CaptureError(err error, context map[string]string)
}

// LogReporter writes captured errors to the log. It is the default when
// no external reporting service is configured.
type LogReporter struct{}

func (LogReporter) CaptureError(err error, context map[string]string) {
	args := []interface{}{"error", err}
	for k, v := range context {
		args = append(args, k, v)
	}
	L_error("telemetry: captured error", args...)
}

// Nop discards everything.
type Nop struct{}

func (Nop) CaptureError(error, map[string]string) {}
