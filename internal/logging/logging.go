// Package logging provides the structured, leveled logger shared by every
// node component, built on zerolog the way the teacher's diagnostic prints
// were meant to be replaced.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a console-friendly logger for the given component name.
func New(component string) zerolog.Logger {
	return NewWithWriter(os.Stderr, component)
}

// NewWithWriter builds a logger writing to an arbitrary sink, useful for tests.
func NewWithWriter(w io.Writer, component string) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(console).With().
		Timestamp().
		Str("component", component).
		Logger()
}

// Fault is the single structured line emitted for every fault kind the node
// recognizes, per the disconnect/error taxonomy: protocol violation, timeout,
// validation failure, resource exhaustion, database/verification fault.
func Fault(log zerolog.Logger, kind string, peerID string, err error) {
	ev := log.Warn().Str("fault_kind", kind)
	if peerID != "" {
		ev = ev.Str("peer_id", peerID)
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("fault")
}
