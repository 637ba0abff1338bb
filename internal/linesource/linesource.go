// Package linesource adapts streaming product inputs (TCP, stdin) to one
// channel-based interface.
package linesource

import "github.com/tinytelemetry/storefeed/internal/model"

// LineSource is a unified interface for streaming inputs.
type LineSource interface {
	Lines() <-chan model.IngestLine // read-only channel of lines
	Stop()                          // graceful shutdown
	Name() string                   // "tcp", "stdin"
}
