package linesource

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"os"

	"github.com/tinytelemetry/storefeed/internal/model"
)

const (
	// DefaultStdinBuffer is the default channel buffer size for stdin lines.
	DefaultStdinBuffer = 10_000

	// DefaultStdinMaxLineSize is the default maximum size (in bytes) of a single stdin line.
	DefaultStdinMaxLineSize = 1024 * 1024 // 1MB
)

// StdinConfig holds tunable parameters for the stdin source.
type StdinConfig struct {
	BufferSize  int
	MaxLineSize int
}

// StdinSource reads product lines piped into the server.
type StdinSource struct {
	ch     chan model.IngestLine
	cancel context.CancelFunc
}

// NewStdinSource creates a StdinSource that reads from stdin in a background goroutine.
func NewStdinSource(ctx context.Context, conf ...StdinConfig) *StdinSource {
	return newStdinSourceWithReader(ctx, os.Stdin, conf...)
}

func newStdinSourceWithReader(ctx context.Context, r io.Reader, conf ...StdinConfig) *StdinSource {
	bufferSize := DefaultStdinBuffer
	maxLineSize := DefaultStdinMaxLineSize
	if len(conf) > 0 {
		if conf[0].BufferSize > 0 {
			bufferSize = conf[0].BufferSize
		}
		if conf[0].MaxLineSize > 0 {
			maxLineSize = conf[0].MaxLineSize
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &StdinSource{
		ch:     make(chan model.IngestLine, bufferSize),
		cancel: cancel,
	}
	go s.read(ctx, r, maxLineSize)
	return s
}

func (s *StdinSource) read(ctx context.Context, r io.Reader, maxLineSize int) {
	defer close(s.ch)

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineSize)

	// A single scanning goroutine; the loop below selects on ctx so Stop
	// returns even while a read is blocked.
	type scanResult struct {
		line string
		eof  bool
	}
	results := make(chan scanResult)
	go func() {
		defer close(results)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			select {
			case results <- scanResult{line: line}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				log.Printf("linesource: stdin line exceeded max size (%d bytes), stopping stdin source", maxLineSize)
			} else {
				log.Printf("linesource: stdin scanner error: %v", err)
			}
		}
		select {
		case results <- scanResult{eof: true}:
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-results:
			if !ok {
				return
			}
			msg := model.IngestLine{Source: s.Name(), Line: r.line, EOF: r.eof}
			select {
			case s.ch <- msg:
			case <-ctx.Done():
				return
			}
			if r.eof {
				return
			}
		}
	}
}

func (s *StdinSource) Lines() <-chan model.IngestLine { return s.ch }
func (s *StdinSource) Stop()                          { s.cancel() }
func (s *StdinSource) Name() string                   { return "stdin" }
