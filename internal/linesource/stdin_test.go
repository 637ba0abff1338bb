package linesource

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/storefeed/internal/model"
)

func TestStdinSourceStopClosesLines(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer func() { _ = w.Close() }()

	src := newStdinSourceWithReader(context.Background(), r)
	src.Stop()

	select {
	case _, ok := <-src.Lines():
		if ok {
			t.Fatal("expected lines channel to be closed after Stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for lines channel to close")
	}
}

func TestStdinSourceStopIsIdempotent(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer func() { _ = w.Close() }()

	src := newStdinSourceWithReader(context.Background(), r)
	src.Stop()
	src.Stop()
}

func TestStdinSourceEmitsLinesThenEOF(t *testing.T) {
	t.Parallel()

	src := newStdinSourceWithReader(context.Background(), strings.NewReader("{\"id\":\"a\"}\n\n{\"id\":\"b\"}\n"))

	var got []model.IngestLine
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case l, ok := <-src.Lines():
			if !ok {
				done = true
				break
			}
			got = append(got, l)
		case <-timeout:
			t.Fatal("timed out reading stdin source")
		}
	}

	if len(got) != 3 {
		t.Fatalf("got %d lines, want 3: %+v", len(got), got)
	}
	if got[0].Line != `{"id":"a"}` || got[1].Line != `{"id":"b"}` {
		t.Errorf("lines = %q, %q", got[0].Line, got[1].Line)
	}
	if !got[2].EOF || got[2].Source != "stdin" {
		t.Errorf("last = %+v, want stdin EOF", got[2])
	}
}
