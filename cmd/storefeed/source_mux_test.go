package main

import (
	"context"
	"testing"
	"time"

	"github.com/tinytelemetry/storefeed/internal/model"
)

type fakeSource struct {
	name    string
	lines   chan model.IngestLine
	stopped chan struct{}
}

func newFakeSource(name string, buffer int) *fakeSource {
	return &fakeSource{
		name:    name,
		lines:   make(chan model.IngestLine, buffer),
		stopped: make(chan struct{}),
	}
}

func (s *fakeSource) Lines() <-chan model.IngestLine { return s.lines }
func (s *fakeSource) Name() string                   { return s.name }

func (s *fakeSource) Stop() {
	select {
	case <-s.stopped:
		return
	default:
		close(s.stopped)
		close(s.lines)
	}
}

func TestSourceMultiplexer_ForwardsFromAllSources(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newFakeSource("a", 2)
	b := newFakeSource("b", 2)

	mux := NewSourceMultiplexer(ctx, []NamedLineSource{a, b}, 16)
	mux.Start()
	defer mux.Stop()

	a.lines <- model.IngestLine{Source: "a", Line: "alpha"}
	b.lines <- model.IngestLine{Source: "b", Line: "beta"}
	a.Stop()
	b.Stop()

	got := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case env, ok := <-mux.Lines():
			if !ok {
				t.Fatalf("multiplexer closed before receiving expected lines: %+v", got)
			}
			got[env.Line] = true
		case <-timeout:
			t.Fatalf("timed out waiting for multiplexed lines: %+v", got)
		}
	}

	if !got["alpha"] || !got["beta"] {
		t.Fatalf("missing expected lines: %+v", got)
	}
}

func TestSourceMultiplexer_StopInvokesSourceStop(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := newFakeSource("x", 1)
	mux := NewSourceMultiplexer(ctx, []NamedLineSource{src}, 8)
	mux.Start()

	mux.Stop()

	select {
	case <-src.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("expected source Stop() to be called")
	}
}

func TestSourceMultiplexer_ForwardsEOFMarkers(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := newFakeSource("tcp", 4)
	mux := NewSourceMultiplexer(ctx, []NamedLineSource{src}, 8)
	mux.Start()
	defer mux.Stop()

	src.lines <- model.IngestLine{Source: "tcp:1", Line: ""}
	src.lines <- model.IngestLine{Source: "tcp:1", EOF: true}
	src.Stop()

	var got []model.IngestLine
	for line := range mux.Lines() {
		got = append(got, line)
	}
	if len(got) != 1 || !got[0].EOF || got[0].Source != "tcp:1" {
		t.Fatalf("lines = %+v, want only the EOF marker", got)
	}
	if names := mux.SourceNames(); len(names) != 1 || names[0] != "tcp" {
		t.Fatalf("SourceNames() = %v", names)
	}
}
