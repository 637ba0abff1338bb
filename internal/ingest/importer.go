package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	errNotObject    = errors.New("line is not a JSON object")
	errUnterminated = errors.New("unterminated JSON object at end of input")
)

// maxLoggedRejects caps per-import reject logging.
const maxLoggedRejects = 20

// Stats counts the products an import accepted and rejected.
type Stats struct {
	Accepted int64
	Rejected int64
}

// Import reads products from r in the given format and adds every valid
// one to sink. Invalid records are counted and logged, not fatal; only
// read and decode failures of the stream itself return an error.
func Import(ctx context.Context, r io.Reader, format string, sink ProductSink) (Stats, error) {
	format, err := ParseFormat(format)
	if err != nil {
		return Stats{}, err
	}
	switch format {
	case FormatYAML:
		return importYAML(ctx, r, sink)
	case FormatJSON:
		return importJSONArray(ctx, r, sink)
	default:
		return importNDJSON(ctx, r, sink)
	}
}

// ImportFile imports path, picking the format from its extension.
func ImportFile(ctx context.Context, path string, sink ProductSink) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()

	stats, err := Import(ctx, f, FormatFromPath(path), sink)
	if err != nil {
		return stats, fmt.Errorf("ingest: %s: %w", path, err)
	}
	log.Printf("ingest: %s: accepted=%d rejected=%d", path, stats.Accepted, stats.Rejected)
	return stats, nil
}

func (s *Stats) record(res *ProcessResult) {
	if res == nil {
		return
	}
	if res.Err != nil {
		s.Rejected++
		if s.Rejected <= maxLoggedRejects {
			log.Printf("ingest: rejected record: %v", res.Err)
		}
		return
	}
	s.Accepted++
}

func importNDJSON(ctx context.Context, r io.Reader, sink ProductSink) (Stats, error) {
	var stats Stats
	proc := NewProcessor(sink)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.record(proc.ProcessLine(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read: %w", err)
	}
	stats.record(proc.Flush())
	return stats, nil
}

func importJSONArray(ctx context.Context, r io.Reader, sink ProductSink) (Stats, error) {
	var stats Stats
	var items []json.RawMessage
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return stats, fmt.Errorf("decode JSON array: %w", err)
	}
	for _, raw := range items {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		p, err := ParseProductJSON(raw)
		if err == nil && sink != nil {
			sink.Add(p)
		}
		stats.record(&ProcessResult{Product: p, Err: err})
	}
	return stats, nil
}

// yamlCatalog is a seed file: either a top-level list or {products: [...]}.
type yamlCatalog struct {
	Products []rawProduct `yaml:"products"`
}

func importYAML(ctx context.Context, r io.Reader, sink ProductSink) (Stats, error) {
	var stats Stats
	dec := yaml.NewDecoder(r)
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("decode YAML: %w", err)
		}

		var raws []rawProduct
		if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
			err = node.Decode(&raws)
		} else {
			var doc yamlCatalog
			err = node.Decode(&doc)
			raws = doc.Products
		}
		if err != nil {
			return stats, fmt.Errorf("decode YAML products: %w", err)
		}

		for _, raw := range raws {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			p, err := raw.normalize()
			if err == nil && sink != nil {
				sink.Add(p)
			}
			stats.record(&ProcessResult{Product: p, Err: err})
		}
	}
}
