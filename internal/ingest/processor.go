package ingest

import (
	"strings"

	"github.com/tinytelemetry/storefeed/internal/model"
)

// Processor turns NDJSON lines into products and forwards them to a sink.
// Objects pretty-printed across several lines are accumulated until their
// braces balance.
type Processor struct {
	sink ProductSink

	jsonBuffer   strings.Builder
	jsonDepth    int
	inJSONObject bool
}

// NewProcessor creates a processor writing to sink. A nil sink only parses.
func NewProcessor(sink ProductSink) *Processor {
	return &Processor{sink: sink}
}

// ProcessResult is the outcome of one complete JSON object.
type ProcessResult struct {
	Product *model.Product
	Err     error
	Raw     string
}

// ProcessLine consumes one input line. It returns nil for blank lines and
// for lines that only continue an unfinished object.
func (p *Processor) ProcessLine(line string) *ProcessResult {
	trimmed := strings.TrimSpace(line)

	if !p.inJSONObject {
		if trimmed == "" {
			return nil
		}
		if !strings.HasPrefix(trimmed, "{") {
			return &ProcessResult{Err: errNotObject, Raw: line}
		}
		p.inJSONObject = true
		p.jsonBuffer.Reset()
		p.jsonDepth = 0
	}

	p.jsonBuffer.WriteString(line)
	p.jsonBuffer.WriteByte('\n')
	p.jsonDepth += CountJSONDepth(line)
	if p.jsonDepth > 0 {
		return nil
	}

	complete := strings.TrimSpace(p.jsonBuffer.String())
	p.resetJSONAccumulation()
	return p.processObject(complete)
}

// Flush reports an object left unfinished at end of input.
func (p *Processor) Flush() *ProcessResult {
	if !p.inJSONObject {
		return nil
	}
	raw := p.jsonBuffer.String()
	p.resetJSONAccumulation()
	return &ProcessResult{Err: errUnterminated, Raw: raw}
}

func (p *Processor) processObject(raw string) *ProcessResult {
	product, err := ParseProductJSON([]byte(raw))
	if err != nil {
		return &ProcessResult{Err: err, Raw: raw}
	}
	if p.sink != nil {
		p.sink.Add(product)
	}
	return &ProcessResult{Product: product, Raw: raw}
}

// CountJSONDepth returns the net change in brace/bracket nesting for a
// line, ignoring characters inside strings.
func CountJSONDepth(line string) int {
	depth := 0
	inString := false
	escaped := false

	for _, char := range line {
		if escaped {
			escaped = false
			continue
		}
		switch char {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				depth++
			}
		case '}', ']':
			if !inString {
				depth--
			}
		}
	}
	return depth
}

func (p *Processor) resetJSONAccumulation() {
	p.inJSONObject = false
	p.jsonDepth = 0
	p.jsonBuffer.Reset()
}
