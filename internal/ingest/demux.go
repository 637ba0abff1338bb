package ingest

import "github.com/tinytelemetry/storefeed/internal/model"

// Demux parses interleaved line streams. Each source gets its own Processor
// so an object split across lines is never mixed with another stream's.
type Demux struct {
	sink       ProductSink
	processors map[string]*Processor
	stats      Stats
}

// NewDemux creates a demultiplexer feeding sink.
func NewDemux(sink ProductSink) *Demux {
	return &Demux{sink: sink, processors: make(map[string]*Processor)}
}

// Handle consumes one streamed line. An EOF marker flushes and forgets the
// source's processor.
func (d *Demux) Handle(in model.IngestLine) {
	proc := d.processors[in.Source]
	if in.EOF {
		if proc != nil {
			d.stats.record(proc.Flush())
			delete(d.processors, in.Source)
		}
		return
	}
	if proc == nil {
		proc = NewProcessor(d.sink)
		d.processors[in.Source] = proc
	}
	d.stats.record(proc.ProcessLine(in.Line))
}

// Close flushes every open stream and returns the totals.
func (d *Demux) Close() Stats {
	for source, proc := range d.processors {
		d.stats.record(proc.Flush())
		delete(d.processors, source)
	}
	return d.stats
}

// Stats returns the running totals.
func (d *Demux) Stats() Stats { return d.stats }

// Open returns the number of streams with state.
func (d *Demux) Open() int { return len(d.processors) }
