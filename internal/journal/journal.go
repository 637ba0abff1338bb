// Package journal is the write-ahead log for products on their way into the
// catalog. Products are appended and fsynced before they are buffered for
// insertion; the insert buffer commits a sequence number once everything up
// to it is stored. The catalog upserts by product id, so only the newest
// uncommitted version of each product is ever replayed.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tinytelemetry/storefeed/internal/model"
)

const (
	fileMode = 0o644
	dirMode  = 0o755
)

type record struct {
	Seq     uint64        `json:"seq"`
	Product model.Product `json:"product"`
}

// key identifies the product a record writes. Products without an id are
// never superseded, so each gets a key of its own.
func (r record) key() string {
	if r.Product.ID != "" {
		return r.Product.ID
	}
	return "\x00" + strconv.FormatUint(r.Seq, 10)
}

type checkpoint struct {
	Seq uint64    `json:"seq"`
	At  time.Time `json:"at"`
}

// Journal is a durable log of imported products. The log holds one JSON
// record per line; the committed sequence is kept in a ".checkpoint" file
// next to it.
type Journal struct {
	mu             sync.Mutex
	path           string
	checkpointPath string
	file           *os.File
	nextSeq        uint64
	committed      uint64
	// newest uncommitted seq per product key
	pending map[string]uint64
}

// Open creates or opens the journal at path. Committed and superseded
// records are compacted away and a torn trailing line is dropped.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return nil, fmt.Errorf("journal: mkdir: %w", err)
	}

	j := &Journal{
		path:           path,
		checkpointPath: path + ".checkpoint",
		pending:        make(map[string]uint64),
	}

	cp, err := readCheckpoint(j.checkpointPath)
	if err != nil {
		return nil, err
	}
	j.committed = cp.Seq

	maxSeq, err := j.compact()
	if err != nil {
		return nil, err
	}
	j.nextSeq = max(maxSeq, j.committed) + 1

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, fileMode)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	j.file = f
	return j, nil
}

// compact rewrites the log keeping only the newest uncommitted record per
// product, and fills j.pending. It returns the highest seq found.
func (j *Journal) compact() (uint64, error) {
	var (
		maxSeq uint64
		live   []record
	)
	err := readRecords(j.path, func(r record) error {
		maxSeq = max(maxSeq, r.Seq)
		if r.Seq > j.committed {
			live = append(live, r)
			j.pending[r.key()] = r.Seq
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	err = writeAtomic(j.path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		for _, r := range live {
			if j.pending[r.key()] != r.Seq {
				continue
			}
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("journal: compact: %w", err)
	}
	return maxSeq, nil
}

// Append persists one product and returns its sequence number. An earlier
// uncommitted record for the same product id is superseded.
func (j *Journal) Append(p *model.Product) (uint64, error) {
	if p == nil {
		return 0, errors.New("journal: nil product")
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return 0, errors.New("journal: closed")
	}

	r := record{Seq: j.nextSeq, Product: *p}
	line, err := json.Marshal(r)
	if err != nil {
		return 0, fmt.Errorf("journal: marshal: %w", err)
	}
	if _, err := j.file.Write(append(line, '\n')); err != nil {
		return 0, fmt.Errorf("journal: write: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return 0, fmt.Errorf("journal: sync: %w", err)
	}

	j.nextSeq++
	j.pending[r.key()] = r.Seq
	return r.Seq, nil
}

// Commit marks every record up to seq as stored in the catalog. Once no
// product is left pending the log is truncated.
func (j *Journal) Commit(seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if seq <= j.committed {
		return nil
	}
	if err := writeCheckpoint(j.checkpointPath, checkpoint{Seq: seq, At: time.Now().UTC()}); err != nil {
		return err
	}
	j.committed = seq

	for k, s := range j.pending {
		if s <= seq {
			delete(j.pending, k)
		}
	}
	if len(j.pending) == 0 && j.file != nil {
		if err := j.file.Truncate(0); err != nil {
			return fmt.Errorf("journal: truncate: %w", err)
		}
	}
	return nil
}

// Committed returns the highest committed sequence number.
func (j *Journal) Committed() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.committed
}

// Pending returns how many products are journaled but not yet committed.
func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

// Replay calls fn, in sequence order, with the newest uncommitted version
// of every pending product. Superseded versions are skipped.
func (j *Journal) Replay(fn func(seq uint64, p *model.Product) error) error {
	if fn == nil {
		return errors.New("journal: replay callback is nil")
	}

	j.mu.Lock()
	committed := j.committed
	newest := make(map[string]uint64, len(j.pending))
	for k, s := range j.pending {
		newest[k] = s
	}
	j.mu.Unlock()

	return readRecords(j.path, func(r record) error {
		if r.Seq <= committed || newest[r.key()] != r.Seq {
			return nil
		}
		p := r.Product
		return fn(r.Seq, &p)
	})
}

// Close closes the log file. Appends after Close fail.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// readRecords calls fn for each complete record in path. Reading stops at
// the first torn or malformed line; a missing file has no records.
func readRecords(path string, fn func(record) error) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("journal: open for read: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	for {
		line, err := br.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			// a line without its newline is a torn write
			return nil
		}
		if err != nil {
			return fmt.Errorf("journal: read: %w", err)
		}
		var r record
		if json.Unmarshal(line, &r) != nil || r.Seq == 0 {
			return nil
		}
		if err := fn(r); err != nil {
			return err
		}
	}
}

func readCheckpoint(path string) (checkpoint, error) {
	var cp checkpoint
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cp, nil
	}
	if err != nil {
		return cp, fmt.Errorf("journal: read checkpoint: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return cp, nil
	}
	if err := json.Unmarshal(data, &cp); err != nil {
		return cp, fmt.Errorf("journal: parse checkpoint: %w", err)
	}
	return cp, nil
}

func writeCheckpoint(path string, cp checkpoint) error {
	err := writeAtomic(path, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(cp)
	})
	if err != nil {
		return fmt.Errorf("journal: write checkpoint: %w", err)
	}
	return nil
}

// writeAtomic writes path through a synced temp file and a rename.
func writeAtomic(path string, write func(io.Writer) error) (err error) {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fileMode)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	bw := bufio.NewWriter(f)
	if err = write(bw); err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
