package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/memelens/memelens/internal/domain/meme"
)

// Store is a tiny single-file key-value store for analyzed records, keyed
// by record name. The store file is the batch output file itself, so a
// resumed run loads it back as the checkpoint.
//
// All methods are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	path    string
	records map[string]meme.AnalyzedRecord
}

func New(path string) *Store {
	return &Store{
		path:    path,
		records: make(map[string]meme.AnalyzedRecord),
	}
}

// Load reads the prior output file if one exists. Missing or empty files
// yield an empty set, not an error; anything else unreadable is a real
// failure the caller must see before re-billing a whole batch.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var records []meme.AnalyzedRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("checkpoint %s is not a result array: %w", s.path, err)
	}
	for _, r := range records {
		if r.Name != "" {
			s.records[r.Name] = r
		}
	}
	return nil
}

// Contains reports whether name already has an accepted result. Records
// checkpointed as terminal failures do not count: a resumed run should give
// them another chance rather than freeze the failure forever.
func (s *Store) Contains(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[name]
	return ok && r.Analysis != nil
}

// Get returns the checkpointed record for name.
func (s *Store) Get(name string) (meme.AnalyzedRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[name]
	return r, ok
}

// Record inserts or overwrites by name. Overwrite is deliberate: re-running
// a previously failed record replaces its failure marker.
func (s *Store) Record(r meme.AnalyzedRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.Name] = r
}

// Len returns the number of checkpointed records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Flush writes the whole set atomically (temp file + rename) so a crash
// mid-write can never leave a half-written file that passes for a complete
// one. Known names are emitted in the given order; checkpointed names not
// in the order (e.g. from a previous run over a larger input) follow,
// sorted by name for determinism.
func (s *Store) Flush(order []string) error {
	s.mu.Lock()
	out := make([]meme.AnalyzedRecord, 0, len(s.records))
	emitted := make(map[string]struct{}, len(s.records))
	for _, name := range order {
		if r, ok := s.records[name]; ok {
			out = append(out, r)
			emitted[name] = struct{}{}
		}
	}
	var rest []string
	for name := range s.records {
		if _, ok := emitted[name]; !ok {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		out = append(out, s.records[name])
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".checkpoint-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
