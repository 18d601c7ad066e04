package metastore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// document is the persisted form: project identity -> checkpoint hash ->
// record. Rewritten wholesale on every mutation.
type document map[string]map[string]*Record

// Store reads and mutates the metadata document.
type Store struct {
	path string
	log  zerolog.Logger

	// now is stubbed in tests that need controlled timestamps.
	now func() time.Time
}

// New returns a store over the document at path. The file and its parent
// directory are created lazily on first write.
func New(path string, log zerolog.Logger) *Store {
	return &Store{path: path, log: log, now: time.Now}
}

// lockPath returns the marker path colocated with the document.
func (s *Store) lockPath() string {
	return s.path + ".lock"
}

// load reads the document. Any failure (missing file, malformed content)
// degrades to an empty document: metadata history being unreadable must
// never fail a caller's mutation.
func (s *Store) load() document {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("metadata unreadable, starting empty")
		}
		return document{}
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("metadata malformed, starting empty")
		return document{}
	}
	if doc == nil {
		doc = document{}
	}
	return doc
}

// save writes the document to a temporary path and renames it into place,
// so concurrent readers never observe a half-written document. 2-space
// indentation keeps the file human-diffable.
func (s *Store) save(doc document) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	tmp := fmt.Sprintf("%s.%s.tmp", s.path, uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write metadata temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace metadata document: %w", err)
	}
	return nil
}

// mutate runs fn inside the lock -> load -> mutate -> atomic save -> unlock
// sequence. The deferred release guarantees the marker never outlives a
// failed mutation.
func (s *Store) mutate(fn func(doc document) error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}
	lock := &fileLock{path: s.lockPath()}
	if err := lock.acquire(); err != nil {
		return err
	}
	defer lock.release()

	doc := s.load()
	if err := fn(doc); err != nil {
		return err
	}
	return s.save(doc)
}

// AddCheckpoint inserts a new pending record for (project, hash). The
// affected-file list is derived from the tool input payload.
func (s *Store) AddCheckpoint(project, hash, toolName string, toolInput map[string]any, sessionID string) (*Record, error) {
	rec := &Record{
		Timestamp:     s.now().UTC(),
		ToolName:      toolName,
		ToolInput:     toolInput,
		SessionID:     sessionID,
		Status:        StatusPending,
		FilesAffected: FilesAffected(toolInput),
	}
	err := s.mutate(func(doc document) error {
		if doc[project] == nil {
			doc[project] = make(map[string]*Record)
		}
		doc[project][hash] = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateStatus transitions the record for (project, hash) to status,
// stamping status_updated and attaching the optional response payload.
// A missing record is a no-op, not an error: the record may have been
// cleaned up or never written (checkpoint creation failed).
func (s *Store) UpdateStatus(project, hash string, status Status, toolResponse map[string]any) error {
	return s.mutate(func(doc document) error {
		rec, ok := doc[project][hash]
		if !ok {
			return nil
		}
		rec.Status = status
		now := s.now().UTC()
		rec.StatusUpdated = &now
		if toolResponse != nil {
			rec.ToolResponse = toolResponse
		}
		return nil
	})
}

// Get returns the record for (project, hash), if present.
func (s *Store) Get(project, hash string) (*Record, bool) {
	rec, ok := s.load()[project][hash]
	return rec, ok
}

// ListProject returns all of a project's checkpoints, newest first.
func (s *Store) ListProject(project string) []Checkpoint {
	records := s.load()[project]
	cps := make([]Checkpoint, 0, len(records))
	for hash, rec := range records {
		cps = append(cps, Checkpoint{Hash: hash, Record: *rec})
	}
	sortNewestFirst(cps)
	return cps
}

// FindByFile returns the project's checkpoints whose affected files
// include path, newest first.
func (s *Store) FindByFile(project, path string) []Checkpoint {
	var matched []Checkpoint
	for _, cp := range s.ListProject(project) {
		for _, f := range cp.FilesAffected {
			if f == path {
				matched = append(matched, cp)
				break
			}
		}
	}
	return matched
}

// CleanupOld retains the keep most recent records of a project by
// timestamp and discards the rest.
func (s *Store) CleanupOld(project string, keep int) error {
	if keep < 0 {
		keep = 0
	}
	return s.mutate(func(doc document) error {
		records := doc[project]
		if len(records) <= keep {
			return nil
		}
		cps := make([]Checkpoint, 0, len(records))
		for hash, rec := range records {
			cps = append(cps, Checkpoint{Hash: hash, Record: *rec})
		}
		sortNewestFirst(cps)
		for _, cp := range cps[keep:] {
			delete(records, cp.Hash)
		}
		return nil
	})
}

// Stats aggregates a project's records: lifecycle counts, the top five
// most-modified files (ties keep first-encountered order over the
// newest-first record sequence), and the latest timestamp.
func (s *Store) Stats(project string) Stats {
	cps := s.ListProject(project)
	st := Stats{Total: len(cps)}

	counts := make(map[string]int)
	var order []string
	for _, cp := range cps {
		switch cp.Status {
		case StatusSuccess:
			st.Successful++
		case StatusFailed:
			st.Failed++
		default:
			st.Pending++
		}
		for _, f := range cp.FilesAffected {
			if counts[f] == 0 {
				order = append(order, f)
			}
			counts[f]++
		}
	}
	if len(cps) > 0 {
		ts := cps[0].Timestamp
		st.LatestTimestamp = &ts
	}

	// Selection sort over first-encountered order keeps ties stable.
	const topN = 5
	remaining := append([]string(nil), order...)
	for len(remaining) > 0 && len(st.MostModifiedFiles) < topN {
		best := 0
		for i, f := range remaining {
			if counts[f] > counts[remaining[best]] {
				best = i
			}
		}
		f := remaining[best]
		st.MostModifiedFiles = append(st.MostModifiedFiles, FileCount{Path: f, Count: counts[f]})
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return st
}
