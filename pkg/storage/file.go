package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// FileStore keeps the checkpoint in a JSON file and the dedup log in a
// JSON-lines file. Checkpoint writes go to a temp file in the same directory
// which is then renamed over the target, so a reader never sees a partially
// written checkpoint.
type FileStore struct {
	mu         sync.Mutex
	path       string
	dedupPath  string
	dedupReady bool
}

// dedupLine is one record of the dedup file.
type dedupLine struct {
	Kind string `json:"kind"`
	DedupEntry
}

// NewFileStore creates a file-backed store. Parent directories are created on first write.
func NewFileStore(path, dedupPath string) *FileStore {
	return &FileStore{path: path, dedupPath: dedupPath}
}

func (f *FileStore) LoadCheckpoint() (Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var cp Checkpoint
	if err := readJSON(f.path, &cp); err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, ErrNotFound
	}
	return cp, nil
}

func (f *FileStore) SaveCheckpoint(cp Checkpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeJSONAtomic(f.path, cp)
}

// AppendDedup writes one JSON line to the dedup file. Earlier lines are never
// rewritten, so a damaged line costs only that entry.
func (f *FileStore) AppendDedup(kind string, entry DedupEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.dedupReady {
		if err := f.prepareDedup(); err != nil {
			return err
		}
		f.dedupReady = true
	}

	b, err := json.Marshal(dedupLine{Kind: kind, DedupEntry: entry})
	if err != nil {
		return err
	}
	file, err := os.OpenFile(f.dedupPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write(append(b, '\n')); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// LoadDedup reads the dedup file. Lines that cannot be decoded are skipped
// with a warning. A file holding a single JSON object of kind to entries is
// read as is.
func (f *FileStore) LoadDedup() (DedupLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.dedupPath)
	if errors.Is(err, fs.ErrNotExist) {
		return make(DedupLog), nil
	}
	if err != nil {
		return nil, err
	}
	l, _ := parseDedup(f.dedupPath, b)
	return l, nil
}

// prepareDedup readies the dedup file for appends. An object-form file is
// rewritten as lines, and a torn last line is terminated so the next entry
// starts on its own line.
func (f *FileStore) prepareDedup() error {
	if err := os.MkdirAll(filepath.Dir(f.dedupPath), 0o755); err != nil {
		return err
	}
	b, err := os.ReadFile(f.dedupPath)
	if errors.Is(err, fs.ErrNotExist) || len(b) == 0 {
		return nil
	}
	if err != nil {
		return err
	}

	if l, legacy := parseDedup(f.dedupPath, b); legacy {
		log.Info("Converting dedup log to line format", "path", f.dedupPath)
		var buf bytes.Buffer
		for _, kind := range sortedKinds(l) {
			for _, e := range l[kind] {
				line, err := json.Marshal(dedupLine{Kind: kind, DedupEntry: e})
				if err != nil {
					return err
				}
				buf.Write(line)
				buf.WriteByte('\n')
			}
		}
		return writeFileAtomic(f.dedupPath, buf.Bytes())
	}

	if b[len(b)-1] == '\n' {
		return nil
	}
	file, err := os.OpenFile(f.dedupPath, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write([]byte{'\n'}); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (f *FileStore) Close() error {
	return nil
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return nil
}

// parseDedup decodes a dedup file and reports whether it was in object form.
func parseDedup(path string, b []byte) (DedupLog, bool) {
	var legacy DedupLog
	if err := json.Unmarshal(b, &legacy); err == nil && legacy != nil {
		return legacy, true
	}

	l := make(DedupLog)
	for n, raw := range bytes.Split(b, []byte{'\n'}) {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		var line dedupLine
		if err := json.Unmarshal(raw, &line); err != nil || line.Kind == "" {
			log.Warn("Skipping unreadable dedup entry", "path", path, "line", n+1, "err", err)
			continue
		}
		l[line.Kind] = append(l[line.Kind], line.DedupEntry)
	}
	return l, false
}

func sortedKinds(l DedupLog) []string {
	kinds := make([]string, 0, len(l))
	for k := range l {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func writeJSONAtomic(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, b)
}

func writeFileAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
