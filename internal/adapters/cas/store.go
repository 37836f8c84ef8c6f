// Package cas implements the persistent signature store.
package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/zerr"
)

// Store implements ports.SignatureStore using one JSON file per task record.
//
// Writes go to a temporary file that is renamed over the record, so readers in other
// processes never observe a partial record. Within a process, access to one record is
// serialized by a lock shared by every Store the same Opener opened.
type Store struct {
	dir   string
	locks *entryLocks
}

// NewStore creates a store rooted at dir with its own record locks.
// The directory is created on the first write.
func NewStore(dir string) *Store {
	return newStore(dir, newEntryLocks())
}

func newStore(dir string, locks *entryLocks) *Store {
	return &Store{dir: filepath.Clean(dir), locks: locks}
}

// Dir returns the directory the store writes to.
func (s *Store) Dir() string {
	return s.dir
}

// Get retrieves the record of the last successful run of a task.
func (s *Store) Get(key string) (*domain.TaskRecord, error) {
	filename := s.filename(key)
	mu := s.locks.get(filename)
	mu.RLock()
	defer mu.RUnlock()

	//nolint:gosec // Path is constructed from the store directory and a hashed file name
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.With(domain.Wrap(domain.ErrStoreReadFailed, err), "task", key)
	}

	var rec domain.TaskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, zerr.With(domain.Wrap(domain.ErrStoreUnmarshalFailed, err), "task", key)
	}
	if rec.Key != key {
		// A hash collision or a stale file from another layout; treat as absent.
		return nil, nil
	}
	return &rec, nil
}

// Put stores the record of a successful run.
func (s *Store) Put(rec domain.TaskRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return domain.Wrap(domain.ErrStoreMarshalFailed, err)
	}

	filename := s.filename(rec.Key)
	mu := s.locks.get(filename)
	mu.Lock()
	defer mu.Unlock()

	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return domain.Wrap(domain.ErrStoreCreateFailed, err)
	}

	if err := writeAtomic(dir, filename, data); err != nil {
		return zerr.With(domain.Wrap(domain.ErrStoreWriteFailed, err), "task", rec.Key)
	}
	return nil
}

func (s *Store) filename(key string) string {
	hash := sha256.Sum256([]byte(key))
	hexHash := hex.EncodeToString(hash[:])
	return filepath.Join(s.dir, hexHash[:2], hexHash+".json")
}

func writeAtomic(dir, filename string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".record-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	//nolint:gosec // Records are not secret
	if err := os.Chmod(tmpName, domain.FilePerm); err != nil {
		return err
	}
	return os.Rename(tmpName, filename)
}

// entryLocks hands out one lock per record file.
type entryLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func newEntryLocks() *entryLocks {
	return &entryLocks{locks: make(map[string]*sync.RWMutex)}
}

func (l *entryLocks) get(filename string) *sync.RWMutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	mu, ok := l.locks[filename]
	if !ok {
		mu = &sync.RWMutex{}
		l.locks[filename] = mu
	}
	return mu
}

// Opener opens the signature store of a workspace. Stores it opens share record locks,
// so concurrent builds of one workspace in this process never interleave on a record.
type Opener struct {
	locks *entryLocks
}

// NewOpener creates an Opener.
func NewOpener() *Opener {
	return &Opener{locks: newEntryLocks()}
}

// Open returns the store under the bake directory of the workspace root.
func (o *Opener) Open(root string) *Store {
	return newStore(filepath.Join(root, domain.DefaultStorePath()), o.locks)
}
