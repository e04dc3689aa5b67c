package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// document is the on-disk shape: five top-level named collections, each mapping a
// string key to a record.
type document map[Collection]map[string]json.RawMessage

func newDocument() document {
	d := make(document, len(Collections))
	for _, c := range Collections {
		d[c] = make(map[string]json.RawMessage)
	}
	return d
}

// FileStore keeps the whole store in a single JSON document. Every operation re-reads
// the document under a process mutex and an advisory file lock, so other processes
// (e.g. authctl) sharing the file see a consistent view. Writes go to a temp file that is
// renamed over the document; a failed write leaves the previous document in place.
type FileStore struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
	log  *slog.Logger
}

// NewFileStore opens (creating if needed) the JSON document at path.
func NewFileStore(path string, log *slog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("store: file path is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, unavailable("create directory", err)
		}
	}
	s := &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
		log:  log,
	}
	err := s.withLock(true, func() error {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return s.write(newDocument())
		}
		_, err := s.read()
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info("file store initialized", slog.String("path", path))
	return s, nil
}

// List returns a copy of the collection.
func (s *FileStore) List(ctx context.Context, c Collection) (map[string]json.RawMessage, error) {
	if err := checkCollection(c); err != nil {
		return nil, err
	}
	var out map[string]json.RawMessage
	err := s.withLock(false, func() error {
		doc, err := s.read()
		if err != nil {
			return err
		}
		out = make(map[string]json.RawMessage, len(doc[c]))
		for k, v := range doc[c] {
			out[k] = v
		}
		return nil
	})
	return out, err
}

// Get returns the record for key.
func (s *FileStore) Get(ctx context.Context, c Collection, key string) (json.RawMessage, error) {
	if err := checkCollection(c); err != nil {
		return nil, err
	}
	var rec json.RawMessage
	err := s.withLock(false, func() error {
		doc, err := s.read()
		if err != nil {
			return err
		}
		v, ok := doc[c][key]
		if !ok {
			return ErrNotFound
		}
		rec = v
		return nil
	})
	return rec, err
}

// Put upserts the record for key.
func (s *FileStore) Put(ctx context.Context, c Collection, key string, record json.RawMessage) error {
	if err := checkCollection(c); err != nil {
		return err
	}
	if !json.Valid(record) {
		return fmt.Errorf("store: put %s[%s]: record is not valid JSON", c, key)
	}
	err := s.mutate(func(doc document) (bool, error) {
		doc[c][key] = record
		return true, nil
	})
	if err == nil {
		s.log.Debug("store put", slog.String("collection", string(c)), slog.String("key", key))
	}
	return err
}

// Delete removes the record for key.
func (s *FileStore) Delete(ctx context.Context, c Collection, key string) error {
	if err := checkCollection(c); err != nil {
		return err
	}
	return s.mutate(func(doc document) (bool, error) {
		if _, ok := doc[c][key]; !ok {
			return false, nil
		}
		delete(doc[c], key)
		return true, nil
	})
}

// Take reads and deletes the record for key in one locked step.
func (s *FileStore) Take(ctx context.Context, c Collection, key string) (json.RawMessage, error) {
	if err := checkCollection(c); err != nil {
		return nil, err
	}
	var rec json.RawMessage
	err := s.mutate(func(doc document) (bool, error) {
		v, ok := doc[c][key]
		if !ok {
			return false, ErrNotFound
		}
		rec = v
		delete(doc[c], key)
		return true, nil
	})
	return rec, err
}

// Update runs fn against the current record for key while holding the lock.
func (s *FileStore) Update(ctx context.Context, c Collection, key string, fn UpdateFunc) error {
	if err := checkCollection(c); err != nil {
		return err
	}
	return s.mutate(func(doc document) (bool, error) {
		old, exists := doc[c][key]
		next, err := fn(old, exists)
		if errors.Is(err, ErrDeleteRecord) {
			if !exists {
				return false, nil
			}
			delete(doc[c], key)
			return true, nil
		}
		if err != nil {
			return false, err
		}
		if !json.Valid(next) {
			return false, fmt.Errorf("store: update %s[%s]: record is not valid JSON", c, key)
		}
		doc[c][key] = next
		return true, nil
	})
}

// Ping re-reads the document.
func (s *FileStore) Ping(ctx context.Context) error {
	return s.withLock(false, func() error {
		_, err := s.read()
		return err
	})
}

// Close releases the advisory lock handle.
func (s *FileStore) Close() error {
	return s.lock.Close()
}

func (s *FileStore) mutate(fn func(doc document) (bool, error)) error {
	return s.withLock(true, func() error {
		doc, err := s.read()
		if err != nil {
			return err
		}
		changed, err := fn(doc)
		if err != nil || !changed {
			return err
		}
		return s.write(doc)
	})
}

func (s *FileStore) withLock(exclusive bool, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if exclusive {
		err = s.lock.Lock()
	} else {
		err = s.lock.RLock()
	}
	if err != nil {
		return unavailable("lock", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.log.Error("store unlock failed", slog.String("path", s.path), slog.Any("err", err))
		}
	}()
	return fn()
}

func (s *FileStore) read() (document, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return newDocument(), nil
	}
	if err != nil {
		return nil, unavailable("read", err)
	}
	var decoded map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, unavailable("decode document", err)
	}
	doc := newDocument()
	for _, c := range Collections {
		for k, v := range decoded[string(c)] {
			doc[c][k] = v
		}
	}
	return doc, nil
}

func (s *FileStore) write(doc document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return unavailable("encode document", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return unavailable("write", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		cleanup()
		return unavailable("write", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return unavailable("sync", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return unavailable("close", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return unavailable("chmod", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return unavailable("rename", err)
	}
	return nil
}
