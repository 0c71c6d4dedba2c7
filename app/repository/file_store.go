package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps one JSON array file per kind. Writes replace the file atomically.
type FileStore struct {
	dir   string
	kinds []string
	mu    sync.Mutex
}

func NewFileStore(dir string, kinds ...string) *FileStore {
	return &FileStore{dir: dir, kinds: kinds}
}

func (s *FileStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	for _, kind := range s.kinds {
		if !validKind(kind) {
			return fmt.Errorf("%w: kind %q", ErrInvalidRecord, kind)
		}
		path := s.path(kind)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if err := s.writeLocked(kind, []json.RawMessage{}); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileStore) SaveRecord(_ context.Context, kind, id string, record interface{}) error {
	if err := validateRecordKey(kind, id); err != nil {
		return err
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", kind, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readLocked(kind)
	if err != nil {
		return err
	}
	return s.writeLocked(kind, append(records, payload))
}

func (s *FileStore) LoadRecords(_ context.Context, kind string) ([]json.RawMessage, error) {
	if !validKind(kind) {
		return nil, ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(kind)
}

func (s *FileStore) path(kind string) string {
	return filepath.Join(s.dir, kind+".json")
}

func (s *FileStore) readLocked(kind string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(s.path(kind))
	if errors.Is(err, fs.ErrNotExist) {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s store: %w", kind, err)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s store: %w", kind, err)
	}
	return records, nil
}

func (s *FileStore) writeLocked(kind string, records []json.RawMessage) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, kind+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s store: %w", kind, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s store: %w", kind, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s store: %w", kind, err)
	}
	if err := os.Rename(tmpName, s.path(kind)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s store: %w", kind, err)
	}
	return nil
}
