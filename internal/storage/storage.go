package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tankprobe/internal/models"
)

// DefaultMaxRecords bounds the history file when no limit is given.
const DefaultMaxRecords = 10000

// maxLineBytes caps a single history line; a record holds at most one read
// buffer of reply bytes.
const maxLineBytes = 1 << 20

// ResultStorage keeps recorded probe results as JSON lines, one record per
// line, oldest first.
type ResultStorage struct {
	mu         sync.Mutex
	path       string
	maxRecords int
	records    []models.Record
}

// NewResultStorage opens the history at path, creating its directory. Only
// the newest maxRecords entries are kept (DefaultMaxRecords when <= 0).
func NewResultStorage(path string, maxRecords int) (*ResultStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
	}
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}

	s := &ResultStorage{path: path, maxRecords: maxRecords}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Append records rec. The line is appended in place until the file grows
// past the limit, then the file is rewritten with the newest records.
func (s *ResultStorage) Append(rec models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)
	if len(s.records) > s.maxRecords {
		s.records = s.records[len(s.records)-s.maxRecords:]
		return s.compact()
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("append history: %w", err)
	}
	return f.Close()
}

// Latest returns the newest record, if any.
func (s *ResultStorage) Latest() (models.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) == 0 {
		return models.Record{}, false
	}
	return s.records[len(s.records)-1], true
}

// History returns a copy of all records, oldest first.
func (s *ResultStorage) History() []models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.Record(nil), s.records...)
}

func (s *ResultStorage) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read history: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec models.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("parse history line %d: %w", lineNo, err)
		}
		s.records = append(s.records, rec)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	if len(s.records) > s.maxRecords {
		s.records = s.records[len(s.records)-s.maxRecords:]
	}
	return nil
}

// compact rewrites the whole file through a temp file and rename.
func (s *ResultStorage) compact() error {
	tmpPath := fmt.Sprintf("%s.%d.tmp", s.path, time.Now().UnixNano())
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("write temp history: %w", err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, rec := range s.records {
		if err = enc.Encode(rec); err != nil {
			break
		}
	}
	if err == nil {
		err = w.Flush()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp history: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace history file: %w", err)
	}
	return nil
}
