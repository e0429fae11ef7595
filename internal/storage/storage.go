package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BenjaminSRussell/go_gopher/internal/types"
)

// Bucket separates stored leaves by fetch mode
type Bucket string

const (
	BucketText   Bucket = "text"
	BucketBinary Bucket = "binary"
)

const (
	fetchLogFile = "fetches.jsonl"
	configFile   = "config.json"
	reportFile   = "report.json"

	// longest fetch log line LoadFetches accepts
	maxFetchLine = 4 * 1024 * 1024
)

// Storage manages the crawl's data directory: fetched leaves under
// text/ and binary/, a JSONL log of fetch outcomes, and the run's config
// and report.
type Storage struct {
	dataDir string
	mu      sync.Mutex
	jsonl   *os.File
}

// New creates a new storage instance
func New(dataDir string) (*Storage, error) {
	for _, dir := range []string{dataDir, filepath.Join(dataDir, string(BucketText)), filepath.Join(dataDir, string(BucketBinary))} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	jsonlPath := filepath.Join(dataDir, fetchLogFile)
	file, err := os.OpenFile(jsonlPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}

	return &Storage{
		dataDir: dataDir,
		jsonl:   file,
	}, nil
}

// Store writes content to name under bucket. An existing file of the same
// name is overwritten.
func (s *Storage) Store(bucket Bucket, name string, content []byte) error {
	if bucket != BucketText && bucket != BucketBinary {
		return fmt.Errorf("unknown bucket %q", bucket)
	}
	if name == "" || name != filepath.Base(name) {
		return fmt.Errorf("invalid file name %q", name)
	}

	path := filepath.Join(s.dataDir, string(bucket), name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// SaveFetch appends a fetch outcome to the JSONL log
func (s *Storage) SaveFetch(record types.FetchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal fetch record: %w", err)
	}

	if _, err := s.jsonl.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write fetch record: %w", err)
	}

	return nil
}

// SaveConfig saves crawler configuration
func (s *Storage) SaveConfig(config types.Config) error {
	return writeJSON(filepath.Join(s.dataDir, configFile), config)
}

// SaveReport saves the final crawl report
func (s *Storage) SaveReport(report *types.Report) error {
	return writeJSON(filepath.Join(s.dataDir, reportFile), report)
}

// LoadConfig loads crawler configuration
func LoadConfig(dataDir string) (types.Config, error) {
	var config types.Config
	if err := readJSON(filepath.Join(dataDir, configFile), &config); err != nil {
		return types.Config{}, err
	}
	return config, nil
}

// LoadReport loads a saved crawl report
func LoadReport(dataDir string) (*types.Report, error) {
	var report types.Report
	if err := readJSON(filepath.Join(dataDir, reportFile), &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// LoadFetches loads all logged fetch outcomes. Unparseable lines are skipped.
func LoadFetches(dataDir string) ([]types.FetchRecord, error) {
	f, err := os.Open(filepath.Join(dataDir, fetchLogFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []types.FetchRecord{}, nil
		}
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer f.Close()

	records := make([]types.FetchRecord, 0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFetchLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record types.FetchRecord
		if err := json.Unmarshal(line, &record); err == nil {
			records = append(records, record)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read JSONL file: %w", err)
	}

	return records, nil
}

// Close closes the storage
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.jsonl != nil {
		err := s.jsonl.Close()
		s.jsonl = nil
		return err
	}

	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}

	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(path), err)
	}

	return nil
}
