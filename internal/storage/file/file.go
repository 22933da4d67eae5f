package file

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikhailRaia/shortcode/internal/model"
	"github.com/MikhailRaia/shortcode/internal/storage"
	"github.com/MikhailRaia/shortcode/internal/storage/memory"
)

// Storage implements URLStorage backed by an append-only JSONL file.
// Reads are served from an in-memory index rebuilt from the file at start-up.
type Storage struct {
	filePath string
	index    *memory.Storage
	file     *os.File
	mu       sync.Mutex
}

// NewStorage creates a file-backed storage at the provided path.
func NewStorage(filePath string) (*Storage, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	s := &Storage{
		filePath: filePath,
		index:    memory.NewStorage(),
	}

	if err := s.loadFromFile(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file for writing: %w", err)
	}
	s.file = f

	return s, nil
}

// Save appends the mapping to the file and indexes it. The record is written
// before the mapping becomes visible to readers.
func (s *Storage) Save(ctx context.Context, m model.URLMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.index.Get(ctx, m.Code); err == nil {
		return storage.ErrCodeExists
	}

	record := model.URLRecord{
		UUID:        uuid.NewString(),
		ShortURL:    m.Code,
		OriginalURL: m.OriginalURL,
		CreatedAt:   m.CreatedAt,
		ExpiresAt:   m.ExpiresAt,
	}
	if err := s.saveRecordToFile(record); err != nil {
		return err
	}

	return s.index.Save(ctx, m)
}

func (s *Storage) Get(ctx context.Context, code string) (model.URLMapping, error) {
	return s.index.Get(ctx, code)
}

func (s *Storage) FindPermanent(ctx context.Context, originalURL string) (model.URLMapping, error) {
	return s.index.FindPermanent(ctx, originalURL)
}

func (s *Storage) List(ctx context.Context, limit, offset int) ([]model.URLMapping, error) {
	return s.index.List(ctx, limit, offset)
}

// DeleteExpired appends a deletion record for every expired code before
// dropping it from the index.
func (s *Storage) DeleteExpired(ctx context.Context, codes []string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := make([]string, 0, len(codes))
	for _, code := range codes {
		m, err := s.index.Get(ctx, code)
		if err != nil || !m.Expired(now) {
			continue
		}

		record := model.URLRecord{
			UUID:        uuid.NewString(),
			ShortURL:    m.Code,
			OriginalURL: m.OriginalURL,
			CreatedAt:   m.CreatedAt,
			ExpiresAt:   m.ExpiresAt,
			IsDeleted:   true,
		}
		if err := s.saveRecordToFile(record); err != nil {
			return 0, fmt.Errorf("failed to save deletion record: %w", err)
		}
		expired = append(expired, code)
	}

	return s.index.DeleteExpired(ctx, expired, now)
}

// Ping checks that the storage file is still reachable.
func (s *Storage) Ping(context.Context) error {
	_, err := os.Stat(s.filePath)
	return err
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *Storage) loadFromFile() error {
	file, err := os.OpenFile(s.filePath, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	ctx := context.Background()
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record model.URLRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}

		if record.IsDeleted {
			s.index.Remove(record.ShortURL)
			continue
		}

		if err := s.index.Save(ctx, record.Mapping()); err != nil && !errors.Is(err, storage.ErrCodeExists) {
			return fmt.Errorf("failed to index record: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading file: %w", err)
	}

	return nil
}

func (s *Storage) saveRecordToFile(record model.URLRecord) error {
	if s.file == nil {
		return errors.New("storage is closed")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}

	return nil
}
