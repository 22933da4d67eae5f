package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MikhailRaia/shortcode/internal/model"
	"github.com/MikhailRaia/shortcode/internal/storage"
)

// Storage implements in-memory URLStorage for testing and development.
type Storage struct {
	urlMap     map[string]model.URLMapping
	byOriginal map[string][]string
	order      []string
	mutex      sync.RWMutex
}

// NewStorage creates a new in-memory storage instance.
func NewStorage() *Storage {
	return &Storage{
		urlMap:     make(map[string]model.URLMapping),
		byOriginal: make(map[string][]string),
	}
}

// Save stores the mapping unless its code is already taken.
func (s *Storage) Save(_ context.Context, m model.URLMapping) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.urlMap[m.Code]; exists {
		return storage.ErrCodeExists
	}

	s.urlMap[m.Code] = m
	s.byOriginal[m.OriginalURL] = append(s.byOriginal[m.OriginalURL], m.Code)
	s.order = append(s.order, m.Code)
	return nil
}

// Get retrieves the mapping for a given code.
func (s *Storage) Get(_ context.Context, code string) (model.URLMapping, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	m, found := s.urlMap[code]
	if !found {
		return model.URLMapping{}, storage.ErrNotFound
	}
	return m, nil
}

// FindPermanent returns the newest mapping for the URL without an expiry.
func (s *Storage) FindPermanent(_ context.Context, originalURL string) (model.URLMapping, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	codes := s.byOriginal[originalURL]
	for i := len(codes) - 1; i >= 0; i-- {
		if m := s.urlMap[codes[i]]; m.ExpiresAt == nil {
			return m, nil
		}
	}
	return model.URLMapping{}, storage.ErrNotFound
}

// List returns mappings newest first.
func (s *Storage) List(_ context.Context, limit, offset int) ([]model.URLMapping, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make([]model.URLMapping, 0, limit)
	for i := len(s.order) - 1 - offset; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.urlMap[s.order[i]])
	}
	return result, nil
}

// DeleteExpired removes the listed codes whose mappings have expired.
func (s *Storage) DeleteExpired(_ context.Context, codes []string, now time.Time) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := make(map[string]bool)
	for _, code := range codes {
		m, found := s.urlMap[code]
		if !found || !m.Expired(now) {
			continue
		}
		delete(s.urlMap, code)
		s.byOriginal[m.OriginalURL] = without(s.byOriginal[m.OriginalURL], code)
		if len(s.byOriginal[m.OriginalURL]) == 0 {
			delete(s.byOriginal, m.OriginalURL)
		}
		removed[code] = true
	}

	if len(removed) > 0 {
		kept := s.order[:0]
		for _, code := range s.order {
			if !removed[code] {
				kept = append(kept, code)
			}
		}
		s.order = kept
	}

	return len(removed), nil
}

// Remove deletes a mapping regardless of its expiry. It is used when replaying
// purge records from a storage log.
func (s *Storage) Remove(code string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	m, found := s.urlMap[code]
	if !found {
		return
	}
	delete(s.urlMap, code)
	s.byOriginal[m.OriginalURL] = without(s.byOriginal[m.OriginalURL], code)
	if len(s.byOriginal[m.OriginalURL]) == 0 {
		delete(s.byOriginal, m.OriginalURL)
	}
	s.order = without(s.order, code)
}

// Ping always succeeds.
func (s *Storage) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Storage) Close() error {
	return nil
}

func without(codes []string, code string) []string {
	for i, c := range codes {
		if c == code {
			return append(codes[:i:i], codes[i+1:]...)
		}
	}
	return codes
}
