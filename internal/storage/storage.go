package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/MikhailRaia/shortcode/internal/model"
)

var (
	// ErrNotFound is returned when no mapping exists for a code or URL.
	ErrNotFound = errors.New("mapping not found")
	// ErrCodeExists is returned by Save when the code is already taken.
	ErrCodeExists = errors.New("code already exists")
)

// URLStorage persists code mappings. Save must be insert-if-absent on the code:
// concurrent writers of the same code see exactly one success.
type URLStorage interface {
	Save(ctx context.Context, m model.URLMapping) error

	Get(ctx context.Context, code string) (model.URLMapping, error)

	// FindPermanent returns the newest mapping for the URL that has no expiry.
	// Mappings with an expiry are never returned, live or not.
	FindPermanent(ctx context.Context, originalURL string) (model.URLMapping, error)

	List(ctx context.Context, limit, offset int) ([]model.URLMapping, error)

	// DeleteExpired removes the given codes if they expired before now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, codes []string, now time.Time) (int, error)

	Ping(ctx context.Context) error

	Close() error
}

// HashURL returns a fixed-size key for indexing long URLs.
func HashURL(originalURL string) string {
	sum := sha256.Sum256([]byte(originalURL))
	return hex.EncodeToString(sum[:])
}
