package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/MikhailRaia/shortcode/internal/generator"
	"github.com/MikhailRaia/shortcode/internal/model"
	"github.com/MikhailRaia/shortcode/internal/storage"
)

var (
	ErrInvalidURL    = errors.New("invalid url")
	ErrInvalidCode   = errors.New("invalid code")
	ErrInvalidExpiry = errors.New("invalid expiry")
	ErrCodeTaken     = errors.New("code is already taken")
	ErrNotFound      = errors.New("short code not found")
	ErrExpired       = errors.New("short code has expired")
	// ErrStorage marks transient backend failures; the request is safe to retry.
	ErrStorage = errors.New("storage unavailable")
)

// ReusePolicy decides what Shorten does with a URL that already has a code.
type ReusePolicy string

const (
	// PolicyIdempotent returns the existing permanent code of the URL.
	PolicyIdempotent ReusePolicy = "idempotent"
	// PolicyAlwaysNew mints a new code on every call.
	PolicyAlwaysNew ReusePolicy = "always-new"
)

// ParseReusePolicy validates a policy name from configuration.
func ParseReusePolicy(s string) (ReusePolicy, error) {
	switch ReusePolicy(s) {
	case "", PolicyIdempotent:
		return PolicyIdempotent, nil
	case PolicyAlwaysNew:
		return PolicyAlwaysNew, nil
	default:
		return "", fmt.Errorf("unknown reuse policy %q", s)
	}
}

const (
	MaxURLLength     = 2048
	MinCustomCodeLen = 3

	DefaultMaxAttempts = 5
	DefaultListLimit   = 50
	MaxListLimit       = 500
)

// reservedCodes collide with fixed HTTP routes and are never issued.
var reservedCodes = map[string]struct{}{
	"api":     {},
	"ping":    {},
	"shorten": {},
}

func reserved(code string) bool {
	_, ok := reservedCodes[code]
	return ok
}

// Purger accepts codes of expired mappings for asynchronous removal.
type Purger interface {
	Submit(codes ...string) error
}

// Options tune URLService. Zero values select the defaults.
type Options struct {
	BaseURL     string
	Policy      ReusePolicy
	MaxAttempts int
}

// ShortenRequest carries the input of Shorten.
type ShortenRequest struct {
	OriginalURL string
	CustomCode  string
	ExpiresAt   *time.Time
}

// URLService provides business logic for creating and resolving short codes.
type URLService struct {
	storage     storage.URLStorage
	generator   generator.Generator
	baseURL     string
	policy      ReusePolicy
	maxAttempts int
	purger      Purger
	inflight    singleflight.Group
	now         func() time.Time
}

// NewURLService constructs a URLService over the given storage and code generator.
func NewURLService(s storage.URLStorage, gen generator.Generator, opts Options) *URLService {
	if opts.Policy == "" {
		opts.Policy = PolicyIdempotent
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}

	return &URLService{
		storage:     s,
		generator:   gen,
		baseURL:     opts.BaseURL,
		policy:      opts.Policy,
		maxAttempts: opts.MaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetPurger registers the sink for codes of expired mappings met by Resolve.
func (s *URLService) SetPurger(p Purger) {
	s.purger = p
}

// Shorten validates the request, picks a code and persists the mapping.
func (s *URLService) Shorten(ctx context.Context, req ShortenRequest) (model.URLMapping, error) {
	if err := ValidateURL(req.OriginalURL); err != nil {
		return model.URLMapping{}, err
	}

	now := s.now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return model.URLMapping{}, fmt.Errorf("%w: expiry must be in the future", ErrInvalidExpiry)
	}

	if req.CustomCode != "" {
		return s.saveCustom(ctx, req, now)
	}

	if s.policy == PolicyIdempotent && req.ExpiresAt == nil {
		// The shared call outlives any single caller; each waiter only stops on its own ctx.
		shared := context.WithoutCancel(ctx)
		ch := s.inflight.DoChan(req.OriginalURL, func() (interface{}, error) {
			return s.reuseOrMint(shared, req, now)
		})
		select {
		case <-ctx.Done():
			return model.URLMapping{}, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return model.URLMapping{}, res.Err
			}
			return res.Val.(model.URLMapping), nil
		}
	}

	return s.mint(ctx, req, now)
}

// Resolve returns the original URL for code.
func (s *URLService) Resolve(ctx context.Context, code string) (string, error) {
	m, err := s.Lookup(ctx, code)
	if err != nil {
		return "", err
	}
	return m.OriginalURL, nil
}

// Lookup returns the live mapping for code. Expired mappings are reported with
// ErrExpired and handed to the purger.
func (s *URLService) Lookup(ctx context.Context, code string) (model.URLMapping, error) {
	if !generator.ValidCode(code) {
		return model.URLMapping{}, fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}

	m, err := s.storage.Get(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.URLMapping{}, ErrNotFound
		}
		return model.URLMapping{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if m.Expired(s.now()) {
		if s.purger != nil {
			if err := s.purger.Submit(code); err != nil {
				log.Warn().Err(err).Str("code", code).Msg("Failed to queue expired code for purge")
			}
		}
		return model.URLMapping{}, ErrExpired
	}

	return m, nil
}

// List returns mappings newest first. Limits outside 1..MaxListLimit are clamped.
func (s *URLService) List(ctx context.Context, limit, offset int) ([]model.URLMapping, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	urls, err := s.storage.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return urls, nil
}

// PurgeExpired removes the listed codes whose mappings have expired.
func (s *URLService) PurgeExpired(ctx context.Context, codes []string) (int, error) {
	return s.storage.DeleteExpired(ctx, codes, s.now())
}

// ShortURL returns the absolute short URL for code.
func (s *URLService) ShortURL(code string) string {
	shortURL, err := url.JoinPath(s.baseURL, code)
	if err != nil {
		return strings.TrimSuffix(s.baseURL, "/") + "/" + code
	}
	return shortURL
}

// Ping checks the storage backend.
func (s *URLService) Ping(ctx context.Context) error {
	return s.storage.Ping(ctx)
}

// ValidateURL accepts absolute http and https URLs with a host.
func ValidateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidURL)
	}
	if len(raw) > MaxURLLength {
		return fmt.Errorf("%w: url is longer than %d bytes", ErrInvalidURL, MaxURLLength)
	}

	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidURL)
	}

	return nil
}

func (s *URLService) saveCustom(ctx context.Context, req ShortenRequest, now time.Time) (model.URLMapping, error) {
	if len(req.CustomCode) < MinCustomCodeLen || !generator.ValidCode(req.CustomCode) {
		return model.URLMapping{}, fmt.Errorf("%w: custom code must be %d-%d characters of [0-9A-Za-z_-]",
			ErrInvalidCode, MinCustomCodeLen, generator.MaxCodeLength)
	}
	if reserved(req.CustomCode) {
		return model.URLMapping{}, fmt.Errorf("%w: %q is reserved", ErrInvalidCode, req.CustomCode)
	}

	m := model.URLMapping{
		Code:        req.CustomCode,
		OriginalURL: req.OriginalURL,
		CreatedAt:   now,
		ExpiresAt:   req.ExpiresAt,
	}
	if err := s.storage.Save(ctx, m); err != nil {
		if errors.Is(err, storage.ErrCodeExists) {
			return model.URLMapping{}, ErrCodeTaken
		}
		return model.URLMapping{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return m, nil
}

func (s *URLService) reuseOrMint(ctx context.Context, req ShortenRequest, now time.Time) (model.URLMapping, error) {
	existing, err := s.storage.FindPermanent(ctx, req.OriginalURL)
	switch {
	case err == nil:
		return existing, nil
	case errors.Is(err, storage.ErrNotFound):
	default:
		return model.URLMapping{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return s.mint(ctx, req, now)
}

// mint stores the URL under a fresh generated code, retrying on collisions.
func (s *URLService) mint(ctx context.Context, req ShortenRequest, now time.Time) (model.URLMapping, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		code, err := s.generator.Next()
		if err != nil {
			return model.URLMapping{}, fmt.Errorf("%w: error generating code: %v", ErrStorage, err)
		}
		if reserved(code) {
			continue
		}

		m := model.URLMapping{
			Code:        code,
			OriginalURL: req.OriginalURL,
			CreatedAt:   now,
			ExpiresAt:   req.ExpiresAt,
		}

		err = s.storage.Save(ctx, m)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, storage.ErrCodeExists) {
			return model.URLMapping{}, fmt.Errorf("%w: %v", ErrStorage, err)
		}

		log.Debug().Str("code", code).Int("attempt", attempt).Msg("Code collision, retrying")
	}

	return model.URLMapping{}, fmt.Errorf("%w: no free code after %d attempts", ErrStorage, s.maxAttempts)
}
