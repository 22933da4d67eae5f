package handler

import (
	"fmt"
	"time"

	"github.com/MikhailRaia/shortcode/internal/service"
)

const dateLayout = "2006-01-02"

// ParseExpiry reads an RFC3339 timestamp or a bare date, taken as midnight UTC.
// An empty string means the mapping never expires.
func ParseExpiry(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return &t, nil
	}

	return nil, fmt.Errorf("%w: %q is neither RFC3339 nor YYYY-MM-DD", service.ErrInvalidExpiry, raw)
}
