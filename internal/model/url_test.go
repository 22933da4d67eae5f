package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestURLMapping_Expired(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{name: "No expiry", expiresAt: nil, want: false},
		{name: "Expiry in the past", expiresAt: &past, want: true},
		{name: "Expiry exactly now", expiresAt: &now, want: true},
		{name: "Expiry in the future", expiresAt: &future, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := URLMapping{Code: "abc", OriginalURL: "https://example.com", ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, m.Expired(now))
		})
	}
}

func TestURLRecord_Mapping(t *testing.T) {
	created := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	r := URLRecord{UUID: "1", ShortURL: "abc123", OriginalURL: "https://example.com", CreatedAt: created}

	m := r.Mapping()

	assert.Equal(t, "abc123", m.Code)
	assert.Equal(t, "https://example.com", m.OriginalURL)
	assert.Equal(t, created, m.CreatedAt)
	assert.Nil(t, m.ExpiresAt)
}
