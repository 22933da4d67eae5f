package model

import "time"

// URLMapping is the persisted association between a short code and its original URL.
type URLMapping struct {
	Code        string     `json:"code"`
	OriginalURL string     `json:"original_url"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the mapping has an expiry that is not after now.
func (m URLMapping) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !now.Before(*m.ExpiresAt)
}

// URLRecord is a single line of the append-only storage file.
type URLRecord struct {
	UUID        string     `json:"uuid"`
	ShortURL    string     `json:"short_url"`
	OriginalURL string     `json:"original_url"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IsDeleted   bool       `json:"is_deleted"`
}

// Mapping converts the record back to its domain form.
func (r URLRecord) Mapping() URLMapping {
	return URLMapping{
		Code:        r.ShortURL,
		OriginalURL: r.OriginalURL,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}
