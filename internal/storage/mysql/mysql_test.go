package mysql

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MikhailRaia/shortcode/internal/storage"
	"github.com/MikhailRaia/shortcode/internal/storage/storagetest"
)

// TEST_MYSQL_DSN must point at a disposable database and include parseTime=true.
func TestStorage_Contract(t *testing.T) {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN is not set")
	}

	storagetest.Run(t, func(t *testing.T) storage.URLStorage {
		s, err := NewStorage(dsn)
		require.NoError(t, err)
		require.NoError(t, s.db.WithContext(context.Background()).Exec("TRUNCATE TABLE urls").Error)

		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestNewStorage_EmptyDSN(t *testing.T) {
	_, err := NewStorage("")
	require.Error(t, err)
}

func TestNewStorage_InvalidDSN(t *testing.T) {
	_, err := NewStorage("not a dsn")
	require.ErrorContains(t, err, "invalid mysql connection string")
}

func TestURLRow_Mapping(t *testing.T) {
	r := urlRow{Code: "abc", OriginalURL: "https://example.com"}
	m := r.mapping()

	require.Equal(t, "abc", m.Code)
	require.Equal(t, "https://example.com", m.OriginalURL)
	require.Nil(t, m.ExpiresAt)
}
