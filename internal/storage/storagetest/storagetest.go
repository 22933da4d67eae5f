// Package storagetest holds behaviour checks shared by every URLStorage implementation.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikhailRaia/shortcode/internal/model"
	"github.com/MikhailRaia/shortcode/internal/storage"
)

// Run exercises s with the common URLStorage contract. newStorage must return
// an empty store on every call.
func Run(t *testing.T, newStorage func(t *testing.T) storage.URLStorage) {
	t.Run("SaveAndGet", func(t *testing.T) { testSaveAndGet(t, newStorage(t)) })
	t.Run("DuplicateCode", func(t *testing.T) { testDuplicateCode(t, newStorage(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStorage(t)) })
	t.Run("FindPermanent", func(t *testing.T) { testFindPermanent(t, newStorage(t)) })
	t.Run("List", func(t *testing.T) { testList(t, newStorage(t)) })
	t.Run("DeleteExpired", func(t *testing.T) { testDeleteExpired(t, newStorage(t)) })
	t.Run("ConcurrentSameCode", func(t *testing.T) { testConcurrentSameCode(t, newStorage(t)) })
}

var created = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func mapping(code, url string) model.URLMapping {
	return model.URLMapping{Code: code, OriginalURL: url, CreatedAt: created}
}

func testSaveAndGet(t *testing.T, s storage.URLStorage) {
	ctx := context.Background()
	expires := created.Add(time.Hour)
	m := mapping("abc123", "https://example.com/page")
	m.ExpiresAt = &expires

	require.NoError(t, s.Save(ctx, m))

	got, err := s.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, m.Code, got.Code)
	assert.Equal(t, m.OriginalURL, got.OriginalURL)
	assert.True(t, m.CreatedAt.Equal(got.CreatedAt))
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, expires.Equal(*got.ExpiresAt))
}

func testDuplicateCode(t *testing.T, s storage.URLStorage) {
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, mapping("dup", "https://a.example")))

	err := s.Save(ctx, mapping("dup", "https://b.example"))
	assert.ErrorIs(t, err, storage.ErrCodeExists)

	got, err := s.Get(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, "https://a.example", got.OriginalURL)
}

func testGetMissing(t *testing.T, s storage.URLStorage) {
	_, err := s.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testFindPermanent(t *testing.T, s storage.URLStorage) {
	ctx := context.Background()
	const u = "https://example.com"

	past := created.Add(time.Hour)
	expired := mapping("old", u)
	expired.ExpiresAt = &past
	require.NoError(t, s.Save(ctx, expired))

	_, err := s.FindPermanent(ctx, u)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	perm := mapping("perm", u)
	perm.CreatedAt = created.Add(time.Minute)
	require.NoError(t, s.Save(ctx, perm))

	future := created.Add(48 * time.Hour)
	temp := mapping("temp", u)
	temp.CreatedAt = created.Add(2 * time.Minute)
	temp.ExpiresAt = &future
	require.NoError(t, s.Save(ctx, temp))

	got, err := s.FindPermanent(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, "perm", got.Code)
	assert.Nil(t, got.ExpiresAt)

	_, err = s.FindPermanent(ctx, "https://other.example")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testList(t *testing.T, s storage.URLStorage) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		m := mapping(fmt.Sprintf("code%d", i), fmt.Sprintf("https://example.com/%d", i))
		m.CreatedAt = created.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Save(ctx, m))
	}

	page, err := s.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "code4", page[0].Code)
	assert.Equal(t, "code3", page[1].Code)

	page, err = s.List(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "code1", page[0].Code)
	assert.Equal(t, "code0", page[1].Code)

	page, err = s.List(ctx, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func testDeleteExpired(t *testing.T, s storage.URLStorage) {
	ctx := context.Background()
	now := created.Add(2 * time.Hour)
	past := created.Add(time.Hour)
	future := created.Add(3 * time.Hour)

	expired := mapping("gone", "https://example.com/a")
	expired.ExpiresAt = &past
	notYet := mapping("later", "https://example.com/b")
	notYet.ExpiresAt = &future
	forever := mapping("forever", "https://example.com/c")

	require.NoError(t, s.Save(ctx, expired))
	require.NoError(t, s.Save(ctx, notYet))
	require.NoError(t, s.Save(ctx, forever))

	n, err := s.DeleteExpired(ctx, []string{"gone", "later", "forever", "missing"}, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(ctx, "gone")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.Get(ctx, "later")
	assert.NoError(t, err)
	_, err = s.Get(ctx, "forever")
	assert.NoError(t, err)

	require.NoError(t, s.Save(ctx, mapping("gone", "https://example.com/new")))
}

func testConcurrentSameCode(t *testing.T, s storage.URLStorage) {
	ctx := context.Background()
	const writers = 20

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.Save(ctx, mapping("race", fmt.Sprintf("https://example.com/%d", i)))
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, storage.ErrCodeExists)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}
