package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/MikhailRaia/shortcode/internal/model"
	"github.com/MikhailRaia/shortcode/internal/storage"
)

type Storage struct {
	pool *pgxpool.Pool
}

func NewStorage(ctx context.Context, dsn string) (*Storage, error) {
	if dsn == "" {
		return nil, errors.New("database connection string is empty")
	}

	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s := &Storage{
		pool: pool,
	}

	if err := s.createTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) createTable(ctx context.Context) error {
	createTableQuery := `
		CREATE TABLE IF NOT EXISTS urls (
			code VARCHAR(32) PRIMARY KEY,
			original_url TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMP WITH TIME ZONE
		);
	`
	if _, err := s.pool.Exec(ctx, createTableQuery); err != nil {
		return err
	}

	indexQueries := []string{
		"CREATE INDEX IF NOT EXISTS idx_urls_original_url ON urls(original_url, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_urls_created_at ON urls(created_at DESC)",
	}
	for _, q := range indexQueries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Save inserts the mapping; the primary key turns a taken code into ErrCodeExists.
func (s *Storage) Save(ctx context.Context, m model.URLMapping) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO urls (code, original_url, created_at, expires_at) VALUES ($1, $2, $3, $4)",
		m.Code, m.OriginalURL, m.CreatedAt, m.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return storage.ErrCodeExists
		}
		return fmt.Errorf("error inserting URL into database: %w", err)
	}

	return nil
}

func (s *Storage) Get(ctx context.Context, code string) (model.URLMapping, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT code, original_url, created_at, expires_at FROM urls WHERE code = $1", code)

	m, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.URLMapping{}, storage.ErrNotFound
		}
		return model.URLMapping{}, fmt.Errorf("error querying database: %w", err)
	}

	return m, nil
}

func (s *Storage) FindPermanent(ctx context.Context, originalURL string) (model.URLMapping, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT code, original_url, created_at, expires_at FROM urls
		WHERE original_url = $1 AND expires_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1`, originalURL)

	m, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.URLMapping{}, storage.ErrNotFound
		}
		return model.URLMapping{}, fmt.Errorf("error querying database: %w", err)
	}

	return m, nil
}

func (s *Storage) List(ctx context.Context, limit, offset int) ([]model.URLMapping, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code, original_url, created_at, expires_at FROM urls
		ORDER BY created_at DESC, code
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("error listing URLs: %w", err)
	}
	defer rows.Close()

	result := make([]model.URLMapping, 0, limit)
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning URL: %w", err)
		}
		result = append(result, m)
	}

	return result, rows.Err()
}

func (s *Storage) DeleteExpired(ctx context.Context, codes []string, now time.Time) (int, error) {
	if len(codes) == 0 {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx,
		"DELETE FROM urls WHERE code = ANY($1) AND expires_at IS NOT NULL AND expires_at <= $2",
		codes, now)
	if err != nil {
		return 0, fmt.Errorf("error deleting expired URLs: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Storage) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func scanMapping(row pgx.Row) (model.URLMapping, error) {
	var m model.URLMapping
	if err := row.Scan(&m.Code, &m.OriginalURL, &m.CreatedAt, &m.ExpiresAt); err != nil {
		return model.URLMapping{}, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	if m.ExpiresAt != nil {
		t := m.ExpiresAt.UTC()
		m.ExpiresAt = &t
	}
	return m, nil
}
