package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MikhailRaia/shortcode/internal/model"
	"github.com/MikhailRaia/shortcode/internal/storage"
)

// urlRow is the table layout of a mapping.
type urlRow struct {
	Code        string     `gorm:"primaryKey;size:32"`
	OriginalURL string     `gorm:"type:text;not null"`
	URLHash     string     `gorm:"size:64;index:idx_urls_original"`
	CreatedAt   time.Time  `gorm:"not null;index:idx_urls_original;index:idx_urls_created"`
	ExpiresAt   *time.Time `gorm:"index"`
}

func (urlRow) TableName() string {
	return "urls"
}

func (r urlRow) mapping() model.URLMapping {
	m := model.URLMapping{
		Code:        r.Code,
		OriginalURL: r.OriginalURL,
		CreatedAt:   r.CreatedAt.UTC(),
	}
	if r.ExpiresAt != nil {
		t := r.ExpiresAt.UTC()
		m.ExpiresAt = &t
	}
	return m
}

// Storage implements URLStorage on MySQL through gorm.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens the database and migrates the urls table.
func NewStorage(dsn string) (*Storage, error) {
	if dsn == "" {
		return nil, errors.New("mysql connection string is empty")
	}

	dsnConfig, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql connection string: %w", err)
	}
	dsnConfig.ParseTime = true
	dsnConfig.Loc = time.UTC

	db, err := gorm.Open(mysql.Open(dsnConfig.FormatDSN()), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect mysql: %w", err)
	}

	if err := db.AutoMigrate(&urlRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate urls table: %w", err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Save(ctx context.Context, m model.URLMapping) error {
	row := urlRow{
		Code:        m.Code,
		OriginalURL: m.OriginalURL,
		URLHash:     storage.HashURL(m.OriginalURL),
		CreatedAt:   m.CreatedAt,
		ExpiresAt:   m.ExpiresAt,
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return storage.ErrCodeExists
		}
		return fmt.Errorf("error inserting URL: %w", err)
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, code string) (model.URLMapping, error) {
	var row urlRow
	err := s.db.WithContext(ctx).Where("code = ?", code).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.URLMapping{}, storage.ErrNotFound
		}
		return model.URLMapping{}, fmt.Errorf("error querying URL: %w", err)
	}
	return row.mapping(), nil
}

func (s *Storage) FindPermanent(ctx context.Context, originalURL string) (model.URLMapping, error) {
	var row urlRow
	err := s.db.WithContext(ctx).
		Where("url_hash = ? AND original_url = ?", storage.HashURL(originalURL), originalURL).
		Where("expires_at IS NULL").
		Order("created_at DESC").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.URLMapping{}, storage.ErrNotFound
		}
		return model.URLMapping{}, fmt.Errorf("error querying URL: %w", err)
	}
	return row.mapping(), nil
}

func (s *Storage) List(ctx context.Context, limit, offset int) ([]model.URLMapping, error) {
	var rows []urlRow
	err := s.db.WithContext(ctx).
		Order("created_at DESC").Order("code").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error listing URLs: %w", err)
	}

	result := make([]model.URLMapping, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.mapping())
	}
	return result, nil
}

func (s *Storage) DeleteExpired(ctx context.Context, codes []string, now time.Time) (int, error) {
	if len(codes) == 0 {
		return 0, nil
	}

	res := s.db.WithContext(ctx).
		Where("code IN ? AND expires_at IS NOT NULL AND expires_at <= ?", codes, now).
		Delete(&urlRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("error deleting expired URLs: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *Storage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
