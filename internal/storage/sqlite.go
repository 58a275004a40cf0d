package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Entry is one persisted key/value row.
type Entry struct {
	Key       string `gorm:"column:storage_key;primaryKey;size:255"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// TableName pins the table name independent of gorm's pluralization.
func (Entry) TableName() string { return "local_storage" }

// SQLiteStore persists entries in a sqlite file through gorm.
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) the sqlite file at path and
// migrates the entry table. ":memory:" gives a throwaway database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := OpenSQLiteDB(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteStore(db)
}

// OpenSQLiteDB opens a gorm handle on the sqlite file at path with logging
// silenced.
func OpenSQLiteDB(path string) (*gorm.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite storage: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// NewSQLiteStore wraps an existing gorm handle and migrates the entry table.
func NewSQLiteStore(db *gorm.DB) (*SQLiteStore, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate local storage: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get returns the value stored under key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	var e Entry
	err := s.db.WithContext(ctx).Where("storage_key = ?", key).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", countError("sqlite", "get", err)
	}
	return e.Value, nil
}

// Set upserts value under key.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	e := Entry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "storage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
	return countError("sqlite", "set", err)
}

// Delete removes key. Missing keys are not an error.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).Where("storage_key = ?", key).Delete(&Entry{}).Error
	return countError("sqlite", "delete", err)
}

// DeletePrefix removes every key starting with prefix. The match is
// byte-exact; LIKE would fold ASCII case.
func (s *SQLiteStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	// substr on TEXT counts characters.
	res := s.db.WithContext(ctx).
		Where("substr(storage_key, 1, ?) = ?", utf8.RuneCountInString(prefix), prefix).
		Delete(&Entry{})
	if res.Error != nil {
		return 0, countError("sqlite", "delete_prefix", res.Error)
	}
	return int(res.RowsAffected), nil
}

// Close releases the underlying connection pool.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
