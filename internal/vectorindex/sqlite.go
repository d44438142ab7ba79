package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"docchat/internal/model"
)

const sqliteIndexFile = "index.db"

// SQLiteStore keeps each index in its own SQLite file inside the locator directory.
// Builds write to a temporary file that is renamed over the previous index.
type SQLiteStore struct{}

func NewSQLiteStore() *SQLiteStore {
	return &SQLiteStore{}
}

func (s *SQLiteStore) Build(ctx context.Context, locator string, chunks []model.Chunk, vectors [][]float32) error {
	dims, err := validateBuildInput(chunks, vectors)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(locator, 0o755); err != nil {
		return fmt.Errorf("%w: create index dir: %v", ErrIndexBuild, err)
	}

	final := filepath.Join(locator, sqliteIndexFile)
	tmp := final + ".tmp"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove stale build: %v", ErrIndexBuild, err)
	}

	if err := writeSQLiteIndex(ctx, tmp, locator, dims, chunks, vectors); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrIndexBuild, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: publish index: %v", ErrIndexBuild, err)
	}
	return nil
}

func writeSQLiteIndex(ctx context.Context, path, locator string, dims int, chunks []model.Chunk, vectors [][]float32) error {
	db, err := openSQLite(path)
	if err != nil {
		return err
	}
	defer closeSQLite(db)

	db = db.WithContext(ctx)
	if err := db.AutoMigrate(&model.IndexChunk{}, &model.IndexMeta{}); err != nil {
		return fmt.Errorf("migrate index: %w", err)
	}

	rows := make([]model.IndexChunk, len(chunks))
	for i, c := range chunks {
		rows[i] = model.IndexChunk{
			Position: c.Position,
			Content:  c.Text,
			Source:   c.Source,
			Page:     c.Page,
		}
		rows[i].SetEmbedding(vectors[i])
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		meta := model.IndexMeta{Locator: locator, Dimensions: dims, ChunkCount: len(rows)}
		if err := tx.Create(&meta).Error; err != nil {
			return fmt.Errorf("insert meta: %w", err)
		}
		return nil
	})
}

// Open loads the whole index into memory; per-document indexes are small.
func (s *SQLiteStore) Open(ctx context.Context, locator string) (Index, error) {
	path := filepath.Join(locator, sqliteIndexFile)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIndexLoad, locator, err)
	}
	db, err := openSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexLoad, err)
	}
	defer closeSQLite(db)

	var meta model.IndexMeta
	if err := db.WithContext(ctx).First(&meta).Error; err != nil {
		return nil, fmt.Errorf("%w: read meta: %v", ErrIndexLoad, err)
	}
	var rows []model.IndexChunk
	if err := db.WithContext(ctx).Order("position ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: read chunks: %v", ErrIndexLoad, err)
	}
	if len(rows) != meta.ChunkCount {
		return nil, fmt.Errorf("%w: expected %d chunks, found %d", ErrIndexLoad, meta.ChunkCount, len(rows))
	}

	chunks := make([]model.Chunk, len(rows))
	vectors := make([][]float32, len(rows))
	for i := range rows {
		vec := rows[i].EmbeddingVector()
		if len(vec) != meta.Dimensions {
			return nil, fmt.Errorf("%w: chunk %d has a corrupt embedding", ErrIndexLoad, rows[i].Position)
		}
		chunks[i] = rows[i].Chunk()
		vectors[i] = vec
	}
	return newMemoryIndex(chunks, vectors), nil
}

func openSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	return db, nil
}

func closeSQLite(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
