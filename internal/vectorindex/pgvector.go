package vectorindex

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"docchat/internal/model"
)

// PgvectorStore keeps every index in one PostgreSQL table partitioned by locator.
type PgvectorStore struct {
	db *gorm.DB
}

func NewPgvectorStore(db *gorm.DB) *PgvectorStore {
	return &PgvectorStore{db: db}
}

func (s *PgvectorStore) Migrate() error {
	if err := s.db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("create vector extension failed: %w", err)
	}
	if err := s.db.AutoMigrate(&model.VectorChunk{}); err != nil {
		return fmt.Errorf("migrate vector chunks failed: %w", err)
	}
	return nil
}

func (s *PgvectorStore) Build(ctx context.Context, locator string, chunks []model.Chunk, vectors [][]float32) error {
	if _, err := validateBuildInput(chunks, vectors); err != nil {
		return err
	}
	rows := make([]model.VectorChunk, len(chunks))
	for i, c := range chunks {
		rows[i] = model.VectorChunk{
			Locator:   locator,
			Position:  c.Position,
			Content:   c.Text,
			Source:    c.Source,
			Embedding: pgvector.NewVector(vectors[i]),
		}
		if c.Page > 0 {
			page := c.Page
			rows[i].Page = &page
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("locator = ?", locator).Delete(&model.VectorChunk{}).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(rows, 100).Error
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexBuild, err)
	}
	return nil
}

func (s *PgvectorStore) Open(ctx context.Context, locator string) (Index, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.VectorChunk{}).Where("locator = ?", locator).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexLoad, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: no index at %s", ErrIndexLoad, locator)
	}
	return &pgvectorIndex{db: s.db, locator: locator}, nil
}

type pgvectorIndex struct {
	db      *gorm.DB
	locator string
}

func (p *pgvectorIndex) Search(ctx context.Context, vector []float32, filter *Filter, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	type result struct {
		model.VectorChunk
		Similarity float64
	}
	queryVector := pgvector.NewVector(vector)

	q := p.db.WithContext(ctx).
		Table("vector_chunks").
		Select("vector_chunks.*, 1 - (embedding <=> ?) AS similarity", queryVector).
		Where("locator = ?", p.locator)
	if where, args := filter.SQL(); where != "" {
		q = q.Where(where, args...)
	}

	var results []result
	if err := q.Order(gorm.Expr("embedding <=> ?", queryVector)).Limit(k).Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("search %s failed: %w", p.locator, err)
	}

	matches := make([]Match, len(results))
	for i := range results {
		matches[i] = Match{Chunk: results[i].VectorChunk.Chunk(), Score: float32(results[i].Similarity)}
	}
	return matches, nil
}

func (p *pgvectorIndex) Close() error {
	return nil
}
