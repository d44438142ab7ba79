package repository

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"docchat/internal/model"
)

var ErrDocumentNotFound = errors.New("document not found")

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create registers a new, unprocessed document.
func (r *DocumentRepository) Create(doc *model.Document) error {
	doc.Processed = false
	doc.VectorStoreID = nil
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) GetByIDAndUserID(id, userID uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("document_id = ? AND user_id = ?", id, userID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

// ListByUserID returns the user's documents in upload order.
func (r *DocumentRepository) ListByUserID(userID uint, processedOnly bool) ([]model.Document, error) {
	q := r.db.Where("user_id = ?", userID)
	if processedOnly {
		q = q.Where("processed = ?", true)
	}
	var list []model.Document
	if err := q.Order("uploaded_at ASC").Order("document_id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

// MarkProcessed flips processed and stores the locator in a single UPDATE.
func (r *DocumentRepository) MarkProcessed(id uint, locator string) error {
	if strings.TrimSpace(locator) == "" {
		return fmt.Errorf("mark document processed failed: empty locator")
	}
	res := r.db.Model(&model.Document{}).
		Where("document_id = ?", id).
		Updates(map[string]interface{}{
			"processed":       true,
			"vector_store_id": locator,
		})
	if res.Error != nil {
		return fmt.Errorf("mark document processed failed: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// MySQL reports zero affected rows when the values are unchanged.
	var n int64
	if err := r.db.Model(&model.Document{}).Where("document_id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("mark document processed failed: %w", err)
	}
	if n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}
