package model

import "time"

// Document is an uploaded file. VectorStoreID is set exactly when Processed is true.
type Document struct {
	ID            uint      `gorm:"column:document_id;primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;index" json:"user_id"`
	Name          string    `gorm:"column:document_name;size:255;not null" json:"name"`
	Type          string    `gorm:"column:document_type;size:100;not null" json:"type"`
	FilePath      string    `gorm:"size:255;not null" json:"-"`
	VectorStoreID *string   `gorm:"size:255" json:"vector_store_id,omitempty"`
	UploadedAt    time.Time `gorm:"autoCreateTime" json:"uploaded_at"`
	Processed     bool      `gorm:"not null;default:false;index" json:"processed"`
}

func (d *Document) Status() string {
	if d.Processed {
		return "processed"
	}
	return "pending"
}
