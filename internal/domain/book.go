package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DeliveryKindEbook     = "ebook"
	DeliveryKindAudiobook = "audiobook"
	DeliveryKindPrint     = "print"
)

// Book is the title an author offers through one or more delivery methods.
type Book struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Title      string    `json:"title" gorm:"size:255;not null"`
	AuthorName string    `json:"author_name" gorm:"size:255"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Book) TableName() string { return "books" }

func (b *Book) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// BookFile is a stored manuscript inside the book-files bucket.
type BookFile struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	BookID     uuid.UUID `json:"book_id" gorm:"type:uuid;not null;index"`
	ObjectPath string    `json:"-" gorm:"size:512;not null"`
	FileName   string    `json:"file_name" gorm:"size:255;not null"`
	MimeType   string    `json:"mime_type" gorm:"size:128;not null"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`

	Book *Book `json:"-" gorm:"foreignKey:BookID;references:ID;constraint:OnDelete:CASCADE"`
}

func (BookFile) TableName() string { return "book_files" }

func (f *BookFile) BeforeCreate(_ *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// DeliveryMethod offers one book file in one format to readers.
// DeliveredCount tracks distinct reader deliveries and is only ever changed
// through a conditional increment, so it never passes DownloadLimit.
type DeliveryMethod struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	BookID         uuid.UUID `json:"book_id" gorm:"type:uuid;not null;index"`
	BookFileID     uuid.UUID `json:"book_file_id" gorm:"type:uuid;not null;index"`
	Kind           string    `json:"kind" gorm:"size:32;not null;default:ebook"`
	IsActive       bool      `json:"is_active" gorm:"not null"`
	DownloadLimit  *int      `json:"download_limit"`
	DeliveredCount int       `json:"delivered_count" gorm:"not null;default:0"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Book     *Book     `json:"book,omitempty" gorm:"foreignKey:BookID;references:ID;constraint:OnDelete:CASCADE"`
	BookFile *BookFile `json:"book_file,omitempty" gorm:"foreignKey:BookFileID;references:ID"`
}

func (DeliveryMethod) TableName() string { return "book_delivery_methods" }

func (m *DeliveryMethod) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Deliverable reports whether readers can currently download through m.
func (m *DeliveryMethod) Deliverable() bool {
	return m.IsActive && m.Kind == DeliveryKindEbook
}
