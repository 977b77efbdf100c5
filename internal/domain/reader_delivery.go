package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DeliveryStatus string

const (
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusExpired   DeliveryStatus = "expired"
)

// ReaderDelivery is one reader's download history for a delivery method.
//
// There is at most one row per (delivery_method_id, reader_email); the
// unique index backs the upsert in the reader delivery repository.
// AccessToken and ExpiresAt are nil when no token was issued or it was revoked.
type ReaderDelivery struct {
	ID               uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	DeliveryMethodID uuid.UUID      `json:"delivery_method_id" gorm:"type:uuid;not null;uniqueIndex:idx_reader_deliveries_method_email,priority:1"`
	ReaderEmail      string         `json:"reader_email" gorm:"size:254;not null;uniqueIndex:idx_reader_deliveries_method_email,priority:2"`
	ReaderName       string         `json:"reader_name" gorm:"size:100"`
	IPAddress        string         `json:"-" gorm:"size:64"`
	UserAgent        string         `json:"-" gorm:"size:512"`
	DeliveredAt      time.Time      `json:"delivered_at" gorm:"not null"`
	Status           DeliveryStatus `json:"status" gorm:"type:varchar(16);not null;default:delivered;index"`
	DownloadCount    int            `json:"download_count" gorm:"not null;default:0"`
	LastDownloadAt   *time.Time     `json:"last_download_at"`
	ReDownloadCount  int            `json:"re_download_count" gorm:"not null;default:0"`
	AccessToken      *string        `json:"-" gorm:"size:128;uniqueIndex"`
	ExpiresAt        *time.Time     `json:"expires_at" gorm:"index"`
	CreatedAt        time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time      `json:"updated_at" gorm:"autoUpdateTime"`

	DeliveryMethod *DeliveryMethod `json:"-" gorm:"foreignKey:DeliveryMethodID;references:ID;constraint:OnDelete:CASCADE"`
}

func (ReaderDelivery) TableName() string { return "reader_deliveries" }

func (d *ReaderDelivery) BeforeCreate(_ *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// HasActiveToken reports whether d carries a token that has not expired at now.
func (d *ReaderDelivery) HasActiveToken(now time.Time) bool {
	if d.AccessToken == nil || *d.AccessToken == "" || d.ExpiresAt == nil {
		return false
	}
	return !now.After(*d.ExpiresAt)
}

func (d *ReaderDelivery) IsRedownload() bool {
	return d.DownloadCount > 1
}
