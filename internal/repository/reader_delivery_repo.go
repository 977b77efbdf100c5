package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"booksweeps/internal/domain"
)

// ErrDownloadLimitReached is returned once a delivery method's
// download_limit is met, for new and returning readers alike.
var ErrDownloadLimitReached = errors.New("download limit reached")

// DownloadRecord describes one download attempt by a reader.
type DownloadRecord struct {
	DeliveryMethodID uuid.UUID
	ReaderEmail      string
	ReaderName       string
	IPAddress        string
	UserAgent        string
	At               time.Time
}

// ReaderDeliveryRepository provides DB access for reader deliveries and the
// access tokens stored on them.
type ReaderDeliveryRepository struct {
	db *gorm.DB
}

func NewReaderDeliveryRepository(db *gorm.DB) *ReaderDeliveryRepository {
	return &ReaderDeliveryRepository{db: db}
}

// RecordDownload creates the reader's delivery row or bumps its counters, in
// one transaction.
//
// A reader without a row first claims a slot on the delivery method with a
// conditional increment of delivered_count, so concurrent first downloads can
// never push it past download_limit. A returning reader is refused once the
// limit is met, since delivered_count equals the method's row count. The row
// itself is written with an upsert
// on (delivery_method_id, reader_email); if that upsert hit an existing row
// (another request inserted it after our lookup) the claimed slot is released.
func (r *ReaderDeliveryRepository) RecordDownload(ctx context.Context, rec DownloadRecord) (*domain.ReaderDelivery, error) {
	at := rec.At.UTC()
	var out domain.ReaderDelivery

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.ReaderDelivery
		err := tx.Where("delivery_method_id = ? AND reader_email = ?", rec.DeliveryMethodID, rec.ReaderEmail).
			Take(&existing).Error
		isNew := errors.Is(err, gorm.ErrRecordNotFound)
		if err != nil && !isNew {
			return err
		}
		if isNew {
			if err := claimSlot(tx, rec.DeliveryMethodID); err != nil {
				return err
			}
		} else if err := checkLimitMet(tx, rec.DeliveryMethodID); err != nil {
			return err
		}

		row := domain.ReaderDelivery{
			DeliveryMethodID: rec.DeliveryMethodID,
			ReaderEmail:      rec.ReaderEmail,
			ReaderName:       rec.ReaderName,
			IPAddress:        rec.IPAddress,
			UserAgent:        rec.UserAgent,
			DeliveredAt:      at,
			Status:           domain.DeliveryStatusDelivered,
			DownloadCount:    1,
			LastDownloadAt:   &at,
		}
		err = tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "delivery_method_id"}, {Name: "reader_email"}},
			DoUpdates: clause.Assignments(map[string]any{
				"download_count":    gorm.Expr("reader_deliveries.download_count + 1"),
				"re_download_count": gorm.Expr("reader_deliveries.re_download_count + 1"),
				"last_download_at":  at,
				"status":            domain.DeliveryStatusDelivered,
				"ip_address":        rec.IPAddress,
				"user_agent":        rec.UserAgent,
				"updated_at":        at,
			}),
		}).Create(&row).Error
		if err != nil {
			return err
		}

		if err := tx.Where("delivery_method_id = ? AND reader_email = ?", rec.DeliveryMethodID, rec.ReaderEmail).
			Take(&out).Error; err != nil {
			return err
		}

		if isNew && out.DownloadCount > 1 {
			return releaseSlot(tx, rec.DeliveryMethodID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func claimSlot(tx *gorm.DB, methodID uuid.UUID) error {
	res := tx.Model(&domain.DeliveryMethod{}).
		Where("id = ? AND (download_limit IS NULL OR delivered_count < download_limit)", methodID).
		UpdateColumn("delivered_count", gorm.Expr("delivered_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDownloadLimitReached
	}
	return nil
}

func checkLimitMet(tx *gorm.DB, methodID uuid.UUID) error {
	var n int64
	err := tx.Model(&domain.DeliveryMethod{}).
		Where("id = ? AND download_limit IS NOT NULL AND delivered_count >= download_limit", methodID).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrDownloadLimitReached
	}
	return nil
}

func releaseSlot(tx *gorm.DB, methodID uuid.UUID) error {
	return tx.Model(&domain.DeliveryMethod{}).
		Where("id = ? AND delivered_count > 0", methodID).
		UpdateColumn("delivered_count", gorm.Expr("delivered_count - 1")).Error
}

// SetToken stores a new access token on the delivery.
func (r *ReaderDeliveryRepository) SetToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.ReaderDelivery{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"access_token": token,
			"expires_at":   expiresAt.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindByToken looks a delivery up by access token, optionally scoped to one
// delivery id.
func (r *ReaderDeliveryRepository) FindByToken(ctx context.Context, token string, deliveryID *uuid.UUID) (*domain.ReaderDelivery, error) {
	q := r.db.WithContext(ctx).Where("access_token = ?", token)
	if deliveryID != nil {
		q = q.Where("id = ?", *deliveryID)
	}

	var d domain.ReaderDelivery
	if err := q.Take(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// ClearToken removes the token and its expiry. It reports whether a delivery
// carried the token.
func (r *ReaderDeliveryRepository) ClearToken(ctx context.Context, token string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.ReaderDelivery{}).
		Where("access_token = ?", token).
		Updates(map[string]any{
			"access_token": nil,
			"expires_at":   nil,
		})
	return res.RowsAffected > 0, res.Error
}

// ExpireOverdue marks every delivery whose token expired before now as
// expired and clears its token fields. It returns the number of rows changed.
func (r *ReaderDeliveryRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.ReaderDelivery{}).
		Where("expires_at IS NOT NULL AND expires_at < ? AND status <> ?", now.UTC(), domain.DeliveryStatusExpired).
		Updates(map[string]any{
			"status":       domain.DeliveryStatusExpired,
			"access_token": nil,
			"expires_at":   nil,
		})
	return res.RowsAffected, res.Error
}

// TouchDownload records a download made through the access link.
func (r *ReaderDeliveryRepository) TouchDownload(ctx context.Context, id uuid.UUID, at time.Time) error {
	at = at.UTC()
	res := r.db.WithContext(ctx).Model(&domain.ReaderDelivery{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"download_count":    gorm.Expr("download_count + 1"),
			"re_download_count": gorm.Expr("re_download_count + 1"),
			"last_download_at":  at,
			"updated_at":        at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
