package kassasync

import (
	"context"

	"github.com/ristobook/ristobook_backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the upsert-capable keyed collection the importers write into.
// Everything is keyed (restaurant_id, external id); the engine needs nothing
// relational from it.
type Store interface {
	CategoryIDs(ctx context.Context, restaurantID string) (map[string]string, error)
	UpsertCategory(ctx context.Context, rec *models.PosCategory) error
	UpsertProduct(ctx context.Context, rec *models.PosProduct) error
	UpsertCustomer(ctx context.Context, rec *models.PosCustomer) error
	UpsertRoom(ctx context.Context, rec *models.PosRoom) error
	UpsertTable(ctx context.Context, rec *models.PosTable) error
	UpsertStockLevel(ctx context.Context, rec *models.PosStockLevel) error
	UpsertProductSale(ctx context.Context, rec *models.PosProductSale) error
	UpsertReceipt(ctx context.Context, rec *models.PosReceipt, rows []models.PosReceiptRow) error
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// CategoryIDs returns the external->internal category id map for a
// restaurant. Category ids map by identity, so keys equal values; products
// consult this map, not a fresh id sequence.
func (s *gormStore) CategoryIDs(ctx context.Context, restaurantID string) (map[string]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&models.PosCategory{}).
		Where("restaurant_id = ?", restaurantID).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		out[id] = id
	}
	return out, nil
}

func (s *gormStore) upsert(ctx context.Context, rec any) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
}

func (s *gormStore) UpsertCategory(ctx context.Context, rec *models.PosCategory) error {
	return s.upsert(ctx, rec)
}

func (s *gormStore) UpsertProduct(ctx context.Context, rec *models.PosProduct) error {
	return s.upsert(ctx, rec)
}

func (s *gormStore) UpsertCustomer(ctx context.Context, rec *models.PosCustomer) error {
	return s.upsert(ctx, rec)
}

func (s *gormStore) UpsertRoom(ctx context.Context, rec *models.PosRoom) error {
	return s.upsert(ctx, rec)
}

func (s *gormStore) UpsertTable(ctx context.Context, rec *models.PosTable) error {
	return s.upsert(ctx, rec)
}

func (s *gormStore) UpsertStockLevel(ctx context.Context, rec *models.PosStockLevel) error {
	return s.upsert(ctx, rec)
}

func (s *gormStore) UpsertProductSale(ctx context.Context, rec *models.PosProductSale) error {
	return s.upsert(ctx, rec)
}

// UpsertReceipt replaces the receipt's rows wholesale: the POS is the source
// of truth for row composition, and row ids are not stable across edits.
func (s *gormStore) UpsertReceipt(ctx context.Context, rec *models.PosReceipt, rows []models.PosReceiptRow) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(rec).Error; err != nil {
			return err
		}
		if err := tx.Where("restaurant_id = ? AND receipt_id = ?", rec.RestaurantId, rec.ID).
			Delete(&models.PosReceiptRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}
