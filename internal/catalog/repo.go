package catalog

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/foodsync-backend/pkg/db/models"
)

// keepSet holds the external ids one run saw; everything else externally
// sourced is tombstoned.
type keepSet struct {
	categories []string
	items      []string
	variants   []string
	groups     []string
	modifiers  []string
}

// Repository writes the catalog tables. Every call runs on the caller's
// transaction handle.
type Repository interface {
	UpsertCategory(ctx context.Context, tx *gorm.DB, row *models.MenuCategory) error
	UpsertItem(ctx context.Context, tx *gorm.DB, row *models.MenuItem) error
	UpsertVariant(ctx context.Context, tx *gorm.DB, row *models.ItemVariant) error
	UpsertModifierGroup(ctx context.Context, tx *gorm.DB, row *models.ModifierGroup) error
	UpsertModifier(ctx context.Context, tx *gorm.DB, row *models.Modifier) error
	UpsertTag(ctx context.Context, tx *gorm.DB, row *models.Tag) error
	LinkTag(ctx context.Context, tx *gorm.DB, itemID, tagID int64) error
	LinkModifierGroup(ctx context.Context, tx *gorm.DB, link models.ItemModifierGroup) error
	Cities(ctx context.Context, tx *gorm.DB, cityID *int64) ([]models.City, error)
	SetCategoryCities(ctx context.Context, tx *gorm.DB, rows []models.MenuCategoryCity) error
	SetItemCities(ctx context.Context, tx *gorm.DB, rows []models.MenuItemCity) error
	SetPrices(ctx context.Context, tx *gorm.DB, rows []models.ItemPrice) error
	DeletePrices(ctx context.Context, tx *gorm.DB, cityID int64, variantIDs []int64) error
	Retire(ctx context.Context, tx *gorm.DB, ids keepSet) (int, error)
	Tombstone(ctx context.Context, tx *gorm.DB, keep keepSet) (int, error)
	Wipe(ctx context.Context, tx *gorm.DB) error
}

type repository struct{}

func NewRepository() Repository {
	return repository{}
}

// upsert updates the row sharing externalID in place, or inserts row.
func upsert(ctx context.Context, tx *gorm.DB, row any, externalID string, id *int64, fields map[string]any) error {
	var existing struct{ ID int64 }
	err := tx.WithContext(ctx).Model(row).Select("id").Where("external_id = ?", externalID).Take(&existing).Error
	switch {
	case err == nil:
		*id = existing.ID
		return tx.WithContext(ctx).Model(row).Where("id = ?", existing.ID).Updates(fields).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.WithContext(ctx).Create(row).Error
	default:
		return err
	}
}

func (repository) UpsertCategory(ctx context.Context, tx *gorm.DB, row *models.MenuCategory) error {
	return upsert(ctx, tx, row, *row.ExternalID, &row.ID, map[string]any{
		"name":        row.Name,
		"description": row.Description,
		"sort_order":  row.SortOrder,
		"is_active":   row.IsActive,
	})
}

func (repository) UpsertItem(ctx context.Context, tx *gorm.DB, row *models.MenuItem) error {
	return upsert(ctx, tx, row, *row.ExternalID, &row.ID, map[string]any{
		"category_id": row.CategoryID,
		"name":        row.Name,
		"description": row.Description,
		"weight":      row.Weight,
		"price":       row.Price,
		"sort_order":  row.SortOrder,
		"is_active":   row.IsActive,
	})
}

func (repository) UpsertVariant(ctx context.Context, tx *gorm.DB, row *models.ItemVariant) error {
	return upsert(ctx, tx, row, *row.ExternalID, &row.ID, map[string]any{
		"item_id":    row.ItemID,
		"name":       row.Name,
		"price":      row.Price,
		"sort_order": row.SortOrder,
		"is_active":  row.IsActive,
	})
}

func (repository) UpsertModifierGroup(ctx context.Context, tx *gorm.DB, row *models.ModifierGroup) error {
	return upsert(ctx, tx, row, *row.ExternalID, &row.ID, map[string]any{
		"name":       row.Name,
		"sort_order": row.SortOrder,
		"is_active":  row.IsActive,
	})
}

func (repository) UpsertModifier(ctx context.Context, tx *gorm.DB, row *models.Modifier) error {
	return upsert(ctx, tx, row, *row.ExternalID, &row.ID, map[string]any{
		"group_id":   row.GroupID,
		"name":       row.Name,
		"price":      row.Price,
		"sort_order": row.SortOrder,
		"is_active":  row.IsActive,
	})
}

func (repository) UpsertTag(ctx context.Context, tx *gorm.DB, row *models.Tag) error {
	return upsert(ctx, tx, row, *row.ExternalID, &row.ID, map[string]any{"name": row.Name})
}

func (repository) LinkTag(ctx context.Context, tx *gorm.DB, itemID, tagID int64) error {
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.MenuItemTag{ItemID: itemID, TagID: tagID}).Error
}

func (repository) LinkModifierGroup(ctx context.Context, tx *gorm.DB, link models.ItemModifierGroup) error {
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "item_id"}, {Name: "group_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"min_amount", "max_amount"}),
		}).
		Create(&link).Error
}

// Cities returns the activation targets: one city when cityID is set, else
// every active city.
func (repository) Cities(ctx context.Context, tx *gorm.DB, cityID *int64) ([]models.City, error) {
	query := tx.WithContext(ctx).Model(&models.City{}).Where("is_active = ?", true)
	if cityID != nil {
		query = query.Where("id = ?", *cityID)
	}
	var cities []models.City
	if err := query.Order("id ASC").Find(&cities).Error; err != nil {
		return nil, err
	}
	return cities, nil
}

func (repository) SetCategoryCities(ctx context.Context, tx *gorm.DB, rows []models.MenuCategoryCity) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "category_id"}, {Name: "city_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_active", "updated_at"}),
		}).
		Create(&rows).Error
}

func (repository) SetItemCities(ctx context.Context, tx *gorm.DB, rows []models.MenuItemCity) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "item_id"}, {Name: "city_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_active", "updated_at"}),
		}).
		Create(&rows).Error
}

func (repository) SetPrices(ctx context.Context, tx *gorm.DB, rows []models.ItemPrice) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "variant_id"}, {Name: "city_id"}, {Name: "fulfillment_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"price", "updated_at"}),
		}).
		Create(&rows).Error
}

func (repository) DeletePrices(ctx context.Context, tx *gorm.DB, cityID int64, variantIDs []int64) error {
	if len(variantIDs) == 0 {
		return nil
	}
	return tx.WithContext(ctx).
		Where("city_id = ? AND variant_id IN ?", cityID, variantIDs).
		Delete(&models.ItemPrice{}).Error
}

// staleIDs selects externally sourced rows whose external id is not in keep.
// Rows without an external id are local-only and never selected.
func staleIDs(ctx context.Context, tx *gorm.DB, model any, keep []string) ([]int64, error) {
	query := tx.WithContext(ctx).Model(model).Where(externalOnly)
	if len(keep) > 0 {
		query = query.Where("external_id NOT IN ?", keep)
	}
	var ids []int64
	if err := query.Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

const externalOnly = "external_id IS NOT NULL AND external_id <> ''"

// Retire deactivates rows the pull still carries but no longer publishes,
// along with their city rows, and drops their prices. Rows that were never
// synced are not created. It returns how many items were deactivated.
func (repository) Retire(ctx context.Context, tx *gorm.DB, ids keepSet) (int, error) {
	db := tx.WithContext(ctx)
	retired := 0

	if len(ids.items) > 0 {
		var itemIDs []int64
		if err := db.Model(&models.MenuItem{}).Where("external_id IN ?", ids.items).Pluck("id", &itemIDs).Error; err != nil {
			return 0, err
		}
		if len(itemIDs) > 0 {
			if err := db.Model(&models.MenuItem{}).Where("id IN ?", itemIDs).Update("is_active", false).Error; err != nil {
				return 0, err
			}
			if err := db.Model(&models.MenuItemCity{}).Where("item_id IN ?", itemIDs).Update("is_active", false).Error; err != nil {
				return 0, err
			}
			retired = len(itemIDs)
		}
	}

	if len(ids.variants) > 0 {
		var variantIDs []int64
		if err := db.Model(&models.ItemVariant{}).Where("external_id IN ?", ids.variants).Pluck("id", &variantIDs).Error; err != nil {
			return 0, err
		}
		if len(variantIDs) > 0 {
			if err := db.Model(&models.ItemVariant{}).Where("id IN ?", variantIDs).Update("is_active", false).Error; err != nil {
				return 0, err
			}
			if err := db.Where("variant_id IN ?", variantIDs).Delete(&models.ItemPrice{}).Error; err != nil {
				return 0, err
			}
		}
	}

	if len(ids.categories) > 0 {
		var categoryIDs []int64
		if err := db.Model(&models.MenuCategory{}).Where("external_id IN ?", ids.categories).Pluck("id", &categoryIDs).Error; err != nil {
			return 0, err
		}
		if len(categoryIDs) > 0 {
			if err := db.Model(&models.MenuCategory{}).Where("id IN ?", categoryIDs).Update("is_active", false).Error; err != nil {
				return 0, err
			}
			if err := db.Model(&models.MenuCategoryCity{}).Where("category_id IN ?", categoryIDs).Update("is_active", false).Error; err != nil {
				return 0, err
			}
		}
	}

	if len(ids.groups) > 0 {
		if err := db.Model(&models.ModifierGroup{}).Where("external_id IN ?", ids.groups).Update("is_active", false).Error; err != nil {
			return 0, err
		}
	}
	if len(ids.modifiers) > 0 {
		if err := db.Model(&models.Modifier{}).Where("external_id IN ?", ids.modifiers).Update("is_active", false).Error; err != nil {
			return 0, err
		}
	}
	return retired, nil
}

// Tombstone deletes externally sourced rows the run did not see, children
// first, and returns how many catalog rows were removed. Local-only rows are
// never touched: a stale parent that still owns one is deactivated instead
// of deleted.
func (repository) Tombstone(ctx context.Context, tx *gorm.DB, keep keepSet) (int, error) {
	db := tx.WithContext(ctx)
	removed := 0

	modifierIDs, err := staleIDs(ctx, tx, &models.Modifier{}, keep.modifiers)
	if err != nil {
		return 0, err
	}
	if len(modifierIDs) > 0 {
		if err := db.Where("modifier_id IN ?", modifierIDs).Delete(&models.StopListEntry{}).Error; err != nil {
			return 0, err
		}
		if err := db.Where("id IN ?", modifierIDs).Delete(&models.Modifier{}).Error; err != nil {
			return 0, err
		}
		removed += len(modifierIDs)
	}

	groupIDs, err := staleIDs(ctx, tx, &models.ModifierGroup{}, keep.groups)
	if err != nil {
		return 0, err
	}
	if len(groupIDs) > 0 {
		var occupied []int64
		if err := db.Model(&models.Modifier{}).Distinct("group_id").Where("group_id IN ?", groupIDs).Pluck("group_id", &occupied).Error; err != nil {
			return 0, err
		}
		if len(occupied) > 0 {
			if err := db.Model(&models.ModifierGroup{}).Where("id IN ?", occupied).Update("is_active", false).Error; err != nil {
				return 0, err
			}
		}
		empty := difference(groupIDs, occupied)
		if len(empty) > 0 {
			if err := db.Where("group_id IN ?", empty).Delete(&models.ItemModifierGroup{}).Error; err != nil {
				return 0, err
			}
			if err := db.Where("id IN ?", empty).Delete(&models.ModifierGroup{}).Error; err != nil {
				return 0, err
			}
			removed += len(empty)
		}
	}

	itemIDs, err := staleIDs(ctx, tx, &models.MenuItem{}, keep.items)
	if err != nil {
		return 0, err
	}
	variantIDs, err := staleIDs(ctx, tx, &models.ItemVariant{}, keep.variants)
	if err != nil {
		return 0, err
	}
	if len(itemIDs) > 0 {
		var childVariants []int64
		if err := db.Model(&models.ItemVariant{}).Where("item_id IN ?", itemIDs).Where(externalOnly).Pluck("id", &childVariants).Error; err != nil {
			return 0, err
		}
		variantIDs = appendUnique(variantIDs, childVariants)
	}
	if len(variantIDs) > 0 {
		if err := deleteVariants(db, variantIDs); err != nil {
			return 0, err
		}
		removed += len(variantIDs)
	}
	if len(itemIDs) > 0 {
		var occupied []int64
		if err := db.Model(&models.ItemVariant{}).Distinct("item_id").Where("item_id IN ?", itemIDs).Pluck("item_id", &occupied).Error; err != nil {
			return 0, err
		}
		if len(occupied) > 0 {
			if err := db.Model(&models.MenuItem{}).Where("id IN ?", occupied).Update("is_active", false).Error; err != nil {
				return 0, err
			}
			if err := db.Model(&models.MenuItemCity{}).Where("item_id IN ?", occupied).Update("is_active", false).Error; err != nil {
				return 0, err
			}
		}
		empty := difference(itemIDs, occupied)
		if len(empty) > 0 {
			if err := deleteItems(db, empty); err != nil {
				return 0, err
			}
			removed += len(empty)
		}
	}

	categoryIDs, err := staleIDs(ctx, tx, &models.MenuCategory{}, keep.categories)
	if err != nil {
		return 0, err
	}
	if len(categoryIDs) > 0 {
		var occupied []int64
		if err := db.Model(&models.MenuItem{}).Distinct("category_id").Where("category_id IN ?", categoryIDs).Pluck("category_id", &occupied).Error; err != nil {
			return 0, err
		}
		if len(occupied) > 0 {
			if err := db.Model(&models.MenuCategory{}).Where("id IN ?", occupied).Update("is_active", false).Error; err != nil {
				return 0, err
			}
			if err := db.Model(&models.MenuCategoryCity{}).Where("category_id IN ?", occupied).Update("is_active", false).Error; err != nil {
				return 0, err
			}
		}
		empty := difference(categoryIDs, occupied)
		if len(empty) > 0 {
			if err := db.Where("category_id IN ?", empty).Delete(&models.MenuCategoryCity{}).Error; err != nil {
				return 0, err
			}
			if err := db.Where("id IN ?", empty).Delete(&models.MenuCategory{}).Error; err != nil {
				return 0, err
			}
			removed += len(empty)
		}
	}
	return removed, nil
}

func deleteVariants(db *gorm.DB, ids []int64) error {
	if err := db.Where("variant_id IN ?", ids).Delete(&models.ItemPrice{}).Error; err != nil {
		return err
	}
	if err := db.Where("variant_id IN ?", ids).Delete(&models.StopListEntry{}).Error; err != nil {
		return err
	}
	return db.Where("id IN ?", ids).Delete(&models.ItemVariant{}).Error
}

func deleteItems(db *gorm.DB, ids []int64) error {
	for _, model := range []any{&models.MenuItemCity{}, &models.MenuItemTag{}, &models.ItemModifierGroup{}, &models.StopListEntry{}} {
		if err := db.Where("item_id IN ?", ids).Delete(model).Error; err != nil {
			return err
		}
	}
	return db.Where("id IN ?", ids).Delete(&models.MenuItem{}).Error
}

// Wipe removes the whole local menu catalog, local-only rows included.
func (repository) Wipe(ctx context.Context, tx *gorm.DB) error {
	db := tx.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, model := range []any{
		&models.ItemPrice{},
		&models.StopListEntry{},
		&models.MenuItemTag{},
		&models.ItemModifierGroup{},
		&models.MenuItemCity{},
		&models.MenuCategoryCity{},
		&models.Modifier{},
		&models.ModifierGroup{},
		&models.ItemVariant{},
		&models.MenuItem{},
		&models.MenuCategory{},
	} {
		if err := db.Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

func appendUnique(base, extra []int64) []int64 {
	seen := make(map[int64]bool, len(base))
	for _, id := range base {
		seen[id] = true
	}
	for _, id := range extra {
		if !seen[id] {
			seen[id] = true
			base = append(base, id)
		}
	}
	return base
}

func difference(all, remove []int64) []int64 {
	drop := make(map[int64]bool, len(remove))
	for _, id := range remove {
		drop[id] = true
	}
	var out []int64
	for _, id := range all {
		if !drop[id] {
			out = append(out, id)
		}
	}
	return out
}
