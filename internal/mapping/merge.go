package mapping

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/foodsync-backend/pkg/errors"
)

// childMove re-points rows of table from the source owner to the target.
// Rows whose keys the target already holds are dropped instead.
type childMove struct {
	table string
	owner string
	keys  []string
}

var mergePlans = map[enums.EntityType][]childMove{
	enums.EntityCategory: {
		{table: "menu_items", owner: "category_id"},
		{table: "menu_category_cities", owner: "category_id", keys: []string{"city_id"}},
	},
	enums.EntityItem: {
		{table: "item_variants", owner: "item_id"},
		{table: "menu_item_cities", owner: "item_id", keys: []string{"city_id"}},
		{table: "menu_item_tags", owner: "item_id", keys: []string{"tag_id"}},
		{table: "item_modifier_groups", owner: "item_id", keys: []string{"group_id"}},
		{table: "stop_list_entries", owner: "item_id"},
	},
	enums.EntityVariant: {
		{table: "item_prices", owner: "variant_id", keys: []string{"city_id", "fulfillment_type"}},
		{table: "stop_list_entries", owner: "variant_id"},
	},
	enums.EntityModifierGroup: {
		{table: "modifiers", owner: "group_id"},
		{table: "item_modifier_groups", owner: "group_id", keys: []string{"item_id"}},
	},
	enums.EntityModifier: {
		{table: "stop_list_entries", owner: "modifier_id"},
	},
}

// Merge folds the source entity into target: child relations move over and
// the source is deactivated.
func (repository) Merge(ctx context.Context, tx *gorm.DB, entity enums.EntityType, source, target int64) error {
	moves, ok := mergePlans[entity]
	if !ok {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "%s entities cannot be merged", entity)
	}
	def, _ := registry[0].entity(entity)
	if source == target {
		return pkgerrors.New(pkgerrors.CodeValidation, "merge target must differ from the source")
	}

	db := tx.WithContext(ctx)
	var found int64
	if err := db.Table(def.Table).Where("id IN ?", []int64{source, target}).Count(&found).Error; err != nil {
		return err
	}
	if found != 2 {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "%s %d or %d not found", entity, source, target)
	}

	for _, move := range moves {
		if err := move.apply(db, source, target); err != nil {
			return fmt.Errorf("merge %s %d into %d: %s: %w", entity, source, target, move.table, err)
		}
	}
	return db.Table(def.Table).Where("id = ?", source).Update("is_active", false).Error
}

func (m childMove) apply(db *gorm.DB, source, target int64) error {
	if len(m.keys) > 0 {
		conds := make([]string, 0, len(m.keys))
		for _, key := range m.keys {
			conds = append(conds, fmt.Sprintf("t.%s = %s.%s", key, m.table, key))
		}
		drop := fmt.Sprintf(
			"DELETE FROM %s WHERE %s = ? AND EXISTS (SELECT 1 FROM %s t WHERE t.%s = ? AND %s)",
			m.table, m.owner, m.table, m.owner, strings.Join(conds, " AND "),
		)
		if err := db.Exec(drop, source, target).Error; err != nil {
			return err
		}
	}
	return db.Exec(fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", m.table, m.owner, m.owner), target, source).Error
}
