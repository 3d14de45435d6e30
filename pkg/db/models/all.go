package models

// All lists every model in dependency order, for AutoMigrate in tests.
func All() []any {
	return []any{
		&City{},
		&Branch{},
		&MenuCategory{},
		&MenuItem{},
		&ItemVariant{},
		&ModifierGroup{},
		&Modifier{},
		&MenuCategoryCity{},
		&MenuItemCity{},
		&ItemPrice{},
		&ItemModifierGroup{},
		&Tag{},
		&MenuItemTag{},
		&StopListEntry{},
		&DeliveryZone{},
		&User{},
		&Order{},
		&OrderItem{},
		&OrderStatusTransition{},
		&LedgerEvent{},
		&SyncLog{},
		&ReadinessRecord{},
		&MappingCandidate{},
		&Setting{},
	}
}
