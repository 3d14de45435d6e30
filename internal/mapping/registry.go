package mapping

import (
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
)

// entityDef locates the linkable rows of one entity type.
type entityDef struct {
	Type        enums.EntityType
	Table       string
	ExternalCol string
	PriceCol    string
}

func (d entityDef) linkedCond() string {
	return d.ExternalCol + " IS NOT NULL AND " + d.ExternalCol + " <> ''"
}

func (d entityDef) unlinkedCond() string {
	return "(" + d.ExternalCol + " IS NULL OR " + d.ExternalCol + " = '')"
}

// ModuleDef is a (provider, module) pair and the entities whose links make
// it ready.
type ModuleDef struct {
	Provider enums.Integration
	Module   enums.SyncModule
	entities []entityDef
}

func (m ModuleDef) EntityTypes() []enums.EntityType {
	out := make([]enums.EntityType, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, e.Type)
	}
	return out
}

func (m ModuleDef) mergeable() bool {
	return m.Provider == enums.IntegrationPOS && m.Module == enums.ModuleMenu
}

var (
	categoryDef      = entityDef{Type: enums.EntityCategory, Table: "menu_categories", ExternalCol: "external_id"}
	itemDef          = entityDef{Type: enums.EntityItem, Table: "menu_items", ExternalCol: "external_id", PriceCol: "price"}
	variantDef       = entityDef{Type: enums.EntityVariant, Table: "item_variants", ExternalCol: "external_id", PriceCol: "price"}
	modifierGroupDef = entityDef{Type: enums.EntityModifierGroup, Table: "modifier_groups", ExternalCol: "external_id"}
	modifierDef      = entityDef{Type: enums.EntityModifier, Table: "modifiers", ExternalCol: "external_id", PriceCol: "price"}
	branchDef        = entityDef{Type: enums.EntityBranch, Table: "branches", ExternalCol: "external_id"}
	userDef          = entityDef{Type: enums.EntityUser, Table: "users", ExternalCol: "loyalty_external_id"}
)

var registry = []ModuleDef{
	{
		Provider: enums.IntegrationPOS,
		Module:   enums.ModuleMenu,
		entities: []entityDef{categoryDef, itemDef, variantDef, modifierGroupDef, modifierDef},
	},
	{Provider: enums.IntegrationPOS, Module: enums.ModuleStopList, entities: []entityDef{branchDef}},
	{Provider: enums.IntegrationPOS, Module: enums.ModuleDeliveryZones, entities: []entityDef{branchDef}},
	{Provider: enums.IntegrationLoyalty, Module: enums.ModuleClients, entities: []entityDef{userDef}},
}

// Modules lists every module with a readiness record.
func Modules() []ModuleDef {
	return append([]ModuleDef(nil), registry...)
}

// Lookup finds the registered module.
func Lookup(provider enums.Integration, module enums.SyncModule) (ModuleDef, bool) {
	for _, def := range registry {
		if def.Provider == provider && def.Module == module {
			return def, true
		}
	}
	return ModuleDef{}, false
}

func (m ModuleDef) entity(t enums.EntityType) (entityDef, bool) {
	for _, e := range m.entities {
		if e.Type == t {
			return e, true
		}
	}
	return entityDef{}, false
}
