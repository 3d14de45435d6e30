package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/foodsync-backend/internal/pos"
)

// fetched is one organization's nomenclature.
type fetched struct {
	org     string
	catalog *pos.Nomenclature
}

type menuSize struct {
	sizeID *string
	name   string
	prices map[string]decimal.Decimal
}

// scope limits which external categories and items are published. A nil
// menu means the nomenclature groups are used, narrowed by the allow-list.
type scope struct {
	allow map[string]bool
	menu  *menuScope
}

type menuScope struct {
	categories   []pos.MenuItemCategory
	itemCategory map[string]string
	itemNames    map[string]string
	sizes        map[string][]menuSize
}

func newScope(allowList []string, menu *pos.ExternalMenu) scope {
	sc := scope{}
	if len(allowList) > 0 {
		sc.allow = make(map[string]bool, len(allowList))
		for _, id := range allowList {
			sc.allow[id] = true
		}
	}
	if menu == nil {
		return sc
	}
	ms := &menuScope{
		categories:   menu.Categories,
		itemCategory: map[string]string{},
		itemNames:    map[string]string{},
		sizes:        map[string][]menuSize{},
	}
	for _, category := range menu.Categories {
		for _, item := range category.Items {
			if _, seen := ms.itemCategory[item.ItemID]; seen {
				continue
			}
			ms.itemCategory[item.ItemID] = category.ID
			ms.itemNames[item.ItemID] = item.Name
			for _, size := range item.Sizes {
				entry := menuSize{sizeID: size.SizeID, name: size.SizeName, prices: map[string]decimal.Decimal{}}
				for _, price := range size.Prices {
					if price.Price == nil {
						continue
					}
					for _, org := range price.OrganizationIDs {
						entry.prices[org] = *price.Price
					}
				}
				ms.sizes[item.ItemID] = append(ms.sizes[item.ItemID], entry)
			}
		}
	}
	sc.menu = ms
	return sc
}

// filtered reports whether any category or menu filter narrows the catalog.
func (s scope) filtered() bool {
	return s.allow != nil || s.menu != nil
}

func (s scope) allowsCategory(id string) bool {
	if s.allow == nil {
		return true
	}
	return s.allow[id]
}

type plannedCategory struct {
	externalID  string
	name        string
	description *string
	order       int
	orgs        map[string]bool
}

type plannedVariant struct {
	externalID string
	name       string
	order      int
	prices     map[string]decimal.Decimal
}

type groupLink struct {
	groupExternalID string
	min             int
	max             int
}

type plannedItem struct {
	externalID         string
	categoryExternalID string
	name               string
	description        *string
	weight             *decimal.Decimal
	order              int
	tags               []string
	variants           []plannedVariant
	groups             []groupLink
	orgs               map[string]bool
}

// activeIn reports whether the item is published and priced for org.
func (i *plannedItem) activeIn(org string) bool {
	if !i.orgs[org] {
		return false
	}
	for _, variant := range i.variants {
		if _, ok := variant.prices[org]; ok {
			return true
		}
	}
	return false
}

// basePrice is the lowest price of any variant in any organization.
func (i *plannedItem) basePrice() decimal.Decimal {
	var (
		best  decimal.Decimal
		found bool
	)
	for _, variant := range i.variants {
		for _, price := range variant.prices {
			if !found || price.LessThan(best) {
				best, found = price, true
			}
		}
	}
	return best
}

type plannedGroup struct {
	externalID string
	name       string
	order      int
}

type plannedModifier struct {
	externalID      string
	groupExternalID string
	name            string
	price           decimal.Decimal
	order           int
}

// plan is the merged, filtered catalog of every fetched organization in the
// order it must be written. retired holds ids the pull still carries but
// does not publish; those rows are kept and deactivated.
type plan struct {
	categories []*plannedCategory
	items      []*plannedItem
	groups     []*plannedGroup
	modifiers  []*plannedModifier
	retired    keepSet
}

func (p *plan) empty() bool {
	return len(p.items) == 0
}

// externalIDs returns the keep-sets for the tombstone pass: everything
// published plus everything retired.
func (p *plan) externalIDs() keepSet {
	keep := p.published()
	keep.categories = append(keep.categories, p.retired.categories...)
	keep.items = append(keep.items, p.retired.items...)
	keep.variants = append(keep.variants, p.retired.variants...)
	keep.groups = append(keep.groups, p.retired.groups...)
	keep.modifiers = append(keep.modifiers, p.retired.modifiers...)
	return keep
}

func (p *plan) published() keepSet {
	keep := keepSet{}
	for _, c := range p.categories {
		keep.categories = append(keep.categories, c.externalID)
	}
	for _, item := range p.items {
		keep.items = append(keep.items, item.externalID)
		for _, variant := range item.variants {
			keep.variants = append(keep.variants, variant.externalID)
		}
	}
	for _, g := range p.groups {
		keep.groups = append(keep.groups, g.externalID)
	}
	for _, m := range p.modifiers {
		keep.modifiers = append(keep.modifiers, m.externalID)
	}
	return keep
}

// excluded collects ids seen upstream that were deleted or filtered out.
type excluded struct {
	categories map[string]bool
	items      map[string]bool
	variants   map[string]bool
	groups     map[string]bool
	modifiers  map[string]bool
}

func newExcluded() excluded {
	return excluded{
		categories: map[string]bool{},
		items:      map[string]bool{},
		variants:   map[string]bool{},
		groups:     map[string]bool{},
		modifiers:  map[string]bool{},
	}
}

// without drops the ids another organization published.
func (e excluded) without(published keepSet) keepSet {
	return keepSet{
		categories: subtract(e.categories, published.categories),
		items:      subtract(e.items, published.items),
		variants:   subtract(e.variants, published.variants),
		groups:     subtract(e.groups, published.groups),
		modifiers:  subtract(e.modifiers, published.modifiers),
	}
}

func subtract(ids map[string]bool, drop []string) []string {
	skip := make(map[string]bool, len(drop))
	for _, id := range drop {
		skip[id] = true
	}
	var out []string
	for id := range ids {
		if !skip[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

type planner struct {
	scope      scope
	plan       *plan
	categories map[string]*plannedCategory
	items      map[string]*plannedItem
	groups     map[string]*plannedGroup
	modifiers  map[string]*plannedModifier
	excluded   excluded
}

// buildPlan merges the organizations in order; the first organization to
// describe an entity names it, later ones only add presence and prices.
func buildPlan(sources []fetched, sc scope) *plan {
	p := &planner{
		scope:      sc,
		plan:       &plan{},
		categories: map[string]*plannedCategory{},
		items:      map[string]*plannedItem{},
		groups:     map[string]*plannedGroup{},
		modifiers:  map[string]*plannedModifier{},
		excluded:   newExcluded(),
	}
	for _, src := range sources {
		if src.catalog == nil {
			continue
		}
		p.add(src.org, src.catalog)
	}
	if sc.menu != nil {
		p.addMenuOnlyItems(sources)
	}
	sort.SliceStable(p.plan.categories, func(i, j int) bool {
		return p.plan.categories[i].order < p.plan.categories[j].order
	})
	p.plan.retired = p.excluded.without(p.plan.published())
	return p.plan
}

func (p *planner) add(org string, catalog *pos.Nomenclature) {
	groups := make(map[string]pos.Group, len(catalog.Groups))
	for _, g := range catalog.Groups {
		groups[g.ID] = g
	}
	products := make(map[string]pos.Product, len(catalog.Products))
	for _, product := range catalog.Products {
		products[product.ID] = product
	}
	sizes := make(map[string]string, len(catalog.Sizes))
	for _, size := range catalog.Sizes {
		sizes[size.ID] = size.Name
	}

	for _, g := range catalog.Groups {
		if g.IsGroupModifier {
			p.excluded.groups[g.ID] = true
		} else {
			p.excluded.categories[g.ID] = true
		}
	}
	for _, product := range catalog.Products {
		if product.Type == pos.ProductTypeModifier {
			continue
		}
		categoryID, ok := p.categoryFor(product, groups)
		if product.IsDeleted || !ok {
			p.exclude(product)
			continue
		}
		category := p.category(categoryID, groups)
		category.orgs[org] = true

		item, seen := p.items[product.ID]
		if !seen {
			item = &plannedItem{
				externalID:         product.ID,
				categoryExternalID: categoryID,
				name:               strings.TrimSpace(product.Name),
				description:        product.Description,
				order:              product.Order,
				tags:               product.Tags,
				orgs:               map[string]bool{},
			}
			if product.Weight != nil {
				weight := decimal.NewFromFloat(*product.Weight)
				item.weight = &weight
			}
			p.items[product.ID] = item
			p.plan.items = append(p.plan.items, item)
		}
		item.orgs[org] = true
		p.addVariants(org, item, product, sizes)
		if !seen {
			p.addModifiers(item, product, groups, products)
		}
	}
}

// exclude records a product that is not published along with the variants
// and modifier groups it carries.
func (p *planner) exclude(product pos.Product) {
	p.excluded.items[product.ID] = true
	for _, sp := range product.SizePrices {
		p.excluded.variants[pos.VariantExternalID(product.ID, sp.SizeID)] = true
	}
	if p.scope.menu != nil {
		for _, size := range p.scope.menu.sizes[product.ID] {
			p.excluded.variants[pos.VariantExternalID(product.ID, size.sizeID)] = true
		}
	}
	for _, gm := range product.GroupModifiers {
		p.excluded.groups[gm.ID] = true
		for _, child := range gm.ChildModifiers {
			p.excluded.modifiers[pos.ModifierExternalID(gm.ID, child.ID)] = true
		}
	}
}

// categoryFor resolves the local category of a product, or false when the
// product falls outside the scope.
func (p *planner) categoryFor(product pos.Product, groups map[string]pos.Group) (string, bool) {
	if p.scope.menu != nil {
		id, ok := p.scope.menu.itemCategory[product.ID]
		return id, ok
	}
	id := product.CategoryID()
	if id == "" || !p.scope.allowsCategory(id) {
		return "", false
	}
	group, ok := groups[id]
	if !ok || group.IsDeleted || group.IsGroupModifier || !group.IsIncludedInMenu {
		return "", false
	}
	return id, true
}

func (p *planner) category(id string, groups map[string]pos.Group) *plannedCategory {
	if existing, ok := p.categories[id]; ok {
		return existing
	}
	category := &plannedCategory{externalID: id, orgs: map[string]bool{}}
	if p.scope.menu != nil {
		for i, menuCategory := range p.scope.menu.categories {
			if menuCategory.ID == id {
				category.name = menuCategory.Name
				category.order = i
				break
			}
		}
	} else if group, ok := groups[id]; ok {
		category.name = group.Name
		category.description = group.Description
		category.order = group.Order
	}
	if category.name == "" {
		category.name = id
	}
	p.categories[id] = category
	p.plan.categories = append(p.plan.categories, category)
	return category
}

func (p *planner) addVariants(org string, item *plannedItem, product pos.Product, sizeNames map[string]string) {
	if p.scope.menu != nil {
		for i, size := range p.scope.menu.sizes[product.ID] {
			name := size.name
			if name == "" && size.sizeID != nil {
				name = sizeNames[*size.sizeID]
			}
			variant := p.variant(item, pos.VariantExternalID(product.ID, size.sizeID), name, i)
			if price, ok := size.prices[org]; ok {
				variant.prices[org] = price
			}
		}
		return
	}
	for i, sp := range product.SizePrices {
		name := ""
		if sp.SizeID != nil {
			name = sizeNames[*sp.SizeID]
		}
		variant := p.variant(item, pos.VariantExternalID(product.ID, sp.SizeID), name, i)
		if sp.Price.IsIncludedInMenu {
			variant.prices[org] = sp.Price.CurrentPrice
		}
	}
}

func (p *planner) variant(item *plannedItem, externalID, name string, ordinal int) *plannedVariant {
	for i := range item.variants {
		if item.variants[i].externalID == externalID {
			return &item.variants[i]
		}
	}
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("Вариант %d", ordinal+1)
	}
	item.variants = append(item.variants, plannedVariant{
		externalID: externalID,
		name:       strings.TrimSpace(name),
		order:      ordinal,
		prices:     map[string]decimal.Decimal{},
	})
	return &item.variants[len(item.variants)-1]
}

func (p *planner) addModifiers(item *plannedItem, product pos.Product, groups map[string]pos.Group, products map[string]pos.Product) {
	for _, gm := range product.GroupModifiers {
		group, ok := p.groups[gm.ID]
		if !ok {
			group = &plannedGroup{externalID: gm.ID, name: gm.ID, order: len(p.plan.groups)}
			if source, found := groups[gm.ID]; found && source.Name != "" {
				group.name = source.Name
				group.order = source.Order
			}
			p.groups[gm.ID] = group
			p.plan.groups = append(p.plan.groups, group)
		}
		item.groups = append(item.groups, groupLink{groupExternalID: gm.ID, min: gm.MinAmount, max: gm.MaxAmount})

		for i, child := range gm.ChildModifiers {
			externalID := pos.ModifierExternalID(gm.ID, child.ID)
			if _, seen := p.modifiers[externalID]; seen {
				continue
			}
			modifier := &plannedModifier{externalID: externalID, groupExternalID: gm.ID, name: child.ID, order: i}
			if source, found := products[child.ID]; found {
				modifier.name = strings.TrimSpace(source.Name)
				modifier.order = source.Order
				if len(source.SizePrices) > 0 {
					modifier.price = source.SizePrices[0].Price.CurrentPrice
				}
			}
			p.modifiers[externalID] = modifier
			p.plan.modifiers = append(p.plan.modifiers, modifier)
		}
	}
}

// addMenuOnlyItems publishes menu items no fetched nomenclature describes,
// present wherever the menu prices them.
func (p *planner) addMenuOnlyItems(sources []fetched) {
	orgs := map[string]bool{}
	for _, src := range sources {
		if src.catalog != nil {
			orgs[src.org] = true
		}
	}
	for _, menuCategory := range p.scope.menu.categories {
		for _, menuItem := range menuCategory.Items {
			if _, ok := p.items[menuItem.ItemID]; ok || p.excluded.items[menuItem.ItemID] {
				continue
			}
			if p.scope.menu.itemCategory[menuItem.ItemID] != menuCategory.ID {
				continue
			}
			item := &plannedItem{
				externalID:         menuItem.ItemID,
				categoryExternalID: menuCategory.ID,
				name:               strings.TrimSpace(menuItem.Name),
				orgs:               map[string]bool{},
			}
			for i, size := range p.scope.menu.sizes[menuItem.ItemID] {
				variant := p.variant(item, pos.VariantExternalID(menuItem.ItemID, size.sizeID), size.name, i)
				for org, price := range size.prices {
					if !orgs[org] {
						continue
					}
					variant.prices[org] = price
					item.orgs[org] = true
				}
			}
			if len(item.orgs) == 0 {
				continue
			}
			category := p.category(menuCategory.ID, nil)
			for org := range item.orgs {
				category.orgs[org] = true
			}
			p.items[item.externalID] = item
			p.plan.items = append(p.plan.items, item)
		}
	}
}
