// Package postest provides an in-memory POS API for processor tests.
package postest

import (
	"context"
	"sync"

	"github.com/angelmondragon/foodsync-backend/internal/pos"
)

// Fake serves canned POS responses and records what was asked of it.
type Fake struct {
	mu sync.Mutex

	Orgs         []pos.Organization
	Catalogs     map[string]*pos.Nomenclature
	CatalogErrs  map[string]error
	Menu         *pos.ExternalMenu
	MenuErr      error
	Terminals    []pos.TerminalGroup
	Stops        []pos.StopListItem
	Restrictions []pos.DeliveryRestrictions
	DeliveryErr  error
	DeliveryID   string
	ConnErr      error

	NomenclatureCalls []string
	Deliveries        []pos.DeliveryRequest
}

var _ pos.API = (*Fake)(nil)

func (f *Fake) Organizations(_ context.Context, ids []string) ([]pos.Organization, error) {
	if len(ids) == 0 {
		return f.Orgs, nil
	}
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []pos.Organization
	for _, org := range f.Orgs {
		if want[org.ID] {
			out = append(out, org)
		}
	}
	return out, nil
}

func (f *Fake) Nomenclature(_ context.Context, organizationID string, _ int64) (*pos.Nomenclature, error) {
	f.mu.Lock()
	f.NomenclatureCalls = append(f.NomenclatureCalls, organizationID)
	f.mu.Unlock()
	if err := f.CatalogErrs[organizationID]; err != nil {
		return nil, err
	}
	if catalog, ok := f.Catalogs[organizationID]; ok {
		return catalog, nil
	}
	return &pos.Nomenclature{}, nil
}

func (f *Fake) ExternalMenu(context.Context, string, []string, string) (*pos.ExternalMenu, error) {
	if f.MenuErr != nil {
		return nil, f.MenuErr
	}
	if f.Menu == nil {
		return &pos.ExternalMenu{}, nil
	}
	return f.Menu, nil
}

func (f *Fake) TerminalGroups(context.Context, []string) ([]pos.TerminalGroup, error) {
	return f.Terminals, nil
}

func (f *Fake) StopLists(context.Context, []string) ([]pos.StopListItem, error) {
	return f.Stops, nil
}

func (f *Fake) DeliveryRestrictions(context.Context, []string) ([]pos.DeliveryRestrictions, error) {
	return f.Restrictions, nil
}

func (f *Fake) CreateDelivery(_ context.Context, req pos.DeliveryRequest) (*pos.DeliveryResult, error) {
	f.mu.Lock()
	f.Deliveries = append(f.Deliveries, req)
	f.mu.Unlock()
	if f.DeliveryErr != nil {
		return nil, f.DeliveryErr
	}
	result := &pos.DeliveryResult{CorrelationID: "corr-1"}
	result.OrderInfo.ID = f.DeliveryID
	if result.OrderInfo.ID == "" {
		result.OrderInfo.ID = req.Order.ID
	}
	return result, nil
}

func (f *Fake) TestConnection(context.Context) error {
	return f.ConnErr
}
