package settings

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/angelmondragon/foodsync-backend/pkg/enums"
	"github.com/angelmondragon/foodsync-backend/pkg/integration"
)

// Keys of the settings table consumed by the sync engine.
const (
	KeyPOS             = "integration.pos"
	KeyLoyalty         = "integration.loyalty"
	KeyModes           = "integration.modes"
	KeyReadinessPolicy = "integration.readiness_policy"
	KeyRevisionCursors = "integration.pos.revision_cursors"
)

// KnownKeys lists every key Set accepts.
var KnownKeys = []string{KeyPOS, KeyLoyalty, KeyModes, KeyReadinessPolicy, KeyRevisionCursors}

// DefaultMaxUnlinkedPercent applies when no readiness policy is stored.
const DefaultMaxUnlinkedPercent = 0

// POSSettings are the POS credentials and catalog scoping options.
type POSSettings struct {
	Enabled         bool     `json:"enabled"`
	APIKey          string   `json:"apiKey,omitempty"`
	Login           string   `json:"apiLogin,omitempty"`
	OrganizationIDs []string `json:"organizationIds,omitempty"`
	ExternalMenuID  string   `json:"externalMenuId,omitempty"`
	PriceCategoryID string   `json:"priceCategoryId,omitempty"`
	CategoryIDs     []string `json:"syncCategoryIds,omitempty"`
	WebhookSecret   string   `json:"webhookSecret,omitempty"`
}

// Configured reports whether the credentials needed for a token exist.
func (p POSSettings) Configured() bool {
	return strings.TrimSpace(p.Login) != ""
}

// Credentials returns the adapter credential shape.
func (p POSSettings) Credentials() integration.Credentials {
	return integration.Credentials{APIKey: p.APIKey, Login: p.Login}
}

type LoyaltySettings struct {
	Enabled bool   `json:"enabled"`
	APIKey  string `json:"apiKey,omitempty"`
	Login   string `json:"apiLogin,omitempty"`
}

func (l LoyaltySettings) Configured() bool {
	return strings.TrimSpace(l.APIKey) != "" || strings.TrimSpace(l.Login) != ""
}

func (l LoyaltySettings) Credentials() integration.Credentials {
	return integration.Credentials{APIKey: l.APIKey, Login: l.Login}
}

// ReadinessPolicy bounds how much unlinked residue a module tolerates.
type ReadinessPolicy struct {
	MaxUnlinkedPercent float64 `json:"max_unlinked_percent"`
}

// Snapshot is an as-of copy of every setting a processor run consumes.
// Nothing read from it changes while a run is in flight.
type Snapshot struct {
	POS             POSSettings
	Loyalty         LoyaltySettings
	Modes           map[string]enums.IntegrationMode
	Readiness       ReadinessPolicy
	RevisionCursors map[string]int64
	TakenAt         time.Time
}

// ModeKey builds the Modes map key for a module, e.g. "pos.menu".
func ModeKey(provider enums.Integration, module enums.SyncModule) string {
	return fmt.Sprintf("%s.%s", provider, module)
}

// ModeFor returns the operating mode of a module. Modules of a disabled
// integration and modules without a stored mode run locally.
func (s *Snapshot) ModeFor(provider enums.Integration, module enums.SyncModule) enums.IntegrationMode {
	if s == nil || !s.Enabled(provider) {
		return enums.IntegrationModeLocal
	}
	if mode, ok := s.Modes[ModeKey(provider, module)]; ok && mode.IsValid() {
		return mode
	}
	return enums.IntegrationModeLocal
}

// External is shorthand for ModeFor(...) == external.
func (s *Snapshot) External(provider enums.Integration, module enums.SyncModule) bool {
	return s.ModeFor(provider, module) == enums.IntegrationModeExternal
}

func (s *Snapshot) Enabled(provider enums.Integration) bool {
	if s == nil {
		return false
	}
	switch provider {
	case enums.IntegrationPOS:
		return s.POS.Enabled
	case enums.IntegrationLoyalty:
		return s.Loyalty.Enabled
	}
	return false
}

// Cursor returns the stored revision for an organization, zero when unseen.
func (s *Snapshot) Cursor(organizationID string) int64 {
	if s == nil {
		return 0
	}
	return s.RevisionCursors[organizationID]
}

// Clone deep-copies the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.POS.OrganizationIDs = slices.Clone(s.POS.OrganizationIDs)
	out.POS.CategoryIDs = slices.Clone(s.POS.CategoryIDs)
	out.Modes = maps.Clone(s.Modes)
	out.RevisionCursors = maps.Clone(s.RevisionCursors)
	if out.Modes == nil {
		out.Modes = map[string]enums.IntegrationMode{}
	}
	if out.RevisionCursors == nil {
		out.RevisionCursors = map[string]int64{}
	}
	return &out
}

// Provider is the injected read/write surface over runtime settings.
type Provider interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
	// SaveRevisionCursors merges cursors; a stored value is never lowered.
	SaveRevisionCursors(ctx context.Context, cursors map[string]int64) error
	Set(ctx context.Context, key string, value any) error
}

// MergeCursors returns current overlaid with every strictly higher value of next.
func MergeCursors(current, next map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(current)+len(next))
	maps.Copy(out, current)
	for org, revision := range next {
		if org == "" {
			continue
		}
		if revision > out[org] {
			out[org] = revision
		}
	}
	return out
}
