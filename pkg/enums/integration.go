package enums

import "fmt"

// Integration names an external system the platform syncs with.
type Integration string

const (
	IntegrationPOS     Integration = "pos"
	IntegrationLoyalty Integration = "loyalty"
)

func (i Integration) String() string {
	return string(i)
}

func (i Integration) IsValid() bool {
	return i == IntegrationPOS || i == IntegrationLoyalty
}

func ParseIntegration(value string) (Integration, error) {
	switch Integration(value) {
	case IntegrationPOS, IntegrationLoyalty:
		return Integration(value), nil
	}
	return "", fmt.Errorf("invalid integration %q", value)
}

// IntegrationMode decides whether a module is driven locally or by the external system.
type IntegrationMode string

const (
	IntegrationModeLocal    IntegrationMode = "local"
	IntegrationModeExternal IntegrationMode = "external"
)

func (m IntegrationMode) IsValid() bool {
	return m == IntegrationModeLocal || m == IntegrationModeExternal
}

func ParseIntegrationMode(value string) (IntegrationMode, error) {
	switch IntegrationMode(value) {
	case IntegrationModeLocal, IntegrationModeExternal:
		return IntegrationMode(value), nil
	}
	return "", fmt.Errorf("invalid integration mode %q", value)
}

// SyncModule identifies a synchronized surface inside an integration.
type SyncModule string

const (
	ModuleMenu          SyncModule = "menu"
	ModuleStopList      SyncModule = "stoplist"
	ModuleDeliveryZones SyncModule = "delivery_zones"
	ModuleOrders        SyncModule = "orders"
	ModuleClients       SyncModule = "clients"
	ModulePurchases     SyncModule = "purchases"
	ModuleWebhooks      SyncModule = "webhooks"
)

var validSyncModules = []SyncModule{
	ModuleMenu,
	ModuleStopList,
	ModuleDeliveryZones,
	ModuleOrders,
	ModuleClients,
	ModulePurchases,
	ModuleWebhooks,
}

func (m SyncModule) String() string {
	return string(m)
}

func (m SyncModule) IsValid() bool {
	for _, candidate := range validSyncModules {
		if candidate == m {
			return true
		}
	}
	return false
}

func ParseSyncModule(value string) (SyncModule, error) {
	for _, candidate := range validSyncModules {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync module %q", value)
}

// SyncReason records what triggered a sync run.
type SyncReason string

const (
	SyncReasonManual     SyncReason = "manual"
	SyncReasonScheduled  SyncReason = "scheduled"
	SyncReasonOnboarding SyncReason = "onboarding"
	SyncReasonWebhook    SyncReason = "webhook"
	SyncReasonRetry      SyncReason = "retry"
)

func (r SyncReason) IsValid() bool {
	switch r {
	case SyncReasonManual, SyncReasonScheduled, SyncReasonOnboarding, SyncReasonWebhook, SyncReasonRetry:
		return true
	}
	return false
}

func ParseSyncReason(value string) (SyncReason, error) {
	if value == "" {
		return SyncReasonManual, nil
	}
	reason := SyncReason(value)
	if !reason.IsValid() {
		return "", fmt.Errorf("invalid sync reason %q", value)
	}
	return reason, nil
}
