package enums

import "fmt"

// LedgerEventType is a bonus movement recorded for an order.
type LedgerEventType string

const (
	LedgerEventTypeEarn   LedgerEventType = "earn"
	LedgerEventTypeCancel LedgerEventType = "cancel"
)

var validLedgerEventTypes = []LedgerEventType{
	LedgerEventTypeEarn,
	LedgerEventTypeCancel,
}

// IsValid reports whether the value matches a known ledger event.
func (t LedgerEventType) IsValid() bool {
	for _, candidate := range validLedgerEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLedgerEventType converts raw input into LedgerEventType.
func ParseLedgerEventType(value string) (LedgerEventType, error) {
	for _, candidate := range validLedgerEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger event type %q", value)
}
