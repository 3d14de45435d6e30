package enums

import "fmt"

// SyncLogStatus is the lifecycle of one integration_sync_logs row.
type SyncLogStatus string

const (
	SyncLogStatusActive  SyncLogStatus = "active"
	SyncLogStatusSuccess SyncLogStatus = "success"
	SyncLogStatusError   SyncLogStatus = "error"
	SyncLogStatusFailed  SyncLogStatus = "failed"
)

var validSyncLogStatuses = []SyncLogStatus{
	SyncLogStatusActive,
	SyncLogStatusSuccess,
	SyncLogStatusError,
	SyncLogStatusFailed,
}

func (s SyncLogStatus) String() string {
	return string(s)
}

func (s SyncLogStatus) IsValid() bool {
	for _, candidate := range validSyncLogStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the entry has been closed.
func (s SyncLogStatus) IsTerminal() bool {
	return s != SyncLogStatusActive
}

func ParseSyncLogStatus(value string) (SyncLogStatus, error) {
	for _, candidate := range validSyncLogStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync log status %q", value)
}
