package enums

import "fmt"

// ReadinessStatus summarizes how completely a module's entities are linked.
type ReadinessStatus string

const (
	ReadinessNotConfigured ReadinessStatus = "not_configured"
	ReadinessNeedsMapping  ReadinessStatus = "needs_mapping"
	ReadinessReady         ReadinessStatus = "ready"
)

func (s ReadinessStatus) IsValid() bool {
	switch s {
	case ReadinessNotConfigured, ReadinessNeedsMapping, ReadinessReady:
		return true
	}
	return false
}

func ParseReadinessStatus(value string) (ReadinessStatus, error) {
	status := ReadinessStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid readiness status %q", value)
	}
	return status, nil
}
