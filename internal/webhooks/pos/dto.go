package poswebhook

import (
	"strings"

	"github.com/angelmondragon/foodsync-backend/pkg/enums"
)

// OrderStatusEvent is the POS delivery status callback body.
type OrderStatusEvent struct {
	EventID        string `json:"eventId"`
	OrganizationID string `json:"organizationId"`
	OrderID        string `json:"orderId" validate:"required"`
	Status         string `json:"status" validate:"required"`
}

// Key identifies the delivery for the replay guard. It is empty for events
// without an id; those are deduplicated by the transition log alone.
func (e OrderStatusEvent) Key() string {
	return strings.TrimSpace(e.EventID)
}

// transitionKey is unique per order in the transition log. A delivery with
// an id is applied once; without one, the same from/to move is applied once,
// so a later return to an earlier status is still recorded.
func (e OrderStatusEvent) transitionKey(from, to enums.OrderStatus) string {
	if id := e.Key(); id != "" {
		return "event:" + id
	}
	return "move:" + string(from) + ">" + string(to)
}

// StopListEvent is the POS stop-list change callback body.
type StopListEvent struct {
	EventID         string `json:"eventId"`
	OrganizationID  string `json:"organizationId"`
	TerminalGroupID string `json:"terminalGroupId"`
}

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeQueued    Outcome = "queued"
)

// Result reports what a webhook delivery changed.
type Result struct {
	Outcome  Outcome           `json:"outcome"`
	Reason   string            `json:"reason,omitempty"`
	OrderID  int64             `json:"orderId,omitempty"`
	Status   enums.OrderStatus `json:"status,omitempty"`
	Previous enums.OrderStatus `json:"previousStatus,omitempty"`
	JobID    string            `json:"jobId,omitempty"`
}
