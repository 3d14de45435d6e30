package catalog

import (
	"github.com/angelmondragon/foodsync-backend/internal/syncstatus"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
)

// Request is the menu sync job payload.
type Request struct {
	Reason enums.SyncReason `json:"reason"`
	CityID *int64           `json:"cityId,omitempty"`
}

// Counts tallies what one run wrote.
type Counts struct {
	Categories     int `json:"categories"`
	Items          int `json:"items"`
	Variants       int `json:"variants"`
	ModifierGroups int `json:"modifier_groups"`
	Modifiers      int `json:"modifiers"`
	Deleted        int `json:"deleted"`
	Deactivated    int `json:"deactivated"`
	Retired        int `json:"retired"`
}

// Result summarizes a catalog sync. PartialErrors lists organizations whose
// fetch failed while others succeeded.
type Result struct {
	Outcome       syncstatus.Outcome `json:"outcome"`
	Reason        string             `json:"reason,omitempty"`
	Organizations []string           `json:"organizations,omitempty"`
	Widened       bool               `json:"widened,omitempty"`
	Counts        Counts             `json:"counts"`
	Revisions     map[string]int64   `json:"revisions,omitempty"`
	PartialErrors []string           `json:"partial_errors,omitempty"`
	Tombstoned    bool               `json:"tombstoned"`
}
