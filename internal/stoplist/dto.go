package stoplist

import (
	"github.com/angelmondragon/foodsync-backend/internal/syncstatus"
	"github.com/angelmondragon/foodsync-backend/pkg/enums"
)

// Request is the stop-list sync job payload.
type Request struct {
	Reason   enums.SyncReason `json:"reason"`
	BranchID *int64           `json:"branchId,omitempty"`
}

type Result struct {
	Outcome   syncstatus.Outcome `json:"outcome"`
	Reason    string             `json:"reason,omitempty"`
	Branches  int                `json:"branches"`
	Entries   int                `json:"entries"`
	Removed   int64              `json:"removed"`
	Unmatched int                `json:"unmatched"`
}
