package syncstatus

// Outcome is how a processor invocation ended when it did not return an error.
type Outcome string

const (
	OutcomeSynced        Outcome = "synced"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeAlreadySynced Outcome = "already_synced"
	OutcomeUnchanged     Outcome = "unchanged"
)

// Result is returned by the order, client and purchase processors.
type Result struct {
	Outcome    Outcome `json:"outcome"`
	ExternalID string  `json:"external_id,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

func Skipped(reason string) *Result {
	return &Result{Outcome: OutcomeSkipped, Reason: reason}
}
