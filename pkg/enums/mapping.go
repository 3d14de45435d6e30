package enums

import "fmt"

// CandidateState is the lifecycle of a mapping candidate.
type CandidateState string

const (
	CandidateSuggested      CandidateState = "suggested"
	CandidateRequiresReview CandidateState = "requires_review"
	CandidateConfirmed      CandidateState = "confirmed"
	CandidateRejected       CandidateState = "rejected"
	CandidateIgnored        CandidateState = "ignored"
)

var validCandidateStates = []CandidateState{
	CandidateSuggested,
	CandidateRequiresReview,
	CandidateConfirmed,
	CandidateRejected,
	CandidateIgnored,
}

func (s CandidateState) IsValid() bool {
	for _, candidate := range validCandidateStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the candidate left the open states.
func (s CandidateState) IsTerminal() bool {
	return s != CandidateSuggested && s != CandidateRequiresReview
}

func ParseCandidateState(value string) (CandidateState, error) {
	for _, candidate := range validCandidateStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid candidate state %q", value)
}

// CandidateAction is an admin decision on a candidate.
type CandidateAction string

const (
	CandidateActionConfirm CandidateAction = "confirm"
	CandidateActionIgnore  CandidateAction = "ignore"
	CandidateActionReject  CandidateAction = "reject"
)

func ParseCandidateAction(value string) (CandidateAction, error) {
	switch CandidateAction(value) {
	case CandidateActionConfirm, CandidateActionIgnore, CandidateActionReject:
		return CandidateAction(value), nil
	}
	return "", fmt.Errorf("invalid candidate action %q", value)
}

// ResultingState maps the action onto the terminal candidate state.
func (a CandidateAction) ResultingState() CandidateState {
	switch a {
	case CandidateActionConfirm:
		return CandidateConfirmed
	case CandidateActionIgnore:
		return CandidateIgnored
	default:
		return CandidateRejected
	}
}

// OnboardingAction is the bulk strategy picked when switching a module to external.
type OnboardingAction string

const (
	OnboardingMerge  OnboardingAction = "merge"
	OnboardingDelete OnboardingAction = "delete"
	OnboardingDefer  OnboardingAction = "defer"
)

func ParseOnboardingAction(value string) (OnboardingAction, error) {
	switch OnboardingAction(value) {
	case OnboardingMerge, OnboardingDelete, OnboardingDefer:
		return OnboardingAction(value), nil
	}
	return "", fmt.Errorf("invalid onboarding action %q", value)
}

// EntityType names a linkable local entity.
type EntityType string

const (
	EntityCategory      EntityType = "category"
	EntityItem          EntityType = "item"
	EntityVariant       EntityType = "variant"
	EntityModifierGroup EntityType = "modifier_group"
	EntityModifier      EntityType = "modifier"
	EntityBranch        EntityType = "branch"
	EntityUser          EntityType = "user"
	EntityOrder         EntityType = "order"
)
