package app

import "surgicalprep-study/internal/domain"

// Action identifies a gated feature.
type Action string

const (
	ActionCreateCard  Action = "create_card"
	ActionTakeQuiz    Action = "take_quiz"
	ActionFlashcards  Action = "flashcards"
	ActionFullDetails Action = "full_instrument_details"
)

// denialMessages maps gated features to the copy shown in the upgrade prompt.
var denialMessages = map[Action]string{
	ActionCreateCard:  "Card limit reached. Upgrade to premium for unlimited preference cards.",
	ActionTakeQuiz:    "Daily quiz limit reached. Upgrade to premium for unlimited quizzes.",
	ActionFullDetails: "Full instrument details require a premium subscription.",
}

// Prompter is shown upgrade prompts on gate denials. Presentation only.
type Prompter interface {
	ShowUpgradePrompt(feature Action, reason string)
}

// Evaluate decides whether an action may proceed under the given snapshot.
// It never mutates counters; the backend remains the authority and rejects
// over-limit mutations itself.
//
// A nil snapshot allows everything (fail open): blocking the user on a cold
// cache would be worse than one futile request the backend turns down.
func Evaluate(snapshot *domain.EntitlementSnapshot, action Action) domain.GateDecision {
	if snapshot == nil {
		return domain.GateDecision{Allowed: true}
	}
	if snapshot.Tier == domain.TierPremium && snapshot.IsActive {
		return domain.GateDecision{Allowed: true}
	}

	switch action {
	case ActionCreateCard:
		if underLimit(snapshot.CardsUsed, snapshot.CardsLimit) {
			return domain.GateDecision{Allowed: true}
		}
	case ActionTakeQuiz:
		if underLimit(snapshot.QuizzesToday, snapshot.QuizzesLimit) {
			return domain.GateDecision{Allowed: true}
		}
	case ActionFullDetails:
		// Free tier never sees full instrument details.
	default:
		return domain.GateDecision{Allowed: true}
	}
	return domain.GateDecision{Allowed: false, Reason: denialMessages[action]}
}

// underLimit reports whether used is strictly below limit; a nil limit is
// always permitting.
func underLimit(used int, limit *int) bool {
	return limit == nil || used < *limit
}
