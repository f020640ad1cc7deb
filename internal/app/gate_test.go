package app_test

import (
	"testing"

	"surgicalprep-study/internal/app"
	"surgicalprep-study/internal/domain"
)

func intptr(v int) *int { return &v }

func TestGateFailsOpenWithoutSnapshot(t *testing.T) {
	for _, action := range []app.Action{app.ActionTakeQuiz, app.ActionCreateCard, app.ActionFullDetails} {
		if d := app.Evaluate(nil, action); !d.Allowed {
			t.Fatalf("expected %s allowed with no snapshot, got %+v", action, d)
		}
	}
}

func TestGatePremiumAllowsEverything(t *testing.T) {
	snap := &domain.EntitlementSnapshot{
		Tier:         domain.TierPremium,
		IsActive:     true,
		CardsUsed:    100,
		QuizzesToday: 100,
	}
	for _, action := range []app.Action{app.ActionTakeQuiz, app.ActionCreateCard, app.ActionFullDetails} {
		if d := app.Evaluate(snap, action); !d.Allowed {
			t.Fatalf("expected %s allowed for active premium, got %+v", action, d)
		}
	}
}

func TestGateDeniesQuizAtLimit(t *testing.T) {
	snap := &domain.EntitlementSnapshot{
		Tier:         domain.TierFree,
		QuizzesToday: 3,
		QuizzesLimit: intptr(3),
	}
	d := app.Evaluate(snap, app.ActionTakeQuiz)
	if d.Allowed {
		t.Fatalf("expected denial at quiz limit")
	}
	if d.Reason == "" {
		t.Fatalf("expected a human-readable reason")
	}

	snap.QuizzesToday = 2
	if d := app.Evaluate(snap, app.ActionTakeQuiz); !d.Allowed {
		t.Fatalf("expected allow below limit, got %+v", d)
	}
}

func TestGateNilLimitIsUnlimited(t *testing.T) {
	snap := &domain.EntitlementSnapshot{
		Tier:         domain.TierFree,
		QuizzesToday: 9000,
		QuizzesLimit: nil,
	}
	if d := app.Evaluate(snap, app.ActionTakeQuiz); !d.Allowed {
		t.Fatalf("expected nil limit to permit, got %+v", d)
	}
}

func TestGateDeniesCardAtLimit(t *testing.T) {
	snap := &domain.EntitlementSnapshot{
		Tier:       domain.TierFree,
		CardsUsed:  5,
		CardsLimit: intptr(5),
	}
	if d := app.Evaluate(snap, app.ActionCreateCard); d.Allowed {
		t.Fatalf("expected card creation denied at limit")
	}
}

func TestGateFreeTierLacksFullDetails(t *testing.T) {
	snap := &domain.EntitlementSnapshot{Tier: domain.TierFree}
	if d := app.Evaluate(snap, app.ActionFullDetails); d.Allowed {
		t.Fatalf("expected full details denied on free tier")
	}
}

func TestGateFlashcardsAlwaysAllowed(t *testing.T) {
	// No flashcard counter is tracked; the action is ungated on every tier.
	snap := &domain.EntitlementSnapshot{Tier: domain.TierFree}
	d := app.Evaluate(snap, app.ActionFlashcards)
	if !d.Allowed {
		t.Fatalf("expected flashcards allowed on free tier, got %+v", d)
	}
	if d.Reason != "" {
		t.Fatalf("expected no denial reason, got %q", d.Reason)
	}
}

func TestGateInactivePremiumFallsBackToCounters(t *testing.T) {
	snap := &domain.EntitlementSnapshot{
		Tier:         domain.TierPremium,
		IsActive:     false,
		QuizzesToday: 3,
		QuizzesLimit: intptr(3),
	}
	if d := app.Evaluate(snap, app.ActionTakeQuiz); d.Allowed {
		t.Fatalf("expected lapsed premium to be limited")
	}
}
