package app

import (
	"context"

	"surgicalprep-study/internal/domain"
)

// Backend is the quiz authority: it owns question content, grades answers,
// and produces the committed session result.
type Backend interface {
	StartQuiz(ctx context.Context, cfg domain.QuizConfig) (domain.QuizStart, error)
	SubmitAnswer(ctx context.Context, sessionID string, sub domain.AnswerSubmission) (domain.AnswerResult, error)
	CompleteQuiz(ctx context.Context, sessionID string, abandoned bool) (domain.QuizResult, error)
}

// EntitlementSource fetches subscription state; the cache in this package
// sits in front of it.
type EntitlementSource interface {
	SubscriptionStatus(ctx context.Context) (domain.EntitlementSnapshot, error)
	AvailablePlans(ctx context.Context) ([]domain.PlanInfo, error)
}

// CardBackend stores preference cards. The server enforces the real card
// limit; the client gate only predicts it.
type CardBackend interface {
	CreateCard(ctx context.Context, card domain.PreferenceCard) (domain.PreferenceCard, error)
	ListCards(ctx context.Context) ([]domain.PreferenceCard, error)
	DeleteCard(ctx context.Context, id string) error
}

// FlashcardRecorder reports flashcard swipe results. The spaced-repetition
// scheduling stays server-side; the client only reports outcomes.
type FlashcardRecorder interface {
	RecordFlashcard(ctx context.Context, instrumentID string, gotIt bool) error
}

// StudyBackend is the full collaborator surface the study service needs.
type StudyBackend interface {
	Backend
	EntitlementSource
	CardBackend
	FlashcardRecorder
}
