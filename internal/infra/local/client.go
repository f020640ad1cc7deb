package local

import (
	"context"

	"surgicalprep-study/internal/domain"
)

// Client binds a Backend to a single user, satisfying the study service's
// collaborator contract without network plumbing. Used by the CLI's --local
// mode and by tests.
type Client struct {
	backend *Backend
	userID  string
}

func NewClient(backend *Backend, userID string) *Client {
	if userID == "" {
		userID = "local"
	}
	return &Client{backend: backend, userID: userID}
}

func (c *Client) StartQuiz(ctx context.Context, cfg domain.QuizConfig) (domain.QuizStart, error) {
	return c.backend.StartQuiz(ctx, c.userID, cfg)
}

func (c *Client) SubmitAnswer(ctx context.Context, sessionID string, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	return c.backend.SubmitAnswer(ctx, c.userID, sessionID, sub)
}

func (c *Client) CompleteQuiz(ctx context.Context, sessionID string, abandoned bool) (domain.QuizResult, error) {
	return c.backend.CompleteQuiz(ctx, c.userID, sessionID, abandoned)
}

func (c *Client) SubscriptionStatus(ctx context.Context) (domain.EntitlementSnapshot, error) {
	return c.backend.SubscriptionStatus(ctx, c.userID)
}

func (c *Client) AvailablePlans(ctx context.Context) ([]domain.PlanInfo, error) {
	return c.backend.AvailablePlans(ctx)
}

func (c *Client) CreateCard(ctx context.Context, card domain.PreferenceCard) (domain.PreferenceCard, error) {
	return c.backend.CreateCard(ctx, c.userID, card)
}

func (c *Client) ListCards(ctx context.Context) ([]domain.PreferenceCard, error) {
	return c.backend.ListCards(ctx, c.userID)
}

func (c *Client) DeleteCard(ctx context.Context, id string) error {
	return c.backend.DeleteCard(ctx, c.userID, id)
}

func (c *Client) RecordFlashcard(ctx context.Context, instrumentID string, gotIt bool) error {
	return c.backend.RecordFlashcard(ctx, c.userID, instrumentID, gotIt)
}
