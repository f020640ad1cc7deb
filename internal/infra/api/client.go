package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"surgicalprep-study/internal/domain"
)

// Client speaks the production backend's REST contract. It carries no local
// state; all persistence and authority live server-side.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type startResponse struct {
	SessionID      string            `json:"sessionId"`
	Questions      []domain.Question `json:"questions"`
	TotalQuestions int               `json:"totalQuestions"`
}

type completeRequest struct {
	Abandoned bool `json:"abandoned"`
}

type plansResponse struct {
	Plans []domain.PlanInfo `json:"plans"`
}

type cardsResponse struct {
	Cards []domain.PreferenceCard `json:"cards"`
}

type flashcardRequest struct {
	InstrumentID string `json:"instrumentId"`
	Result       string `json:"result"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func (c *Client) StartQuiz(ctx context.Context, cfg domain.QuizConfig) (domain.QuizStart, error) {
	var resp startResponse
	if err := c.do(ctx, http.MethodPost, "/quiz/start", cfg, &resp); err != nil {
		return domain.QuizStart{}, err
	}
	return domain.QuizStart{SessionID: resp.SessionID, Questions: resp.Questions}, nil
}

func (c *Client) SubmitAnswer(ctx context.Context, sessionID string, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	var resp domain.AnswerResult
	err := c.do(ctx, http.MethodPost, "/quiz/"+sessionID+"/answer", sub, &resp)
	return resp, err
}

func (c *Client) CompleteQuiz(ctx context.Context, sessionID string, abandoned bool) (domain.QuizResult, error) {
	var resp domain.QuizResult
	err := c.do(ctx, http.MethodPost, "/quiz/"+sessionID+"/complete", completeRequest{Abandoned: abandoned}, &resp)
	return resp, err
}

func (c *Client) SubscriptionStatus(ctx context.Context) (domain.EntitlementSnapshot, error) {
	var resp domain.EntitlementSnapshot
	err := c.do(ctx, http.MethodGet, "/users/me/subscription", nil, &resp)
	return resp, err
}

func (c *Client) AvailablePlans(ctx context.Context) ([]domain.PlanInfo, error) {
	var resp plansResponse
	if err := c.do(ctx, http.MethodGet, "/subscriptions/plans", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Plans, nil
}

func (c *Client) CreateCard(ctx context.Context, card domain.PreferenceCard) (domain.PreferenceCard, error) {
	var resp domain.PreferenceCard
	err := c.do(ctx, http.MethodPost, "/cards", card, &resp)
	return resp, err
}

func (c *Client) ListCards(ctx context.Context) ([]domain.PreferenceCard, error) {
	var resp cardsResponse
	if err := c.do(ctx, http.MethodGet, "/cards", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Cards, nil
}

func (c *Client) DeleteCard(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/cards/"+id, nil, nil)
}

func (c *Client) RecordFlashcard(ctx context.Context, instrumentID string, gotIt bool) error {
	result := "study_more"
	if gotIt {
		result = "got_it"
	}
	return c.do(ctx, http.MethodPost, "/quiz/flashcard-result", flashcardRequest{
		InstrumentID: instrumentID,
		Result:       result,
	}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.mapError(path, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) mapError(path string, resp *http.Response) error {
	var payload errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&payload)

	switch resp.StatusCode {
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrLimitReached, payload.Message)
	case http.StatusNotFound:
		if strings.HasPrefix(path, "/cards") {
			return fmt.Errorf("%w: %s", domain.ErrCardNotFound, payload.Message)
		}
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, payload.Message)
	}
	if payload.Message != "" {
		return fmt.Errorf("backend: %s (status %d)", payload.Message, resp.StatusCode)
	}
	return fmt.Errorf("backend: unexpected status %d", resp.StatusCode)
}
