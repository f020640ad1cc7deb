package local

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"surgicalprep-study/internal/domain"
)

// Free-tier limits mirrored from the production backend.
const (
	FreeCardLimit    = 5
	FreeDailyQuizzes = 3
)

const (
	defaultQuestionCount = 10
	minInstruments       = 4
	optionCount          = 4
)

// InstrumentSource provides the instrument bank (in-memory, Postgres, etc).
type InstrumentSource interface {
	ListInstruments(ctx context.Context, category string) ([]domain.Instrument, error)
}

// UsageStore tracks per-user daily quiz counts (in-memory, Redis, etc).
type UsageStore interface {
	QuizzesToday(ctx context.Context, userID string) (int, error)
	AddQuiz(ctx context.Context, userID string) error
}

// SessionEvent is broadcast to subscribers as a session progresses.
type SessionEvent struct {
	Type      string               `json:"type"`
	SessionID string               `json:"sessionId"`
	Answered  int                  `json:"answered"`
	Total     int                  `json:"total"`
	Answer    *domain.AnswerResult `json:"answer,omitempty"`
	Result    *domain.QuizResult   `json:"result,omitempty"`
}

type session struct {
	id        string
	userID    string
	config    domain.QuizConfig
	questions []domain.Question
	answers   []domain.Answer
	status    string
	startedAt time.Time
	result    *domain.QuizResult
}

type progress struct {
	timesStudied int
	timesCorrect int
	lastStudied  time.Time
}

// Backend is an in-process quiz authority with the same contract as the
// production service: it generates questions from the instrument bank,
// grades answers, scores sessions and enforces the real usage limits. It
// backs the dev server and the CLI's --local mode.
type Backend struct {
	instruments InstrumentSource
	usage       UsageStore
	tier        domain.Tier
	clock       func() time.Time
	rnd         *rand.Rand

	mu          sync.RWMutex
	sessions    map[string]*session
	cards       map[string][]domain.PreferenceCard
	progress    map[string]map[string]*progress
	subscribers map[string]map[chan SessionEvent]struct{}
}

func NewBackend(instruments InstrumentSource, usage UsageStore, tier domain.Tier) *Backend {
	return NewBackendWithClock(instruments, usage, tier, time.Now)
}

// NewBackendWithClock is test-only for deterministic timestamps.
func NewBackendWithClock(instruments InstrumentSource, usage UsageStore, tier domain.Tier, now func() time.Time) *Backend {
	if tier == "" {
		tier = domain.TierFree
	}
	return &Backend{
		instruments: instruments,
		usage:       usage,
		tier:        tier,
		clock:       now,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		sessions:    make(map[string]*session),
		cards:       make(map[string][]domain.PreferenceCard),
		progress:    make(map[string]map[string]*progress),
		subscribers: make(map[string]map[chan SessionEvent]struct{}),
	}
}

// Tier reports the subscription tier the backend grants its users.
func (b *Backend) Tier() domain.Tier { return b.tier }

// StartQuiz checks the daily quota, generates the question sequence and
// creates a session. The requested count is silently clipped to the number
// of available instruments; a shorter quiz beats a blocked one.
func (b *Backend) StartQuiz(ctx context.Context, userID string, cfg domain.QuizConfig) (domain.QuizStart, error) {
	if b.tier != domain.TierPremium {
		taken, err := b.usage.QuizzesToday(ctx, userID)
		if err != nil {
			return domain.QuizStart{}, err
		}
		if taken >= FreeDailyQuizzes {
			return domain.QuizStart{}, domain.ErrLimitReached
		}
	}

	instruments, err := b.instruments.ListInstruments(ctx, cfg.Category)
	if err != nil {
		return domain.QuizStart{}, err
	}
	if len(instruments) < minInstruments {
		return domain.QuizStart{}, domain.ErrNotEnoughInstruments
	}

	count := cfg.QuestionCount
	if count <= 0 {
		count = defaultQuestionCount
	}
	if count > len(instruments) {
		count = len(instruments)
	}

	b.mu.Lock()
	b.rnd.Shuffle(len(instruments), func(i, j int) {
		instruments[i], instruments[j] = instruments[j], instruments[i]
	})
	questions := make([]domain.Question, 0, count)
	for _, inst := range instruments[:count] {
		questions = append(questions, b.buildQuestion(cfg.QuizType, inst, instruments))
	}
	sess := &session{
		id:        uuid.NewString(),
		userID:    userID,
		config:    cfg,
		questions: questions,
		status:    "in_progress",
		startedAt: b.clock(),
	}
	b.sessions[sess.id] = sess
	b.mu.Unlock()

	// Quota counts sessions started today, not sessions finished.
	if err := b.usage.AddQuiz(ctx, userID); err != nil {
		return domain.QuizStart{}, err
	}
	return domain.QuizStart{SessionID: sess.id, Questions: questions}, nil
}

func (b *Backend) buildQuestion(quizType domain.QuizType, inst domain.Instrument, pool []domain.Instrument) domain.Question {
	id := uuid.NewString()
	if quizType == domain.QuizFlashcard {
		return domain.Question{
			ID:            id,
			Type:          domain.QuestionFlashcard,
			InstrumentID:  inst.ID,
			Prompt:        "What is this instrument?",
			ImageURL:      inst.ImageURL,
			CorrectAnswer: inst.Name,
		}
	}

	distractors := make([]string, 0, len(pool)-1)
	for _, other := range pool {
		if other.ID != inst.ID && other.Name != inst.Name {
			distractors = append(distractors, other.Name)
		}
	}
	b.rnd.Shuffle(len(distractors), func(i, j int) {
		distractors[i], distractors[j] = distractors[j], distractors[i]
	})
	options := append([]string{inst.Name}, distractors[:optionCount-1]...)
	b.rnd.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})

	return domain.Question{
		ID:            id,
		Type:          domain.QuestionImageToName,
		InstrumentID:  inst.ID,
		Prompt:        "Identify this surgical instrument:",
		ImageURL:      inst.ImageURL,
		Options:       options,
		CorrectAnswer: inst.Name,
	}
}

// SubmitAnswer grades one submission and appends it to the session record.
// An empty option (timer expiry) is always incorrect.
func (b *Backend) SubmitAnswer(ctx context.Context, userID, sessionID string, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	b.mu.Lock()
	sess, ok := b.sessions[sessionID]
	if !ok || sess.userID != userID {
		b.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrSessionNotFound
	}
	if sess.status != "in_progress" {
		b.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrSessionClosed
	}
	var question *domain.Question
	for i := range sess.questions {
		if sess.questions[i].ID == sub.QuestionID {
			question = &sess.questions[i]
			break
		}
	}
	if question == nil {
		b.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrQuestionNotFound
	}

	given := strings.TrimSpace(sub.Option)
	correct := given != "" && strings.EqualFold(given, strings.TrimSpace(question.CorrectAnswer))
	sess.answers = append(sess.answers, domain.Answer{
		QuestionID:  sub.QuestionID,
		Option:      sub.Option,
		Correct:     correct,
		TimeSpentMs: sub.TimeSpentMs,
	})
	result := domain.AnswerResult{
		QuestionID:    sub.QuestionID,
		Correct:       correct,
		CorrectAnswer: question.CorrectAnswer,
	}
	event := SessionEvent{
		Type:      "answer",
		SessionID: sessionID,
		Answered:  len(sess.answers),
		Total:     len(sess.questions),
		Answer:    &result,
	}
	instrumentID := question.InstrumentID
	b.broadcastLocked(sessionID, event)
	b.recordProgressLocked(userID, instrumentID, correct)
	b.mu.Unlock()

	return result, nil
}

// CompleteQuiz scores the recorded answers and closes the session. It is
// idempotent per session ID: completing a finished session returns the
// stored result again.
func (b *Backend) CompleteQuiz(ctx context.Context, userID, sessionID string, abandoned bool) (domain.QuizResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sess, ok := b.sessions[sessionID]
	if !ok || sess.userID != userID {
		return domain.QuizResult{}, domain.ErrSessionNotFound
	}
	if sess.result != nil {
		return *sess.result, nil
	}

	correct := 0
	var totalMs int64
	for _, a := range sess.answers {
		if a.Correct {
			correct++
		}
		totalMs += a.TimeSpentMs
	}
	total := len(sess.answers)
	pct := 0.0
	if total > 0 {
		pct = math.Round(float64(correct)/float64(total)*1000) / 10
	}
	result := domain.QuizResult{
		SessionID:        sessionID,
		Score:            correct,
		TotalQuestions:   total,
		Percentage:       pct,
		TimeSpentSeconds: int(totalMs / 1000),
		Abandoned:        abandoned,
	}
	if abandoned {
		sess.status = "abandoned"
	} else {
		sess.status = "completed"
	}
	sess.result = &result
	b.broadcastLocked(sessionID, SessionEvent{
		Type:      "completed",
		SessionID: sessionID,
		Answered:  total,
		Total:     len(sess.questions),
		Result:    &result,
	})
	return result, nil
}

// SubscriptionStatus assembles the entitlement snapshot from the configured
// tier and the live usage counters.
func (b *Backend) SubscriptionStatus(ctx context.Context, userID string) (domain.EntitlementSnapshot, error) {
	quizzes, err := b.usage.QuizzesToday(ctx, userID)
	if err != nil {
		return domain.EntitlementSnapshot{}, err
	}
	b.mu.RLock()
	cards := len(b.cards[userID])
	b.mu.RUnlock()

	if b.tier == domain.TierPremium {
		return domain.EntitlementSnapshot{
			Tier:         domain.TierPremium,
			Status:       "active",
			IsActive:     true,
			CardsUsed:    cards,
			QuizzesToday: quizzes,
		}, nil
	}
	cardsLimit := FreeCardLimit
	quizzesLimit := FreeDailyQuizzes
	return domain.EntitlementSnapshot{
		Tier:         domain.TierFree,
		Status:       "inactive",
		CardsUsed:    cards,
		CardsLimit:   &cardsLimit,
		QuizzesToday: quizzes,
		QuizzesLimit: &quizzesLimit,
	}, nil
}

// AvailablePlans returns the static plan catalog.
func (b *Backend) AvailablePlans(ctx context.Context) ([]domain.PlanInfo, error) {
	return []domain.PlanInfo{
		{
			ID:          "monthly",
			Name:        "Monthly Premium",
			Price:       4.99,
			Interval:    "month",
			Description: "Full access to all premium features",
		},
		{
			ID:             "annual",
			Name:           "Annual Premium",
			Price:          29.99,
			Interval:       "year",
			Description:    "Best value - save 50% with annual billing",
			SavingsPercent: 50,
		},
	}, nil
}

// CreateCard enforces the free-tier card limit and stores the card.
func (b *Backend) CreateCard(ctx context.Context, userID string, card domain.PreferenceCard) (domain.PreferenceCard, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tier != domain.TierPremium && len(b.cards[userID]) >= FreeCardLimit {
		return domain.PreferenceCard{}, domain.ErrLimitReached
	}
	card.ID = uuid.NewString()
	card.CreatedAt = b.clock()
	b.cards[userID] = append(b.cards[userID], card)
	return card, nil
}

func (b *Backend) ListCards(ctx context.Context, userID string) ([]domain.PreferenceCard, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cards := make([]domain.PreferenceCard, len(b.cards[userID]))
	copy(cards, b.cards[userID])
	return cards, nil
}

func (b *Backend) DeleteCard(ctx context.Context, userID, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cards := b.cards[userID]
	for i := range cards {
		if cards[i].ID == id {
			b.cards[userID] = append(cards[:i], cards[i+1:]...)
			return nil
		}
	}
	return domain.ErrCardNotFound
}

// RecordFlashcard counts a flashcard swipe toward the user's instrument
// progress. Review scheduling is out of scope here.
func (b *Backend) RecordFlashcard(ctx context.Context, userID, instrumentID string, gotIt bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recordProgressLocked(userID, instrumentID, gotIt)
	return nil
}

func (b *Backend) recordProgressLocked(userID, instrumentID string, correct bool) {
	byInstrument, ok := b.progress[userID]
	if !ok {
		byInstrument = make(map[string]*progress)
		b.progress[userID] = byInstrument
	}
	p, ok := byInstrument[instrumentID]
	if !ok {
		p = &progress{}
		byInstrument[instrumentID] = p
	}
	p.timesStudied++
	if correct {
		p.timesCorrect++
	}
	p.lastStudied = b.clock()
}

// Subscribe returns a channel of events for a session. The caller must
// invoke the returned cancel function to avoid leaks.
func (b *Backend) Subscribe(sessionID string) (<-chan SessionEvent, func(), error) {
	b.mu.Lock()
	sess, ok := b.sessions[sessionID]
	if !ok {
		b.mu.Unlock()
		return nil, nil, domain.ErrSessionNotFound
	}
	ch := make(chan SessionEvent, 8)
	subs, ok := b.subscribers[sessionID]
	if !ok {
		subs = make(map[chan SessionEvent]struct{})
		b.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}
	initial := SessionEvent{
		Type:      "joined",
		SessionID: sessionID,
		Answered:  len(sess.answers),
		Total:     len(sess.questions),
	}
	b.mu.Unlock()

	ch <- initial

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.subscribers[sessionID]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(b.subscribers, sessionID)
			}
		}
	}
	return ch, cancel, nil
}

func (b *Backend) broadcastLocked(sessionID string, event SessionEvent) {
	for ch := range b.subscribers[sessionID] {
		select {
		case ch <- event:
		default:
			// Drop the oldest update rather than block on a slow subscriber.
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
}
