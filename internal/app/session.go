package app

import (
	"context"
	"math"
	"sync"
	"time"

	"surgicalprep-study/internal/domain"
)

// Status is the session state machine discriminator.
type Status int

const (
	StatusIdle Status = iota
	StatusInProgress
	StatusCompleted
	StatusAbandoned
)

func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusAbandoned:
		return "abandoned"
	default:
		return "idle"
	}
}

// Phase is the per-question sub-mode while a session is in progress.
type Phase int

const (
	PhaseAnswering Phase = iota
	PhaseFeedback
)

func (p Phase) String() string {
	if p == PhaseFeedback {
		return "feedback"
	}
	return "answering"
}

// expiryTimeout bounds the backend call made on behalf of a timed-out question.
const expiryTimeout = 15 * time.Second

// StudyService owns the quiz session lifecycle: the fixed question sequence,
// the append-only answer ledger, the per-question timer, and the entitlement
// gate consulted before every quiz or card-creation action. All mutation goes
// through its transition methods; views read state through accessors.
//
// Delayed results (slow answer submissions, stale timer ticks) are validated
// against a generation counter before they are applied, so nothing that was
// issued against an earlier question or a reset session can corrupt state.
type StudyService struct {
	backend      StudyBackend
	entitlements *EntitlementCache
	prompter     Prompter
	timer        *Timer
	clock        func() time.Time

	mu              sync.Mutex
	generation      uint64
	sessionID       string
	config          domain.QuizConfig
	questions       []domain.Question
	index           int
	answers         []domain.Answer
	status          Status
	phase           Phase
	busy            bool
	submitting      bool
	feedback        *domain.AnswerResult
	result          *domain.QuizResult
	startedAt       time.Time
	questionShownAt time.Time
}

func NewStudyService(backend StudyBackend, prompter Prompter) *StudyService {
	return newStudyService(backend, prompter, time.Now, time.Second)
}

// NewStudyServiceWithClock is test-only for deterministic timestamps and
// fast timer ticks.
func NewStudyServiceWithClock(backend StudyBackend, prompter Prompter, now func() time.Time, tick time.Duration) *StudyService {
	return newStudyService(backend, prompter, now, tick)
}

func newStudyService(backend StudyBackend, prompter Prompter, now func() time.Time, tick time.Duration) *StudyService {
	s := &StudyService{
		backend:      backend,
		entitlements: NewEntitlementCacheWithClock(backend, DefaultSnapshotTTL, now),
		prompter:     prompter,
		clock:        now,
	}
	s.timer = newTimerWithInterval(tick, s.handleExpiry)
	return s
}

// Entitlements exposes the snapshot cache for views that render usage meters.
func (s *StudyService) Entitlements() *EntitlementCache { return s.entitlements }

// Timer exposes the countdown for display and pause/resume.
func (s *StudyService) Timer() *Timer { return s.timer }

// CheckAccess evaluates the gate for a feature against the cached snapshot,
// fetching one if the cache is stale. A denial feeds the upgrade prompt; it
// is never an error.
func (s *StudyService) CheckAccess(ctx context.Context, action Action) domain.GateDecision {
	snap, _ := s.entitlements.Status(ctx, false)
	decision := Evaluate(snap, action)
	if !decision.Allowed && s.prompter != nil {
		s.prompter.ShowUpgradePrompt(action, decision.Reason)
	}
	return decision
}

// StartQuiz gates the action and, if permitted, obtains a session from the
// backend. Allowed only when no session is in progress; completed and
// abandoned sessions count as idle. On backend failure no partial session is
// created and the caller may retry freely.
func (s *StudyService) StartQuiz(ctx context.Context, cfg domain.QuizConfig) (domain.GateDecision, error) {
	s.mu.Lock()
	if s.status == StatusInProgress || s.busy {
		s.mu.Unlock()
		return domain.GateDecision{}, domain.ErrSessionActive
	}
	s.busy = true
	gen := s.generation
	s.mu.Unlock()

	clearBusy := func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}

	decision := s.CheckAccess(ctx, ActionTakeQuiz)
	if !decision.Allowed {
		clearBusy()
		return decision, nil
	}

	start, err := s.backend.StartQuiz(ctx, cfg)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if s.generation != gen {
		// Reset raced the start call; drop the session we were handed.
		return decision, nil
	}
	if err != nil {
		return decision, err
	}

	now := s.clock()
	s.generation++
	s.sessionID = start.SessionID
	s.config = cfg
	s.questions = start.Questions
	s.index = 0
	s.answers = make([]domain.Answer, 0, len(start.Questions))
	s.status = StatusInProgress
	s.phase = PhaseAnswering
	s.submitting = false
	s.feedback = nil
	s.result = nil
	s.startedAt = now
	s.questionShownAt = now
	if cfg.TimerEnabled && len(s.questions) > 0 {
		s.timer.Arm(cfg.TimerSeconds, s.generation)
	}
	return decision, nil
}

// Answer submits the selected option for the current question. Answers
// targeting any other question are rejected outright: they indicate a stale
// UI reference, not a recoverable race. A second call while a submission is
// in flight, or after feedback is already showing, is a no-op.
func (s *StudyService) Answer(ctx context.Context, questionID, option string) (domain.AnswerResult, error) {
	return s.submit(ctx, questionID, option)
}

func (s *StudyService) submit(ctx context.Context, questionID, option string) (domain.AnswerResult, error) {
	s.mu.Lock()
	if s.status != StatusInProgress {
		s.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrNoActiveSession
	}
	if s.submitting {
		s.mu.Unlock()
		return domain.AnswerResult{}, nil
	}
	if s.phase == PhaseFeedback {
		res := domain.AnswerResult{}
		if s.feedback != nil {
			res = *s.feedback
		}
		s.mu.Unlock()
		return res, nil
	}
	current := s.questions[s.index]
	if questionID != current.ID {
		s.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrQuestionMismatch
	}
	gen := s.generation
	sessionID := s.sessionID
	elapsed := s.clock().Sub(s.questionShownAt).Milliseconds()
	s.submitting = true
	s.mu.Unlock()

	res, err := s.backend.SubmitAnswer(ctx, sessionID, domain.AnswerSubmission{
		QuestionID:  current.ID,
		Option:      option,
		TimeSpentMs: elapsed,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	if s.generation != gen || s.status != StatusInProgress {
		// Session was reset or replaced while the call was in flight.
		return domain.AnswerResult{}, nil
	}
	s.timer.Stop()
	if err != nil {
		// Still answering; retry is safe, nothing was recorded.
		return domain.AnswerResult{}, err
	}
	s.answers = append(s.answers, domain.Answer{
		QuestionID:  current.ID,
		Option:      option,
		Correct:     res.Correct,
		TimeSpentMs: elapsed,
	})
	s.phase = PhaseFeedback
	s.feedback = &res
	return res, nil
}

// handleExpiry is the timer's zero event: an implicit "time's up" submission
// with no selected option, routed through the same path as a manual answer.
func (s *StudyService) handleExpiry(generation uint64) {
	s.mu.Lock()
	if generation != s.generation || s.status != StatusInProgress || s.phase != PhaseAnswering || s.submitting {
		s.mu.Unlock()
		return
	}
	questionID := s.questions[s.index].ID
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), expiryTimeout)
	defer cancel()
	_, _ = s.submit(ctx, questionID, "")
}

// Next advances past the feedback for the current question. On the last
// question it completes the session; exhaustion of the fixed sequence is
// what finishes a quiz, not an explicit finish action.
func (s *StudyService) Next(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusInProgress {
		s.mu.Unlock()
		return domain.ErrNoActiveSession
	}
	if s.phase != PhaseFeedback {
		s.mu.Unlock()
		return domain.ErrNotInFeedback
	}
	if s.index+1 >= len(s.questions) {
		s.mu.Unlock()
		_, err := s.End(ctx, false)
		return err
	}
	s.index++
	s.generation++
	s.phase = PhaseAnswering
	s.feedback = nil
	s.questionShownAt = s.clock()
	if s.config.TimerEnabled {
		s.timer.Arm(s.config.TimerSeconds, s.generation)
	}
	s.mu.Unlock()
	return nil
}

// End reports the ledger to the backend and commits the authoritative
// result. Calling it on an already finished session returns that result
// again. On backend failure the session stays in progress; completion is
// idempotent per session ID, so retrying is safe. Completion invalidates
// the entitlement snapshot, since a finished quiz consumes daily quota.
func (s *StudyService) End(ctx context.Context, abandoned bool) (domain.QuizResult, error) {
	s.mu.Lock()
	switch s.status {
	case StatusCompleted, StatusAbandoned:
		var res domain.QuizResult
		if s.result != nil {
			res = *s.result
		}
		s.mu.Unlock()
		return res, nil
	case StatusIdle:
		s.mu.Unlock()
		return domain.QuizResult{}, domain.ErrNoActiveSession
	}
	if s.busy {
		s.mu.Unlock()
		return domain.QuizResult{}, nil
	}
	s.busy = true
	gen := s.generation
	sessionID := s.sessionID
	s.timer.Stop()
	s.mu.Unlock()

	res, err := s.backend.CompleteQuiz(ctx, sessionID, abandoned)

	s.mu.Lock()
	s.busy = false
	if s.generation != gen || s.status != StatusInProgress {
		s.mu.Unlock()
		return domain.QuizResult{}, nil
	}
	if err != nil {
		s.mu.Unlock()
		return domain.QuizResult{}, err
	}
	if abandoned {
		s.status = StatusAbandoned
	} else {
		s.status = StatusCompleted
	}
	s.generation++
	s.feedback = nil
	s.result = &res
	s.mu.Unlock()

	s.entitlements.Invalidate()
	return res, nil
}

// Reset unconditionally discards the session, its timer and any feedback
// state. In-flight calls issued against the old session resolve into a
// generation mismatch and are dropped.
func (s *StudyService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.timer.Stop()
	s.sessionID = ""
	s.config = domain.QuizConfig{}
	s.questions = nil
	s.index = 0
	s.answers = nil
	s.status = StatusIdle
	s.phase = PhaseAnswering
	s.busy = false
	s.submitting = false
	s.feedback = nil
	s.result = nil
}

// Status returns the session discriminator.
func (s *StudyService) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Phase returns the sub-mode of the current question.
func (s *StudyService) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Busy reports whether a network-backed transition is in flight; the UI
// disables the triggering control while true.
func (s *StudyService) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy || s.submitting
}

// SessionID returns the backend's identifier for the live session.
func (s *StudyService) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Config returns the configuration the session was started with.
func (s *StudyService) Config() domain.QuizConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// CurrentQuestion returns the question awaiting an answer or showing
// feedback, and false when no session is in progress.
func (s *StudyService) CurrentQuestion() (domain.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusInProgress || s.index >= len(s.questions) {
		return domain.Question{}, false
	}
	return s.questions[s.index], true
}

// Progress returns the zero-based question index and the total count.
func (s *StudyService) Progress() (current, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index, len(s.questions)
}

// Feedback returns the backend verdict for the current question while the
// session is in the feedback sub-mode.
func (s *StudyService) Feedback() (domain.AnswerResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.feedback == nil {
		return domain.AnswerResult{}, false
	}
	return *s.feedback, true
}

// Answers returns a copy of the ledger.
func (s *StudyService) Answers() []domain.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Answer, len(s.answers))
	copy(out, s.answers)
	return out
}

// Score tallies the ledger locally. It is a display preview; the committed
// result from End is authoritative.
func (s *StudyService) Score() domain.Score {
	s.mu.Lock()
	defer s.mu.Unlock()
	correct := 0
	for _, a := range s.answers {
		if a.Correct {
			correct++
		}
	}
	total := len(s.answers)
	pct := 0.0
	if total > 0 {
		pct = math.Round(float64(correct)/float64(total)*1000) / 10
	}
	return domain.Score{Correct: correct, Total: total, Percentage: pct}
}

// Result returns the backend-scored outcome once the session has finished.
func (s *StudyService) Result() (domain.QuizResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return domain.QuizResult{}, false
	}
	return *s.result, true
}

// CreateCard gates card creation and forwards it to the backend. A denial is
// a first-class decision, not an error; the backend still enforces the real
// limit on the mutating call.
func (s *StudyService) CreateCard(ctx context.Context, card domain.PreferenceCard) (domain.PreferenceCard, domain.GateDecision, error) {
	decision := s.CheckAccess(ctx, ActionCreateCard)
	if !decision.Allowed {
		return domain.PreferenceCard{}, decision, nil
	}
	created, err := s.backend.CreateCard(ctx, card)
	if err != nil {
		return domain.PreferenceCard{}, decision, err
	}
	s.entitlements.Invalidate()
	return created, decision, nil
}

// Cards lists the user's preference cards.
func (s *StudyService) Cards(ctx context.Context) ([]domain.PreferenceCard, error) {
	return s.backend.ListCards(ctx)
}

// DeleteCard removes a preference card and refreshes the usage counters.
func (s *StudyService) DeleteCard(ctx context.Context, id string) error {
	if err := s.backend.DeleteCard(ctx, id); err != nil {
		return err
	}
	s.entitlements.Invalidate()
	return nil
}

// RecordFlashcard reports a flashcard swipe; scheduling stays server-side.
func (s *StudyService) RecordFlashcard(ctx context.Context, instrumentID string, gotIt bool) error {
	return s.backend.RecordFlashcard(ctx, instrumentID, gotIt)
}

// Plans returns the cached subscription plan catalog.
func (s *StudyService) Plans(ctx context.Context) ([]domain.PlanInfo, error) {
	return s.entitlements.Plans(ctx)
}
