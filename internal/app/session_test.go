package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"surgicalprep-study/internal/domain"
)

// scriptedBackend is an in-memory stand-in for the quiz authority.
type scriptedBackend struct {
	questions   []domain.Question
	snapshot    domain.EntitlementSnapshot
	startErr    error
	submitErr   error
	completeErr error
	submitHook  func()

	startCalls    int
	submitCalls   int
	completeCalls int
	statusCalls   int
	submissions   []domain.AnswerSubmission
}

func (b *scriptedBackend) StartQuiz(_ context.Context, cfg domain.QuizConfig) (domain.QuizStart, error) {
	b.startCalls++
	if b.startErr != nil {
		return domain.QuizStart{}, b.startErr
	}
	count := cfg.QuestionCount
	if count > len(b.questions) {
		count = len(b.questions)
	}
	return domain.QuizStart{SessionID: "sess-1", Questions: b.questions[:count]}, nil
}

func (b *scriptedBackend) SubmitAnswer(_ context.Context, sessionID string, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	b.submitCalls++
	if b.submitHook != nil {
		b.submitHook()
	}
	if b.submitErr != nil {
		return domain.AnswerResult{}, b.submitErr
	}
	var correct bool
	var answer string
	for _, q := range b.questions {
		if q.ID == sub.QuestionID {
			answer = q.CorrectAnswer
			correct = sub.Option != "" && sub.Option == q.CorrectAnswer
		}
	}
	b.submissions = append(b.submissions, sub)
	return domain.AnswerResult{QuestionID: sub.QuestionID, Correct: correct, CorrectAnswer: answer}, nil
}

func (b *scriptedBackend) CompleteQuiz(_ context.Context, sessionID string, abandoned bool) (domain.QuizResult, error) {
	b.completeCalls++
	if b.completeErr != nil {
		return domain.QuizResult{}, b.completeErr
	}
	correct := 0
	for _, sub := range b.submissions {
		for _, q := range b.questions {
			if q.ID == sub.QuestionID && sub.Option == q.CorrectAnswer {
				correct++
			}
		}
	}
	total := len(b.submissions)
	pct := 0.0
	if total > 0 {
		pct = float64(correct) / float64(total) * 100
	}
	return domain.QuizResult{
		SessionID:      sessionID,
		Score:          correct,
		TotalQuestions: total,
		Percentage:     pct,
		Abandoned:      abandoned,
	}, nil
}

func (b *scriptedBackend) SubscriptionStatus(context.Context) (domain.EntitlementSnapshot, error) {
	b.statusCalls++
	return b.snapshot, nil
}

func (b *scriptedBackend) AvailablePlans(context.Context) ([]domain.PlanInfo, error) {
	return []domain.PlanInfo{{ID: "monthly"}}, nil
}

func (b *scriptedBackend) CreateCard(_ context.Context, card domain.PreferenceCard) (domain.PreferenceCard, error) {
	card.ID = "card-1"
	return card, nil
}

func (b *scriptedBackend) ListCards(context.Context) ([]domain.PreferenceCard, error) { return nil, nil }
func (b *scriptedBackend) DeleteCard(context.Context, string) error                   { return nil }
func (b *scriptedBackend) RecordFlashcard(context.Context, string, bool) error        { return nil }

type recordingPrompter struct {
	features []Action
	reasons  []string
}

func (p *recordingPrompter) ShowUpgradePrompt(feature Action, reason string) {
	p.features = append(p.features, feature)
	p.reasons = append(p.reasons, reason)
}

func makeQuestions(n int) []domain.Question {
	questions := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		questions = append(questions, domain.Question{
			ID:            fmt.Sprintf("q%d", i+1),
			Type:          domain.QuestionImageToName,
			Prompt:        "Identify this surgical instrument:",
			Options:       []string{"Right", "Wrong A", "Wrong B", "Wrong C"},
			CorrectAnswer: "Right",
		})
	}
	return questions
}

func newTestService(backend *scriptedBackend) (*StudyService, *recordingPrompter) {
	prompter := &recordingPrompter{}
	service := NewStudyServiceWithClock(backend, prompter, time.Now, time.Hour)
	return service, prompter
}

func TestFullSessionCompletes(t *testing.T) {
	ctx := context.Background()
	backend := &scriptedBackend{questions: makeQuestions(5)}
	service, _ := newTestService(backend)

	decision, err := service.StartQuiz(ctx, domain.QuizConfig{
		QuizType:      domain.QuizMultipleChoice,
		QuestionCount: 5,
		TimerEnabled:  true,
		TimerSeconds:  30,
	})
	if err != nil || !decision.Allowed {
		t.Fatalf("start failed: decision=%+v err=%v", decision, err)
	}
	if service.Status() != StatusInProgress {
		t.Fatalf("expected in_progress, got %v", service.Status())
	}

	for i := 0; i < 5; i++ {
		question, ok := service.CurrentQuestion()
		if !ok {
			t.Fatalf("expected question %d", i)
		}
		result, err := service.Answer(ctx, question.ID, "Right")
		if err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
		if !result.Correct {
			t.Fatalf("expected correct verdict for question %d", i)
		}
		if service.Phase() != PhaseFeedback {
			t.Fatalf("expected feedback after answer %d", i)
		}
		if err := service.Next(ctx); err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
	}

	if service.Status() != StatusCompleted {
		t.Fatalf("expected completed, got %v", service.Status())
	}
	if service.Timer().Status() != TimerIdle {
		t.Fatalf("expected timer stopped after completion")
	}

	answers := service.Answers()
	if len(answers) != 5 {
		t.Fatalf("expected 5 answers, got %d", len(answers))
	}
	for i, a := range answers {
		if a.QuestionID != fmt.Sprintf("q%d", i+1) {
			t.Fatalf("ledger out of order at %d: %+v", i, a)
		}
	}

	score := service.Score()
	if score.Correct != 5 || score.Total != 5 || score.Percentage != 100 {
		t.Fatalf("unexpected score %+v", score)
	}
	result, ok := service.Result()
	if !ok || result.Score != 5 || result.TotalQuestions != 5 {
		t.Fatalf("unexpected committed result %+v", result)
	}
}

func TestStartClipsToAvailableQuestions(t *testing.T) {
	ctx := context.Background()
	backend := &scriptedBackend{questions: makeQuestions(3)}
	service, _ := newTestService(backend)

	if _, err := service.StartQuiz(ctx, domain.QuizConfig{QuestionCount: 10}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, total := service.Progress(); total != 3 {
		t.Fatalf("expected 3 questions, got %d", total)
	}
}

func TestSecondAnswerIsNoOp(t *testing.T) {
	ctx := context.Background()
	backend := &scriptedBackend{questions: makeQuestions(2)}
	service, _ := newTestService(backend)

	if _, err := service.StartQuiz(ctx, domain.QuizConfig{QuestionCount: 2}); err != nil {
		t.Fatalf("start: %v", err)
	}
	question, _ := service.CurrentQuestion()
	if _, err := service.Answer(ctx, question.ID, "Wrong A"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	// A fast double-tap after feedback must not append a second entry.
	result, err := service.Answer(ctx, question.ID, "Right")
	if err != nil {
		t.Fatalf("double answer: %v", err)
	}
	if result.Correct {
		t.Fatalf("no-op should replay the recorded verdict, not grade again")
	}
	if len(service.Answers()) != 1 {
		t.Fatalf("expected single ledger entry, got %d", len(service.Answers()))
	}
	if backend.submitCalls != 1 {
		t.Fatalf("expected one submission, got %d", backend.submitCalls)
	}
}

func TestAnswerRejectsStaleQuestion(t *testing.T) {
	ctx := context.Background()
	backend := &scriptedBackend{questions: makeQuestions(3)}
	service, _ := newTestService(backend)

	if _, err := service.StartQuiz(ctx, domain.QuizConfig{QuestionCount: 3}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.Answer(ctx, "q3", "Right"); !errors.Is(err, domain.ErrQuestionMismatch) {
		t.Fatalf("expected question mismatch, got %v", err)
	}
	if len(service.Answers()) != 0 {
		t.Fatalf("rejected answer must not be recorded")
	}
}

func TestAnswerFailureAllowsRetry(t *testing.T) {
	ctx := context.Background()
	backend := &scriptedBackend{questions: makeQuestions(2)}
	service, _ := newTestService(backend)

	if _, err := service.StartQuiz(ctx, domain.QuizConfig{QuestionCount: 2}); err != nil {
		t.Fatalf("start: %v", err)
	}
	question, _ := service.CurrentQuestion()

	backend.submitErr = errors.New("network down")
	if _, err := service.Answer(ctx, question.ID, "Right"); err == nil {
		t.Fatalf("expected submit failure")
	}
	if service.Phase() != PhaseAnswering {
		t.Fatalf("failed submit must leave the question answerable")
	}
	if len(service.Answers()) != 0 {
		t.Fatalf("failed submit must not be recorded")
	}

	backend.submitErr = nil
	if _, err := service.Answer(ctx, question.ID, "Right"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(service.Answers()) != 1 {
		t.Fatalf("expected retried answer recorded once, got %d", len(service.Answers()))
	}
}

func TestTimerExpirySubmitsOnce(t *testing.T) {
	ctx := context.Background()
	backend := &scriptedBackend{questions: makeQuestions(2)}
	service, _ := newTestService(backend)

	if _, err := service.StartQuiz(ctx, domain.QuizConfig{
		QuestionCount: 2,
		TimerEnabled:  true,
		TimerSeconds:  2,
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	gen := service.generation
	service.timer.tick(gen)
	service.timer.tick(gen) // reaches zero, submits "time's up"

	if service.Phase() != PhaseFeedback {
		t.Fatalf("expected feedback after expiry, got %v", service.Phase())
	}
	answers := service.Answers()
	if len(answers) != 1 || answers[0].Option != "" || answers[0].Correct {
		t.Fatalf("expected one incorrect empty answer, got %+v", answers)
	}

	// The late manual tap must not append a second entry.
	question := backend.questions[0]
	if _, err := service.Answer(ctx, question.ID, "Right"); err != nil {
		t.Fatalf("late tap: %v", err)
	}
	if len(service.Answers()) != 1 {
		t.Fatalf("expected single entry after late tap, got %d", len(service.Answers()))
	}

	// Advancing re-arms the countdown for the next question.
	if err := service.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	if service.Timer().Status() != TimerRunning || service.Timer().Remaining() != 2 {
		t.Fatalf("expected re-armed timer, got %v %d", service.Timer().Status(), service.Timer().Remaining())
	}
}

func TestAbandonMidSession(t *testing.T) {
	ctx := context.Background()
	backend := &scriptedBackend{questions: makeQuestions(5)}
	service, _ := newTestService(backend)

	if _, err := service.StartQuiz(ctx, domain.QuizConfig{QuestionCount: 5, TimerEnabled: true, TimerSeconds: 30}); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 2; i++ {
		question, _ := service.CurrentQuestion()
		if _, err := service.Answer(ctx, question.ID, "Right"); err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
		if err := service.Next(ctx); err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
	}

	result, err := service.End(ctx, true)
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if service.Status() != StatusAbandoned || !result.Abandoned {
		t.Fatalf("expected abandoned, got %v %+v", service.Status(), result)
	}
	if len(service.Answers()) != 2 {
		t.Fatalf("expected ledger to retain 2 answers, got %d", len(service.Answers()))
	}
	if service.Timer().Status() != TimerIdle {
		t.Fatalf("expected no further timer ticks after abandon")
	}
}

func TestEndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	backend := &scriptedBackend{questions: makeQuestions(1)}
	service, _ := newTestService(backend)

	if _, err := service.StartQuiz(ctx, domain.QuizConfig{QuestionCount: 1}); err != nil {
		t.Fatalf("start: %v", err)
	}
	question, _ := service.CurrentQuestion()
	if _, err := service.Answer(ctx, question.ID, "Right"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := service.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}

	first, ok := service.Result()
	if !ok {
		t.Fatalf("expected committed result")
	}
	again, err := service.End(ctx, false)
	if err != nil {
		t.Fatalf("repeat end: %v", err)
	}
	if again != first {
		t.Fatalf("expected stored result replayed, got %+v vs %+v", again, first)
	}
	if backend.completeCalls != 1 {
		t.Fatalf("expected one completion call, got %d", backend.completeCalls)
	}
}

func TestEndFailureLeavesSessionRetryable(t *testing.T) {
	ctx := context.Background()
	backend := &scriptedBackend{questions: makeQuestions(1)}
	service, _ := newTestService(backend)

	if _, err := service.StartQuiz(ctx, domain.QuizConfig{QuestionCount: 1}); err != nil {
		t.Fatalf("start: %v", err)
	}
	question, _ := service.CurrentQuestion()
	if _, err := service.Answer(ctx, question.ID, "Right"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	backend.completeErr = errors.New("network down")
	if _, err := service.End(ctx, false); err == nil {
		t.Fatalf("expected completion failure")
	}
	if service.Status() != StatusInProgress {
		t.Fatalf("failed completion must stay in progress, got %v", service.Status())
	}

	backend.completeErr = nil
	if _, err := service.End(ctx, false); err != nil {
		t.Fatalf("retry end: %v", err)
	}
	if service.Status() != StatusCompleted {
		t.Fatalf("expected completed after retry, got %v", service.Status())
	}
}

func TestStartFailureLeavesIdle(t *testing.T) {
	ctx := context.Background()
	backend := &scriptedBackend{questions: makeQuestions(5), startErr: errors.New("network down")}
	service, _ := newTestService(backend)

	if _, err := service.StartQuiz(ctx, domain.QuizConfig{QuestionCount: 5}); err == nil {
		t.Fatalf("expected start failure")
	}
	if service.Status() != StatusIdle || service.SessionID() != "" {
		t.Fatalf("expected no partial session, got %v %q", service.Status(), service.SessionID())
	}
}

func TestGateDenialSkipsBackendAndPrompts(t *testing.T) {
	ctx := context.Background()
	limit := 3
	backend := &scriptedBackend{
		questions: makeQuestions(5),
		snapshot: domain.EntitlementSnapshot{
			Tier:         domain.TierFree,
			QuizzesToday: 3,
			QuizzesLimit: &limit,
		},
	}
	service, prompter := newTestService(backend)

	decision, err := service.StartQuiz(ctx, domain.QuizConfig{QuestionCount: 5})
	if err != nil {
		t.Fatalf("gated start must not error: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expected denial at quiz limit")
	}
	if service.Status() != StatusIdle || backend.startCalls != 0 {
		t.Fatalf("denied start must not reach the backend")
	}
	if len(prompter.features) != 1 || prompter.features[0] != ActionTakeQuiz {
		t.Fatalf("expected upgrade prompt for take_quiz, got %v", prompter.features)
	}
}

func TestCompletionInvalidatesEntitlements(t *testing.T) {
	ctx := context.Background()
	backend := &scriptedBackend{questions: makeQuestions(1)}
	service, _ := newTestService(backend)

	if _, err := service.StartQuiz(ctx, domain.QuizConfig{QuestionCount: 1}); err != nil {
		t.Fatalf("start: %v", err)
	}
	fetchesAfterStart := backend.statusCalls

	question, _ := service.CurrentQuestion()
	if _, err := service.Answer(ctx, question.ID, "Right"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := service.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}

	// The completed quiz consumed quota; the next gate check must refetch.
	service.CheckAccess(ctx, ActionTakeQuiz)
	if backend.statusCalls != fetchesAfterStart+1 {
		t.Fatalf("expected snapshot refetch after completion, got %d fetches", backend.statusCalls)
	}
}

func TestResetDropsInFlightResult(t *testing.T) {
	ctx := context.Background()
	backend := &scriptedBackend{questions: makeQuestions(2)}
	service, _ := newTestService(backend)

	if _, err := service.StartQuiz(ctx, domain.QuizConfig{QuestionCount: 2, TimerEnabled: true, TimerSeconds: 30}); err != nil {
		t.Fatalf("start: %v", err)
	}
	question, _ := service.CurrentQuestion()

	// The user navigates away while the submission is on the wire.
	backend.submitHook = func() { service.Reset() }
	result, err := service.Answer(ctx, question.ID, "Right")
	if err != nil {
		t.Fatalf("in-flight answer after reset must be dropped silently, got %v", err)
	}
	if result != (domain.AnswerResult{}) {
		t.Fatalf("dropped result should be empty, got %+v", result)
	}
	if service.Status() != StatusIdle || len(service.Answers()) != 0 {
		t.Fatalf("expected clean idle state, got %v with %d answers", service.Status(), len(service.Answers()))
	}
	if service.Timer().Status() != TimerIdle {
		t.Fatalf("expected timer stopped by reset")
	}
}

func TestEndDuringInFlightSubmissionClearsBusy(t *testing.T) {
	ctx := context.Background()
	backend := &scriptedBackend{questions: makeQuestions(2)}
	service, _ := newTestService(backend)

	if _, err := service.StartQuiz(ctx, domain.QuizConfig{QuestionCount: 2}); err != nil {
		t.Fatalf("start: %v", err)
	}
	question, _ := service.CurrentQuestion()

	// The user abandons the quiz while the submission is on the wire; the
	// late result must be dropped without leaving the service busy.
	backend.submitHook = func() {
		backend.submitHook = nil
		if _, err := service.End(ctx, true); err != nil {
			t.Errorf("abandon during submit: %v", err)
		}
	}
	result, err := service.Answer(ctx, question.ID, "Right")
	if err != nil {
		t.Fatalf("in-flight answer after abandon must be dropped silently, got %v", err)
	}
	if result != (domain.AnswerResult{}) {
		t.Fatalf("dropped result should be empty, got %+v", result)
	}
	if service.Status() != StatusAbandoned {
		t.Fatalf("expected abandoned, got %v", service.Status())
	}
	if service.Busy() {
		t.Fatalf("expected busy cleared after the dropped submission")
	}
	if len(service.Answers()) != 0 {
		t.Fatalf("dropped submission must not be recorded, got %d answers", len(service.Answers()))
	}
}

func TestStartWhileInProgressRejected(t *testing.T) {
	ctx := context.Background()
	backend := &scriptedBackend{questions: makeQuestions(2)}
	service, _ := newTestService(backend)

	if _, err := service.StartQuiz(ctx, domain.QuizConfig{QuestionCount: 2}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.StartQuiz(ctx, domain.QuizConfig{QuestionCount: 2}); !errors.Is(err, domain.ErrSessionActive) {
		t.Fatalf("expected active-session rejection, got %v", err)
	}

	// A finished session counts as idle for the next start.
	service.Reset()
	if _, err := service.StartQuiz(ctx, domain.QuizConfig{QuestionCount: 2}); err != nil {
		t.Fatalf("restart after reset: %v", err)
	}
}

func TestCreateCardGatedAtLimit(t *testing.T) {
	ctx := context.Background()
	limit := 5
	backend := &scriptedBackend{
		snapshot: domain.EntitlementSnapshot{
			Tier:       domain.TierFree,
			CardsUsed:  5,
			CardsLimit: &limit,
		},
	}
	service, prompter := newTestService(backend)

	_, decision, err := service.CreateCard(ctx, domain.PreferenceCard{Title: "Lap Chole"})
	if err != nil {
		t.Fatalf("gated create must not error: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expected card creation denied at limit")
	}
	if len(prompter.features) != 1 || prompter.features[0] != ActionCreateCard {
		t.Fatalf("expected upgrade prompt for create_card, got %v", prompter.features)
	}
}
