package domain

import "time"

// QuizType selects the study mode for a session.
type QuizType string

const (
	QuizFlashcard      QuizType = "flashcard"
	QuizMultipleChoice QuizType = "multiple_choice"
)

// QuestionType describes what a question asks of the user.
type QuestionType string

const (
	QuestionImageToName     QuestionType = "image_to_name"
	QuestionNameToUse       QuestionType = "name_to_use"
	QuestionImageToCategory QuestionType = "image_to_category"
	QuestionFlashcard       QuestionType = "flashcard"
)

// QuizConfig captures the parameters of a quiz session. Immutable once a
// session has started.
type QuizConfig struct {
	QuizType      QuizType `json:"quizType"`
	QuestionCount int      `json:"questionCount"`
	Category      string   `json:"category,omitempty"`
	TimerEnabled  bool     `json:"timerEnabled"`
	TimerSeconds  int      `json:"timerSeconds"`
}

// Question is backend-owned quiz content. The client treats CorrectAnswer as
// display-only; authoritative correctness always comes from the backend.
type Question struct {
	ID            string       `json:"id"`
	Type          QuestionType `json:"questionType"`
	InstrumentID  string       `json:"instrumentId"`
	Prompt        string       `json:"questionText"`
	ImageURL      string       `json:"imageUrl,omitempty"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correctAnswer"`
}

// QuizStart is the backend's response to starting a session.
type QuizStart struct {
	SessionID string     `json:"sessionId"`
	Questions []Question `json:"questions"`
}

// AnswerSubmission is sent to the backend for grading. An empty Option
// signals a timer expiry (graded incorrect).
type AnswerSubmission struct {
	QuestionID  string `json:"questionId"`
	Option      string `json:"answer"`
	TimeSpentMs int64  `json:"timeSpentMs"`
}

// AnswerResult is the backend's verdict for one submission.
type AnswerResult struct {
	QuestionID    string `json:"questionId"`
	Correct       bool   `json:"isCorrect"`
	CorrectAnswer string `json:"correctAnswer"`
	Explanation   string `json:"explanation,omitempty"`
}

// Answer is one entry in the session ledger. Created exactly once per
// question and never mutated afterwards.
type Answer struct {
	QuestionID  string `json:"questionId"`
	Option      string `json:"answer"`
	Correct     bool   `json:"isCorrect"`
	TimeSpentMs int64  `json:"timeSpentMs"`
}

// QuizResult is the authoritative scored outcome of a completed session.
type QuizResult struct {
	SessionID        string  `json:"sessionId"`
	Score            int     `json:"score"`
	TotalQuestions   int     `json:"totalQuestions"`
	Percentage       float64 `json:"percentage"`
	TimeSpentSeconds int     `json:"timeSpentSeconds"`
	Abandoned        bool    `json:"abandoned"`
}

// Score is the locally derived tally over the ledger; a preview only, the
// committed result comes from the backend.
type Score struct {
	Correct    int     `json:"correct"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// Tier is a subscription tier.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// EntitlementSnapshot is an immutable-per-fetch view of the user's
// subscription and usage counters. A nil limit means unlimited.
type EntitlementSnapshot struct {
	Tier         Tier       `json:"tier"`
	Status       string     `json:"status"`
	Plan         string     `json:"plan,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	IsActive     bool       `json:"isActive"`
	CardsUsed    int        `json:"cardsUsed"`
	CardsLimit   *int       `json:"cardsLimit"`
	QuizzesToday int        `json:"quizzesToday"`
	QuizzesLimit *int       `json:"quizzesLimit"`
}

// GateDecision is a pure, side-effect-free answer to "may this action
// proceed?". Never persisted.
type GateDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// PlanInfo describes a purchasable subscription plan.
type PlanInfo struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Price          float64 `json:"price"`
	Interval       string  `json:"interval"`
	Description    string  `json:"description"`
	SavingsPercent int     `json:"savingsPercent,omitempty"`
}

// Instrument is one entry of the surgical instrument bank.
type Instrument struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Use      string `json:"use,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// PreferenceCard is a user-authored surgeon preference card.
type PreferenceCard struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Procedure   string    `json:"procedure,omitempty"`
	Instruments []string  `json:"instruments,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
