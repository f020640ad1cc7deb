package domain

import "errors"

var (
	// ErrNoActiveSession is returned when an action requires an in-progress quiz.
	ErrNoActiveSession = errors.New("no active quiz session")
	// ErrSessionActive is returned when starting a quiz over a live session.
	ErrSessionActive = errors.New("quiz session already in progress")
	// ErrQuestionMismatch indicates an answer targeted a question other than the current one.
	ErrQuestionMismatch = errors.New("answer does not target the current question")
	// ErrNotInFeedback is returned when advancing before the current answer is graded.
	ErrNotInFeedback = errors.New("current question has not been answered")
	// ErrSessionNotFound indicates the backend does not know the session ID.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionClosed indicates the backend session is no longer in progress.
	ErrSessionClosed = errors.New("quiz session is not active")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrNotEnoughInstruments means the bank cannot seed a multiple-choice quiz.
	ErrNotEnoughInstruments = errors.New("not enough instruments for a quiz")
	// ErrLimitReached is the backend's authoritative quota rejection.
	ErrLimitReached = errors.New("usage limit reached")
	// ErrCardNotFound indicates an unknown preference card ID.
	ErrCardNotFound = errors.New("preference card not found")
)
