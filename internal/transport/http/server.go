package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"surgicalprep-study/internal/domain"
	"surgicalprep-study/internal/infra/local"
)

// Server exposes the local backend over the same REST contract the
// production service speaks, so the api client and the CLI run against it
// unchanged. Identity is a dev-only X-User-ID header.
type Server struct {
	backend *local.Backend
	ws      *WSHandler
}

func NewServer(backend *local.Backend) *Server {
	return &Server{backend: backend, ws: NewWSHandler(backend)}
}

// Routes registers all endpoints on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /quiz/start", s.handleStartQuiz)
	mux.HandleFunc("POST /quiz/flashcard-result", s.handleFlashcardResult)
	mux.HandleFunc("POST /quiz/{id}/answer", s.handleSubmitAnswer)
	mux.HandleFunc("POST /quiz/{id}/complete", s.handleCompleteQuiz)
	mux.HandleFunc("GET /users/me/subscription", s.handleSubscriptionStatus)
	mux.HandleFunc("GET /subscriptions/plans", s.handlePlans)
	mux.HandleFunc("POST /cards", s.handleCreateCard)
	mux.HandleFunc("GET /cards", s.handleListCards)
	mux.HandleFunc("DELETE /cards/{id}", s.handleDeleteCard)
	mux.HandleFunc("/ws", s.ws.ServeWS)
	return mux
}

func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return "local"
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

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleStartQuiz(w http.ResponseWriter, r *http.Request) {
	var cfg domain.QuizConfig
	if !decode(w, r, &cfg) {
		return
	}
	start, err := s.backend.StartQuiz(r.Context(), userID(r), cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, startResponse{
		SessionID:      start.SessionID,
		Questions:      start.Questions,
		TotalQuestions: len(start.Questions),
	})
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var sub domain.AnswerSubmission
	if !decode(w, r, &sub) {
		return
	}
	result, err := s.backend.SubmitAnswer(r.Context(), userID(r), r.PathValue("id"), sub)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCompleteQuiz(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := s.backend.CompleteQuiz(r.Context(), userID(r), r.PathValue("id"), req.Abandoned)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.backend.SubscriptionStatus(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.backend.AvailablePlans(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plansResponse{Plans: plans})
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var card domain.PreferenceCard
	if !decode(w, r, &card) {
		return
	}
	created, err := s.backend.CreateCard(r.Context(), userID(r), card)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.backend.ListCards(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cardsResponse{Cards: cards})
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteCard(r.Context(), userID(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFlashcardResult(w http.ResponseWriter, r *http.Request) {
	var req flashcardRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.backend.RecordFlashcard(r.Context(), userID(r), req.InstrumentID, req.Result == "got_it"); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "recorded"})
}

func decode(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrLimitReached):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrCardNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrSessionClosed),
		errors.Is(err, domain.ErrNotEnoughInstruments):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Message: err.Error()})
}
