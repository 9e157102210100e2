package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/kalambet/supportbot/internal/logging"
	"github.com/kalambet/supportbot/internal/storage"
	"github.com/kalambet/supportbot/internal/support"
)

const maxRequestBodySize = 1 << 20 // 1MB

type askRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

type askResponse struct {
	Response  string `json:"response"`
	Escalated bool   `json:"escalated"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
}

type messageResponse struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type historyResponse struct {
	SessionID string            `json:"session_id"`
	Messages  []messageResponse `json:"messages"`
}

type healthResponse struct {
	Status       string `json:"status"`
	LLMAvailable bool   `json:"llm_available"`
	Provider     string `json:"provider,omitempty"`
}

// NewSupportHandler returns the customer-support HTTP API and chat page.
func NewSupportHandler(svc *support.Service, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/", handleIndex)
	r.Get("/health", handleHealth(svc))
	r.Post("/new_session", handleNewSession(svc))
	r.Post("/ask", handleAsk(svc))
	r.Get("/get_history/{sessionID}", handleHistory(svc))
	r.Get("/faqs", handleFAQs(svc))

	return r
}

func handleHealth(svc *support.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			Status:       "healthy",
			LLMAvailable: svc.LLMAvailable(),
			Provider:     svc.Provider(),
		})
	}
}

func handleNewSession(svc *support.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := svc.CreateSession(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{SessionID: sess.ID})
	}
}

func handleAsk(svc *support.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.SessionID) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "session_id is required")
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required and must not be empty")
			return
		}

		ctx := logging.WithSessionID(r.Context(), req.SessionID)
		ans, err := svc.Ask(ctx, req.SessionID, req.Query)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, askResponse{Response: ans.Response, Escalated: ans.Escalated})
	}
}

func handleHistory(svc *support.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		msgs, err := svc.History(r.Context(), sessionID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, historyResponse{
			SessionID: sessionID,
			Messages:  toMessageResponses(msgs),
		})
	}
}

func handleFAQs(svc *support.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.FAQs())
	}
}

func toMessageResponses(msgs []storage.Message) []messageResponse {
	out := make([]messageResponse, len(msgs))
	for i, m := range msgs {
		out[i] = messageResponse{ID: m.ID, Role: m.Role, Content: m.Content, Timestamp: m.Timestamp}
	}
	return out
}

// writeServiceError maps support errors onto HTTP statuses. Unexpected
// errors are logged and reported without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, support.ErrSessionNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "session not found")
	case errors.Is(err, support.ErrUnavailable):
		httpError(w, http.StatusServiceUnavailable, "service_unavailable", "LLM service not available")
	case errors.Is(err, support.ErrEmptyQuery):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		httpError(w, http.StatusInternalServerError, "api_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
