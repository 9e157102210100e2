// Package support runs customer-support conversations: it loads the
// conversation so far, asks the model, classifies the reply and records the
// exchange.
package support

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kalambet/supportbot/internal/composer"
	"github.com/kalambet/supportbot/internal/escalation"
	"github.com/kalambet/supportbot/internal/faq"
	"github.com/kalambet/supportbot/internal/llm"
	"github.com/kalambet/supportbot/internal/logging"
	"github.com/kalambet/supportbot/internal/metrics"
	"github.com/kalambet/supportbot/internal/storage"
)

var (
	// ErrSessionNotFound is returned for operations on an unknown session.
	ErrSessionNotFound = fmt.Errorf("session %w", storage.ErrNotFound)
	// ErrUnavailable is returned by Ask when no LLM is configured.
	ErrUnavailable = errors.New("llm service not available")
	// ErrEmptyQuery is returned by Ask for a blank question.
	ErrEmptyQuery = errors.New("query must not be empty")
)

// persistTimeout bounds recording an exchange once the LLM has replied.
const persistTimeout = 5 * time.Second

// Store persists sessions and their messages.
type Store interface {
	CreateSession(ctx context.Context) (storage.Session, error)
	SessionExists(ctx context.Context, id string) (bool, error)
	AppendMessages(ctx context.Context, sessionID string, msgs ...storage.NewMessage) ([]storage.Message, error)
	ListMessages(ctx context.Context, sessionID string) ([]storage.Message, error)
}

// Answer is the reply to one customer question.
type Answer struct {
	Response  string
	Escalated bool
}

// Service is the support conversation orchestrator.
type Service struct {
	store    Store
	faqs     *faq.Store
	composer *composer.Composer
	llm      *llm.Client
	logger   zerolog.Logger
}

// NewService creates a Service. client may be nil, in which case Ask reports
// ErrUnavailable while sessions, history and FAQs keep working.
func NewService(store Store, faqs *faq.Store, comp *composer.Composer, client *llm.Client, logger zerolog.Logger) *Service {
	if faqs == nil {
		faqs = faq.NewStore(nil)
	}
	if comp == nil {
		comp = composer.New()
	}
	return &Service{
		store:    store,
		faqs:     faqs,
		composer: comp,
		llm:      client,
		logger:   logger.With().Str("component", "support").Logger(),
	}
}

// LLMAvailable reports whether questions can be answered.
func (s *Service) LLMAvailable() bool {
	return s.llm != nil
}

// Provider names the configured model provider, or "" when unavailable.
func (s *Service) Provider() string {
	if s.llm == nil {
		return ""
	}
	return s.llm.Provider()
}

// CreateSession starts a new, empty conversation.
func (s *Service) CreateSession(ctx context.Context) (storage.Session, error) {
	sess, err := s.store.CreateSession(ctx)
	if err != nil {
		return storage.Session{}, fmt.Errorf("creating session: %w", err)
	}
	metrics.SessionCreated()
	log := logging.From(logging.WithSessionID(ctx, sess.ID), s.logger)
	log.Info().Msg("session created")
	return sess, nil
}

// Ask answers query within the session:
//  1. Fail fast if the LLM is unavailable or the session is unknown
//  2. Build the prompt from FAQs, the last turns of history and the query
//  3. Make one LLM call (fallback reply on failure) and classify the reply
//  4. Record the question and the reply together
//
// Nothing is written unless step 4 is reached.
func (s *Service) Ask(ctx context.Context, sessionID, query string) (Answer, error) {
	if s.llm == nil {
		return Answer{}, ErrUnavailable
	}
	if strings.TrimSpace(query) == "" {
		return Answer{}, ErrEmptyQuery
	}

	log := logging.From(logging.WithSessionID(ctx, sessionID), s.logger)

	ok, err := s.store.SessionExists(ctx, sessionID)
	if err != nil {
		return Answer{}, fmt.Errorf("checking session: %w", err)
	}
	if !ok {
		return Answer{}, ErrSessionNotFound
	}

	history, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return Answer{}, fmt.Errorf("loading history: %w", err)
	}

	prompt := s.composer.Compose(query, Window(history), s.faqs.List())
	log.Debug().
		Int("history", len(history)).
		Int("prompt_tokens_est", composer.EstimateTokens(prompt)).
		Str("query", logging.Preview(query, 80)).
		Msg("asking llm")

	reply := s.llm.Generate(ctx, prompt)
	escalated := reply.Failed || escalation.IsEscalated(reply.Text)

	// The reply is recorded even if the caller went away during the LLM call.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	_, err = s.store.AppendMessages(persistCtx, sessionID,
		storage.NewMessage{Role: storage.RoleUser, Content: query},
		storage.NewMessage{Role: storage.RoleBot, Content: reply.Text},
	)
	if errors.Is(err, storage.ErrNotFound) {
		return Answer{}, ErrSessionNotFound
	}
	if err != nil {
		return Answer{}, fmt.Errorf("recording exchange: %w", err)
	}

	metrics.AskAnswered(escalated)
	log.Info().Bool("escalated", escalated).Bool("fallback", reply.Failed).Msg("question answered")
	return Answer{Response: reply.Text, Escalated: escalated}, nil
}

// History returns every message of the session in chronological order.
func (s *Service) History(ctx context.Context, sessionID string) ([]storage.Message, error) {
	ok, err := s.store.SessionExists(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("checking session: %w", err)
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	msgs, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return msgs, nil
}

// FAQs returns the knowledge base in load order.
func (s *Service) FAQs() []faq.Entry {
	return s.faqs.List()
}

// Window returns the trailing composer.HistoryWindow messages as prompt turns.
func Window(msgs []storage.Message) []composer.Turn {
	if len(msgs) > composer.HistoryWindow {
		msgs = msgs[len(msgs)-composer.HistoryWindow:]
	}
	turns := make([]composer.Turn, len(msgs))
	for i, m := range msgs {
		turns[i] = composer.Turn{Role: m.Role, Content: m.Content}
	}
	return turns
}
