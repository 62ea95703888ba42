package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"supportchat/internal/corpus"
	"supportchat/internal/model"
)

const defaultAITimeout = 30 * time.Second

type SessionStore interface {
	Ensure(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]model.Session, error)
}

type MessageLog interface {
	Append(ctx context.Context, sessionID, role, content string) (uint, error)
	RecentWindow(ctx context.Context, sessionID string, limit int) ([]model.Turn, error)
	FullHistory(ctx context.Context, sessionID string) ([]model.Turn, error)
}

type Gateway interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID string) ([]model.Turn, bool, error)
	SetHistory(ctx context.Context, sessionID string, turns []model.Turn, gen int64) (bool, error)
	DeleteHistory(ctx context.Context, sessionID string) error
	MarkDirty(ctx context.Context, sessionID string) error
	ClearDirty(ctx context.Context, sessionID string) error
	Generation(ctx context.Context, sessionID string) (int64, bool, error)
}

type ExchangePublisher interface {
	Publish(ctx context.Context, event model.ExchangeEvent) error
}

type ChatServiceConfig struct {
	HistoryWindow int
	AITimeout     time.Duration
}

type Option func(*ChatService)

func WithHistoryCache(c HistoryCache) Option {
	return func(s *ChatService) {
		s.historyCache = c
	}
}

func WithExchangePublisher(p ExchangePublisher) Option {
	return func(s *ChatService) {
		s.publisher = p
	}
}

// ChatService is the only entry point for chat traffic. One call to Chat runs
// one exchange: the user message, exactly one AI attempt, an optional
// fallback answer and the assistant message.
type ChatService struct {
	sessions     SessionStore
	messages     MessageLog
	gateway      Gateway
	docs         *corpus.Corpus
	historyCache HistoryCache
	publisher    ExchangePublisher
	logger       *zap.Logger

	window    int
	aiTimeout time.Duration
	locks     *sessionLocks
	now       func() time.Time
}

type ChatInput struct {
	SessionID string
	Message   string
}

type ChatResult struct {
	Reply  string
	Source string
	States []ExchangeState
}

func NewChatService(
	sessions SessionStore,
	messages MessageLog,
	gateway Gateway,
	docs *corpus.Corpus,
	logger *zap.Logger,
	cfg ChatServiceConfig,
	opts ...Option,
) (*ChatService, error) {
	if sessions == nil {
		return nil, errors.New("app: session store must not be nil")
	}
	if messages == nil {
		return nil, errors.New("app: message log must not be nil")
	}
	if gateway == nil {
		return nil, errors.New("app: ai gateway must not be nil")
	}
	if docs == nil {
		return nil, errors.New("app: corpus must not be nil")
	}
	if cfg.HistoryWindow <= 0 {
		return nil, fmt.Errorf("app: history window must be positive, got %d", cfg.HistoryWindow)
	}
	if cfg.AITimeout <= 0 {
		cfg.AITimeout = defaultAITimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &ChatService{
		sessions:  sessions,
		messages:  messages,
		gateway:   gateway,
		docs:      docs,
		logger:    logger,
		window:    cfg.HistoryWindow,
		aiTimeout: cfg.AITimeout,
		locks:     newSessionLocks(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Chat answers one user message. The exchange is detached from the caller's
// cancellation so a disconnecting client cannot leave it half written, and
// exchanges on the same session never interleave.
func (s *ChatService) Chat(ctx context.Context, input ChatInput) (*ChatResult, error) {
	if strings.TrimSpace(input.SessionID) == "" || strings.TrimSpace(input.Message) == "" {
		return nil, fmt.Errorf("%w: session id and message are required", ErrValidation)
	}

	ctx = context.WithoutCancel(ctx)
	unlock := s.locks.lock(input.SessionID)
	defer unlock()

	x := newExchange(input.SessionID, input.Message)
	s.beginHistoryWrite(ctx, x.sessionID)
	err := s.run(ctx, x)
	s.endHistoryWrite(ctx, x.sessionID)
	if err != nil {
		s.logger.Error("chat exchange failed",
			zap.String("session_id", x.sessionID),
			zap.String("state", string(x.state)),
			zap.Error(err),
		)
		return nil, err
	}

	s.publish(ctx, x)
	return &ChatResult{
		Reply:  x.reply,
		Source: x.source,
		States: x.states,
	}, nil
}

func (s *ChatService) run(ctx context.Context, x *exchange) error {
	if err := s.sessions.Ensure(ctx, x.sessionID); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	x.advance(StateSessionEnsured)

	userID, err := s.messages.Append(ctx, x.sessionID, model.RoleUser, x.message)
	if err != nil {
		return classifyStoreErr(err)
	}
	x.userMessageID = userID
	x.advance(StateUserMessagePersisted)

	window, err := s.messages.RecentWindow(ctx, x.sessionID, s.window)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	prompt := BuildPrompt(s.docs, window, x.message)
	x.advance(StateContextBuilt)

	s.answer(ctx, x, prompt)

	assistantID, err := s.messages.Append(ctx, x.sessionID, model.RoleAssistant, x.reply)
	if err != nil {
		return classifyStoreErr(err)
	}
	x.assistantMessageID = assistantID
	x.advance(StateAssistantMessagePersisted)
	x.advance(StateDone)
	return nil
}

// answer makes the single AI attempt and falls back to the corpus on any
// failure.
func (s *ChatService) answer(ctx context.Context, x *exchange, prompt string) {
	x.advance(StateAIAttempted)

	aiCtx, cancel := context.WithTimeout(ctx, s.aiTimeout)
	reply, err := s.gateway.Ask(aiCtx, prompt)
	cancel()
	if err == nil && strings.TrimSpace(reply) != "" {
		x.reply = reply
		x.source = model.SourceAI
		x.advance(StateAISucceeded)
		return
	}
	if err == nil {
		err = errors.New("empty reply")
	}

	x.advance(StateAIFailed)
	s.logger.Warn("ai unavailable, answering from corpus",
		zap.String("session_id", x.sessionID),
		zap.Error(fmt.Errorf("%w: %w", ErrAIUnavailable, err)),
	)
	x.reply = FallbackAnswer(s.docs, x.message)
	x.source = model.SourceFallback
	x.advance(StateFallbackAnswered)
	s.logger.Info("answered from corpus",
		zap.String("session_id", x.sessionID),
		zap.Bool("matched", x.reply != NoInformationReply),
	)
}

// ListSessions returns every session, most recently active first.
func (s *ChatService) ListSessions(ctx context.Context) ([]model.Session, error) {
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return sessions, nil
}

// GetConversation returns the full history, oldest first, reading through the
// history cache when one is configured. A loaded history is cached only if no
// exchange started on the session while it was being read.
func (s *ChatService) GetConversation(ctx context.Context, sessionID string) ([]model.Turn, error) {
	cacheable := false
	var gen int64
	if s.historyCache != nil {
		g, dirty, err := s.historyCache.Generation(ctx, sessionID)
		if err == nil && !dirty {
			cacheable, gen = true, g
			cached, hit, cacheErr := s.historyCache.GetHistory(ctx, sessionID)
			if cacheErr == nil && hit {
				return cached, nil
			}
			if cacheErr != nil {
				s.logger.Warn("read history cache failed", zap.String("session_id", sessionID), zap.Error(cacheErr))
			}
		}
	}

	turns, err := s.messages.FullHistory(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if cacheable {
		stored, err := s.historyCache.SetHistory(ctx, sessionID, turns, gen)
		if err != nil {
			s.logger.Warn("write history cache failed", zap.String("session_id", sessionID), zap.Error(err))
		} else if !stored {
			s.logger.Debug("history changed while loading, not cached", zap.String("session_id", sessionID))
		}
	}
	return turns, nil
}

func (s *ChatService) beginHistoryWrite(ctx context.Context, sessionID string) {
	if s.historyCache == nil {
		return
	}
	if err := s.historyCache.MarkDirty(ctx, sessionID); err != nil {
		s.logger.Warn("mark history dirty failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	if err := s.historyCache.DeleteHistory(ctx, sessionID); err != nil {
		s.logger.Warn("invalidate history cache failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *ChatService) endHistoryWrite(ctx context.Context, sessionID string) {
	if s.historyCache == nil {
		return
	}
	if err := s.historyCache.DeleteHistory(ctx, sessionID); err != nil {
		s.logger.Warn("invalidate history cache failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	if err := s.historyCache.ClearDirty(ctx, sessionID); err != nil {
		s.logger.Warn("clear history dirty marker failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *ChatService) publish(ctx context.Context, x *exchange) {
	if s.publisher == nil {
		return
	}
	event := model.ExchangeEvent{
		SessionID:          x.sessionID,
		UserMessageID:      x.userMessageID,
		AssistantMessageID: x.assistantMessageID,
		Source:             x.source,
		CompletedAt:        s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish exchange event failed", zap.String("session_id", x.sessionID), zap.Error(err))
	}
}
