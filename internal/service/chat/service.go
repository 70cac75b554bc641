package chat

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/diagnosa/backend/internal/model/chat"
	"github.com/zhouzirui/diagnosa/backend/internal/service/ai"
)

const maxSessionIDLength = 128

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrEmptyMessage     = errors.New("message text is required")
)

// Options tunes a Service.
type Options struct {
	// Priming seeds every new transcript. A zero value starts sessions empty.
	Priming chat.Priming
	// Timeout bounds each remote call. Zero means no deadline of our own.
	Timeout time.Duration
	// IdleTTL is how long a session may go untouched before ExpireIdle drops it.
	// Zero disables expiry.
	IdleTTL time.Duration
}

// Service holds one transcript per session and relays turns to the remote model.
type Service struct {
	completer ai.Completer
	priming   chat.Priming
	timeout   time.Duration
	idleTTL   time.Duration

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	session chat.Session

	// turnMu is held for a whole submit so turns of one session never overlap.
	turnMu sync.Mutex

	mu    sync.RWMutex
	turns []chat.Turn

	lastActive atomic.Int64
}

func (e *sessionEntry) touch() {
	e.lastActive.Store(time.Now().UnixNano())
}

// NewService bootstraps the in-memory session manager.
func NewService(completer ai.Completer, opts Options) *Service {
	return &Service{
		completer: completer,
		priming:   opts.Priming,
		timeout:   opts.Timeout,
		idleTTL:   opts.IdleTTL,
		sessions:  make(map[string]*sessionEntry),
	}
}

// Priming returns the pair new sessions are seeded with.
func (s *Service) Priming() chat.Priming {
	return s.priming
}

// InitializeSession returns the session with the given id, creating it when it
// does not exist yet. An empty id always creates a new session. created is false
// when the session already existed, in which case nothing changes.
func (s *Service) InitializeSession(_ context.Context, sessionID string) (session chat.Session, created bool, err error) {
	sessionID = strings.TrimSpace(sessionID)
	if len(sessionID) > maxSessionIDLength {
		return chat.Session{}, false, ErrInvalidSessionID
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[sessionID]; ok {
		existing.touch()
		return existing.session, false, nil
	}

	entry := &sessionEntry{
		session: chat.Session{
			ID:        sessionID,
			CreatedAt: time.Now().UTC(),
		},
		turns: make([]chat.Turn, 0, 16),
	}
	entry.turns = append(entry.turns, s.priming.Turns()...)
	entry.touch()
	s.sessions[sessionID] = entry

	log.Info().Str("session", sessionID).Int("seeded", len(entry.turns)).Msg("session initialized")
	return entry.session, true, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	entry, err := s.lookup(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	return entry.session, nil
}

// DeleteSession ends a session and drops its transcript.
func (s *Service) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	log.Info().Str("session", sessionID).Msg("session ended")
	return nil
}

// Len reports the number of live sessions.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ExpireIdle drops every session untouched since now minus the idle TTL and
// reports how many were removed. Sessions with a turn in flight are kept.
func (s *Service) ExpireIdle(now time.Time) int {
	if s.idleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-s.idleTTL).UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.sessions {
		if entry.lastActive.Load() > cutoff {
			continue
		}
		if !entry.turnMu.TryLock() {
			continue
		}
		delete(s.sessions, id)
		entry.turnMu.Unlock()
		removed++
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Int("remaining", len(s.sessions)).Msg("idle sessions expired")
	}
	return removed
}

// RunExpiry calls ExpireIdle every interval until ctx is done. It returns at once
// when expiry is disabled.
func (s *Service) RunExpiry(ctx context.Context, interval time.Duration) {
	if s.idleTTL <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.ExpireIdle(now)
		}
	}
}

// RenderTranscript returns the turns of a session in conversation order.
func (s *Service) RenderTranscript(_ context.Context, sessionID string) ([]chat.Turn, error) {
	entry, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return entry.snapshot(), nil
}

// SubmitTurn appends the user's text, asks the remote model for a reply using the
// whole transcript and appends the reply. When the remote call fails the user
// turn stays in the transcript, no assistant turn is added and a *TurnError is
// returned. The session remains usable either way.
func (s *Service) SubmitTurn(ctx context.Context, sessionID, text string) (chat.Turn, error) {
	return s.runTurn(ctx, sessionID, text, nil)
}

// StreamTurn is SubmitTurn with incremental delivery: onDelta receives reply
// chunks as the remote model produces them.
func (s *Service) StreamTurn(ctx context.Context, sessionID, text string, onDelta func(string)) (chat.Turn, error) {
	if onDelta == nil {
		onDelta = func(string) {}
	}
	return s.runTurn(ctx, sessionID, text, onDelta)
}

func (s *Service) runTurn(ctx context.Context, sessionID, text string, onDelta func(string)) (chat.Turn, error) {
	if strings.TrimSpace(text) == "" {
		return chat.Turn{}, ErrEmptyMessage
	}

	entry, err := s.lookup(sessionID)
	if err != nil {
		return chat.Turn{}, err
	}

	entry.turnMu.Lock()
	defer entry.turnMu.Unlock()

	history := entry.append(chat.UserTurn(text))

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	started := time.Now()
	var reply string
	if onDelta != nil {
		reply, err = s.completer.Stream(callCtx, history, onDelta)
	} else {
		reply, err = s.completer.Complete(callCtx, history)
	}
	if err == nil && strings.TrimSpace(reply) == "" {
		err = ai.ErrEmptyReply
	}
	if err != nil {
		turnErr := classify(callCtx, err)
		log.Warn().
			Err(err).
			Str("session", sessionID).
			Str("kind", string(turnErr.Kind)).
			Dur("elapsed", time.Since(started)).
			Msg("turn failed")
		return chat.Turn{}, turnErr
	}

	turn := chat.AssistantTurn(reply)
	entry.append(turn)

	log.Info().
		Str("session", sessionID).
		Int("turns", len(history)+1).
		Int("length", len(reply)).
		Dur("elapsed", time.Since(started)).
		Msg("turn completed")
	return turn, nil
}

func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

func (s *Service) lookup(sessionID string) (*sessionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	entry.touch()
	return entry, nil
}

// append adds a turn and returns a copy of the transcript including it.
func (e *sessionEntry) append(turn chat.Turn) []chat.Turn {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.turns = append(e.turns, turn)
	e.touch()
	copied := make([]chat.Turn, len(e.turns))
	copy(copied, e.turns)
	return copied
}

func (e *sessionEntry) snapshot() []chat.Turn {
	e.mu.RLock()
	defer e.mu.RUnlock()

	copied := make([]chat.Turn, len(e.turns))
	copy(copied, e.turns)
	return copied
}
