package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nadira/kirin/internal/observability"
	"github.com/nadira/kirin/pkg/chat"
)

const DefaultMaxMessages = 20

// Session is one identifier-keyed conversation. The zero identifier
// marks an ephemeral session that lives only for the request that
// resolved it.
type Session struct {
	ID string

	mu             sync.Mutex
	messages       []chat.Message
	maxMessages    int
	createdAt      time.Time
	lastAccessedAt time.Time
}

func newSession(id string, instruction chat.Message, maxMessages int) *Session {
	now := time.Now()
	return &Session{
		ID:             id,
		messages:       []chat.Message{instruction},
		maxMessages:    maxMessages,
		createdAt:      now,
		lastAccessedAt: now,
	}
}

// Append adds a message and enforces the retention bound: the
// instruction message is pinned at index 0, the most recent maxMessages
// non-instruction messages are kept, older ones are discarded.
func (s *Session) Append(msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	if len(s.messages) > s.maxMessages+1 {
		trimmed := make([]chat.Message, 0, s.maxMessages+1)
		trimmed = append(trimmed, s.messages[0])
		trimmed = append(trimmed, s.messages[len(s.messages)-s.maxMessages:]...)
		s.messages = trimmed
	}
}

// ReplaceInstruction overwrites the pinned instruction message in place.
func (s *Session) ReplaceInstruction(msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.Role = chat.RoleInstruction
	s.messages[0] = msg
}

// History returns a copy of the message list.
func (s *Session) History() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the current history length.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastAccessedAt = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastAccessedAt)
}

// Store owns all registered sessions. Lookup is guarded by an RW mutex;
// per-session mutation is serialized by the session's own lock, so the
// sweep never blocks resolve/append for unrelated sessions.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	maxMessages int
	instruction func() string
	logger      zerolog.Logger
}

// Config holds store configuration. Instruction supplies the current
// default instruction text; it is a function so a hot-reloaded value
// takes effect on the next session creation.
type Config struct {
	MaxMessages int
	Instruction func() string
	Logger      zerolog.Logger
}

// NewStore creates a session store.
func NewStore(cfg Config) *Store {
	observability.EnsureRegistered()

	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultMaxMessages
	}
	if cfg.Instruction == nil {
		cfg.Instruction = func() string { return "" }
	}

	return &Store{
		sessions:    make(map[string]*Session),
		maxMessages: cfg.MaxMessages,
		instruction: cfg.Instruction,
		logger:      cfg.Logger,
	}
}

func (st *Store) seedInstruction() chat.Message {
	return chat.Message{Role: chat.RoleInstruction, Content: st.instruction()}
}

// Resolve returns the session for sessionID, creating and registering
// it when unknown. An empty sessionID yields a fresh session that is
// never registered: concurrent callers without an identifier never see
// each other's state.
func (st *Store) Resolve(sessionID string) *Session {
	if sessionID == "" {
		return newSession("", st.seedInstruction(), st.maxMessages)
	}

	st.mu.RLock()
	sess, ok := st.sessions[sessionID]
	st.mu.RUnlock()
	if ok {
		sess.touch()
		return sess
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if sess, ok := st.sessions[sessionID]; ok {
		sess.touch()
		return sess
	}
	sess = newSession(sessionID, st.seedInstruction(), st.maxMessages)
	st.sessions[sessionID] = sess
	observability.SetActiveSessions(len(st.sessions))
	st.logger.Debug().Str("session_id", sessionID).Msg("Session created")
	return sess
}

// Append records a message in the identified session. Messages for an
// absent identifier are discarded.
func (st *Store) Append(sessionID string, msg chat.Message) {
	if sessionID == "" {
		return
	}
	st.Resolve(sessionID).Append(msg)
}

// ReplaceInstruction overwrites the identified session's instruction
// message. No-op for an absent identifier.
func (st *Store) ReplaceInstruction(sessionID string, msg chat.Message) {
	if sessionID == "" {
		return
	}
	st.Resolve(sessionID).ReplaceInstruction(msg)
}

// Len returns the number of registered sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// expire removes every session idle beyond maxIdle and returns how many
// were removed.
func (st *Store) expire(maxIdle time.Duration) int {
	now := time.Now()

	st.mu.RLock()
	var stale []string
	for id, sess := range st.sessions {
		if sess.idleSince(now) > maxIdle {
			stale = append(stale, id)
		}
	}
	st.mu.RUnlock()

	if len(stale) == 0 {
		return 0
	}

	st.mu.Lock()
	removed := 0
	for _, id := range stale {
		sess, ok := st.sessions[id]
		if !ok || sess.idleSince(now) <= maxIdle {
			continue
		}
		delete(st.sessions, id)
		removed++
	}
	observability.SetActiveSessions(len(st.sessions))
	st.mu.Unlock()

	if removed > 0 {
		observability.RecordSessionsExpired(removed)
		log.Debug().Int("removed", removed).Msg("Expired idle sessions")
	}
	return removed
}
