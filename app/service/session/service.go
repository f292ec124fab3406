package session

import (
	"container/list"
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"moodreply/app/config"
	"moodreply/app/label"
	"moodreply/app/service/conversation"
	"moodreply/app/service/selector"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/samber/do"
)

var _ do.Shutdownable = (*Manager)(nil)

type Options struct {
	ReplyWindow   int
	IdleTTL       time.Duration
	EvictInterval time.Duration
	MaxSessions   int
	// Base seed; 0 seeds every session randomly.
	Seed uint64
}

type session struct {
	id string

	mu    sync.Mutex
	state *conversation.State
	rng   *rand.Rand

	lastSeen time.Time
	elem     *list.Element
}

// Manager owns all live sessions. Turns of one session run one at a time,
// different sessions proceed independently.
type Manager struct {
	selector *selector.Selector
	scale    *conversation.Scale
	opts     Options
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	// most recently used at the front
	lru *list.List
}

func New(di *do.Injector) (*Manager, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewManager(
		do.MustInvoke[*selector.Selector](di),
		do.MustInvoke[*conversation.Scale](di),
		Options{
			ReplyWindow:   cfg.Session.ReplyWindow,
			IdleTTL:       cfg.Session.IdleTTL,
			EvictInterval: cfg.Session.EvictInterval,
			MaxSessions:   cfg.Session.MaxSessions,
			Seed:          cfg.Session.Seed,
		},
	), nil
}

func NewManager(sel *selector.Selector, scale *conversation.Scale, opts Options) *Manager {
	return &Manager{
		selector: sel,
		scale:    scale,
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*session),
		lru:      list.New(),
	}
}

// Open starts a session with a fresh id. Sessions opened with the same seed
// answer identical input with identical replies.
func (m *Manager) Open(seed *uint64) string {
	id := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.insertLocked(id, conversation.NewState(m.scale, m.opts.ReplyWindow), m.newRand(id, seed))

	return id
}

// Respond runs one turn of the session, creating it on first use.
func (m *Manager) Respond(id string, emotion label.Emotion, intent label.Intent) selector.Reply {
	s := m.lockLive(id)
	defer s.mu.Unlock()

	return m.selector.Respond(s.state, s.rng, emotion, intent)
}

// lockLive returns the session locked. A session dropped while waiting for
// its lock is skipped, so the turn lands on the one registered under id.
func (m *Manager) lockLive(id string) *session {
	for {
		s := m.acquire(id)
		s.mu.Lock()

		m.mu.Lock()
		live := m.sessions[id] == s
		m.mu.Unlock()

		if live {
			return s
		}
		s.mu.Unlock()
	}
}

// Touch marks the session as used now. It reports whether the session exists.
func (m *Manager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if ok {
		m.touchLocked(s)
	}

	return ok
}

// EvictIdle drops sessions unused for longer than ttl, oldest first, and
// returns how many were dropped.
func (m *Manager) EvictIdle(now time.Time, ttl time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for elem := m.lru.Back(); elem != nil; {
		s := elem.Value.(*session)
		if now.Sub(s.lastSeen) <= ttl {
			break
		}

		prev := elem.Prev()
		m.removeLocked(s)
		evicted++
		elem = prev
	}

	return evicted
}

func (m *Manager) Snapshot(id string) (conversation.Snapshot, bool) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()

	if !ok {
		return conversation.Snapshot{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.Snapshot(), true
}

// Restore replaces the state of a session, creating it if needed.
func (m *Manager) Restore(id string, snap conversation.Snapshot) error {
	state, err := conversation.Restore(m.scale, m.opts.ReplyWindow, snap)
	if err != nil {
		return err
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.insertLocked(id, state, m.newRand(id, nil))
		m.mu.Unlock()
		return nil
	}
	m.touchLocked(s)
	m.mu.Unlock()

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	return nil
}

func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if ok {
		m.removeLocked(s)
	}

	return ok
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sessions)
}

func (m *Manager) Stats() selector.Stats {
	return m.selector.Stats()
}

func (m *Manager) RunEvictionLoop(ctx context.Context) {
	ticker := time.NewTicker(m.opts.EvictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.EvictIdle(m.now(), m.opts.IdleTTL); n > 0 {
				slog.Info("Evicted idle sessions",
					"count", n,
					"remaining", m.Len())
			}
		}
	}
}

func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	slog.Info("Dropping sessions", "count", len(m.sessions))

	m.sessions = make(map[string]*session)
	m.lru.Init()

	return nil
}

func (m *Manager) acquire(id string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		m.touchLocked(s)
		return s
	}

	return m.insertLocked(id, conversation.NewState(m.scale, m.opts.ReplyWindow), m.newRand(id, nil))
}

func (m *Manager) insertLocked(id string, state *conversation.State, rng *rand.Rand) *session {
	s := &session{
		id:       id,
		state:    state,
		rng:      rng,
		lastSeen: m.now(),
	}
	s.elem = m.lru.PushFront(s)
	m.sessions[id] = s

	if m.opts.MaxSessions > 0 && len(m.sessions) > m.opts.MaxSessions {
		oldest := m.lru.Back().Value.(*session)
		m.removeLocked(oldest)
		slog.Warn("Session limit reached, dropped least recently used",
			"session_id", oldest.id,
			"limit", m.opts.MaxSessions)
	}

	return s
}

func (m *Manager) touchLocked(s *session) {
	s.lastSeen = m.now()
	m.lru.MoveToFront(s.elem)
}

func (m *Manager) removeLocked(s *session) {
	m.lru.Remove(s.elem)
	delete(m.sessions, s.id)
}

func (m *Manager) newRand(id string, seed *uint64) *rand.Rand {
	switch {
	case seed != nil:
		return rand.New(rand.NewPCG(*seed, *seed))
	case m.opts.Seed != 0:
		return rand.New(rand.NewPCG(m.opts.Seed, xxhash.Sum64String(id)))
	default:
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
}
