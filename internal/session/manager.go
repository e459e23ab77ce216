// Package session tracks live interactive runs by id and routes
// external input, event injection, and lifecycle hints to them. The
// manager is in-memory and per-process; persistence, if any, belongs
// to the transport in front of it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/dojoai/dojo/internal/agent"
	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/engine"
	"github.com/dojoai/dojo/internal/tools"
	"github.com/dojoai/dojo/pkg/events"
)

// Sentinel errors transports map onto their status codes.
var (
	ErrNotFound     = errors.New("session not found")
	ErrBadState     = errors.New("session cannot accept this operation")
	ErrLimitReached = errors.New("session limit reached")
)

// DefaultMaxSessions bounds tracked sessions when the caller does not
// pick a limit.
const DefaultMaxSessions = 64

// Session is one managed run: the interactive executor plus the
// bookkeeping transports list and stream.
type Session struct {
	ID        string
	ModuleID  string
	AgentID   string
	CreatedAt time.Time

	exec *engine.Session

	mu        sync.Mutex
	stream    chan events.Event
	startedAt time.Time
	endedAt   *time.Time
}

// Events returns the live stream Start produced, or nil before Start.
func (s *Session) Events() <-chan events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// Status reports the executor's lifecycle state.
func (s *Session) Status() engine.Status {
	return s.exec.Status()
}

// Result returns the final run result once the session has completed.
func (s *Session) Result() (*engine.RunResult, bool) {
	return s.exec.Result()
}

// Info is the listing view of a session.
type Info struct {
	ID        string     `json:"id"`
	ModuleID  string     `json:"module_id"`
	AgentID   string     `json:"agent_id"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Info snapshots the session for listings.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:        s.ID,
		ModuleID:  s.ModuleID,
		AgentID:   s.AgentID,
		Status:    string(s.exec.Status()),
		CreatedAt: s.CreatedAt,
		EndedAt:   s.endedAt,
	}
}

// Manager holds the active-session map. Writers take a short exclusive
// section, readers a shared one; sessions run on their own goroutines
// and are never driven while a manager lock is held.
type Manager struct {
	registry    *tools.Registry
	maxSessions int

	mu       sync.RWMutex
	sessions map[string]*Session

	sessionsStarted prometheus.Counter
	sessionsActive  prometheus.Gauge
	sessionDuration prometheus.HistogramVec
	sessionOutcomes prometheus.CounterVec
}

// NewManager creates a manager registering its metrics with the
// default prometheus registerer.
func NewManager(registry *tools.Registry, maxSessions int) *Manager {
	return NewManagerWithRegistry(registry, maxSessions, prometheus.DefaultRegisterer)
}

// NewManagerWithRegistry creates a manager with a custom prometheus
// registerer. Tests pass a fresh registry to avoid collisions.
func NewManagerWithRegistry(registry *tools.Registry, maxSessions int, registerer prometheus.Registerer) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	m := &Manager{
		registry:    registry,
		maxSessions: maxSessions,
		sessions:    make(map[string]*Session),

		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dojo_sessions_started_total",
			Help: "Total number of interactive sessions started",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dojo_sessions_active",
			Help: "Number of currently running interactive sessions",
		}),
		sessionDuration: *prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "dojo_session_duration_seconds",
			Help: "Interactive session duration in seconds",
		}, []string{"module_id", "outcome"}),
		sessionOutcomes: *prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dojo_session_outcomes_total",
			Help: "Finished sessions by outcome",
		}, []string{"module_id", "outcome"}),
	}

	if registerer != nil {
		registerer.MustRegister(m.sessionsStarted)
		registerer.MustRegister(m.sessionsActive)
		registerer.MustRegister(m.sessionDuration)
		registerer.MustRegister(m.sessionOutcomes)
	}

	return m
}

// Create constructs an interactive executor for the bound module and
// tracks it under a fresh id. The session stays idle until Start.
func (m *Manager) Create(module *ast.Module, ag agent.Agent) (*Session, error) {
	exec, err := engine.NewSession(module, ag, m.registry)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:        uuid.NewString(),
		ModuleID:  module.ID,
		AgentID:   ag.ID(),
		CreatedAt: time.Now(),
		exec:      exec,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) >= m.maxSessions {
		return nil, fmt.Errorf("%w (%d)", ErrLimitReached, m.maxSessions)
	}
	m.sessions[s.ID] = s

	log.Debug().Str("session_id", s.ID).Str("module", s.ModuleID).Str("agent", s.AgentID).Msg("session created")
	return s, nil
}

// Get looks up a session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// List snapshots every tracked session, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Active counts sessions that have started and not yet finished.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	active := 0
	for _, s := range m.sessions {
		s.mu.Lock()
		if !s.startedAt.IsZero() && s.endedAt == nil {
			active++
		}
		s.mu.Unlock()
	}
	return active
}

// Start launches the session's producer goroutine and returns its
// event stream. The manager forwards the executor's events so it can
// observe the run ending and settle the metrics.
func (m *Manager) Start(ctx context.Context, id string) (<-chan events.Event, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.stream != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: session already started", ErrBadState)
	}
	if err := s.exec.Start(ctx); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrBadState, err)
	}
	stream := make(chan events.Event)
	s.stream = stream
	s.startedAt = time.Now()
	s.mu.Unlock()

	m.sessionsStarted.Inc()
	m.sessionsActive.Inc()

	go m.forward(ctx, s, stream)
	return stream, nil
}

// forward pipes executor events to the consumer in order and settles
// the session when the executor closes its stream.
func (m *Manager) forward(ctx context.Context, s *Session, out chan<- events.Event) {
	defer func() {
		m.settle(s)
		close(out)
	}()

	for e := range s.exec.Events() {
		select {
		case out <- e:
		case <-ctx.Done():
			// Consumer gone. Drop the tail and let the executor wind down.
			s.exec.Cancel()
			for range s.exec.Events() {
			}
			return
		}
	}
}

// settle records the outcome once the producer has finished.
func (m *Manager) settle(s *Session) {
	now := time.Now()
	s.mu.Lock()
	s.endedAt = &now
	started := s.startedAt
	s.mu.Unlock()

	outcome := string(s.exec.Status())
	m.sessionsActive.Dec()
	m.sessionDuration.WithLabelValues(s.ModuleID, outcome).Observe(now.Sub(started).Seconds())
	m.sessionOutcomes.WithLabelValues(s.ModuleID, outcome).Inc()

	log.Debug().Str("session_id", s.ID).Str("module", s.ModuleID).Str("outcome", outcome).Msg("session finished")
}

// ProvideInput resumes the identified session's pending await_user.
func (m *Manager) ProvideInput(id, content string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if err := s.exec.ProvideInput(content); err != nil {
		return fmt.Errorf("%w: %v", ErrBadState, err)
	}
	return nil
}

// InjectEvent triggers a mid-run disruption through the identified
// session's named tool and returns the tool's data.
func (m *Manager) InjectEvent(id, tool, kind string, args map[string]interface{}) (interface{}, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return s.exec.InjectEvent(tool, kind, args)
}

// Pause asks the identified session to hold before its next step.
func (m *Manager) Pause(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if err := s.exec.Pause(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadState, err)
	}
	return nil
}

// Resume releases a paused session.
func (m *Manager) Resume(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if err := s.exec.Resume(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadState, err)
	}
	return nil
}

// Delete cancels the session's producer and stops tracking it. Safe on
// sessions that have already finished.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.exec.Cancel()
	log.Debug().Str("session_id", id).Msg("session deleted")
	return nil
}
