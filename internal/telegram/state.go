package telegram

import (
	"context"
	"sync"
	"time"

	"github.com/digkill/ReferralBot/internal/metrics"
)

type SessionState int

const (
	StateIdle SessionState = iota
	StateAwaitingPromo
	StateAwaitingPromoRetryChoice
	StateAwaitingReferralTarget
	StateAwaitingBroadcastText
)

var allStates = []SessionState{
	StateIdle,
	StateAwaitingPromo,
	StateAwaitingPromoRetryChoice,
	StateAwaitingReferralTarget,
	StateAwaitingBroadcastText,
}

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPromo:
		return "awaiting_promo"
	case StateAwaitingPromoRetryChoice:
		return "awaiting_promo_retry_choice"
	case StateAwaitingReferralTarget:
		return "awaiting_referral_target"
	case StateAwaitingBroadcastText:
		return "awaiting_broadcast_text"
	default:
		return "unknown"
	}
}

type session struct {
	state   SessionState
	touched time.Time
}

// StateManager maps a chat id to the step of the flow it is in. A chat that
// is absent is idle; entries are removed, not set to idle, when a flow ends.
type StateManager struct {
	mu       sync.Mutex
	sessions map[int64]session
	now      func() time.Time
}

func NewStateManager() *StateManager {
	return &StateManager{
		sessions: make(map[int64]session),
		now:      time.Now,
	}
}

func (m *StateManager) Get(chatID int64) SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[chatID]; ok {
		return s.state
	}
	return StateIdle
}

// Set records the state; StateIdle clears the entry.
func (m *StateManager) Set(chatID int64, state SessionState) {
	if state == StateIdle {
		m.Clear(chatID)
		return
	}
	m.mu.Lock()
	m.sessions[chatID] = session{state: state, touched: m.now()}
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()
}

func (m *StateManager) Clear(chatID int64) {
	m.mu.Lock()
	delete(m.sessions, chatID)
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()
}

func (m *StateManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops sessions untouched for longer than ttl and returns how many.
func (m *StateManager) Sweep(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := m.now().Add(-ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.touched.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	return removed
}

// RunSweeper evicts idle sessions every interval until ctx is done.
// A zero ttl disables eviction.
func (m *StateManager) RunSweeper(ctx context.Context, interval, ttl time.Duration, onSweep func(removed, remaining int)) {
	if ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(ttl); n > 0 && onSweep != nil {
				onSweep(n, m.Len())
			}
		}
	}
}
