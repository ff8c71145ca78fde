// Package hijack implements the chatroom turn-taking state machine:
// one user holds the floor, others bid points to take it over, and the
// current speaker can defend within a countdown window.
package hijack

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stagechat/session-gateway/internal/domain"
)

// State is the machine's current phase.
type State string

const (
	// StateIdle: no outstanding hijack, the current speaker has the floor.
	StateIdle State = "idle"
	// StateContested: a bid is outstanding and the countdown is running.
	StateContested State = "contested"
	// StateResolving: the countdown hit zero, awaiting backend
	// confirmation of the speaker change.
	StateResolving State = "resolving"
	// StateWrapped: terminal, the chatroom concluded. No transitions out.
	StateWrapped State = "wrapped"
)

var (
	// ErrWrapped rejects any action once the chatroom concluded.
	ErrWrapped = errors.New("chatroom is wrapped")
	// ErrSelfBid rejects the current speaker bidding against themselves;
	// defending is a distinct action, not a bid.
	ErrSelfBid = errors.New("current speaker cannot bid on their own floor")
	// ErrNotSpeaker rejects a defend by anyone but the current speaker.
	ErrNotSpeaker = errors.New("only the current speaker can defend")
	// ErrNotContested rejects defend/confirm outside the matching state.
	ErrNotContested = errors.New("no hijack is outstanding")
	// ErrBidTooLow rejects a competing bid below the outstanding cost.
	ErrBidTooLow = errors.New("bid is below the current hijack cost")
)

// Config controls countdown behavior.
type Config struct {
	// CountdownSeconds is the contested window duration. The product
	// uses 20 seconds.
	CountdownSeconds int `mapstructure:"countdown_seconds"`
	// OutbidRestartsCountdown: when true (default), a competing bid
	// restarts the countdown to full duration; when false it leaves the
	// running countdown untouched (extend-never semantics).
	OutbidRestartsCountdown bool `mapstructure:"outbid_restarts_countdown"`
}

// DefaultConfig returns the product defaults.
func DefaultConfig() Config {
	return Config{CountdownSeconds: 20, OutbidRestartsCountdown: true}
}

// Machine governs who may post in a chatroom. The local countdown is
// advisory: server events applied via ApplyHijackRegistered /
// ApplyHijackSucceeded are authoritative and override it.
type Machine struct {
	mu sync.Mutex

	state            State
	currentSpeakerID string
	hijackerID       string
	cost             int64
	remaining        int

	cfg      Config
	onExpire func(hijackerID string)
}

// New creates an idle machine. onExpire fires (on its own goroutine)
// when the countdown reaches zero, so the caller can confirm the
// takeover with the backend; it may be nil.
func New(cfg Config, currentSpeakerID string, onExpire func(hijackerID string)) *Machine {
	if cfg.CountdownSeconds <= 0 {
		cfg.CountdownSeconds = DefaultConfig().CountdownSeconds
	}
	return &Machine{
		state:            StateIdle,
		currentSpeakerID: currentSpeakerID,
		cfg:              cfg,
		onExpire:         onExpire,
	}
}

// Run drives the advisory one-second countdown until ctx is cancelled.
// Detaching a chatroom cancels ctx, which is what stops the tick loop;
// no per-state timers exist to leak.
func (m *Machine) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// Bid registers a hijack attempt. From Idle it opens the contested
// window; while contested, a different user's bid at or above the
// outstanding cost takes over the bid.
func (m *Machine) Bid(userID string, cost int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateWrapped:
		return ErrWrapped
	case StateResolving:
		return ErrNotContested
	case StateIdle:
		if userID == m.currentSpeakerID {
			return ErrSelfBid
		}
		m.state = StateContested
		m.hijackerID = userID
		m.cost = cost
		m.remaining = m.cfg.CountdownSeconds
		return nil
	case StateContested:
		if userID == m.currentSpeakerID {
			return ErrSelfBid
		}
		if cost < m.cost {
			return ErrBidTooLow
		}
		m.hijackerID = userID
		m.cost = cost
		if m.cfg.OutbidRestartsCountdown {
			m.remaining = m.cfg.CountdownSeconds
		}
		return nil
	}
	return ErrNotContested
}

// Defend cancels the outstanding hijack: the current speaker matches
// the bid, keeps the floor, and the countdown clears.
func (m *Machine) Defend(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateWrapped {
		return ErrWrapped
	}
	if m.state != StateContested {
		return ErrNotContested
	}
	if userID != m.currentSpeakerID {
		return ErrNotSpeaker
	}

	m.state = StateIdle
	m.hijackerID = ""
	m.remaining = 0
	return nil
}

// Confirm completes a resolved hijack once the backend acknowledges
// the new speaker.
func (m *Machine) Confirm(speakerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateWrapped {
		return ErrWrapped
	}
	if m.state != StateResolving {
		return ErrNotContested
	}

	m.state = StateIdle
	m.currentSpeakerID = speakerID
	m.hijackerID = ""
	m.remaining = 0
	return nil
}

// Revert undoes an optimistic contested entry after the backend
// rejected the bid or defend call. Only valid while contested.
func (m *Machine) Revert(snapshot domain.HijackSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateWrapped {
		return
	}
	m.state = State(snapshot.State)
	m.currentSpeakerID = snapshot.CurrentSpeakerID
	m.hijackerID = snapshot.HijackingUserID
	m.cost = snapshot.Cost
	m.remaining = snapshot.CountdownRemaining
}

// Wrap moves the machine to its terminal state. Every further bid,
// defend, and confirm becomes a rejected no-op.
func (m *Machine) Wrap() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = StateWrapped
	m.hijackerID = ""
	m.remaining = 0
}

// ApplyHijackRegistered resyncs from an authoritative server event: a
// hijack is outstanding with the given bidder, cost, and remaining
// window. A zero remaining adopts the full configured duration.
func (m *Machine) ApplyHijackRegistered(hijackerID string, cost int64, remaining int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateWrapped {
		return
	}
	if remaining <= 0 {
		remaining = m.cfg.CountdownSeconds
	}
	m.state = StateContested
	m.hijackerID = hijackerID
	if cost > m.cost {
		m.cost = cost
	}
	m.remaining = remaining
}

// ApplyHijackSucceeded resyncs from an authoritative server event: the
// hijack settled and speakerID now has the floor. This overrides any
// local countdown still running.
func (m *Machine) ApplyHijackSucceeded(speakerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateWrapped {
		return
	}
	m.state = StateIdle
	m.currentSpeakerID = speakerID
	m.hijackerID = ""
	m.remaining = 0
}

// CanPost reports whether userID currently holds the floor.
func (m *Machine) CanPost(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != StateWrapped && m.currentSpeakerID == userID
}

// Snapshot returns a point-in-time copy of the machine state.
func (m *Machine) Snapshot() domain.HijackSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.HijackSnapshot{
		State:              string(m.state),
		CurrentSpeakerID:   m.currentSpeakerID,
		HijackingUserID:    m.hijackerID,
		Cost:               m.cost,
		CountdownRemaining: m.remaining,
	}
}

// tick advances the advisory countdown by one second. Outside the
// contested state it does nothing.
func (m *Machine) tick() {
	m.mu.Lock()

	if m.state != StateContested || m.remaining <= 0 {
		m.mu.Unlock()
		return
	}

	m.remaining--
	if m.remaining > 0 {
		m.mu.Unlock()
		return
	}

	m.state = StateResolving
	hijacker := m.hijackerID
	onExpire := m.onExpire
	m.mu.Unlock()

	if onExpire != nil {
		go onExpire(hijacker)
	}
}
