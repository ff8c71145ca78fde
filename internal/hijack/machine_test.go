package hijack

import (
	"errors"
	"testing"
)

func contested(t *testing.T, cfg Config) *Machine {
	t.Helper()
	m := New(cfg, "alice", nil)
	if err := m.Bid("bob", 100); err != nil {
		t.Fatalf("Bid() error = %v", err)
	}
	return m
}

func drainCountdown(m *Machine, seconds int) {
	for i := 0; i < seconds; i++ {
		m.tick()
	}
}

func TestBid_OpensContestedWindow(t *testing.T) {
	m := New(DefaultConfig(), "alice", nil)

	if err := m.Bid("bob", 100); err != nil {
		t.Fatalf("Bid() error = %v", err)
	}

	snap := m.Snapshot()
	if snap.State != string(StateContested) {
		t.Errorf("state = %q, want contested", snap.State)
	}
	if snap.HijackingUserID != "bob" || snap.Cost != 100 {
		t.Errorf("hijacker = %q cost = %d", snap.HijackingUserID, snap.Cost)
	}
	if snap.CountdownRemaining != 20 {
		t.Errorf("countdown = %d, want 20", snap.CountdownRemaining)
	}
	if snap.CurrentSpeakerID != "alice" {
		t.Errorf("speaker changed prematurely to %q", snap.CurrentSpeakerID)
	}
}

func TestBid_SelfBidRejected(t *testing.T) {
	m := New(DefaultConfig(), "alice", nil)

	if err := m.Bid("alice", 100); !errors.Is(err, ErrSelfBid) {
		t.Errorf("Bid() error = %v, want ErrSelfBid", err)
	}
	if snap := m.Snapshot(); snap.State != string(StateIdle) {
		t.Errorf("state = %q, want idle", snap.State)
	}
}

func TestCountdownResolvesToSpeakerChange(t *testing.T) {
	expired := make(chan string, 1)
	m := New(DefaultConfig(), "alice", func(hijacker string) { expired <- hijacker })
	if err := m.Bid("bob", 100); err != nil {
		t.Fatalf("Bid() error = %v", err)
	}

	drainCountdown(m, 20)

	if snap := m.Snapshot(); snap.State != string(StateResolving) {
		t.Fatalf("state = %q, want resolving", snap.State)
	}
	if got := <-expired; got != "bob" {
		t.Errorf("onExpire hijacker = %q, want bob", got)
	}

	if err := m.Confirm("bob"); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	snap := m.Snapshot()
	if snap.State != string(StateIdle) || snap.CurrentSpeakerID != "bob" {
		t.Errorf("after confirm: state = %q speaker = %q, want idle/bob", snap.State, snap.CurrentSpeakerID)
	}
	if snap.HijackingUserID != "" || snap.CountdownRemaining != 0 {
		t.Errorf("hijack residue: %+v", snap)
	}
}

func TestDefendCancelsHijack(t *testing.T) {
	m := contested(t, DefaultConfig())

	if err := m.Defend("alice"); err != nil {
		t.Fatalf("Defend() error = %v", err)
	}

	snap := m.Snapshot()
	if snap.State != string(StateIdle) {
		t.Errorf("state = %q, want idle", snap.State)
	}
	if snap.CurrentSpeakerID != "alice" {
		t.Errorf("speaker = %q, want alice unchanged", snap.CurrentSpeakerID)
	}
	if snap.HijackingUserID != "" {
		t.Errorf("hijacker = %q, want cleared", snap.HijackingUserID)
	}
	if snap.CountdownRemaining != 0 {
		t.Errorf("countdown = %d, want cleared", snap.CountdownRemaining)
	}
}

func TestDefend_OnlyCurrentSpeaker(t *testing.T) {
	m := contested(t, DefaultConfig())

	if err := m.Defend("carol"); !errors.Is(err, ErrNotSpeaker) {
		t.Errorf("Defend() by bystander error = %v, want ErrNotSpeaker", err)
	}
	if err := m.Defend("bob"); !errors.Is(err, ErrNotSpeaker) {
		t.Errorf("Defend() by hijacker error = %v, want ErrNotSpeaker", err)
	}
}

func TestOutbid_RestartSemantics(t *testing.T) {
	cfg := DefaultConfig()
	m := contested(t, cfg)

	drainCountdown(m, 5)
	if snap := m.Snapshot(); snap.CountdownRemaining != 15 {
		t.Fatalf("countdown = %d, want 15", snap.CountdownRemaining)
	}

	if err := m.Bid("carol", 150); err != nil {
		t.Fatalf("competing Bid() error = %v", err)
	}

	snap := m.Snapshot()
	if snap.HijackingUserID != "carol" || snap.Cost != 150 {
		t.Errorf("hijacker = %q cost = %d, want carol/150", snap.HijackingUserID, snap.Cost)
	}
	if snap.CountdownRemaining != 20 {
		t.Errorf("countdown = %d, want restarted to 20", snap.CountdownRemaining)
	}
}

func TestOutbid_ExtendSemantics(t *testing.T) {
	cfg := Config{CountdownSeconds: 20, OutbidRestartsCountdown: false}
	m := contested(t, cfg)

	drainCountdown(m, 5)
	if err := m.Bid("carol", 150); err != nil {
		t.Fatalf("competing Bid() error = %v", err)
	}

	if snap := m.Snapshot(); snap.CountdownRemaining != 15 {
		t.Errorf("countdown = %d, want 15 (untouched)", snap.CountdownRemaining)
	}
}

func TestOutbid_BelowCostRejected(t *testing.T) {
	m := contested(t, DefaultConfig())

	if err := m.Bid("carol", 50); !errors.Is(err, ErrBidTooLow) {
		t.Errorf("Bid() error = %v, want ErrBidTooLow", err)
	}
	if snap := m.Snapshot(); snap.HijackingUserID != "bob" || snap.Cost != 100 {
		t.Errorf("state mutated by rejected bid: %+v", snap)
	}
}

func TestWrappedBlocksAllActions(t *testing.T) {
	m := contested(t, DefaultConfig())
	m.Wrap()

	if err := m.Bid("carol", 500); !errors.Is(err, ErrWrapped) {
		t.Errorf("Bid() error = %v, want ErrWrapped", err)
	}
	if err := m.Defend("alice"); !errors.Is(err, ErrWrapped) {
		t.Errorf("Defend() error = %v, want ErrWrapped", err)
	}
	if err := m.Confirm("bob"); !errors.Is(err, ErrWrapped) {
		t.Errorf("Confirm() error = %v, want ErrWrapped", err)
	}
	if m.CanPost("alice") {
		t.Error("CanPost() = true in wrapped room")
	}

	// Server events no longer move a wrapped machine either.
	m.ApplyHijackRegistered("carol", 500, 10)
	if snap := m.Snapshot(); snap.State != string(StateWrapped) {
		t.Errorf("state = %q, want wrapped", snap.State)
	}
}

func TestServerEventsOverrideLocalCountdown(t *testing.T) {
	m := contested(t, DefaultConfig())
	drainCountdown(m, 18)

	// Authoritative event: the hijack actually has 12 seconds left and
	// a higher cost from a competing bid the gateway never saw.
	m.ApplyHijackRegistered("carol", 250, 12)

	snap := m.Snapshot()
	if snap.CountdownRemaining != 12 {
		t.Errorf("countdown = %d, want 12 from server", snap.CountdownRemaining)
	}
	if snap.HijackingUserID != "carol" || snap.Cost != 250 {
		t.Errorf("hijacker = %q cost = %d, want carol/250", snap.HijackingUserID, snap.Cost)
	}

	// hijackSucceeded settles it regardless of the local ticker.
	m.ApplyHijackSucceeded("carol")
	snap = m.Snapshot()
	if snap.State != string(StateIdle) || snap.CurrentSpeakerID != "carol" {
		t.Errorf("after succeed: state = %q speaker = %q", snap.State, snap.CurrentSpeakerID)
	}
}

func TestCanPost(t *testing.T) {
	m := New(DefaultConfig(), "alice", nil)

	if !m.CanPost("alice") {
		t.Error("current speaker cannot post")
	}
	if m.CanPost("bob") {
		t.Error("bystander can post")
	}

	// The floor does not change during the contested window.
	if err := m.Bid("bob", 100); err != nil {
		t.Fatalf("Bid() error = %v", err)
	}
	if !m.CanPost("alice") {
		t.Error("speaker lost the floor before the hijack settled")
	}
}

func TestTickOutsideContestedIsNoop(t *testing.T) {
	m := New(DefaultConfig(), "alice", nil)

	drainCountdown(m, 5)

	if snap := m.Snapshot(); snap.State != string(StateIdle) || snap.CountdownRemaining != 0 {
		t.Errorf("idle machine mutated by ticks: %+v", snap)
	}
}
