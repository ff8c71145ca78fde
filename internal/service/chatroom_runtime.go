package service

import (
	"context"
	"encoding/json"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/stagechat/session-gateway/internal/domain"
	"github.com/stagechat/session-gateway/internal/hijack"
	"github.com/stagechat/session-gateway/internal/stream"
	"github.com/stagechat/session-gateway/pkg/log"
	"github.com/stagechat/session-gateway/pkg/pubsub"
)

// chatroomRuntime is the live per-chatroom state: the hijack machine,
// the mirrored history, and the set of seen participants. One runtime
// exists per attached chatroom; its SSE consumer and machine ticker
// stop when cancel fires.
type chatroomRuntime struct {
	chatroomID string
	machine    *hijack.Machine
	cancel     context.CancelFunc

	svc *chatroomServiceImpl
	sf  singleflight.Group

	mu           sync.RWMutex
	chatroom     domain.Chatroom
	character    domain.Character
	pairs        []domain.HistoryMessagePair
	participants map[string]struct{}
}

var _ stream.Handler = (*chatroomRuntime)(nil)

// HandleEvent reacts to one upstream SSE event. Events are triggers to
// re-fetch the relevant state, never state replacements; the exception
// is the hijack pair, which the machine applies directly because the
// server is authoritative over the countdown.
func (r *chatroomRuntime) HandleEvent(ctx context.Context, chatroomID, name string, data []byte) {
	l := log.Ctx(ctx).With().
		Str(log.FieldChatroomID, chatroomID).
		Str(log.FieldEventType, name).
		Logger()

	switch name {
	case domain.EventMessageReceived, domain.EventResponseReceived:
		var payload domain.MessageReceivedPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			l.Warn().Err(err).Msg("malformed event payload, resyncing anyway")
		}
		if payload.UserID != "" {
			r.noteParticipant(ctx, payload.UserID)
		}
		if err := r.resyncHistory(ctx); err != nil {
			l.Warn().Err(err).Msg("history resync failed")
		}

	case domain.EventJoinChatroom:
		var payload domain.PresencePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			l.Warn().Err(err).Msg("malformed presence payload")
			return
		}
		r.noteParticipant(ctx, payload.UserID)

	case domain.EventLeaveChatroom:
		var payload domain.PresencePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			l.Warn().Err(err).Msg("malformed presence payload")
			return
		}
		r.dropParticipant(payload.UserID)

	case domain.EventHijackRegistered:
		var payload domain.HijackRegisteredPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			l.Warn().Err(err).Msg("malformed hijack payload")
			return
		}
		r.machine.ApplyHijackRegistered(payload.UserID, payload.Cost, payload.CountdownRemaining)

	case domain.EventHijackSucceeded:
		var payload domain.HijackSucceededPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			l.Warn().Err(err).Msg("malformed hijack payload")
			return
		}
		r.machine.ApplyHijackSucceeded(payload.UserID)
		r.mu.Lock()
		r.chatroom.CurrentSpeakerID = payload.UserID
		r.mu.Unlock()

	case domain.EventChatroomWrapped:
		r.machine.Wrap()
		r.mu.Lock()
		r.chatroom.Status = domain.ChatroomStatusWrapped
		r.mu.Unlock()
	}

	r.svc.publish(ctx, chatroomID, name, data)
}

// onCountdownExpired fires when the local countdown hits zero. The
// machine is resolving; the backend decides whether the takeover stood.
func (r *chatroomRuntime) onCountdownExpired(hijackerID string) {
	ctx := context.Background()
	l := log.L().With().Str(log.FieldChatroomID, r.chatroomID).Logger()

	chatroom, err := r.svc.upstream.Chatroom(ctx, r.chatroomID)
	if err != nil {
		l.Warn().Err(err).Msg("post-countdown resync failed, awaiting server event")
		return
	}

	r.mu.Lock()
	r.chatroom = *chatroom
	r.mu.Unlock()

	if chatroom.Wrapped() {
		r.machine.Wrap()
		return
	}
	if chatroom.CurrentSpeakerID == hijackerID {
		if err := r.machine.Confirm(hijackerID); err != nil {
			l.Debug().Err(err).Msg("takeover already applied by server event")
		}
		return
	}

	// Backend says the floor did not change; fall back to its view.
	r.machine.Revert(domain.HijackSnapshot{
		State:            string(hijack.StateIdle),
		CurrentSpeakerID: chatroom.CurrentSpeakerID,
		Cost:             chatroom.HijackCost,
	})
}

// resyncHistory re-fetches the room's pairs; concurrent triggers share
// one fetch.
func (r *chatroomRuntime) resyncHistory(ctx context.Context) error {
	_, err, _ := r.sf.Do("history", func() (interface{}, error) {
		pairs, err := r.svc.upstream.ChatroomHistory(ctx, r.chatroomID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.pairs = pairs
		r.mu.Unlock()
		return nil, nil
	})
	return err
}

// resyncChatroom re-fetches room metadata and aligns the machine with
// the backend's view of the floor.
func (r *chatroomRuntime) resyncChatroom(ctx context.Context) error {
	_, err, _ := r.sf.Do("chatroom", func() (interface{}, error) {
		chatroom, err := r.svc.upstream.Chatroom(ctx, r.chatroomID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.chatroom = *chatroom
		r.mu.Unlock()
		if chatroom.Wrapped() {
			r.machine.Wrap()
		}
		return nil, nil
	})
	return err
}

func (r *chatroomRuntime) noteParticipant(ctx context.Context, userID string) {
	r.mu.Lock()
	_, known := r.participants[userID]
	r.participants[userID] = struct{}{}
	r.mu.Unlock()

	if !known {
		r.svc.ensureProfiles(ctx, []string{userID})
	}
}

func (r *chatroomRuntime) dropParticipant(userID string) {
	r.mu.Lock()
	delete(r.participants, userID)
	r.mu.Unlock()
}

func (r *chatroomRuntime) participantIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.participants))
	for id := range r.participants {
		ids = append(ids, id)
	}
	return ids
}

// snapshot returns a consistent copy of the room, its character, and
// its history for response building.
func (r *chatroomRuntime) snapshot() (domain.Chatroom, domain.Character, []domain.HistoryMessagePair) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pairs := make([]domain.HistoryMessagePair, len(r.pairs))
	copy(pairs, r.pairs)
	return r.chatroom, r.character, pairs
}

// publish fans one event out to the Redis bus and the local WebSocket
// hub. Delivery is best effort.
func (s *chatroomServiceImpl) publish(ctx context.Context, chatroomID, name string, data []byte) {
	var payload interface{}
	if len(data) > 0 {
		payload = json.RawMessage(data)
	}
	event, err := pubsub.NewEvent(name, chatroomID, payload)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to build bus event")
		return
	}

	if s.bus != nil {
		if err := s.bus.Publish(ctx, pubsub.ChatroomEventsChannel(chatroomID), event); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str(log.FieldChatroomID, chatroomID).Msg("failed to publish to bus")
		}
	}
	if s.hub != nil {
		if err := s.hub.BroadcastToChatroom(chatroomID, event, ""); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str(log.FieldChatroomID, chatroomID).Msg("failed to broadcast to hub")
		}
	}
}
