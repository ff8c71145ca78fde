package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stagechat/session-gateway/internal/audit"
	"github.com/stagechat/session-gateway/internal/domain"
	"github.com/stagechat/session-gateway/internal/hijack"
	"github.com/stagechat/session-gateway/internal/hub"
	"github.com/stagechat/session-gateway/internal/kafka"
	"github.com/stagechat/session-gateway/internal/profile"
	"github.com/stagechat/session-gateway/internal/stream"
	"github.com/stagechat/session-gateway/internal/transcript"
	"github.com/stagechat/session-gateway/internal/upstream"
	"github.com/stagechat/session-gateway/pkg/log"
	"github.com/stagechat/session-gateway/pkg/pubsub"
)

// ChatroomConfig tunes the chatroom service.
type ChatroomConfig struct {
	Hijack        hijack.Config
	ReconnectWait time.Duration
	ProfileTTL    time.Duration
}

// chatroomServiceImpl implements ChatroomService. It keeps one live
// runtime per attached chatroom; attaching starts the SSE consumer and
// the hijack countdown, detaching the last viewer stops both.
type chatroomServiceImpl struct {
	upstream upstream.Backend
	profiles profile.Cache
	bus      pubsub.Publisher
	hub      *hub.Hub
	producer kafka.ActivityProducer
	cfg      ChatroomConfig

	mu       sync.RWMutex
	runtimes map[string]*chatroomRuntime
	sf       singleflight.Group
	costSF   singleflight.Group
}

// NewChatroomService creates a chatroom service.
func NewChatroomService(up upstream.Backend, profiles profile.Cache, bus pubsub.Publisher, h *hub.Hub, producer kafka.ActivityProducer, cfg ChatroomConfig) ChatroomService {
	if cfg.ProfileTTL <= 0 {
		cfg.ProfileTTL = 10 * time.Minute
	}
	return &chatroomServiceImpl{
		upstream: up,
		profiles: profiles,
		bus:      bus,
		hub:      h,
		producer: producer,
		cfg:      cfg,
		runtimes: make(map[string]*chatroomRuntime),
	}
}

// Attach joins a chatroom: the first viewer materializes the runtime,
// loads room state and history, and starts the event stream.
func (s *chatroomServiceImpl) Attach(ctx context.Context, userID, username, chatroomID string) (*domain.ChatroomResponse, error) {
	rt, err := s.runtime(ctx, chatroomID)
	if err != nil {
		return nil, err
	}

	rt.noteParticipant(ctx, userID)
	audit.LogWithTarget(ctx, audit.ActionJoinChatroom, userID, chatroomID, "attached to chatroom")
	return s.buildResponse(ctx, rt, userID, username), nil
}

// State returns the current room view for a viewer. Spectators who
// never attached still get a read-only view.
func (s *chatroomServiceImpl) State(ctx context.Context, userID, username, chatroomID string) (*domain.ChatroomResponse, error) {
	rt, err := s.runtime(ctx, chatroomID)
	if err != nil {
		return nil, err
	}
	return s.buildResponse(ctx, rt, userID, username), nil
}

// PostMessage submits floor-holder text. The turn gate is local; the
// backend re-checks and its rejection resynchronizes the room.
func (s *chatroomServiceImpl) PostMessage(ctx context.Context, userID, chatroomID, text string) error {
	rt, err := s.runtime(ctx, chatroomID)
	if err != nil {
		return err
	}

	chatroom, _, _ := rt.snapshot()
	if chatroom.Wrapped() {
		return ErrChatroomWrapped
	}
	if !rt.machine.CanPost(userID) {
		return ErrNotYourTurn
	}

	if _, err := s.upstream.SendMessage(ctx, chatroomID, text); err != nil {
		// Local turn state may be behind the backend; resync and report
		// staleness so the client re-reads before retrying.
		if resyncErr := rt.resyncChatroom(ctx); resyncErr == nil {
			chatroom, _, _ = rt.snapshot()
			if chatroom.CurrentSpeakerID != userID {
				return ErrStaleState
			}
		}
		return err
	}

	s.produceActivity(ctx, domain.ActivityMessageSent, userID, chatroomID, 0)
	return nil
}

// Bid registers a hijack attempt optimistically and rolls back to the
// pre-bid snapshot when the backend rejects it.
func (s *chatroomServiceImpl) Bid(ctx context.Context, userID, chatroomID string, cost int64) (*domain.HijackSnapshot, error) {
	rt, err := s.runtime(ctx, chatroomID)
	if err != nil {
		return nil, err
	}

	before := rt.machine.Snapshot()
	if err := rt.machine.Bid(userID, cost); err != nil {
		if errors.Is(err, hijack.ErrWrapped) {
			return nil, ErrChatroomWrapped
		}
		return nil, err
	}

	if err := s.upstream.RegisterHijack(ctx, chatroomID, userID, cost); err != nil {
		rt.machine.Revert(before)
		log.Ctx(ctx).Warn().Err(err).
			Str(log.FieldChatroomID, chatroomID).
			Msg("hijack bid rejected by backend, rolled back")
		if resyncErr := rt.resyncChatroom(ctx); resyncErr == nil {
			if chatroom, _, _ := rt.snapshot(); chatroom.CurrentSpeakerID != before.CurrentSpeakerID {
				return nil, ErrStaleState
			}
		}
		return nil, ErrHijackFailed
	}

	audit.LogWithTarget(ctx, audit.ActionHijackBid, userID, chatroomID, "hijack bid registered")
	s.produceActivity(ctx, domain.ActivityHijackBid, userID, chatroomID, cost)
	snapshot := rt.machine.Snapshot()
	return &snapshot, nil
}

// Defend cancels an outstanding hijack against the current speaker.
func (s *chatroomServiceImpl) Defend(ctx context.Context, userID, chatroomID string) (*domain.HijackSnapshot, error) {
	rt, err := s.runtime(ctx, chatroomID)
	if err != nil {
		return nil, err
	}

	before := rt.machine.Snapshot()
	if err := rt.machine.Defend(userID); err != nil {
		if errors.Is(err, hijack.ErrWrapped) {
			return nil, ErrChatroomWrapped
		}
		return nil, err
	}

	if err := s.upstream.DefendHijack(ctx, chatroomID, userID, before.Cost); err != nil {
		rt.machine.Revert(before)
		log.Ctx(ctx).Warn().Err(err).
			Str(log.FieldChatroomID, chatroomID).
			Msg("hijack defend rejected by backend, rolled back")
		return nil, ErrHijackFailed
	}

	audit.LogWithTarget(ctx, audit.ActionHijackDefend, userID, chatroomID, "hijack defended")
	s.produceActivity(ctx, domain.ActivityHijackDefended, userID, chatroomID, before.Cost)
	snapshot := rt.machine.Snapshot()
	return &snapshot, nil
}

// HijackCost returns the current price to bid, always fetched fresh:
// price staleness is the one thing optimism never covers. Concurrent
// lookups for the same chatroom collapse into one upstream call; the
// result is never cached beyond the in-flight request.
func (s *chatroomServiceImpl) HijackCost(ctx context.Context, chatroomID string) (int64, error) {
	result, err, _ := s.costSF.Do(chatroomID, func() (interface{}, error) {
		return s.upstream.HijackCost(ctx, chatroomID)
	})
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return 0, ErrChatroomNotFound
		}
		return 0, err
	}
	return result.(int64), nil
}

// Detach leaves a chatroom. The upstream leave call is best effort;
// when no participants remain the runtime is torn down.
func (s *chatroomServiceImpl) Detach(ctx context.Context, userID, chatroomID string) error {
	s.mu.RLock()
	rt, ok := s.runtimes[chatroomID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	rt.dropParticipant(userID)
	if err := s.upstream.LeaveChatroom(ctx, chatroomID, userID); err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Str(log.FieldChatroomID, chatroomID).
			Msg("upstream leave failed, detaching anyway")
	}
	audit.LogWithTarget(ctx, audit.ActionLeaveChatroom, userID, chatroomID, "detached from chatroom")

	if len(rt.participantIDs()) == 0 {
		s.mu.Lock()
		if current, ok := s.runtimes[chatroomID]; ok && current == rt {
			delete(s.runtimes, chatroomID)
		}
		s.mu.Unlock()
		rt.cancel()
	}
	return nil
}

// runtime returns the live runtime for a chatroom, materializing it on
// first use. Concurrent attaches share one initialization.
func (s *chatroomServiceImpl) runtime(ctx context.Context, chatroomID string) (*chatroomRuntime, error) {
	s.mu.RLock()
	rt, ok := s.runtimes[chatroomID]
	s.mu.RUnlock()
	if ok {
		return rt, nil
	}

	result, err, _ := s.sf.Do(chatroomID, func() (interface{}, error) {
		chatroom, err := s.upstream.Chatroom(ctx, chatroomID)
		if err != nil {
			if errors.Is(err, upstream.ErrNotFound) {
				return nil, ErrChatroomNotFound
			}
			return nil, err
		}
		character, err := s.upstream.Character(ctx, chatroom.CharacterID)
		if err != nil {
			return nil, err
		}
		pairs, err := s.upstream.ChatroomHistory(ctx, chatroomID)
		if err != nil {
			return nil, err
		}

		rt := &chatroomRuntime{
			chatroomID:   chatroomID,
			svc:          s,
			chatroom:     *chatroom,
			character:    *character,
			pairs:        pairs,
			participants: make(map[string]struct{}),
		}
		rt.machine = hijack.New(s.cfg.Hijack, chatroom.CurrentSpeakerID, rt.onCountdownExpired)
		if chatroom.Wrapped() {
			rt.machine.Wrap()
		}

		runCtx, cancel := context.WithCancel(context.Background())
		rt.cancel = cancel
		go rt.machine.Run(runCtx)
		go stream.NewConsumer(s.upstream, rt, chatroomID, s.cfg.ReconnectWait).Run(runCtx)

		s.mu.Lock()
		s.runtimes[chatroomID] = rt
		s.mu.Unlock()

		log.Ctx(ctx).Info().
			Str(log.FieldChatroomID, chatroomID).
			Str(log.FieldHijackState, rt.machine.Snapshot().State).
			Msg("chatroom runtime started")
		return rt, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*chatroomRuntime), nil
}

// buildResponse renders the viewer-relative room view.
func (s *chatroomServiceImpl) buildResponse(ctx context.Context, rt *chatroomRuntime, userID, username string) *domain.ChatroomResponse {
	chatroom, character, pairs := rt.snapshot()

	messages := transcript.BuildForViewer(userID, character.FirstMessage, character.Name, username, pairs, chatroom.CreatedAt)

	var participants []domain.UserProfile
	for _, id := range rt.participantIDs() {
		p, err := s.profiles.Get(ctx, id)
		if err != nil {
			continue
		}
		participants = append(participants, *p)
	}

	return &domain.ChatroomResponse{
		Chatroom:     chatroom,
		Hijack:       rt.machine.Snapshot(),
		Transcript:   messages,
		Participants: participants,
	}
}

// ensureProfiles fetches and caches profiles not already cached.
func (s *chatroomServiceImpl) ensureProfiles(ctx context.Context, ids []string) {
	var missing []string
	for _, id := range ids {
		ok, err := s.profiles.Has(ctx, id)
		if err != nil || !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return
	}

	fetched, err := s.upstream.Profiles(ctx, missing)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to fetch profiles")
		return
	}
	if err := s.profiles.AddMany(ctx, fetched, s.cfg.ProfileTTL); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to cache profiles")
	}
}

func (s *chatroomServiceImpl) produceActivity(ctx context.Context, kind, userID, chatroomID string, cost int64) {
	activity := &domain.SessionActivity{
		Kind:       kind,
		UserID:     userID,
		ChatroomID: chatroomID,
		Cost:       cost,
		Timestamp:  time.Now().Unix(),
	}
	if err := s.producer.ProduceActivity(ctx, activity); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("kind", kind).Msg("failed to produce activity")
	}
}
