package audit

import (
	"context"

	"github.com/stagechat/session-gateway/pkg/log"
)

// Audit actions for the session gateway.
const (
	ActionSendMessage   = "session.send_message"
	ActionRetryMessage  = "session.retry_message"
	ActionRegenerate    = "session.regenerate"
	ActionJoinChatroom  = "chatroom.join"
	ActionLeaveChatroom = "chatroom.leave"
	ActionHijackBid     = "chatroom.hijack_bid"
	ActionHijackDefend  = "chatroom.hijack_defend"
	ActionHijackWon     = "chatroom.hijack_won"
	ActionWrap          = "chatroom.wrap"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, userID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Msg(msg)
}

// LogWithTarget emits an audit log naming the conversation or chatroom
// the action applied to.
func LogWithTarget(ctx context.Context, action string, userID string, targetID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldTargetID, targetID).
		Msg(msg)
}
