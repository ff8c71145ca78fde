package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware/auth.go keys)
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Service
	FieldService = "service"

	// Domain
	FieldConversationID = "conversation_id"
	FieldChatroomID     = "chatroom_id"
	FieldCharacterID    = "character_id"
	FieldEventType      = "event_type"
	FieldHijackState    = "hijack_state"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
