package constants

// Real-time envelope types.
const (
	EnvelopeAuth         = "auth"
	EnvelopeChatMessage  = "chat_message"
	EnvelopeAuthSuccess  = "auth_success"
	EnvelopeAuthFailed   = "auth_failed"
	EnvelopeChatResponse = "chat_response"
	EnvelopeError        = "error"
)

// Real-time error texts.
const (
	WSMsgAuthRequired     = "Authentication required"
	WSMsgInvalidFormat    = "Invalid message format"
	WSMsgInvalidToken     = "Invalid authentication token"
	WSMsgAlreadyAuthed    = "Session already authenticated"
	WSMsgAuthUnavailable  = "Authentication unavailable"
	WSMsgContentRequired  = "Message content required"
	WSMsgProcessingFailed = "Failed to process message"
)
