package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound frame types.
const (
	RequestCreate      = "CREATE"
	RequestUpdate      = "UPDATE"
	RequestTyping      = "TYPING"
	RequestStopTyping  = "STOP_TYPING"
	RequestMessageSeen = "MESSAGE_SEEN"
)

// Outbound frame types.
const (
	ResponseCreateMessage  = "CREATE_MESSAGE"
	ResponseUpdateMessage  = "UPDATE_MESSAGE"
	ResponseUserTyping     = "USER_TYPING"
	ResponseUserStopTyping = "USER_STOP_TYPING"
	ResponseSeenMessages   = "SEEN_MESSAGES"
	ResponseError          = "ERROR"
)

// Request is the inbound frame envelope: a type tag plus the payload object
// for that variant.
type Request struct {
	Type       string                `json:"type"`
	ReceiverID string                `json:"receiverId,omitempty"`
	Create     *CreateMessageRequest `json:"createMessageRequest,omitempty"`
	Update     *UpdateMessageRequest `json:"updateMessageRequest,omitempty"`
	Seen       *MessageSeenRequest   `json:"messageSeenRequest,omitempty"`
}

// CreateMessageRequest carries a new message for a receiver.
type CreateMessageRequest struct {
	ReceiverID string `json:"receiverId"`
	Body       string `json:"message"`
	ImageURL   string `json:"imageUrl,omitempty"`
}

// UpdateMessageRequest edits an existing message. A nil Body keeps the
// previous text.
type UpdateMessageRequest struct {
	MessageID string  `json:"messageId"`
	Body      *string `json:"message,omitempty"`
}

// MessageSeenRequest confirms receipt of a batch of messages.
type MessageSeenRequest struct {
	ReceiverID string   `json:"receiverId"`
	Messages   []string `json:"messages"`
}

// ErrBadFrame marks an inbound frame that cannot be dispatched. Such frames
// are dropped whole; they never terminate the connection.
var ErrBadFrame = errors.New("bad frame")

// DecodeRequest parses and validates one inbound frame. Validation failures
// are reported as ErrBadFrame: a frame that parses but is missing its
// variant's payload is treated the same as one that does not parse at all.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrBadFrame, err)
	}

	switch req.Type {
	case RequestCreate:
		if req.Create == nil || req.Create.ReceiverID == "" {
			return Request{}, fmt.Errorf("%w: CREATE requires createMessageRequest", ErrBadFrame)
		}
	case RequestUpdate:
		if req.Update == nil || req.Update.MessageID == "" {
			return Request{}, fmt.Errorf("%w: UPDATE requires updateMessageRequest", ErrBadFrame)
		}
	case RequestTyping, RequestStopTyping:
		if req.ReceiverID == "" {
			return Request{}, fmt.Errorf("%w: %s requires receiverId", ErrBadFrame, req.Type)
		}
	case RequestMessageSeen:
		if req.Seen == nil {
			return Request{}, fmt.Errorf("%w: MESSAGE_SEEN requires messageSeenRequest", ErrBadFrame)
		}
	default:
		return Request{}, fmt.Errorf("%w: unknown type %q", ErrBadFrame, req.Type)
	}
	return req, nil
}

// Response is the outbound frame envelope.
type Response struct {
	Type         string       `json:"type"`
	Message      *Message     `json:"message,omitempty"`
	SenderID     string       `json:"senderId,omitempty"`
	MessagesSeen []Message    `json:"messagesSeen,omitempty"`
	Error        *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail carries a per-frame failure back to the originating connection.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Encode marshals the frame for the wire.
func (r Response) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// frameError maps handler-level validation failures to ERROR frames, the same
// way routing errors become error frames on the stream.
type frameError struct {
	code string
	msg  string
}

func (e *frameError) Error() string { return e.msg }

// Error frame codes.
const (
	CodeMessageNotFound = "MESSAGE_NOT_FOUND"
	CodeStoreFailed     = "STORE_FAILED"
	CodeInvalidFrame    = "INVALID_FRAME"
)

// ErrorResponse converts a handler error into an ERROR frame for the
// originating connection. The second return is false for errors that should
// stay server-side.
func ErrorResponse(err error) (Response, bool) {
	var fe *frameError
	if !errors.As(err, &fe) {
		return Response{}, false
	}
	return Response{
		Type:  ResponseError,
		Error: &ErrorDetail{Code: fe.code, Message: fe.msg},
	}, true
}

// ErrorCode extracts the frame-error code for metrics; unknown errors are
// reported as internal.
func ErrorCode(err error) string {
	var fe *frameError
	if errors.As(err, &fe) && fe.code != "" {
		return fe.code
	}
	return "internal"
}
