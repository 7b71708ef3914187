package chat

import (
	"errors"
	"testing"
)

func TestDecodeRequestVariants(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"create", `{"type":"CREATE","createMessageRequest":{"receiverId":"bob","message":"hi"}}`},
		{"create with image", `{"type":"CREATE","createMessageRequest":{"receiverId":"bob","message":"hi","imageUrl":"https://img"}}`},
		{"update", `{"type":"UPDATE","updateMessageRequest":{"messageId":"m1","message":"edited"}}`},
		{"update without body", `{"type":"UPDATE","updateMessageRequest":{"messageId":"m1"}}`},
		{"typing", `{"type":"TYPING","receiverId":"bob"}`},
		{"stop typing", `{"type":"STOP_TYPING","receiverId":"bob"}`},
		{"message seen", `{"type":"MESSAGE_SEEN","messageSeenRequest":{"receiverId":"bob","messages":["m1","m2"]}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeRequest([]byte(tc.data)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestDecodeRequestFieldMapping(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"type":"CREATE","createMessageRequest":{"receiverId":"bob","message":"hi","imageUrl":"https://img"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Create.ReceiverID != "bob" || req.Create.Body != "hi" || req.Create.ImageURL != "https://img" {
		t.Fatalf("unexpected payload: %+v", req.Create)
	}

	req, err = DecodeRequest([]byte(`{"type":"UPDATE","updateMessageRequest":{"messageId":"m1"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Update.Body != nil {
		t.Fatalf("expected nil body for bodyless update, got %q", *req.Update.Body)
	}
}

func TestDecodeRequestRejectsBadFrames(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"unknown type", `{"type":"DELETE","receiverId":"bob"}`},
		{"missing type", `{"receiverId":"bob"}`},
		{"create without payload", `{"type":"CREATE"}`},
		{"create without receiver", `{"type":"CREATE","createMessageRequest":{"message":"hi"}}`},
		{"update without payload", `{"type":"UPDATE"}`},
		{"update without id", `{"type":"UPDATE","updateMessageRequest":{"message":"hi"}}`},
		{"typing without receiver", `{"type":"TYPING"}`},
		{"seen without payload", `{"type":"MESSAGE_SEEN"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeRequest([]byte(tc.data)); !errors.Is(err, ErrBadFrame) {
				t.Fatalf("expected ErrBadFrame, got %v", err)
			}
		})
	}
}

func TestErrorResponse(t *testing.T) {
	resp, ok := ErrorResponse(&frameError{code: CodeMessageNotFound, msg: "message m1 not found"})
	if !ok {
		t.Fatal("expected frame error to map to an ERROR response")
	}
	if resp.Type != ResponseError || resp.Error == nil || resp.Error.Code != CodeMessageNotFound {
		t.Fatalf("unexpected response: %+v", resp)
	}

	if _, ok := ErrorResponse(errors.New("boom")); ok {
		t.Fatal("expected plain errors to stay server-side")
	}
}
