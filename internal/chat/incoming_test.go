package chat

import (
	"errors"
	"testing"
)

func TestDecodeIncoming(t *testing.T) {
	m, err := DecodeIncoming([]byte(`{"chat_id":"c1","user_id":"u1","content":"hi","applicationId":"a1"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.ChatID != "c1" || m.UserID != "u1" || m.Content != "hi" || m.ApplicationID != "a1" {
		t.Fatalf("unexpected message: %+v", m)
	}
}

func TestDecodeIncoming_SnakeCaseApplicationID(t *testing.T) {
	m, err := DecodeIncoming([]byte(`{"chat_id":"c1","user_id":"u1","content":"hi","application_id":"a9","subscribers":["u2"]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.ApplicationID != "a9" {
		t.Fatalf("expected application id from snake_case key, got %q", m.ApplicationID)
	}
}

func TestDecodeIncoming_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":        `{"chat_id":`,
		"missing chat id": `{"user_id":"u1","content":"hi"}`,
		"missing user id": `{"chat_id":"c1","content":"hi"}`,
		"wrong type":      `{"chat_id":42,"user_id":"u1"}`,
	}
	for name, body := range cases {
		if _, err := DecodeIncoming([]byte(body)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}
