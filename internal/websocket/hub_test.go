package websocket

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

type stubTokens struct {
	userID uuid.UUID
	err    error
}

func (s stubTokens) ParseToken(string) (uuid.UUID, error) {
	return s.userID, s.err
}

func channel(id uuid.UUID) string { return "user_updates:" + id.String() }

func TestHandleWebSocket_RejectsBadTokens(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		tokens stubTokens
	}{
		{"missing token", "", stubTokens{userID: uuid.New()}},
		{"invalid token", "?token=abc", stubTokens{err: errors.New("bad signature")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHub(nil, tc.tokens, channel, "*")
			rr := httptest.NewRecorder()
			h.HandleWebSocket(rr, httptest.NewRequest(http.MethodGet, "/ws"+tc.query, nil))

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
			if h.Connections(tc.tokens.userID) != 0 {
				t.Fatal("no connection should be registered")
			}
		})
	}
}

func TestCheckOrigin(t *testing.T) {
	h := NewHub(nil, stubTokens{}, channel, "http://localhost:5173/")

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"http://evil.example", false},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		if got := h.upgrader.CheckOrigin(req); got != tc.want {
			t.Errorf("CheckOrigin(%q) = %v, want %v", tc.origin, got, tc.want)
		}
	}
}
