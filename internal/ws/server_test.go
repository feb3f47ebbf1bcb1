package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"dmchat/internal/metrics"
	"dmchat/internal/models"
	"dmchat/internal/presence"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type tokenVerifier map[string]string

func (v tokenVerifier) UserID(token string) (string, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return "", errors.New("bad token")
}

// recordingSender accepts every message and remembers who sent it.
type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingSender) Send(_ context.Context, senderID, receiverID, text string) (models.MessagePayload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, senderID+"->"+receiverID+":"+text)
	return models.MessagePayload{Text: text}, nil
}

func (r *recordingSender) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.sent)
}

func newTestServer(t *testing.T, origin string) (*httptest.Server, *Hub) {
	t.Helper()
	ts, hub, _ := newTestServerWithSender(t, origin)
	return ts, hub
}

func newTestServerWithSender(t *testing.T, origin string) (*httptest.Server, *Hub, *recordingSender) {
	t.Helper()
	hub := NewHub(presence.NewRegistry(), metrics.New(prometheus.NewRegistry()), 8)
	sender := &recordingSender{}
	srv := NewServer(tokenVerifier{"tok-alice": "alice"}, hub, sender, origin)

	ts := httptest.NewServer(http.HandlerFunc(srv.HandleConnections))
	t.Cleanup(ts.Close)
	return ts, hub, sender
}

func dial(t *testing.T, ts *httptest.Server, query url.Values, header http.Header) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?" + query.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(u, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServer_HandshakeIdentity(t *testing.T) {
	tests := []struct {
		name   string
		query  url.Values
		header http.Header
		want   []string
	}{
		{"token query", url.Values{"token": {"tok-alice"}}, nil, []string{"alice"}},
		{"bearer header", nil, http.Header{"Authorization": {"Bearer tok-alice"}}, []string{"alice"}},
		{"token wins over userId", url.Values{"token": {"tok-alice"}, "userId": {"mallory"}}, nil, []string{"alice"}},
		{"invalid token degrades", url.Values{"token": {"forged"}, "userId": {"mallory"}}, nil, []string{}},
		{"raw userId", url.Values{"userId": {"bob"}}, nil, []string{"bob"}},
		{"sentinel userId", url.Values{"userId": {"null"}}, nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, hub := newTestServer(t, "")
			conn := dial(t, ts, tt.query, tt.header)

			require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
			var msg models.ServerMessage
			require.NoError(t, conn.ReadJSON(&msg))
			require.Equal(t, models.ServerMessageTypeOnlineUsers, msg.Type)
			require.Equal(t, tt.want, msg.UserIDs)
			require.Equal(t, 1, hub.ConnectionCount())
		})
	}
}

func TestServer_DisconnectReleasesPresence(t *testing.T) {
	ts, hub := newTestServer(t, "")

	conn := dial(t, ts, url.Values{"userId": {"bob"}}, nil)
	require.Eventually(t, func() bool {
		return len(hub.Online()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return len(hub.Online()) == 0 && hub.ConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_CheckOrigin(t *testing.T) {
	ts, _ := newTestServer(t, "http://localhost:3000")
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": {"http://localhost:3000"}})
	require.NoError(t, err)
	_ = conn.Close()
}

func TestServer_SendRequiresToken(t *testing.T) {
	ts, _, sender := newTestServerWithSender(t, "")

	readFrame := func(conn *websocket.Conn, want models.ServerMessageType) models.ServerMessage {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		for {
			var msg models.ServerMessage
			require.NoError(t, conn.ReadJSON(&msg))
			if msg.Type == want {
				return msg
			}
		}
	}

	raw := dial(t, ts, url.Values{"userId": {"alice"}}, nil)
	require.NoError(t, raw.WriteJSON(models.ClientMessage{
		Type:       models.ClientMessageTypeSend,
		ReceiverID: "bob",
		Text:       "forged",
	}))
	msg := readFrame(raw, models.ServerMessageTypeError)
	require.Equal(t, "Not authorized.", msg.Error)
	require.Empty(t, sender.messages())

	authed := dial(t, ts, url.Values{"token": {"tok-alice"}}, nil)
	require.NoError(t, authed.WriteJSON(models.ClientMessage{
		Type:       models.ClientMessageTypeSend,
		ReceiverID: "bob",
		Text:       "hello",
	}))
	require.Eventually(t, func() bool {
		return slices.Equal(sender.messages(), []string{"alice->bob:hello"})
	}, 2*time.Second, 10*time.Millisecond)
}
