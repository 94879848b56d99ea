package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type chatServer struct {
	url      string
	messages chan Message
	conns    atomic.Int32
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()

	cs := &chatServer{messages: make(chan Message, 16)}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		cs.conns.Add(1)
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			cs.messages <- msg
		}
	}))
	t.Cleanup(server.Close)

	cs.url = "ws" + strings.TrimPrefix(server.URL, "http")
	return cs
}

func (cs *chatServer) next(t *testing.T) Message {
	t.Helper()
	select {
	case msg := <-cs.messages:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chat message")
		return Message{}
	}
}

func TestSendWritesChatFrame(t *testing.T) {
	cs := newChatServer(t)
	sender, err := NewWebSocketSender(Config{URL: cs.url})
	require.NoError(t, err)
	defer sender.Close()

	err = sender.Send(context.Background(), Message{
		ID:        "seg-1",
		Room:      "standup",
		From:      "alice",
		Message:   "Hello there.",
		Timestamp: 1700000000000,
	})
	require.NoError(t, err)

	got := cs.next(t)
	require.Equal(t, Message{
		Type:      MessageType,
		ID:        "seg-1",
		Room:      "standup",
		From:      "alice",
		Message:   "Hello there.",
		Timestamp: 1700000000000,
	}, got)
	require.EqualValues(t, 1, cs.conns.Load())
}

func TestSendReusesConnection(t *testing.T) {
	cs := newChatServer(t)
	sender, err := NewWebSocketSender(Config{URL: cs.url})
	require.NoError(t, err)
	defer sender.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, sender.Send(context.Background(), Message{Message: "x"}))
		cs.next(t)
	}
	require.EqualValues(t, 1, cs.conns.Load())
}

func TestSendRedialsAfterConnectionLoss(t *testing.T) {
	cs := newChatServer(t)
	sender, err := NewWebSocketSender(Config{URL: cs.url})
	require.NoError(t, err)
	defer sender.Close()

	require.NoError(t, sender.Send(context.Background(), Message{Message: "first"}))
	cs.next(t)

	sender.mu.Lock()
	require.NoError(t, sender.conn.UnderlyingConn().Close())
	sender.mu.Unlock()
	waitForDisconnect(t, sender)

	require.NoError(t, sender.Send(context.Background(), Message{Message: "second"}))
	require.Equal(t, "second", cs.next(t).Message)
	require.EqualValues(t, 2, cs.conns.Load())
}

func TestSenderAnswersServerPings(t *testing.T) {
	pongs := make(chan string, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetPongHandler(func(data string) error {
			pongs <- data
			return nil
		})

		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"chat","message":"echo"}`)); err != nil {
			return
		}
		if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(time.Second)); err != nil {
			return
		}
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	sender, err := NewWebSocketSender(Config{URL: "ws" + strings.TrimPrefix(server.URL, "http")})
	require.NoError(t, err)
	defer sender.Close()

	require.NoError(t, sender.Send(context.Background(), Message{Message: "hi"}))

	select {
	case data := <-pongs:
		require.Equal(t, "keepalive", data)
	case <-time.After(2 * time.Second):
		t.Fatal("server ping was not answered")
	}
}

func TestSenderNoticesServerClose(t *testing.T) {
	cs := newChatServer(t)
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	closing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "restart"), time.Now().Add(time.Second))
	}))
	t.Cleanup(closing.Close)

	sender, err := NewWebSocketSender(Config{URL: "ws" + strings.TrimPrefix(closing.URL, "http")})
	require.NoError(t, err)

	require.NoError(t, sender.Send(context.Background(), Message{Message: "hi"}))
	waitForDisconnect(t, sender)

	sender.cfg.URL = cs.url
	require.NoError(t, sender.Send(context.Background(), Message{Message: "again"}))
	require.Equal(t, "again", cs.next(t).Message)
	require.NoError(t, sender.Close())
}

func waitForDisconnect(t *testing.T, sender *WebSocketSender) {
	t.Helper()
	require.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return sender.conn == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSendDialFailure(t *testing.T) {
	sender, err := NewWebSocketSender(Config{URL: "ws://127.0.0.1:1/chat", DialTimeout: 200 * time.Millisecond})
	require.NoError(t, err)

	err = sender.Send(context.Background(), Message{Message: "x"})
	require.ErrorContains(t, err, "dial chat")
}

func TestSendAfterClose(t *testing.T) {
	cs := newChatServer(t)
	sender, err := NewWebSocketSender(Config{URL: cs.url})
	require.NoError(t, err)

	require.NoError(t, sender.Close())
	require.NoError(t, sender.Close())
	require.ErrorIs(t, sender.Send(context.Background(), Message{Message: "x"}), ErrClosed)
}

func TestNewWebSocketSenderValidatesURL(t *testing.T) {
	_, err := NewWebSocketSender(Config{URL: ""})
	require.ErrorContains(t, err, "empty")

	_, err = NewWebSocketSender(Config{URL: "http://example.com"})
	require.ErrorContains(t, err, "ws://")
}
