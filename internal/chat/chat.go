// Package chat forwards finalized transcripts into a conference chat stream.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MessageType is the frame type written for every transcript.
const MessageType = "chat"

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("chat sender closed")

// Message is one chat frame.
type Message struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Room      string `json:"room"`
	From      string `json:"from"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Sender delivers chat messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Config configures a WebSocketSender.
type Config struct {
	URL          string
	WriteTimeout time.Duration
	DialTimeout  time.Duration
	Logger       *slog.Logger
}

// WebSocketSender writes JSON text frames on a lazily dialed websocket.
// Each connection has a reader that answers pings and discards inbound
// frames. A failed read or write drops the connection; the next Send redials.
type WebSocketSender struct {
	cfg    Config
	dialer *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	readers sync.WaitGroup
}

// NewWebSocketSender validates cfg without dialing.
func NewWebSocketSender(cfg Config) (*WebSocketSender, error) {
	cfg.URL = strings.TrimSpace(cfg.URL)
	if cfg.URL == "" {
		return nil, errors.New("chat url is empty")
	}
	if !strings.HasPrefix(cfg.URL, "ws://") && !strings.HasPrefix(cfg.URL, "wss://") {
		return nil, fmt.Errorf("chat url %q must use ws:// or wss://", cfg.URL)
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	return &WebSocketSender{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.DialTimeout,
		},
	}, nil
}

// Send writes msg, dialing first when no connection is open.
func (s *WebSocketSender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if msg.Type == "" {
		msg.Type = MessageType
	}
	if s.conn == nil {
		conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
		if err != nil {
			return fmt.Errorf("dial chat %s: %w", s.cfg.URL, err)
		}
		s.conn = conn
		s.readers.Add(1)
		go s.readLoop(conn)
		if s.cfg.Logger != nil {
			s.cfg.Logger.Info("chat connected", "url", s.cfg.URL)
		}
	}

	deadline := time.Now().Add(s.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		s.dropLocked()
		return fmt.Errorf("set chat write deadline: %w", err)
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		s.dropLocked()
		return fmt.Errorf("write chat message: %w", err)
	}
	return nil
}

// Close sends a normal close frame, releases the connection and waits for
// its reader to exit. It is idempotent.
func (s *WebSocketSender) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	var err error
	if conn != nil {
		deadline := time.Now().Add(s.cfg.WriteTimeout)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = conn.Close()
	}
	s.readers.Wait()
	return err
}

// readLoop keeps conn's control frames flowing. Ping, pong and close frames
// are only processed inside a read, so the loop runs until the first error.
func (s *WebSocketSender) readLoop(conn *websocket.Conn) {
	defer s.readers.Done()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			s.mu.Lock()
			if s.conn == conn {
				if s.cfg.Logger != nil {
					s.cfg.Logger.Warn("chat read failed", "url", s.cfg.URL, "error", err.Error())
				}
				s.dropLocked()
			}
			s.mu.Unlock()
			return
		}
	}
}

func (s *WebSocketSender) dropLocked() {
	if s.conn == nil {
		return
	}
	_ = s.conn.Close()
	s.conn = nil
	if s.cfg.Logger != nil {
		s.cfg.Logger.Warn("chat connection dropped", "url", s.cfg.URL)
	}
}
