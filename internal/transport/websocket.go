package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultReadLimit        = 1 << 20
	closeGrace              = 2 * time.Second
)

// WebSocketDialer opens gorilla/websocket connections.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
	Header           http.Header
	Logger           *logrus.Logger
}

func (d *WebSocketDialer) Open(ctx context.Context, rawURL string, h Handler) (Socket, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("endpoint must be ws:// or wss://, got %q", rawURL)
	}
	dialCtx, cancel := context.WithCancel(ctx)
	s := &wsSocket{
		cancel:       cancel,
		writeTimeout: d.WriteTimeout,
		logger:       d.Logger,
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = defaultWriteTimeout
	}
	s.state.Store(int32(Connecting))
	go s.run(dialCtx, d, rawURL, h)
	return s, nil
}

type wsSocket struct {
	state        atomic.Int32
	cancel       context.CancelFunc
	writeTimeout time.Duration
	logger       *logrus.Logger

	mu   sync.Mutex // guards conn and writes
	conn *websocket.Conn
}

func (s *wsSocket) State() ReadyState { return ReadyState(s.state.Load()) }

func (s *wsSocket) run(ctx context.Context, d *WebSocketDialer, rawURL string, h Handler) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}
	conn, _, err := dialer.DialContext(ctx, rawURL, d.Header)
	if err != nil {
		abandoned := s.State() != Connecting
		s.state.Store(int32(Closed))
		if abandoned {
			return
		}
		h.OnError(fmt.Errorf("dial %s: %w", rawURL, err))
		h.OnClose(CloseAbnormal, "", false)
		return
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	conn.SetReadLimit(limit)

	s.mu.Lock()
	if !s.state.CompareAndSwap(int32(Connecting), int32(Open)) {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conn = conn
	s.mu.Unlock()

	h.OnOpen()
	s.readLoop(conn, h)
}

func (s *wsSocket) readLoop(conn *websocket.Conn, h Handler) {
	defer func() {
		s.state.Store(int32(Closed))
		_ = conn.Close()
	}()
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				h.OnClose(ce.Code, ce.Text, true)
				return
			}
			if s.State() == Closing {
				h.OnClose(CloseNormal, "", true)
				return
			}
			if s.logger != nil {
				s.logger.Debugf("websocket read: %v", err)
			}
			h.OnClose(CloseAbnormal, "", false)
			return
		}
		switch mt {
		case websocket.TextMessage:
			h.OnText(data)
		default:
			if s.logger != nil {
				s.logger.Debugf("ignoring websocket message type %d (%d bytes)", mt, len(data))
			}
		}
	}
}

func (s *wsSocket) write(mt int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != Open || s.conn == nil {
		return fmt.Errorf("socket is %s", s.State())
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(mt, data)
}

func (s *wsSocket) SendText(data []byte) error   { return s.write(websocket.TextMessage, data) }
func (s *wsSocket) SendBinary(data []byte) error { return s.write(websocket.BinaryMessage, data) }

func (s *wsSocket) Close(code int, reason string) error {
	if s.state.CompareAndSwap(int32(Connecting), int32(Closed)) {
		s.cancel()
		return nil
	}
	if !s.state.CompareAndSwap(int32(Open), int32(Closing)) {
		return nil
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	// The read loop exits when the peer echoes the close frame; force it
	// if the peer never does.
	time.AfterFunc(closeGrace, func() {
		_ = conn.Close()
		s.cancel()
	})
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		_ = conn.Close()
		return fmt.Errorf("send close frame: %w", err)
	}
	return nil
}
