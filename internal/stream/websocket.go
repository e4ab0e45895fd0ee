package stream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/orderdesk/internal/domain"
	"github.com/ashureev/orderdesk/internal/metrics"
	"github.com/ashureev/orderdesk/internal/middleware"
	"github.com/ashureev/orderdesk/internal/support"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Message types exchanged over the socket.
const (
	TypeStart    = "start"
	TypeMessage  = "message"
	TypePayment  = "payment"
	TypePing     = "ping"
	TypePong     = "pong"
	TypeResult   = "result"
	TypeFollowup = "followup"
	TypeError    = "error"
)

const writeTimeout = 10 * time.Second

// ClientMessage is sent by the chat UI.
type ClientMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Category  string `json:"category,omitempty"`
	Text      string `json:"text,omitempty"`
	Option    string `json:"option,omitempty"`
}

// ServerMessage is sent to the chat UI.
type ServerMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Result    *support.Result `json:"result,omitempty"`
	Message   string          `json:"message,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Handler serves /ws/chat. Each connection drives one conversation and
// delivers deferred messages itself before reading the next input.
type Handler struct {
	svc            *support.Service
	conns          *Manager
	allowedOrigins []string
	delayScale     float64
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// NewHandler creates a WebSocket chat handler. delayScale multiplies every
// deferred-message pause; 0 delivers them immediately.
func NewHandler(svc *support.Service, conns *Manager, allowedOrigins []string, delayScale float64, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:            svc,
		conns:          conns,
		allowedOrigins: allowedOrigins,
		delayScale:     delayScale,
		metrics:        m,
		logger:         logger,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !middleware.AllowOrigin(h.allowedOrigins, r.Header.Get("Origin")) {
		h.logger.Warn("WebSocket origin rejected", "origin", r.Header.Get("Origin"))
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	h.metrics.StreamOpened()
	defer h.metrics.StreamClosed()

	s := &session{h: h, ws: ws, id: r.URL.Query().Get("session_id")}
	if s.id != "" {
		if _, err := h.svc.Conversation(r.Context(), s.id); err != nil {
			_ = s.write(r.Context(), ServerMessage{Type: TypeError, SessionID: s.id, Error: err.Error()})
			return
		}
		h.conns.Register(s.id, ws)
		if err := s.flushPending(r.Context()); err != nil {
			h.logger.Debug("Failed to deliver pending messages", "session_id", s.id, "error", err)
		}
	}
	defer func() {
		if s.id != "" {
			h.conns.Unregister(s.id, ws)
		}
	}()

	s.loop(r.Context())
}

// session is the per-connection state of the read loop.
type session struct {
	h  *Handler
	ws *websocket.Conn
	id string
}

func (s *session) loop(ctx context.Context) {
	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, s.ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				s.h.logger.Debug("WebSocket closed by client", "session_id", s.id)
			} else {
				s.h.logger.Warn("WebSocket read error", "error", err, "session_id", s.id)
			}
			return
		}

		if err := s.dispatch(ctx, msg); err != nil {
			s.h.logger.Debug("WebSocket write failed", "error", err, "session_id", s.id)
			return
		}
	}
}

func (s *session) dispatch(ctx context.Context, msg ClientMessage) error {
	switch msg.Type {
	case TypePing:
		return s.write(ctx, ServerMessage{Type: TypePong})

	case TypeStart:
		res, err := s.h.svc.Start(ctx, domain.Category(msg.Category))
		if err != nil {
			return s.fail(ctx, err)
		}
		if s.id != "" {
			s.h.conns.Unregister(s.id, s.ws)
		}
		s.id = res.SessionID
		s.h.conns.Register(s.id, s.ws)
		return s.deliver(ctx, res)

	case TypeMessage, TypePayment:
		if s.id == "" {
			return s.write(ctx, ServerMessage{Type: TypeError, Error: "no conversation started"})
		}
		var res support.Result
		var err error
		if msg.Type == TypePayment {
			res, err = s.h.svc.SelectPayment(ctx, s.id, msg.Option)
		} else {
			res, err = s.h.svc.Process(ctx, s.id, msg.Text)
		}
		if err != nil {
			return s.fail(ctx, err)
		}
		return s.deliver(ctx, res)

	default:
		return s.write(ctx, ServerMessage{Type: TypeError, Error: "unknown message type " + msg.Type})
	}
}

// deliver sends the primary result and then each deferred message after its
// pause, in order.
func (s *session) deliver(ctx context.Context, res support.Result) error {
	if err := s.write(ctx, ServerMessage{Type: TypeResult, SessionID: res.SessionID, Result: &res}); err != nil {
		return err
	}

	for _, d := range res.Deferred {
		if err := sleep(ctx, time.Duration(float64(d.Delay)*s.h.delayScale)); err != nil {
			return err
		}
		if err := s.followup(ctx); err != nil {
			return err
		}
	}
	return nil
}

// flushPending delivers, without pausing, messages still owed from an
// earlier connection.
func (s *session) flushPending(ctx context.Context) error {
	for {
		n, err := s.h.svc.Pending(ctx, s.id)
		if err != nil || n == 0 {
			return err
		}
		text, err := s.h.svc.Followup(ctx, s.id)
		if err != nil {
			return err
		}
		if err := s.write(ctx, ServerMessage{Type: TypeFollowup, SessionID: s.id, Message: text}); err != nil {
			return err
		}
	}
}

func (s *session) followup(ctx context.Context) error {
	text, err := s.h.svc.Followup(ctx, s.id)
	if err != nil {
		return s.fail(ctx, err)
	}
	return s.write(ctx, ServerMessage{Type: TypeFollowup, SessionID: s.id, Message: text})
}

func (s *session) fail(ctx context.Context, err error) error {
	s.h.logger.Debug("Chat request rejected", "session_id", s.id, "error", err)
	return s.write(ctx, ServerMessage{Type: TypeError, SessionID: s.id, Error: err.Error()})
}

func (s *session) write(ctx context.Context, msg ServerMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, s.ws, msg)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
