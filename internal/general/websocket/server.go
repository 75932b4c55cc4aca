package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ride-dispatch/internal/dispatch"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"
)

const (
	defaultAuthTimeout    = 5 * time.Second
	defaultPingInterval   = 30 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultWriteTimeout   = 5 * time.Second
	defaultOutboundBuffer = 64
	wsCloseAckWindow      = 2 * time.Second
	maxFrameBytes         = 1 << 20 // 1 MiB
)

// Options tunes socket timing and per-session buffering. Zero values use defaults.
type Options struct {
	AuthTimeout    time.Duration
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteTimeout   time.Duration
	OutboundBuffer int
}

func (o Options) withDefaults() Options {
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = defaultAuthTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.OutboundBuffer <= 0 {
		o.OutboundBuffer = defaultOutboundBuffer
	}
	return o
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocket serves authenticated rider and driver sockets and implements
// dispatch.Deliverer over their outbound queues.
type WebSocket struct {
	logger     *logger.Logger
	jwtMgr     *jwt.Manager
	dispatcher *dispatch.Dispatcher
	opts       Options

	mu       sync.RWMutex
	sessions map[dispatch.SessionHandle]*session
}

// NewWebSocket creates a WebSocket handler with JWT auth. Call Bind before serving.
func NewWebSocket(logger *logger.Logger, jwtMgr *jwt.Manager, opts Options) *WebSocket {
	return &WebSocket{
		logger:   logger,
		jwtMgr:   jwtMgr,
		opts:     opts.withDefaults(),
		sessions: make(map[dispatch.SessionHandle]*session),
	}
}

// Bind attaches the dispatcher. The router needs the socket server as its
// Deliverer and the socket server needs the dispatcher, so wiring happens in two steps.
func (ws *WebSocket) Bind(d *dispatch.Dispatcher) {
	ws.dispatcher = d
}

// Deliver enqueues msg on the session's outbound queue without blocking.
func (ws *WebSocket) Deliver(handle dispatch.SessionHandle, msg contracts.WSOutbound) bool {
	ws.mu.RLock()
	s, ok := ws.sessions[handle]
	ws.mu.RUnlock()
	if !ok {
		return false
	}
	return s.enqueue(msg)
}

// Sessions returns the number of sockets with a running writer.
func (ws *WebSocket) Sessions() int {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return len(ws.sessions)
}

// Connect upgrades the request, authenticates the first frame and then serves the
// socket until it closes.
func (ws *WebSocket) Connect(w http.ResponseWriter, r *http.Request) {
	// 1) Upgrade HTTP -> WS
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	defer conn.Close()

	ctx := ws.logger.WithRequestID(context.Background(), logger.NewRequestID())

	// 2) Authenticate within the deadline
	res, ok := ws.authenticate(ctx, conn)
	if !ok {
		return
	}
	userID := res.Claims.UserID()
	role := res.Claims.Role

	// 3) Register the session and start its writer
	s := newSession(dispatch.NewSessionHandle(), userID, role, conn, ws.opts)
	ws.mu.Lock()
	ws.sessions[s.handle] = s
	ws.mu.Unlock()
	ws.dispatcher.Connect(ctx, s.handle, userID, role)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ws.writePump(ctx, s)
	}()

	// Teardown: drop from the registry first so no new events are routed here,
	// then stop the writer and let it flush a close frame.
	defer func() {
		ws.dispatcher.Disconnect(ctx, s.handle)
		ws.mu.Lock()
		delete(ws.sessions, s.handle)
		ws.mu.Unlock()
		s.close()
		<-writerDone
	}()

	ws.logger.Info(ctx, "ws_connected", "WebSocket connected", map[string]any{
		"user_id": userID,
		"role":    role.String(),
		"session": s.handle.String(),
	})

	// 4) Liveness: pongs extend the read deadline
	_ = conn.SetReadDeadline(time.Now().Add(ws.opts.PongWait))
	conn.SetPongHandler(func(_ string) error {
		return conn.SetReadDeadline(time.Now().Add(ws.opts.PongWait))
	})

	// 5) Read loop
	ws.readLoop(ctx, s)
}

func (ws *WebSocket) authenticate(ctx context.Context, conn *websocket.Conn) (*jwt.Result, bool) {
	conn.SetReadLimit(maxFrameBytes)
	if err := conn.SetReadDeadline(time.Now().Add(ws.opts.AuthTimeout)); err != nil {
		ws.logger.Error(ctx, "ws_set_deadline_failed", "Failed to set initial read deadline", err, nil)
		ws.sendAuthError(conn, "internal server error")
		return nil, false
	}

	msgType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			ws.logger.Error(ctx, "ws_auth_timeout", "Client disconnected before authentication", err, nil)
		} else {
			ws.logger.Error(ctx, "ws_auth_read_failed", "Failed to read authenticate message", err, nil)
		}
		ws.sendAuthError(conn, "authentication timeout: send authenticate within "+ws.opts.AuthTimeout.String())
		return nil, false
	}

	if msgType != websocket.TextMessage {
		ws.logger.Error(ctx, "ws_auth_invalid_format", "Authenticate message must be text format", nil, nil)
		ws.sendAuthError(conn, "authenticate message must be in text format")
		return nil, false
	}

	res, err := jwt.ValidateWSAuth(firstFrame, ws.jwtMgr)
	if err != nil {
		ws.logger.Error(ctx, "ws_auth_failed", "Invalid authenticate message or token", err, nil)
		ws.sendAuthError(conn, "authentication failed: "+err.Error())
		return nil, false
	}

	if err := ws.writeDirect(conn, contracts.WSOutbound{
		Type: contracts.WSAuthenticated,
		Data: contracts.WSAuthenticatedPayload{UserID: res.Claims.UserID(), Role: res.Claims.Role.String()},
	}); err != nil {
		ws.logger.Error(ctx, "ws_auth_success_failed", "Failed to send authenticated message", err, nil)
		return nil, false
	}
	return res, true
}

func (ws *WebSocket) readLoop(ctx context.Context, s *session) {
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Error(ctx, "ws_unexpected_close", "Connection closed unexpectedly", err, map[string]any{
					"user_id": s.userID,
				})
			} else {
				ws.logger.Info(ctx, "ws_connection_closed", "Connection closed", map[string]any{
					"user_id": s.userID,
				})
			}
			return
		}

		var msg contracts.WSInbound
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.enqueue(errorMessage("bad json", "bad_request"))
			continue
		}
		ws.route(ctx, s, msg)
	}
}

// writePump is the only goroutine writing to the socket once the session is live.
func (ws *WebSocket) writePump(ctx context.Context, s *session) {
	ticker := time.NewTicker(ws.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-s.send:
			if err := ws.writeDirect(s.conn, msg); err != nil {
				ws.logger.Error(ctx, "ws_write_failed", "Failed to write message", err, map[string]any{
					"user_id": s.userID,
					"type":    msg.Type,
				})
				// Close the socket to unblock the reader.
				_ = s.conn.Close()
				return
			}

		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ws.opts.WriteTimeout)); err != nil {
				ws.logger.Error(ctx, "ws_ping_failed", "Failed to send ping", err, map[string]any{
					"user_id": s.userID,
				})
				_ = s.conn.Close()
				return
			}

		case <-s.done:
			_ = s.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
				time.Now().Add(wsCloseAckWindow),
			)
			return
		}
	}
}

// writeDirect writes one JSON frame. Callers must own the socket's write side.
func (ws *WebSocket) writeDirect(conn *websocket.Conn, msg contracts.WSOutbound) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(ws.opts.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// sendAuthError sends an auth_error frame and a policy-violation close.
func (ws *WebSocket) sendAuthError(conn *websocket.Conn, message string) {
	_ = ws.writeDirect(conn, contracts.WSOutbound{
		Type: contracts.WSAuthError,
		Data: contracts.WSErrorPayload{Error: message, Code: "unauthorized"},
	})
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"),
		time.Now().Add(wsCloseAckWindow),
	)
}

func errorMessage(text, code string) contracts.WSOutbound {
	return contracts.WSOutbound{Type: contracts.WSError, Data: contracts.WSErrorPayload{Error: text, Code: code}}
}
