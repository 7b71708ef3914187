package server

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/clicktochat/chatd/internal/chat"
	"github.com/clicktochat/chatd/internal/config"
	"github.com/clicktochat/chatd/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handshake rejection codes sent on the ERROR frame before the close.
const (
	closeCodeAlreadyConnected = "ALREADY_CONNECTED"
	closeCodeInvalidKey       = "INVALID_KEY"
)

var (
	errConnClosed     = errors.New("connection closed")
	errSendBufferFull = errors.New("send buffer full")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Clients are native apps, not browsers; origin carries no signal here.
	CheckOrigin: func(*http.Request) bool { return true },
}

// socketConn wraps one websocket connection. All writes funnel through sendCh
// into a single pump goroutine, so frames are never interleaved on the wire.
type socketConn struct {
	ws     *websocket.Conn
	cfg    config.SocketConfig
	log    *zap.Logger
	sendCh chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newSocketConn(ws *websocket.Conn, cfg config.SocketConfig, log *zap.Logger) *socketConn {
	return &socketConn{
		ws:     ws,
		cfg:    cfg,
		log:    log,
		sendCh: make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
	}
}

// Send queues a frame for the write pump. A full buffer tears the connection
// down rather than blocking the caller behind a slow peer.
func (c *socketConn) Send(payload []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.sendCh <- payload:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		c.log.Warn("send buffer full; dropping connection")
		_ = c.Close()
		return errSendBufferFull
	}
}

// Close signals the write pump to finish. Safe to call from any goroutine,
// any number of times.
func (c *socketConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// writePump is the sole writer on the websocket. It drains queued frames,
// keeps the peer alive with pings, and closes the underlying socket on exit,
// which in turn unblocks the read loop.
func (c *socketConn) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case payload := <-c.sendCh:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Debug("write frame", zap.Error(err))
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

// handleChatSocket runs the websocket handshake and, on success, the
// connection's receive loop. The loop returns when the peer goes away, a
// frame write fails, or the session is closed from elsewhere.
func (s *Server) handleChatSocket(c *gin.Context) {
	userID := c.Query("u")
	key := c.Query("k")
	if userID == "" || key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing u or k query parameter"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.log.Debug("websocket upgrade", zap.Error(err))
		return
	}

	log := s.log.With(zap.String("user_id", userID))
	conn := newSocketConn(ws, s.cfg.Socket, log)

	if err := s.deps.Sessions.Join(userID, key, conn); err != nil {
		s.rejectHandshake(ws, userID, err)
		return
	}

	s.deps.Metrics.IncSession()
	log.Info("user connected")

	go conn.writePump()
	s.readLoop(userID, conn)

	s.deps.Sessions.Leave(userID)
	s.deps.Metrics.DecSession()
	log.Info("user disconnected")
}

// rejectHandshake reports a failed join on the not-yet-registered socket.
// The write pump never starts for rejected connections, so writing directly
// here is safe.
func (s *Server) rejectHandshake(ws *websocket.Conn, userID string, joinErr error) {
	code := closeCodeInvalidKey
	msg := "invalid or expired socket key"
	if errors.Is(joinErr, session.ErrAlreadyConnected) {
		code = closeCodeAlreadyConnected
		msg = "user already has a live session"
	}
	s.log.Warn("handshake rejected",
		zap.String("user_id", userID),
		zap.String("code", code),
		zap.Error(joinErr))

	payload, err := (chat.Response{
		Type:  chat.ResponseError,
		Error: &chat.ErrorDetail{Code: code, Message: msg},
	}).Encode()
	deadline := time.Now().Add(s.cfg.Socket.WriteWait)
	_ = ws.SetWriteDeadline(deadline)
	if err == nil {
		_ = ws.WriteMessage(websocket.TextMessage, payload)
	}
	_ = ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code))
	_ = ws.Close()
}

// readLoop consumes inbound frames until the connection dies. Undecodable
// frames are dropped whole; handler failures are reported back only to this
// connection as ERROR frames.
func (s *Server) readLoop(userID string, conn *socketConn) {
	ws := conn.ws
	ws.SetReadLimit(s.cfg.Socket.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.Socket.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.cfg.Socket.PongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				conn.log.Debug("read loop ended", zap.Error(err))
			}
			_ = conn.Close()
			return
		}

		req, err := chat.DecodeRequest(data)
		if err != nil {
			s.deps.Metrics.RecordFrameDropped()
			conn.log.Debug("dropping undecodable frame", zap.Error(err))
			continue
		}

		start := time.Now()
		err = s.deps.Service.HandleFrame(s.baseCtx, userID, req)
		s.deps.Metrics.ObserveLatency(strings.ToLower(req.Type), time.Since(start))
		if err == nil {
			continue
		}

		s.deps.Metrics.RecordError(chat.ErrorCode(err))
		resp, ok := chat.ErrorResponse(err)
		if !ok {
			conn.log.Error("handle frame", zap.String("type", req.Type), zap.Error(err))
			continue
		}
		payload, encErr := resp.Encode()
		if encErr != nil {
			continue
		}
		if sendErr := conn.Send(payload); sendErr != nil {
			return
		}
	}
}
