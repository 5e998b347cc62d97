package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/iosdriver/internal/domain/session"
	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/logging"
	"github.com/GriffinCanCode/iosdriver/internal/instruments"
)

// Frame types produced by the bridge itself.
const (
	TypeConnected = "connected"
	TypePing      = "ping"
	TypePong      = "pong"
	TypeError     = "error"
)

const writeTimeout = 5 * time.Second

// Handler bridges websocket clients to a session's communication channel.
// Frames received from the client are sent to the instrumentation process;
// messages from the process are written back as frames.
type Handler struct {
	sessions *session.Manager
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(sessions *session.Manager, logger *logging.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logging.OrNop(logger).Named("ws"),
	}
}

// HandleConnection upgrades GET /wd/hub/session/:id/channel
func (h *Handler) HandleConnection(c *gin.Context) {
	id := c.Param("id")
	s, err := h.sessions.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"sessionId": id,
			"status":    6,
			"value":     gin.H{"message": err.Error()},
		})
		return
	}

	channel := s.Communication()
	if channel == nil {
		c.JSON(http.StatusConflict, gin.H{
			"sessionId": id,
			"status":    13,
			"value":     gin.H{"message": "instrumentation is not running"},
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.String(logging.SessionKey, id), zap.Error(err))
		return
	}

	b := &bridge{
		conn:    conn,
		channel: channel,
		logger:  h.logger.ForSession(id),
	}
	b.run(c.Request.Context(), instruments.Message{
		Type: TypeConnected,
		Payload: map[string]interface{}{
			"session_id":             id,
			"instruments_session_id": s.Instruments().SessionID(),
			"mode":                   s.Mode().String(),
		},
	})
}

// bridge is one client connection. Writes are serialised by mu.
type bridge struct {
	conn    *websocket.Conn
	channel *instruments.Channel
	logger  *logging.Logger

	mu sync.Mutex
}

func (b *bridge) run(parent context.Context, hello instruments.Message) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer b.conn.Close()

	if err := b.send(hello); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.forward(ctx)
	}()

	b.logger.Debug("Channel client connected")
	b.receive(ctx)
	cancel()
	<-done
	b.logger.Debug("Channel client disconnected")
}

// forward writes every message from the process to the client.
func (b *bridge) forward(ctx context.Context) {
	for {
		msg, err := b.channel.Receive(ctx)
		if err != nil {
			if errors.Is(err, instruments.ErrChannelClosed) {
				b.close(websocket.CloseNormalClosure, "session stopped")
				// give the client a moment to answer the close frame
				b.conn.SetReadDeadline(time.Now().Add(writeTimeout))
			}
			return
		}
		if err := b.send(msg); err != nil {
			return
		}
	}
}

// receive reads client frames until the connection drops.
func (b *bridge) receive(ctx context.Context) {
	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		var msg instruments.Message
		if err := sonic.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			b.sendError(msg.ID, "invalid message")
			continue
		}

		switch msg.Type {
		case TypePing:
			b.send(instruments.Message{ID: msg.ID, Type: TypePong})
		default:
			if err := b.channel.Send(ctx, msg); err != nil {
				b.sendError(msg.ID, err.Error())
				if errors.Is(err, instruments.ErrChannelClosed) {
					return
				}
			}
		}
	}
}

func (b *bridge) send(msg instruments.Message) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return b.conn.WriteMessage(websocket.TextMessage, data)
}

func (b *bridge) sendError(id, message string) {
	b.send(instruments.Message{
		ID:      id,
		Type:    TypeError,
		Payload: map[string]interface{}{"message": message},
	})
}

func (b *bridge) close(code int, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(writeTimeout))
}
