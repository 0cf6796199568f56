package transport

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/errors"
	"chat-hub/metrics"
	"chat-hub/repositories"
	"chat-hub/services"
	"chat-hub/sink"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
)

// inboundOp is the single envelope for every client-to-server operation.
// Fields that an op does not use stay at their zero value.
type inboundOp struct {
	Op             string                 `json:"op"`
	ConversationID uuid.UUID              `json:"conversation_id"`
	MessageID      uuid.UUID              `json:"message_id"`
	MessageIDs     []uuid.UUID            `json:"message_ids"`
	Content        string                 `json:"content"`
	File           *domain.FileDescriptor `json:"file,omitempty"`
	Emoji          string                 `json:"emoji"`
	Status         string                 `json:"status"`
}

// outboundFrame wraps every server-to-client event.
type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Gateway upgrades authenticated requests to websockets and bridges
// them to the registry, the operations layer and the presence service.
type Gateway struct {
	log         *slog.Logger
	upgrader    websocket.Upgrader
	registry    contract.IRegistry
	ops         *services.Operations
	presence    *services.PresenceService
	memberships repositories.IMembershipRepository
	sinkBuffer  int
}

func NewGateway(log *slog.Logger, registry contract.IRegistry, ops *services.Operations,
	presence *services.PresenceService, memberships repositories.IMembershipRepository,
	sinkBuffer int) *Gateway {
	return &Gateway{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		registry:    registry,
		ops:         ops,
		presence:    presence,
		memberships: memberships,
		sinkBuffer:  sinkBuffer,
	}
}

// Handle runs for the lifetime of one websocket connection. The caller
// identity was already resolved by the auth middleware.
func (g *Gateway) Handle(c *gin.Context) {
	identity := callerOf(c)

	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", "user_id", identity.UserID, "error", err)
		return
	}

	connID := domain.NewConnectionID()
	inbox := sink.NewConnectionSink(g.sinkBuffer)
	first := g.registry.Register(connID, identity.UserID, inbox)
	metrics.LiveConnections.Inc()
	g.log.Info("connection opened", "connection_id", connID, "user_id", identity.UserID, "first", first)

	// Joining every conversation room up front keeps room membership a
	// pure projection of durable membership. A connection without its
	// rooms would never receive an event, so a store failure here
	// refuses the connection instead of leaving it deaf.
	if err := g.joinMemberRooms(c.Request.Context(), connID, identity.UserID); err != nil {
		g.log.Error("refusing connection, rooms unavailable",
			"connection_id", connID, "user_id", identity.UserID, "error", err)
		g.registry.Unregister(connID)
		metrics.LiveConnections.Dec()
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "store unavailable"))
		_ = ws.Close()
		return
	}
	if first {
		g.presence.Connected(c.Request.Context(), identity.UserID)
	}

	done := make(chan struct{})
	go g.writePump(ws, inbox, done)

	g.readPump(ws, connID, identity, inbox)

	userID, last, _ := g.registry.Unregister(connID)
	metrics.LiveConnections.Dec()
	close(done)
	_ = ws.Close()
	if last {
		g.presence.Disconnected(context.Background(), userID)
	}
	g.log.Info("connection closed", "connection_id", connID, "user_id", identity.UserID, "last", last)
}

func (g *Gateway) joinMemberRooms(ctx context.Context, connID domain.ConnectionID, userID uuid.UUID) error {
	ids, err := g.memberships.ConversationsOf(ctx, userID)
	if err != nil {
		return err
	}
	for _, conversationID := range ids {
		g.registry.Join(connID, domain.RoomOf(conversationID))
	}
	return nil
}

// readPump decodes inbound frames and applies them through the
// operations layer. Failures become point-to-point error events; they
// never close the connection.
func (g *Gateway) readPump(ws *websocket.Conn, connID domain.ConnectionID,
	identity contract.Identity, inbox *sink.ConnectionSink) {
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.log.Warn("websocket read failed", "connection_id", connID, "error", err)
			}
			return
		}

		var op inboundOp
		if err := json.Unmarshal(raw, &op); err != nil {
			g.sendError(inbox, "invalid_frame", "malformed operation")
			continue
		}
		if err := g.apply(context.Background(), connID, identity, op); err != nil {
			g.sendError(inbox, errors.Code(err), err.Error())
		}
	}
}

func (g *Gateway) apply(ctx context.Context, connID domain.ConnectionID,
	identity contract.Identity, op inboundOp) error {
	switch op.Op {
	case "join":
		if _, err := g.memberships.Get(ctx, op.ConversationID, identity.UserID); err != nil {
			if stderrors.Is(err, errors.ErrNotFound) {
				return errors.ErrNotMember
			}
			return err
		}
		g.registry.Join(connID, domain.RoomOf(op.ConversationID))
		return nil
	case "send":
		_, err := g.ops.Send(ctx, services.SendCommand{
			ConversationID: op.ConversationID,
			SenderID:       identity.UserID,
			Content:        op.Content,
			File:           op.File,
		})
		return err
	case "edit":
		_, err := g.ops.Edit(ctx, op.ConversationID, op.MessageID, identity.UserID, op.Content)
		return err
	case "delete":
		return g.ops.Delete(ctx, op.ConversationID, op.MessageID, identity.UserID)
	case "react":
		_, err := g.ops.ToggleReaction(ctx, op.ConversationID, op.MessageID, identity.UserID, op.Emoji)
		return err
	case "mark_read":
		return g.ops.MarkRead(ctx, op.ConversationID, identity.UserID, op.MessageIDs)
	case "pin":
		return g.ops.Pin(ctx, op.ConversationID, op.MessageID, identity.UserID)
	case "unpin":
		return g.ops.Unpin(ctx, op.ConversationID, op.MessageID, identity.UserID)
	case "typing":
		return g.ops.Typing(ctx, op.ConversationID, identity.UserID, connID)
	case "stop_typing":
		return g.ops.StopTyping(ctx, op.ConversationID, identity.UserID, connID)
	case "status":
		return g.presence.SetStatus(ctx, identity.UserID, domain.Presence(op.Status))
	default:
		return fmt.Errorf("unknown operation %q: %w", op.Op, errors.ErrNotFound)
	}
}

// sendError delivers an error event to this connection only.
func (g *Gateway) sendError(inbox *sink.ConnectionSink, code, message string) {
	if inbox == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := inbox.Consume(ctx, event.ErrorEvent{Code: code, Message: message}); err != nil {
		g.log.Warn("failed to queue error event", "error", err)
	}
}

// writePump serializes the sink's events onto the socket and keeps the
// connection alive with pings.
func (g *Gateway) writePump(ws *websocket.Conn, inbox *sink.ConnectionSink, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case e := <-inbox.Events:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(outboundFrame{Event: e.Name(), Data: e}); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
