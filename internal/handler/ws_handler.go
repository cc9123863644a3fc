package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sudooom.im.werewolf/internal/broadcast"
	"sudooom.im.werewolf/internal/connection"
	"sudooom.im.werewolf/internal/game"
	"sudooom.im.werewolf/internal/middleware"
	apperrors "sudooom.im.werewolf/pkg/errors"
	"sudooom.im.werewolf/pkg/proto"
)

// requestTimeout 单条上行请求等待房间处理的上限
const requestTimeout = 5 * time.Second

// WSHandler 实时通道
type WSHandler struct {
	service  *game.GameService
	conns    *connection.Manager
	opts     connection.Options
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler 创建实时通道处理器，allowedOrigins 含 "*" 时不校验来源
func NewWSHandler(service *game.GameService, conns *connection.Manager, opts connection.Options, allowedOrigins []string) *WSHandler {
	h := &WSHandler{
		service: service,
		conns:   conns,
		opts:    opts,
		logger:  slog.Default().With("component", "WSHandler"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

// Serve 升级为 websocket 并处理该连接直到断开
// GET /ws
func (h *WSHandler) Serve(c *gin.Context) {
	socket, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WS upgrade failed", "ip", c.ClientIP(), "error", err)
		return
	}

	conn := connection.New(socket, middleware.GetUserID(c), middleware.GetDeviceID(c), h.opts)
	if err := h.conns.Add(conn); err != nil {
		conn.SendJSON(errorEnvelope("", "", apperrors.ErrTooManyRequests.Wrap(err)))
		conn.Close()
		return
	}

	s := &wsSession{
		handler: h,
		conn:    conn,
		rooms:   make(map[string]*joinedRoom),
		logger:  h.logger.With("connId", conn.ID(), "userId", conn.UserID()),
	}
	s.logger.Info("Connection established")
	s.readLoop()
}

type joinedRoom struct {
	room *game.Room
	sub  *broadcast.Subscription
}

// wsSession 一个连接的会话状态，rooms 只在读循环中访问
type wsSession struct {
	handler *WSHandler
	conn    *connection.Connection
	rooms   map[string]*joinedRoom
	logger  *slog.Logger
}

func (s *wsSession) readLoop() {
	defer s.close()

	for {
		data, err := s.conn.Read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("Connection read failed", "error", err)
			}
			return
		}

		var req proto.Request
		if err := json.Unmarshal(data, &req); err != nil {
			s.reply(errorEnvelope("", "", apperrors.ErrInvalidParams.WithDetail("malformed frame")))
			continue
		}
		if !s.conn.Allow() {
			s.reply(errorEnvelope(req.RoomCode, req.RequestID, apperrors.ErrTooManyRequests))
			continue
		}
		s.handle(req)
	}
}

func (s *wsSession) handle(req proto.Request) {
	if req.Type == proto.TypePing {
		env := proto.NewEnvelope(proto.EventPong, "", nil)
		env.RequestID = req.RequestID
		s.reply(env)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var err error
	switch req.Type {
	case proto.TypeJoinRoom:
		err = s.join(ctx, req.RoomCode)
	case proto.TypeLeaveRoom:
		err = s.leave(ctx, req.RoomCode)
	default:
		err = s.handler.service.Dispatch(ctx, s.conn.UserID(), req)
	}

	if err != nil {
		s.logger.Debug("Request rejected", "type", req.Type, "roomCode", req.RoomCode, "error", err)
		s.reply(errorEnvelope(req.RoomCode, req.RequestID, err))
		return
	}
	ack := proto.NewEnvelope(proto.EventAck, req.RoomCode, nil)
	ack.RequestID = req.RequestID
	s.reply(ack)
}

// join 订阅房间；快照由房间投递到订阅通道，作为该订阅的第一条消息
func (s *wsSession) join(ctx context.Context, code string) error {
	code = strings.ToUpper(code)
	if old, ok := s.rooms[code]; ok {
		delete(s.rooms, code)
		old.room.Leave(ctx, old.sub)
	}

	room, sess, err := s.handler.service.Join(ctx, code, s.conn.UserID())
	if err != nil {
		return err
	}
	s.rooms[room.Code()] = &joinedRoom{room: room, sub: sess.Sub}
	go s.forward(room.Code(), sess.Sub)
	return nil
}

func (s *wsSession) leave(ctx context.Context, code string) error {
	code = strings.ToUpper(code)
	j, ok := s.rooms[code]
	if !ok {
		return apperrors.ErrRoomNotFound.WithDetail("not joined to room %s", code)
	}
	delete(s.rooms, code)
	return j.room.Leave(ctx, j.sub)
}

// forward 把订阅事件写到连接，订阅关闭时结束
func (s *wsSession) forward(code string, sub *broadcast.Subscription) {
	for env := range sub.C() {
		if err := s.conn.SendJSON(env); err != nil {
			return
		}
	}
	if errors.Is(sub.Reason(), broadcast.ErrSlowSubscriber) {
		s.logger.Warn("Subscriber dropped, client must rejoin", "roomCode", code)
		s.conn.SendJSON(errorEnvelope(code, "", apperrors.ErrConnectionLost.WithDetail("event stream dropped, rejoin to resync")))
	}
}

func (s *wsSession) reply(env proto.Envelope) {
	if err := s.conn.SendJSON(env); err != nil && !errors.Is(err, connection.ErrConnectionClosed) {
		s.logger.Warn("Failed to send reply", "event", env.Event, "error", err)
	}
}

// close 离开所有房间并释放连接；座位上的玩家由此进入断线宽限期
func (s *wsSession) close() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	for code, j := range s.rooms {
		if err := j.room.Leave(ctx, j.sub); err != nil && !apperrors.Is(err, apperrors.ErrRoomTerminated) {
			s.logger.Warn("Failed to leave room", "roomCode", code, "error", err)
		}
	}
	s.rooms = nil
	s.handler.conns.Remove(s.conn.ID())
	s.conn.Close()
	s.logger.Info("Connection closed")
}

func errorEnvelope(roomCode, requestID string, err error) proto.Envelope {
	env := proto.NewEnvelope(proto.EventError, roomCode, game.ErrorPayload(err))
	env.RequestID = requestID
	return env
}
