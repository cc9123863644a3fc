package handler

import (
	"context"
	"log/slog"

	"sudooom.im.werewolf/internal/game"
	"sudooom.im.werewolf/pkg/proto"
)

// UpstreamHandler 处理其他接入节点经 NATS 转发的请求
// 远端用户的事件通过房间事件 subject 下发，这里不建立订阅；join-room/leave-room 只维护在线状态
type UpstreamHandler struct {
	service *game.GameService
	logger  *slog.Logger
}

// NewUpstreamHandler 创建上行处理器
func NewUpstreamHandler(service *game.GameService) *UpstreamHandler {
	return &UpstreamHandler{
		service: service,
		logger:  slog.Default().With("component", "UpstreamHandler"),
	}
}

// HandleUpstream 处理一条请求并生成回复
func (h *UpstreamHandler) HandleUpstream(ctx context.Context, up *proto.UpstreamRequest) proto.Envelope {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req := up.Request
	switch req.Type {
	case proto.TypePing:
		return proto.NewEnvelope(proto.EventPong, "", nil)
	case proto.TypeJoinRoom:
		snap, err := h.service.JoinRemote(ctx, req.RoomCode, up.UserID, up.AccessNodeID)
		if err != nil {
			return errorEnvelope(req.RoomCode, "", err)
		}
		return proto.NewEnvelope(proto.EventSnapshot, snap.RoomCode, snap)
	case proto.TypeLeaveRoom:
		if err := h.service.LeaveRemote(ctx, req.RoomCode, up.UserID); err != nil {
			return errorEnvelope(req.RoomCode, "", err)
		}
		return proto.NewEnvelope(proto.EventAck, req.RoomCode, nil)
	}

	if err := h.service.Dispatch(ctx, up.UserID, req); err != nil {
		h.logger.Debug("Upstream request rejected",
			"accessNodeId", up.AccessNodeID,
			"userId", up.UserID,
			"type", req.Type,
			"error", err)
		return errorEnvelope(req.RoomCode, "", err)
	}
	return proto.NewEnvelope(proto.EventAck, req.RoomCode, nil)
}
