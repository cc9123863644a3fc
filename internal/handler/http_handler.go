package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"sudooom.im.werewolf/internal/game"
	"sudooom.im.werewolf/internal/game/core"
	"sudooom.im.werewolf/internal/middleware"
	apperrors "sudooom.im.werewolf/pkg/errors"
	"sudooom.im.werewolf/pkg/proto"
	"sudooom.im.werewolf/pkg/response"
)

// CreateRoomRequest 创建房间
type CreateRoomRequest struct {
	Code    string `json:"code" binding:"omitempty,max=16,alphanum"`
	Ruleset string `json:"ruleset"`
}

// CreateRoomResponse 创建房间结果
type CreateRoomResponse struct {
	Code    string `json:"code"`
	Ruleset string `json:"ruleset"`
}

// SpeechRequest 控制面发言，座位由当前用户身份决定
type SpeechRequest struct {
	Content string `json:"content" binding:"required"`
}

// ActionRequest 控制面动作，座位由当前用户身份决定
type ActionRequest struct {
	Type   string `json:"type" binding:"required"`
	Target int    `json:"target"`
}

// StopRequest 强制结束
type StopRequest struct {
	Reason string `json:"reason"`
}

// RoomHandler HTTP 控制面，在实时通道不可用时使用
type RoomHandler struct {
	service *game.GameService
	logger  *slog.Logger
}

// NewRoomHandler 创建控制面处理器
func NewRoomHandler(service *game.GameService) *RoomHandler {
	return &RoomHandler{
		service: service,
		logger:  slog.Default().With("component", "RoomHandler"),
	}
}

// Create 创建房间
// POST /api/v1/rooms
func (h *RoomHandler) Create(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidParams(c, err)
		return
	}

	room, err := h.service.CreateRoom(c.Request.Context(), req.Code, req.Ruleset)
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}

	h.logger.Info("Room created via HTTP", "roomCode", room.Code(), "userId", middleware.GetUserID(c))
	response.Success(c, CreateRoomResponse{Code: room.Code(), Ruleset: room.Ruleset()})
}

// Start 开局
// POST /api/v1/rooms/:code/start
func (h *RoomHandler) Start(c *gin.Context) {
	var req game.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidParams(c, err)
		return
	}

	if err := h.service.StartGame(c.Request.Context(), c.Param("code"), req); err != nil {
		response.ErrorFromAppError(c, err)
		return
	}
	response.Success(c, nil)
}

// Pause 暂停，仅限房间内的座位
// POST /api/v1/rooms/:code/pause
func (h *RoomHandler) Pause(c *gin.Context) {
	h.dispatch(c, proto.Request{Type: proto.TypePauseGame})
}

// Resume 恢复，仅限房间内的座位
// POST /api/v1/rooms/:code/resume
func (h *RoomHandler) Resume(c *gin.Context) {
	h.dispatch(c, proto.Request{Type: proto.TypeResumeGame})
}

// Speech 当前用户所在座位发言
// POST /api/v1/rooms/:code/speech
func (h *RoomHandler) Speech(c *gin.Context) {
	var req SpeechRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidParams(c, err)
		return
	}
	h.dispatch(c, proto.Request{Type: proto.TypePlayerSpeech, Content: req.Content})
}

// Action 当前用户所在座位提交动作
// POST /api/v1/rooms/:code/actions
func (h *RoomHandler) Action(c *gin.Context) {
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidParams(c, err)
		return
	}
	h.dispatch(c, proto.Request{
		Type:   proto.TypeGameAction,
		Action: &proto.ActionPayload{Type: req.Type, Target: req.Target},
	})
}

// dispatch 与实时通道相同的处理路径
func (h *RoomHandler) dispatch(c *gin.Context, req proto.Request) {
	req.RoomCode = c.Param("code")
	if err := h.service.Dispatch(c.Request.Context(), middleware.GetUserID(c), req); err != nil {
		response.ErrorFromAppError(c, err)
		return
	}
	response.Success(c, nil)
}

// Stop 强制结束并移除房间
// POST /api/v1/rooms/:code/stop
func (h *RoomHandler) Stop(c *gin.Context) {
	var req StopRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.InvalidParams(c, err)
			return
		}
	}

	if err := h.service.Stop(c.Request.Context(), c.Param("code"), req.Reason); err != nil {
		response.ErrorFromAppError(c, err)
		return
	}
	response.Success(c, nil)
}

// Log 日志
// GET /api/v1/rooms/:code/log?detail=basic|detailed
func (h *RoomHandler) Log(c *gin.Context) {
	detail := c.DefaultQuery("detail", string(core.DetailBasic))
	if detail != string(core.DetailBasic) && detail != string(core.DetailDetailed) {
		response.ErrorFromAppError(c, apperrors.ErrInvalidParams.WithDetail("detail must be basic or detailed"))
		return
	}

	items, err := h.service.Log(c.Request.Context(), c.Param("code"), core.ParseDetail(detail))
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}
	if items == nil {
		items = []proto.LogItem{}
	}
	response.Success(c, items)
}

// Snapshot 当前用户视角的快照
// GET /api/v1/rooms/:code/snapshot
func (h *RoomHandler) Snapshot(c *gin.Context) {
	snap, err := h.service.Snapshot(c.Request.Context(), c.Param("code"), middleware.GetUserID(c))
	if err != nil {
		response.ErrorFromAppError(c, err)
		return
	}
	response.Success(c, snap)
}
