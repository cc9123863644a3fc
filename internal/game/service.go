package game

import (
	"context"
	"log/slog"

	"sudooom.im.werewolf/internal/game/core"
	"sudooom.im.werewolf/internal/store"
	apperrors "sudooom.im.werewolf/pkg/errors"
	"sudooom.im.werewolf/pkg/proto"
)

// SeatSpec 开局时的座位
type SeatSpec struct {
	Seat    int    `json:"seat" binding:"required,min=1"`
	Name    string `json:"name" binding:"required"`
	UserID  string `json:"userId,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Persona string `json:"persona,omitempty"`
}

// StartRequest 开局参数
type StartRequest struct {
	Seats []SeatSpec `json:"seats" binding:"required,min=1,dive"`
	Seed  uint64     `json:"seed,omitempty"`
}

// GameService 游戏服务，接入层 (websocket、HTTP、NATS) 的统一入口
type GameService struct {
	manager *GameManager
	store   store.LogStore
	logger  *slog.Logger
}

// NewGameService 创建游戏服务，logStore 可为 nil
func NewGameService(manager *GameManager, logStore store.LogStore) *GameService {
	return &GameService{
		manager: manager,
		store:   logStore,
		logger:  slog.Default().With("component", "GameService"),
	}
}

// Manager 房间管理器
func (s *GameService) Manager() *GameManager { return s.manager }

// CreateRoom 创建房间
func (s *GameService) CreateRoom(ctx context.Context, code, ruleset string) (*Room, error) {
	return s.manager.Create(ctx, code, ruleset)
}

// StartGame 开局
func (s *GameService) StartGame(ctx context.Context, code string, req StartRequest) error {
	room, err := s.manager.Get(code)
	if err != nil {
		return err
	}
	participants := make([]core.Participant, 0, len(req.Seats))
	for _, seat := range req.Seats {
		kind := core.Kind(seat.Kind)
		switch kind {
		case "":
			kind = core.KindHuman
		case core.KindHuman, core.KindAI:
		default:
			return apperrors.ErrInvalidParams.WithDetail("unknown seat kind %q", seat.Kind)
		}
		participants = append(participants, core.Participant{
			Seat:    seat.Seat,
			Name:    seat.Name,
			UserID:  seat.UserID,
			Kind:    kind,
			Persona: seat.Persona,
		})
	}
	seed := req.Seed
	if seed == 0 {
		seed = uint64(room.now().UnixNano())
	}
	s.logger.Info("Starting game", "roomCode", room.Code(), "playerCount", len(participants))
	return room.Start(ctx, participants, seed)
}

// Join 加入房间并订阅事件
func (s *GameService) Join(ctx context.Context, code, userID string) (*Room, *Session, error) {
	room, err := s.manager.Get(code)
	if err != nil {
		return nil, nil, err
	}
	sess, err := room.Join(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("User joined room", "roomCode", room.Code(), "userId", userID, "seat", sess.Seat)
	return room, sess, nil
}

// JoinRemote 其他接入节点上的用户加入或重连，返回该用户视角的快照
func (s *GameService) JoinRemote(ctx context.Context, code, userID, accessNodeID string) (proto.Snapshot, error) {
	room, err := s.manager.Get(code)
	if err != nil {
		return proto.Snapshot{}, err
	}
	snap, err := room.JoinRemote(ctx, userID)
	if err != nil {
		return proto.Snapshot{}, err
	}
	s.logger.Info("Remote user joined room", "roomCode", room.Code(), "userId", userID, "accessNodeId", accessNodeID, "seat", snap.OwnSeat)
	return snap, nil
}

// LeaveRemote 其他接入节点上的用户离开或断线
func (s *GameService) LeaveRemote(ctx context.Context, code, userID string) error {
	room, err := s.manager.Get(code)
	if err != nil {
		return err
	}
	return room.LeaveRemote(ctx, userID)
}

// Dispatch 处理不涉及订阅的上行请求：动作、发言、暂停、恢复
// 座位由用户身份解析，websocket、HTTP 控制面与 NATS 上行共用
func (s *GameService) Dispatch(ctx context.Context, userID string, req proto.Request) error {
	room, err := s.manager.Get(req.RoomCode)
	if err != nil {
		return err
	}
	seat := room.SeatOf(userID)

	switch req.Type {
	case proto.TypeGameAction:
		if req.Action == nil {
			return apperrors.ErrInvalidParams.WithDetail("action is required")
		}
		return room.SubmitAction(ctx, seat, *req.Action)
	case proto.TypePlayerSpeech:
		return room.SubmitSpeech(ctx, seat, req.Content)
	case proto.TypePauseGame:
		if seat == 0 {
			return apperrors.ErrNotSeated
		}
		return room.Pause(ctx)
	case proto.TypeResumeGame:
		if seat == 0 {
			return apperrors.ErrNotSeated
		}
		return room.Resume(ctx)
	default:
		return apperrors.ErrInvalidParams.WithDetail("unsupported request type %q", req.Type)
	}
}

// Stop 强制结束并移除房间
func (s *GameService) Stop(ctx context.Context, code, reason string) error {
	room, err := s.manager.Get(code)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = "stopped by operator"
	}
	err = room.Stop(ctx, reason)
	s.manager.Remove(room.Code())
	return err
}

// Snapshot 用户视角的快照，房间不在内存时读取缓存的公开快照
func (s *GameService) Snapshot(ctx context.Context, code, userID string) (proto.Snapshot, error) {
	room, err := s.manager.Get(code)
	if err == nil {
		return room.Snapshot(room.SeatOf(userID)), nil
	}
	if cache := s.manager.deps.Cache; cache != nil {
		snap, cerr := cache.LoadSnapshot(ctx, code)
		if cerr != nil {
			s.logger.Warn("Failed to load cached snapshot", "roomCode", code, "error", cerr)
		} else if snap != nil {
			return *snap, nil
		}
	}
	return proto.Snapshot{}, err
}

// Log 日志查询，房间已移除时从存储读取
func (s *GameService) Log(ctx context.Context, code string, detail core.Detail) ([]proto.LogItem, error) {
	room, err := s.manager.Get(code)
	if err == nil {
		return room.Log(detail), nil
	}
	if s.store == nil {
		return nil, err
	}
	entries, serr := s.store.List(ctx, code)
	if serr != nil {
		return nil, apperrors.ErrDBError.Wrap(serr)
	}
	if len(entries) == 0 {
		return nil, err
	}
	return core.FilterLog(entries, detail, true), nil
}
