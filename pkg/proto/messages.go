package proto

import "time"

// ============== 上行消息 (Client -> Engine) ==============

// 上行消息类型
const (
	TypeJoinRoom     = "join-room"
	TypeLeaveRoom    = "leave-room"
	TypeGameAction   = "game-action"
	TypePlayerSpeech = "player-speech"
	TypePauseGame    = "pause-game"
	TypeResumeGame   = "resume-game"
	TypePing         = "ping"
)

// Request 上行请求
type Request struct {
	Type      string         `json:"type"`
	RoomCode  string         `json:"roomCode"`
	RequestID string         `json:"requestId,omitempty"`
	Action    *ActionPayload `json:"action,omitempty"`
	Content   string         `json:"content,omitempty"`
}

// UpstreamRequest 其他接入节点经 NATS 转发的请求，身份已在接入层校验
type UpstreamRequest struct {
	AccessNodeID string  `json:"accessNodeId"`
	UserID       string  `json:"userId"`
	Request      Request `json:"request"`
}

// ActionPayload 游戏动作
type ActionPayload struct {
	Type   string `json:"type"`
	Target int    `json:"target,omitempty"`
}

// ============== 下行消息 (Engine -> Client) ==============

// 下行事件名
const (
	EventGameStarted        = "game-started"
	EventRoleAssigned       = "role-assigned"
	EventStateUpdated       = "game-state-updated"
	EventSpeechStart        = "speech-start"
	EventSpeechChunk        = "speech-chunk"
	EventSpeechEnd          = "speech-end"
	EventAIAction           = "ai-action"
	EventPlayerDisconnected = "player-disconnected"
	EventPlayerReconnected  = "player-reconnected"
	EventPlayerReplaced     = "player-replaced-by-ai"
	EventGamePaused         = "game-paused"
	EventGameResumed        = "game-resumed"
	EventGameCompleted      = "game-completed"
	EventSnapshot           = "snapshot"
	EventPrivateResult      = "private-result"
	EventError              = "error"
	EventAck                = "ack"
	EventPong               = "pong"
)

// Envelope 下行消息封装，Seq 为房间内提交顺序
type Envelope struct {
	Event     string `json:"event"`
	RoomCode  string `json:"roomCode,omitempty"`
	Seq       int64  `json:"seq,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// RoomEvent 发布到 NATS 的房间事件，Audience 为空表示公开
// 接入节点按 Audience 过滤后推送给对应座位的连接
type RoomEvent struct {
	NodeID   string   `json:"nodeId"`
	Audience []int    `json:"audience,omitempty"`
	Envelope Envelope `json:"envelope"`
}

// NewEnvelope 创建下行消息
func NewEnvelope(event, roomCode string, data any) Envelope {
	return Envelope{
		Event:     event,
		RoomCode:  roomCode,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// SeatInfo 座位信息，Role 仅在私有视图或结算时填写
type SeatInfo struct {
	Seat    int    `json:"seat"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Alive   bool   `json:"alive"`
	Role    string `json:"role,omitempty"`
	Persona string `json:"persona,omitempty"`
}

// TurnInfo 当前回合
type TurnInfo struct {
	Phase   string `json:"phase"`
	Day     int    `json:"day"`
	Step    int    `json:"step"`
	Mode    string `json:"mode,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Current int    `json:"current,omitempty"`
	Pending []int  `json:"pending,omitempty"`
}

// DeathInfo 死亡信息
type DeathInfo struct {
	Seat  int    `json:"seat"`
	Cause string `json:"cause"`
	Role  string `json:"role,omitempty"`
}

// Delta 状态增量
type Delta struct {
	Kind    string         `json:"kind"`
	Seat    int            `json:"seat,omitempty"`
	Action  *ActionPayload `json:"action,omitempty"`
	Phase   string         `json:"phase,omitempty"`
	Deaths  []DeathInfo    `json:"deaths,omitempty"`
	Message string         `json:"message,omitempty"`
}

// GameStarted 游戏开始
type GameStarted struct {
	Ruleset string     `json:"ruleset"`
	Phase   string     `json:"phase"`
	Day     int        `json:"day"`
	Seats   []SeatInfo `json:"seats"`
}

// RoleAssigned 私有身份通知
type RoleAssigned struct {
	Seat      int    `json:"seat"`
	Role      string `json:"role"`
	Teammates []int  `json:"teammates,omitempty"`
}

// StateUpdated 状态更新
type StateUpdated struct {
	TurnNumber  int64    `json:"turnNumber"`
	CurrentTurn TurnInfo `json:"currentTurn"`
	Delta       Delta    `json:"delta"`
}

// SpeechStart 发言开始
type SpeechStart struct {
	Seat    int   `json:"seat"`
	EntryID int64 `json:"entryId"`
}

// SpeechChunk 发言片段，Accumulated 为截至当前的全部文本
type SpeechChunk struct {
	Seat        int    `json:"seat"`
	EntryID     int64  `json:"entryId"`
	Chunk       string `json:"chunk"`
	Accumulated string `json:"accumulated"`
}

// SpeechEnd 发言结束
type SpeechEnd struct {
	Seat    int    `json:"seat"`
	EntryID int64  `json:"entryId"`
	Content string `json:"content"`
}

// AIAction AI 动作
type AIAction struct {
	Seat      int           `json:"seat"`
	Action    ActionPayload `json:"action"`
	Reasoning string        `json:"reasoning,omitempty"`
}

// PresenceChanged 在线状态变化
type PresenceChanged struct {
	Seat             int    `json:"seat"`
	Name             string `json:"name,omitempty"`
	GraceRemainingMs int64  `json:"graceRemainingMs,omitempty"`
}

// PauseChanged 暂停/恢复
type PauseChanged struct {
	Phase           string `json:"phase"`
	ResumePhase     string `json:"resumePhase,omitempty"`
	TurnRemainingMs int64  `json:"turnRemainingMs,omitempty"`
}

// PrivateResult 私有结果 (如预言家查验)
type PrivateResult struct {
	Seat    int    `json:"seat"`
	Kind    string `json:"kind"`
	Target  int    `json:"target,omitempty"`
	Content string `json:"content"`
}

// GameResult 结算结果
type GameResult struct {
	Winner    string `json:"winner"`
	Reason    string `json:"reason"`
	Survivors []int  `json:"survivors"`
}

// GameCompleted 游戏结束
type GameCompleted struct {
	Result     GameResult `json:"result"`
	FinalState []SeatInfo `json:"finalState"`
	Day        int        `json:"day"`
}

// LogItem 日志条目的对外形式
type LogItem struct {
	ID         int64             `json:"id"`
	Seq        int64             `json:"seq"`
	Type       string            `json:"type"`
	Seat       int               `json:"seat,omitempty"`
	Day        int               `json:"day"`
	Phase      string            `json:"phase"`
	Content    string            `json:"content"`
	Closed     bool              `json:"closed"`
	Visibility string            `json:"visibility"`
	Markers    map[string]string `json:"markers,omitempty"`
	CreatedAt  int64             `json:"createdAt"`
}

// Snapshot 重连回放，只读视图
type Snapshot struct {
	RoomCode    string     `json:"roomCode"`
	Phase       string     `json:"phase"`
	ResumePhase string     `json:"resumePhase,omitempty"`
	Day         int        `json:"day"`
	TurnNumber  int64      `json:"turnNumber"`
	Version     int64      `json:"version"`
	Turn        TurnInfo   `json:"turn"`
	Seats       []SeatInfo `json:"seats"`
	OwnSeat     int        `json:"ownSeat,omitempty"`
	OwnRole     string     `json:"ownRole,omitempty"`
	RecentLog   []LogItem  `json:"recentLog"`
	Winner      string     `json:"winner,omitempty"`
	TakenAt     int64      `json:"takenAt"`
}

// ErrorPayload 错误通知，只发给提交者
type ErrorPayload struct {
	Code     int    `json:"code"`
	Category string `json:"category"`
	Message  string `json:"message"`
	Details  string `json:"details,omitempty"`
}
