package broadcast

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"sudooom.im.werewolf/pkg/proto"
)

// DefaultBuffer 每个订阅者的缓冲事件数
const DefaultBuffer = 256

// Sink 跨节点转发，例如 NATS
type Sink interface {
	PublishRoomEvent(ctx context.Context, env proto.Envelope, audience []int) error
}

// Subscription 一个座位（或旁观者）的事件订阅
type Subscription struct {
	id     int64
	seat   int
	ch     chan proto.Envelope
	closed bool
	reason error
}

// Seat 订阅者座位，0 为旁观者
func (s *Subscription) Seat() int { return s.seat }

// C 事件通道，订阅被移除后关闭
func (s *Subscription) C() <-chan proto.Envelope { return s.ch }

// Reason 通道关闭原因；主动退订为 nil
func (s *Subscription) Reason() error { return s.reason }

// Hub 房间事件分发器
// 单个房间内的事件按 Publish 调用顺序编号，所有订阅者看到的顺序一致
type Hub struct {
	mu       sync.Mutex
	roomCode string
	seq      int64
	nextID   int64
	subs     map[int64]*Subscription
	buffer   int
	sink     Sink
	now      func() time.Time
	logger   *slog.Logger
}

// NewHub 创建分发器，sink 可为 nil
func NewHub(roomCode string, buffer int, sink Sink) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		roomCode: roomCode,
		subs:     make(map[int64]*Subscription),
		buffer:   buffer,
		sink:     sink,
		now:      time.Now,
		logger:   slog.Default().With("component", "Broadcast", "roomCode", roomCode),
	}
}

// Subscribe 订阅房间事件；同一座位的旧订阅会被替换
func (h *Hub) Subscribe(seat int) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	if seat > 0 {
		for _, old := range h.subs {
			if old.seat == seat {
				h.removeLocked(old, ErrReplaced)
			}
		}
	}
	h.nextID++
	sub := &Subscription{
		id:   h.nextID,
		seat: seat,
		ch:   make(chan proto.Envelope, h.buffer),
	}
	h.subs[sub.id] = sub
	h.logger.Debug("subscribed", "seat", seat, "subscribers", len(h.subs))
	return sub
}

// Assign 开局后把旁观订阅绑定到座位
func (h *Hub) Assign(sub *Subscription, seat int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.closed || sub.seat == seat {
		return
	}
	for _, old := range h.subs {
		if old != sub && old.seat == seat && seat > 0 {
			h.removeLocked(old, ErrReplaced)
		}
	}
	sub.seat = seat
}

// Unsubscribe 退订，可重复调用
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub, nil)
}

func (h *Hub) removeLocked(sub *Subscription, reason error) {
	if sub == nil || sub.closed {
		return
	}
	sub.closed = true
	sub.reason = reason
	close(sub.ch)
	delete(h.subs, sub.id)
}

// Publish 编号并分发事件；audience 为空表示公开
// 缓冲区已满的订阅者被移除而不是阻塞房间，客户端重连后通过快照恢复
func (h *Hub) Publish(ctx context.Context, event string, data any, audience []int) proto.Envelope {
	h.mu.Lock()
	h.seq++
	env := proto.Envelope{
		Event:     event,
		RoomCode:  h.roomCode,
		Seq:       h.seq,
		Data:      data,
		Timestamp: h.now().UnixMilli(),
	}
	for _, sub := range h.subs {
		if len(audience) > 0 && !slices.Contains(audience, sub.seat) {
			continue
		}
		h.deliverLocked(sub, env)
	}
	h.mu.Unlock()

	if h.sink != nil {
		if err := h.sink.PublishRoomEvent(ctx, env, audience); err != nil {
			h.logger.Warn("Failed to forward room event", "event", event, "seq", env.Seq, "error", err)
		}
	}
	return env
}

// SendTo 只发给某个座位的当前订阅，不占用房间序号
func (h *Hub) SendTo(seat int, env proto.Envelope) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if env.RoomCode == "" {
		env.RoomCode = h.roomCode
	}
	if env.Timestamp == 0 {
		env.Timestamp = h.now().UnixMilli()
	}
	sent := false
	for _, sub := range h.subs {
		if sub.seat == seat {
			sent = h.deliverLocked(sub, env) || sent
		}
	}
	return sent
}

// Deliver 只发给指定订阅，用于重连快照
func (h *Hub) Deliver(sub *Subscription, env proto.Envelope) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.closed {
		return false
	}
	if env.RoomCode == "" {
		env.RoomCode = h.roomCode
	}
	if env.Timestamp == 0 {
		env.Timestamp = h.now().UnixMilli()
	}
	return h.deliverLocked(sub, env)
}

func (h *Hub) deliverLocked(sub *Subscription, env proto.Envelope) bool {
	select {
	case sub.ch <- env:
		return true
	default:
		h.logger.Warn("Subscriber too slow, dropping", "seat", sub.seat, "seq", env.Seq)
		h.removeLocked(sub, ErrSlowSubscriber)
		return false
	}
}

// Seq 已发布的最大序号
func (h *Hub) Seq() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

// Count 当前订阅数
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close 关闭全部订阅
func (h *Hub) Close(reason error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		h.removeLocked(sub, reason)
	}
}
