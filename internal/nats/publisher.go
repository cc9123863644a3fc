package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"sudooom.im.werewolf/pkg/proto"
)

// Conn 发布所需的连接能力，*nats.Conn 满足该接口
type Conn interface {
	Publish(subject string, data []byte) error
}

// EventPublisher 把房间事件转发到 NATS，供其他接入节点推送
type EventPublisher struct {
	nc     Conn
	nodeID string
	logger *slog.Logger
}

// NewEventPublisher 创建事件发布器
func NewEventPublisher(nc Conn, nodeID string) *EventPublisher {
	return &EventPublisher{
		nc:     nc,
		nodeID: nodeID,
		logger: slog.Default().With("component", "EventPublisher"),
	}
}

// PublishRoomEvent 发布到 werewolf.room.{code}.events
func (p *EventPublisher) PublishRoomEvent(ctx context.Context, env proto.Envelope, audience []int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := proto.BuildRoomEventsSubject(env.RoomCode)
	data, err := json.Marshal(proto.RoomEvent{
		NodeID:   p.nodeID,
		Audience: audience,
		Envelope: env,
	})
	if err != nil {
		p.logger.Error("Failed to marshal room event", "roomCode", env.RoomCode, "error", err)
		return err
	}

	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Error("Failed to publish room event", "roomCode", env.RoomCode, "event", env.Event, "error", err)
		return err
	}

	p.logger.Debug("Published room event", "subject", subject, "event", env.Event, "seq", env.Seq)
	return nil
}
