package nats

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"sudooom.im.werewolf/pkg/proto"
)

// UpstreamHandler 处理其他接入节点转发的请求，返回值作为回复
type UpstreamHandler interface {
	HandleUpstream(ctx context.Context, req *proto.UpstreamRequest) proto.Envelope
}

// SubscriberConfig Worker Pool 配置
type SubscriberConfig struct {
	WorkerCount int // Worker 数量
	BufferSize  int // 消息缓冲区大小
}

// UpstreamSubscriber 上行请求订阅器
// 同一房间的请求最终进入房间的顺序执行协程，worker 之间无需保持顺序
type UpstreamSubscriber struct {
	nc           *nats.Conn
	handler      UpstreamHandler
	logger       *slog.Logger
	subscription *nats.Subscription
	config       SubscriberConfig
	msgChan      chan *nats.Msg
	wg           sync.WaitGroup
	cancelFunc   context.CancelFunc
}

// NewUpstreamSubscriber 创建上行订阅器
func NewUpstreamSubscriber(nc *nats.Conn, handler UpstreamHandler, config SubscriberConfig) *UpstreamSubscriber {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 32
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 4096
	}

	return &UpstreamSubscriber{
		nc:      nc,
		handler: handler,
		logger:  slog.Default().With("component", "UpstreamSubscriber"),
		config:  config,
	}
}

// Start 启动订阅
func (s *UpstreamSubscriber) Start(ctx context.Context) error {
	s.msgChan = make(chan *nats.Msg, s.config.BufferSize)

	workerCtx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	for i := 0; i < s.config.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(workerCtx)
	}

	// 使用队列组在多个引擎节点间负载均衡
	sub, err := s.nc.QueueSubscribe(proto.SubjectEngineUpstream, proto.QueueGroupEngine, func(msg *nats.Msg) {
		select {
		case s.msgChan <- msg:
		default:
			s.logger.Warn("Message buffer full, dropping message", "bufferSize", s.config.BufferSize)
		}
	})
	if err != nil {
		cancel()
		return err
	}

	s.subscription = sub
	s.logger.Info("NATS subscriber started",
		"subject", proto.SubjectEngineUpstream,
		"workerCount", s.config.WorkerCount,
		"bufferSize", s.config.BufferSize,
	)
	return nil
}

func (s *UpstreamSubscriber) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.msgChan:
			if !ok {
				return
			}
			reply := s.process(ctx, msg.Data)
			if msg.Reply == "" || reply == nil {
				continue
			}
			if err := msg.Respond(reply); err != nil {
				s.logger.Warn("Failed to respond", "error", err)
			}
		}
	}
}

// process 解码并处理一条上行请求，返回编码后的回复；无法解码时返回 nil
func (s *UpstreamSubscriber) process(ctx context.Context, data []byte) []byte {
	var req proto.UpstreamRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Error("Failed to unmarshal upstream request", "error", err)
		return nil
	}

	env := s.handler.HandleUpstream(ctx, &req)
	env.RequestID = req.Request.RequestID
	out, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("Failed to marshal reply", "error", err)
		return nil
	}
	return out
}

// Stop 停止订阅
func (s *UpstreamSubscriber) Stop() error {
	if s.subscription != nil {
		if err := s.subscription.Unsubscribe(); err != nil {
			s.logger.Error("Failed to unsubscribe", "error", err)
		}
	}

	if s.cancelFunc != nil {
		s.cancelFunc()
	}

	s.wg.Wait()

	s.logger.Info("NATS subscriber stopped")
	return nil
}
