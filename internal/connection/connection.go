package connection

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrTooManyConns     = errors.New("too many connections")
)

const writeWait = 10 * time.Second

// Options 单连接参数
type Options struct {
	WriteBuffer       int     // 写队列长度
	MessagesPerSecond float64 // 上行消息速率
	MessageBurst      int
}

func (o Options) withDefaults() Options {
	if o.WriteBuffer <= 0 {
		o.WriteBuffer = 256
	}
	if o.MessagesPerSecond <= 0 {
		o.MessagesPerSecond = 10
	}
	if o.MessageBurst <= 0 {
		o.MessageBurst = 20
	}
	return o
}

// Connection 表示一个客户端 websocket 连接
type Connection struct {
	id         string
	userID     string
	deviceID   string
	socket     *websocket.Conn
	limiter    *rate.Limiter
	logger     *slog.Logger
	writeChan  chan []byte
	closeChan  chan struct{}
	closeOnce  sync.Once
	createTime time.Time
	lastActive atomic.Int64
}

// New 包装已升级的 websocket 连接并启动写循环
func New(socket *websocket.Conn, userID, deviceID string, opts Options) *Connection {
	opts = opts.withDefaults()
	id := uuid.NewString()
	c := &Connection{
		id:         id,
		userID:     userID,
		deviceID:   deviceID,
		socket:     socket,
		limiter:    rate.NewLimiter(rate.Limit(opts.MessagesPerSecond), opts.MessageBurst),
		logger:     slog.Default().With("component", "Connection", "connId", id, "userId", userID),
		writeChan:  make(chan []byte, opts.WriteBuffer),
		closeChan:  make(chan struct{}),
		createTime: time.Now(),
	}
	c.touch()
	socket.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})
	go c.writeLoop()
	return c
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) UserID() string { return c.userID }

func (c *Connection) DeviceID() string { return c.deviceID }

func (c *Connection) CreateTime() time.Time { return c.createTime }

// LastActiveTime 最近一次收到消息或 pong 的时间
func (c *Connection) LastActiveTime() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

func (c *Connection) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// Done 连接关闭后关闭
func (c *Connection) Done() <-chan struct{} { return c.closeChan }

// Allow 上行消息限流
func (c *Connection) Allow() bool {
	return c.limiter.Allow()
}

// Send 排入写队列，连接关闭后返回 ErrConnectionClosed
func (c *Connection) Send(data []byte) error {
	select {
	case c.writeChan <- data:
		return nil
	case <-c.closeChan:
		return ErrConnectionClosed
	}
}

// SendJSON 编码后发送
func (c *Connection) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// Read 读取一条消息，只由读循环调用
func (c *Connection) Read() ([]byte, error) {
	_, data, err := c.socket.ReadMessage()
	if err != nil {
		return nil, err
	}
	c.touch()
	return data, nil
}

// Ping 发送 websocket ping
func (c *Connection) Ping() error {
	return c.socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeChan:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("Failed to write message", "error", err)
				c.Close()
				return
			}
		case <-c.closeChan:
			return
		}
	}
}

// Close 关闭连接，可重复调用
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		deadline := time.Now().Add(time.Second)
		c.socket.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.socket.Close()
	})
}
