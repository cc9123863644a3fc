package broadcast

import "errors"

var (
	// ErrReplaced 同一座位建立了新的订阅
	ErrReplaced = errors.New("subscription replaced by a newer connection")

	// ErrSlowSubscriber 订阅者消费过慢
	ErrSlowSubscriber = errors.New("subscriber buffer overflow")
)
