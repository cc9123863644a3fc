package proto

// NATS Subject 常量定义
const (
	// SubjectEngineUpstream 接入节点 -> 引擎 上行请求
	SubjectEngineUpstream = "werewolf.engine.upstream"

	// SubjectRoomEventsPrefix 房间事件前缀
	// 完整格式: werewolf.room.{code}.events
	SubjectRoomEventsPrefix = "werewolf.room."
	SubjectRoomEventsSuffix = ".events"

	// QueueGroupEngine 引擎队列组名称
	QueueGroupEngine = "werewolf-engine"
)

// BuildRoomEventsSubject 构建房间事件 Subject
func BuildRoomEventsSubject(roomCode string) string {
	return SubjectRoomEventsPrefix + roomCode + SubjectRoomEventsSuffix
}
