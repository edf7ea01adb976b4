package service

import "github.com/google/uuid"

// 实时事件名
const (
	EventSosCreated          = "sos.created"
	EventSosClosed           = "sos.closed"
	EventSosRecipientUpdated = "sos.recipient_updated"
)

// SosNotifier 实时推送接口（由 websocket Hub 实现，进程内注入而非全局单例）。
// 尽力而为：推送失败由实现方吞掉，绝不反灌业务操作。
type SosNotifier interface {
	SendToUser(userID uuid.UUID, event string, data interface{})
	SendToUsers(userIDs []uuid.UUID, event string, data interface{})
}
