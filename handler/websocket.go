package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"buddy_sos/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: 生产环境需要检查 Origin
		return true
	},
}

// Client WebSocket 客户端（一个设备一条连接）
type Client struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *Hub
	mu     sync.Mutex
	closed bool // Send channel 是否已关闭
}

// Hub 实时连接管理中心。进程内构造一次、注入给需要推送的服务，
// 不做全局单例。推送尽力而为：断开的接收人错过事件后靠轮询补。
type Hub struct {
	// 在线用户 map[userID]map[clientID]*Client（支持多设备）
	Clients map[uuid.UUID]map[uuid.UUID]*Client
	mu      sync.RWMutex

	// 每个用户的最大连接数
	MaxConnectionsPerUser int

	// Redis：跨 Pod 广播 + 在线状态 TTL key
	rdb *redis.Client

	// Pod ID（跨 Pod 广播去重）
	podID string

	stopPubSub chan struct{}
}

// Redis Pub/Sub channel 名称
const redisBroadcastChannel = "sos:broadcast"

// onlineKeyTTL 在线 key 有效期，由心跳续期
const onlineKeyTTL = 30 * time.Second

// BroadcastMessage 跨 Pod 广播消息格式
type BroadcastMessage struct {
	UserID  string `json:"user_id"`
	PodID   string `json:"pod_id"` // 发送方 Pod ID，用于去重
	Payload []byte `json:"payload"`
}

// NewHub 创建 Hub。rdb 可为 nil（单 Pod / 测试时只走本地推送）
func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		Clients:               make(map[uuid.UUID]map[uuid.UUID]*Client),
		MaxConnectionsPerUser: 8,
		rdb:                   rdb,
		podID:                 uuid.New().String(),
		stopPubSub:            make(chan struct{}),
	}
}

// Register 注册客户端（多设备，超限拒绝）
func (h *Hub) Register(client *Client) {
	h.mu.Lock()

	if h.Clients[client.UserID] == nil {
		h.Clients[client.UserID] = make(map[uuid.UUID]*Client)
	}

	if len(h.Clients[client.UserID]) >= h.MaxConnectionsPerUser {
		h.mu.Unlock() // 网络操作前先释放锁

		log.Printf("[ERROR] User %s exceeds max connections (%d), rejecting client %s",
			client.UserID, h.MaxConnectionsPerUser, client.ID)
		client.Conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many devices"))
		client.Conn.Close()
		return
	}

	h.Clients[client.UserID][client.ID] = client
	deviceCount := len(h.Clients[client.UserID])
	totalUsers := len(h.Clients)
	h.mu.Unlock()

	h.refreshOnlineKey(client.UserID)

	log.Printf("User %s connected (client: %s), devices: %d, total users: %d",
		client.UserID, client.ID, deviceCount, totalUsers)
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if userClients, exists := h.Clients[client.UserID]; exists {
		if _, found := userClients[client.ID]; found {
			delete(userClients, client.ID)
			if len(userClients) == 0 {
				delete(h.Clients, client.UserID)
				if h.rdb != nil {
					ctx := context.Background()
					h.rdb.Del(ctx, "online:"+client.UserID.String())
				}
			}
		}
	}
	h.mu.Unlock()

	// 安全关闭 Send channel
	client.mu.Lock()
	if !client.closed {
		close(client.Send)
		client.closed = true
	}
	client.mu.Unlock()
}

// IsOnline 用户是否至少有一个设备在线（本 Pod 视角）
func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	userClients, exists := h.Clients[userID]
	return exists && len(userClients) > 0
}

// SendToUser 推送事件给指定用户的所有设备（实现 service.SosNotifier）
func (h *Hub) SendToUser(userID uuid.UUID, event string, data interface{}) {
	payload, err := json.Marshal(map[string]interface{}{
		"event": event,
		"data":  data,
	})
	if err != nil {
		log.Printf("[ERROR] Failed to marshal event %s: %v", event, err)
		return
	}
	h.broadcast(userID, payload)
}

// SendToUsers 推送事件给一组用户
func (h *Hub) SendToUsers(userIDs []uuid.UUID, event string, data interface{}) {
	payload, err := json.Marshal(map[string]interface{}{
		"event": event,
		"data":  data,
	})
	if err != nil {
		log.Printf("[ERROR] Failed to marshal event %s: %v", event, err)
		return
	}
	for _, uid := range userIDs {
		h.broadcast(uid, payload)
	}
}

// broadcast 本地推送 + 发布到 Redis 让其他 Pod 也推
func (h *Hub) broadcast(userID uuid.UUID, payload []byte) {
	h.sendLocal(userID, payload)

	if h.rdb == nil {
		return
	}
	msg := BroadcastMessage{
		UserID:  userID.String(),
		PodID:   h.podID,
		Payload: payload,
	}
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[ERROR] Failed to marshal broadcast message: %v", err)
		return
	}
	ctx := context.Background()
	if err := h.rdb.Publish(ctx, redisBroadcastChannel, msgBytes).Err(); err != nil {
		log.Printf("[ERROR] Failed to publish to Redis: %v", err)
	}
}

// sendLocal 发送给本 Pod 上该用户的所有设备；慢连接直接踢掉，不阻塞调用方
func (h *Hub) sendLocal(userID uuid.UUID, payload []byte) bool {
	h.mu.RLock()
	userClients, exists := h.Clients[userID]
	if !exists || len(userClients) == 0 {
		h.mu.RUnlock()
		return false // 用户不在线（正常情况，不记录）
	}

	// 复制一份，避免遍历时并发修改
	clientsCopy := make([]*Client, 0, len(userClients))
	for _, client := range userClients {
		clientsCopy = append(clientsCopy, client)
	}
	h.mu.RUnlock()

	sentToAny := false
	for _, client := range clientsCopy {
		select {
		case client.Send <- payload:
			sentToAny = true
		default:
			log.Printf("[ERROR] Send channel FULL: user=%s, client=%s, closing connection", userID, client.ID)
			go h.Unregister(client)
		}
	}
	return sentToAny
}

// StartPubSub 启动 Redis Pub/Sub 订阅（跨 Pod 广播）
func (h *Hub) StartPubSub() {
	if h.rdb == nil {
		return
	}
	go func() {
		ctx := context.Background()
		pubsub := h.rdb.Subscribe(ctx, redisBroadcastChannel)
		defer pubsub.Close()

		log.Printf("[INFO] Pod %s started Redis Pub/Sub subscription", h.podID[:8])

		ch := pubsub.Channel()
		for {
			select {
			case <-h.stopPubSub:
				log.Printf("[INFO] Pod %s stopping Redis Pub/Sub subscription", h.podID[:8])
				return
			case msg := <-ch:
				if msg == nil {
					continue
				}
				h.handleBroadcastMessage([]byte(msg.Payload))
			}
		}
	}()
}

// StopPubSub 停止订阅
func (h *Hub) StopPubSub() {
	close(h.stopPubSub)
}

func (h *Hub) handleBroadcastMessage(data []byte) {
	var msg BroadcastMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("[ERROR] Failed to unmarshal broadcast message: %v", err)
		return
	}
	// 忽略自己发的消息
	if msg.PodID == h.podID {
		return
	}
	userID, err := uuid.Parse(msg.UserID)
	if err != nil {
		log.Printf("[ERROR] Invalid user ID in broadcast message: %v", err)
		return
	}
	h.sendLocal(userID, msg.Payload)
}

func (h *Hub) refreshOnlineKey(userID uuid.UUID) {
	if h.rdb == nil {
		return
	}
	ctx := context.Background()
	h.rdb.Set(ctx, "online:"+userID.String(), "1", onlineKeyTTL)
}

// WSMessage 客户端上行消息格式
type WSMessage struct {
	Type string          `json:"type"` // 'heartbeat'
	Data json.RawMessage `json:"data"`
}

// HandleWebSocket 处理 WebSocket 连接。客户端带 ?token=<jwt> 连入，
// 服务端只下行推送 sos.created / sos.recipient_updated / sos.closed
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "missing token"})
			return
		}

		userID, err := middleware.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[ERROR] WebSocket upgrade failed for user %s: %v", userID, err)
			return
		}

		client := &Client{
			ID:     uuid.New(),
			UserID: userID,
			Conn:   conn,
			Send:   make(chan []byte, 256),
			Hub:    hub,
		}

		hub.Register(client)

		go client.readPump()
		go client.writePump()
	}
}

// readPump 读取上行消息（目前只有心跳）
func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				log.Printf("[ERROR] User %s WebSocket unexpected close error: %v", c.UserID, err)
			}
			break
		}

		var wsMsg WSMessage
		if err := json.Unmarshal(message, &wsMsg); err != nil {
			continue
		}

		switch wsMsg.Type {
		case "heartbeat":
			c.Hub.refreshOnlineKey(c.UserID)
		}
	}
}

// writePump 写下行消息 + 定时 ping 保活
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub 关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
