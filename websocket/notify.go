// Package websocket 向在线用户推送站内通知
package websocket

import (
	"net/http"
	"sync"
	"time"

	"onlinelibrary_go/config"
	"onlinelibrary_go/events"
	"onlinelibrary_go/metrics"
	"onlinelibrary_go/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 64
)

// 升级器 - 将HTTP连接升级为WebSocket连接
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WSMessage WebSocket消息结构
type WSMessage struct {
	Type      string      `json:"type"` // notification, pong
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Client WebSocket客户端，同一用户可以有多个连接
type Client struct {
	UserID string
	conn   *websocket.Conn
	send   chan *WSMessage
	hub    *Hub
}

// Hub 在线连接注册表，按用户ID投递通知
type Hub struct {
	mu          sync.RWMutex
	clients     map[string]map[*Client]struct{}
	unsubscribe func()
}

// NewHub 创建连接注册表
func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*Client]struct{})}
}

// Start 订阅站内事件，把带有接收者的事件推送给对应用户
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unsubscribe == nil {
		h.unsubscribe = events.Subscribe(h.handleEvent)
	}
}

// Stop 取消订阅并断开所有连接
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.unsubscribe != nil {
		h.unsubscribe()
		h.unsubscribe = nil
	}
	var all []*Client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		h.unregister(c)
	}
}

// ServeWS 升级连接，需要放在 AuthMiddleware 之后
func (h *Hub) ServeWS(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"code": 40100, "message": "authentication required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		middleware.WarnLogger("failed to upgrade websocket connection", zap.String("user_id", userID), zap.Error(err))
		return
	}

	client := &Client{
		UserID: userID,
		conn:   conn,
		send:   make(chan *WSMessage, sendBufferSize),
		hub:    h,
	}
	h.register(client)

	go client.writePump()
	go client.readPump()
}

// SendToUser 投递给该用户的所有连接，返回成功入队的连接数
func (h *Hub) SendToUser(userID string, msg *WSMessage) int {
	var slow []*Client
	delivered := 0

	h.mu.RLock()
	for c := range h.clients[userID] {
		select {
		case c.send <- msg:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	// 发送队列满了，断开连接
	for _, c := range slow {
		middleware.WarnLogger("websocket send queue is full, closing connection", zap.String("user_id", c.UserID))
		h.unregister(c)
	}
	return delivered
}

// ConnectionCount 当前连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// IsOnline 用户是否在线
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

func (h *Hub) handleEvent(e events.Event) {
	if e.TargetUserID == "" {
		return
	}
	h.SendToUser(e.TargetUserID, &WSMessage{
		Type:      "notification",
		Data:      e,
		Timestamp: e.Timestamp.Unix(),
	})
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.UserID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	metrics.WebSocketConnections.Inc()
	middleware.DebugLogger("websocket connected", zap.String("user_id", c.UserID))
}

// unregister 可重复调用，只有第一次会关闭发送队列
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.UserID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := set[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.UserID)
	}
	close(c.send)
	h.mu.Unlock()

	metrics.WebSocketConnections.Dec()
	middleware.DebugLogger("websocket disconnected", zap.String("user_id", c.UserID))
}

// readPump 读取客户端消息，只处理心跳
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				middleware.DebugLogger("websocket read error", zap.String("user_id", c.UserID), zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if msg.Type == "ping" {
			c.hub.mu.RLock()
			_, alive := c.hub.clients[c.UserID][c]
			if alive {
				select {
				case c.send <- &WSMessage{Type: "pong", Timestamp: time.Now().Unix()}:
				default:
				}
			}
			c.hub.mu.RUnlock()
		}
	}
}

// writePump 向连接写入消息并定时发送心跳
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 通道关闭
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// checkOrigin 非浏览器请求直接放行，浏览器请求按 CORS_ORIGINS 校验
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range config.GetEnvList("CORS_ORIGINS", []string{"*"}) {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ==================== 全局实例 ====================

var defaultHub = NewHub()

// InitWebSocket 初始化WebSocket服务
func InitWebSocket() error {
	defaultHub.Start()
	middleware.InfoLogger("websocket notification hub started")
	return nil
}

// HandleConnection 处理WebSocket连接
func HandleConnection(c *gin.Context) {
	defaultHub.ServeWS(c)
}

// DefaultHub 全局连接注册表
func DefaultHub() *Hub {
	return defaultHub
}

// CloseWebSocket 关闭WebSocket服务
func CloseWebSocket() {
	middleware.InfoLogger("websocket notification hub stopping", zap.Int("connections", defaultHub.ConnectionCount()))
	defaultHub.Stop()
}
