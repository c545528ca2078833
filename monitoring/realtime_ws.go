package monitoring

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"sync"
	"time"

	"auditrisk/ml"
	"auditrisk/predlog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = 60 * time.Second
)

// MessageType 消息类型
type MessageType string

const (
	PredictionLogged MessageType = "prediction_logged"
)

// Message 推送消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// client WebSocket客户端
type client struct {
	conn *websocket.Conn
	send chan []byte
	id   string
}

// FeedHub 向所有订阅者实时推送新写入的预测记录
type FeedHub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *zap.Logger
}

// NewFeedHub 创建推送中心
func NewFeedHub(logger *zap.Logger) *FeedHub {
	ctx, cancel := context.WithCancel(context.Background())
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FeedHub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Run 事件循环，阻塞直到 Stop
func (h *FeedHub) Run() {
	defer h.logger.Info("prediction feed stopped")

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			count := len(h.clients)
			h.mu.Unlock()
			FeedClients.Set(float64(count))
			h.logger.Debug("feed client connected", zap.String("client_id", c.id), zap.Int("total", count))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			FeedClients.Set(float64(count))
			h.logger.Debug("feed client disconnected", zap.String("client_id", c.id), zap.Int("total", count))

		case message := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// 慢客户端直接断开
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			FeedClients.Set(0)
			return
		}
	}
}

// Stop 停止推送中心
func (h *FeedHub) Stop() {
	h.cancel()
}

// ClientCount 当前连接数
func (h *FeedHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP 升级为WebSocket连接
func (h *FeedHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
		id:   uuid.NewString(),
	}

	select {
	case h.register <- c:
	case <-h.ctx.Done():
		conn.Close()
		return
	}

	go c.writePump(h.logger)
	go c.readPump(h)
}

// Publish 广播一条新记录；队列满时丢弃
func (h *FeedHub) Publish(rec predlog.Record) {
	data, err := json.Marshal(feedRecord(rec))
	if err != nil {
		h.logger.Error("encode feed record", zap.Error(err))
		return
	}
	message, err := json.Marshal(Message{
		Type:      PredictionLogged,
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		h.logger.Error("encode feed message", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("prediction feed queue is full, dropping message")
	}
}

func feedRecord(rec predlog.Record) map[string]interface{} {
	out := make(map[string]interface{}, len(predlog.Columns()))
	for i, v := range ml.FeatureVector(rec.Features) {
		// JSON 无法表示 NaN/Inf，以 null 推送
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[ml.FeatureNames()[i]] = nil
			continue
		}
		out[ml.FeatureNames()[i]] = v
	}
	out[predlog.ColumnPredictedRisk] = rec.PredictedRisk
	return out
}

// writePump 写入泵
func (c *client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("feed write error", zap.String("client_id", c.id), zap.Error(err))
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

// readPump 读取泵，仅用于感知断开与pong
func (c *client) readPump(h *FeedHub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("feed read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
	}
}
