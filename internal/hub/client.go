package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端，可以同时关注多个活动房间。
type Client struct {
	id        string          // 订阅者 ID
	hub       *Hub            // 指向其所属的 Hub
	conn      *websocket.Conn // WebSocket 连接
	send      chan []byte     // 用于向此客户端发送消息的缓冲通道
	closeOnce sync.Once
	log       *logrus.Entry
}

// NewClient 创建一个新的 Client 实例，并分配新的订阅者 ID
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	id := uuid.NewString()
	return &Client{
		id:   id,
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		log:  logrus.WithFields(logrus.Fields{"component": "ws_client", "subscriber_id": id}),
	}
}

// ID implements Subscriber.
func (c *Client) ID() string { return c.id }

// Deliver 实现 Subscriber 接口，不会阻塞
func (c *Client) Deliver(env Envelope) bool {
	select {
	case c.send <- env.Bytes():
		return true
	default:
		return false
	}
}

// Close 关闭连接，随后由 ReadPump 负责清理
func (c *Client) Close() { _ = c.conn.Close() }

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

type inboundMessage struct {
	Type      string `json:"type"`
	EventSlug string `json:"eventSlug"`
}

// ReadPump 处理 join-event / leave-event 请求，连接结束后把客户端移出所有房间
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Disconnect(c.id)
		// Disconnect 持有写锁，返回后不会再有广播写入 c.send
		c.closeOnce.Do(func() { close(c.send) })
		_ = c.conn.Close()
		c.log.Info("readPump exited, client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				c.log.Debug("WebSocket connection closed")
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.log.Debugf("Ignoring non-text message type: %d", messageType)
			continue
		}
		c.handleInbound(data)
	}
}

func (c *Client) handleInbound(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(MessageError, "", map[string]string{"message": "malformed message"})
		return
	}

	switch msg.Type {
	case MessageJoinEvent:
		c.Join(msg.EventSlug)
	case MessageLeaveEvent:
		c.hub.Leave(c.id, msg.EventSlug)
		c.reply(MessageLeft, msg.EventSlug, nil)
	default:
		c.log.WithField("type", msg.Type).Debug("Unknown client message type")
		c.reply(MessageError, "", map[string]string{"message": "unknown message type"})
	}
}

// Join 把客户端加入 slug 对应的房间，并回复 joined 或 error
func (c *Client) Join(slug string) bool {
	if err := c.hub.Join(c, slug); err != nil {
		text := "could not join event"
		if errors.Is(err, ErrInvalidSlug) {
			text = "invalid event slug"
		} else if errors.Is(err, ErrTooManyRooms) {
			text = "too many events joined"
		}
		c.reply(MessageError, slug, map[string]string{"message": text})
		return false
	}
	c.reply(MessageJoined, slug, nil)
	return true
}

// reply 直接回复该客户端，不经过房间广播
func (c *Client) reply(msgType, slug string, payload interface{}) {
	env, err := NewEnvelope(msgType, slug, payload)
	if err != nil {
		c.log.WithError(err).Error("Failed to encode reply")
		return
	}
	if !c.Deliver(env) {
		c.log.WithField("type", msgType).Warn("Client send channel full, reply dropped")
	}
}

// WritePump 把 send 通道中的消息写入连接，并定期发送 ping 保持连接
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		c.log.Debug("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道已关闭
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.WithError(err).Warn("Failed to write message to websocket")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.WithError(err).Debug("Failed to send ping message")
				return
			}
		}
	}
}
