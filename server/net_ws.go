package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"trailarena/protocol"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 1 << 20 // 1MB
)

// ClientConn 一个 WebSocket 连接：发送队列 + 读写协程
type ClientConn struct {
	id    string
	ws    *websocket.Conn
	codec protocol.Codec

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewClientConn 包装连接，queueSize 为发送队列长度
func NewClientConn(ws *websocket.Conn, codec protocol.Codec, queueSize int) *ClientConn {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &ClientConn{
		id:    uuid.NewString(),
		ws:    ws,
		codec: codec,
		send:  make(chan []byte, queueSize),
	}
}

// ID 连接标识
func (c *ClientConn) ID() string { return c.id }

// Codec 连接使用的编码
func (c *ClientConn) Codec() protocol.Codec { return c.codec }

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃）
func (c *ClientConn) Enqueue(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		// 为了实时性，丢弃（防止阻塞 Tick）
		return false
	}
}

// Close 关闭发送队列，写协程发送关闭帧后断开连接（可重复调用）
func (c *ClientConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *ClientConn) messageType() int {
	if c.codec.Binary() {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定期发送 ping
func (c *ClientConn) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(c.messageType(), msg); err != nil {
				return
			}
		case <-ping.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// messageHandler 处理一个连接上的入站消息；Close 在连接断开时调用一次
type messageHandler interface {
	HandleMessage(payload []byte) error
	Close()
}

// readPump 读取入站消息并交给会话执行；出错时只回复该连接
func (c *ClientConn) readPump(s messageHandler) {
	defer func() {
		// 读泵退出：解除绑定（房间在自己的协程中处理断线）
		s.Close()
		c.Close()
		_ = c.ws.Close()
	}()
	c.ws.SetReadLimit(maxMessage)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				Log.Debugw("read failed", "conn", c.id, "error", err)
			}
			return
		}
		if err := s.HandleMessage(payload); err != nil {
			Log.Debugw("message rejected", "conn", c.id, "code", ErrorCode(err), "error", err)
			c.sendError(err)
		}
	}
}

func (c *ClientConn) sendError(err error) {
	b, encErr := protocol.EncodeEvent(c.codec, errorEvent(err))
	if encErr != nil {
		Log.Errorw("encode error event", "conn", c.id, "error", encErr)
		return
	}
	c.Enqueue(b)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 来源校验交给前置网关
		return true
	},
}

// WSHandler WebSocket 接入：/ws?codec=json|msgpack
type WSHandler struct {
	Manager   *RoomManager
	QueueSize int
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	codec, err := protocol.CodecByName(r.URL.Query().Get("codec"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnw("upgrade error", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := NewClientConn(ws, codec, h.QueueSize)
	Log.Debugw("connected", "conn", client.id, "remote", r.RemoteAddr, "codec", codec.Name())

	go client.writePump()
	go client.readPump(NewSession(h.Manager, client))
}
