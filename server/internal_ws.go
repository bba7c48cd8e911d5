package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"trailarena/protocol"
)

// InternalAPIKeyHeader 内部通道的鉴权头
const InternalAPIKeyHeader = "X-Internal-Api-Key"

// 内部连接观察多个房间，发送队列至少这么长
const minInternalQueue = 1024

// InternalSession 后端服务的内部通道：建房、代玩家输入、关房。
// 通过 create_room 创建的房间会把事件推送给该连接，连接断开时取消订阅。
type InternalSession struct {
	m   *RoomManager
	sub Subscriber

	observed map[string]bool
}

// NewInternalSession 创建内部会话
func NewInternalSession(m *RoomManager, sub Subscriber) *InternalSession {
	return &InternalSession{m: m, sub: sub, observed: make(map[string]bool)}
}

// HandleMessage 解码并执行一条内部消息
func (s *InternalSession) HandleMessage(payload []byte) error {
	cmd, err := protocol.DecodeInternal(s.sub.Codec(), payload)
	if err != nil {
		return err
	}
	return s.Handle(cmd)
}

// Handle 执行一条内部命令
func (s *InternalSession) Handle(cmd protocol.InternalCommand) error {
	switch c := cmd.(type) {
	case protocol.CreateRoom:
		if err := s.m.CreateRoom(c, s.sub); err != nil {
			return err
		}
		s.observed[c.RoomID] = true
		Log.Infow("room created by backend", "room", c.RoomID, "players", len(c.Players), "conn", s.sub.ID())
		b, err := protocol.EncodeEvent(s.sub.Codec(), protocol.RoomCreated{RoomID: c.RoomID})
		if err != nil {
			return err
		}
		s.sub.Enqueue(b)
		return nil

	case protocol.RoomInput:
		return s.m.PushInput(c.RoomID, c.PlayerID, c.Turn)

	case protocol.CloseRoom:
		reason := c.Reason
		if reason == "" {
			reason = "closed by backend"
		}
		delete(s.observed, c.RoomID)
		return s.m.CloseRoom(c.RoomID, reason)

	default:
		panic(fmt.Sprintf("server: unhandled internal command %T", cmd))
	}
}

// Close 连接断开：取消所有房间订阅，房间继续运行
func (s *InternalSession) Close() {
	for roomID := range s.observed {
		s.m.Unobserve(roomID, s.sub)
	}
	s.observed = make(map[string]bool)
}

// InternalHandler 内部通道接入：/internal?codec=json|msgpack，需要 X-Internal-Api-Key
type InternalHandler struct {
	Manager   *RoomManager
	APIKey    string
	QueueSize int
}

func (h *InternalHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(InternalAPIKeyHeader)
	if h.APIKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.APIKey)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	codec, err := protocol.CodecByName(r.URL.Query().Get("codec"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnw("internal upgrade error", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := NewClientConn(ws, codec, max(h.QueueSize, minInternalQueue))
	Log.Infow("internal channel connected", "conn", client.id, "remote", r.RemoteAddr, "codec", codec.Name())

	go client.writePump()
	go client.readPump(NewInternalSession(h.Manager, client))
}
