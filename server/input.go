package server

import (
	"fmt"

	"github.com/pkg/errors"

	"trailarena/protocol"
)

// Session 一个连接的绑定状态：最近一次成功加入的房间与玩家。
// 只在该连接的读协程中使用。
type Session struct {
	m   *RoomManager
	sub Subscriber

	roomID   string
	playerID string
}

// NewSession 创建会话
func NewSession(m *RoomManager, sub Subscriber) *Session {
	return &Session{m: m, sub: sub}
}

// Bound 当前绑定（未加入时为空串）
func (s *Session) Bound() (roomID, playerID string) {
	return s.roomID, s.playerID
}

// HandleMessage 解码并执行一条入站消息
func (s *Session) HandleMessage(payload []byte) error {
	cmd, err := protocol.DecodeCommand(s.sub.Codec(), payload)
	if err != nil {
		return err
	}
	return s.Handle(cmd)
}

// Handle 执行一条入站命令
func (s *Session) Handle(cmd protocol.Command) error {
	switch c := cmd.(type) {
	case protocol.CreateOrJoinRoom:
		if s.roomID != "" && (s.roomID != c.RoomID || s.playerID != c.Player.PlayerID) {
			// 换房间或换身份：旧绑定视为断线
			s.m.Disconnect(s.roomID, s.playerID, s.sub)
			s.roomID, s.playerID = "", ""
		}
		if err := s.m.CreateOrJoin(c, s.sub); err != nil {
			return err
		}
		s.roomID, s.playerID = c.RoomID, c.Player.PlayerID
		return nil

	case protocol.UpdateScene:
		if err := s.check(c.RoomID, c.PlayerID); err != nil {
			return err
		}
		return s.m.UpdateScene(c.RoomID, c.PlayerID, c.Scene)

	case protocol.StartGame:
		if err := s.check(c.RoomID, ""); err != nil {
			return err
		}
		return s.m.Start(c.RoomID)

	case protocol.Input:
		if s.roomID == "" {
			return errors.WithStack(ErrNotBound)
		}
		r, err := s.m.Get(s.roomID)
		if err != nil {
			return err
		}
		return r.PushInput(s.playerID, c.Turn)

	case protocol.LeaveRoom:
		if err := s.check(c.RoomID, c.PlayerID); err != nil {
			return err
		}
		s.roomID, s.playerID = "", ""
		return s.m.Leave(c.RoomID, c.PlayerID)

	default:
		panic(fmt.Sprintf("server: unhandled command %T", cmd))
	}
}

// Close 连接断开时调用
func (s *Session) Close() {
	if s.roomID == "" {
		return
	}
	s.m.Disconnect(s.roomID, s.playerID, s.sub)
	s.roomID, s.playerID = "", ""
}

// check 命令指向的房间（和玩家）必须是当前绑定的
func (s *Session) check(roomID, playerID string) error {
	if s.roomID == "" || s.roomID != roomID || (playerID != "" && s.playerID != playerID) {
		return errors.Wrapf(ErrNotBound, "room %s player %s", roomID, playerID)
	}
	return nil
}
