package server

import (
	"github.com/pkg/errors"

	"trailarena/protocol"
)

var (
	// ErrUnknownRoom 房间不存在
	ErrUnknownRoom = errors.New("unknown room")
	// ErrRoomExists 内部通道创建的房间已存在
	ErrRoomExists = errors.New("room already exists")
	// ErrUnknownPlayer 玩家不在房间名单中
	ErrUnknownPlayer = errors.New("unknown player")
	// ErrRoomFinished 房间对局已结束，不再接受加入
	ErrRoomFinished = errors.New("room is finished")
	// ErrNotInLobby 房间已离开 lobby 阶段，不再接受新玩家
	ErrNotInLobby = errors.New("room is not in lobby")
	// ErrNotBound 连接尚未加入房间，或命令指向的房间/玩家不是该连接绑定的
	ErrNotBound = errors.New("connection is not bound to this room and player")
	// ErrRoomClosed 房间已关闭
	ErrRoomClosed = errors.New("room is closed")
)

// 房间层错误码，与 protocol 的错误码共用 error 事件的 code 字段
const (
	CodeUnknownRoom   = "unknown_room"
	CodeRoomExists    = "room_exists"
	CodeUnknownPlayer = "unknown_player"
	CodeRoomFinished  = "room_finished"
	CodeNotInLobby    = "not_in_lobby"
	CodeNotBound      = "not_bound"
	CodeRoomClosed    = "room_closed"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrUnknownRoom, CodeUnknownRoom},
	{ErrRoomExists, CodeRoomExists},
	{ErrUnknownPlayer, CodeUnknownPlayer},
	{ErrRoomFinished, CodeRoomFinished},
	{ErrNotInLobby, CodeNotInLobby},
	{ErrNotBound, CodeNotBound},
	{ErrRoomClosed, CodeRoomClosed},
}

// ErrorCode 错误对应的 code；不是房间层错误时交给 protocol.CodeOf
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return protocol.CodeOf(err)
}

// errorEvent 由 error 构造发给连接的错误事件
func errorEvent(err error) protocol.Error {
	return protocol.NewError(ErrorCode(err), err)
}
