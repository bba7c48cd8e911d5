package protocol

import (
	"fmt"

	"github.com/pkg/errors"
)

// 出站事件类型
const (
	TypeJoined       = "joined"
	TypeLeft         = "left"
	TypeState        = "state"
	TypeGameStarted  = "game_started"
	TypeGameFinished = "game_finished"
	TypeRoomClosed   = "room_closed"
	TypeRoomCreated  = "room_created"
	TypeError        = "error"
)

// Event 服务端发出的事件，只有本包内的类型实现。
// V 由 EncodeEvent 填写为 ProtocolVersion。
type Event interface {
	eventType() string
}

// Joined 玩家加入（或重新绑定）房间
type Joined struct {
	Type     string `json:"type" jsonschema:"enum=joined"`
	V        int    `json:"v" jsonschema:"enum=1"`
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

// Left 玩家离开房间
type Left struct {
	Type     string `json:"type" jsonschema:"enum=left"`
	V        int    `json:"v" jsonschema:"enum=1"`
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

// State 状态快照
type State struct {
	Type     string    `json:"type" jsonschema:"enum=state"`
	V        int       `json:"v" jsonschema:"enum=1"`
	Snapshot *Snapshot `json:"snapshot"`
}

// GameStarted 对局开始
type GameStarted struct {
	Type   string `json:"type" jsonschema:"enum=game_started"`
	V      int    `json:"v" jsonschema:"enum=1"`
	RoomID string `json:"roomId"`
}

// GameFinished 对局结束；全员同归于尽时 WinnerID 为最后出局者
type GameFinished struct {
	Type     string `json:"type" jsonschema:"enum=game_finished"`
	V        int    `json:"v" jsonschema:"enum=1"`
	RoomID   string `json:"roomId"`
	WinnerID string `json:"winnerId"`
}

// RoomClosed 房间关闭
type RoomClosed struct {
	Type   string `json:"type" jsonschema:"enum=room_closed"`
	V      int    `json:"v" jsonschema:"enum=1"`
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

// RoomCreated 内部通道 create_room 成功
type RoomCreated struct {
	Type   string `json:"type" jsonschema:"enum=room_created"`
	V      int    `json:"v" jsonschema:"enum=1"`
	RoomID string `json:"roomId"`
}

// Error 发给出错连接的错误；Code 是稳定的机器可读标识
type Error struct {
	Type    string `json:"type" jsonschema:"enum=error"`
	V       int    `json:"v" jsonschema:"enum=1"`
	Code    string `json:"code" jsonschema:"minLength=1,maxLength=64"`
	Message string `json:"message" jsonschema:"minLength=1,maxLength=500"`
}

func (Joined) eventType() string       { return TypeJoined }
func (Left) eventType() string         { return TypeLeft }
func (State) eventType() string        { return TypeState }
func (GameStarted) eventType() string  { return TypeGameStarted }
func (GameFinished) eventType() string { return TypeGameFinished }
func (RoomClosed) eventType() string   { return TypeRoomClosed }
func (RoomCreated) eventType() string  { return TypeRoomCreated }
func (Error) eventType() string        { return TypeError }

// EventType 返回事件的类型标签
func EventType(e Event) string { return e.eventType() }

// 错误消息与错误码的最大长度
const (
	maxErrorLen     = 500
	maxErrorCodeLen = 64
)

// NewError 由 error 构造错误事件，过长的消息会被截断；code 为空时按 CodeOf 推断
func NewError(code string, err error) Error {
	if code == "" {
		code = CodeOf(err)
	}
	if len(code) > maxErrorCodeLen {
		code = code[:maxErrorCodeLen]
	}
	msg := "internal error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return Error{Code: code, Message: msg}
}

// EncodeEvent 校验并编码事件；校验失败返回错误，由调用方记录并放弃发送
func EncodeEvent(codec Codec, ev Event) ([]byte, error) {
	var (
		v   any
		err error
	)
	switch e := ev.(type) {
	case Joined:
		e.Type, e.V = TypeJoined, ProtocolVersion
		err = roomAndPlayer(e.RoomID, e.PlayerID)
		v = e
	case Left:
		e.Type, e.V = TypeLeft, ProtocolVersion
		err = roomAndPlayer(e.RoomID, e.PlayerID)
		v = e
	case State:
		e.Type, e.V = TypeState, ProtocolVersion
		if e.Snapshot == nil {
			err = invalid("snapshot", "missing")
		} else {
			err = e.Snapshot.Validate()
		}
		v = e
	case GameStarted:
		e.Type, e.V = TypeGameStarted, ProtocolVersion
		err = checkID("roomId", e.RoomID)
		v = e
	case GameFinished:
		e.Type, e.V = TypeGameFinished, ProtocolVersion
		err = roomAndPlayer(e.RoomID, e.WinnerID)
		v = e
	case RoomClosed:
		e.Type, e.V = TypeRoomClosed, ProtocolVersion
		err = checkID("roomId", e.RoomID)
		if err == nil && e.Reason == "" {
			err = invalid("reason", "missing")
		}
		v = e
	case RoomCreated:
		e.Type, e.V = TypeRoomCreated, ProtocolVersion
		err = checkID("roomId", e.RoomID)
		v = e
	case Error:
		e.Type, e.V = TypeError, ProtocolVersion
		switch {
		case e.Code == "" || len(e.Code) > maxErrorCodeLen:
			err = invalid("code", "length must be 1..64")
		case e.Message == "" || len(e.Message) > maxErrorLen:
			err = invalid("message", "length must be 1..500")
		}
		v = e
	default:
		panic(fmt.Sprintf("protocol: unhandled event %T", ev))
	}
	if err != nil {
		return nil, errors.WithMessage(err, ev.eventType())
	}
	return codec.Marshal(v)
}

func roomAndPlayer(roomID, playerID string) error {
	if err := checkID("roomId", roomID); err != nil {
		return err
	}
	return checkID("playerId", playerID)
}

// DecodeEvent 解码一条出站事件（客户端工具与测试使用）
func DecodeEvent(codec Codec, data []byte) (Event, error) {
	h, err := decodeHeader(codec, data)
	if err != nil {
		return nil, err
	}
	var ev Event
	switch h.Type {
	case TypeJoined:
		var e Joined
		err = decodeInto(codec, data, &e)
		ev = e
	case TypeLeft:
		var e Left
		err = decodeInto(codec, data, &e)
		ev = e
	case TypeState:
		var e State
		err = decodeInto(codec, data, &e)
		ev = e
	case TypeGameStarted:
		var e GameStarted
		err = decodeInto(codec, data, &e)
		ev = e
	case TypeGameFinished:
		var e GameFinished
		err = decodeInto(codec, data, &e)
		ev = e
	case TypeRoomClosed:
		var e RoomClosed
		err = decodeInto(codec, data, &e)
		ev = e
	case TypeRoomCreated:
		var e RoomCreated
		err = decodeInto(codec, data, &e)
		ev = e
	case TypeError:
		var e Error
		err = decodeInto(codec, data, &e)
		ev = e
	default:
		return nil, errors.Wrapf(ErrUnknownType, "%q", h.Type)
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}
