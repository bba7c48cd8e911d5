package protocol

import (
	"math"

	"github.com/pkg/errors"

	"trailarena/engine"
)

// 内部通道（/internal）的命令类型；input 与玩家通道同名，按连接区分
const (
	TypeCreateRoom = "create_room"
	TypeCloseRoom  = "close_room"
)

// InternalCommand 后端服务经内部通道发来的命令
type InternalCommand interface {
	internalType() string
}

// CreateRoom 以给定名单创建房间；房间已存在时失败
type CreateRoom struct {
	Type    string       `json:"type" jsonschema:"enum=create_room"`
	V       int          `json:"v,omitempty" jsonschema:"enum=1"`
	RoomID  string       `json:"roomId" jsonschema:"minLength=1,maxLength=128"`
	Seed    int64        `json:"seed" jsonschema:"minimum=0,maximum=4294967295"`
	Config  *ConfigPatch `json:"config,omitempty"`
	Players []PlayerInfo `json:"players" jsonschema:"minItems=1"`
}

// RoomInput 代指定玩家提交转向指令
type RoomInput struct {
	Type     string      `json:"type" jsonschema:"enum=input"`
	V        int         `json:"v,omitempty" jsonschema:"enum=1"`
	RoomID   string      `json:"roomId" jsonschema:"minLength=1,maxLength=128"`
	PlayerID string      `json:"playerId" jsonschema:"minLength=1,maxLength=128"`
	Turn     engine.Turn `json:"turn" jsonschema:"minimum=-1,maximum=1"`
}

// CloseRoom 关闭房间
type CloseRoom struct {
	Type   string `json:"type" jsonschema:"enum=close_room"`
	V      int    `json:"v,omitempty" jsonschema:"enum=1"`
	RoomID string `json:"roomId" jsonschema:"minLength=1,maxLength=128"`
	Reason string `json:"reason,omitempty" jsonschema:"maxLength=500"`
}

func (CreateRoom) internalType() string { return TypeCreateRoom }
func (RoomInput) internalType() string  { return TypeInput }
func (CloseRoom) internalType() string  { return TypeCloseRoom }

// DecodeInternal 解码并校验一条内部通道消息
func DecodeInternal(codec Codec, data []byte) (InternalCommand, error) {
	h, err := decodeHeader(codec, data)
	if err != nil {
		return nil, err
	}
	var cmd InternalCommand
	switch h.Type {
	case TypeCreateRoom:
		var c CreateRoom
		err = decodeInto(codec, data, &c)
		cmd = c
	case TypeInput:
		var c RoomInput
		err = decodeInto(codec, data, &c)
		cmd = c
	case TypeCloseRoom:
		var c CloseRoom
		err = decodeInto(codec, data, &c)
		cmd = c
	case "":
		return nil, errors.Wrap(ErrInvalidMessage, "type: missing")
	default:
		return nil, errors.Wrapf(ErrUnknownType, "%q", h.Type)
	}
	if err != nil {
		return nil, err
	}
	if err := ValidateInternal(cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

// EncodeInternal 编码一条内部命令（后端客户端与测试使用）
func EncodeInternal(codec Codec, cmd InternalCommand) ([]byte, error) {
	if err := ValidateInternal(cmd); err != nil {
		return nil, err
	}
	var v any
	switch c := cmd.(type) {
	case CreateRoom:
		c.Type, c.V = TypeCreateRoom, ProtocolVersion
		v = c
	case RoomInput:
		c.Type, c.V = TypeInput, ProtocolVersion
		v = c
	case CloseRoom:
		c.Type, c.V = TypeCloseRoom, ProtocolVersion
		v = c
	default:
		panic("protocol: unhandled internal command " + cmd.internalType())
	}
	return codec.Marshal(v)
}

// ValidateInternal 字段级校验
func ValidateInternal(cmd InternalCommand) error {
	switch c := cmd.(type) {
	case CreateRoom:
		if err := checkID("roomId", c.RoomID); err != nil {
			return err
		}
		if c.Seed < 0 || c.Seed > math.MaxUint32 {
			return invalid("seed", "must be in 0..4294967295")
		}
		if len(c.Players) == 0 {
			return invalid("players", "must not be empty")
		}
		seen := make(map[string]bool, len(c.Players))
		for _, p := range c.Players {
			if err := checkID("players.playerId", p.PlayerID); err != nil {
				return err
			}
			if seen[p.PlayerID] {
				return invalid("players", "duplicate playerId "+p.PlayerID)
			}
			seen[p.PlayerID] = true
		}
		if c.Config != nil {
			if err := c.Config.Apply(engine.DefaultConfig()).Validate(); err != nil {
				return errors.Wrap(ErrInvalidMessage, "config: "+err.Error())
			}
		}
		return nil
	case RoomInput:
		if err := roomAndPlayer(c.RoomID, c.PlayerID); err != nil {
			return err
		}
		if !c.Turn.Valid() {
			return invalid("turn", "must be -1, 0 or 1")
		}
		return nil
	case CloseRoom:
		if err := checkID("roomId", c.RoomID); err != nil {
			return err
		}
		if len(c.Reason) > maxErrorLen {
			return invalid("reason", "too long")
		}
		return nil
	default:
		panic("protocol: unhandled internal command " + cmd.internalType())
	}
}
