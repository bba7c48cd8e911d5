package protocol

import (
	"math"

	"github.com/pkg/errors"

	"trailarena/engine"
)

// 入站命令类型
const (
	TypeCreateOrJoinRoom = "create_or_join_room"
	TypeUpdateScene      = "update_scene"
	TypeStartGame        = "start_game"
	TypeInput            = "input"
	TypeLeaveRoom        = "leave_room"
)

// MaxIDLen roomId / playerId 最大长度
const MaxIDLen = 128

var (
	// ErrInvalidMessage 消息格式或字段不合法
	ErrInvalidMessage = errors.New("invalid message")
	// ErrUnknownType 未知的消息类型
	ErrUnknownType = errors.New("unknown message type")
)

// Command 客户端发来的命令，只有本包内的类型实现
type Command interface {
	commandType() string
}

// PlayerInfo 加入房间时携带的玩家信息；评分缺省时使用默认评分
type PlayerInfo struct {
	PlayerID    string   `json:"playerId" jsonschema:"minLength=1,maxLength=128"`
	RatingMu    *float64 `json:"rating_mu,omitempty"`
	RatingSigma *float64 `json:"rating_sigma,omitempty"`
}

// ConfigPatch 房间创建时的部分配置，未给出的字段使用默认值
type ConfigPatch struct {
	TickRate           *int     `json:"tickRate,omitempty"`
	ArenaWidth         *float64 `json:"arenaWidth,omitempty"`
	ArenaHeight        *float64 `json:"arenaHeight,omitempty"`
	Speed              *float64 `json:"speed,omitempty"`
	TurnRate           *float64 `json:"turnRate,omitempty"`
	PlayerRadius       *float64 `json:"playerRadius,omitempty"`
	GapChance          *float64 `json:"gapChance,omitempty"`
	GapMinTicks        *int     `json:"gapMinTicks,omitempty"`
	GapMaxTicks        *int     `json:"gapMaxTicks,omitempty"`
	SpawnPadding       *float64 `json:"spawnPadding,omitempty"`
	SpawnAngle         *float64 `json:"spawnAngle,omitempty"`
	CollisionRadiusMul *float64 `json:"collisionRadiusMul,omitempty"`
}

// Apply 把补丁叠加到 base 上；nil 补丁返回 base
func (p *ConfigPatch) Apply(base engine.Config) engine.Config {
	if p == nil {
		return base
	}
	setF := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setI := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	setI(&base.TickRate, p.TickRate)
	setF(&base.ArenaWidth, p.ArenaWidth)
	setF(&base.ArenaHeight, p.ArenaHeight)
	setF(&base.Speed, p.Speed)
	setF(&base.TurnRate, p.TurnRate)
	setF(&base.PlayerRadius, p.PlayerRadius)
	setF(&base.GapChance, p.GapChance)
	setI(&base.GapMinTicks, p.GapMinTicks)
	setI(&base.GapMaxTicks, p.GapMaxTicks)
	setF(&base.SpawnPadding, p.SpawnPadding)
	setF(&base.SpawnAngle, p.SpawnAngle)
	setF(&base.CollisionRadiusMul, p.CollisionRadiusMul)
	return base
}

// CreateOrJoinRoom 创建房间（首次引用）或加入已有房间
type CreateOrJoinRoom struct {
	Type   string       `json:"type" jsonschema:"enum=create_or_join_room"`
	V      int          `json:"v,omitempty" jsonschema:"enum=1"`
	RoomID string       `json:"roomId" jsonschema:"minLength=1,maxLength=128"`
	Seed   int64        `json:"seed" jsonschema:"minimum=0,maximum=4294967295,description=Only used when the room is created"`
	Player PlayerInfo   `json:"player"`
	Config *ConfigPatch `json:"config,omitempty"`
}

// UpdateScene 玩家客户端所在场景变化
type UpdateScene struct {
	Type     string `json:"type" jsonschema:"enum=update_scene"`
	V        int    `json:"v,omitempty" jsonschema:"enum=1"`
	RoomID   string `json:"roomId" jsonschema:"minLength=1,maxLength=128"`
	PlayerID string `json:"playerId" jsonschema:"minLength=1,maxLength=128"`
	Scene    Scene  `json:"scene" jsonschema:"enum=lobby,enum=game"`
}

// StartGame 开始对局（仅 ready 阶段生效）
type StartGame struct {
	Type   string `json:"type" jsonschema:"enum=start_game"`
	V      int    `json:"v,omitempty" jsonschema:"enum=1"`
	RoomID string `json:"roomId" jsonschema:"minLength=1,maxLength=128"`
}

// Input 当前连接绑定玩家的转向指令
type Input struct {
	Type string      `json:"type" jsonschema:"enum=input"`
	V    int         `json:"v,omitempty" jsonschema:"enum=1"`
	Turn engine.Turn `json:"turn" jsonschema:"minimum=-1,maximum=1"`
}

// LeaveRoom 主动离开房间
type LeaveRoom struct {
	Type     string `json:"type" jsonschema:"enum=leave_room"`
	V        int    `json:"v,omitempty" jsonschema:"enum=1"`
	RoomID   string `json:"roomId" jsonschema:"minLength=1,maxLength=128"`
	PlayerID string `json:"playerId" jsonschema:"minLength=1,maxLength=128"`
}

func (CreateOrJoinRoom) commandType() string { return TypeCreateOrJoinRoom }
func (UpdateScene) commandType() string      { return TypeUpdateScene }
func (StartGame) commandType() string        { return TypeStartGame }
func (Input) commandType() string            { return TypeInput }
func (LeaveRoom) commandType() string        { return TypeLeaveRoom }

// CommandType 返回命令的类型标签
func CommandType(c Command) string { return c.commandType() }

type header struct {
	Type string `json:"type"`
	V    int    `json:"v"`
}

func decodeHeader(codec Codec, data []byte) (header, error) {
	var h header
	if err := codec.Unmarshal(data, &h); err != nil {
		return h, errors.Wrap(ErrInvalidMessage, err.Error())
	}
	return h, checkVersion(h.V)
}

// DecodeCommand 解码并校验一条入站消息
func DecodeCommand(codec Codec, data []byte) (Command, error) {
	h, err := decodeHeader(codec, data)
	if err != nil {
		return nil, err
	}

	var cmd Command
	switch h.Type {
	case TypeCreateOrJoinRoom:
		var c CreateOrJoinRoom
		err = decodeInto(codec, data, &c)
		cmd = c
	case TypeUpdateScene:
		var c UpdateScene
		err = decodeInto(codec, data, &c)
		cmd = c
	case TypeStartGame:
		var c StartGame
		err = decodeInto(codec, data, &c)
		cmd = c
	case TypeInput:
		var c Input
		err = decodeInto(codec, data, &c)
		cmd = c
	case TypeLeaveRoom:
		var c LeaveRoom
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
	if err := ValidateCommand(cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

func decodeInto(codec Codec, data []byte, v any) error {
	if err := codec.Unmarshal(data, v); err != nil {
		return errors.Wrap(ErrInvalidMessage, err.Error())
	}
	return nil
}

// EncodeCommand 编码一条命令（客户端工具与测试使用）
func EncodeCommand(codec Codec, cmd Command) ([]byte, error) {
	if err := ValidateCommand(cmd); err != nil {
		return nil, err
	}
	var v any
	switch c := cmd.(type) {
	case CreateOrJoinRoom:
		c.Type, c.V = TypeCreateOrJoinRoom, ProtocolVersion
		v = c
	case UpdateScene:
		c.Type, c.V = TypeUpdateScene, ProtocolVersion
		v = c
	case StartGame:
		c.Type, c.V = TypeStartGame, ProtocolVersion
		v = c
	case Input:
		c.Type, c.V = TypeInput, ProtocolVersion
		v = c
	case LeaveRoom:
		c.Type, c.V = TypeLeaveRoom, ProtocolVersion
		v = c
	default:
		panic("protocol: unhandled command " + cmd.commandType())
	}
	return codec.Marshal(v)
}

// ValidateCommand 字段级校验
func ValidateCommand(cmd Command) error {
	switch c := cmd.(type) {
	case CreateOrJoinRoom:
		if err := checkID("roomId", c.RoomID); err != nil {
			return err
		}
		if c.Seed < 0 || c.Seed > math.MaxUint32 {
			return invalid("seed", "must be in 0..4294967295")
		}
		if err := checkID("player.playerId", c.Player.PlayerID); err != nil {
			return err
		}
		if c.Player.RatingMu != nil && !finite(*c.Player.RatingMu) {
			return invalid("player.rating_mu", "must be finite")
		}
		if c.Player.RatingSigma != nil && (!finite(*c.Player.RatingSigma) || *c.Player.RatingSigma <= 0) {
			return invalid("player.rating_sigma", "must be positive")
		}
		if c.Config != nil {
			if err := c.Config.Apply(engine.DefaultConfig()).Validate(); err != nil {
				return errors.Wrap(ErrInvalidMessage, "config: "+err.Error())
			}
		}
		return nil
	case UpdateScene:
		if err := checkID("roomId", c.RoomID); err != nil {
			return err
		}
		if err := checkID("playerId", c.PlayerID); err != nil {
			return err
		}
		if !c.Scene.Valid() {
			return invalid("scene", "must be lobby or game")
		}
		return nil
	case StartGame:
		return checkID("roomId", c.RoomID)
	case Input:
		if !c.Turn.Valid() {
			return invalid("turn", "must be -1, 0 or 1")
		}
		return nil
	case LeaveRoom:
		if err := checkID("roomId", c.RoomID); err != nil {
			return err
		}
		return checkID("playerId", c.PlayerID)
	default:
		panic("protocol: unhandled command " + cmd.commandType())
	}
}

func checkID(path, id string) error {
	if len(id) == 0 || len(id) > MaxIDLen {
		return invalid(path, "length must be 1..128")
	}
	return nil
}

func invalid(path, msg string) error {
	return errors.Wrapf(ErrInvalidMessage, "%s: %s", path, msg)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
