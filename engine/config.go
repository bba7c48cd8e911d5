package engine

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// Config 单局游戏的物理参数，房间创建后不可变
type Config struct {
	TickRate int `json:"tickRate"`

	ArenaWidth  float64 `json:"arenaWidth"`
	ArenaHeight float64 `json:"arenaHeight"`

	// 移动
	Speed        float64 `json:"speed"`        // 每 Tick 前进距离
	TurnRate     float64 `json:"turnRate"`     // 每 Tick 转向弧度
	PlayerRadius float64 `json:"playerRadius"` // 玩家（线头）半径

	// 轨迹缺口
	GapChance   float64 `json:"gapChance"` // 每 Tick 开启缺口的概率 (0..1)
	GapMinTicks int     `json:"gapMinTicks"`
	GapMaxTicks int     `json:"gapMaxTicks"`

	// 出生
	SpawnPadding float64 `json:"spawnPadding"` // 距离墙壁的最小距离
	SpawnAngle   float64 `json:"spawnAngle"`   // 出生朝向随机抖动（±弧度）

	// 有效碰撞半径 = PlayerRadius * CollisionRadiusMul（两条轨迹相碰的余量）
	CollisionRadiusMul float64 `json:"collisionRadiusMul"`
}

// 空间网格的规模上限：每边最多 MaxGridCells 个单元，
// 每 Tick 的移动距离与有效碰撞半径最多跨越 MaxStepCells 个单元
const (
	MaxGridCells = 1024
	MaxStepCells = 16
)

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		TickRate: 60,

		ArenaWidth:  1200,
		ArenaHeight: 800,

		Speed:        4.0,
		TurnRate:     0.08,
		PlayerRadius: 4,

		GapChance:   0.007,
		GapMinTicks: 10,
		GapMaxTicks: 35,

		SpawnPadding: 60,
		SpawnAngle:   0.35,

		CollisionRadiusMul: 2,
	}
}

// Validate 校验参数是否可用于模拟
func (c Config) Validate() error {
	floats := []struct {
		name string
		v    float64
	}{
		{"arenaWidth", c.ArenaWidth},
		{"arenaHeight", c.ArenaHeight},
		{"speed", c.Speed},
		{"turnRate", c.TurnRate},
		{"playerRadius", c.PlayerRadius},
		{"gapChance", c.GapChance},
		{"spawnPadding", c.SpawnPadding},
		{"spawnAngle", c.SpawnAngle},
		{"collisionRadiusMul", c.CollisionRadiusMul},
	}
	for _, f := range floats {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return errors.Errorf("invalid config: %s is %v", f.name, f.v)
		}
		if f.v < 0 {
			return errors.Errorf("invalid config: %s must not be negative, got %v", f.name, f.v)
		}
	}
	if c.TickRate <= 0 || c.TickRate > 1000 {
		return errors.Errorf("invalid config: tickRate must be in 1..1000, got %d", c.TickRate)
	}
	if c.ArenaWidth == 0 || c.ArenaHeight == 0 {
		return errors.New("invalid config: arena must have a positive size")
	}
	if c.PlayerRadius == 0 {
		return errors.New("invalid config: playerRadius must be positive")
	}
	cell := c.CellSize()
	if c.ArenaWidth/cell > MaxGridCells || c.ArenaHeight/cell > MaxGridCells {
		return errors.Errorf("invalid config: playerRadius %v is too small for a %vx%v arena (at most %d grid cells per side)",
			c.PlayerRadius, c.ArenaWidth, c.ArenaHeight, MaxGridCells)
	}
	if c.Speed/cell > MaxStepCells {
		return errors.Errorf("invalid config: speed %v is too large for playerRadius %v", c.Speed, c.PlayerRadius)
	}
	if c.EffectiveRadius()/cell > MaxStepCells {
		return errors.Errorf("invalid config: collisionRadiusMul %v is too large", c.CollisionRadiusMul)
	}
	if c.GapChance > 1 {
		return errors.Errorf("invalid config: gapChance must be in [0,1], got %v", c.GapChance)
	}
	if c.GapMinTicks < 1 || c.GapMaxTicks < c.GapMinTicks {
		return errors.Errorf("invalid config: gap range [%d,%d] is empty", c.GapMinTicks, c.GapMaxTicks)
	}
	return nil
}

// CellSize 空间网格单元边长
func (c Config) CellSize() float64 { return c.PlayerRadius * 4 }

// EffectiveRadius 碰撞检测使用的半径
func (c Config) EffectiveRadius() float64 {
	mul := c.CollisionRadiusMul
	if mul <= 0 {
		mul = 1
	}
	return c.PlayerRadius * mul
}

// TickInterval 每个 Tick 的时长（1s / tickRate）
func (c Config) TickInterval() time.Duration {
	if c.TickRate <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(c.TickRate)
}
