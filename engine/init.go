package engine

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// InitGame 创建一局新游戏：播种随机数，按确定性规则放置玩家并分配颜色，空的空间索引
func InitGame(cfg Config, seed uint32, playerIDs []string) *State {
	rng := NewRng(seed)

	n := len(playerIDs)
	players := make([]PlayerState, 0, n)

	// 玩家均匀分布在以场地中心为圆心的圆环上，沿切线方向出发（逆时针），
	// 再叠加 ±SpawnAngle 的随机抖动
	cx, cy := cfg.ArenaWidth/2, cfg.ArenaHeight/2
	ring := math.Min(cfg.ArenaWidth, cfg.ArenaHeight)/2 - cfg.SpawnPadding
	if ring < 0 {
		ring = 0
	}
	phase := rng.Float64() * 2 * math.Pi

	for i, id := range playerIDs {
		a := phase + 2*math.Pi*float64(i)/float64(n)
		jitter := (rng.Float64()*2 - 1) * cfg.SpawnAngle
		players = append(players, PlayerState{
			ID:           id,
			X:            cx + math.Cos(a)*ring,
			Y:            cy + math.Sin(a)*ring,
			Angle:        normalizeAngle(a + math.Pi/2 + jitter),
			Alive:        true,
			TailSegIndex: -1,
			Color:        playerColor(i, n),
		})
	}

	return &State{
		Tick:     0,
		Seed:     seed,
		RngState: rng.State(),
		Players:  players,
		Segments: []Segment{},
		Spatial:  NewSpatialIndex(cfg.ArenaWidth, cfg.ArenaHeight, cfg.CellSize()),
	}
}

// playerColor 色相均匀旋转
func playerColor(i, n int) Color {
	if n <= 0 {
		n = 1
	}
	hue := 360 * float64(i) / float64(n)
	r, g, b := colorful.Hsv(hue, 0.85, 1).RGB255()
	return Color{R: r, G: g, B: b, A: 255}
}

func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}
