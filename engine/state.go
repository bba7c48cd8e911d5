package engine

// Turn 单个 Tick 的转向指令：-1 左转，0 直行，1 右转
type Turn int

const (
	TurnLeft  Turn = -1
	TurnNone  Turn = 0
	TurnRight Turn = 1
)

// Valid 是否为合法指令
func (t Turn) Valid() bool { return t >= TurnLeft && t <= TurnRight }

// Color RGBA 颜色（0..255）
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

// Segment 玩家留下的一段轨迹；IsGap 为缺口，不参与碰撞
type Segment struct {
	X1, Y1  float64 // 起点（上一 Tick 的线头位置）
	X2, Y2  float64 // 终点（当前线头位置）
	OwnerID string
	Color   Color
	IsGap   bool
}

// PlayerState 玩家的物理状态
type PlayerState struct {
	ID           string
	X, Y         float64
	Angle        float64
	Alive        bool
	GapTicksLeft int
	TailSegIndex int // 最近一段轨迹的下标，-1 表示还没有
	Color        Color

	// 最近生成/延长过的自身轨迹段下标（新在后），碰撞时排除
	recent []int
}

// State 一局游戏的权威物理快照
type State struct {
	Tick     int
	Seed     uint32
	RngState uint32
	Players  []PlayerState
	Segments []Segment
	Spatial  *SpatialIndex
}

// StepResult 一次 Step 的结论
type StepResult struct {
	JustFinished  bool     // 本 Tick 后恰好剩一名存活玩家（开始时至少两名）
	WinnerID      string   // JustFinished 时的胜者
	AllEliminated bool     // 本 Tick 后无人存活（开始时至少一名）
	Eliminated    []string // 本 Tick 死亡的玩家，按玩家顺序
}

// Player 按 id 查找玩家，不存在返回 nil
func (s *State) Player(id string) *PlayerState {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}

// AliveCount 存活人数
func (s *State) AliveCount() int {
	n := 0
	for i := range s.Players {
		if s.Players[i].Alive {
			n++
		}
	}
	return n
}

// Eliminate 把玩家标记为死亡（停留在最后位置），返回是否由活变死
func (s *State) Eliminate(id string) bool {
	p := s.Player(id)
	if p == nil || !p.Alive {
		return false
	}
	p.Alive = false
	return true
}

// Clone 深拷贝，包括空间索引
func (s *State) Clone() *State {
	cp := &State{
		Tick:     s.Tick,
		Seed:     s.Seed,
		RngState: s.RngState,
		Players:  make([]PlayerState, len(s.Players)),
		Segments: append([]Segment(nil), s.Segments...),
	}
	for i, p := range s.Players {
		p.recent = append([]int(nil), p.recent...)
		cp.Players[i] = p
	}
	if s.Spatial != nil {
		cp.Spatial = s.Spatial.Clone()
	}
	return cp
}
