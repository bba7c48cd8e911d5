package protocol

import (
	"math"

	"trailarena/engine"
)

// Phase 房间阶段
type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseReady    Phase = "ready"
	PhaseRunning  Phase = "running"
	PhaseFinished Phase = "finished"
)

// Valid 是否为已知阶段
func (p Phase) Valid() bool {
	switch p {
	case PhaseLobby, PhaseReady, PhaseRunning, PhaseFinished:
		return true
	}
	return false
}

// Scene 玩家客户端所在的场景
type Scene string

const (
	SceneLobby Scene = "lobby"
	SceneGame  Scene = "game"
)

// Valid 是否为已知场景
func (s Scene) Valid() bool { return s == SceneLobby || s == SceneGame }

// PlayerView 快照中的玩家
type PlayerView struct {
	ID           string       `json:"id"`
	X            float64      `json:"x"`
	Y            float64      `json:"y"`
	Angle        float64      `json:"angle"`
	Alive        bool         `json:"alive"`
	GapTicksLeft int          `json:"gapTicksLeft"`
	TailSegIndex int          `json:"tailSegIndex"`
	Color        engine.Color `json:"color"`
}

// SegmentView 快照中的轨迹段
type SegmentView struct {
	X1      float64      `json:"x1"`
	Y1      float64      `json:"y1"`
	X2      float64      `json:"x2"`
	Y2      float64      `json:"y2"`
	OwnerID string       `json:"ownerId"`
	Color   engine.Color `json:"color"`
	IsGap   bool         `json:"isGap"`
}

// Snapshot 每个 Tick 广播的完整房间状态
type Snapshot struct {
	Phase     Phase            `json:"phase" jsonschema:"enum=lobby,enum=ready,enum=running,enum=finished"`
	Tick      int              `json:"tick"`
	Seed      uint32           `json:"seed"`
	RngState  *uint32          `json:"rngState,omitempty"`
	HostID    string           `json:"hostId"`
	PlayerIDs []string         `json:"playerIds"`
	SceneByID map[string]Scene `json:"sceneById"`
	Players   []PlayerView     `json:"players"`
	Segments  []SegmentView    `json:"segments"`
	RoomID    string           `json:"roomId"`
}

// FillState 用物理状态填充 tick / 随机数 / 玩家 / 轨迹字段
func (s *Snapshot) FillState(st *engine.State) {
	s.Players = make([]PlayerView, 0, len(st.Players))
	s.Segments = make([]SegmentView, 0, len(st.Segments))
	s.Tick = st.Tick
	s.Seed = st.Seed
	rng := st.RngState
	s.RngState = &rng

	for _, p := range st.Players {
		s.Players = append(s.Players, PlayerView{
			ID:           p.ID,
			X:            finiteOrZero(p.X),
			Y:            finiteOrZero(p.Y),
			Angle:        finiteOrZero(p.Angle),
			Alive:        p.Alive,
			GapTicksLeft: p.GapTicksLeft,
			TailSegIndex: p.TailSegIndex,
			Color:        p.Color,
		})
	}
	for _, seg := range st.Segments {
		s.Segments = append(s.Segments, SegmentView{
			X1: seg.X1, Y1: seg.Y1, X2: seg.X2, Y2: seg.Y2,
			OwnerID: seg.OwnerID,
			Color:   seg.Color,
			IsGap:   seg.IsGap,
		})
	}
}

// Validate 出站前校验
func (s *Snapshot) Validate() error {
	if err := checkID("snapshot.roomId", s.RoomID); err != nil {
		return err
	}
	if !s.Phase.Valid() {
		return invalid("snapshot.phase", "unknown phase "+string(s.Phase))
	}
	if s.Tick < 0 {
		return invalid("snapshot.tick", "must not be negative")
	}
	if len(s.PlayerIDs) > 0 {
		if err := checkID("snapshot.hostId", s.HostID); err != nil {
			return err
		}
	}
	for _, id := range s.PlayerIDs {
		sc, ok := s.SceneByID[id]
		if !ok {
			return invalid("snapshot.sceneById", "missing player "+id)
		}
		if !sc.Valid() {
			return invalid("snapshot.sceneById", "bad scene for "+id)
		}
	}
	for _, p := range s.Players {
		if err := checkID("snapshot.players.id", p.ID); err != nil {
			return err
		}
	}
	for _, seg := range s.Segments {
		if !finite(seg.X1) || !finite(seg.Y1) || !finite(seg.X2) || !finite(seg.Y2) {
			return invalid("snapshot.segments", "non-finite coordinate")
		}
	}
	return nil
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
