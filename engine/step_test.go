package engine

import (
	"math"
	"reflect"
	"testing"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ArenaWidth = 500
	cfg.ArenaHeight = 500
	cfg.Speed = 10
	cfg.TurnRate = 0
	cfg.PlayerRadius = 2
	cfg.GapChance = 0
	return cfg
}

func manualState(cfg Config, players ...PlayerState) *State {
	for i := range players {
		players[i].Alive = true
		players[i].TailSegIndex = -1
	}
	return &State{
		Seed:     12345,
		RngState: 12345,
		Players:  players,
		Spatial:  NewSpatialIndex(cfg.ArenaWidth, cfg.ArenaHeight, cfg.CellSize()),
	}
}

func TestStepCrossingTrailKillsPlayer(t *testing.T) {
	cfg := testConfig()
	s := manualState(cfg,
		PlayerState{ID: "p1", X: 40, Y: 100, Angle: 0},
		PlayerState{ID: "p2", X: 95, Y: 35, Angle: math.Pi / 2},
	)
	inputs := map[string]Turn{"p1": 0, "p2": 0}

	var res StepResult
	for i := 0; i < 10; i++ {
		res = Step(s, inputs, cfg)
		if res.JustFinished {
			break
		}
	}

	if s.Tick > 10 {
		t.Fatalf("tick = %d, want <= 10", s.Tick)
	}
	if !s.Player("p1").Alive {
		t.Fatalf("p1 should survive")
	}
	if s.Player("p2").Alive {
		t.Fatalf("p2 should have crashed into p1's trail")
	}
	if !res.JustFinished || res.WinnerID != "p1" {
		t.Fatalf("result = %+v, want JustFinished with winner p1", res)
	}
	if len(res.Eliminated) != 1 || res.Eliminated[0] != "p2" {
		t.Fatalf("eliminated = %v, want [p2]", res.Eliminated)
	}
}

func TestStepParallelPlayersDoNotCollide(t *testing.T) {
	cfg := testConfig()
	cfg.Speed = 2
	s := manualState(cfg,
		PlayerState{ID: "p1", X: 50, Y: 150},
		PlayerState{ID: "p2", X: 50, Y: 350},
	)
	inputs := map[string]Turn{"p1": 0, "p2": 0}

	for i := 0; i < 100; i++ {
		if res := Step(s, inputs, cfg); res.JustFinished || res.AllEliminated {
			t.Fatalf("unexpected finish at tick %d: %+v", s.Tick, res)
		}
	}
	if s.Tick != 100 {
		t.Fatalf("tick = %d, want 100", s.Tick)
	}
	if !s.Player("p1").Alive || !s.Player("p2").Alive {
		t.Fatalf("both players should be alive")
	}
	// 直行不转向：每名玩家只有一段轨迹
	if len(s.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(s.Segments))
	}
}

func TestStepWallKillsOnExactTick(t *testing.T) {
	cfg := testConfig()
	s := manualState(cfg,
		PlayerState{ID: "p1", X: 475, Y: 100, Angle: 0},
		PlayerState{ID: "p2", X: 50, Y: 300, Angle: 0},
	)
	inputs := map[string]Turn{}

	Step(s, inputs, cfg) // 485
	Step(s, inputs, cfg) // 495
	if !s.Player("p1").Alive {
		t.Fatalf("p1 died before leaving the arena")
	}
	res := Step(s, inputs, cfg) // 505
	p1 := s.Player("p1")
	if p1.Alive {
		t.Fatalf("p1 left the arena (x=%v) but is alive", p1.X)
	}
	if !res.JustFinished || res.WinnerID != "p2" {
		t.Fatalf("result = %+v, want winner p2", res)
	}

	x, y := p1.X, p1.Y
	for i := 0; i < 5; i++ {
		Step(s, inputs, cfg)
	}
	if p1 := s.Player("p1"); p1.X != x || p1.Y != y {
		t.Fatalf("dead player moved from (%v,%v) to (%v,%v)", x, y, p1.X, p1.Y)
	}
}

func TestStepSinglePlayerNeverForcesFinish(t *testing.T) {
	cfg := testConfig()
	s := manualState(cfg, PlayerState{ID: "solo", X: 470, Y: 100})
	for i := 0; i < 4; i++ {
		res := Step(s, nil, cfg)
		if res.JustFinished {
			t.Fatalf("single player game reported JustFinished at tick %d", s.Tick)
		}
	}
	// 撞墙后无人存活
	if s.Player("solo").Alive {
		t.Fatalf("solo should have hit the wall")
	}
}

func TestStepAllEliminated(t *testing.T) {
	cfg := testConfig()
	s := manualState(cfg,
		PlayerState{ID: "p1", X: 495, Y: 100},
		PlayerState{ID: "p2", X: 495, Y: 300},
	)
	res := Step(s, nil, cfg)
	if res.JustFinished {
		t.Fatalf("JustFinished with zero survivors")
	}
	if !res.AllEliminated {
		t.Fatalf("expected AllEliminated, got %+v", res)
	}
	if !reflect.DeepEqual(res.Eliminated, []string{"p1", "p2"}) {
		t.Fatalf("eliminated = %v, want [p1 p2]", res.Eliminated)
	}
}

func TestStepIsDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GapChance = 0.05
	ids := []string{"a", "b", "c", "d"}

	inputsAt := func(tick int) map[string]Turn {
		return map[string]Turn{
			"a": Turn(tick%3 - 1),
			"b": Turn((tick/7)%3 - 1),
			"c": TurnRight,
			"d": Turn((tick/11)%2) * TurnLeft,
		}
	}

	s1 := InitGame(cfg, 1234, ids)
	s2 := InitGame(cfg, 1234, ids)
	if !reflect.DeepEqual(s1, s2) {
		t.Fatalf("InitGame not deterministic")
	}

	for tick := 0; tick < 300; tick++ {
		r1 := Step(s1, inputsAt(tick), cfg)
		r2 := Step(s2, inputsAt(tick), cfg)
		if !reflect.DeepEqual(r1, r2) {
			t.Fatalf("tick %d: results differ: %+v vs %+v", tick, r1, r2)
		}
		if !reflect.DeepEqual(s1.Players, s2.Players) || !reflect.DeepEqual(s1.Segments, s2.Segments) {
			t.Fatalf("tick %d: states diverged", tick)
		}
		if s1.RngState != s2.RngState {
			t.Fatalf("tick %d: rng state diverged", tick)
		}
	}
}

func TestStepCloneContinuesIdentically(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GapChance = 0.1
	s := InitGame(cfg, 99, []string{"a", "b"})
	in := map[string]Turn{"a": TurnLeft, "b": TurnRight}
	for i := 0; i < 20; i++ {
		Step(s, in, cfg)
	}
	cp := s.Clone()
	for i := 0; i < 50; i++ {
		Step(s, in, cfg)
		Step(cp, in, cfg)
	}
	if !reflect.DeepEqual(s.Players, cp.Players) || !reflect.DeepEqual(s.Segments, cp.Segments) {
		t.Fatalf("clone diverged from original")
	}
}

func TestStepSegmentCountGrowsOnlyOnTurnOrGapChange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GapChance = 0.05
	s := InitGame(cfg, 4242, []string{"a"})

	type tailInfo struct {
		turn Turn
		gap  bool
	}
	prev := tailInfo{}
	prevCount := 0
	for tick := 0; tick < 120; tick++ {
		turn := TurnNone
		if (tick/15)%2 == 1 {
			turn = TurnLeft
		}
		Step(s, map[string]Turn{"a": turn}, cfg)
		p := s.Player("a")
		if !p.Alive {
			break
		}
		gap := s.Segments[p.TailSegIndex].IsGap
		count := len(s.Segments)
		if count < prevCount {
			t.Fatalf("tick %d: segment count decreased %d -> %d", tick, prevCount, count)
		}
		if count > prevCount {
			first := prevCount == 0
			if !first && turn == TurnNone && gap == prev.gap {
				t.Fatalf("tick %d: new segment without turn or gap change", tick)
			}
		} else if turn != TurnNone {
			t.Fatalf("tick %d: turning must start a new segment", tick)
		}
		prev = tailInfo{turn: turn, gap: gap}
		prevCount = count
	}
}

func TestStepGapsAreNotCollidable(t *testing.T) {
	cfg := testConfig()
	s := manualState(cfg,
		PlayerState{ID: "p1", X: 40, Y: 100, Angle: 0, GapTicksLeft: 20},
		PlayerState{ID: "p2", X: 95, Y: 35, Angle: math.Pi / 2},
	)
	for i := 0; i < 10; i++ {
		Step(s, nil, cfg)
	}
	if !s.Player("p2").Alive {
		t.Fatalf("p2 crossed a gap and died")
	}
	for _, seg := range s.Segments {
		if seg.OwnerID == "p1" && !seg.IsGap {
			t.Fatalf("p1 produced a solid segment during a gap: %+v", seg)
		}
	}
}

func TestInitGamePlacesPlayersInsideArena(t *testing.T) {
	cfg := DefaultConfig()
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	s := InitGame(cfg, 7, ids)
	if len(s.Players) != len(ids) {
		t.Fatalf("players = %d, want %d", len(s.Players), len(ids))
	}
	colors := map[Color]bool{}
	for i, p := range s.Players {
		if p.ID != ids[i] {
			t.Fatalf("player %d id = %q, want %q", i, p.ID, ids[i])
		}
		if p.X <= 0 || p.X >= cfg.ArenaWidth || p.Y <= 0 || p.Y >= cfg.ArenaHeight {
			t.Fatalf("player %s spawned at (%v,%v), outside the arena", p.ID, p.X, p.Y)
		}
		if !p.Alive || p.TailSegIndex != -1 {
			t.Fatalf("player %s not freshly initialised: %+v", p.ID, p)
		}
		if p.Color.A != 255 {
			t.Fatalf("player %s color alpha = %d", p.ID, p.Color.A)
		}
		colors[p.Color] = true
	}
	if len(colors) != len(ids) {
		t.Fatalf("colors not distinct: %d unique for %d players", len(colors), len(ids))
	}
}

func TestRngZeroSeedStillAdvances(t *testing.T) {
	r := NewRng(0)
	a, b := r.Float64(), r.Float64()
	if a == b {
		t.Fatalf("zero-seeded rng is stuck: %v %v", a, b)
	}
	for i := 0; i < 1000; i++ {
		v := r.IntRange(10, 35)
		if v < 10 || v > 35 {
			t.Fatalf("IntRange out of bounds: %d", v)
		}
	}
}
