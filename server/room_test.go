package server

import (
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"trailarena/engine"
	"trailarena/protocol"
	"trailarena/rating"
)

func fastPatch() *protocol.ConfigPatch {
	return &protocol.ConfigPatch{TickRate: ptr(1000)}
}

func TestStartIsGatedByPhase(t *testing.T) {
	m, store := newTestManager(t)
	sub := newFakeSub("c1", 4096)
	mustJoin(t, m, "gate", "p1", sub, fastPatch())
	r := mustRoom(t, m, "gate")

	// lobby：start 不生效，也不创建定时器
	if err := m.Start("gate"); err != nil {
		t.Fatalf("Start in lobby: %v", err)
	}
	inRoom(t, r, func() {
		if r.phase != protocol.PhaseLobby || r.ticker != nil {
			t.Errorf("lobby start changed room: phase=%s ticker=%v", r.phase, r.ticker != nil)
		}
	})

	if err := m.UpdateScene("gate", "p1", protocol.SceneGame); err != nil {
		t.Fatalf("UpdateScene: %v", err)
	}
	inRoom(t, r, func() {
		if r.phase != protocol.PhaseReady {
			t.Errorf("phase = %s, want ready", r.phase)
		}
	})

	if err := m.Start("gate"); err != nil {
		t.Fatalf("Start in ready: %v", err)
	}
	waitEvent(t, sub, 2*time.Second, isType(protocol.TypeGameStarted))
	waitEvent(t, sub, 2*time.Second, func(ev protocol.Event) bool {
		st, ok := ev.(protocol.State)
		return ok && st.Snapshot.Phase == protocol.PhaseRunning && st.Snapshot.Tick > 0
	})

	// 单人对局最终撞墙：全部出局，最后出局者记为胜者
	fin := waitEvent(t, sub, 5*time.Second, isType(protocol.TypeGameFinished)).(protocol.GameFinished)
	if fin.WinnerID != "p1" {
		t.Fatalf("winner = %q", fin.WinnerID)
	}

	if err := m.Start("gate"); err != nil {
		t.Fatalf("Start in finished: %v", err)
	}
	inRoom(t, r, func() {
		if r.phase != protocol.PhaseFinished || r.ticker != nil {
			t.Errorf("finished start changed room: phase=%s ticker=%v", r.phase, r.ticker != nil)
		}
	})

	m.Wait()
	starts, _, finishes := store.snapshot()
	if len(starts) != 1 || starts[0] != "gate" {
		t.Fatalf("start calls = %v", starts)
	}
	if len(finishes) != 1 || finishes[0].req.Users[0].Rank != 1 {
		t.Fatalf("finish calls = %+v", finishes)
	}
}

func TestEndToEndCollisionFinishesAndSettles(t *testing.T) {
	m, store := newTestManager(t)
	patch := &protocol.ConfigPatch{
		TickRate:     ptr(100),
		ArenaWidth:   ptr(500.0),
		ArenaHeight:  ptr(500.0),
		Speed:        ptr(10.0),
		TurnRate:     ptr(0.0),
		PlayerRadius: ptr(2.0),
		GapChance:    ptr(0.0),
	}
	s1, s2 := newFakeSub("c1", 4096), newFakeSub("c2", 4096)
	mustJoin(t, m, "r1", "p1", s1, patch)
	mustJoin(t, m, "r1", "p2", s2, nil)
	for _, id := range []string{"p1", "p2"} {
		if err := m.UpdateScene("r1", id, protocol.SceneGame); err != nil {
			t.Fatalf("UpdateScene(%s): %v", id, err)
		}
	}

	r := mustRoom(t, m, "r1")
	inRoom(t, r, func() {
		if r.phase != protocol.PhaseReady {
			t.Errorf("phase = %s, want ready", r.phase)
		}
		// 两人处于碰撞路线上：p1 向右，p2 向下穿过 p1 的轨迹
		p1, p2 := r.state.Player("p1"), r.state.Player("p2")
		p1.X, p1.Y, p1.Angle = 40, 100, 0
		p2.X, p2.Y, p2.Angle = 95, 35, math.Pi/2
	})
	for _, id := range []string{"p1", "p2"} {
		if err := m.PushInput("r1", id, engine.TurnNone); err != nil {
			t.Fatalf("PushInput(%s): %v", id, err)
		}
	}

	if err := m.Start("r1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	fin := waitEvent(t, s2, 3*time.Second, isType(protocol.TypeGameFinished)).(protocol.GameFinished)
	if fin.WinnerID != "p1" || fin.RoomID != "r1" {
		t.Fatalf("game_finished = %+v", fin)
	}

	snap, err := m.Snapshot("r1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Phase != protocol.PhaseFinished || snap.Tick > 10 {
		t.Fatalf("phase=%s tick=%d", snap.Phase, snap.Tick)
	}
	alive := map[string]bool{}
	for _, p := range snap.Players {
		alive[p.ID] = p.Alive
	}
	if !alive["p1"] || alive["p2"] {
		t.Fatalf("alive = %v", alive)
	}

	m.Wait()
	_, _, finishes := store.snapshot()
	if len(finishes) != 1 {
		t.Fatalf("finish calls = %d, want 1", len(finishes))
	}
	users := finishes[0].req.Users
	if finishes[0].roomID != "r1" || len(users) != 2 {
		t.Fatalf("finish = %+v", finishes[0])
	}
	if users[0].UserID != "p1" || users[0].Rank != 1 || users[1].UserID != "p2" || users[1].Rank != 2 {
		t.Fatalf("ranks = %+v", users)
	}
	if users[0].RatingMean <= users[1].RatingMean {
		t.Fatalf("winner mean %v not above loser %v", users[0].RatingMean, users[1].RatingMean)
	}
	if users[0].RatingUncertainty >= rating.DefaultSigma {
		t.Fatalf("uncertainty did not shrink: %v", users[0].RatingUncertainty)
	}

	// finished 房间不再接受加入
	if err := m.CreateOrJoin(joinReq("r1", "p3", nil), newFakeSub("c3", 8)); !errors.Is(err, ErrRoomFinished) {
		t.Fatalf("join finished room: err = %v", err)
	}
}

func TestSimultaneousEliminationRanksByRoster(t *testing.T) {
	m, store := newTestManager(t)
	patch := &protocol.ConfigPatch{
		TickRate:    ptr(100),
		ArenaWidth:  ptr(500.0),
		ArenaHeight: ptr(500.0),
		Speed:       ptr(10.0),
		TurnRate:    ptr(0.0),
		GapChance:   ptr(0.0),
	}
	s1, s2 := newFakeSub("c1", 4096), newFakeSub("c2", 4096)
	mustJoin(t, m, "t1", "p1", s1, patch)
	mustJoin(t, m, "t1", "p2", s2, nil)
	for _, id := range []string{"p1", "p2"} {
		if err := m.UpdateScene("t1", id, protocol.SceneGame); err != nil {
			t.Fatalf("UpdateScene(%s): %v", id, err)
		}
	}
	r := mustRoom(t, m, "t1")
	inRoom(t, r, func() {
		// 两人都朝右墙，下一个 Tick 同时出局
		p1, p2 := r.state.Player("p1"), r.state.Player("p2")
		p1.X, p1.Y, p1.Angle = 495, 100, 0
		p2.X, p2.Y, p2.Angle = 495, 300, 0
	})
	if err := m.Start("t1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	fin := waitEvent(t, s1, 3*time.Second, isType(protocol.TypeGameFinished)).(protocol.GameFinished)
	if fin.WinnerID != "p2" {
		t.Fatalf("winner = %q, want the last player in roster order", fin.WinnerID)
	}
	m.Wait()
	_, _, finishes := store.snapshot()
	if len(finishes) != 1 {
		t.Fatalf("finish calls = %d", len(finishes))
	}
	users := finishes[0].req.Users
	if len(users) != 2 || users[0].UserID != "p2" || users[0].Rank != 1 || users[1].UserID != "p1" || users[1].Rank != 2 {
		t.Fatalf("ranks = %+v", users)
	}
}

func TestJoinRules(t *testing.T) {
	m, _ := newTestManager(t)
	s1 := newFakeSub("c1", 4096)
	mustJoin(t, m, "j", "p1", s1, &protocol.ConfigPatch{TickRate: ptr(1)})
	mustJoin(t, m, "j", "p2", newFakeSub("c2", 4096), nil)
	r := mustRoom(t, m, "j")

	inRoom(t, r, func() {
		if r.hostID != "p1" || len(r.players) != 2 || len(r.state.Players) != 2 {
			t.Errorf("host=%s players=%d sim=%d", r.hostID, len(r.players), len(r.state.Players))
		}
	})

	// 重新加入：刷新评分，重新绑定连接，旧连接被关闭，不重置模拟
	inRoom(t, r, func() { r.state.Tick = 42 })
	rejoin := joinReq("j", "p1", nil)
	rejoin.Player.RatingMu = ptr(30.0)
	s1b := newFakeSub("c1b", 4096)
	if err := m.CreateOrJoin(rejoin, s1b); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if !s1.isClosed() {
		t.Fatalf("old connection not closed on rebind")
	}
	inRoom(t, r, func() {
		if r.state.Tick != 42 {
			t.Errorf("rejoin reset the simulation")
		}
		if r.players[0].Mu != 30 {
			t.Errorf("rating snapshot not refreshed: %+v", r.players[0])
		}
	})

	for _, id := range []string{"p1", "p2"} {
		if err := m.UpdateScene("j", id, protocol.SceneGame); err != nil {
			t.Fatalf("UpdateScene: %v", err)
		}
	}
	if err := m.CreateOrJoin(joinReq("j", "p3", nil), newFakeSub("c3", 8)); !errors.Is(err, ErrNotInLobby) {
		t.Fatalf("new player after lobby: err = %v", err)
	}

	if err := m.UpdateScene("j", "ghost", protocol.SceneGame); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("unknown player scene: err = %v", err)
	}
	if err := m.PushInput("j", "ghost", engine.TurnLeft); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("unknown player input: err = %v", err)
	}
	if err := m.Start("nope"); !errors.Is(err, ErrUnknownRoom) {
		t.Fatalf("unknown room: err = %v", err)
	}
}

func TestLobbyLeavePromotesHostAndClosesEmptyRoom(t *testing.T) {
	m, store := newTestManager(t)
	s2 := newFakeSub("c2", 4096)
	mustJoin(t, m, "l", "p1", newFakeSub("c1", 4096), &protocol.ConfigPatch{TickRate: ptr(1)})
	mustJoin(t, m, "l", "p2", s2, nil)
	mustJoin(t, m, "l", "p3", newFakeSub("c3", 4096), nil)
	r := mustRoom(t, m, "l")

	if err := m.Leave("l", "p1"); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	left := waitEvent(t, s2, time.Second, isType(protocol.TypeLeft)).(protocol.Left)
	if left.PlayerID != "p1" {
		t.Fatalf("left = %+v", left)
	}
	inRoom(t, r, func() {
		if r.hostID != "p2" {
			t.Errorf("host = %s, want p2", r.hostID)
		}
		if len(r.state.Players) != 2 || r.state.Players[0].ID != "p2" {
			t.Errorf("simulation not reset for new roster: %+v", r.state.Players)
		}
	})

	// 剩下的人都已在 game 场景：离开后房间直接 ready
	if err := m.UpdateScene("l", "p2", protocol.SceneGame); err != nil {
		t.Fatalf("UpdateScene: %v", err)
	}
	if err := m.Leave("l", "p3"); err != nil {
		t.Fatalf("Leave p3: %v", err)
	}
	inRoom(t, r, func() {
		if r.phase != protocol.PhaseReady {
			t.Errorf("phase = %s, want ready", r.phase)
		}
	})

	if err := m.Leave("l", "p2"); err != nil {
		t.Fatalf("Leave p2: %v", err)
	}
	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatalf("empty room did not stop")
	}
	if _, err := m.Get("l"); !errors.Is(err, ErrUnknownRoom) {
		t.Fatalf("empty room still registered: %v", err)
	}

	m.Wait()
	if _, leaves, finishes := store.snapshot(); len(leaves) != 0 || len(finishes) != 0 {
		t.Fatalf("lobby leaves must not reach the backend: %v %v", leaves, finishes)
	}
}

func TestDisconnectOnlyCountsForBoundConnection(t *testing.T) {
	m, _ := newTestManager(t)
	old := newFakeSub("old", 4096)
	mustJoin(t, m, "d", "p1", old, nil)
	mustJoin(t, m, "d", "p2", newFakeSub("c2", 4096), nil)
	cur := newFakeSub("new", 4096)
	mustJoin(t, m, "d", "p1", cur, nil)
	r := mustRoom(t, m, "d")

	m.Disconnect("d", "p1", old)
	inRoom(t, r, func() {
		if r.indexOf("p1") < 0 {
			t.Errorf("stale disconnect removed the player")
		}
	})

	m.Disconnect("d", "p1", cur)
	inRoom(t, r, func() {
		if r.indexOf("p1") >= 0 {
			t.Errorf("disconnect of bound connection did not remove the player")
		}
	})
}

func TestMidMatchLeavesFinishByAttrition(t *testing.T) {
	m, store := newTestManager(t)
	subs := map[string]*fakeSub{}
	for i, id := range []string{"p1", "p2", "p3"} {
		subs[id] = newFakeSub(id, 4096)
		var patch *protocol.ConfigPatch
		if i == 0 {
			// 1 TPS：测试期间不会推进
			patch = &protocol.ConfigPatch{TickRate: ptr(1)}
		}
		mustJoin(t, m, "a", id, subs[id], patch)
	}
	for _, id := range []string{"p1", "p2", "p3"} {
		if err := m.UpdateScene("a", id, protocol.SceneGame); err != nil {
			t.Fatalf("UpdateScene: %v", err)
		}
	}
	if err := m.Start("a"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := m.Leave("a", "p3"); err != nil {
		t.Fatalf("Leave p3: %v", err)
	}
	r := mustRoom(t, m, "a")
	inRoom(t, r, func() {
		if r.phase != protocol.PhaseRunning {
			t.Errorf("phase = %s, want running", r.phase)
		}
		if p := r.state.Player("p3"); p == nil || p.Alive {
			t.Errorf("leaver not eliminated in place: %+v", p)
		}
	})

	if err := m.Leave("a", "p2"); err != nil {
		t.Fatalf("Leave p2: %v", err)
	}
	fin := waitEvent(t, subs["p1"], time.Second, isType(protocol.TypeGameFinished)).(protocol.GameFinished)
	if fin.WinnerID != "p1" {
		t.Fatalf("winner = %s", fin.WinnerID)
	}

	m.Wait()
	_, leaves, finishes := store.snapshot()
	if len(leaves) != 2 || leaves[0] != "a/p3" || leaves[1] != "a/p2" {
		t.Fatalf("leave calls = %v", leaves)
	}
	if len(finishes) != 1 {
		t.Fatalf("finish calls = %d", len(finishes))
	}
	want := []struct {
		id   string
		rank int
	}{{"p1", 1}, {"p2", 2}, {"p3", 3}}
	for i, w := range want {
		u := finishes[0].req.Users[i]
		if u.UserID != w.id || u.Rank != w.rank {
			t.Fatalf("user %d = %+v, want %s rank %d", i, u, w.id, w.rank)
		}
	}
}

type failingRater struct{}

func (failingRater) Rate([]rating.Player, []string) ([]rating.Result, error) {
	return nil, rating.ErrUnknownPlayer
}

func TestSettlementFailureSkipsBackend(t *testing.T) {
	m, store := newTestManager(t, WithRater(failingRater{}))
	s1 := newFakeSub("c1", 4096)
	mustJoin(t, m, "f", "p1", s1, &protocol.ConfigPatch{TickRate: ptr(1)})
	mustJoin(t, m, "f", "p2", newFakeSub("c2", 4096), nil)
	for _, id := range []string{"p1", "p2"} {
		if err := m.UpdateScene("f", id, protocol.SceneGame); err != nil {
			t.Fatalf("UpdateScene: %v", err)
		}
	}
	if err := m.Start("f"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Leave("f", "p2"); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	waitEvent(t, s1, time.Second, isType(protocol.TypeGameFinished))

	m.Wait()
	if _, _, finishes := store.snapshot(); len(finishes) != 0 {
		t.Fatalf("backend called after failed settlement: %+v", finishes)
	}
	r := mustRoom(t, m, "f")
	if n := atomic.LoadInt64(&r.Metrics().SettleFailures); n != 1 {
		t.Fatalf("settle failures = %d", n)
	}
}

func TestSlowSubscriberDoesNotBlockRoom(t *testing.T) {
	m, _ := newTestManager(t)
	slow := newFakeSub("slow", 1)
	mustJoin(t, m, "s", "p1", slow, &protocol.ConfigPatch{TickRate: ptr(1)})
	for _, id := range []string{"p2", "p3", "p4"} {
		mustJoin(t, m, "s", id, newFakeSub(id, 4096), nil)
	}
	r := mustRoom(t, m, "s")
	if n := atomic.LoadInt64(&r.Metrics().SendsDropped); n == 0 {
		t.Fatalf("expected dropped sends for a full queue")
	}
}

func TestCloseRoomNotifiesSubscribers(t *testing.T) {
	m, _ := newTestManager(t)
	s1 := newFakeSub("c1", 4096)
	mustJoin(t, m, "c", "p1", s1, nil)
	if err := m.CloseRoom("c", "maintenance"); err != nil {
		t.Fatalf("CloseRoom: %v", err)
	}
	ev := waitEvent(t, s1, time.Second, isType(protocol.TypeRoomClosed)).(protocol.RoomClosed)
	if ev.Reason != "maintenance" {
		t.Fatalf("reason = %q", ev.Reason)
	}
	if err := m.PushInput("c", "p1", engine.TurnLeft); !errors.Is(err, ErrUnknownRoom) {
		t.Fatalf("input after close: err = %v", err)
	}
}
