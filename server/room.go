package server

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trailarena/backend"
	"trailarena/engine"
	"trailarena/protocol"
	"trailarena/rating"
)

// 房间命令：全部在房间协程中执行，reply 带缓冲
type (
	joinCmd struct {
		player Player
		sub    Subscriber
		reply  chan error
	}
	sceneCmd struct {
		playerID string
		scene    protocol.Scene
		reply    chan error
	}
	startCmd struct {
		reply chan error
	}
	inputCmd struct {
		playerID string
		turn     engine.Turn
		reply    chan error
	}
	leaveCmd struct {
		playerID string
		sub      Subscriber // 非 nil 表示断线，只有当前绑定的连接才算数
		reply    chan error
	}
	closeCmd struct {
		reason string
		reply  chan error
	}
	rosterCmd struct {
		players  []Player
		observer Subscriber
		reply    chan error
	}
	unobserveCmd struct {
		sub   Subscriber
		reply chan error
	}
	execCmd struct {
		fn    func()
		reply chan error
	}
)

// RoomInfo 房间概要（管理接口）
type RoomInfo struct {
	ID      string         `json:"id"`
	Phase   protocol.Phase `json:"phase"`
	Tick    int            `json:"tick"`
	Players []string       `json:"players"`
	HostID  string         `json:"hostId"`
}

// roomDeps 房间依赖，由 RoomManager 注入
type roomDeps struct {
	rater   rating.Rater
	store   backend.Store
	async   func(r *Room, name string, fn func(ctx context.Context) error)
	onClose func(r *Room)
}

// Room 一个对局房间：所有状态只在 Run 协程中读写
type Room struct {
	ID      string
	cfg     engine.Config
	seed    uint32
	log     *zap.SugaredLogger
	metrics *RoomMetrics
	deps    roomDeps

	inbox chan any
	done  chan struct{}

	phase        protocol.Phase
	hostID       string
	players      []Player
	scenes       map[string]protocol.Scene
	inputs       map[string]engine.Turn
	finishOrder  []string
	participants []rating.Player
	subs         map[string]Subscriber
	observers    map[string]Subscriber // 内部通道连接，按连接 id
	state        *engine.State
	winnerID     string
	settled      bool
	closed       bool

	ticker *time.Ticker
	tickC  <-chan time.Time

	// 后端调用队列，由 RoomManager 的工作协程消费
	backend backendQueue
}

func newRoom(id string, cfg engine.Config, seed uint32, deps roomDeps) *Room {
	r := &Room{
		ID:        id,
		cfg:       cfg,
		seed:      seed,
		log:       Log.With("room", id),
		metrics:   &RoomMetrics{},
		deps:      deps,
		inbox:     make(chan any, 256), // 足够缓冲，避免网络读阻塞影响 Tick
		done:      make(chan struct{}),
		phase:     protocol.PhaseLobby,
		scenes:    make(map[string]protocol.Scene),
		inputs:    make(map[string]engine.Turn),
		subs:      make(map[string]Subscriber),
		observers: make(map[string]Subscriber),
	}
	r.resetSimulation()
	return r
}

// Config 房间的物理参数（创建后不可变）
func (r *Room) Config() engine.Config { return r.cfg }

// Metrics 房间指标
func (r *Room) Metrics() *RoomMetrics { return r.metrics }

// Done 房间协程退出后关闭
func (r *Room) Done() <-chan struct{} { return r.done }

// Run 房间主循环：命令与 Tick 在同一个协程中串行处理
func (r *Room) Run() {
	defer close(r.done)
	defer r.stopTicker()
	for !r.closed {
		select {
		case cmd := <-r.inbox:
			r.handle(cmd)
		case <-r.tickC:
			r.onTick()
		}
	}
}

func (r *Room) handle(cmd any) {
	switch c := cmd.(type) {
	case joinCmd:
		c.reply <- r.join(c.player, c.sub)
	case sceneCmd:
		c.reply <- r.updateScene(c.playerID, c.scene)
	case startCmd:
		r.start()
		c.reply <- nil
	case inputCmd:
		c.reply <- r.pushInput(c.playerID, c.turn)
	case leaveCmd:
		c.reply <- r.leave(c.playerID, c.sub)
	case closeCmd:
		r.close(c.reason)
		c.reply <- nil
	case rosterCmd:
		c.reply <- r.admit(c.players, c.observer)
	case unobserveCmd:
		delete(r.observers, c.sub.ID())
		c.reply <- nil
	case execCmd:
		c.fn()
		c.reply <- nil
	default:
		panic(errors.Errorf("room: unhandled command %T", cmd))
	}
}

// call 把命令投递到房间协程并等待结果；房间已关闭时返回 ErrRoomClosed
func (r *Room) call(cmd any, reply chan error) error {
	select {
	case r.inbox <- cmd:
	case <-r.done:
		return errors.WithStack(ErrRoomClosed)
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		// 命令可能在房间退出前刚好处理完
		select {
		case err := <-reply:
			return err
		default:
			return errors.WithStack(ErrRoomClosed)
		}
	}
}

// Join 加入或重新绑定玩家
func (r *Room) Join(p Player, sub Subscriber) error {
	reply := make(chan error, 1)
	return r.call(joinCmd{player: p, sub: sub, reply: reply}, reply)
}

// UpdateScene 更新玩家所在场景
func (r *Room) UpdateScene(playerID string, scene protocol.Scene) error {
	reply := make(chan error, 1)
	return r.call(sceneCmd{playerID: playerID, scene: scene, reply: reply}, reply)
}

// Start 开始对局；不在 ready 阶段时什么也不做
func (r *Room) Start() error {
	reply := make(chan error, 1)
	return r.call(startCmd{reply: reply}, reply)
}

// PushInput 记录玩家最新的转向指令，下一个 Tick 生效
func (r *Room) PushInput(playerID string, turn engine.Turn) error {
	reply := make(chan error, 1)
	return r.call(inputCmd{playerID: playerID, turn: turn, reply: reply}, reply)
}

// Leave 玩家主动离开
func (r *Room) Leave(playerID string) error {
	reply := make(chan error, 1)
	return r.call(leaveCmd{playerID: playerID, reply: reply}, reply)
}

// Disconnect 连接断开；sub 不是该玩家当前绑定的连接时忽略
func (r *Room) Disconnect(playerID string, sub Subscriber) error {
	reply := make(chan error, 1)
	return r.call(leaveCmd{playerID: playerID, sub: sub, reply: reply}, reply)
}

// Close 关闭房间并通知所有订阅者
func (r *Room) Close(reason string) error {
	reply := make(chan error, 1)
	return r.call(closeCmd{reason: reason, reply: reply}, reply)
}

// Admit 把名单中的玩家加入房间（尚未绑定连接），并让 observer 接收房间事件
func (r *Room) Admit(players []Player, observer Subscriber) error {
	reply := make(chan error, 1)
	return r.call(rosterCmd{players: players, observer: observer, reply: reply}, reply)
}

// Unobserve 停止向 sub 发送房间事件
func (r *Room) Unobserve(sub Subscriber) error {
	reply := make(chan error, 1)
	return r.call(unobserveCmd{sub: sub, reply: reply}, reply)
}

// exec 在房间协程中执行 fn（只读查询与测试使用）
func (r *Room) exec(fn func()) error {
	reply := make(chan error, 1)
	return r.call(execCmd{fn: fn, reply: reply}, reply)
}

// Snapshot 当前房间快照
func (r *Room) Snapshot() (*protocol.Snapshot, error) {
	var s *protocol.Snapshot
	err := r.exec(func() { s = r.snapshot() })
	return s, err
}

// Info 房间概要
func (r *Room) Info() (RoomInfo, error) {
	var info RoomInfo
	err := r.exec(func() {
		info = RoomInfo{
			ID:      r.ID,
			Phase:   r.phase,
			Tick:    r.state.Tick,
			Players: r.playerIDs(),
			HostID:  r.hostID,
		}
	})
	return info, err
}

func (r *Room) join(p Player, sub Subscriber) error {
	if r.phase == protocol.PhaseFinished {
		return errors.Wrapf(ErrRoomFinished, "room %s", r.ID)
	}

	if i := r.indexOf(p.ID); i >= 0 {
		// 重新加入：刷新评分快照并重新绑定连接，不重置模拟
		r.players[i].Mu, r.players[i].Sigma = p.Mu, p.Sigma
		r.bind(p.ID, sub)
		r.log.Infow("player rejoined", "player", p.ID, "conn", subID(sub))
	} else {
		if r.phase != protocol.PhaseLobby {
			return errors.Wrapf(ErrNotInLobby, "room %s is %s", r.ID, r.phase)
		}
		r.players = append(r.players, p)
		r.scenes[p.ID] = protocol.SceneLobby
		r.inputs[p.ID] = engine.TurnNone
		if r.hostID == "" {
			r.hostID = p.ID
		}
		r.bind(p.ID, sub)
		// 名单变化：所有人从头开始
		r.resetSimulation()
		r.log.Infow("player joined", "player", p.ID, "players", len(r.players), "conn", subID(sub))
	}

	r.broadcast(protocol.Joined{RoomID: r.ID, PlayerID: p.ID})
	r.broadcastState()
	return nil
}

func (r *Room) admit(players []Player, observer Subscriber) error {
	if observer != nil {
		r.observers[observer.ID()] = observer
	}
	for _, p := range players {
		if err := r.join(p, nil); err != nil {
			return err
		}
	}
	return nil
}

func (r *Room) updateScene(playerID string, scene protocol.Scene) error {
	if r.indexOf(playerID) < 0 {
		return errors.Wrapf(ErrUnknownPlayer, "player %s in room %s", playerID, r.ID)
	}
	r.scenes[playerID] = scene

	if r.phase == protocol.PhaseLobby && r.allInGame() {
		r.phase = protocol.PhaseReady
		r.log.Infow("room ready", "players", len(r.players))
	}
	r.broadcastState()
	return nil
}

func (r *Room) allInGame() bool {
	if len(r.players) == 0 {
		return false
	}
	for _, p := range r.players {
		if r.scenes[p.ID] != protocol.SceneGame {
			return false
		}
	}
	return true
}

func (r *Room) start() {
	if r.phase != protocol.PhaseReady {
		r.log.Debugw("start ignored", "phase", r.phase)
		return
	}
	r.phase = protocol.PhaseRunning
	r.participants = make([]rating.Player, 0, len(r.players))
	for _, p := range r.players {
		r.participants = append(r.participants, p.rating())
	}
	r.startTicker()
	r.log.Infow("game started", "players", len(r.players), "seed", r.seed, "tick_interval", r.cfg.TickInterval())

	r.broadcast(protocol.GameStarted{RoomID: r.ID})
	r.broadcastState()

	roomID := r.ID
	r.deps.async(r, "start", func(ctx context.Context) error {
		return r.deps.store.StartGame(ctx, roomID)
	})
}

func (r *Room) pushInput(playerID string, turn engine.Turn) error {
	if _, ok := r.inputs[playerID]; !ok {
		return errors.Wrapf(ErrUnknownPlayer, "player %s in room %s", playerID, r.ID)
	}
	r.inputs[playerID] = turn
	r.metrics.IncAccepted()
	return nil
}

func (r *Room) leave(playerID string, sub Subscriber) error {
	i := r.indexOf(playerID)
	if i < 0 {
		if sub != nil {
			return nil
		}
		return errors.Wrapf(ErrUnknownPlayer, "player %s in room %s", playerID, r.ID)
	}
	if sub != nil {
		if cur, ok := r.subs[playerID]; !ok || cur.ID() != sub.ID() {
			// 旧连接的断线，玩家已经换了连接
			return nil
		}
	}

	scene := r.scenes[playerID]
	r.broadcast(protocol.Left{RoomID: r.ID, PlayerID: playerID})

	r.players = append(r.players[:i:i], r.players[i+1:]...)
	delete(r.scenes, playerID)
	delete(r.inputs, playerID)
	delete(r.subs, playerID)
	if r.hostID == playerID {
		r.hostID = ""
		if len(r.players) > 0 {
			r.hostID = r.players[0].ID
		}
	}

	switch r.phase {
	case protocol.PhaseRunning:
		// 对局中离开：停在最后位置出局，计入淘汰顺序
		if r.state.Eliminate(playerID) {
			r.metrics.AddEliminated(1)
		}
		r.appendFinish(playerID)
		r.log.Infow("player left mid-match", "player", playerID, "scene", scene, "remaining", len(r.players))
		roomID := r.ID
		r.deps.async(r, "leave", func(ctx context.Context) error {
			return r.deps.store.LeaveGame(ctx, roomID, playerID)
		})
		if r.aliveRemaining() <= 1 {
			r.finishByAttrition()
		}
	case protocol.PhaseFinished:
		r.log.Infow("player left finished room", "player", playerID)
	default:
		r.resetSimulation()
		// 剩下的人可能都已经在 game 场景
		if r.phase == protocol.PhaseLobby && r.allInGame() {
			r.phase = protocol.PhaseReady
		}
		r.log.Infow("player left", "player", playerID, "scene", scene, "remaining", len(r.players))
	}

	if len(r.players) == 0 {
		r.close("empty")
		return nil
	}
	r.broadcastState()
	return nil
}

// aliveRemaining 仍在名单中且存活的玩家数
func (r *Room) aliveRemaining() int {
	n := 0
	for _, p := range r.players {
		if ps := r.state.Player(p.ID); ps != nil && ps.Alive {
			n++
		}
	}
	return n
}

func (r *Room) finishByAttrition() {
	for _, p := range r.players {
		if ps := r.state.Player(p.ID); ps != nil && ps.Alive {
			r.appendFinish(p.ID)
			r.finish(p.ID)
			return
		}
	}
	r.finish(r.lastFinisher())
}

func (r *Room) close(reason string) {
	if r.closed {
		return
	}
	r.stopTicker()
	r.broadcast(protocol.RoomClosed{RoomID: r.ID, Reason: reason})
	r.subs = make(map[string]Subscriber)
	r.observers = make(map[string]Subscriber)
	r.closed = true
	r.log.Infow("room closed", "reason", reason, "phase", r.phase)
	if r.deps.onClose != nil {
		r.deps.onClose(r)
	}
}

// bind 绑定玩家连接；换连接时关闭旧连接
func (r *Room) bind(playerID string, sub Subscriber) {
	if sub == nil {
		return
	}
	if old, ok := r.subs[playerID]; ok && old.ID() != sub.ID() {
		old.Close()
	}
	r.subs[playerID] = sub
}

// resetSimulation 用当前名单重新 InitGame（只保留 seed 与配置）
func (r *Room) resetSimulation() {
	r.state = engine.InitGame(r.cfg, r.seed, r.playerIDs())
	r.finishOrder = nil
	for id := range r.inputs {
		r.inputs[id] = engine.TurnNone
	}
}

func (r *Room) appendFinish(playerID string) {
	for _, id := range r.finishOrder {
		if id == playerID {
			return
		}
	}
	r.finishOrder = append(r.finishOrder, playerID)
}

func (r *Room) lastFinisher() string {
	if len(r.finishOrder) == 0 {
		return ""
	}
	return r.finishOrder[len(r.finishOrder)-1]
}

func (r *Room) indexOf(playerID string) int {
	for i, p := range r.players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

func (r *Room) playerIDs() []string {
	ids := make([]string, 0, len(r.players))
	for _, p := range r.players {
		ids = append(ids, p.ID)
	}
	return ids
}

func (r *Room) snapshot() *protocol.Snapshot {
	scenes := make(map[string]protocol.Scene, len(r.scenes))
	for id, sc := range r.scenes {
		scenes[id] = sc
	}
	s := &protocol.Snapshot{
		Phase:     r.phase,
		HostID:    r.hostID,
		PlayerIDs: r.playerIDs(),
		SceneByID: scenes,
		RoomID:    r.ID,
	}
	s.FillState(r.state)
	return s
}

func subID(sub Subscriber) string {
	if sub == nil {
		return ""
	}
	return sub.ID()
}
