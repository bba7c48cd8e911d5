package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"trailarena/backend"
	"trailarena/engine"
	"trailarena/protocol"
	"trailarena/rating"
)

// RoomManager 管理多个房间的生命周期
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	store          backend.Store
	rater          rating.Rater
	backendTimeout time.Duration

	// 进行中的后端调用
	bg sync.WaitGroup
}

// ManagerOption RoomManager 选项
type ManagerOption func(*RoomManager)

// WithRater 替换评分算法
func WithRater(r rating.Rater) ManagerOption {
	return func(m *RoomManager) { m.rater = r }
}

// WithBackendTimeout 单次后端调用超时
func WithBackendTimeout(d time.Duration) ManagerOption {
	return func(m *RoomManager) { m.backendTimeout = d }
}

// NewRoomManager 创建房间管理器；store 为 nil 时不上报结果
func NewRoomManager(store backend.Store, opts ...ManagerOption) *RoomManager {
	if store == nil {
		store = backend.Nop{}
	}
	m := &RoomManager{
		rooms:          make(map[string]*Room),
		store:          store,
		rater:          rating.NewPlackettLuce(),
		backendTimeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// getOrCreate 获取房间，不存在时按给定配置创建并启动
func (m *RoomManager) getOrCreate(roomID string, cfg engine.Config, seed uint32) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[roomID]; ok {
		return r
	}
	return m.startRoomLocked(roomID, cfg, seed)
}

// create 创建并启动房间；房间已存在时返回 ErrRoomExists
func (m *RoomManager) create(roomID string, cfg engine.Config, seed uint32) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[roomID]; ok {
		return nil, errors.Wrapf(ErrRoomExists, "room %s", roomID)
	}
	return m.startRoomLocked(roomID, cfg, seed), nil
}

func (m *RoomManager) startRoomLocked(roomID string, cfg engine.Config, seed uint32) *Room {
	r := newRoom(roomID, cfg, seed, roomDeps{
		rater:   m.rater,
		store:   m.store,
		async:   m.runBackend,
		onClose: m.remove,
	})
	m.rooms[roomID] = r
	go r.Run()
	Log.Infow("room created", "room", roomID, "seed", seed, "config", cfg)
	return r
}

// remove 房间关闭后从表中移除（只移除同一个实例）
func (m *RoomManager) remove(r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rooms[r.ID]; ok && cur == r {
		delete(m.rooms, r.ID)
	}
}

// Get 按 id 查找房间
func (m *RoomManager) Get(roomID string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownRoom, "room %s", roomID)
	}
	return r, nil
}

// CreateOrJoin 首次引用时创建房间（加入者成为房主），否则加入已有房间
func (m *RoomManager) CreateOrJoin(cmd protocol.CreateOrJoinRoom, sub Subscriber) error {
	cfg := cmd.Config.Apply(engine.DefaultConfig())
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(protocol.ErrInvalidMessage, err.Error())
	}
	p := NewPlayer(cmd.Player)

	// 房间可能在查找与加入之间刚好关闭：换一个新房间重试
	for attempt := 0; ; attempt++ {
		r := m.getOrCreate(cmd.RoomID, cfg, uint32(cmd.Seed))
		err := r.Join(p, sub)
		if errors.Is(err, ErrRoomClosed) && attempt < 3 {
			m.remove(r)
			continue
		}
		return err
	}
}

// CreateRoom 以固定名单创建房间，observer 接收该房间的全部事件
func (m *RoomManager) CreateRoom(cmd protocol.CreateRoom, observer Subscriber) error {
	cfg := cmd.Config.Apply(engine.DefaultConfig())
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(protocol.ErrInvalidMessage, err.Error())
	}
	players := make([]Player, 0, len(cmd.Players))
	for _, info := range cmd.Players {
		players = append(players, NewPlayer(info))
	}
	r, err := m.create(cmd.RoomID, cfg, uint32(cmd.Seed))
	if err != nil {
		return err
	}
	return r.Admit(players, observer)
}

// Unobserve 见 Room.Unobserve；房间已不存在时忽略
func (m *RoomManager) Unobserve(roomID string, sub Subscriber) {
	r, err := m.Get(roomID)
	if err != nil {
		return
	}
	if err := r.Unobserve(sub); err != nil && !errors.Is(err, ErrRoomClosed) {
		Log.Warnw("unobserve failed", "room", roomID, "conn", sub.ID(), "error", err)
	}
}

// UpdateScene 见 Room.UpdateScene
func (m *RoomManager) UpdateScene(roomID, playerID string, scene protocol.Scene) error {
	r, err := m.Get(roomID)
	if err != nil {
		return err
	}
	return r.UpdateScene(playerID, scene)
}

// Start 见 Room.Start
func (m *RoomManager) Start(roomID string) error {
	r, err := m.Get(roomID)
	if err != nil {
		return err
	}
	return r.Start()
}

// PushInput 见 Room.PushInput
func (m *RoomManager) PushInput(roomID, playerID string, turn engine.Turn) error {
	r, err := m.Get(roomID)
	if err != nil {
		return err
	}
	return r.PushInput(playerID, turn)
}

// Leave 见 Room.Leave
func (m *RoomManager) Leave(roomID, playerID string) error {
	r, err := m.Get(roomID)
	if err != nil {
		return err
	}
	return r.Leave(playerID)
}

// Disconnect 见 Room.Disconnect；房间已不存在时忽略
func (m *RoomManager) Disconnect(roomID, playerID string, sub Subscriber) {
	r, err := m.Get(roomID)
	if err != nil {
		return
	}
	if err := r.Disconnect(playerID, sub); err != nil && !errors.Is(err, ErrRoomClosed) {
		Log.Warnw("disconnect failed", "room", roomID, "player", playerID, "error", err)
	}
}

// CloseRoom 关闭房间
func (m *RoomManager) CloseRoom(roomID, reason string) error {
	r, err := m.Get(roomID)
	if err != nil {
		return err
	}
	if err := r.Close(reason); err != nil && !errors.Is(err, ErrRoomClosed) {
		return err
	}
	return nil
}

// Snapshot 房间快照
func (m *RoomManager) Snapshot(roomID string) (*protocol.Snapshot, error) {
	r, err := m.Get(roomID)
	if err != nil {
		return nil, err
	}
	return r.Snapshot()
}

// list 当前房间列表（按 id 排序）
func (m *RoomManager) list() []*Room {
	m.mu.RLock()
	out := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// List 所有房间概要；查询期间关闭的房间被跳过
func (m *RoomManager) List() []RoomInfo {
	rooms := m.list()
	infos := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		info, err := r.Info()
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos
}

// Wait 等待所有进行中的后端调用结束
func (m *RoomManager) Wait() {
	m.bg.Wait()
}

// Shutdown 关闭所有房间，并在 ctx 截止前等待后端调用完成
func (m *RoomManager) Shutdown(ctx context.Context) error {
	for _, r := range m.list() {
		if err := r.Close("shutdown"); err != nil && !errors.Is(err, ErrRoomClosed) {
			Log.Warnw("close room failed", "room", r.ID, "error", err)
		}
	}
	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for backend calls")
	}
}
