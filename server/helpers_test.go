package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"trailarena/backend"
	"trailarena/protocol"
)

// fakeSub 记录收到的消息；队列满时丢弃
type fakeSub struct {
	id    string
	codec protocol.Codec
	ch    chan []byte

	mu     sync.Mutex
	closed bool
}

func newFakeSub(id string, size int) *fakeSub {
	return &fakeSub{id: id, codec: protocol.JSON, ch: make(chan []byte, size)}
}

func (f *fakeSub) ID() string            { return f.id }
func (f *fakeSub) Codec() protocol.Codec { return f.codec }

func (f *fakeSub) Enqueue(b []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	select {
	case f.ch <- b:
		return true
	default:
		return false
	}
}

func (f *fakeSub) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSub) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// waitEvent 读取事件直到 match 返回 true
func waitEvent(t *testing.T, f *fakeSub, timeout time.Duration, match func(protocol.Event) bool) protocol.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case b := <-f.ch:
			ev, err := protocol.DecodeEvent(f.codec, b)
			if err != nil {
				t.Fatalf("decode event: %v (%s)", err, b)
			}
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatalf("%s: timed out waiting for event", f.id)
			return nil
		}
	}
}

func isType(typ string) func(protocol.Event) bool {
	return func(ev protocol.Event) bool { return protocol.EventType(ev) == typ }
}

type finishCall struct {
	roomID string
	req    backend.FinishRequest
}

// fakeStore 记录后端调用；startDelay 模拟慢的 StartGame
type fakeStore struct {
	mu         sync.Mutex
	startDelay time.Duration
	starts     []string
	leaves     []string
	finishes   []finishCall
	calls      []string
}

func (s *fakeStore) StartGame(ctx context.Context, roomID string) error {
	s.mu.Lock()
	delay := s.startDelay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, roomID)
	s.calls = append(s.calls, "start "+roomID)
	return nil
}

func (s *fakeStore) LeaveGame(_ context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves = append(s.leaves, roomID+"/"+userID)
	s.calls = append(s.calls, "leave "+roomID+"/"+userID)
	return nil
}

func (s *fakeStore) FinishGame(_ context.Context, roomID string, req backend.FinishRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishes = append(s.finishes, finishCall{roomID: roomID, req: req})
	s.calls = append(s.calls, "finish "+roomID)
	return nil
}

func (s *fakeStore) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeStore) snapshot() (starts, leaves []string, finishes []finishCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.starts...), append([]string(nil), s.leaves...), append([]finishCall(nil), s.finishes...)
}

func newTestManager(t *testing.T, opts ...ManagerOption) (*RoomManager, *fakeStore) {
	t.Helper()
	store := &fakeStore{}
	m := NewRoomManager(store, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m, store
}

func ptr[T any](v T) *T { return &v }

func joinReq(roomID, playerID string, patch *protocol.ConfigPatch) protocol.CreateOrJoinRoom {
	return protocol.CreateOrJoinRoom{
		RoomID: roomID,
		Seed:   1234,
		Player: protocol.PlayerInfo{PlayerID: playerID},
		Config: patch,
	}
}

func mustJoin(t *testing.T, m *RoomManager, roomID, playerID string, sub Subscriber, patch *protocol.ConfigPatch) {
	t.Helper()
	if err := m.CreateOrJoin(joinReq(roomID, playerID, patch), sub); err != nil {
		t.Fatalf("join %s/%s: %v", roomID, playerID, err)
	}
}

func mustRoom(t *testing.T, m *RoomManager, roomID string) *Room {
	t.Helper()
	r, err := m.Get(roomID)
	if err != nil {
		t.Fatalf("Get(%s): %v", roomID, err)
	}
	return r
}

// inRoom 在房间协程中读取状态
func inRoom(t *testing.T, r *Room, fn func()) {
	t.Helper()
	if err := r.exec(fn); err != nil {
		t.Fatalf("exec: %v", err)
	}
}
