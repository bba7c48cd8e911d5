package server

import (
	"context"
	"sync"
)

type backendCall struct {
	name string
	fn   func(ctx context.Context) error
}

// backendQueue 房间的后端调用队列：同一房间的调用按提交顺序依次执行，
// 最多一个工作协程
type backendQueue struct {
	mu      sync.Mutex
	pending []backendCall
	running bool
}

// push 入队；返回 true 表示需要调用方启动工作协程
func (q *backendQueue) push(c backendCall) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, c)
	if q.running {
		return false
	}
	q.running = true
	return true
}

// pop 取出队首；队列为空时工作协程退出
func (q *backendQueue) pop() (backendCall, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		q.running = false
		return backendCall{}, false
	}
	c := q.pending[0]
	q.pending[0] = backendCall{}
	q.pending = q.pending[1:]
	return c, true
}

// runBackend 把后端调用排入房间队列；每次调用单独超时，失败只记录日志，不重试
func (m *RoomManager) runBackend(r *Room, name string, fn func(ctx context.Context) error) {
	if !r.backend.push(backendCall{name: name, fn: fn}) {
		return
	}
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		for {
			c, ok := r.backend.pop()
			if !ok {
				return
			}
			m.callBackend(r, c)
		}
	}()
}

func (m *RoomManager) callBackend(r *Room, c backendCall) {
	ctx, cancel := context.WithTimeout(context.Background(), m.backendTimeout)
	defer cancel()
	if err := c.fn(ctx); err != nil {
		r.metrics.IncBackendFailure()
		r.log.Errorw("backend call failed", "call", c.name, "error", err)
	}
}
