package server

import (
	"sync/atomic"
)

// RoomMetrics 记录房间运行期的关键指标（用于监控与调试）
type RoomMetrics struct {
	TickCount       int64 // 实际推进的 Tick 次数
	TotalTickNs     int64 // Tick 累计耗时（纳秒）
	InputsAccepted  int64 // 被接受的输入数
	Broadcasts      int64 // 广播次数
	SendsDropped    int64 // 因队列满或连接关闭被丢弃的消息
	EncodeFailures  int64 // 出站事件校验/编码失败次数
	Eliminations    int64 // 出局人数
	SettleFailures  int64 // 结算时评分失败（不变量被破坏）
	BackendFailures int64 // 后端调用失败次数
}

func (m *RoomMetrics) IncAccepted()        { atomic.AddInt64(&m.InputsAccepted, 1) }
func (m *RoomMetrics) IncBroadcast()       { atomic.AddInt64(&m.Broadcasts, 1) }
func (m *RoomMetrics) AddDropped(n int64)  { atomic.AddInt64(&m.SendsDropped, n) }
func (m *RoomMetrics) IncEncodeFailure()   { atomic.AddInt64(&m.EncodeFailures, 1) }
func (m *RoomMetrics) AddEliminated(n int) { atomic.AddInt64(&m.Eliminations, int64(n)) }
func (m *RoomMetrics) IncSettleFailure()   { atomic.AddInt64(&m.SettleFailures, 1) }
func (m *RoomMetrics) IncBackendFailure()  { atomic.AddInt64(&m.BackendFailures, 1) }
func (m *RoomMetrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":       tick,
		"inputs_accepted":  atomic.LoadInt64(&m.InputsAccepted),
		"broadcasts":       atomic.LoadInt64(&m.Broadcasts),
		"sends_dropped":    atomic.LoadInt64(&m.SendsDropped),
		"encode_failures":  atomic.LoadInt64(&m.EncodeFailures),
		"eliminations":     atomic.LoadInt64(&m.Eliminations),
		"settle_failures":  atomic.LoadInt64(&m.SettleFailures),
		"backend_failures": atomic.LoadInt64(&m.BackendFailures),
		"avg_tick_ms":      avgMs,
	}
}
