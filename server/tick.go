package server

import (
	"sort"
	"time"

	"trailarena/engine"
	"trailarena/protocol"
)

// startTicker 启动房间的 Tick 定时器（1000 / tickRate 毫秒），由 Run 协程消费
func (r *Room) startTicker() {
	if r.ticker != nil {
		return
	}
	r.ticker = time.NewTicker(r.cfg.TickInterval())
	r.tickC = r.ticker.C
}

// stopTicker 可重复调用
func (r *Room) stopTicker() {
	if r.ticker == nil {
		return
	}
	r.ticker.Stop()
	r.ticker = nil
	r.tickC = nil
}

// onTick 核心循环：输入快照 → 推进世界 → 记录出局 → 广播 → 判定结束
func (r *Room) onTick() {
	if r.phase != protocol.PhaseRunning {
		return
	}
	start := time.Now()

	inputs := make(map[string]engine.Turn, len(r.inputs))
	for id, t := range r.inputs {
		inputs[id] = t
	}

	res := engine.Step(r.state, inputs, r.cfg)
	for _, id := range res.Eliminated {
		r.appendFinish(id)
	}
	if n := len(res.Eliminated); n > 0 {
		r.metrics.AddEliminated(n)
		r.log.Debugw("eliminated", "tick", r.state.Tick, "players", res.Eliminated)
	}

	r.broadcastState()

	switch {
	case res.JustFinished:
		r.appendFinish(res.WinnerID)
		r.finish(res.WinnerID)
	case res.AllEliminated:
		// 同一 Tick 全部出局时有意不判平局：Step 按名单顺序记录出局，
		// 名单中最后一名记为胜者，评分按 finishOrder 严格排名
		r.finish(r.lastFinisher())
	}

	r.metrics.AddTick(time.Since(start).Nanoseconds())
}

// finish 进入 finished（幂等）：停止 Tick，广播最终快照，结算，再通知胜者
func (r *Room) finish(winnerID string) {
	if r.phase == protocol.PhaseFinished {
		return
	}
	r.stopTicker()
	r.phase = protocol.PhaseFinished
	r.winnerID = winnerID
	r.log.Infow("game finished", "winner", winnerID, "tick", r.state.Tick, "finish_order", r.finishOrder)

	r.broadcastState()
	r.settle()
	if winnerID != "" {
		r.broadcast(protocol.GameFinished{RoomID: r.ID, WinnerID: winnerID})
	}
}

// broadcastState 广播当前快照
func (r *Room) broadcastState() {
	r.broadcast(protocol.State{Snapshot: r.snapshot()})
}

// broadcast 向所有订阅者与观察者非阻塞发送；每种编码只编码一次。
// 校验或编码失败属于程序错误：记录日志并放弃这次发送。
func (r *Room) broadcast(ev protocol.Event) {
	targets := r.targets()
	if len(targets) == 0 {
		return
	}
	encoded := make(map[string][]byte, 2)
	var dropped int64
	for _, sub := range targets {
		codec := sub.Codec()
		b, ok := encoded[codec.Name()]
		if !ok {
			var err error
			b, err = protocol.EncodeEvent(codec, ev)
			if err != nil {
				r.metrics.IncEncodeFailure()
				r.log.Errorw("outbound event rejected", "event", protocol.EventType(ev), "codec", codec.Name(), "error", err)
				return
			}
			encoded[codec.Name()] = b
		}
		if !sub.Enqueue(b) {
			dropped++
		}
	}
	r.metrics.IncBroadcast()
	if dropped > 0 {
		r.metrics.AddDropped(dropped)
	}
}

// targets 玩家连接按名单顺序，观察者按连接 id，保证发送顺序稳定
func (r *Room) targets() []Subscriber {
	out := make([]Subscriber, 0, len(r.subs)+len(r.observers))
	for _, p := range r.players {
		if sub, ok := r.subs[p.ID]; ok {
			out = append(out, sub)
		}
	}
	ids := make([]string, 0, len(r.observers))
	for id := range r.observers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out = append(out, r.observers[id])
	}
	return out
}
