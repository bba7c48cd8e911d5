package engine

import "math"

const posEpsilon = 1e-9

// pushOrExtend 把 prev->(p.X,p.Y) 这一步记入轨迹。
// 不转向、缺口状态相同、且与玩家自己的尾段首尾相接时原地延长尾段，
// 否则追加新段。段数因此只随转向/缺口切换增长，而不是随 Tick 增长。
// 返回段下标以及是否新建。
func pushOrExtend(s *State, p *PlayerState, prevX, prevY float64, turn Turn, isGap bool) (int, bool) {
	if turn == TurnNone && p.TailSegIndex >= 0 && p.TailSegIndex < len(s.Segments) {
		last := &s.Segments[p.TailSegIndex]
		if last.OwnerID == p.ID && last.IsGap == isGap &&
			math.Abs(last.X2-prevX) <= posEpsilon &&
			math.Abs(last.Y2-prevY) <= posEpsilon {
			last.X2 = p.X
			last.Y2 = p.Y
			return p.TailSegIndex, false
		}
	}

	s.Segments = append(s.Segments, Segment{
		X1: prevX, Y1: prevY, X2: p.X, Y2: p.Y,
		OwnerID: p.ID,
		Color:   p.Color,
		IsGap:   isGap,
	})
	return len(s.Segments) - 1, true
}

// rememberTail 记录自身最近的段下标，最多保留 keep 个
func rememberTail(p *PlayerState, idx, keep int) {
	if n := len(p.recent); n > 0 && p.recent[n-1] == idx {
		return
	}
	p.recent = append(p.recent, idx)
	if len(p.recent) > keep {
		p.recent = append(p.recent[:0], p.recent[len(p.recent)-keep:]...)
	}
}

// selfExclusionCount 需要排除的自身尾段数量：
// 有效半径内能容纳的步数再加上当前尾段
func selfExclusionCount(cfg Config) int {
	if cfg.Speed <= 0 {
		return 1
	}
	n := int(math.Ceil(cfg.EffectiveRadius()/cfg.Speed)) + 1
	if n < 1 {
		n = 1
	}
	return n
}
