package engine

import "math"

// Step 推进一个 Tick（原地修改 s）。
// 相同的 (s, inputs, cfg) 必然得到完全相同的结果：不读时钟，只用 s.RngState 里的随机序列，
// 按 s.Players 的顺序处理，inputs 只做按 id 查找。
func Step(s *State, inputs map[string]Turn, cfg Config) StepResult {
	s.Tick++
	rng := NewRng(s.RngState)
	radius := cfg.EffectiveRadius()
	keep := selfExclusionCount(cfg)

	var res StepResult
	aliveBefore := s.AliveCount()

	for i := range s.Players {
		p := &s.Players[i]
		if !p.Alive {
			continue
		}

		turn := inputs[p.ID]
		if !turn.Valid() {
			turn = TurnNone
		}
		p.Angle += float64(turn) * cfg.TurnRate

		prevX, prevY := p.X, p.Y
		p.X += math.Cos(p.Angle) * cfg.Speed
		p.Y += math.Sin(p.Angle) * cfg.Speed

		// 撞墙：立即死亡，不再做轨迹碰撞
		if p.X < 0 || p.X > cfg.ArenaWidth || p.Y < 0 || p.Y > cfg.ArenaHeight {
			p.Alive = false
			res.Eliminated = append(res.Eliminated, p.ID)
			continue
		}

		if CheckCollision(s.Spatial, s.Segments, p.ID, prevX, prevY, p.X, p.Y, radius, p.recent) {
			p.Alive = false
			res.Eliminated = append(res.Eliminated, p.ID)
			continue
		}

		// 缺口：进行中的缺口倒计时；否则按概率开启新缺口
		isGap := false
		if p.GapTicksLeft > 0 {
			p.GapTicksLeft--
			isGap = true
		} else if rng.Float64() < cfg.GapChance {
			p.GapTicksLeft = rng.IntRange(cfg.GapMinTicks, cfg.GapMaxTicks) - 1
			isGap = true
		}

		idx, _ := pushOrExtend(s, p, prevX, prevY, turn, isGap)
		p.TailSegIndex = idx
		rememberTail(p, idx, keep)

		// 缺口可以穿越，不登记到空间索引
		if !isGap {
			s.Spatial.Insert(Segment{X1: prevX, Y1: prevY, X2: p.X, Y2: p.Y, OwnerID: p.ID}, idx)
		}
	}

	s.RngState = rng.State()

	aliveAfter := s.AliveCount()
	switch {
	case aliveBefore >= 2 && aliveAfter == 1:
		res.JustFinished = true
		for i := range s.Players {
			if s.Players[i].Alive {
				res.WinnerID = s.Players[i].ID
				break
			}
		}
	case aliveBefore >= 1 && aliveAfter == 0:
		res.AllEliminated = true
	}
	return res
}
