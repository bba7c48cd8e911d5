package main

import "trailarena/engine"

// simulation 用脚本化输入推进一局
type simulation struct {
	cfg   engine.Config
	state *engine.State
	ids   []string

	finishOrder []string
	winner      string
	finished    bool
}

func newSimulation(cfg engine.Config, seed uint32, ids []string) *simulation {
	return &simulation{
		cfg:   cfg,
		state: engine.InitGame(cfg, seed, ids),
		ids:   ids,
	}
}

// scriptedTurn 每个玩家按不同周期转弯，保证结果只由 tick 决定
func scriptedTurn(i, tick int) engine.Turn {
	period := 30 + 10*i
	if tick%period >= 10 {
		return engine.TurnNone
	}
	if i%2 == 0 {
		return engine.TurnLeft
	}
	return engine.TurnRight
}

func (s *simulation) inputs() map[string]engine.Turn {
	in := make(map[string]engine.Turn, len(s.ids))
	for i, id := range s.ids {
		in[id] = scriptedTurn(i, s.state.Tick)
	}
	return in
}

func (s *simulation) step() engine.StepResult {
	res := engine.Step(s.state, s.inputs(), s.cfg)
	s.finishOrder = append(s.finishOrder, res.Eliminated...)
	switch {
	case res.JustFinished:
		s.finishOrder = append(s.finishOrder, res.WinnerID)
		s.winner = res.WinnerID
		s.finished = true
	case res.AllEliminated:
		if n := len(s.finishOrder); n > 0 {
			s.winner = s.finishOrder[n-1]
		}
		s.finished = true
	}
	return res
}

func (s *simulation) done() bool { return s.finished }
