package main

import (
	"fmt"
	"math"
	"time"

	"github.com/gdamore/tcell/v2"

	"trailarena/engine"
)

// runView 在终端里按 tickRate 实时推进并绘制；q / Esc 退出
func runView(sim *simulation, maxTicks int, bp *beeper) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()

	events := make(chan tcell.Event, 16)
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-quit:
				return
			}
		}
	}()

	ticker := time.NewTicker(sim.cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q' {
					return nil
				}
			case *tcell.EventResize:
				screen.Sync()
			}
		case <-ticker.C:
			if !sim.done() && sim.state.Tick < maxTicks {
				if res := sim.step(); len(res.Eliminated) > 0 {
					bp.play()
				}
			}
			draw(screen, sim)
		}
	}
}

func colorOf(c engine.Color) tcell.Color {
	return tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B))
}

func draw(screen tcell.Screen, sim *simulation) {
	screen.Clear()
	w, h := screen.Size()
	rows := h - 1
	if w <= 0 || rows <= 0 {
		return
	}
	cell := func(x, y float64) (int, int) {
		cx := int(x / sim.cfg.ArenaWidth * float64(w))
		cy := int(y / sim.cfg.ArenaHeight * float64(rows))
		return min(max(cx, 0), w-1), min(max(cy, 0), rows-1)
	}

	for _, seg := range sim.state.Segments {
		if seg.IsGap {
			continue
		}
		style := tcell.StyleDefault.Foreground(colorOf(seg.Color))
		// 按半个字符宽度采样线段
		step := sim.cfg.ArenaWidth / float64(w) / 2
		n := int(math.Hypot(seg.X2-seg.X1, seg.Y2-seg.Y1)/step) + 1
		for i := 0; i <= n; i++ {
			t := float64(i) / float64(n)
			cx, cy := cell(seg.X1+(seg.X2-seg.X1)*t, seg.Y1+(seg.Y2-seg.Y1)*t)
			screen.SetContent(cx, cy, '•', nil, style)
		}
	}

	for _, p := range sim.state.Players {
		head := '@'
		if !p.Alive {
			head = 'x'
		}
		cx, cy := cell(p.X, p.Y)
		screen.SetContent(cx, cy, head, nil, tcell.StyleDefault.Foreground(colorOf(p.Color)).Bold(true))
	}

	status := fmt.Sprintf(" tick %d  alive %d/%d", sim.state.Tick, sim.state.AliveCount(), len(sim.state.Players))
	if sim.done() {
		status += fmt.Sprintf("  winner %s", sim.winner)
	}
	status += "  (q to quit)"
	for i, r := range []rune(status) {
		if i >= w {
			break
		}
		screen.SetContent(i, h-1, r, nil, tcell.StyleDefault.Reverse(true))
	}
	screen.Show()
}
