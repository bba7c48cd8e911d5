// simulate 本地运行引擎与评分，不需要服务端。
//
//	simulate                     无界面跑完一局，输出结果摘要
//	simulate -view -sound        在终端中观看，出局时发出提示音
//	simulate -rating             四人对局的评分更新示例
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"trailarena/engine"
	"trailarena/rating"
)

func main() {
	var (
		seed     uint
		players  string
		maxTicks int
		tickRate int
		view     bool
		sound    bool
		rate     bool
	)
	flag.UintVar(&seed, "seed", 1234, "simulation seed")
	flag.StringVar(&players, "players", "p1,p2", "comma separated player ids")
	flag.IntVar(&maxTicks, "ticks", 20000, "stop after this many ticks")
	flag.IntVar(&tickRate, "tick-rate", 0, "override tickRate (view mode speed)")
	flag.BoolVar(&view, "view", false, "render the match in the terminal")
	flag.BoolVar(&sound, "sound", false, "beep when a player is eliminated")
	flag.BoolVar(&rate, "rating", false, "print a sample rating update and exit")
	flag.Parse()

	if rate {
		printRatingExample()
		return
	}

	cfg := engine.DefaultConfig()
	if tickRate > 0 {
		cfg.TickRate = tickRate
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	ids := splitIDs(players)
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "no players")
		os.Exit(2)
	}

	sim := newSimulation(cfg, uint32(seed), ids)

	var bp *beeper
	if sound {
		b, err := newBeeper()
		if err != nil {
			// 没有声音也能跑
			fmt.Fprintf(os.Stderr, "audio disabled: %v\n", err)
		} else {
			bp = b
		}
	}

	if view {
		if err := runView(sim, maxTicks, bp); err != nil {
			fmt.Fprintf(os.Stderr, "view: %v\n", err)
			os.Exit(1)
		}
	} else {
		for !sim.done() && sim.state.Tick < maxTicks {
			if res := sim.step(); len(res.Eliminated) > 0 {
				bp.play()
			}
		}
	}

	printSummary(sim)
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func printSummary(sim *simulation) {
	fmt.Printf("tick=%d segments=%d winner=%q\n", sim.state.Tick, len(sim.state.Segments), sim.winner)
	fmt.Printf("finish order (first out -> winner): %s\n", strings.Join(sim.finishOrder, ", "))
	for _, p := range sim.state.Players {
		fmt.Printf("  %-8s alive=%-5v x=%7.2f y=%7.2f angle=%.3f\n", p.ID, p.Alive, p.X, p.Y, p.Angle)
	}
	if len(sim.finishOrder) < 2 {
		return
	}
	players := make([]rating.Player, 0, len(sim.finishOrder))
	for _, id := range sim.finishOrder {
		players = append(players, rating.Default(id))
	}
	printRatings(players, sim.finishOrder)
}

func printRatingExample() {
	players := []rating.Player{
		rating.Default("alice"),
		rating.Default("bob"),
		rating.Default("carl"),
		rating.Default("dina"),
	}
	// alice 最先出局，dina 获胜
	printRatings(players, []string{"alice", "bob", "carl", "dina"})
}

func printRatings(players []rating.Player, finishOrder []string) {
	results, err := rating.NewPlackettLuce().Rate(players, finishOrder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rating: %+v\n", err)
		os.Exit(1)
	}
	ranks := rating.Ranks(finishOrder)
	fmt.Println("updated ratings:")
	for _, r := range results {
		fmt.Printf("  #%d %-8s mu=%.3f sigma=%.3f ordinal=%.3f\n", ranks[r.ID], r.ID, r.Mu, r.Sigma, r.Ordinal)
	}
}
