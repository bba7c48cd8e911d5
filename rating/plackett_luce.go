package rating

import "math"

// PlackettLuce Weng-Lin 贝叶斯近似下的 Plackett-Luce 排名模型（每队一人）
type PlackettLuce struct {
	Beta  float64 // 表现噪声，默认 Sigma/2
	Kappa float64 // Sigma 收缩下限
	Tau   float64 // 每局前给 Sigma 增加的动态噪声，0 表示不加
	Z     float64 // Ordinal 使用的 Sigma 倍数
}

// NewPlackettLuce 默认参数
func NewPlackettLuce() *PlackettLuce {
	return &PlackettLuce{
		Beta:  DefaultSigma / 2,
		Kappa: 0.0001,
		Tau:   0,
		Z:     DefaultZ,
	}
}

type plTeam struct {
	id      string
	mu      float64
	sigmaSq float64
	rank    int
}

// Rate 见 Rater
func (m *PlackettLuce) Rate(players []Player, finishOrder []string) ([]Result, error) {
	byID := make(map[string]Player, len(players))
	for _, p := range players {
		byID[p.ID] = p
	}
	if err := validate(byID, finishOrder); err != nil {
		return nil, err
	}

	// 按名次排列：胜者在前。只依赖 finishOrder，因此与 players 顺序无关
	n := len(finishOrder)
	teams := make([]plTeam, n)
	for i := 0; i < n; i++ {
		id := finishOrder[n-1-i]
		p := byID[id]
		sigma := math.Sqrt(p.Sigma*p.Sigma + m.Tau*m.Tau)
		teams[i] = plTeam{id: id, mu: p.Mu, sigmaSq: sigma * sigma, rank: i + 1}
	}

	updated := make(map[string]Result, n)
	for _, r := range m.update(teams) {
		updated[r.ID] = r
	}

	out := make([]Result, 0, len(players))
	for _, p := range players {
		if r, ok := updated[p.ID]; ok {
			out = append(out, r)
			continue
		}
		// 没有出现在 finishOrder 中的玩家保持原评分
		out = append(out, Result{ID: p.ID, Mu: p.Mu, Sigma: p.Sigma, Ordinal: m.ordinal(p.Mu, p.Sigma)})
	}
	return out, nil
}

func (m *PlackettLuce) ordinal(mu, sigma float64) float64 {
	return mu - m.Z*sigma
}

// update teams 已按名次升序排列且名次互不相同
func (m *PlackettLuce) update(teams []plTeam) []Result {
	if len(teams) == 0 {
		return nil
	}
	betaSq := m.Beta * m.Beta

	var cSq float64
	for _, t := range teams {
		cSq += t.sigmaSq + betaSq
	}
	c := math.Sqrt(cSq)

	// sumQ[q] = Σ_{i: rank_i >= rank_q} exp(mu_i / c)
	expMu := make([]float64, len(teams))
	for i, t := range teams {
		expMu[i] = math.Exp(t.mu / c)
	}
	sumQ := make([]float64, len(teams))
	for q := range teams {
		for i := range teams {
			if teams[i].rank >= teams[q].rank {
				sumQ[q] += expMu[i]
			}
		}
	}

	out := make([]Result, len(teams))
	for i, t := range teams {
		var omegaSum, deltaSum float64
		for q := range teams {
			if teams[q].rank > t.rank {
				continue
			}
			quotient := expMu[i] / sumQ[q]
			if q == i {
				omegaSum += 1 - quotient
			} else {
				omegaSum -= quotient
			}
			deltaSum += quotient * (1 - quotient)
		}

		sigma := math.Sqrt(t.sigmaSq)
		gamma := sigma / c
		omega := omegaSum * t.sigmaSq / c
		delta := gamma * deltaSum * t.sigmaSq / cSq

		// 每队一人：个人方差与队伍方差相同
		newMu := t.mu + omega
		newSigma := sigma * math.Sqrt(math.Max(1-delta, m.Kappa))
		out[i] = Result{ID: t.id, Mu: newMu, Sigma: newSigma, Ordinal: m.ordinal(newMu, newSigma)}
	}
	return out
}
