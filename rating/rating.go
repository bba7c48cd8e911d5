// Package rating 根据一局的淘汰顺序更新玩家技能评分。
//
// 评分是 (Mu, Sigma) 二元组：Mu 为技能估计，Sigma 为不确定度。
// Ordinal = Mu - Z*Sigma 是一个保守的单值评分，用于展示和排序。
package rating

import (
	"github.com/pkg/errors"
)

// 默认参数与 openskill 一致
const (
	DefaultMu    = 25.0
	DefaultSigma = DefaultMu / 3
	DefaultZ     = 3.0
)

// ErrUnknownPlayer finishOrder 中出现了不在 players 中的 id
var ErrUnknownPlayer = errors.New("finish order contains unknown player id")

// ErrDuplicatePlayer finishOrder 中同一 id 出现多次（不支持并列）
var ErrDuplicatePlayer = errors.New("finish order contains duplicate player id")

// Player 参与评分的玩家当前评分
type Player struct {
	ID    string  `json:"id"`
	Mu    float64 `json:"mu"`
	Sigma float64 `json:"sigma"`
}

// Result 更新后的评分
type Result struct {
	ID      string  `json:"id"`
	Mu      float64 `json:"mu"`
	Sigma   float64 `json:"sigma"`
	Ordinal float64 `json:"ordinal"`
}

// Rater 评分算法。finishOrder 从先被淘汰到胜者排列（最后一个是胜者）。
// 返回结果与 players 顺序一致，且数值与 players 的排列顺序无关。
type Rater interface {
	Rate(players []Player, finishOrder []string) ([]Result, error)
}

// Default 新玩家的默认评分
func Default(id string) Player {
	return Player{ID: id, Mu: DefaultMu, Sigma: DefaultSigma}
}

// Ordinal 保守评分
func Ordinal(mu, sigma float64) float64 {
	return mu - DefaultZ*sigma
}

// Ranks 把淘汰顺序转换为名次：胜者 1，最先淘汰者 len(finishOrder)
func Ranks(finishOrder []string) map[string]int {
	n := len(finishOrder)
	out := make(map[string]int, n)
	for i, id := range finishOrder {
		out[id] = n - i
	}
	return out
}

// validate 检查 finishOrder 中每个 id 都在 players 中且不重复
func validate(byID map[string]Player, finishOrder []string) error {
	seen := make(map[string]struct{}, len(finishOrder))
	for _, id := range finishOrder {
		if _, ok := byID[id]; !ok {
			return errors.Wrapf(ErrUnknownPlayer, "id %q", id)
		}
		if _, dup := seen[id]; dup {
			return errors.Wrapf(ErrDuplicatePlayer, "id %q", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
