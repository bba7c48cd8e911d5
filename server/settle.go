package server

import (
	"context"
	"fmt"
	"sort"

	"trailarena/backend"
	"trailarena/rating"
)

// settle 对局结束后的评分与结果上报，每个房间最多一次。
// 评分失败说明淘汰顺序与参赛名单不一致：大声报错，不调用后端。
func (r *Room) settle() {
	if r.settled {
		return
	}
	r.settled = true

	results, err := r.deps.rater.Rate(r.participants, r.finishOrder)
	if err != nil {
		r.metrics.IncSettleFailure()
		r.log.Errorw("settlement failed", "finish_order", r.finishOrder, "error", fmt.Sprintf("%+v", err))
		return
	}

	ranks := rating.Ranks(r.finishOrder)
	users := make([]backend.FinishUser, 0, len(ranks))
	for _, res := range results {
		rank, ok := ranks[res.ID]
		if !ok {
			continue
		}
		users = append(users, backend.FinishUser{
			UserID:            res.ID,
			Rank:              rank,
			RatingMean:        res.Mu,
			RatingUncertainty: res.Sigma,
		})
		// 仍在房间中的玩家使用新评分（重新开局或查询时可见）
		if i := r.indexOf(res.ID); i >= 0 {
			r.players[i].Mu, r.players[i].Sigma = res.Mu, res.Sigma
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Rank < users[j].Rank })

	r.log.Infow("settled", "users", users)

	roomID := r.ID
	req := backend.FinishRequest{Users: users}
	r.deps.async(r, "finish", func(ctx context.Context) error {
		return r.deps.store.FinishGame(ctx, roomID, req)
	})
}
