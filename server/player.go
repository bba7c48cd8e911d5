package server

import (
	"trailarena/protocol"
	"trailarena/rating"
)

// Player 房间名单中的玩家：id 与本局使用的评分快照
type Player struct {
	ID    string
	Mu    float64
	Sigma float64
}

// NewPlayer 由入站玩家信息构造，缺省评分使用默认值
func NewPlayer(info protocol.PlayerInfo) Player {
	p := Player{ID: info.PlayerID, Mu: rating.DefaultMu, Sigma: rating.DefaultSigma}
	if info.RatingMu != nil {
		p.Mu = *info.RatingMu
	}
	if info.RatingSigma != nil {
		p.Sigma = *info.RatingSigma
	}
	return p
}

func (p Player) rating() rating.Player {
	return rating.Player{ID: p.ID, Mu: p.Mu, Sigma: p.Sigma}
}

// Subscriber 接收房间事件的连接
type Subscriber interface {
	// ID 连接标识
	ID() string
	// Codec 该连接使用的编码
	Codec() protocol.Codec
	// Enqueue 非阻塞入队，队列满或已关闭时返回 false（消息被丢弃）
	Enqueue(b []byte) bool
	// Close 关闭连接
	Close()
}
