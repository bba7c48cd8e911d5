package engine

// zeroSeedState 替代全零状态（xorshift 在 0 上会停止前进）
const zeroSeedState uint32 = 0x9E3779B9

// Rng 可序列化的 xorshift32 随机数发生器。
// 状态只有一个 uint32，保存到 State.RngState 即可在下一 Tick 继续同一序列。
type Rng struct {
	state uint32
}

// NewRng 用种子创建发生器
func NewRng(seed uint32) *Rng {
	if seed == 0 {
		seed = zeroSeedState
	}
	return &Rng{state: seed}
}

// State 当前内部状态
func (r *Rng) State() uint32 { return r.state }

func (r *Rng) next() uint32 {
	s := r.state
	s ^= s << 13
	s ^= s >> 17
	s ^= s << 5
	r.state = s
	return s
}

// Float64 返回 [0,1) 的均匀分布
func (r *Rng) Float64() float64 {
	return float64(r.next()) / 4294967296.0
}

// Intn 返回 [0,n) 的整数，n <= 0 时返回 0
func (r *Rng) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.Float64() * float64(n))
}

// IntRange 返回 [lo,hi] 闭区间内的整数
func (r *Rng) IntRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.Intn(hi-lo+1)
}
