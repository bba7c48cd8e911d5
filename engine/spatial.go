package engine

import (
	"math"
	"sort"
)

const (
	// maxInsertSamples 单条线段的采样上限
	maxInsertSamples = 1 << 16
	// maxAxisCells 每个方向的单元数上限
	maxAxisCells = 1 << 30
)

// cellKey 网格单元坐标
type cellKey struct {
	X int
	Y int
}

// SpatialIndex 覆盖竞技场的均匀网格：单元 -> 轨迹段下标列表。
// 宽相位（broad-phase）只返回候选段，精确判定由 CheckCollision 完成。
type SpatialIndex struct {
	cellSize float64
	cols     int
	rows     int
	buckets  map[cellKey][]int
}

// NewSpatialIndex 按竞技场尺寸与单元边长创建索引
func NewSpatialIndex(width, height, cellSize float64) *SpatialIndex {
	if cellSize <= 0 {
		cellSize = 16
	}
	cols := int(math.Min(math.Ceil(width/cellSize), maxAxisCells))
	rows := int(math.Min(math.Ceil(height/cellSize), maxAxisCells))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return &SpatialIndex{
		cellSize: cellSize,
		cols:     cols,
		rows:     rows,
		buckets:  make(map[cellKey][]int),
	}
}

// CellSize 单元边长
func (s *SpatialIndex) CellSize() float64 { return s.cellSize }

// Len 非空单元数量
func (s *SpatialIndex) Len() int { return len(s.buckets) }

func (s *SpatialIndex) cellOf(x, y float64) cellKey {
	cx := int(math.Floor(x / s.cellSize))
	cy := int(math.Floor(y / s.cellSize))
	return cellKey{X: clampInt(cx, 0, s.cols-1), Y: clampInt(cy, 0, s.rows-1)}
}

// Insert 沿线段每半个单元采样一次，把 index 登记到采样点所在的每个单元。
// 长度为 0 的线段直接返回。
func (s *SpatialIndex) Insert(seg Segment, index int) {
	if index < 0 {
		return
	}
	dx := seg.X2 - seg.X1
	dy := seg.Y2 - seg.Y1
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}

	step := s.cellSize * 0.5
	n := int(math.Min(math.Ceil(length/step), float64(s.maxSamples())))
	if n < 1 {
		n = 1
	}
	for i := 0; i <= n; i++ {
		t := float64(i) / float64(n)
		key := s.cellOf(seg.X1+dx*t, seg.Y1+dy*t)
		bucket := s.buckets[key]
		// 相邻采样常落在同一单元，只去掉紧邻的重复
		if len(bucket) > 0 && bucket[len(bucket)-1] == index {
			continue
		}
		s.buckets[key] = append(bucket, index)
	}
}

// Query 返回与矩形 [minX,maxX]x[minY,maxY] 重叠的单元中登记过的段下标（去重，顺序确定）
func (s *SpatialIndex) Query(minX, minY, maxX, maxY float64) []int {
	c0 := s.cellOf(minX, minY)
	c1 := s.cellOf(maxX, maxY)

	var out []int
	seen := make(map[int]struct{})
	collect := func(key cellKey) {
		for _, idx := range s.buckets[key] {
			if _, ok := seen[idx]; ok {
				continue
			}
			seen[idx] = struct{}{}
			out = append(out, idx)
		}
	}

	// 矩形覆盖的单元比非空单元还多时，改为遍历非空单元（按行优先排序，顺序与逐格扫描一致）
	span := (c1.X - c0.X + 1) * (c1.Y - c0.Y + 1)
	if span > len(s.buckets) {
		keys := make([]cellKey, 0, len(s.buckets))
		for k := range s.buckets {
			if k.X >= c0.X && k.X <= c1.X && k.Y >= c0.Y && k.Y <= c1.Y {
				keys = append(keys, k)
			}
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].Y != keys[j].Y {
				return keys[i].Y < keys[j].Y
			}
			return keys[i].X < keys[j].X
		})
		for _, k := range keys {
			collect(k)
		}
		return out
	}

	for cy := c0.Y; cy <= c1.Y; cy++ {
		for cx := c0.X; cx <= c1.X; cx++ {
			collect(cellKey{X: cx, Y: cy})
		}
	}
	return out
}

// maxSamples 一条线段最多采样次数：穿过整个网格所需次数，且不超过 maxInsertSamples
func (s *SpatialIndex) maxSamples() int {
	n := 2*(s.cols+s.rows) + 2
	if n > maxInsertSamples || n < 0 {
		return maxInsertSamples
	}
	return n
}

// Clone 深拷贝
func (s *SpatialIndex) Clone() *SpatialIndex {
	cp := &SpatialIndex{
		cellSize: s.cellSize,
		cols:     s.cols,
		rows:     s.rows,
		buckets:  make(map[cellKey][]int, len(s.buckets)),
	}
	for k, v := range s.buckets {
		cp.buckets[k] = append([]int(nil), v...)
	}
	return cp
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
