package engine

import "math"

// 每 Tick 玩家从 prev 移动到 next，把这段位移看作一条线段（扫掠路径），
// 判断它是否与已有轨迹段的距离不超过 radius。
// 宽相位：空间索引给出附近的候选；窄相位：对候选做精确几何计算。
// 所有比较都使用距离平方，避免开方。

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// distPointToSegSq 点 P 到线段 AB 的距离平方（投影参数钳制到 [0,1]）
func distPointToSegSq(px, py, ax, ay, bx, by float64) float64 {
	abx, aby := bx-ax, by-ay
	apx, apy := px-ax, py-ay
	abLenSq := abx*abx + aby*aby
	if abLenSq == 0 {
		return apx*apx + apy*apy
	}
	t := clamp01((apx*abx + apy*aby) / abLenSq)
	dx := px - (ax + abx*t)
	dy := py - (ay + aby*t)
	return dx*dx + dy*dy
}

// orient >0: C 在有向直线 A->B 左侧；<0: 右侧；=0: 共线
func orient(ax, ay, bx, by, cx, cy float64) float64 {
	return (bx-ax)*(cy-ay) - (by-ay)*(cx-ax)
}

// onSegment 已知共线时，P 是否落在 AB 的包围盒内
func onSegment(ax, ay, bx, by, px, py float64) bool {
	return math.Min(ax, bx) <= px && px <= math.Max(ax, bx) &&
		math.Min(ay, by) <= py && py <= math.Max(ay, by)
}

// segmentsIntersect 精确线段相交（含共线重叠/端点接触）
func segmentsIntersect(a, b Segment) bool {
	o1 := orient(a.X1, a.Y1, a.X2, a.Y2, b.X1, b.Y1)
	o2 := orient(a.X1, a.Y1, a.X2, a.Y2, b.X2, b.Y2)
	o3 := orient(b.X1, b.Y1, b.X2, b.Y2, a.X1, a.Y1)
	o4 := orient(b.X1, b.Y1, b.X2, b.Y2, a.X2, a.Y2)

	if (o1 > 0) != (o2 > 0) && (o3 > 0) != (o4 > 0) &&
		o1 != 0 && o2 != 0 && o3 != 0 && o4 != 0 {
		return true
	}

	if o1 == 0 && onSegment(a.X1, a.Y1, a.X2, a.Y2, b.X1, b.Y1) {
		return true
	}
	if o2 == 0 && onSegment(a.X1, a.Y1, a.X2, a.Y2, b.X2, b.Y2) {
		return true
	}
	if o3 == 0 && onSegment(b.X1, b.Y1, b.X2, b.Y2, a.X1, a.Y1) {
		return true
	}
	if o4 == 0 && onSegment(b.X1, b.Y1, b.X2, b.Y2, a.X2, a.Y2) {
		return true
	}
	return false
}

// distSegToSegSq 两条线段的最小距离平方；相交时为 0
func distSegToSegSq(a, b Segment) float64 {
	if segmentsIntersect(a, b) {
		return 0
	}
	d1 := distPointToSegSq(a.X1, a.Y1, b.X1, b.Y1, b.X2, b.Y2)
	d2 := distPointToSegSq(a.X2, a.Y2, b.X1, b.Y1, b.X2, b.Y2)
	d3 := distPointToSegSq(b.X1, b.Y1, a.X1, a.Y1, a.X2, a.Y2)
	d4 := distPointToSegSq(b.X2, b.Y2, a.X1, a.Y1, a.X2, a.Y2)
	return math.Min(math.Min(d1, d2), math.Min(d3, d4))
}

// CheckCollision 判断 owner 本 Tick 的扫掠路径 (prevX,prevY)->(x,y) 是否撞上 segments 中的轨迹。
// exclude 为不参与检测的下标（玩家自己最近的尾段，防止在生成点自撞）。
func CheckCollision(index *SpatialIndex, segments []Segment, ownerID string,
	prevX, prevY, x, y, radius float64, exclude []int) bool {

	move := Segment{X1: prevX, Y1: prevY, X2: x, Y2: y, OwnerID: ownerID}

	minX := math.Min(prevX, x) - radius
	minY := math.Min(prevY, y) - radius
	maxX := math.Max(prevX, x) + radius
	maxY := math.Max(prevY, y) + radius

	r2 := radius * radius
	for _, idx := range index.Query(minX, minY, maxX, maxY) {
		if idx < 0 || idx >= len(segments) || containsInt(exclude, idx) {
			continue
		}
		if distSegToSegSq(move, segments[idx]) <= r2 {
			return true
		}
	}
	return false
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
