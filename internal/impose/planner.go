package impose

import "math"

type planKey struct {
	capacity    int
	orientation Orientation
}

// プレビュー画面と同じ配置になるよう、よく使う枚数は固定表で決める。
var gridTable = map[planKey]GridPlan{
	{2, Landscape}:  {Columns: 2, Rows: 1},
	{4, Landscape}:  {Columns: 2, Rows: 2},
	{6, Landscape}:  {Columns: 3, Rows: 2},
	{8, Landscape}:  {Columns: 4, Rows: 2},
	{10, Landscape}: {Columns: 5, Rows: 2},

	{2, Portrait}:  {Columns: 1, Rows: 2},
	{4, Portrait}:  {Columns: 2, Rows: 2},
	{6, Portrait}:  {Columns: 2, Rows: 3},
	{8, Portrait}:  {Columns: 2, Rows: 4},
	{10, Portrait}: {Columns: 2, Rows: 5},
}

// SupportedCapacities は固定表に載っている枚数です。
var SupportedCapacities = []int{2, 4, 6, 8, 10}

// Plan は1枚あたりの枚数と向きから格子を決めます。
// capacity は1以上であることを呼び出し側が保証します。
func Plan(capacity int, o Orientation, canvas Canvas) GridPlan {
	if g, ok := gridTable[planKey{capacity, o}]; ok {
		return g
	}
	return fallbackPlan(capacity, o, canvas)
}

// fallbackPlan は横向きなら列を、縦向きなら行を優先して増やします。
func fallbackPlan(capacity int, o Orientation, canvas Canvas) GridPlan {
	n := float64(capacity)
	if o == Landscape {
		cols := int(math.Ceil(math.Sqrt(n * (canvas.Width / canvas.Height))))
		if cols < 1 {
			cols = 1
		}
		return GridPlan{Columns: cols, Rows: ceilDiv(capacity, cols)}
	}

	rows := int(math.Ceil(math.Sqrt(n)))
	if rows < 1 {
		rows = 1
	}
	return GridPlan{Columns: ceilDiv(capacity, rows), Rows: rows}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
