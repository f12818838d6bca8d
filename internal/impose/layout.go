package impose

import "math"

// Compose はキャンバス・格子・向きからセル寸法を求めます。
func Compose(canvas Canvas, grid GridPlan, o Orientation) CellMetrics {
	marginX := canvas.Width * marginXRatio
	marginY := canvas.Height * marginYRatio

	availableWidth := canvas.Width - marginX*2
	availableHeight := canvas.Height - marginY*2

	rows := float64(grid.Rows)
	cellWidth := availableWidth / float64(grid.Columns)

	var cellHeight float64
	switch {
	case o == Portrait && grid.Rows >= 4:
		cellHeight = availableHeight / (rows * portraitDenseRowCompaction)
	case o == Portrait && grid.Rows == 3:
		cellHeight = availableHeight / (rows * portraitThreeRowCompaction)
	default:
		cellHeight = availableHeight / rows
	}

	spacingX := cellWidth * spacingXRatio
	spacingY := cellHeight * landscapeSpacingYRatio
	if o == Portrait {
		spacingY = cellHeight * portraitSpacingYRatio
	}

	return CellMetrics{
		MarginX:     marginX,
		MarginY:     marginY,
		CellWidth:   cellWidth,
		CellHeight:  cellHeight,
		SpacingX:    spacingX,
		SpacingY:    spacingY,
		InnerWidth:  cellWidth - spacingX*2,
		InnerHeight: cellHeight - spacingY*2,
	}
}

// CellFor はバッチ内の番号 j を (row, col) に変換します。
// 横向きは行優先、縦向きは列優先で埋めます。
func CellFor(j int, grid GridPlan, o Orientation) (row, col int) {
	if o == Landscape {
		return j / grid.Columns, j % grid.Columns
	}
	return j % grid.Rows, j / grid.Rows
}

// Scale は内側セルに収まる縮尺を返します。
func Scale(srcWidth, srcHeight float64, m CellMetrics, o Orientation) float64 {
	scaleX := m.InnerWidth / srcWidth
	scaleY := m.InnerHeight / srcHeight
	if o == Portrait {
		return math.Min(scaleX, scaleY*portraitFillBias) * portraitSafetyShrink
	}
	return math.Min(scaleX, scaleY) * landscapeSafetyShrink
}

// CellOrigin はセル左下の座標を返します。行0が最上段です。
func CellOrigin(row, col int, canvas Canvas, grid GridPlan, m CellMetrics, o Orientation) (x, y float64) {
	x = m.MarginX + float64(col)*m.CellWidth
	y = canvas.Height - m.MarginY - float64(row+1)*m.CellHeight
	if o == Portrait {
		rowSpacing := 0.0
		if grid.Rows > 2 {
			rowSpacing = float64(grid.Rows) * portraitRowSpacingFactor
		}
		y += rowSpacing * m.CellHeight * float64(row) / float64(grid.Rows)
	}
	return x, y
}

// Place はバッチ内 j 番目のソースページの描画矩形を求めます。
func Place(j int, srcWidth, srcHeight float64, canvas Canvas, grid GridPlan, m CellMetrics, o Orientation) Placement {
	row, col := CellFor(j, grid, o)
	scale := Scale(srcWidth, srcHeight, m, o)

	scaledWidth := srcWidth * scale
	scaledHeight := srcHeight * scale

	cellX, cellY := CellOrigin(row, col, canvas, grid, m, o)
	return Placement{
		Slot:  j,
		Row:   row,
		Col:   col,
		Scale: scale,
		Rect: Rect{
			X:      cellX + (m.CellWidth-scaledWidth)/2,
			Y:      cellY + (m.CellHeight-scaledHeight)/2,
			Width:  scaledWidth,
			Height: scaledHeight,
		},
	}
}
