// Package impose は複数の単一ページ文書を1枚の出力ページへ格子状に割り付ける
// N-up 面付けエンジンを提供します。
//
// 文書の読み込み・書き出しは Backend インターフェースの実装に委譲し、
// このパッケージは格子計画・セル寸法・配置計算とバッチ処理だけを担います。
package impose

import (
	"fmt"
	"strings"
)

// Orientation は出力キャンバスの向きです。
type Orientation string

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
)

// ParseOrientation は文字列から向きを解釈します（空文字は縦向き）。
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(Portrait):
		return Portrait, nil
	case string(Landscape):
		return Landscape, nil
	default:
		return "", fmt.Errorf("%w: unknown orientation %q", ErrInvalidRequest, s)
	}
}

// Valid は既知の向きかどうかを返します。
func (o Orientation) Valid() bool {
	return o == Portrait || o == Landscape
}

// Canvas は出力ページの寸法（pt）です。
type Canvas struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// A4 は縦向きの基準キャンバスです。
var A4 = Canvas{Width: 595.28, Height: 841.89}

// CanvasFor は向きに応じたキャンバスを返します。横向きは幅と高さを入れ替えます。
func CanvasFor(o Orientation) Canvas {
	if o == Landscape {
		return Canvas{Width: A4.Height, Height: A4.Width}
	}
	return A4
}

// GridPlan は1枚あたりの列数と行数です。
type GridPlan struct {
	Columns int `json:"columns"`
	Rows    int `json:"rows"`
}

// Slots は1枚に配置できるセル数です。
func (g GridPlan) Slots() int {
	return g.Columns * g.Rows
}

// CellMetrics はバッチ内の全ページで共有するセル寸法です。
type CellMetrics struct {
	MarginX     float64 `json:"marginX"`
	MarginY     float64 `json:"marginY"`
	CellWidth   float64 `json:"cellWidth"`
	CellHeight  float64 `json:"cellHeight"`
	SpacingX    float64 `json:"spacingX"`
	SpacingY    float64 `json:"spacingY"`
	InnerWidth  float64 `json:"innerWidth"`
	InnerHeight float64 `json:"innerHeight"`
}

// Rect は左下原点の矩形です。
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Placement は1ソースページの最終描画位置です。
type Placement struct {
	Source int     `json:"source"`
	Slot   int     `json:"slot"`
	Row    int     `json:"row"`
	Col    int     `json:"col"`
	Scale  float64 `json:"scale"`
	Rect   Rect    `json:"rect"`
}

// Sheet は出力ページ1枚分の配置結果です。
type Sheet struct {
	Index      int         `json:"index"`
	Placements []Placement `json:"placements"`
}

// SourcePage は読み込み済みソースの先頭ページです。
type SourcePage struct {
	Path   string
	Input  int
	Width  float64
	Height float64

	doc Document
}

// RunRequest は1回の面付け実行の入力です。
type RunRequest struct {
	Paths       []string
	Capacity    int
	Orientation Orientation

	// Progress は省略可能です。
	Progress ProgressFunc
}

// ProgressFunc は進捗通知用のコールバックです。done/total はステージ内の件数です。
type ProgressFunc func(stage string, done, total int)

// Result は面付け結果です。
type Result struct {
	PDF         []byte      `json:"-"`
	Canvas      Canvas      `json:"canvas"`
	Grid        GridPlan    `json:"grid"`
	Metrics     CellMetrics `json:"metrics"`
	Sheets      []Sheet     `json:"sheets"`
	SourceCount int         `json:"sourceCount"`
	Warnings    []Warning   `json:"warnings,omitempty"`
}
