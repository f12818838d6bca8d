package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/matrix"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// formMatrix はページ座標を Form XObject の座標 [0 0 w h] に写す行列です。
// w, h は回転後の表示寸法です。
func formMatrix(g geometry) matrix.Matrix {
	m := matrix.IdentMatrix
	m[2][0] = -g.box.LL.X
	m[2][1] = -g.box.LL.Y
	if g.rotate == 0 {
		return m
	}

	// /Rotate は時計回り
	w, h := g.size()
	var dx, dy float64
	switch g.rotate {
	case 90:
		dy = h
	case 180:
		dx, dy = w, h
	case 270:
		dx = w
	}
	return m.Multiply(matrix.CalcRotateAndTranslateTransformMatrix(float64(-g.rotate), dx, dy))
}

func pageContent(ctx *model.Context, pageDict types.Dict) ([]byte, error) {
	if _, found := pageDict.Find("Contents"); !found {
		return nil, nil
	}
	content, err := ctx.PageContent(pageDict)
	if errors.Is(err, model.ErrNoContent) {
		return nil, nil
	}
	return content, err
}

// formContent はページ pageNr の内容を Form XObject 用のコンテンツに変換します。
func (d *Document) formContent(pageNr int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	geom, err := pageGeometry(d.ctx, pageNr)
	if err != nil {
		return nil, err
	}
	pageDict, _, _, err := d.ctx.PageDict(pageNr, false)
	if err != nil {
		return nil, err
	}
	if pageDict == nil {
		return nil, fmt.Errorf("page %d not found", pageNr)
	}
	content, err := pageContent(d.ctx, pageDict)
	if err != nil {
		return nil, fmt.Errorf("read content of page %d: %w", pageNr, err)
	}

	m := formMatrix(geom)
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "q %.5f %.5f %.5f %.5f %.5f %.5f cm\n", m[0][0], m[0][1], m[1][0], m[1][1], m[2][0], m[2][1])
	buf.Write(content)
	buf.WriteString("\nQ")
	return buf.Bytes(), nil
}
