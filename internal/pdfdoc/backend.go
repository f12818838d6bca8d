// Package pdfdoc は pdfcpu を使って impose.Backend を実装します。
//
// ソースの1ページは単一ページPDFとして切り出して保持し、Serialize の時点で
// まとめて結合したうえで各ページを Form XObject に変換し、面付け後のページから参照します。
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/qiuxuhao/pdf-merge-tool/internal/impose"
)

// Backend は pdfcpu ベースの impose.Backend です。
type Backend struct {
	// Password は暗号化されたソースを開くためのパスワードです（省略可）。
	Password string
}

// New は Backend を作成します。
func New() *Backend {
	return &Backend{}
}

func (b *Backend) configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	if b.Password != "" {
		conf.UserPW = b.Password
		conf.OwnerPW = b.Password
	}
	return conf
}

// Load は impose.Backend を実装します。
func (b *Backend) Load(data []byte) (impose.Document, error) {
	if len(data) == 0 {
		return nil, errors.New("empty document")
	}
	ctx, err := pdfapi.ReadValidateAndOptimize(bytes.NewReader(data), b.configuration())
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}
	return &Document{ctx: ctx}, nil
}

// NewOutput は impose.Backend を実装します。
func (b *Backend) NewOutput() (impose.OutputDocument, error) {
	return &Output{conf: b.configuration}, nil
}

// Document は読み込み済みのPDFです。
type Document struct {
	mu  sync.Mutex
	ctx *model.Context
}

// PageCount は impose.Document を実装します。
func (d *Document) PageCount() int {
	return d.ctx.PageCount
}

// PageSize は impose.Document を実装します。回転指定がある場合は回転後の寸法を返します。
func (d *Document) PageSize(pageIndex int) (float64, float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	geom, err := pageGeometry(d.ctx, pageIndex+1)
	if err != nil {
		return 0, 0, err
	}
	w, h := geom.size()
	return w, h, nil
}

// Close は impose.Document を実装します。
func (d *Document) Close() error {
	d.mu.Lock()
	d.ctx = nil
	d.mu.Unlock()
	return nil
}

// extractPage は指定ページだけを含む単一ページPDFを書き出します。
func (d *Document) extractPage(pageNr int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return nil, errors.New("document already closed")
	}
	if pageNr < 1 || pageNr > d.ctx.PageCount {
		return nil, fmt.Errorf("page %d out of range (1-%d)", pageNr, d.ctx.PageCount)
	}

	single, err := extractPages(d.ctx, pageNr)
	if err != nil {
		return nil, fmt.Errorf("extract page %d: %w", pageNr, err)
	}
	var buf bytes.Buffer
	if err := pdfapi.WriteContext(single, &buf); err != nil {
		return nil, fmt.Errorf("write page %d: %w", pageNr, err)
	}
	return buf.Bytes(), nil
}

type geometry struct {
	box    *types.Rectangle
	rotate int
}

func (g geometry) size() (float64, float64) {
	if g.rotate%180 != 0 {
		return g.box.Height(), g.box.Width()
	}
	return g.box.Width(), g.box.Height()
}

func pageGeometry(ctx *model.Context, pageNr int) (geometry, error) {
	if ctx == nil {
		return geometry{}, errors.New("document already closed")
	}
	_, _, inh, err := ctx.PageDict(pageNr, false)
	if err != nil {
		return geometry{}, err
	}
	if inh == nil {
		return geometry{}, fmt.Errorf("page %d has no attributes", pageNr)
	}
	box := inh.CropBox
	if box == nil {
		box = inh.MediaBox
	}
	if box == nil {
		return geometry{}, fmt.Errorf("page %d has no media box", pageNr)
	}
	return geometry{box: box, rotate: normalizeRotation(inh.Rotate)}, nil
}

func normalizeRotation(r int) int {
	r %= 360
	if r < 0 {
		r += 360
	}
	return r
}
