// Package imposetest は impose.Backend のテスト用実装を提供します。
//
// 入力バイト列は "WIDTHxHEIGHT" または "WIDTHxHEIGHTxPAGES" 形式の文字列として解釈します。
// 先頭の Header は読み飛ばします。"broken" で始まる入力は読み込みエラー、
// "noembed" で始まる入力は埋め込みエラーになります。
package imposetest

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/qiuxuhao/pdf-merge-tool/internal/impose"
)

// Header は Doc が付与するPDFシグネチャです。MIME判定を通すために使います。
const Header = "%PDF-1.4\n"

// ErrBroken は読み込みに失敗させる入力で返されます。
var ErrBroken = errors.New("imposetest: broken document")

// ErrEmbed は埋め込みに失敗させる入力で返されます。
var ErrEmbed = errors.New("imposetest: embed failed")

// Draw は記録された描画呼び出しです。
type Draw struct {
	Page     int
	Embedded int
	Source   string
	Rect     impose.Rect
}

// Backend はメモリ上で描画内容を記録します。
type Backend struct {
	// SerializeErr を設定すると Serialize が失敗します。
	SerializeErr error

	mu      sync.Mutex
	loaded  int
	closed  int
	outputs []*Output
}

// Doc は Backend で使う入力文書を組み立てます。
func Doc(width, height float64) []byte {
	return []byte(fmt.Sprintf("%s%gx%g", Header, width, height))
}

// Load は impose.Backend を実装します。
func (b *Backend) Load(data []byte) (impose.Document, error) {
	raw := strings.TrimPrefix(string(data), Header)
	if strings.HasPrefix(raw, "broken") {
		return nil, ErrBroken
	}
	d := &Document{backend: b, raw: raw, pages: 1}
	dims := strings.TrimPrefix(raw, "noembed:")
	if _, err := fmt.Sscanf(dims, "%gx%gx%d", &d.width, &d.height, &d.pages); err != nil {
		d.pages = 1
		if _, err := fmt.Sscanf(dims, "%gx%g", &d.width, &d.height); err != nil {
			return nil, fmt.Errorf("imposetest: parse %q: %w", raw, err)
		}
	}

	b.mu.Lock()
	b.loaded++
	b.mu.Unlock()
	return d, nil
}

// NewOutput は impose.Backend を実装します。
func (b *Backend) NewOutput() (impose.OutputDocument, error) {
	out := &Output{serializeErr: b.SerializeErr}
	b.mu.Lock()
	b.outputs = append(b.outputs, out)
	b.mu.Unlock()
	return out, nil
}

// Loaded は読み込みに成功した文書数を返します。
func (b *Backend) Loaded() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded
}

// Closed は Close された文書数を返します。
func (b *Backend) Closed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// LastOutput は最後に作成された出力を返します。
func (b *Backend) LastOutput() *Output {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.outputs) == 0 {
		return nil
	}
	return b.outputs[len(b.outputs)-1]
}

// Document はテスト用の入力文書です。
type Document struct {
	backend *Backend
	raw     string
	width   float64
	height  float64
	pages   int
}

func (d *Document) PageCount() int {
	return d.pages
}

func (d *Document) PageSize(pageIndex int) (float64, float64, error) {
	if pageIndex < 0 || pageIndex >= d.pages {
		return 0, 0, fmt.Errorf("imposetest: page %d out of range", pageIndex)
	}
	return d.width, d.height, nil
}

func (d *Document) Close() error {
	d.backend.mu.Lock()
	d.backend.closed++
	d.backend.mu.Unlock()
	return nil
}

// Output は描画呼び出しを記録する出力文書です。
type Output struct {
	mu           sync.Mutex
	pages        []impose.PageRef
	embedded     []string
	draws        []Draw
	serialized   bool
	serializeErr error
}

func (o *Output) CreatePage(width, height float64) (impose.PageRef, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ref := impose.PageRef{Index: len(o.pages), Width: width, Height: height}
	o.pages = append(o.pages, ref)
	return ref, nil
}

func (o *Output) EmbedPage(doc impose.Document, pageIndex int) (impose.EmbeddedPage, error) {
	d, ok := doc.(*Document)
	if !ok {
		return impose.EmbeddedPage{}, fmt.Errorf("imposetest: unexpected document %T", doc)
	}
	if strings.HasPrefix(d.raw, "noembed") {
		return impose.EmbeddedPage{}, ErrEmbed
	}
	w, h, err := d.PageSize(pageIndex)
	if err != nil {
		return impose.EmbeddedPage{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.embedded = append(o.embedded, d.raw)
	return impose.EmbeddedPage{ID: len(o.embedded) - 1, Width: w, Height: h}, nil
}

func (o *Output) DrawEmbeddedPage(page impose.PageRef, embedded impose.EmbeddedPage, rect impose.Rect) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if page.Index < 0 || page.Index >= len(o.pages) {
		return fmt.Errorf("imposetest: unknown page %d", page.Index)
	}
	if embedded.ID < 0 || embedded.ID >= len(o.embedded) {
		return fmt.Errorf("imposetest: unknown embedded page %d", embedded.ID)
	}
	o.draws = append(o.draws, Draw{
		Page:     page.Index,
		Embedded: embedded.ID,
		Source:   o.embedded[embedded.ID],
		Rect:     rect,
	})
	return nil
}

func (o *Output) Serialize() ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.serializeErr != nil {
		return nil, o.serializeErr
	}
	o.serialized = true
	return []byte(fmt.Sprintf("%%FAKE pages=%d draws=%d", len(o.pages), len(o.draws))), nil
}

// Pages は作成されたページを返します。
func (o *Output) Pages() []impose.PageRef {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]impose.PageRef(nil), o.pages...)
}

// Draws は記録された描画を返します。
func (o *Output) Draws() []Draw {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Draw(nil), o.draws...)
}

// DrawsOn は指定ページの描画だけを返します。
func (o *Output) DrawsOn(page int) []Draw {
	var out []Draw
	for _, d := range o.Draws() {
		if d.Page == page {
			out = append(out, d)
		}
	}
	return out
}
