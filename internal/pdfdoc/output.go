package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	pdfcpu "github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/qiuxuhao/pdf-merge-tool/internal/impose"
)

type embeddedSource struct {
	pdf    []byte
	form   []byte
	width  float64
	height float64
}

type drawOp struct {
	embedded int
	rect     impose.Rect
}

type sheet struct {
	width  float64
	height float64
	draws  []drawOp
}

// Output は面付け結果を組み立てる出力PDFです。
type Output struct {
	conf func() *model.Configuration

	mu       sync.Mutex
	embedded []embeddedSource
	sheets   []*sheet
}

// CreatePage は impose.OutputDocument を実装します。
func (o *Output) CreatePage(width, height float64) (impose.PageRef, error) {
	if width <= 0 || height <= 0 {
		return impose.PageRef{}, fmt.Errorf("invalid page size %.2fx%.2f", width, height)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sheets = append(o.sheets, &sheet{width: width, height: height})
	return impose.PageRef{Index: len(o.sheets) - 1, Width: width, Height: height}, nil
}

// EmbedPage は impose.OutputDocument を実装します。
func (o *Output) EmbedPage(doc impose.Document, pageIndex int) (impose.EmbeddedPage, error) {
	d, ok := doc.(*Document)
	if !ok {
		return impose.EmbeddedPage{}, fmt.Errorf("unsupported document type %T", doc)
	}
	width, height, err := d.PageSize(pageIndex)
	if err != nil {
		return impose.EmbeddedPage{}, err
	}
	// 内容の解読はここで済ませ、壊れたページはそのセルだけの失敗にする
	form, err := d.formContent(pageIndex + 1)
	if err != nil {
		return impose.EmbeddedPage{}, err
	}
	data, err := d.extractPage(pageIndex + 1)
	if err != nil {
		return impose.EmbeddedPage{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.embedded = append(o.embedded, embeddedSource{pdf: data, form: form, width: width, height: height})
	return impose.EmbeddedPage{ID: len(o.embedded) - 1, Width: width, Height: height}, nil
}

// DrawEmbeddedPage は impose.OutputDocument を実装します。
func (o *Output) DrawEmbeddedPage(page impose.PageRef, embedded impose.EmbeddedPage, rect impose.Rect) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if page.Index < 0 || page.Index >= len(o.sheets) {
		return fmt.Errorf("unknown output page %d", page.Index)
	}
	if embedded.ID < 0 || embedded.ID >= len(o.embedded) {
		return fmt.Errorf("unknown embedded page %d", embedded.ID)
	}
	if rect.Width <= 0 || rect.Height <= 0 {
		return fmt.Errorf("invalid draw size %.2fx%.2f", rect.Width, rect.Height)
	}
	s := o.sheets[page.Index]
	s.draws = append(s.draws, drawOp{embedded: embedded.ID, rect: rect})
	return nil
}

// Serialize は impose.OutputDocument を実装します。
func (o *Output) Serialize() ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sheets) == 0 {
		return nil, errors.New("output has no pages")
	}

	ctx, err := o.sourceContext()
	if err != nil {
		return nil, err
	}

	forms := make([]types.IndirectRef, len(o.embedded))
	for i, e := range o.embedded {
		ref, err := formXObject(ctx, i+1, e)
		if err != nil {
			return nil, fmt.Errorf("convert embedded page %d: %w", i+1, err)
		}
		forms[i] = *ref
	}

	pagesRef := ctx.RootDict.IndirectRefEntry("Pages")
	if pagesRef == nil {
		return nil, errors.New("page tree root not found")
	}
	pagesDict, err := ctx.DereferenceDict(*pagesRef)
	if err != nil {
		return nil, fmt.Errorf("read page tree: %w", err)
	}
	if pagesDict == nil {
		return nil, errors.New("page tree root is empty")
	}

	kids := make(types.Array, 0, len(o.sheets))
	for i, s := range o.sheets {
		ref, err := o.writeSheet(ctx, *pagesRef, s, forms)
		if err != nil {
			return nil, fmt.Errorf("write sheet %d: %w", i+1, err)
		}
		kids = append(kids, *ref)
	}

	// 元ページは参照されなくなるため、継承属性としおり類も外しておく
	pagesDict.Update("Kids", kids)
	pagesDict.Update("Count", types.Integer(len(kids)))
	for _, key := range []string{"MediaBox", "CropBox", "Rotate", "Resources"} {
		pagesDict.Delete(key)
	}
	for _, key := range []string{"Outlines", "PageLabels", "AcroForm"} {
		ctx.RootDict.Delete(key)
	}
	ctx.PageCount = len(kids)

	var buf bytes.Buffer
	if err := pdfapi.WriteContext(ctx, &buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// sourceContext は埋め込み済みページを入力順に結合したコンテキストを返します。
// ページ番号 i+1 が embedded[i] に対応します。
func (o *Output) sourceContext() (*model.Context, error) {
	conf := o.conf()
	if len(o.embedded) == 0 {
		first := o.sheets[0]
		return pdfcpu.CreateContextWithXRefTable(conf, &types.Dim{Width: first.width, Height: first.height})
	}

	merged := o.embedded[0].pdf
	if len(o.embedded) > 1 {
		readers := make([]io.ReadSeeker, len(o.embedded))
		for i, e := range o.embedded {
			readers[i] = bytes.NewReader(e.pdf)
		}
		var out bytes.Buffer
		if err := pdfapi.MergeRaw(readers, &out, false, conf); err != nil {
			return nil, fmt.Errorf("merge embedded pages: %w", err)
		}
		merged = out.Bytes()
	}

	// 最適化するとページ単位のキャッシュが元のページ数で作られるため、読み込みと検証だけ行う
	ctx, err := pdfapi.ReadContext(bytes.NewReader(merged), conf)
	if err != nil {
		return nil, fmt.Errorf("read merged pages: %w", err)
	}
	if err := pdfapi.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("validate merged pages: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, err
	}
	if ctx.PageCount != len(o.embedded) {
		return nil, fmt.Errorf("merged page count %d does not match %d embedded pages", ctx.PageCount, len(o.embedded))
	}
	return ctx, nil
}

// formXObject は埋め込み済みページ e を Form XObject として追加します。
// リソースは結合後のコンテキストにあるページ pageNr のものを使います。
func formXObject(ctx *model.Context, pageNr int, e embeddedSource) (*types.IndirectRef, error) {
	_, _, inh, err := ctx.PageDict(pageNr, true)
	if err != nil {
		return nil, err
	}
	if inh == nil {
		return nil, fmt.Errorf("page %d not found", pageNr)
	}

	sd, err := ctx.NewStreamDictForBuf(e.form)
	if err != nil {
		return nil, err
	}
	sd.InsertName("Type", "XObject")
	sd.InsertName("Subtype", "Form")
	sd.Insert("BBox", types.RectForWidthAndHeight(0, 0, e.width, e.height).Array())
	resources := inh.Resources
	if resources == nil {
		resources = types.NewDict()
	}
	sd.Insert("Resources", resources)
	if err := sd.Encode(); err != nil {
		return nil, err
	}
	return ctx.IndRefForNewObject(*sd)
}

// writeSheet は1枚分のページ辞書とコンテンツストリームを追加します。
func (o *Output) writeSheet(ctx *model.Context, parent types.IndirectRef, s *sheet, forms []types.IndirectRef) (*types.IndirectRef, error) {
	xobjects := types.NewDict()
	var buf bytes.Buffer
	for i, d := range s.draws {
		e := o.embedded[d.embedded]
		name := fmt.Sprintf("Fm%d", i)
		xobjects.Insert(name, forms[d.embedded])
		fmt.Fprintf(&buf, "q %.5f 0 0 %.5f %.5f %.5f cm /%s Do Q\n",
			d.rect.Width/e.width, d.rect.Height/e.height, d.rect.X, d.rect.Y, name)
	}

	sd, err := ctx.NewStreamDictForBuf(buf.Bytes())
	if err != nil {
		return nil, err
	}
	if err := sd.Encode(); err != nil {
		return nil, err
	}
	contentRef, err := ctx.IndRefForNewObject(*sd)
	if err != nil {
		return nil, err
	}

	resources := types.NewDict()
	if len(s.draws) > 0 {
		resources.Insert("XObject", xobjects)
	}

	page := types.NewDict()
	page.InsertName("Type", "Page")
	page.Insert("Parent", parent)
	page.Insert("MediaBox", types.RectForWidthAndHeight(0, 0, s.width, s.height).Array())
	page.Insert("Resources", resources)
	page.Insert("Contents", *contentRef)
	return ctx.IndRefForNewObject(page)
}

func extractPages(ctx *model.Context, pageNr int) (*model.Context, error) {
	return pdfcpu.ExtractPages(ctx, []int{pageNr}, false)
}
