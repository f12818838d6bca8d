package impose

// Backend は文書形式ごとの読み書きを提供します。
type Backend interface {
	// Load はバイト列から文書を読み込みます。
	Load(data []byte) (Document, error)
	// NewOutput は空の出力文書を作成します。
	NewOutput() (OutputDocument, error)
}

// Document は読み込み済みのソース文書です。
type Document interface {
	PageCount() int
	// PageSize は 0 始まりのページ番号に対する表示上の幅と高さを返します。
	PageSize(pageIndex int) (width, height float64, err error)
	Close() error
}

// OutputDocument は面付け結果を受け取る出力文書です。
type OutputDocument interface {
	CreatePage(width, height float64) (PageRef, error)
	EmbedPage(doc Document, pageIndex int) (EmbeddedPage, error)
	DrawEmbeddedPage(page PageRef, embedded EmbeddedPage, rect Rect) error
	Serialize() ([]byte, error)
}

// PageRef は出力文書内のページを指します。
type PageRef struct {
	Index  int
	Width  float64
	Height float64
}

// EmbeddedPage は出力文書へ取り込んだソースページです。
type EmbeddedPage struct {
	ID     int
	Width  float64
	Height float64
}
