// Package cli は nup コマンドを実装します。
//
// サブコマンド:
//   - impose: 複数のPDFをA4の1ページに並べて1つのPDFに書き出す
//   - plan: 格子と配置寸法を表示する（PDFは読み込まない）
//   - inspect: PDFのページ数と先頭ページのサイズを表示する
package cli

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/qiuxuhao/pdf-merge-tool/internal/impose"
	"github.com/qiuxuhao/pdf-merge-tool/internal/pdfdoc"
)

var version = "dev"

// BackendFactory はパスワードから面付けバックエンドを作成します。
type BackendFactory func(password string) impose.Backend

func defaultBackend(password string) impose.Backend {
	return &pdfdoc.Backend{Password: password}
}

// Execute は nup を実行します。
func Execute(ctx context.Context) error {
	return NewRootCommand(os.Stderr, defaultBackend).ExecuteContext(ctx)
}

// NewRootCommand はルートコマンドを組み立てます。ログは logOut に出力されます。
func NewRootCommand(logOut io.Writer, backend BackendFactory) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "nup",
		Short:         "Place several PDFs onto single A4 sheets",
		Long:          `nup merges PDF files by laying their first pages out in a grid, several per A4 sheet, in portrait or landscape.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := log.InfoLevel
			if verbose {
				level = log.DebugLevel
			}
			cmd.SetContext(withLogger(cmd.Context(), newLogger(logOut, level)))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newImposeCmd(backend))
	root.AddCommand(newPlanCmd())
	root.AddCommand(newInspectCmd(backend))
	return root
}
