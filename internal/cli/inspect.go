package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newInspectCmd(backend BackendFactory) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "inspect [files...]",
		Short: "Print page count and first page size of PDF files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			b := backend(password)

			var rows [][]string
			failed := 0
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					logger.Error("read failed", "file", path, "err", err)
					failed++
					continue
				}
				doc, err := b.Load(data)
				if err != nil {
					logger.Error("not a readable PDF", "file", path, "err", err)
					failed++
					continue
				}
				w, h, err := doc.PageSize(0)
				pages := doc.PageCount()
				_ = doc.Close()
				if err != nil {
					logger.Error("no usable page", "file", path, "err", err)
					failed++
					continue
				}
				rows = append(rows, []string{path, fmt.Sprint(pages), fmt.Sprintf("%.2f", w), fmt.Sprintf("%.2f", h)})
			}
			if len(rows) > 0 {
				if err := writeTable(cmd.OutOrStdout(), []string{"FILE", "PAGES", "WIDTH", "HEIGHT"}, rows); err != nil {
					return err
				}
			}
			if failed == len(args) {
				return fmt.Errorf("none of the %d file(s) could be read", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password for encrypted sources")
	return cmd
}
