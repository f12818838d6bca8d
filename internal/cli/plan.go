package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/qiuxuhao/pdf-merge-tool/internal/impose"
)

func newPlanCmd() *cobra.Command {
	var (
		capacity    int
		orientation string
		sourceSize  string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the grid and cell placement for a capacity without reading any PDF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if capacity <= 0 {
				return fmt.Errorf("%w: capacity must be positive (got %d)", impose.ErrInvalidRequest, capacity)
			}
			o, err := impose.ParseOrientation(orientation)
			if err != nil {
				return err
			}
			w, h, err := parseSize(sourceSize)
			if err != nil {
				return err
			}
			return writePlan(cmd.OutOrStdout(), capacity, o, w, h)
		},
	}

	cmd.Flags().IntVarP(&capacity, "capacity", "n", defaultCapacity, "number of source pages per sheet")
	cmd.Flags().StringVarP(&orientation, "orientation", "O", string(defaultOrientation), "sheet orientation: portrait or landscape")
	cmd.Flags().StringVar(&sourceSize, "source-size", "595.28x841.89", "source page size in points, WIDTHxHEIGHT")
	return cmd
}

func writePlan(out io.Writer, capacity int, o impose.Orientation, srcW, srcH float64) error {
	canvas := impose.CanvasFor(o)
	grid := impose.Plan(capacity, o, canvas)
	m := impose.Compose(canvas, grid, o)

	fmt.Fprintf(out, "canvas  %.2f x %.2f pt (%s)\n", canvas.Width, canvas.Height, o)
	fmt.Fprintf(out, "grid    %d columns x %d rows (%d slots)\n", grid.Columns, grid.Rows, grid.Slots())
	fmt.Fprintf(out, "cell    %.2f x %.2f pt, inner %.2f x %.2f pt\n", m.CellWidth, m.CellHeight, m.InnerWidth, m.InnerHeight)
	fmt.Fprintf(out, "margin  %.2f / %.2f pt, spacing %.2f / %.2f pt\n\n", m.MarginX, m.MarginY, m.SpacingX, m.SpacingY)

	rows := make([][]string, 0, capacity)
	for j := 0; j < capacity; j++ {
		p := impose.Place(j, srcW, srcH, canvas, grid, m, o)
		rows = append(rows, []string{
			fmt.Sprint(p.Slot), fmt.Sprint(p.Row), fmt.Sprint(p.Col),
			fmt.Sprintf("%.2f", p.Rect.X), fmt.Sprintf("%.2f", p.Rect.Y),
			fmt.Sprintf("%.2f", p.Rect.Width), fmt.Sprintf("%.2f", p.Rect.Height),
			fmt.Sprintf("%.4f", p.Scale),
		})
	}
	return writeTable(out, []string{"SLOT", "ROW", "COL", "X", "Y", "WIDTH", "HEIGHT", "SCALE"}, rows)
}
