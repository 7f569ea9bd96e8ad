package showsoc

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"strconv"

	"github.com/go-analyze/charts"
	"github.com/mattn/go-sixel"
	"github.com/mdouchement/rfboard"
	"github.com/mdouchement/rfboard/calc"
	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	var cpath string
	var resolution int

	cmd := &cobra.Command{
		Use:   "show-soc",
		Short: "Show the state-of-charge curve of the battery",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := rfboard.Load(cpath)
			if err != nil {
				return err
			}

			soc := calc.StateOfCharge{
				Full:  cfg.Battery.Full,
				Empty: cfg.Battery.Empty,
			}

			//
			// Compute points
			//

			const step = 0.01 // ADC resolution is far below 10mV once scaled.
			from, to := rfboard.CurveRange(soc)
			points, err := rfboard.SoCCurve(soc, from, to, step)
			if err != nil {
				return err
			}

			ls := charts.LineSeries{
				Name: fmt.Sprintf("%.1fV - %.1fV", soc.Empty, soc.Full),
			}
			labels := make([]string, 0, len(points))
			for _, p := range points {
				ls.Values = append(ls.Values, float64(p.Percent))
				labels = append(labels, strconv.FormatFloat(p.Voltage, 'f', 1, 64))
			}

			//
			// Render chart
			//

			opt := charts.NewLineChartOptionWithSeries(charts.LineSeriesList{ls})
			opt.Theme = charts.GetTheme(charts.ThemeVividDark)
			opt.Padding = charts.NewBox(20, 20, 20, 20)
			opt.Title.Text = fmt.Sprintf("State of charge (%d cells)", cfg.Battery.Cells)
			opt.Title.FontStyle.FontSize = 16
			opt.Title.Offset = charts.OffsetLeft
			opt.Legend = charts.LegendOption{
				Show:     rfboard.ToPtr(true),
				Offset:   charts.OffsetCenter,
				Vertical: rfboard.ToPtr(true),
				Padding:  charts.NewBox(0, 0, 0, 20),
			}
			opt.Symbol = charts.SymbolNone
			opt.LineStrokeWidth = 2
			opt.XAxis.Show = rfboard.ToPtr(true)
			opt.XAxis.Title = "V"
			opt.XAxis.Labels = labels
			opt.XAxis.LabelCount = 10
			opt.YAxis = []charts.YAxisOption{
				{
					Show:                   rfboard.ToPtr(true),
					Title:                  "%",
					Min:                    rfboard.ToPtr(float64(0)),
					Max:                    rfboard.ToPtr(float64(100)),
					RangeValuePaddingScale: rfboard.ToPtr(float64(0)),
					Unit:                   10,
				},
			}
			p := charts.NewPainter(charts.PainterOptions{
				OutputFormat: charts.ChartOutputPNG,
				Width:        resolution,
				Height:       int(float64(resolution) / (16.0 / 9.0)),
			})

			if err = p.LineChart(opt); err != nil {
				return fmt.Errorf("soc: %w", err)
			}

			mPNG, err := p.Bytes()
			if err != nil {
				return fmt.Errorf("soc: %w", err)
			}

			m, _, err := image.Decode(bytes.NewReader(mPNG))
			if err != nil {
				return fmt.Errorf("soc: %w", err)
			}

			codec := sixel.NewEncoder(os.Stdout)
			if err = codec.Encode(m); err != nil {
				return fmt.Errorf("soc: %w", err)
			}

			return nil
		},
	}
	cmd.Flags().StringVarP(&cpath, "config", "c", rfboard.DefaultConfigPath, "Configfile path")
	cmd.Flags().IntVarP(&resolution, "resolution", "r", 1000, "The width size in pixel of the graph")

	return cmd
}
