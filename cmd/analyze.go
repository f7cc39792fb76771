package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"thermal-eye/config"
	app "thermal-eye/internal/application"
	"thermal-eye/internal/container"
	"thermal-eye/internal/domain/entity"
)

func newAnalyzeCommand() *cobra.Command {
	var (
		ambient          float64
		ambientSet       bool
		fallbackDecoder  bool
		fallbackDetector bool
		confidence       float64
		iou              float64
		showReport       bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <файл>...",
		Short: "Проанализировать термограммы из файлов",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			c, err := container.New(cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			ambientSet = cmd.Flags().Changed("ambient")
			if !ambientSet {
				ambient = cfg.Analysis.DefaultAmbient
			}

			opts := c.AnalysisService.Defaults()
			opts.ForceFallbackDecoder = fallbackDecoder
			opts.ForceFallbackDetector = fallbackDetector
			if cmd.Flags().Changed("confidence") {
				opts.ConfidenceThreshold = confidence
			}
			if cmd.Flags().Changed("iou") {
				opts.IoUMergeThreshold = iou
			}

			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}

				opts.Filename = path
				res, err := c.AnalysisService.Analyze(cmd.Context(), data, ambient, &opts)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", path, res.Error)
					continue
				}

				printResult(cmd, res)
				if showReport {
					fmt.Fprintln(cmd.OutOrStdout())
					fmt.Fprint(cmd.OutOrStdout(), app.BuildReport(res))
				}
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&ambient, "ambient", 34.0, "температура окружающей среды, °C")
	cmd.Flags().BoolVar(&fallbackDecoder, "fallback-decoder", false, "пропустить радиометрический экстрактор")
	cmd.Flags().BoolVar(&fallbackDetector, "fallback-detector", false, "пропустить обученную модель")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.3, "минимальная уверенность обнаружения")
	cmd.Flags().Float64Var(&iou, "iou", 0.5, "порог IoU для слияния областей")
	cmd.Flags().BoolVar(&showReport, "report", false, "вывести полный текстовый отчёт")

	return cmd
}

// printResult выводит сводку и таблицу находок.
func printResult(cmd *cobra.Command, res *entity.AnalysisResult) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s: %s", res.Filename, res.Status)
	if !res.Radiometric {
		fmt.Fprint(out, " (температуры оценочные)")
	}
	fmt.Fprintln(out)
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}

	if len(res.Findings) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"#", "Компонент", "Область", "Макс °C", "Превышение", "Риск"})
	for i, f := range res.Findings {
		region := fmt.Sprintf("(%d,%d) %dx%d",
			f.Detection.Box.X, f.Detection.Box.Y, f.Detection.Box.Width, f.Detection.Box.Height)
		maxTemp := fmt.Sprintf("%.1f", f.Verdict.MaxTemp)
		rise := fmt.Sprintf("%.1f", f.Verdict.Rise)
		if f.Verdict.Degenerate {
			maxTemp, rise = "-", "-"
		}
		t.AppendRow(table.Row{i + 1, f.Detection.Type, region, maxTemp, rise, f.Verdict.Tier})
	}
	t.Render()
}
