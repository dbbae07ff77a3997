package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ericksa/contractlens/internal/analysis"
	"github.com/ericksa/contractlens/internal/extract"
)

type fileResult struct {
	File     string           `json:"file" yaml:"file"`
	ReportID string           `json:"reportId,omitempty" yaml:"reportId,omitempty"`
	Output   *analysis.Output `json:"output,omitempty" yaml:"output,omitempty"`
	Error    string           `json:"error,omitempty" yaml:"error,omitempty"`
}

func newAnalyzeCmd() *cobra.Command {
	var (
		language    string
		concurrency int
		save        bool
	)
	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Analyze one or more contracts (pdf, docx, html, txt)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, err := analysis.ParseLanguage(language)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			results := analyzeFiles(cmd.Context(), a, args, lang, concurrency, save)
			if err := render(a.out, outputFmt, results); err != nil {
				return err
			}
			for _, r := range results {
				if r.Error != "" {
					return fmt.Errorf("%s: %s", r.File, r.Error)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "en", "explanation language: en, hi, mr, ta, bn, te")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 2, "files analyzed in parallel")
	cmd.Flags().BoolVar(&save, "save", true, "save reports when --user is set")
	return cmd
}

// analyzeFiles runs each file through the pipeline with at most limit in
// flight. Per-file failures are reported in the result, not returned.
func analyzeFiles(ctx context.Context, a *app, files []string, lang analysis.Language, limit int, save bool) []fileResult {
	if limit < 1 {
		limit = 1
	}
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, file := range files {
		g.Go(func() error {
			results[i] = analyzeFile(ctx, a, file, lang, save)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func analyzeFile(ctx context.Context, a *app, file string, lang analysis.Language, save bool) fileResult {
	res := fileResult{File: file}
	name := filepath.Base(file)

	data, err := os.ReadFile(file)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	text, err := extract.Text(data, "", name)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	out, err := a.pipeline.Run(ctx, analysis.Input{
		FileText: text,
		FileName: name,
		Language: lang,
		Progress: func(label string, percent int) {
			a.logger.Debug("progress", zap.String("file", name), zap.String("step", label), zap.Int("percent", percent))
		},
	})
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Output = &out

	if save && userID != "" && a.reports != nil {
		id, err := a.reports.Save(ctx, userID, name, out)
		if err != nil {
			a.logger.Warn("failed to save report", zap.String("file", name), zap.Error(err))
		} else {
			res.ReportID = id
		}
	}
	return res
}
