package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/ericksa/contractlens/internal/storage"
)

type historyRow struct {
	ID                  string    `json:"id" yaml:"id"`
	FileName            string    `json:"fileName" yaml:"fileName"`
	Language            string    `json:"language" yaml:"language"`
	OverallScore        int       `json:"overallScore" yaml:"overallScore"`
	PowerImbalanceScore int       `json:"powerImbalanceScore" yaml:"powerImbalanceScore"`
	CreatedAt           time.Time `json:"createdAt" yaml:"createdAt"`
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [REPORT_ID]",
		Short: "List saved reports, newest first, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return storage.ErrNoUser
			}
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 1 {
				report, err := a.reports.Get(cmd.Context(), userID, args[0])
				if err != nil {
					return err
				}
				return render(a.out, outputFmt, report)
			}

			reports, err := a.reports.List(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return render(a.out, outputFmt, summarize(reports))
		},
	}
	return cmd
}

func summarize(reports []storage.StoredReport) []historyRow {
	rows := make([]historyRow, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, historyRow{
			ID:                  r.ID,
			FileName:            r.FileName,
			Language:            r.Language,
			OverallScore:        r.OverallScore,
			PowerImbalanceScore: r.PowerImbalanceScore,
			CreatedAt:           r.CreatedAt,
		})
	}
	return rows
}
