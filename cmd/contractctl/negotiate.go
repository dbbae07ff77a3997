package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ericksa/contractlens/internal/analysis"
	"github.com/ericksa/contractlens/internal/negotiation"
	"github.com/ericksa/contractlens/internal/storage"
)

func newNegotiateCmd() *cobra.Command {
	var (
		reportID   string
		clauseID   string
		clauseFile string
		archetype  string
		maxRounds  int
	)
	cmd := &cobra.Command{
		Use:   "negotiate",
		Short: "Simulate negotiating one clause",
		Long: `Simulate negotiating one risk-assessed clause against a counterparty.

The clause comes either from a saved report (--report and --clause, needs --user)
or from a JSON file holding a single risked clause (--clause-file).

Archetypes: aggressive_corporate, small_landlord, mnc_standard,
cooperative_employer, bank_loan_officer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			arch, err := negotiation.ParseArchetype(archetype)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			var clause analysis.RiskedClause
			switch {
			case clauseFile != "":
				clause, err = readClauseFile(clauseFile)
			case reportID != "" && clauseID != "":
				clause, err = clauseFromReport(cmd, a, reportID, clauseID)
			default:
				err = errors.New("either --clause-file or both --report and --clause are required")
			}
			if err != nil {
				return err
			}

			if maxRounds == 0 {
				maxRounds = a.cfg.Negotiation.MaxRounds
			}
			result, err := a.simulator.Negotiate(cmd.Context(), negotiation.Request{
				Clause:    clause,
				Archetype: arch,
				MaxRounds: maxRounds,
			})
			if err != nil {
				return err
			}
			return render(a.out, outputFmt, result)
		},
	}
	cmd.Flags().StringVar(&reportID, "report", "", "saved report id")
	cmd.Flags().StringVar(&clauseID, "clause", "", "clause id within the report")
	cmd.Flags().StringVar(&clauseFile, "clause-file", "", "JSON file with one risked clause")
	cmd.Flags().StringVarP(&archetype, "archetype", "a", string(negotiation.AggressiveCorporate), "counterparty archetype")
	cmd.Flags().IntVarP(&maxRounds, "max-rounds", "r", 0, "round limit (default from config, at most 10)")
	return cmd
}

func readClauseFile(path string) (analysis.RiskedClause, error) {
	var c analysis.RiskedClause
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

func clauseFromReport(cmd *cobra.Command, a *app, reportID, clauseID string) (analysis.RiskedClause, error) {
	if userID == "" {
		return analysis.RiskedClause{}, storage.ErrNoUser
	}
	report, err := a.reports.Get(cmd.Context(), userID, reportID)
	if err != nil {
		return analysis.RiskedClause{}, err
	}
	for _, c := range report.Output.RiskReport.Clauses {
		if c.ID == clauseID {
			return c, nil
		}
	}
	return analysis.RiskedClause{}, fmt.Errorf("clause %q not found in report %s", clauseID, reportID)
}
