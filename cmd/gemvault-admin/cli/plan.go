package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/gemvault/gemvault/internal/billing"
	"github.com/gemvault/gemvault/internal/money"
)

func newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Payment plan tools",
	}
	preview := &cobra.Command{
		Use:     "preview",
		Short:   "Print the schedule a payment term would produce for a total",
		Example: "  gemvault-admin plan preview --total 1000 --term term.json --issue-date 2024-01-15",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			rawTotal, _ := flags.GetString("total")
			termPath, _ := flags.GetString("term")
			rawDate, _ := flags.GetString("issue-date")
			asJSON, _ := flags.GetBool("json")

			total, err := decimal.NewFromString(rawTotal)
			if err != nil {
				return fmt.Errorf("--total: %w", err)
			}
			issue := time.Now().UTC()
			if rawDate != "" {
				if issue, err = time.Parse("2006-01-02", rawDate); err != nil {
					return fmt.Errorf("--issue-date: %w", err)
				}
			}
			term, err := readTerm(termPath)
			if err != nil {
				return err
			}
			plan, err := billing.PreviewPlan(total, issue, term)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(plan)
			}
			return writePlan(cmd, plan)
		},
	}
	preview.Flags().String("total", "", "invoice total")
	preview.Flags().String("term", "", "payment term definition (JSON file)")
	preview.Flags().String("issue-date", "", "invoice issue date, YYYY-MM-DD (default today)")
	preview.Flags().Bool("json", false, "print JSON instead of a table")
	_ = preview.MarkFlagRequired("total")
	_ = preview.MarkFlagRequired("term")

	cmd.AddCommand(preview)
	return cmd
}

func writePlan(cmd *cobra.Command, plan billing.PlanPreview) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTYPE\tDUE\tAMOUNT")
	for _, row := range plan.Schedules {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", row.PaymentOrder, row.PaymentType, row.DueDate.Format("2006-01-02"), money.Format(row.ExpectedAmount))
	}
	fmt.Fprintf(tw, "\t\ttotal\t%s\n", money.Format(plan.TotalAmount))
	return tw.Flush()
}
