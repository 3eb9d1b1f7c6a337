package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gemvault/gemvault/internal/terms"
)

func newTermsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "terms",
		Short: "Work with payment term definitions",
	}
	check := &cobra.Command{
		Use:   "check <file.json>",
		Short: "Validate a payment term definition without touching the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			term, err := readTerm(args[0])
			if err != nil {
				var verr *terms.ValidationError
				if errors.As(err, &verr) {
					for _, p := range verr.Problems {
						fmt.Fprintln(cmd.ErrOrStderr(), "-", p)
					}
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s (%s%% down, %d months)\n",
				term.Name, term.DownPaymentPercentage.StringFixed(2), term.TermMonths)
			return nil
		},
	}
	cmd.AddCommand(check)
	return cmd
}

func readTerm(path string) (terms.PaymentTerm, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return terms.PaymentTerm{}, err
	}
	var in terms.TermInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return terms.PaymentTerm{}, fmt.Errorf("%s: %w", path, err)
	}
	return in.Normalized()
}
