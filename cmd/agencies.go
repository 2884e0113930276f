// =============================================================================
// Invoice Billing Converter - Agencies Command
// =============================================================================
//
// Administration of the store data that drives credit notes and
// certification emails.
//
// COMMAND USAGE:
//   converter agencies list [--country ar]
//   converter agencies enable <agency> [--country ar]
//   converter agencies disable <agency> [--country ar]
//   converter agencies add-email <client> <address> [--country ar]
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// country scopes every agencies subcommand.
var country string

var agenciesCmd = &cobra.Command{
	Use:   "agencies",
	Short: "Manage agencies and client addresses in the invoice store",
}

var agenciesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agencies and whether they receive credit notes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		agencies, err := st.ListAgencies(cmd.Context(), country)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "AGENCY\tCOUNTRY\tCREDIT NOTES")
		for _, a := range agencies {
			flag := "no"
			if a.ReceivesCreditNote {
				flag = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", a.Name, a.Country, flag)
		}
		return w.Flush()
	},
}

func setEligibility(eligible bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SetCreditNoteEligibility(cmd.Context(), args[0], country, eligible); err != nil {
			return err
		}
		logger.Info().
			Str("agency", args[0]).
			Str("country", country).
			Bool("receives_credit_note", eligible).
			Msg("Agency updated")
		return nil
	}
}

var agenciesEnableCmd = &cobra.Command{
	Use:   "enable <agency>",
	Short: "Mark an agency to receive credit notes",
	Args:  cobra.ExactArgs(1),
	RunE:  setEligibility(true),
}

var agenciesDisableCmd = &cobra.Command{
	Use:   "disable <agency>",
	Short: "Stop generating credit notes for an agency",
	Args:  cobra.ExactArgs(1),
	RunE:  setEligibility(false),
}

var agenciesAddEmailCmd = &cobra.Command{
	Use:   "add-email <client> <address>",
	Short: "Add a certification recipient for a client",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.AddClientEmail(cmd.Context(), args[0], country, args[1]); err != nil {
			return err
		}
		logger.Info().Str("client", args[0]).Str("address", args[1]).Msg("Client address added")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(agenciesCmd)
	agenciesCmd.AddCommand(agenciesListCmd, agenciesEnableCmd, agenciesDisableCmd, agenciesAddEmailCmd)
	agenciesCmd.PersistentFlags().StringVar(&country, "country", "ar", "Jurisdiction code (ar, mx, cl)")
}
