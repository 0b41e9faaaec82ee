package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/usagegate/usagegate/internal/models"
	"github.com/usagegate/usagegate/internal/period"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:     "status <user_id>",
	Aliases: []string{"st"},
	Short:   "Show a user's current quota status",
	Long: `Show the current quota status for a user without consuming anything.

Counters that rolled past a day, week, or month boundary are shown reset.
A record is created with default limits if the user has never been seen.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	RootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	local, err := newLocalService()
	if err != nil {
		return err
	}
	defer local.close()

	decision, err := local.svc.GetStatus(context.Background(), args[0])
	if err != nil {
		return err
	}

	if globalFlags.JSON {
		return outputJSON(decision)
	}
	outputDecisionTable(args[0], decision)
	return nil
}

func outputDecisionTable(userID string, d models.Decision) {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "User:\t%s\n", userID)
	if d.Usage.IsUnlimited {
		fmt.Fprintf(w, "Allowed:\t%v (unlimited)\n", d.Allowed)
	} else {
		fmt.Fprintf(w, "Allowed:\t%v\n", d.Allowed)
	}
	if d.ExceededPeriod != nil {
		fmt.Fprintf(w, "Exceeded:\t%s\n", *d.ExceededPeriod)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "PERIOD\tUSED\tNEXT RESET (UTC)")
	views := map[period.Kind]models.PeriodView{
		period.Daily:   d.Usage.Daily,
		period.Weekly:  d.Usage.Weekly,
		period.Monthly: d.Usage.Monthly,
	}
	for _, k := range period.Kinds {
		fmt.Fprintf(w, "%s\t%s\t%s\n", k, formatUsage(views[k]), formatReset(d.NextReset[k]))
	}

	if d.Usage.LastConsumedAt != nil {
		fmt.Fprintf(w, "\nLast consumed:\t%s\n", formatReset(*d.Usage.LastConsumedAt))
	}
}
