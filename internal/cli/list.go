package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/usagegate/usagegate/internal/models"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all usage records",
	RunE:    runList,
}

func init() {
	RootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	local, err := newLocalService()
	if err != nil {
		return err
	}
	defer local.close()

	records, err := local.svc.ListRecords(context.Background())
	if err != nil {
		return err
	}

	if globalFlags.JSON {
		return outputJSON(records)
	}
	outputRecordsTable(records)
	return nil
}

func outputRecordsTable(records []*models.UsageRecord) {
	if len(records) == 0 {
		fmt.Println("No usage records found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "USER\tDAILY\tWEEKLY\tMONTHLY\tUNLIMITED\tVERSION\tLAST CONSUMED (UTC)")
	for _, rec := range records {
		lastConsumed := "-"
		if rec.LastConsumedAt != nil {
			lastConsumed = formatReset(*rec.LastConsumedAt)
		}
		fmt.Fprintf(w, "%s\t%d/%d\t%d/%d\t%d/%d\t%v\t%d\t%s\n",
			rec.UserID,
			rec.Daily.Count, rec.EffectiveDailyLimit(),
			rec.Weekly.Count, rec.Weekly.Limit,
			rec.Monthly.Count, rec.Monthly.Limit,
			rec.Unlimited,
			rec.Version,
			lastConsumed,
		)
	}
	fmt.Fprintf(w, "\nTotal:\t%d records\n", len(records))
}
