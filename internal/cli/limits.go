package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/usagegate/usagegate/internal/models"
	"github.com/usagegate/usagegate/internal/quota"
)

var limitsFlags struct {
	daily     int
	unlimited bool
	limited   bool
}

// limitsCmd represents the limits command group
var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Manage per-user limit overrides",
}

var limitsSetCmd = &cobra.Command{
	Use:   "set <user_id>",
	Short: "Set a custom daily limit or unlimited access for a user",
	Long: `Set per-user limit overrides.

--daily replaces the default daily limit for this user; 0 clears the
override. --unlimited exempts the user from all limits; --limited
removes the exemption. Weekly and monthly limits are not overridable.`,
	Args: cobra.ExactArgs(1),
	RunE: runLimitsSet,
}

var limitsClearCmd = &cobra.Command{
	Use:   "clear <user_id>",
	Short: "Remove all limit overrides for a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runLimitsClear,
}

func init() {
	limitsSetCmd.Flags().IntVar(&limitsFlags.daily, "daily", -1, "Custom daily limit (0 clears the override)")
	limitsSetCmd.Flags().BoolVar(&limitsFlags.unlimited, "unlimited", false, "Exempt the user from all limits")
	limitsSetCmd.Flags().BoolVar(&limitsFlags.limited, "limited", false, "Remove the unlimited exemption")

	limitsCmd.AddCommand(limitsSetCmd)
	limitsCmd.AddCommand(limitsClearCmd)
	RootCmd.AddCommand(limitsCmd)
}

func runLimitsSet(cmd *cobra.Command, args []string) error {
	var ov quota.Overrides
	if cmd.Flags().Changed("daily") {
		v := limitsFlags.daily
		ov.CustomDailyLimit = &v
	}
	if limitsFlags.unlimited {
		t := true
		ov.Unlimited = &t
	} else if limitsFlags.limited {
		f := false
		ov.Unlimited = &f
	}
	if ov.CustomDailyLimit == nil && ov.Unlimited == nil {
		return cmd.Help()
	}

	local, err := newLocalService()
	if err != nil {
		return err
	}
	defer local.close()

	rec, err := local.svc.SetOverrides(context.Background(), args[0], ov)
	if err != nil {
		return err
	}
	return outputRecordResult(rec)
}

func runLimitsClear(cmd *cobra.Command, args []string) error {
	local, err := newLocalService()
	if err != nil {
		return err
	}
	defer local.close()

	rec, err := local.svc.ClearOverrides(context.Background(), args[0])
	if err != nil {
		return err
	}
	return outputRecordResult(rec)
}

func outputRecordResult(rec *models.UsageRecord) error {
	view := models.ViewOf(rec)
	if globalFlags.JSON {
		return outputJSON(view)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "User:\t%s\n", rec.UserID)
	fmt.Fprintf(w, "Daily limit:\t%d\n", rec.EffectiveDailyLimit())
	if view.CustomLimit != nil {
		fmt.Fprintf(w, "Custom override:\t%d\n", *view.CustomLimit)
	} else {
		fmt.Fprintf(w, "Custom override:\tnone\n")
	}
	fmt.Fprintf(w, "Unlimited:\t%v\n", rec.Unlimited)
	return nil
}
