package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// consumeCmd represents the consume command
var consumeCmd = &cobra.Command{
	Use:   "consume <user_id>",
	Short: "Consume one invocation from a user's quota",
	Long: `Attempt to consume one invocation from a user's quota.

Exits 0 when the invocation was granted and 1 when the quota is exceeded,
so the command can gate scripts the same way the HTTP API gates callers.`,
	Args: cobra.ExactArgs(1),
	RunE: runConsume,
}

func init() {
	RootCmd.AddCommand(consumeCmd)
}

func runConsume(cmd *cobra.Command, args []string) error {
	local, err := newLocalService()
	if err != nil {
		return err
	}
	defer local.close()

	decision, err := local.svc.TryConsume(context.Background(), args[0])
	if err != nil {
		return err
	}

	if globalFlags.JSON {
		if err := outputJSON(decision); err != nil {
			return err
		}
	} else {
		outputDecisionTable(args[0], decision)
	}

	if !decision.Allowed {
		cmd.SilenceUsage = true
		return fmt.Errorf("quota exceeded for user %s", args[0])
	}
	return nil
}
