package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// TrustCommand clears the one-time operation markers of a unit.
type TrustCommand struct{}

// GetCobraCommand returns the cobra command for re-running cluster setup.
func (c *TrustCommand) GetCobraCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "trust <unit>",
		Short: "Allow one-time cluster setup of a unit to run again",
		Long: `Allow one-time cluster setup of a unit to run again.

Cluster adjustments such as granting the workload privileges or exposing its
ports run once per unit and are remembered in the state file. After granting
the controller cluster access, run this command and deliver an install event
to the unit to repeat them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd)
			if _, ok := app.Catalog.Get(args[0]); !ok {
				return fmt.Errorf("unknown unit: %s", args[0])
			}
			cleared, err := app.State.Reset(args[0])
			if err != nil {
				return err
			}
			if len(cleared) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: nothing to reset\n", args[0])
				return nil
			}
			for _, op := range cleared {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: cleared %s\n", args[0], op)
			}
			return nil
		},
	}
}
