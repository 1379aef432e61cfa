package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/trly/nfops/internal/dependency"
	"github.com/trly/nfops/internal/descriptor"
)

// DescriptorCommand groups commands that inspect unit descriptors.
type DescriptorCommand struct{}

// GetCobraCommand returns the cobra command for descriptor operations.
func (c *DescriptorCommand) GetCobraCommand() *cobra.Command {
	descriptorCmd := &cobra.Command{
		Use:     "descriptor",
		Aliases: []string{"descriptors"},
		Short:   "Inspect unit descriptors",
	}

	descriptorCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List known units",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				tbl := newTable(cmd.OutOrStdout(), "Unit", "Service", "Requires", "Provides", "Ports")
				for _, d := range getApp(cmd).Catalog.All() {
					tbl.AddRow(d.Name, d.Service, channels(requires(d)), channels(provides(d)), len(d.Ports))
				}
				tbl.Print()
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <unit>",
			Short: "Print the effective descriptor of a unit as YAML",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				d, ok := getApp(cmd).Catalog.Get(args[0])
				if !ok {
					return fmt.Errorf("unknown unit: %s", args[0])
				}
				data, err := descriptor.Marshal(d)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check descriptors and the topology they form",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				app := getApp(cmd)
				if err := app.Catalog.Validate(); err != nil {
					return err
				}
				topo, err := dependency.Build(app.Catalog)
				if err != nil {
					return err
				}
				order, err := topo.Order()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d units valid\n", len(order))
				fmt.Fprintf(cmd.OutOrStdout(), "bring-up order: %s\n", strings.Join(order, " -> "))
				return nil
			},
		},
	)
	return descriptorCmd
}

func requires(d *descriptor.Descriptor) []string {
	out := make([]string, 0, len(d.Requires))
	for _, r := range d.Requires {
		out = append(out, r.Channel)
	}
	return out
}

func provides(d *descriptor.Descriptor) []string {
	out := make([]string, 0, len(d.Provides))
	for _, p := range d.Provides {
		out = append(out, p.Channel)
	}
	return out
}

func channels(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}
