package cmd

import (
	"sort"
	"time"

	"github.com/spf13/cobra"
)

// StatusCommand represents the status command.
type StatusCommand struct{}

var statusOutput string

// UnitStatusOutput is the last recorded status of one unit.
type UnitStatusOutput struct {
	Unit      string    `json:"unit" yaml:"unit"`
	State     string    `json:"state" yaml:"state"`
	Message   string    `json:"message,omitempty" yaml:"message,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// GetCobraCommand returns the cobra command for showing unit status.
func (c *StatusCommand) GetCobraCommand() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last recorded status of every unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := getApp(cmd)
			rows := c.collect(app)

			if statusOutput != "text" {
				return PrintOutput(cmd.OutOrStdout(), statusOutput, rows)
			}

			tbl := newTable(cmd.OutOrStdout(), "Unit", "State", "Message", "Updated")
			for _, r := range rows {
				updated := "-"
				if !r.UpdatedAt.IsZero() {
					updated = r.UpdatedAt.Format(time.RFC3339)
				}
				tbl.AddRow(r.Unit, r.State, r.Message, updated)
			}
			tbl.Print()
			return nil
		},
	}

	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "text", "Output format (text, json, yaml)")
	return statusCmd
}

// collect lists catalog units in catalog order, then any recorded unit the
// catalog no longer knows.
func (c *StatusCommand) collect(app *App) []UnitStatusOutput {
	statuses := app.State.Statuses()
	seen := make(map[string]bool)

	var rows []UnitStatusOutput
	add := func(unit string) {
		seen[unit] = true
		st, ok := statuses[unit]
		if !ok {
			rows = append(rows, UnitStatusOutput{Unit: unit, State: "unknown"})
			return
		}
		rows = append(rows, UnitStatusOutput{Unit: unit, State: st.State, Message: st.Message, UpdatedAt: st.UpdatedAt})
	}

	for _, name := range app.Catalog.Names() {
		add(name)
	}
	var extra []string
	for unit := range statuses {
		if !seen[unit] {
			extra = append(extra, unit)
		}
	}
	sort.Strings(extra)
	for _, unit := range extra {
		add(unit)
	}
	return rows
}
