package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/trly/nfops/internal/reconcile"
)

// ReconcileCommand represents the one-shot reconcile command.
type ReconcileCommand struct{}

var (
	reconcileEvent     string
	reconcileChannel   string
	reconcileContainer string
	reconcileOutput    string
)

// ReconcileOutput is the structured result of one handled event.
type ReconcileOutput struct {
	Unit        string   `json:"unit" yaml:"unit"`
	Event       string   `json:"event" yaml:"event"`
	State       string   `json:"state" yaml:"state"`
	Message     string   `json:"message,omitempty" yaml:"message,omitempty"`
	Transitions []string `json:"transitions,omitempty" yaml:"transitions,omitempty"`
	Deferred    bool     `json:"deferred,omitempty" yaml:"deferred,omitempty"`
	Published   []string `json:"published,omitempty" yaml:"published,omitempty"`
	Error       string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// GetCobraCommand returns the cobra command for reconciling one unit.
func (c *ReconcileCommand) GetCobraCommand() *cobra.Command {
	var kinds []string
	for _, k := range reconcile.EventKinds() {
		kinds = append(kinds, k.String())
	}

	reconcileCmd := &cobra.Command{
		Use:   "reconcile <unit>",
		Short: "Deliver one event to a unit",
		Long: fmt.Sprintf(`Deliver one event to a unit and print the resulting status.

Supported events: %s.`, strings.Join(kinds, ", ")),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd)

			kind, err := reconcile.ParseEventKind(reconcileEvent)
			if err != nil {
				return err
			}

			r, err := app.NewReconciler(nil)
			if err != nil {
				return err
			}

			opts := app.UnitOptions()
			res := r.Handle(cmd.Context(), reconcile.Event{
				Kind:      kind,
				Unit:      args[0],
				Channel:   reconcileChannel,
				Container: reconcileContainer,
				Options:   &opts,
			})

			out := newReconcileOutput(res)
			if reconcileOutput == "text" {
				printReconcileText(cmd, out)
			} else if err := PrintOutput(cmd.OutOrStdout(), reconcileOutput, out); err != nil {
				return err
			}
			return res.Err
		},
	}

	reconcileCmd.Flags().StringVarP(&reconcileEvent, "event", "e", reconcile.Resync.String(), "Event to deliver")
	reconcileCmd.Flags().StringVar(&reconcileChannel, "channel", "", "Relation channel the event concerns")
	reconcileCmd.Flags().StringVar(&reconcileContainer, "container", "", "Container the event concerns")
	reconcileCmd.Flags().StringVarP(&reconcileOutput, "output", "o", "text", "Output format (text, json, yaml)")

	return reconcileCmd
}

func newReconcileOutput(res reconcile.Result) ReconcileOutput {
	out := ReconcileOutput{
		Unit:      res.Event.Unit,
		Event:     res.Event.Kind.String(),
		State:     res.Status.State.String(),
		Message:   res.Status.Message,
		Deferred:  res.Deferred,
		Published: res.Published,
	}
	for _, s := range res.Transitions {
		out.Transitions = append(out.Transitions, s.String())
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func printReconcileText(cmd *cobra.Command, out ReconcileOutput) {
	w := cmd.OutOrStdout()
	status := out.State
	if out.Message != "" {
		status += ": " + out.Message
	}
	fmt.Fprintf(w, "%s: %s\n", out.Unit, status)
	if out.Deferred {
		fmt.Fprintln(w, "  event deferred until the runtime is reachable")
	}
	if len(out.Transitions) > 0 {
		fmt.Fprintf(w, "  transitions: %s\n", strings.Join(out.Transitions, " -> "))
	}
	for _, id := range out.Published {
		fmt.Fprintf(w, "  published: %s\n", id)
	}
}
