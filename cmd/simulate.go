package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/trly/nfops/internal/dependency"
	"github.com/trly/nfops/internal/reconcile"
	"github.com/trly/nfops/internal/relation"
	"github.com/trly/nfops/internal/workload"
)

// SimulateCommand brings the whole topology up against an in-memory runtime.
type SimulateCommand struct{}

var (
	simulateTimeout time.Duration
	simulateSubnet  string
)

// SimulatedUnit is the outcome of one unit in a simulation.
type SimulatedUnit struct {
	Unit      string
	Address   string
	Status    reconcile.Status
	Published []string
}

// GetCobraCommand returns the cobra command for simulating a bring-up.
func (c *SimulateCommand) GetCobraCommand() *cobra.Command {
	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Bring every unit up against an in-memory runtime",
		Long: `Bring every unit up against an in-memory runtime.

Every relation of the topology is joined in an in-memory store and each
workload prints its activation tokens as soon as it starts. Units are brought
up in dependency order and the final status of each is printed. Nothing on
the host or in the cluster is touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := getApp(cmd)
			units, err := c.Run(cmd, app)
			if err != nil {
				return err
			}

			tbl := newTable(cmd.OutOrStdout(), "Unit", "Address", "State", "Message", "Published")
			var inactive []string
			for _, u := range units {
				published := "-"
				if len(u.Published) > 0 {
					published = strings.Join(u.Published, ",")
				}
				tbl.AddRow(u.Unit, u.Address, u.Status.State, u.Status.Message, published)
				if u.Status.State != reconcile.Active {
					inactive = append(inactive, u.Unit)
				}
			}
			tbl.Print()

			if len(inactive) > 0 {
				return fmt.Errorf("units not active: %s", strings.Join(inactive, ", "))
			}
			return nil
		},
	}

	simulateCmd.Flags().DurationVar(&simulateTimeout, "activation-timeout", 5*time.Second, "Activation timeout per unit")
	simulateCmd.Flags().StringVar(&simulateSubnet, "subnet", "10.0.0", "First three octets of simulated unit addresses")

	return simulateCmd
}

// Run performs the simulation and returns the units in bring-up order.
func (c *SimulateCommand) Run(cmd *cobra.Command, app *App) ([]SimulatedUnit, error) {
	ctx := cmd.Context()

	topo, err := dependency.Build(app.Catalog)
	if err != nil {
		return nil, err
	}
	order, err := topo.Order()
	if err != nil {
		return nil, err
	}

	store := relation.NewMemoryStore()
	for _, l := range topo.Links() {
		if err := store.Join(ctx, relation.Channel{Provider: l.Provider, Endpoint: l.Channel, Consumer: l.Consumer}); err != nil {
			return nil, err
		}
	}

	rt := workload.NewFakeRuntime()
	for _, d := range app.Catalog.All() {
		rt.Script(d.Service, d.ActivationOutput()...)
	}

	cfg := *app.Config
	cfg.ActivationTimeout = simulateTimeout
	cfg.GraceDelay = 0
	cfg.Leader = true
	cfg.LeaseName = ""

	sim := &App{
		Logger:  app.Logger,
		Config:  &cfg,
		Catalog: app.Catalog,
		Store:   store,
		Factory: workload.FactoryFunc(func(string) (workload.Runtime, error) { return rt, nil }),
		Clock:   app.Clock,
	}
	r, err := sim.NewReconciler(nil)
	if err != nil {
		return nil, err
	}
	d := reconcile.NewDispatcher(r, app.Logger)

	var out []SimulatedUnit
	for i, unit := range order {
		opts := reconcile.Options{
			Address:      fmt.Sprintf("%s.%d", simulateSubnet, i+1),
			StartTcpdump: cfg.StartTcpdump,
		}
		su := SimulatedUnit{Unit: unit, Address: opts.Address}
		for _, kind := range []reconcile.EventKind{reconcile.ConfigChanged, reconcile.Install, reconcile.WorkloadReady} {
			res := d.Dispatch(ctx, reconcile.Event{Kind: kind, Unit: unit, Options: &opts})
			if res.Err != nil {
				app.Logger.Debug("Simulated event failed", "event", res.Event.String(), "error", res.Err)
			}
			su.Status = res.Status
			su.Published = append(su.Published, res.Published...)
		}
		out = append(out, su)
	}
	return out, nil
}
