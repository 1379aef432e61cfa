/*
Copyright © 2025 Travis Lyons travis.lyons@gmail.com

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/trly/nfops/internal/dependency"
	"github.com/trly/nfops/internal/metrics"
	"github.com/trly/nfops/internal/reconcile"
	"github.com/trly/nfops/internal/relation"
)

// RunCommand represents the controller daemon command.
type RunCommand struct{}

var (
	runResyncInterval time.Duration
	runMetricsAddr    string
)

const watchdogInterval = 30 * time.Second

// GetCobraCommand returns the cobra command for running the controller.
func (c *RunCommand) GetCobraCommand() *cobra.Command {
	runCmd := &cobra.Command{
		Use:     "run",
		Aliases: []string{"daemon"},
		Short:   "Run the controller until interrupted",
		Long: `Run the controller until interrupted.

Every unit is installed and brought up in dependency order. The controller then
watches the relation store and delivers dependency events as channels join,
change and break. Events deferred while the workload runtime is unreachable are
redelivered once it answers again, and every unit is resynced periodically.

The daemon integrates with systemd, sending readiness and watchdog notifications
when running under systemd supervision.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := getApp(cmd)
			if runResyncInterval > 0 {
				app.Config.ResyncInterval = runResyncInterval
			}
			if runMetricsAddr != "" {
				app.Config.MetricsAddr = runMetricsAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err := c.run(ctx, app)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	runCmd.Flags().DurationVarP(&runResyncInterval, "resync-interval", "i", 0, "Interval between full resyncs")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on")

	return runCmd
}

// controller bundles the running pieces of the daemon.
type controller struct {
	app        *App
	reconciler *reconcile.Reconciler
	dispatcher *reconcile.Dispatcher
	order      []string
	registry   *prometheus.Registry
}

func newController(app *App) (*controller, error) {
	topo, err := dependency.Build(app.Catalog)
	if err != nil {
		return nil, err
	}
	order, err := topo.Order()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	r, err := app.NewReconciler(reg)
	if err != nil {
		return nil, err
	}
	return &controller{
		app:        app,
		reconciler: r,
		dispatcher: reconcile.NewDispatcher(r, app.Logger),
		order:      order,
		registry:   reg,
	}, nil
}

// bringUp installs every unit in dependency order and reports the workload
// ready, so providers publish before their consumers resolve.
func (c *controller) bringUp(ctx context.Context) []reconcile.Result {
	var results []reconcile.Result
	for _, unit := range c.order {
		for _, kind := range []reconcile.EventKind{reconcile.Install, reconcile.WorkloadReady} {
			if ctx.Err() != nil {
				return results
			}
			res := c.dispatcher.Dispatch(ctx, reconcile.Event{Kind: kind, Unit: unit})
			c.logResult(res)
			results = append(results, res)
		}
	}
	return results
}

// eventsFor maps one relation change to the events it causes. Units the
// controller does not manage are ignored.
func (c *controller) eventsFor(change relation.Change) []reconcile.Event {
	managed := func(unit string) bool {
		_, ok := c.reconciler.Status(unit)
		return ok
	}

	ch := change.Channel
	var out []reconcile.Event
	switch change.Kind {
	case relation.Joined:
		if managed(ch.Consumer) {
			out = append(out, reconcile.Event{Kind: reconcile.DependencyChanged, Unit: ch.Consumer, Channel: ch.Endpoint})
		}
		if managed(ch.Provider) {
			out = append(out, reconcile.Event{Kind: reconcile.ProvidedJoined, Unit: ch.Provider, Channel: ch.Endpoint})
		}
	case relation.Changed:
		if managed(ch.Consumer) {
			out = append(out, reconcile.Event{Kind: reconcile.DependencyChanged, Unit: ch.Consumer, Channel: ch.Endpoint})
		}
	case relation.Broken:
		if managed(ch.Consumer) {
			out = append(out, reconcile.Event{Kind: reconcile.DependencyBroken, Unit: ch.Consumer, Channel: ch.Endpoint})
		}
	}
	return out
}

func (c *controller) logResult(res reconcile.Result) {
	logger := c.app.Logger.With("event", res.Event.String(), "status", res.Status.String())
	switch {
	case res.Err != nil:
		logger.Warn("Event failed", "error", res.Err)
	case res.Deferred:
		logger.Info("Event deferred")
	default:
		logger.Debug("Event handled", "outcome", res.Outcome())
	}
}

func (c *RunCommand) run(ctx context.Context, app *App) error {
	ctrl, err := newController(app)
	if err != nil {
		return err
	}

	if app.Config.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              app.Config.MetricsAddr,
			Handler:           metrics.Handler(ctrl.registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			app.Logger.Info("Serving metrics", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.Logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	app.Logger.Info("Bringing up units", "order", ctrl.order)
	ctrl.bringUp(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	events := make(chan reconcile.Event, 64)
	results := make(chan reconcile.Result, 64)
	changes := make(chan relation.Change, 64)

	var wg sync.WaitGroup
	defer wg.Wait()

	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = relation.NewWatcher(app.Store, app.Config.PollInterval, app.Clock, app.Logger).Run(ctx, changes)
	}()
	go func() {
		defer wg.Done()
		_ = ctrl.dispatcher.Run(ctx, events, results)
	}()

	app.Logger.Info("Controller running", "resync", app.Config.ResyncInterval)
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		app.Logger.Warn("Failed to notify systemd of readiness", "error", err)
	} else if sent {
		app.Logger.Info("Notified systemd that daemon is ready")
	}

	resync := time.NewTicker(app.Config.ResyncInterval)
	defer resync.Stop()

	redeliver := time.NewTicker(app.Config.PollInterval)
	defer redeliver.Stop()

	watchdogTicker := time.NewTicker(watchdogInterval)
	defer watchdogTicker.Stop()

	send := func(ev reconcile.Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			app.Logger.Info("Stopping controller")
			return ctx.Err()
		case change := <-changes:
			for _, ev := range ctrl.eventsFor(change) {
				if !send(ev) {
					return ctx.Err()
				}
			}
		case res := <-results:
			ctrl.logResult(res)
		case <-resync.C:
			app.Logger.Debug("Starting scheduled resync")
			for _, unit := range ctrl.reconciler.Units() {
				if !send(reconcile.Event{Kind: reconcile.Resync, Unit: unit}) {
					return ctx.Err()
				}
			}
		case <-redeliver.C:
			if ctrl.reconciler.Queue().Len() == 0 {
				continue
			}
			for _, res := range ctrl.dispatcher.Redeliver(ctx) {
				ctrl.logResult(res)
			}
		case <-watchdogTicker.C:
			if sent, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				app.Logger.Debug("Failed to send watchdog notification", "error", err)
			} else if sent {
				app.Logger.Debug("Sent watchdog notification to systemd")
			}
		}
	}
}
