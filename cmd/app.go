package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/trly/nfops/internal/activation"
	"github.com/trly/nfops/internal/cluster"
	"github.com/trly/nfops/internal/config"
	"github.com/trly/nfops/internal/db"
	"github.com/trly/nfops/internal/descriptor"
	"github.com/trly/nfops/internal/execx"
	"github.com/trly/nfops/internal/leadership"
	"github.com/trly/nfops/internal/log"
	"github.com/trly/nfops/internal/metrics"
	"github.com/trly/nfops/internal/publish"
	"github.com/trly/nfops/internal/reconcile"
	"github.com/trly/nfops/internal/relation"
	"github.com/trly/nfops/internal/resolver"
	"github.com/trly/nfops/internal/retry"
	"github.com/trly/nfops/internal/state"
	"github.com/trly/nfops/internal/workload"
	"github.com/trly/nfops/internal/workload/pebble"
	"github.com/trly/nfops/internal/workload/systemd"
	"k8s.io/client-go/kubernetes"
)

type contextKey string

const appContextKey contextKey = "app"

// App holds the application dependencies for command line interface.
type App struct {
	Logger         log.Logger
	Config         *config.Settings
	ConfigProvider config.Provider
	Catalog        *descriptor.Catalog
	Store          relation.Store
	State          *state.File
	Factory        workload.Factory
	Clock          clock.Clock

	// Kube is nil when no cluster is reachable.
	Kube kubernetes.Interface

	db *sql.DB
}

// NewApp creates a new App with all dependencies initialized.
func NewApp(logger log.Logger, configProv config.Provider) (*App, error) {
	cfg := configProv.GetConfig()

	catalog, err := descriptor.LoadDir(cfg.DescriptorDir)
	if err != nil {
		return nil, err
	}

	st, err := state.Open(cfg.StateFile)
	if err != nil {
		return nil, err
	}

	app := &App{
		Logger:         logger,
		Config:         cfg,
		ConfigProvider: configProv,
		Catalog:        catalog,
		State:          st,
		Clock:          clock.WallClock,
	}

	if cfg.Runtime == config.RuntimeFake {
		app.Store = relation.NewMemoryStore()
	} else {
		if err := db.Up(cfg.DBPath, logger); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		conn, err := db.Connect(cfg.DBPath, logger)
		if err != nil {
			return nil, err
		}
		app.db = conn
		app.Store = relation.NewSQLStore(conn)
	}

	factory, err := newFactory(cfg, logger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Factory = factory

	if cfg.Runtime != config.RuntimeFake {
		kube, err := cluster.NewClientset(cfg.Kubeconfig)
		if err != nil {
			logger.Debug("No cluster access, skipping cluster adjustments", "error", err)
		} else {
			app.Kube = kube
		}
	}
	return app, nil
}

func newFactory(cfg *config.Settings, logger log.Logger) (workload.Factory, error) {
	switch cfg.Runtime {
	case config.RuntimePebble:
		return pebble.NewFactory(cfg.PebbleSocketDir, logger), nil
	case config.RuntimeSystemd:
		rt := systemd.NewRuntime(systemd.NewConnectionFactory(logger), execx.NewRealRunner(), systemd.Options{
			UnitDir:  cfg.SystemdUnitDir,
			RootDir:  "/",
			UserMode: cfg.UserMode,
		}, logger)
		return rt.Factory(), nil
	case config.RuntimeFake:
		rt := workload.NewFakeRuntime()
		return workload.FactoryFunc(func(string) (workload.Runtime, error) { return rt, nil }), nil
	default:
		return nil, fmt.Errorf("unsupported runtime %q", cfg.Runtime)
	}
}

// Close releases the database connection.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Leader returns the leadership checker for a unit.
func (a *App) Leader(unit string) leadership.Checker {
	if a.Kube != nil && a.Config.LeaseName != "" {
		return leadership.NewLease(a.Kube, a.Config.Namespace, a.Config.LeaseName, a.Config.PodName, a.Logger)
	}
	return leadership.NewStatic(a.Config.Leader)
}

// UnitOptions returns the per-unit options from configuration.
func (a *App) UnitOptions() reconcile.Options {
	return reconcile.Options{Address: a.Config.UnitAddress, StartTcpdump: a.Config.StartTcpdump}
}

// NewReconciler builds a reconciler with every catalog unit registered.
// reg may be nil to skip metrics.
func (a *App) NewReconciler(reg prometheus.Registerer) (*reconcile.Reconciler, error) {
	deps := reconcile.Deps{
		Resolver:  resolver.New(a.Store),
		Publisher: publish.New(a.Store, a.Logger),
		Detector:  activation.NewDetector(a.Clock, a.Logger),
		Queue:     reconcile.NewDeferQueue(),
		Logger:    a.Logger,
	}
	if a.State != nil {
		deps.Recorder = a.State
	}

	if reg != nil {
		var names []string
		for _, s := range reconcile.ServiceStates() {
			names = append(names, s.String())
		}
		m, err := metrics.New(reg, names)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		deps.Observer = m
	}

	var guard *cluster.Guard
	if a.Kube != nil {
		guard = cluster.NewGuard(a.State, retry.Policy{
			Attempts: a.Config.RetryAttempts,
			Delay:    a.Config.RetryDelay,
			Clock:    a.Clock,
		}, a.Logger)
		deps.Preparer = cluster.NewInstaller(cluster.NewClient(a.Kube, a.Config.Namespace, a.Logger), guard)
	}

	r := reconcile.New(deps, reconcile.Settings{
		ActivationTimeout: a.Config.ActivationTimeout,
		GraceDelay:        a.Config.GraceDelay,
	})
	if guard != nil {
		guard.OnRetry = func(unit, op string, attempt int, _ error) {
			r.Maintenance(unit, fmt.Sprintf("retrying %s (attempt %d of %d)", op, attempt, a.Config.RetryAttempts))
		}
	}

	for _, d := range a.Catalog.All() {
		u, err := reconcile.NewUnit(d, a.Factory, a.Leader(d.Name), a.UnitOptions(), a.Logger)
		if err != nil {
			return nil, err
		}
		if err := r.Register(u); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// getApp retrieves the App from the command context.
func getApp(cmd *cobra.Command) *App {
	return cmd.Context().Value(appContextKey).(*App)
}

// withApp stores app in the command context.
func withApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appContextKey, app)
}
