package orchestra

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/device-orchestra/internal/device"
	"github.com/nerrad567/device-orchestra/internal/diagnostics"
	"github.com/nerrad567/device-orchestra/internal/events"
	"github.com/nerrad567/device-orchestra/internal/infrastructure/config"
	"github.com/nerrad567/device-orchestra/internal/infrastructure/database"
	"github.com/nerrad567/device-orchestra/internal/infrastructure/logging"
	"github.com/nerrad567/device-orchestra/internal/manifest"
	"github.com/nerrad567/device-orchestra/internal/metrics"
	"github.com/nerrad567/device-orchestra/internal/pipeline"
	"github.com/nerrad567/device-orchestra/internal/policy"
	"github.com/nerrad567/device-orchestra/internal/simulation"

	// Registers the embedded SQL migrations with the database package.
	_ "github.com/nerrad567/device-orchestra/migrations"
)

// Orchestra is the application context shared by every CLI command.
type Orchestra struct {
	Bus     *events.Bus
	Factory *device.Factory
	Manager *device.Manager
	Runner  *pipeline.Runner
	Tester  *diagnostics.Tester
	Metrics *metrics.Metrics

	cfg  *config.Config
	log  *logging.Logger
	db   *database.DB
	runs pipeline.Repository

	closeOnce sync.Once
	closeErr  error
}

// New builds an Orchestra from cfg.
//
// Parameters:
//   - cfg: Validated configuration
//   - log: Root logger; each component gets its own child
//
// Returns:
//   - *Orchestra: Ready to load devices
//   - error: If the run history database cannot be opened or migrated
func New(ctx context.Context, cfg *config.Config, log *logging.Logger) (*Orchestra, error) {
	if log == nil {
		log = logging.Default()
	}

	m := metrics.New()

	bus := events.NewBus()
	bus.SetLogger(log.Component("events"))
	bus.SetObserver(m)
	bus.Subscribe("event-log", events.LogHandler(log.Component("events")))

	factory := device.NewFactory(device.Deps{Bus: bus, Logger: log.Component("device")})
	simulation.Register(factory)

	mgr := device.NewManager(factory)
	mgr.SetLogger(log.Component("device"))
	mgr.SetPublisher(bus)
	mgr.SetCommandObserver(m)
	if err := m.WatchDevices(mgr); err != nil {
		return nil, fmt.Errorf("registering device metrics: %w", err)
	}

	runner := pipeline.NewRunner(mgr, bus, log.Component("pipeline"))
	runner.SetSink(pipeline.NewFileSink(cfg.Pipelines.ResultsDir))
	runner.SetObserver(m)

	tester := diagnostics.NewTester(mgr)
	tester.SetLogger(log.Component("diagnostics"))

	o := &Orchestra{
		Bus:     bus,
		Factory: factory,
		Manager: mgr,
		Runner:  runner,
		Tester:  tester,
		Metrics: m,
		cfg:     cfg,
		log:     log,
	}

	if cfg.Database.Enabled {
		if err := o.openHistory(ctx); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *Orchestra) openHistory(ctx context.Context) error {
	db, err := database.Open(database.ConfigFrom(o.cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("running migrations: %w", err)
	}

	repo := pipeline.NewSQLiteRepository(db.DB)
	o.Runner.SetRecorder(repo)
	o.db = db
	o.runs = repo
	o.log.Info("run history enabled", "path", db.Path())
	return nil
}

// Config returns the configuration the orchestra was built from.
func (o *Orchestra) Config() *config.Config { return o.cfg }

// Logger returns the root logger.
func (o *Orchestra) Logger() *logging.Logger { return o.log }

// Runs returns the run history, or nil when the database is disabled.
func (o *Orchestra) Runs() pipeline.Repository { return o.runs }

// DB returns the run history database, or nil when disabled.
func (o *Orchestra) DB() *database.DB { return o.db }

// LoadDevices reads the device manifest at path and hands the records to
// the manager. Nothing is started.
func (o *Orchestra) LoadDevices(path string) error {
	records, err := manifest.LoadDevices(path)
	if err != nil {
		return err
	}
	if err := o.Manager.Load(records); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	o.log.Info("devices loaded", "path", path, "count", len(records))
	return nil
}

// LoadPipeline reads a pipeline file.
func (o *Orchestra) LoadPipeline(path string) (pipeline.Pipeline, error) {
	return manifest.LoadPipeline(path)
}

// Execute runs p with the configured step timeout.
func (o *Orchestra) Execute(ctx context.Context, p pipeline.Pipeline, dryRun bool) (*pipeline.Run, error) {
	return o.Runner.Execute(ctx, p, pipeline.Options{
		DryRun:      dryRun,
		StepTimeout: o.cfg.GetStepTimeout(),
	})
}

// EnableCooling subscribes the cooling policy when configured.
// Returns false when the policy is disabled.
func (o *Orchestra) EnableCooling() bool {
	c := o.cfg.Policy.Cooling
	if !c.Enabled {
		return false
	}
	p := policy.NewCoolingPolicy(o.Manager, c.Power, o.cfg.GetCoolingCooldown())
	p.SetLogger(o.log.Component("policy"))
	o.Bus.Subscribe("cooling-policy", events.ForTypes(p, p.Types()...))
	return true
}

// Close stops every device and closes the database. Safe to call twice.
func (o *Orchestra) Close(ctx context.Context) error {
	o.closeOnce.Do(func() {
		var errs []error
		if res := o.Manager.StopAll(ctx); !res.OK() {
			errs = append(errs, res.Err())
		}
		if o.db != nil {
			if err := o.db.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing database: %w", err))
			}
		}
		o.closeErr = errors.Join(errs...)
	})
	return o.closeErr
}
