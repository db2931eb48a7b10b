package main

import (
	"context"
	"fmt"
	"io"

	"github.com/nerrad567/device-orchestra/internal/infrastructure/config"
	"github.com/nerrad567/device-orchestra/internal/infrastructure/logging"
	"github.com/nerrad567/device-orchestra/internal/orchestra"
)

// loadConfig resolves and loads the configuration, applying --log-level.
// A missing file falls back to defaults only when no path was asked for.
func loadConfig(opts globalOptions) (*config.Config, string, error) {
	path := config.ResolvePath(opts.configPath)

	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOrDefault(path)
	}
	if err != nil {
		return nil, path, fmt.Errorf("loading config %s: %w", path, err)
	}

	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, path, usageError("--log-level: %w", err)
		}
	}
	return cfg, path, nil
}

// bootstrap builds an Orchestra with the device manifest loaded. Nothing is
// started. Logs go to logOut so stdout stays free for command output.
//
// Parameters:
//   - ctx: Context for opening the run history
//   - env: Command environment
//   - logOut: Log destination; nil uses logging.output from the config
//
// Returns:
//   - *orchestra.Orchestra: Caller must Close it
//   - error: If config, database or manifest loading fails
func bootstrap(ctx context.Context, env *environment, logOut io.Writer) (*orchestra.Orchestra, error) {
	cfg, path, err := loadConfig(env.opts)
	if err != nil {
		return nil, err
	}

	var log *logging.Logger
	if logOut != nil {
		log = logging.NewWithWriter(cfg.Logging, version, logOut)
	} else {
		log = logging.New(cfg.Logging, version)
	}
	log.Debug("configuration loaded", "path", path)

	o, err := orchestra.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := o.LoadDevices(cfg.Devices.Manifest); err != nil {
		//nolint:errcheck // Nothing has started yet
		o.Close(ctx)
		return nil, fmt.Errorf("loading devices: %w", err)
	}
	return o, nil
}

// shutdown closes o, reporting failures on stderr.
func shutdown(o *orchestra.Orchestra, env *environment) {
	// The command context may already be cancelled; stopping must still run.
	if err := o.Close(context.Background()); err != nil {
		fmt.Fprintf(env.stderr, "warning: shutdown: %v\n", err)
	}
}
