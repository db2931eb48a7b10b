package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/device-orchestra/internal/api"
	"github.com/nerrad567/device-orchestra/internal/events"
	"github.com/nerrad567/device-orchestra/internal/infrastructure/influxdb"
	"github.com/nerrad567/device-orchestra/internal/infrastructure/logging"
	"github.com/nerrad567/device-orchestra/internal/infrastructure/mqtt"
	"github.com/nerrad567/device-orchestra/internal/orchestra"
	"github.com/nerrad567/device-orchestra/internal/relay"
)

// runServe keeps the orchestra running until ctx is cancelled: devices
// (when devices.auto_start is set), the cooling policy, the MQTT and
// InfluxDB relays (when enabled) and the HTTP API.
func runServe(ctx context.Context, env *environment, args []string) error {
	flagSet := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	noStart := flagSet.Bool("no-start", false, "leave devices stopped even when devices.auto_start is set")
	if err := parseCommandFlags(env, flagSet, "serve [--no-start]", args); err != nil {
		return ignoreHelp(err)
	}
	if flagSet.NArg() > 0 {
		return usageError("serve: unexpected argument %q", flagSet.Arg(0))
	}

	o, err := bootstrap(ctx, env, nil)
	if err != nil {
		return err
	}
	defer shutdown(o, env)

	cfg := o.Config()
	log := o.Logger()
	log.Info("starting device orchestra",
		"version", version,
		"commit", commit,
		"build_date", date,
		"site", cfg.Site.ID,
		"devices", o.Manager.Len(),
	)

	if cfg.Devices.AutoStart && !*noStart {
		if res := o.Manager.StartAll(ctx); !res.OK() {
			log.Warn("some devices failed to start", "failed", res.FailedIDs(), "error", res.Err())
		} else {
			log.Info("devices started", "count", len(res.Succeeded))
		}
	}

	if o.EnableCooling() {
		log.Info("cooling policy enabled",
			"power", cfg.Policy.Cooling.Power,
			"cooldown", cfg.GetCoolingCooldown(),
		)
	}

	g, gctx := errgroup.WithContext(ctx)

	checks := map[string]api.HealthChecker{}
	if db := o.DB(); db != nil {
		checks["database"] = db
	}

	if cfg.MQTT.Enabled {
		client, err := startMQTTRelay(gctx, g, o, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := client.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		checks["mqtt"] = client
	} else {
		log.Info("MQTT relay disabled")
	}

	if cfg.InfluxDB.Enabled {
		client, err := startInfluxRelay(o, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := client.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		checks["influxdb"] = client
	} else {
		log.Info("InfluxDB relay disabled")
	}

	srv, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log.Component("api"),
		Devices: o.Manager,
		Version: version,
		Runs:    o.Runs(),
		Metrics: o.Metrics.Handler(),
		Bus:     o.Bus,
		Checks:  checks,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(gctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	g.Go(func() error {
		<-gctx.Done()
		return srv.Close()
	})

	fmt.Fprintf(env.stdout, "serving on http://%s\n", srv.Addr())
	log.Info("initialisation complete, waiting for shutdown signal")

	err = g.Wait()
	log.Info("shutdown signal received, cleaning up")
	return err
}

// startMQTTRelay connects to the broker and forwards every bus event to it
// until gctx is cancelled.
func startMQTTRelay(gctx context.Context, g *errgroup.Group, o *orchestra.Orchestra, log *logging.Logger) (*mqtt.Client, error) {
	cfg := o.Config().MQTT

	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)

	r := relay.NewMQTTRelay(client, relay.MQTTOptions{
		Topics:     client.Topics(),
		QoS:        client.QoS(),
		RatePerSec: cfg.Relay.RatePerSec,
		Burst:      cfg.Relay.Burst,
	})
	r.SetLogger(log.Component("relay"))
	r.SetDropObserver(o.Metrics)

	id := o.Bus.Subscribe(relay.NameMQTT, r)
	g.Go(func() error {
		defer o.Bus.Unsubscribe(id)
		return r.Run(gctx)
	})
	return client, nil
}

// startInfluxRelay connects to InfluxDB and subscribes the telemetry relay.
// The subscription lives as long as the bus.
func startInfluxRelay(o *orchestra.Orchestra, log *logging.Logger) (*influxdb.Client, error) {
	cfg := o.Config().InfluxDB

	client, err := influxdb.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected", "url", cfg.URL, "org", cfg.Org, "bucket", cfg.Bucket)

	r := relay.NewInfluxRelay(client, o.Manager)
	r.SetDropObserver(o.Metrics)
	o.Bus.Subscribe(relay.NameInflux, events.ForTypes(r, r.Types()...))
	return client, nil
}
