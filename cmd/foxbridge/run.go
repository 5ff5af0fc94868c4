package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/nerrad567/foxbridge/migrations"

	"github.com/nerrad567/foxbridge/internal/api"
	"github.com/nerrad567/foxbridge/internal/credentials"
	"github.com/nerrad567/foxbridge/internal/dispatch"
	"github.com/nerrad567/foxbridge/internal/engine"
	"github.com/nerrad567/foxbridge/internal/engine/browser"
	"github.com/nerrad567/foxbridge/internal/engine/helper"
	"github.com/nerrad567/foxbridge/internal/eventlog"
	"github.com/nerrad567/foxbridge/internal/infrastructure/config"
	"github.com/nerrad567/foxbridge/internal/infrastructure/database"
	"github.com/nerrad567/foxbridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/foxbridge/internal/infrastructure/logging"
	"github.com/nerrad567/foxbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/foxbridge/internal/media"
	"github.com/nerrad567/foxbridge/internal/notify"
	"github.com/nerrad567/foxbridge/internal/session"
)

// shutdownTimeout bounds the teardown of every live session on exit.
const shutdownTimeout = 30 * time.Second

// run is the serve logic, separated from the command for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting foxbridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"engine", cfg.Engine.Type,
		"auth", cfg.Security.AuthEnabled(),
	)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	store, err := credentials.NewStore(cfg.Sessions.AuthDir, cfg.Sessions.DirPrefix)
	if err != nil {
		return fmt.Errorf("credential store: %w", err)
	}
	if err := store.EnsureRoot(); err != nil {
		return fmt.Errorf("credential store: %w", err)
	}

	eng, err := buildEngine(cfg.Engine, log)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	ctrl := session.NewController(eng, store, session.Options{
		PairingTimeout:  cfg.Sessions.PairingTimeout,
		TeardownTimeout: cfg.Sessions.TeardownTimeout,
		ProbeTimeout:    cfg.Sessions.ProbeTimeout,
		Logger:          log.Component("session"),
	})
	defer func() {
		log.Info("closing sessions")
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if closeErr := ctrl.Close(closeCtx); closeErr != nil {
			log.Error("error closing sessions", "error", closeErr)
		}
	}()

	fetcher := media.NewFetcher(media.Config{
		Timeout:   cfg.Media.FetchTimeout,
		MaxBytes:  cfg.Media.MaxBytes,
		UserAgent: cfg.Media.UserAgent,
	}, nil)
	dispatcher := dispatch.New(ctrl, fetcher, log.Component("dispatch"))

	events := eventlog.NewSQLiteRepository(db.DB)
	history := notify.NewEventLog(events, log.Component("eventlog"))
	ctrl.AddObserver(history)
	dispatcher.AddObserver(history)

	health := map[string]api.HealthChecker{"database": db}

	// MQTT and InfluxDB are optional; the bridge degrades without them.
	if mqttClient := connectMQTT(cfg.MQTT, log); mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		publisher := notify.NewMQTTPublisher(mqttClient, log.Component("mqtt"))
		ctrl.AddObserver(publisher)
		dispatcher.AddObserver(publisher)
		if _, listenErr := notify.ListenCommands(ctx, mqttClient, ctrl, log.Component("commands")); listenErr != nil {
			log.Warn("MQTT commands unavailable", "error", listenErr)
		}
		health["mqtt"] = mqttClient
	}

	if influxClient := connectInflux(ctx, cfg.InfluxDB, log); influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		metrics := notify.NewMetrics(influxClient)
		ctrl.AddObserver(metrics)
		dispatcher.AddObserver(metrics)
		health["influxdb"] = influxClient
	}

	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log.Component("api"),
		Sessions:   ctrl,
		Dispatcher: dispatcher,
		Events:     events,
		Database:   db,
		Health:     health,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	ctrl.AddObserver(server.Hub())
	dispatcher.AddObserver(server.Hub())

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if cfg.Sessions.RecoverOnBoot {
		n := session.Recover(ctx, store, ctrl, log.Component("recovery"))
		log.Info("boot recovery complete", "sessions", n)
	}

	log.Info("initialisation complete, waiting for shutdown signal", "address", server.Addr())
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred closes run in reverse: API server, InfluxDB, MQTT, sessions,
	// database.
	return nil
}

// buildEngine returns the engine selected by cfg.Type.
func buildEngine(cfg config.EngineConfig, log *logging.Logger) (engine.Engine, error) {
	switch cfg.Type {
	case config.EngineBrowser:
		var inject string
		if cfg.Browser.InjectScript != "" {
			data, err := os.ReadFile(cfg.Browser.InjectScript)
			if err != nil {
				return nil, fmt.Errorf("reading inject script: %w", err)
			}
			inject = string(data)
		}
		return browser.New(browser.Config{
			ExecPath:     cfg.Browser.ExecPath,
			URL:          cfg.Browser.URL,
			Headless:     cfg.Browser.Headless,
			UserAgent:    cfg.Browser.UserAgent,
			InjectScript: inject,
			PollInterval: cfg.Browser.PollInterval,
		}, log.Component("browser")), nil

	case config.EngineHelper:
		return helper.New(helper.Config{
			Command:         cfg.Helper.Command,
			Args:            cfg.Helper.Args,
			Env:             cfg.Helper.Env,
			WorkDir:         cfg.Helper.WorkDir,
			GracefulTimeout: cfg.Helper.GracefulTimeout,
		}, log.Component("helper"))

	default:
		return nil, fmt.Errorf("unknown engine type %q", cfg.Type)
	}
}

// connectMQTT dials the broker when enabled. A failure is logged and
// returns nil.
func connectMQTT(cfg config.MQTTConfig, log *logging.Logger) *mqtt.Client {
	if !cfg.Enabled {
		log.Info("MQTT disabled")
		return nil
	}
	client, err := mqtt.Connect(cfg)
	if err != nil {
		log.Warn("MQTT unavailable, continuing without it", "error", err)
		return nil
	}
	client.SetLogger(log.Component("mqtt"))
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)
	return client
}

// connectInflux connects to InfluxDB when enabled. A failure is logged and
// returns nil.
func connectInflux(ctx context.Context, cfg config.InfluxDBConfig, log *logging.Logger) *influxdb.Client {
	client, err := influxdb.Connect(ctx, cfg, log.Component("influxdb"))
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil
	}
	if err != nil {
		log.Warn("InfluxDB unavailable, continuing without it", "error", err)
		return nil
	}
	return client
}
