// propcore serves a registry of property objects.
//
// Objects are instances of classes declared in schema files. Their values
// are persisted in SQLite, exposed over a REST and WebSocket API, and
// optionally mirrored to MQTT and InfluxDB.
//
// Usage:
//
//	propcore              run the service
//	propcore token -user alice -groups operators
//	                      mint an API token signed with the configured secret
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/nerrad567/propcore/migrations"

	"github.com/nerrad567/propcore/internal/api"
	"github.com/nerrad567/propcore/internal/audit"
	"github.com/nerrad567/propcore/internal/auth"
	"github.com/nerrad567/propcore/internal/codec"
	"github.com/nerrad567/propcore/internal/coretype"
	"github.com/nerrad567/propcore/internal/infrastructure/config"
	"github.com/nerrad567/propcore/internal/infrastructure/database"
	"github.com/nerrad567/propcore/internal/infrastructure/influxdb"
	"github.com/nerrad567/propcore/internal/infrastructure/logging"
	"github.com/nerrad567/propcore/internal/infrastructure/mqtt"
	"github.com/nerrad567/propcore/internal/mirror"
	"github.com/nerrad567/propcore/internal/permission"
	"github.com/nerrad567/propcore/internal/property"
	"github.com/nerrad567/propcore/internal/schema"
	"github.com/nerrad567/propcore/internal/store"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the service lifecycle, separated from main for testability. It
// blocks until ctx is cancelled.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting propcore",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	property.ConfigureDeadlockDetection(cfg.Locking.DetectDeadlocks, cfg.GetDeadlockTimeout())
	if cfg.Locking.DetectDeadlocks {
		log.Warn("lock deadlock detection enabled", "timeout", cfg.GetDeadlockTimeout())
	}

	// Classes must be registered before stored objects are decoded.
	types := coretype.NewManager()
	if schemaErr := schema.LoadInto(types, cfg.Schema.Paths); schemaErr != nil {
		return fmt.Errorf("loading schema: %w", schemaErr)
	}
	log.Info("schema loaded", "paths", cfg.Schema.Paths, "types", len(types.TypeNames()))

	db, err := database.Open(database.Config{
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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	registry := store.NewRegistry(
		store.NewSQLiteRepository(db.DB),
		types,
		store.WithCodec(documentCodec(cfg.Database.DocumentFormat)),
	)
	registry.SetLogger(log)

	topics := mqtt.Topics{Prefix: cfg.Mirror.TopicPrefix}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, topics)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	// The mirror observes the registry before Load so stored objects get
	// their event triggers.
	var m *mirror.Mirror
	if cfg.Mirror.Enabled {
		m = newMirror(cfg, topics, registry, hub, mqttClient, influxClient)
		m.SetLogger(log)
		registry.AddObserver(m)
		go m.Run(ctx)
	}

	if loadErr := registry.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading object registry: %w", loadErr)
	}
	log.Info("object registry loaded", "objects", registry.Count())

	if m != nil {
		if startErr := m.Start(ctx); startErr != nil {
			return fmt.Errorf("starting mirror: %w", startErr)
		}
		defer func() {
			if stopErr := m.Stop(); stopErr != nil {
				log.Error("error stopping mirror", "error", stopErr)
			}
		}()
		log.Info("mirror started", "objects", m.Attached(), "topic_prefix", cfg.Mirror.TopicPrefix)
	}

	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Registry: registry,
		Hub:      hub,
		Audit:    audit.NewSQLiteRepository(db.DB),
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred closes run in reverse: API, mirror, InfluxDB, MQTT, database.
	log.Info("propcore stopped")
	return nil
}

// newMirror builds the event mirror from whichever sinks are available.
// Nil clients are left out so the mirror skips them.
func newMirror(cfg *config.Config, topics mqtt.Topics, registry *store.Registry, hub *api.Hub,
	mqttClient *mqtt.Client, influxClient *influxdb.Client) *mirror.Mirror {
	opts := []mirror.Option{
		mirror.WithBroadcaster(hub),
		mirror.WithUpdater(registry),
	}
	if mqttClient != nil {
		opts = append(opts, mirror.WithPublisher(mqttClient))
	}
	if influxClient != nil && cfg.Mirror.Metrics {
		opts = append(opts, mirror.WithMetrics(influxClient))
	}
	return mirror.New(mirror.Config{
		Topics:     topics,
		QoS:        byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0..2
		AcceptCBOR: cfg.Mirror.AcceptCBOR,
	}, opts...)
}

// documentCodec maps database.document_format to a snapshot codec.
func documentCodec(format string) codec.Codec {
	if format == "cbor" {
		return codec.CBOR{}
	}
	return codec.JSON{}
}

// runToken mints a bearer token for the API. The secret and default
// lifetime come from the service configuration.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	userID := fs.String("user", "", "user ID placed in the token subject")
	groups := fs.String("groups", "", "comma-separated permission groups")
	ttl := fs.Duration("ttl", 0, "token lifetime (defaults to security.jwt.access_token_ttl)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return errors.New("-user is required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = cfg.GetAccessTokenTTL()
	}

	token, err := auth.IssueToken(permission.User{ID: *userID, Groups: splitGroups(*groups)}, cfg.Security.JWT.Secret, lifetime)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}

func splitGroups(s string) []string {
	var groups []string
	for _, g := range strings.Split(s, ",") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}

// getConfigPath returns the configuration file path.
// Uses PROPCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PROPCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy. The
// MQTT and InfluxDB clients are nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
