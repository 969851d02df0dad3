package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/veridian-apps/ledgersync/internal/api"
	"github.com/veridian-apps/ledgersync/internal/connectivity"
	"github.com/veridian-apps/ledgersync/internal/engine"
	"github.com/veridian-apps/ledgersync/internal/recovery"
	"github.com/veridian-apps/ledgersync/internal/remote"
	"github.com/veridian-apps/ledgersync/internal/resolver"
	"github.com/veridian-apps/ledgersync/internal/scheduler"
	"github.com/veridian-apps/ledgersync/internal/store"
	"github.com/veridian-apps/ledgersync/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for LedgerSync state data
	DefaultStateDir = "/var/lib/ledgersync"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "ledgersync.db"
	// DefaultSyncCron is the fallback periodic sync schedule
	DefaultSyncCron = "*/15 * * * *"
	// deviceIDFileName stores the generated device identity in the state dir
	deviceIDFileName = "device_id"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if *flags.tenantID == "" {
		slog.Error("Tenant ID is required (set $LEDGERSYNC_TENANT_ID or --tenant)")
		os.Exit(1)
	}
	if *flags.remoteURL == "" {
		slog.Error("Remote API URL is required (set $LEDGERSYNC_REMOTE_URL or --remote-url)")
		os.Exit(1)
	}

	slog.Info("Bootstrapping LedgerSync", "tenantID", *flags.tenantID, "db_driver", *flags.dbDriver)
	if err := run(flags); err != nil {
		slog.Error("LedgerSync failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("LedgerSync exited successfully")
}

// Config holds environment configuration
type Config struct {
	DbDriver    string
	DatabaseDSN string
	StateDir    string
	TenantID    string
	RemoteURL   string
	AuthToken   string
	DeviceID    string
	APIAddr     string
	SyncCron    string
}

// Flags holds command line flag values
type Flags struct {
	stateDir   *string
	dbDriver   *string
	dbDSN      *string
	tenantID   *string
	remoteURL  *string
	authToken  *string
	deviceID   *string
	apiAddr    *string
	syncCron   *string
	bestEffort *bool
}

// initializeLogger sets up structured logging
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("LEDGERSYNC_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		DbDriver:    os.Getenv("LEDGERSYNC_DB_DRIVER"),
		DatabaseDSN: os.Getenv("LEDGERSYNC_DB_DSN"),
		StateDir:    os.Getenv("LEDGERSYNC_STATE_DIR"),
		TenantID:    os.Getenv("LEDGERSYNC_TENANT_ID"),
		RemoteURL:   os.Getenv("LEDGERSYNC_REMOTE_URL"),
		AuthToken:   os.Getenv("LEDGERSYNC_AUTH_TOKEN"),
		DeviceID:    os.Getenv("LEDGERSYNC_DEVICE_ID"),
		APIAddr:     os.Getenv("LEDGERSYNC_API_ADDR"),
		SyncCron:    os.Getenv("LEDGERSYNC_SYNC_CRON"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseDSN)
	}
	if config.SyncCron == "" {
		config.SyncCron = DefaultSyncCron
	}

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:   flag.String("state-dir", config.StateDir, "state directory for LedgerSync data (overrides $LEDGERSYNC_STATE_DIR)"),
		dbDriver:   flag.String("db-driver", config.DbDriver, "database driver: sqlite3 or postgres (overrides $LEDGERSYNC_DB_DRIVER)"),
		dbDSN:      flag.String("db-dsn", config.DatabaseDSN, "database DSN (overrides $LEDGERSYNC_DB_DSN)"),
		tenantID:   flag.String("tenant", config.TenantID, "tenant ID this device syncs for (overrides $LEDGERSYNC_TENANT_ID)"),
		remoteURL:  flag.String("remote-url", config.RemoteURL, "cloud API base URL (overrides $LEDGERSYNC_REMOTE_URL)"),
		authToken:  flag.String("auth-token", config.AuthToken, "bearer token for the cloud API (overrides $LEDGERSYNC_AUTH_TOKEN)"),
		deviceID:   flag.String("device-id", config.DeviceID, "device identity; generated if empty (overrides $LEDGERSYNC_DEVICE_ID)"),
		apiAddr:    flag.String("api-addr", config.APIAddr, "diagnostics API address (overrides $LEDGERSYNC_API_ADDR)"),
		syncCron:   flag.String("sync-cron", config.SyncCron, "periodic sync cron schedule (overrides $LEDGERSYNC_SYNC_CRON)"),
		bestEffort: flag.Bool("best-effort-storage", false, "mark the local store as living on an evictable storage tier"),
	}
	flag.Parse()
	return flags
}

// buildStore opens the configured storage backend.
func buildStore(flags Flags) (store.Store, error) {
	if *flags.dbDriver == "postgres" {
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	opts := []store.Option{store.WithSQLiteDSN(*flags.dbDSN)}
	if *flags.bestEffort {
		opts = append(opts, store.WithDurability(store.DurabilityBestEffort))
	}
	return store.NewSQLiteStore(opts...)
}

// resolveDeviceID returns the device identity to present to the cloud store.
// A configured value wins; otherwise a generated id is persisted in the state
// dir so the device keeps the same identity across restarts.
func resolveDeviceID(stateDir, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	path := filepath.Join(stateDir, deviceIDFileName)
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}
	id := uuid.NewString()
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return "", fmt.Errorf("create state dir for device id: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	slog.Info("Generated device id", "deviceID", id, "path", path)
	return id, nil
}

func run(flags Flags) error {
	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	deviceID, err := resolveDeviceID(*flags.stateDir, *flags.deviceID)
	if err != nil {
		return err
	}

	client, err := remote.NewClient(
		remote.WithBaseURL(*flags.remoteURL),
		remote.WithAuthToken(*flags.authToken),
		remote.WithDeviceID(deviceID),
	)
	if err != nil {
		return err
	}

	tenantID := *flags.tenantID

	// Startup recovery runs before the first pass: requeue entries a crash
	// left claimed, and detect an evicted best-effort store.
	rec := recovery.NewRunner(st)
	if err := rec.RecoverStaleEntries(); err != nil {
		return err
	}
	if repull, err := rec.CheckLocalStoreLoss(tenantID); err != nil {
		return err
	} else if repull {
		slog.Warn("Local store loss detected; next pull starts from epoch zero", "tenantID", tenantID)
	}

	monitor := connectivity.NewMonitor(client.Health,
		connectivity.WithProbeInterval(util.ParseDurationEnv("LEDGERSYNC_PROBE_INTERVAL", connectivity.DefaultProbeInterval)),
		connectivity.WithDebounceWindow(util.ParseDurationEnv("LEDGERSYNC_DEBOUNCE_WINDOW", connectivity.DefaultDebounceWindow)),
	)

	eng := engine.New(engine.Config{
		Store:     st,
		Remote:    client,
		Resolver:  resolver.NewLastWriteWins(),
		Monitor:   monitor,
		DeviceID:  deviceID,
		BatchSize: util.ParseIntEnv("LEDGERSYNC_BATCH_SIZE", engine.DefaultBatchSize),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Run(ctx)

	eng.Start(tenantID)
	defer eng.Stop()

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(*flags.syncCron, func() {
		if _, err := eng.RunSyncOnce(context.Background(), tenantID); err != nil && err != engine.ErrSyncInFlight {
			slog.Error("scheduled sync failed", "tenantID", tenantID, "error", err)
		}
	}); err != nil {
		return err
	}

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(eng, apiOpts...)
	return server.Run()
}
