package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"genproxy/config"
	"genproxy/core"
	"genproxy/core/events"
	"genproxy/core/genesis"
	"genproxy/indexer"
	"genproxy/observability/logging"
	telemetry "genproxy/observability/otel"
	"genproxy/rpc"
	"genproxy/storage"
)

const (
	serviceName    = "proxyd"
	envVar         = "PROXY_ENV"
	genesisPathEnv = "PROXY_GENESIS"
	shutdownGrace  = 10 * time.Second
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to the genesis JSON file (overrides PROXY_GENESIS and config GenesisFile)")
	listenFlag := flag.String("listen", "", "JSON-RPC listen address (overrides config ListenAddress)")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before reading the environment")
	flag.Parse()

	if err := loadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv(envVar))
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logOpts := logging.Options{Service: serviceName, Env: env, Level: cfg.LogLevel, Format: cfg.LogFormat}
	if path := strings.TrimSpace(cfg.LogFile); path != "" {
		logFile := logging.RotatingFile(path, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		defer logFile.Close()
		logOpts.Output = logFile
	}
	logger := logging.SetupWithOptions(logOpts)

	if listen := strings.TrimSpace(*listenFlag); listen != "" {
		cfg.ListenAddress = listen
	}
	genesisPath, err := resolveGenesisPath(*genesisFlag, cfg.GenesisFile, os.LookupEnv)
	if err != nil {
		logger.Error("Failed to resolve genesis path", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, genesisPath, env, logger); err != nil {
		logger.Error("proxyd exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, genesisPath, env string, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.ConfigFromEnv(serviceName, env))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	spec, err := genesis.LoadGenesisSpec(genesisPath)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}

	var emitters events.Fanout
	var idx *indexer.Indexer
	if dsn := strings.TrimSpace(cfg.IndexerDSN); dsn != "" {
		idx, err = indexer.Open(dsn, logging.Component(logger, "indexer"))
		if err != nil {
			db.Close()
			return err
		}
		defer func() {
			if err := idx.Close(); err != nil {
				logger.Warn("indexer close", slog.Any("error", err))
			}
		}()
		emitters = append(emitters, idx)
	}

	node, err := core.NewNode(ctx, db, spec,
		core.WithLogger(logging.Component(logger, "node")),
		core.WithEmitter(emitters),
	)
	if err != nil {
		db.Close()
		return fmt.Errorf("create node: %w", err)
	}
	defer node.Close()

	secret, err := cfg.ResolveJWTSecret()
	if err != nil {
		return err
	}
	logger.Debug("rpc auth configured",
		logging.MaskField("jwt_secret", secret),
		slog.Bool("anonymous_queries", cfg.RPC.AllowAnonymousQueries))
	var opts []rpc.Option
	if idx != nil {
		opts = append(opts, rpc.WithEventSource(idx))
	}
	server := rpc.NewServer(node, rpc.ServerConfigFrom(cfg.RPC, secret), logging.Component(logger, "rpc"), opts...)

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddress, err)
	}
	logger.Info("proxyd running",
		slog.String("network", cfg.NetworkName),
		slog.String("listen", listener.Addr().String()),
		slog.String("proxy", node.Deployment().Proxy.String()),
		slog.Uint64("height", node.Height()))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Serve(listener)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("rpc shutdown: %w", err)
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info("proxyd stopped")
	return nil
}

// loadEnvFile applies a dotenv file without overriding variables already set
// in the process environment. A missing file is not an error.
func loadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.DBBackend {
	case config.BackendMemory:
		return storage.NewMemDB(), nil
	case config.BackendBolt:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("prepare data dir: %w", err)
		}
		db, err := storage.NewBoltDB(cfg.DataPath("state.bolt"), nil)
		if err != nil {
			return nil, fmt.Errorf("open bolt state: %w", err)
		}
		return db, nil
	case config.BackendLevelDB, "":
		db, err := storage.NewLevelDB(cfg.DataPath("state"))
		if err != nil {
			return nil, fmt.Errorf("open leveldb state: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported DBBackend %q", cfg.DBBackend)
	}
}

type envLookupFunc func(string) (string, bool)

func resolveGenesisPath(cliPath string, cfgPath string, lookup envLookupFunc) (string, error) {
	trimmedCLI := strings.TrimSpace(cliPath)
	if trimmedCLI != "" {
		return trimmedCLI, nil
	}

	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok {
			trimmedEnv := strings.TrimSpace(value)
			if trimmedEnv != "" {
				return trimmedEnv, nil
			}
		}
	}

	trimmedCfg := strings.TrimSpace(cfgPath)
	if trimmedCfg != "" {
		return trimmedCfg, nil
	}

	return "", errors.New("no genesis file provided; supply one via --genesis, " + genesisPathEnv + ", or config")
}
