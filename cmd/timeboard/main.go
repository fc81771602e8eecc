package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/fang"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/google/uuid"
	"github.com/hylla/timeboard/internal/adapters/notify"
	serveradapter "github.com/hylla/timeboard/internal/adapters/server"
	"github.com/hylla/timeboard/internal/adapters/server/common"
	"github.com/hylla/timeboard/internal/adapters/storage/sqlite"
	"github.com/hylla/timeboard/internal/app"
	"github.com/hylla/timeboard/internal/config"
	"github.com/hylla/timeboard/internal/platform"
	"github.com/spf13/cobra"
)

// version stores a package-level helper value.
var version = "dev"

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

// shutdownWatcher waits for a termination signal and runs ops. It is replaced in tests.
var shutdownWatcher = func(ctx context.Context, timeout time.Duration, ops map[string]gfshutdown.Operation) <-chan int {
	return gfshutdown.GracefulShutdown(ctx, timeout, ops)
}

// envLookup resolves environment values. It is replaced in tests.
var envLookup = os.LookupEnv

func main() {
	root := newRootCommand(os.Stdout, os.Stderr)
	if err := fang.Execute(context.Background(), root, fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

// run executes one command line against the given writers.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
}

// serveOptions holds serve-only flag overrides.
type serveOptions struct {
	httpBind    string
	apiEndpoint string
	mcpEndpoint string
	notifySink  string
}

// newRootCommand builds the command tree.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	opts := &rootOptions{
		appName: platform.AppName,
		devMode: version == "dev",
	}
	if envDev, ok := envLookup(platform.EnvDevMode); ok && strings.TrimSpace(envDev) != "" {
		opts.devMode = platform.DevModeFromEnv(envLookup)
	}

	root := &cobra.Command{
		Use:           "timeboard",
		Short:         "Multi-user task tracker with time logging",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config TOML")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	root.PersistentFlags().StringVar(&opts.appName, "app", opts.appName, "application name for config/data path resolution")
	root.PersistentFlags().BoolVar(&opts.devMode, "dev", opts.devMode, "use dev mode paths (<app>-dev)")

	root.AddCommand(newPathsCommand(opts, stdout))
	root.AddCommand(newInitCommand(opts, stdout))
	root.AddCommand(newServeCommand(opts, stderr))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			_, _ = fmt.Fprintf(stdout, "timeboard %s\n", version)
			return nil
		},
	})
	return root
}

// newPathsCommand prints resolved on-disk locations.
func newPathsCommand(opts *rootOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config, data, and database paths",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			paths, err := opts.resolvePaths()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(stdout, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(stdout, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(stdout, "log_dir: %s\n", paths.LogDir)
			return nil
		},
	}
}

// newInitCommand writes a default config file at the resolved config path.
func newInitCommand(opts *rootOptions, stdout io.Writer) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			paths, err := opts.resolvePaths()
			if err != nil {
				return err
			}
			if _, err := os.Stat(paths.ConfigPath); err == nil && !force {
				return fmt.Errorf("config %q already exists (use --force to overwrite)", paths.ConfigPath)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("stat config %q: %w", paths.ConfigPath, err)
			}
			if err := config.Save(paths.ConfigPath, config.Default(paths.DBPath)); err != nil {
				return fmt.Errorf("write config %q: %w", paths.ConfigPath, err)
			}
			_, _ = fmt.Fprintf(stdout, "wrote %s\n", paths.ConfigPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

// newServeCommand runs the HTTP API and MCP server.
func newServeCommand(opts *rootOptions, stderr io.Writer) *cobra.Command {
	serveOpts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and MCP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, serveOpts, stderr)
		},
	}
	cmd.Flags().StringVar(&serveOpts.httpBind, "http", "", "listen address (overrides server.http_bind)")
	cmd.Flags().StringVar(&serveOpts.apiEndpoint, "api-endpoint", "", "REST API mount path")
	cmd.Flags().StringVar(&serveOpts.mcpEndpoint, "mcp-endpoint", "", "MCP mount path")
	cmd.Flags().StringVar(&serveOpts.notifySink, "notify", "", "notification sink: log, nats, or none")
	return cmd
}

// resolvePaths applies platform defaults, environment overrides, and flags.
func (o *rootOptions) resolvePaths() (platform.Paths, error) {
	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: o.appName,
		DevMode: o.devMode,
	})
	if err != nil {
		return platform.Paths{}, err
	}
	paths = paths.WithEnvOverrides(envLookup)
	if v := strings.TrimSpace(o.configPath); v != "" {
		paths.ConfigPath = v
	}
	if v := strings.TrimSpace(o.dbPath); v != "" {
		paths.DBPath = v
	}
	return paths, nil
}

// loadConfig resolves paths and merges the TOML config over defaults.
func (o *rootOptions) loadConfig(serveOpts *serveOptions) (config.Config, platform.Paths, error) {
	paths, err := o.resolvePaths()
	if err != nil {
		return config.Config{}, platform.Paths{}, err
	}
	cfg, err := config.Load(paths.ConfigPath, config.Default(paths.DBPath))
	if err != nil {
		return config.Config{}, platform.Paths{}, fmt.Errorf("load config %q: %w", paths.ConfigPath, err)
	}
	// Explicit flags and env paths win over the file.
	if strings.TrimSpace(o.dbPath) != "" {
		cfg.Database.Path = paths.DBPath
	} else if v, ok := envLookup(platform.EnvDBPath); ok && strings.TrimSpace(v) != "" {
		cfg.Database.Path = paths.DBPath
	}
	if serveOpts != nil {
		if v := strings.TrimSpace(serveOpts.httpBind); v != "" {
			cfg.Server.HTTPBind = v
		}
		if v := strings.TrimSpace(serveOpts.apiEndpoint); v != "" {
			cfg.Server.APIEndpoint = v
		}
		if v := strings.TrimSpace(serveOpts.mcpEndpoint); v != "" {
			cfg.Server.MCPEndpoint = v
		}
		if v := strings.TrimSpace(serveOpts.notifySink); v != "" {
			cfg.Notify.Sink = config.NotifySink(strings.ToLower(v))
		}
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, platform.Paths{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, paths, nil
}

// runServe wires storage, services, notifications, and transports, then blocks
// until a termination signal or server failure.
func runServe(ctx context.Context, opts *rootOptions, serveOpts *serveOptions, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, paths, err := opts.loadConfig(serveOpts)
	if err != nil {
		return err
	}

	logger, err := newRuntimeLogger(stderr, opts.appName, opts.devMode, cfg.Logging, time.Now)
	if err != nil {
		return fmt.Errorf("configure runtime logger: %w", err)
	}
	defer func() {
		if closeErr := logger.Close(); closeErr != nil {
			_, _ = fmt.Fprintf(stderr, "warning: close runtime log sink: %v\n", closeErr)
		}
	}()
	logger.Info("startup configuration resolved", "app", opts.appName, "dev_mode", opts.devMode, "command", "serve")
	logger.Debug("runtime paths resolved", "config_path", paths.ConfigPath, "data_dir", paths.DataDir, "db_path", cfg.Database.Path)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("resolve time zone: %w", err)
	}

	logger.Info("opening sqlite repository", "db_path", cfg.Database.Path)
	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		return fmt.Errorf("open sqlite repository: %w", err)
	}

	sink, closeSink, err := newNotifier(cfg.Notify, logger)
	if err != nil {
		_ = repo.Close()
		return fmt.Errorf("configure notifications: %w", err)
	}
	outbox := app.NewOutbox(sink, cfg.Notify.QueueSize, logger)
	outbox.Start()
	logger.Info("notification outbox started", "sink", cfg.Notify.Sink, "queue_size", cfg.Notify.QueueSize)

	svcCfg := app.ServiceConfig{
		Location:  loc,
		Publisher: outbox,
		Directory: app.NewStaticDirectory(cfg.Users),
		Logger:    logger,
	}
	svc := app.NewService(repo, repo, uuid.NewString, time.Now, svcCfg)
	agg := app.NewAggregator(repo, repo, time.Now, svcCfg)

	var teardownOnce sync.Once
	var teardownErr error
	teardown := func(ctx context.Context) error {
		teardownOnce.Do(func() {
			var errs []error
			if err := outbox.Stop(ctx); err != nil {
				errs = append(errs, err)
			}
			if closeSink != nil {
				if err := closeSink(); err != nil {
					errs = append(errs, fmt.Errorf("close notification sink: %w", err))
				}
			}
			if err := repo.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close sqlite repository: %w", err))
			}
			teardownErr = errors.Join(errs...)
		})
		return teardownErr
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout.Std()
	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()

	var serveErr error
	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		serveErr = serveCommandRunner(serveCtx, serveradapter.Config{
			HTTPBind:        cfg.Server.HTTPBind,
			APIEndpoint:     cfg.Server.APIEndpoint,
			MCPEndpoint:     cfg.Server.MCPEndpoint,
			ServerName:      opts.appName,
			ServerVersion:   version,
			ShutdownTimeout: shutdownTimeout,
		}, serveradapter.Dependencies{
			Services: common.Services{Tasks: svc, Timers: svc, Reports: agg},
			Ready:    repo.Ping,
			Logger:   logger,
		})
	}()

	var signaled atomic.Bool
	shutdownDone := shutdownWatcher(context.Background(), shutdownTimeout, map[string]gfshutdown.Operation{
		"timeboard": func(opCtx context.Context) error {
			signaled.Store(true)
			logger.Info("shutdown requested")
			stopServe()
			select {
			case <-serveDone:
			case <-opCtx.Done():
				return fmt.Errorf("wait for http server: %w", opCtx.Err())
			}
			return teardown(opCtx)
		},
	})

	<-serveDone
	if !signaled.Load() {
		// The server stopped on its own or the parent context ended.
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		closeErr := teardown(stopCtx)
		if serveErr != nil {
			logger.Error("http server failed", "err", serveErr)
			return errors.Join(fmt.Errorf("run server: %w", serveErr), closeErr)
		}
		logger.Info("server stopped")
		return closeErr
	}

	if code := <-shutdownDone; code != 0 {
		return fmt.Errorf("shutdown finished with exit code %d: %w", code, errors.Join(serveErr, teardownErr))
	}
	logger.Info("shutdown complete")
	return serveErr
}

// newNotifier builds the configured sink and its optional close hook.
func newNotifier(cfg config.NotifyConfig, logger *runtimeLogger) (app.Notifier, func() error, error) {
	switch cfg.Sink {
	case config.NotifySinkNone:
		return nil, nil, nil
	case config.NotifySinkNATS:
		natsCfg := notify.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		if strings.TrimSpace(cfg.SubjectPrefix) != "" {
			natsCfg.SubjectPrefix = cfg.SubjectPrefix
		}
		sink, err := notify.NewNATSSink(natsCfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("nats notification sink connected", "url", natsCfg.URL, "subject_prefix", natsCfg.SubjectPrefix)
		return sink, sink.Close, nil
	default:
		sink, err := notify.NewLogSink(logger.Console())
		if err != nil {
			return nil, nil, err
		}
		return sink, nil, nil
	}
}
