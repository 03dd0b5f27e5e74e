package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/configcache/internal/application"
	"github.com/eugenenazirov/configcache/internal/config"
	"github.com/eugenenazirov/configcache/internal/logging"
)

var (
	signalNotify = signal.Notify
	signalStop   = signal.Stop
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	kingpinApp := kingpin.New("configcache", "Prints configuration files as served by the read-through config cache")
	configFile := kingpinApp.Flag("config", "Path to YAML settings file").String()
	baseName := kingpinApp.Flag("base-name", "Configuration file used when no file is given").String()
	envVar := kingpinApp.Flag("env-var", "Environment variable holding the environment tag").String()
	environment := kingpinApp.Flag("env", "Environment tag, overrides the environment variable").String()
	logLevel := kingpinApp.Flag("log-level", "Log level (debug, info, warn, error)").String()
	shapeFile := kingpinApp.Flag("shape", "JSON or YAML file whose keys bound the allowed keys").String()
	subkey := kingpinApp.Flag("subkey", "Print only the object under this key").String()
	watch := kingpinApp.Flag("watch", "Poll interval; reprints documents when they are reloaded").Duration()
	files := kingpinApp.Arg("files", "Configuration files to print").Strings()

	if _, err := kingpinApp.Parse(args); err != nil {
		return err
	}

	overrides := &config.CLIOverrides{
		ConfigFile:  *configFile,
		BaseName:    baseName,
		EnvVar:      envVar,
		Environment: environment,
		LogLevel:    logLevel,
	}

	if *watch > 0 {
		overrides.WatchInterval = watch
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := notifyContext(ctx, logger)
	defer cancel()

	app := application.New(cfg, logger, stdout)
	req := application.Request{
		Files:     *files,
		ShapeFile: *shapeFile,
		Subkey:    *subkey,
	}
	if err := app.Run(ctx, req); err != nil {
		logger.Error("configcache failed", zap.Error(err))
		return err
	}
	return nil
}

// notifyContext returns a context cancelled on SIGINT or SIGTERM. The
// returned cancel func also stops signal delivery.
func notifyContext(parent context.Context, logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	stop := func() {
		signalStop(quit)
		cancel()
	}

	go func() {
		select {
		case <-quit:
			logger.Info("shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, stop
}
