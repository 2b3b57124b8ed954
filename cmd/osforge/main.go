package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/osforge/internal/config"
	"git.home.luguber.info/inful/osforge/internal/daemon"
	"git.home.luguber.info/inful/osforge/internal/spec"
	"git.home.luguber.info/inful/osforge/internal/version"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Serve struct{} `cmd:"" help:"Start the build daemon"`

	Validate struct {
		Spec string `arg:"" help:"Path to a JSON build specification"`
	} `cmd:"" help:"Validate a build specification without submitting it"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	if CLI.Verbose {
		levelVar.Set(slog.LevelDebug)
	}
	setupLogging(levelVar, "text")

	var err error
	switch ctx.Command() {
	case "serve":
		err = runServe(levelVar)
	case "validate <spec>":
		err = runValidate(CLI.Validate.Spec)
	case "init":
		err = config.Init(CLI.Config, CLI.Init.Force)
		if err == nil {
			fmt.Printf("Configuration written to %s\n", CLI.Config)
		}
	case "version":
		fmt.Printf("osforge %s (commit %s, built %s)\n", version.Version, version.GitCommit, version.BuildTime)
	default:
		err = fmt.Errorf("unknown command: %s", ctx.Command())
	}

	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(level *slog.LevelVar, format string) {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if config.NormalizeLogFormat(format) == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func runServe(levelVar *slog.LevelVar) error {
	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	if !CLI.Verbose {
		levelVar.Set(config.NormalizeLogLevel(cfg.Logging.Level).SlogLevel())
	}
	setupLogging(levelVar, cfg.Logging.Format)

	d, err := daemon.New(cfg, configPath, levelVar)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	stop()
	slog.Info("Shutdown signal received")

	return d.Stop(context.Background())
}

// loadConfig falls back to built-in defaults when the default config file is
// absent; an explicitly given path must exist.
func loadConfig() (*config.Config, string, error) {
	if _, err := os.Stat(CLI.Config); os.IsNotExist(err) {
		if CLI.Config != "config.yaml" {
			return nil, "", fmt.Errorf("configuration file not found: %s", CLI.Config)
		}
		slog.Info("No configuration file found, using defaults")
		return config.Default(), "", nil
	}

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return nil, "", err
	}
	return cfg, CLI.Config, nil
}

func runValidate(specPath string) error {
	raw, err := os.ReadFile(specPath)
	if err != nil {
		return fmt.Errorf("read specification: %w", err)
	}

	validated, err := spec.NewValidator().ValidateJSON(raw)
	if err != nil {
		return err
	}

	fmt.Printf("Specification is valid: %s\n", validated)
	return nil
}
