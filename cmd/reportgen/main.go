package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"reportgen/internal/config"
	"reportgen/internal/export"
	"reportgen/internal/report"
	"reportgen/internal/serverapp"

	"github.com/spf13/pflag"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

// cliShutdownTimeout bounds cleanup after a one-shot run.
const cliShutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("reportgen error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

type cliOptions struct {
	version bool
	serve   bool
	report  string
	output  string
	format  string
	preview bool
	user    string
	roles   []string
}

func defineCLIFlags(fs *pflag.FlagSet) {
	fs.Bool("version", false, "Print version and exit")
	fs.Bool("serve", false, "Start the HTTP report server")
	fs.String("report", "", "Run one report: a definition file, or a name from reports.dir")
	fs.StringP("output", "o", "-", "Write the report to this file (- for stdout)")
	fs.String("format", "", "Output format (csv, json); defaults to reports.format")
	fs.Bool("preview", false, "Stop after the preview row count")
	fs.String("user", "", "Report user ID for permission checks")
	fs.StringSlice("roles", nil, "Report user roles for permission checks")
}

func readCLIOptions(fs *pflag.FlagSet) cliOptions {
	var opts cliOptions
	opts.version, _ = fs.GetBool("version")
	opts.serve, _ = fs.GetBool("serve")
	opts.report, _ = fs.GetString("report")
	opts.output, _ = fs.GetString("output")
	opts.format, _ = fs.GetString("format")
	opts.preview, _ = fs.GetBool("preview")
	opts.user, _ = fs.GetString("user")
	opts.roles, _ = fs.GetStringSlice("roles")
	return opts
}

func (o cliOptions) validate() error {
	switch {
	case o.serve && o.report != "":
		return errors.New("--serve and --report cannot be combined")
	case !o.serve && o.report == "":
		return errors.New("nothing to do: pass --report <file> or --serve")
	}
	return nil
}

func run() error {
	defineCLIFlags(pflag.CommandLine)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	opts := readCLIOptions(pflag.CommandLine)

	if opts.version {
		fmt.Printf("reportgen %s (%s)\n", Version, Commit)
		return nil
	}
	if err := opts.validate(); err != nil {
		return err
	}

	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}

	validationResult := cfg.Validate()
	for _, warn := range validationResult.Warnings {
		slog.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if validationResult.HasErrors() {
		for _, err := range validationResult.Errors {
			slog.Error("configuration error",
				slog.String("field", err.Field),
				slog.String("message", err.Message),
				slog.String("hint", err.Hint),
			)
		}
		return fmt.Errorf("configuration validation failed")
	}

	if opts.serve {
		return serve(cfg)
	}
	return runOnce(cfg, opts)
}

func serve(cfg *config.Config) error {
	logger, loggerProvider, err := serverapp.InitLogger(cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	app, err := serverapp.New(cfg, logger)
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
		return err
	}
	app.AttachLoggerProvider(loggerProvider)

	if err := app.Init(context.Background()); err != nil {
		return err
	}

	serverErrors, err := app.Start()
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = app.Shutdown(shutdownCtx)
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	_, waitErr := app.WaitForStop(stop, serverErrors)

	logger.Info("shutting down server gracefully")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	shutdownErr := app.Shutdown(shutdownCtx)
	shutdownCancel()

	if waitErr != nil {
		return waitErr
	}
	if shutdownErr != nil {
		return shutdownErr
	}

	logger.Info("server stopped gracefully")
	return nil
}

// runOnce runs a single report and writes it to the output. Logs go to
// stderr so stdout carries only the report.
func runOnce(cfg *config.Config, opts cliOptions) error {
	logger, loggerProvider, err := serverapp.InitLogger(cfg, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	app, err := serverapp.New(cfg, logger)
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
		return err
	}
	app.AttachLoggerProvider(loggerProvider)

	def, definitionsDir, err := resolveDefinition(opts.report, cfg.Reports.Dir)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.InitCore(ctx, definitionsDir); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cliShutdownTimeout)
		defer cancel()
		_ = app.Shutdown(shutdownCtx)
	}()

	runner := app.Runner()
	if def == nil {
		var ok bool
		def, ok = runner.Definition(opts.report)
		if !ok {
			return fmt.Errorf("report %q not found in %s", opts.report, definitionsDir)
		}
	}

	formatName := opts.format
	if formatName == "" {
		formatName = cfg.Reports.Format
	}
	format, err := export.ParseFormat(formatName)
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(opts.output)
	if err != nil {
		return err
	}
	defer closeOut()

	res, err := runner.Export(ctx, out, serverapp.RunRequest{
		Definition: def,
		User:       report.User{ID: opts.user, Roles: opts.roles},
		Format:     format,
		Preview:    opts.preview || cfg.Reports.Preview,
	})
	if err != nil {
		return fmt.Errorf("report %s failed: %w", def.Name, err)
	}
	if serverapp.Denied(res) {
		return fmt.Errorf("report %s: %s", def.Name, report.PermissionDeniedMessage)
	}
	if res.Message != "" {
		logger.Warn("columns suppressed", slog.String("report", def.Name), slog.String("message", res.Message))
	}
	return nil
}

// resolveDefinition treats arg as a definition file when it names a YAML
// file and as a report name from dir otherwise. A file is loaded on its own,
// so the returned directory is empty.
func resolveDefinition(arg, dir string) (*report.Definition, string, error) {
	ext := strings.ToLower(filepath.Ext(arg))
	info, statErr := os.Stat(arg)
	isFile := statErr == nil && info.Mode().IsRegular()
	if !isFile && ext != ".yaml" && ext != ".yml" {
		return nil, dir, nil
	}
	def, err := report.LoadDefinition(arg)
	if err != nil {
		return nil, "", err
	}
	return def, "", nil
}

// openOutput opens path for writing; "" and "-" select stdout.
func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
