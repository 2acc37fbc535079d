// Command d2c backs up running containers as docker compose documents.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/artpar/d2c/internal/core/compose"
	"github.com/artpar/d2c/internal/shell/backup"
	"github.com/artpar/d2c/internal/shell/docker"
	"github.com/artpar/d2c/internal/shell/output"
	"github.com/artpar/d2c/internal/shell/scheduler"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const usage = `usage: d2c <command> [flags]

commands:
  serve     run the scheduler and the control API (default)
  run       take one backup and exit
  convert   convert saved inspect output to compose documents
  version   print version and exit
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	command := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		return runServe(args, stderr)
	case "run":
		return runBackup(args, stderr)
	case "convert":
		return runConvert(args, stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "d2c %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	case "help":
		fmt.Fprint(stdout, usage)
		return ExitSuccess
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return ExitConfigError
	}
}

// =============================================================================
// serve
// =============================================================================

func runServe(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return ExitConfigError
	}
	if *showVersion {
		fmt.Fprintf(stderr, "d2c %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	logger := SetupLogger(cfg)
	logger.Info("starting d2c",
		"version", Version,
		"config", *configPath,
		"output_dir", cfg.Output.Dir,
	)

	server, err := NewServer(cfg, *configPath, logger)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		return exitCode(err)
	}

	if err := server.Start(context.Background()); err != nil {
		logger.Error("server error", "error", err)
		return exitCode(err)
	}
	return ExitSuccess
}

// =============================================================================
// run
// =============================================================================

func runBackup(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return ExitConfigError
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}
	logger := SetupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runOnce(ctx, cfg, logger); err != nil {
		logger.Error("backup failed", "error", err)
		return exitCode(err)
	}
	return ExitSuccess
}

// =============================================================================
// convert
// =============================================================================

func runConvert(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	containersPath := fs.String("containers", "", "Path to docker inspect JSON output")
	networksPath := fs.String("networks", "", "Path to docker network inspect JSON output")
	outDir := fs.String("out", "", "Write documents under this directory instead of stdout")
	check := fs.Bool("check", false, "Load every document as a compose project and report problems")
	if err := fs.Parse(args); err != nil {
		return ExitConfigError
	}
	if *containersPath == "" {
		fmt.Fprintln(stderr, "convert: -containers is required")
		return ExitConfigError
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}
	logger := SetupLogger(cfg)

	ctx := context.Background()
	snap, err := docker.SnapshotFile{ContainersPath: *containersPath, NetworksPath: *networksPath}.Snapshot(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "convert: %v\n", err)
		return ExitConfigError
	}

	plan := backup.BuildPlan(snap, cfg.BackupConfig())
	for _, r := range plan.Rejected {
		fmt.Fprintf(stderr, "skipped %s: %s\n", r.ID, r.Reason)
	}
	for _, f := range plan.RenderFailures {
		fmt.Fprintf(stderr, "render %s: %v\n", f.Filename, f.Err)
	}

	code := ExitSuccess
	if *check {
		for _, doc := range plan.Rendered {
			if _, err := compose.Check(doc.Filename, doc.Content); err != nil {
				fmt.Fprintf(stderr, "check %s: %v\n", doc.Filename, err)
				code = ExitCheckFailed
			}
		}
	}

	if *outDir == "" {
		for i, doc := range plan.Rendered {
			if i > 0 {
				fmt.Fprintln(stdout, "---")
			}
			fmt.Fprintf(stdout, "# %s\n", doc.Filename)
			stdout.Write(doc.Content)
		}
		return code
	}

	if len(plan.Rendered) == 0 {
		fmt.Fprintln(stdout, "no documents to write")
		return code
	}

	loc, err := scheduler.LoadLocation(cfg.Settings.Timezone)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}
	w, err := output.NewWriter(output.Config{Root: *outDir, Location: loc}, logger)
	if err != nil {
		fmt.Fprintf(stderr, "convert: %v\n", err)
		return ExitOutputError
	}
	res, err := w.Write(ctx, time.Now(), plan.Rendered)
	if err != nil {
		fmt.Fprintf(stderr, "convert: %v\n", err)
		return ExitOutputError
	}
	for _, f := range res.Failed {
		fmt.Fprintf(stderr, "write %s: %v\n", f.Filename, f.Err)
		code = ExitOutputError
	}
	fmt.Fprintf(stdout, "wrote %d documents to %s\n", len(res.Written), res.Dir)
	return code
}

func exitCode(err error) int {
	var sErr *ServerError
	if errors.As(err, &sErr) {
		return sErr.ExitCode
	}
	return ExitConfigError
}
