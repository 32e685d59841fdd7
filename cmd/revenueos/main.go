package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/wesm/revenueos/internal/config"
	"github.com/wesm/revenueos/internal/db"
	"github.com/wesm/revenueos/internal/feed"
	"github.com/wesm/revenueos/internal/ingest"
	"github.com/wesm/revenueos/internal/rollup"
	"github.com/wesm/revenueos/internal/server"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = ""
)

const (
	logFileName     = "debug.log"
	maxLogFileSize  = 10 << 20
	shutdownTimeout = 10 * time.Second
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "report":
			runReport(os.Args[2:])
			return
		case "import":
			runImport(os.Args[2:])
			return
		case "version", "--version", "-v":
			fmt.Printf("revenueos %s\n", versionInfo())
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	runServe(os.Args[1:])
}

func versionInfo() server.VersionInfo {
	return server.VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
	}
}

func printUsage() {
	fmt.Printf(`revenueos %s - ROI rollup for an AI agent fleet

Stores agents, traces, and daily provider costs in SQLite and
serves the fleet's return on investment over a JSON API.

Usage:
  revenueos [flags]            Start the server (default command)
  revenueos serve [flags]      Start the server (explicit)
  revenueos report [flags]     Print the ROI summary
  revenueos import [paths...]  Import JSONL files or directories
  revenueos version            Show version information
  revenueos help               Show this help

Server flags:
  -host string              Host to bind to (default "127.0.0.1")
  -port int                 Port to listen on (default 8080)
  -import-dir string        Directory of JSONL files to import and watch
  -no-watch                 Don't watch the import directory
  -metered-provider string  Provider billed per call (default "google")

Report flags:
  -format string            table, plain, or json (default "table")
  -agent string             Show a single agent
  -metered-provider string  Provider billed per call (default "google")

Environment variables:
  REVENUEOS_DATA_DIR          Data directory (database, config)
  REVENUEOS_IMPORT_DIR        Import directory
  REVENUEOS_METERED_PROVIDER  Provider billed per call

Data is stored in ~/.revenueos/ by default.
`, version)
}

func runServe(args []string) {
	cfg := mustLoadConfig(args)
	setupLogFile(cfg.DataDir)

	database := mustOpenDB(cfg)
	defer database.Close()

	bus := feed.NewBus()
	database.SetPublisher(bus)

	svc := rollup.New(database, bus, cfg.ROI, cfg.MeteredProvider)
	defer svc.Close()

	importer := ingest.NewImporter(database)
	runInitialImport(importer, cfg.ImportDir)

	stopWatcher := startImportWatcher(cfg, importer)
	defer stopWatcher()

	port := server.FindAvailablePort(cfg.Host, cfg.Port)
	if port != cfg.Port {
		fmt.Printf("Port %d in use, using %d\n", cfg.Port, port)
	}
	cfg.Port = port

	srv := server.New(cfg, database, svc, bus,
		server.WithVersion(versionInfo()),
	)

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	fmt.Printf("revenueos %s listening at http://%s:%d\n",
		version, cfg.Host, cfg.Port)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	case <-ctx.Done():
		log.Println("shutting down")
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}

func mustLoadConfig(args []string) config.Config {
	fs := flag.NewFlagSet("revenueos", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			"Usage: revenueos [serve] [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	config.RegisterServeFlags(fs)
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parsing flags: %v", err)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := cfg.ROI.Validate(); err != nil {
		log.Fatalf("invalid roi config: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}
	return cfg
}

func mustOpenDB(cfg config.Config) *db.DB {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	return database
}

func runInitialImport(im *ingest.Importer, dir string) {
	if _, err := os.Stat(dir); err != nil {
		return
	}
	fmt.Printf("Importing %s...\n", dir)
	stats, err := im.ImportDir(dir)
	if err != nil {
		log.Printf("initial import: %v", err)
	}
	printImportStats(os.Stdout, stats)
}

func startImportWatcher(
	cfg config.Config, im *ingest.Importer,
) func() {
	if cfg.NoWatch {
		return func() {}
	}
	if err := os.MkdirAll(cfg.ImportDir, 0o755); err != nil {
		log.Printf("warning: creating import dir: %v", err)
		return func() {}
	}

	onChange := func(paths []string) {
		stats := im.ImportPaths(paths)
		if stats.Records() > 0 || stats.Failed > 0 {
			log.Printf("imported %d record(s), %d failed",
				stats.Records(), stats.Failed)
		}
	}
	watcher, err := ingest.NewWatcher(cfg.WatchDebounce, onChange)
	if err != nil {
		log.Printf("warning: file watcher unavailable: %v", err)
		return func() {}
	}
	unwatched, err := watcher.Watch(cfg.ImportDir)
	if err != nil {
		log.Printf("warning: watching %s: %v", cfg.ImportDir, err)
	}
	if unwatched > 0 {
		log.Printf("warning: %d director(ies) under %s not watched",
			unwatched, cfg.ImportDir)
	}
	watcher.Start()
	return watcher.Stop
}

func printImportStats(w io.Writer, s ingest.Stats) {
	fmt.Fprintf(w,
		"Imported %d file(s): %d agents, %d traces, %d daily costs"+
			" (%d skipped, %d failed)\n",
		s.Files, s.Agents, s.Traces, s.DailyCosts,
		s.Skipped, s.Failed,
	)
}

// setupLogFile sends log output to stderr and a debug log in
// dataDir. A log over maxLogFileSize is truncated first.
func setupLogFile(dataDir string) {
	path := filepath.Join(dataDir, logFileName)
	truncateLogFile(path, maxLogFileSize)
	f, err := os.OpenFile(
		path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600,
	)
	if err != nil {
		log.Printf("warning: cannot open log file: %v", err)
		return
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
}

// truncateLogFile empties path when it exceeds limit bytes.
// Symlinks are left alone.
func truncateLogFile(path string, limit int64) {
	info, err := os.Lstat(path)
	if err != nil {
		return
	}
	if info.Mode()&os.ModeSymlink != 0 || !info.Mode().IsRegular() {
		return
	}
	if info.Size() <= limit {
		return
	}
	if err := os.Truncate(path, 0); err != nil {
		log.Printf("warning: truncating log file: %v", err)
	}
}
