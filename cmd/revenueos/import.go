package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/wesm/revenueos/internal/config"
	"github.com/wesm/revenueos/internal/ingest"
)

// importPaths imports each path, walking directories. An empty
// list falls back to dir.
func importPaths(
	im *ingest.Importer, paths []string, dir string, out io.Writer,
) (ingest.Stats, error) {
	if len(paths) == 0 {
		paths = []string{dir}
	}
	var total ingest.Stats
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return total, fmt.Errorf("import %s: %w", p, err)
		}
		var st ingest.Stats
		if info.IsDir() {
			st, err = im.ImportDir(p)
		} else {
			st, err = im.ImportFile(p)
		}
		if err != nil {
			return total, fmt.Errorf("import %s: %w", p, err)
		}
		fmt.Fprintf(out, "  %s: %d record(s)\n", p, st.Records())
		total.Add(st)
	}
	return total, nil
}

func runImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			"Usage: revenueos import [file.jsonl|dir]...\n")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	cfg, err := config.LoadMinimal()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}
	database := mustOpenDB(cfg)
	defer database.Close()

	stats, err := importPaths(
		ingest.NewImporter(database), fs.Args(), cfg.ImportDir,
		os.Stdout,
	)
	printImportStats(os.Stdout, stats)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if stats.Failed > 0 {
		os.Exit(1)
	}
}
