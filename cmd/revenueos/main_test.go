package main

import (
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMustLoadConfig(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		wantHost     string
		wantPort     int
		wantNoWatch  bool
		wantProvider string
	}{
		{
			name:         "DefaultArgs",
			args:         []string{},
			wantHost:     "127.0.0.1",
			wantPort:     8080,
			wantProvider: "google",
		},
		{
			name: "ExplicitFlags",
			args: []string{
				"-host", "0.0.0.0", "-port", "9090", "-no-watch",
				"-metered-provider", "openai",
			},
			wantHost:     "0.0.0.0",
			wantPort:     9090,
			wantNoWatch:  true,
			wantProvider: "openai",
		},
		{
			name:         "PartialFlags",
			args:         []string{"-port", "3000"},
			wantHost:     "127.0.0.1",
			wantPort:     3000,
			wantProvider: "google",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REVENUEOS_DATA_DIR", t.TempDir())
			t.Setenv("REVENUEOS_IMPORT_DIR", "")
			t.Setenv("REVENUEOS_METERED_PROVIDER", "")
			cfg := mustLoadConfig(tt.args)

			if cfg.Host != tt.wantHost {
				t.Errorf("Host = %q, want %q", cfg.Host, tt.wantHost)
			}
			if cfg.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", cfg.Port, tt.wantPort)
			}
			if cfg.NoWatch != tt.wantNoWatch {
				t.Errorf("NoWatch = %v, want %v", cfg.NoWatch, tt.wantNoWatch)
			}
			if cfg.MeteredProvider != tt.wantProvider {
				t.Errorf("MeteredProvider = %q, want %q",
					cfg.MeteredProvider, tt.wantProvider)
			}

			wantDBPath := filepath.Join(cfg.DataDir, "revenueos.db")
			if cfg.DBPath != wantDBPath {
				t.Errorf("DBPath = %q, want %q", cfg.DBPath, wantDBPath)
			}
			if _, err := os.Stat(cfg.DataDir); err != nil {
				t.Errorf("data dir not created: %v", err)
			}
		})
	}
}

func TestSetupLogFile(t *testing.T) {
	// Save and restore the global logger output.
	origOutput := log.Writer()
	t.Cleanup(func() { log.SetOutput(origOutput) })

	dir := t.TempDir()
	setupLogFile(dir)

	log.Print("test-log-message")

	data, err := os.ReadFile(filepath.Join(dir, logFileName))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "test-log-message") {
		t.Errorf("log file missing message, got: %q", data)
	}
}

func TestSetupLogFileOpenFailure(t *testing.T) {
	origOutput := log.Writer()
	t.Cleanup(func() { log.SetOutput(origOutput) })

	var buf bytes.Buffer
	log.SetOutput(io.MultiWriter(origOutput, &buf))

	// A file standing in for the data dir cannot hold the log.
	tmpFile := filepath.Join(t.TempDir(), "notadir")
	if err := os.WriteFile(tmpFile, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	setupLogFile(tmpFile)

	if !strings.Contains(buf.String(), "cannot open log file") {
		t.Errorf("expected warning about log file, got: %q", buf.String())
	}
}

func TestTruncateLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), 1024), 0o644); err != nil {
		t.Fatal(err)
	}

	truncateLogFile(path, 512)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat after truncate: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("size after truncate = %d, want 0", info.Size())
	}
}

func TestTruncateLogFileUnderLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	content := []byte("small log content")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	truncateLogFile(path, 1024)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read after truncate: %v", err)
	}
	if string(data) != string(content) {
		t.Errorf("content changed: got %q", data)
	}
}

func TestTruncateLogFileMissing(t *testing.T) {
	truncateLogFile(filepath.Join(t.TempDir(), "missing", "log.txt"), 1024)
}

func TestTruncateLogFileSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.log")
	link := filepath.Join(dir, "link.log")

	if err := os.WriteFile(target, bytes.Repeat([]byte("x"), 1024), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	truncateLogFile(link, 512)

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if len(data) != 1024 {
		t.Errorf("symlink target was truncated: size=%d, want 1024", len(data))
	}
}

func TestPrintImportStats(t *testing.T) {
	var buf bytes.Buffer
	printImportStats(&buf, ingestStats(2, 1, 5, 3))
	want := "Imported 2 file(s): 1 agents, 5 traces, 3 daily costs (0 skipped, 0 failed)\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}
