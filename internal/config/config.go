package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/wesm/revenueos/internal/roi"
)

const (
	configFileName = "config.json"
	dbFileName     = "revenueos.db"

	envDataDir         = "REVENUEOS_DATA_DIR"
	envImportDir       = "REVENUEOS_IMPORT_DIR"
	envMeteredProvider = "REVENUEOS_METERED_PROVIDER"

	// DefaultMeteredProvider is the only provider billed per call;
	// the rest are flat subscriptions.
	DefaultMeteredProvider = "google"
)

// Config holds all application configuration.
type Config struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	DataDir         string        `json:"data_dir"`
	DBPath          string        `json:"-"`
	ImportDir       string        `json:"import_dir"`
	NoWatch         bool          `json:"no_watch"`
	MeteredProvider string        `json:"metered_provider"`
	WriteTimeout    time.Duration `json:"-"`
	WatchDebounce   time.Duration `json:"-"`
	ROI             roi.Params    `json:"roi"`
}

// Default returns a Config with default values.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf(
			"determining home directory: %w", err,
		)
	}
	dataDir := filepath.Join(home, ".revenueos")
	return Config{
		Host:            "127.0.0.1",
		Port:            8080,
		DataDir:         dataDir,
		DBPath:          filepath.Join(dataDir, dbFileName),
		ImportDir:       filepath.Join(dataDir, "import"),
		MeteredProvider: DefaultMeteredProvider,
		WriteTimeout:    30 * time.Second,
		WatchDebounce:   500 * time.Millisecond,
		ROI:             roi.DefaultParams(),
	}, nil
}

// Load builds a Config by layering: defaults < config file < env < flags.
// The provided FlagSet must already be parsed by the caller.
// Only flags that were explicitly set override the lower layers.
func Load(fs *flag.FlagSet) (Config, error) {
	cfg, err := LoadMinimal()
	if err != nil {
		return cfg, err
	}
	applyFlags(&cfg, fs)
	return cfg, nil
}

// LoadMinimal builds a Config from defaults, config file, and env,
// without parsing CLI flags. Use this for subcommands that manage
// their own flag sets.
func LoadMinimal() (Config, error) {
	cfg, err := Default()
	if err != nil {
		return cfg, err
	}
	// The data dir locates the config file, so its env override
	// applies first.
	if v := os.Getenv(envDataDir); v != "" {
		cfg.DataDir = v
		cfg.ImportDir = filepath.Join(v, "import")
	}
	if err := cfg.loadFile(); err != nil {
		return cfg, fmt.Errorf("loading config file: %w", err)
	}
	cfg.loadEnv()
	cfg.DBPath = filepath.Join(cfg.DataDir, dbFileName)
	return cfg, nil
}

func (c *Config) configPath() string {
	return filepath.Join(c.DataDir, configFileName)
}

func (c *Config) loadFile() error {
	data, err := os.ReadFile(c.configPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var file struct {
		Host            string      `json:"host"`
		Port            int         `json:"port"`
		ImportDir       string      `json:"import_dir"`
		NoWatch         bool        `json:"no_watch"`
		MeteredProvider string      `json:"metered_provider"`
		ROI             *roi.Params `json:"roi"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if file.Host != "" {
		c.Host = file.Host
	}
	if file.Port > 0 {
		c.Port = file.Port
	}
	if file.ImportDir != "" {
		c.ImportDir = file.ImportDir
	}
	if file.NoWatch {
		c.NoWatch = true
	}
	if file.MeteredProvider != "" {
		c.MeteredProvider = file.MeteredProvider
	}
	if file.ROI != nil {
		c.ROI = *file.ROI
	}
	return nil
}

func (c *Config) loadEnv() {
	if v := os.Getenv(envDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(envImportDir); v != "" {
		c.ImportDir = v
	}
	if v := os.Getenv(envMeteredProvider); v != "" {
		c.MeteredProvider = v
	}
}

// RegisterServeFlags registers serve-command flags on fs.
// The caller must call fs.Parse before passing fs to Load.
func RegisterServeFlags(fs *flag.FlagSet) {
	fs.String("host", "127.0.0.1", "Host to bind to")
	fs.Int("port", 8080, "Port to listen on")
	fs.String("import-dir", "", "Directory of JSONL files to import and watch")
	fs.Bool("no-watch", false, "Don't watch the import directory")
	fs.String(
		"metered-provider", DefaultMeteredProvider,
		"Provider whose daily spend counts as operational cost",
	)
}

// RegisterReportFlags registers report-command flags on fs.
func RegisterReportFlags(fs *flag.FlagSet) {
	fs.String(
		"metered-provider", DefaultMeteredProvider,
		"Provider whose daily spend counts as operational cost",
	)
}

// applyFlags copies explicitly-set flags from fs into cfg.
func applyFlags(cfg *Config, fs *flag.FlagSet) {
	if fs == nil {
		return
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = f.Value.String()
		case "port":
			// flag already validated the int; ignore parse error
			cfg.Port, _ = strconv.Atoi(f.Value.String())
		case "import-dir":
			cfg.ImportDir = f.Value.String()
		case "no-watch":
			cfg.NoWatch = f.Value.String() == "true"
		case "metered-provider":
			cfg.MeteredProvider = f.Value.String()
		}
	})
}

// ResolveDataDir returns the effective data directory by applying
// defaults and environment overrides, without reading any files.
func ResolveDataDir() (string, error) {
	cfg, err := Default()
	if err != nil {
		return "", err
	}
	if v := os.Getenv(envDataDir); v != "" {
		cfg.DataDir = v
	}
	return cfg.DataDir, nil
}

// SaveROIParams persists the ROI calibration to the config file,
// preserving any other keys already present.
func (c *Config) SaveROIParams(p roi.Params) error {
	if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	existing := make(map[string]any)
	data, err := os.ReadFile(c.configPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf(
				"existing config is invalid, cannot update: %w",
				err,
			)
		}
	}

	existing["roi"] = p
	out, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(c.configPath(), out, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	c.ROI = p
	return nil
}
