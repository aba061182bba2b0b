package config

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// FileName is the workspace configuration file looked up by Load.
const FileName = ".inverigator.yaml"

//go:embed config.schema.json
var schemaSource string

var schema = jsonschema.MustCompileString("inverigator.schema.json", schemaSource)

type Config struct {
	Root                   string              `yaml:"root" json:"root"`
	ConfigPaths            []string            `yaml:"config_paths" json:"config_paths"`
	MaxScanDepth           int                 `yaml:"max_scan_depth" json:"max_scan_depth"`
	AutoRescanOnSave       bool                `yaml:"auto_rescan_on_save" json:"auto_rescan_on_save"`
	MaxFilesToScan         int                 `yaml:"max_files_to_scan" json:"max_files_to_scan"`
	MaxContainerFiles      int                 `yaml:"max_container_files" json:"max_container_files"`
	ScanTimeout            Duration            `yaml:"scan_timeout" json:"scan_timeout"`
	BatchSize              int                 `yaml:"batch_size" json:"batch_size"`
	UseCache               bool                `yaml:"use_cache" json:"use_cache"`
	CacheMaxAge            Duration            `yaml:"cache_max_age" json:"cache_max_age"`
	CacheDir               string              `yaml:"cache_dir" json:"cache_dir"`
	IgnoreFile             string              `yaml:"ignore_file" json:"ignore_file"`
	IgnorePatterns         []string            `yaml:"ignore_patterns" json:"ignore_patterns"`
	Tsconfig               string              `yaml:"tsconfig" json:"tsconfig"`
	PathAliases            map[string][]string `yaml:"path_aliases" json:"path_aliases"`
	GlobalPropertyFallback bool                `yaml:"global_property_fallback" json:"global_property_fallback"`
	LogLevel               string              `yaml:"log_level" json:"log_level"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		MaxScanDepth:      3,
		AutoRescanOnSave:  true,
		MaxFilesToScan:    500,
		MaxContainerFiles: 100,
		ScanTimeout:       Duration{30 * time.Second},
		BatchSize:         16,
		UseCache:          true,
		CacheMaxAge:       Duration{24 * time.Hour},
		CacheDir:          ".inverigator",
		IgnoreFile:        ".inverigatorignore",
		Tsconfig:          "tsconfig.json",
		LogLevel:          "info",
	}
}

// Load reads <root>/.inverigator.yaml. See LoadFile.
func Load(root string) (*Config, error) {
	return LoadFile(filepath.Join(root, FileName))
}

// LoadFile builds the configuration from defaults, the YAML file at path
// (a missing file is fine), a .env file next to it and INVERIGATOR_*
// environment variables, in that order, then validates the result.
func LoadFile(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	// 2. Load YAML config over the defaults
	cfg := Default()
	file, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	// 3. Override with Environment Variables if present
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.Root == "" {
		cfg.Root = filepath.Dir(path)
	} else if !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(filepath.Dir(path), cfg.Root)
	}
	if abs, err := filepath.Abs(cfg.Root); err == nil {
		cfg.Root = abs
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("INVERIGATOR_MAX_FILES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("INVERIGATOR_MAX_FILES: %w", err)
		}
		c.MaxFilesToScan = n
	}
	if v := os.Getenv("INVERIGATOR_MAX_DEPTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("INVERIGATOR_MAX_DEPTH: %w", err)
		}
		c.MaxScanDepth = n
	}
	if v := os.Getenv("INVERIGATOR_USE_CACHE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("INVERIGATOR_USE_CACHE: %w", err)
		}
		c.UseCache = b
	}
	if v := os.Getenv("INVERIGATOR_LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	return nil
}

// Validate checks the configuration against the embedded JSON schema.
func (c *Config) Validate() error {
	var v any
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config for schema validation: %w", err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("failed to normalize config for schema validation: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("config schema validation failed: %w", err)
	}
	return nil
}

// Hash fingerprints every option that changes what a scan produces. A
// cached snapshot is only reused under the same hash.
func (c *Config) Hash() string {
	fingerprint := struct {
		Root              string              `json:"root"`
		ConfigPaths       []string            `json:"config_paths"`
		MaxScanDepth      int                 `json:"max_scan_depth"`
		MaxFilesToScan    int                 `json:"max_files_to_scan"`
		MaxContainerFiles int                 `json:"max_container_files"`
		ScanTimeout       string              `json:"scan_timeout"`
		IgnoreFile        string              `json:"ignore_file"`
		IgnorePatterns    []string            `json:"ignore_patterns"`
		Tsconfig          string              `json:"tsconfig"`
		PathAliases       map[string][]string `json:"path_aliases"`
	}{
		c.Root, c.ConfigPaths, c.MaxScanDepth, c.MaxFilesToScan, c.MaxContainerFiles,
		c.ScanTimeout.String(), c.IgnoreFile, c.IgnorePatterns, c.Tsconfig, c.PathAliases,
	}
	// encoding/json sorts map keys, so the encoding is stable
	raw, _ := json.Marshal(fingerprint)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// SlogLevel maps log_level to a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Path resolves a workspace-relative option value against Root.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// Duration is a time.Duration written as "30s" or "24h" in YAML and JSON.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}
