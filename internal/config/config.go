// Package config handles loading and validation of exptrack configuration.
// It loads from a .env file, environment variables, an optional exptrack.yaml
// in the application directory, and CLI flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ProjectFileName is the optional per-application settings file.
const ProjectFileName = "exptrack.yaml"

// Config holds all launcher configuration.
type Config struct {
	WorkDir      string   // --dir, default: current directory
	Python       string   // EXPTRACK_PYTHON
	EnvDir       string   // EXPTRACK_ENV_DIR
	Requirements string   // EXPTRACK_REQUIREMENTS
	App          string   // EXPTRACK_APP
	Port         int      // EXPTRACK_PORT
	Address      string   // EXPTRACK_ADDRESS
	AppArgs      []string // exptrack.yaml app_args
	SecretsPath  string   // EXPTRACK_SECRETS
	DBPath       string   // EXPTRACK_DB_PATH
	LogLevel     string   // EXPTRACK_LOG_LEVEL
	NoPause      bool     // EXPTRACK_NO_PAUSE or --no-pause
	OpenBrowser  bool     // --open
	DebugMode    bool     // --debug (log to stdout)
}

// Flags holds values bound to CLI flags. Zero values mean "not set".
type Flags struct {
	Dir          string
	Python       string
	EnvDir       string
	Requirements string
	App          string
	Port         int
	Address      string
	Secrets      string
	DB           string
	NoPause      bool
	Open         bool
	Debug        bool
}

// projectFile models exptrack.yaml.
type projectFile struct {
	Python       string   `yaml:"python"`
	EnvDir       string   `yaml:"env_dir"`
	Requirements string   `yaml:"requirements"`
	App          string   `yaml:"app"`
	Port         int      `yaml:"port"`
	Address      string   `yaml:"address"`
	AppArgs      []string `yaml:"app_args"`
	Secrets      string   `yaml:"secrets"`
	LogLevel     string   `yaml:"log_level"`
}

// Load builds the configuration. Flags take precedence over environment
// variables, which take precedence over exptrack.yaml.
func Load(flags *Flags) (*Config, error) {
	if flags == nil {
		flags = &Flags{}
	}

	workDir := flags.Dir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		workDir = wd
	}
	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("invalid directory %q: %w", flags.Dir, err)
	}

	// .env is optional; existing environment variables win over it.
	_ = godotenv.Load(filepath.Join(workDir, ".env"))

	proj, err := loadProjectFile(filepath.Join(workDir, ProjectFileName))
	if err != nil {
		return nil, err
	}

	cfg := &Config{WorkDir: workDir}
	cfg.Python = pick(flags.Python, os.Getenv("EXPTRACK_PYTHON"), proj.Python)
	cfg.EnvDir = pick(flags.EnvDir, os.Getenv("EXPTRACK_ENV_DIR"), proj.EnvDir)
	cfg.Requirements = pick(flags.Requirements, os.Getenv("EXPTRACK_REQUIREMENTS"), proj.Requirements)
	cfg.App = pick(flags.App, os.Getenv("EXPTRACK_APP"), proj.App)
	cfg.Address = pick(flags.Address, os.Getenv("EXPTRACK_ADDRESS"), proj.Address)
	cfg.SecretsPath = pick(flags.Secrets, os.Getenv("EXPTRACK_SECRETS"), proj.Secrets)
	cfg.DBPath = pick(flags.DB, os.Getenv("EXPTRACK_DB_PATH"), "")
	cfg.LogLevel = strings.ToLower(pick("", os.Getenv("EXPTRACK_LOG_LEVEL"), proj.LogLevel))
	cfg.AppArgs = proj.AppArgs

	// Port
	if flags.Port != 0 {
		cfg.Port = flags.Port
	} else if env := os.Getenv("EXPTRACK_PORT"); env != "" {
		v, err := strconv.Atoi(env)
		if err != nil {
			return nil, fmt.Errorf("EXPTRACK_PORT must be a number, got %q", env)
		}
		cfg.Port = v
	} else {
		cfg.Port = proj.Port
	}

	// Pause
	cfg.NoPause = flags.NoPause
	if env := os.Getenv("EXPTRACK_NO_PAUSE"); env != "" && !cfg.NoPause {
		v, err := strconv.ParseBool(env)
		if err != nil {
			return nil, fmt.Errorf("EXPTRACK_NO_PAUSE must be true or false, got %q", env)
		}
		cfg.NoPause = v
	}

	cfg.OpenBrowser = flags.Open
	cfg.DebugMode = flags.Debug

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadProjectFile(path string) (*projectFile, error) {
	proj := &projectFile{}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return proj, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, proj); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return proj, nil
}

// pick returns the first non-empty value.
func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// applyDefaults sets default values for empty config fields.
func (c *Config) applyDefaults() {
	if c.EnvDir == "" {
		c.EnvDir = ".venv"
	}
	if c.Requirements == "" {
		c.Requirements = "requirements.txt"
	}
	if c.App == "" {
		c.App = "app.py"
	}
	if c.Port == 0 {
		c.Port = 8501
	}
	if c.SecretsPath == "" {
		c.SecretsPath = filepath.Join(".streamlit", "secrets.toml")
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(".exptrack", "history.db")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}

	if strings.TrimSpace(c.EnvDir) == "" || strings.TrimSpace(c.App) == "" || strings.TrimSpace(c.Requirements) == "" {
		return fmt.Errorf("env dir, app and requirements paths must not be blank")
	}

	return nil
}

// Resolve returns p relative to the working directory unless it is absolute.
func (c *Config) Resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.WorkDir, p)
}

// String returns a readable representation of the config.
func (c *Config) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Config{\n")
	fmt.Fprintf(&sb, "  WorkDir: %s,\n", c.WorkDir)
	fmt.Fprintf(&sb, "  Python: %s,\n", displayOr(c.Python, "(auto)"))
	fmt.Fprintf(&sb, "  EnvDir: %s,\n", c.EnvDir)
	fmt.Fprintf(&sb, "  Requirements: %s,\n", c.Requirements)
	fmt.Fprintf(&sb, "  App: %s,\n", c.App)
	fmt.Fprintf(&sb, "  Port: %d,\n", c.Port)
	fmt.Fprintf(&sb, "  Address: %s,\n", displayOr(c.Address, "(default)"))
	fmt.Fprintf(&sb, "  AppArgs: %v,\n", c.AppArgs)
	fmt.Fprintf(&sb, "  SecretsPath: %s,\n", c.SecretsPath)
	fmt.Fprintf(&sb, "  DBPath: %s,\n", c.DBPath)
	fmt.Fprintf(&sb, "  LogLevel: %s,\n", c.LogLevel)
	fmt.Fprintf(&sb, "  NoPause: %v,\n", c.NoPause)
	fmt.Fprintf(&sb, "  OpenBrowser: %v,\n", c.OpenBrowser)
	fmt.Fprintf(&sb, "  DebugMode: %v,\n", c.DebugMode)
	fmt.Fprintf(&sb, "}")
	return sb.String()
}

func displayOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// LogWriter returns the appropriate log destination based on debug mode.
// In debug mode: returns os.Stdout
// Otherwise: returns a file handle to exptrack.log next to the history database
func (c *Config) LogWriter() (io.Writer, error) {
	if c.DebugMode {
		return os.Stdout, nil
	}

	dir := filepath.Dir(c.Resolve(c.DBPath))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Join(dir, "exptrack.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return file, nil
}
