package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// configFile is the optional YAML file holding non-secret repository
// settings. Environment variables always take precedence over it.
const configFile = "folio.yaml"

// Config holds all configuration for folio-admin. It is constructed once
// at startup and passed by reference into the components that need it —
// nothing reads ambient globals after Load returns.
type Config struct {
	// GitHub repository holding the published site. The token needs
	// contents read+write on this single repository and nothing else.
	Token  string `env:"FOLIO_GITHUB_TOKEN"`
	Owner  string `env:"FOLIO_REPO_OWNER"`
	Repo   string `env:"FOLIO_REPO_NAME"`
	Branch string `env:"FOLIO_REPO_BRANCH" envDefault:"main"`

	// Paths inside the repository.
	DocumentPath string `env:"FOLIO_DOCUMENT_PATH" envDefault:"public/config.json"`
	PhotosDir    string `env:"FOLIO_PHOTOS_DIR" envDefault:"public/photos"`
	SvgsDir      string `env:"FOLIO_SVGS_DIR" envDefault:"public/svgs"`
	CVDir        string `env:"FOLIO_CV_DIR" envDefault:"public/cv"`

	// bcrypt hash of the admin password, produced by the hash-password
	// subcommand. Required.
	AdminPasswordHash string `env:"FOLIO_ADMIN_PASSWORD_HASH"`

	// HTTP listen address for the admin API.
	ListenAddr string `env:"FOLIO_LISTEN_ADDR" envDefault:":8787"`

	// Directory for local state (preview cache database). Defaults to
	// ~/.folio-admin when empty.
	StateDir string `env:"FOLIO_STATE_DIR"`

	// Local directory watched for new files to queue as uploads.
	// Disabled when empty. Files are only queued; uploading still
	// requires an explicit trigger.
	InboxDir    string `env:"FOLIO_INBOX_DIR"`
	InboxFolder string `env:"FOLIO_INBOX_FOLDER" envDefault:"photos"`

	// Expose the MCP tool surface at /mcp.
	EnableMCP bool `env:"FOLIO_ENABLE_MCP" envDefault:"false"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// fileConfig mirrors the non-secret subset of Config stored in folio.yaml.
// Secrets (token, password hash) are environment-only so the file can be
// committed alongside the site.
type fileConfig struct {
	Owner    string `yaml:"owner"`
	Repo     string `yaml:"repo"`
	Branch   string `yaml:"branch"`
	Document string `yaml:"document"`
	Folders  struct {
		Photos string `yaml:"photos"`
		Svgs   string `yaml:"svgs"`
		CV     string `yaml:"cv"`
	} `yaml:"folders"`
	Inbox struct {
		Dir    string `yaml:"dir"`
		Folder string `yaml:"folder"`
	} `yaml:"inbox"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing the GitHub token to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from the optional folio.yaml file and the
// environment. A .env file is loaded first if present; environment
// variables override folio.yaml values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.applyFile(configFile); err != nil {
		return nil, err
	}

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, err
		}

		cfg.StateDir = dir
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// applyFile merges folio.yaml into cfg for fields the environment did
// not set. Env parsing already ran, so only empty or env-defaulted repo
// fields are filled from the file.
func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("reading %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	fill := func(dst *string, envKey, val string) {
		if val == "" {
			return
		}

		if _, set := os.LookupEnv(envKey); set {
			return
		}

		*dst = val
	}

	fill(&c.Owner, "FOLIO_REPO_OWNER", fc.Owner)
	fill(&c.Repo, "FOLIO_REPO_NAME", fc.Repo)
	fill(&c.Branch, "FOLIO_REPO_BRANCH", fc.Branch)
	fill(&c.DocumentPath, "FOLIO_DOCUMENT_PATH", fc.Document)
	fill(&c.PhotosDir, "FOLIO_PHOTOS_DIR", fc.Folders.Photos)
	fill(&c.SvgsDir, "FOLIO_SVGS_DIR", fc.Folders.Svgs)
	fill(&c.CVDir, "FOLIO_CV_DIR", fc.Folders.CV)
	fill(&c.InboxDir, "FOLIO_INBOX_DIR", fc.Inbox.Dir)
	fill(&c.InboxFolder, "FOLIO_INBOX_FOLDER", fc.Inbox.Folder)

	return nil
}

func (c *Config) validate() error {
	if c.Token == "" {
		return fmt.Errorf("FOLIO_GITHUB_TOKEN is required")
	}

	if c.Owner == "" || c.Repo == "" {
		return fmt.Errorf("repository owner and name are required (FOLIO_REPO_OWNER / FOLIO_REPO_NAME or folio.yaml)")
	}

	if c.AdminPasswordHash == "" {
		return fmt.Errorf("FOLIO_ADMIN_PASSWORD_HASH is required (generate one with `folio-admin hash-password`)")
	}

	if c.InboxFolder != "" {
		switch c.InboxFolder {
		case "photos", "svgs", "cv":
		default:
			return fmt.Errorf("FOLIO_INBOX_FOLDER must be one of photos, svgs, cv")
		}
	}

	return nil
}

// Folder maps a logical folder key (photos, svgs, cv) to its repository
// path, or "" when the key is unknown.
func (c *Config) Folder(key string) string {
	switch key {
	case "photos":
		return c.PhotosDir
	case "svgs":
		return c.SvgsDir
	case "cv":
		return c.CVDir
	}

	return ""
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func defaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".folio-admin"), nil
}
