// Package config loads an immutable Config value threaded through every
// constructor in this repo. Layering follows the teacher's own
// defaults < TOML file < env vars idiom (internal/config/config.go in the
// teacher), but drops the teacher's package-level mutable accessors
// (config.VaultPath(), config.EmbeddingDim(), ...) per spec §9's
// "Process-wide config caching" re-architecture note: a multi-tenant
// server cannot have a single process-wide secret that reload hooks can
// mutate out from under in-flight requests.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the immutable, fully-resolved configuration for one server
// process. Build it once via Load and pass it to every constructor.
type Config struct {
	// Production gates dev/demo static-token acceptance (spec §4.7).
	Production bool

	// VaultBaseDir is the root under which every tenant gets <base>/<tenant>/.
	VaultBaseDir string

	// IndexDBPath is the single embedded SQL+FTS database file (spec §4.3).
	IndexDBPath string

	HTTPAddr string

	Auth     AuthConfig
	Oracle   OracleConfig
	Tools    ToolsConfig
	Librarian LibrarianConfig
}

type AuthConfig struct {
	// Secret signs issued bearer tokens. Must be set (non-default) in
	// production; the hard-coded development secret must never validate
	// once Production is true (spec §4.7).
	Secret       string
	DevSecret    bool // true iff Secret == the built-in development value
	TokenTTL     time.Duration
	DemoTenant   string
	DevTenant    string
}

type OracleConfig struct {
	Provider      string // "anthropic" | "ollama"
	Model         string
	AnthropicKey  string
	OllamaURL     string
	MaxTurns      int
	DefaultMaxTokens int
}

type ToolsConfig struct {
	DefaultTimeout   time.Duration
	VaultIOTimeout   time.Duration
	CodeSearchTimeout time.Duration
	WebFetchTimeout  time.Duration
	LibrarianTimeout time.Duration
	CodeSearchBaseURL string
	WebFetchBaseURL   string
}

type LibrarianConfig struct {
	DefaultMaxTokens int
	Temperature      float64
}

const devSecret = "same-dev-insecure-secret-do-not-use-in-production"

// Defaults returns the built-in baseline before any TOML/env overrides.
func Defaults() Config {
	return Config{
		Production:   false,
		VaultBaseDir: "./data/vaults",
		IndexDBPath:  "./data/index.db",
		HTTPAddr:     ":8085",
		Auth: AuthConfig{
			Secret:     devSecret,
			DevSecret:  true,
			TokenTTL:   24 * time.Hour,
			DemoTenant: "demo",
			DevTenant:  "local-dev",
		},
		Oracle: OracleConfig{
			Provider:         "anthropic",
			Model:            "claude-sonnet-4-5",
			MaxTurns:         15,
			DefaultMaxTokens: 4000,
		},
		Tools: ToolsConfig{
			DefaultTimeout:    30 * time.Second,
			VaultIOTimeout:    10 * time.Second,
			CodeSearchTimeout: 30 * time.Second,
			WebFetchTimeout:   60 * time.Second,
			LibrarianTimeout:  1200 * time.Second,
		},
		Librarian: LibrarianConfig{
			DefaultMaxTokens: 1000,
			Temperature:      0.3,
		},
	}
}

// fileShape mirrors Config but with TOML tags; only fields present in the
// file override Defaults().
type fileShape struct {
	Production   *bool   `toml:"production"`
	VaultBaseDir *string `toml:"vault_base_dir"`
	IndexDBPath  *string `toml:"index_db_path"`
	HTTPAddr     *string `toml:"http_addr"`
	Auth         struct {
		Secret     *string `toml:"secret"`
		TokenTTLSeconds *int64 `toml:"token_ttl_seconds"`
		DemoTenant *string `toml:"demo_tenant"`
		DevTenant  *string `toml:"dev_tenant"`
	} `toml:"auth"`
	Oracle struct {
		Provider         *string `toml:"provider"`
		Model            *string `toml:"model"`
		MaxTurns         *int    `toml:"max_turns"`
		DefaultMaxTokens *int    `toml:"default_max_tokens"`
	} `toml:"oracle"`
	Tools struct {
		DefaultTimeoutSeconds    *int64  `toml:"default_timeout_seconds"`
		VaultIOTimeoutSeconds    *int64  `toml:"vault_io_timeout_seconds"`
		CodeSearchTimeoutSeconds *int64  `toml:"code_search_timeout_seconds"`
		WebFetchTimeoutSeconds   *int64  `toml:"web_fetch_timeout_seconds"`
		LibrarianTimeoutSeconds  *int64  `toml:"librarian_timeout_seconds"`
		CodeSearchBaseURL        *string `toml:"code_search_base_url"`
		WebFetchBaseURL          *string `toml:"web_fetch_base_url"`
	} `toml:"tools"`
}

// Load resolves Config from defaults, an optional TOML file, then env
// vars, matching the teacher's layering order. The only CLI input is the
// TOML file path itself (cmd/vaultd's --config flag); there is no
// separate flag-override layer.
func Load(configPath string) (Config, error) {
	cfg := Defaults()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			var fs fileShape
			if _, err := toml.DecodeFile(configPath, &fs); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", configPath, err)
			}
			applyFile(&cfg, fs)
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: stat %s: %w", configPath, err)
		}
	}

	applyEnv(&cfg)

	cfg.VaultBaseDir = filepath.Clean(cfg.VaultBaseDir)
	cfg.Auth.DevSecret = cfg.Auth.Secret == devSecret

	if cfg.Production && cfg.Auth.DevSecret {
		return Config{}, fmt.Errorf("config: production=true requires VAULT_AUTH_SECRET to be set to a non-default value")
	}

	return cfg, nil
}

func applyFile(cfg *Config, fs fileShape) {
	if fs.Production != nil {
		cfg.Production = *fs.Production
	}
	if fs.VaultBaseDir != nil {
		cfg.VaultBaseDir = *fs.VaultBaseDir
	}
	if fs.IndexDBPath != nil {
		cfg.IndexDBPath = *fs.IndexDBPath
	}
	if fs.HTTPAddr != nil {
		cfg.HTTPAddr = *fs.HTTPAddr
	}
	if fs.Auth.Secret != nil {
		cfg.Auth.Secret = *fs.Auth.Secret
	}
	if fs.Auth.TokenTTLSeconds != nil {
		cfg.Auth.TokenTTL = time.Duration(*fs.Auth.TokenTTLSeconds) * time.Second
	}
	if fs.Auth.DemoTenant != nil {
		cfg.Auth.DemoTenant = *fs.Auth.DemoTenant
	}
	if fs.Auth.DevTenant != nil {
		cfg.Auth.DevTenant = *fs.Auth.DevTenant
	}
	if fs.Oracle.Provider != nil {
		cfg.Oracle.Provider = *fs.Oracle.Provider
	}
	if fs.Oracle.Model != nil {
		cfg.Oracle.Model = *fs.Oracle.Model
	}
	if fs.Oracle.MaxTurns != nil {
		cfg.Oracle.MaxTurns = *fs.Oracle.MaxTurns
	}
	if fs.Oracle.DefaultMaxTokens != nil {
		cfg.Oracle.DefaultMaxTokens = *fs.Oracle.DefaultMaxTokens
	}
	if fs.Tools.DefaultTimeoutSeconds != nil {
		cfg.Tools.DefaultTimeout = time.Duration(*fs.Tools.DefaultTimeoutSeconds) * time.Second
	}
	if fs.Tools.VaultIOTimeoutSeconds != nil {
		cfg.Tools.VaultIOTimeout = time.Duration(*fs.Tools.VaultIOTimeoutSeconds) * time.Second
	}
	if fs.Tools.CodeSearchTimeoutSeconds != nil {
		cfg.Tools.CodeSearchTimeout = time.Duration(*fs.Tools.CodeSearchTimeoutSeconds) * time.Second
	}
	if fs.Tools.WebFetchTimeoutSeconds != nil {
		cfg.Tools.WebFetchTimeout = time.Duration(*fs.Tools.WebFetchTimeoutSeconds) * time.Second
	}
	if fs.Tools.LibrarianTimeoutSeconds != nil {
		cfg.Tools.LibrarianTimeout = time.Duration(*fs.Tools.LibrarianTimeoutSeconds) * time.Second
	}
	if fs.Tools.CodeSearchBaseURL != nil {
		cfg.Tools.CodeSearchBaseURL = *fs.Tools.CodeSearchBaseURL
	}
	if fs.Tools.WebFetchBaseURL != nil {
		cfg.Tools.WebFetchBaseURL = *fs.Tools.WebFetchBaseURL
	}
}

func applyEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	seconds := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = time.Duration(n) * time.Second
			}
		}
	}

	boolean("VAULT_PRODUCTION", &cfg.Production)
	str("VAULT_BASE_DIR", &cfg.VaultBaseDir)
	str("VAULT_INDEX_DB_PATH", &cfg.IndexDBPath)
	str("VAULT_HTTP_ADDR", &cfg.HTTPAddr)

	str("VAULT_AUTH_SECRET", &cfg.Auth.Secret)
	seconds("VAULT_AUTH_TOKEN_TTL_SECONDS", &cfg.Auth.TokenTTL)
	str("VAULT_AUTH_DEMO_TENANT", &cfg.Auth.DemoTenant)
	str("VAULT_AUTH_DEV_TENANT", &cfg.Auth.DevTenant)

	str("VAULT_ORACLE_PROVIDER", &cfg.Oracle.Provider)
	str("VAULT_ORACLE_MODEL", &cfg.Oracle.Model)
	str("ANTHROPIC_API_KEY", &cfg.Oracle.AnthropicKey)
	str("VAULT_OLLAMA_URL", &cfg.Oracle.OllamaURL)
	integer("VAULT_ORACLE_MAX_TURNS", &cfg.Oracle.MaxTurns)
	integer("VAULT_ORACLE_MAX_TOKENS", &cfg.Oracle.DefaultMaxTokens)

	seconds("VAULT_TOOLS_DEFAULT_TIMEOUT_SECONDS", &cfg.Tools.DefaultTimeout)
	seconds("VAULT_TOOLS_VAULT_IO_TIMEOUT_SECONDS", &cfg.Tools.VaultIOTimeout)
	seconds("VAULT_TOOLS_CODE_SEARCH_TIMEOUT_SECONDS", &cfg.Tools.CodeSearchTimeout)
	seconds("VAULT_TOOLS_WEB_FETCH_TIMEOUT_SECONDS", &cfg.Tools.WebFetchTimeout)
	seconds("VAULT_TOOLS_LIBRARIAN_TIMEOUT_SECONDS", &cfg.Tools.LibrarianTimeout)
	str("VAULT_TOOLS_CODE_SEARCH_BASE_URL", &cfg.Tools.CodeSearchBaseURL)
	str("VAULT_TOOLS_WEB_FETCH_BASE_URL", &cfg.Tools.WebFetchBaseURL)
}
