// Package config loads the service configuration: a base config.toml, an
// optional config.{env}.toml overlay, then MEDITRUST_* environment variables.
package config

import (
	"fmt"
	"maps"
	"os"
	"time"

	gaconfig "github.com/JaimeStill/go-agents/pkg/config"
	"github.com/pelletier/go-toml/v2"

	"github.com/kavlartius217/meditrust/internal/conversation"
	"github.com/kavlartius217/meditrust/internal/index"
	"github.com/kavlartius217/meditrust/pkg/database"
	"github.com/kavlartius217/meditrust/pkg/events"
	"github.com/kavlartius217/meditrust/pkg/middleware"
	"github.com/kavlartius217/meditrust/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvMeditrustEnv             = "MEDITRUST_ENV"
	EnvMeditrustShutdownTimeout = "MEDITRUST_SHUTDOWN_TIMEOUT"
	EnvMeditrustVersion         = "MEDITRUST_VERSION"
	EnvMeditrustPersistence     = "MEDITRUST_PERSISTENCE"
)

// Persistence backends.
const (
	PersistencePostgres = "postgres"
	PersistenceMemory   = "memory"
)

var databaseEnv = &database.Env{
	Host:            "MEDITRUST_DB_HOST",
	Port:            "MEDITRUST_DB_PORT",
	Name:            "MEDITRUST_DB_NAME",
	User:            "MEDITRUST_DB_USER",
	Password:        "MEDITRUST_DB_PASSWORD",
	SSLMode:         "MEDITRUST_DB_SSL_MODE",
	MaxOpenConns:    "MEDITRUST_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "MEDITRUST_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "MEDITRUST_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "MEDITRUST_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	ContainerName:    "MEDITRUST_STORAGE_CONTAINER_NAME",
	ConnectionString: "MEDITRUST_STORAGE_CONNECTION_STRING",
	AccountURL:       "MEDITRUST_STORAGE_ACCOUNT_URL",
}

var indexEnv = &index.Env{
	Backend:          "MEDITRUST_INDEX_BACKEND",
	ChunkSize:        "MEDITRUST_INDEX_CHUNK_SIZE",
	ChunkOverlap:     "MEDITRUST_INDEX_CHUNK_OVERLAP",
	TopK:             "MEDITRUST_INDEX_TOP_K",
	Neo4jURI:         "MEDITRUST_NEO4J_URI",
	Neo4jUsername:    "MEDITRUST_NEO4J_USERNAME",
	Neo4jPassword:    "MEDITRUST_NEO4J_PASSWORD",
	Neo4jDatabase:    "MEDITRUST_NEO4J_DATABASE",
	EmbeddingModel:   "MEDITRUST_EMBEDDING_MODEL",
	EmbeddingBaseURL: "MEDITRUST_EMBEDDING_BASE_URL",
	EmbeddingToken:   "MEDITRUST_EMBEDDING_TOKEN",
}

var conversationEnv = &conversation.Env{
	TopK:   "MEDITRUST_CONVERSATION_TOP_K",
	Window: "MEDITRUST_CONVERSATION_HISTORY_WINDOW",
}

var eventsEnv = &events.Env{
	Enabled: "MEDITRUST_EVENTS_ENABLED",
	URL:     "MEDITRUST_EVENTS_URL",
	Prefix:  "MEDITRUST_EVENTS_PREFIX",
}

var authEnv = &middleware.AuthEnv{
	Enabled:   "MEDITRUST_AUTH_ENABLED",
	IssuerURL: "MEDITRUST_AUTH_ISSUER_URL",
	ClientID:  "MEDITRUST_AUTH_CLIENT_ID",
}

// Config is the root configuration for the MediTrust service.
type Config struct {
	Server          ServerConfig          `toml:"server"`
	Database        database.Config       `toml:"database"`
	Storage         storage.Config        `toml:"storage"`
	API             APIConfig             `toml:"api"`
	AgentTable      map[string]any        `toml:"agent"`
	Index           index.Config          `toml:"index"`
	Conversation    conversation.Config   `toml:"conversation"`
	Workflow        WorkflowConfig        `toml:"workflow"`
	Events          events.Config         `toml:"events"`
	Auth            middleware.AuthConfig `toml:"auth"`
	Persistence     string                `toml:"persistence"`
	ShutdownTimeout string                `toml:"shutdown_timeout"`
	Version         string                `toml:"version"`

	// Agent is decoded from AgentTable during finalize.
	Agent gaconfig.AgentConfig `toml:"-"`
}

// Env returns the MEDITRUST_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvMeditrustEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// InMemory reports whether every store runs in process.
func (c *Config) InMemory() bool {
	return c.Persistence == PersistenceMemory
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
// Top-level keys of the [agent] table replace the base table's keys.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	if overlay.Persistence != "" {
		c.Persistence = overlay.Persistence
	}
	if len(overlay.AgentTable) > 0 {
		if c.AgentTable == nil {
			c.AgentTable = make(map[string]any)
		}
		maps.Copy(c.AgentTable, overlay.AgentTable)
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.API.Merge(&overlay.API)
	c.Index.Merge(&overlay.Index)
	c.Conversation.Merge(&overlay.Conversation)
	c.Workflow.Merge(&overlay.Workflow)
	c.Events.Merge(&overlay.Events)
	c.Auth.Merge(&overlay.Auth)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if !c.InMemory() {
		if err := c.Database.Finalize(databaseEnv); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if err := c.Storage.Finalize(storageEnv); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	agent, err := decodeAgent(c.AgentTable)
	if err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	c.Agent = agent
	if err := FinalizeAgent(&c.Agent); err != nil {
		return fmt.Errorf("agent: %w", err)
	}

	if err := c.Index.Finalize(indexEnv); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if err := c.Conversation.Finalize(conversationEnv); err != nil {
		return fmt.Errorf("conversation: %w", err)
	}
	if err := c.Workflow.Finalize(); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}
	if err := c.Events.Finalize(eventsEnv); err != nil {
		return fmt.Errorf("events: %w", err)
	}
	if err := c.Auth.Finalize(authEnv); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
	if c.Persistence == "" {
		c.Persistence = PersistencePostgres
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvMeditrustShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvMeditrustVersion); v != "" {
		c.Version = v
	}
	if v := os.Getenv(EnvMeditrustPersistence); v != "" {
		c.Persistence = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	switch c.Persistence {
	case PersistencePostgres, PersistenceMemory:
	default:
		return fmt.Errorf("invalid persistence %q: want %s or %s", c.Persistence, PersistencePostgres, PersistenceMemory)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvMeditrustEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
