package index

import (
	"fmt"
	"os"
	"strconv"
)

const (
	BackendMemory = "memory"
	BackendNeo4j  = "neo4j"
)

// DefaultChunkOverlap applies when chunk_overlap is unset. An explicit 0
// disables overlap.
const DefaultChunkOverlap = 50

// Config selects and tunes the index backend.
type Config struct {
	Backend      string          `toml:"backend"`
	ChunkSize    int             `toml:"chunk_size"`
	ChunkOverlap *int            `toml:"chunk_overlap"`
	TopK         int             `toml:"top_k"`
	Neo4j        Neo4jConfig     `toml:"neo4j"`
	Embedding    EmbeddingConfig `toml:"embedding"`
}

type Neo4jConfig struct {
	URI        string `toml:"uri"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	Database   string `toml:"database"`
	IndexName  string `toml:"index_name"`
	Dimensions int    `toml:"dimensions"`
}

// EmbeddingConfig configures the OpenAI-compatible embedding endpoint.
type EmbeddingConfig struct {
	Model   string `toml:"model"`
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
}

// Env names the environment variables that override Config fields.
type Env struct {
	Backend          string
	ChunkSize        string
	ChunkOverlap     string
	TopK             string
	Neo4jURI         string
	Neo4jUsername    string
	Neo4jPassword    string
	Neo4jDatabase    string
	EmbeddingModel   string
	EmbeddingBaseURL string
	EmbeddingToken   string
}

// Finalize applies defaults, environment overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites fields set in overlay.
func (c *Config) Merge(overlay *Config) {
	set(&c.Backend, overlay.Backend)
	setInt(&c.ChunkSize, overlay.ChunkSize)
	if overlay.ChunkOverlap != nil {
		overlap := *overlay.ChunkOverlap
		c.ChunkOverlap = &overlap
	}
	setInt(&c.TopK, overlay.TopK)
	set(&c.Neo4j.URI, overlay.Neo4j.URI)
	set(&c.Neo4j.Username, overlay.Neo4j.Username)
	set(&c.Neo4j.Password, overlay.Neo4j.Password)
	set(&c.Neo4j.Database, overlay.Neo4j.Database)
	set(&c.Neo4j.IndexName, overlay.Neo4j.IndexName)
	setInt(&c.Neo4j.Dimensions, overlay.Neo4j.Dimensions)
	set(&c.Embedding.Model, overlay.Embedding.Model)
	set(&c.Embedding.BaseURL, overlay.Embedding.BaseURL)
	set(&c.Embedding.Token, overlay.Embedding.Token)
}

// Overlap returns the configured chunk overlap, or DefaultChunkOverlap
// when none is set.
func (c *Config) Overlap() int {
	if c.ChunkOverlap == nil {
		return DefaultChunkOverlap
	}
	return *c.ChunkOverlap
}

// Chunker returns the configured chunker.
func (c *Config) Chunker() (Chunker, error) {
	return NewChunker(c.ChunkSize, c.Overlap())
}

func (c *Config) loadDefaults() {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 500
	}
	if c.ChunkOverlap == nil {
		overlap := DefaultChunkOverlap
		c.ChunkOverlap = &overlap
	}
	if c.TopK == 0 {
		c.TopK = 4
	}
	if c.Neo4j.URI == "" {
		c.Neo4j.URI = "neo4j://localhost:7687"
	}
	if c.Neo4j.Username == "" {
		c.Neo4j.Username = "neo4j"
	}
	if c.Neo4j.Database == "" {
		c.Neo4j.Database = "neo4j"
	}
	if c.Neo4j.IndexName == "" {
		c.Neo4j.IndexName = "chunk_scope"
	}
	if c.Neo4j.Dimensions == 0 {
		c.Neo4j.Dimensions = 1536
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
}

func (c *Config) loadEnv(env *Env) {
	lookup(env.Backend, &c.Backend)
	lookupInt(env.ChunkSize, &c.ChunkSize)
	if overlap := c.Overlap(); lookupInt(env.ChunkOverlap, &overlap) {
		c.ChunkOverlap = &overlap
	}
	lookupInt(env.TopK, &c.TopK)
	lookup(env.Neo4jURI, &c.Neo4j.URI)
	lookup(env.Neo4jUsername, &c.Neo4j.Username)
	lookup(env.Neo4jPassword, &c.Neo4j.Password)
	lookup(env.Neo4jDatabase, &c.Neo4j.Database)
	lookup(env.EmbeddingModel, &c.Embedding.Model)
	lookup(env.EmbeddingBaseURL, &c.Embedding.BaseURL)
	lookup(env.EmbeddingToken, &c.Embedding.Token)
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendNeo4j:
		if c.Embedding.Token == "" {
			return fmt.Errorf("embedding token required for the neo4j backend")
		}
	default:
		return fmt.Errorf("unknown index backend %q", c.Backend)
	}
	if _, err := c.Chunker(); err != nil {
		return err
	}
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be positive: %d", c.TopK)
	}
	return nil
}

func set(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func lookup(name string, dst *string) {
	if name == "" {
		return
	}
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

// lookupInt reports whether dst was set from the environment.
func lookupInt(name string, dst *int) bool {
	if name == "" {
		return false
	}
	n, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return false
	}
	*dst = n
	return true
}
