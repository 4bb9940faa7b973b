package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavlartius217/meditrust/internal/config"
)

const baseConfig = `
shutdown_timeout = "30s"
version = "0.1.0"
persistence = "postgres"

[server]
host = "0.0.0.0"
port = 8080

[database]
host = "localhost"
port = 5432
name = "meditrust"
user = "meditrust"
password = "meditrust"
ssl_mode = "disable"

[storage]
container_name = "reports"
connection_string = "UseDevelopmentStorage=true"

[api]
base_path = "/api"
max_upload_size = "10MB"

[api.pagination]
default_page_size = 25
max_page_size = 50

[agent]
name = "meditrust-agent"

[agent.provider]
name = "ollama"
base_url = "http://localhost:11434"

[agent.model]
name = "llama3.1:8b"

[index]
chunk_size = 500
chunk_overlap = 50

[conversation]
top_k = 3
`

const overlayConfig = `
[server]
port = 9090

[database]
host = "prodhost"

[agent.model]
name = "gpt-4o"
`

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		for i := range len(kv) {
			if kv[i] == '=' {
				if name := kv[:i]; len(name) > 10 && name[:10] == "MEDITRUST_" {
					t.Setenv(name, "")
				}
				break
			}
		}
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	t.Chdir(dir)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "reports", cfg.Storage.ContainerName)
	assert.Equal(t, "/api", cfg.API.BasePath)
	assert.Equal(t, int64(10*1024*1024), cfg.API.MaxUploadSizeBytes())
	assert.Equal(t, 25, cfg.API.Pagination.DefaultPageSize)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeoutDuration())
	assert.False(t, cfg.InMemory())

	assert.Equal(t, "meditrust-agent", cfg.Agent.Name)
	require.NotNil(t, cfg.Agent.Provider)
	assert.Equal(t, "ollama", cfg.Agent.Provider.Name)
	require.NotNil(t, cfg.Agent.Model)
	assert.Equal(t, "llama3.1:8b", cfg.Agent.Model.Name)

	assert.Equal(t, 500, cfg.Index.ChunkSize)
	assert.Equal(t, 50, cfg.Index.Overlap())
	assert.Equal(t, 3, cfg.Conversation.TopK)
	assert.Equal(t, "meditrust", cfg.Events.Prefix)
}

func TestLoadWithOverlay(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	writeConfig(t, dir, "config.staging.toml", overlayConfig)
	t.Chdir(dir)
	t.Setenv(config.EnvMeditrustEnv, "staging")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "prodhost", cfg.Database.Host)
	assert.Equal(t, "meditrust", cfg.Database.Name, "base value survives overlay")
	assert.Equal(t, "gpt-4o", cfg.Agent.Model.Name)
	assert.Equal(t, "staging", cfg.Env())
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	t.Chdir(dir)

	t.Setenv(config.EnvMeditrustShutdownTimeout, "45s")
	t.Setenv(config.EnvMeditrustVersion, "2.0.0")
	t.Setenv("MEDITRUST_DB_HOST", "envhost")
	t.Setenv("MEDITRUST_API_MAX_UPLOAD_SIZE", "1MB")
	t.Setenv(config.EnvAgentModelName, "mistral")
	t.Setenv(config.EnvAgentToken, "secret")
	t.Setenv(config.EnvWorkflowMaxParallel, "2")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.ShutdownTimeoutDuration())
	assert.Equal(t, "2.0.0", cfg.Version)
	assert.Equal(t, "envhost", cfg.Database.Host)
	assert.Equal(t, int64(1024*1024), cfg.API.MaxUploadSizeBytes())
	assert.Equal(t, "mistral", cfg.Agent.Model.Name)
	assert.Equal(t, "secret", cfg.Agent.Provider.Options["token"])
	assert.Equal(t, 2, cfg.Workflow.MaxParallel)
}

func TestLoadMemoryPersistence(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv(config.EnvMeditrustPersistence, config.PersistenceMemory)

	cfg, err := config.Load()
	require.NoError(t, err, "memory persistence needs no database or storage settings")

	assert.True(t, cfg.InMemory())
	assert.Equal(t, "local", cfg.Env())
	assert.NotEmpty(t, cfg.Agent.Name, "agent defaults fill in")

	def, err := cfg.Workflow.Load()
	require.NoError(t, err)
	assert.NotEmpty(t, def.Stages())
}

func TestLoadExplicitZeros(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	writeConfig(t, dir, "config.nooverlap.toml", `
[index]
chunk_overlap = 0

[conversation]
history_window = 0
`)
	t.Chdir(dir)
	t.Setenv(config.EnvMeditrustEnv, "nooverlap")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Index.Overlap())
	assert.Equal(t, 0, cfg.Conversation.HistoryWindow())
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name   string
		config string
		env    map[string]string
	}{
		{
			name:   "invalid shutdown timeout",
			config: "persistence = \"memory\"\nshutdown_timeout = \"soon\"\n",
		},
		{
			name:   "unknown persistence",
			config: "persistence = \"sqlite\"\n",
		},
		{
			name:   "malformed toml",
			config: "[server\nport = 1\n",
		},
		{
			name:   "postgres without storage connection",
			config: "persistence = \"postgres\"\n",
		},
		{
			name:   "negative max parallel",
			config: "persistence = \"memory\"\n",
			env:    map[string]string{config.EnvWorkflowMaxParallel: "-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			writeConfig(t, dir, config.BaseConfigFile, tt.config)
			t.Chdir(dir)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestMergeAgentTable(t *testing.T) {
	base := &config.Config{
		AgentTable: map[string]any{"name": "base", "model": map[string]any{"name": "a"}},
	}
	base.Merge(&config.Config{
		AgentTable:  map[string]any{"model": map[string]any{"name": "b"}},
		Persistence: config.PersistenceMemory,
	})

	assert.Equal(t, "base", base.AgentTable["name"])
	assert.Equal(t, map[string]any{"name": "b"}, base.AgentTable["model"])
	assert.Equal(t, config.PersistenceMemory, base.Persistence)
}

func TestWorkflowLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing.yaml")

	cfg := config.WorkflowConfig{Definition: path}
	_, err := cfg.Load()
	assert.Error(t, err)
}
