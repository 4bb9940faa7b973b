package config

import (
	"encoding/json"
	"fmt"
	"os"

	gaconfig "github.com/JaimeStill/go-agents/pkg/config"
)

const (
	EnvAgentProviderName = "MEDITRUST_AGENT_PROVIDER_NAME"
	EnvAgentBaseURL      = "MEDITRUST_AGENT_BASE_URL"
	EnvAgentToken        = "MEDITRUST_AGENT_TOKEN"
	EnvAgentDeployment   = "MEDITRUST_AGENT_DEPLOYMENT"
	EnvAgentAPIVersion   = "MEDITRUST_AGENT_API_VERSION"
	EnvAgentAuthType     = "MEDITRUST_AGENT_AUTH_TYPE"
	EnvAgentModelName    = "MEDITRUST_AGENT_MODEL_NAME"
)

// FinalizeAgent applies the three-phase finalize pattern to a go-agents AgentConfig:
// defaults from go-agents DefaultAgentConfig, environment variable overrides, and validation.
func FinalizeAgent(c *gaconfig.AgentConfig) error {
	loadAgentDefaults(c)
	loadAgentEnv(c)
	return validateAgent(c)
}

func loadAgentDefaults(c *gaconfig.AgentConfig) {
	defaults := gaconfig.DefaultAgentConfig()
	defaults.Merge(c)
	*c = defaults
}

func loadAgentEnv(c *gaconfig.AgentConfig) {
	if c.Provider == nil {
		c.Provider = &gaconfig.ProviderConfig{}
	}
	if c.Provider.Options == nil {
		c.Provider.Options = make(map[string]any)
	}
	if c.Model == nil {
		c.Model = &gaconfig.ModelConfig{}
	}
	if v := os.Getenv(EnvAgentProviderName); v != "" {
		c.Provider.Name = v
	}
	if v := os.Getenv(EnvAgentBaseURL); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv(EnvAgentModelName); v != "" {
		c.Model.Name = v
	}

	setOption := func(envVar, key string) {
		if v := os.Getenv(envVar); v != "" {
			c.Provider.Options[key] = v
		}
	}

	setOption(EnvAgentToken, "token")
	setOption(EnvAgentDeployment, "deployment")
	setOption(EnvAgentAPIVersion, "api_version")
	setOption(EnvAgentAuthType, "auth_type")
}

func validateAgent(c *gaconfig.AgentConfig) error {
	if c.Name == "" {
		return fmt.Errorf("name required")
	}
	if c.Provider == nil {
		return fmt.Errorf("provider required")
	}
	if c.Provider.Name == "" {
		return fmt.Errorf("provider name required")
	}
	if c.Model == nil {
		return fmt.Errorf("model required")
	}
	return nil
}

// decodeAgent converts the [agent] table into a go-agents AgentConfig.
// go-agents declares only json tags, so the table round-trips through JSON.
func decodeAgent(table map[string]any) (gaconfig.AgentConfig, error) {
	var c gaconfig.AgentConfig
	if len(table) == 0 {
		return c, nil
	}

	data, err := json.Marshal(table)
	if err != nil {
		return c, fmt.Errorf("encode agent table: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("decode agent table: %w", err)
	}
	return c, nil
}
