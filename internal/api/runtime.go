package api

import (
	gaconfig "github.com/JaimeStill/go-agents/pkg/config"

	"github.com/kavlartius217/meditrust/internal/config"
	"github.com/kavlartius217/meditrust/internal/conversation"
	"github.com/kavlartius217/meditrust/internal/infrastructure"
	"github.com/kavlartius217/meditrust/pkg/pagination"
)

// Runtime extends Infrastructure with API-specific configuration.
type Runtime struct {
	*infrastructure.Infrastructure
	Agent        gaconfig.AgentConfig
	Pagination   pagination.Config
	Conversation conversation.Config
	Workflow     config.WorkflowConfig
}

// NewRuntime creates an API runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	scoped := *infra
	scoped.Logger = infra.Logger.With("module", "api")

	return &Runtime{
		Infrastructure: &scoped,
		Agent:          cfg.Agent,
		Pagination:     cfg.API.Pagination,
		Conversation:   cfg.Conversation,
		Workflow:       cfg.Workflow,
	}
}

// persistent reports whether domain systems should use PostgreSQL.
func (r *Runtime) persistent() bool {
	return r.Database != nil
}
