package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JaimeStill/go-agents/pkg/agent"
	gaconfig "github.com/JaimeStill/go-agents/pkg/config"

	"github.com/kavlartius217/meditrust/internal/prompts"
	"github.com/kavlartius217/meditrust/internal/workflow"
)

// AgentGenerator generates stage output with a go-agents chat call.
type AgentGenerator struct {
	agent   gaconfig.AgentConfig
	prompts prompts.System
	logger  *slog.Logger
}

func NewAgentGenerator(cfg gaconfig.AgentConfig, ps prompts.System, logger *slog.Logger) *AgentGenerator {
	return &AgentGenerator{
		agent:   cfg,
		prompts: ps,
		logger:  logger.With("system", "generator"),
	}
}

func (g *AgentGenerator) Generate(ctx context.Context, stage workflow.Stage, inputs map[string]string) (string, error) {
	prompt, err := ComposePrompt(ctx, g.prompts, stage, inputs)
	if err != nil {
		return "", err
	}

	a, err := agent.New(&g.agent)
	if err != nil {
		return "", fmt.Errorf("create agent: %w", err)
	}

	resp, err := a.Chat(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("chat call: %w", err)
	}

	g.logger.Debug("stage generated", "stage", stage.ID, "prompt_bytes", len(prompt))
	return strings.TrimSpace(resp.Content()), nil
}

// ComposePrompt joins the stage instructions, its output spec, the
// declared params and the input documents. Instructions on the stage
// itself take precedence over the prompt system.
func ComposePrompt(ctx context.Context, ps prompts.System, stage workflow.Stage, inputs map[string]string) (string, error) {
	instructions := stage.Instructions
	var spec string

	if known, err := prompts.ParseStage(string(stage.ID)); err == nil && ps != nil {
		if instructions == "" {
			text, err := ps.Instructions(ctx, known)
			if err != nil {
				return "", fmt.Errorf("load instructions for %s: %w", stage.ID, err)
			}
			instructions = text
		}
		text, err := ps.Spec(ctx, known)
		if err != nil {
			return "", fmt.Errorf("load spec for %s: %w", stage.ID, err)
		}
		spec = text
	}
	if instructions == "" {
		return "", fmt.Errorf("no instructions for stage %s", stage.ID)
	}

	var sb strings.Builder
	sb.WriteString(instructions)
	if spec != "" {
		sb.WriteString("\n\n")
		sb.WriteString(spec)
	}

	if len(stage.Params) > 0 {
		sb.WriteString("\n\nParameters:\n")
		for _, p := range stage.Params {
			fmt.Fprintf(&sb, "- %s: %s\n", p, inputs[p])
		}
	}

	sb.WriteString("\n\nInput documents:\n\n")
	sb.WriteString(inputs[DocumentsKey])

	return sb.String(), nil
}
