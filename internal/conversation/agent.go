package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JaimeStill/go-agents/pkg/agent"
	gaconfig "github.com/JaimeStill/go-agents/pkg/config"

	"github.com/kavlartius217/meditrust/internal/prompts"
)

// AgentAnswerer answers questions with a go-agents chat call.
type AgentAnswerer struct {
	agent   gaconfig.AgentConfig
	prompts prompts.System
	logger  *slog.Logger
}

func NewAgentAnswerer(cfg gaconfig.AgentConfig, ps prompts.System, logger *slog.Logger) *AgentAnswerer {
	return &AgentAnswerer{
		agent:   cfg,
		prompts: ps,
		logger:  logger.With("system", "answerer"),
	}
}

func (a *AgentAnswerer) Answer(ctx context.Context, q Question) (string, error) {
	prompt, err := ComposePrompt(ctx, a.prompts, q)
	if err != nil {
		return "", err
	}

	ag, err := agent.New(&a.agent)
	if err != nil {
		return "", fmt.Errorf("create agent: %w", err)
	}

	resp, err := ag.Chat(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("chat call: %w", err)
	}
	return strings.TrimSpace(resp.Content()), nil
}

// ComposePrompt renders the chat instructions, the retrieved excerpts,
// the prior turns and the question.
func ComposePrompt(ctx context.Context, ps prompts.System, q Question) (string, error) {
	instructions, err := ps.Instructions(ctx, prompts.StageChat)
	if err != nil {
		return "", fmt.Errorf("load chat instructions: %w", err)
	}
	spec, err := ps.Spec(ctx, prompts.StageChat)
	if err != nil {
		return "", fmt.Errorf("load chat spec: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(instructions)
	sb.WriteString("\n\n")
	sb.WriteString(spec)

	sb.WriteString("\n\nReport excerpts:\n")
	if len(q.Context) == 0 {
		sb.WriteString("(none available)\n")
	}
	for _, e := range q.Context {
		fmt.Fprintf(&sb, "\n[%s v%d @%d]\n%s\n", e.Name, e.Version, e.Offset, e.Chunk)
	}

	if len(q.PriorTurns) > 0 {
		sb.WriteString("\nConversation so far:\n")
		for _, t := range q.PriorTurns {
			fmt.Fprintf(&sb, "User: %s\nAssistant: %s\n", t.UserText, t.BotText)
		}
	}

	sb.WriteString("\nQuestion: ")
	sb.WriteString(q.UserText)
	return sb.String(), nil
}
