// Package stages runs individual generation stages: it assembles a
// stage's inputs from workflow state, calls a Generator and stores the
// result as a new artifact version.
package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kavlartius217/meditrust/internal/artifacts"
	"github.com/kavlartius217/meditrust/internal/workflow"
)

const (
	// Delimiter separates documents within the DocumentsKey input.
	Delimiter = "\n\n---\n\n"
	// DocumentsKey holds every required text joined in Requires order.
	DocumentsKey = "documents"
)

// Generator produces a stage's text from its named inputs.
type Generator interface {
	Generate(ctx context.Context, stage workflow.Stage, inputs map[string]string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, stage workflow.Stage, inputs map[string]string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, stage workflow.Stage, inputs map[string]string) (string, error) {
	return f(ctx, stage, inputs)
}

// Runner implements workflow.Runner over a Generator and an artifact store.
type Runner struct {
	store     artifacts.System
	generator Generator
	logger    *slog.Logger
}

func NewRunner(store artifacts.System, generator Generator, logger *slog.Logger) *Runner {
	return &Runner{
		store:     store,
		generator: generator,
		logger:    logger.With("system", "stages"),
	}
}

// Run generates stage output and persists it. Every call appends a new
// version; nothing is overwritten.
func (r *Runner) Run(ctx context.Context, stage workflow.Stage, s workflow.State) (*artifacts.Artifact, error) {
	inputs, err := Inputs(stage, s)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("generating", "stage", stage.ID, "inputs", len(inputs))

	text, err := r.generator.Generate(ctx, stage, inputs)
	if err != nil {
		return nil, &GenerationFailure{Stage: string(stage.ID), Cause: err}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &GenerationFailure{Stage: string(stage.ID), Cause: ErrEmptyOutput}
	}

	a, err := r.store.Put(ctx, artifacts.PutCommand{
		Scope:   s.Scope,
		Name:    stage.Artifact,
		Stage:   string(stage.ID),
		Content: text,
	})
	if err != nil {
		return nil, fmt.Errorf("store %s output: %w", stage.ID, err)
	}
	return a, nil
}

// Inputs builds the generator inputs for stage. Each requirement is
// passed under its own name (the artifact name, or "report"), all of them
// joined under DocumentsKey in declared order, then each declared param.
func Inputs(stage workflow.Stage, s workflow.State) (map[string]string, error) {
	inputs := make(map[string]string, len(stage.Requires)+len(stage.Params)+1)
	docs := make([]string, 0, len(stage.Requires))

	for _, req := range stage.Requires {
		if req == workflow.ReportInput {
			if s.Report == "" {
				return nil, fmt.Errorf("%w: %s needs the report", ErrMissingInput, stage.ID)
			}
			inputs[string(workflow.ReportInput)] = s.Report
			docs = append(docs, s.Report)
			continue
		}

		a, ok := s.Artifact(req)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs %s", ErrMissingInput, stage.ID, req)
		}
		inputs[a.Name] = a.Content
		docs = append(docs, a.Content)
	}
	inputs[DocumentsKey] = strings.Join(docs, Delimiter)

	for _, p := range stage.Params {
		v := s.Params[p]
		if v == "" {
			return nil, fmt.Errorf("%w: %s needs param %s", ErrMissingInput, stage.ID, p)
		}
		inputs[p] = v
	}
	return inputs, nil
}
