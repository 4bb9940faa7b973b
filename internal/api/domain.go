package api

import (
	"fmt"

	"github.com/kavlartius217/meditrust/internal/artifacts"
	"github.com/kavlartius217/meditrust/internal/conversation"
	"github.com/kavlartius217/meditrust/internal/documents"
	"github.com/kavlartius217/meditrust/internal/prompts"
	"github.com/kavlartius217/meditrust/internal/sessions"
	"github.com/kavlartius217/meditrust/internal/stages"
	"github.com/kavlartius217/meditrust/internal/workflow"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Artifacts artifacts.System
	Documents documents.System
	Prompts   prompts.System
	Sessions  sessions.System
}

// NewDomain creates all domain systems from the API runtime. Each system
// is PostgreSQL-backed when a database is configured and in-memory otherwise.
func NewDomain(runtime *Runtime) (*Domain, error) {
	d := &Domain{}

	var (
		recorder conversation.Recorder
		store    sessions.Store
	)

	if runtime.persistent() {
		db := runtime.Database.Connection()
		d.Artifacts = artifacts.New(db, runtime.Storage, runtime.Logger, runtime.Pagination)
		d.Documents = documents.New(db, runtime.Storage, runtime.Logger, runtime.Pagination)
		d.Prompts = prompts.New(db, runtime.Logger, runtime.Pagination)
		recorder = conversation.NewRecorder(db, runtime.Logger)
		store = sessions.NewStore(db, runtime.Logger)
	} else {
		d.Artifacts = artifacts.NewMemory(runtime.Logger, runtime.Pagination)
		d.Documents = documents.NewMemory(runtime.Storage, runtime.Logger, runtime.Pagination)
		d.Prompts = prompts.NewMemory(runtime.Logger, runtime.Pagination)
		store = sessions.NewMemoryStore()
	}

	def, err := runtime.Workflow.Load()
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}

	engine, err := workflow.New(workflow.Runtime{
		Definition: def,
		Runner: stages.NewRunner(
			d.Artifacts,
			stages.NewAgentGenerator(runtime.Agent, d.Prompts, runtime.Logger),
			runtime.Logger,
		),
		Observer:    runtime.Metrics,
		Logger:      runtime.Logger,
		MaxParallel: runtime.Workflow.MaxParallel,
	})
	if err != nil {
		return nil, fmt.Errorf("build workflow engine: %w", err)
	}

	conv := conversation.New(conversation.Runtime{
		Index:    runtime.Index,
		Answerer: conversation.NewAgentAnswerer(runtime.Agent, d.Prompts, runtime.Logger),
		Recorder: recorder,
		Observer: runtime.Metrics,
		Logger:   runtime.Logger,
		Config:   runtime.Conversation,
	})

	d.Sessions, err = sessions.New(sessions.Runtime{
		Workflow:     engine,
		Conversation: conv,
		Index:        runtime.Index,
		Documents:    d.Documents,
		Store:        store,
		Events:       runtime.Events,
		Logger:       runtime.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build sessions: %w", err)
	}

	return d, nil
}
