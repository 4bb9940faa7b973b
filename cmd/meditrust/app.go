package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/kavlartius217/meditrust/internal/api"
	"github.com/kavlartius217/meditrust/internal/config"
	"github.com/kavlartius217/meditrust/internal/documents"
	"github.com/kavlartius217/meditrust/internal/infrastructure"
	"github.com/kavlartius217/meditrust/internal/sessions"
	"github.com/kavlartius217/meditrust/internal/workflow"
)

// app is an in-process MediTrust: every store lives in memory and is
// discarded when the command exits.
type app struct {
	cfg      *config.Config
	infra    *infrastructure.Infrastructure
	sessions sessions.System
	loader   documents.Loader
}

func newApp() (*app, error) {
	if err := os.Setenv(config.EnvMeditrustPersistence, config.PersistenceMemory); err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}

	domain, err := api.NewDomain(api.NewRuntime(cfg, infra))
	if err != nil {
		return nil, err
	}

	if err := infra.Start(); err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		infra:    infra,
		sessions: domain.Sessions,
		loader:   documents.Loader{MaxBytes: cfg.API.MaxUploadSizeBytes()},
	}, nil
}

func (a *app) close() {
	if err := a.infra.Lifecycle.Shutdown(a.cfg.ShutdownTimeoutDuration()); err != nil {
		a.infra.Logger.Error("shutdown failed", "error", err)
	}
}

type decision struct {
	proceed bool
	city    string
}

func (d decision) validate() error {
	if d.proceed && d.city == "" {
		return fmt.Errorf("--city is required with --proceed")
	}
	return nil
}

func (d decision) trigger() workflow.Trigger {
	if !d.proceed {
		return workflow.Trigger{Decision: workflow.Stop}
	}
	return workflow.Trigger{
		Decision: workflow.Proceed,
		Params:   map[string]string{"user_city": d.city},
	}
}

// analyze loads the report, runs the pre-decision stages, applies the
// decision and returns the settled session.
func (a *app) analyze(ctx context.Context, out io.Writer, path string, d decision) (*sessions.Session, error) {
	report, err := a.loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	sess, err := a.sessions.Create(ctx, sessions.CreateCommand{Report: report})
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(out, "Analyzing report...")
	sess, err = a.sessions.Advance(ctx, sess.ID, workflow.Trigger{})
	if err != nil {
		return nil, err
	}
	printArtifacts(out, sess, "extraction", "explanation", "abnormalities")

	sess, err = a.sessions.Advance(ctx, sess.ID, d.trigger())
	if err != nil {
		return nil, err
	}
	if d.proceed {
		printArtifacts(out, sess, "doctors")
	}

	return sess, nil
}

func printArtifacts(out io.Writer, sess *sessions.Session, ids ...workflow.StageID) {
	for _, id := range ids {
		a, ok := sess.State.Artifact(id)
		if !ok {
			continue
		}
		fmt.Fprintf(out, "\n## %s (v%d)\n\n%s\n", a.Name, a.Version, a.Content)
	}
}
