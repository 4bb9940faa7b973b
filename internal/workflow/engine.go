package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kavlartius217/meditrust/internal/artifacts"
)

// Runner executes one non-router stage against a State and returns the
// artifact it persisted.
type Runner interface {
	Run(ctx context.Context, stage Stage, s State) (*artifacts.Artifact, error)
}

// RouteFunc selects a router label for the given State.
type RouteFunc func(ctx context.Context, router Stage, s State) (string, error)

// Observer receives stage timings. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveStage(stage string, elapsed time.Duration, err error)
}

// Runtime bundles the collaborators an Engine drives.
type Runtime struct {
	Definition  *Definition
	Runner      Runner
	Route       RouteFunc
	Observer    Observer
	Logger      *slog.Logger
	MaxParallel int
}

type Engine struct {
	def      *Definition
	runner   Runner
	route    RouteFunc
	observer Observer
	logger   *slog.Logger
	parallel int
}

// New builds an Engine. A nil Route falls back to DecisionRoute.
func New(rt Runtime) (*Engine, error) {
	if rt.Definition == nil {
		return nil, errors.New("workflow: definition is required")
	}
	if rt.Runner == nil {
		return nil, errors.New("workflow: runner is required")
	}

	e := &Engine{
		def:      rt.Definition,
		runner:   rt.Runner,
		route:    rt.Route,
		observer: rt.Observer,
		logger:   rt.Logger,
		parallel: rt.MaxParallel,
	}
	if e.route == nil {
		e.route = DecisionRoute(rt.Definition)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	e.logger = e.logger.With("workflow", rt.Definition.Name())
	if e.parallel <= 0 {
		e.parallel = min(runtime.NumCPU(), 4)
	}
	return e, nil
}

func (e *Engine) Definition() *Definition { return e.def }

// DecisionRoute maps State.Decision through the definition's routes.
func DecisionRoute(def *Definition) RouteFunc {
	return func(_ context.Context, _ Stage, s State) (string, error) {
		label, _ := def.Route(s.Decision)
		return label, nil
	}
}

// Advance applies t and performs one step: either the router alone or
// every ready sibling stage. The returned State is always a fresh value.
//
// A router label without an edge yields *ConfigurationFailure and the
// input State is returned unchanged. Stage errors are joined
// *StageFailure values; successful siblings are still committed.
func (e *Engine) Advance(ctx context.Context, s State, t Trigger) (State, error) {
	if s.Current == Terminal {
		return s, nil
	}
	if s.Report == "" {
		return s, ErrMissingReport
	}

	next := s.clone()
	if err := next.apply(t); err != nil {
		return s, err
	}

	if err := ctx.Err(); err != nil {
		return s, err
	}

	router, batch := e.def.ready(&next)
	if router != nil {
		return e.resolve(ctx, s, next, *router)
	}

	if len(batch) == 0 {
		e.settle(&next)
		return next, nil
	}

	err := e.runBatch(ctx, &next, batch)
	e.settle(&next)
	return next, err
}

// Run advances until the workflow stops making progress on its own:
// it awaits input, halts on failure, or terminates.
func (e *Engine) Run(ctx context.Context, s State, t Trigger) (State, error) {
	next, err := e.Advance(ctx, s, t)
	for err == nil && next.Status == StatusRunning {
		next, err = e.Advance(ctx, next, Trigger{})
	}
	return next, err
}

func (e *Engine) resolve(ctx context.Context, orig, next State, router Stage) (State, error) {
	if next.Decision == Pending {
		next.Status = StatusAwaiting
		return next, nil
	}

	label, err := e.route(ctx, router, next)
	if err != nil {
		return orig, &StageFailure{Stage: router.ID, Cause: err}
	}

	target, ok := e.def.Target(label)
	if !ok {
		e.logger.Error("router label has no edge", "stage", router.ID, "label", label)
		return orig, &ConfigurationFailure{Stage: router.ID, Label: label, Reason: "no matching edge"}
	}

	next.Route = label
	next.Current = target
	next.Completed = append(next.Completed, router.ID)
	e.logger.Info("route selected", "stage", router.ID, "decision", next.Decision, "label", label, "target", target)

	e.settle(&next)
	return next, nil
}

type stageResult struct {
	artifact *artifacts.Artifact
	err      error
}

func (e *Engine) runBatch(ctx context.Context, next *State, batch []Stage) error {
	snapshot := next.clone()
	results := make([]stageResult, len(batch))

	var g errgroup.Group
	g.SetLimit(e.parallel)

	for i, st := range batch {
		g.Go(func() error {
			start := time.Now()
			a, err := e.runner.Run(ctx, st, snapshot)
			if err == nil && a == nil {
				err = fmt.Errorf("stage %s returned no artifact", st.ID)
			}
			if e.observer != nil {
				e.observer.ObserveStage(string(st.ID), time.Since(start), err)
			}
			results[i] = stageResult{artifact: a, err: err}
			return nil
		})
	}
	g.Wait()

	var errs []error
	for i, st := range batch {
		r := results[i]
		if r.err != nil {
			if next.Failed == nil {
				next.Failed = make(map[StageID]string)
			}
			next.Failed[st.ID] = r.err.Error()
			errs = append(errs, &StageFailure{Stage: st.ID, Cause: r.err})
			e.logger.Error("stage failed", "stage", st.ID, "error", r.err)
			continue
		}
		next.Artifacts[st.ID] = *r.artifact
		next.Completed = append(next.Completed, st.ID)
		next.Current = st.ID
		e.logger.Info("stage completed", "stage", st.ID, "artifact", r.artifact.Key())
	}
	return errors.Join(errs...)
}

func (e *Engine) settle(s *State) {
	s.Status = e.def.status(s)
	if s.Status == StatusTerminal {
		s.Current = Terminal
		e.logger.Info("workflow terminal", "scope", s.Scope, "route", s.Route)
	}
}
