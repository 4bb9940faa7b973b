package workflow

import (
	"slices"
)

// Definition is a validated workflow graph. It is immutable after
// construction and safe for concurrent use.
type Definition struct {
	name   string
	stages []Stage
	index  map[StageID]int
	router StageID
	edges  map[string]StageID
	gated  map[StageID]bool
	routes map[Decision]string
}

// NewDefinition validates stages, edges and routes and returns the graph.
// Routes maps a decision to the router label it selects and may be nil
// when the caller supplies its own RouteFunc.
func NewDefinition(name string, stages []Stage, edges []Edge, routes map[Decision]string) (*Definition, error) {
	d := &Definition{
		name:   name,
		stages: make([]Stage, 0, len(stages)),
		index:  make(map[StageID]int, len(stages)),
		edges:  make(map[string]StageID),
		gated:  make(map[StageID]bool),
		routes: make(map[Decision]string, len(routes)),
	}

	if len(stages) == 0 {
		return nil, configErr("", "definition %q has no stages", name)
	}

	artifactNames := make(map[string]StageID)
	for _, s := range stages {
		s = cloneStage(s)
		switch {
		case s.ID == "":
			return nil, configErr("", "stage with empty id")
		case s.ID == ReportInput || s.ID == Terminal:
			return nil, configErr(s.ID, "reserved stage id")
		}
		if _, dup := d.index[s.ID]; dup {
			return nil, configErr(s.ID, "duplicate stage id")
		}

		if s.Router {
			if d.router != "" {
				return nil, configErr(s.ID, "second router, %s already declared", d.router)
			}
			if s.Artifact != "" {
				return nil, configErr(s.ID, "router cannot produce an artifact")
			}
			if len(s.Labels) == 0 {
				return nil, configErr(s.ID, "router declares no labels")
			}
			d.router = s.ID
		} else {
			if len(s.Labels) > 0 {
				return nil, configErr(s.ID, "labels declared on a non-router stage")
			}
			if s.Artifact == "" {
				s.Artifact = string(s.ID)
			}
			if prev, dup := artifactNames[s.Artifact]; dup {
				return nil, configErr(s.ID, "artifact %q already produced by %s", s.Artifact, prev)
			}
			artifactNames[s.Artifact] = s.ID
		}

		d.index[s.ID] = len(d.stages)
		d.stages = append(d.stages, s)
	}

	if d.router == "" {
		return nil, configErr("", "definition %q has no router", name)
	}

	for _, s := range d.stages {
		if len(s.Requires) == 0 {
			return nil, configErr(s.ID, "stage has no requirements")
		}
		for _, r := range s.Requires {
			if r == ReportInput {
				continue
			}
			if r == s.ID {
				return nil, configErr(s.ID, "stage requires itself")
			}
			if r == d.router {
				return nil, configErr(s.ID, "router output cannot be required")
			}
			if _, ok := d.index[r]; !ok {
				return nil, configErr(s.ID, "unknown requirement %s", r)
			}
		}
	}

	if err := d.checkAcyclic(); err != nil {
		return nil, err
	}

	router := d.stages[d.index[d.router]]
	for _, e := range edges {
		if e.From != d.router {
			return nil, configErr(e.From, "edge must leave the router %s", d.router)
		}
		if !slices.Contains(router.Labels, e.Label) {
			return nil, &ConfigurationFailure{Stage: e.From, Label: e.Label, Reason: "label not declared"}
		}
		if _, dup := d.edges[e.Label]; dup {
			return nil, &ConfigurationFailure{Stage: e.From, Label: e.Label, Reason: "more than one edge"}
		}
		if e.To != Terminal {
			if _, ok := d.index[e.To]; !ok {
				return nil, &ConfigurationFailure{Stage: e.From, Label: e.Label, Reason: "unknown target " + string(e.To)}
			}
			if e.To == d.router || d.upstreamOf(e.To, d.router) {
				return nil, &ConfigurationFailure{Stage: e.From, Label: e.Label, Reason: "target runs before the router"}
			}
			d.gated[e.To] = true
		}
		d.edges[e.Label] = e.To
	}
	for _, l := range router.Labels {
		if _, ok := d.edges[l]; !ok {
			return nil, &ConfigurationFailure{Stage: d.router, Label: l, Reason: "no edge"}
		}
	}

	for decision, label := range routes {
		if decision != Proceed && decision != Stop {
			return nil, configErr(d.router, "route for invalid decision %q", decision)
		}
		if _, ok := d.edges[label]; !ok {
			return nil, &ConfigurationFailure{Stage: d.router, Label: label, Reason: "route targets an undeclared label"}
		}
		d.routes[decision] = label
	}

	return d, nil
}

func (d *Definition) Name() string { return d.name }

// Stages returns the stages in declaration order.
func (d *Definition) Stages() []Stage {
	out := make([]Stage, len(d.stages))
	for i, s := range d.stages {
		out[i] = cloneStage(s)
	}
	return out
}

func (d *Definition) Stage(id StageID) (Stage, bool) {
	i, ok := d.index[id]
	if !ok {
		return Stage{}, false
	}
	return cloneStage(d.stages[i]), true
}

func (d *Definition) Router() Stage {
	return cloneStage(d.stages[d.index[d.router]])
}

// Target resolves a router label to its edge target.
func (d *Definition) Target(label string) (StageID, bool) {
	to, ok := d.edges[label]
	return to, ok
}

// Route returns the label mapped to decision, if any.
func (d *Definition) Route(decision Decision) (string, bool) {
	l, ok := d.routes[decision]
	return l, ok
}

// Upstream returns the stages the router transitively depends on, in
// declaration order.
func (d *Definition) Upstream() []StageID {
	var out []StageID
	for _, s := range d.stages {
		if !s.Router && d.upstreamOf(s.ID, d.router) {
			out = append(out, s.ID)
		}
	}
	return out
}

// upstreamOf reports whether target transitively requires id.
func (d *Definition) upstreamOf(id, target StageID) bool {
	seen := make(map[StageID]bool)
	var walk func(StageID) bool
	walk = func(cur StageID) bool {
		if seen[cur] {
			return false
		}
		seen[cur] = true
		for _, r := range d.stages[d.index[cur]].Requires {
			if r == ReportInput {
				continue
			}
			if r == id || walk(r) {
				return true
			}
		}
		return false
	}
	return walk(target)
}

func (d *Definition) checkAcyclic() error {
	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[StageID]int, len(d.stages))
	var visit func(StageID) error
	visit = func(id StageID) error {
		switch marks[id] {
		case visiting:
			return configErr(id, "dependency cycle")
		case done:
			return nil
		}
		marks[id] = visiting
		for _, r := range d.stages[d.index[id]].Requires {
			if r == ReportInput {
				continue
			}
			if err := visit(r); err != nil {
				return err
			}
		}
		marks[id] = done
		return nil
	}
	for _, s := range d.stages {
		if err := visit(s.ID); err != nil {
			return err
		}
	}
	return nil
}

// live reports whether a stage can still run given the route taken so
// far. Gated stages are live only once the router selected them.
func (d *Definition) live(s *State, id StageID) bool {
	if d.gated[id] {
		if s.Route == "" || d.edges[s.Route] != id {
			return false
		}
	}
	for _, r := range d.stages[d.index[id]].Requires {
		if r != ReportInput && !d.live(s, r) {
			return false
		}
	}
	return true
}

func (d *Definition) satisfied(s *State, st Stage) bool {
	for _, r := range st.Requires {
		if r == ReportInput {
			if s.Report == "" {
				return false
			}
			continue
		}
		if _, ok := s.Artifacts[r]; !ok {
			return false
		}
	}
	for _, p := range st.Params {
		if s.Params[p] == "" {
			return false
		}
	}
	return true
}

// ready returns the router when it is runnable, otherwise the runnable
// non-router stages in declaration order.
func (d *Definition) ready(s *State) (*Stage, []Stage) {
	var batch []Stage
	for _, st := range d.stages {
		if st.Router {
			if s.Route == "" && d.satisfied(s, st) {
				router := st
				return &router, nil
			}
			continue
		}
		if s.done(st.ID) || s.failed(st.ID) || !d.live(s, st.ID) {
			continue
		}
		if d.satisfied(s, st) {
			batch = append(batch, st)
		}
	}
	return nil, batch
}

func (d *Definition) status(s *State) Status {
	router, batch := d.ready(s)
	if router != nil {
		if s.Decision == Pending {
			return StatusAwaiting
		}
		return StatusRunning
	}
	if len(batch) > 0 {
		return StatusRunning
	}
	if s.Route != "" && d.finished(s) {
		return StatusTerminal
	}
	if len(s.Failed) > 0 {
		return StatusHalted
	}
	return StatusAwaiting
}

func (d *Definition) finished(s *State) bool {
	for _, st := range d.stages {
		if st.Router || !d.live(s, st.ID) {
			continue
		}
		if !s.done(st.ID) {
			return false
		}
	}
	return true
}

func cloneStage(s Stage) Stage {
	s.Requires = slices.Clone(s.Requires)
	s.Params = slices.Clone(s.Params)
	s.Labels = slices.Clone(s.Labels)
	return s
}
