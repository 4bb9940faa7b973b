package workflow

// StageID names a stage within a Definition.
type StageID string

const (
	// ReportInput is the pseudo-requirement satisfied by State.Report.
	ReportInput StageID = "report"
	// Terminal is the edge target and Current value of a finished workflow.
	Terminal StageID = "terminal"
)

// Stage is an immutable node of the workflow graph. Requires is ordered;
// the order determines how inputs are presented to the generator. Exactly
// one stage per Definition is a router: it produces no artifact and
// selects one of its Labels.
type Stage struct {
	ID           StageID   `yaml:"id" json:"id"`
	Requires     []StageID `yaml:"requires" json:"requires"`
	Params       []string  `yaml:"params,omitempty" json:"params,omitempty"`
	Artifact     string    `yaml:"artifact,omitempty" json:"artifact,omitempty"`
	Router       bool      `yaml:"router,omitempty" json:"router,omitempty"`
	Labels       []string  `yaml:"labels,omitempty" json:"labels,omitempty"`
	Instructions string    `yaml:"instructions,omitempty" json:"-"`
}

// Edge leaves the router under Label and leads to To, which is a stage
// or Terminal.
type Edge struct {
	From  StageID `yaml:"from" json:"from"`
	Label string  `yaml:"label" json:"label"`
	To    StageID `yaml:"to" json:"to"`
}
