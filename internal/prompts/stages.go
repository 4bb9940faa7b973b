package prompts

import (
	"encoding/json"
	"slices"
)

// Stage names the generation step a prompt override targets. Workflow
// stage IDs use the same values.
type Stage string

const (
	StageExtraction    Stage = "extraction"
	StageExplanation   Stage = "explanation"
	StageAbnormalities Stage = "abnormalities"
	StageDoctors       Stage = "doctors"
	StageChat          Stage = "chat"
)

var stages = []Stage{
	StageExtraction,
	StageExplanation,
	StageAbnormalities,
	StageDoctors,
	StageChat,
}

// Stages returns the list of valid stages.
func Stages() []Stage {
	return slices.Clone(stages)
}

// UnmarshalJSON validates that the decoded string is a known stage value.
func (s *Stage) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := ParseStage(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseStage validates a string as a known stage.
func ParseStage(s string) (Stage, error) {
	v := Stage(s)
	if !slices.Contains(stages, v) {
		return "", ErrInvalidStage
	}
	return v, nil
}
