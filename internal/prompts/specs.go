package prompts

const extractionSpec = `Respond in Markdown:

- Start with a "# Patient Report" heading followed by patient and sample details.
- Use one "##" heading per test panel.
- Present measurements as a table with columns Test, Result, Unit, Reference Range.
- Reproduce values verbatim. Do not add commentary.`

const explanationSpec = `Respond in Markdown:

- Use one "##" heading per test panel, mirroring the structured report.
- For every value state Normal or Abnormal.
- For every abnormal value give a severity of Low, Moderate or High, possible causes, and implications.
- End with a "## Summary" section of at most five bullet points.`

const abnormalitiesSpec = `Respond in Markdown:

- Use one "##" heading per abnormal value, named after the test.
- Under each heading include Value, Severity (Low / Moderate / High) with a one-line justification, Why it matters, Recommendations, and Specialist.
- Start the section with "URGENT:" when immediate medical attention is advised.
- If no values are abnormal, respond with a single sentence saying so.`

const doctorsSpec = `Respond in Markdown with one "##" heading per recommended doctor containing:

- Name
- Specialization
- Clinic or hospital
- Contact information
- Consultation options (in person or online)
- Reviews or ratings, if known`

const chatSpec = `Respond conversationally in plain text or short Markdown. Keep answers under 200 words unless the question needs a longer explanation. Quote report values exactly when you reference them.`

var specs = map[Stage]string{
	StageExtraction:    extractionSpec,
	StageExplanation:   explanationSpec,
	StageAbnormalities: abnormalitiesSpec,
	StageDoctors:       doctorsSpec,
	StageChat:          chatSpec,
}

// Spec returns the fixed output specification for a stage.
func Spec(stage Stage) (string, error) {
	text, ok := specs[stage]
	if !ok {
		return "", ErrInvalidStage
	}
	return text, nil
}
