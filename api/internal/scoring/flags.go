package scoring

import (
	"strconv"
	"strings"
)

// Level is an ordinal severity in 0..3. Decoding is deliberately forgiving:
// judges and review forms hand us booleans, floats and junk in the same
// field, and a malformed flag must score as "not present", never fail.
//   - true coerces to 2 (a moderate binary flag), false to 0
//   - numbers are truncated and clamped into 0..3
//   - quoted numbers are accepted; anything else is 0
type Level int

func (l *Level) UnmarshalJSON(b []byte) error {
	*l = coerceLevel(string(b))
	return nil
}

func coerceLevel(s string) Level {
	s = strings.TrimSpace(s)
	switch s {
	case "true":
		return 2
	case "", "false", "null":
		return 0
	}
	if f, err := strconv.ParseFloat(strings.Trim(s, `"`), 64); err == nil {
		switch {
		case f <= 0:
			return 0
		case f >= 3:
			return 3
		default:
			return Level(int(f))
		}
	}
	return 0
}

// Count is a non-negative occurrence count with the same forgiving decoding
// as Level (true counts as one occurrence, garbage as zero).
type Count int

func (c *Count) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch s {
	case "true":
		*c = 1
		return nil
	case "", "false", "null":
		*c = 0
		return nil
	}
	if f, err := strconv.ParseFloat(strings.Trim(s, `"`), 64); err == nil && f > 0 {
		*c = Count(int(f))
	} else {
		*c = 0
	}
	return nil
}

// ObjectiveFlags is the persona-independent flag vocabulary reported by the
// judge stage (or a human reviewer). Missing keys decode to zero and score
// neutrally.
type ObjectiveFlags struct {
	// Pedagogical depth, charged against both Accuracy and Logic.
	FormulaDumping Level `json:"formula_dumping"`
	PureCalcBias   Level `json:"pure_calc_bias"`
	DepthGap       Level `json:"depth_gap"`

	// Completeness, charged against both Accuracy and Logic.
	Brevity             Level `json:"brevity"`
	SuperficialCoverage Level `json:"superficial_coverage"`
	MissingCoreConcepts Level `json:"missing_core_concepts"`
	BreadthWithoutDepth Level `json:"breadth_without_depth"`

	// Accuracy only.
	TitleMismatch      Level `json:"title_mismatch"`
	VisualAlignment    Level `json:"visual_alignment"`
	CriticalErrorCount Count `json:"critical_error_count"`
	MinorSlipCount     Count `json:"minor_slip_count"`

	// Logic only.
	LogicFlow                  string `json:"logic_flow"`
	LogicLeapCount             Count  `json:"logic_leap_count"`
	PrerequisiteViolationCount Count  `json:"prerequisite_violation_count"`
	CausalInconsistencyCount   Count  `json:"causal_inconsistency_count"`
	InformationOverloadCount   Count  `json:"information_overload_count"`
}

// SubjectiveFlags is the persona-specific vocabulary from the simulation
// stage (or a human reviewer).
type SubjectiveFlags struct {
	// Adaptability.
	JargonOverload     Level `json:"jargon_overload"`
	PrerequisiteGap    Level `json:"prerequisite_gap"`
	PacingMismatch     Level `json:"pacing_mismatch"`
	MissingScaffolding Level `json:"missing_scaffolding"`

	// Visual accessibility: the level may legitimately be absent while the
	// issue type alone is reported, so the field is a pointer.
	VisualAccessibility    *Level `json:"visual_accessibility,omitempty"`
	AccessibilityIssueType string `json:"accessibility_issue_type,omitempty"` // "contrast" | "signaling"

	// Engagement.
	MonotoneAudio         Level `json:"monotone_audio"`
	AIGeneratedFatigue    Level `json:"ai_generated_fatigue"`
	VisualClutter         Level `json:"visual_clutter"`
	AudioVisualDisconnect Level `json:"audio_visual_disconnect"`
}

// Judges have produced several synonymous labels for the "formula before
// concept" flow over time; all of them cap Logic the same way.
var formulaFirstLabels = map[string]bool{
	"formula_before_concept":     true,
	"formula_first":              true,
	"formula_to_solving":         true,
	"formula_to_problem_solving": true,
	"calc_first":                 true,
}

// FlowIsFormulaFirst reports whether a logic-flow classification means the
// video dives into formulas before building the concept.
func FlowIsFormulaFirst(label string) bool {
	return formulaFirstLabels[normalizeLabel(label)]
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
