package scoring

import "fmt"

// Step is one entry of a score's audit trail: either a deduction (Points>0)
// or a ceiling record (Cap>0).
type Step struct {
	Label  string  `json:"label"`
	Points float64 `json:"points,omitempty"`
	Cap    float64 `json:"cap,omitempty"`
}

// ScoreResult is a bounded score plus the ordered deduction trail that
// produced it. Recomputed from flags on every evaluation; never mutated.
type ScoreResult struct {
	Score     float64 `json:"score"`
	Breakdown []Step  `json:"breakdown,omitempty"`
}

// neutralScore is returned when scoring itself blows up on malformed input.
// Scoring must never abort the pipeline.
const neutralScore = 3.0

type tally struct {
	total   float64
	ceiling float64
	steps   []Step
}

func newTally() *tally {
	return &tally{total: 5.0, ceiling: 5.0}
}

func (t *tally) deduct(label string, points float64) {
	if points <= 0 {
		return
	}
	t.total -= points
	t.steps = append(t.steps, Step{Label: label, Points: points})
}

func (t *tally) deductPer(label string, n int, rate float64) {
	if n <= 0 {
		return
	}
	t.total -= float64(n) * rate
	t.steps = append(t.steps, Step{
		Label:  fmt.Sprintf("%s x%d", label, n),
		Points: float64(n) * rate,
	})
}

// cap lowers the score ceiling; the tightest applicable ceiling wins.
func (t *tally) cap(label string, limit float64) {
	if limit < t.ceiling {
		t.ceiling = limit
	}
	t.steps = append(t.steps, Step{Label: label, Cap: limit})
}

// result clamps the running total into [floor, ceiling].
func (t *tally) result(floor float64) ScoreResult {
	s := t.total
	if s > t.ceiling {
		s = t.ceiling
	}
	if s < floor {
		s = floor
	}
	return ScoreResult{Score: s, Breakdown: t.steps}
}

func neutral(dim string) ScoreResult {
	return ScoreResult{
		Score:     neutralScore,
		Breakdown: []Step{{Label: dim + ": malformed flags, neutral fallback"}},
	}
}

// depthAndCompleteness charges the shared pedagogical-depth and completeness
// penalties. Accuracy and Logic are harmed by the same failures, so both
// dimensions run this identically.
func depthAndCompleteness(t *tally, f ObjectiveFlags) {
	t.deduct("formula_dumping", FormulaDumping.Penalty(int(f.FormulaDumping)))
	t.deduct("pure_calc_bias", PureCalcBias.Penalty(int(f.PureCalcBias)))
	t.deduct("depth_gap", DepthGap.Penalty(int(f.DepthGap)))

	t.deduct("brevity", Brevity.Penalty(int(f.Brevity)))
	t.deduct("superficial_coverage", SuperficialCoverage.Penalty(int(f.SuperficialCoverage)))
	t.deduct("missing_core_concepts", MissingCoreConcepts.Penalty(int(f.MissingCoreConcepts)))
	t.deduct("breadth_without_depth", BreadthWithoutDepth.Penalty(int(f.BreadthWithoutDepth)))
}

// ComputeAccuracy scores factual correctness: start at 5.0, charge depth,
// completeness, accuracy-only and per-occurrence penalties, then clamp into
// [1.0, tightest ceiling].
func ComputeAccuracy(f ObjectiveFlags) (res ScoreResult) {
	defer func() {
		if r := recover(); r != nil {
			res = neutral("accuracy")
		}
	}()

	t := newTally()
	depthAndCompleteness(t, f)
	if f.PureCalcBias >= 2 {
		t.cap("cap: pure_calc_bias", capPureCalcBias)
	}
	if f.Brevity == 3 {
		t.cap("cap: brevity", capBrevity)
	}

	t.deduct("title_mismatch", TitleMismatch.Penalty(int(f.TitleMismatch)))
	t.deduct("visual_alignment", VisualAlignment.Penalty(int(f.VisualAlignment)))

	t.deductPer("critical_error", int(f.CriticalErrorCount), perCriticalError)
	t.deductPer("minor_slip", int(f.MinorSlipCount), perMinorSlip)

	return t.result(1.0)
}

// ComputeLogic scores instructional flow. The flow classification can cap
// the score outright ("formula before concept" never scores above 3.0);
// otherwise the same shared penalties as Accuracy apply, plus the
// logic-only per-occurrence deductions.
func ComputeLogic(f ObjectiveFlags) (res ScoreResult) {
	defer func() {
		if r := recover(); r != nil {
			res = neutral("logic")
		}
	}()

	t := newTally()
	if FlowIsFormulaFirst(f.LogicFlow) {
		t.cap("cap: formula_before_concept", capFormulaFirst)
	}
	if f.PureCalcBias >= 2 {
		t.cap("cap: pure_calc_bias", capPureCalcBias)
	}
	if f.Brevity == 3 {
		t.cap("cap: brevity", capBrevity)
	}

	depthAndCompleteness(t, f)

	t.deductPer("logic_leap", int(f.LogicLeapCount), perLogicLeap)
	t.deductPer("prerequisite_violation", int(f.PrerequisiteViolationCount), perPrerequisiteViolation)
	t.deductPer("causal_inconsistency", int(f.CausalInconsistencyCount), perCausalInconsistency)
	t.deductPer("information_overload", int(f.InformationOverloadCount), perInformationOverload)

	return t.result(1.0)
}

// ComputeAdaptability scores difficulty/pacing fit for one persona.
// Clamped into [0.0, 5.0].
func ComputeAdaptability(f SubjectiveFlags) (res ScoreResult) {
	defer func() {
		if r := recover(); r != nil {
			res = neutral("adaptability")
		}
	}()

	t := newTally()
	t.deduct("jargon_overload", Standard.Penalty(int(f.JargonOverload)))
	t.deduct("prerequisite_gap", Standard.Penalty(int(f.PrerequisiteGap)))
	t.deduct("pacing_mismatch", Standard.Penalty(int(f.PacingMismatch)))
	t.deduct("missing_scaffolding", Standard.Penalty(int(f.MissingScaffolding)))
	t.deduct("visual_accessibility", visualAccessibilityPenalty(f))

	return t.result(0.0)
}

// visualAccessibilityPenalty has its own curve (0, 0.3, 0.6, 1.0) and a
// +0.5 surcharge when the issue is missing visual signaling rather than
// poor contrast. The combined penalty never exceeds 1.0. A signaling issue
// reported without a numeric level costs a flat 0.5.
func visualAccessibilityPenalty(f SubjectiveFlags) float64 {
	signaling := normalizeLabel(f.AccessibilityIssueType) == "signaling"
	if f.VisualAccessibility == nil {
		if signaling {
			return 0.5
		}
		return 0
	}
	var p float64
	switch lvl := int(*f.VisualAccessibility); {
	case lvl <= 0:
		p = 0
	case lvl == 1:
		p = 0.3
	case lvl == 2:
		p = 0.6
	default:
		p = 1.0
	}
	if signaling {
		p += 0.5
		if p > 1.0 {
			p = 1.0
		}
	}
	return p
}

// ComputeEngagement scores presentation appeal for one persona.
// Clamped into [0.0, 5.0].
func ComputeEngagement(f SubjectiveFlags) (res ScoreResult) {
	defer func() {
		if r := recover(); r != nil {
			res = neutral("engagement")
		}
	}()

	t := newTally()
	t.deduct("monotone_audio", Monotone.Penalty(int(f.MonotoneAudio)))
	t.deduct("ai_generated_fatigue", Standard.Penalty(int(f.AIGeneratedFatigue)))
	t.deduct("visual_clutter", Standard.Penalty(int(f.VisualClutter)))
	t.deduct("audio_visual_disconnect", Disconnect.Penalty(int(f.AudioVisualDisconnect)))

	return t.result(0.0)
}

// SubjectiveValid reports whether a subjective score pair is usable. The
// single degenerate shape is both dimensions at exactly zero, which the
// pipeline treats as a retry trigger. Anything else, including one
// legitimate zero, is accepted; inspection failures fail open so a broken
// result can never cause an infinite retry loop.
func SubjectiveValid(adaptability, engagement *ScoreResult) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = true
		}
	}()
	if adaptability == nil || engagement == nil {
		return true
	}
	return !(adaptability.Score == 0 && engagement.Score == 0)
}
