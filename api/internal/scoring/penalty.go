package scoring

// Preset is a fixed severity-to-penalty curve. Level 0 always costs nothing;
// levels 1..3 map to P1..P3. The same presets serve the model-driven judge
// and the human review path, so a given flag value scores identically
// regardless of who reported it.
type Preset struct {
	P1, P2, P3 float64
}

// Penalty maps an ordinal severity level to a deduction. Out-of-range input
// degrades silently: negatives cost nothing, levels above 3 clamp to 3.
func (p Preset) Penalty(level int) float64 {
	switch {
	case level <= 0:
		return 0
	case level == 1:
		return p.P1
	case level == 2:
		return p.P2
	default:
		return p.P3
	}
}

// Objective-side presets. Each flag has exactly one curve, defined here and
// nowhere else.
var (
	FormulaDumping      = Preset{0.5, 1.0, 2.0}
	PureCalcBias        = Preset{0.3, 1.0, 1.5}
	DepthGap            = Preset{0.2, 0.5, 1.0}
	Brevity             = Preset{1.0, 2.0, 3.0}
	SuperficialCoverage = Preset{0.5, 1.5, 2.0}
	MissingCoreConcepts = Preset{0.5, 1.0, 1.5}
	BreadthWithoutDepth = Preset{0.3, 0.5, 1.0}
	TitleMismatch       = Preset{0.5, 1.0, 1.5}
	VisualAlignment     = Preset{0.3, 0.6, 1.0}
)

// Subjective-side presets.
var (
	Standard   = Preset{0.3, 0.6, 1.0} // low-severity behavioral flags
	Monotone   = Preset{0.5, 1.0, 1.5} // monotone audio only
	Disconnect = Preset{0.5, 1.0, 1.5} // audio/visual disconnect only
)

// Per-occurrence deduction rates.
const (
	perCriticalError         = 0.5
	perMinorSlip             = 0.2
	perLogicLeap             = 0.5
	perPrerequisiteViolation = 0.5
	perCausalInconsistency   = 0.4
	perInformationOverload   = 0.2
)

// Score ceilings imposed by severe flags. The tightest applicable ceiling
// wins; the running penalty total never pushes a score below its floor.
const (
	capPureCalcBias = 3.5 // pure_calc_bias level >= 2
	capBrevity      = 2.0 // brevity level == 3
	capFormulaFirst = 3.0 // "formula before concept" logic flow
)
