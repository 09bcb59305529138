package audit

import (
	"video-auditor/api/internal/scoring"
)

// Unit is one (video, persona, run) evaluation instance. Immutable once the
// task list is expanded; Index is assigned at dispatch time so output files
// correlate with the input order no matter when units complete.
type Unit struct {
	Index     int    `json:"index"`
	VideoURL  string `json:"video_url"`
	VideoID   string `json:"video_id,omitempty"`
	VideoPath string `json:"-"`
	Title     string `json:"title"`
	Persona   string `json:"persona"`
	Run       int    `json:"run"`
}

// ContentItem is one chronological entry of the analyst's content map.
type ContentItem struct {
	Timestamp   string `json:"timestamp"`
	Topic       string `json:"topic"`
	DetailLevel string `json:"detail_level"` // Mentioned | Defined | Explained | Detailed Derivation | Worked Example
	Description string `json:"description"`
}

// Issue is a potential defect the analyst observed, not yet verified.
type Issue struct {
	Timestamp    string  `json:"timestamp"`
	Description  string  `json:"description"`
	Confidence   float64 `json:"confidence"` // 0..1
	EvidenceType string  `json:"evidence_type"`
	Category     string  `json:"category"` // "accuracy" | "logic"
	RawEvidence  string  `json:"raw_evidence,omitempty"`
}

// ContentObservation is the analyst stage output. It is untrusted model
// output: any field may be missing or malformed and must default cleanly.
type ContentObservation struct {
	VideoTitle         string        `json:"video_title"`
	ContentMap         []ContentItem `json:"content_map"`
	PotentialIssues    []Issue       `json:"potential_issues"`
	ObservationSummary string        `json:"observation_summary"`
}

// VerifiedError is an issue the judge confirmed against the deduction rules.
type VerifiedError struct {
	Timestamp   string `json:"timestamp"`
	Type        string `json:"type"` // "accuracy" | "logic"
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// JudgeReport is the judge stage output: severity flags for the
// deterministic engine plus the verified error list for downstream prompts.
type JudgeReport struct {
	Flags            scoring.ObjectiveFlags `json:"flags"`
	VerifiedErrors   []VerifiedError        `json:"verified_errors"`
	ScoringRationale string                 `json:"scoring_rationale"`
}

// SubjectiveReport is the persona simulation output.
type SubjectiveReport struct {
	Flags            scoring.SubjectiveFlags `json:"flags"`
	StudentMonologue string                  `json:"student_monologue"`
}

// Result aggregates one unit's full pipeline outcome. Written once at the
// end of the unit's run and then treated as read-only.
type Result struct {
	Unit Unit `json:"unit"`

	Observation *ContentObservation `json:"observation,omitempty"`

	ObjectiveFlags scoring.ObjectiveFlags `json:"objective_flags"`
	Accuracy       scoring.ScoreResult    `json:"accuracy"`
	Logic          scoring.ScoreResult    `json:"logic"`
	VerifiedErrors []VerifiedError        `json:"verified_errors,omitempty"`

	SubjectiveFlags  scoring.SubjectiveFlags `json:"subjective_flags"`
	Adaptability     scoring.ScoreResult     `json:"adaptability"`
	Engagement       scoring.ScoreResult     `json:"engagement"`
	StudentMonologue string                  `json:"student_monologue,omitempty"`

	// SubjectiveAttempts counts simulation attempts; Degraded marks a
	// zero-score pair delivered after the retry budget ran out.
	SubjectiveAttempts int  `json:"subjective_attempts,omitempty"`
	Degraded           bool `json:"degraded,omitempty"`

	Success bool   `json:"success"`
	Err     string `json:"error,omitempty"`
}

// Weighted total used in the tabular summary: accuracy 40%, logic 30%,
// adaptability 20%, engagement 10%.
func (r *Result) WeightedTotal() float64 {
	if !r.Success {
		return 0
	}
	return r.Accuracy.Score*0.4 + r.Logic.Score*0.3 +
		r.Adaptability.Score*0.2 + r.Engagement.Score*0.1
}

// Failed builds an error-shaped result for a unit that never produced
// scores.
func Failed(u Unit, err error) *Result {
	return &Result{Unit: u, Success: false, Err: err.Error()}
}
