package audit

import (
	"encoding/json"
	"fmt"
)

// Prompt text lives in Go constants so a binary is self-contained. The flag
// vocabulary in these prompts must match the structs in the scoring package.

const AnalystSystemInstruction = `You are a METICULOUS EDUCATIONAL CONTENT ANALYST with expertise in Senior High School (AP/IB level) science and math education.
Your dual role:
1. MAP what is taught: document every concept, formula, or definition chronologically with its level of detail
2. IDENTIFY potential issues: log errors or gaps based ONLY on High School standards

Do NOT assign scores or severity flags - that is the judge's job.

KNOWLEDGE BOUNDARY:
- Use the standard curriculum for students aged 15-18 (e.g., AP Physics/Biology, IB Science).
- DO NOT use university-level rigor to invalidate correct high-school simplifications.
- A simplified model (Bohr model, Newtonian mechanics) is CORRECT if it is standard at the High School level.`

const analystPromptTemplate = `# YOUR TASK: Educational Content Analyst (High School Scope)

Watch this video about: **%s**

Produce TWO outputs:
1. "content_map": every concept/formula/definition in chronological order, each with
   timestamp (MM:SS), topic, detail_level (Mentioned/Defined/Explained/Detailed Derivation/Worked Example), description.
2. "potential_issues": every suspected defect, each with
   timestamp, description, confidence (0.0-1.0), evidence_type (Audio Quote/Visual Formula/Content Mismatch/Logic Gap),
   category ("accuracy" or "logic"), raw_evidence.

IMPORTANT EXCLUSION: ignore administrative, temporal or marketing claims; only flag scientific,
mathematical and instructional-logic problems within the High School boundary.

Also include "observation_summary": a brief overview of coverage relative to the title.

Output strictly JSON:
{"video_title": "...", "content_map": [...], "potential_issues": [...], "observation_summary": "..."}`

// AnalystPrompt builds the Stage A user prompt for a video title.
func AnalystPrompt(title string) string {
	return fmt.Sprintf(analystPromptTemplate, title)
}

const JudgeSystemInstruction = `You are a RIGID ACADEMIC JUDGE. You do NOT watch the video. You ONLY process the
analyst's text output (content_map + potential_issues) and report severity flags.
You never compute scores yourself - a deterministic engine turns your flags into scores.`

const judgePromptTemplate = `# YOUR TASK: Gap Analysis Judge

Video Title: **%s**

The content analyst provided this observation:

%s

Assess the observation against the title's promise and report SEVERITY FLAGS only.
Every level is an integer 0 (absent) to 3 (severe). Counts are non-negative integers of
distinct occurrences meeting the confidence thresholds; group duplicates, never double-count.

Pedagogical depth:
- formula_dumping: formulas stated with no derivation and no intuition
- pure_calc_bias: over ~70%% of content is worked calculation with little theory (2+ = dominant)
- depth_gap: title promises depth the content map never reaches

Completeness:
- brevity: 3 = fewer than 3 content items or minimal teaching overall
- superficial_coverage: depth promised but items stay at Mentioned/Defined
- missing_core_concepts: essential topics for this title entirely absent
- breadth_without_depth: many topics Mentioned, few reach Explained

Accuracy:
- title_mismatch: content deviates from the title promise (confidence >= 0.7)
- visual_alignment: narration and on-screen visuals disagree
- critical_error_count: uncorrected wrong facts/formulas (confidence >= 0.8)
- minor_slip_count: notation slips, inconsistent terminology (confidence >= 0.6)

Logic:
- logic_flow: "concept_first" or "formula_before_concept"
- logic_leap_count: skipped critical steps (confidence >= 0.75)
- prerequisite_violation_count: concepts used before being defined (confidence >= 0.75)
- causal_inconsistency_count: conclusions the evidence does not support (confidence >= 0.7)
- information_overload_count: crammed passages with unclear transitions (confidence >= 0.6)

Output strictly JSON:
{"flags": {"formula_dumping": 0, "pure_calc_bias": 0, "depth_gap": 0, "brevity": 0,
"superficial_coverage": 0, "missing_core_concepts": 0, "breadth_without_depth": 0,
"title_mismatch": 0, "visual_alignment": 0, "critical_error_count": 0, "minor_slip_count": 0,
"logic_flow": "concept_first", "logic_leap_count": 0, "prerequisite_violation_count": 0,
"causal_inconsistency_count": 0, "information_overload_count": 0},
"verified_errors": [{"timestamp": "MM:SS", "type": "accuracy", "severity": "critical", "description": "..."}],
"scoring_rationale": "..."}`

// JudgePrompt builds the Stage B user prompt from the analyst observation.
func JudgePrompt(title string, obs *ContentObservation) string {
	body, err := json.MarshalIndent(obs, "", "  ")
	if err != nil {
		body = []byte("{}")
	}
	return fmt.Sprintf(judgePromptTemplate, title, string(body))
}

const SubjectiveSystemInstruction = `You are a SPECIFIC STUDENT experiencing this video.
Report how the video fits YOU as severity flags; a deterministic engine turns them into
adaptability and engagement scores. Do NOT re-litigate accuracy or logic.`

const subjectivePromptTemplate = `# YOUR IDENTITY:
%s

# OBJECTIVE BASELINE (from the expert judge):
- Accuracy: %.2f/5
- Logic: %.2f/5
- Verified errors: %s
- Content map (first items): %s

# YOUR TASK:
Watch the video as this student and report integer severity levels 0 (not a problem for you)
to 3 (severe for you):

Adaptability:
- jargon_overload: terms you do not know, used without explanation
- prerequisite_gap: the video assumes knowledge you lack
- pacing_mismatch: too fast or too slow for your pace
- missing_scaffolding: new ideas arrive without buildup you need
- visual_accessibility: on-screen material hard for you to follow;
  set accessibility_issue_type to "contrast" or "signaling"

Engagement:
- monotone_audio: delivery that loses you
- ai_generated_fatigue: synthetic, lifeless presentation
- visual_clutter: busy visuals that distract you
- audio_visual_disconnect: narration and visuals out of sync

Output strictly JSON:
{"flags": {"jargon_overload": 0, "prerequisite_gap": 0, "pacing_mismatch": 0,
"missing_scaffolding": 0, "visual_accessibility": 0, "accessibility_issue_type": "",
"monotone_audio": 0, "ai_generated_fatigue": 0, "visual_clutter": 0,
"audio_visual_disconnect": 0},
"student_monologue": "your honest reaction as this student"}`

// SubjectiveRetryHint is appended to the prompt when the previous attempt
// produced an all-zero score pair.
const SubjectiveRetryHint = "\n\nIMPORTANT: your previous flag report was degenerate. Re-watch with this persona in mind and report honest, differentiated severity levels."

// SubjectivePrompt builds the Stage C user prompt. The observation and error
// list are truncated: personas react to the gist, not the full audit.
func SubjectivePrompt(persona string, accuracy, logic float64, errs []VerifiedError, obs *ContentObservation) string {
	const maxErrors = 3
	const maxItems = 5

	if len(errs) > maxErrors {
		errs = errs[:maxErrors]
	}
	errJSON, _ := json.MarshalIndent(errs, "", "  ")
	if len(errs) == 0 {
		errJSON = []byte(`"none identified"`)
	}

	var items []ContentItem
	if obs != nil {
		items = obs.ContentMap
	}
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	mapJSON, _ := json.MarshalIndent(items, "", "  ")

	return fmt.Sprintf(subjectivePromptTemplate, persona, accuracy, logic, string(errJSON), string(mapJSON))
}
