// Package pipeline drives one evaluation unit through the three dependent
// stages (content analyst, judge, subjective simulation) and fans many
// units out under a bounded admission limiter.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"video-auditor/api/internal/audit"
	"video-auditor/api/internal/llm"
	"video-auditor/api/internal/scoring"
	"video-auditor/api/internal/util"
)

// Stage temperatures. The analyst is near-deterministic, the judge fully
// deterministic, the persona simulation keeps a little variance.
const (
	analystTemperature    float32 = 0.1
	judgeTemperature      float32 = 0.0
	subjectiveTemperature float32 = 0.3
)

// rawExcerptLen bounds the raw-response excerpt carried in parse errors.
const rawExcerptLen = 300

type Pipeline struct {
	LLM llm.Client

	AnalystModel    string
	JudgeModel      string
	SubjectiveModel string

	// SubjectiveAttempts is the Stage C budget: degenerate zero-score
	// results and exceptions both consume attempts.
	SubjectiveAttempts int
}

func (p *Pipeline) attempts() int {
	if p.SubjectiveAttempts > 0 {
		return p.SubjectiveAttempts
	}
	return 2
}

// Run executes Stage A -> B -> C for one unit. Stage A/B errors fail the
// unit outright; Stage C gets its retry budget, and a merely-degenerate
// zero-score result after the budget is delivered, not failed.
func (p *Pipeline) Run(ctx context.Context, u audit.Unit) *audit.Result {
	if u.VideoPath == "" {
		return audit.Failed(u, errors.New("no local media for unit"))
	}

	obs, err := p.stageA(ctx, u)
	if err != nil {
		return audit.Failed(u, fmt.Errorf("content analyst: %w", err))
	}

	judge, err := p.stageB(ctx, u, obs)
	if err != nil {
		res := audit.Failed(u, fmt.Errorf("judge: %w", err))
		res.Observation = obs
		return res
	}

	res := &audit.Result{
		Unit:           u,
		Observation:    obs,
		ObjectiveFlags: judge.Flags,
		Accuracy:       scoring.ComputeAccuracy(judge.Flags),
		Logic:          scoring.ComputeLogic(judge.Flags),
		VerifiedErrors: judge.VerifiedErrors,
	}

	subj, attempts, degraded, err := p.stageC(ctx, u, obs, res)
	res.SubjectiveAttempts = attempts
	if err != nil {
		res.Success = false
		res.Err = fmt.Sprintf("subjective simulation: %v", err)
		return res
	}

	res.SubjectiveFlags = subj.Flags
	res.StudentMonologue = subj.StudentMonologue
	res.Adaptability = scoring.ComputeAdaptability(subj.Flags)
	res.Engagement = scoring.ComputeEngagement(subj.Flags)
	res.Degraded = degraded
	if attempts > 1 {
		// Leave a trace in the trail so repeated attempts are auditable.
		res.Adaptability.Breakdown = append(res.Adaptability.Breakdown,
			scoring.Step{Label: fmt.Sprintf("subjective retry: accepted attempt %d", attempts)})
	}
	res.Success = true
	return res
}

// stageA watches the video and maps its content. The uploaded media is
// released on every exit path.
func (p *Pipeline) stageA(ctx context.Context, u audit.Unit) (*audit.ContentObservation, error) {
	media, err := p.LLM.Upload(ctx, u.VideoPath)
	if err != nil {
		return nil, err
	}
	defer p.LLM.Release(context.WithoutCancel(ctx), media)

	raw, err := p.LLM.Generate(ctx, llm.Request{
		Model:       p.AnalystModel,
		System:      audit.AnalystSystemInstruction,
		Prompt:      audit.AnalystPrompt(u.Title),
		Media:       media,
		Temperature: analystTemperature,
		JSONOutput:  true,
	})
	if err != nil {
		return nil, err
	}

	var obs audit.ContentObservation
	if err := util.DecodeLenient(raw, &obs); err != nil {
		return nil, fmt.Errorf("parse observation: %w (raw: %s)", err, util.Truncate(raw, rawExcerptLen))
	}
	return &obs, nil
}

// stageB judges the observation text-only and reports severity flags. The
// deterministic engine, not the model, turns flags into scores.
func (p *Pipeline) stageB(ctx context.Context, u audit.Unit, obs *audit.ContentObservation) (*audit.JudgeReport, error) {
	raw, err := p.LLM.Generate(ctx, llm.Request{
		Model:       p.JudgeModel,
		System:      audit.JudgeSystemInstruction,
		Prompt:      audit.JudgePrompt(u.Title, obs),
		Temperature: judgeTemperature,
		JSONOutput:  true,
	})
	if err != nil {
		return nil, err
	}

	var rep audit.JudgeReport
	if err := util.DecodeLenient(raw, &rep); err != nil {
		return nil, fmt.Errorf("parse judge report: %w (raw: %s)", err, util.Truncate(raw, rawExcerptLen))
	}
	return &rep, nil
}

// stageC simulates the persona. Each attempt uploads, generates, scores and
// validity-checks; a degenerate all-zero pair triggers one corrective
// retry, and the final attempt's result is delivered either way.
func (p *Pipeline) stageC(ctx context.Context, u audit.Unit, obs *audit.ContentObservation, objective *audit.Result) (rep *audit.SubjectiveReport, attempts int, degraded bool, err error) {
	max := p.attempts()
	prompt := audit.SubjectivePrompt(u.Persona, objective.Accuracy.Score, objective.Logic.Score, objective.VerifiedErrors, obs)

	var lastErr error
	var lastRep *audit.SubjectiveReport
	for attempt := 1; attempt <= max; attempt++ {
		attempts = attempt
		r, aerr := p.subjectiveAttempt(ctx, u, prompt)
		if aerr != nil {
			lastErr = aerr
			log.Printf("unit %d: subjective attempt %d/%d failed: %v", u.Index, attempt, max, aerr)
			continue
		}
		lastRep = r

		adapt := scoring.ComputeAdaptability(r.Flags)
		engage := scoring.ComputeEngagement(r.Flags)
		if scoring.SubjectiveValid(&adapt, &engage) {
			return r, attempt, false, nil
		}
		if attempt < max {
			log.Printf("unit %d: subjective attempt %d returned zero scores, retrying", u.Index, attempt)
			prompt += audit.SubjectiveRetryHint
		}
	}

	if lastRep != nil {
		// Zero scores after the full budget: degraded but delivered.
		log.Printf("unit %d: subjective scores still zero after %d attempts", u.Index, max)
		return lastRep, attempts, true, nil
	}
	return nil, attempts, false, lastErr
}

func (p *Pipeline) subjectiveAttempt(ctx context.Context, u audit.Unit, prompt string) (*audit.SubjectiveReport, error) {
	media, err := p.LLM.Upload(ctx, u.VideoPath)
	if err != nil {
		return nil, err
	}
	defer p.LLM.Release(context.WithoutCancel(ctx), media)

	raw, err := p.LLM.Generate(ctx, llm.Request{
		Model:       p.SubjectiveModel,
		System:      audit.SubjectiveSystemInstruction,
		Prompt:      prompt,
		Media:       media,
		Temperature: subjectiveTemperature,
		JSONOutput:  true,
	})
	if err != nil {
		return nil, err
	}

	var rep audit.SubjectiveReport
	if err := util.DecodeLenient(raw, &rep); err != nil {
		return nil, fmt.Errorf("parse subjective report: %w (raw: %s)", err, util.Truncate(raw, rawExcerptLen))
	}
	return &rep, nil
}
