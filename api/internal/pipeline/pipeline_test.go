package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-auditor/api/internal/audit"
	"video-auditor/api/internal/llm"
)

const (
	analystJSON = `{"video_title": "Photosynthesis",
		"content_map": [{"timestamp": "00:10", "topic": "chlorophyll", "detail_level": "Explained", "description": "pigment role"}],
		"potential_issues": [],
		"observation_summary": "covers the basics"}`

	judgeJSON = `{"flags": {"formula_dumping": 0, "pure_calc_bias": 0, "depth_gap": 1,
		"critical_error_count": 1, "logic_flow": "concept_first"},
		"verified_errors": [{"timestamp": "01:20", "type": "accuracy", "severity": "minor", "description": "unit slip"}],
		"scoring_rationale": "one verified slip"}`

	subjectiveJSON = `{"flags": {"jargon_overload": 1, "pacing_mismatch": 2},
		"student_monologue": "the middle section lost me"}`

	zeroSubjectiveJSON = `{"flags": {"jargon_overload": 3, "prerequisite_gap": 3, "pacing_mismatch": 3,
		"missing_scaffolding": 3, "visual_accessibility": 3, "monotone_audio": 3,
		"ai_generated_fatigue": 3, "visual_clutter": 3, "audio_visual_disconnect": 3},
		"student_monologue": "everything is wrong"}`
)

// fakeLLM scripts stage responses and records upload/release balance.
type fakeLLM struct {
	mu       sync.Mutex
	uploads  atomic.Int32
	releases atomic.Int32

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	// generate picks a response for one call; call counters are per stage.
	generate func(f *fakeLLM, req llm.Request, call int) (string, error)
	calls    map[string]int

	prompts []llm.Request
}

func newFakeLLM(gen func(f *fakeLLM, req llm.Request, call int) (string, error)) *fakeLLM {
	return &fakeLLM{generate: gen, calls: map[string]int{}}
}

func stageOf(req llm.Request) string {
	switch {
	case req.Media == nil:
		return "judge"
	case strings.Contains(req.System, "CONTENT ANALYST"):
		return "analyst"
	default:
		return "subjective"
	}
}

func (f *fakeLLM) Generate(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.calls[stageOf(req)]++
	call := f.calls[stageOf(req)]
	f.prompts = append(f.prompts, req)
	f.mu.Unlock()
	return f.generate(f, req, call)
}

func (f *fakeLLM) Upload(ctx context.Context, path string) (*llm.MediaHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.uploads.Add(1)
	n := f.inFlight.Add(1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	return &llm.MediaHandle{Name: "files/" + path, URI: "uri://" + path, MIMEType: "video/mp4"}, nil
}

func (f *fakeLLM) Release(_ context.Context, h *llm.MediaHandle) {
	if h == nil || h.Name == "" {
		return
	}
	f.inFlight.Add(-1)
	f.releases.Add(1)
}

func happyGenerate(_ *fakeLLM, req llm.Request, _ int) (string, error) {
	switch stageOf(req) {
	case "analyst":
		return analystJSON, nil
	case "judge":
		return judgeJSON, nil
	default:
		return subjectiveJSON, nil
	}
}

func testUnit(i int) audit.Unit {
	return audit.Unit{
		Index:     i,
		VideoURL:  fmt.Sprintf("https://example.com/v/%d", i),
		VideoPath: fmt.Sprintf("/tmp/video_%d.mp4", i),
		Title:     "Photosynthesis",
		Persona:   "a 15-year-old who has not taken biology yet",
		Run:       1,
	}
}

func testPipeline(f *fakeLLM) *Pipeline {
	return &Pipeline{
		LLM:             f,
		AnalystModel:    "model-a",
		JudgeModel:      "model-b",
		SubjectiveModel: "model-c",
	}
}

func TestRunHappyPath(t *testing.T) {
	f := newFakeLLM(happyGenerate)
	res := testPipeline(f).Run(context.Background(), testUnit(1))

	require.True(t, res.Success, "err: %s", res.Err)
	assert.Equal(t, 1, res.SubjectiveAttempts)
	assert.False(t, res.Degraded)

	// depth_gap 1 (0.2) + one critical error (0.5)
	assert.InDelta(t, 4.3, res.Accuracy.Score, 1e-9)
	// depth_gap only
	assert.InDelta(t, 4.8, res.Logic.Score, 1e-9)
	// jargon 1 (0.3) + pacing 2 (0.6)
	assert.InDelta(t, 4.1, res.Adaptability.Score, 1e-9)
	assert.Equal(t, 5.0, res.Engagement.Score)

	assert.Equal(t, "the middle section lost me", res.StudentMonologue)
	require.Len(t, res.VerifiedErrors, 1)
	assert.Equal(t, "01:20", res.VerifiedErrors[0].Timestamp)

	assert.Equal(t, f.uploads.Load(), f.releases.Load(), "every upload must be released")
}

func TestRunRequiresLocalMedia(t *testing.T) {
	f := newFakeLLM(happyGenerate)
	u := testUnit(1)
	u.VideoPath = ""

	res := testPipeline(f).Run(context.Background(), u)
	assert.False(t, res.Success)
	assert.Zero(t, f.uploads.Load())
}

func TestStageAFailureIsolatesUnit(t *testing.T) {
	// unit 3's analyst call always breaks; siblings must be untouched
	var failures atomic.Int32
	f := newFakeLLM(func(_ *fakeLLM, req llm.Request, _ int) (string, error) {
		if stageOf(req) == "analyst" && strings.Contains(req.Media.Name, "video_3") {
			failures.Add(1)
			return "", errors.New("model unavailable")
		}
		return happyGenerate(nil, req, 0)
	})

	coord := NewCoordinator(testPipeline(f), 3)
	units := make([]audit.Unit, 5)
	for i := range units {
		units[i] = testUnit(i + 1)
	}

	results := coord.RunAll(context.Background(), units)
	require.Len(t, results, 5)

	var ok, failed int
	for i, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, i+1, res.Unit.Index, "results keep dispatch order")
		if res.Success {
			ok++
		} else {
			failed++
			assert.Contains(t, res.Err, "content analyst:")
			assert.Contains(t, res.Err, "model unavailable")
		}
	}
	assert.Equal(t, 4, ok)
	assert.Equal(t, 1, failed)
	assert.Equal(t, f.uploads.Load(), f.releases.Load())
}

func TestStageBParseFailureKeepsObservation(t *testing.T) {
	f := newFakeLLM(func(_ *fakeLLM, req llm.Request, _ int) (string, error) {
		if stageOf(req) == "judge" {
			return "I am not JSON today", nil
		}
		return happyGenerate(nil, req, 0)
	})

	res := testPipeline(f).Run(context.Background(), testUnit(1))
	assert.False(t, res.Success)
	assert.Contains(t, res.Err, "judge:")
	assert.NotNil(t, res.Observation, "the analyst output survives a judge failure")
}

func TestSubjectiveRetryOnZeroScores(t *testing.T) {
	f := newFakeLLM(func(_ *fakeLLM, req llm.Request, call int) (string, error) {
		if stageOf(req) == "subjective" && call == 1 {
			return zeroSubjectiveJSON, nil
		}
		return happyGenerate(nil, req, 0)
	})

	res := testPipeline(f).Run(context.Background(), testUnit(1))
	require.True(t, res.Success)
	assert.Equal(t, 2, res.SubjectiveAttempts)
	assert.False(t, res.Degraded)
	assert.InDelta(t, 4.1, res.Adaptability.Score, 1e-9, "the accepted attempt's flags win")

	// the retry prompt must carry the corrective hint
	var retryPrompt string
	f.mu.Lock()
	for _, req := range f.prompts {
		if stageOf(req) == "subjective" {
			retryPrompt = req.Prompt
		}
	}
	f.mu.Unlock()
	assert.Contains(t, retryPrompt, "previous flag report was degenerate")

	var trail []string
	for _, s := range res.Adaptability.Breakdown {
		trail = append(trail, s.Label)
	}
	assert.Contains(t, trail, "subjective retry: accepted attempt 2")
	assert.Equal(t, f.uploads.Load(), f.releases.Load())
}

func TestSubjectiveDegradedAfterBudget(t *testing.T) {
	f := newFakeLLM(func(_ *fakeLLM, req llm.Request, _ int) (string, error) {
		if stageOf(req) == "subjective" {
			return zeroSubjectiveJSON, nil
		}
		return happyGenerate(nil, req, 0)
	})

	res := testPipeline(f).Run(context.Background(), testUnit(1))
	require.True(t, res.Success, "persistent zeros degrade, they do not fail")
	assert.True(t, res.Degraded)
	assert.Equal(t, 2, res.SubjectiveAttempts)
	assert.Equal(t, 0.0, res.Adaptability.Score)
	assert.Equal(t, 0.0, res.Engagement.Score)
}

func TestSubjectiveErrorBudgetExhausted(t *testing.T) {
	f := newFakeLLM(func(_ *fakeLLM, req llm.Request, _ int) (string, error) {
		if stageOf(req) == "subjective" {
			return "", errors.New("simulation unavailable")
		}
		return happyGenerate(nil, req, 0)
	})

	res := testPipeline(f).Run(context.Background(), testUnit(1))
	assert.False(t, res.Success)
	assert.Contains(t, res.Err, "subjective simulation:")
	assert.Equal(t, 2, res.SubjectiveAttempts)

	// objective results computed before the failure are preserved
	assert.InDelta(t, 4.3, res.Accuracy.Score, 1e-9)
	assert.Equal(t, f.uploads.Load(), f.releases.Load())
}

func TestSubjectiveErrorThenSuccess(t *testing.T) {
	f := newFakeLLM(func(_ *fakeLLM, req llm.Request, call int) (string, error) {
		if stageOf(req) == "subjective" && call == 1 {
			return "", errors.New("transient")
		}
		return happyGenerate(nil, req, 0)
	})

	res := testPipeline(f).Run(context.Background(), testUnit(1))
	require.True(t, res.Success)
	assert.Equal(t, 2, res.SubjectiveAttempts)
	assert.False(t, res.Degraded)
}

func TestConcurrencyBound(t *testing.T) {
	f := newFakeLLM(happyGenerate)
	coord := NewCoordinator(testPipeline(f), 3)

	units := make([]audit.Unit, 12)
	for i := range units {
		units[i] = testUnit(i + 1)
	}
	results := coord.RunAll(context.Background(), units)

	for _, res := range results {
		require.NotNil(t, res)
		assert.True(t, res.Success)
	}
	assert.LessOrEqual(t, f.maxInFlight.Load(), int32(3), "admission cap must bound in-flight media")
}

func TestRunAllCancelledContext(t *testing.T) {
	f := newFakeLLM(happyGenerate)
	coord := NewCoordinator(testPipeline(f), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := coord.RunAll(ctx, []audit.Unit{testUnit(1), testUnit(2)})
	for _, res := range results {
		require.NotNil(t, res)
		assert.False(t, res.Success)
	}
}
