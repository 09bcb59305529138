package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"video-auditor/api/internal/llm"
	"video-auditor/api/internal/util"
)

// Engine talks to Gemini. One client is shared by generation and the file
// store so uploaded handles stay valid across calls.
type Engine struct {
	cl *genai.Client

	// MediaReadyTimeout bounds the upload poll loop. The file store can sit
	// in PROCESSING indefinitely; a unit must fail instead of hanging.
	MediaReadyTimeout time.Duration
	PollInterval      time.Duration

	// API seams, swappable for tests.
	model   func(name string) *genai.GenerativeModel
	call    func(ctx context.Context, m *genai.GenerativeModel, parts ...genai.Part) (*genai.GenerateContentResponse, error)
	upload  func(ctx context.Context, path string, opts *genai.UploadFileOptions) (*genai.File, error)
	getFile func(ctx context.Context, name string) (*genai.File, error)
	remove  func(ctx context.Context, name string) error
	sleep   func(d time.Duration)
}

func New(ctx context.Context, apiKey string) (*Engine, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(strings.TrimSpace(apiKey)))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Engine{
		cl:                cl,
		MediaReadyTimeout: 5 * time.Minute,
		PollInterval:      2 * time.Second,
		model:             cl.GenerativeModel,
		call: func(ctx context.Context, m *genai.GenerativeModel, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
			return m.GenerateContent(ctx, parts...)
		},
		upload:  cl.UploadFileFromPath,
		getFile: cl.GetFile,
		remove:  cl.DeleteFile,
		sleep:   time.Sleep,
	}, nil
}

func (e *Engine) Close() error { return e.cl.Close() }

// Generate runs one generation call. Transient transport errors are retried
// up to 3 times with linear backoff; the response text is returned raw and
// left for the caller's lenient extraction.
func (e *Engine) Generate(ctx context.Context, req llm.Request) (string, error) {
	m := e.model(strings.TrimSpace(req.Model))
	if m == nil {
		return "", fmt.Errorf("gemini: model is nil")
	}
	cfg := genai.GenerationConfig{Temperature: ptrFloat32(req.Temperature)}
	if req.JSONOutput {
		cfg.ResponseMIMEType = "application/json"
	}
	m.GenerationConfig = cfg
	if req.System != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	parts := []genai.Part{}
	if req.Media != nil {
		parts = append(parts, genai.FileData{MIMEType: req.Media.MIMEType, URI: req.Media.URI})
	}
	parts = append(parts, genai.Text(req.Prompt))

	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := e.call(ctx, m, parts...)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if attempt < maxAttempts {
				e.sleep(time.Duration(attempt) * 300 * time.Millisecond)
			}
			continue
		}
		txt := firstText(resp)
		if txt == "" {
			return "", util.ErrEmptyResponse
		}
		return txt, nil
	}
	return "", lastErr
}

// Upload pushes a local media file to the Gemini file store and waits for it
// to become ACTIVE. On any failure after the upload succeeded (poll error,
// FAILED state, deadline overrun, cancellation) the handle is released
// before returning, so no exit path leaks remote storage.
func (e *Engine) Upload(ctx context.Context, path string) (*llm.MediaHandle, error) {
	mime := util.VideoMIMEForPath(path)
	f, err := e.upload(ctx, path, &genai.UploadFileOptions{MIMEType: mime})
	if err != nil {
		return nil, fmt.Errorf("gemini upload: %w", err)
	}

	name := f.Name
	deadline := time.Now().Add(e.MediaReadyTimeout)
	for f.State == genai.FileStateProcessing {
		if time.Now().After(deadline) {
			e.Release(ctx, &llm.MediaHandle{Name: name})
			return nil, fmt.Errorf("gemini upload %s: %w", name, llm.ErrMediaTimeout)
		}
		select {
		case <-ctx.Done():
			e.Release(context.WithoutCancel(ctx), &llm.MediaHandle{Name: name})
			return nil, ctx.Err()
		case <-time.After(e.PollInterval):
		}
		f, err = e.getFile(ctx, name)
		if err != nil {
			e.Release(context.WithoutCancel(ctx), &llm.MediaHandle{Name: name})
			return nil, fmt.Errorf("gemini poll %s: %w", path, err)
		}
	}
	if f.State == genai.FileStateFailed {
		e.Release(ctx, &llm.MediaHandle{Name: name})
		return nil, fmt.Errorf("gemini upload %s: processing failed", path)
	}
	return &llm.MediaHandle{Name: name, URI: f.URI, MIMEType: mime}, nil
}

// Release deletes uploaded media. Best effort: a delete failure only logs.
func (e *Engine) Release(ctx context.Context, h *llm.MediaHandle) {
	if h == nil || h.Name == "" {
		return
	}
	if err := e.remove(ctx, h.Name); err != nil {
		log.Printf("gemini: release %s: %v", h.Name, err)
	}
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
