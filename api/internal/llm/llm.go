// Package llm defines the boundary to the generative-model collaborator.
// Everything a model returns is untrusted input; callers run it through the
// lenient extraction in util before believing any of it.
package llm

import (
	"context"
	"errors"
)

// MediaHandle references media uploaded to the provider's file store.
type MediaHandle struct {
	Name     string // provider resource name, used for release
	URI      string // reference passed back into generation
	MIMEType string
}

// Request is one generation call. Media is optional (judge calls are
// text-only).
type Request struct {
	Model       string
	System      string
	Prompt      string
	Media       *MediaHandle
	Temperature float32
	JSONOutput  bool
}

// ErrMediaTimeout marks an upload that never left the provider's
// processing state within the configured deadline.
var ErrMediaTimeout = errors.New("media processing timeout")

// Client is the model collaborator.
//
// Upload must be paired with Release on every exit path; a leaked handle is
// leaked remote storage. Release is best-effort and safe on nil.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
	Upload(ctx context.Context, path string) (*MediaHandle, error)
	Release(ctx context.Context, h *MediaHandle)
}
