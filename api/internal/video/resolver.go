// Package video acquires source media through yt-dlp. Resolution is
// idempotent: a video already on disk is returned without re-fetching, and
// concurrent requests for the same URL are collapsed into one download.
package video

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"
)

// runner executes an external command and returns its stdout. Swappable for
// tests.
type runner func(ctx context.Context, name string, args ...string) (string, error)

func execRun(ctx context.Context, name string, args ...string) (string, error) {
	var out, errb bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &errb
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(errb.String()))
	}
	return out.String(), nil
}

type Resolver struct {
	Dir string // download directory, created on demand

	run   runner
	group singleflight.Group
}

func NewResolver(dir string) *Resolver {
	return &Resolver{Dir: dir, run: execRun}
}

type resolved struct {
	id   string
	path string
}

// Resolve maps a URL to a (video id, local path) pair, downloading at most
// once per id no matter how many units reference the same source.
func (r *Resolver) Resolve(ctx context.Context, url string) (string, string, error) {
	v, err, _ := r.group.Do(url, func() (any, error) {
		return r.resolve(ctx, url)
	})
	if err != nil {
		return "", "", err
	}
	res := v.(resolved)
	return res.id, res.path, nil
}

func (r *Resolver) resolve(ctx context.Context, url string) (resolved, error) {
	out, err := r.run(ctx, "yt-dlp", "--get-id", url)
	if err != nil {
		return resolved{}, fmt.Errorf("resolve id for %s: %w", url, err)
	}
	id := strings.TrimSpace(out)
	if id == "" {
		return resolved{}, fmt.Errorf("resolve id for %s: empty video id", url)
	}

	path := filepath.Join(r.Dir, id+".mp4")
	if _, err := os.Stat(path); err == nil {
		return resolved{id: id, path: path}, nil
	}

	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return resolved{}, fmt.Errorf("download dir: %w", err)
	}
	tmpl := filepath.Join(r.Dir, "%(id)s.%(ext)s")
	// 720p cap keeps uploads small without hurting legibility of slides
	if _, err := r.run(ctx, "yt-dlp",
		"-f", "best[height<=720][ext=mp4]",
		"--output", tmpl,
		url,
	); err != nil {
		return resolved{}, fmt.Errorf("download %s: %w", url, err)
	}
	if _, err := os.Stat(path); err != nil {
		return resolved{}, fmt.Errorf("download %s: file missing after yt-dlp: %w", url, err)
	}
	return resolved{id: id, path: path}, nil
}

// Cleanup removes downloaded media. Best effort.
func (r *Resolver) Cleanup(paths []string) {
	seen := map[string]bool{}
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Printf("cleanup %s: %v", p, err)
		}
	}
}
