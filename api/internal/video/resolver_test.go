package video

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeYTDLP answers --get-id with a fixed id and materializes the file on
// download, counting how often each happens.
type fakeYTDLP struct {
	dir       string
	id        string
	idCalls   atomic.Int32
	downloads atomic.Int32
	failID    bool
}

func (f *fakeYTDLP) run(_ context.Context, name string, args ...string) (string, error) {
	if name != "yt-dlp" {
		return "", errors.New("unexpected command " + name)
	}
	if len(args) > 0 && args[0] == "--get-id" {
		f.idCalls.Add(1)
		if f.failID {
			return "", errors.New("video unavailable")
		}
		return f.id + "\n", nil
	}
	f.downloads.Add(1)
	return "", os.WriteFile(filepath.Join(f.dir, f.id+".mp4"), []byte("media"), 0o644)
}

func newTestResolver(t *testing.T, fake *fakeYTDLP) *Resolver {
	t.Helper()
	r := NewResolver(fake.dir)
	r.run = fake.run
	return r
}

func TestResolveDownloadsOnce(t *testing.T) {
	fake := &fakeYTDLP{dir: t.TempDir(), id: "abc123"}
	r := newTestResolver(t, fake)

	id, path, err := r.Resolve(context.Background(), "https://example.com/watch?v=abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)
	assert.Equal(t, filepath.Join(fake.dir, "abc123.mp4"), path)
	assert.FileExists(t, path)
	assert.Equal(t, int32(1), fake.downloads.Load())

	// second resolve finds the file on disk and skips the download
	_, path2, err := r.Resolve(context.Background(), "https://example.com/watch?v=abc123")
	require.NoError(t, err)
	assert.Equal(t, path, path2)
	assert.Equal(t, int32(1), fake.downloads.Load())
}

func TestResolveCollapsesConcurrentRequests(t *testing.T) {
	fake := &fakeYTDLP{dir: t.TempDir(), id: "xyz789"}
	r := newTestResolver(t, fake)

	const n = 8
	var wg sync.WaitGroup
	paths := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, p, err := r.Resolve(context.Background(), "https://example.com/same")
			assert.NoError(t, err)
			paths[i] = p
		}(i)
	}
	wg.Wait()

	for _, p := range paths {
		assert.Equal(t, paths[0], p)
	}
	assert.Equal(t, int32(1), fake.downloads.Load(), "one download for one URL, regardless of fan-in")
}

func TestResolveIDFailure(t *testing.T) {
	fake := &fakeYTDLP{dir: t.TempDir(), id: "whatever", failID: true}
	r := newTestResolver(t, fake)

	_, _, err := r.Resolve(context.Background(), "https://example.com/broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "video unavailable")
	assert.Zero(t, fake.downloads.Load())
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.mp4")
	require.NoError(t, os.WriteFile(p1, []byte("x"), 0o644))

	r := NewResolver(dir)
	r.Cleanup([]string{p1, p1, "", filepath.Join(dir, "never-existed.mp4")})
	assert.NoFileExists(t, p1)
}
