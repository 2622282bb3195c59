// Package fetcher downloads sampled media segments into a scratch directory.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/heyjunin/hlscaps/pkg/errors"
	"github.com/heyjunin/hlscaps/pkg/logger"
	"github.com/heyjunin/hlscaps/pkg/manifest"
	"github.com/heyjunin/hlscaps/pkg/progress"
)

// Options represents configuration options for the Fetcher.
type Options struct {
	// Client is the HTTP client used for segment requests. Timeouts are
	// applied per request, so the default client needs no timeout of its own.
	Client *http.Client
	// UserAgent is sent with every request when non-empty.
	UserAgent string
	// Timeout bounds each individual segment download.
	// Defaults to 30 seconds if not specified.
	Timeout time.Duration
	// SkipFailed, if true, logs failed segments and keeps going instead of
	// aborting. Only acceptable for sampled runs, where a hole in the
	// selection degrades coverage rather than corrupting a complete archive.
	SkipFailed bool
	// Progress is an optional progress.Reporter for per-segment updates.
	Progress progress.Reporter
	// Logger receives fetch events. Defaults to the package logger.
	Logger logger.Logger
}

// Fetched describes one segment written to the scratch directory.
type Fetched struct {
	// Index is the segment's index in the source playlist.
	Index int
	// Path is the local file the segment was written to.
	Path string
	// Size is the number of bytes written.
	Size int64
}

// Fetcher downloads playlist segments by index.
// Create instances using New().
type Fetcher struct {
	client  *http.Client
	options Options
	log     logger.Logger
}

// New creates a new Fetcher configured with the provided options.
// It sets a default per-segment timeout of 30 seconds if Options.Timeout is zero.
func New(options Options) *Fetcher {
	if options.Timeout == 0 {
		options.Timeout = 30 * time.Second
	}
	client := options.Client
	if client == nil {
		client = &http.Client{}
	}
	log := options.Logger
	if log == nil {
		log = logger.NewLogger()
	}
	return &Fetcher{
		client:  client,
		options: options,
		log:     log,
	}
}

// Fetch downloads the segments at the given playlist indices into dir, in
// the order given. Files are named by zero-padded index so that
// lexicographic order equals playlist order. Each request runs under its own
// timeout and there is no retry: a failure either aborts (default) or, with
// SkipFailed, drops that segment from the result. Re-invoking Fetch
// overwrites the same paths, so a retried run needs no cleanup.
func (f *Fetcher) Fetch(ctx context.Context, dir string, m *manifest.Manifest, indices []int) ([]Fetched, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, errors.SystemError, "failed to create segment directory")
	}

	if f.options.Progress != nil {
		f.options.Progress.Start(int64(len(indices)))
		defer f.options.Progress.Complete()
	}

	f.log.Info("Fetching segments", "fetcher", map[string]interface{}{
		"playlist": m.URL,
		"count":    len(indices),
		"total":    len(m.Segments),
	})

	fetched := make([]Fetched, 0, len(indices))
	skipped := 0
	for _, idx := range indices {
		if err := ctx.Err(); err != nil {
			return fetched, errors.Wrap(err, errors.SystemError, "segment fetch canceled")
		}
		if idx < 0 || idx >= len(m.Segments) {
			return fetched, errors.New(errors.ValidationError, "segment index out of range",
				fmt.Sprintf("index %d, playlist has %d segments", idx, len(m.Segments)))
		}

		seg := m.Segments[idx]
		dest := filepath.Join(dir, SegmentFileName(idx, seg.URI))
		size, err := f.fetchOne(ctx, seg, dest)
		if err != nil {
			if f.options.SkipFailed && errors.Is(err, errors.SegmentFetchError) {
				skipped++
				f.log.Warn("Skipping failed segment", "fetcher", map[string]interface{}{
					"index": idx,
					"error": err.Error(),
				})
				if f.options.Progress != nil {
					f.options.Progress.Increment("fetching", fmt.Sprintf("Segment %d failed", idx))
				}
				continue
			}
			return fetched, err
		}

		fetched = append(fetched, Fetched{Index: idx, Path: dest, Size: size})
		if f.options.Progress != nil {
			f.options.Progress.Increment("fetching", fmt.Sprintf("Segment %d", idx))
		}
	}

	if len(fetched) == 0 {
		return nil, errors.New(errors.SegmentFetchError, "no segments fetched",
			fmt.Sprintf("all %d sampled segments failed", len(indices)))
	}

	f.log.Info("Segments fetched", "fetcher", map[string]interface{}{
		"fetched": len(fetched),
		"skipped": skipped,
	})
	return fetched, nil
}

// fetchOne downloads a single segment to dest, streaming the body to disk.
func (f *Fetcher) fetchOne(ctx context.Context, seg manifest.Segment, dest string) (int64, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.options.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, seg.URI, nil)
	if err != nil {
		return 0, errors.Wrap(err, errors.ValidationError, "failed to create segment request")
	}
	if f.options.UserAgent != "" {
		req.Header.Set("User-Agent", f.options.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, errors.NewSegmentFetch(seg.Index, 0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, errors.NewSegmentFetch(seg.Index, resp.StatusCode,
			fmt.Sprintf("GET %s: %s", seg.URI, resp.Status))
	}

	file, err := os.Create(dest)
	if err != nil {
		return 0, errors.Wrap(err, errors.SystemError, "failed to create segment file")
	}
	defer file.Close()

	n, err := io.Copy(file, resp.Body)
	if err != nil {
		return 0, errors.NewSegmentFetch(seg.Index, resp.StatusCode, err.Error())
	}
	return n, nil
}

// SegmentFileName builds the local name for a segment: a zero-padded index
// plus the extension of the source URI (default ".ts"). The padding keeps
// lexicographic directory order equal to playlist order for playlists well
// past the usual six to eight thousand segments.
func SegmentFileName(index int, uri string) string {
	ext := ".ts"
	if u, err := url.Parse(uri); err == nil {
		if e := path.Ext(u.Path); e != "" {
			ext = e
		}
	}
	return fmt.Sprintf("seg-%06d%s", index, ext)
}
