// Package pipeline orchestrates caption extraction for one meeting: resolve
// the playlist, sample and fetch segments, assemble them, run the extraction
// strategy chain, and report how much of the meeting the captions cover.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/heyjunin/hlscaps/pkg/assembler"
	"github.com/heyjunin/hlscaps/pkg/errors"
	"github.com/heyjunin/hlscaps/pkg/extractor"
	"github.com/heyjunin/hlscaps/pkg/fetcher"
	"github.com/heyjunin/hlscaps/pkg/logger"
	"github.com/heyjunin/hlscaps/pkg/manifest"
	"github.com/heyjunin/hlscaps/pkg/meetings"
	"github.com/heyjunin/hlscaps/pkg/progress"
	"github.com/heyjunin/hlscaps/pkg/sampler"
	"github.com/heyjunin/hlscaps/pkg/subtitles"
)

// Options contains settings for the Pipeline.
type Options struct {
	// Output options
	OutputDir   string // per-meeting caption directories live under here
	ScratchRoot string // scratch runs live under here; system temp dir when empty
	Force       bool   // reprocess even when a valid caption file already exists

	// Sampling options
	Policy          sampler.Policy // which segments to fetch; everything when zero
	MinCaptionBytes int64          // smallest caption file counted as valid

	// Track selection
	Language     string // preferred subtitle track language
	DirectStream bool   // run strategies against the manifest URL, no segment downloads

	// Fetch options
	Client       *http.Client
	UserAgent    string
	FetchTimeout time.Duration
	SkipFailed   bool

	// Strategies are the extraction attempts, in order. Required.
	Strategies []extractor.Strategy

	// Progress receives per-segment fetch updates. Optional.
	Progress progress.Reporter
}

// Result describes one meeting's pipeline run.
type Result struct {
	MeetingID   string
	CaptionPath string
	SidecarPath string

	// ByteSize is the caption artifact size in bytes.
	ByteSize int64
	// Cues and LastTimestampSeconds come from analyzing the caption timings.
	Cues                 int
	LastTimestampSeconds float64
	// Strategy names the extraction strategy that produced the artifact.
	Strategy string

	// Track is the chosen subtitle track key, empty when the video variant
	// was used.
	Track           string
	SegmentsTotal   int
	SegmentsFetched int
	SampleStride    int
	SampleCap       int

	// Skipped is true when a valid artifact already existed and nothing ran.
	Skipped bool
}

// Pipeline extracts captions for meetings.
// Create instances using New().
type Pipeline struct {
	options  Options
	resolver *manifest.Resolver
	fetcher  *fetcher.Fetcher
	extr     *extractor.Extractor
	log      logger.Logger
}

// New creates a new Pipeline with default dependencies.
func New(options Options) (*Pipeline, error) {
	return NewWithDeps(options, nil, nil)
}

// NewWithDeps creates a new Pipeline with a custom resolver and logger.
func NewWithDeps(options Options, resolver *manifest.Resolver, log logger.Logger) (*Pipeline, error) {
	// Set defaults if not specified
	if options.OutputDir == "" {
		options.OutputDir = "captions"
	}
	if options.ScratchRoot == "" {
		options.ScratchRoot = os.TempDir()
	}
	if options.Policy.Stride == 0 {
		options.Policy.Stride = 1
	}
	if options.MinCaptionBytes <= 0 {
		options.MinCaptionBytes = extractor.DefaultMinOutputBytes
	}
	if log == nil {
		log = logger.NewLogger()
	}

	// Validate options
	if len(options.Strategies) == 0 {
		return nil, errors.New(errors.ValidationError, "at least one extraction strategy is required", "")
	}
	if options.Policy.IsAll() && options.SkipFailed {
		return nil, errors.New(errors.ValidationError,
			"skip-failed is not allowed when keeping every segment",
			"a complete archive must not have holes")
	}

	if resolver == nil {
		resolver = manifest.New(manifest.Options{
			Client:    options.Client,
			UserAgent: options.UserAgent,
			Logger:    log,
		})
	}

	f := fetcher.New(fetcher.Options{
		Client:     options.Client,
		UserAgent:  options.UserAgent,
		Timeout:    options.FetchTimeout,
		SkipFailed: options.SkipFailed,
		Progress:   options.Progress,
		Logger:     log,
	})

	ex, err := extractor.New(extractor.Options{
		Strategies:     options.Strategies,
		MinOutputBytes: options.MinCaptionBytes,
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		options:  options,
		resolver: resolver,
		fetcher:  f,
		extr:     ex,
		log:      log,
	}, nil
}

// Run extracts captions for one meeting. A meeting whose caption file already
// exists above the validity threshold is skipped without any network call or
// scratch directory. The scratch directory for a live run is removed on every
// exit path.
func (p *Pipeline) Run(ctx context.Context, m meetings.Meeting) (*Result, error) {
	if m.ID == "" {
		return nil, errors.New(errors.ValidationError, "meeting id is required", "")
	}
	if m.ManifestURL == "" {
		return nil, errors.New(errors.ValidationError, "meeting manifest URL is required", m.ID)
	}

	meetingDir := filepath.Join(p.options.OutputDir, sanitizeID(m.ID))
	captionPath := filepath.Join(meetingDir, "captions.srt")

	if !p.options.Force {
		if info, err := os.Stat(captionPath); err == nil && info.Size() >= p.options.MinCaptionBytes {
			report, _ := subtitles.Analyze(captionPath)
			p.log.Info("Captions already extracted", "pipeline", map[string]interface{}{
				"meeting": m.ID,
				"path":    captionPath,
				"size":    info.Size(),
			})
			return &Result{
				MeetingID:            m.ID,
				CaptionPath:          captionPath,
				ByteSize:             info.Size(),
				Cues:                 report.Cues,
				LastTimestampSeconds: report.LastTimestamp,
				Skipped:              true,
			}, nil
		}
	}

	p.log.Info("Resolving manifest", "pipeline", map[string]interface{}{
		"meeting": m.ID,
		"url":     m.ManifestURL,
	})
	res, err := p.resolver.Resolve(ctx, m.ManifestURL)
	if err != nil {
		return nil, err
	}

	var target *manifest.Manifest
	track := ""
	if res.HasSubtitleTracks() {
		track, target = res.PickTrack(p.options.Language)
		p.log.Info("Using subtitle track", "pipeline", map[string]interface{}{
			"meeting": m.ID,
			"track":   track,
			"tracks":  res.TrackKeys(),
		})
	} else {
		target = res.Media
	}

	indices, err := p.options.Policy.Select(len(target.Segments))
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(meetingDir, 0755); err != nil {
		return nil, errors.Wrap(err, errors.SystemError, "failed to create output directory")
	}

	result := &Result{
		MeetingID:     m.ID,
		CaptionPath:   captionPath,
		SidecarPath:   filepath.Join(meetingDir, "captions.json"),
		Track:         track,
		SegmentsTotal: len(target.Segments),
		SampleStride:  p.options.Policy.Stride,
		SampleCap:     p.options.Policy.Cap,
	}

	in := extractor.Input{StreamURL: m.ManifestURL}
	if !p.options.DirectStream {
		runDir := filepath.Join(p.options.ScratchRoot,
			fmt.Sprintf("run-%s-%s", sanitizeID(m.ID), uuid.NewString()))
		if err := os.MkdirAll(runDir, 0755); err != nil {
			return nil, errors.Wrap(err, errors.SystemError, "failed to create scratch directory")
		}
		defer os.RemoveAll(runDir)

		fetched, err := p.fetcher.Fetch(ctx, filepath.Join(runDir, "segments"), target, indices)
		if err != nil {
			return nil, err
		}
		result.SegmentsFetched = len(fetched)

		paths := make([]string, len(fetched))
		for i, seg := range fetched {
			paths[i] = seg.Path
		}
		mediaPath := filepath.Join(runDir, "media"+filepath.Ext(paths[0]))
		if _, err := assembler.Assemble(mediaPath, assembler.FromPaths(paths)); err != nil {
			return nil, err
		}
		in.MediaPath = mediaPath
	}

	art, err := p.extr.Extract(ctx, in, captionPath)
	if err != nil {
		return nil, err
	}
	result.ByteSize = art.Size
	result.Strategy = art.Strategy

	report, err := subtitles.Analyze(captionPath)
	if err != nil {
		return nil, err
	}
	result.Cues = report.Cues
	result.LastTimestampSeconds = report.LastTimestamp

	if err := p.writeSidecar(result, m); err != nil {
		return nil, err
	}

	p.log.Info("Captions extracted", "pipeline", map[string]interface{}{
		"meeting":  m.ID,
		"path":     captionPath,
		"size":     result.ByteSize,
		"cues":     result.Cues,
		"covered":  subtitles.FormatSeconds(result.LastTimestampSeconds),
		"strategy": result.Strategy,
	})
	return result, nil
}

// sidecar is the metadata record written next to the caption file.
type sidecar struct {
	MeetingID            string  `json:"meeting_id"`
	ManifestURL          string  `json:"manifest_url"`
	Track                string  `json:"track,omitempty"`
	SampleStride         int     `json:"sample_stride"`
	SampleCap            int     `json:"sample_cap"`
	DirectStream         bool    `json:"direct_stream,omitempty"`
	SegmentsTotal        int     `json:"segments_total"`
	SegmentsFetched      int     `json:"segments_fetched"`
	ByteSize             int64   `json:"byte_size"`
	Cues                 int     `json:"cues"`
	LastTimestampSeconds float64 `json:"last_timestamp_seconds"`
	Strategy             string  `json:"strategy"`
	ExtractedAt          string  `json:"extracted_at"`
}

func (p *Pipeline) writeSidecar(r *Result, m meetings.Meeting) error {
	data, err := json.MarshalIndent(sidecar{
		MeetingID:            r.MeetingID,
		ManifestURL:          m.ManifestURL,
		Track:                r.Track,
		SampleStride:         r.SampleStride,
		SampleCap:            r.SampleCap,
		DirectStream:         p.options.DirectStream,
		SegmentsTotal:        r.SegmentsTotal,
		SegmentsFetched:      r.SegmentsFetched,
		ByteSize:             r.ByteSize,
		Cues:                 r.Cues,
		LastTimestampSeconds: r.LastTimestampSeconds,
		Strategy:             r.Strategy,
		ExtractedAt:          time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.SystemError, "failed to encode sidecar metadata")
	}
	if err := os.WriteFile(r.SidecarPath, data, 0644); err != nil {
		return errors.Wrap(err, errors.SystemError, "failed to write sidecar metadata")
	}
	return nil
}

var unsafeIDChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sanitizeID makes a meeting ID safe to use as a directory name.
func sanitizeID(id string) string {
	s := unsafeIDChars.ReplaceAllString(id, "-")
	if s == "" {
		return "meeting"
	}
	return s
}
