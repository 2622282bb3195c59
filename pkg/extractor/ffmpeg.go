package extractor

import (
	"context"
	"strings"
	"time"

	"github.com/heyjunin/hlscaps/pkg/errors"
)

// ffmpegStrategy runs one fixed ffmpeg invocation shape. The args builder is
// kept separate from execution so invocations can be asserted exactly in
// tests.
type ffmpegStrategy struct {
	name    string
	tool    Tool
	timeout time.Duration
	args    func(source, outPath string) []string
	// urlOK marks strategies whose invocation also works on a remote URL,
	// used when no local media file was assembled.
	urlOK bool
}

func (f *ffmpegStrategy) Name() string { return f.name }

func (f *ffmpegStrategy) Extract(ctx context.Context, in Input, outPath string) error {
	source := in.MediaPath
	if source == "" {
		if !f.urlOK || in.StreamURL == "" {
			return errors.New(errors.ValidationError, f.name+" needs a media file", "")
		}
		source = in.StreamURL
	}
	return f.tool.run(ctx, f.timeout, f.args(source, outPath))
}

// NewClosedCaptionDemux extracts CEA-608/708 closed captions embedded in the
// video stream, the common case for broadcast-style government encoders. It
// reads the media through the lavfi movie filter so the [out0+subcc] pad
// exposes the caption track as a subtitle stream.
func NewClosedCaptionDemux(tool Tool, timeout time.Duration) Strategy {
	return &ffmpegStrategy{
		name:    "cc-demux",
		tool:    tool,
		timeout: timeout,
		args:    ccDemuxArgs,
		urlOK:   true,
	}
}

// NewSubtitleRemux copies an already-demuxed subtitle stream out of the media
// container, for recordings that carry captions as a separate track.
func NewSubtitleRemux(tool Tool, timeout time.Duration) Strategy {
	return &ffmpegStrategy{
		name:    "sub-remux",
		tool:    tool,
		timeout: timeout,
		args:    subtitleRemuxArgs,
	}
}

// NewSubtitleConvert converts a standalone subtitle document (for example a
// WebVTT playlist download) into SRT.
func NewSubtitleConvert(tool Tool, timeout time.Duration) Strategy {
	return &ffmpegStrategy{
		name:    "sub-convert",
		tool:    tool,
		timeout: timeout,
		args:    subtitleConvertArgs,
		urlOK:   true,
	}
}

func ccDemuxArgs(source, outPath string) []string {
	return []string{
		"-y", "-hide_banner",
		"-f", "lavfi",
		"-i", "movie=" + escapeFilterPath(source) + "[out0+subcc]",
		"-map", "0:s:0",
		"-f", "srt",
		outPath,
	}
}

func subtitleRemuxArgs(source, outPath string) []string {
	return []string{
		"-y", "-hide_banner",
		"-i", source,
		"-map", "0:s:0",
		"-f", "srt",
		outPath,
	}
}

func subtitleConvertArgs(source, outPath string) []string {
	return []string{
		"-y", "-hide_banner",
		"-i", source,
		"-f", "srt",
		outPath,
	}
}

// escapeFilterPath escapes a path for use inside a filtergraph description,
// where backslashes and colons are syntax.
func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, `\`, `\\`)
	p = strings.ReplaceAll(p, `:`, `\:`)
	return p
}
