package extractor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/heyjunin/hlscaps/pkg/errors"
)

// ytdlpSubs asks yt-dlp for the platform's own subtitle tracks, preferring
// manually authored ones over auto-generated captions. It never downloads
// media, only subtitle files, so it is cheap to try late in the chain.
type ytdlpSubs struct {
	tool    Tool
	lang    string
	timeout time.Duration
}

// NewYtDlpSubtitles builds the yt-dlp fallback strategy. lang defaults to
// "en" when empty.
func NewYtDlpSubtitles(tool Tool, lang string, timeout time.Duration) Strategy {
	if lang == "" {
		lang = "en"
	}
	return &ytdlpSubs{tool: tool, lang: lang, timeout: timeout}
}

func (s *ytdlpSubs) Name() string { return "ytdlp-subs" }

func (s *ytdlpSubs) Extract(ctx context.Context, in Input, outPath string) error {
	if in.StreamURL == "" {
		return errors.New(errors.ValidationError, "ytdlp-subs needs a stream URL", "")
	}

	tmpDir, err := os.MkdirTemp("", "hlscaps-ytdlp-")
	if err != nil {
		return errors.Wrap(err, errors.SystemError, "failed to create subtitle temp dir")
	}
	defer os.RemoveAll(tmpDir)

	if err := s.tool.run(ctx, s.timeout, ytdlpArgs(in.StreamURL, s.lang, tmpDir)); err != nil {
		return err
	}

	found, err := findSubtitleFile(tmpDir)
	if err != nil {
		return err
	}
	return moveFile(found, outPath)
}

// ytdlpArgs builds the yt-dlp invocation: subtitles only, no media download,
// converted to SRT so downstream analysis sees a single format.
func ytdlpArgs(streamURL, lang, tmpDir string) []string {
	return []string{
		"--write-sub",
		"--write-auto-sub",
		"--sub-lang", lang,
		"--skip-download",
		"--convert-subs", "srt",
		"--no-warnings",
		"-o", filepath.Join(tmpDir, "%(id)s"),
		streamURL,
	}
}

// findSubtitleFile picks the subtitle file yt-dlp wrote. Converted .srt wins
// over raw .vtt; names are sorted so the pick is deterministic when a page
// exposes several tracks.
func findSubtitleFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.Wrap(err, errors.SystemError, "failed to scan subtitle temp dir")
	}

	var srt, vtt []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".srt"):
			srt = append(srt, filepath.Join(dir, name))
		case strings.HasSuffix(name, ".vtt"):
			vtt = append(vtt, filepath.Join(dir, name))
		}
	}
	sort.Strings(srt)
	sort.Strings(vtt)

	if len(srt) > 0 {
		return srt[0], nil
	}
	if len(vtt) > 0 {
		return vtt[0], nil
	}
	return "", fmt.Errorf("yt-dlp wrote no subtitle files")
}

// moveFile renames when possible and falls back to copy-and-delete for
// cross-device moves out of the temp dir.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, errors.SystemError, "failed to open subtitle file")
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, errors.SystemError, "failed to create caption file")
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.Wrap(err, errors.SystemError, "failed to copy subtitle file")
	}
	return os.Remove(src)
}
