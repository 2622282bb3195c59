package extractor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/heyjunin/hlscaps/pkg/errors"
)

// subtitleWritingRunner pretends to be yt-dlp: it drops subtitle files into
// the output directory named by the -o template.
type subtitleWritingRunner struct {
	files map[string]string
	args  []string
}

func (r *subtitleWritingRunner) Run(ctx context.Context, name string, args ...string) error {
	r.args = append([]string{}, args...)
	dir := outputDirFromArgs(args)
	if dir == "" {
		return fmt.Errorf("no -o template in args")
	}
	for fname, content := range r.files {
		if err := os.WriteFile(filepath.Join(dir, fname), []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

func outputDirFromArgs(args []string) string {
	for i, a := range args {
		if a == "-o" && i+1 < len(args) {
			return filepath.Dir(args[i+1])
		}
	}
	return ""
}

func TestYtdlpArgs(t *testing.T) {
	got := ytdlpArgs("https://example.com/watch?v=abc", "en", "/tmp/subs")
	want := []string{
		"--write-sub",
		"--write-auto-sub",
		"--sub-lang", "en",
		"--skip-download",
		"--convert-subs", "srt",
		"--no-warnings",
		"-o", filepath.Join("/tmp/subs", "%(id)s"),
		"https://example.com/watch?v=abc",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ytdlpArgs mismatch\n got %v\nwant %v", got, want)
	}
}

func TestYtDlpSubtitlesMovesFileToOutput(t *testing.T) {
	runner := &subtitleWritingRunner{files: map[string]string{
		"abc.en.srt": "1\n00:00:01,000 --> 00:00:02,000\nhello\n",
	}}
	s := NewYtDlpSubtitles(Tool{Binary: "yt-dlp", Runner: runner}, "en", time.Minute)

	outPath := filepath.Join(t.TempDir(), "captions.srt")
	err := s.Extract(context.Background(), Input{StreamURL: "https://example.com/watch?v=abc"}, outPath)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("unexpected output content %q", data)
	}

	if len(runner.args) == 0 || runner.args[len(runner.args)-1] != "https://example.com/watch?v=abc" {
		t.Errorf("stream URL must be the final argument, got %v", runner.args)
	}
}

func TestYtDlpSubtitlesPrefersSRTOverVTT(t *testing.T) {
	runner := &subtitleWritingRunner{files: map[string]string{
		"abc.en.vtt": "WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nraw\n",
		"abc.en.srt": "1\n00:00:01,000 --> 00:00:02,000\nconverted\n",
	}}
	s := NewYtDlpSubtitles(Tool{Binary: "yt-dlp", Runner: runner}, "en", time.Minute)

	outPath := filepath.Join(t.TempDir(), "captions.srt")
	if err := s.Extract(context.Background(), Input{StreamURL: "https://example.com/v"}, outPath); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	data, _ := os.ReadFile(outPath)
	if !strings.Contains(string(data), "converted") {
		t.Errorf("expected the converted .srt to win, got %q", data)
	}
}

func TestYtDlpSubtitlesFailsWhenNothingWritten(t *testing.T) {
	runner := &subtitleWritingRunner{}
	s := NewYtDlpSubtitles(Tool{Binary: "yt-dlp", Runner: runner}, "en", time.Minute)

	err := s.Extract(context.Background(), Input{StreamURL: "https://example.com/v"}, filepath.Join(t.TempDir(), "captions.srt"))
	if err == nil {
		t.Fatal("expected error when yt-dlp writes no subtitle files")
	}
}

func TestYtDlpSubtitlesRequiresStreamURL(t *testing.T) {
	runner := &subtitleWritingRunner{}
	s := NewYtDlpSubtitles(Tool{Binary: "yt-dlp", Runner: runner}, "en", time.Minute)

	err := s.Extract(context.Background(), Input{MediaPath: "/scratch/media.ts"}, "out.srt")
	if err == nil {
		t.Fatal("expected error without a stream URL")
	}
	if !errors.Is(err, errors.ValidationError) {
		t.Errorf("expected ValidationError, got %v", err)
	}
	if len(runner.args) != 0 {
		t.Error("runner should not be invoked without a stream URL")
	}
}

func TestYtDlpSubtitlesDefaultLanguage(t *testing.T) {
	runner := &subtitleWritingRunner{files: map[string]string{"v.en.srt": "x"}}
	s := NewYtDlpSubtitles(Tool{Binary: "yt-dlp", Runner: runner}, "", time.Minute)

	_ = s.Extract(context.Background(), Input{StreamURL: "https://example.com/v"}, filepath.Join(t.TempDir(), "c.srt"))

	found := false
	for i, a := range runner.args {
		if a == "--sub-lang" && i+1 < len(runner.args) && runner.args[i+1] == "en" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected --sub-lang en by default, got %v", runner.args)
	}
}

func TestFindSubtitleFileDeterministic(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.es.vtt", "a.en.vtt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("WEBVTT"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := findSubtitleFile(dir)
	if err != nil {
		t.Fatalf("findSubtitleFile failed: %v", err)
	}
	if filepath.Base(got) != "a.en.vtt" {
		t.Errorf("expected sorted-first pick a.en.vtt, got %s", filepath.Base(got))
	}
}
