package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heyjunin/hlscaps/pkg/errors"
	"github.com/heyjunin/hlscaps/pkg/extractor"
	"github.com/heyjunin/hlscaps/pkg/meetings"
	"github.com/heyjunin/hlscaps/pkg/pipeline"
	"github.com/heyjunin/hlscaps/pkg/sampler"
	"github.com/heyjunin/hlscaps/pkg/store"
)

// captionsSRT is the payload the fake strategy writes. Three cues, the last
// one ending at 00:02:17,400 (137.4 seconds in).
const captionsSRT = `1
00:00:01,000 --> 00:00:04,000
Call to order.

2
00:00:58,200 --> 00:01:03,000
Roll call, please.

3
00:01:31,000 --> 00:02:17,400
Motion carries unanimously.
`

// writeStrategy stands in for a captioning tool. It records the input it was
// given and writes a fixed SRT payload, or fails with err when set.
type writeStrategy struct {
	name  string
	err   error
	calls int
	last  extractor.Input
}

func (s *writeStrategy) Name() string { return s.name }

func (s *writeStrategy) Extract(ctx context.Context, in extractor.Input, outPath string) error {
	s.calls++
	s.last = in
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(outPath, []byte(captionsSRT), 0644)
}

// meetingPortal serves a scraped recording site over httptest: one meeting
// published as a master playlist with a subtitle media group, one as a plain
// media playlist, and an empty playlist. It counts requests per path so tests
// can assert exactly what was downloaded.
type meetingPortal struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newMeetingPortal(subtitleSegments, mediaSegments int) *meetingPortal {
	portal := &meetingPortal{hits: map[string]int{}}

	master := "#EXTM3U\n" +
		"#EXT-X-VERSION:4\n" +
		"#EXT-X-MEDIA:TYPE=SUBTITLES,GROUP-ID=\"subs\",NAME=\"English\",LANGUAGE=\"en\",DEFAULT=YES,AUTOSELECT=YES,URI=\"subs/en.m3u8\"\n" +
		"#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=2000000,RESOLUTION=1280x720,SUBTITLES=\"subs\"\n" +
		"video/index.m3u8\n"
	subsPlaylist := mediaPlaylist(subtitleSegments, "cue-%d.vtt")
	boardPlaylist := mediaPlaylist(mediaSegments, "seg-%d.ts")
	emptyPlaylist := mediaPlaylist(0, "seg-%d.ts")
	tsChunk := make([]byte, 1024)
	for i := range tsChunk {
		tsChunk[i] = 0x47
	}

	portal.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		portal.record(r.URL.Path)
		switch {
		case r.URL.Path == "/council/master.m3u8":
			fmt.Fprint(w, master)
		case r.URL.Path == "/council/subs/en.m3u8":
			fmt.Fprint(w, subsPlaylist)
		case strings.HasPrefix(r.URL.Path, "/council/subs/cue-"):
			fmt.Fprint(w, "WEBVTT\n\n00:00.000 --> 00:05.000\nplaceholder cue\n")
		case r.URL.Path == "/board/playlist.m3u8":
			fmt.Fprint(w, boardPlaylist)
		case strings.HasPrefix(r.URL.Path, "/board/seg-"):
			w.Write(tsChunk)
		case r.URL.Path == "/empty/playlist.m3u8":
			fmt.Fprint(w, emptyPlaylist)
		default:
			http.NotFound(w, r)
		}
	}))
	return portal
}

func (p *meetingPortal) record(path string) {
	p.mu.Lock()
	p.hits[path]++
	p.mu.Unlock()
}

// countPrefix returns how many requests hit paths with the given prefix.
func (p *meetingPortal) countPrefix(prefix string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for path, c := range p.hits {
		if strings.HasPrefix(path, prefix) {
			n += c
		}
	}
	return n
}

func mediaPlaylist(n int, uriPattern string) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n#EXT-X-MEDIA-SEQUENCE:0\n")
	for i := 0; i < n; i++ {
		b.WriteString("#EXTINF:6.000,\n")
		fmt.Fprintf(&b, uriPattern+"\n", i)
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String()
}

// TestMeetingExtractionEndToEnd runs the whole pipeline against a master
// playlist that declares a subtitle media group: resolve, pick the English
// track, sample and fetch its segments, assemble them, extract, analyze and
// write the sidecar.
func TestMeetingExtractionEndToEnd(t *testing.T) {
	portal := newMeetingPortal(8, 12)
	defer portal.Close()

	outDir := t.TempDir()
	scratch := t.TempDir()
	strat := &writeStrategy{name: "fake-captions"}

	p, err := pipeline.New(pipeline.Options{
		OutputDir:       outDir,
		ScratchRoot:     scratch,
		Policy:          sampler.Stride(2).WithCap(3),
		MinCaptionBytes: 64,
		Language:        "en",
		Strategies:      []extractor.Strategy{strat},
	})
	require.NoError(t, err)

	res, err := p.Run(context.Background(), meetings.Meeting{
		ID:          "council-2024-03-12",
		ManifestURL: portal.URL + "/council/master.m3u8",
	})
	require.NoError(t, err)

	assert.Equal(t, "en", res.Track)
	assert.Equal(t, 8, res.SegmentsTotal)
	assert.Equal(t, 3, res.SegmentsFetched)
	assert.Equal(t, "fake-captions", res.Strategy)
	assert.Equal(t, 3, res.Cues)
	assert.InDelta(t, 137.4, res.LastTimestampSeconds, 0.001)
	assert.False(t, res.Skipped)

	// The strategy saw a media file assembled from the subtitle segments,
	// alongside the original manifest URL.
	assert.True(t, strings.HasSuffix(strat.last.MediaPath, ".vtt"),
		"media path should carry the segment extension, got %q", strat.last.MediaPath)
	assert.Equal(t, portal.URL+"/council/master.m3u8", strat.last.StreamURL)

	content, err := os.ReadFile(res.CaptionPath)
	require.NoError(t, err)
	assert.Equal(t, captionsSRT, string(content))

	data, err := os.ReadFile(res.SidecarPath)
	require.NoError(t, err)
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, "council-2024-03-12", meta["meeting_id"])
	assert.Equal(t, "en", meta["track"])
	assert.EqualValues(t, 2, meta["sample_stride"])
	assert.EqualValues(t, 3, meta["segments_fetched"])
	assert.Equal(t, "fake-captions", meta["strategy"])

	// Only the sampled subtitle segments were downloaded. The video variant
	// is never touched when a subtitle track exists.
	assert.Equal(t, 3, portal.countPrefix("/council/subs/cue-"))
	assert.Equal(t, 0, portal.countPrefix("/council/video/"))

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directory should be cleaned after the run")
}

// TestRerunSkipsExistingCaptions verifies the second run over the same
// meeting touches neither the network nor the extraction strategy.
func TestRerunSkipsExistingCaptions(t *testing.T) {
	portal := newMeetingPortal(8, 12)
	defer portal.Close()

	strat := &writeStrategy{name: "fake-captions"}
	p, err := pipeline.New(pipeline.Options{
		OutputDir:       t.TempDir(),
		ScratchRoot:     t.TempDir(),
		Policy:          sampler.Stride(2),
		MinCaptionBytes: 64,
		Strategies:      []extractor.Strategy{strat},
	})
	require.NoError(t, err)

	m := meetings.Meeting{ID: "board-2024-03-14", ManifestURL: portal.URL + "/board/playlist.m3u8"}

	first, err := p.Run(context.Background(), m)
	require.NoError(t, err)
	assert.False(t, first.Skipped)
	assert.Equal(t, 6, first.SegmentsFetched)

	playlistHits := portal.countPrefix("/board/playlist.m3u8")
	segmentHits := portal.countPrefix("/board/seg-")

	second, err := p.Run(context.Background(), m)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.Cues, second.Cues)
	assert.Equal(t, first.CaptionPath, second.CaptionPath)

	assert.Equal(t, playlistHits, portal.countPrefix("/board/playlist.m3u8"))
	assert.Equal(t, segmentHits, portal.countPrefix("/board/seg-"))
	assert.Equal(t, 1, strat.calls)
}

// TestBatchResumesWithSQLiteStore runs a three-meeting catalog where one
// manifest is missing, then runs it again against the same progress database.
func TestBatchResumesWithSQLiteStore(t *testing.T) {
	portal := newMeetingPortal(8, 12)
	defer portal.Close()

	dbPath := filepath.Join(t.TempDir(), "progress.db")
	outDir := t.TempDir()

	catalog := meetings.StaticSource{
		{ID: "council-2024-03-12", ManifestURL: portal.URL + "/council/master.m3u8"},
		{ID: "board-2024-03-14", ManifestURL: portal.URL + "/board/playlist.m3u8"},
		{ID: "planning-2024-03-15", ManifestURL: portal.URL + "/planning/missing.m3u8"},
	}

	run := func() *pipeline.Summary {
		st, err := store.NewSQLite(dbPath)
		require.NoError(t, err)
		defer st.Close()

		p, err := pipeline.New(pipeline.Options{
			OutputDir:       outDir,
			ScratchRoot:     t.TempDir(),
			Policy:          sampler.Stride(2),
			MinCaptionBytes: 64,
			Language:        "en",
			Strategies:      []extractor.Strategy{&writeStrategy{name: "fake-captions"}},
		})
		require.NoError(t, err)

		b, err := pipeline.NewBatch(pipeline.BatchOptions{
			Source:   catalog,
			Store:    st,
			Pipeline: p,
		})
		require.NoError(t, err)

		sum, err := b.Run(context.Background())
		require.NoError(t, err)
		return sum
	}

	first := run()
	assert.Equal(t, 3, first.Total)
	assert.Equal(t, 2, first.Succeeded)
	assert.Equal(t, 0, first.AlreadyDone)
	require.Len(t, first.Failures, 1)
	assert.Equal(t, "planning-2024-03-15", first.Failures[0].MeetingID)
	assert.Equal(t, errors.NetworkError, first.Failures[0].Kind)

	summary := first.String()
	assert.Contains(t, summary, "2 extracted")
	assert.Contains(t, summary, "planning-2024-03-15")

	st, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	done, err := st.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Close())
	assert.True(t, done["council-2024-03-12"])
	assert.True(t, done["board-2024-03-14"])
	assert.False(t, done["planning-2024-03-15"])

	// The second batch redoes only the failed meeting.
	second := run()
	assert.Equal(t, 2, second.AlreadyDone)
	assert.Equal(t, 0, second.Succeeded)
	require.Len(t, second.Failures, 1)
	assert.Equal(t, "planning-2024-03-15", second.Failures[0].MeetingID)
}

// TestPipelineErrorTypes verifies failure categories surface as structured
// errors callers can branch on.
func TestPipelineErrorTypes(t *testing.T) {
	portal := newMeetingPortal(8, 12)
	defer portal.Close()

	tests := []struct {
		name          string
		manifestURL   string
		strategies    []extractor.Strategy
		expectedError errors.ErrorType
	}{
		{
			name:          "manifest not found",
			manifestURL:   portal.URL + "/gone/playlist.m3u8",
			strategies:    []extractor.Strategy{&writeStrategy{name: "fake-captions"}},
			expectedError: errors.NetworkError,
		},
		{
			name:          "playlist without segments",
			manifestURL:   portal.URL + "/empty/playlist.m3u8",
			strategies:    []extractor.Strategy{&writeStrategy{name: "fake-captions"}},
			expectedError: errors.EmptySelection,
		},
		{
			name:          "every strategy fails",
			manifestURL:   portal.URL + "/board/playlist.m3u8",
			strategies:    []extractor.Strategy{&writeStrategy{name: "broken", err: fmt.Errorf("tool exploded")}},
			expectedError: errors.AllStrategiesExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := pipeline.New(pipeline.Options{
				OutputDir:       t.TempDir(),
				ScratchRoot:     t.TempDir(),
				Policy:          sampler.Stride(2),
				MinCaptionBytes: 64,
				Strategies:      tt.strategies,
			})
			require.NoError(t, err)

			_, err = p.Run(context.Background(), meetings.Meeting{
				ID:          "mtg-err",
				ManifestURL: tt.manifestURL,
			})

			assert.Error(t, err)
			structErr, ok := err.(*errors.StructuredError)
			assert.True(t, ok, "the error should be a StructuredError")
			if ok {
				assert.Equal(t, tt.expectedError, structErr.Type)
			}
		})
	}
}
