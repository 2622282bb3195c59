package manifest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/grafov/m3u8"
	"github.com/heyjunin/hlscaps/pkg/errors"
	"github.com/heyjunin/hlscaps/pkg/logger"
)

// Options represents configuration options for the Resolver.
type Options struct {
	// Client is the HTTP client used for all playlist requests.
	// A client with a 30 second timeout is used when nil.
	Client *http.Client
	// UserAgent is sent with every request when non-empty. Some recording
	// platforms refuse requests without a browser-like agent.
	UserAgent string
	// Logger receives resolution events. Defaults to the package logger.
	Logger logger.Logger
}

// Resolver fetches and parses HLS playlists.
// Create instances using New().
type Resolver struct {
	client    *http.Client
	userAgent string
	log       logger.Logger
}

// New creates a new Resolver configured with the provided options.
func New(opts Options) *Resolver {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewLogger()
	}
	return &Resolver{
		client:    client,
		userAgent: opts.UserAgent,
		log:       log,
	}
}

// Resolve fetches the playlist at rawURL and follows it to segment lists.
//
// A master playlist that declares a SUBTITLES media group resolves to the
// group's tracks: each track's own playlist (a nested document) is fetched
// and parsed, keyed by language or name. A master playlist without subtitle
// tracks resolves to the first variant's media playlist. A media playlist
// resolves to itself. Relative URIs are resolved against the document that
// contains them, never against the root URL.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*Resolution, error) {
	body, err := r.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	playlist, listType, err := m3u8.DecodeFrom(body, true)
	if err != nil {
		return nil, errors.Wrap(err, errors.ValidationError, "failed to parse playlist")
	}

	if listType == m3u8.MEDIA {
		media, ok := playlist.(*m3u8.MediaPlaylist)
		if !ok {
			return nil, errors.New(errors.ValidationError, "unexpected playlist type", rawURL)
		}
		m, err := buildManifest(rawURL, media)
		if err != nil {
			return nil, err
		}
		r.log.Debug("Resolved media playlist", "resolver", map[string]interface{}{
			"url":      rawURL,
			"segments": len(m.Segments),
		})
		return &Resolution{Media: m}, nil
	}

	master, ok := playlist.(*m3u8.MasterPlaylist)
	if !ok {
		return nil, errors.New(errors.ValidationError, "unexpected playlist type", rawURL)
	}
	return r.resolveMaster(ctx, rawURL, master)
}

// resolveMaster dispatches a master playlist to subtitle tracks when a
// SUBTITLES media group is declared, or to the first variant otherwise.
func (r *Resolver) resolveMaster(ctx context.Context, masterURL string, master *m3u8.MasterPlaylist) (*Resolution, error) {
	subs, groupDeclared := subtitleAlternatives(master)

	if len(subs) > 0 {
		tracks := make(map[string]*Manifest, len(subs))
		for i, alt := range subs {
			trackURL, err := resolveURL(masterURL, alt.URI)
			if err != nil {
				return nil, errors.Wrap(err, errors.ValidationError, "invalid subtitle track URI")
			}
			m, err := r.fetchMediaManifest(ctx, trackURL)
			if err != nil {
				return nil, err
			}
			tracks[trackKey(alt, i, tracks)] = m
		}
		res := &Resolution{SubtitleTracks: tracks}
		r.log.Info("Resolved subtitle tracks", "resolver", map[string]interface{}{
			"url":    masterURL,
			"tracks": res.TrackKeys(),
		})
		return res, nil
	}

	if groupDeclared {
		return nil, errors.New(errors.NoTracksFound, "subtitle media group declares no tracks", masterURL)
	}

	variantURI := ""
	for _, v := range master.Variants {
		if v == nil || v.URI == "" {
			continue
		}
		variantURI = v.URI
		break
	}
	if variantURI == "" {
		return nil, errors.New(errors.NoVariantsFound, "master playlist contains no variants", masterURL)
	}

	variantURL, err := resolveURL(masterURL, variantURI)
	if err != nil {
		return nil, errors.Wrap(err, errors.ValidationError, "invalid variant URI")
	}
	m, err := r.fetchMediaManifest(ctx, variantURL)
	if err != nil {
		return nil, err
	}
	r.log.Info("Resolved variant playlist", "resolver", map[string]interface{}{
		"url":      masterURL,
		"variant":  variantURL,
		"segments": len(m.Segments),
	})
	return &Resolution{Media: m}, nil
}

// fetchMediaManifest fetches a nested media playlist and converts it.
func (r *Resolver) fetchMediaManifest(ctx context.Context, playlistURL string) (*Manifest, error) {
	body, err := r.fetch(ctx, playlistURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	playlist, listType, err := m3u8.DecodeFrom(body, true)
	if err != nil {
		return nil, errors.Wrap(err, errors.ValidationError, "failed to parse playlist")
	}
	if listType != m3u8.MEDIA {
		return nil, errors.New(errors.ValidationError, "expected media playlist, got master", playlistURL)
	}
	media, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, errors.New(errors.ValidationError, "unexpected playlist type", playlistURL)
	}
	return buildManifest(playlistURL, media)
}

// fetch GETs a playlist document, failing with a NetworkError on transport
// errors and non-2xx responses.
func (r *Resolver) fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ValidationError, "invalid playlist URL")
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.NetworkError, "failed to fetch playlist")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, errors.New(errors.NetworkError, "playlist request failed",
			fmt.Sprintf("GET %s: %s", rawURL, resp.Status))
	}
	return resp.Body, nil
}

// buildManifest converts a decoded media playlist into a Manifest,
// resolving every segment URI against the playlist's own URL.
func buildManifest(playlistURL string, media *m3u8.MediaPlaylist) (*Manifest, error) {
	var segments []Segment
	for i, seg := range media.Segments {
		// The decoder preallocates the segment slice; a nil entry marks the end.
		if seg == nil {
			break
		}
		segmentURL, err := resolveURL(playlistURL, seg.URI)
		if err != nil {
			return nil, errors.Wrap(err, errors.ValidationError, "invalid segment URI")
		}
		segments = append(segments, Segment{
			Index:    i,
			URI:      segmentURL,
			Duration: seg.Duration,
		})
	}

	return &Manifest{
		URL:            playlistURL,
		Segments:       segments,
		TargetDuration: media.TargetDuration,
	}, nil
}

// subtitleAlternatives collects SUBTITLES media group entries across all
// variants and reports whether any variant references a subtitles group at
// all (a reference with no entries means the group is declared but empty).
func subtitleAlternatives(master *m3u8.MasterPlaylist) ([]*m3u8.Alternative, bool) {
	var subs []*m3u8.Alternative
	seen := make(map[string]bool)
	groupDeclared := false

	for _, v := range master.Variants {
		if v == nil {
			continue
		}
		if v.Subtitles != "" {
			groupDeclared = true
		}
		for _, alt := range v.Alternatives {
			if alt == nil || !strings.EqualFold(alt.Type, "SUBTITLES") {
				continue
			}
			groupDeclared = true
			if alt.URI == "" {
				continue
			}
			key := alt.GroupId + "|" + alt.Name + "|" + alt.URI
			if seen[key] {
				continue
			}
			seen[key] = true
			subs = append(subs, alt)
		}
	}
	return subs, groupDeclared
}

// trackKey picks the map key for a subtitle track: the declared language
// when present, the display name otherwise. Collisions get the name (or an
// index) appended so no track is silently dropped.
func trackKey(alt *m3u8.Alternative, i int, existing map[string]*Manifest) string {
	key := alt.Language
	if key == "" {
		key = alt.Name
	}
	if key == "" {
		key = fmt.Sprintf("track-%d", i)
	}
	if _, taken := existing[key]; taken {
		if alt.Name != "" && alt.Name != key {
			key = key + "-" + alt.Name
		} else {
			key = fmt.Sprintf("%s-%d", key, i)
		}
	}
	return key
}

// resolveURL resolves a possibly relative URL against a base URL.
func resolveURL(baseURL, relativeURL string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	rel, err := url.Parse(relativeURL)
	if err != nil {
		return "", fmt.Errorf("invalid relative URL: %w", err)
	}
	return base.ResolveReference(rel).String(), nil
}
