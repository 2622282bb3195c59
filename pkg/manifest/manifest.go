// Package manifest resolves HLS playlist URLs into segment lists.
// It understands master playlists (dispatching to subtitle media groups or
// variant streams) and plain media playlists.
package manifest

import (
	"sort"
	"strings"
)

// Segment is one media segment of a playlist. Index is the zero-based
// position within the containing playlist and URI is always absolute.
type Segment struct {
	Index int
	URI   string
	// Duration is the EXTINF duration in seconds, as advertised by the
	// playlist. Advisory only.
	Duration float64
}

// Manifest is a resolved media playlist: the ordered segments of one stream
// (a video variant or a single subtitle track).
type Manifest struct {
	// URL is the absolute URL of the media playlist document itself.
	URL string
	// Segments holds every segment in playlist order, indexed from 0.
	Segments []Segment
	// TargetDuration is the playlist's EXT-X-TARGETDURATION in seconds,
	// or 0 when the tag is absent.
	TargetDuration float64
}

// TotalDuration sums the advertised segment durations in seconds.
func (m *Manifest) TotalDuration() float64 {
	var total float64
	for _, seg := range m.Segments {
		total += seg.Duration
	}
	return total
}

// Resolution is the outcome of resolving a playlist URL. Exactly one of the
// two shapes is populated: SubtitleTracks when the master declared a
// SUBTITLES media group, Media otherwise.
type Resolution struct {
	// SubtitleTracks maps a track key (language when declared, display name
	// otherwise) to that track's media playlist.
	SubtitleTracks map[string]*Manifest
	// Media is the first variant's media playlist, or the playlist itself
	// when the URL already pointed at a media playlist.
	Media *Manifest
}

// HasSubtitleTracks reports whether the resolution carries dedicated
// subtitle tracks.
func (r *Resolution) HasSubtitleTracks() bool {
	return len(r.SubtitleTracks) > 0
}

// TrackKeys returns the subtitle track keys in sorted order.
func (r *Resolution) TrackKeys() []string {
	keys := make([]string, 0, len(r.SubtitleTracks))
	for k := range r.SubtitleTracks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PickTrack selects a subtitle track. A track whose key equals preferred
// (case-insensitive) wins; otherwise the first key in sorted order is used so
// repeated runs pick the same track. Returns ("", nil) when there are no
// tracks.
func (r *Resolution) PickTrack(preferred string) (string, *Manifest) {
	if len(r.SubtitleTracks) == 0 {
		return "", nil
	}
	keys := r.TrackKeys()
	if preferred != "" {
		for _, k := range keys {
			if strings.EqualFold(k, preferred) {
				return k, r.SubtitleTracks[k]
			}
		}
	}
	return keys[0], r.SubtitleTracks[keys[0]]
}
