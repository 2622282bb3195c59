// Package subtitles inspects extracted caption files.
//
// The pipeline samples a fraction of a recording's segments, so the byte size
// of an extracted caption file says little about coverage. The cue timings
// inside it do: the end of the last cue tells how deep into the meeting the
// captions reach.
package subtitles

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// Report summarizes the cue timings found in a caption file.
type Report struct {
	// Cues is the number of valid cue timing lines.
	Cues int
	// LastTimestamp is the end time of the last cue, in seconds.
	LastTimestamp float64
}

// Analyze scans an SRT or WebVTT file for cue timing lines and reports the
// cue count and the end time of the last cue. Both the SRT comma form
// (00:01:02,500) and the WebVTT dot form (00:01:02.500) are accepted.
// A file without any timing lines yields a zero Report and no error:
// captionless output is a result, not a failure.
func Analyze(path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, err
	}
	defer f.Close()

	var report Report
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\uFEFF"))
		if !strings.Contains(line, "-->") {
			continue
		}

		parts := strings.SplitN(line, "-->", 2)
		if len(parts) != 2 {
			continue
		}
		start, okStart := parseTimestamp(parts[0])
		end, okEnd := parseTimestamp(parts[1])
		if !okStart || !okEnd || end <= start {
			continue
		}

		report.Cues++
		report.LastTimestamp = end
	}
	if err := scanner.Err(); err != nil {
		return Report{}, err
	}
	return report, nil
}

// parseTimestamp converts "HH:MM:SS,mmm" or "MM:SS.mmm" to seconds. WebVTT
// cue settings after the timestamp ("00:00:05.000 position:10%") are ignored.
func parseTimestamp(raw string) (float64, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return 0, false
	}
	if idx := strings.Index(v, " "); idx >= 0 {
		v = v[:idx]
	}
	v = strings.ReplaceAll(v, ",", ".")

	parts := strings.Split(v, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	var hours, minutes float64
	secPart := ""
	if len(parts) == 3 {
		h, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return 0, false
		}
		m, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return 0, false
		}
		hours = h
		minutes = m
		secPart = parts[2]
	} else {
		m, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return 0, false
		}
		minutes = m
		secPart = parts[1]
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(secPart), 64)
	if err != nil {
		return 0, false
	}

	total := hours*3600 + minutes*60 + seconds
	if total < 0 {
		return 0, false
	}
	return total, true
}

// FormatSeconds renders a duration for humans: "2h 17m 23s", "17m 3s", "42s".
// Leading zero-valued units are omitted and fractions are truncated.
func FormatSeconds(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60

	switch {
	case h > 0:
		return strconv.Itoa(h) + "h " + strconv.Itoa(m) + "m " + strconv.Itoa(s) + "s"
	case m > 0:
		return strconv.Itoa(m) + "m " + strconv.Itoa(s) + "s"
	default:
		return strconv.Itoa(s) + "s"
	}
}
