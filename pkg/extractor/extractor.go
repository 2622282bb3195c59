// Package extractor turns downloaded media (or a live stream URL) into a
// caption file by trying a configurable chain of extraction strategies in
// order and keeping the first output that looks like real captions.
package extractor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/heyjunin/hlscaps/pkg/errors"
	"github.com/heyjunin/hlscaps/pkg/logger"
)

// DefaultMinOutputBytes is the smallest output accepted as a real caption
// file. Anything under this is treated as an empty or header-only artifact
// and the next strategy is tried.
const DefaultMinOutputBytes = 1024

// Input describes the media a strategy may work from. MediaPath points at an
// assembled local file and is preferred; StreamURL is the original playlist
// or page URL for strategies that operate on the remote stream directly.
type Input struct {
	MediaPath string
	StreamURL string
}

// Artifact is the caption file produced by a successful extraction.
type Artifact struct {
	// Path is where the captions were written.
	Path string
	// Size is the artifact size in bytes.
	Size int64
	// Strategy is the name of the strategy that produced it.
	Strategy string
}

// Strategy is one way of getting captions out of the input. Extract writes
// its result to outPath and returns an error when it produced nothing usable.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, in Input, outPath string) error
}

// Options configures an Extractor.
type Options struct {
	// Strategies are tried in order. At least one is required.
	Strategies []Strategy
	// MinOutputBytes is the minimum artifact size counted as success.
	// Defaults to DefaultMinOutputBytes.
	MinOutputBytes int64
	// Logger for extraction attempts. A default logger is used when nil.
	Logger logger.Logger
}

// Extractor runs strategies in order until one produces a large enough
// caption file.
type Extractor struct {
	strategies []Strategy
	minBytes   int64
	log        logger.Logger
}

// New creates an Extractor, applying defaults and validating options.
func New(opts Options) (*Extractor, error) {
	if len(opts.Strategies) == 0 {
		return nil, errors.New(errors.ValidationError, "no extraction strategies configured", "")
	}
	if opts.MinOutputBytes <= 0 {
		opts.MinOutputBytes = DefaultMinOutputBytes
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewLogger()
	}
	return &Extractor{
		strategies: opts.Strategies,
		minBytes:   opts.MinOutputBytes,
		log:        opts.Logger,
	}, nil
}

// Extract tries each strategy in order and returns the first artifact that
// reaches the minimum size. A strategy failing, timing out on its own budget,
// or producing an undersized file just moves the chain along; only ctx being
// canceled aborts the whole chain. When every strategy has been tried the
// error kind is AllStrategiesExhausted.
func (e *Extractor) Extract(ctx context.Context, in Input, outPath string) (*Artifact, error) {
	var attempts []string

	for _, s := range e.strategies {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.SystemError, "extraction canceled")
		}

		e.log.Info("trying extraction strategy", "extractor", map[string]interface{}{
			"strategy": s.Name(),
			"output":   outPath,
		})

		if err := s.Extract(ctx, in, outPath); err != nil {
			attempts = append(attempts, fmt.Sprintf("%s: %v", s.Name(), err))
			e.log.Warn("extraction strategy failed", "extractor", map[string]interface{}{
				"strategy": s.Name(),
				"error":    err.Error(),
			})
			removePartial(outPath)
			continue
		}

		size, ok := artifactSize(outPath)
		if !ok || size < e.minBytes {
			attempts = append(attempts, fmt.Sprintf("%s: output %d bytes, need %d", s.Name(), size, e.minBytes))
			e.log.Warn("extraction output too small", "extractor", map[string]interface{}{
				"strategy": s.Name(),
				"size":     size,
				"min":      e.minBytes,
			})
			removePartial(outPath)
			continue
		}

		e.log.Info("extraction succeeded", "extractor", map[string]interface{}{
			"strategy": s.Name(),
			"size":     size,
		})
		return &Artifact{Path: outPath, Size: size, Strategy: s.Name()}, nil
	}

	return nil, errors.New(errors.AllStrategiesExhausted,
		"no strategy produced captions",
		strings.Join(attempts, "; "))
}

func artifactSize(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	return info.Size(), true
}

// removePartial clears a failed strategy's leftovers so the next attempt and
// the final size check never see a stale file.
func removePartial(path string) {
	_ = os.Remove(path)
}
