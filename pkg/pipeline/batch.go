package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/heyjunin/hlscaps/pkg/errors"
	"github.com/heyjunin/hlscaps/pkg/logger"
	"github.com/heyjunin/hlscaps/pkg/meetings"
	"github.com/heyjunin/hlscaps/pkg/store"
	"github.com/heyjunin/hlscaps/pkg/subtitles"
)

// BatchOptions contains settings for the Batch runner.
type BatchOptions struct {
	// Source lists the meetings to process. Required.
	Source meetings.Source
	// Store tracks completed meeting IDs across runs. In-memory when nil.
	Store store.Store
	// Pipeline runs each meeting. Required.
	Pipeline *Pipeline
	// Logger receives batch events. Defaults to the package logger.
	Logger logger.Logger
}

// Failure records one meeting the batch could not extract captions for.
type Failure struct {
	MeetingID string
	Kind      errors.ErrorType
	Err       error
}

// Summary aggregates a batch run.
type Summary struct {
	// Total is how many meetings the source listed.
	Total int
	// AlreadyDone were skipped because the store marked them completed.
	AlreadyDone int
	// Succeeded got fresh captions this run.
	Succeeded int
	// Skipped already had a valid caption file on disk.
	Skipped int
	// Failures lists meetings without usable captions and why.
	Failures []Failure
}

// String renders the terminal summary, naming every meeting that ended up
// without usable captions.
func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d meetings: %d extracted, %d already on disk, %d previously completed, %d failed",
		s.Total, s.Succeeded, s.Skipped, s.AlreadyDone, len(s.Failures))
	if len(s.Failures) > 0 {
		b.WriteString("\nwithout usable captions:")
		for _, f := range s.Failures {
			fmt.Fprintf(&b, "\n  %s: [%s] %v", f.MeetingID, f.Kind, f.Err)
		}
	}
	return b.String()
}

// Batch runs the pipeline over every meeting a source lists, resuming past
// completed IDs and carrying on past individual failures.
type Batch struct {
	source   meetings.Source
	store    store.Store
	pipeline *Pipeline
	log      logger.Logger
}

// NewBatch creates a Batch runner.
func NewBatch(opts BatchOptions) (*Batch, error) {
	if opts.Source == nil {
		return nil, errors.New(errors.ValidationError, "a meeting source is required", "")
	}
	if opts.Pipeline == nil {
		return nil, errors.New(errors.ValidationError, "a pipeline is required", "")
	}
	if opts.Store == nil {
		opts.Store = store.NewMemory()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewLogger()
	}
	return &Batch{
		source:   opts.Source,
		store:    opts.Store,
		pipeline: opts.Pipeline,
		log:      opts.Logger,
	}, nil
}

// Run processes every listed meeting. One meeting failing is recorded and the
// batch moves on; only context cancellation stops the loop early. Progress is
// saved after every meeting so an interrupted batch resumes where it stopped.
func (b *Batch) Run(ctx context.Context) (*Summary, error) {
	list, err := b.source.List(ctx)
	if err != nil {
		return nil, err
	}
	done, err := b.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Total: len(list)}
	for _, m := range list {
		if err := ctx.Err(); err != nil {
			return sum, errors.Wrap(err, errors.SystemError, "batch canceled")
		}

		if done[m.ID] {
			sum.AlreadyDone++
			b.log.Debug("Meeting already completed", "batch", map[string]interface{}{
				"meeting": m.ID,
			})
			continue
		}

		res, err := b.pipeline.Run(ctx, m)
		if err != nil {
			kind := errors.TypeOf(err)
			sum.Failures = append(sum.Failures, Failure{MeetingID: m.ID, Kind: kind, Err: err})
			b.log.Error("Meeting failed", "batch", map[string]interface{}{
				"meeting": m.ID,
				"kind":    string(kind),
				"error":   err.Error(),
			})
			continue
		}

		if res.Skipped {
			sum.Skipped++
		} else {
			sum.Succeeded++
		}
		done[m.ID] = true
		if err := b.store.Save(ctx, done); err != nil {
			// The meeting itself succeeded; a resume would just redo it.
			b.log.Error("Failed to save progress", "batch", map[string]interface{}{
				"meeting": m.ID,
				"error":   err.Error(),
			})
		}

		b.log.Info("Meeting completed", "batch", map[string]interface{}{
			"meeting":  m.ID,
			"size":     res.ByteSize,
			"covered":  subtitles.FormatSeconds(res.LastTimestampSeconds),
			"strategy": res.Strategy,
		})
	}
	return sum, nil
}
