package sampler

import (
	"fmt"

	"github.com/heyjunin/hlscaps/pkg/errors"
)

// Policy describes which segment indices of a playlist get fetched.
// Stride keeps every Stride-th index starting at zero; Cap then truncates the
// strided selection to at most Cap indices, bounding the download budget.
// The two fields compose in that fixed order. The zero Policy is invalid;
// build one with All, Stride or Cap.
type Policy struct {
	// Stride is the sampling interval. 1 keeps every segment.
	Stride int
	// Cap is the maximum number of indices to keep after striding.
	// 0 means unlimited.
	Cap int
}

// All returns a policy that selects every segment.
func All() Policy {
	return Policy{Stride: 1}
}

// Stride returns a policy that selects every n-th segment starting at index 0.
func Stride(n int) Policy {
	return Policy{Stride: n}
}

// Cap returns a policy that selects the first max segments.
func Cap(max int) Policy {
	return Policy{Stride: 1, Cap: max}
}

// WithCap returns a copy of the policy with the download budget set to max.
// This is how stride and cap are composed: Stride(25).WithCap(300).
func (p Policy) WithCap(max int) Policy {
	p.Cap = max
	return p
}

// IsAll reports whether the policy keeps every segment with no budget limit.
// Policies for which this is true produce a complete, gap-free selection.
func (p Policy) IsAll() bool {
	return p.Stride == 1 && p.Cap == 0
}

// String renders the policy for logs and reports.
func (p Policy) String() string {
	if p.IsAll() {
		return "all"
	}
	if p.Cap > 0 {
		return fmt.Sprintf("stride=%d cap=%d", p.Stride, p.Cap)
	}
	return fmt.Sprintf("stride=%d", p.Stride)
}

// Select returns the chosen indices for a playlist of total segments.
// The result is strictly ascending, free of duplicates, and always starts at
// index 0. For a pure stride the length is ceil(total/stride).
// A selection that would be empty (no segments, or an invalid policy) fails
// with an EmptySelection error before any network activity can happen.
func (p Policy) Select(total int) ([]int, error) {
	if p.Stride < 1 || p.Cap < 0 {
		return nil, errors.New(errors.EmptySelection, "invalid sampling policy",
			fmt.Sprintf("stride=%d cap=%d", p.Stride, p.Cap))
	}
	if total <= 0 {
		return nil, errors.New(errors.EmptySelection, "playlist has no segments", "")
	}

	indices := make([]int, 0, (total+p.Stride-1)/p.Stride)
	for i := 0; i < total; i += p.Stride {
		indices = append(indices, i)
		if p.Cap > 0 && len(indices) == p.Cap {
			break
		}
	}
	return indices, nil
}
