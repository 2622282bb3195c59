// Package assembler concatenates ordered byte sources into a single file.
//
// HLS transport-stream segments concatenate byte-for-byte into a playable
// stream, so assembly is plain io.Copy in playlist order with no re-encoding.
// Sources are abstract so callers that never touch disk (or skip assembly
// entirely) can still reuse the same contract.
package assembler

import (
	"fmt"
	"io"
	"os"

	"github.com/heyjunin/hlscaps/pkg/errors"
)

// Source is one ordered chunk of the assembled output.
type Source interface {
	// Open returns the chunk's byte stream. The assembler closes it.
	Open() (io.ReadCloser, error)
}

// FileSource is a Source backed by a file on disk.
type FileSource string

// Open opens the underlying file.
func (s FileSource) Open() (io.ReadCloser, error) {
	return os.Open(string(s))
}

// String returns the file path.
func (s FileSource) String() string {
	return string(s)
}

// FromPaths wraps file paths as sources, preserving order.
func FromPaths(paths []string) []Source {
	sources := make([]Source, len(paths))
	for i, p := range paths {
		sources[i] = FileSource(p)
	}
	return sources
}

// Assemble writes the concatenation of sources, in order, to dst and returns
// the total byte count. The output equals the sum of its inputs byte for
// byte. A source that cannot be opened or that yields zero bytes fails the
// assembly with an AssemblyError.
func Assemble(dst string, sources []Source) (int64, error) {
	if len(sources) == 0 {
		return 0, errors.New(errors.AssemblyError, "nothing to assemble", "")
	}

	out, err := os.Create(dst)
	if err != nil {
		return 0, errors.Wrap(err, errors.SystemError, "failed to create assembled file")
	}
	defer out.Close()

	var total int64
	for i, src := range sources {
		n, err := appendSource(out, src)
		if err != nil {
			return total, errors.Wrap(err, errors.AssemblyError,
				fmt.Sprintf("source %d of %d unreadable", i+1, len(sources)))
		}
		if n == 0 {
			return total, errors.New(errors.AssemblyError,
				fmt.Sprintf("source %d of %d is empty", i+1, len(sources)), describe(src))
		}
		total += n
	}
	return total, nil
}

func appendSource(w io.Writer, src Source) (int64, error) {
	r, err := src.Open()
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return io.Copy(w, r)
}

func describe(src Source) string {
	if s, ok := src.(fmt.Stringer); ok {
		return s.String()
	}
	return ""
}
