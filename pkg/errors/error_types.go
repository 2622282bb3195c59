package errors

// NetworkError indicates a failure fetching or reading a playlist document.
const NetworkError ErrorType = "network_error"

// NoTracksFound indicates a master playlist declared a subtitle media group
// with no usable tracks.
const NoTracksFound ErrorType = "no_tracks_found"

// NoVariantsFound indicates a master playlist with no playable variant streams.
const NoVariantsFound ErrorType = "no_variants_found"

// SegmentFetchError indicates a single media segment could not be downloaded.
// Errors of this type carry the segment index and HTTP status.
const SegmentFetchError ErrorType = "segment_fetch_error"

// AssemblyError indicates a fetched segment was missing or empty at
// concatenation time.
const AssemblyError ErrorType = "assembly_error"

// AllStrategiesExhausted indicates every configured extraction strategy
// failed to produce a usable caption file.
const AllStrategiesExhausted ErrorType = "all_strategies_exhausted"

// EmptySelection indicates the sampling policy selected zero segments.
// This is a configuration error on the caller's side.
const EmptySelection ErrorType = "empty_selection"

// ValidationError indicates invalid input parameters or configuration.
const ValidationError ErrorType = "validation_error"

// SystemError indicates underlying system issues, such as file I/O errors or
// scratch directory management problems.
const SystemError ErrorType = "system_error"

// UnknownError is reported by TypeOf for errors that are not structured.
const UnknownError ErrorType = "unknown_error"
