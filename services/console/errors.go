package console

import (
	"github.com/pkg/errors"
)

const (
	FetchFailedNotice        = "Error fetching video info"
	DownloadFailedNotice     = "Error downloading video"
	NoMediaInfoNotice        = "Fetch video info first"
	DownloadInProgressNotice = "Download already in progress"
)

var (
	ErrMetadataFetchFailed = errors.New("metadata fetch failed")
	ErrDownloadFailed      = errors.New("download failed")
	ErrNoMediaInfo         = errors.New("no video info")
	ErrDownloadInProgress  = errors.New("download in progress")
)

// OpError ties the underlying cause of a failed operation to its kind.
// errors.Is matches both.
type OpError struct {
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func fetchFailed(err error) error {
	return &OpError{Kind: ErrMetadataFetchFailed, Err: err}
}

func downloadFailed(err error) error {
	return &OpError{Kind: ErrDownloadFailed, Err: err}
}

// Notice maps an operation error to the message shown to the user.
func Notice(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMetadataFetchFailed):
		return FetchFailedNotice
	case errors.Is(err, ErrNoMediaInfo):
		return NoMediaInfoNotice
	case errors.Is(err, ErrDownloadInProgress):
		return DownloadInProgressNotice
	default:
		return DownloadFailedNotice
	}
}

// Notified reports whether err is an operation outcome that has already been
// queued as a notice, as opposed to a failure of the state store itself.
func Notified(err error) bool {
	var oe *OpError
	return errors.As(err, &oe) ||
		errors.Is(err, ErrNoMediaInfo) ||
		errors.Is(err, ErrDownloadInProgress)
}
