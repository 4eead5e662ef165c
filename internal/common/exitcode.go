package common

import "errors"

// Process exit codes surfaced by the CLI boundary. Every failure kind
// keeps a stable, distinct code so calling scripts can react to the
// specific outcome.
const (
	ExitOK               = 0
	ExitNoProfile        = 1
	ExitMissingSetting   = 2
	ExitServiceTimeout   = 3
	ExitServiceRedirects = 4
	ExitServiceError     = 5
	ExitNoLocator        = 6
	ExitFileError        = 7
	ExitNgasError        = 8
	ExitSizeMismatch     = 9
)

// ExitCodeFor maps an error to its process exit code. Errors outside
// the taxonomy exit 1, like an uncaught failure.
func ExitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrNoProfile):
		return ExitNoProfile
	case errors.Is(err, ErrMissingSetting):
		return ExitMissingSetting
	case errors.Is(err, ErrServiceTimeout):
		return ExitServiceTimeout
	case errors.Is(err, ErrServiceRedirects):
		return ExitServiceRedirects
	case errors.Is(err, ErrNoLocator):
		return ExitNoLocator
	case errors.Is(err, ErrMissingMetadata), errors.Is(err, ErrServiceError):
		return ExitServiceError
	case errors.Is(err, ErrFileError):
		return ExitFileError
	case errors.Is(err, ErrSizeMismatch), errors.Is(err, ErrChecksumMismatch):
		return ExitSizeMismatch
	case errors.Is(err, ErrNgasError):
		return ExitNgasError
	default:
		return 1
	}
}
