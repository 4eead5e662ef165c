package common

import "errors"

var (
	// Configuration errors, detected before planning.
	ErrNoProfile      = errors.New("no profile")
	ErrMissingSetting = errors.New("missing setting")

	// Locator and metadata errors, fatal to the whole request.
	ErrServiceTimeout   = errors.New("locator service timeout")
	ErrServiceRedirects = errors.New("locator service redirect limit reached")
	ErrServiceError     = errors.New("locator service error")
	ErrNoLocator        = errors.New("product locator not found")
	ErrMissingMetadata  = errors.New("incomplete location metadata")

	// File and transfer errors.
	ErrFileError        = errors.New("file error")
	ErrNgasError        = errors.New("ngas retrieval error")
	ErrSizeMismatch     = errors.New("size mismatch")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)
