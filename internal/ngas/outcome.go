// Package ngas executes single file transfers against NGAS storage hosts:
// streaming retrieval into an exclusive part file, or a direct-copy request
// the server fulfils itself. Every transfer ends in an Outcome; retries are
// the caller's business.
package ngas

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/datafetch/internal/common"
)

// OutcomeKind tags the result of executing one transfer.
type OutcomeKind int

const (
	// OutcomeUnknown means the transfer never ran.
	OutcomeUnknown OutcomeKind = iota
	OutcomeSuccess
	OutcomeSizeMismatch
	OutcomeChecksumMismatch
	OutcomeNotFound
	OutcomeTimeout
	OutcomeTransport
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeSizeMismatch:
		return "size mismatch"
	case OutcomeChecksumMismatch:
		return "checksum mismatch"
	case OutcomeNotFound:
		return "not found"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeTransport:
		return "transport error"
	}
	return "unknown"
}

// Outcome reports what one fetch did. Immutable once returned.
type Outcome struct {
	Kind         OutcomeKind
	BytesWritten int64
	Duration     time.Duration
	ExpectedSize int64
	ActualSize   int64
	ExpectedSum  string
	ActualSum    string
	Detail       string
	RedirectLoop bool
}

// Err converts a failed outcome into its taxonomy error; success converts
// to nil. A redirect loop stays distinguishable from a timeout.
func (o *Outcome) Err() error {
	switch o.Kind {
	case OutcomeSuccess:
		return nil
	case OutcomeSizeMismatch:
		return fmt.Errorf("expected %d bytes, got %d: %w", o.ExpectedSize, o.ActualSize, common.ErrSizeMismatch)
	case OutcomeChecksumMismatch:
		return fmt.Errorf("expected crc %s, got %s: %w", o.ExpectedSum, o.ActualSum, common.ErrChecksumMismatch)
	case OutcomeNotFound:
		return fmt.Errorf("not found on server: %w", common.ErrNgasError)
	case OutcomeTimeout:
		return fmt.Errorf("no data within bound: %w", common.ErrNgasError)
	case OutcomeTransport:
		if o.RedirectLoop {
			return fmt.Errorf("%s: %w", o.Detail, common.ErrServiceRedirects)
		}
		return fmt.Errorf("%s: %w", o.Detail, common.ErrNgasError)
	}
	return fmt.Errorf("transfer not attempted: %w", common.ErrNgasError)
}

// Retryable reports whether running the same transfer again could succeed.
// A not-found reply is authoritative; transport trouble, expired waits and
// failed verification are worth another try.
func (o *Outcome) Retryable() bool {
	switch o.Kind {
	case OutcomeTransport, OutcomeTimeout, OutcomeSizeMismatch, OutcomeChecksumMismatch:
		return true
	}
	return false
}
