package fetcher

import (
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/dmitrijs2005/datafetch/internal/common"
	"github.com/dmitrijs2005/datafetch/internal/locator"
	"github.com/dmitrijs2005/datafetch/internal/ngas"
)

// Failure pairs a descriptor with the outcome that sank it.
type Failure struct {
	Descriptor *locator.Descriptor
	Outcome    *ngas.Outcome
}

// Result aggregates one invocation: the resolved plan and, unless the run
// was a dry run, one outcome per descriptor in plan order. Outcomes for
// transfers that never ran (cancelled dispatch) carry OutcomeUnknown.
type Result struct {
	RunID    string
	Plan     []*locator.Descriptor
	Outcomes []*ngas.Outcome
	DryRun   bool
	Elapsed  time.Duration
}

// Succeeded counts completed transfers.
func (r *Result) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == ngas.OutcomeSuccess {
			n++
		}
	}
	return n
}

// Failures lists failed descriptors, keeping plan order.
func (r *Result) Failures() []Failure {
	var fs []Failure
	for i, o := range r.Outcomes {
		if o.Kind == ngas.OutcomeSuccess {
			continue
		}
		fs = append(fs, Failure{Descriptor: r.Plan[i], Outcome: o})
	}
	return fs
}

// TotalBytes sums the bytes delivered by successful transfers. Failed
// attempts leave nothing behind, so their bytes do not count.
func (r *Result) TotalBytes() int64 {
	var n int64
	for _, o := range r.Outcomes {
		if o.Kind == ngas.OutcomeSuccess {
			n += o.BytesWritten
		}
	}
	return n
}

// Err combines every failure into one error; nil when all transfers
// succeeded. Dry runs have no outcomes and never fail.
func (r *Result) Err() error {
	var errs []error
	for _, f := range r.Failures() {
		errs = append(errs, fmt.Errorf("%s (from %s): %w", f.Descriptor.SourceName, f.Descriptor.Locator, f.Outcome.Err()))
	}
	return multierr.Combine(errs...)
}

// ExitCode is the process exit status: zero on full success, otherwise
// the class of the first failure in plan order.
func (r *Result) ExitCode() int {
	fs := r.Failures()
	if len(fs) == 0 {
		return common.ExitOK
	}
	return common.ExitCodeFor(fs[0].Outcome.Err())
}
