// Package fetcher orchestrates retrieval runs: resolve identifiers into a
// transfer plan, prepare destinations, fan the transfers out to a bounded
// worker pool with per-transfer retries, and aggregate the outcomes into
// one result.
package fetcher

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/datafetch/internal/common"
	"github.com/dmitrijs2005/datafetch/internal/config"
	"github.com/dmitrijs2005/datafetch/internal/filex"
	"github.com/dmitrijs2005/datafetch/internal/locator"
	"github.com/dmitrijs2005/datafetch/internal/logging"
	"github.com/dmitrijs2005/datafetch/internal/ngas"
)

// PlanResolver expands identifiers into transfer plans.
type PlanResolver interface {
	Resolve(ctx context.Context, ids []locator.Identifier, opts locator.Options) ([]*locator.Descriptor, error)
}

// FileFetcher executes one transfer.
type FileFetcher interface {
	Fetch(ctx context.Context, d *locator.Descriptor) *ngas.Outcome
}

// Options adjust one orchestrated run.
type Options struct {
	OutputDir   string
	Filter      locator.Filter
	DirectCopy  bool
	DryRun      bool
	Force       bool
	Concurrency int // explicit worker count, 0 derives it from config
}

// Orchestrator drives retrieval runs end to end.
type Orchestrator struct {
	cfg       *config.Config
	resolver  PlanResolver
	retriever FileFetcher
	log       logging.Logger
}

func NewOrchestrator(cfg *config.Config, resolver PlanResolver, retriever FileFetcher, log logging.Logger) *Orchestrator {
	return &Orchestrator{cfg: cfg, resolver: resolver, retriever: retriever, log: log.With("component", "fetcher")}
}

// Run resolves ids and fetches everything in the resulting plan. Planning
// and preparation failures return before any transfer starts; transfer
// failures are collected in the result. The result is non-nil whenever a
// plan was resolved, even when the run was interrupted part-way.
func (o *Orchestrator) Run(ctx context.Context, ids []locator.Identifier, opts Options) (*Result, error) {
	plan, err := o.resolver.Resolve(ctx, ids, locator.Options{
		OutputDir:  opts.OutputDir,
		Filter:     opts.Filter,
		DirectCopy: opts.DirectCopy,
	})
	if err != nil {
		return nil, err
	}
	if err := locator.ValidatePlan(plan); err != nil {
		return nil, err
	}

	res := &Result{RunID: uuid.NewString(), Plan: plan, DryRun: opts.DryRun}
	o.log.Debug(ctx, "plan ready", "run", res.RunID, "files", len(plan))
	if opts.DryRun {
		return res, nil
	}

	if err := o.preparePlan(plan, opts.Force); err != nil {
		return nil, err
	}

	start := time.Now()
	res.Outcomes = make([]*ngas.Outcome, len(plan))
	o.fetchAll(ctx, plan, res.Outcomes, opts)
	for i, out := range res.Outcomes {
		if out == nil {
			res.Outcomes[i] = &ngas.Outcome{Kind: ngas.OutcomeUnknown}
		}
	}
	res.Elapsed = time.Since(start)

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("interrupted: %w", err)
	}
	return res, nil
}

// preparePlan creates destination directories and enforces the overwrite
// rule before any byte moves.
func (o *Orchestrator) preparePlan(plan []*locator.Descriptor, force bool) error {
	checked := make(map[string]struct{}, len(plan))
	for _, d := range plan {
		if _, err := os.Stat(d.Destination()); err == nil && !force {
			return fmt.Errorf("%s exists; pass --force to overwrite: %w", d.Destination(), common.ErrFileError)
		}
		if _, ok := checked[d.DestinationDir]; ok {
			continue
		}
		if _, err := filex.EnsureDir(d.DestinationDir); err != nil {
			return fmt.Errorf("cannot create %s: %s: %w", d.DestinationDir, err, common.ErrFileError)
		}
		if err := filex.CheckWritableDir(d.DestinationDir); err != nil {
			return fmt.Errorf("%s: %w", err, common.ErrFileError)
		}
		checked[d.DestinationDir] = struct{}{}
	}
	return nil
}

// fetchAll dispatches the plan. Each outcome lands in its descriptor's
// plan slot, so result order never depends on scheduling. A failing
// transfer never cancels its siblings; only ctx cancellation stops
// dispatch early.
func (o *Orchestrator) fetchAll(ctx context.Context, plan []*locator.Descriptor, outcomes []*ngas.Outcome, opts Options) {
	if len(plan) == 1 {
		outcomes[0] = o.fetchOne(ctx, plan[0], 1, 1)
		return
	}

	workers := o.workerCount(plan, opts)
	o.log.Debug(ctx, "dispatching", "files", len(plan), "workers", workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, d := range plan {
		if gctx.Err() != nil {
			break
		}
		i, d := i, d
		g.Go(func() error {
			outcomes[i] = o.fetchOne(gctx, d, i+1, len(plan))
			return nil
		})
	}
	_ = g.Wait()
}

// workerCount sizes the pool: an explicit request wins, otherwise the
// per-host allowance times the number of distinct hosts, capped by the
// profile and by the plan itself.
func (o *Orchestrator) workerCount(plan []*locator.Descriptor, opts Options) int {
	n := opts.Concurrency
	if n < 1 {
		hosts := make(map[string]struct{}, len(plan))
		for _, d := range plan {
			hosts[d.Server.Host] = struct{}{}
		}
		n = o.cfg.ThreadsPerHost * len(hosts)
	}
	if limit := o.cfg.MaxConcurrent; limit > 0 && n > limit {
		n = limit
	}
	if n > len(plan) {
		n = len(plan)
	}
	if n < 1 {
		n = 1
	}
	return n
}

// fetchOne runs a single transfer under the retry policy. Only outcomes
// that could change on another attempt are retried; the last outcome
// stands.
func (o *Orchestrator) fetchOne(ctx context.Context, d *locator.Descriptor, no, of int) *ngas.Outcome {
	log := o.log.With("file", d.SourceName, "no", fmt.Sprintf("%d/%d", no, of))
	log.Info(ctx, "retrieving", "dest", d.Destination(), "bytes", d.ExpectedSize, "mode", d.Mode)

	var out *ngas.Outcome
	backoff := retry.WithMaxRetries(uint64(o.cfg.RetryCount), retry.NewConstant(o.retryInterval()))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		out = o.retriever.Fetch(ctx, d)
		if err := out.Err(); err != nil {
			if out.Retryable() {
				log.Warn(ctx, "transfer failed, retrying", "reason", err)
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		log.Warn(ctx, "transfer failed", "reason", err)
		return out
	}
	log.Info(ctx, "retrieved", "bytes", out.BytesWritten, "in", out.Duration)
	return out
}

// retryInterval guards against a zero interval, which the constant
// backoff refuses.
func (o *Orchestrator) retryInterval() time.Duration {
	if o.cfg.RetryInterval > 0 {
		return o.cfg.RetryInterval
	}
	return time.Second
}
