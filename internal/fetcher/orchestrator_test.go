package fetcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/datafetch/internal/common"
	"github.com/dmitrijs2005/datafetch/internal/config"
	"github.com/dmitrijs2005/datafetch/internal/locator"
	"github.com/dmitrijs2005/datafetch/internal/logging"
	"github.com/dmitrijs2005/datafetch/internal/ngas"
)

type fakeResolver struct {
	plan []*locator.Descriptor
	err  error
	opts locator.Options
}

func (f *fakeResolver) Resolve(_ context.Context, _ []locator.Identifier, opts locator.Options) ([]*locator.Descriptor, error) {
	f.opts = opts
	return f.plan, f.err
}

// fakeFetcher scripts outcomes per source name; an exhausted or missing
// script yields success. It tracks attempts and peak concurrency.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	scripts map[string][]*ngas.Outcome
	delay   time.Duration

	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeFetcher) Fetch(_ context.Context, d *locator.Descriptor) *ngas.Outcome {
	cur := f.inFlight.Add(1)
	for {
		old := f.maxSeen.Load()
		if cur <= old || f.maxSeen.CompareAndSwap(old, cur) {
			break
		}
	}
	defer f.inFlight.Add(-1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	n := f.calls[d.SourceName]
	f.calls[d.SourceName] = n + 1

	script := f.scripts[d.SourceName]
	if len(script) == 0 {
		return &ngas.Outcome{Kind: ngas.OutcomeSuccess, BytesWritten: d.ExpectedSize}
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n]
}

func (f *fakeFetcher) attempts(source string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[source]
}

func testConfig() *config.Config {
	return &config.Config{
		ExecutionSite:  "DSOC",
		ThreadsPerHost: 2,
		MaxConcurrent:  16,
		RetryCount:     2,
		RetryInterval:  time.Millisecond,
	}
}

func desc(dir, name string, size int64) *locator.Descriptor {
	return &locator.Descriptor{
		SourceName:      name,
		Server:          locator.Server{Host: "nmngas01:7777", Location: "DSOC", Cluster: "DSOC"},
		DestinationDir:  dir,
		DestinationName: name,
		ExpectedSize:    size,
		Mode:            locator.ModeStream,
		Locator:         "uid://test",
	}
}

func newTestOrchestrator(r PlanResolver, f FileFetcher) *Orchestrator {
	return NewOrchestrator(testConfig(), r, f, logging.Nop())
}

func TestRunSuccess(t *testing.T) {
	dir := t.TempDir()
	resolver := &fakeResolver{plan: []*locator.Descriptor{
		desc(dir, "a", 10), desc(dir, "b", 20), desc(dir, "c", 30),
	}}
	fetch := &fakeFetcher{}

	res, err := newTestOrchestrator(resolver, fetch).Run(context.Background(),
		[]locator.Identifier{{Type: locator.TypeProductLocator, Value: "uid://test"}},
		Options{OutputDir: dir})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 3, res.Succeeded())
	assert.Empty(t, res.Failures())
	assert.Equal(t, int64(60), res.TotalBytes())
	assert.Equal(t, common.ExitOK, res.ExitCode())
	assert.NoError(t, res.Err())
	require.Len(t, res.Outcomes, 3)
	for _, o := range res.Outcomes {
		assert.Equal(t, ngas.OutcomeSuccess, o.Kind)
	}
}

func TestRunPassesOptionsToResolver(t *testing.T) {
	dir := t.TempDir()
	resolver := &fakeResolver{}

	_, err := newTestOrchestrator(resolver, &fakeFetcher{}).Run(context.Background(), nil,
		Options{OutputDir: dir, Filter: locator.FilterSDMOnly, DirectCopy: true})
	require.NoError(t, err)

	assert.Equal(t, dir, resolver.opts.OutputDir)
	assert.Equal(t, locator.FilterSDMOnly, resolver.opts.Filter)
	assert.True(t, resolver.opts.DirectCopy)
}

func TestRunFailureIsolation(t *testing.T) {
	dir := t.TempDir()
	resolver := &fakeResolver{plan: []*locator.Descriptor{
		desc(dir, "a", 10), desc(dir, "b", 20), desc(dir, "c", 30),
	}}
	fetch := &fakeFetcher{scripts: map[string][]*ngas.Outcome{
		"b": {{Kind: ngas.OutcomeNotFound}},
	}}

	res, err := newTestOrchestrator(resolver, fetch).Run(context.Background(), nil, Options{OutputDir: dir})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Succeeded())
	require.Len(t, res.Failures(), 1)
	assert.Equal(t, "b", res.Failures()[0].Descriptor.SourceName)
	assert.Equal(t, common.ExitNgasError, res.ExitCode())
	assert.ErrorIs(t, res.Err(), common.ErrNgasError)

	// siblings of the failed transfer still ran
	assert.Equal(t, 1, fetch.attempts("a"))
	assert.Equal(t, 1, fetch.attempts("c"))
}

func TestRunExitCodeFollowsPlanOrder(t *testing.T) {
	dir := t.TempDir()
	resolver := &fakeResolver{plan: []*locator.Descriptor{
		desc(dir, "a", 10), desc(dir, "b", 20),
	}}
	fetch := &fakeFetcher{scripts: map[string][]*ngas.Outcome{
		"a": {{Kind: ngas.OutcomeSizeMismatch, ExpectedSize: 10, ActualSize: 4}},
		"b": {{Kind: ngas.OutcomeNotFound}},
	}}

	res, err := newTestOrchestrator(resolver, fetch).Run(context.Background(), nil, Options{OutputDir: dir})
	require.NoError(t, err)
	require.Len(t, res.Failures(), 2)
	assert.Equal(t, common.ExitSizeMismatch, res.ExitCode())
}

func TestRunRetries(t *testing.T) {
	t.Run("transient failures retry until success", func(t *testing.T) {
		dir := t.TempDir()
		resolver := &fakeResolver{plan: []*locator.Descriptor{desc(dir, "a", 10)}}
		fetch := &fakeFetcher{scripts: map[string][]*ngas.Outcome{
			"a": {
				{Kind: ngas.OutcomeTransport, Detail: "connection refused"},
				{Kind: ngas.OutcomeTimeout},
				{Kind: ngas.OutcomeSuccess, BytesWritten: 10},
			},
		}}

		res, err := newTestOrchestrator(resolver, fetch).Run(context.Background(), nil, Options{OutputDir: dir})
		require.NoError(t, err)
		assert.Equal(t, 3, fetch.attempts("a"))
		assert.Equal(t, 1, res.Succeeded())
		assert.Equal(t, common.ExitOK, res.ExitCode())
	})

	t.Run("retries run out", func(t *testing.T) {
		dir := t.TempDir()
		resolver := &fakeResolver{plan: []*locator.Descriptor{desc(dir, "a", 10)}}
		fetch := &fakeFetcher{scripts: map[string][]*ngas.Outcome{
			"a": {{Kind: ngas.OutcomeTransport, Detail: "connection refused"}},
		}}

		res, err := newTestOrchestrator(resolver, fetch).Run(context.Background(), nil, Options{OutputDir: dir})
		require.NoError(t, err)
		// initial attempt plus RetryCount retries
		assert.Equal(t, 3, fetch.attempts("a"))
		assert.Equal(t, common.ExitNgasError, res.ExitCode())
	})

	t.Run("not found is terminal", func(t *testing.T) {
		dir := t.TempDir()
		resolver := &fakeResolver{plan: []*locator.Descriptor{desc(dir, "a", 10)}}
		fetch := &fakeFetcher{scripts: map[string][]*ngas.Outcome{
			"a": {{Kind: ngas.OutcomeNotFound}},
		}}

		_, err := newTestOrchestrator(resolver, fetch).Run(context.Background(), nil, Options{OutputDir: dir})
		require.NoError(t, err)
		assert.Equal(t, 1, fetch.attempts("a"))
	})
}

func TestRunDryRun(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	resolver := &fakeResolver{plan: []*locator.Descriptor{
		desc(filepath.Join(dir, "eb1"), "a", 10), desc(filepath.Join(dir, "eb1"), "b", 20),
	}}
	fetch := &fakeFetcher{}
	orch := newTestOrchestrator(resolver, fetch)

	first, err := orch.Run(context.Background(), nil, Options{OutputDir: dir, DryRun: true})
	require.NoError(t, err)
	second, err := orch.Run(context.Background(), nil, Options{OutputDir: dir, DryRun: true})
	require.NoError(t, err)

	assert.True(t, first.DryRun)
	assert.Empty(t, first.Outcomes)
	assert.Equal(t, common.ExitOK, first.ExitCode())
	assert.Zero(t, fetch.attempts("a"))
	assert.Zero(t, fetch.attempts("b"))

	// no writes at all: the output tree was never created
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	// identical plans run to run
	require.Len(t, second.Plan, len(first.Plan))
	for i := range first.Plan {
		assert.Equal(t, first.Plan[i].Destination(), second.Plan[i].Destination())
	}
}

func TestRunExistingDestination(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("old"), 0o644))
	resolver := &fakeResolver{plan: []*locator.Descriptor{desc(dir, "a", 10)}}

	t.Run("refused without force", func(t *testing.T) {
		fetch := &fakeFetcher{}
		res, err := newTestOrchestrator(resolver, fetch).Run(context.Background(), nil, Options{OutputDir: dir})
		assert.Nil(t, res)
		assert.ErrorIs(t, err, common.ErrFileError)
		assert.Zero(t, fetch.attempts("a"))
	})

	t.Run("force overwrites", func(t *testing.T) {
		fetch := &fakeFetcher{}
		res, err := newTestOrchestrator(resolver, fetch).Run(context.Background(), nil, Options{OutputDir: dir, Force: true})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Succeeded())
	})
}

func TestRunDuplicateDestinations(t *testing.T) {
	dir := t.TempDir()
	resolver := &fakeResolver{plan: []*locator.Descriptor{
		desc(dir, "same", 10), desc(dir, "same", 20),
	}}
	fetch := &fakeFetcher{}

	res, err := newTestOrchestrator(resolver, fetch).Run(context.Background(), nil, Options{OutputDir: dir})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, common.ErrFileError)
	assert.Zero(t, fetch.attempts("same"))
}

func TestRunResolveFailure(t *testing.T) {
	wantErr := fmt.Errorf("no science product: %w", common.ErrNoLocator)
	resolver := &fakeResolver{err: wantErr}
	fetch := &fakeFetcher{}

	res, err := newTestOrchestrator(resolver, fetch).Run(context.Background(), nil, Options{OutputDir: t.TempDir()})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, common.ErrNoLocator)
	assert.Empty(t, fetch.calls)
}

func TestRunConcurrencyBound(t *testing.T) {
	dir := t.TempDir()
	var plan []*locator.Descriptor
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		plan = append(plan, desc(dir, name, 1))
	}
	resolver := &fakeResolver{plan: plan}
	fetch := &fakeFetcher{delay: 30 * time.Millisecond}

	res, err := newTestOrchestrator(resolver, fetch).Run(context.Background(), nil,
		Options{OutputDir: dir, Concurrency: 2})
	require.NoError(t, err)
	assert.Equal(t, 6, res.Succeeded())
	assert.Equal(t, int32(2), fetch.maxSeen.Load())
}

func TestRunCancellation(t *testing.T) {
	dir := t.TempDir()
	var plan []*locator.Descriptor
	for _, name := range []string{"a", "b", "c", "d"} {
		plan = append(plan, desc(dir, name, 1))
	}
	resolver := &fakeResolver{plan: plan}
	fetch := &fakeFetcher{delay: 50 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res, err := newTestOrchestrator(resolver, fetch).Run(ctx, nil,
		Options{OutputDir: dir, Concurrency: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	require.Len(t, res.Outcomes, 4)

	skipped := 0
	for _, o := range res.Outcomes {
		if o.Kind == ngas.OutcomeUnknown {
			skipped++
		}
	}
	assert.Greater(t, skipped, 0, "cancellation should stop dispatch")
}

func TestWorkerCount(t *testing.T) {
	dir := t.TempDir()
	planOn := func(hosts ...string) []*locator.Descriptor {
		var plan []*locator.Descriptor
		for i, h := range hosts {
			d := desc(dir, fmt.Sprintf("f%d", i), 1)
			d.Server.Host = h
			plan = append(plan, d)
		}
		return plan
	}
	orch := newTestOrchestrator(&fakeResolver{}, &fakeFetcher{})

	t.Run("explicit concurrency wins", func(t *testing.T) {
		got := orch.workerCount(planOn("h1", "h1", "h1", "h1"), Options{Concurrency: 3})
		assert.Equal(t, 3, got)
	})

	t.Run("derived from hosts", func(t *testing.T) {
		// 2 threads per host, 2 distinct hosts
		got := orch.workerCount(planOn("h1", "h1", "h2", "h2", "h2"), Options{})
		assert.Equal(t, 4, got)
	})

	t.Run("capped by plan size", func(t *testing.T) {
		got := orch.workerCount(planOn("h1", "h2"), Options{Concurrency: 10})
		assert.Equal(t, 2, got)
	})

	t.Run("capped by profile", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxConcurrent = 3
		orch := NewOrchestrator(cfg, &fakeResolver{}, &fakeFetcher{}, logging.Nop())
		got := orch.workerCount(planOn("h1", "h2", "h3", "h4", "h5"), Options{})
		assert.Equal(t, 3, got)
	})

	t.Run("never below one", func(t *testing.T) {
		cfg := testConfig()
		cfg.ThreadsPerHost = 0
		orch := NewOrchestrator(cfg, &fakeResolver{}, &fakeFetcher{}, logging.Nop())
		got := orch.workerCount(planOn("h1", "h2"), Options{})
		assert.Equal(t, 1, got)
	})
}
