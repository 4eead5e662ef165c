// Command datafetch retrieves science products and ancillary files from
// the NRAO archive: it resolves identifiers to NGAS file locations,
// fetches every file by streaming or direct server copy, verifies the
// results and exits with a code naming the first failure class.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/dmitrijs2005/datafetch/internal/archivedb"
	"github.com/dmitrijs2005/datafetch/internal/common"
	"github.com/dmitrijs2005/datafetch/internal/config"
	"github.com/dmitrijs2005/datafetch/internal/fetcher"
	"github.com/dmitrijs2005/datafetch/internal/locator"
	"github.com/dmitrijs2005/datafetch/internal/logging"
	"github.com/dmitrijs2005/datafetch/internal/ngas"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// exit-coded errors have already printed and exited; anything
		// reaching this point is a usage or parse problem
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      common.AppName,
		Usage:     "retrieve files from the NRAO archive",
		UsageText: common.AppName + " [options] identifier [identifier ...]",
		Version:   version,
		Description: `Retrieves the files behind archive identifiers: product locators,
location files, raw locations reports, NGAS or archive file ids, file
groups and fileset names.

Exit codes: 1 no profile, 2 missing setting or bad usage, 3 locator
service timeout, 4 too many redirects, 5 locator service error, 6 no
such locator, 7 file error, 8 NGAS retrieval error, 9 size or checksum
mismatch.`,
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "profile",
				Aliases: []string{"P"},
				Usage:   "profile naming the archive environment (falls back to $" + config.EnvProfile + ")",
			},
			&cli.StringFlag{
				Name:    "output-dir",
				Aliases: []string{"o"},
				Value:   ".",
				Usage:   "directory receiving the files",
			},
			&cli.StringFlag{
				Name:    "type",
				Aliases: []string{"t"},
				Value:   string(locator.TypeProductLocator),
				Usage: "identifier type: product-locator, location-file, report-json, " +
					"ngas-file, archive-file, file-group or fileset",
			},
			&cli.BoolFlag{Name: "direct-copy", Usage: "let on-site NGAS hosts write files straight to the destination"},
			&cli.BoolFlag{Name: "sdm-only", Usage: "keep only the SDM tables (.bin, .xml)"},
			&cli.BoolFlag{Name: "bdf-only", Usage: "keep only the BDF files"},
			&cli.BoolFlag{Name: "dry-run", Usage: "resolve and print the plan without fetching"},
			&cli.BoolFlag{Name: "force", Usage: "overwrite existing destination files"},
			&cli.BoolFlag{Name: "verify-checksum", Usage: "recompute CRC32 sums after each transfer"},
			&cli.BoolFlag{Name: "progress", Usage: "show a progress bar per transfer on a terminal"},
			&cli.BoolFlag{Name: "verbose", Usage: "debug logging"},
			&cli.IntFlag{Name: "concurrency", Usage: "exact worker count (default: derived from the profile)"},
			&cli.StringFlag{Name: "archive", Usage: "archive hint passed to the locator service"},
		},
		Action: run,
	}
}

func run(cctx *cli.Context) error {
	log := logging.NewTextLogger(os.Stderr, cctx.Bool("verbose"))

	typ, err := locator.ParseIdentifierType(cctx.String("type"))
	if err != nil {
		return fail(err)
	}
	values := cctx.Args().Slice()
	if err := checkUsage(typ, values, cctx.Bool("sdm-only"), cctx.Bool("bdf-only")); err != nil {
		return fail(err)
	}

	cfg, err := config.Load(cctx.String("profile"))
	if err != nil {
		return fail(err)
	}

	svc := locator.NewService(cfg, cctx.String("archive"), log)

	var db locator.MetadataDB
	if typ.NeedsMetadataDB() {
		dsn, err := cfg.MetadataDSN()
		if err != nil {
			return fail(err)
		}
		conn, err := archivedb.Open(dsn)
		if err != nil {
			return fail(err)
		}
		defer conn.Close()
		db = archivedb.NewRepository(conn)
	}

	resolver := locator.NewResolver(cfg, svc, db, log)
	retriever := ngas.NewRetriever(log, ngas.Options{
		Timeout:        cfg.ServiceTimeout,
		MaxRedirects:   cfg.MaxRedirects,
		Progress:       cctx.Bool("progress") && term.IsTerminal(int(os.Stdout.Fd())),
		VerifyChecksum: cctx.Bool("verify-checksum"),
	})
	orch := fetcher.NewOrchestrator(cfg, resolver, retriever, log)

	ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ids := make([]locator.Identifier, 0, len(values))
	for _, v := range values {
		ids = append(ids, locator.Identifier{Type: typ, Value: v})
	}

	res, err := orch.Run(ctx, ids, fetcher.Options{
		OutputDir:   cctx.String("output-dir"),
		Filter:      pickFilter(cctx.Bool("sdm-only"), cctx.Bool("bdf-only")),
		DirectCopy:  cctx.Bool("direct-copy"),
		DryRun:      cctx.Bool("dry-run"),
		Force:       cctx.Bool("force"),
		Concurrency: cctx.Int("concurrency"),
	})
	if err != nil {
		if res != nil {
			printSummary(os.Stdout, res)
		}
		return fail(err)
	}

	if res.DryRun {
		printPlan(os.Stdout, res.Plan)
		return nil
	}

	printSummary(os.Stdout, res)
	if code := res.ExitCode(); code != common.ExitOK {
		return cli.Exit("", code)
	}
	return nil
}

// checkUsage validates the identifier list against the declared type.
func checkUsage(typ locator.IdentifierType, ids []string, sdmOnly, bdfOnly bool) error {
	if len(ids) == 0 {
		return fmt.Errorf("no identifiers given: %w", common.ErrMissingSetting)
	}
	if typ.TakesFilePath() && len(ids) != 1 {
		return fmt.Errorf("type %s takes exactly one file path: %w", typ, common.ErrMissingSetting)
	}
	if sdmOnly && bdfOnly {
		return fmt.Errorf("--sdm-only and --bdf-only are mutually exclusive: %w", common.ErrMissingSetting)
	}
	return nil
}

func pickFilter(sdmOnly, bdfOnly bool) locator.Filter {
	switch {
	case sdmOnly:
		return locator.FilterSDMOnly
	case bdfOnly:
		return locator.FilterBDFOnly
	}
	return locator.FilterNone
}

func fail(err error) error {
	return cli.Exit(err.Error(), common.ExitCodeFor(err))
}

func sizeLabel(n int64) string {
	if n < 0 {
		return "unknown"
	}
	return humanize.Bytes(uint64(n))
}

// printPlan lists what a run would fetch, one line per file.
func printPlan(w io.Writer, plan []*locator.Descriptor) {
	for _, d := range plan {
		fmt.Fprintf(w, "%-6s  %-10s  %s -> %s\n", d.Mode, sizeLabel(d.ExpectedSize), d.SourceName, d.Destination())
	}
	fmt.Fprintf(w, "%d file(s) would be retrieved\n", len(plan))
}

func printSummary(w io.Writer, res *fetcher.Result) {
	fmt.Fprintf(w, "retrieved %d of %d file(s), %s in %s\n",
		res.Succeeded(), len(res.Plan),
		humanize.Bytes(uint64(res.TotalBytes())), res.Elapsed.Round(time.Millisecond))
	for _, f := range res.Failures() {
		fmt.Fprintf(w, "  FAILED %s (from %s): %v\n", f.Descriptor.SourceName, f.Descriptor.Locator, f.Outcome.Err())
	}
}
