package locator

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/datafetch/internal/archivedb"
	"github.com/dmitrijs2005/datafetch/internal/common"
	"github.com/dmitrijs2005/datafetch/internal/config"
	"github.com/dmitrijs2005/datafetch/internal/filex"
	"github.com/dmitrijs2005/datafetch/internal/logging"
	"github.com/dmitrijs2005/datafetch/internal/netx"
)

// ReportLookup resolves a product locator to its locations report.
type ReportLookup interface {
	Lookup(ctx context.Context, productLocator string) (*Report, error)
}

// MetadataDB is the subset of archive database lookups the resolver needs.
// *archivedb.Repository satisfies it.
type MetadataDB interface {
	LocatorForFileset(ctx context.Context, fileset string) (string, error)
	FileByArchiveID(ctx context.Context, id int64) (*archivedb.File, error)
	FileByNGASID(ctx context.Context, ngasID string) (*archivedb.File, error)
	FilesByGroupID(ctx context.Context, groupID int64) ([]*archivedb.File, error)
	LocationsForNGASID(ctx context.Context, ngasID string) ([]*archivedb.NGASLocation, error)
}

// Identifier pairs a command-line value with its declared type.
type Identifier struct {
	Type  IdentifierType
	Value string
}

// Filter restricts which enumerated files become transfers. It applies to
// sources that list files (reports, filesets, file groups), never to a
// file the user named directly.
type Filter int

const (
	// FilterNone keeps every file.
	FilterNone Filter = iota
	// FilterSDMOnly keeps the SDM tables, the .bin and .xml files.
	FilterSDMOnly
	// FilterBDFOnly keeps the .bdf bulk data files.
	FilterBDFOnly
)

func (f Filter) keep(name string) bool {
	switch f {
	case FilterSDMOnly:
		return strings.HasSuffix(name, ".bin") || strings.HasSuffix(name, ".xml")
	case FilterBDFOnly:
		return strings.HasSuffix(name, ".bdf")
	}
	return true
}

// Options adjust how identifiers expand into a plan.
type Options struct {
	OutputDir  string
	Filter     Filter
	DirectCopy bool
}

// Resolver turns identifiers into transfer plans. It only reads: network
// and database lookups, no filesystem writes.
type Resolver struct {
	cfg *config.Config
	svc ReportLookup
	db  MetadataDB
	log logging.Logger
}

// NewResolver wires a resolver. db may be nil when no identifier type in
// play consults the archive database.
func NewResolver(cfg *config.Config, svc ReportLookup, db MetadataDB, log logging.Logger) *Resolver {
	return &Resolver{cfg: cfg, svc: svc, db: db, log: log.With("component", "resolver")}
}

// Resolve expands every identifier into descriptors. It fails fast: the
// first identifier that cannot be resolved aborts the whole plan, so a
// partial plan never executes. The combined plan is checked for
// destination collisions.
func (r *Resolver) Resolve(ctx context.Context, ids []Identifier, opts Options) ([]*Descriptor, error) {
	var plan []*Descriptor
	for _, id := range ids {
		ds, err := r.resolveOne(ctx, id, opts)
		if err != nil {
			return nil, err
		}
		plan = append(plan, ds...)
	}
	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}
	r.log.Debug(ctx, "plan resolved", "identifiers", len(ids), "files", len(plan))
	return plan, nil
}

func (r *Resolver) resolveOne(ctx context.Context, id Identifier, opts Options) ([]*Descriptor, error) {
	switch id.Type {
	case TypeProductLocator:
		return r.resolveLocator(ctx, id.Value, opts)
	case TypeLocationFile:
		return r.resolveLocationFile(ctx, id.Value, opts)
	case TypeReportJSON:
		rep, err := ReadReportFile(id.Value)
		if err != nil {
			return nil, err
		}
		return r.fromReport(rep, id.Value, opts)
	case TypeNGASFile:
		return r.resolveNGASFile(ctx, id.Value, opts)
	case TypeArchiveFile:
		return r.resolveArchiveFile(ctx, id.Value, opts)
	case TypeFileGroup:
		return r.resolveFileGroup(ctx, id.Value, opts)
	case TypeFileset:
		return r.resolveFileset(ctx, id.Value, opts)
	}
	return nil, fmt.Errorf("unknown identifier type %q: %w", id.Type, common.ErrMissingSetting)
}

func (r *Resolver) resolveLocator(ctx context.Context, productLocator string, opts Options) ([]*Descriptor, error) {
	rep, err := r.svc.Lookup(ctx, productLocator)
	if err != nil {
		return nil, err
	}
	return r.fromReport(rep, productLocator, opts)
}

func (r *Resolver) resolveLocationFile(ctx context.Context, path string, opts Options) ([]*Descriptor, error) {
	locators, err := ReadLocationFile(path)
	if err != nil {
		return nil, err
	}
	var plan []*Descriptor
	for _, loc := range locators {
		ds, err := r.resolveLocator(ctx, loc, opts)
		if err != nil {
			return nil, err
		}
		plan = append(plan, ds...)
	}
	return plan, nil
}

// fromReport builds descriptors from a locations report. A report with no
// files at all is broken metadata; a filter matching nothing is a
// legitimate empty result.
func (r *Resolver) fromReport(rep *Report, source string, opts Options) ([]*Descriptor, error) {
	if len(rep.Files) == 0 {
		return nil, fmt.Errorf("locations report for %s names no files: %w", source, common.ErrMissingMetadata)
	}
	var plan []*Descriptor
	for i := range rep.Files {
		f := &rep.Files[i]
		if !opts.Filter.keep(f.RelativePath) {
			continue
		}
		if err := f.Validate(); err != nil {
			return nil, err
		}
		plan = append(plan, &Descriptor{
			SourceName:      f.NGASFileID,
			Version:         f.Version,
			Server:          f.Server,
			DestinationDir:  filex.SubPath(opts.OutputDir, f.Subdirectory),
			DestinationName: f.RelativePath,
			ExpectedSize:    *f.Size,
			Checksum:        f.Checksum,
			ChecksumType:    f.ChecksumType,
			Mode:            SelectMode(f.Server, opts.DirectCopy, r.cfg.ExecutionSite),
			Locator:         source,
		})
	}
	sortPlan(plan)
	return plan, nil
}

func (r *Resolver) resolveNGASFile(ctx context.Context, ngasID string, opts Options) ([]*Descriptor, error) {
	db, err := r.metadataDB()
	if err != nil {
		return nil, err
	}
	f, err := db.FileByNGASID(ctx, ngasID)
	if err != nil {
		return nil, err
	}
	d, err := r.fromArchiveFile(ctx, db, f, f.NGASID, ngasID, opts)
	if err != nil {
		return nil, err
	}
	return []*Descriptor{d}, nil
}

// resolveArchiveFile fetches by numeric archive id. The destination takes
// the name recorded in the archive database even when it differs from the
// NGAS id, so the local file matches what archive tools expect.
func (r *Resolver) resolveArchiveFile(ctx context.Context, value string, opts Options) ([]*Descriptor, error) {
	db, err := r.metadataDB()
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("archive file id %q is not numeric: %w", value, common.ErrNoLocator)
	}
	f, err := db.FileByArchiveID(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := r.fromArchiveFile(ctx, db, f, f.Name, value, opts)
	if err != nil {
		return nil, err
	}
	return []*Descriptor{d}, nil
}

func (r *Resolver) resolveFileGroup(ctx context.Context, value string, opts Options) ([]*Descriptor, error) {
	db, err := r.metadataDB()
	if err != nil {
		return nil, err
	}
	groupID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("file group id %q is not numeric: %w", value, common.ErrNoLocator)
	}
	files, err := db.FilesByGroupID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	var plan []*Descriptor
	for _, f := range files {
		if !opts.Filter.keep(f.Name) {
			continue
		}
		d, err := r.fromArchiveFile(ctx, db, f, f.Name, value, opts)
		if err != nil {
			return nil, err
		}
		plan = append(plan, d)
	}
	sortPlan(plan)
	return plan, nil
}

func (r *Resolver) resolveFileset(ctx context.Context, fileset string, opts Options) ([]*Descriptor, error) {
	db, err := r.metadataDB()
	if err != nil {
		return nil, err
	}
	productLocator, err := db.LocatorForFileset(ctx, fileset)
	if err != nil {
		return nil, err
	}
	plan, err := r.resolveLocator(ctx, productLocator, opts)
	if err != nil {
		return nil, err
	}
	for _, d := range plan {
		d.Locator = fileset
	}
	return plan, nil
}

// fromArchiveFile builds the descriptor for one database-resolved file.
// When several NGAS hosts hold the file the first by server name is used,
// keeping the pick deterministic.
func (r *Resolver) fromArchiveFile(ctx context.Context, db MetadataDB, f *archivedb.File, destName, source string, opts Options) (*Descriptor, error) {
	locs, err := db.LocationsForNGASID(ctx, f.NGASID)
	if err != nil {
		return nil, err
	}
	if len(locs) == 0 {
		return nil, fmt.Errorf("file %s is not on any ngas host: %w", f.NGASID, common.ErrNoLocator)
	}
	loc := locs[0]
	if err := netx.ValidateHostPort(loc.Server); err != nil {
		return nil, fmt.Errorf("file %s: %s: %w", f.NGASID, err, common.ErrMissingMetadata)
	}
	server := Server{Host: loc.Server, Location: loc.Location, Cluster: loc.Cluster}
	size := f.Size
	if size < 0 {
		size = SizeUnknown
	}
	return &Descriptor{
		SourceName:      f.NGASID,
		Version:         loc.Version,
		Server:          server,
		DestinationDir:  opts.OutputDir,
		DestinationName: destName,
		ExpectedSize:    size,
		Mode:            SelectMode(server, opts.DirectCopy, r.cfg.ExecutionSite),
		Locator:         source,
	}, nil
}

func (r *Resolver) metadataDB() (MetadataDB, error) {
	if r.db == nil {
		return nil, fmt.Errorf("identifier type needs the metadata database but %q is not set: %w",
			config.KeyMetadataJdbcURL, common.ErrMissingSetting)
	}
	return r.db, nil
}

// sortPlan orders descriptors by source name then destination so repeated
// runs over the same inputs produce identical plans.
func sortPlan(plan []*Descriptor) {
	sort.Slice(plan, func(i, j int) bool {
		if plan[i].SourceName != plan[j].SourceName {
			return plan[i].SourceName < plan[j].SourceName
		}
		return plan[i].Destination() < plan[j].Destination()
	})
}
