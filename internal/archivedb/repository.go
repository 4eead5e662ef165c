// Package archivedb reads file metadata from the archive's PostgreSQL
// database. Access is read only: the client resolves identifiers here but
// never writes archive state.
package archivedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/datafetch/internal/common"
	"github.com/dmitrijs2005/datafetch/internal/dbx"
)

// File is one row of archive file metadata.
type File struct {
	ID      int64
	NGASID  string
	Name    string
	Size    int64 // -1 when the archive does not record a size
	GroupID int64
}

// NGASLocation names one NGAS server holding a copy of a file.
type NGASLocation struct {
	Server   string
	Location string
	Cluster  string
	Version  int
}

// Open connects to the metadata database via the pgx stdlib driver. The
// connection is verified lazily, on first use.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db error: %s: %w", err, common.ErrServiceError)
	}
	return db, nil
}

// Repository runs the metadata queries the resolver needs.
type Repository struct {
	db dbx.DBTX
}

func NewRepository(db dbx.DBTX) *Repository {
	return &Repository{db: db}
}

// LocatorForFileset returns the science product locator registered for a
// fileset name.
func (r *Repository) LocatorForFileset(ctx context.Context, fileset string) (string, error) {
	query := `SELECT science_product_locator FROM science_products WHERE external_name = $1`
	var locator sql.NullString
	err := r.db.QueryRowContext(ctx, query, fileset).Scan(&locator)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("no science product named %q: %w", fileset, common.ErrNoLocator)
	}
	if err != nil {
		return "", fmt.Errorf("db error: %s: %w", err, common.ErrServiceError)
	}
	if !locator.Valid || locator.String == "" {
		return "", fmt.Errorf("science product %q has no locator: %w", fileset, common.ErrMissingMetadata)
	}
	return locator.String, nil
}

// FileByArchiveID looks a file up by its numeric archive id.
func (r *Repository) FileByArchiveID(ctx context.Context, id int64) (*File, error) {
	query := `SELECT file_id, ngas_id, file_name, file_size, file_group FROM files WHERE file_id = $1`
	f, err := r.scanFile(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no archive file with id %d: %w", id, common.ErrNoLocator)
	}
	return f, err
}

// FileByNGASID looks a file up by the id it carries inside NGAS.
func (r *Repository) FileByNGASID(ctx context.Context, ngasID string) (*File, error) {
	query := `SELECT file_id, ngas_id, file_name, file_size, file_group FROM files WHERE ngas_id = $1`
	f, err := r.scanFile(r.db.QueryRowContext(ctx, query, ngasID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no archive file with ngas id %q: %w", ngasID, common.ErrNoLocator)
	}
	return f, err
}

// FilesByGroupID returns every file in a file group, ordered by name so
// repeated runs build identical plans.
func (r *Repository) FilesByGroupID(ctx context.Context, groupID int64) ([]*File, error) {
	query := `SELECT file_id, ngas_id, file_name, file_size, file_group FROM files WHERE file_group = $1 ORDER BY file_name, file_id`
	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("db error: %s: %w", err, common.ErrServiceError)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f, err := r.scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %s: %w", err, common.ErrServiceError)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files in group %d: %w", groupID, common.ErrNoLocator)
	}
	return files, nil
}

// LocationsForNGASID returns the NGAS servers that hold a file, ordered by
// server name.
func (r *Repository) LocationsForNGASID(ctx context.Context, ngasID string) ([]*NGASLocation, error) {
	query := `SELECT server, location, cluster, file_version FROM ngas_file_locations WHERE ngas_id = $1 ORDER BY server`
	rows, err := r.db.QueryContext(ctx, query, ngasID)
	if err != nil {
		return nil, fmt.Errorf("db error: %s: %w", err, common.ErrServiceError)
	}
	defer rows.Close()

	var locs []*NGASLocation
	for rows.Next() {
		var l NGASLocation
		if err := rows.Scan(&l.Server, &l.Location, &l.Cluster, &l.Version); err != nil {
			return nil, fmt.Errorf("db error: %s: %w", err, common.ErrServiceError)
		}
		locs = append(locs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %s: %w", err, common.ErrServiceError)
	}
	return locs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanFile(row scanner) (*File, error) {
	var (
		f      File
		ngasID sql.NullString
		size   sql.NullInt64
		group  sql.NullInt64
	)
	err := row.Scan(&f.ID, &ngasID, &f.Name, &size, &group)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %s: %w", err, common.ErrServiceError)
	}
	if !ngasID.Valid || ngasID.String == "" {
		return nil, fmt.Errorf("file %d has no ngas id: %w", f.ID, common.ErrMissingMetadata)
	}
	f.NGASID = ngasID.String
	f.Size = -1
	if size.Valid {
		f.Size = size.Int64
	}
	f.GroupID = group.Int64
	return &f, nil
}
