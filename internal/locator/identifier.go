// Package locator turns archive identifiers into transfer plans. It asks
// the location service (or the metadata database, or a local file) what a
// given identifier stands for and produces one descriptor per file to
// retrieve.
package locator

import (
	"fmt"

	"github.com/dmitrijs2005/datafetch/internal/common"
)

// IdentifierType names the kind of identifier passed on the command line.
type IdentifierType string

const (
	// TypeProductLocator is a science product locator resolved through the
	// location service.
	TypeProductLocator IdentifierType = "product-locator"
	// TypeLocationFile is a local text file listing one product locator
	// per line.
	TypeLocationFile IdentifierType = "location-file"
	// TypeReportJSON is a local location report saved as JSON, used
	// instead of calling the service.
	TypeReportJSON IdentifierType = "report-json"
	// TypeNGASFile is a single file named by its NGAS id.
	TypeNGASFile IdentifierType = "ngas-file"
	// TypeArchiveFile is a single file named by its numeric archive id.
	TypeArchiveFile IdentifierType = "archive-file"
	// TypeFileGroup is a numeric file group id expanding to every file in
	// the group.
	TypeFileGroup IdentifierType = "file-group"
	// TypeFileset is a fileset name mapped to its product locator.
	TypeFileset IdentifierType = "fileset"
)

// ParseIdentifierType validates a --type flag value.
func ParseIdentifierType(s string) (IdentifierType, error) {
	switch t := IdentifierType(s); t {
	case TypeProductLocator, TypeLocationFile, TypeReportJSON,
		TypeNGASFile, TypeArchiveFile, TypeFileGroup, TypeFileset:
		return t, nil
	}
	return "", fmt.Errorf("unknown identifier type %q: %w", s, common.ErrMissingSetting)
}

// NeedsMetadataDB reports whether resolving this identifier type consults
// the archive database.
func (t IdentifierType) NeedsMetadataDB() bool {
	switch t {
	case TypeNGASFile, TypeArchiveFile, TypeFileGroup, TypeFileset:
		return true
	}
	return false
}

// TakesFilePath reports whether the identifier is a path on the local
// filesystem rather than an archive name.
func (t IdentifierType) TakesFilePath() bool {
	return t == TypeLocationFile || t == TypeReportJSON
}
