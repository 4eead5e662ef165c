package locator

import (
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/datafetch/internal/common"
)

// SizeUnknown marks a descriptor whose expected size the archive does not
// record. The verifier skips the size check for such files.
const SizeUnknown int64 = -1

// Descriptor is one planned transfer: a file on an NGAS host and the local
// path that will receive it.
type Descriptor struct {
	SourceName      string // file id on the NGAS server
	Version         int    // file version, 0 when unspecified
	Server          Server
	DestinationDir  string
	DestinationName string
	ExpectedSize    int64 // SizeUnknown when the archive records none
	Checksum        string
	ChecksumType    string
	Mode            RetrievalMode
	Locator         string // identifier this descriptor was resolved from
}

// Destination is the local path the file lands at.
func (d *Descriptor) Destination() string {
	return filepath.Join(d.DestinationDir, d.DestinationName)
}

// ValidatePlan rejects plans where two descriptors share a destination
// path; executing one would silently clobber the other.
func ValidatePlan(plan []*Descriptor) error {
	seen := make(map[string]string, len(plan))
	for _, d := range plan {
		dest := d.Destination()
		if prev, ok := seen[dest]; ok {
			return fmt.Errorf("%s and %s both resolve to %s: %w", prev, d.SourceName, dest, common.ErrFileError)
		}
		seen[dest] = d.SourceName
	}
	return nil
}
