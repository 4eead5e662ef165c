package locator

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/datafetch/internal/common"
	"github.com/dmitrijs2005/datafetch/internal/netx"
)

// Server identifies the NGAS host holding a copy of a file.
type Server struct {
	Host     string `json:"server"`
	Location string `json:"location"`
	Cluster  string `json:"cluster"`
}

// FileSpec is one file entry of a locations report.
type FileSpec struct {
	NGASFileID   string `json:"ngas_file_id"`
	Subdirectory string `json:"subdirectory"`
	RelativePath string `json:"relative_path"`
	Checksum     string `json:"checksum"`
	ChecksumType string `json:"checksum_type"`
	Version      int    `json:"version"`
	Size         *int64 `json:"size"`
	Server       Server `json:"server"`
}

// Report is the locations report the location service returns for a
// product locator.
type Report struct {
	Files []FileSpec `json:"files"`
}

// Validate checks that an entry carries everything needed to build a
// transfer. The service returns entries for files still being ingested;
// those lack a size or a server and cannot be fetched.
func (f *FileSpec) Validate() error {
	if f.NGASFileID == "" {
		return fmt.Errorf("report entry has no ngas_file_id: %w", common.ErrMissingMetadata)
	}
	if f.RelativePath == "" {
		return fmt.Errorf("file %s has no relative_path: %w", f.NGASFileID, common.ErrMissingMetadata)
	}
	if f.Size == nil {
		return fmt.Errorf("file %s has no size: %w", f.NGASFileID, common.ErrMissingMetadata)
	}
	if f.Server.Host == "" {
		return fmt.Errorf("file %s has no server: %w", f.NGASFileID, common.ErrMissingMetadata)
	}
	if err := netx.ValidateHostPort(f.Server.Host); err != nil {
		return fmt.Errorf("file %s: %s: %w", f.NGASFileID, err, common.ErrMissingMetadata)
	}
	return nil
}

// ReadReportFile loads a locations report saved as JSON, skipping the
// service round-trip.
func ReadReportFile(path string) (*Report, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read report %s: %s: %w", path, err, common.ErrFileError)
	}
	var rep Report
	if err := json.Unmarshal(b, &rep); err != nil {
		return nil, fmt.Errorf("report %s is not valid json: %s: %w", path, err, common.ErrFileError)
	}
	return &rep, nil
}

// ReadLocationFile reads a text file listing one product locator per line.
// Blank lines are skipped; a line containing whitespace is not a locator
// and fails the read, naming the line.
func ReadLocationFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %s: %w", path, err, common.ErrFileError)
	}
	defer f.Close()

	var locators []string
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		if strings.ContainsAny(s, " \t") {
			return nil, fmt.Errorf("%s line %d is not a product locator: %w", path, line, common.ErrNoLocator)
		}
		locators = append(locators, s)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("cannot read %s: %s: %w", path, err, common.ErrFileError)
	}
	if len(locators) == 0 {
		return nil, fmt.Errorf("%s lists no product locators: %w", path, common.ErrNoLocator)
	}
	return locators, nil
}
