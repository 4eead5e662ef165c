// Package checksum implements the CRC32 rendering used by NGAS file
// records (checksum type "ngamsGenCrc32"): the IEEE polynomial with the
// sum printed as a signed 32-bit decimal.
package checksum

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"strconv"
	"strings"
)

// TypeGenCrc32 is the checksum_type value location reports carry for
// sums this package can verify.
const TypeGenCrc32 = "ngamsGenCrc32"

// Stream digests r and returns the signed-decimal sum plus the number
// of bytes read.
func Stream(r io.Reader) (string, int64, error) {
	h := crc32.NewIEEE()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("checksum read: %w", err)
	}
	return FormatSigned(h.Sum32()), n, nil
}

// File digests the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("checksum open: %w", err)
	}
	defer f.Close()

	sum, _, err := Stream(f)
	return sum, err
}

// FormatSigned renders a CRC32 sum the way NGAS stores it, as the
// decimal value of the sum reinterpreted as a signed 32-bit integer.
func FormatSigned(sum uint32) string {
	return strconv.FormatInt(int64(int32(sum)), 10)
}

// Matches reports whether a reported sum equals a computed one. Reports
// in the wild carry both the signed and the unsigned decimal rendering,
// so both are accepted.
func Matches(reported, computed string) bool {
	r, err := strconv.ParseInt(strings.TrimSpace(reported), 10, 64)
	if err != nil {
		return false
	}
	c, err := strconv.ParseInt(computed, 10, 64)
	if err != nil {
		return false
	}
	return int32(r) == int32(c)
}
