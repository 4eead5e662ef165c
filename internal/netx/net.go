// Package netx classifies network failures so callers can tell a bounded
// wait that expired apart from a connection that was refused or reset.
package netx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/dmitrijs2005/datafetch/internal/common"
)

// IsTimeout reports whether err is a deadline or I/O timeout of any kind.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsConnFailure reports whether err is a connection-level failure
// (refused, reset, unreachable, DNS) rather than a timeout.
func IsConnFailure(err error) bool {
	if err == nil || IsTimeout(err) {
		return false
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return true
	}
	var de *net.DNSError
	return errors.As(err, &de)
}

// RedirectLimit is a resty redirect policy that fails a request once its
// redirect chain reaches max hops. The returned error matches
// common.ErrServiceRedirects via errors.Is.
func RedirectLimit(max int) resty.RedirectPolicy {
	return resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return fmt.Errorf("stopped after %d redirects: %w", max, common.ErrServiceRedirects)
		}
		return nil
	})
}

// ValidateHostPort checks an NGAS server address of the form host:port.
func ValidateHostPort(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid server address %q: %w", addr, err)
	}
	if host == "" {
		return fmt.Errorf("invalid server address %q: empty host", addr)
	}
	if p, err := strconv.Atoi(port); err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid server address %q: bad port", addr)
	}
	return nil
}
