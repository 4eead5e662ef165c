package locator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/dmitrijs2005/datafetch/internal/common"
	"github.com/dmitrijs2005/datafetch/internal/config"
	"github.com/dmitrijs2005/datafetch/internal/logging"
	"github.com/dmitrijs2005/datafetch/internal/netx"
)

// Service queries the archive's location service for locations reports.
type Service struct {
	client  *resty.Client
	url     string
	archive string
	log     logging.Logger
}

// NewService builds a client bound by the profile's timeout and redirect
// limits. A non-empty archive is passed along as a lookup hint.
func NewService(cfg *config.Config, archive string, log logging.Logger) *Service {
	client := resty.New().
		SetTimeout(cfg.ServiceTimeout).
		SetRedirectPolicy(netx.RedirectLimit(cfg.MaxRedirects))
	return &Service{
		client:  client,
		url:     cfg.LocatorServiceURL,
		archive: archive,
		log:     log.With("component", "locator"),
	}
}

// Lookup fetches the locations report for one product locator.
func (s *Service) Lookup(ctx context.Context, productLocator string) (*Report, error) {
	s.log.Debug(ctx, "looking up locator", "locator", productLocator)

	req := s.client.R().SetContext(ctx).SetQueryParam("locator", productLocator)
	if s.archive != "" {
		req.SetQueryParam("archive", s.archive)
	}

	resp, err := req.Get(s.url)
	switch {
	case errors.Is(err, common.ErrServiceRedirects):
		return nil, fmt.Errorf("locator service: %w", err)
	case netx.IsTimeout(err):
		return nil, fmt.Errorf("locator service gave no reply within %s: %w", s.client.GetClient().Timeout, common.ErrServiceTimeout)
	case err != nil:
		return nil, fmt.Errorf("locator service: %s: %w", err, common.ErrServiceError)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("cannot find locator %q: %w", productLocator, common.ErrNoLocator)
	default:
		return nil, fmt.Errorf("locator service returned %s: %w", resp.Status(), common.ErrServiceError)
	}

	var rep Report
	if err := json.Unmarshal(resp.Body(), &rep); err != nil {
		return nil, fmt.Errorf("locator service reply is not a report: %s: %w", err, common.ErrServiceError)
	}
	return &rep, nil
}
