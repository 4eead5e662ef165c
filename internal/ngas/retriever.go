package ngas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/go-resty/resty/v2"

	"github.com/dmitrijs2005/datafetch/internal/checksum"
	"github.com/dmitrijs2005/datafetch/internal/common"
	"github.com/dmitrijs2005/datafetch/internal/filex"
	"github.com/dmitrijs2005/datafetch/internal/locator"
	"github.com/dmitrijs2005/datafetch/internal/logging"
	"github.com/dmitrijs2005/datafetch/internal/netx"
)

// Options tune how transfers run.
type Options struct {
	// Timeout bounds connection setup and the wait for response headers.
	// There is no whole-request deadline: large files stream for as long
	// as bytes keep arriving.
	Timeout        time.Duration
	MaxRedirects   int
	Progress       bool
	VerifyChecksum bool
}

// Retriever executes transfers against NGAS hosts. One retriever with its
// shared HTTP client serves all workers.
type Retriever struct {
	client *resty.Client
	opts   Options
	log    logging.Logger
}

func NewRetriever(log logging.Logger, opts Options) *Retriever {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Timeout > 0 {
		transport.ResponseHeaderTimeout = opts.Timeout
		transport.DialContext = (&net.Dialer{Timeout: opts.Timeout}).DialContext
	}
	client := resty.New().
		SetTransport(transport).
		SetRedirectPolicy(netx.RedirectLimit(opts.MaxRedirects))
	return &Retriever{client: client, opts: opts, log: log.With("component", "ngas")}
}

func retrieveURL(host string) string {
	return "http://" + host + "/RETRIEVE"
}

// Fetch runs one transfer and reports its outcome. The outcome is always
// non-nil; failures travel inside it rather than as errors.
func (r *Retriever) Fetch(ctx context.Context, d *locator.Descriptor) *Outcome {
	r.log.Debug(ctx, "fetching", "file", d.SourceName, "server", d.Server.Host, "mode", d.Mode)

	start := time.Now()
	var out *Outcome
	if d.Mode == locator.ModeCopy {
		out = r.copyingFetch(ctx, d)
	} else {
		out = r.streamingFetch(ctx, d)
	}
	out.Duration = time.Since(start)
	return out
}

// streamingFetch pulls the payload over HTTP into a part file next to the
// destination and promotes it only after verification. Whatever goes
// wrong, no partial file survives.
func (r *Retriever) streamingFetch(ctx context.Context, d *locator.Descriptor) *Outcome {
	req := r.client.R().
		SetContext(ctx).
		SetQueryParam("file_id", d.SourceName).
		SetDoNotParseResponse(true)
	if d.Version > 0 {
		req.SetQueryParam("file_version", strconv.Itoa(d.Version))
	}

	resp, err := req.Get(retrieveURL(d.Server.Host))
	if err != nil {
		return transportOutcome(err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return badStatus(resp.StatusCode(), body)
	}

	part, err := filex.CreatePart(d.Destination())
	if err != nil {
		return &Outcome{Kind: OutcomeTransport, Detail: err.Error()}
	}
	defer part.Abort()

	var reader io.Reader = body
	var bar *pb.ProgressBar
	if r.opts.Progress && d.ExpectedSize >= 0 {
		bar = pb.Full.Start64(d.ExpectedSize)
		reader = bar.NewProxyReader(body)
	}

	written, err := io.CopyBuffer(part, reader, make([]byte, common.StreamingChunkSize))
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		if netx.IsTimeout(err) {
			return &Outcome{Kind: OutcomeTimeout, BytesWritten: written}
		}
		return &Outcome{Kind: OutcomeTransport, Detail: err.Error(), BytesWritten: written}
	}

	if out := r.verify(d, part.Path(), written); out != nil {
		return out
	}
	if err := part.Commit(); err != nil {
		return &Outcome{Kind: OutcomeTransport, Detail: err.Error(), BytesWritten: written}
	}
	return &Outcome{Kind: OutcomeSuccess, BytesWritten: written}
}

// copyingFetch asks the NGAS host to write the file to the destination
// path itself; the client carries no bytes. The delivered file is checked
// like a streamed one.
func (r *Retriever) copyingFetch(ctx context.Context, d *locator.Descriptor) *Outcome {
	dest := d.Destination()
	req := r.client.R().
		SetContext(ctx).
		SetQueryParam("file_id", d.SourceName).
		SetQueryParam("processing", common.DirectCopyPlugin).
		SetQueryParam("processingPars", "outfile="+dest)
	if d.Version > 0 {
		req.SetQueryParam("file_version", strconv.Itoa(d.Version))
	}

	resp, err := req.Get(retrieveURL(d.Server.Host))
	if err != nil {
		return transportOutcome(err)
	}
	if resp.StatusCode() != http.StatusOK {
		return badStatus(resp.StatusCode(), bytes.NewReader(resp.Body()))
	}

	fi, err := os.Stat(dest)
	if err != nil {
		return &Outcome{Kind: OutcomeTransport, Detail: "file not delivered: " + err.Error()}
	}
	if out := r.verify(d, dest, fi.Size()); out != nil {
		return out
	}
	return &Outcome{Kind: OutcomeSuccess, BytesWritten: fi.Size()}
}

// verify checks a staged or delivered file against the descriptor's
// metadata; nil means it passed. The size check is skipped when the
// archive records no size, the checksum check runs only when asked for
// and the record carries a sum this client can recompute.
func (r *Retriever) verify(d *locator.Descriptor, path string, actual int64) *Outcome {
	if d.ExpectedSize != locator.SizeUnknown && actual != d.ExpectedSize {
		return &Outcome{Kind: OutcomeSizeMismatch, ExpectedSize: d.ExpectedSize, ActualSize: actual, BytesWritten: actual}
	}
	if r.opts.VerifyChecksum && d.Checksum != "" && d.ChecksumType == checksum.TypeGenCrc32 {
		sum, err := checksum.File(path)
		if err != nil {
			return &Outcome{Kind: OutcomeTransport, Detail: err.Error(), BytesWritten: actual}
		}
		if !checksum.Matches(d.Checksum, sum) {
			return &Outcome{Kind: OutcomeChecksumMismatch, ExpectedSum: d.Checksum, ActualSum: sum, BytesWritten: actual}
		}
	}
	return nil
}

func badStatus(code int, body io.Reader) *Outcome {
	if code == http.StatusNotFound {
		return &Outcome{Kind: OutcomeNotFound}
	}
	detail := fmt.Sprintf("server returned %d", code)
	if msg := ngamsMessage(body); msg != "" {
		detail = fmt.Sprintf("server returned %d: %s", code, msg)
	}
	return &Outcome{Kind: OutcomeTransport, Detail: detail}
}

func transportOutcome(err error) *Outcome {
	switch {
	case errors.Is(err, common.ErrServiceRedirects):
		return &Outcome{Kind: OutcomeTransport, Detail: "too many redirects", RedirectLoop: true}
	case netx.IsTimeout(err):
		return &Outcome{Kind: OutcomeTimeout}
	default:
		return &Outcome{Kind: OutcomeTransport, Detail: err.Error()}
	}
}
