// Package upstream holds the latency probe carrier against the sidecar's
// ping endpoint.
package upstream

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// Pinger measures one round trip to the upstream endpoint.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// HTTPPinger issues a GET against the sidecar's ping endpoint and reports the
// elapsed time.
type HTTPPinger struct {
	url     string
	http    *fasthttp.Client
	timeout time.Duration
}

func NewHTTPPinger(url string) *HTTPPinger {
	return &HTTPPinger{
		url:     url,
		http:    &fasthttp.Client{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second},
		timeout: 5 * time.Second,
	}
}

func (p *HTTPPinger) Ping(ctx context.Context) (time.Duration, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(p.url)

	deadline := time.Now().Add(p.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	start := time.Now()
	if err := p.http.DoDeadline(req, resp, deadline); err != nil {
		return 0, fmt.Errorf("ping failed: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return 0, fmt.Errorf("ping failed: status=%d", resp.StatusCode())
	}
	return time.Since(start), nil
}
