package pipeline

import (
	"context"
	"net/http"
	"time"
)

// urlProber answers whether a source URL is worth fetching. The ingestion
// stage falls back to summary expansion for unreachable sources either way,
// so probing is advisory.
type urlProber interface {
	Reachable(ctx context.Context, url string) bool
}

type httpProber struct {
	client *http.Client
}

func newHTTPProber() *httpProber {
	return &httpProber{client: &http.Client{Timeout: 8 * time.Second}}
}

// Reachable tries HEAD first; some origins reject HEAD, so a ranged GET is
// the second opinion.
func (p *httpProber) Reachable(ctx context.Context, url string) bool {
	if ok, decided := p.attempt(ctx, http.MethodHead, url); decided {
		return ok
	}
	ok, _ := p.attempt(ctx, http.MethodGet, url)
	return ok
}

func (p *httpProber) attempt(ctx context.Context, method, url string) (ok, decided bool) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return false, true
	}
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, true
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		return false, false
	}
	return resp.StatusCode < 400, true
}
