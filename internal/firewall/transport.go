package firewall

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

// BlockedError is returned by Transport when a request body is blocked.
type BlockedError struct {
	Host    string
	Matches []Match
}

func (e *BlockedError) Error() string {
	names := make([]string, 0, len(e.Matches))
	for _, m := range e.Matches {
		if m.Action == Block {
			names = append(names, m.PatternName)
		}
	}
	return fmt.Sprintf("request to %s blocked by prompt firewall: %s", e.Host, strings.Join(names, ", "))
}

// Transport scans outbound request bodies before handing them to Base.
type Transport struct {
	Base     http.RoundTripper
	Firewall *Firewall
	// Observe, when set, receives every scan result.
	Observe func(Result)
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if req.Body == nil || req.Body == http.NoBody {
		return base.RoundTrip(req)
	}

	body, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, errors.Wrap(err, "read request body")
	}

	res := t.Firewall.Scan(string(body))
	if t.Observe != nil {
		t.Observe(res)
	}
	if res.Blocked() {
		return nil, &BlockedError{Host: req.URL.Host, Matches: res.Matches}
	}

	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(body))
	out.ContentLength = int64(len(body))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return base.RoundTrip(out)
}
