package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// Options tunes one Client. ConnectTimeout bounds dialing, Timeout bounds the
// whole request including reading the body.
type Options struct {
	ConnectTimeout  time.Duration
	Timeout         time.Duration
	Attempts        int
	Delay           time.Duration
	FollowRedirects bool
}

// Client performs HTTP GETs with a bounded number of attempts and a fixed
// inter-attempt delay. Only transport-level failures are retried; a response
// with a non-2xx status is returned to the caller to interpret. No caching.
type Client struct {
	http     *http.Client
	attempts uint64
	delay    time.Duration
}

// New builds a Client from opts. Attempts below 1 is treated as 1.
func New(opts Options) *Client {
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := opts.Delay
	if delay <= 0 {
		delay = time.Millisecond
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: opts.ConnectTimeout,
		}).DialContext,
	}

	httpClient := &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
	}
	if !opts.FollowRedirects {
		httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &Client{
		http:     httpClient,
		attempts: uint64(attempts),
		delay:    delay,
	}
}

// Get fetches url, retrying transport failures with the configured fixed
// delay until the attempt budget is exhausted. The caller owns the response
// body.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	var resp *http.Response
	attempt := 0

	backoff := retry.WithMaxRetries(c.attempts-1, retry.NewConstant(c.delay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}

		r, err := c.http.Do(req)
		if err != nil {
			slog.Warn("Fetch attempt failed",
				"url", url,
				"attempt", fmt.Sprintf("%d/%d", attempt, c.attempts),
				"error", err)
			return retry.RetryableError(err)
		}

		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s after %d attempts: %w", url, attempt, err)
	}

	return resp, nil
}
