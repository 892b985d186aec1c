// Package fetch downloads attachment bytes over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/doorbell/pkg/retrylimit"
)

var ErrTooLarge = errors.New("attachment exceeds size limit")

// StatusError is a non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: http %d", e.URL, e.Code)
}

func (e *StatusError) StatusCode() int { return e.Code }

type Options struct {
	Client      *http.Client
	MaxAttempts int
	MaxBytes    int64
	Limiter     *retrylimit.AdaptiveLimiter
	Logger      zerolog.Logger
	// RetryDelay overrides the initial backoff. Zero keeps the default.
	RetryDelay time.Duration
}

type Fetcher struct {
	client   *http.Client
	maxBytes int64
	limiter  *retrylimit.AdaptiveLimiter
	retry    retrylimit.RetryConfig
	log      zerolog.Logger
}

func New(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5)
	}

	retry := retrylimit.DefaultRetryConfig()
	if opts.MaxAttempts > 0 {
		retry.MaxAttempts = opts.MaxAttempts
	}
	if opts.RetryDelay > 0 {
		retry.InitialDelay = opts.RetryDelay
		retry.RateLimitDelay = opts.RetryDelay
	}
	retry.Logger = opts.Logger

	return &Fetcher{
		client:   client,
		maxBytes: opts.MaxBytes,
		limiter:  limiter,
		retry:    retry,
		log:      opts.Logger,
	}
}

// Fetch returns the body at url. 4xx responses and oversized bodies are not
// retried; network errors and 5xx/429 responses are.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := retrylimit.WithRetryConfig(ctx, func() error {
		b, err := f.get(ctx, url)
		if err != nil {
			return err
		}
		body = b
		return nil
	}, f.limiter, f.retry)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retrylimit.Fatal(err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serr := &StatusError{URL: url, Code: resp.StatusCode}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, serr
		}
		return nil, retrylimit.Fatal(serr)
	}

	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, retrylimit.Fatal(fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength))
	}

	r := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		r = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if f.maxBytes > 0 && int64(len(body)) > f.maxBytes {
		return nil, retrylimit.Fatal(fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes))
	}

	f.log.Debug().Str("url", url).Int("bytes", len(body)).Msg("Attachment downloaded")
	return body, nil
}
