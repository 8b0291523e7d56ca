package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"customersync/pkg/ratelimit"
)

// getWithRetry performs a GET for one page URL under the retry policy:
// up to MaxAttempts attempts, backoff BackoffBase*2^(attempt-1) between
// them, Retry-After preferred on 429. Transport errors and 5xx are
// transient; a 200 with an undecodable body and any other 4xx are
// terminal for the page.
func (c *Client) getWithRetry(ctx context.Context, pageURL string) (*PageResponse, error) {
	var lastStatus int
	var lastErr error

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &FetchError{URL: pageURL, StatusCode: lastStatus, Retries: attempt - 1, Err: err}
		}
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, &FetchError{URL: pageURL, StatusCode: lastStatus, Retries: attempt - 1, Err: err}
		}

		req, err := c.newRequest(ctx, pageURL)
		if err != nil {
			return nil, &FetchError{URL: pageURL, Retries: attempt - 1, Err: err}
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		requestDuration.Observe(time.Since(start).Seconds())

		// Transport failure or timeout.
		if err != nil {
			lastStatus = 0
			lastErr = err
			requestsTotal.WithLabelValues("network_error").Inc()
			c.logger.Warn().
				Err(err).
				Str("url", pageURL).
				Int("attempt", attempt).
				Msg("Network error")
			c.backoff(attempt, ErrorClassNetwork)
			continue
		}

		requestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusOK {
			page, err := decodePage(resp.Body)
			resp.Body.Close()
			if err != nil {
				// A malformed body on a success status will not improve
				// on retry; terminal for the page.
				return nil, &FetchError{
					URL:        pageURL,
					StatusCode: resp.StatusCode,
					Retries:    attempt - 1,
					Err:        err,
				}
			}
			return page, nil
		}

		retryAfter := resp.Header.Get("Retry-After")
		drain(resp.Body)

		class := classifyStatus(resp.StatusCode)
		lastStatus = resp.StatusCode
		lastErr = fmt.Errorf("unexpected status %s", resp.Status)

		if !retryable(class) && class != "" {
			return nil, &FetchError{
				URL:        pageURL,
				StatusCode: resp.StatusCode,
				Retries:    attempt - 1,
				Err:        lastErr,
			}
		}

		if class == ErrorClassRateLimit {
			c.logger.Warn().
				Str("url", pageURL).
				Int("attempt", attempt).
				Str("retry_after", retryAfter).
				Msg("Rate limited")
			if wait, ok := ratelimit.ParseRetryAfter(retryAfter); ok {
				retriesTotal.WithLabelValues(string(class)).Inc()
				c.sleep(wait)
				continue
			}
			c.backoff(attempt, class)
			continue
		}

		c.logger.Warn().
			Str("url", pageURL).
			Int("status", resp.StatusCode).
			Int("attempt", attempt).
			Msg("Server error")
		c.backoff(attempt, class)
	}

	class := classifyStatus(lastStatus)
	retryExhaustedTotal.WithLabelValues(string(class)).Inc()

	c.logger.Error().
		Str("url", pageURL).
		Int("status", lastStatus).
		Int("retries", c.config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return nil, &FetchError{
		URL:        pageURL,
		StatusCode: lastStatus,
		Retries:    c.config.MaxAttempts,
		Err:        fmt.Errorf("%w: %v", ErrRetryExhausted, lastErr),
	}
}

// backoff waits BackoffBase * 2^(attempt-1) via the injected sleeper.
func (c *Client) backoff(attempt int, class ErrorClass) {
	wait := c.config.BackoffBase << (attempt - 1)
	retriesTotal.WithLabelValues(string(class)).Inc()
	c.logger.Debug().
		Dur("backoff", wait).
		Int("attempt", attempt).
		Str("error_class", string(class)).
		Msg("Backing off before retry")
	c.sleep(wait)
}

// decodePage decodes a page body, rejecting anything that is not a
// well-formed page object.
func decodePage(r io.Reader) (*PageResponse, error) {
	var page PageResponse
	if err := json.NewDecoder(r).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode page body: %w", err)
	}
	return &page, nil
}

// drain discards and closes a response body so the connection can be
// reused across retries.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	body.Close()
}
