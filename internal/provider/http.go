package provider

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/leonwooster/StockPlatform1-sub001/internal/domain"
	"github.com/sony/gobreaker"
)

// httpPipeline bundles the pieces every non-mock variant needs to make an
// outbound call: a timeout-bound client, the shared retry policy, and a
// per-variant circuit breaker (§4.3 step 3, §4.9).
type httpPipeline struct {
	client  *http.Client
	retry   retryConfig
	breaker *gobreaker.CircuitBreaker
}

func newHTTPPipeline(name string, timeout time.Duration, maxRetries int) *httpPipeline {
	return &httpPipeline{
		client:  &http.Client{Timeout: timeout},
		retry:   defaultRetryConfig(maxRetries),
		breaker: newCircuitBreaker(name),
	}
}

// transientFault marks an error as a network/timeout fault eligible for
// the retry loop below. 4xx responses and parse errors are always
// terminal, matching §4.3 step 3 exactly ("retry only on network errors
// and timeouts; do not retry 4xx or parse errors").
type transientFault struct{ err error }

func (t *transientFault) Error() string { return t.err.Error() }
func (t *transientFault) Unwrap() error { return t.err }

// get performs a GET, routed through the circuit breaker, retrying only
// network/timeout faults up to p.retry.maxRetries with exponential
// backoff. A non-2xx status is a terminal ApiUnavailable; the caller is
// still expected to classify a 200-OK body itself, since both upstream
// APIs embed error payloads inside otherwise-successful responses.
func (p *httpPipeline) get(ctx context.Context, providerName, symbol, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= p.retry.maxRetries; attempt++ {
		body, err := p.attemptGet(ctx, providerName, symbol, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		var tf *transientFault
		if !asTransient(err, &tf) || attempt == p.retry.maxRetries {
			return nil, unwrapTransient(err)
		}
		timer := time.NewTimer(p.retry.backoff(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, unwrapTransient(lastErr)
		}
	}
	return nil, unwrapTransient(lastErr)
}

func asTransient(err error, target **transientFault) bool {
	tf, ok := err.(*transientFault)
	if ok {
		*target = tf
	}
	return ok
}

func unwrapTransient(err error) error {
	if tf, ok := err.(*transientFault); ok {
		return tf.err
	}
	return err
}

func (p *httpPipeline) attemptGet(ctx context.Context, providerName, symbol, url string) ([]byte, error) {
	result, breakerErr := p.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, &transientFault{domain.NewAPIUnavailable(providerName, symbol, "building request", err)}
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, &transientFault{domain.NewAPIUnavailable(providerName, symbol, "network error", err)}
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &transientFault{domain.NewAPIUnavailable(providerName, symbol, "reading response body", err)}
		}
		if resp.StatusCode >= 500 {
			return nil, &transientFault{domain.NewAPIUnavailable(providerName, symbol, "upstream server error", nil)}
		}
		if resp.StatusCode >= 400 {
			return nil, domain.NewAPIUnavailable(providerName, symbol, "upstream rejected request", nil)
		}
		return b, nil
	})
	if breakerErr != nil {
		if mde, ok := breakerErr.(*domain.MarketDataError); ok {
			return nil, mde
		}
		if tf, ok := breakerErr.(*transientFault); ok {
			return nil, tf
		}
		return nil, domain.NewAPIUnavailable(providerName, symbol, "circuit open", breakerErr)
	}
	b, _ := result.([]byte)
	return b, nil
}
