package debipa

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"sync"
	"time"
)

const initialBackoffDuration = 500 * time.Millisecond

// retryTransport implements http.RoundTripper and adds retry logic.
//
// It retries transport errors and 5xx responses with exponential backoff
// and jitter, up to maxAttempts requests in total. The response of the
// last attempt is returned as is, so callers see the final status code.
type retryTransport struct {
	base        http.RoundTripper
	maxAttempts int

	sleep func(d time.Duration)

	log *slog.Logger

	once sync.Once

	mu   sync.Mutex
	rand *rand.Rand
}

func (t *retryTransport) randInt64(backoff int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rand == nil {
		s := rand.NewPCG(42, uint64(time.Now().UnixNano()))
		t.rand = rand.New(s)
	}

	return t.rand.Int64N(backoff)
}

func (t *retryTransport) init() {
	if t.base == nil {
		t.base = &http.Transport{
			// Use most values from `net/http/transport.go`, but with a
			// shorter dialer timeout (from 30 to 10 sec).
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}

	if t.sleep == nil {
		t.sleep = time.Sleep
	}

	if t.log == nil {
		t.log = slog.Default()
	}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.once.Do(t.init)

	attempts := max(t.maxAttempts, 1)
	backoff := initialBackoffDuration

	for i := 0; i < attempts; i++ {
		last := i == attempts-1

		resp, err := t.base.RoundTrip(req)
		if err != nil {
			if last {
				return nil, err
			}
			// Could be a network error, DNS issue, etc. Retry.
			t.log.Info("request failed with error",
				"method", req.Method,
				"path", req.URL.Path,
				"attempt", i+1,
				"err", err,
			)
		} else if resp.StatusCode < 500 || last {
			// Return on success, any non-5xx code or the final attempt
			return resp, nil
		} else {
			// If 5xx, we want to retry. Close response body to avoid leaks.
			resp.Body.Close()
			t.log.Info("request failed with server error",
				"method", req.Method,
				"path", req.URL.Path,
				"attempt", i+1,
				"status", resp.StatusCode,
			)
		}

		if err := req.Context().Err(); err != nil {
			return nil, err
		}

		// Apply exponential backoff with jitter
		jitter := time.Duration(t.randInt64(int64(backoff / 2)))
		t.sleep(backoff + jitter)
		backoff *= 2
	}

	return nil, fmt.Errorf("no request attempts made")
}
