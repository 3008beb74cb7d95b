package catalog

import (
	"net/http"

	"golang.org/x/time/rate"
)

type rateLimitedTransport struct {
	limiter *rate.Limiter
	wrapped http.RoundTripper
}

// NewRateLimitedTransport delays outbound requests so no more than
// requestsPerSecond are sent on average, allowing bursts of up to burst. A zero
// rate disables limiting.
func NewRateLimitedTransport(wrapped http.RoundTripper, requestsPerSecond float64, burst int) http.RoundTripper {
	if wrapped == nil {
		wrapped = http.DefaultTransport
	}

	if requestsPerSecond <= 0 {
		return wrapped
	}

	return &rateLimitedTransport{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), max(burst, 1)),
		wrapped: wrapped,
	}
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.wrapped.RoundTrip(req)
}
