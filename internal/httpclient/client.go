// Package httpclient builds the HTTP client used for every outbound
// provider call (discovery, token exchange, refresh). Calls are bounded by
// a timeout and retried a small number of times with exponential backoff
// on 429/5xx, so a flaky provider degrades instead of failing requests
// outright.
package httpclient

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	requestTimeout = 10 * time.Second
	maxRetries     = 2
	retryWaitMin   = 250 * time.Millisecond
	retryWaitMax   = 2 * time.Second
)

// New returns a *http.Client with retry and backoff behavior baked in. The
// returned client is safe to hand to go-oidc and oauth2 via their client
// contexts.
func New(logger *slog.Logger) *http.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.HTTPClient.Timeout = requestTimeout
	rc.RetryMax = maxRetries
	rc.RetryWaitMin = retryWaitMin
	rc.RetryWaitMax = retryWaitMax
	rc.Logger = nil
	if logger != nil {
		rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
			if attempt > 0 {
				logger.Debug("retrying provider request",
					"url", req.URL.String(),
					"attempt", attempt,
				)
			}
		}
	}
	return rc.StandardClient()
}
