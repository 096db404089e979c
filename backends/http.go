package backends

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/apkdrop/apkdrop/common"
	"github.com/apkdrop/apkdrop/common/config"
	"github.com/apkdrop/apkdrop/common/rcontext"
	"github.com/apkdrop/apkdrop/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const backoffBase = 5 * time.Second
const maxRateLimitRetries = 3

// apiClient is the shared transport for one backend: an http.Client, a
// client-side rate limiter, and bounded backoff on 429s. Every call carries
// its own timeout; expiry is just another TransportError.
type apiClient struct {
	backendId string
	client    *http.Client
	limiter   *rate.Limiter
	decorate  func(*http.Request)
}

func newApiClient(backendId string, decorate func(*http.Request)) *apiClient {
	if decorate == nil {
		decorate = func(*http.Request) {}
	}
	return &apiClient{
		backendId: backendId,
		client:    &http.Client{},
		limiter:   rate.NewLimiter(rate.Every(250*time.Millisecond), 4),
		decorate:  decorate,
	}
}

func remoteTimeout() time.Duration {
	return time.Duration(config.Get().Timeouts.RemoteSeconds) * time.Second
}

func connectTimeout() time.Duration {
	return time.Duration(config.Get().Timeouts.ConnectSeconds) * time.Second
}

// doJson builds the request with build (called once per attempt so retries
// get a fresh body), retries on 429 with exponential backoff, and decodes
// the response body into out when out is non-nil. Responses with status
// >= 400 come back as a *TransportError carrying the status code; 404s also
// match common.ErrFolderNotFound so folder lookups can branch on it.
func (c *apiClient) doJson(ctx rcontext.RequestContext, op string, timeout time.Duration, build func(ctx context.Context) (*http.Request, error), out interface{}) error {
	body, code, err := c.do(ctx, op, timeout, build)
	if err != nil {
		return err
	}
	if out != nil {
		if err = json.Unmarshal(body, out); err != nil {
			return &TransportError{Backend: c.backendId, Op: op, Code: code, Err: err}
		}
	}
	return nil
}

func (c *apiClient) do(ctx rcontext.RequestContext, op string, timeout time.Duration, build func(ctx context.Context) (*http.Request, error)) ([]byte, int, error) {
	for attempt := 0; ; attempt++ {
		reqCtx := ctx.Context
		var cancel context.CancelFunc
		if timeout > 0 {
			reqCtx, cancel = context.WithTimeout(reqCtx, timeout)
		}

		body, code, err := c.attempt(reqCtx, op, build)
		if cancel != nil {
			cancel()
		}

		if code == http.StatusTooManyRequests && attempt < maxRateLimitRetries {
			wait := (1 << attempt) * backoffBase
			ctx.Log.Warnf("Rate limited by %s - waiting %s before retry %d/%d", c.backendId, wait, attempt+1, maxRateLimitRetries)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return nil, code, &TransportError{Backend: c.backendId, Op: op, Code: code, Err: ctx.Err()}
			}
		}

		return body, code, err
	}
}

func (c *apiClient) attempt(reqCtx context.Context, op string, build func(ctx context.Context) (*http.Request, error)) ([]byte, int, error) {
	if err := c.limiter.Wait(reqCtx); err != nil {
		return nil, 0, &TransportError{Backend: c.backendId, Op: op, Err: err}
	}

	req, err := build(reqCtx)
	if err != nil {
		return nil, 0, &TransportError{Backend: c.backendId, Op: op, Err: err}
	}
	c.decorate(req)

	metrics.RemoteCalls.With(prometheus.Labels{"backend": c.backendId, "operation": op}).Inc()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.RemoteCallErrors.With(prometheus.Labels{"backend": c.backendId, "operation": op}).Inc()
		return nil, 0, &TransportError{Backend: c.backendId, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RemoteCallErrors.With(prometheus.Labels{"backend": c.backendId, "operation": op}).Inc()
		return nil, resp.StatusCode, &TransportError{Backend: c.backendId, Op: op, Code: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 400 {
		metrics.RemoteCallErrors.With(prometheus.Labels{"backend": c.backendId, "operation": op}).Inc()
		return body, resp.StatusCode, &TransportError{Backend: c.backendId, Op: op, Code: resp.StatusCode, Err: errForStatus(resp.StatusCode)}
	}

	return body, resp.StatusCode, nil
}

func errForStatus(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return common.ErrAuthFailed
	case http.StatusNotFound:
		return common.ErrFolderNotFound
	case http.StatusTooManyRequests:
		return common.ErrRateLimitExceeded
	default:
		return errors.New(http.StatusText(code))
	}
}

// IsNotFound reports whether a remote call failed with an HTTP 404.
func IsNotFound(err error) bool {
	var terr *TransportError
	if errors.As(err, &terr) {
		return terr.Code == http.StatusNotFound
	}
	return false
}
