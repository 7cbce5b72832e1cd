package service

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/codacy-acme/gl-repo-reporter/config"
	githubMock "github.com/migueleliasweb/go-github-mock/src/mock"
)

const testToken = "test-token"

type mockResponse struct {
	status     int
	retryAfter string
	body       interface{}
}

func ok(body interface{}) mockResponse {
	return mockResponse{status: http.StatusOK, body: body}
}

func page(items []interface{}, cursor string) map[string]interface{} {
	if items == nil {
		items = []interface{}{}
	}

	p := map[string]interface{}{"data": items}
	if cursor != "" {
		p["pagination"] = map[string]interface{}{"cursor": cursor, "limit": len(items)}
	}
	return p
}

func get(path string) githubMock.EndpointPattern {
	return githubMock.EndpointPattern{Pattern: "/api/v3" + path, Method: http.MethodGet}
}

func post(path string) githubMock.EndpointPattern {
	return githubMock.EndpointPattern{Pattern: "/api/v3" + path, Method: http.MethodPost}
}

func writeResponse(t *testing.T, w http.ResponseWriter, r *http.Request, resp mockResponse) {
	if r.Header.Get("api-token") != testToken {
		t.Errorf("missing api-token header on %s", r.URL.Path)
	}

	if resp.retryAfter != "" {
		w.Header().Set("Retry-After", resp.retryAfter)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)

	if resp.body == nil {
		return
	}

	var payload []byte
	if raw, isRaw := resp.body.(string); isRaw {
		payload = []byte(raw)
	} else {
		payload = githubMock.MustMarshal(resp.body)
	}

	if _, err := w.Write(payload); err != nil {
		t.Error("unable to configure mock http client")
	}
}

// callCounter counts the requests received by the handlers built from it
type callCounter struct {
	mu    sync.Mutex
	calls map[string]int
}

func newCallCounter() *callCounter {
	return &callCounter{calls: map[string]int{}}
}

func (c *callCounter) inc(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[key]++
	return c.calls[key]
}

func (c *callCounter) get(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[key]
}

// sequence answers with responses in order, the last one is repeated
func (c *callCounter) sequence(t *testing.T, key string, responses ...mockResponse) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := c.inc(key)
		if n > len(responses) {
			n = len(responses)
		}
		writeResponse(t, w, r, responses[n-1])
	})
}

// pages serves items split in pages of pageSize, following the cursor query parameter
func (c *callCounter) pages(t *testing.T, key string, items []interface{}, pageSize int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.inc(key)

		start := 0
		if cursor := r.URL.Query().Get("cursor"); cursor != "" {
			for i := range items {
				if cursorFor(i) == cursor {
					start = i
				}
			}
		}

		end := start + pageSize
		next := ""
		if end < len(items) {
			next = cursorFor(end)
		} else {
			end = len(items)
		}

		writeResponse(t, w, r, ok(page(items[start:end], next)))
	})
}

func cursorFor(index int) string {
	return "cursor-" + string(rune('a'+index%26)) + string(rune('a'+index/26))
}

// unexpected fails the test when the endpoint is called
func unexpected(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call to %s", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	})
}

func testConfig() config.Config {
	cfg := config.GetDefault()
	cfg.Codacy.Token = testToken
	cfg.Codacy.Organization = "acme"
	cfg.Codacy.PageSize = 100
	cfg.Retry.MaxRateLimitRetries = 3
	cfg.Retry.DefaultRetryAfterSeconds = 60
	cfg.Retry.MaxTransientRetries = 2
	cfg.Retry.BackoffBaseSeconds = 2
	cfg.Retry.BackoffMaxSeconds = 30
	return *cfg
}

// newTestClient returns a client on a mocked API. Retry durations of the configuration
// are read as milliseconds instead of seconds, retries are recorded.
func newTestClient(cfg config.Config, options ...githubMock.MockBackendOption) (*CodacyClient, *retryRecorder) {
	return newTestClientWithHTTP(cfg, githubMock.NewMockedHTTPClient(options...))
}

func newTestClientWithHTTP(cfg config.Config, httpClient *http.Client) (*CodacyClient, *retryRecorder) {
	client := NewCodacyClient(cfg, httpClient, nil)
	client.setRetryPolicy(millisecondPolicy(cfg.Retry))

	recorder := &retryRecorder{}
	client.onRetry = recorder.record

	return client, recorder
}

func millisecondPolicy(cfg config.RetryConfig) retryPolicy {
	p := newRetryPolicy(cfg)
	p.defaultRetryAfter /= 1000
	p.backoffBase /= 1000
	p.backoffMax /= 1000
	p.maxWait /= 1000

	// Retry-After headers are still read in seconds
	if p.maxWait < 5*time.Second {
		p.maxWait = 5 * time.Second
	}

	return p
}

type retryRecorder struct {
	mu     sync.Mutex
	waits  []time.Duration
	kinds  []error
	notify func()
}

func (r *retryRecorder) record(e retryEvent) {
	r.mu.Lock()
	r.waits = append(r.waits, e.Wait)
	r.kinds = append(r.kinds, e.Kind)
	notify := r.notify
	r.mu.Unlock()

	if notify != nil {
		notify()
	}
}

func (r *retryRecorder) total() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total time.Duration
	for _, w := range r.waits {
		total += w
	}
	return total
}
