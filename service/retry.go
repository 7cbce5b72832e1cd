package service

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/codacy-acme/gl-repo-reporter/config"
	"github.com/codacy-acme/gl-repo-reporter/model"
	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
)

// retryPolicy is the [RETRY] section turned into durations
type retryPolicy struct {
	maxRateLimitRetries int
	maxTransientRetries int
	defaultRetryAfter   time.Duration
	backoffBase         time.Duration
	backoffMax          time.Duration
	maxWait             time.Duration
}

func newRetryPolicy(cfg config.RetryConfig) retryPolicy {
	return retryPolicy{
		maxRateLimitRetries: cfg.MaxRateLimitRetries,
		maxTransientRetries: cfg.MaxTransientRetries,
		defaultRetryAfter:   cfg.DefaultRetryAfter(),
		backoffBase:         cfg.BackoffBase(),
		backoffMax:          cfg.BackoffMax(),
		maxWait:             cfg.MaxWait(),
	}
}

// backoff returns backoffBase * 2^(retry-1), capped at backoffMax
func (p retryPolicy) backoff(retry int) time.Duration {
	wait := p.backoffBase

	for i := 1; i < retry && wait < p.backoffMax; i++ {
		wait *= 2
	}

	if wait > p.backoffMax {
		return p.backoffMax
	}

	return wait
}

// clamp keeps a wait between backoffBase and maxWait, the bounds resty applies too.
// A zero wait would make resty fall back to its own jittered backoff.
func (p retryPolicy) clamp(wait time.Duration) time.Duration {
	if wait < p.backoffBase {
		wait = p.backoffBase
	}

	if p.maxWait > 0 && wait > p.maxWait {
		wait = p.maxWait
	}

	return wait
}

// retryBudget counts the retries of a single call.
// Rate limits and transient failures spend separate budgets, nothing is shared between calls.
type retryBudget struct {
	endpoint    Endpoint
	rateLimited int
	transient   int

	// failure being retried
	pending error
	status  int
	cause   error
}

type retryBudgetKey struct{}

func withRetryBudget(ctx context.Context, budget *retryBudget) context.Context {
	return context.WithValue(ctx, retryBudgetKey{}, budget)
}

func retryBudgetOf(resp *resty.Response) (*retryBudget, bool) {
	if resp == nil || resp.Request == nil {
		return nil, false
	}

	budget, found := resp.Request.Context().Value(retryBudgetKey{}).(*retryBudget)
	return budget, found
}

// retryEvent describes a retry about to happen
type retryEvent struct {
	Endpoint string
	Kind     error
	Retry    int
	Status   int
	Wait     time.Duration
	Err      error
}

// shouldRetry is the resty retry condition: 429 spends the rate limit budget,
// 5xx and transport errors spend the transient budget, anything else is final.
func (c *CodacyClient) shouldRetry(resp *resty.Response, err error) bool {
	budget, found := retryBudgetOf(resp)
	if !found || resp.Request.Context().Err() != nil {
		return false
	}

	status := resp.StatusCode()

	switch {
	case err != nil || status >= http.StatusInternalServerError:
		if budget.transient >= c.policy.maxTransientRetries {
			return false
		}
		budget.transient++
		budget.pending = model.ErrTransientFailure

	case status == http.StatusTooManyRequests:
		if budget.rateLimited >= c.policy.maxRateLimitRetries {
			return false
		}
		budget.rateLimited++
		budget.pending = model.ErrRateLimitExceeded

	default:
		return false
	}

	budget.status = status
	budget.cause = err

	return true
}

// waitBeforeRetry is the resty RetryAfter callback: the Retry-After hint (or the default)
// after a 429, the exponential backoff otherwise
func (c *CodacyClient) waitBeforeRetry(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
	budget, found := retryBudgetOf(resp)
	if !found {
		return c.policy.backoffBase, nil
	}

	event := retryEvent{
		Endpoint: budget.endpoint.Path,
		Kind:     budget.pending,
		Status:   budget.status,
		Err:      budget.cause,
	}

	if errors.Is(budget.pending, model.ErrRateLimitExceeded) {
		event.Retry = budget.rateLimited
		event.Wait = retryAfter(resp.Header().Get("Retry-After"), c.policy.defaultRetryAfter, time.Now())
	} else {
		event.Retry = budget.transient
		event.Wait = c.policy.backoff(budget.transient)
	}

	event.Wait = c.policy.clamp(event.Wait)
	c.onRetry(event)

	return event.Wait, nil
}

func logRetry(e retryEvent) {
	entry := log.WithFields(log.Fields{
		"endpoint": e.Endpoint,
		"retry":    e.Retry,
		"wait":     e.Wait.String(),
	})

	if e.Status != 0 {
		entry = entry.WithField("status", e.Status)
	}

	if e.Err != nil {
		entry = entry.WithError(e.Err)
	}

	if errors.Is(e.Kind, model.ErrRateLimitExceeded) {
		entry.Warning("rate limited by the analysis service, waiting before retrying")
		return
	}

	entry.Warning("request failed, will retry")
}

// retryAfter reads the Retry-After header, as seconds or as an HTTP date
func retryAfter(header string, fallback time.Duration, now time.Time) time.Duration {
	if header == "" {
		return fallback
	}

	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds < 0 {
			return fallback
		}
		return time.Duration(seconds) * time.Second
	}

	if date, err := http.ParseTime(header); err == nil {
		if wait := date.Sub(now); wait > 0 {
			return wait
		}
		return 0
	}

	return fallback
}
