package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/codacy-acme/gl-repo-reporter/config"
	"github.com/codacy-acme/gl-repo-reporter/logger"
	"github.com/codacy-acme/gl-repo-reporter/model"
	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// CodacyAPI is what the report service needs from the analysis service
type CodacyAPI interface {
	FetchPage(ctx context.Context, endpoint Endpoint, cursor string) (Page, error)
	FetchAll(ctx context.Context, endpoint Endpoint) *RecordIterator
	GetRepositoryMetrics(ctx context.Context, provider, organization, repository string) (model.RepositoryMetrics, error)
	CountIssues(ctx context.Context, provider, organization, repository string, filters model.IssueFilters) (model.IssueCounts, error)
}

// CodacyClient performs authenticated calls against the v3 API.
// Retries are run by resty, every call owns its retry budget.
type CodacyClient struct {
	http        *resty.Client
	rateLimiter *rate.Limiter
	policy      retryPolicy
	pageSize    int

	// onRetry is told about every retry before its wait, it logs by default
	onRetry func(e retryEvent)
}

// NewCodacyClient builds the client on top of httpClient.
// We pass the http client from outside to be able to use a mocked one in tests.
// A nil rateLimiter disables local pacing.
func NewCodacyClient(cfg config.Config, httpClient *http.Client, rateLimiter *rate.Limiter) *CodacyClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	if rateLimiter == nil {
		rateLimiter = rate.NewLimiter(rate.Inf, 1)
	}

	client := &CodacyClient{
		rateLimiter: rateLimiter,
		pageSize:    cfg.Codacy.PageSize,
		onRetry:     logRetry,
	}

	client.http = resty.NewWithClient(httpClient).
		SetBaseURL(cfg.Codacy.BaseURL).
		SetHeader("api-token", cfg.Codacy.Token).
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.Codacy.RequestTimeout()).
		SetLogger(logger.NewRestyLogger("codacy-client")).
		SetRetryAfter(client.waitBeforeRetry).
		AddRetryCondition(client.shouldRetry).
		OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			// every attempt, retries included, goes through the local limiter
			return client.rateLimiter.Wait(r.Context())
		})

	client.setRetryPolicy(newRetryPolicy(cfg.Retry))

	return client
}

func (c *CodacyClient) setRetryPolicy(p retryPolicy) {
	c.policy = p

	c.http.
		SetRetryCount(p.maxRateLimitRetries + p.maxTransientRetries).
		SetRetryWaitTime(p.backoffBase).
		SetRetryMaxWaitTime(p.maxWait)
}

// NewRateLimiter paces requests locally, before the server has to answer 429.
// requestsPerSecond <= 0 means no pacing.
func NewRateLimiter(requestsPerSecond float64) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}

	return rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
}

// FetchPage returns one page of endpoint. An empty cursor asks for the first page.
func (c *CodacyClient) FetchPage(ctx context.Context, endpoint Endpoint, cursor string) (Page, error) {
	query := url.Values{}
	for key, values := range endpoint.Query {
		query[key] = append([]string(nil), values...)
	}

	query.Set("limit", strconv.Itoa(c.pageSize))

	if cursor != "" {
		query.Set("cursor", cursor)
	}

	body, err := c.do(ctx, endpoint, query)
	if err != nil {
		return Page{}, err
	}

	var payload pageResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return Page{}, malformed(endpoint, err)
	}

	if payload.Data == nil {
		return Page{}, malformed(endpoint, errors.New("missing data field"))
	}

	page := Page{Items: payload.Data}

	if payload.Pagination != nil {
		page.NextCursor = payload.Pagination.Cursor
	}

	// the same cursor again would never end
	if page.NextCursor != "" && page.NextCursor == cursor {
		return Page{}, malformed(endpoint, fmt.Errorf("cursor %q did not advance", cursor))
	}

	return page, nil
}

// FetchAll walks every page of endpoint, pages are only requested when needed
func (c *CodacyClient) FetchAll(ctx context.Context, endpoint Endpoint) *RecordIterator {
	return NewRecordIterator(ctx, endpoint, c.FetchPage)
}

// GetRepositoryMetrics returns the last analysis of a repository.
// A repository without analysis is not an error, model.NoAnalysis is returned.
func (c *CodacyClient) GetRepositoryMetrics(ctx context.Context, provider, organization, repository string) (model.RepositoryMetrics, error) {
	endpoint := RepositoryAnalysisEndpoint(provider, organization, repository)

	body, err := c.do(ctx, endpoint, endpoint.Query)
	if err != nil {
		return model.RepositoryMetrics{}, err
	}

	var payload repositoryAnalysisResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return model.RepositoryMetrics{}, malformed(endpoint, err)
	}

	if payload.Data == nil {
		return model.RepositoryMetrics{}, malformed(endpoint, errors.New("missing data field"))
	}

	return payload.toMetrics(), nil
}

// CountIssues asks for a single issue, the counts come with the response
func (c *CodacyClient) CountIssues(ctx context.Context, provider, organization, repository string, filters model.IssueFilters) (model.IssueCounts, error) {
	endpoint := IssuesSearchEndpoint(provider, organization, repository, filters)

	body, err := c.do(ctx, endpoint, url.Values{"limit": []string{"1"}})
	if err != nil {
		return model.IssueCounts{}, err
	}

	var payload issuesSearchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return model.IssueCounts{}, malformed(endpoint, err)
	}

	return payload.toIssueCounts(), nil
}

// do sends the request and classifies the final response once resty is done retrying
func (c *CodacyClient) do(ctx context.Context, endpoint Endpoint, query url.Values) ([]byte, error) {
	budget := &retryBudget{endpoint: endpoint}

	req := c.http.R().
		SetContext(withRetryBudget(ctx, budget)).
		SetQueryParamsFromValues(query)

	if endpoint.Body != nil {
		req.SetBody(endpoint.Body)
	}

	resp, err := req.Execute(endpoint.method(), endpoint.Path)

	if ctx.Err() != nil {
		return nil, fmt.Errorf("%s %s: %w", endpoint.method(), endpoint.Path, ctx.Err())
	}

	attempts := req.Attempt

	if err != nil {
		return nil, requestError(model.ErrTransientFailure, endpoint, 0, attempts, err)
	}

	status := resp.StatusCode()

	switch {
	case status == http.StatusTooManyRequests:
		return nil, requestError(model.ErrRateLimitExceeded, endpoint, status, attempts, nil)

	case status >= http.StatusInternalServerError:
		return nil, requestError(model.ErrTransientFailure, endpoint, status, attempts, nil)

	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return nil, requestError(model.ErrAuthorizationFailure, endpoint, status, attempts, nil)

	case status == http.StatusNotFound:
		return nil, requestError(model.ErrNotFound, endpoint, status, attempts, nil)

	case status < http.StatusOK || status >= http.StatusMultipleChoices:
		return nil, requestError(model.ErrRequestRejected, endpoint, status, attempts, nil)
	}

	log.WithFields(log.Fields{
		"endpoint": endpoint.Path,
		"status":   status,
		"attempts": attempts,
	}).Debug("request succeeded")

	return resp.Body(), nil
}

func requestError(kind error, endpoint Endpoint, status int, attempts int, cause error) error {
	return &model.RequestError{
		Kind:       kind,
		Method:     endpoint.method(),
		Endpoint:   endpoint.Path,
		StatusCode: status,
		Attempts:   attempts,
		Err:        cause,
	}
}

func malformed(endpoint Endpoint, cause error) error {
	return requestError(model.ErrMalformedResponse, endpoint, 0, 1, cause)
}
