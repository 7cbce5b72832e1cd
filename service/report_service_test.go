package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/codacy-acme/gl-repo-reporter/config"
	"github.com/codacy-acme/gl-repo-reporter/model"
	githubMock "github.com/migueleliasweb/go-github-mock/src/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	orgPath      = "/organizations/gh/acme"
	analysisPath = "/analysis/organizations/gh/acme/repositories/"
)

func standard(id int64, name string, isDraft, isDefault bool) map[string]interface{} {
	return map[string]interface{}{"id": id, "name": name, "isDraft": isDraft, "isDefault": isDefault}
}

func repository(name string) map[string]interface{} {
	return map[string]interface{}{"repositoryId": len(name), "name": name, "owner": "acme", "provider": "gh"}
}

func fullAnalysis() mockResponse {
	return ok(map[string]interface{}{"data": map[string]interface{}{
		"lastAnalysedCommit":    map[string]interface{}{"sha": "4f2a"},
		"gradeLetter":           "A",
		"grade":                 92,
		"issuesCount":           10,
		"loc":                   5000,
		"complexFilesCount":     1,
		"duplicationPercentage": 3,
		"coverage":              map[string]interface{}{"coveragePercentage": 87},
	}})
}

func noAnalysis() mockResponse {
	return ok(map[string]interface{}{"data": map[string]interface{}{}})
}

// activeStandard registers the tools, patterns and repositories of an active standard
func activeStandard(t *testing.T, counter *callCounter, id int64, repositories ...string) []githubMock.MockBackendOption {
	prefix := orgPath + "/coding-standards/" + itoa(id)

	repos := make([]interface{}, 0, len(repositories))
	for _, name := range repositories {
		repos = append(repos, repository(name))
	}

	return []githubMock.MockBackendOption{
		githubMock.WithRequestMatchHandler(get(prefix+"/tools"), counter.sequence(t, "tools-"+itoa(id), ok(page([]interface{}{
			map[string]interface{}{"uuid": "eslint", "isEnabled": true},
			map[string]interface{}{"uuid": "pmd", "isEnabled": false},
			map[string]interface{}{"uuid": "semgrep", "isEnabled": true},
		}, "")))),
		githubMock.WithRequestMatchHandler(get(prefix+"/tools/eslint/patterns"), counter.pages(t, "eslint-"+itoa(id), []interface{}{
			map[string]interface{}{"patternDefinition": map[string]interface{}{"id": "no-eval"}, "enabled": true},
			map[string]interface{}{"patternDefinition": map[string]interface{}{"id": "no-var"}, "enabled": false},
			map[string]interface{}{"patternDefinition": map[string]interface{}{"id": "eqeqeq"}, "enabled": true},
		}, 2)),
		githubMock.WithRequestMatchHandler(get(prefix+"/tools/semgrep/patterns"), counter.sequence(t, "semgrep-"+itoa(id), ok(page([]interface{}{
			map[string]interface{}{"patternDefinition": map[string]interface{}{"id": "sql-injection"}, "enabled": true},
		}, "")))),
		githubMock.WithRequestMatchHandler(get(prefix+"/tools/pmd/patterns"), unexpected(t)),
		githubMock.WithRequestMatchHandler(get(prefix+"/repositories"), counter.pages(t, "repositories-"+itoa(id), repos, 2)),
	}
}

// untouchedStandard fails the test if anything of the standard is requested
func untouchedStandard(t *testing.T, id int64) []githubMock.MockBackendOption {
	prefix := orgPath + "/coding-standards/" + itoa(id)

	return []githubMock.MockBackendOption{
		githubMock.WithRequestMatchHandler(get(prefix+"/tools"), unexpected(t)),
		githubMock.WithRequestMatchHandler(get(prefix+"/repositories"), unexpected(t)),
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func standardsListing(t *testing.T, counter *callCounter, standards ...interface{}) githubMock.MockBackendOption {
	return githubMock.WithRequestMatchHandler(get(orgPath+"/coding-standards"), counter.sequence(t, "standards", ok(page(standards, ""))))
}

func metricsOf(t *testing.T, counter *callCounter, repo string, responses ...mockResponse) githubMock.MockBackendOption {
	return githubMock.WithRequestMatchHandler(get(analysisPath+repo), counter.sequence(t, "metrics-"+repo, responses...))
}

func buildReport(t *testing.T, cfg config.Config, options ...githubMock.MockBackendOption) (model.Report, error) {
	client, _ := newTestClient(cfg, options...)
	svc := NewReportService(cfg, client).(reportService)
	svc.now = func() time.Time { return time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC) }

	return svc.BuildReport(context.Background(), model.ReportQuery{Organization: "acme", Provider: "gh"})
}

func flatten(options ...[]githubMock.MockBackendOption) []githubMock.MockBackendOption {
	var all []githubMock.MockBackendOption
	for _, o := range options {
		all = append(all, o...)
	}
	return all
}

// TestBuildReportEndToEnd covers an organization with a draft standard and an active one
// with an analysed repository and a repository without analysis
func TestBuildReportEndToEnd(t *testing.T) {
	counter := newCallCounter()

	options := flatten(
		[]githubMock.MockBackendOption{
			standardsListing(t, counter, standard(1, "Draft rules", true, false), standard(2, "Backend", false, true)),
			metricsOf(t, counter, "api", fullAnalysis()),
			metricsOf(t, counter, "web", noAnalysis()),
		},
		untouchedStandard(t, 1),
		activeStandard(t, counter, 2, "api", "web"),
	)

	report, err := buildReport(t, testConfig(), options...)
	require.NoError(t, err)

	assert.Equal(t, "acme", report.Organization)
	assert.Equal(t, "gh", report.Provider)
	assert.NotEmpty(t, report.RunID)
	assert.Empty(t, report.Skipped)
	require.Len(t, report.Rows, 2)

	full := report.Rows[0]
	assert.Equal(t, "Backend", full.StandardName)
	assert.True(t, full.StandardIsDefault)
	assert.Equal(t, 2, full.EnabledToolsCount)
	assert.Equal(t, 3, full.EnabledPatternsCount)
	assert.Equal(t, "api", full.RepositoryName)
	assert.Equal(t, []string{"Backend", "true", "2", "3", "api", "A", "92", "10", "5000", "87", "1", "3"}, full.CSVRecord(false))

	empty := report.Rows[1]
	assert.Equal(t, "web", empty.RepositoryName)
	assert.Equal(t, model.NoAnalysis(), empty.Metrics)
	assert.Equal(t, []string{"Backend", "true", "2", "3", "web", "", "", "", "", "", "", ""}, empty.CSVRecord(false))

	assert.Equal(t, 2, counter.get("eslint-2"))
	assert.Equal(t, 1, counter.get("semgrep-2"))
}

func TestBuildReportWithoutStandards(t *testing.T) {
	counter := newCallCounter()

	report, err := buildReport(t, testConfig(), standardsListing(t, counter))

	require.NoError(t, err)
	assert.Empty(t, report.Rows)
	assert.Empty(t, report.Skipped)
}

func TestBuildReportExcludesDrafts(t *testing.T) {
	counter := newCallCounter()

	options := flatten(
		[]githubMock.MockBackendOption{
			standardsListing(t, counter, standard(1, "Draft A", true, false), standard(2, "Draft B", true, true)),
		},
		untouchedStandard(t, 1),
		untouchedStandard(t, 2),
	)

	report, err := buildReport(t, testConfig(), options...)

	require.NoError(t, err)
	assert.Empty(t, report.Rows)
}

// TestBuildReportIsolatesRepositoryFailures checks that a failing repository does not stop its standard
func TestBuildReportIsolatesRepositoryFailures(t *testing.T) {
	counter := newCallCounter()

	options := flatten(
		[]githubMock.MockBackendOption{
			standardsListing(t, counter, standard(3, "Frontend", false, false)),
			metricsOf(t, counter, "a", fullAnalysis()),
			metricsOf(t, counter, "b", mockResponse{status: http.StatusInternalServerError}),
			metricsOf(t, counter, "c", fullAnalysis()),
		},
		activeStandard(t, counter, 3, "a", "b", "c"),
	)

	report, err := buildReport(t, testConfig(), options...)
	require.NoError(t, err)

	require.Len(t, report.Rows, 2)
	assert.Equal(t, "a", report.Rows[0].RepositoryName)
	assert.Equal(t, "c", report.Rows[1].RepositoryName)

	require.Len(t, report.Skipped, 1)
	assert.Equal(t, model.SkippedEntry{
		Level:      model.SkipLevelRepository,
		Standard:   "Frontend",
		Repository: "b",
		Reason:     "TRANSIENT_FAILURE (status 500)",
	}, report.Skipped[0])

	// initial call plus MaxTransientRetries
	assert.Equal(t, 3, counter.get("metrics-b"))
}

func TestBuildReportMetricsNotFound(t *testing.T) {
	counter := newCallCounter()

	options := flatten(
		[]githubMock.MockBackendOption{
			standardsListing(t, counter, standard(2, "Backend", false, false)),
			metricsOf(t, counter, "gone", mockResponse{status: http.StatusNotFound}),
		},
		activeStandard(t, counter, 2, "gone"),
	)

	report, err := buildReport(t, testConfig(), options...)
	require.NoError(t, err)

	require.Len(t, report.Rows, 1)
	assert.Equal(t, "gone", report.Rows[0].RepositoryName)
	assert.Equal(t, model.NoAnalysis(), report.Rows[0].Metrics)
}

func TestBuildReportSkipsFailingStandard(t *testing.T) {
	counter := newCallCounter()

	options := flatten(
		[]githubMock.MockBackendOption{
			standardsListing(t, counter, standard(4, "Broken", false, false), standard(2, "Backend", false, false)),
			githubMock.WithRequestMatchHandler(get(orgPath+"/coding-standards/4/tools"), counter.sequence(t, "tools-4", ok(page([]interface{}{}, "")))),
			githubMock.WithRequestMatchHandler(get(orgPath+"/coding-standards/4/repositories"), counter.sequence(t, "repositories-4", mockResponse{status: http.StatusBadGateway})),
			metricsOf(t, counter, "api", fullAnalysis()),
		},
		activeStandard(t, counter, 2, "api"),
	)

	report, err := buildReport(t, testConfig(), options...)
	require.NoError(t, err)

	require.Len(t, report.Rows, 1)
	assert.Equal(t, "Backend", report.Rows[0].StandardName)

	require.Len(t, report.Skipped, 1)
	assert.Equal(t, model.SkipLevelStandard, report.Skipped[0].Level)
	assert.Equal(t, "Broken", report.Skipped[0].Standard)
	assert.Equal(t, "TRANSIENT_FAILURE (status 502)", report.Skipped[0].Reason)
}

func TestBuildReportAbortsOnAuthorizationFailure(t *testing.T) {
	tests := []struct {
		name    string
		options func(t *testing.T, counter *callCounter) []githubMock.MockBackendOption
	}{
		{
			name: "While listing standards",
			options: func(t *testing.T, counter *callCounter) []githubMock.MockBackendOption {
				return []githubMock.MockBackendOption{
					githubMock.WithRequestMatchHandler(get(orgPath+"/coding-standards"), counter.sequence(t, "standards", mockResponse{status: http.StatusUnauthorized})),
				}
			},
		},
		{
			name: "While fetching repository metrics",
			options: func(t *testing.T, counter *callCounter) []githubMock.MockBackendOption {
				return flatten(
					[]githubMock.MockBackendOption{
						standardsListing(t, counter, standard(2, "Backend", false, false)),
						metricsOf(t, counter, "api", mockResponse{status: http.StatusForbidden}),
						metricsOf(t, counter, "web", fullAnalysis()),
					},
					activeStandard(t, counter, 2, "api", "web"),
				)
			},
		},
		{
			name: "While listing tools",
			options: func(t *testing.T, counter *callCounter) []githubMock.MockBackendOption {
				return []githubMock.MockBackendOption{
					standardsListing(t, counter, standard(2, "Backend", false, false)),
					githubMock.WithRequestMatchHandler(get(orgPath+"/coding-standards/2/tools"), counter.sequence(t, "tools", mockResponse{status: http.StatusUnauthorized})),
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := newCallCounter()

			report, err := buildReport(t, testConfig(), tt.options(t, counter)...)

			assert.ErrorIs(t, err, model.ErrAuthorizationFailure)
			assert.Empty(t, report.Rows)
			assert.Equal(t, 0, counter.get("metrics-web"))
		})
	}
}

func TestBuildReportIncludeEmptyStandards(t *testing.T) {
	counter := newCallCounter()
	cfg := testConfig()
	cfg.Report.IncludeEmptyStandards = true

	options := flatten(
		[]githubMock.MockBackendOption{
			standardsListing(t, counter, standard(2, "Unused", false, false)),
		},
		activeStandard(t, counter, 2),
	)

	report, err := buildReport(t, cfg, options...)
	require.NoError(t, err)

	require.Len(t, report.Rows, 1)
	assert.Equal(t, "Unused", report.Rows[0].StandardName)
	assert.Equal(t, "", report.Rows[0].RepositoryName)
	assert.Equal(t, 3, report.Rows[0].EnabledPatternsCount)
}

func TestBuildReportIssueBreakdown(t *testing.T) {
	counter := newCallCounter()
	cfg := testConfig()
	cfg.Report.IssueBreakdown = true
	cfg.Report.Filters.Levels = []string{"Error"}

	options := flatten(
		[]githubMock.MockBackendOption{
			standardsListing(t, counter, standard(2, "Backend", false, false)),
			metricsOf(t, counter, "api", fullAnalysis()),
			metricsOf(t, counter, "web", noAnalysis()),
			githubMock.WithRequestMatchHandler(post(analysisPath+"api/issues/search"), counter.sequence(t, "issues-api", ok(map[string]interface{}{
				"data":       []interface{}{},
				"pagination": map[string]interface{}{"total": 10},
				"counts":     map[string]interface{}{"Error": 3, "Warning": 5, "Info": 2},
			}))),
			githubMock.WithRequestMatchHandler(post(analysisPath+"web/issues/search"), unexpected(t)),
		},
		activeStandard(t, counter, 2, "api", "web"),
	)

	report, err := buildReport(t, cfg, options...)
	require.NoError(t, err)

	require.Len(t, report.Rows, 2)
	assert.Equal(t, &model.IssueCounts{Total: 10, Error: 3, Warning: 5, Info: 2}, report.Rows[0].Issues)
	assert.Nil(t, report.Rows[1].Issues)
	assert.Equal(t, 1, counter.get("issues-api"))
}

func TestBuildReportSkipsUndecodableStandard(t *testing.T) {
	counter := newCallCounter()

	options := flatten(
		[]githubMock.MockBackendOption{
			standardsListing(t, counter, map[string]interface{}{"id": "not-a-number", "name": "Broken"}, standard(2, "Backend", false, false)),
			metricsOf(t, counter, "api", fullAnalysis()),
		},
		activeStandard(t, counter, 2, "api"),
	)

	report, err := buildReport(t, testConfig(), options...)
	require.NoError(t, err)

	require.Len(t, report.Rows, 1)
	assert.Equal(t, "Backend", report.Rows[0].StandardName)

	assert.Equal(t, []model.SkippedEntry{{
		Level:    model.SkipLevelStandard,
		Standard: "#1",
		Reason:   "MALFORMED_RESPONSE",
	}}, report.Skipped)
}

func issue(id int, file string, line int, pattern, level string) map[string]interface{} {
	return map[string]interface{}{
		"issueId":    id,
		"filePath":   file,
		"lineNumber": line,
		"message":    "issue " + strconv.Itoa(id),
		"authorName": "dev",
		"createdAt":  "2026-10-01T08:00:00Z",
		"patternInfo": map[string]interface{}{
			"id":            pattern,
			"category":      "Security",
			"severityLevel": level,
		},
	}
}

func issuesOf(repo string, handler http.Handler) githubMock.MockBackendOption {
	return githubMock.WithRequestMatchHandler(post(analysisPath+repo+"/issues/search"), handler)
}

func repositoriesOf(t *testing.T, counter *callCounter, id int64, repositories ...string) githubMock.MockBackendOption {
	repos := make([]interface{}, 0, len(repositories))
	for _, name := range repositories {
		repos = append(repos, repository(name))
	}

	return githubMock.WithRequestMatchHandler(get(orgPath+"/coding-standards/"+itoa(id)+"/repositories"), counter.pages(t, "repositories-"+itoa(id), repos, 2))
}

func buildIssuesReport(t *testing.T, cfg config.Config, options ...githubMock.MockBackendOption) (model.IssuesReport, error) {
	client, _ := newTestClient(cfg, options...)
	svc := NewReportService(cfg, client).(reportService)
	svc.now = func() time.Time { return time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC) }

	return svc.BuildIssuesReport(context.Background(), model.ReportQuery{Organization: "acme", Provider: "gh"})
}

// TestBuildIssuesReport pages through the issues of every repository of the active standards
func TestBuildIssuesReport(t *testing.T) {
	counter := newCallCounter()
	cfg := testConfig()
	cfg.Report.Filters.Levels = []string{"Error"}

	options := []githubMock.MockBackendOption{
		standardsListing(t, counter, standard(1, "Draft rules", true, false), standard(2, "Backend", false, true)),
		githubMock.WithRequestMatchHandler(get(orgPath+"/coding-standards/1/repositories"), unexpected(t)),
		repositoriesOf(t, counter, 2, "api", "gone", "flaky", "web"),
		issuesOf("api", counter.pages(t, "issues-api", []interface{}{
			issue(1, "src/a.js", 3, "no-eval", "Error"),
			issue(2, "src/b.js", 14, "eqeqeq", "Error"),
			issue(3, "src/c.js", 7, "no-eval", "Error"),
		}, 2)),
		issuesOf("gone", counter.sequence(t, "issues-gone", mockResponse{status: http.StatusNotFound})),
		issuesOf("flaky", counter.sequence(t, "issues-flaky", mockResponse{status: http.StatusBadRequest})),
		issuesOf("web", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body model.IssueFilters
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, []string{"Error"}, body.Levels)
			assert.Equal(t, "100", r.URL.Query().Get("limit"))

			writeResponse(t, w, r, ok(page([]interface{}{issue(9, "index.ts", 1, "sql-injection", "Error")}, "")))
		})),
	}

	report, err := buildIssuesReport(t, cfg, options...)
	require.NoError(t, err)

	assert.Equal(t, "acme", report.Organization)
	assert.NotEmpty(t, report.RunID)

	var ids []string
	for _, row := range report.Rows {
		assert.Equal(t, "Backend", row.StandardName)
		ids = append(ids, row.RepositoryName+"/"+row.ID)
	}
	assert.Equal(t, []string{"api/1", "api/2", "api/3", "web/9"}, ids)

	assert.Equal(t,
		[]string{"Backend", "api", "src/b.js", "14", "2", "eqeqeq", "Security", "Error", "issue 2", "dev", "2026-10-01T08:00:00Z"},
		report.Rows[1].CSVRecord(),
	)

	assert.Equal(t, []model.SkippedEntry{{
		Level:      model.SkipLevelRepository,
		Standard:   "Backend",
		Repository: "flaky",
		Reason:     "REQUEST_REJECTED (status 400)",
	}}, report.Skipped)

	assert.Equal(t, 2, counter.get("issues-api"))
	assert.Equal(t, 1, counter.get("issues-gone"))
}

func TestBuildIssuesReportAbortsOnAuthorizationFailure(t *testing.T) {
	counter := newCallCounter()

	options := []githubMock.MockBackendOption{
		standardsListing(t, counter, standard(2, "Backend", false, false)),
		repositoriesOf(t, counter, 2, "api", "web"),
		issuesOf("api", counter.sequence(t, "issues-api", mockResponse{status: http.StatusUnauthorized})),
		issuesOf("web", unexpected(t)),
	}

	report, err := buildIssuesReport(t, testConfig(), options...)

	assert.ErrorIs(t, err, model.ErrAuthorizationFailure)
	assert.Empty(t, report.Rows)
}

// TestBuildIssuesReportDropsPartialListing checks that a repository failing on a later page adds no rows
func TestBuildIssuesReportDropsPartialListing(t *testing.T) {
	counter := newCallCounter()

	options := []githubMock.MockBackendOption{
		standardsListing(t, counter, standard(2, "Backend", false, false)),
		repositoriesOf(t, counter, 2, "api"),
		issuesOf("api", counter.sequence(t, "issues-api",
			ok(page([]interface{}{issue(1, "a.go", 1, "errcheck", "Warning")}, "next")),
			mockResponse{status: http.StatusBadRequest},
		)),
	}

	report, err := buildIssuesReport(t, testConfig(), options...)
	require.NoError(t, err)

	assert.Empty(t, report.Rows)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "api", report.Skipped[0].Repository)
}
