package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codacy-acme/gl-repo-reporter/config"
	"github.com/codacy-acme/gl-repo-reporter/model"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type ReportService interface {
	BuildReport(ctx context.Context, query model.ReportQuery) (model.Report, error)
	BuildIssuesReport(ctx context.Context, query model.ReportQuery) (model.IssuesReport, error)
	LoadStandard(ctx context.Context, query model.ReportQuery, standard model.CodingStandard) (model.CodingStandard, error)
}

type reportService struct {
	codacy CodacyAPI
	config config.Config
	now    func() time.Time
}

func NewReportService(config config.Config, codacy CodacyAPI) ReportService {
	return reportService{
		codacy: codacy,
		config: config,
		now:    time.Now,
	}
}

// BuildReport walks the non draft coding standards of the organization and emits one row
// per standard and repository, in listing order.
// Failures are isolated: a failing repository is skipped, a standard whose tools, patterns
// or repositories cannot be listed is skipped. Only an authorization failure, a cancelled
// context or a failure to list the standards themselves aborts the run.
func (s reportService) BuildReport(ctx context.Context, query model.ReportQuery) (model.Report, error) {
	report := model.Report{
		RunID:        uuid.NewString(),
		Organization: query.Organization,
		Provider:     query.Provider,
		GeneratedAt:  s.now(),
		Rows:         make([]model.ReportRow, 0),
		Skipped:      make([]model.SkippedEntry, 0),
	}

	entry := runEntry(report.RunID, query)
	entry.Info("fetch coding standards")

	err := s.walkStandards(ctx, query, entry, &report.Skipped, func(listed model.CodingStandard) error {
		standard, err := s.LoadStandard(ctx, query, listed)
		if err != nil {
			return skipStandard(entry, &report.Skipped, listed.Name, err)
		}

		entry.WithFields(log.Fields{
			"standard":     standard.Name,
			"tools":        standard.EnabledToolsCount,
			"patterns":     standard.EnabledPatternsCount,
			"repositories": len(standard.Repositories),
		}).Info("analyzing coding standard")

		return s.appendStandardRows(ctx, query, standard, &report, entry)
	})

	if err != nil {
		return model.Report{}, err
	}

	entry.WithFields(log.Fields{
		"rows":    len(report.Rows),
		"skipped": len(report.Skipped),
	}).Info("report built")

	return report, nil
}

// BuildIssuesReport lists every issue of every repository governed by a non draft
// coding standard, with the same isolation rules as BuildReport.
// A repository is only added once all of its issue pages were fetched.
func (s reportService) BuildIssuesReport(ctx context.Context, query model.ReportQuery) (model.IssuesReport, error) {
	report := model.IssuesReport{
		RunID:        uuid.NewString(),
		Organization: query.Organization,
		Provider:     query.Provider,
		GeneratedAt:  s.now(),
		Rows:         make([]model.IssueRow, 0),
		Skipped:      make([]model.SkippedEntry, 0),
	}

	entry := runEntry(report.RunID, query)
	entry.Info("fetch coding standards")

	err := s.walkStandards(ctx, query, entry, &report.Skipped, func(standard model.CodingStandard) error {
		repositories, err := s.standardRepositories(ctx, query, standard.ID)
		if err != nil {
			return skipStandard(entry, &report.Skipped, standard.Name, err)
		}

		entry.WithFields(log.Fields{
			"standard":     standard.Name,
			"repositories": len(repositories),
		}).Info("collecting issues of coding standard")

		for _, repository := range repositories {
			repoEntry := entry.WithFields(log.Fields{
				"standard":   standard.Name,
				"repository": repository.Name,
			})

			issues, err := s.repositoryIssues(ctx, query, repository.Name)

			switch {
			case err == nil:
			case errors.Is(err, model.ErrNotFound):
				repoEntry.Debug("no analysis available for repository")
				continue
			case isFatal(err):
				return err
			default:
				repoEntry.WithError(err).Warning("unable to list repository issues. skipped")
				report.Skipped = append(report.Skipped, model.SkippedEntry{
					Level:      model.SkipLevelRepository,
					Standard:   standard.Name,
					Repository: repository.Name,
					Reason:     model.Reason(err),
				})

				continue
			}

			for _, issue := range issues {
				report.Rows = append(report.Rows, model.IssueRow{
					StandardName:   standard.Name,
					RepositoryName: repository.Name,
					Issue:          issue,
				})
			}
		}

		return nil
	})

	if err != nil {
		return model.IssuesReport{}, err
	}

	entry.WithFields(log.Fields{
		"rows":    len(report.Rows),
		"skipped": len(report.Skipped),
	}).Info("issues report built")

	return report, nil
}

// walkStandards calls visit for every non draft coding standard, in listing order.
// A record that cannot be decoded is skipped, failing to list the standards aborts.
func (s reportService) walkStandards(ctx context.Context, query model.ReportQuery, entry *log.Entry, skipped *[]model.SkippedEntry, visit func(standard model.CodingStandard) error) error {
	standards := s.codacy.FetchAll(ctx, CodingStandardsEndpoint(query.Provider, query.Organization))
	position := 0

	for standards.Next() {
		position++

		var record codingStandardRecord
		if err := standards.Decode(&record); err != nil {
			name := fmt.Sprintf("#%d", position)

			entry.WithField("standard", name).WithError(err).Warning("unable to decode coding standard. skipped")
			*skipped = append(*skipped, model.SkippedEntry{
				Level:    model.SkipLevelStandard,
				Standard: name,
				Reason:   model.Reason(err),
			})

			continue
		}

		// drafts are excluded from every downstream step
		if record.IsDraft {
			entry.WithField("standard", record.Name).Debug("draft coding standard. skipped")
			continue
		}

		err := visit(model.CodingStandard{
			ID:        record.ID,
			Name:      record.Name,
			IsDefault: record.IsDefault,
		})

		if err != nil {
			return err
		}
	}

	if err := standards.Err(); err != nil {
		return fmt.Errorf("list coding standards: %w", err)
	}

	return nil
}

// LoadStandard completes a listed standard with its enabled tools and patterns counts
// and the repositories it is applied to
func (s reportService) LoadStandard(ctx context.Context, query model.ReportQuery, standard model.CodingStandard) (model.CodingStandard, error) {
	var enabledTools []string

	tools := s.codacy.FetchAll(ctx, ToolsEndpoint(query.Provider, query.Organization, standard.ID))
	for tools.Next() {
		var tool toolRecord
		if err := tools.Decode(&tool); err != nil {
			return standard, fmt.Errorf("list tools: %w", err)
		}

		if tool.IsEnabled {
			enabledTools = append(enabledTools, tool.UUID)
		}
	}

	if err := tools.Err(); err != nil {
		return standard, fmt.Errorf("list tools: %w", err)
	}

	standard.EnabledToolsCount = len(enabledTools)
	standard.EnabledPatternsCount = 0

	for _, toolUUID := range enabledTools {
		patterns := s.codacy.FetchAll(ctx, PatternsEndpoint(query.Provider, query.Organization, standard.ID, toolUUID))
		for patterns.Next() {
			var pattern patternRecord
			if err := patterns.Decode(&pattern); err != nil {
				return standard, fmt.Errorf("list patterns of tool %s: %w", toolUUID, err)
			}

			if pattern.Enabled {
				standard.EnabledPatternsCount++
			}
		}

		if err := patterns.Err(); err != nil {
			return standard, fmt.Errorf("list patterns of tool %s: %w", toolUUID, err)
		}
	}

	repositories, err := s.standardRepositories(ctx, query, standard.ID)
	if err != nil {
		return standard, err
	}

	standard.Repositories = repositories

	return standard, nil
}

func (s reportService) standardRepositories(ctx context.Context, query model.ReportQuery, standardID int64) ([]model.Repository, error) {
	result := make([]model.Repository, 0)

	repositories := s.codacy.FetchAll(ctx, StandardRepositoriesEndpoint(query.Provider, query.Organization, standardID))
	for repositories.Next() {
		var repository repositoryRecord
		if err := repositories.Decode(&repository); err != nil {
			return nil, fmt.Errorf("list repositories: %w", err)
		}

		// a repository without name cannot be queried
		if repository.Name == "" {
			continue
		}

		result = append(result, model.Repository{
			ID:           repository.RepositoryID,
			Name:         repository.Name,
			Organization: query.Organization,
			Provider:     query.Provider,
		})
	}

	if err := repositories.Err(); err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}

	return result, nil
}

// repositoryIssues pages through the issue search of a repository
func (s reportService) repositoryIssues(ctx context.Context, query model.ReportQuery, repository string) ([]model.Issue, error) {
	issues := make([]model.Issue, 0)

	records := s.codacy.FetchAll(ctx, IssuesSearchEndpoint(query.Provider, query.Organization, repository, s.issueFilters()))
	for records.Next() {
		var record issueRecord
		if err := records.Decode(&record); err != nil {
			return nil, fmt.Errorf("search issues: %w", err)
		}

		issues = append(issues, record.toIssue())
	}

	if err := records.Err(); err != nil {
		return nil, fmt.Errorf("search issues: %w", err)
	}

	return issues, nil
}

// appendStandardRows fetches the metrics of every repository of the standard.
// It only returns an error when the whole run must stop.
func (s reportService) appendStandardRows(ctx context.Context, query model.ReportQuery, standard model.CodingStandard, report *model.Report, entry *log.Entry) error {
	if len(standard.Repositories) == 0 {
		entry.WithField("standard", standard.Name).Info("coding standard without repositories")

		if s.config.Report.IncludeEmptyStandards {
			report.Rows = append(report.Rows, newRow(standard, "", model.NoAnalysis()))
		}

		return nil
	}

	for _, repository := range standard.Repositories {
		repoEntry := entry.WithFields(log.Fields{
			"standard":   standard.Name,
			"repository": repository.Name,
		})

		metrics, err := s.codacy.GetRepositoryMetrics(ctx, query.Provider, query.Organization, repository.Name)

		switch {
		case err == nil:
		case errors.Is(err, model.ErrNotFound):
			repoEntry.Debug("no analysis available for repository")
			metrics = model.NoAnalysis()
		case isFatal(err):
			return err
		default:
			repoEntry.WithError(err).Warning("unable to fetch repository metrics. skipped")
			report.Skipped = append(report.Skipped, model.SkippedEntry{
				Level:      model.SkipLevelRepository,
				Standard:   standard.Name,
				Repository: repository.Name,
				Reason:     model.Reason(err),
			})

			continue
		}

		row := newRow(standard, repository.Name, metrics)

		if s.config.Report.IssueBreakdown && metrics.Analyzed {
			counts, err := s.codacy.CountIssues(ctx, query.Provider, query.Organization, repository.Name, s.issueFilters())

			switch {
			case err == nil:
				row.Issues = &counts
			case errors.Is(err, model.ErrNotFound):
			case isFatal(err):
				return err
			default:
				repoEntry.WithError(err).Warning("unable to count repository issues. skipped")
				report.Skipped = append(report.Skipped, model.SkippedEntry{
					Level:      model.SkipLevelRepository,
					Standard:   standard.Name,
					Repository: repository.Name,
					Reason:     model.Reason(err),
				})

				continue
			}
		}

		report.Rows = append(report.Rows, row)
	}

	return nil
}

func (s reportService) issueFilters() model.IssueFilters {
	filters := s.config.Report.Filters

	return model.IssueFilters{
		Levels:       filters.Levels,
		Categories:   filters.Categories,
		Languages:    filters.Languages,
		AuthorEmails: filters.AuthorEmails,
		BranchName:   filters.BranchName,
	}
}

func runEntry(runID string, query model.ReportQuery) *log.Entry {
	return log.WithFields(log.Fields{
		"runID":        runID,
		"organization": query.Organization,
		"provider":     query.Provider,
	})
}

// skipStandard records a standard that could not be loaded. Fatal errors are returned instead.
func skipStandard(entry *log.Entry, skipped *[]model.SkippedEntry, name string, err error) error {
	if isFatal(err) {
		return err
	}

	entry.WithField("standard", name).WithError(err).Warning("unable to load coding standard. skipped")
	*skipped = append(*skipped, model.SkippedEntry{
		Level:    model.SkipLevelStandard,
		Standard: name,
		Reason:   model.Reason(err),
	})

	return nil
}

func newRow(standard model.CodingStandard, repository string, metrics model.RepositoryMetrics) model.ReportRow {
	return model.ReportRow{
		StandardName:         standard.Name,
		StandardIsDefault:    standard.IsDefault,
		EnabledToolsCount:    standard.EnabledToolsCount,
		EnabledPatternsCount: standard.EnabledPatternsCount,
		RepositoryName:       repository,
		Metrics:              metrics,
	}
}

// isFatal tells if err must abort the whole run
func isFatal(err error) bool {
	return errors.Is(err, model.ErrAuthorizationFailure) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
