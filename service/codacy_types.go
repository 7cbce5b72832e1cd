package service

import (
	"encoding/json"

	"github.com/codacy-acme/gl-repo-reporter/model"
)

// Page is one page of a paginated listing. NextCursor is empty on the last page.
type Page struct {
	Items      []json.RawMessage
	NextCursor string
}

type pageResponse struct {
	Data       []json.RawMessage `json:"data"`
	Pagination *struct {
		Cursor string `json:"cursor"`
		Limit  int    `json:"limit"`
		Total  int    `json:"total"`
	} `json:"pagination"`
}

type codingStandardRecord struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	IsDraft   bool   `json:"isDraft"`
	IsDefault bool   `json:"isDefault"`
}

type toolRecord struct {
	UUID      string `json:"uuid"`
	IsEnabled bool   `json:"isEnabled"`
}

type patternRecord struct {
	PatternDefinition struct {
		ID string `json:"id"`
	} `json:"patternDefinition"`
	Enabled bool `json:"enabled"`
}

type repositoryRecord struct {
	RepositoryID int64  `json:"repositoryId"`
	Name         string `json:"name"`
	Owner        string `json:"owner"`
	Provider     string `json:"provider"`
}

type repositoryAnalysisResponse struct {
	Data *struct {
		LastAnalysedCommit    *json.RawMessage `json:"lastAnalysedCommit"`
		GradeLetter           *string          `json:"gradeLetter"`
		Grade                 *float64         `json:"grade"`
		IssuesCount           *int             `json:"issuesCount"`
		LOC                   *int             `json:"loc"`
		ComplexFilesCount     *int             `json:"complexFilesCount"`
		DuplicationPercentage *float64         `json:"duplicationPercentage"`
		Coverage              *struct {
			CoveragePercentage *float64 `json:"coveragePercentage"`
		} `json:"coverage"`
	} `json:"data"`
}

// toMetrics returns NoAnalysis when the repository was never analysed
func (r repositoryAnalysisResponse) toMetrics() model.RepositoryMetrics {
	d := r.Data
	if d.LastAnalysedCommit == nil && d.GradeLetter == nil {
		return model.NoAnalysis()
	}

	metrics := model.RepositoryMetrics{
		Analyzed:              true,
		GradeLetter:           d.GradeLetter,
		GradePercentage:       d.Grade,
		IssuesCount:           d.IssuesCount,
		LinesOfCode:           d.LOC,
		ComplexFilesCount:     d.ComplexFilesCount,
		DuplicationPercentage: d.DuplicationPercentage,
	}

	if d.Coverage != nil {
		metrics.CoveragePercentage = d.Coverage.CoveragePercentage
	}

	return metrics
}

type issuesSearchResponse struct {
	Data       []json.RawMessage `json:"data"`
	Pagination *struct {
		Total int `json:"total"`
	} `json:"pagination"`
	Counts map[string]int `json:"counts"`
}

func (r issuesSearchResponse) toIssueCounts() model.IssueCounts {
	counts := model.IssueCounts{
		Error:   r.Counts["Error"],
		Warning: r.Counts["Warning"],
		Info:    r.Counts["Info"],
	}

	if r.Pagination != nil {
		counts.Total = r.Pagination.Total
	} else {
		counts.Total = counts.Error + counts.Warning + counts.Info
	}

	return counts
}

type issueRecord struct {
	ID          json.RawMessage `json:"id"`
	IssueID     json.RawMessage `json:"issueId"`
	FilePath    string          `json:"filePath"`
	LineNumber  *int            `json:"lineNumber"`
	Message     string          `json:"message"`
	AuthorName  string          `json:"authorName"`
	CreatedAt   string          `json:"createdAt"`
	PatternInfo struct {
		ID            string `json:"id"`
		Category      string `json:"category"`
		SeverityLevel string `json:"severityLevel"`
	} `json:"patternInfo"`
}

func (r issueRecord) toIssue() model.Issue {
	id := identifier(r.ID)
	if id == "" {
		id = identifier(r.IssueID)
	}

	return model.Issue{
		ID:         id,
		FilePath:   r.FilePath,
		LineNumber: r.LineNumber,
		PatternID:  r.PatternInfo.ID,
		Category:   r.PatternInfo.Category,
		Level:      r.PatternInfo.SeverityLevel,
		Message:    r.Message,
		Author:     r.AuthorName,
		CreatedAt:  r.CreatedAt,
	}
}

// identifier renders an id sent either as a JSON string or as a number
func identifier(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	return string(raw)
}
