package model

import (
	"strconv"
	"time"
)

// ReportRow is one coding standard x repository line of the report.
// Repository fields are empty for a standard without repositories.
type ReportRow struct {
	StandardName         string            `json:"standardName"`
	StandardIsDefault    bool              `json:"standardIsDefault"`
	EnabledToolsCount    int               `json:"enabledToolsCount"`
	EnabledPatternsCount int               `json:"enabledPatternsCount"`
	RepositoryName       string            `json:"repositoryName"`
	Metrics              RepositoryMetrics `json:"metrics"`
	Issues               *IssueCounts      `json:"issues,omitempty"` // only filled with the issue breakdown
}

// SkipLevel tells if a whole standard or a single repository was skipped
type SkipLevel string

const (
	SkipLevelStandard   SkipLevel = "standard"
	SkipLevelRepository SkipLevel = "repository"
)

// SkippedEntry records something left out of the report and why
type SkippedEntry struct {
	Level      SkipLevel `json:"level"`
	Standard   string    `json:"standard"`
	Repository string    `json:"repository,omitempty"`
	Reason     string    `json:"reason"`
}

// Report is the result of a run. Rows keep discovery order.
type Report struct {
	RunID        string         `json:"runId"`
	Organization string         `json:"organization"`
	Provider     string         `json:"provider"`
	GeneratedAt  time.Time      `json:"generatedAt"`
	Rows         []ReportRow    `json:"rows"`
	Skipped      []SkippedEntry `json:"skipped"`
}

// CSVHeader returns the column names, with the issue breakdown columns when requested
func CSVHeader(withIssueBreakdown bool) []string {
	header := []string{
		"Coding Standard",
		"Is Default",
		"Enabled Tools",
		"Enabled Patterns",
		"Repository",
		"Grade",
		"Grade Percentage",
		"Total Issues",
		"Lines Of Code",
		"Coverage Percentage",
		"Complex Files",
		"Duplication Percentage",
	}

	if withIssueBreakdown {
		header = append(header, "Error Issues", "Warning Issues", "Info Issues")
	}

	return header
}

// CSVRecord flattens the row, nil metrics become empty cells
func (r ReportRow) CSVRecord(withIssueBreakdown bool) []string {
	record := []string{
		r.StandardName,
		strconv.FormatBool(r.StandardIsDefault),
		strconv.Itoa(r.EnabledToolsCount),
		strconv.Itoa(r.EnabledPatternsCount),
		r.RepositoryName,
		stringCell(r.Metrics.GradeLetter),
		floatCell(r.Metrics.GradePercentage),
		intCell(r.Metrics.IssuesCount),
		intCell(r.Metrics.LinesOfCode),
		floatCell(r.Metrics.CoveragePercentage),
		intCell(r.Metrics.ComplexFilesCount),
		floatCell(r.Metrics.DuplicationPercentage),
	}

	if withIssueBreakdown {
		if r.Issues == nil {
			record = append(record, "", "", "")
		} else {
			record = append(record, strconv.Itoa(r.Issues.Error), strconv.Itoa(r.Issues.Warning), strconv.Itoa(r.Issues.Info))
		}
	}

	return record
}

func stringCell(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func intCell(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func floatCell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
