package model

import "time"

// Issue is one issue raised by the last analysis of a repository
type Issue struct {
	ID         string `json:"id"`
	FilePath   string `json:"filePath"`
	LineNumber *int   `json:"lineNumber,omitempty"`
	PatternID  string `json:"patternId"`
	Category   string `json:"category"`
	Level      string `json:"level"`
	Message    string `json:"message"`
	Author     string `json:"author"`
	CreatedAt  string `json:"createdAt"`
}

// IssueRow places an issue under the coding standard and repository it was found through.
// A repository governed by two standards has its issues listed under both.
type IssueRow struct {
	StandardName   string `json:"standardName"`
	RepositoryName string `json:"repositoryName"`
	Issue
}

// IssuesReport is the result of a detailed run, one row per issue
type IssuesReport struct {
	RunID        string         `json:"runId"`
	Organization string         `json:"organization"`
	Provider     string         `json:"provider"`
	GeneratedAt  time.Time      `json:"generatedAt"`
	Rows         []IssueRow     `json:"rows"`
	Skipped      []SkippedEntry `json:"skipped"`
}

// IssuesCSVHeader returns the column names of the detailed report
func IssuesCSVHeader() []string {
	return []string{
		"Coding Standard",
		"Repository",
		"File",
		"Line",
		"Issue ID",
		"Pattern",
		"Category",
		"Level",
		"Message",
		"Author",
		"Created At",
	}
}

// CSVRecord flattens the row, a missing line number is an empty cell
func (r IssueRow) CSVRecord() []string {
	return []string{
		r.StandardName,
		r.RepositoryName,
		r.FilePath,
		intCell(r.LineNumber),
		r.ID,
		r.PatternID,
		r.Category,
		r.Level,
		r.Message,
		r.Author,
		r.CreatedAt,
	}
}
